package models

import (
	"encoding/json"
	"time"
)

// MaxFieldLength bounds vehicle_id, object_type and status. Longer values are
// rejected, never truncated.
const MaxFieldLength = 50

// DetectionEvent is one timestamped sighting batch reported by a vehicle
type DetectionEvent struct {
	VehicleID     string      `json:"vehicle_id"`
	DetectionTime time.Time   `json:"detection_time"`
	Detections    []Detection `json:"detections"`
}

// Detection is a count of one object type seen in a DetectionEvent
type Detection struct {
	ObjectType  string `json:"object_type"`
	ObjectValue int64  `json:"object_value"`
}

// DetectionRow is the persisted form of a single Detection
type DetectionRow struct {
	ID            uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	VehicleID     string    `json:"vehicle_id" gorm:"size:50;not null"`
	DetectionTime time.Time `json:"detection_time" gorm:"not null"`
	ObjectType    string    `json:"object_type" gorm:"size:50;not null"`
	ObjectValue   int64     `json:"object_value" gorm:"not null"`
}

// TableName maps DetectionRow onto the objects_detection table
func (DetectionRow) TableName() string {
	return "objects_detection"
}

// Rows expands the event into one row per detection, all sharing the
// event's vehicle and time.
func (e *DetectionEvent) Rows() []DetectionRow {
	rows := make([]DetectionRow, 0, len(e.Detections))
	for _, d := range e.Detections {
		rows = append(rows, DetectionRow{
			VehicleID:     e.VehicleID,
			DetectionTime: e.DetectionTime,
			ObjectType:    d.ObjectType,
			ObjectValue:   d.ObjectValue,
		})
	}
	return rows
}

// DetectionRowsFrom flattens a parsed detection file into storage rows
func DetectionRowsFrom(events []DetectionEvent) []DetectionRow {
	total := 0
	for i := range events {
		total += len(events[i].Detections)
	}

	rows := make([]DetectionRow, 0, total)
	for i := range events {
		rows = append(rows, events[i].Rows()...)
	}
	return rows
}

// ToJSON serializes the row to JSON
func (r *DetectionRow) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}
