package models

import (
	"encoding/json"
	"time"
)

// StatusReport is one timestamped operating state of a vehicle
// (driving, parking, accident, ...)
type StatusReport struct {
	VehicleID  string    `json:"vehicle_id"`
	ReportTime time.Time `json:"report_time"`
	Status     string    `json:"status"`
}

// StatusRow is the persisted form of a StatusReport
type StatusRow struct {
	ID         uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	VehicleID  string    `json:"vehicle_id" gorm:"size:50;not null"`
	ReportTime time.Time `json:"report_time" gorm:"not null"`
	Status     string    `json:"status" gorm:"size:50;not null"`
}

// TableName maps StatusRow onto the vehicles_status table
func (StatusRow) TableName() string {
	return "vehicles_status"
}

// Row converts the report into its storage row
func (s *StatusReport) Row() StatusRow {
	return StatusRow{
		VehicleID:  s.VehicleID,
		ReportTime: s.ReportTime,
		Status:     s.Status,
	}
}

// StatusRowsFrom maps each report to exactly one row, preserving order
func StatusRowsFrom(reports []StatusReport) []StatusRow {
	rows := make([]StatusRow, 0, len(reports))
	for i := range reports {
		rows = append(rows, reports[i].Row())
	}
	return rows
}

// ToJSON serializes the row to JSON
func (r *StatusRow) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}
