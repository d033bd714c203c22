package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// FileKind is the payload kind a dropped file is expected to contain
type FileKind int

const (
	Ignored FileKind = iota
	DetectionFile
	StatusFile
)

func (k FileKind) String() string {
	switch k {
	case DetectionFile:
		return "objects_detection"
	case StatusFile:
		return "vehicles_status"
	default:
		return "ignored"
	}
}

// MarshalText renders the kind by name so notices stay readable
func (k FileKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind name produced by MarshalText
func (k *FileKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "objects_detection":
		*k = DetectionFile
	case "vehicles_status":
		*k = StatusFile
	case "ignored":
		*k = Ignored
	default:
		return fmt.Errorf("unknown file kind %q", string(text))
	}
	return nil
}

// IngestSummary describes the outcome of ingesting one file. An ignored
// file yields a zero summary apart from Path.
type IngestSummary struct {
	IngestID   string        `json:"ingest_id,omitempty"`
	Path       string        `json:"path"`
	Kind       FileKind      `json:"kind"`
	Rows       int           `json:"rows"`
	IngestedAt time.Time     `json:"ingested_at"`
	Duration   time.Duration `json:"duration_ns,omitempty"`
}

// Empty reports whether nothing was ingested for the file
func (s *IngestSummary) Empty() bool {
	return s.Kind == Ignored && s.Rows == 0
}

// ToJSON serializes the summary to JSON
func (s *IngestSummary) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}

// SummaryFromJSON deserializes JSON to IngestSummary
func SummaryFromJSON(data []byte) (*IngestSummary, error) {
	var s IngestSummary
	err := json.Unmarshal(data, &s)
	return &s, err
}
