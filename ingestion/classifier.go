package ingestion

import (
	"strings"

	"github.com/boyangli/telemetry-ingest/models"
)

// Naming convention shared with the producer of the dropped files
const (
	detectionToken = "objects_detection"
	statusToken    = "vehicles_status"
)

// Classify maps a path to the payload kind its name announces. The whole
// path is matched, not only the base name.
func Classify(path string) models.FileKind {
	switch {
	case strings.Contains(path, detectionToken):
		return models.DetectionFile
	case strings.Contains(path, statusToken):
		return models.StatusFile
	default:
		return models.Ignored
	}
}

// ClassifyEvent is Classify for a filesystem event; directories are always ignored
func ClassifyEvent(ev FileEvent) models.FileKind {
	if ev.IsDir {
		return models.Ignored
	}
	return Classify(ev.Path)
}
