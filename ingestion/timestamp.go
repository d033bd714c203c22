package ingestion

import (
	"fmt"
	"time"
)

// timestampLayouts are the ISO-8601 shapes accepted in payloads. Fractional
// seconds are matched implicitly after the seconds field. Layouts without a
// zone parse as UTC wall time.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 date or date-time
func ParseTimestamp(value string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("malformed timestamp %q (want ISO-8601)", value)
}
