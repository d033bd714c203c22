package ingestion

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/boyangli/telemetry-ingest/models"
)

// ParseError reports why a payload was rejected. Field is a JSON path into
// the payload, empty when the document as a whole is unreadable.
type ParseError struct {
	Kind  models.FileKind
	File  string
	Field string
	Cause string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("parse %s file %s: %s", e.Kind, e.File, e.Cause)
	}
	return fmt.Sprintf("parse %s file %s: %s: %s", e.Kind, e.File, e.Field, e.Cause)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseDetectionPayload decodes an objects_detection file. The file parses
// completely or not at all.
func ParseDetectionPayload(file string, data []byte) ([]models.DetectionEvent, error) {
	p := fieldParser{kind: models.DetectionFile, file: file}

	root, err := p.document(data)
	if err != nil {
		return nil, err
	}
	rawEvents, err := p.array(root, "", "objects_detection_events")
	if err != nil {
		return nil, err
	}

	events := make([]models.DetectionEvent, 0, len(rawEvents))
	for i, rawEvent := range rawEvents {
		path := fmt.Sprintf("objects_detection_events[%d]", i)

		event, err := p.object(path, rawEvent)
		if err != nil {
			return nil, err
		}
		vehicleID, err := p.text(event, path, "vehicle_id")
		if err != nil {
			return nil, err
		}
		detectionTime, err := p.timestamp(event, path, "detection_time")
		if err != nil {
			return nil, err
		}
		rawDetections, err := p.array(event, path, "detections")
		if err != nil {
			return nil, err
		}

		detections := make([]models.Detection, 0, len(rawDetections))
		for j, rawDetection := range rawDetections {
			dpath := fmt.Sprintf("%s.detections[%d]", path, j)

			detection, err := p.object(dpath, rawDetection)
			if err != nil {
				return nil, err
			}
			objectType, err := p.text(detection, dpath, "object_type")
			if err != nil {
				return nil, err
			}
			objectValue, err := p.integer(detection, dpath, "object_value")
			if err != nil {
				return nil, err
			}
			detections = append(detections, models.Detection{
				ObjectType:  objectType,
				ObjectValue: objectValue,
			})
		}

		events = append(events, models.DetectionEvent{
			VehicleID:     vehicleID,
			DetectionTime: detectionTime,
			Detections:    detections,
		})
	}

	return events, nil
}

// ParseStatusPayload decodes a vehicles_status file. The file parses
// completely or not at all.
func ParseStatusPayload(file string, data []byte) ([]models.StatusReport, error) {
	p := fieldParser{kind: models.StatusFile, file: file}

	root, err := p.document(data)
	if err != nil {
		return nil, err
	}
	rawReports, err := p.array(root, "", "vehicle_status")
	if err != nil {
		return nil, err
	}

	reports := make([]models.StatusReport, 0, len(rawReports))
	for i, rawReport := range rawReports {
		path := fmt.Sprintf("vehicle_status[%d]", i)

		report, err := p.object(path, rawReport)
		if err != nil {
			return nil, err
		}
		vehicleID, err := p.text(report, path, "vehicle_id")
		if err != nil {
			return nil, err
		}
		reportTime, err := p.timestamp(report, path, "report_time")
		if err != nil {
			return nil, err
		}
		status, err := p.text(report, path, "status")
		if err != nil {
			return nil, err
		}

		reports = append(reports, models.StatusReport{
			VehicleID:  vehicleID,
			ReportTime: reportTime,
			Status:     status,
		})
	}

	return reports, nil
}

// jsonObject is one decoded object level. Keys are looked up exactly as
// written; encoding/json struct tags would also match other casings.
type jsonObject map[string]json.RawMessage

// fieldParser carries the file identity into every ParseError it builds
type fieldParser struct {
	kind models.FileKind
	file string
}

func (p fieldParser) fail(field, cause string, err error) *ParseError {
	return &ParseError{Kind: p.kind, File: p.file, Field: field, Cause: cause, Err: err}
}

// document decodes the top-level object. An empty or cut-off body wraps
// io.ErrUnexpectedEOF so callers can tell an unfinished write from bad JSON.
func (p fieldParser) document(data []byte) (jsonObject, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	var root json.RawMessage
	if err := dec.Decode(&root); err != nil {
		switch {
		case errors.Is(err, io.EOF):
			return nil, p.fail("", "empty payload", io.ErrUnexpectedEOF)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return nil, p.fail("", "truncated JSON", err)
		}

		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return nil, p.fail("", fmt.Sprintf("malformed JSON at offset %d: %v", syntaxErr.Offset, syntaxErr), err)
		}
		return nil, p.fail("", fmt.Sprintf("malformed JSON: %v", err), err)
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, p.fail("", fmt.Sprintf("malformed JSON: unexpected data after offset %d", dec.InputOffset()), err)
	}

	return p.object("", root)
}

func (p fieldParser) object(field string, raw json.RawMessage) (jsonObject, error) {
	if kind := jsonKind(raw); kind != "object" {
		return nil, p.mismatch(field, kind, "object")
	}
	var obj jsonObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, p.fail(field, fmt.Sprintf("malformed JSON: %v", err), err)
	}
	return obj, nil
}

// lookup returns the value under key, rejecting absent keys and nulls
func (p fieldParser) lookup(obj jsonObject, path, key string) (json.RawMessage, string, error) {
	field := key
	if path != "" {
		field = path + "." + key
	}

	raw, ok := obj[key]
	if !ok {
		return nil, field, p.fail(field, "missing required key", nil)
	}
	if jsonKind(raw) == "null" {
		return nil, field, p.fail(field, "must not be null", nil)
	}
	return raw, field, nil
}

func (p fieldParser) array(obj jsonObject, path, key string) ([]json.RawMessage, error) {
	raw, field, err := p.lookup(obj, path, key)
	if err != nil {
		return nil, err
	}
	if kind := jsonKind(raw); kind != "array" {
		return nil, p.mismatch(field, kind, "array")
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, p.fail(field, fmt.Sprintf("malformed JSON: %v", err), err)
	}
	return items, nil
}

func (p fieldParser) str(obj jsonObject, path, key string) (string, string, error) {
	raw, field, err := p.lookup(obj, path, key)
	if err != nil {
		return "", field, err
	}
	if kind := jsonKind(raw); kind != "string" {
		return "", field, p.mismatch(field, kind, "string")
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", field, p.fail(field, fmt.Sprintf("malformed JSON: %v", err), err)
	}
	return value, field, nil
}

// text validates a bounded, non-empty string field
func (p fieldParser) text(obj jsonObject, path, key string) (string, error) {
	value, field, err := p.str(obj, path, key)
	if err != nil {
		return "", err
	}
	if value == "" {
		return "", p.fail(field, "must not be empty", nil)
	}
	if n := utf8.RuneCountInString(value); n > models.MaxFieldLength {
		return "", p.fail(field, fmt.Sprintf("exceeds %d characters (got %d)", models.MaxFieldLength, n), nil)
	}
	return value, nil
}

func (p fieldParser) timestamp(obj jsonObject, path, key string) (time.Time, error) {
	value, field, err := p.str(obj, path, key)
	if err != nil {
		return time.Time{}, err
	}
	ts, err := ParseTimestamp(value)
	if err != nil {
		return time.Time{}, p.fail(field, err.Error(), err)
	}
	return ts, nil
}

func (p fieldParser) integer(obj jsonObject, path, key string) (int64, error) {
	raw, field, err := p.lookup(obj, path, key)
	if err != nil {
		return 0, err
	}
	if kind := jsonKind(raw); kind != "number" {
		return 0, p.mismatch(field, kind, "integer")
	}

	literal := string(bytes.TrimSpace(raw))
	n, err := strconv.ParseInt(literal, 10, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return 0, p.fail(field, fmt.Sprintf("integer %s out of range", literal), err)
		}
		return 0, p.mismatch(field, "number "+literal, "integer")
	}
	return n, nil
}

func (p fieldParser) mismatch(field, got, want string) *ParseError {
	return p.fail(field, fmt.Sprintf("type mismatch: got JSON %s, want %s", got, want), nil)
}

// jsonKind names the JSON type of an already validated value
func jsonKind(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "value"
	}
	switch raw[0] {
	case '{':
		return "object"
	case '[':
		return "array"
	case '"':
		return "string"
	case 't', 'f':
		return "boolean"
	case 'n':
		return "null"
	default:
		return "number"
	}
}
