package ingestion

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boyangli/telemetry-ingest/models"
)

const detectionFixture = `{
    "objects_detection_events": [
        {
            "vehicle_id": "ebab5f787798416fb2b8afc1340d7a4e",
            "detection_time": "2024-01-01T00:00:00.123456",
            "detections": [
                {"object_type": "pedestrians", "object_value": 3},
                {"object_type": "cars", "object_value": 2},
                {"object_type": "signs", "object_value": 3}
            ]
        },
        {
            "vehicle_id": "ebab5f787798416fb2b8afc1340d7a4e",
            "detection_time": "2024-01-01T00:05:00",
            "detections": [
                {"object_type": "cars", "object_value": 4}
            ]
        }
    ]
}`

const statusFixture = `{
    "vehicle_status": [
        {"vehicle_id": "ebab5f787798416fb2b8afc1340d7a4e", "report_time": "2024-01-01T00:00:00", "status": "driving"},
        {"vehicle_id": "ebae3f787798416fb2b8afc1340d7a6d", "report_time": "2024-01-01T01:00:00", "status": "accident"}
    ]
}`

func TestParseDetectionPayload(t *testing.T) {
	events, err := ParseDetectionPayload("objects_detection_1.json", []byte(detectionFixture))
	require.NoError(t, err)
	require.Len(t, events, 2)

	first := events[0]
	assert.Equal(t, "ebab5f787798416fb2b8afc1340d7a4e", first.VehicleID)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 123456000, time.UTC), first.DetectionTime)
	require.Len(t, first.Detections, 3)
	assert.Equal(t, models.Detection{ObjectType: "pedestrians", ObjectValue: 3}, first.Detections[0])
	assert.Equal(t, models.Detection{ObjectType: "signs", ObjectValue: 3}, first.Detections[2])

	assert.Len(t, events[1].Detections, 1)
}

func TestParseDetectionPayload_EmptyCollections(t *testing.T) {
	events, err := ParseDetectionPayload("f", []byte(`{"objects_detection_events": []}`))
	require.NoError(t, err)
	assert.Empty(t, events)

	events, err = ParseDetectionPayload("f", []byte(`{"objects_detection_events": [
		{"vehicle_id": "veh1", "detection_time": "2024-01-01", "detections": []}]}`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Empty(t, events[0].Detections)
}

func TestParseDetectionPayload_Rejections(t *testing.T) {
	longID := strings.Repeat("v", 51)

	tests := []struct {
		name  string
		body  string
		field string
		cause string
	}{
		{
			name:  "missing top-level key",
			body:  `{"events": []}`,
			field: "objects_detection_events",
			cause: "missing",
		},
		{
			name:  "missing detections",
			body:  `{"objects_detection_events": [{"vehicle_id": "veh1", "detection_time": "2024-01-01T00:00:00"}]}`,
			field: "objects_detection_events[0].detections",
			cause: "missing",
		},
		{
			name:  "null vehicle id",
			body:  `{"objects_detection_events": [{"vehicle_id": null, "detection_time": "2024-01-01T00:00:00", "detections": []}]}`,
			field: "objects_detection_events[0].vehicle_id",
			cause: "must not be null",
		},
		{
			name:  "empty object type",
			body:  `{"objects_detection_events": [{"vehicle_id": "veh1", "detection_time": "2024-01-01T00:00:00", "detections": [{"object_type": "", "object_value": 1}]}]}`,
			field: "objects_detection_events[0].detections[0].object_type",
			cause: "empty",
		},
		{
			name:  "missing object value",
			body:  `{"objects_detection_events": [{"vehicle_id": "veh1", "detection_time": "2024-01-01T00:00:00", "detections": [{"object_type": "cars"}]}]}`,
			field: "objects_detection_events[0].detections[0].object_value",
			cause: "missing",
		},
		{
			name:  "vehicle id too long",
			body:  `{"objects_detection_events": [{"vehicle_id": "` + longID + `", "detection_time": "2024-01-01T00:00:00", "detections": []}]}`,
			field: "objects_detection_events[0].vehicle_id",
			cause: "exceeds 50 characters (got 51)",
		},
		{
			name:  "malformed timestamp",
			body:  `{"objects_detection_events": [{"vehicle_id": "veh1", "detection_time": "yesterday", "detections": []}]}`,
			field: "objects_detection_events[0].detection_time",
			cause: "malformed timestamp",
		},
		{
			name:  "fractional object value",
			body:  `{"objects_detection_events": [{"vehicle_id": "veh1", "detection_time": "2024-01-01T00:00:00", "detections": [{"object_type": "cars", "object_value": 2.5}]}]}`,
			field: "objects_detection_events[0].detections[0].object_value",
			cause: "got JSON number 2.5, want integer",
		},
		{
			name:  "string object value",
			body:  `{"objects_detection_events": [{"vehicle_id": "veh1", "detection_time": "2024-01-01T00:00:00", "detections": [{"object_type": "cars", "object_value": "2"}]}]}`,
			field: "objects_detection_events[0].detections[0].object_value",
			cause: "type mismatch: got JSON string, want integer",
		},
		{
			name:  "events not an array",
			body:  `{"objects_detection_events": {}}`,
			field: "objects_detection_events",
			cause: "want array",
		},
		{
			name:  "object value out of range",
			body:  `{"objects_detection_events": [{"vehicle_id": "veh1", "detection_time": "2024-01-01T00:00:00", "detections": [{"object_type": "cars", "object_value": 9223372036854775808}]}]}`,
			field: "objects_detection_events[0].detections[0].object_value",
			cause: "out of range",
		},
		{
			name:  "second detection not an object",
			body:  `{"objects_detection_events": [{"vehicle_id": "veh1", "detection_time": "2024-01-01T00:00:00", "detections": [{"object_type": "cars", "object_value": 1}, 3]}]}`,
			field: "objects_detection_events[0].detections[1]",
			cause: "want object",
		},
		{
			name:  "malformed JSON",
			body:  `{"objects_detection_events": [}`,
			field: "",
			cause: "malformed JSON",
		},
		{
			name:  "trailing data",
			body:  `{"objects_detection_events": []} {}`,
			field: "",
			cause: "unexpected data",
		},
		{
			name:  "upper-case top-level key",
			body:  `{"OBJECTS_DETECTION_EVENTS": []}`,
			field: "objects_detection_events",
			cause: "missing",
		},
		{
			name:  "mixed-case event keys",
			body:  `{"objects_detection_events": [{"Vehicle_ID": "veh1", "detection_time": "2024-01-01T00:00:00", "detections": []}]}`,
			field: "objects_detection_events[0].vehicle_id",
			cause: "missing",
		},
		{
			name:  "mixed-case detection keys",
			body:  `{"objects_detection_events": [{"vehicle_id": "veh1", "detection_time": "2024-01-01T00:00:00", "detections": [{"OBJECT_TYPE": "cars", "Object_Value": 2}]}]}`,
			field: "objects_detection_events[0].detections[0].object_type",
			cause: "missing",
		},
		{
			name:  "top-level array",
			body:  `[]`,
			field: "",
			cause: "want object",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := ParseDetectionPayload("data/objects_detection_1.json", []byte(tt.body))
			require.Error(t, err)
			assert.Nil(t, events, "a rejected file yields no events at all")

			var perr *ParseError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, models.DetectionFile, perr.Kind)
			assert.Equal(t, "data/objects_detection_1.json", perr.File)
			assert.Equal(t, tt.field, perr.Field)
			assert.Contains(t, perr.Cause, tt.cause)
			assert.Contains(t, err.Error(), "data/objects_detection_1.json")
		})
	}
}

func TestParseDetectionPayload_FailsWholeFile(t *testing.T) {
	// the second event is bad, so the valid first one must not be returned
	body := `{"objects_detection_events": [
		{"vehicle_id": "veh1", "detection_time": "2024-01-01T00:00:00", "detections": [{"object_type": "cars", "object_value": 1}]},
		{"vehicle_id": "veh1", "detection_time": "2024-01-01T00:00:00"}
	]}`

	events, err := ParseDetectionPayload("f", []byte(body))
	require.Error(t, err)
	assert.Nil(t, events)
}

func TestParseStatusPayload(t *testing.T) {
	reports, err := ParseStatusPayload("vehicles_status_1.json", []byte(statusFixture))
	require.NoError(t, err)
	require.Len(t, reports, 2)

	assert.Equal(t, models.StatusReport{
		VehicleID:  "ebae3f787798416fb2b8afc1340d7a6d",
		ReportTime: time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC),
		Status:     "accident",
	}, reports[1])
}

func TestParseStatusPayload_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing key", `{"objects_detection_events": []}`, "vehicle_status"},
		{"missing status", `{"vehicle_status": [{"vehicle_id": "v", "report_time": "2024-01-01T00:00:00"}]}`, "vehicle_status[0].status"},
		{"missing report time", `{"vehicle_status": [{"vehicle_id": "v", "status": "parking"}]}`, "vehicle_status[0].report_time"},
		{"status too long", `{"vehicle_status": [{"vehicle_id": "v", "report_time": "2024-01-01T00:00:00", "status": "` + strings.Repeat("s", 51) + `"}]}`, "vehicle_status[0].status"},
		{"numeric vehicle id", `{"vehicle_status": [{"vehicle_id": 7, "report_time": "2024-01-01T00:00:00", "status": "parking"}]}`, "vehicle_status[0].vehicle_id"},
		{"upper-case top-level key", `{"VEHICLE_STATUS": []}`, "vehicle_status"},
		{"mixed-case report keys", `{"vehicle_status": [{"Vehicle_Id": "v", "Report_Time": "2024-01-01T00:00:00", "Status": "parking"}]}`, "vehicle_status[0].vehicle_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reports, err := ParseStatusPayload("vehicles_status_1.json", []byte(tt.body))
			require.Error(t, err)
			assert.Nil(t, reports)

			var perr *ParseError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, models.StatusFile, perr.Kind)
			assert.Equal(t, tt.field, perr.Field)
		})
	}
}

func TestParseStatusPayload_KeysAreCaseSensitive(t *testing.T) {
	// only the exact key is read; a differently cased twin is ignored
	body := `{"vehicle_status": [{"vehicle_id": "veh2", "VEHICLE_ID": "other", "report_time": "2024-01-01T01:00:00", "status": "parking", "Status": "accident"}]}`

	reports, err := ParseStatusPayload("vehicles_status_1.json", []byte(body))
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "veh2", reports[0].VehicleID)
	assert.Equal(t, "parking", reports[0].Status)

	// the twin is read no matter which of the two comes first
	body = `{"vehicle_status": [{"VEHICLE_ID": "other", "vehicle_id": "veh2", "report_time": "2024-01-01T01:00:00", "status": "parking"}]}`
	reports, err = ParseStatusPayload("vehicles_status_1.json", []byte(body))
	require.NoError(t, err)
	assert.Equal(t, "veh2", reports[0].VehicleID)
}

func TestParsePayload_UnfinishedBody(t *testing.T) {
	for _, body := range []string{"", "  \n", `{"objects_detection_events": [{"vehicle_id": "veh1"`} {
		_, err := ParseDetectionPayload("objects_detection_1.json", []byte(body))
		require.Error(t, err, "%q", body)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF, "%q", body)

		var perr *ParseError
		require.True(t, errors.As(err, &perr))
		assert.Empty(t, perr.Field)
	}

	_, err := ParseStatusPayload("vehicles_status_1.json", []byte(`{"vehicle_status": [`))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = ParseStatusPayload("vehicles_status_1.json", []byte(`{"vehicle_status": [}`))
	assert.NotErrorIs(t, err, io.ErrUnexpectedEOF, "a syntax error is not an unfinished write")
}

func TestParseStatusPayload_MultibyteLength(t *testing.T) {
	// 50 characters but more than 50 bytes
	status := strings.Repeat("é", 50)
	body := `{"vehicle_status": [{"vehicle_id": "v", "report_time": "2024-01-01T00:00:00", "status": "` + status + `"}]}`

	reports, err := ParseStatusPayload("f", []byte(body))
	require.NoError(t, err)
	assert.Equal(t, status, reports[0].Status)
}

func TestParseTimestamp(t *testing.T) {
	utc := time.Date(2024, 1, 1, 12, 30, 15, 0, time.UTC)

	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-01-01T12:30:15", utc},
		{"2024-01-01 12:30:15", utc},
		{"2024-01-01T12:30:15Z", utc},
		{"2024-01-01T12:30:15.5", utc.Add(500 * time.Millisecond)},
		{"2024-01-01T12:30", utc.Add(-15 * time.Second)},
		{"2024-01-01", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimestamp(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %v, got %v", tt.want, got)
		})
	}

	offset, err := ParseTimestamp("2024-01-01T14:30:15+02:00")
	require.NoError(t, err)
	assert.True(t, utc.Equal(offset))
	_, zone := offset.Zone()
	assert.Equal(t, 2*3600, zone, "offset must be kept, not normalized")

	for _, bad := range []string{"", "01/02/2024", "2024-13-01T00:00:00", "1700000000"} {
		_, err := ParseTimestamp(bad)
		assert.Error(t, err, bad)
	}
}
