package transport

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/allenshie/integration-core/internal/model"
	"github.com/stretchr/testify/require"
)

func TestParseTimestampVariants(t *testing.T) {
	ts, err := parseTimestamp("2026-01-01T10:00:00Z")
	require.NoError(t, err)
	require.Equal(t, 2026, ts.Year())

	ts2, err := parseTimestamp("2026-01-01T10:00:00")
	require.NoError(t, err)
	require.Equal(t, time.UTC, ts2.Location())

	_, err = parseTimestamp("")
	require.Error(t, err)

	_, err = parseTimestamp("not-a-timestamp")
	require.Error(t, err)
}

func TestIngestionHandlerServiceUnavailableWithoutSink(t *testing.T) {
	h := NewIngestionHandler()
	req := httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestIngestionHandlerRejectsNonPost(t *testing.T) {
	h := NewIngestionHandler()
	req := httptest.NewRequest(http.MethodGet, "/ingest", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestIngestionHandlerAcceptsSingleEvent(t *testing.T) {
	h := NewIngestionHandler()
	var got []model.Event
	h.SetSink(SinkFunc(func(events []model.Event) { got = events }))

	payload := `{"camera_id":"cam_a","timestamp":"2026-01-01T00:00:00Z","detections":[
		{"class_name":"person","local_id":1,"bbox":[0,0,10,10],"score":0.9}
	]}`
	req := httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewReader([]byte(payload)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, got, 1)
	require.Equal(t, "cam_a", got[0].CameraID)
	require.Len(t, got[0].Detections, 1)
	require.Equal(t, 1, got[0].Detections[0].LocalID)
}

func TestIngestionHandlerAcceptsBatch(t *testing.T) {
	h := NewIngestionHandler()
	var got []model.Event
	h.SetSink(SinkFunc(func(events []model.Event) { got = events }))

	payload := `[
		{"camera_id":"cam_a","timestamp":"2026-01-01T00:00:00Z"},
		{"camera_id":"cam_b","timestamp":"2026-01-01T00:00:01Z"}
	]`
	req := httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewReader([]byte(payload)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, got, 2)
}

func TestIngestionHandlerBadRequestOnMalformedBody(t *testing.T) {
	h := NewIngestionHandler()
	h.SetSink(SinkFunc(func(events []model.Event) {}))

	req := httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewReader([]byte(`not json`)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPhasePublishHTTPSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewPhasePublishHTTP(srv.URL, time.Second)
	ok := p.Publish("working", time.Now())
	require.True(t, ok)
}

func TestPhasePublishHTTPFailsOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewPhasePublishHTTP(srv.URL, time.Second)
	ok := p.Publish("working", time.Now())
	require.False(t, ok)
}
