// Package transport implements the daemon's inbound/outbound wire edges:
// an HTTP ingestion endpoint and HTTP/MQTT phase-publish backends.
package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/allenshie/integration-core/internal/httputil"
	"github.com/allenshie/integration-core/internal/model"
)

var (
	opsLogger  *log.Logger
	diagLogger *log.Logger
)

// SetLogWriters configures the package's ops/diag logging streams.
func SetLogWriters(ops, diag io.Writer) {
	opsLogger = newLogger("[transport] ", ops)
	diagLogger = newLogger("[transport] ", diag)
}

func newLogger(prefix string, w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}

func opsf(format string, args ...interface{}) {
	if opsLogger != nil {
		opsLogger.Printf(format, args...)
	}
}

func diagf(format string, args ...interface{}) {
	if diagLogger != nil {
		diagLogger.Printf(format, args...)
	}
}

// wireDetection mirrors the inbound event's detection shape, where local_id
// may arrive as a JSON number or a numeric string (spec §6).
type wireDetection struct {
	ClassName string          `json:"class_name"`
	LocalID   json.Number     `json:"local_id"`
	BBox      [4]int          `json:"bbox"`
	Score     float64         `json:"score"`
	Feature   []float64       `json:"feature,omitempty"`
}

type wireEvent struct {
	CameraID   string                 `json:"camera_id"`
	Timestamp  string                 `json:"timestamp"`
	Detections []wireDetection        `json:"detections,omitempty"`
	Models     map[string]interface{} `json:"models,omitempty"`
}

func (w wireEvent) toModel() (model.Event, error) {
	ts, err := parseTimestamp(w.Timestamp)
	if err != nil {
		return model.Event{}, fmt.Errorf("timestamp: %w", err)
	}
	ev := model.Event{CameraID: w.CameraID, Timestamp: ts, Models: w.Models}
	for _, d := range w.Detections {
		localID, err := d.LocalID.Int64()
		if err != nil {
			return model.Event{}, fmt.Errorf("detection local_id: %w", err)
		}
		ev.Detections = append(ev.Detections, model.Detection{
			ClassName: d.ClassName,
			LocalID:   int(localID),
			BBox:      d.BBox,
			Score:     d.Score,
			Feature:   d.Feature,
		})
	}
	return ev, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// Sink accepts decoded events off the ingestion endpoint, handing them to
// whatever per-cycle buffer the workflow runner drains from.
type Sink interface {
	Accept(events []model.Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(events []model.Event)

func (f SinkFunc) Accept(events []model.Event) { f(events) }

// IngestionHandler serves POST requests of one or more wire events and
// forwards them to Sink. A nil Sink reports 503 (not yet initialized).
type IngestionHandler struct {
	mu   sync.RWMutex
	sink Sink
}

// NewIngestionHandler builds a handler with no sink configured yet.
func NewIngestionHandler() *IngestionHandler {
	return &IngestionHandler{}
}

// SetSink installs (or replaces) the sink events are forwarded to.
func (h *IngestionHandler) SetSink(sink Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sink = sink
}

func (h *IngestionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	h.mu.RLock()
	sink := h.sink
	h.mu.RUnlock()
	if sink == nil {
		httputil.ServiceUnavailable(w, "ingestion not yet initialized")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		httputil.BadRequest(w, "failed to read request body")
		return
	}
	defer r.Body.Close()

	var single wireEvent
	var events []model.Event
	if err := json.Unmarshal(body, &single); err == nil && single.CameraID != "" {
		ev, err := single.toModel()
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		events = append(events, ev)
	} else {
		var batch []wireEvent
		if err := json.Unmarshal(body, &batch); err != nil {
			httputil.BadRequest(w, "invalid event payload: "+err.Error())
			return
		}
		for _, we := range batch {
			ev, err := we.toModel()
			if err != nil {
				httputil.BadRequest(w, err.Error())
				return
			}
			events = append(events, ev)
		}
	}

	sink.Accept(events)
	diagf("accepted %d event(s)", len(events))
	httputil.Accepted(w, map[string]int{"accepted": len(events)})
}

// PhasePublishHTTP implements phasepub.Publisher by POSTing
// {phase, timestamp} to a configured base URL.
type PhasePublishHTTP struct {
	BaseURL string
	Client  *http.Client
	Timeout time.Duration
}

// NewPhasePublishHTTP builds a publisher against baseURL with a bounded timeout.
func NewPhasePublishHTTP(baseURL string, timeout time.Duration) *PhasePublishHTTP {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &PhasePublishHTTP{BaseURL: baseURL, Timeout: timeout, Client: &http.Client{Timeout: timeout}}
}

type phasePublishBody struct {
	Phase     string  `json:"phase"`
	Timestamp float64 `json:"timestamp"`
}

// Publish implements phasepub.Publisher.
func (p *PhasePublishHTTP) Publish(phaseName string, timestamp time.Time) bool {
	body, err := json.Marshal(phasePublishBody{Phase: phaseName, Timestamp: float64(timestamp.Unix())})
	if err != nil {
		opsf("phase publish: marshal failed: %v", err)
		return false
	}

	req, err := http.NewRequest(http.MethodPost, p.BaseURL, bytes.NewReader(body))
	if err != nil {
		opsf("phase publish: build request failed: %v", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		opsf("phase publish: request failed: %v", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		opsf("phase publish: unexpected status %d", resp.StatusCode)
		return false
	}
	return true
}
