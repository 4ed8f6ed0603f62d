// Package ingestion normalizes a drained batch of raw events: it validates
// camera id and timestamp, drops events older than a configured max age,
// and retains at most one (the freshest) event per camera. It performs no
// I/O and has no failure mode beyond counting drops.
package ingestion

import (
	"io"
	"log"
	"time"

	"github.com/allenshie/integration-core/internal/model"
)

var opsLogger *log.Logger

// SetLogWriters configures the ops logging stream. Pass nil to disable it.
func SetLogWriters(ops io.Writer) {
	opsLogger = newLogger("[ingestion] ", ops)
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

// Result is the output of one ingestion pass over a drained event batch.
type Result struct {
	Events  []model.Event
	Raw     int
	Dropped int
}

// Engine normalizes raw events into at most one fresh event per camera.
type Engine struct {
	// MaxAge is the maximum age (now - event.Timestamp) an event may have
	// before it is dropped as stale.
	MaxAge time.Duration
}

// New creates an Engine with the given max event age.
func New(maxAge time.Duration) *Engine {
	return &Engine{MaxAge: maxAge}
}

// Process validates and deduplicates raw, returning at most one event per
// camera id: the one with the greatest timestamp among the valid events for
// that camera (P1).
func (e *Engine) Process(raw []model.Event, now time.Time) Result {
	res := Result{Raw: len(raw)}
	latest := make(map[string]model.Event)

	for _, ev := range raw {
		if ev.CameraID == "" {
			res.Dropped++
			opsf("dropping event with empty camera_id")
			continue
		}
		if ev.Timestamp.IsZero() {
			res.Dropped++
			opsf("dropping event with unparseable timestamp for camera %s", ev.CameraID)
			continue
		}
		if e.MaxAge > 0 && now.Sub(ev.Timestamp) > e.MaxAge {
			res.Dropped++
			opsf("dropping stale event for camera %s, age=%s", ev.CameraID, now.Sub(ev.Timestamp))
			continue
		}

		cur, ok := latest[ev.CameraID]
		if !ok || ev.Timestamp.After(cur.Timestamp) {
			latest[ev.CameraID] = ev
		}
	}

	res.Events = make([]model.Event, 0, len(latest))
	for _, ev := range latest {
		res.Events = append(res.Events, ev)
	}
	return res
}
