// Package phasepub publishes phase changes and periodic heartbeats across a
// registry of backend-keyed publishers. A publisher backend that isn't
// configured is not a boot error; it only becomes an error if the caller
// explicitly requests publishing through it.
package phasepub

import (
	"io"
	"log"
	"time"
)

var (
	opsLogger  *log.Logger
	diagLogger *log.Logger
)

// SetLogWriters configures the package's ops/diag logging streams.
func SetLogWriters(ops, diag io.Writer) {
	opsLogger = newLogger("[phasepub] ", ops)
	diagLogger = newLogger("[phasepub] ", diag)
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

// Publisher delivers one phase-name/timestamp pair to a transport. A false
// return (with no error) signals a delivery failure the caller should not
// treat as fatal.
type Publisher interface {
	Publish(phaseName string, timestamp time.Time) bool
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(phaseName string, timestamp time.Time) bool

func (f PublisherFunc) Publish(phaseName string, timestamp time.Time) bool { return f(phaseName, timestamp) }

// Registry holds publishers keyed by backend name (e.g. "http", "mqtt").
type Registry struct {
	backends map[string]Publisher
}

// NewRegistry builds an empty publisher registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Publisher)}
}

// Register binds name to a publisher backend.
func (r *Registry) Register(name string, p Publisher) {
	r.backends[name] = p
}

// Get returns the named backend, if registered. A missing backend is not an
// error at registration time (spec §4.13); callers that explicitly request
// one and find it absent should treat that as their own error.
func (r *Registry) Get(name string) (Publisher, bool) {
	p, ok := r.backends[name]
	return p, ok
}

// Names returns every registered backend name.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.backends))
	for name := range r.backends {
		out = append(out, name)
	}
	return out
}

// Config parameterizes change-triggered and heartbeat publish cadence.
type Config struct {
	HeartbeatSeconds float64 // 0 disables heartbeat publishing
}

// State tracks the orchestrator's publish history so repeated Maybe calls
// can decide whether a new publish is due.
type State struct {
	hasLastPhase    bool
	lastPhase       string
	hasLastPublish  bool
	lastPublishTime time.Time
}

// Orchestrator decides, once per cycle, whether to publish the resolved
// phase to one or more backends, per the change-or-heartbeat rule (spec
// §4.13, invariant P10).
type Orchestrator struct {
	registry *Registry
	cfg      Config
	backends []string
	state    State
}

// New builds an Orchestrator that publishes to the named backends (which
// must already be registered; unregistered names are skipped with a log,
// not an error, so a backend configured out at startup doesn't break the
// cycle loop).
func New(reg *Registry, cfg Config, backends ...string) *Orchestrator {
	return &Orchestrator{registry: reg, cfg: cfg, backends: backends}
}

// Maybe publishes phaseName at now iff it differs from the last published
// phase, or the heartbeat interval has elapsed. On any backend's publish
// success, last_phase and last_publish_time both advance; on failure state
// does not advance and the caller is not interrupted.
func (o *Orchestrator) Maybe(phaseName string, now time.Time) bool {
	changed := !o.state.hasLastPhase || o.state.lastPhase != phaseName
	heartbeatDue := o.cfg.HeartbeatSeconds > 0 && o.state.hasLastPublish &&
		now.Sub(o.state.lastPublishTime) >= time.Duration(o.cfg.HeartbeatSeconds*float64(time.Second))
	due := changed || heartbeatDue

	if !due {
		diagf("phase %q: no publish due", phaseName)
		return false
	}

	anySucceeded := false
	for _, name := range o.backends {
		pub, ok := o.registry.Get(name)
		if !ok {
			diagf("phase publish: backend %q not configured, skipping", name)
			continue
		}
		if pub.Publish(phaseName, now) {
			anySucceeded = true
		} else {
			opsf("phase publish to %q failed for phase %q", name, phaseName)
		}
	}

	if anySucceeded {
		o.state.hasLastPhase = true
		o.state.lastPhase = phaseName
		o.state.hasLastPublish = true
		o.state.lastPublishTime = now
	}
	return anySucceeded
}
