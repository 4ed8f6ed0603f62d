// Package registry loads the schedule document, builds the phase->pipeline
// map, and enforces each phase's minimum re-execution interval. Pipeline
// "classes" are not resolved by dotted path at runtime (the design notes
// flag that pattern for re-architecture): the set of pipeline
// implementations is finite per deployment, so the schedule's "class"
// string is resolved through a small caller-supplied Factory enumerating
// the known variants, rather than reflection or a plugin loader.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/allenshie/integration-core/internal/pipeline"
)

var opsLogger *log.Logger

// SetLogWriters configures the package's ops logging stream.
func SetLogWriters(ops io.Writer) {
	opsLogger = newLogger("[registry] ", ops)
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

// ErrScheduleInvalid is wrapped by Load when the factory cannot build a
// pipeline (e.g. an unknown class). A phase that names a pipeline absent
// from the document is not rejected; PipelineForPhase reports it as unbound.
var ErrScheduleInvalid = errors.New("registry: invalid schedule document")

// PipelineSpec is one entry of the schedule document's "pipelines" object.
type PipelineSpec struct {
	Class      string                 `json:"class"`
	Kwargs     map[string]interface{} `json:"kwargs,omitempty"`
	EnabledEnv string                 `json:"enabled_env,omitempty"`
}

// PhaseSpec is one entry of the schedule document's "phases" object. It
// accepts either a bare pipeline-name string or an object with an optional
// interval_seconds.
type PhaseSpec struct {
	Pipeline        string
	IntervalSeconds *float64
}

func (p *PhaseSpec) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		p.Pipeline = name
		return nil
	}
	var obj struct {
		Pipeline        string   `json:"pipeline"`
		IntervalSeconds *float64 `json:"interval_seconds"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	p.Pipeline = obj.Pipeline
	p.IntervalSeconds = obj.IntervalSeconds
	return nil
}

// ScheduleDocument is the schedule file's top-level JSON shape (spec §6).
type ScheduleDocument struct {
	Pipelines map[string]PipelineSpec `json:"pipelines"`
	Phases    map[string]PhaseSpec    `json:"phases"`
}

// ParseSchedule decodes a schedule document from JSON bytes.
func ParseSchedule(data []byte) (ScheduleDocument, error) {
	var doc ScheduleDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("registry: parse schedule: %w", err)
	}
	return doc, nil
}

// Factory builds a concrete pipeline for a known class name. Implementers
// enumerate the finite set of pipeline variants a deployment supports;
// an unrecognized class name is a construction error, not a missing plugin.
type Factory func(name string, spec PipelineSpec) (*pipeline.Pipeline, error)

// PhasePolicy gates re-execution of a phase's pipeline within a cycle.
type PhasePolicy struct {
	IntervalSeconds float64 // 0 means "no minimum interval"
}

// EnvLookup resembles os.LookupEnv; injected so tests don't need real
// environment variables.
type EnvLookup func(key string) (string, bool)

// Registry holds the resolved phase->pipeline map and per-phase interval
// policy, plus last-run bookkeeping for interval gating.
type Registry struct {
	pipelines   map[string]*pipeline.Pipeline
	phasePolicy map[string]PhasePolicy
	phaseByName map[string]string // phase -> pipeline name
	lastRun     map[string]time.Time
}

// Load builds a Registry from a parsed schedule document, resolving each
// pipeline's class via factory and skipping (not erroring on) any pipeline
// whose enabled_env is set but falsy/unset in env.
func Load(doc ScheduleDocument, factory Factory, env EnvLookup) (*Registry, error) {
	if env == nil {
		env = func(string) (string, bool) { return "", false }
	}

	r := &Registry{
		pipelines:   make(map[string]*pipeline.Pipeline),
		phasePolicy: make(map[string]PhasePolicy),
		phaseByName: make(map[string]string),
		lastRun:     make(map[string]time.Time),
	}

	for name, spec := range doc.Pipelines {
		if spec.EnabledEnv != "" {
			v, ok := env(spec.EnabledEnv)
			if !ok || (v != "1" && v != "true") {
				continue
			}
		}
		p, err := factory(spec.Class, spec)
		if err != nil {
			return nil, fmt.Errorf("%w: pipeline %q: %v", ErrScheduleInvalid, name, err)
		}
		r.pipelines[name] = p
		opsf("constructed pipeline %q (class=%q)", name, spec.Class)
	}

	for phaseName, ps := range doc.Phases {
		if _, ok := r.pipelines[ps.Pipeline]; !ok {
			// The referenced pipeline may have been skipped via
			// enabled_env; that is not an error until the phase is
			// actually selected at runtime.
			r.phaseByName[phaseName] = ps.Pipeline
			continue
		}
		r.phaseByName[phaseName] = ps.Pipeline
		if ps.IntervalSeconds != nil {
			r.phasePolicy[phaseName] = PhasePolicy{IntervalSeconds: *ps.IntervalSeconds}
		}
	}

	return r, nil
}

// Names returns every constructed pipeline's name.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.pipelines))
	for name := range r.pipelines {
		out = append(out, name)
	}
	return out
}

// GetEntry returns the named pipeline, if constructed.
func (r *Registry) GetEntry(name string) (*pipeline.Pipeline, bool) {
	p, ok := r.pipelines[name]
	return p, ok
}

// PipelineForPhase resolves the pipeline bound to phase, if any.
func (r *Registry) PipelineForPhase(phase string) (*pipeline.Pipeline, bool) {
	name, ok := r.phaseByName[phase]
	if !ok {
		return nil, false
	}
	return r.GetEntry(name)
}

// ShouldRun reports whether phase's pipeline may run at now, honoring its
// minimum interval policy (spec §4.11).
func (r *Registry) ShouldRun(phase string, now time.Time) bool {
	policy, ok := r.phasePolicy[phase]
	if !ok || policy.IntervalSeconds <= 0 {
		return true
	}
	last, ok := r.lastRun[phase]
	if !ok {
		return true
	}
	return now.Sub(last) >= time.Duration(policy.IntervalSeconds*float64(time.Second))
}

// MarkRun records that phase's pipeline ran at now.
func (r *Registry) MarkRun(phase string, now time.Time) {
	r.lastRun[phase] = now
}
