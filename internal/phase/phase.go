// Package phase implements the two phase-resolution strategies the control
// plane shares a single capability for: a time-window resolver and a
// debounced layer (hysteresis + staleness) over any inner resolver.
package phase

import (
	"io"
	"log"
	"time"

	"github.com/allenshie/integration-core/internal/model"
)

var opsLogger *log.Logger

// SetLogWriters configures the package's ops logging stream.
func SetLogWriters(ops io.Writer) {
	opsLogger = newLogger("[phase] ", ops)
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

// Resolver resolves the current phase given a resolution context.
type Resolver interface {
	Resolve(ctx Context) model.Phase
}

// Context carries everything a resolver may need: the current clock time
// (injectable for tests) and the timestamp of the most recently seen edge
// event, if any.
type Context struct {
	Now           time.Time
	LastEventTime time.Time
	HasLastEvent  bool
}

// Window is a half-open local-time-of-day window [Start, End).
type Window struct {
	Start, End time.Duration // offsets since local midnight
}

// contains reports whether the time-of-day offset t falls in [w.Start, w.End).
func (w Window) contains(t time.Duration) bool {
	return t >= w.Start && t < w.End
}

// TimeWindowResolver returns "working" if the current local time falls in
// any configured window, else "non_working".
type TimeWindowResolver struct {
	Windows []Window
}

func NewTimeWindowResolver(windows []Window) *TimeWindowResolver {
	return &TimeWindowResolver{Windows: windows}
}

func (r *TimeWindowResolver) Resolve(ctx Context) model.Phase {
	local := ctx.Now
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
	offset := local.Sub(midnight)
	for _, w := range r.Windows {
		if w.contains(offset) {
			return model.Phase{Name: "working", IsWorkingHours: true}
		}
	}
	return model.Phase{Name: "non_working", IsWorkingHours: false}
}

// StalenessPolicy selects what the debounced resolver reports when no fresh
// event has arrived within StaleAfter.
type StalenessPolicy string

const (
	StalenessFreeze  StalenessPolicy = "freeze"
	StalenessUnknown StalenessPolicy = "unknown"
)

// DebouncedConfig parameterizes the debounced resolver.
type DebouncedConfig struct {
	StableAfter  time.Duration // default 180s
	StaleAfter   time.Duration // 0 disables staleness handling
	StalePolicy  StalenessPolicy
	UnknownPhase model.Phase
}

// DefaultDebouncedConfig returns the spec's default hysteresis tuning.
func DefaultDebouncedConfig() DebouncedConfig {
	return DebouncedConfig{StableAfter: 180 * time.Second, StalePolicy: StalenessFreeze}
}

// Debounced layers hysteresis and staleness handling over an inner
// resolver. A candidate phase must match itself across every Resolve call
// for at least StableAfter before it replaces the current stable phase.
type Debounced struct {
	inner Resolver
	cfg   DebouncedConfig

	hasStable bool
	stable    model.Phase

	hasPending   bool
	pending      model.Phase
	pendingSince time.Time
}

// NewDebounced wraps inner with hysteresis/staleness policy cfg.
func NewDebounced(inner Resolver, cfg DebouncedConfig) *Debounced {
	if cfg.StableAfter <= 0 {
		cfg.StableAfter = 180 * time.Second
	}
	return &Debounced{inner: inner, cfg: cfg}
}

// Resolve implements §4.10's hysteresis and staleness state machine.
func (d *Debounced) Resolve(ctx Context) model.Phase {
	if d.cfg.StaleAfter > 0 && ctx.HasLastEvent {
		age := ctx.Now.Sub(ctx.LastEventTime)
		if age > d.cfg.StaleAfter {
			switch d.cfg.StalePolicy {
			case StalenessUnknown:
				return d.cfg.UnknownPhase
			default: // freeze
				if d.hasStable {
					return d.stable
				}
				return d.cfg.UnknownPhase
			}
		}
	}

	candidate := d.inner.Resolve(ctx)

	if !d.hasStable {
		d.hasStable = true
		d.stable = candidate
		d.hasPending = false
		return d.stable
	}

	if candidate.Name == d.stable.Name {
		// Candidate reverted to the current stable phase before any
		// pending transition matured; clear pending.
		d.hasPending = false
		return d.stable
	}

	stabilityClock := ctx.Now
	if ctx.HasLastEvent {
		stabilityClock = ctx.LastEventTime
	}

	if !d.hasPending || d.pending.Name != candidate.Name {
		d.hasPending = true
		d.pending = candidate
		d.pendingSince = stabilityClock
		return d.stable
	}

	if stabilityClock.Sub(d.pendingSince) >= d.cfg.StableAfter {
		d.stable = d.pending
		d.hasPending = false
		opsf("phase stabilized to %q", d.stable.Name)
		return d.stable
	}

	return d.stable
}

// Stable returns the current stable phase without resolving a new one.
func (d *Debounced) Stable() (model.Phase, bool) {
	return d.stable, d.hasStable
}
