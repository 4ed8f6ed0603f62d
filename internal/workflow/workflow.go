// Package workflow runs the daemon's main cycle loop: a one-time startup
// task list, then a repeating phase-resolve -> pipeline-run cycle on a
// configurable interval, with exponential retry backoff on fatal pipeline
// results and graceful shutdown on SIGINT/SIGTERM.
package workflow

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/allenshie/integration-core/internal/phase"
	"github.com/allenshie/integration-core/internal/pipeline"
	"github.com/allenshie/integration-core/internal/registry"
)

var (
	opsLogger  *log.Logger
	diagLogger *log.Logger
)

// SetLogWriters configures the package's ops/diag logging streams.
func SetLogWriters(ops, diag io.Writer) {
	opsLogger = newLogger("[workflow] ", ops)
	diagLogger = newLogger("[workflow] ", diag)
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

// StartupTask runs once before the loop starts. A non-nil error aborts
// startup entirely.
type StartupTask struct {
	Name string
	Run  func(ctx context.Context) error
}

// Clock is injected so tests can control time without sleeping.
type Clock func() time.Time

// Config parameterizes the runner's cadence and retry policy.
type Config struct {
	LoopInterval    time.Duration // default cadence between cycles
	RetryBackoff    time.Duration // base backoff after a Fatal pipeline result
	MaxRetryBackoff time.Duration // backoff ceiling
	Clock           Clock
}

// DefaultConfig returns the spec's default cadence/backoff tuning.
func DefaultConfig() Config {
	return Config{
		LoopInterval:    5 * time.Second,
		RetryBackoff:    2 * time.Second,
		MaxRetryBackoff: 60 * time.Second,
	}
}

// Runner drives the startup tasks, then the repeating cycle: resolve the
// current phase, look up its pipeline in the registry, and run it (subject
// to the registry's minimum re-execution interval for that phase).
type Runner struct {
	cfg      Config
	resolver phase.Resolver
	registry *registry.Registry
	ctxFor   func(now time.Time) *pipeline.Context

	startup []StartupTask

	consecutiveFailures int
}

// New builds a Runner. ctxFor constructs a fresh *pipeline.Context for each
// cycle (the caller owns populating RawEvents etc. before Run invokes it).
func New(cfg Config, resolver phase.Resolver, reg *registry.Registry, ctxFor func(now time.Time) *pipeline.Context, startup ...StartupTask) *Runner {
	if cfg.LoopInterval <= 0 {
		cfg.LoopInterval = 5 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 2 * time.Second
	}
	if cfg.MaxRetryBackoff <= 0 {
		cfg.MaxRetryBackoff = 60 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Runner{cfg: cfg, resolver: resolver, registry: reg, ctxFor: ctxFor, startup: startup}
}

// RunStartup executes every startup task in order, aborting on first error.
func (r *Runner) RunStartup(ctx context.Context) error {
	for _, t := range r.startup {
		opsf("startup: running %q", t.Name)
		if err := t.Run(ctx); err != nil {
			opsf("startup: %q failed: %v", t.Name, err)
			return err
		}
	}
	return nil
}

// Run executes startup, then loops cycles until ctx is cancelled. It
// returns only when ctx is done (graceful shutdown) or a startup task fails.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.RunStartup(ctx); err != nil {
		return err
	}

	for {
		interval := r.runOneCycle()
		select {
		case <-ctx.Done():
			opsf("shutdown requested, exiting cycle loop")
			return nil
		case <-time.After(interval):
		}
	}
}

// runOneCycle resolves the phase, runs its pipeline if due, and returns how
// long the runner should wait before the next cycle.
func (r *Runner) runOneCycle() time.Duration {
	now := r.cfg.Clock()
	ph := r.resolver.Resolve(phase.Context{Now: now, HasLastEvent: false})

	p, ok := r.registry.PipelineForPhase(ph.Name)
	if !ok {
		diagf("phase %q has no bound pipeline, skipping cycle", ph.Name)
		return r.cfg.LoopInterval
	}

	if !r.registry.ShouldRun(ph.Name, now) {
		diagf("phase %q pipeline %q not due yet", ph.Name, p.Name)
		return r.cfg.LoopInterval
	}

	pctx := r.ctxFor(now)
	res := p.Run(pctx)
	r.registry.MarkRun(ph.Name, now)

	switch res.Kind {
	case pipeline.Fatal:
		r.consecutiveFailures++
		backoff := r.backoffFor(r.consecutiveFailures)
		opsf("pipeline %q fatal (%v), backing off %s", p.Name, res.Err, backoff)
		return backoff
	default:
		r.consecutiveFailures = 0
	}

	if res.Sleep > 0 {
		return res.Sleep
	}
	return r.cfg.LoopInterval
}

// backoffFor computes the exponential retry delay for the nth consecutive
// failure, capped at MaxRetryBackoff.
func (r *Runner) backoffFor(n int) time.Duration {
	d := r.cfg.RetryBackoff
	for i := 1; i < n; i++ {
		d *= 2
		if d >= r.cfg.MaxRetryBackoff {
			return r.cfg.MaxRetryBackoff
		}
	}
	return d
}
