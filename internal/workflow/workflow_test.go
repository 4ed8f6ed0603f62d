package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/allenshie/integration-core/internal/model"
	"github.com/allenshie/integration-core/internal/phase"
	"github.com/allenshie/integration-core/internal/pipeline"
	"github.com/allenshie/integration-core/internal/registry"
	"github.com/stretchr/testify/require"
)

type fixedResolver struct{ phase model.Phase }

func (f fixedResolver) Resolve(ctx phase.Context) model.Phase { return f.phase }

func newTestRegistry(t *testing.T, p *pipeline.Pipeline) *registry.Registry {
	t.Helper()
	doc := registry.ScheduleDocument{
		Pipelines: map[string]registry.PipelineSpec{"main": {Class: "standard"}},
		Phases:    map[string]registry.PhaseSpec{"working": {Pipeline: "main"}},
	}
	factory := func(name string, spec registry.PipelineSpec) (*pipeline.Pipeline, error) {
		return p, nil
	}
	r, err := registry.Load(doc, factory, nil)
	require.NoError(t, err)
	return r
}

func TestRunStartupStopsOnFirstError(t *testing.T) {
	var ran []string
	r := New(DefaultConfig(), fixedResolver{}, nil, nil,
		StartupTask{Name: "a", Run: func(ctx context.Context) error {
			ran = append(ran, "a")
			return nil
		}},
		StartupTask{Name: "b", Run: func(ctx context.Context) error {
			ran = append(ran, "b")
			return errors.New("boom")
		}},
		StartupTask{Name: "c", Run: func(ctx context.Context) error {
			ran = append(ran, "c")
			return nil
		}},
	)

	err := r.RunStartup(context.Background())
	require.Error(t, err)
	require.Equal(t, []string{"a", "b"}, ran)
}

func TestRunOneCycleRunsBoundPipeline(t *testing.T) {
	var ranCount int
	p := pipeline.New("main", pipeline.Node{
		Name: "noop", Enabled: true,
		Task: pipeline.TaskFunc(func(ctx *pipeline.Context) pipeline.Result {
			ranCount++
			return pipeline.Ok()
		}),
	})
	reg := newTestRegistry(t, p)

	cfg := DefaultConfig()
	cfg.Clock = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	r := New(cfg, fixedResolver{phase: model.Phase{Name: "working"}}, reg, func(now time.Time) *pipeline.Context {
		return &pipeline.Context{Now: now}
	})

	interval := r.runOneCycle()
	require.Equal(t, 1, ranCount)
	require.Equal(t, cfg.LoopInterval, interval)
}

func TestRunOneCycleBacksOffOnFatal(t *testing.T) {
	p := pipeline.New("main", pipeline.Node{
		Name: "fails", Enabled: true,
		Task: pipeline.TaskFunc(func(ctx *pipeline.Context) pipeline.Result {
			return pipeline.Fail(errors.New("boom"))
		}),
	})
	reg := newTestRegistry(t, p)

	cfg := DefaultConfig()
	cfg.RetryBackoff = time.Second
	cfg.MaxRetryBackoff = 8 * time.Second
	cfg.Clock = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	r := New(cfg, fixedResolver{phase: model.Phase{Name: "working"}}, reg, func(now time.Time) *pipeline.Context {
		return &pipeline.Context{Now: now}
	})

	first := r.runOneCycle()
	require.Equal(t, time.Second, first)
	second := r.runOneCycle()
	require.Equal(t, 2*time.Second, second)
	third := r.runOneCycle()
	require.Equal(t, 4*time.Second, third)
}

func TestRunOneCycleSkipsUnboundPhase(t *testing.T) {
	p := pipeline.New("main")
	reg := newTestRegistry(t, p)
	cfg := DefaultConfig()
	cfg.Clock = func() time.Time { return time.Unix(0, 0) }

	r := New(cfg, fixedResolver{phase: model.Phase{Name: "unmapped"}}, reg, func(now time.Time) *pipeline.Context {
		return &pipeline.Context{Now: now}
	})

	interval := r.runOneCycle()
	require.Equal(t, cfg.LoopInterval, interval)
}
