package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/allenshie/integration-core/internal/ingestion"
	"github.com/allenshie/integration-core/internal/model"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestPipelineRunsEnabledNodesInOrder(t *testing.T) {
	var order []string
	p := New("test",
		Node{Name: "a", Enabled: true, Task: TaskFunc(func(ctx *Context) Result {
			order = append(order, "a")
			return Ok()
		})},
		Node{Name: "b", Enabled: false, Task: TaskFunc(func(ctx *Context) Result {
			order = append(order, "b")
			return Ok()
		})},
		Node{Name: "c", Enabled: true, Task: TaskFunc(func(ctx *Context) Result {
			order = append(order, "c")
			return Ok()
		})},
	)

	ctx := &Context{Now: time.Now()}
	res := p.Run(ctx)
	require.Equal(t, Accepted, res.Kind)
	require.Equal(t, []string{"a", "c"}, order)
}

func TestPipelineAbortsOnFatal(t *testing.T) {
	var ran []string
	p := New("test",
		Node{Name: "a", Enabled: true, Task: TaskFunc(func(ctx *Context) Result {
			ran = append(ran, "a")
			return Fail(errors.New("boom"))
		})},
		Node{Name: "b", Enabled: true, Task: TaskFunc(func(ctx *Context) Result {
			ran = append(ran, "b")
			return Ok()
		})},
	)

	res := p.Run(&Context{})
	require.Equal(t, Fatal, res.Kind)
	require.Equal(t, []string{"a"}, ran)
}

func TestIngestionNodeWritesEdgeEvents(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	node := IngestionNode{Engine: ingestion.New(0)}
	expected := model.Event{CameraID: "cam_a", Timestamp: now}
	ctx := &Context{Now: now, RawEvents: []model.Event{expected}}

	res := node.Run(ctx)
	require.Equal(t, Accepted, res.Kind)
	require.Len(t, ctx.EdgeEvents, 1)
	require.Equal(t, 1, ctx.IngestionRaw)
	if diff := cmp.Diff(expected, ctx.EdgeEvents[0]); diff != "" {
		t.Errorf("edge event mismatch (-want +got):\n%s", diff)
	}
}

func TestTrackingNodeDropsWhenDisabled(t *testing.T) {
	node := TrackingNode{Enabled: false}
	res := node.Run(&Context{})
	require.Equal(t, Dropped, res.Kind)
}

func TestContextResetClearsFields(t *testing.T) {
	ctx := &Context{EdgeEvents: []model.Event{{CameraID: "a"}}, IngestionRaw: 5}
	ctx.Reset(time.Unix(1, 0))
	require.Nil(t, ctx.EdgeEvents)
	require.Equal(t, 0, ctx.IngestionRaw)
	require.Equal(t, time.Unix(1, 0), ctx.Now)
}
