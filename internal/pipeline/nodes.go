package pipeline

import (
	"time"

	"github.com/allenshie/integration-core/internal/coordinator"
	"github.com/allenshie/integration-core/internal/ingestion"
	"github.com/allenshie/integration-core/internal/model"
)

// IngestionNode drains raw events (supplied via ctx.RawEvents by the
// transport layer before the cycle starts) through the ingestion engine and
// writes the deduped result to ctx.EdgeEvents.
type IngestionNode struct {
	Engine *ingestion.Engine
}

func (n IngestionNode) Run(ctx *Context) Result {
	if n.Engine == nil {
		return Fail(errNilDependency("ingestion engine"))
	}
	res := n.Engine.Process(ctx.RawEvents, ctx.Now)
	ctx.EdgeEvents = res.Events
	ctx.IngestionRaw = res.Raw
	ctx.IngestionDropped = res.Dropped
	return Ok()
}

// TrackingNode runs each camera's deduped event through the MCMOT
// coordinator, then finalizes pending gallery updates and snapshots the
// global set.
type TrackingNode struct {
	Coordinator *coordinator.Coordinator
	Enabled     bool
}

func (n TrackingNode) Run(ctx *Context) Result {
	if !n.Enabled {
		return Drop("mcmot disabled")
	}
	if n.Coordinator == nil {
		return Fail(errNilDependency("mcmot coordinator"))
	}

	var tracked []*model.ObjectRecord
	for _, ev := range ctx.EdgeEvents {
		objs := n.Coordinator.ProcessDetectedObjects(ev.Detections, ev.CameraID, ev.Timestamp)
		tracked = append(tracked, objs...)
	}
	n.Coordinator.FinalizeGlobalUpdates(ctx.Now)

	ctx.MCMOTTracked = tracked
	ctx.MCMOTGlobalObjects = n.Coordinator.GetAllGlobalObjects()
	return Ok()
}

// FormatStrategy turns the tracked objects and global snapshot into a
// downstream-facing payload. Concrete formatting is deployment-specific;
// the default strategy below is a thin passthrough.
type FormatStrategy interface {
	Format(tracked, globals []*model.ObjectRecord, now time.Time) interface{}
}

// FormatStrategyFunc adapts a function to FormatStrategy.
type FormatStrategyFunc func(tracked, globals []*model.ObjectRecord, now time.Time) interface{}

func (f FormatStrategyFunc) Format(tracked, globals []*model.ObjectRecord, now time.Time) interface{} {
	return f(tracked, globals, now)
}

// FormatNode writes ctx.RulesPayload from the tracking node's output.
type FormatNode struct {
	Strategy FormatStrategy
}

func (n FormatNode) Run(ctx *Context) Result {
	if n.Strategy == nil {
		return Fail(errNilDependency("format strategy"))
	}
	ctx.RulesPayload = n.Strategy.Format(ctx.MCMOTTracked, ctx.MCMOTGlobalObjects, ctx.Now)
	return Ok()
}

// RulesEngine evaluates ctx.RulesPayload into zero or more RuleEvents. Rule
// engines are external collaborators (spec §1); this package specifies only
// the payload contract they consume and the event contract they produce.
type RulesEngine interface {
	Evaluate(payload interface{}, now time.Time) []RuleEvent
}

// RulesEngineFunc adapts a function to RulesEngine.
type RulesEngineFunc func(payload interface{}, now time.Time) []RuleEvent

func (f RulesEngineFunc) Evaluate(payload interface{}, now time.Time) []RuleEvent {
	return f(payload, now)
}

// RulesNode writes ctx.RuleEvents from ctx.RulesPayload.
type RulesNode struct {
	Engine RulesEngine
}

func (n RulesNode) Run(ctx *Context) Result {
	if n.Engine == nil {
		return Fail(errNilDependency("rules engine"))
	}
	ctx.RuleEvents = n.Engine.Evaluate(ctx.RulesPayload, ctx.Now)
	return Ok()
}

// Dispatcher delivers rule events to downstream targets. Dispatch targets
// are external collaborators; only this send contract is specified.
type Dispatcher interface {
	Dispatch(events []RuleEvent) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(events []RuleEvent) error

func (f DispatcherFunc) Dispatch(events []RuleEvent) error { return f(events) }

// DispatchNode reads ctx.RuleEvents and hands them to the dispatcher.
// Dispatch failures are transient per-cycle (spec §4.15 treats them as a
// per-event failure, not pipeline-fatal), so they are logged, not raised.
type DispatchNode struct {
	Dispatcher Dispatcher
}

func (n DispatchNode) Run(ctx *Context) Result {
	if n.Dispatcher == nil {
		return Drop("no dispatcher configured")
	}
	if len(ctx.RuleEvents) == 0 {
		return Drop("no rule events to dispatch")
	}
	if err := n.Dispatcher.Dispatch(ctx.RuleEvents); err != nil {
		opsf("dispatch failed: %v", err)
		return Drop("dispatch failed: " + err.Error())
	}
	return Ok()
}

type nilDependencyError string

func (e nilDependencyError) Error() string { return "pipeline: nil dependency: " + string(e) }

func errNilDependency(what string) error { return nilDependencyError(what) }
