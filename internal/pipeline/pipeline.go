// Package pipeline implements the ordered node sequence run once per cycle:
// Ingestion -> Tracking -> Format -> Rules -> Dispatch by default. Nodes
// communicate strictly through named fields on an explicit typed Context
// (never a string-keyed resource bag), and each node reports a tagged
// result variant rather than raising an exception, so the runner can branch
// on failure kind without resorting to control-flow-by-panic.
package pipeline

import (
	"io"
	"log"
	"time"

	"github.com/allenshie/integration-core/internal/model"
)

var (
	opsLogger  *log.Logger
	diagLogger *log.Logger
)

// SetLogWriters configures the pipeline package's ops/diag logging streams.
func SetLogWriters(ops, diag io.Writer) {
	opsLogger = newLogger("[pipeline] ", ops)
	diagLogger = newLogger("[pipeline] ", diag)
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

// RuleEvent is the payload the rules node emits and the dispatch node
// consumes; its shape is deliberately minimal since rule engines and
// dispatch targets are external collaborators (spec §1 non-goals) — the
// pipeline specifies only this contract.
type RuleEvent struct {
	Name    string
	Payload interface{}
}

// Context is the explicit, typed resource bag threaded through one cycle's
// node sequence. Every field is cleared between cycles by Reset.
type Context struct {
	Now time.Time

	// CycleID correlates one cycle's pipeline log lines; the caller stamps
	// it fresh (uuid.New().String()) before each run.
	CycleID string

	RawEvents []model.Event // ingestion's raw input, pre-dedup

	EdgeEvents         []model.Event         // ingestion writes
	MCMOTTracked       []*model.ObjectRecord // tracking writes: this cycle's processed objects
	MCMOTGlobalObjects []*model.ObjectRecord // tracking writes: full global snapshot
	RulesPayload       interface{}           // format writes
	RuleEvents         []RuleEvent           // rules writes

	IngestionRaw     int
	IngestionDropped int
}

// Reset clears all per-cycle resources, keeping only Now (the caller sets
// it fresh before re-running the pipeline).
func (c *Context) Reset(now time.Time) {
	*c = Context{Now: now}
}

// ResultKind tags a node's outcome per the design notes' discriminated
// result variant, replacing exception-based control flow between nodes.
type ResultKind int

const (
	// Accepted: the node ran to completion.
	Accepted ResultKind = iota
	// Dropped: the node chose to skip its work for a benign, expected
	// reason (e.g. MCMOT disabled); the cycle continues.
	Dropped
	// Fatal: the node could not run at all (bad config, unresolvable
	// dependency); the cycle aborts and the runner retries after backoff.
	Fatal
)

// Result is one node's tagged outcome.
type Result struct {
	Kind   ResultKind
	Reason string
	Err    error
	// Sleep optionally overrides the runner's default loop interval for
	// the next cycle (e.g. a phase-specific cadence).
	Sleep time.Duration
}

func Ok() Result                { return Result{Kind: Accepted} }
func Drop(reason string) Result { return Result{Kind: Dropped, Reason: reason} }
func Fail(err error) Result     { return Result{Kind: Fatal, Err: err} }

// Task is one pipeline node's single operation.
type Task interface {
	Run(ctx *Context) Result
}

// TaskFunc adapts a plain function to the Task interface.
type TaskFunc func(ctx *Context) Result

func (f TaskFunc) Run(ctx *Context) Result { return f(ctx) }

// Node is one named, independently toggleable pipeline step.
type Node struct {
	Name    string
	Enabled bool
	Task    Task
}

// Pipeline is an ordered list of nodes executed once per cycle.
type Pipeline struct {
	Name  string
	Nodes []Node
}

// New builds a Pipeline from name and nodes, in order.
func New(name string, nodes ...Node) *Pipeline {
	return &Pipeline{Name: name, Nodes: nodes}
}

// Run executes every enabled node in order against ctx. A Fatal result from
// any node aborts the remaining nodes and is returned to the caller (the
// workflow runner); a Dropped result logs and continues to the next node.
// The last non-zero Sleep reported by a non-fatal node is carried on the
// returned result.
func (p *Pipeline) Run(ctx *Context) Result {
	out := Ok()
	for _, n := range p.Nodes {
		if !n.Enabled {
			continue
		}
		res := n.Task.Run(ctx)
		switch res.Kind {
		case Fatal:
			opsf("pipeline %q cycle=%s: node %q fatal: %v", p.Name, ctx.CycleID, n.Name, res.Err)
			return res
		case Dropped:
			diagf("pipeline %q cycle=%s: node %q dropped: %s", p.Name, ctx.CycleID, n.Name, res.Reason)
		default:
			diagf("pipeline %q cycle=%s: node %q ok", p.Name, ctx.CycleID, n.Name)
		}
		if res.Sleep > 0 {
			out.Sleep = res.Sleep
		}
	}
	return out
}
