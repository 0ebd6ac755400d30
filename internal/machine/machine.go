// Package machine runs one decision→execution cycle as a small
// data-driven state machine. Handlers are plain functions over a shared
// blackboard; the default definition wires the pipeline stages into the
// execution strategies and routes failures to the fallback handler.
// Nested execution re-enters RunCycle, so cycle depth is explicit in
// the blackboard rather than hidden in the call stack.
package machine

import (
	"context"
	"log/slog"

	"github.com/machellerogden/thinksuit-sub000/internal/approval"
	"github.com/machellerogden/thinksuit-sub000/internal/config"
	"github.com/machellerogden/thinksuit-sub000/internal/events"
	"github.com/machellerogden/thinksuit-sub000/internal/mcp"
	"github.com/machellerogden/thinksuit-sub000/internal/module"
	"github.com/machellerogden/thinksuit-sub000/internal/observability"
	"github.com/machellerogden/thinksuit-sub000/internal/providers"
	"github.com/machellerogden/thinksuit-sub000/internal/tools"
	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

// Input is the blackboard one cycle's handlers read and extend. Each
// state merges its output back in, so later stages see everything
// earlier stages produced.
type Input struct {
	// Thread is the conversation this cycle works on.
	Thread models.Thread

	// Signals holds the classifier output before aggregation.
	Signals []models.Fact

	// Facts is the aggregated input to rule evaluation.
	Facts []models.Fact

	// FactMap is the working memory after rule evaluation.
	FactMap models.FactMap

	// Plan is the selected execution plan.
	Plan *models.Plan

	// Instructions is the composed guidance for the executing role.
	Instructions *models.Instructions

	// Failure carries the error that routed control to the fallback
	// state; nil on the happy path.
	Failure error

	// Depth counts nested cycles, zero at the turn root.
	Depth int

	// ParentBoundaryID is the enclosing scope for this cycle's events.
	ParentBoundaryID string
}

// Output is what one handler contributes back to the blackboard. Nil
// fields leave the corresponding input untouched.
type Output struct {
	Signals      []models.Fact
	Facts        []models.Fact
	FactMap      models.FactMap
	Plan         *models.Plan
	Instructions *models.Instructions
	Response     *models.Response
}

// Handler is one state's work: pipeline stage or execution strategy.
type Handler func(ctx context.Context, in Input, mc *Context) (Output, error)

// Middleware wraps a handler with a cross-cutting concern.
type Middleware func(next Handler) Handler

// Chain applies middleware so the first listed wraps outermost.
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Context carries the turn-scoped dependencies every handler shares.
// It is assembled once per turn by the scheduler and passed explicitly;
// nothing here lives in a package global.
type Context struct {
	Handlers   *HandlerTable
	Module     *module.Module
	Config     *config.Config
	Provider   providers.Provider
	Recorder   *events.Recorder
	Arbiter    *approval.Arbiter
	MCP        *mcp.Manager
	Discovered map[string]tools.Descriptor
	Definition *Definition
	Metrics    *observability.Metrics
	Tracer     *observability.Tracer
	Logger     *slog.Logger

	SessionID string
	TraceID   string
}

// Log returns the context logger, falling back to the default.
func (mc *Context) Log() *slog.Logger {
	if mc.Logger == nil {
		return slog.Default()
	}
	return mc.Logger
}

// HandlerTable binds state resource names to handler implementations.
type HandlerTable struct {
	DetectSignals       Handler
	AggregateFacts      Handler
	EvaluateRules       Handler
	SelectPlan          Handler
	ComposeInstructions Handler
	EnforcePolicy       Handler
	ExecDirect          Handler
	ExecSequential      Handler
	ExecParallel        Handler
	ExecTask            Handler
	ExecFallback        Handler
}

// Lookup resolves a definition resource name to its handler.
func (t *HandlerTable) Lookup(resource string) (Handler, bool) {
	if t == nil {
		return nil, false
	}
	var h Handler
	switch resource {
	case "detectSignals":
		h = t.DetectSignals
	case "aggregateFacts":
		h = t.AggregateFacts
	case "evaluateRules":
		h = t.EvaluateRules
	case "selectPlan":
		h = t.SelectPlan
	case "composeInstructions":
		h = t.ComposeInstructions
	case "enforcePolicy":
		h = t.EnforcePolicy
	case "execDirect":
		h = t.ExecDirect
	case "execSequential":
		h = t.ExecSequential
	case "execParallel":
		h = t.ExecParallel
	case "execTask":
		h = t.ExecTask
	case "execFallback":
		h = t.ExecFallback
	default:
		return nil, false
	}
	return h, h != nil
}

// merge folds a handler's output into the blackboard.
func merge(in Input, out Output) Input {
	if out.Signals != nil {
		in.Signals = out.Signals
	}
	if out.Facts != nil {
		in.Facts = out.Facts
	}
	if out.FactMap != nil {
		in.FactMap = out.FactMap
	}
	if out.Plan != nil {
		in.Plan = out.Plan
	}
	if out.Instructions != nil {
		in.Instructions = out.Instructions
	}
	return in
}
