package machine

import (
	"context"
	"errors"

	"github.com/machellerogden/thinksuit-sub000/internal/events"
	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

// Cycle statuses.
const (
	StatusSuccess     = "success"
	StatusInterrupted = "interrupted"
)

// maxTransitions guards against a definition that loops. The default
// cycle never takes more than a dozen.
const maxTransitions = 64

// CycleResult is one cycle's outcome. Interrupted cycles come back as a
// result carrying the interrupt and its partial data instead of an
// error; execution handlers running nested cycles re-raise the carried
// interrupt so it unwinds to the root.
type CycleResult struct {
	Status       string
	Response     *models.Response
	Instructions *models.Instructions
	Interrupt    *models.Interrupt
	PartialData  map[string]any
}

// Interrupted reports whether the cycle ended on an interrupt.
func (r *CycleResult) Interrupted() bool {
	return r != nil && r.Status == StatusInterrupted
}

// RunCycle walks the state machine over the blackboard input. Root
// entries start at the definition's StartAt; inputs already carrying a
// plan enter at NestedStartAt, so sequential steps, parallel branches,
// and task cycles re-compose instructions without re-running detection
// or plan selection.
//
// Handler failures route through the failing state's catch clauses by
// error kind. Interrupts are never caught: they unwind immediately and
// return as an interrupted result.
func RunCycle(ctx context.Context, in Input, mc *Context) (*CycleResult, error) {
	def := mc.Definition
	if def == nil {
		def = Default()
	}

	entry := def.StartAt
	if in.Plan != nil && def.NestedStartAt != "" {
		entry = def.NestedStartAt
	}

	if mc.Tracer != nil {
		cctx, span := mc.Tracer.StartCycle(ctx, in.Depth)
		ctx = cctx
		defer span.End()
	}

	scope := mc.Recorder.Begin(mc.SessionID, mc.TraceID, in.ParentBoundaryID,
		models.BoundaryOrchestration, models.EventOrchestrationStart,
		map[string]any{"depth": in.Depth, "entry": entry})
	in.ParentBoundaryID = scope.ID

	var resp *models.Response
	state := entry
	for steps := 0; steps < maxTransitions; steps++ {
		st, ok := def.States[state]
		if !ok {
			return nil, failCycle(scope, mc, in,
				models.NewKindError(models.ErrValidation, "unknown state %q", state))
		}

		switch st.Type {
		case "choice":
			state = routeChoice(st, in)

		case "succeed":
			return succeedCycle(scope, mc, in, resp)

		case "fail":
			return nil, failCycle(scope, mc, in,
				models.NewKindError(models.ErrorKind(st.Error), "definition failed at %q", state))

		case "handler":
			if ctx.Err() != nil {
				return interruptCycle(scope, mc, in, interruptAt(ctx, state, in))
			}
			h, found := mc.Handlers.Lookup(st.Resource)
			if !found {
				return nil, failCycle(scope, mc, in,
					models.NewKindError(models.ErrValidation, "state %q names unknown resource %q", state, st.Resource))
			}

			out, err := h(ctx, in, mc)
			if err != nil {
				var it *models.Interrupt
				if errors.As(err, &it) {
					return interruptCycle(scope, mc, in, it)
				}
				if models.IsKind(err, models.ErrInterrupt) {
					return interruptCycle(scope, mc, in, interruptAt(ctx, state, in))
				}
				kind := models.KindOf(err)
				next, caught := catchTarget(st.Catch, kind)
				if !caught {
					return nil, failCycle(scope, mc, in, err)
				}
				mc.Log().Warn("handler failed, routing to catch",
					"state", state, "kind", string(kind), "next", next, "error", err)
				in.Failure = err
				state = next
				continue
			}

			in = merge(in, out)
			if out.Response != nil {
				resp = out.Response
			}
			if st.End {
				return succeedCycle(scope, mc, in, resp)
			}
			state = st.Next

		default:
			return nil, failCycle(scope, mc, in,
				models.NewKindError(models.ErrValidation, "state %q has unknown type %q", state, st.Type))
		}
	}
	return nil, failCycle(scope, mc, in,
		models.NewKindError(models.ErrValidation, "cycle exceeded %d transitions", maxTransitions))
}

func routeChoice(st State, in Input) string {
	for _, c := range st.Choices {
		if resolveVariable(in, c.Variable) == c.Equals {
			return c.Next
		}
	}
	return st.Default
}

func catchTarget(clauses []Catch, kind models.ErrorKind) (string, bool) {
	for _, c := range clauses {
		if c.matches(kind) {
			return c.Next, true
		}
	}
	return "", false
}

// interruptAt builds the interrupt for a cancellation observed at a
// state boundary, picking up the reason the turn's abort carried.
func interruptAt(ctx context.Context, stage string, in Input) *models.Interrupt {
	it := &models.Interrupt{Stage: stage, Thread: in.Thread}
	if cause := context.Cause(ctx); cause != nil {
		var carried *models.Interrupt
		if errors.As(cause, &carried) {
			it.Reason = carried.Reason
		}
	}
	return it
}

func succeedCycle(scope *events.Scope, mc *Context, in Input, resp *models.Response) (*CycleResult, error) {
	data := map[string]any{"strategy": planStrategy(in)}
	if resp != nil {
		data["finishReason"] = string(resp.FinishReason)
	}
	scope.End(models.EventOrchestrationComplete, data)
	recordCycle(mc, in, StatusSuccess)
	return &CycleResult{
		Status:       StatusSuccess,
		Response:     resp,
		Instructions: in.Instructions,
	}, nil
}

func interruptCycle(scope *events.Scope, mc *Context, in Input, it *models.Interrupt) (*CycleResult, error) {
	scope.End(models.EventOrchestrationError, map[string]any{
		"status": StatusInterrupted,
		"stage":  it.Stage,
		"reason": it.Reason,
	})
	recordCycle(mc, in, StatusInterrupted)
	if mc.Metrics != nil {
		mc.Metrics.InterruptCounter.WithLabelValues(it.Stage).Inc()
	}
	return &CycleResult{
		Status:      StatusInterrupted,
		Interrupt:   it,
		PartialData: it.PartialData(),
	}, nil
}

func failCycle(scope *events.Scope, mc *Context, in Input, err error) error {
	scope.End(models.EventOrchestrationError, map[string]any{
		"error": err.Error(),
		"kind":  string(models.KindOf(err)),
	})
	recordCycle(mc, in, "failed")
	return err
}

func planStrategy(in Input) string {
	if in.Plan == nil {
		return "none"
	}
	return string(in.Plan.Strategy)
}

func recordCycle(mc *Context, in Input, status string) {
	if mc.Metrics == nil {
		return
	}
	mc.Metrics.CycleCounter.WithLabelValues(planStrategy(in), status).Inc()
}
