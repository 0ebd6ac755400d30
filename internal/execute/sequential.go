package execute

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/machellerogden/thinksuit-sub000/internal/machine"
	"github.com/machellerogden/thinksuit-sub000/internal/module"
	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

// Sequential runs the plan's steps as nested cycles, one role after
// another. Steps default to the task strategy so each role can work its
// slice with tools; a step object may override to direct.
//
// Two threading modes exist. With threadAccumulation the conversation
// grows across steps: a plan overview marker, then per step a start
// marker, the cycle's composed framing, the role's output as an
// assistant message, and an end marker. With buildThread each step
// instead receives one user message of labeled prior turns. Without
// either, a step sees only the original thread plus the previous step's
// output as a handoff.
//
// A failing step records "[Error in <role> step]" and the walk
// continues; only interrupts abort.
func Sequential(ctx context.Context, in machine.Input, mc *machine.Context) (machine.Output, error) {
	plan := in.Plan
	if plan == nil || len(plan.Sequence) == 0 {
		return machine.Output{}, models.NewKindError(models.ErrValidation, "sequential execution requires sequence steps")
	}

	accumulate := plan.ThreadAccumulation && !plan.BuildThread
	stepCount := len(plan.Sequence)

	running := in.Thread.Clone()
	if accumulate {
		if text := mc.Module.RenderPrompt("adapt.sequential-overview", module.PromptContext{StepCount: stepCount}); text != "" {
			running = append(running, models.SystemMessage(text))
		}
	}

	var (
		results  = make([]module.BranchResult, 0, stepCount)
		usage    models.Usage
		previous string
	)

	for i, step := range plan.Sequence {
		if ctx.Err() != nil {
			return machine.Output{}, stepInterrupt(ctx, in, results)
		}

		strategy := step.Strategy
		if strategy == "" {
			strategy = models.StrategyTask
		}
		sub := &models.Plan{
			Strategy:   strategy,
			Role:       step.Role,
			Resolution: plan.Resolution,
		}
		if strategy == models.StrategyTask {
			sub.Tools = step.Tools
		}

		pc := module.PromptContext{
			Role:           step.Role,
			StepIndex:      i + 1,
			StepCount:      stepCount,
			PreviousOutput: previous,
		}

		scope := mc.Recorder.Begin(mc.SessionID, mc.TraceID, in.ParentBoundaryID,
			models.BoundaryStep, models.ExecutionEvent("sequential", "step_start"),
			map[string]any{"step": i + 1, "role": step.Role, "strategy": string(strategy)})

		var stepThread models.Thread
		switch {
		case accumulate:
			if text := mc.Module.RenderPrompt("adapt.sequential-step-start", pc); text != "" {
				running = append(running, models.SystemMessage(text))
			}
			stepThread = running.Clone()
		case plan.BuildThread && len(results) > 0:
			stepThread = models.Thread{models.UserMessage(labeledTurns(in.Thread, results))}
		default:
			stepThread = in.Thread.Clone()
			if previous != "" {
				handoff := mc.Module.RenderPrompt("adapt.sequential-handoff", pc)
				if handoff == "" {
					handoff = previous
				}
				stepThread = append(stepThread, models.UserMessage(handoff))
			}
		}

		res, err := runNested(ctx, mc, machine.Input{
			Thread:           stepThread,
			Plan:             sub,
			Facts:            in.Facts,
			FactMap:          in.FactMap,
			Depth:            in.Depth + 1,
			ParentBoundaryID: scope.ID,
		})
		if err != nil {
			var it *models.Interrupt
			if errors.As(err, &it) {
				scope.End(models.ExecutionEvent("sequential", "step_error"), map[string]any{
					"step": i + 1, "role": step.Role, "interrupted": true,
				})
				return machine.Output{}, gatherPartial(it, results)
			}
			marker := fmt.Sprintf("[Error in %s step]", step.Role)
			mc.Log().Warn("sequential step failed", "step", i+1, "role", step.Role, "error", err)
			scope.End(models.ExecutionEvent("sequential", "step_error"), map[string]any{
				"step": i + 1, "role": step.Role, "error": err.Error(),
			})
			results = append(results, module.BranchResult{Role: step.Role, Err: err.Error()})
			previous = marker
			continue
		}

		output := ""
		if res.Response != nil {
			output = res.Response.Output
			usage.Add(res.Response.Usage)
		}
		results = append(results, module.BranchResult{Role: step.Role, Output: output})
		previous = output

		if accumulate {
			if res.Instructions != nil && strings.TrimSpace(res.Instructions.Primary) != "" {
				running = append(running, models.SystemMessage(res.Instructions.Primary))
			}
			running = append(running, models.AssistantMessage(output))
			if text := mc.Module.RenderPrompt("adapt.sequential-step-end", pc); text != "" {
				running = append(running, models.SystemMessage(text))
			}
		}

		scope.End(models.ExecutionEvent("sequential", "step_complete"), map[string]any{
			"step": i + 1, "role": step.Role, "outputChars": len(output),
		})
	}

	rs := plan.ResultStrategy
	if rs == "" {
		rs = models.ResultLast
	}
	resp := &models.Response{
		Output:       collapseResults(rs, results, "step", mc.Module.Orchestration.FormatResponse),
		Usage:        usage,
		FinishReason: models.FinishComplete,
	}
	resp.SetMeta("strategy", string(models.StrategySequential))
	resp.SetMeta("steps", stepCount)
	resp.SetMeta("resultStrategy", string(rs))
	return machine.Output{Response: resp}, nil
}

// labeledTurns renders the original request and each completed step as
// one labeled conversation for buildThread mode.
func labeledTurns(original models.Thread, results []module.BranchResult) string {
	var b strings.Builder
	if i := original.LastUserIndex(); i >= 0 {
		fmt.Fprintf(&b, "[user]: %s", original[i].Content)
	}
	for _, r := range results {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		out := r.Output
		if r.Err != "" {
			out = fmt.Sprintf("[Error in %s step]", r.Role)
		}
		fmt.Fprintf(&b, "[%s]: %s", r.Role, out)
	}
	return b.String()
}

// stepInterrupt builds the interrupt for a cancellation observed between
// steps, carrying completed outputs as partial data.
func stepInterrupt(ctx context.Context, in machine.Input, results []module.BranchResult) *models.Interrupt {
	it := &models.Interrupt{Stage: "execution.sequential", Thread: in.Thread}
	if cause := context.Cause(ctx); cause != nil {
		var carried *models.Interrupt
		if errors.As(cause, &carried) {
			it.Reason = carried.Reason
		}
	}
	return gatherPartial(it, results)
}
