package execute

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/machellerogden/thinksuit-sub000/internal/approval"
	"github.com/machellerogden/thinksuit-sub000/internal/events"
	"github.com/machellerogden/thinksuit-sub000/internal/machine"
	"github.com/machellerogden/thinksuit-sub000/internal/module"
	"github.com/machellerogden/thinksuit-sub000/internal/providers"
	"github.com/machellerogden/thinksuit-sub000/internal/tools"
	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

const (
	// synthesisReserve is held back from the token budget so a closing
	// synthesis call always has room to run.
	synthesisReserve = 500

	// defaultCycleTokens caps one cycle when the plan sets no ceiling.
	defaultCycleTokens = 2000

	// lowTokenFloor marks the budget "limited" below this remnant.
	lowTokenFloor = 800
)

// Task runs the bounded task loop: nested direct cycles with tool
// access, repeated while the provider signals continuation and every
// budget in the resolution still has headroom. Tool calls clear the
// approval arbiter unless policy auto-approves. When the loop ends on a
// budget or with tool results but no prose, one tool-free synthesis
// call closes the work.
func Task(ctx context.Context, in machine.Input, mc *machine.Context) (machine.Output, error) {
	plan := in.Plan
	if plan == nil || plan.Role == "" {
		return machine.Output{}, models.NewKindError(models.ErrValidation, "task execution requires a plan with a role")
	}

	res := plan.Resolution.WithDefaults()
	t := &taskLoop{
		in:      in,
		mc:      mc,
		plan:    plan,
		res:     res,
		timeout: time.Duration(res.TimeoutMs) * time.Millisecond,
		started: time.Now(),
		thread:  in.Thread.Clone(),
	}
	return t.run(ctx)
}

// taskLoop holds the mutable state of one task execution.
type taskLoop struct {
	in   machine.Input
	mc   *machine.Context
	plan *models.Plan
	res  *models.Resolution

	timeout time.Duration
	started time.Time

	thread     models.Thread
	usage      models.Usage
	cycles     int
	toolCalls  int
	lastReason models.FinishReason
	output     string

	stoppedForSynthesis bool
	synthesized         bool
}

func (t *taskLoop) run(ctx context.Context) (machine.Output, error) {
	for t.cycles < t.res.MaxCycles {
		if ctx.Err() != nil {
			return machine.Output{}, t.interrupt(ctx)
		}
		if time.Since(t.started) >= t.timeout {
			break
		}
		if t.toolCalls >= t.res.MaxToolCalls {
			break
		}

		cont, err := t.cycle(ctx)
		if err != nil {
			return machine.Output{}, err
		}
		if t.usage.Total() >= t.res.MaxTokens-synthesisReserve {
			t.stoppedForSynthesis = true
			break
		}
		if !cont {
			break
		}
		t.thread = append(t.thread, models.UserMessage(t.progressReport()))
	}

	reason := t.finishReason()

	if t.needsSynthesis() {
		if err := t.synthesize(ctx); err != nil {
			return machine.Output{}, err
		}
	}

	resp := &models.Response{
		Output:       t.output,
		Usage:        t.usage,
		Model:        t.mc.Config.Model,
		FinishReason: reason,
	}
	resp.SetMeta("strategy", string(models.StrategyTask))
	resp.SetMeta("role", t.plan.Role)
	resp.SetMeta("cycles", t.cycles)
	resp.SetMeta("totalTokens", t.usage.Total())
	resp.SetMeta("totalToolCalls", t.toolCalls)
	resp.SetMeta("stoppedForSynthesis", t.stoppedForSynthesis)
	resp.SetMeta("synthesized", t.synthesized)
	resp.SetMeta("elapsedMs", time.Since(t.started).Milliseconds())
	return machine.Output{Response: resp}, nil
}

// cycle runs one nested direct cycle and its tool calls. It reports
// whether the provider asked to continue.
func (t *taskLoop) cycle(ctx context.Context) (bool, error) {
	cycleTokens := t.plan.MaxTokens
	if cycleTokens <= 0 {
		cycleTokens = defaultCycleTokens
	}
	if rem := t.res.MaxTokens - t.usage.Total(); rem < cycleTokens {
		cycleTokens = rem
	}
	if cycleTokens < 1 {
		t.stoppedForSynthesis = true
		return false, nil
	}

	scope := t.mc.Recorder.Begin(t.mc.SessionID, t.mc.TraceID, t.in.ParentBoundaryID,
		models.BoundaryCycle, models.ExecutionEvent("task", "cycle_start"),
		map[string]any{"cycle": t.cycles + 1})

	sub := &models.Plan{
		Strategy:  models.StrategyDirect,
		Role:      t.plan.Role,
		Tools:     t.plan.Tools,
		MaxTokens: cycleTokens,
		TaskContext: &models.TaskContext{
			Cycle:     t.cycles + 1,
			MaxCycles: t.res.MaxCycles,
			IsTask:    true,
		},
	}
	cres, err := runNested(ctx, t.mc, machine.Input{
		Thread:           t.thread,
		Plan:             sub,
		Facts:            t.in.Facts,
		FactMap:          t.in.FactMap,
		Depth:            t.in.Depth + 1,
		ParentBoundaryID: scope.ID,
	})
	if err != nil {
		var it *models.Interrupt
		if errors.As(err, &it) {
			scope.End(models.ExecutionEvent("task", "cycle_error"), map[string]any{
				"cycle": t.cycles + 1, "interrupted": true,
			})
			return false, t.enrich(it)
		}
		scope.End(models.ExecutionEvent("task", "cycle_error"), map[string]any{
			"cycle": t.cycles + 1, "error": err.Error(),
		})
		return false, err
	}
	resp := cres.Response
	if resp == nil {
		scope.End(models.ExecutionEvent("task", "cycle_error"), map[string]any{
			"cycle": t.cycles + 1, "error": "nested cycle produced no response",
		})
		return false, models.NewKindError(models.ErrUnknown, "task cycle %d produced no response", t.cycles+1)
	}

	t.cycles++
	t.usage.Add(resp.Usage)
	t.lastReason = resp.FinishReason
	t.output = resp.Output

	if len(resp.OutputItems) > 0 {
		t.thread = append(t.thread, resp.OutputItems...)
	} else if resp.Output != "" {
		t.thread = append(t.thread, models.AssistantMessage(resp.Output))
	}

	executed := 0
	if t.plan.HasTools() {
		for _, call := range resp.ToolCalls {
			before := t.toolCalls
			if err := t.handleToolCall(ctx, call, scope); err != nil {
				scope.End(models.ExecutionEvent("task", "cycle_error"), map[string]any{
					"cycle": t.cycles, "interrupted": true,
				})
				return false, err
			}
			executed += t.toolCalls - before
		}
	}

	scope.End(models.ExecutionEvent("task", "cycle_complete"), map[string]any{
		"cycle":     t.cycles,
		"tokens":    resp.Usage.Total(),
		"toolCalls": executed,
	})
	return resp.FinishReason.IsContinuation(), nil
}

// handleToolCall walks one call through budget, approval, and
// execution, and threads the result back for the next cycle. Only a
// cancelled approval wait returns an error; everything else feeds back
// into the conversation.
func (t *taskLoop) handleToolCall(ctx context.Context, call models.ToolCall, scope *events.Scope) error {
	args, err := call.Args()
	if err != nil {
		scope.Point(models.EventToolError, map[string]any{
			"tool": call.Name, "error": fmt.Sprintf("invalid arguments: %v", err),
		})
		t.appendToolResult(call, tools.CallResult{
			Success: false,
			Error:   fmt.Sprintf("invalid tool arguments: %v", err),
		})
		return nil
	}

	if t.toolCalls >= t.res.MaxToolCalls {
		scope.Point(models.EventToolDenied, map[string]any{
			"tool": call.Name, "reason": "budget_exhausted",
		})
		t.appendToolResult(call, tools.CallResult{
			Success: false,
			Error:   "tool call budget exhausted; no further tools may run this task",
		})
		return nil
	}

	scope.Point(models.EventToolRequested, map[string]any{"tool": call.Name, "args": args})

	if t.mc.Config.Policy.AutoApproveTools {
		t.mc.Metrics.ApprovalCounter.WithLabelValues("auto").Inc()
	} else {
		req := approval.Request{
			ApprovalID:       uuid.NewString(),
			Tool:             call.Name,
			Args:             args,
			SessionID:        t.mc.SessionID,
			ParentBoundaryID: scope.ID,
		}
		scope.Point(models.EventToolApprovalRequested, map[string]any{
			"approvalId": req.ApprovalID, "tool": call.Name, "args": args,
		})
		timeout := time.Duration(t.mc.Config.Policy.ApprovalTimeoutMs) * time.Millisecond
		if t.mc.Config.Policy.ApprovalTimeoutMs < 0 {
			timeout = -1
		}
		dec, err := t.mc.Arbiter.Request(ctx, req, timeout)
		if err != nil {
			return t.interrupt(ctx)
		}
		if !dec.Approved {
			t.mc.Metrics.ApprovalCounter.WithLabelValues("denied").Inc()
			scope.Point(models.EventToolDenied, map[string]any{
				"approvalId": dec.ApprovalID, "tool": call.Name,
			})
			t.appendToolResult(call, tools.CallResult{Success: false, Error: "denied by policy"})
			return nil
		}
		t.mc.Metrics.ApprovalCounter.WithLabelValues("approved").Inc()
		scope.Point(models.EventToolApproved, map[string]any{
			"approvalId": dec.ApprovalID, "tool": call.Name,
		})
	}

	callStart := time.Now()
	result := tools.Call(ctx, t.mc.MCP, t.mc.Discovered, call.Name, args)
	elapsed := time.Since(callStart)
	t.mc.Metrics.ToolCallDuration.WithLabelValues(call.Name).Observe(elapsed.Seconds())
	t.toolCalls++

	if result.Success {
		t.mc.Metrics.ToolCallCounter.WithLabelValues(call.Name, "ok").Inc()
		scope.Point(models.EventToolExecuted, map[string]any{
			"tool": call.Name, "elapsedMs": elapsed.Milliseconds(), "resultChars": len(result.Result),
		})
	} else {
		t.mc.Metrics.ToolCallCounter.WithLabelValues(call.Name, "error").Inc()
		scope.Point(models.EventToolError, map[string]any{
			"tool": call.Name, "elapsedMs": elapsed.Milliseconds(), "error": result.Error,
		})
	}
	t.appendToolResult(call, result)
	return nil
}

// appendToolResult threads a tool outcome back in the provider's
// paradigm: function_call_output items for responses, tool-role
// messages for chat.
func (t *taskLoop) appendToolResult(call models.ToolCall, result tools.CallResult) {
	text := result.Result
	if !result.Success {
		text = "Error: " + result.Error
	}
	if t.mc.Provider != nil && t.mc.Provider.Paradigm() == providers.ParadigmResponses {
		t.thread = append(t.thread, models.Message{
			Role:   models.RoleFunctionCallOutput,
			CallID: call.ID,
			Output: text,
		})
		return
	}
	t.thread = append(t.thread, models.Message{
		Role:       models.RoleTool,
		ToolCallID: call.ID,
		Content:    text,
	})
}

// progressReport builds the status message injected before the next
// cycle so the model sees its remaining budget.
func (t *taskLoop) progressReport() string {
	total := t.usage.Total()
	remaining := t.res.MaxTokens - total
	state := "available"
	if remaining < lowTokenFloor || remaining*5 < t.res.MaxTokens {
		state = "limited"
	}

	parts := []string{fmt.Sprintf(
		"Task status: cycle %d of %d complete. Tokens used: %d of %d. Tool calls: %d of %d.",
		t.cycles, t.res.MaxCycles, total, t.res.MaxTokens, t.toolCalls, t.res.MaxToolCalls)}

	pc := module.PromptContext{
		Role:            t.plan.Role,
		Cycle:           t.cycles,
		MaxCycles:       t.res.MaxCycles,
		UsedTokens:      total,
		RemainingTokens: remaining,
		MaxTokens:       t.res.MaxTokens,
		ToolCallsUsed:   t.toolCalls,
		MaxToolCalls:    t.res.MaxToolCalls,
		ResourceState:   state,
	}
	if s := t.mc.Module.RenderPrompt("adapt.task-assessment-"+state, pc); s != "" {
		parts = append(parts, s)
	}
	if s := t.mc.Module.RenderPrompt("adapt.task-guidance-"+state, pc); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n\n")
}

// needsSynthesis reports whether the loop must close with a tool-free
// call: either the token reserve stopped it, or the last cycle asked
// for tools without producing any prose.
func (t *taskLoop) needsSynthesis() bool {
	if t.stoppedForSynthesis {
		return true
	}
	toolFinish := t.lastReason == models.FinishToolUse || t.lastReason == models.FinishToolCalls
	return toolFinish && strings.TrimSpace(t.output) == ""
}

// synthesize runs the closing call. Tools are withheld so the model
// must work from what the loop gathered.
func (t *taskLoop) synthesize(ctx context.Context) error {
	rem := t.res.MaxTokens - t.usage.Total()
	if rem == 0 {
		rem = defaultCycleTokens
	}
	syn := rem
	if syn > 2000 {
		syn = 2000
	}
	if syn < 1000 {
		syn = 1000
	}

	pc := module.PromptContext{Role: t.plan.Role, Cycle: t.cycles, MaxCycles: t.res.MaxCycles}
	directive := t.mc.Module.RenderPrompt("adapt.task-synthesis", pc)
	if directive == "" {
		directive = "Produce the final response from the work gathered so far. Do not call tools."
	}
	t.thread = append(t.thread, models.UserMessage(directive))

	scope := t.mc.Recorder.Begin(t.mc.SessionID, t.mc.TraceID, t.in.ParentBoundaryID,
		models.BoundaryCycle, models.ExecutionEvent("task", "synthesis_start"),
		map[string]any{"cycles": t.cycles, "maxTokens": syn})

	sub := &models.Plan{
		Strategy:  models.StrategyDirect,
		Role:      t.plan.Role,
		MaxTokens: syn,
		TaskContext: &models.TaskContext{
			Cycle:     t.cycles,
			MaxCycles: t.res.MaxCycles,
			IsTask:    true,
			Synthesis: true,
		},
	}
	cres, err := runNested(ctx, t.mc, machine.Input{
		Thread:           t.thread,
		Plan:             sub,
		Facts:            t.in.Facts,
		FactMap:          t.in.FactMap,
		Depth:            t.in.Depth + 1,
		ParentBoundaryID: scope.ID,
	})
	if err != nil {
		var it *models.Interrupt
		if errors.As(err, &it) {
			scope.End(models.ExecutionEvent("task", "synthesis_error"), map[string]any{"interrupted": true})
			return t.enrich(it)
		}
		scope.End(models.ExecutionEvent("task", "synthesis_error"), map[string]any{"error": err.Error()})
		return err
	}
	if cres.Response != nil {
		t.usage.Add(cres.Response.Usage)
		t.output = cres.Response.Output
	}
	t.synthesized = true
	scope.End(models.ExecutionEvent("task", "synthesis_complete"), map[string]any{
		"tokens": t.usage.Total(),
	})
	return nil
}

// finishReason explains why the loop stopped, budget breaches first.
func (t *taskLoop) finishReason() models.FinishReason {
	switch {
	case t.cycles >= t.res.MaxCycles:
		return models.FinishMaxCycles
	case t.stoppedForSynthesis || t.usage.Total() >= t.res.MaxTokens:
		return models.FinishMaxTokens
	case time.Since(t.started) >= t.timeout:
		return models.FinishTimeout
	case t.toolCalls >= t.res.MaxToolCalls:
		return models.FinishMaxToolCalls
	}
	if t.lastReason != "" && !t.lastReason.IsContinuation() {
		return t.lastReason
	}
	return models.FinishComplete
}

// interrupt builds the abort error from whatever the loop accumulated.
func (t *taskLoop) interrupt(ctx context.Context) *models.Interrupt {
	it := &models.Interrupt{Stage: "execution.task"}
	if cause := context.Cause(ctx); cause != nil {
		var carried *models.Interrupt
		if errors.As(cause, &carried) {
			it.Reason = carried.Reason
		}
	}
	return t.enrich(it)
}

// enrich stamps the loop's progress onto an interrupt raised below it.
func (t *taskLoop) enrich(it *models.Interrupt) *models.Interrupt {
	if it.Stage == "" {
		it.Stage = "execution.task"
	}
	if it.CycleCount == 0 {
		it.CycleCount = t.cycles
	}
	if it.TokensUsed == 0 {
		it.TokensUsed = t.usage.Total()
	}
	if it.ToolCallsExecuted == 0 {
		it.ToolCallsExecuted = t.toolCalls
	}
	if it.Thread == nil {
		it.Thread = t.thread
	}
	return it
}
