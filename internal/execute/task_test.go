package execute

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/machellerogden/thinksuit-sub000/internal/machine"
	"github.com/machellerogden/thinksuit-sub000/internal/providers"
	"github.com/machellerogden/thinksuit-sub000/internal/tools"
	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

func taskPlan(res *models.Resolution) *models.Plan {
	return &models.Plan{
		Strategy:   models.StrategyTask,
		Role:       "assistant",
		Tools:      []string{"read_file"},
		Resolution: res,
	}
}

func TestTaskExitsWhenToolBudgetExhausted(t *testing.T) {
	p := &scriptedProvider{fn: func(req providers.Request, call int) (*models.Response, error) {
		if call == 0 {
			return &models.Response{
				Usage:        models.Usage{Prompt: 20, Completion: 10},
				FinishReason: models.FinishToolUse,
				ToolCalls: []models.ToolCall{
					{ID: "t1", Name: "read_file", Arguments: json.RawMessage(`{"path":"a.go"}`)},
					{ID: "t2", Name: "read_file", Arguments: json.RawMessage(`{"path":"b.go"}`)},
				},
			}, nil
		}
		return &models.Response{
			Output:       "what the files show",
			Usage:        models.Usage{Prompt: 30, Completion: 20},
			FinishReason: models.FinishComplete,
		}, nil
	}}
	mc, registry := testExecContext(t, p)
	mc.Config.Policy.AutoApproveTools = true
	mc.Discovered = map[string]tools.Descriptor{
		"read_file": {Name: "read_file", Server: "fs"},
	}

	out, err := Task(context.Background(), machine.Input{
		Thread:           models.Thread{models.UserMessage("summarize both files")},
		Plan:             taskPlan(&models.Resolution{MaxCycles: 5, MaxTokens: 8000, MaxToolCalls: 2, TimeoutMs: 120000}),
		ParentBoundaryID: "turn-1",
	}, mc)
	if err != nil {
		t.Fatalf("Task: %v", err)
	}

	if out.Response.FinishReason != models.FinishMaxToolCalls {
		t.Errorf("finishReason = %s, want max_tool_calls", out.Response.FinishReason)
	}
	if out.Response.Output != "what the files show" {
		t.Errorf("output = %q, want synthesis output", out.Response.Output)
	}
	if out.Response.Metadata["totalToolCalls"] != 2 {
		t.Errorf("metadata = %+v, want totalToolCalls 2", out.Response.Metadata)
	}
	if out.Response.Metadata["synthesized"] != true {
		t.Errorf("metadata = %+v, want synthesized", out.Response.Metadata)
	}

	reqs := p.requests()
	if len(reqs) != 2 {
		t.Fatalf("provider calls = %d, want cycle then synthesis", len(reqs))
	}
	if reqs[0].MaxTokens != 2000 {
		t.Errorf("cycle maxTokens = %d, want default ceiling", reqs[0].MaxTokens)
	}

	// Chat-paradigm pairing: each executed call threads back a tool-role
	// message keyed by tool_call_id, and the budget report precedes the
	// synthesis directive.
	synth := reqs[1].Thread
	var toolMsgs int
	var sawStatus bool
	for _, msg := range synth {
		if msg.Role == models.RoleTool && (msg.ToolCallID == "t1" || msg.ToolCallID == "t2") {
			toolMsgs++
		}
		if msg.Role == models.RoleUser && strings.Contains(msg.Content, "Task status: cycle 1 of 5") {
			sawStatus = true
		}
	}
	if toolMsgs != 2 {
		t.Errorf("tool result messages = %d, want 2: %+v", toolMsgs, synth)
	}
	if !sawStatus {
		t.Errorf("synthesis thread missing progress report: %+v", synth)
	}
	if last := synth[len(synth)-1]; !strings.Contains(last.Content, "Synthesize what the work so far establishes") {
		t.Errorf("last message = %q, want synthesis directive", last.Content)
	}

	evs := readSessionEvents(t, registry, mc.SessionID)
	requested := 0
	for _, ev := range evs {
		if ev.Event == models.EventToolRequested {
			requested++
		}
	}
	if requested != 2 {
		t.Errorf("tool.requested events = %d, want 2", requested)
	}
}

func TestTaskDeniedApprovalFeedsBack(t *testing.T) {
	p := &scriptedProvider{fn: func(req providers.Request, call int) (*models.Response, error) {
		if call == 0 {
			return &models.Response{
				Usage:        models.Usage{Prompt: 20, Completion: 10},
				FinishReason: models.FinishToolUse,
				ToolCalls:    []models.ToolCall{{ID: "t1", Name: "read_file", Arguments: json.RawMessage(`{"path":"a.go"}`)}},
			}, nil
		}
		return &models.Response{
			Output:       "done without tools",
			Usage:        models.Usage{Prompt: 10, Completion: 5},
			FinishReason: models.FinishComplete,
		}, nil
	}}
	mc, registry := testExecContext(t, p)
	mc.Config.Policy.AutoApproveTools = false
	mc.Config.Policy.ApprovalTimeoutMs = 50
	mc.Discovered = map[string]tools.Descriptor{
		"read_file": {Name: "read_file", Server: "fs"},
	}

	out, err := Task(context.Background(), machine.Input{
		Thread: models.Thread{models.UserMessage("read it")},
		Plan:   taskPlan(&models.Resolution{MaxCycles: 5, MaxTokens: 8000, MaxToolCalls: 10, TimeoutMs: 120000}),
	}, mc)
	if err != nil {
		t.Fatalf("Task: %v", err)
	}
	if out.Response.Output != "done without tools" {
		t.Errorf("output = %q", out.Response.Output)
	}
	if out.Response.Metadata["totalToolCalls"] != 0 {
		t.Errorf("metadata = %+v, want denied call uncounted", out.Response.Metadata)
	}

	reqs := p.requests()
	var denial *models.Message
	for i := range reqs[1].Thread {
		if reqs[1].Thread[i].Role == models.RoleTool && reqs[1].Thread[i].ToolCallID == "t1" {
			denial = &reqs[1].Thread[i]
		}
	}
	if denial == nil || !strings.Contains(denial.Content, "denied by policy") {
		t.Fatalf("denial message = %+v, want denial fed back to the model", denial)
	}

	evs := readSessionEvents(t, registry, mc.SessionID)
	var sawRequested, sawDenied bool
	for _, ev := range evs {
		switch ev.Event {
		case models.EventToolApprovalRequested:
			sawRequested = true
		case models.EventToolDenied:
			sawDenied = true
		}
	}
	if !sawRequested || !sawDenied {
		t.Errorf("approval events = requested:%v denied:%v, want both", sawRequested, sawDenied)
	}
}

func TestTaskApprovalRoundTrip(t *testing.T) {
	p := &scriptedProvider{fn: func(req providers.Request, call int) (*models.Response, error) {
		if call == 0 {
			return &models.Response{
				Usage:        models.Usage{Prompt: 20, Completion: 10},
				FinishReason: models.FinishToolUse,
				ToolCalls:    []models.ToolCall{{ID: "t1", Name: "read_file", Arguments: json.RawMessage(`{"path":"a.go"}`)}},
			}, nil
		}
		return &models.Response{
			Output:       "file summarized",
			Usage:        models.Usage{Prompt: 10, Completion: 5},
			FinishReason: models.FinishComplete,
		}, nil
	}}
	mc, registry := testExecContext(t, p)
	mc.Config.Policy.AutoApproveTools = false
	mc.Config.Policy.ApprovalTimeoutMs = 5000
	mc.Discovered = map[string]tools.Descriptor{
		"read_file": {Name: "read_file", Server: "fs"},
	}

	go func() {
		for {
			pending := mc.Arbiter.PendingRequests()
			if len(pending) > 0 {
				mc.Arbiter.Resolve(pending[0].ApprovalID, true)
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	out, err := Task(context.Background(), machine.Input{
		Thread: models.Thread{models.UserMessage("read it")},
		Plan:   taskPlan(&models.Resolution{MaxCycles: 5, MaxTokens: 8000, MaxToolCalls: 10, TimeoutMs: 120000}),
	}, mc)
	if err != nil {
		t.Fatalf("Task: %v", err)
	}
	if out.Response.Metadata["totalToolCalls"] != 1 {
		t.Errorf("metadata = %+v, want approved call counted", out.Response.Metadata)
	}

	evs := readSessionEvents(t, registry, mc.SessionID)
	var sawApproved bool
	for _, ev := range evs {
		if ev.Event == models.EventToolApproved {
			sawApproved = true
		}
	}
	if !sawApproved {
		t.Errorf("missing tool.approved event")
	}
}

func TestTaskPartialResolutionFillsDefaults(t *testing.T) {
	p := &scriptedProvider{fn: func(req providers.Request, call int) (*models.Response, error) {
		return &models.Response{
			Output:       "answered in one pass",
			Usage:        models.Usage{Prompt: 10, Completion: 5},
			FinishReason: models.FinishComplete,
		}, nil
	}}
	mc, _ := testExecContext(t, p)

	// A plan may resolve only some budgets; the unset ones must fall back
	// to the defaults rather than zero, which would starve the loop.
	out, err := Task(context.Background(), machine.Input{
		Thread: models.Thread{models.UserMessage("quick question")},
		Plan:   taskPlan(&models.Resolution{MaxCycles: 3}),
	}, mc)
	if err != nil {
		t.Fatalf("Task: %v", err)
	}

	if out.Response.Output != "answered in one pass" {
		t.Errorf("output = %q, want cycle output", out.Response.Output)
	}
	if out.Response.FinishReason != models.FinishComplete {
		t.Errorf("finishReason = %s, want complete", out.Response.FinishReason)
	}
	if out.Response.Metadata["cycles"] != 1 {
		t.Errorf("metadata = %+v, want one cycle", out.Response.Metadata)
	}

	reqs := p.requests()
	if len(reqs) != 1 {
		t.Fatalf("provider calls = %d, want 1", len(reqs))
	}
	if reqs[0].MaxTokens != 2000 {
		t.Errorf("cycle maxTokens = %d, want default ceiling under default token budget", reqs[0].MaxTokens)
	}
}

func TestTaskTokenReserveForcesSynthesis(t *testing.T) {
	p := &scriptedProvider{fn: func(req providers.Request, call int) (*models.Response, error) {
		if call == 0 {
			return &models.Response{
				Usage:        models.Usage{Prompt: 500, Completion: 200},
				FinishReason: models.FinishToolUse,
				ToolCalls:    []models.ToolCall{{ID: "t1", Name: "read_file", Arguments: json.RawMessage(`{"path":"a.go"}`)}},
			}, nil
		}
		return &models.Response{
			Output:       "conclusions from the gathered file",
			Usage:        models.Usage{Prompt: 100, Completion: 50},
			FinishReason: models.FinishComplete,
		}, nil
	}}
	mc, _ := testExecContext(t, p)
	mc.Config.Policy.AutoApproveTools = true
	mc.Discovered = map[string]tools.Descriptor{
		"read_file": {Name: "read_file", Server: "fs"},
	}

	// 700 of 1000 tokens gone after one cycle leaves less than the
	// synthesis reserve, so the loop stops and closes tool-free.
	out, err := Task(context.Background(), machine.Input{
		Thread: models.Thread{models.UserMessage("dig into the file")},
		Plan:   taskPlan(&models.Resolution{MaxCycles: 5, MaxTokens: 1000, MaxToolCalls: 10, TimeoutMs: 120000}),
	}, mc)
	if err != nil {
		t.Fatalf("Task: %v", err)
	}

	if out.Response.FinishReason != models.FinishMaxTokens {
		t.Errorf("finishReason = %s, want max_tokens", out.Response.FinishReason)
	}
	if out.Response.Metadata["stoppedForSynthesis"] != true {
		t.Errorf("metadata = %+v, want stoppedForSynthesis", out.Response.Metadata)
	}
	if out.Response.Metadata["synthesized"] != true {
		t.Errorf("metadata = %+v, want synthesized", out.Response.Metadata)
	}
	if out.Response.Output != "conclusions from the gathered file" {
		t.Errorf("output = %q, want synthesis output", out.Response.Output)
	}

	reqs := p.requests()
	if len(reqs) != 2 {
		t.Fatalf("provider calls = %d, want cycle then synthesis", len(reqs))
	}
	if reqs[0].MaxTokens != 1000 {
		t.Errorf("cycle maxTokens = %d, want capped to remaining budget", reqs[0].MaxTokens)
	}
	if len(reqs[1].Tools) != 0 {
		t.Errorf("synthesis tools = %+v, want none", reqs[1].Tools)
	}
	if reqs[1].MaxTokens != 1000 {
		t.Errorf("synthesis maxTokens = %d, want floor clamp", reqs[1].MaxTokens)
	}
}

func TestTaskInterruptCarriesProgress(t *testing.T) {
	ctx, cancel := context.WithCancelCause(context.Background())
	p := &scriptedProvider{fn: func(req providers.Request, call int) (*models.Response, error) {
		if call == 0 {
			return &models.Response{
				Output:       "partial thoughts",
				Usage:        models.Usage{Prompt: 10, Completion: 5},
				FinishReason: models.FinishMaxTokens,
			}, nil
		}
		cancel(&models.Interrupt{Reason: "stop now"})
		return nil, context.Canceled
	}}
	mc, registry := testExecContext(t, p)

	_, err := Task(ctx, machine.Input{
		Thread: models.Thread{models.UserMessage("think hard")},
		Plan:   taskPlan(&models.Resolution{MaxCycles: 5, MaxTokens: 8000, MaxToolCalls: 10, TimeoutMs: 120000}),
	}, mc)
	var it *models.Interrupt
	if !errors.As(err, &it) {
		t.Fatalf("err = %v, want interrupt", err)
	}
	if it.Reason != "stop now" {
		t.Errorf("reason = %q", it.Reason)
	}
	if it.CycleCount != 1 || it.TokensUsed != 15 {
		t.Errorf("progress = %d cycles / %d tokens, want 1/15", it.CycleCount, it.TokensUsed)
	}

	evs := readSessionEvents(t, registry, mc.SessionID)
	var sawCycleError bool
	for _, ev := range evs {
		if ev.Event == "execution.task.cycle_error" {
			sawCycleError = true
		}
	}
	if !sawCycleError {
		t.Errorf("interrupted cycle must close with cycle_error")
	}
}

func TestTaskRequiresRole(t *testing.T) {
	mc, _ := testExecContext(t, &scriptedProvider{})
	_, err := Task(context.Background(), machine.Input{
		Plan: &models.Plan{Strategy: models.StrategyTask},
	}, mc)
	if !models.IsKind(err, models.ErrValidation) {
		t.Fatalf("err = %v, want E_VALIDATION", err)
	}
}
