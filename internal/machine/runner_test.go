package machine

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/machellerogden/thinksuit-sub000/internal/events"
	"github.com/machellerogden/thinksuit-sub000/internal/journal"
	"github.com/machellerogden/thinksuit-sub000/internal/observability"
	"github.com/machellerogden/thinksuit-sub000/internal/sessions"
	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

func testMachineContext(t *testing.T, handlers *HandlerTable) (*Context, *sessions.Registry) {
	t.Helper()
	streams := journal.NewStreams(8, nil)
	t.Cleanup(func() { streams.Close() })
	registry := sessions.NewRegistry(t.TempDir(), streams, nil)
	return &Context{
		Handlers: handlers,
		Recorder: events.NewRecorder(registry, nil, nil, nil),
		Metrics:  observability.NewTestMetrics(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, registry
}

// record returns a handler that logs its table name and applies out.
func record(calls *[]string, name string, out Output, err error) Handler {
	return func(ctx context.Context, in Input, mc *Context) (Output, error) {
		*calls = append(*calls, name)
		return out, err
	}
}

func fullTable(calls *[]string, plan *models.Plan) *HandlerTable {
	resp := &models.Response{Output: "done", FinishReason: models.FinishComplete}
	return &HandlerTable{
		DetectSignals:       record(calls, "detectSignals", Output{Signals: []models.Fact{}}, nil),
		AggregateFacts:      record(calls, "aggregateFacts", Output{Facts: []models.Fact{}}, nil),
		EvaluateRules:       record(calls, "evaluateRules", Output{FactMap: models.FactMap{}}, nil),
		SelectPlan:          record(calls, "selectPlan", Output{Plan: plan}, nil),
		ComposeInstructions: record(calls, "composeInstructions", Output{Instructions: &models.Instructions{MaxTokens: 100}}, nil),
		EnforcePolicy:       record(calls, "enforcePolicy", Output{}, nil),
		ExecDirect:          record(calls, "execDirect", Output{Response: resp}, nil),
		ExecSequential:      record(calls, "execSequential", Output{Response: resp}, nil),
		ExecParallel:        record(calls, "execParallel", Output{Response: resp}, nil),
		ExecTask:            record(calls, "execTask", Output{Response: resp}, nil),
		ExecFallback:        record(calls, "execFallback", Output{Response: &models.Response{Output: "fallback", FinishReason: models.FinishComplete}}, nil),
	}
}

func TestRunCycleWalksPipelineToDirect(t *testing.T) {
	var calls []string
	mc, _ := testMachineContext(t, fullTable(&calls, &models.Plan{Strategy: models.StrategyDirect, Role: "assistant"}))

	res, err := RunCycle(context.Background(), Input{Thread: models.Thread{models.UserMessage("hi")}}, mc)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.Status != StatusSuccess || res.Response == nil || res.Response.Output != "done" {
		t.Fatalf("result = %+v, want success with response", res)
	}

	want := []string{"detectSignals", "aggregateFacts", "evaluateRules", "selectPlan",
		"composeInstructions", "enforcePolicy", "execDirect"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i, name := range want {
		if calls[i] != name {
			t.Errorf("call %d = %s, want %s", i, calls[i], name)
		}
	}
	if res.Instructions == nil || res.Instructions.MaxTokens != 100 {
		t.Errorf("instructions = %+v, want composed instructions on result", res.Instructions)
	}
}

func TestRunCycleRoutesStrategyChoice(t *testing.T) {
	tests := []struct {
		strategy models.Strategy
		handler  string
	}{
		{models.StrategyDirect, "execDirect"},
		{models.StrategySequential, "execSequential"},
		{models.StrategyParallel, "execParallel"},
		{models.StrategyTask, "execTask"},
		{models.StrategyFallback, "execFallback"},
	}
	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			var calls []string
			mc, _ := testMachineContext(t, fullTable(&calls, &models.Plan{Strategy: tt.strategy, Role: "assistant"}))

			if _, err := RunCycle(context.Background(), Input{}, mc); err != nil {
				t.Fatalf("RunCycle: %v", err)
			}
			if last := calls[len(calls)-1]; last != tt.handler {
				t.Errorf("final handler = %s, want %s", last, tt.handler)
			}
		})
	}
}

func TestRunCycleNestedEntrySkipsDetection(t *testing.T) {
	var calls []string
	mc, _ := testMachineContext(t, fullTable(&calls, nil))

	res, err := RunCycle(context.Background(), Input{
		Plan: &models.Plan{Strategy: models.StrategyDirect, Role: "explorer"},
	}, mc)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.Status != StatusSuccess {
		t.Fatalf("status = %s, want success", res.Status)
	}
	want := []string{"composeInstructions", "enforcePolicy", "execDirect"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
}

func TestRunCycleCatchRoutesToFallback(t *testing.T) {
	var calls []string
	table := fullTable(&calls, &models.Plan{Strategy: models.StrategyDirect, Role: "assistant"})
	table.EvaluateRules = record(&calls, "evaluateRules", Output{},
		models.NewKindError(models.ErrValidation, "bad facts"))

	var sawFailure error
	inner := table.ExecFallback
	table.ExecFallback = func(ctx context.Context, in Input, mc *Context) (Output, error) {
		sawFailure = in.Failure
		return inner(ctx, in, mc)
	}

	mc, _ := testMachineContext(t, table)
	res, err := RunCycle(context.Background(), Input{}, mc)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.Response == nil || res.Response.Output != "fallback" {
		t.Fatalf("response = %+v, want fallback output", res.Response)
	}
	if !models.IsKind(sawFailure, models.ErrValidation) {
		t.Errorf("fallback failure = %v, want E_VALIDATION", sawFailure)
	}
	for _, name := range calls {
		if name == "selectPlan" {
			t.Error("selectPlan ran after evaluateRules failed")
		}
	}
}

func TestRunCycleInterruptIsNeverCaught(t *testing.T) {
	var calls []string
	table := fullTable(&calls, &models.Plan{Strategy: models.StrategyDirect, Role: "assistant"})
	table.AggregateFacts = record(&calls, "aggregateFacts", Output{}, &models.Interrupt{
		Reason: "user requested",
		Stage:  "fact_aggregation",
	})

	mc, _ := testMachineContext(t, table)
	res, err := RunCycle(context.Background(), Input{}, mc)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if !res.Interrupted() {
		t.Fatalf("status = %s, want interrupted", res.Status)
	}
	if res.Interrupt == nil || res.Interrupt.Reason != "user requested" {
		t.Errorf("interrupt = %+v, want carried reason", res.Interrupt)
	}
	if res.PartialData["stage"] != "fact_aggregation" {
		t.Errorf("partialData = %+v, want stage fact_aggregation", res.PartialData)
	}
	for _, name := range calls {
		if name == "execFallback" {
			t.Error("interrupt was caught by fallback route")
		}
	}
}

func TestRunCycleObservesCancelledContext(t *testing.T) {
	var calls []string
	mc, _ := testMachineContext(t, fullTable(&calls, nil))

	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(&models.Interrupt{Reason: "shutdown"})

	res, err := RunCycle(ctx, Input{}, mc)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if !res.Interrupted() {
		t.Fatalf("status = %s, want interrupted", res.Status)
	}
	if res.Interrupt.Reason != "shutdown" {
		t.Errorf("reason = %q, want shutdown from cancel cause", res.Interrupt.Reason)
	}
	if len(calls) != 0 {
		t.Errorf("handlers ran under cancelled context: %v", calls)
	}
}

func TestRunCycleUncaughtErrorPropagates(t *testing.T) {
	var calls []string
	table := fullTable(&calls, &models.Plan{Strategy: models.StrategyDirect, Role: "assistant"})
	table.ExecFallback = record(&calls, "execFallback", Output{},
		models.NewKindError(models.ErrUnknown, "fallback broke too"))
	table.ExecDirect = record(&calls, "execDirect", Output{},
		models.NewKindError(models.ErrProvider, "api down"))

	mc, _ := testMachineContext(t, table)
	_, err := RunCycle(context.Background(), Input{}, mc)
	if !models.IsKind(err, models.ErrUnknown) {
		t.Fatalf("error = %v, want the fallback failure to surface", err)
	}
}

func TestLoggingMiddlewareBalancesBoundaries(t *testing.T) {
	mc, registry := testMachineContext(t, nil)
	res, err := registry.Acquire("")
	if err != nil || !res.Acquired {
		t.Fatalf("acquire: %v %+v", err, res)
	}
	mc.SessionID = res.SessionID

	var seenParent string
	h := Chain(func(ctx context.Context, in Input, mc *Context) (Output, error) {
		seenParent = in.ParentBoundaryID
		return Output{}, nil
	}, Logging("detectSignals", "pipeline.signal_detection", models.BoundaryPipeline))

	if _, err := h(context.Background(), Input{ParentBoundaryID: "turn-1"}, mc); err != nil {
		t.Fatalf("handler: %v", err)
	}

	j, err := registry.Journal(mc.SessionID)
	if err != nil {
		t.Fatalf("Journal: %v", err)
	}
	evs, err := j.ReadEvents()
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}

	var start, end *models.Event
	for i := range evs {
		switch evs[i].Event {
		case "pipeline.signal_detection.start":
			start = &evs[i]
		case "pipeline.signal_detection.complete":
			end = &evs[i]
		}
	}
	if start == nil || end == nil {
		t.Fatalf("missing boundary pair in %+v", evs)
	}
	if start.EventRole != models.EventRoleBoundaryStart || end.EventRole != models.EventRoleBoundaryEnd {
		t.Errorf("roles = %s/%s, want boundary_start/boundary_end", start.EventRole, end.EventRole)
	}
	if start.BoundaryID == "" || start.BoundaryID != end.BoundaryID {
		t.Errorf("boundary ids = %q/%q, want matching", start.BoundaryID, end.BoundaryID)
	}
	if start.ParentBoundaryID != "turn-1" {
		t.Errorf("parent = %q, want turn-1", start.ParentBoundaryID)
	}
	if seenParent != start.BoundaryID {
		t.Errorf("handler parent = %q, want rewritten to %q", seenParent, start.BoundaryID)
	}
	if end.Data["elapsedMs"] == nil {
		t.Errorf("end event missing elapsedMs: %+v", end.Data)
	}
}

func TestBudgetMiddlewareWarnsWithoutFailing(t *testing.T) {
	mc, _ := testMachineContext(t, nil)

	h := Chain(func(ctx context.Context, in Input, mc *Context) (Output, error) {
		time.Sleep(5 * time.Millisecond)
		return Output{}, nil
	}, Budget("aggregateFacts", time.Millisecond))

	if _, err := h(context.Background(), Input{}, mc); err != nil {
		t.Fatalf("budget overrun failed the handler: %v", err)
	}
}
