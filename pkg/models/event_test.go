package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestEventName_Constants(t *testing.T) {
	tests := []struct {
		constant EventName
		expected string
	}{
		{EventSessionPending, "session.pending"},
		{EventSessionInput, "session.input"},
		{EventSessionResponse, "session.response"},
		{EventSessionEnd, "session.end"},
		{EventSessionResume, "session.resume"},
		{EventSessionForked, "session.forked"},
		{EventSessionInterrupted, "session.interrupted"},
		{EventSessionTurnStart, "session.turn.start"},
		{EventSessionTurnComplete, "session.turn.complete"},

		{EventOrchestrationStart, "orchestration.start"},
		{EventOrchestrationComplete, "orchestration.complete"},
		{EventOrchestrationError, "orchestration.error"},

		{EventToolRequested, "execution.tool.requested"},
		{EventToolApprovalRequested, "execution.tool.approval-requested"},
		{EventToolApproved, "execution.tool.approved"},
		{EventToolDenied, "execution.tool.denied"},
		{EventToolExecuted, "execution.tool.executed"},
		{EventToolError, "execution.tool.error"},

		{EventSystemError, "system.error"},
		{EventPerformanceWarning, "system.performance.warning"},
		{EventBudgetExceeded, "system.budget.exceeded"},

		{EventProviderRawRequest, "provider.api.raw_request"},
		{EventProviderRawResponse, "provider.api.raw_response"},
	}

	for _, tt := range tests {
		t.Run(string(tt.constant), func(t *testing.T) {
			if string(tt.constant) != tt.expected {
				t.Errorf("constant = %q, want %q", tt.constant, tt.expected)
			}
		})
	}
}

func TestComposedEventNames(t *testing.T) {
	tests := []struct {
		got      EventName
		expected string
	}{
		{PipelineEvent(StageSignalDetection, ActionStart), "pipeline.signal_detection.start"},
		{PipelineEvent(StagePolicyCheck, ActionComplete), "pipeline.policy_check.complete"},
		{PipelineEvent(StageHandler, ActionFailed), "pipeline.handler.failed"},
		{ExecutionEvent("task", "cycle_start"), "execution.task.cycle_start"},
		{ExecutionEvent("parallel", "branch_error"), "execution.parallel.branch_error"},
		{ProcessingEvent("classifier", ActionComplete), "processing.classifier.complete"},
		{ProcessingEvent("llm", ActionStart), "processing.llm.start"},
		{SystemEvent("mcp.server_started"), "system.mcp.server_started"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if string(tt.got) != tt.expected {
				t.Errorf("got %q, want %q", tt.got, tt.expected)
			}
		})
	}
}

func TestEvent_JSONShape(t *testing.T) {
	ev := Event{
		Time:      time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Event:     EventSessionInput,
		SessionID: "20250301T120000000Z-a1b2c3d4",
		EventID:   "ev-1",
		Data:      map[string]any{"input": "hello"},
	}

	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(raw)

	for _, want := range []string{`"time"`, `"event":"session.input"`, `"sessionId"`, `"eventId":"ev-1"`, `"input":"hello"`} {
		if !strings.Contains(s, want) {
			t.Errorf("marshaled event missing %s: %s", want, s)
		}
	}
	for _, absent := range []string{"boundaryId", "parentBoundaryId", "eventRole", "boundaryType", "msg", "pid", "traceId"} {
		if strings.Contains(s, absent) {
			t.Errorf("marshaled event should omit empty %s: %s", absent, s)
		}
	}

	var back Event
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Event != EventSessionInput || back.SessionID != ev.SessionID {
		t.Errorf("round trip mismatch: %+v", back)
	}
}

func TestNewBoundaryID(t *testing.T) {
	id := NewBoundaryID(BoundaryCycle)
	if !strings.HasPrefix(id, "cycle-") {
		t.Errorf("boundary id %q should carry its type prefix", id)
	}
	if id == NewBoundaryID(BoundaryCycle) {
		t.Error("boundary ids must be unique")
	}
}
