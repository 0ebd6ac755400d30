// Package models provides the shared domain types for the ThinkSuit engine.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Event is the single record shape written to session journals and trace
// files. One JSON object per line; `time`, `event`, and `eventId` are always
// present, everything else is situational.
type Event struct {
	// Time is when the event occurred.
	Time time.Time `json:"time"`

	// Event is the taxonomy name, `domain.component.action`.
	Event EventName `json:"event"`

	// SessionID identifies the owning session, empty for trace-only records.
	SessionID string `json:"sessionId,omitempty"`

	// EventID is unique per record.
	EventID string `json:"eventId"`

	// TraceID correlates all records of one turn across journal and trace.
	TraceID string `json:"traceId,omitempty"`

	// BoundaryID is set on boundary_start/boundary_end pairs.
	BoundaryID string `json:"boundaryId,omitempty"`

	// ParentBoundaryID points at the enclosing boundary, empty at session root.
	ParentBoundaryID string `json:"parentBoundaryId,omitempty"`

	// EventRole marks boundary delimiters.
	EventRole EventRole `json:"eventRole,omitempty"`

	// BoundaryType is the kind of scope a boundary event opens or closes.
	BoundaryType BoundaryType `json:"boundaryType,omitempty"`

	// Data carries the event payload.
	Data map[string]any `json:"data,omitempty"`

	// Msg is an optional human-readable line.
	Msg string `json:"msg,omitempty"`

	// PID is the writing process, for post-hoc debugging of shared bases.
	PID int `json:"pid,omitempty"`
}

// EventRole distinguishes boundary delimiters from point events.
type EventRole string

const (
	EventRoleBoundaryStart EventRole = "boundary_start"
	EventRoleBoundaryEnd   EventRole = "boundary_end"
)

// BoundaryType is the kind of nested scope within a turn.
type BoundaryType string

const (
	BoundarySession       BoundaryType = "session"
	BoundaryTurn          BoundaryType = "turn"
	BoundaryOrchestration BoundaryType = "orchestration"
	BoundaryPipeline      BoundaryType = "pipeline"
	BoundaryExecution     BoundaryType = "execution"
	BoundaryCycle         BoundaryType = "cycle"
	BoundaryStep          BoundaryType = "step"
	BoundaryBranch        BoundaryType = "branch"
	BoundaryTool          BoundaryType = "tool"
	BoundaryLLMExchange   BoundaryType = "llm_exchange"
)

// NewBoundaryID returns a fresh boundary identifier of the given type.
// IDs are random, not derived, so concurrent branches never collide.
func NewBoundaryID(bt BoundaryType) string {
	return string(bt) + "-" + uuid.NewString()
}

// NewEventID returns a fresh event identifier.
func NewEventID() string {
	return uuid.NewString()
}

// EventName is a `domain.component.action` taxonomy name.
type EventName string

// Session lifecycle events. These appear in the journal and drive the
// status ladder.
const (
	EventSessionPending      EventName = "session.pending"
	EventSessionInput        EventName = "session.input"
	EventSessionResponse     EventName = "session.response"
	EventSessionEnd          EventName = "session.end"
	EventSessionResume       EventName = "session.resume"
	EventSessionForked       EventName = "session.forked"
	EventSessionInterrupted  EventName = "session.interrupted"
	EventSessionTurnStart    EventName = "session.turn.start"
	EventSessionTurnComplete EventName = "session.turn.complete"
)

// Orchestration events bracket one cycle-runner invocation.
const (
	EventOrchestrationStart    EventName = "orchestration.start"
	EventOrchestrationComplete EventName = "orchestration.complete"
	EventOrchestrationError    EventName = "orchestration.error"
)

// Tool call lifecycle within execution.task.
const (
	EventToolRequested         EventName = "execution.tool.requested"
	EventToolApprovalRequested EventName = "execution.tool.approval-requested"
	EventToolApproved          EventName = "execution.tool.approved"
	EventToolDenied            EventName = "execution.tool.denied"
	EventToolExecuted          EventName = "execution.tool.executed"
	EventToolError             EventName = "execution.tool.error"
)

// System events go to the trace stream only.
const (
	EventSystemError        EventName = "system.error"
	EventSystemWarning      EventName = "system.warning"
	EventSystemMetric       EventName = "system.metric"
	EventPerformanceWarning EventName = "system.performance.warning"
	EventBudgetExceeded     EventName = "system.budget.exceeded"
)

// Raw provider exchange taps, trace-only.
const (
	EventProviderRawRequest  EventName = "provider.api.raw_request"
	EventProviderRawResponse EventName = "provider.api.raw_response"
)

// Pipeline stage names used in pipeline.<stage>.<action> events.
const (
	StageSignalDetection        = "signal_detection"
	StageFactAggregation        = "fact_aggregation"
	StageRuleEvaluation         = "rule_evaluation"
	StagePlanSelection          = "plan_selection"
	StageInstructionComposition = "instruction_composition"
	StagePolicyCheck            = "policy_check"
	StageHandler                = "handler"
)

// Common action suffixes for composed event names.
const (
	ActionStart    = "start"
	ActionComplete = "complete"
	ActionFailed   = "failed"
	ActionTrace    = "trace"
)

// PipelineEvent composes a pipeline.<stage>.<action> name.
func PipelineEvent(stage, action string) EventName {
	return EventName("pipeline." + stage + "." + action)
}

// ExecutionEvent composes an execution.<strategy>.<action> name.
func ExecutionEvent(strategy, action string) EventName {
	return EventName("execution." + strategy + "." + action)
}

// ProcessingEvent composes a processing.<component>.<action> name for
// classifier, llm, and rules work records.
func ProcessingEvent(component, action string) EventName {
	return EventName("processing." + component + "." + action)
}

// SystemEvent composes a system.<suffix> name, used for system.mcp.* records.
func SystemEvent(suffix string) EventName {
	return EventName("system." + suffix)
}
