package models

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind is a stable error code carried across handler boundaries and
// into fallback explanations.
type ErrorKind string

const (
	ErrDepth      ErrorKind = "E_DEPTH"
	ErrFanout     ErrorKind = "E_FANOUT"
	ErrChildren   ErrorKind = "E_CHILDREN"
	ErrProvider   ErrorKind = "E_PROVIDER"
	ErrTimeout    ErrorKind = "E_TIMEOUT"
	ErrValidation ErrorKind = "E_VALIDATION"
	ErrTool       ErrorKind = "E_TOOL"
	ErrInterrupt  ErrorKind = "E_INTERRUPT"
	ErrUnknown    ErrorKind = "E_UNKNOWN"
)

// KindError attaches a stable kind to an error chain.
type KindError struct {
	Kind  ErrorKind
	Msg   string
	Cause error
}

func (e *KindError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Msg)
}

func (e *KindError) Unwrap() error { return e.Cause }

// NewKindError returns a KindError with a formatted message.
func NewKindError(kind ErrorKind, format string, args ...any) *KindError {
	return &KindError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapKind wraps cause with a kind and message.
func WrapKind(kind ErrorKind, cause error, format string, args ...any) *KindError {
	return &KindError{Kind: kind, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// Interrupt is raised when the turn's abort fires mid-cycle. It carries
// whatever the interrupted operation had accumulated so the cycle runner
// can surface partial work instead of losing it.
type Interrupt struct {
	Reason            string
	Stage             string
	CycleCount        int
	TokensUsed        int
	ToolCallsExecuted int
	Thread            Thread
	GatheredData      map[string]any
}

func (e *Interrupt) Error() string {
	msg := "[E_INTERRUPT] interrupted"
	if e.Stage != "" {
		msg += " at " + e.Stage
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// PartialData flattens the carried progress for journal payloads.
func (e *Interrupt) PartialData() map[string]any {
	data := map[string]any{
		"stage":             e.Stage,
		"cycleCount":        e.CycleCount,
		"tokensUsed":        e.TokensUsed,
		"toolCallsExecuted": e.ToolCallsExecuted,
	}
	if e.Reason != "" {
		data["reason"] = e.Reason
	}
	if len(e.GatheredData) > 0 {
		data["gatheredData"] = e.GatheredData
	}
	return data
}

// KindOf extracts the kind from an error chain, defaulting to E_UNKNOWN.
// Cancellation classifies as E_INTERRUPT no matter how it is wrapped, so
// an abort mid-provider-call still propagates as an interrupt. Context
// deadline errors classify as E_TIMEOUT.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var it *Interrupt
	if errors.As(err, &it) {
		return ErrInterrupt
	}
	if errors.Is(err, context.Canceled) {
		return ErrInterrupt
	}
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ErrUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
