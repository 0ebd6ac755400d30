package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

// Reason categorizes why a provider request failed.
type Reason string

const (
	// ReasonBilling indicates payment/quota issues (HTTP 402).
	ReasonBilling Reason = "billing"

	// ReasonRateLimit indicates rate limiting (HTTP 429).
	ReasonRateLimit Reason = "rate_limit"

	// ReasonAuth indicates authentication failure (HTTP 401, 403).
	ReasonAuth Reason = "auth"

	// ReasonTimeout indicates request timeout.
	ReasonTimeout Reason = "timeout"

	// ReasonServerError indicates server-side issues (HTTP 5xx).
	ReasonServerError Reason = "server_error"

	// ReasonInvalidRequest indicates client-side issues (HTTP 400).
	ReasonInvalidRequest Reason = "invalid_request"

	// ReasonModelUnavailable indicates the model is not available.
	ReasonModelUnavailable Reason = "model_unavailable"

	// ReasonContentFilter indicates content was blocked by safety filters.
	ReasonContentFilter Reason = "content_filter"

	// ReasonUnknown indicates an unclassified error.
	ReasonUnknown Reason = "unknown"
)

// IsRetryable returns true if the reason suggests retrying may succeed.
func (r Reason) IsRetryable() bool {
	switch r {
	case ReasonRateLimit, ReasonTimeout, ReasonServerError:
		return true
	default:
		return false
	}
}

// ProviderError is a structured error from an LLM provider. It captures
// the context needed for retry decisions and debugging.
type ProviderError struct {
	// Reason categorizes the error for retry logic.
	Reason Reason

	// Provider is the provider name ("anthropic", "openai", "google").
	Provider string

	// Model is the model that was requested.
	Model string

	// Status is the HTTP status code, if applicable.
	Status int

	// Code is the provider-specific error code.
	Code string

	// Message is the human-readable error message.
	Message string

	// RequestID is the provider's request ID for debugging.
	RequestID string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", e.Reason)

	if e.Provider != "" {
		b.WriteString(" " + e.Provider)
	}
	if e.Model != "" {
		fmt.Fprintf(&b, " model=%s", e.Model)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " status=%d", e.Status)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, " code=%s", e.Code)
	}
	switch {
	case e.Message != "":
		b.WriteString(" " + e.Message)
	case e.Cause != nil:
		b.WriteString(" " + e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a ProviderError classified from its cause.
func NewProviderError(provider, model string, cause error) *ProviderError {
	err := &ProviderError{
		Provider: provider,
		Model:    model,
		Cause:    cause,
		Reason:   ReasonUnknown,
	}
	if cause != nil {
		err.Message = cause.Error()
		err.Reason = ClassifyError(cause)
	}
	return err
}

// WithStatus adds the HTTP status and reclassifies from it.
func (e *ProviderError) WithStatus(status int) *ProviderError {
	e.Status = status
	e.Reason = classifyStatusCode(status)
	return e
}

// WithCode adds a provider-specific error code, reclassifying when the
// code is recognized.
func (e *ProviderError) WithCode(code string) *ProviderError {
	e.Code = code
	if reason := classifyErrorCode(code); reason != ReasonUnknown {
		e.Reason = reason
	}
	return e
}

// WithRequestID adds the provider's request ID.
func (e *ProviderError) WithRequestID(id string) *ProviderError {
	e.RequestID = id
	return e
}

// WithMessage sets the error message.
func (e *ProviderError) WithMessage(msg string) *ProviderError {
	e.Message = msg
	return e
}

// textPatterns maps error text fragments to reasons, checked in order.
// First match wins, so the specific fragments sit above the catch-all
// network ones. Network failures group with server errors; both are
// transient infrastructure faults worth retrying.
var textPatterns = []struct {
	reason    Reason
	fragments []string
}{
	{ReasonTimeout, []string{"timeout", "deadline exceeded", "context deadline", "etimedout"}},
	{ReasonRateLimit, []string{"rate limit", "rate_limit", "too many requests", "429"}},
	{ReasonAuth, []string{"unauthorized", "invalid api key", "invalid_api_key", "authentication", "401", "403"}},
	{ReasonBilling, []string{"billing", "payment", "quota", "insufficient", "402"}},
	{ReasonContentFilter, []string{"content_filter", "content policy", "safety", "blocked"}},
	{ReasonModelUnavailable, []string{"model not found", "model_not_found", "does not exist", "unavailable"}},
	{ReasonServerError, []string{
		"internal server", "server error", "connection reset", "connection refused",
		"no such host", "broken pipe", "500", "502", "503", "504",
	}},
}

// codeReasons maps provider error codes to reasons.
var codeReasons = map[string]Reason{
	"rate_limit_error":         ReasonRateLimit,
	"rate_limit_exceeded":      ReasonRateLimit,
	"authentication_error":     ReasonAuth,
	"invalid_api_key":          ReasonAuth,
	"billing_error":            ReasonBilling,
	"insufficient_quota":       ReasonBilling,
	"model_not_found":          ReasonModelUnavailable,
	"model_not_available":      ReasonModelUnavailable,
	"content_policy_violation": ReasonContentFilter,
	"content_filter":           ReasonContentFilter,
	"server_error":             ReasonServerError,
	"internal_error":           ReasonServerError,
	"invalid_request_error":    ReasonInvalidRequest,
}

// ClassifyError inspects an error's text and returns the matching
// Reason. Providers wrap SDK errors whose structure varies; text
// matching is the lowest common denominator that works across all of
// them.
func ClassifyError(err error) Reason {
	if err == nil {
		return ReasonUnknown
	}

	msg := strings.ToLower(err.Error())
	for _, p := range textPatterns {
		for _, fragment := range p.fragments {
			if strings.Contains(msg, fragment) {
				return p.reason
			}
		}
	}
	return ReasonUnknown
}

func classifyStatusCode(status int) Reason {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ReasonAuth
	case http.StatusPaymentRequired:
		return ReasonBilling
	case http.StatusTooManyRequests:
		return ReasonRateLimit
	case http.StatusBadRequest:
		return ReasonInvalidRequest
	case http.StatusNotFound:
		return ReasonModelUnavailable
	}
	if status >= 500 {
		return ReasonServerError
	}
	return ReasonUnknown
}

func classifyErrorCode(code string) Reason {
	if reason, ok := codeReasons[strings.ToLower(code)]; ok {
		return reason
	}
	return ReasonUnknown
}

// IsProviderError checks if an error is a ProviderError.
func IsProviderError(err error) bool {
	var providerErr *ProviderError
	return errors.As(err, &providerErr)
}

// GetProviderError extracts a ProviderError from an error chain.
func GetProviderError(err error) (*ProviderError, bool) {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr, true
	}
	return nil, false
}

// IsRetryable checks if an error should be retried.
func IsRetryable(err error) bool {
	if providerErr, ok := GetProviderError(err); ok {
		return providerErr.Reason.IsRetryable()
	}
	return ClassifyError(err).IsRetryable()
}

// kindError wraps a classified provider failure in the engine error
// taxonomy so downstream handlers can route it by kind.
func kindError(perr *ProviderError) *models.KindError {
	return models.WrapKind(models.ErrProvider, perr, "%s call failed: %s", perr.Provider, perr.Reason)
}
