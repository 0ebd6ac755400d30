// Package providers adapts the Anthropic, OpenAI, and Google SDKs behind
// one completion interface. Each adapter translates the engine thread into
// provider wire format, classifies failures, and retries transient ones
// with exponential backoff behind a shared rate limiter.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/machellerogden/thinksuit-sub000/internal/config"
	"github.com/machellerogden/thinksuit-sub000/internal/ratelimit"
	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

// Paradigm names how a provider represents tool traffic in the thread.
// Chat providers consume role:"tool" result messages keyed by tool_call_id;
// responses providers consume function_call_output items keyed by call_id.
type Paradigm string

const (
	ParadigmChat      Paradigm = "chat"
	ParadigmResponses Paradigm = "responses"
)

// ContinuationReason returns the finish reason a provider of this paradigm
// reports when the model requested tool calls.
func (p Paradigm) ContinuationReason() models.FinishReason {
	if p == ParadigmResponses {
		return models.FinishToolCalls
	}
	return models.FinishToolUse
}

// ToolDef describes one tool offered to the model.
type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// TapFunc receives raw provider traffic for trace capture.
type TapFunc func(name models.EventName, data map[string]any)

// Request is one completion call.
type Request struct {
	Model       string
	System      string
	Thread      models.Thread
	MaxTokens   int
	Temperature float64
	Tools       []ToolDef
	Tap         TapFunc
}

func (r Request) tap(name models.EventName, provider, model string, payload any) {
	if r.Tap == nil {
		return
	}
	r.Tap(name, map[string]any{
		"provider": provider,
		"model":    model,
		"payload":  payload,
	})
}

// Capabilities reports what a model supports.
type Capabilities struct {
	Tools       bool `json:"tools"`
	Vision      bool `json:"vision"`
	ContextSize int  `json:"contextSize"`
}

// Provider is one configured LLM backend.
type Provider interface {
	// Name returns the provider identifier: "anthropic", "openai", "google".
	Name() string

	// Paradigm reports how tool results must be threaded for this provider.
	Paradigm() Paradigm

	// Complete issues one model call. Provider failures come back as
	// E_PROVIDER kind errors carrying a *ProviderError cause; context
	// expiry is returned untranslated so callers keep E_TIMEOUT.
	Complete(ctx context.Context, req Request) (*models.Response, error)

	// Capabilities reports what the named model supports.
	Capabilities(model string) Capabilities
}

// FromConfig builds the provider selected by cfg. All calls through the
// returned provider share one rate limiter sized from cfg.RateLimit.
func FromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Provider, error) {
	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Burst:             cfg.RateLimit.Burst,
		Enabled:           true,
	})
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropic(AnthropicConfig{
			APIKey:  cfg.APIKey(),
			BaseURL: cfg.BaseURL(),
			Model:   cfg.Model,
			Limiter: limiter,
			Logger:  logger,
		})
	case "openai":
		return NewOpenAI(OpenAIConfig{
			APIKey:  cfg.APIKey(),
			BaseURL: cfg.BaseURL(),
			Model:   cfg.Model,
			Limiter: limiter,
			Logger:  logger,
		})
	case "google":
		return NewGoogle(ctx, GoogleConfig{
			APIKey:  cfg.APIKey(),
			Model:   cfg.Model,
			Limiter: limiter,
			Logger:  logger,
		})
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
