package providers

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/machellerogden/thinksuit-sub000/internal/config"
	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

func TestFromConfig(t *testing.T) {
	cfg := &config.Config{
		Provider: "anthropic",
		Model:    "claude-sonnet-4-20250514",
		Providers: map[string]config.ProviderConfig{
			"anthropic": {APIKey: "test-key"},
			"openai":    {APIKey: "test-key"},
		},
		RateLimit: config.RateLimitConfig{RequestsPerMinute: 60, Burst: 5},
	}

	p, err := FromConfig(context.Background(), cfg, slog.Default())
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if p.Name() != "anthropic" {
		t.Errorf("expected anthropic, got %q", p.Name())
	}
	if p.Paradigm() != ParadigmChat {
		t.Errorf("expected chat paradigm, got %q", p.Paradigm())
	}

	cfg.Provider = "openai"
	cfg.Model = "gpt-4o"
	p, err = FromConfig(context.Background(), cfg, slog.Default())
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if p.Name() != "openai" {
		t.Errorf("expected openai, got %q", p.Name())
	}
	if p.Paradigm() != ParadigmResponses {
		t.Errorf("expected responses paradigm, got %q", p.Paradigm())
	}
}

func TestFromConfigUnknownProvider(t *testing.T) {
	cfg := &config.Config{Provider: "venice"}
	_, err := FromConfig(context.Background(), cfg, slog.Default())
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if !strings.Contains(err.Error(), "unknown provider") {
		t.Errorf("unexpected error %v", err)
	}
}

func TestFromConfigMissingKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	cfg := &config.Config{Provider: "anthropic", Model: "claude-sonnet-4-20250514"}
	_, err := FromConfig(context.Background(), cfg, slog.Default())
	if err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestParadigmContinuationReason(t *testing.T) {
	if got := ParadigmChat.ContinuationReason(); got != models.FinishToolUse {
		t.Errorf("chat continuation = %q, want %q", got, models.FinishToolUse)
	}
	if got := ParadigmResponses.ContinuationReason(); got != models.FinishToolCalls {
		t.Errorf("responses continuation = %q, want %q", got, models.FinishToolCalls)
	}
}

func TestRequestTapNilSafe(t *testing.T) {
	var r Request
	// Must not panic with no tap attached.
	r.tap(models.EventProviderRawRequest, "anthropic", "m", nil)

	var got map[string]any
	r.Tap = func(_ models.EventName, data map[string]any) { got = data }
	r.tap(models.EventProviderRawResponse, "anthropic", "m", "payload")
	if got["provider"] != "anthropic" || got["model"] != "m" || got["payload"] != "payload" {
		t.Errorf("unexpected tap data %v", got)
	}
}
