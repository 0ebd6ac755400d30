package tokens

import (
	"strings"
	"testing"

	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

func TestEstimate(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abc", 0},
		{"abcd", 1},
		{strings.Repeat("x", 400), 100},
	}
	for _, tt := range tests {
		if got := Estimate(tt.text); got != tt.want {
			t.Errorf("Estimate(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestCounterNilSafe(t *testing.T) {
	var c *Counter
	if got := c.Count("abcdefgh"); got != 2 {
		t.Errorf("nil counter Count = %d, want estimation 2", got)
	}
	if c.Model() != "" {
		t.Errorf("nil counter Model = %q, want empty", c.Model())
	}
}

func TestCounterDegradesToEstimation(t *testing.T) {
	c := &Counter{model: "unknown-model"}
	if got := c.Count(strings.Repeat("a", 40)); got != 10 {
		t.Errorf("Count = %d, want estimation 10", got)
	}
	if c.Model() != "unknown-model" {
		t.Errorf("Model = %q", c.Model())
	}
}

func TestNewCounterNeverNil(t *testing.T) {
	// Exact counts depend on whether the encoding loads; only shape is
	// asserted here.
	c := NewCounter("gpt-4o")
	if c == nil {
		t.Fatal("NewCounter returned nil")
	}
	if c.Model() != "gpt-4o" {
		t.Errorf("Model = %q, want gpt-4o", c.Model())
	}
	if c.Count("") != 0 {
		t.Errorf("Count of empty string should be 0")
	}
	if c.Count("hello world, this is a longer sentence") == 0 {
		t.Error("Count of non-empty text should be positive")
	}
}

func TestCountThread(t *testing.T) {
	c := &Counter{} // estimation mode for deterministic counts

	thread := models.Thread{
		models.UserMessage("lookup the forecast"),
		{Role: models.RoleFunctionCall, Name: "get_weather", CallID: "c1", Arguments: []byte(`{"city":"London"}`)},
		{Role: models.RoleFunctionCallOutput, CallID: "c1", Output: "Sunny and 22 degrees"},
	}

	got := c.CountThread(thread)

	// 3 priming + 3 per message, plus role/content/name/arguments/output
	// at four chars per token.
	want := 3 +
		(3 + 1 + 4) + // user role, content 19 chars
		(3 + 3 + 2 + 4) + // function_call role 13, name 11, args 17
		(3 + 5 + 5) // function_call_output role 20, output 20
	if got != want {
		t.Errorf("CountThread = %d, want %d", got, want)
	}

	if c.CountThread(nil) != 3 {
		t.Errorf("empty thread should cost only reply priming")
	}
}

func TestFallbackEncoding(t *testing.T) {
	tests := []struct {
		model string
		want  string
	}{
		{"gpt-4o", "o200k_base"},
		{"gpt-4o-mini", "o200k_base"},
		{"o1", "o200k_base"},
		{"gpt-4", "cl100k_base"},
		{"claude-sonnet-4-20250514", "cl100k_base"},
		{"gemini-2.0-flash", "cl100k_base"},
	}
	for _, tt := range tests {
		if got := fallbackEncoding(tt.model); got != tt.want {
			t.Errorf("fallbackEncoding(%q) = %q, want %q", tt.model, got, tt.want)
		}
	}
}
