package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecording(t *testing.T) {
	m := NewTestMetrics()

	m.TurnCounter.WithLabelValues("completed").Inc()
	m.TurnCounter.WithLabelValues("completed").Inc()
	m.TurnCounter.WithLabelValues("interrupted").Inc()

	if got := testutil.ToFloat64(m.TurnCounter.WithLabelValues("completed")); got != 2 {
		t.Errorf("completed turns = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.TurnCounter.WithLabelValues("interrupted")); got != 1 {
		t.Errorf("interrupted turns = %v, want 1", got)
	}

	m.ProviderTokens.WithLabelValues("anthropic", "claude-sonnet-4-20250514", "prompt").Add(120)
	m.ProviderTokens.WithLabelValues("anthropic", "claude-sonnet-4-20250514", "completion").Add(48)
	if got := testutil.ToFloat64(m.ProviderTokens.WithLabelValues("anthropic", "claude-sonnet-4-20250514", "prompt")); got != 120 {
		t.Errorf("prompt tokens = %v, want 120", got)
	}

	m.ActiveTurns.Inc()
	m.ActiveTurns.Dec()
	if got := testutil.ToFloat64(m.ActiveTurns); got != 0 {
		t.Errorf("active turns = %v, want 0", got)
	}

	m.RuleLoopDetections.Inc()
	if got := testutil.ToFloat64(m.RuleLoopDetections); got != 1 {
		t.Errorf("loop detections = %v, want 1", got)
	}
}
