package pipeline

import (
	"context"

	"github.com/machellerogden/thinksuit-sub000/internal/machine"
	"github.com/machellerogden/thinksuit-sub000/internal/policy"
	"github.com/machellerogden/thinksuit-sub000/internal/rules"
	"github.com/machellerogden/thinksuit-sub000/internal/schema"
	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

// EvaluateRules runs the module rule set plus the policy rules over the
// aggregated facts and returns the resulting fact map. Engine metrics
// are recorded; a loop detection is a warning, not a failure, because
// the engine returns whatever facts accumulated before the cap.
func EvaluateRules(ctx context.Context, in machine.Input, mc *machine.Context) (machine.Output, error) {
	ruleset := make([]rules.Rule, 0, len(mc.Module.Rules)+8)
	ruleset = append(ruleset, mc.Module.Rules...)
	ruleset = append(ruleset, policy.Rules(mc.Config.Policy)...)

	engine := rules.New(ruleset, mc.Log())
	factMap, metrics := engine.Evaluate(in.Facts)

	mc.Metrics.RuleIterations.Observe(float64(metrics.Iterations))
	if metrics.LoopDetected {
		mc.Metrics.RuleLoopDetections.Inc()
		mc.Log().Warn("rule evaluation hit iteration cap",
			"iterations", metrics.Iterations,
			"fired", len(metrics.Fired))
	}
	for _, re := range metrics.Errors {
		mc.Metrics.RuleErrors.WithLabelValues(re.Rule).Inc()
	}

	mc.Recorder.Record(models.Event{
		Event:            models.ProcessingEvent("rules", "complete"),
		SessionID:        mc.SessionID,
		TraceID:          mc.TraceID,
		ParentBoundaryID: in.ParentBoundaryID,
		Data: map[string]any{
			"iterations":   metrics.Iterations,
			"durationMs":   metrics.Duration.Milliseconds(),
			"loopDetected": metrics.LoopDetected,
			"fired":        metrics.Fired,
			"errors":       len(metrics.Errors),
			"factCount":    factMap.Count(),
		},
	})

	if err := schema.AssertValidFacts(factMap); err != nil {
		return machine.Output{}, err
	}
	return machine.Output{FactMap: factMap}, nil
}
