// Package policy derives decision-plane facts and enforcement from the
// user's policy configuration. Knob values become PolicyConstraint and
// ToolPolicyStatement facts as the dimensions they govern show up in
// working memory; enforcement rules outrank every module rule and
// shadow violating plans rather than retracting them, since the engine
// is strictly additive. Blocked shadows carry confidence 0 so plan
// selection passes over them; adjusted shadows keep the original
// confidence and land later in insertion order, which is what selection
// prefers on ties.
package policy

import (
	"github.com/machellerogden/thinksuit-sub000/internal/config"
	"github.com/machellerogden/thinksuit-sub000/internal/rules"
	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

// Enforcement outranks every module rule band; constraint emitters sit
// just below so limits exist by the time enforcement matches.
const (
	salienceEnforce    = 100
	salienceConstraint = 90
)

// Rules returns the policy rule set for one turn: constraint emitters
// parameterized by the given knobs, plus the system enforcement rules
// that react to the constraints. Append these to the module's rules
// before evaluation.
func Rules(p config.PolicyConfig) []rules.Rule {
	out := constraintRules(p)
	return append(out, enforcementRules()...)
}

// constraintRules emit one fact per knob, but only once the dimension a
// knob governs is actually present: depth arrives as a Config fact, the
// structural limits wait for a plan of the matching strategy, and tool
// statements wait for tool availability.
func constraintRules(p config.PolicyConfig) []rules.Rule {
	return []rules.Rule{
		{
			Name:     "policy-depth",
			Salience: salienceConstraint,
			Condition: func(fs *rules.FactSet) bool {
				if p.MaxDepth <= 0 || proposedBy(fs, models.FactPolicyConstraint, "policy-depth") {
					return false
				}
				_, ok := currentDepth(fs)
				return ok
			},
			Action: func(b *rules.Builder, fs *rules.FactSet) {
				b.Add(constraintFact(models.PolicyConstraint{MaxDepth: p.MaxDepth}))
			},
		},
		{
			Name:     "policy-fanout",
			Salience: salienceConstraint,
			Condition: func(fs *rules.FactSet) bool {
				return p.MaxFanout > 0 &&
					!proposedBy(fs, models.FactPolicyConstraint, "policy-fanout") &&
					anyPlan(fs, models.StrategyParallel)
			},
			Action: func(b *rules.Builder, fs *rules.FactSet) {
				b.Add(constraintFact(models.PolicyConstraint{MaxFanout: p.MaxFanout}))
			},
		},
		{
			Name:     "policy-sequence",
			Salience: salienceConstraint,
			Condition: func(fs *rules.FactSet) bool {
				return p.MaxSequentialSteps > 0 &&
					!proposedBy(fs, models.FactPolicyConstraint, "policy-sequence") &&
					anyPlan(fs, models.StrategySequential)
			},
			Action: func(b *rules.Builder, fs *rules.FactSet) {
				b.Add(constraintFact(models.PolicyConstraint{MaxSequentialSteps: p.MaxSequentialSteps}))
			},
		},
		{
			Name:     "policy-task-cycles",
			Salience: salienceConstraint,
			Condition: func(fs *rules.FactSet) bool {
				return p.MaxTaskCycles > 0 &&
					!proposedBy(fs, models.FactPolicyConstraint, "policy-task-cycles") &&
					anyPlan(fs, models.StrategyTask)
			},
			Action: func(b *rules.Builder, fs *rules.FactSet) {
				b.Add(constraintFact(models.PolicyConstraint{MaxTaskCycles: p.MaxTaskCycles}))
			},
		},
		{
			Name:     "policy-allow-tools",
			Salience: salienceConstraint,
			Condition: func(fs *rules.FactSet) bool {
				return len(p.AllowedTools) > 0 &&
					fs.Count(models.FactToolAvailability) > 0 &&
					!proposedBy(fs, models.FactToolPolicyStatement, "policy-allow-tools")
			},
			Action: func(b *rules.Builder, fs *rules.FactSet) {
				b.Add(statementFact("allow", p.AllowedTools))
			},
		},
		{
			Name:     "policy-deny-tools",
			Salience: salienceConstraint,
			Condition: func(fs *rules.FactSet) bool {
				return len(p.DeniedTools) > 0 &&
					fs.Count(models.FactToolAvailability) > 0 &&
					!proposedBy(fs, models.FactToolPolicyStatement, "policy-deny-tools")
			},
			Action: func(b *rules.Builder, fs *rules.FactSet) {
				b.Add(statementFact("deny", p.DeniedTools))
			},
		},
	}
}

// enforcementRules shadow violating plans. Depth, fanout, and sequence
// breaches get blocked shadows; the hard failure is raised later by the
// policy check stage, so these exist for selection and the trace. Task
// cycle overruns are soft: the capped copy replaces the original at
// selection time.
func enforcementRules() []rules.Rule {
	return []rules.Rule{
		{
			Name:     "enforce-depth",
			Salience: salienceEnforce,
			Condition: func(fs *rules.FactSet) bool {
				limit := constraintLimit(fs, func(c models.PolicyConstraint) int { return c.MaxDepth })
				if limit == 0 || proposedBy(fs, models.FactExecutionPlan, "enforce-depth") {
					return false
				}
				depth, ok := currentDepth(fs)
				return ok && depth >= limit && fs.Any(models.FactExecutionPlan, recursesDeeper)
			},
			Action: func(b *rules.Builder, fs *rules.FactSet) {
				for _, f := range fs.All(models.FactExecutionPlan) {
					if recursesDeeper(f) {
						b.Add(blockedShadow(f))
					}
				}
			},
		},
		{
			Name:     "enforce-fanout",
			Salience: salienceEnforce,
			Condition: func(fs *rules.FactSet) bool {
				limit := constraintLimit(fs, func(c models.PolicyConstraint) int { return c.MaxFanout })
				if limit == 0 || proposedBy(fs, models.FactExecutionPlan, "enforce-fanout") {
					return false
				}
				return fs.Any(models.FactExecutionPlan, overFanout(limit))
			},
			Action: func(b *rules.Builder, fs *rules.FactSet) {
				limit := constraintLimit(fs, func(c models.PolicyConstraint) int { return c.MaxFanout })
				for _, f := range fs.All(models.FactExecutionPlan) {
					if overFanout(limit)(f) {
						b.Add(blockedShadow(f))
					}
				}
			},
		},
		{
			Name:     "enforce-sequence-length",
			Salience: salienceEnforce,
			Condition: func(fs *rules.FactSet) bool {
				limit := constraintLimit(fs, func(c models.PolicyConstraint) int { return c.MaxSequentialSteps })
				if limit == 0 || proposedBy(fs, models.FactExecutionPlan, "enforce-sequence-length") {
					return false
				}
				return fs.Any(models.FactExecutionPlan, overSequence(limit))
			},
			Action: func(b *rules.Builder, fs *rules.FactSet) {
				limit := constraintLimit(fs, func(c models.PolicyConstraint) int { return c.MaxSequentialSteps })
				for _, f := range fs.All(models.FactExecutionPlan) {
					if overSequence(limit)(f) {
						b.Add(blockedShadow(f))
					}
				}
			},
		},
		{
			Name:     "enforce-task-cycles",
			Salience: salienceEnforce,
			Condition: func(fs *rules.FactSet) bool {
				limit := constraintLimit(fs, func(c models.PolicyConstraint) int { return c.MaxTaskCycles })
				if limit == 0 || proposedBy(fs, models.FactExecutionPlan, "enforce-task-cycles") {
					return false
				}
				return fs.Any(models.FactExecutionPlan, overCycles(limit))
			},
			Action: func(b *rules.Builder, fs *rules.FactSet) {
				limit := constraintLimit(fs, func(c models.PolicyConstraint) int { return c.MaxTaskCycles })
				for _, f := range fs.All(models.FactExecutionPlan) {
					if overCycles(limit)(f) {
						b.Add(cappedShadow(f, limit))
					}
				}
			},
		},
	}
}

func constraintFact(c models.PolicyConstraint) models.Fact {
	return models.Fact{Type: models.FactPolicyConstraint, Constraint: &c}
}

func statementFact(effect string, tools []string) models.Fact {
	return models.Fact{
		Type:      models.FactToolPolicyStatement,
		Statement: &models.ToolPolicyStatement{Effect: effect, Tools: tools},
	}
}

// blockedShadow marks a plan breach. Blocked plans must carry zero
// confidence so selection never promotes them.
func blockedShadow(f models.Fact) models.Fact {
	zero := 0.0
	f.Confidence = &zero
	f.PolicyBlocked = true
	f.Provenance = nil
	return f
}

// cappedShadow copies a task plan with its cycle budget reduced to the
// limit. Confidence is preserved; insertion order lets the copy win the
// tie against its original.
func cappedShadow(f models.Fact, limit int) models.Fact {
	plan := *f.Plan
	res := *plan.Resolution
	res.MaxCycles = limit
	plan.Resolution = &res
	f.Plan = &plan
	f.PolicyAdjusted = true
	f.Provenance = nil
	if f.Confidence != nil {
		c := *f.Confidence
		f.Confidence = &c
	}
	return f
}

// anyPlan reports whether working memory holds an unblocked plan of the
// given strategy.
func anyPlan(fs *rules.FactSet, strategy models.Strategy) bool {
	return fs.Any(models.FactExecutionPlan, func(f models.Fact) bool {
		return f.Plan != nil && !f.PolicyBlocked && f.Plan.Strategy == strategy
	})
}

func recursesDeeper(f models.Fact) bool {
	if f.Plan == nil || f.PolicyBlocked {
		return false
	}
	switch f.Plan.Strategy {
	case models.StrategySequential, models.StrategyParallel, models.StrategyTask:
		return true
	}
	return false
}

func overFanout(limit int) func(models.Fact) bool {
	return func(f models.Fact) bool {
		return f.Plan != nil && !f.PolicyBlocked &&
			f.Plan.Strategy == models.StrategyParallel &&
			len(f.Plan.Roles) > limit
	}
}

func overSequence(limit int) func(models.Fact) bool {
	return func(f models.Fact) bool {
		return f.Plan != nil && !f.PolicyBlocked &&
			f.Plan.Strategy == models.StrategySequential &&
			len(f.Plan.Sequence) > limit
	}
}

func overCycles(limit int) func(models.Fact) bool {
	return func(f models.Fact) bool {
		return f.Plan != nil && !f.PolicyBlocked && !f.PolicyAdjusted &&
			f.Plan.Strategy == models.StrategyTask &&
			f.Plan.Resolution != nil &&
			f.Plan.Resolution.MaxCycles > limit
	}
}

// currentDepth reads the cycle depth the aggregation stage records as a
// Config fact. Values may arrive as float64 after a JSON round trip.
func currentDepth(fs *rules.FactSet) (int, bool) {
	v, ok := fs.Config("depth")
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// constraintLimit returns the tightest positive limit asserted for one
// field across all constraint facts, or 0 when none apply.
func constraintLimit(fs *rules.FactSet, field func(models.PolicyConstraint) int) int {
	limit := 0
	for _, f := range fs.All(models.FactPolicyConstraint) {
		if f.Constraint == nil {
			continue
		}
		if v := field(*f.Constraint); v > 0 && (limit == 0 || v < limit) {
			limit = v
		}
	}
	return limit
}

// proposedBy reports whether the named rule already contributed a fact
// of the given type, which keeps rules idempotent as working memory
// grows.
func proposedBy(fs *rules.FactSet, t models.FactType, rule string) bool {
	return fs.Any(t, func(f models.Fact) bool {
		return f.Provenance != nil && f.Provenance.Producer == rule
	})
}
