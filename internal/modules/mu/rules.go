package mu

import (
	"github.com/machellerogden/thinksuit-sub000/internal/rules"
	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

// Rule salience bands. System enforcement lives at 100; everything the
// module contributes stays below it. Plan selection runs last.
const (
	salienceContract  = 60
	salienceArc       = 55
	salienceVoice     = 50
	salienceTask      = 45
	salienceScrutiny  = 40
	salienceTemporal  = 35
	salienceHeadroom  = 30
	salienceAssembly  = 0
	salienceFallback  = -5
	salienceSelection = -10
)

func planFact(p *models.Plan, conf float64) models.Fact {
	c := conf
	return models.Fact{Type: models.FactExecutionPlan, Plan: p, Confidence: &c}
}

func roleFact(role string) models.Fact {
	return models.Fact{Type: models.FactRoleSelection, Role: role}
}

func multiplierFact(v float64) models.Fact {
	return models.Fact{Type: models.FactTokenMultiplier, Multiplier: v}
}

// proposedBy reports whether the named rule already contributed a fact
// of the given type. The engine re-matches rules whenever working
// memory grows, so every fact-adding rule guards with this.
func proposedBy(fs *rules.FactSet, t models.FactType, rule string) bool {
	return fs.Any(t, func(f models.Fact) bool {
		return f.Provenance != nil && f.Provenance.Producer == rule
	})
}

// ruleTable maps detected signals to role selections, execution plans,
// and token multipliers. Higher-salience rules place specific plans;
// mid-band rules accumulate voices; the assembly band turns voices
// into a plan; selection promotes the winner.
func ruleTable() []rules.Rule {
	return []rules.Rule{
		{
			Name:     "ack-only-response",
			Salience: salienceContract,
			Condition: func(fs *rules.FactSet) bool {
				return fs.HasSignal("contract", "ack-only") &&
					!proposedBy(fs, models.FactExecutionPlan, "ack-only-response")
			},
			Action: func(b *rules.Builder, fs *rules.FactSet) {
				b.Add(planFact(&models.Plan{Strategy: models.StrategyDirect, Role: "assistant"}, 0.9))
				b.Add(multiplierFact(0.4))
			},
		},
		{
			Name:     "capture-only-response",
			Salience: salienceContract,
			Condition: func(fs *rules.FactSet) bool {
				return fs.HasSignal("contract", "capture-only") &&
					!proposedBy(fs, models.FactExecutionPlan, "capture-only-response")
			},
			Action: func(b *rules.Builder, fs *rules.FactSet) {
				b.Add(planFact(&models.Plan{Strategy: models.StrategyDirect, Role: "assistant"}, 0.9))
				b.Add(multiplierFact(0.3))
			},
		},
		{
			Name:     "explore-analyze-arc",
			Salience: salienceArc,
			Condition: func(fs *rules.FactSet) bool {
				return fs.HasSignal("contract", "explore") &&
					fs.HasSignal("contract", "analyze") &&
					!proposedBy(fs, models.FactExecutionPlan, "explore-analyze-arc")
			},
			Action: func(b *rules.Builder, fs *rules.FactSet) {
				b.Add(planFact(&models.Plan{
					Strategy: models.StrategySequential,
					Sequence: []models.PlanStep{
						{Role: "explorer"},
						{Role: "analyzer"},
						{Role: "synthesizer"},
					},
					ResultStrategy: models.ResultLast,
				}, 0.8))
			},
		},
		{
			Name:     "explore-contract",
			Salience: salienceVoice,
			Condition: func(fs *rules.FactSet) bool {
				return fs.HasSignal("contract", "explore") &&
					!fs.HasSignal("contract", "analyze") &&
					!fs.HasRoleSelection("explorer")
			},
			Action: func(b *rules.Builder, fs *rules.FactSet) {
				b.Add(roleFact("explorer"))
			},
		},
		{
			Name:     "analyze-contract",
			Salience: salienceVoice,
			Condition: func(fs *rules.FactSet) bool {
				return fs.HasSignal("contract", "analyze") &&
					!fs.HasSignal("contract", "explore") &&
					!fs.HasRoleSelection("analyzer")
			},
			Action: func(b *rules.Builder, fs *rules.FactSet) {
				b.Add(roleFact("analyzer"))
			},
		},
		{
			Name:     "plan-request",
			Salience: salienceVoice,
			Condition: func(fs *rules.FactSet) bool {
				return fs.HasSignal("contract", "plan") &&
					!fs.HasRoleSelection("planner")
			},
			Action: func(b *rules.Builder, fs *rules.FactSet) {
				b.Add(roleFact("planner"))
			},
		},
		{
			Name:     "analysis-with-tools",
			Salience: salienceTask,
			Condition: func(fs *rules.FactSet) bool {
				return fs.HasSignal("contract", "analyze") &&
					len(fs.ToolsAvailable()) > 0 &&
					!proposedBy(fs, models.FactExecutionPlan, "analysis-with-tools")
			},
			Action: func(b *rules.Builder, fs *rules.FactSet) {
				b.Add(planFact(&models.Plan{
					Strategy: models.StrategyTask,
					Role:     "analyzer",
					Tools:    fs.ToolsAvailable(),
					Resolution: &models.Resolution{
						MaxCycles:    6,
						MaxTokens:    8000,
						MaxToolCalls: 10,
						TimeoutMs:    120000,
					},
				}, 0.85))
			},
		},
		{
			Name:     "unsupported-strong-claim",
			Salience: salienceScrutiny,
			Condition: func(fs *rules.FactSet) bool {
				strong := fs.HasSignal("claim", "universal") ||
					fs.HasSignal("claim", "high-quantifier")
				return strong && fs.HasSignal("support", "unsupported") &&
					!fs.HasRoleSelection("critic")
			},
			Action: func(b *rules.Builder, fs *rules.FactSet) {
				b.Add(roleFact("critic"))
			},
		},
		{
			Name:     "overconfident-without-support",
			Salience: salienceScrutiny,
			Condition: func(fs *rules.FactSet) bool {
				return fs.HasSignal("calibration", "high-certainty") &&
					fs.HasSignal("support", "unsupported") &&
					!fs.HasRoleSelection("critic")
			},
			Action: func(b *rules.Builder, fs *rules.FactSet) {
				b.Add(roleFact("critic"))
			},
		},
		{
			Name:     "normative-tradeoffs",
			Salience: salienceTemporal,
			Condition: func(fs *rules.FactSet) bool {
				return fs.HasSignal("claim", "normative") &&
					!proposedBy(fs, models.FactExecutionPlan, "normative-tradeoffs")
			},
			Action: func(b *rules.Builder, fs *rules.FactSet) {
				b.Add(planFact(&models.Plan{
					Strategy: models.StrategyParallel,
					Roles:    []string{"analyzer", "critic"},
				}, 0.65))
			},
		},
		{
			Name:     "undated-forecast",
			Salience: salienceTemporal,
			Condition: func(fs *rules.FactSet) bool {
				return fs.HasSignal("claim", "forecast") &&
					fs.HasSignal("temporal", "undated") &&
					!fs.HasRoleSelection("analyzer")
			},
			Action: func(b *rules.Builder, fs *rules.FactSet) {
				b.Add(roleFact("analyzer"))
			},
		},
		{
			Name:     "hedged-headroom",
			Salience: salienceHeadroom,
			Condition: func(fs *rules.FactSet) bool {
				return fs.HasSignal("calibration", "hedged") &&
					!proposedBy(fs, models.FactTokenMultiplier, "hedged-headroom")
			},
			Action: func(b *rules.Builder, fs *rules.FactSet) {
				b.Add(multiplierFact(1.25))
			},
		},
		{
			Name:     "analysis-headroom",
			Salience: salienceHeadroom,
			Condition: func(fs *rules.FactSet) bool {
				return fs.HasSignal("contract", "analyze") &&
					!proposedBy(fs, models.FactTokenMultiplier, "analysis-headroom")
			},
			Action: func(b *rules.Builder, fs *rules.FactSet) {
				b.Add(multiplierFact(1.5))
			},
		},
		{
			Name:     "voices-to-plan",
			Salience: salienceAssembly,
			Condition: func(fs *rules.FactSet) bool {
				return fs.Count(models.FactExecutionPlan) == 0 &&
					fs.Count(models.FactRoleSelection) > 0
			},
			Action: func(b *rules.Builder, fs *rules.FactSet) {
				roles := distinctRoles(fs)
				switch len(roles) {
				case 0:
					return
				case 1:
					b.Add(planFact(&models.Plan{
						Strategy: models.StrategyDirect,
						Role:     roles[0],
					}, 0.6))
				default:
					steps := make([]models.PlanStep, 0, len(roles)+1)
					for _, r := range roles {
						steps = append(steps, models.PlanStep{Role: r})
					}
					steps = append(steps, models.PlanStep{Role: "synthesizer"})
					b.Add(planFact(&models.Plan{
						Strategy:       models.StrategySequential,
						Sequence:       steps,
						ResultStrategy: models.ResultLast,
					}, 0.65))
				}
			},
		},
		{
			Name:     "default-assistant",
			Salience: salienceFallback,
			Condition: func(fs *rules.FactSet) bool {
				return fs.Count(models.FactExecutionPlan) == 0 &&
					fs.Count(models.FactRoleSelection) == 0
			},
			Action: func(b *rules.Builder, fs *rules.FactSet) {
				b.Add(roleFact("assistant"))
				b.Add(planFact(models.DefaultPlan(), 0.3))
			},
		},
		{
			Name:     "promote-selection",
			Salience: salienceSelection,
			Condition: func(fs *rules.FactSet) bool {
				return fs.Count(models.FactExecutionPlan) > 0 &&
					fs.Count(models.FactSelectedPlan) == 0
			},
			Action: func(b *rules.Builder, fs *rules.FactSet) {
				plans := fs.All(models.FactExecutionPlan)
				best := -1
				for i := range plans {
					if plans[i].PolicyBlocked {
						continue
					}
					if best < 0 || plans[i].Conf() >= plans[best].Conf() {
						best = i
					}
				}
				if best < 0 {
					return
				}
				sel := plans[best]
				sel.Type = models.FactSelectedPlan
				sel.Provenance = nil
				b.Add(sel)
			},
		},
	}
}

// distinctRoles returns the selected roles in first-selection order.
func distinctRoles(fs *rules.FactSet) []string {
	seen := map[string]bool{}
	var roles []string
	for _, f := range fs.All(models.FactRoleSelection) {
		if f.Role == "" || seen[f.Role] {
			continue
		}
		seen[f.Role] = true
		roles = append(roles, f.Role)
	}
	return roles
}
