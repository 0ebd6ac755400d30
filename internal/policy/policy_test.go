package policy

import (
	"testing"

	"github.com/machellerogden/thinksuit-sub000/internal/config"
	"github.com/machellerogden/thinksuit-sub000/internal/rules"
	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

func evaluate(t *testing.T, p config.PolicyConfig, input ...models.Fact) (models.FactMap, rules.Metrics) {
	t.Helper()
	factMap, metrics := rules.New(Rules(p), nil).Evaluate(input)
	if metrics.LoopDetected {
		t.Fatalf("policy evaluation looped: fired %v", metrics.Fired)
	}
	if len(metrics.Errors) != 0 {
		t.Fatalf("rule errors: %v", metrics.Errors)
	}
	return factMap, metrics
}

func planFact(p *models.Plan, conf float64) models.Fact {
	c := conf
	return models.Fact{Type: models.FactExecutionPlan, Plan: p, Confidence: &c}
}

func TestConstraintsFollowPresentDimensions(t *testing.T) {
	p := config.PolicyConfig{MaxDepth: 5, MaxFanout: 3, MaxSequentialSteps: 5, MaxTaskCycles: 8}

	factMap, _ := evaluate(t, p,
		models.NewConfig("depth", 2),
		planFact(&models.Plan{Strategy: models.StrategyParallel, Roles: []string{"analyzer", "critic"}}, 0.65),
	)

	constraints := factMap.All(models.FactPolicyConstraint)
	if len(constraints) != 2 {
		t.Fatalf("constraints = %+v, want depth and fanout only", constraints)
	}
	var sawDepth, sawFanout bool
	for _, f := range constraints {
		if f.Constraint == nil {
			t.Fatalf("constraint fact missing payload: %+v", f)
		}
		if f.Constraint.MaxDepth == 5 {
			sawDepth = true
		}
		if f.Constraint.MaxFanout == 3 {
			sawFanout = true
		}
		if f.Constraint.MaxSequentialSteps != 0 || f.Constraint.MaxTaskCycles != 0 {
			t.Errorf("constraint for absent dimension: %+v", f.Constraint)
		}
	}
	if !sawDepth || !sawFanout {
		t.Errorf("sawDepth=%v sawFanout=%v, want both", sawDepth, sawFanout)
	}
}

func TestZeroKnobsEmitNothing(t *testing.T) {
	factMap, metrics := evaluate(t, config.PolicyConfig{},
		models.NewConfig("depth", 4),
		planFact(&models.Plan{Strategy: models.StrategyParallel, Roles: []string{"a", "b", "c", "d", "e"}}, 0.65),
	)

	if metrics.Iterations != 0 {
		t.Errorf("iterations = %d, want 0", metrics.Iterations)
	}
	if n := factMap.Count(); n != 2 {
		t.Errorf("fact count = %d, want the 2 inputs untouched", n)
	}
}

func TestFanoutBreachEmitsBlockedShadow(t *testing.T) {
	p := config.PolicyConfig{MaxFanout: 3}
	wide := &models.Plan{
		Strategy: models.StrategyParallel,
		Roles:    []string{"explorer", "analyzer", "critic", "planner", "synthesizer"},
	}

	factMap, _ := evaluate(t, p, planFact(wide, 0.65))

	plans := factMap.All(models.FactExecutionPlan)
	if len(plans) != 2 {
		t.Fatalf("plans = %+v, want original plus shadow", plans)
	}
	if plans[0].PolicyBlocked {
		t.Error("original plan was mutated")
	}
	shadow := plans[1]
	if !shadow.PolicyBlocked {
		t.Fatalf("shadow = %+v, want policyBlocked", shadow)
	}
	if shadow.Conf() != 0 {
		t.Errorf("blocked shadow confidence = %v, want 0", shadow.Conf())
	}
	if shadow.Provenance == nil || shadow.Provenance.Producer != "enforce-fanout" {
		t.Errorf("shadow provenance = %+v, want enforce-fanout", shadow.Provenance)
	}
}

func TestSequenceBreachEmitsBlockedShadow(t *testing.T) {
	p := config.PolicyConfig{MaxSequentialSteps: 5}
	steps := make([]models.PlanStep, 7)
	for i := range steps {
		steps[i] = models.PlanStep{Role: "analyzer"}
	}

	factMap, _ := evaluate(t, p,
		planFact(&models.Plan{Strategy: models.StrategySequential, Sequence: steps}, 0.8))

	plans := factMap.All(models.FactExecutionPlan)
	if len(plans) != 2 || !plans[1].PolicyBlocked || plans[1].Conf() != 0 {
		t.Fatalf("plans = %+v, want blocked shadow appended", plans)
	}
}

func TestDepthLimitBlocksRecursivePlansOnly(t *testing.T) {
	p := config.PolicyConfig{MaxDepth: 5}

	factMap, _ := evaluate(t, p,
		models.NewConfig("depth", 5),
		planFact(&models.Plan{
			Strategy: models.StrategySequential,
			Sequence: []models.PlanStep{{Role: "explorer"}, {Role: "synthesizer"}},
		}, 0.8),
		planFact(&models.Plan{Strategy: models.StrategyDirect, Role: "assistant"}, 0.3),
	)

	var blocked []models.Fact
	for _, f := range factMap.All(models.FactExecutionPlan) {
		if f.PolicyBlocked {
			blocked = append(blocked, f)
		}
	}
	if len(blocked) != 1 {
		t.Fatalf("blocked = %+v, want exactly the sequential plan", blocked)
	}
	if blocked[0].Plan.Strategy != models.StrategySequential {
		t.Errorf("blocked strategy = %s, want sequential", blocked[0].Plan.Strategy)
	}
}

func TestDepthBelowLimitBlocksNothing(t *testing.T) {
	p := config.PolicyConfig{MaxDepth: 5}

	factMap, _ := evaluate(t, p,
		models.NewConfig("depth", 2),
		planFact(&models.Plan{Strategy: models.StrategyTask, Role: "analyzer",
			Resolution: &models.Resolution{MaxCycles: 4}}, 0.85),
	)

	for _, f := range factMap.All(models.FactExecutionPlan) {
		if f.PolicyBlocked {
			t.Errorf("plan blocked below the depth limit: %+v", f)
		}
	}
}

func TestTaskCycleOverrunIsCappedNotBlocked(t *testing.T) {
	p := config.PolicyConfig{MaxTaskCycles: 8}
	greedy := &models.Plan{
		Strategy:   models.StrategyTask,
		Role:       "analyzer",
		Tools:      []string{"read_file"},
		Resolution: &models.Resolution{MaxCycles: 12, MaxTokens: 8000},
	}

	factMap, _ := evaluate(t, p, planFact(greedy, 0.85))

	plans := factMap.All(models.FactExecutionPlan)
	if len(plans) != 2 {
		t.Fatalf("plans = %+v, want original plus capped copy", plans)
	}
	if greedy.Resolution.MaxCycles != 12 {
		t.Errorf("original plan mutated: maxCycles = %d", greedy.Resolution.MaxCycles)
	}

	// The capped copy lands last, which is what selection prefers on a
	// confidence tie.
	capped := plans[1]
	if !capped.PolicyAdjusted || capped.PolicyBlocked {
		t.Fatalf("capped = %+v, want policyAdjusted only", capped)
	}
	if capped.Plan.Resolution.MaxCycles != 8 {
		t.Errorf("capped maxCycles = %d, want 8", capped.Plan.Resolution.MaxCycles)
	}
	if capped.Plan.Resolution.MaxTokens != 8000 {
		t.Errorf("capped copy dropped maxTokens: %+v", capped.Plan.Resolution)
	}
	if capped.Conf() != 0.85 {
		t.Errorf("capped confidence = %v, want original 0.85", capped.Conf())
	}
}

func TestTaskCyclesWithinBudgetUntouched(t *testing.T) {
	p := config.PolicyConfig{MaxTaskCycles: 8}

	factMap, _ := evaluate(t, p,
		planFact(&models.Plan{Strategy: models.StrategyTask, Role: "analyzer",
			Resolution: &models.Resolution{MaxCycles: 6}}, 0.85))

	if n := len(factMap.All(models.FactExecutionPlan)); n != 1 {
		t.Errorf("plans = %d, want just the original", n)
	}
}

func TestToolStatementsWaitForAvailability(t *testing.T) {
	p := config.PolicyConfig{
		AllowedTools: []string{"read_*", "web_search"},
		DeniedTools:  []string{"shell"},
	}

	// No ToolAvailability fact, no statements.
	factMap, _ := evaluate(t, p, models.NewConfig("depth", 0))
	if n := factMap.Count(); n != 1 {
		t.Fatalf("facts without availability = %d, want input only", n)
	}

	factMap, _ = evaluate(t, p,
		models.NewToolAvailability([]string{"read_file", "web_search", "shell"}))

	statements := factMap.All(models.FactToolPolicyStatement)
	if len(statements) != 2 {
		t.Fatalf("statements = %+v, want allow and deny", statements)
	}
	byEffect := map[string][]string{}
	for _, f := range statements {
		if f.Statement == nil {
			t.Fatalf("statement fact missing payload: %+v", f)
		}
		byEffect[f.Statement.Effect] = f.Statement.Tools
	}
	if got := byEffect["allow"]; len(got) != 2 || got[0] != "read_*" {
		t.Errorf("allow statement = %v", got)
	}
	if got := byEffect["deny"]; len(got) != 1 || got[0] != "shell" {
		t.Errorf("deny statement = %v", got)
	}
}

func TestEnforcementConvergesWellUnderIterationCap(t *testing.T) {
	p := config.PolicyConfig{MaxDepth: 5, MaxFanout: 3, MaxSequentialSteps: 5, MaxTaskCycles: 8}

	_, metrics := evaluate(t, p,
		models.NewConfig("depth", 5),
		models.NewToolAvailability([]string{"read_file"}),
		planFact(&models.Plan{Strategy: models.StrategyParallel,
			Roles: []string{"a", "b", "c", "d"}}, 0.65),
		planFact(&models.Plan{Strategy: models.StrategyTask, Role: "analyzer",
			Resolution: &models.Resolution{MaxCycles: 20}}, 0.85),
	)

	if metrics.Iterations >= rules.MaxIterations/2 {
		t.Errorf("iterations = %d, want comfortable margin under %d",
			metrics.Iterations, rules.MaxIterations)
	}
}
