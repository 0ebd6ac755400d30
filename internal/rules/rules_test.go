package rules

import (
	"testing"

	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

func signalFacts(pairs ...string) []models.Fact {
	var out []models.Fact
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, models.NewSignal(pairs[i], pairs[i+1], 0.9))
	}
	return out
}

func TestEvaluateSalienceOrder(t *testing.T) {
	ruleset := []Rule{
		{
			Name:      "low",
			Salience:  1,
			Condition: func(fs *FactSet) bool { return fs.HasSignal("claim", "universal") },
			Action: func(b *Builder, fs *FactSet) {
				b.Add(models.Fact{Type: models.FactDerived, Name: "low-fired"})
			},
		},
		{
			Name:      "high",
			Salience:  10,
			Condition: func(fs *FactSet) bool { return fs.HasSignal("claim", "universal") },
			Action: func(b *Builder, fs *FactSet) {
				b.Add(models.Fact{Type: models.FactDerived, Name: "high-fired"})
			},
		},
	}

	_, m := New(ruleset, nil).Evaluate(signalFacts("claim", "universal"))
	if len(m.Fired) != 2 {
		t.Fatalf("fired = %v, want 2 rules", m.Fired)
	}
	if m.Fired[0] != "high" || m.Fired[1] != "low" {
		t.Errorf("firing order = %v, want [high low]", m.Fired)
	}
}

func TestEvaluateChaining(t *testing.T) {
	ruleset := []Rule{
		{
			Name:      "derive",
			Salience:  5,
			Condition: func(fs *FactSet) bool { return fs.HasSignal("support", "none") },
			Action: func(b *Builder, fs *FactSet) {
				b.Add(models.Fact{Type: models.FactDerived, Name: "unsupported-claim"})
			},
		},
		{
			Name: "react",
			Condition: func(fs *FactSet) bool {
				for _, f := range fs.All(models.FactDerived) {
					if f.Name == "unsupported-claim" {
						return true
					}
				}
				return false
			},
			Action: func(b *Builder, fs *FactSet) {
				b.Add(models.Fact{Type: models.FactRoleSelection, Role: "critic"})
			},
		},
	}

	facts, m := New(ruleset, nil).Evaluate(signalFacts("support", "none"))
	if m.LoopDetected {
		t.Fatal("unexpected loop detection")
	}
	roles := facts.All(models.FactRoleSelection)
	if len(roles) != 1 || roles[0].Role != "critic" {
		t.Errorf("role selections = %+v, want one critic", roles)
	}
	// Input signal survives into the grouped result.
	if len(facts.All(models.FactSignal)) != 1 {
		t.Errorf("signal count = %d, want 1", len(facts.All(models.FactSignal)))
	}
}

func TestEvaluateProvenance(t *testing.T) {
	ruleset := []Rule{
		{
			Name:      "tagger",
			Condition: func(fs *FactSet) bool { return fs.Len() > 0 },
			Action: func(b *Builder, fs *FactSet) {
				b.Add(models.Fact{Type: models.FactDerived, Name: "plain"})
				b.Add(models.Fact{
					Type:       models.FactDerived,
					Name:       "custom",
					Provenance: &models.Provenance{Tier: "regex", Producer: "classifier"},
				})
			},
		},
	}

	facts, _ := New(ruleset, nil).Evaluate(signalFacts("contract", "ack-only"))
	derived := facts.All(models.FactDerived)
	if len(derived) != 2 {
		t.Fatalf("derived facts = %d, want 2", len(derived))
	}

	plain := derived[0]
	if plain.Provenance == nil || plain.Provenance.Source != "rule" || plain.Provenance.Producer != "tagger" {
		t.Errorf("plain provenance = %+v, want source=rule producer=tagger", plain.Provenance)
	}

	custom := derived[1]
	if custom.Provenance.Producer != "classifier" {
		t.Errorf("custom producer overwritten: %+v", custom.Provenance)
	}
	if custom.Provenance.Source != "rule" {
		t.Errorf("custom source = %q, want rule", custom.Provenance.Source)
	}
	if custom.Provenance.Tier != "regex" {
		t.Errorf("custom tier = %q, want regex", custom.Provenance.Tier)
	}
}

func TestEvaluateLoopDetection(t *testing.T) {
	// Two rules that keep feeding each other new facts never quiesce.
	ruleset := []Rule{
		{
			Name:      "ping",
			Condition: func(fs *FactSet) bool { return true },
			Action: func(b *Builder, fs *FactSet) {
				b.Add(models.Fact{Type: models.FactDerived, Name: "ping"})
			},
		},
		{
			Name:      "pong",
			Condition: func(fs *FactSet) bool { return true },
			Action: func(b *Builder, fs *FactSet) {
				b.Add(models.Fact{Type: models.FactDerived, Name: "pong"})
			},
		},
	}

	facts, m := New(ruleset, nil).Evaluate(signalFacts("temporal", "no-date"))
	if !m.LoopDetected {
		t.Fatal("expected loop detection")
	}
	if m.Iterations != MaxIterations {
		t.Errorf("iterations = %d, want %d", m.Iterations, MaxIterations)
	}
	// Facts accumulated before the cap are preserved.
	if facts.Count() < MaxIterations {
		t.Errorf("fact count = %d, want >= %d", facts.Count(), MaxIterations)
	}
}

func TestEvaluateActionPanic(t *testing.T) {
	ruleset := []Rule{
		{
			Name:      "bad",
			Salience:  10,
			Condition: func(fs *FactSet) bool { return true },
			Action: func(b *Builder, fs *FactSet) {
				b.Add(models.Fact{Type: models.FactDerived, Name: "partial"})
				panic("exploded")
			},
		},
		{
			Name:      "good",
			Condition: func(fs *FactSet) bool { return true },
			Action: func(b *Builder, fs *FactSet) {
				b.Add(models.Fact{Type: models.FactRoleSelection, Role: "assistant"})
			},
		},
	}

	facts, m := New(ruleset, nil).Evaluate(nil)
	if len(m.Errors) != 1 || m.Errors[0].Rule != "bad" {
		t.Fatalf("errors = %v, want one for rule bad", m.Errors)
	}
	// Facts asserted before the panic survive, and later rules still run.
	if len(facts.All(models.FactDerived)) != 1 {
		t.Errorf("derived = %+v, want the partial fact kept", facts.All(models.FactDerived))
	}
	if len(facts.All(models.FactRoleSelection)) == 0 {
		t.Error("good rule did not fire after bad rule panicked")
	}
}

func TestEvaluateConditionPanic(t *testing.T) {
	ruleset := []Rule{
		{
			Name:      "broken-guard",
			Condition: func(fs *FactSet) bool { panic("nil deref") },
		},
		{
			Name:      "steady",
			Condition: func(fs *FactSet) bool { return fs.HasSignal("calibration", "hedged") },
			Action: func(b *Builder, fs *FactSet) {
				b.Add(models.Fact{Type: models.FactDerived, Name: "steady"})
			},
		},
	}

	facts, m := New(ruleset, nil).Evaluate(signalFacts("calibration", "hedged"))
	if len(m.Errors) != 1 || m.Errors[0].Rule != "broken-guard" {
		t.Fatalf("errors = %v, want one for broken-guard", m.Errors)
	}
	if len(facts.All(models.FactDerived)) != 1 {
		t.Error("steady rule should fire despite broken guard")
	}
}

func TestFactSetQueries(t *testing.T) {
	fs := NewFactSet(
		models.NewSignal("claim", "universal", 0.6),
		models.NewSignal("claim", "universal", 0.85),
		models.NewConfig("provider.name", "anthropic"),
		models.NewToolAvailability([]string{"read_file", "list_dir"}),
	)

	if got := fs.SignalConfidence("claim", "universal"); got != 0.85 {
		t.Errorf("SignalConfidence = %v, want max 0.85", got)
	}
	if fs.SignalConfidence("claim", "forecast") != 0 {
		t.Error("absent signal should report zero confidence")
	}
	if v, ok := fs.Config("provider.name"); !ok || v != "anthropic" {
		t.Errorf("Config(provider.name) = %v %v", v, ok)
	}
	if got := fs.ToolsAvailable(); len(got) != 2 {
		t.Errorf("ToolsAvailable = %v, want 2 names", got)
	}
	if got := len(fs.Dimension("claim")); got != 2 {
		t.Errorf("Dimension(claim) = %d facts, want 2", got)
	}
	last, ok := fs.Last(models.FactSignal)
	if !ok || last.Conf() != 0.85 {
		t.Errorf("Last signal = %+v, want the 0.85 entry", last)
	}
}
