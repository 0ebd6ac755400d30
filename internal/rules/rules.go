// Package rules implements a small forward-chaining production system.
// Rules match against an accumulating set of facts and fire actions that
// may assert new facts, which immediately re-enter matching. Evaluation
// is deterministic: rules are considered in descending salience order
// (insertion order breaking ties) and a rule re-fires only after the
// fact set has grown since its last activation.
package rules

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

// MaxIterations bounds a single evaluation. Past this many activations
// the engine stops and reports LoopDetected instead of spinning.
const MaxIterations = 32

// Condition reports whether a rule should fire against the current facts.
type Condition func(*FactSet) bool

// Action asserts new facts through the builder. Actions must not retract
// facts; the engine is strictly additive.
type Action func(*Builder, *FactSet)

// Rule pairs a condition with an action. Higher salience fires first.
type Rule struct {
	Name      string
	Salience  int
	Condition Condition
	Action    Action
}

// Metrics describes one evaluation run.
type Metrics struct {
	Iterations   int
	Duration     time.Duration
	LoopDetected bool
	Fired        []string
	Errors       []RuleError
}

// RuleError records a condition or action failure for a single rule.
// These do not abort evaluation; facts accumulated so far are kept.
type RuleError struct {
	Rule string
	Err  error
}

func (e RuleError) Error() string {
	return fmt.Sprintf("rule %s: %v", e.Rule, e.Err)
}

// Builder is handed to actions so asserted facts carry provenance.
// Provenance fields already set by the action are preserved; only the
// source and producer are filled in.
type Builder struct {
	rule  string
	facts *FactSet
	count int
}

// Add asserts a fact into working memory.
func (b *Builder) Add(f models.Fact) {
	if f.Provenance == nil {
		f.Provenance = &models.Provenance{}
	} else {
		p := *f.Provenance
		f.Provenance = &p
	}
	if f.Provenance.Source == "" {
		f.Provenance.Source = "rule"
	}
	if f.Provenance.Producer == "" {
		f.Provenance.Producer = b.rule
	}
	b.facts.Add(f)
	b.count++
}

// Engine evaluates a fixed rule set. Engines are cheap and stateless
// between runs; working memory lives in the FactSet passed to Evaluate.
type Engine struct {
	rules  []Rule
	logger *slog.Logger
}

// New orders rules by salience (stable, so equal salience keeps
// declaration order) and returns an engine over them.
func New(ruleset []Rule, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	ordered := make([]Rule, len(ruleset))
	copy(ordered, ruleset)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Salience > ordered[j].Salience
	})
	return &Engine{rules: ordered, logger: logger}
}

// Evaluate runs the rules to quiescence over the input facts and returns
// all facts, input included, grouped by type. A rule's condition or
// action panicking is caught, recorded in metrics, and evaluation
// continues with the remaining rules.
func (e *Engine) Evaluate(input []models.Fact) (models.FactMap, Metrics) {
	start := time.Now()
	facts := NewFactSet(input...)

	// lastFired[i] holds the fact count at rule i's most recent
	// activation; a rule is eligible again only once the set grows.
	lastFired := make([]int, len(e.rules))
	for i := range lastFired {
		lastFired[i] = -1
	}

	var m Metrics
	for m.Iterations < MaxIterations {
		fired := false
		for i := range e.rules {
			rule := &e.rules[i]
			if lastFired[i] == facts.Len() {
				continue
			}
			matched, err := e.match(rule, facts)
			if err != nil {
				m.Errors = append(m.Errors, RuleError{Rule: rule.Name, Err: err})
				lastFired[i] = facts.Len()
				continue
			}
			if !matched {
				continue
			}
			lastFired[i] = facts.Len()
			if err := e.fire(rule, facts); err != nil {
				m.Errors = append(m.Errors, RuleError{Rule: rule.Name, Err: err})
			}
			m.Fired = append(m.Fired, rule.Name)
			m.Iterations++
			fired = true
			break
		}
		if !fired {
			break
		}
	}
	if m.Iterations >= MaxIterations {
		m.LoopDetected = true
		e.logger.Warn("rule evaluation hit iteration cap",
			"iterations", m.Iterations,
			"facts", facts.Len())
	}
	m.Duration = time.Since(start)
	return facts.Map(), m
}

func (e *Engine) match(rule *Rule, facts *FactSet) (matched bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			matched = false
			err = fmt.Errorf("condition panicked: %v", r)
		}
	}()
	if rule.Condition == nil {
		return false, nil
	}
	return rule.Condition(facts), nil
}

func (e *Engine) fire(rule *Rule, facts *FactSet) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panicked: %v", r)
		}
	}()
	if rule.Action == nil {
		return nil
	}
	b := &Builder{rule: rule.Name, facts: facts}
	rule.Action(b, facts)
	e.logger.Debug("rule fired", "rule", rule.Name, "added", b.count)
	return nil
}
