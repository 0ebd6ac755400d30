package rules

import (
	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

// FactSet is the engine's working memory: an insertion-ordered,
// append-only collection of facts with a by-type index. Conditions query
// it; actions grow it through a Builder.
type FactSet struct {
	facts  []models.Fact
	byType map[models.FactType][]int
}

// NewFactSet seeds working memory with the given facts.
func NewFactSet(facts ...models.Fact) *FactSet {
	s := &FactSet{byType: make(map[models.FactType][]int)}
	for _, f := range facts {
		s.Add(f)
	}
	return s
}

// Add appends a fact. Duplicates are allowed; aggregation upstream is
// responsible for any dedupe policy.
func (s *FactSet) Add(f models.Fact) {
	s.byType[f.Type] = append(s.byType[f.Type], len(s.facts))
	s.facts = append(s.facts, f)
}

// Len reports the total fact count.
func (s *FactSet) Len() int { return len(s.facts) }

// All returns facts of the given type in insertion order.
func (s *FactSet) All(t models.FactType) []models.Fact {
	idx := s.byType[t]
	if len(idx) == 0 {
		return nil
	}
	out := make([]models.Fact, 0, len(idx))
	for _, i := range idx {
		out = append(out, s.facts[i])
	}
	return out
}

// Last returns the most recently added fact of the given type.
func (s *FactSet) Last(t models.FactType) (models.Fact, bool) {
	idx := s.byType[t]
	if len(idx) == 0 {
		return models.Fact{}, false
	}
	return s.facts[idx[len(idx)-1]], true
}

// Count reports how many facts of the given type are present.
func (s *FactSet) Count(t models.FactType) int {
	return len(s.byType[t])
}

// Signals returns every Signal fact.
func (s *FactSet) Signals() []models.Fact {
	return s.All(models.FactSignal)
}

// HasSignal reports whether a signal with the given dimension and name
// is present.
func (s *FactSet) HasSignal(dimension, signal string) bool {
	for _, i := range s.byType[models.FactSignal] {
		f := s.facts[i]
		if f.Dimension == dimension && f.Signal == signal {
			return true
		}
	}
	return false
}

// SignalConfidence returns the highest confidence recorded for the given
// signal, or 0 when absent.
func (s *FactSet) SignalConfidence(dimension, signal string) float64 {
	best := 0.0
	for _, i := range s.byType[models.FactSignal] {
		f := s.facts[i]
		if f.Dimension == dimension && f.Signal == signal && f.Conf() > best {
			best = f.Conf()
		}
	}
	return best
}

// Any reports whether any fact of the given type satisfies pred.
func (s *FactSet) Any(t models.FactType, pred func(models.Fact) bool) bool {
	for _, i := range s.byType[t] {
		if pred(s.facts[i]) {
			return true
		}
	}
	return false
}

// HasRoleSelection reports whether the role has already been selected.
// Rules use this to stay idempotent across re-matching.
func (s *FactSet) HasRoleSelection(role string) bool {
	return s.Any(models.FactRoleSelection, func(f models.Fact) bool { return f.Role == role })
}

// Dimension returns the signals detected for one dimension.
func (s *FactSet) Dimension(dimension string) []models.Fact {
	var out []models.Fact
	for _, i := range s.byType[models.FactSignal] {
		if s.facts[i].Dimension == dimension {
			out = append(out, s.facts[i])
		}
	}
	return out
}

// Config returns the value of a dotted config path, if aggregated.
func (s *FactSet) Config(path string) (any, bool) {
	for _, i := range s.byType[models.FactConfig] {
		if s.facts[i].Path == path {
			return s.facts[i].Value, true
		}
	}
	return nil, false
}

// ToolsAvailable returns the names carried by ToolAvailability facts.
func (s *FactSet) ToolsAvailable() []string {
	var out []string
	for _, i := range s.byType[models.FactToolAvailability] {
		out = append(out, s.facts[i].Tools...)
	}
	return out
}

// Slice returns a copy of all facts in insertion order.
func (s *FactSet) Slice() []models.Fact {
	out := make([]models.Fact, len(s.facts))
	copy(out, s.facts)
	return out
}

// Map groups all facts by type, preserving insertion order within each
// type.
func (s *FactSet) Map() models.FactMap {
	m := make(models.FactMap, len(s.byType))
	for t, idx := range s.byType {
		group := make([]models.Fact, 0, len(idx))
		for _, i := range idx {
			group = append(group, s.facts[i])
		}
		m[t] = group
	}
	return m
}
