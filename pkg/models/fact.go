package models

// FactType tags the variant of a Fact.
type FactType string

const (
	FactSignal              FactType = "Signal"
	FactRoleSelection       FactType = "RoleSelection"
	FactExecutionPlan       FactType = "ExecutionPlan"
	FactSelectedPlan        FactType = "SelectedPlan"
	FactTokenMultiplier     FactType = "TokenMultiplier"
	FactDerived             FactType = "Derived"
	FactConfig              FactType = "Config"
	FactToolAvailability    FactType = "ToolAvailability"
	FactCapability          FactType = "Capability"
	FactPolicyConstraint    FactType = "PolicyConstraint"
	FactPolicyPreference    FactType = "PolicyPreference"
	FactToolPolicyStatement FactType = "ToolPolicyStatement"
)

// Provenance records where a fact came from. Rule actions get
// {source:"rule", producer:<ruleName>} merged in without overwriting
// fields they set themselves.
type Provenance struct {
	Source   string `json:"source,omitempty"`
	Producer string `json:"producer,omitempty"`
	Tier     string `json:"tier,omitempty"`
}

// PolicyConstraint is a limit derived from user policy. Zero fields are
// unset; each generated constraint fact typically carries one limit.
type PolicyConstraint struct {
	MaxDepth           int `json:"maxDepth,omitempty"`
	MaxFanout          int `json:"maxFanout,omitempty"`
	MaxSequentialSteps int `json:"maxSequentialSteps,omitempty"`
	MaxTaskCycles      int `json:"maxTaskCycles,omitempty"`
}

// ToolPolicyStatement allows or denies tool names.
type ToolPolicyStatement struct {
	Effect string   `json:"effect"` // allow | deny
	Tools  []string `json:"tools"`
}

// Fact is the unit of communication between decision-plane stages: a tagged
// variant flattened into one struct, with only the fields for its Type set.
type Fact struct {
	Type FactType `json:"type"`

	// Signal
	Dimension  string   `json:"dimension,omitempty"`
	Signal     string   `json:"signal,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`

	// RoleSelection
	Role string `json:"role,omitempty"`

	// ExecutionPlan / SelectedPlan
	Plan           *Plan `json:"plan,omitempty"`
	PolicyBlocked  bool  `json:"policyBlocked,omitempty"`
	PolicyAdjusted bool  `json:"policyAdjusted,omitempty"`

	// TokenMultiplier
	Multiplier float64 `json:"multiplier,omitempty"`

	// Config (dotted path into the flattened engine config)
	Path  string `json:"path,omitempty"`
	Value any    `json:"value,omitempty"`

	// ToolAvailability
	Tools []string `json:"tools,omitempty"`

	// Capability
	Capability string `json:"capability,omitempty"`

	// PolicyConstraint
	Constraint *PolicyConstraint `json:"constraint,omitempty"`

	// ToolPolicyStatement
	Statement *ToolPolicyStatement `json:"statement,omitempty"`

	// Derived
	Name string         `json:"name,omitempty"`
	Data map[string]any `json:"data,omitempty"`

	Provenance *Provenance `json:"provenance,omitempty"`
}

// Conf returns the confidence value, or 0 when unset.
func (f Fact) Conf() float64 {
	if f.Confidence == nil {
		return 0
	}
	return *f.Confidence
}

// NewSignal returns a Signal fact.
func NewSignal(dimension, signal string, confidence float64) Fact {
	c := confidence
	return Fact{Type: FactSignal, Dimension: dimension, Signal: signal, Confidence: &c}
}

// NewConfig returns a Config fact for one dotted path.
func NewConfig(path string, value any) Fact {
	return Fact{Type: FactConfig, Path: path, Value: value}
}

// NewToolAvailability returns the fact listing discovered tool names.
func NewToolAvailability(tools []string) Fact {
	return Fact{Type: FactToolAvailability, Tools: tools}
}

// NewCapability returns a provider capability fact.
func NewCapability(capability string) Fact {
	return Fact{Type: FactCapability, Capability: capability}
}

// FactMap groups facts by tag preserving per-tag insertion order. Later
// evaluators prefer the last entry of a tag unless explicit selection
// criteria apply.
type FactMap map[FactType][]Fact

// Add appends a fact under its tag.
func (m FactMap) Add(f Fact) {
	m[f.Type] = append(m[f.Type], f)
}

// All returns the ordered facts of one tag.
func (m FactMap) All(t FactType) []Fact {
	return m[t]
}

// Last returns the most recent fact of a tag.
func (m FactMap) Last(t FactType) (Fact, bool) {
	facts := m[t]
	if len(facts) == 0 {
		return Fact{}, false
	}
	return facts[len(facts)-1], true
}

// LastWhere returns the most recent fact of a tag satisfying pred.
func (m FactMap) LastWhere(t FactType, pred func(Fact) bool) (Fact, bool) {
	facts := m[t]
	for i := len(facts) - 1; i >= 0; i-- {
		if pred(facts[i]) {
			return facts[i], true
		}
	}
	return Fact{}, false
}

// Count returns the total number of facts across all tags.
func (m FactMap) Count() int {
	n := 0
	for _, facts := range m {
		n += len(facts)
	}
	return n
}
