// Package module defines the behavioral-module contract consumed by the
// decision and execution planes. A module is data plus callbacks: role
// descriptors, a prompt table, per-dimension classifiers, production
// rules, an instruction composer, and optional orchestration hooks. The
// engine treats modules as in-process values, not as a plugin boundary.
package module

import (
	"context"

	"github.com/machellerogden/thinksuit-sub000/internal/rules"
	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

// SignalHit is one detection reported by a classifier. The dimension is
// implied by the classifier's key in the module's Classifiers map.
type SignalHit struct {
	Signal     string  `json:"signal"`
	Confidence float64 `json:"confidence"`
}

// Classifier examines a thread for one dimension's signals. Classifiers
// run concurrently; a failing classifier loses its dimension for the
// turn but never fails the pipeline.
type Classifier func(ctx context.Context, thread models.Thread) ([]SignalHit, error)

// PromptContext carries the state a dynamic prompt may interpolate.
// Fields are populated by whichever stage renders the prompt; absent
// values are zero.
type PromptContext struct {
	Role            string
	Cycle           int
	MaxCycles       int
	UsedTokens      int
	RemainingTokens int
	MaxTokens       int
	ToolCallsUsed   int
	MaxToolCalls    int
	ResourceState   string // "available" or "limited"
	StepIndex       int
	StepCount       int
	PreviousOutput  string
}

// Prompt is a table entry: either static text or a function of the
// rendering context. Exactly one of the two should be set.
type Prompt struct {
	Text string
	Fn   func(PromptContext) string
}

// Render resolves the prompt against a context.
func (p Prompt) Render(pc PromptContext) string {
	if p.Fn != nil {
		return p.Fn(pc)
	}
	return p.Text
}

// Text returns a static prompt entry.
func Text(s string) Prompt { return Prompt{Text: s} }

// Dynamic returns a context-dependent prompt entry.
func Dynamic(fn func(PromptContext) string) Prompt { return Prompt{Fn: fn} }

// RolePrompts holds the fixed prompts of one role.
type RolePrompts struct {
	System  string `json:"system"`
	Primary string `json:"primary"`
}

// Role describes one voice the module can speak in.
type Role struct {
	Name string `json:"name"`

	// Default marks the role selected when rules produce nothing.
	// Exactly one role per module carries it.
	Default bool `json:"isDefault,omitempty"`

	// Temperature overrides the engine's sampling default when set.
	Temperature *float64 `json:"temperature,omitempty"`

	// BaseTokens seeds the composer's token budget. Zero means the
	// composer default.
	BaseTokens int `json:"baseTokens,omitempty"`

	Prompts RolePrompts `json:"prompts"`
}

// ComposeInput is what the composer receives: the selected plan and the
// full fact map from rule evaluation.
type ComposeInput struct {
	Plan    *models.Plan
	FactMap models.FactMap
}

// ComposeFunc builds the instruction bundle for one execution. The
// pipeline validates the result strictly and substitutes defaults on
// breach, so a composer error degrades rather than aborting the turn.
type ComposeFunc func(in ComposeInput, m *Module) (*models.Instructions, error)

// BranchResult is one parallel branch's outcome, handed to the
// response formatter.
type BranchResult struct {
	Role   string
	Output string
	Err    string
}

// FormatFunc collapses parallel branch results into one output.
type FormatFunc func(results []BranchResult) string

// Orchestration holds optional execution-plane hooks.
type Orchestration struct {
	// FormatResponse, when set, becomes the default result strategy
	// for parallel plans.
	FormatResponse FormatFunc
}

// Module is the full behavioral contract. Construct one, Validate it,
// then hand it to the scheduler.
type Module struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	Version   string `json:"version"`

	Roles []Role `json:"roles"`

	// Prompts maps adaptation keys (adapt.*, length.*, task and
	// sequential framing entries) to table entries.
	Prompts map[string]Prompt `json:"-"`

	// Classifiers maps dimension names to detection functions.
	Classifiers map[string]Classifier `json:"-"`

	// Rules run inside the forward-chaining engine alongside policy
	// and enforcement rules.
	Rules []rules.Rule `json:"-"`

	Compose       ComposeFunc   `json:"-"`
	Orchestration Orchestration `json:"-"`

	// ToolDependencies lists tool names that must be discoverable
	// before a turn may run task plans from this module.
	ToolDependencies []string `json:"toolDependencies,omitempty"`

	// Frames and Presets are user-extendable bundles. The core does
	// not interpret them; they ride along for module tooling.
	Frames  map[string]Prompt   `json:"-"`
	Presets map[string][]string `json:"presets,omitempty"`
}

// Key returns the registry key "namespace/name".
func (m *Module) Key() string {
	return m.Namespace + "/" + m.Name
}

// RoleNamed returns the descriptor for a role name.
func (m *Module) RoleNamed(name string) (Role, bool) {
	for _, r := range m.Roles {
		if r.Name == name {
			return r, true
		}
	}
	return Role{}, false
}

// DefaultRole returns the role marked as default.
func (m *Module) DefaultRole() (Role, bool) {
	for _, r := range m.Roles {
		if r.Default {
			return r, true
		}
	}
	return Role{}, false
}

// PromptFor looks up a prompt-table entry.
func (m *Module) PromptFor(key string) (Prompt, bool) {
	p, ok := m.Prompts[key]
	return p, ok
}

// RenderPrompt resolves a prompt-table entry against a context,
// returning "" for missing keys.
func (m *Module) RenderPrompt(key string, pc PromptContext) string {
	p, ok := m.Prompts[key]
	if !ok {
		return ""
	}
	return p.Render(pc)
}
