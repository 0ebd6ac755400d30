// Package mu is the built-in behavioral module. It supplies six voices
// (assistant, explorer, analyzer, synthesizer, critic, planner), regex
// classifiers over five epistemic dimensions with an optional LLM tier,
// rules that map detected signals to role selections and execution
// plans, a prompt table for adaptations and framing, and the strict
// instruction composer.
package mu

import (
	"log/slog"

	"github.com/machellerogden/thinksuit-sub000/internal/module"
	"github.com/machellerogden/thinksuit-sub000/internal/providers"
)

// Version is the module version reported through the contract.
const Version = "1.0.0"

// Options configures the module instance.
type Options struct {
	// Provider enables the LLM classifier tier. When nil, only the
	// regex tier runs.
	Provider providers.Provider

	// Model is the model the LLM classifier tier calls. Required when
	// Provider is set.
	Model string

	// ToolDependencies lists tool names the deployment requires before
	// a turn may run. Dependency validation is fatal per turn, so this
	// defaults to empty; task plans use whatever tools are discovered.
	ToolDependencies []string

	Logger *slog.Logger
}

// New assembles the module. The result passes module.Validate.
func New(opts Options) *module.Module {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	c := &classifierSet{
		provider: opts.Provider,
		model:    opts.Model,
		logger:   opts.Logger,
	}
	return &module.Module{
		Namespace:        "thinksuit",
		Name:             "mu",
		Version:          Version,
		Roles:            roleTable(),
		Prompts:          promptTable(),
		Classifiers:      c.classifiers(),
		Rules:            ruleTable(),
		Compose:          composeInstructions,
		Orchestration:    module.Orchestration{FormatResponse: formatParallelResults},
		ToolDependencies: opts.ToolDependencies,
	}
}

func floatPtr(v float64) *float64 { return &v }

// roleTable returns the six voices. Temperatures lean higher for
// divergent work and lower for convergent work.
func roleTable() []module.Role {
	return []module.Role{
		{
			Name:        "assistant",
			Default:     true,
			Temperature: floatPtr(0.7),
			BaseTokens:  800,
			Prompts: module.RolePrompts{
				System: "You are a capable, direct assistant. You answer what was " +
					"asked, you say what you know and what you do not, and you keep " +
					"the response proportional to the request.",
				Primary: "Respond to the user's message.",
			},
		},
		{
			Name:        "explorer",
			Temperature: floatPtr(0.9),
			BaseTokens:  1200,
			Prompts: module.RolePrompts{
				System: "You open possibility space. You generate distinct framings, " +
					"adjacent ideas, and unasked questions before any narrowing " +
					"happens. You do not evaluate or rank; breadth is the work.",
				Primary: "Surface the possibilities, framings, and questions this raises.",
			},
		},
		{
			Name:        "analyzer",
			Temperature: floatPtr(0.4),
			BaseTokens:  1200,
			Prompts: module.RolePrompts{
				System: "You decompose systematically. You name the assumptions in " +
					"play, separate the parts of the problem, and work through each " +
					"with explicit reasoning. You prefer precision over coverage.",
				Primary: "Break this down and work through it step by step.",
			},
		},
		{
			Name:        "synthesizer",
			Temperature: floatPtr(0.6),
			BaseTokens:  1400,
			Prompts: module.RolePrompts{
				System: "You integrate. Given multiple threads of prior work, you " +
					"find where they agree, where they conflict, and what whole they " +
					"add up to. You produce one coherent account, not a summary list.",
				Primary: "Integrate the preceding work into a coherent response.",
			},
		},
		{
			Name:        "critic",
			Temperature: floatPtr(0.5),
			BaseTokens:  1000,
			Prompts: module.RolePrompts{
				System: "You stress-test claims. You look for the counterexample, the " +
					"unstated assumption, and the place where the evidence is thinner " +
					"than the confidence. You are adversarial to ideas, not to people.",
				Primary: "Examine this critically: what is weakest, and what is missing?",
			},
		},
		{
			Name:        "planner",
			Temperature: floatPtr(0.4),
			BaseTokens:  1200,
			Prompts: module.RolePrompts{
				System: "You sequence work. You turn goals into ordered, concrete " +
					"steps with dependencies and decision points made explicit. You " +
					"flag what must be learned before a step can be committed to.",
				Primary: "Lay out a concrete plan for this.",
			},
		},
	}
}
