package mu

import (
	"fmt"
	"math"
	"strings"

	"github.com/machellerogden/thinksuit-sub000/internal/module"
	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

// defaultBaseTokens seeds the budget for roles that do not declare one.
const defaultBaseTokens = 800

// Multiplier product clamp. Stacked multipliers stay within sane bounds.
const (
	minMultiplier = 0.25
	maxMultiplier = 4.0
)

// composeInstructions builds the instruction bundle for one execution.
// Every string field is always set (possibly empty) and MaxTokens is
// always positive; the pipeline validates this strictly.
func composeInstructions(in module.ComposeInput, m *module.Module) (*models.Instructions, error) {
	if in.Plan == nil {
		return nil, fmt.Errorf("compose: plan is required")
	}

	role, ok := m.RoleNamed(in.Plan.Role)
	if !ok {
		role, ok = m.DefaultRole()
		if !ok {
			return nil, fmt.Errorf("compose: no role %q and no default role", in.Plan.Role)
		}
	}

	base := role.BaseTokens
	if base <= 0 {
		base = defaultBaseTokens
	}
	multiplier := multiplierProduct(in.FactMap)
	maxTokens := int(math.Round(float64(base) * multiplier))
	if maxTokens < 1 {
		maxTokens = 1
	}

	pc := module.PromptContext{Role: role.Name}
	if tc := in.Plan.TaskContext; tc != nil {
		pc.Cycle = tc.Cycle
		pc.MaxCycles = tc.MaxCycles
	}

	adaptations, keys := signalAdaptations(in.FactMap, m, pc)
	if tc := in.Plan.TaskContext; tc != nil {
		if tc.Synthesis {
			if text := m.RenderPrompt("adapt.task-synthesis", pc); text != "" {
				adaptations = append(adaptations, text)
				keys = append(keys, "adapt.task-synthesis")
			}
		} else if tc.IsTask {
			if text := m.RenderPrompt("adapt.task-cycle", pc); text != "" {
				adaptations = append(adaptations, text)
				keys = append(keys, "adapt.task-cycle")
			}
		}
	}

	level := lengthLevel(maxTokens)
	lengthGuidance := m.RenderPrompt("length."+level, pc)

	toolInstructions := ""
	if in.Plan.HasTools() {
		toolInstructions = m.RenderPrompt("tools.guidance", pc)
	}

	return &models.Instructions{
		System:           role.Prompts.System,
		Primary:          role.Prompts.Primary,
		Adaptations:      strings.Join(adaptations, "\n"),
		LengthGuidance:   lengthGuidance,
		ToolInstructions: toolInstructions,
		MaxTokens:        maxTokens,
		Metadata: models.InstructionMetadata{
			Role:            role.Name,
			BaseTokens:      base,
			TokenMultiplier: multiplier,
			LengthLevel:     level,
			AdaptationKeys:  keys,
		},
	}, nil
}

// signalAdaptations maps detected signals to prompt-table entries in
// detection order, deduplicating keys.
func signalAdaptations(factMap models.FactMap, m *module.Module, pc module.PromptContext) (texts []string, keys []string) {
	seen := map[string]bool{}
	for _, f := range factMap.All(models.FactSignal) {
		key := "adapt." + f.Signal
		if seen[key] {
			continue
		}
		seen[key] = true
		if text := m.RenderPrompt(key, pc); text != "" {
			texts = append(texts, text)
			keys = append(keys, key)
		}
	}
	return texts, keys
}

func multiplierProduct(factMap models.FactMap) float64 {
	product := 1.0
	for _, f := range factMap.All(models.FactTokenMultiplier) {
		if f.Multiplier > 0 {
			product *= f.Multiplier
		}
	}
	if product < minMultiplier {
		product = minMultiplier
	}
	if product > maxMultiplier {
		product = maxMultiplier
	}
	return product
}

func lengthLevel(maxTokens int) string {
	switch {
	case maxTokens <= 400:
		return "brief"
	case maxTokens <= 900:
		return "standard"
	case maxTokens <= 1600:
		return "extended"
	default:
		return "comprehensive"
	}
}

// formatParallelResults renders parallel branch outputs as one
// document with a section per voice.
func formatParallelResults(results []module.BranchResult) string {
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "## %s\n\n", titleCase(r.Role))
		if r.Err != "" {
			fmt.Fprintf(&b, "[Error in %s branch]", r.Role)
			continue
		}
		b.WriteString(strings.TrimSpace(r.Output))
	}
	return b.String()
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
