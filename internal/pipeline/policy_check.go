package pipeline

import (
	"context"

	"github.com/machellerogden/thinksuit-sub000/internal/config"
	"github.com/machellerogden/thinksuit-sub000/internal/machine"
	"github.com/machellerogden/thinksuit-sub000/internal/tools"
	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

// EnforcePolicy is the last decision-plane gate before execution. It
// re-checks the selected plan against resource limits so nested cycles,
// which skip rule evaluation, still cannot exceed policy: recursion
// depth, parallel fanout, and sequence length are hard failures routed
// to the fallback strategy, while task cycle budgets are capped in
// place. Plan tools are filtered against policy and discovery.
func EnforcePolicy(ctx context.Context, in machine.Input, mc *machine.Context) (machine.Output, error) {
	plan := in.Plan
	if plan == nil {
		return machine.Output{}, models.NewKindError(models.ErrValidation, "no plan to enforce")
	}

	lim := resolveLimits(mc.Config.Policy, in.FactMap)

	recursive := plan.Strategy == models.StrategySequential ||
		plan.Strategy == models.StrategyParallel ||
		plan.Strategy == models.StrategyTask
	if recursive && lim.maxDepth > 0 && in.Depth >= lim.maxDepth {
		return machine.Output{}, models.NewKindError(models.ErrDepth,
			"%s plan at depth %d exceeds policy maximum %d", plan.Strategy, in.Depth, lim.maxDepth)
	}
	if plan.Strategy == models.StrategyParallel && lim.maxFanout > 0 && len(plan.Roles) > lim.maxFanout {
		return machine.Output{}, models.NewKindError(models.ErrFanout,
			"parallel plan with %d roles exceeds policy maximum %d", len(plan.Roles), lim.maxFanout)
	}
	if plan.Strategy == models.StrategySequential && lim.maxSequentialSteps > 0 && len(plan.Sequence) > lim.maxSequentialSteps {
		return machine.Output{}, models.NewKindError(models.ErrChildren,
			"sequential plan with %d steps exceeds policy maximum %d", len(plan.Sequence), lim.maxSequentialSteps)
	}

	out := plan
	var adjustments []string

	if plan.Strategy == models.StrategyTask && lim.maxTaskCycles > 0 {
		res := plan.Resolution.WithDefaults()
		if res.MaxCycles > lim.maxTaskCycles {
			capped := *res
			capped.MaxCycles = lim.maxTaskCycles
			cp := *out
			cp.Resolution = &capped
			out = &cp
			adjustments = append(adjustments, "maxCycles")
			mc.Log().Info("capped task cycles by policy",
				"requested", res.MaxCycles, "allowed", lim.maxTaskCycles)
		}
	}

	if plan.HasTools() {
		filtered := filterPlanTools(plan.Tools, in.FactMap, mc)
		if len(filtered) != len(plan.Tools) {
			cp := *out
			cp.Tools = filtered
			out = &cp
			adjustments = append(adjustments, "tools")
			mc.Log().Info("filtered plan tools by policy",
				"requested", len(plan.Tools), "allowed", len(filtered))
		}
	}

	if len(adjustments) > 0 {
		mc.Recorder.Record(models.Event{
			Event:            models.PipelineEvent(models.StagePolicyCheck, "trace"),
			SessionID:        mc.SessionID,
			TraceID:          mc.TraceID,
			ParentBoundaryID: in.ParentBoundaryID,
			Data:             map[string]any{"adjusted": adjustments},
		})
	}
	return machine.Output{Plan: out}, nil
}

type limits struct {
	maxDepth           int
	maxFanout          int
	maxSequentialSteps int
	maxTaskCycles      int
}

// resolveLimits starts from engine config and tightens with any
// PolicyConstraint facts rules emitted. The tightest positive value of
// each limit wins.
func resolveLimits(p config.PolicyConfig, fm models.FactMap) limits {
	l := limits{
		maxDepth:           p.MaxDepth,
		maxFanout:          p.MaxFanout,
		maxSequentialSteps: p.MaxSequentialSteps,
		maxTaskCycles:      p.MaxTaskCycles,
	}
	for _, f := range fm.All(models.FactPolicyConstraint) {
		c := f.Constraint
		if c == nil {
			continue
		}
		l.maxDepth = tighten(l.maxDepth, c.MaxDepth)
		l.maxFanout = tighten(l.maxFanout, c.MaxFanout)
		l.maxSequentialSteps = tighten(l.maxSequentialSteps, c.MaxSequentialSteps)
		l.maxTaskCycles = tighten(l.maxTaskCycles, c.MaxTaskCycles)
	}
	return l
}

func tighten(cur, candidate int) int {
	if candidate <= 0 {
		return cur
	}
	if cur <= 0 || candidate < cur {
		return candidate
	}
	return cur
}

// filterPlanTools applies, in order: allow statements from rules (when
// any exist, a tool must appear in one), deny statements from rules,
// then config allow/deny patterns and the discovery requirement.
func filterPlanTools(names []string, fm models.FactMap, mc *machine.Context) []string {
	var allows map[string]bool
	denied := append([]string(nil), mc.Config.Policy.DeniedTools...)
	for _, f := range fm.All(models.FactToolPolicyStatement) {
		st := f.Statement
		if st == nil {
			continue
		}
		switch st.Effect {
		case "allow":
			if allows == nil {
				allows = map[string]bool{}
			}
			for _, t := range st.Tools {
				allows[t] = true
			}
		case "deny":
			denied = append(denied, st.Tools...)
		}
	}

	candidates := names
	if allows != nil {
		candidates = make([]string, 0, len(names))
		for _, n := range names {
			if allows[n] {
				candidates = append(candidates, n)
			}
		}
	}
	return tools.FilterNames(candidates, mc.Discovered, mc.Config.Policy.AllowedTools, denied)
}
