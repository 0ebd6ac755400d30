package pipeline

import (
	"context"

	"github.com/machellerogden/thinksuit-sub000/internal/machine"
	"github.com/machellerogden/thinksuit-sub000/internal/schema"
	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

// SelectPlan picks the winning plan from the fact map. Tool-bearing
// selections outrank plain ones; among peers the most recent wins.
// Policy-blocked shadows never reach selection. When rules produced no
// selection at all, the turn gets a direct plan for the module's
// default role.
func SelectPlan(ctx context.Context, in machine.Input, mc *machine.Context) (machine.Output, error) {
	plan, source := pickPlan(in.FactMap, mc)

	if err := schema.AssertValidPlan(plan); err != nil {
		return machine.Output{}, err
	}

	mc.Recorder.Record(models.Event{
		Event:            models.PipelineEvent(models.StagePlanSelection, "trace"),
		SessionID:        mc.SessionID,
		TraceID:          mc.TraceID,
		ParentBoundaryID: in.ParentBoundaryID,
		Data: map[string]any{
			"source":   source,
			"strategy": string(plan.Strategy),
			"role":     plan.Role,
			"tools":    len(plan.Tools),
		},
	})
	return machine.Output{Plan: plan}, nil
}

func pickPlan(fm models.FactMap, mc *machine.Context) (*models.Plan, string) {
	if f, ok := fm.LastWhere(models.FactSelectedPlan, func(f models.Fact) bool {
		return !f.PolicyBlocked && f.Plan.HasTools()
	}); ok {
		return f.Plan, "selected-with-tools"
	}
	if f, ok := fm.LastWhere(models.FactSelectedPlan, func(f models.Fact) bool {
		return !f.PolicyBlocked && f.Plan != nil
	}); ok {
		return f.Plan, "selected"
	}
	plan := models.DefaultPlan()
	if r, ok := mc.Module.DefaultRole(); ok {
		plan.Role = r.Name
	}
	return plan, "default"
}
