package scheduler

import (
	"time"

	"github.com/machellerogden/thinksuit-sub000/internal/execute"
	"github.com/machellerogden/thinksuit-sub000/internal/machine"
	"github.com/machellerogden/thinksuit-sub000/internal/pipeline"
	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

// Per-stage wall-clock budgets. Overruns log a performance warning and
// count in metrics; they never fail the stage. Signal detection is the
// outlier because its classifier tier may call the provider.
const (
	budgetSignalDetection        = 10 * time.Second
	budgetFactAggregation        = 50 * time.Millisecond
	budgetRuleEvaluation         = 100 * time.Millisecond
	budgetPlanSelection          = 50 * time.Millisecond
	budgetInstructionComposition = 50 * time.Millisecond
	budgetPolicyCheck            = 50 * time.Millisecond
	budgetFallback               = time.Second
)

// buildHandlers wires the pipeline stages and execution strategies into
// the machine's resource names. Order per handler: budget outer, logging
// inner, so the journal brackets measure the handler alone and budget
// overruns are attributed to work, not to event writing.
func buildHandlers() *machine.HandlerTable {
	staged := func(h machine.Handler, name, stage string, budget time.Duration) machine.Handler {
		return machine.Chain(h,
			machine.Budget(name, budget),
			machine.Logging(name, "pipeline."+stage, models.BoundaryPipeline),
		)
	}
	strategy := func(h machine.Handler, name, base string) machine.Handler {
		return machine.Chain(h, machine.Logging(name, base, models.BoundaryExecution))
	}

	return &machine.HandlerTable{
		DetectSignals:       staged(pipeline.DetectSignals, "detectSignals", models.StageSignalDetection, budgetSignalDetection),
		AggregateFacts:      staged(pipeline.AggregateFacts, "aggregateFacts", models.StageFactAggregation, budgetFactAggregation),
		EvaluateRules:       staged(pipeline.EvaluateRules, "evaluateRules", models.StageRuleEvaluation, budgetRuleEvaluation),
		SelectPlan:          staged(pipeline.SelectPlan, "selectPlan", models.StagePlanSelection, budgetPlanSelection),
		ComposeInstructions: staged(pipeline.ComposeInstructions, "composeInstructions", models.StageInstructionComposition, budgetInstructionComposition),
		EnforcePolicy:       staged(pipeline.EnforcePolicy, "enforcePolicy", models.StagePolicyCheck, budgetPolicyCheck),

		ExecDirect:     strategy(execute.Direct, "execDirect", "execution.direct"),
		ExecSequential: strategy(execute.Sequential, "execSequential", "execution.sequential"),
		ExecParallel:   strategy(execute.Parallel, "execParallel", "execution.parallel"),
		ExecTask:       strategy(execute.Task, "execTask", "execution.task"),
		ExecFallback: machine.Chain(execute.Fallback,
			machine.Budget("execFallback", budgetFallback),
			machine.Logging("execFallback", "execution.fallback", models.BoundaryExecution),
		),
	}
}
