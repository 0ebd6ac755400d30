package execute

import (
	"context"
	"errors"
	"sync"

	"github.com/machellerogden/thinksuit-sub000/internal/machine"
	"github.com/machellerogden/thinksuit-sub000/internal/module"
	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

// Parallel fans the thread out to every role in the plan at once, each
// as a nested direct cycle over its own copy of the conversation, then
// collapses the branch outputs per the result strategy.
//
// A branch failure becomes "[Error in <role> branch]" in the collapsed
// output while the other branches keep running. An interrupt cancels
// the remaining branches; interrupted branches close with branch_error,
// and the interrupt is re-raised once every branch has settled.
func Parallel(ctx context.Context, in machine.Input, mc *machine.Context) (machine.Output, error) {
	plan := in.Plan
	if plan == nil || len(plan.Roles) == 0 {
		return machine.Output{}, models.NewKindError(models.ErrValidation, "parallel execution requires roles")
	}

	bctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	n := len(plan.Roles)
	results := make([]module.BranchResult, n)
	usages := make([]models.Usage, n)
	interrupts := make([]*models.Interrupt, n)

	var wg sync.WaitGroup
	for i, role := range plan.Roles {
		wg.Add(1)
		go func(i int, role string) {
			defer wg.Done()

			scope := mc.Recorder.Begin(mc.SessionID, mc.TraceID, in.ParentBoundaryID,
				models.BoundaryBranch, models.ExecutionEvent("parallel", "branch_start"),
				map[string]any{"branch": i + 1, "role": role})

			res, err := runNested(bctx, mc, machine.Input{
				Thread:           in.Thread.Clone(),
				Plan:             &models.Plan{Strategy: models.StrategyDirect, Role: role},
				Facts:            in.Facts,
				FactMap:          in.FactMap,
				Depth:            in.Depth + 1,
				ParentBoundaryID: scope.ID,
			})
			if err != nil {
				var it *models.Interrupt
				if errors.As(err, &it) {
					interrupts[i] = it
					scope.End(models.ExecutionEvent("parallel", "branch_error"), map[string]any{
						"branch": i + 1, "role": role, "interrupted": true,
					})
					cancel(it)
					return
				}
				mc.Log().Warn("parallel branch failed", "branch", i+1, "role", role, "error", err)
				scope.End(models.ExecutionEvent("parallel", "branch_error"), map[string]any{
					"branch": i + 1, "role": role, "error": err.Error(),
				})
				results[i] = module.BranchResult{Role: role, Err: err.Error()}
				return
			}

			output := ""
			if res.Response != nil {
				output = res.Response.Output
				usages[i] = res.Response.Usage
			}
			results[i] = module.BranchResult{Role: role, Output: output}
			scope.End(models.ExecutionEvent("parallel", "branch_complete"), map[string]any{
				"branch": i + 1, "role": role, "outputChars": len(output),
			})
		}(i, role)
	}
	wg.Wait()

	for _, it := range interrupts {
		if it != nil {
			return machine.Output{}, gatherPartial(it, results)
		}
	}

	var usage models.Usage
	for _, u := range usages {
		usage.Add(u)
	}

	rs := plan.ResultStrategy
	if rs == "" {
		if mc.Module.Orchestration.FormatResponse != nil {
			rs = models.ResultFormatted
		} else {
			rs = models.ResultLabel
		}
	}
	resp := &models.Response{
		Output:       collapseResults(rs, results, "branch", mc.Module.Orchestration.FormatResponse),
		Usage:        usage,
		FinishReason: models.FinishComplete,
	}
	resp.SetMeta("strategy", string(models.StrategyParallel))
	resp.SetMeta("branches", n)
	resp.SetMeta("resultStrategy", string(rs))
	return machine.Output{Response: resp}, nil
}
