package execute

import (
	"context"

	"github.com/machellerogden/thinksuit-sub000/internal/machine"
	"github.com/machellerogden/thinksuit-sub000/internal/providers"
	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

// Direct issues one provider call framed by the composed instructions:
// the system prompt plus adaptation sections, the primary prompt
// prepended to the final user message, and the role's temperature.
//
// Provider failures never propagate: they become a response with Error
// set and a human-readable output, so composite strategies can keep
// going with partial results. Interrupts and timeouts do propagate.
func Direct(ctx context.Context, in machine.Input, mc *machine.Context) (machine.Output, error) {
	if in.Plan == nil {
		return machine.Output{}, models.NewKindError(models.ErrValidation, "direct execution requires a plan")
	}
	if in.Instructions == nil {
		return machine.Output{}, models.NewKindError(models.ErrValidation, "direct execution requires composed instructions")
	}
	instr := in.Instructions

	maxTokens := instr.MaxTokens
	if in.Plan.MaxTokens > 0 {
		maxTokens = in.Plan.MaxTokens
	}

	var defs []providers.ToolDef
	if in.Plan.HasTools() {
		defs = toolDefs(mc, in.Plan.Tools)
	}

	resp, err := callProvider(ctx, mc, in.ParentBoundaryID, providers.Request{
		System:      systemPrompt(instr),
		Thread:      threadWithPrimary(in.Thread, instr.Primary),
		MaxTokens:   maxTokens,
		Temperature: roleTemperature(mc.Module, in.Plan.Role),
		Tools:       defs,
	})
	if err != nil {
		kind := models.KindOf(err)
		if kind != models.ErrProvider {
			return machine.Output{}, err
		}
		mc.Log().Error("provider call failed", "role", in.Plan.Role, "error", err)
		if mc.Metrics != nil {
			mc.Metrics.ErrorCounter.WithLabelValues("direct", string(kind)).Inc()
		}
		resp = &models.Response{
			Output:       "The model call failed and no response was produced.",
			Error:        err.Error(),
			Model:        mc.Config.Model,
			FinishReason: models.FinishComplete,
		}
		resp.SetMeta("role", in.Plan.Role)
		return machine.Output{Response: resp}, nil
	}

	resp.SetMeta("role", in.Plan.Role)
	return machine.Output{Response: resp}, nil
}
