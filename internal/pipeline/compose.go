package pipeline

import (
	"context"
	"fmt"

	"github.com/machellerogden/thinksuit-sub000/internal/machine"
	"github.com/machellerogden/thinksuit-sub000/internal/module"
	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

// fallbackBaseTokens seeds the default instruction set when the module
// composer fails or returns an invalid bundle.
const fallbackBaseTokens = 800

// ComposeInstructions invokes the module composer for the selected plan
// and validates the result strictly. A composer error or shape breach
// degrades to the default instruction set with a logged error; it never
// aborts the turn.
func ComposeInstructions(ctx context.Context, in machine.Input, mc *machine.Context) (machine.Output, error) {
	instr, err := runComposer(in, mc)
	if err == nil {
		err = validateInstructions(instr)
	}
	if err != nil {
		mc.Log().Error("instruction composition failed, using defaults", "error", err)
		mc.Metrics.ErrorCounter.WithLabelValues("compose", string(models.ErrValidation)).Inc()
		mc.Recorder.Record(models.Event{
			Event:            models.PipelineEvent(models.StageInstructionComposition, "trace"),
			SessionID:        mc.SessionID,
			TraceID:          mc.TraceID,
			ParentBoundaryID: in.ParentBoundaryID,
			Data:             map[string]any{"fallback": true, "reason": err.Error()},
		})
		instr = defaultInstructions(mc.Module, in.Plan)
	}

	instr.Metadata.Strategy = in.Plan.Strategy
	if in.Plan.HasTools() {
		instr.Metadata.ToolsAvailable = append([]string(nil), in.Plan.Tools...)
	}
	return machine.Output{Instructions: instr}, nil
}

func runComposer(in machine.Input, mc *machine.Context) (instr *models.Instructions, err error) {
	defer func() {
		if r := recover(); r != nil {
			instr = nil
			err = fmt.Errorf("composer panic: %v", r)
		}
	}()
	if mc.Module.Compose == nil {
		return nil, fmt.Errorf("module %s has no composer", mc.Module.Key())
	}
	return mc.Module.Compose(module.ComposeInput{Plan: in.Plan, FactMap: in.FactMap}, mc.Module)
}

// validateInstructions checks the skeleton the execution plane depends
// on. String bodies may legitimately be empty; the numeric budget and
// metadata identity may not.
func validateInstructions(instr *models.Instructions) error {
	switch {
	case instr == nil:
		return fmt.Errorf("composer returned nil instructions")
	case instr.MaxTokens < 1:
		return fmt.Errorf("maxTokens %d is not positive", instr.MaxTokens)
	case instr.Metadata.Role == "":
		return fmt.Errorf("metadata.role is empty")
	case instr.Metadata.BaseTokens < 1:
		return fmt.Errorf("metadata.baseTokens %d is not positive", instr.Metadata.BaseTokens)
	case instr.Metadata.TokenMultiplier <= 0:
		return fmt.Errorf("metadata.tokenMultiplier %v is not positive", instr.Metadata.TokenMultiplier)
	case instr.Metadata.LengthLevel == "":
		return fmt.Errorf("metadata.lengthLevel is empty")
	}
	return nil
}

func defaultInstructions(m *module.Module, plan *models.Plan) *models.Instructions {
	role, ok := m.RoleNamed(plan.Role)
	if !ok {
		role, _ = m.DefaultRole()
	}
	name := role.Name
	if name == "" {
		name = plan.Role
	}
	base := role.BaseTokens
	if base <= 0 {
		base = fallbackBaseTokens
	}
	return &models.Instructions{
		System:    role.Prompts.System,
		Primary:   role.Prompts.Primary,
		MaxTokens: base,
		Metadata: models.InstructionMetadata{
			Role:            name,
			BaseTokens:      base,
			TokenMultiplier: 1,
			LengthLevel:     "standard",
		},
	}
}
