// Package execute implements the execution-plane handlers: direct,
// sequential, parallel, task, and fallback. Direct is the only handler
// that talks to the provider; the composite strategies decompose into
// nested machine cycles that bottom out in direct calls.
package execute

import (
	"context"
	"strings"
	"time"

	"github.com/machellerogden/thinksuit-sub000/internal/machine"
	"github.com/machellerogden/thinksuit-sub000/internal/module"
	"github.com/machellerogden/thinksuit-sub000/internal/providers"
	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

// defaultTemperature applies when a role declares none.
const defaultTemperature = 0.7

// systemPrompt joins the composed instruction sections framing one model
// call. Empty sections drop out.
func systemPrompt(instr *models.Instructions) string {
	parts := make([]string, 0, 4)
	for _, s := range []string{instr.System, instr.Adaptations, instr.LengthGuidance, instr.ToolInstructions} {
		if strings.TrimSpace(s) != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

// threadWithPrimary clones the thread and prepends the primary prompt to
// the last user message, appending one when the thread has none.
func threadWithPrimary(thread models.Thread, primary string) models.Thread {
	out := thread.Clone()
	if strings.TrimSpace(primary) == "" {
		return out
	}
	if i := out.LastUserIndex(); i >= 0 {
		msg := out[i]
		msg.Content = primary + "\n\n" + msg.Content
		out[i] = msg
		return out
	}
	return append(out, models.UserMessage(primary))
}

// roleTemperature resolves the sampling temperature for a role.
func roleTemperature(m *module.Module, roleName string) float64 {
	if r, ok := m.RoleNamed(roleName); ok && r.Temperature != nil {
		return *r.Temperature
	}
	return defaultTemperature
}

// toolDefs resolves plan tool names against discovery. Names that
// discovery does not know drop out silently; policy filtered them
// upstream and the provider must never see a tool the engine cannot
// execute.
func toolDefs(mc *machine.Context, names []string) []providers.ToolDef {
	defs := make([]providers.ToolDef, 0, len(names))
	for _, n := range names {
		d, ok := mc.Discovered[n]
		if !ok {
			continue
		}
		defs = append(defs, providers.ToolDef{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.InputSchema,
		})
	}
	return defs
}

// callProvider issues one completion inside an llm_exchange boundary,
// tapping raw provider traffic into the trace and recording call
// metrics. Errors return as-is; classification is the caller's concern.
func callProvider(ctx context.Context, mc *machine.Context, parentID string, req providers.Request) (*models.Response, error) {
	if req.Model == "" {
		req.Model = mc.Config.Model
	}

	scope := mc.Recorder.Begin(mc.SessionID, mc.TraceID, parentID, models.BoundaryLLMExchange,
		models.ProcessingEvent("llm", models.ActionStart),
		map[string]any{
			"model":     req.Model,
			"maxTokens": req.MaxTokens,
			"tools":     len(req.Tools),
		})
	req.Tap = func(name models.EventName, data map[string]any) {
		mc.Recorder.Record(models.Event{
			Event:            name,
			SessionID:        mc.SessionID,
			TraceID:          mc.TraceID,
			ParentBoundaryID: scope.ID,
			Data:             data,
		})
	}

	if mc.Tracer != nil {
		cctx, span := mc.Tracer.StartProviderCall(ctx, mc.Provider.Name(), req.Model)
		ctx = cctx
		defer span.End()
	}

	started := time.Now()
	resp, err := mc.Provider.Complete(ctx, req)
	elapsed := time.Since(started)

	if mc.Metrics != nil {
		mc.Metrics.ProviderRequestDuration.WithLabelValues(mc.Provider.Name(), req.Model).Observe(elapsed.Seconds())
		status := "success"
		if err != nil {
			status = "error"
		}
		mc.Metrics.ProviderRequestCounter.WithLabelValues(mc.Provider.Name(), req.Model, status).Inc()
		if resp != nil {
			mc.Metrics.ProviderTokens.WithLabelValues(mc.Provider.Name(), req.Model, "prompt").Add(float64(resp.Usage.Prompt))
			mc.Metrics.ProviderTokens.WithLabelValues(mc.Provider.Name(), req.Model, "completion").Add(float64(resp.Usage.Completion))
		}
	}

	if err != nil {
		scope.End(models.ProcessingEvent("llm", models.ActionFailed), map[string]any{
			"error": err.Error(),
			"kind":  string(models.KindOf(err)),
		})
		return nil, err
	}
	scope.End(models.ProcessingEvent("llm", models.ActionComplete), map[string]any{
		"finishReason":     string(resp.FinishReason),
		"promptTokens":     resp.Usage.Prompt,
		"completionTokens": resp.Usage.Completion,
		"toolCalls":        len(resp.ToolCalls),
	})
	return resp, nil
}

// runNested executes a nested cycle for a sub-plan and re-raises any
// carried interrupt so it unwinds through the enclosing handler.
func runNested(ctx context.Context, mc *machine.Context, in machine.Input) (*machine.CycleResult, error) {
	res, err := machine.RunCycle(ctx, in, mc)
	if err != nil {
		return nil, err
	}
	if res.Interrupted() {
		return nil, res.Interrupt
	}
	return res, nil
}
