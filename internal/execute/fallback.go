package execute

import (
	"context"

	"github.com/machellerogden/thinksuit-sub000/internal/backoff"
	"github.com/machellerogden/thinksuit-sub000/internal/machine"
	"github.com/machellerogden/thinksuit-sub000/internal/providers"
	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

// recoveryTokens caps the degraded answer attempted after a failure.
const recoveryTokens = 200

// explanations is the static fallback text per error kind, used
// directly when recovery is not attempted or does not succeed.
var explanations = map[models.ErrorKind]string{
	models.ErrDepth: "This request needed more levels of delegated work than the " +
		"configured policy allows. A narrower request, or a higher depth limit, would let it proceed.",
	models.ErrFanout: "The plan called for more parallel perspectives than the " +
		"configured policy allows. A narrower question, or a higher fanout limit, would let it proceed.",
	models.ErrChildren: "The plan involved more sequential steps than the " +
		"configured policy allows.",
	models.ErrProvider: "The language model provider could not be reached or " +
		"returned an error, and no response was produced.",
	models.ErrTimeout: "Processing ran past its deadline before a response " +
		"could be produced.",
	models.ErrValidation: "An internal consistency check failed while preparing " +
		"the response.",
	models.ErrTool:    "A tool this request depended on failed.",
	models.ErrUnknown: "An unexpected error interrupted processing.",
}

// Fallback is the terminal degradation path: every caught pipeline or
// execution failure routes here. For kinds that do not implicate the
// provider it attempts one brief low-temperature answer within the
// stated limitation; otherwise, or when that attempt also fails, it
// returns the static explanation. Fallback itself never errors short of
// a broken engine, so the turn always ends with a response.
func Fallback(ctx context.Context, in machine.Input, mc *machine.Context) (machine.Output, error) {
	kind := models.KindOf(in.Failure)
	if kind == "" {
		kind = models.ErrUnknown
	}
	explanation, ok := explanations[kind]
	if !ok {
		explanation = explanations[models.ErrUnknown]
	}

	errText := ""
	if in.Failure != nil {
		errText = in.Failure.Error()
	}
	mc.Log().Warn("fallback engaged", "kind", string(kind), "error", errText)

	output := explanation
	recovered := false
	if recoverable(kind) && mc.Provider != nil {
		if text, err := degradedAnswer(ctx, in, mc, explanation); err == nil {
			output = text
			recovered = true
		} else {
			mc.Log().Debug("fallback recovery failed, using static text", "error", err)
		}
	}

	resp := &models.Response{
		Output:       output,
		Model:        mc.Config.Model,
		FinishReason: models.FinishComplete,
		Error:        errText,
	}
	resp.SetMeta("strategy", string(models.StrategyFallback))
	resp.SetMeta("errorKind", string(kind))
	resp.SetMeta("recovered", recovered)
	return machine.Output{Response: resp}, nil
}

// recoverable reports whether a degraded provider call is worth
// attempting. Provider and timeout failures are not: the provider just
// demonstrated it cannot answer in time.
func recoverable(kind models.ErrorKind) bool {
	switch kind {
	case models.ErrProvider, models.ErrTimeout, models.ErrInterrupt:
		return false
	}
	return true
}

// degradedAnswer makes one brief, low-temperature attempt to answer the user
// within the stated limitation.
func degradedAnswer(ctx context.Context, in machine.Input, mc *machine.Context, explanation string) (string, error) {
	system := "The normal response path failed: " + explanation +
		" Answer the user's message directly in one brief pass, working within that limitation."

	res, err := backoff.RetryWithBackoff(ctx, backoff.DefaultPolicy(), 2, func(int) (*models.Response, error) {
		return callProvider(ctx, mc, in.ParentBoundaryID, providers.Request{
			System:      system,
			Thread:      in.Thread,
			MaxTokens:   recoveryTokens,
			Temperature: 0.3,
		})
	})
	if err != nil {
		return "", err
	}
	return res.Value.Output, nil
}
