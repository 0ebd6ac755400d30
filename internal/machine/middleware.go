package machine

import (
	"context"
	"time"

	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

// Logging wraps a handler in its boundary scope. The start event opens
// the scope, the handler runs with ParentBoundaryID rewritten to the
// scope ID so its own events nest correctly, and the scope closes with
// a complete or failed event. Handler latency lands in metrics here so
// every wrapped handler reports the same way.
//
// base is the journal event prefix, "pipeline.signal_detection" or
// "execution.direct"; name is the handler's table name for metrics and
// span attribution.
func Logging(name, base string, bt models.BoundaryType) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, in Input, mc *Context) (Output, error) {
			scope := mc.Recorder.Begin(mc.SessionID, mc.TraceID, in.ParentBoundaryID, bt,
				models.EventName(base+"."+models.ActionStart),
				map[string]any{"handler": name, "depth": in.Depth})
			in.ParentBoundaryID = scope.ID

			hctx := ctx
			var endSpan func(error)
			if mc.Tracer != nil {
				sctx, span := mc.Tracer.StartHandler(ctx, name)
				hctx = sctx
				endSpan = func(err error) {
					if err != nil {
						mc.Tracer.RecordError(span, err)
					}
					span.End()
				}
			}

			out, err := next(hctx, in, mc)

			if mc.Metrics != nil {
				mc.Metrics.HandlerDuration.WithLabelValues(name).Observe(scope.Elapsed().Seconds())
			}
			if endSpan != nil {
				endSpan(err)
			}
			if err != nil {
				scope.End(models.EventName(base+"."+models.ActionFailed), map[string]any{
					"error": err.Error(),
					"kind":  string(models.KindOf(err)),
				})
				return out, err
			}
			scope.End(models.EventName(base+"."+models.ActionComplete), nil)
			return out, nil
		}
	}
}

// Budget measures a handler against its wall-clock budget. Overruns are
// performance warnings, never failures; the handler's result passes
// through untouched.
func Budget(name string, budget time.Duration) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, in Input, mc *Context) (Output, error) {
			started := time.Now()
			out, err := next(ctx, in, mc)
			elapsed := time.Since(started)
			if elapsed <= budget {
				return out, err
			}
			mc.Log().Warn("handler exceeded budget",
				"handler", name,
				"budgetMs", budget.Milliseconds(),
				"elapsedMs", elapsed.Milliseconds())
			if mc.Metrics != nil {
				mc.Metrics.BudgetOverruns.WithLabelValues(name).Inc()
			}
			mc.Recorder.Record(models.Event{
				Event:            models.EventPerformanceWarning,
				SessionID:        mc.SessionID,
				TraceID:          mc.TraceID,
				ParentBoundaryID: in.ParentBoundaryID,
				Data: map[string]any{
					"handler":   name,
					"budgetMs":  budget.Milliseconds(),
					"elapsedMs": elapsed.Milliseconds(),
				},
			})
			return out, err
		}
	}
}
