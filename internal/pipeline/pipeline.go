// Package pipeline implements the decision-plane handlers: signal
// detection, fact aggregation, rule evaluation, plan selection,
// instruction composition, and policy enforcement. Each handler is a
// machine.Handler; the scheduler wires them into the state machine
// behind logging and budget middleware.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/machellerogden/thinksuit-sub000/internal/machine"
	"github.com/machellerogden/thinksuit-sub000/internal/module"
	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

// classifierTimeout bounds the whole detection fan-out. A hung classifier
// loses its dimension rather than stalling the turn.
const classifierTimeout = 10 * time.Second

// DetectSignals runs every module classifier concurrently over the thread
// and returns surviving hits as Signal facts. A classifier error or
// timeout drops that dimension only; detection never fails the turn.
func DetectSignals(ctx context.Context, in machine.Input, mc *machine.Context) (machine.Output, error) {
	if len(mc.Module.Classifiers) == 0 {
		return machine.Output{Signals: []models.Fact{}}, nil
	}

	cctx, cancel := context.WithTimeout(ctx, classifierTimeout)
	defer cancel()

	dims := make([]string, 0, len(mc.Module.Classifiers))
	for dim := range mc.Module.Classifiers {
		if gate, ok := mc.Config.Policy.DimensionGates[dim]; ok && !gate.Enabled {
			continue
		}
		dims = append(dims, dim)
	}
	sort.Strings(dims)

	var (
		mu      sync.Mutex
		byDim   = make(map[string][]module.SignalHit, len(dims))
		elapsed = make(map[string]time.Duration, len(dims))
	)
	var g errgroup.Group
	for _, dim := range dims {
		dim := dim
		fn := mc.Module.Classifiers[dim]
		g.Go(func() error {
			started := time.Now()
			hits, err := classify(cctx, fn, in.Thread)
			took := time.Since(started)
			if err != nil {
				mc.Log().Warn("classifier failed", "dimension", dim, "error", err)
				mc.Metrics.ErrorCounter.WithLabelValues("classifier", string(models.ErrUnknown)).Inc()
				return nil
			}
			mu.Lock()
			byDim[dim] = hits
			elapsed[dim] = took
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	signals := make([]models.Fact, 0, len(dims))
	for _, dim := range dims {
		hits, ok := byDim[dim]
		if !ok {
			continue
		}
		gate := mc.Config.Policy.DimensionGates[dim]
		kept := 0
		for _, hit := range hits {
			if hit.Confidence < gate.MinConfidence {
				continue
			}
			f := models.NewSignal(dim, hit.Signal, hit.Confidence)
			f.Provenance = &models.Provenance{Source: "classifier", Producer: dim}
			signals = append(signals, f)
			mc.Metrics.SignalCounter.WithLabelValues(dim, hit.Signal).Inc()
			kept++
		}
		mc.Recorder.Record(models.Event{
			Event:            models.ProcessingEvent("classifier", "complete"),
			SessionID:        mc.SessionID,
			TraceID:          mc.TraceID,
			ParentBoundaryID: in.ParentBoundaryID,
			Data: map[string]any{
				"dimension": dim,
				"hits":      len(hits),
				"kept":      kept,
				"elapsedMs": elapsed[dim].Milliseconds(),
			},
		})
	}
	return machine.Output{Signals: signals}, nil
}

// classify invokes one classifier with panic containment. Module code is
// user-extendable; a panicking classifier must not take the turn down.
func classify(ctx context.Context, fn module.Classifier, thread models.Thread) (hits []module.SignalHit, err error) {
	defer func() {
		if r := recover(); r != nil {
			hits = nil
			err = &classifierPanic{value: r}
		}
	}()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return fn(ctx, thread)
}

type classifierPanic struct{ value any }

func (p *classifierPanic) Error() string { return fmt.Sprintf("classifier panic: %v", p.value) }
