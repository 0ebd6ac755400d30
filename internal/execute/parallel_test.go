package execute

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/machellerogden/thinksuit-sub000/internal/machine"
	"github.com/machellerogden/thinksuit-sub000/internal/providers"
	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

func TestParallelFansOutAndSumsUsage(t *testing.T) {
	p := &scriptedProvider{}
	mc, registry := testExecContext(t, p)

	out, err := Parallel(context.Background(), machine.Input{
		Thread: models.Thread{models.UserMessage("weigh this from two angles")},
		Plan: &models.Plan{
			Strategy: models.StrategyParallel,
			Roles:    []string{"explorer", "critic"},
		},
		ParentBoundaryID: "turn-1",
	}, mc)
	if err != nil {
		t.Fatalf("Parallel: %v", err)
	}
	if len(p.requests()) != 2 {
		t.Fatalf("provider calls = %d, want one per role", len(p.requests()))
	}
	if out.Response.Usage.Total() != 30 {
		t.Errorf("usage total = %d, want branches summed", out.Response.Usage.Total())
	}

	// mu ships a formatter, so formatted is the default collapse.
	if !strings.Contains(out.Response.Output, "## Explorer") || !strings.Contains(out.Response.Output, "## Critic") {
		t.Errorf("output = %q, want a section per voice", out.Response.Output)
	}
	if out.Response.Metadata["branches"] != 2 {
		t.Errorf("metadata = %+v", out.Response.Metadata)
	}

	evs := readSessionEvents(t, registry, mc.SessionID)
	starts, completes := 0, 0
	for _, ev := range evs {
		switch ev.Event {
		case "execution.parallel.branch_start":
			starts++
		case "execution.parallel.branch_complete":
			completes++
		}
	}
	if starts != 2 || completes != 2 {
		t.Errorf("branch boundaries = %d starts / %d completes, want 2/2", starts, completes)
	}
}

func TestParallelLabelCollapseWithoutFormatter(t *testing.T) {
	p := &scriptedProvider{}
	mc, _ := testExecContext(t, p)
	mc.Module.Orchestration.FormatResponse = nil

	out, err := Parallel(context.Background(), machine.Input{
		Thread: models.Thread{models.UserMessage("hi")},
		Plan:   &models.Plan{Strategy: models.StrategyParallel, Roles: []string{"explorer"}},
	}, mc)
	if err != nil {
		t.Fatalf("Parallel: %v", err)
	}
	if !strings.Contains(out.Response.Output, "[explorer]:\nok") {
		t.Errorf("output = %q, want label collapse", out.Response.Output)
	}
}

func TestParallelBranchFailureKeepsOthers(t *testing.T) {
	p := &scriptedProvider{}
	mc, registry := testExecContext(t, p)

	mc.Handlers.ExecDirect = func(ctx context.Context, in machine.Input, mcx *machine.Context) (machine.Output, error) {
		if in.Plan != nil && in.Plan.Role == "critic" {
			return machine.Output{}, models.NewKindError(models.ErrTimeout, "deadline passed")
		}
		return Direct(ctx, in, mcx)
	}
	mc.Handlers.ExecFallback = func(ctx context.Context, in machine.Input, mcx *machine.Context) (machine.Output, error) {
		return machine.Output{}, models.NewKindError(models.ErrUnknown, "fallback also failed")
	}

	out, err := Parallel(context.Background(), machine.Input{
		Thread: models.Thread{models.UserMessage("weigh this")},
		Plan: &models.Plan{
			Strategy: models.StrategyParallel,
			Roles:    []string{"explorer", "critic"},
		},
	}, mc)
	if err != nil {
		t.Fatalf("Parallel: %v", err)
	}
	if !strings.Contains(out.Response.Output, "[Error in critic branch]") {
		t.Errorf("output = %q, want error marker for failed branch", out.Response.Output)
	}
	if !strings.Contains(out.Response.Output, "## Explorer") {
		t.Errorf("output = %q, want surviving branch present", out.Response.Output)
	}

	evs := readSessionEvents(t, registry, mc.SessionID)
	completes, errored := 0, 0
	for _, ev := range evs {
		switch ev.Event {
		case "execution.parallel.branch_complete":
			completes++
		case "execution.parallel.branch_error":
			errored++
		}
	}
	if completes != 1 || errored != 1 {
		t.Errorf("branch boundaries = %d completes / %d errors, want 1/1", completes, errored)
	}
}

func TestParallelInterruptCancelsSiblings(t *testing.T) {
	ctx, cancel := context.WithCancelCause(context.Background())
	release := make(chan struct{})
	var once sync.Once
	p := &scriptedProvider{fn: func(req providers.Request, call int) (*models.Response, error) {
		first := false
		once.Do(func() { first = true })
		if first {
			cancel(&models.Interrupt{Reason: "user aborted"})
			close(release)
			return nil, context.Canceled
		}
		<-release
		return nil, context.Canceled
	}}
	mc, registry := testExecContext(t, p)

	_, err := Parallel(ctx, machine.Input{
		Thread: models.Thread{models.UserMessage("weigh this")},
		Plan: &models.Plan{
			Strategy: models.StrategyParallel,
			Roles:    []string{"explorer", "critic"},
		},
	}, mc)
	var it *models.Interrupt
	if !errors.As(err, &it) {
		t.Fatalf("err = %v, want interrupt re-raised after branches settle", err)
	}
	if it.Reason != "user aborted" {
		t.Errorf("reason = %q", it.Reason)
	}

	evs := readSessionEvents(t, registry, mc.SessionID)
	for _, ev := range evs {
		if ev.Event == "execution.parallel.branch_complete" {
			t.Errorf("interrupted fanout must not record branch_complete")
		}
	}
}

func TestParallelRequiresRoles(t *testing.T) {
	mc, _ := testExecContext(t, &scriptedProvider{})
	_, err := Parallel(context.Background(), machine.Input{
		Plan: &models.Plan{Strategy: models.StrategyParallel},
	}, mc)
	if !models.IsKind(err, models.ErrValidation) {
		t.Fatalf("err = %v, want E_VALIDATION", err)
	}
}
