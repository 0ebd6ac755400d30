// Package scheduler drives one engine turn end to end: session
// acquisition, tool startup and discovery, handler-table assembly,
// the root decision cycle, and the session bookkeeping events that
// bracket all of it in the journal. One Scheduler serves many turns;
// everything turn-scoped lives in the machine context it assembles.
package scheduler

import (
	"context"
	"strings"
	"time"

	"github.com/machellerogden/thinksuit-sub000/internal/approval"
	"github.com/machellerogden/thinksuit-sub000/internal/config"
	"github.com/machellerogden/thinksuit-sub000/internal/events"
	"github.com/machellerogden/thinksuit-sub000/internal/journal"
	"github.com/machellerogden/thinksuit-sub000/internal/machine"
	"github.com/machellerogden/thinksuit-sub000/internal/mcp"
	"github.com/machellerogden/thinksuit-sub000/internal/module"
	"github.com/machellerogden/thinksuit-sub000/internal/modules/mu"
	"github.com/machellerogden/thinksuit-sub000/internal/observability"
	"github.com/machellerogden/thinksuit-sub000/internal/providers"
	"github.com/machellerogden/thinksuit-sub000/internal/sessions"
	"github.com/machellerogden/thinksuit-sub000/internal/tokens"
	"github.com/machellerogden/thinksuit-sub000/internal/tools"
	"github.com/machellerogden/thinksuit-sub000/internal/trace"
	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

// Stale approval requests are swept so an abandoned turn cannot pin its
// pending entries forever.
const (
	sweepInterval = time.Minute
	sweepMaxAge   = 10 * time.Minute
)

// maxOpenStreams bounds journal file handles held open across turns.
const maxOpenStreams = 64

// Options configures a Scheduler. Config and Provider are required;
// everything else defaults.
type Options struct {
	Config   *config.Config
	Provider providers.Provider

	// Module overrides the built-in behavioral module.
	Module *module.Module

	Metrics *observability.Metrics
	Tracer  *observability.Tracer
	Logger  *observability.Logger
}

// Scheduler owns the process-wide engine state: journal streams, the
// session registry, the trace sink, the approval arbiter, and the
// wrapped handler table. It is safe for concurrent Schedule calls;
// per-session serialization comes from acquisition, not from locks here.
type Scheduler struct {
	cfg        *config.Config
	module     *module.Module
	provider   providers.Provider
	streams    *journal.Streams
	registry   *sessions.Registry
	traces     *trace.Sink
	recorder   *events.Recorder
	arbiter    *approval.Arbiter
	metrics    *observability.Metrics
	tracer     *observability.Tracer
	logger     *observability.Logger
	handlers   *machine.HandlerTable
	definition *machine.Definition

	done chan struct{}
}

// New builds a Scheduler from options and starts the approval sweeper.
// Callers must Close it to flush journal streams.
func New(opts Options) (*Scheduler, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if opts.Provider == nil {
		return nil, models.NewKindError(models.ErrValidation, "scheduler requires a provider")
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{
			Level:     cfg.Logging.Level,
			Format:    cfg.Logging.Format,
			AddSource: cfg.Logging.AddSource,
		})
	}
	mod := opts.Module
	if mod == nil {
		mod = mu.New(mu.Options{
			Provider: opts.Provider,
			Model:    cfg.Model,
			Logger:   logger.Base(),
		})
	}
	if err := module.Validate(mod); err != nil {
		return nil, err
	}

	streams := journal.NewStreams(maxOpenStreams, logger.Base())
	registry := sessions.NewRegistry(cfg.SessionsDir, streams, logger.Base())
	traces := trace.NewSink(cfg.TracesDir, streams, logger.Base())

	s := &Scheduler{
		cfg:        cfg,
		module:     mod,
		provider:   opts.Provider,
		streams:    streams,
		registry:   registry,
		traces:     traces,
		recorder:   events.NewRecorder(registry, traces, opts.Metrics, logger.Base()),
		arbiter:    approval.NewArbiter(logger.Base()),
		metrics:    opts.Metrics,
		tracer:     opts.Tracer,
		logger:     logger,
		handlers:   buildHandlers(),
		definition: machine.Default(),
		done:       make(chan struct{}),
	}
	go s.sweepLoop()
	return s, nil
}

// Registry exposes session operations for callers that list, inspect,
// or fork sessions outside a turn.
func (s *Scheduler) Registry() *sessions.Registry { return s.registry }

// Arbiter exposes the approval arbiter so a front end can list and
// resolve pending tool approvals.
func (s *Scheduler) Arbiter() *approval.Arbiter { return s.arbiter }

// Traces exposes the trace sink for read access.
func (s *Scheduler) Traces() *trace.Sink { return s.traces }

// Flush forces buffered journal and trace writes to disk.
func (s *Scheduler) Flush() error { return s.streams.FlushAll() }

// Close stops the sweeper and closes all journal streams.
func (s *Scheduler) Close() error {
	close(s.done)
	return s.streams.Close()
}

// TurnRequest asks for one turn. An empty SessionID starts a new
// session.
type TurnRequest struct {
	SessionID string
	Input     string
}

// TurnResult is the terminal outcome of a scheduled turn: exactly one
// of Response, Interrupt, or Err is set.
type TurnResult struct {
	Response  *models.Response
	Interrupt *models.Interrupt
	Err       error
}

// Turn is the handle returned by Schedule. When Scheduled is false the
// session was busy and no work started; Reason says why.
type Turn struct {
	SessionID string
	TraceID   string
	Scheduled bool
	IsNew     bool
	IsForked  bool
	Reason    string

	cancel context.CancelCauseFunc
	result chan TurnResult
}

// Interrupt requests a cooperative stop. The reason travels with the
// cancellation cause so the interrupt surfaced to the caller and the
// journal carries it. Repeated calls are harmless; the first wins.
func (t *Turn) Interrupt(reason string) {
	if t.cancel != nil {
		t.cancel(&models.Interrupt{Reason: reason})
	}
}

// Result delivers the turn outcome exactly once.
func (t *Turn) Result() <-chan TurnResult { return t.result }

// Wait blocks until the turn finishes or the caller's context expires.
func (t *Turn) Wait(ctx context.Context) (TurnResult, error) {
	select {
	case r := <-t.result:
		return r, nil
	case <-ctx.Done():
		return TurnResult{}, ctx.Err()
	}
}

// Schedule validates the request, acquires the session, and starts the
// turn in the background. A busy session returns a non-scheduled Turn,
// not an error; invalid input and missing credentials do error.
func (s *Scheduler) Schedule(ctx context.Context, req TurnRequest) (*Turn, error) {
	input := strings.TrimSpace(req.Input)
	if input == "" {
		return nil, models.NewKindError(models.ErrValidation, "input is required")
	}
	if s.cfg.APIKey() == "" {
		return nil, models.NewKindError(models.ErrValidation,
			"no API key configured for provider %q", s.cfg.Provider)
	}

	ac, err := s.registry.Acquire(req.SessionID)
	if err != nil {
		return nil, err
	}
	if !ac.Acquired {
		return &Turn{SessionID: ac.SessionID, Reason: ac.Reason}, nil
	}

	tctx, cancel := context.WithCancelCause(ctx)
	turn := &Turn{
		SessionID: ac.SessionID,
		TraceID:   trace.NewTraceID(),
		Scheduled: true,
		IsNew:     ac.IsNew,
		IsForked:  s.registry.IsForked(ac.SessionID),
		cancel:    cancel,
		result:    make(chan TurnResult, 1),
	}
	go s.run(tctx, turn, input)
	return turn, nil
}

// run executes one turn. It always delivers exactly one TurnResult and
// always closes the turn boundary, so the session lands ready whatever
// happened in between.
func (s *Scheduler) run(ctx context.Context, turn *Turn, input string) {
	defer turn.cancel(nil)

	if s.metrics != nil {
		s.metrics.ActiveTurns.Inc()
		defer s.metrics.ActiveTurns.Dec()
	}
	started := time.Now()
	log := s.logger.ForTurn(turn.SessionID, turn.TraceID, 0)
	log.Info(ctx, "turn scheduled", "isNew", turn.IsNew, "isForked", turn.IsForked)

	scope := s.recorder.Begin(turn.SessionID, turn.TraceID, "", models.BoundaryTurn,
		models.EventSessionTurnStart, map[string]any{
			"module":   s.module.Key(),
			"provider": s.provider.Name(),
			"model":    s.cfg.Model,
			"isNew":    turn.IsNew,
			"isForked": turn.IsForked,
		})

	status := "success"
	var result TurnResult
	defer func() {
		scope.End(models.EventSessionTurnComplete, map[string]any{
			"status":    status,
			"elapsedMs": time.Since(started).Milliseconds(),
		})
		if s.metrics != nil {
			s.metrics.TurnCounter.WithLabelValues(status).Inc()
			s.metrics.TurnDuration.WithLabelValues(status).Observe(time.Since(started).Seconds())
		}
		turn.result <- result
	}()

	scope.Point(models.EventSessionInput, map[string]any{
		"input":           input,
		"estimatedTokens": tokens.Estimate(input),
	})

	thread, err := s.registry.LoadThread(turn.SessionID)
	if err != nil {
		status = "error"
		result.Err = err
		log.Error(ctx, "loading session thread failed", "error", err)
		return
	}
	thread = append(thread, models.UserMessage(input))

	mgr, discovered := s.startTools(ctx, log)
	defer mgr.StopAll()

	if err := tools.ValidateDependencies(s.module.ToolDependencies, discovered); err != nil {
		status = "error"
		result.Err = err
		log.Error(ctx, "tool dependency validation failed", "error", err)
		scope.Point(models.EventSystemError, map[string]any{
			"error": err.Error(),
			"kind":  string(models.ErrTool),
		})
		return
	}

	if s.tracer != nil {
		sctx, span := s.tracer.StartTurn(ctx, turn.SessionID, turn.TraceID)
		ctx = sctx
		defer span.End()
	}

	mc := &machine.Context{
		Handlers:   s.handlers,
		Module:     s.module,
		Config:     s.cfg,
		Provider:   s.provider,
		Recorder:   s.recorder,
		Arbiter:    s.arbiter,
		MCP:        mgr,
		Discovered: discovered,
		Definition: s.definition,
		Metrics:    s.metrics,
		Tracer:     s.tracer,
		Logger:     log.Base(),
		SessionID:  turn.SessionID,
		TraceID:    turn.TraceID,
	}

	res, err := machine.RunCycle(ctx, machine.Input{
		Thread:           thread,
		ParentBoundaryID: scope.ID,
	}, mc)
	switch {
	case err != nil:
		status = "error"
		result.Err = err
		log.Error(ctx, "turn failed", "error", err, "kind", string(models.KindOf(err)))
		scope.Point(models.EventSystemError, map[string]any{
			"error": err.Error(),
			"kind":  string(models.KindOf(err)),
		})

	case res.Interrupted():
		status = "interrupted"
		result.Interrupt = res.Interrupt
		log.Info(ctx, "turn interrupted",
			"reason", res.Interrupt.Reason, "stage", res.Interrupt.Stage)
		scope.Point(models.EventSessionInterrupted, map[string]any{
			"reason":      res.Interrupt.Reason,
			"stage":       res.Interrupt.Stage,
			"partialData": res.PartialData,
		})

	case res.Response == nil:
		status = "error"
		result.Err = models.NewKindError(models.ErrUnknown, "cycle produced no response")
		log.Error(ctx, "cycle produced no response")

	default:
		result.Response = res.Response
		scope.Point(models.EventSessionResponse, map[string]any{
			"response":     res.Response.Output,
			"model":        res.Response.Model,
			"finishReason": string(res.Response.FinishReason),
			"usage": map[string]any{
				"prompt":     res.Response.Usage.Prompt,
				"completion": res.Response.Usage.Completion,
			},
		})
		log.Info(ctx, "turn complete",
			"finishReason", string(res.Response.FinishReason),
			"tokens", res.Response.Usage.Total(),
			"elapsedMs", time.Since(started).Milliseconds())
	}
}

// startTools connects configured MCP servers and returns the filtered
// tool map. Startup failure degrades to an empty manager: the turn can
// still answer, and dependency validation decides whether missing tools
// are fatal.
func (s *Scheduler) startTools(ctx context.Context, log *observability.Logger) (*mcp.Manager, map[string]tools.Descriptor) {
	if !s.cfg.Tools.Enabled || len(s.cfg.Tools.MCPServers) == 0 {
		return mcp.NewManager(log.Base()), map[string]tools.Descriptor{}
	}

	mgr, err := tools.StartServers(ctx, s.cfg.Tools, tools.StartOptions{
		Cwd:                s.cfg.Cwd,
		AllowedDirectories: s.cfg.Tools.AllowedDirectories,
	}, log.Base())
	if err != nil {
		log.Warn(ctx, "tool servers unavailable, continuing without tools", "error", err)
		return mcp.NewManager(log.Base()), map[string]tools.Descriptor{}
	}

	discovered := tools.Discover(mgr, log.Base())
	discovered = tools.FilterAllowed(discovered, s.cfg.Policy.AllowedTools, s.cfg.Policy.DeniedTools)
	log.Debug(ctx, "tools discovered", "count", len(discovered))
	return mgr, discovered
}

func (s *Scheduler) sweepLoop() {
	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-t.C:
			if n := s.arbiter.Sweep(sweepMaxAge); n > 0 {
				s.logger.Base().Warn("swept stale approval requests", "count", n)
			}
		}
	}
}
