package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the engine's Prometheus instrumentation.
//
// Tracked concerns:
//   - Turn and cycle throughput, by final status
//   - Pipeline handler latency against stage budgets
//   - Provider call performance and token spend
//   - Tool execution and approval outcomes
//   - Rule engine health (iterations, loop detections)
//
// All metrics register with the default registry; the serve path exposes
// them on the configured metrics address.
type Metrics struct {
	// TurnCounter counts scheduled turns.
	// Labels: status (completed|interrupted|failed|rejected)
	TurnCounter *prometheus.CounterVec

	// TurnDuration measures full turn latency in seconds.
	// Labels: status
	TurnDuration *prometheus.HistogramVec

	// CycleCounter counts machine cycles by strategy and status.
	// Labels: strategy (direct|sequential|parallel|task|fallback), status
	CycleCounter *prometheus.CounterVec

	// HandlerDuration measures pipeline and execution handler latency.
	// Labels: handler
	HandlerDuration *prometheus.HistogramVec

	// BudgetOverruns counts handlers exceeding their stage budget.
	// Labels: handler
	BudgetOverruns *prometheus.CounterVec

	// ProviderRequestDuration measures LLM API call latency in seconds.
	// Labels: provider, model
	ProviderRequestDuration *prometheus.HistogramVec

	// ProviderRequestCounter counts LLM calls.
	// Labels: provider, model, status (success|error)
	ProviderRequestCounter *prometheus.CounterVec

	// ProviderTokens tracks token consumption.
	// Labels: provider, model, type (prompt|completion)
	ProviderTokens *prometheus.CounterVec

	// ToolCallCounter counts tool invocations.
	// Labels: tool, status (success|error)
	ToolCallCounter *prometheus.CounterVec

	// ToolCallDuration measures tool execution time in seconds.
	// Labels: tool
	ToolCallDuration *prometheus.HistogramVec

	// ApprovalCounter counts approval resolutions.
	// Labels: outcome (approved|denied|timeout|swept)
	ApprovalCounter *prometheus.CounterVec

	// RuleIterations observes iterations per rule evaluation.
	RuleIterations prometheus.Histogram

	// RuleLoopDetections counts evaluations that hit the iteration cap.
	RuleLoopDetections prometheus.Counter

	// RuleErrors counts per-rule condition or action failures.
	// Labels: rule
	RuleErrors *prometheus.CounterVec

	// SignalCounter counts detected signals surviving the dimension gate.
	// Labels: dimension, signal
	SignalCounter *prometheus.CounterVec

	// ActiveTurns gauges turns currently executing in this process.
	ActiveTurns prometheus.Gauge

	// JournalAppends counts events written to session journals.
	JournalAppends prometheus.Counter

	// InterruptCounter counts user interrupts by stage.
	// Labels: stage
	InterruptCounter *prometheus.CounterVec

	// ErrorCounter tracks errors by component and kind.
	// Labels: component, kind
	ErrorCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all engine metrics. Call once at
// startup; duplicate registration panics by promauto design.
func NewMetrics() *Metrics {
	return &Metrics{
		TurnCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "thinksuit_turns_total",
				Help: "Total turns scheduled, by final status",
			},
			[]string{"status"},
		),

		TurnDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "thinksuit_turn_duration_seconds",
				Help:    "Full turn latency in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),

		CycleCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "thinksuit_cycles_total",
				Help: "Machine cycles executed, by strategy and status",
			},
			[]string{"strategy", "status"},
		),

		HandlerDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "thinksuit_handler_duration_seconds",
				Help:    "Pipeline and execution handler latency in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"handler"},
		),

		BudgetOverruns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "thinksuit_handler_budget_overruns_total",
				Help: "Handlers that exceeded their stage budget",
			},
			[]string{"handler"},
		),

		ProviderRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "thinksuit_provider_request_duration_seconds",
				Help:    "LLM API call latency in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		ProviderRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "thinksuit_provider_requests_total",
				Help: "Total LLM calls by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		ProviderTokens: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "thinksuit_provider_tokens_total",
				Help: "Token consumption by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		ToolCallCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "thinksuit_tool_calls_total",
				Help: "Tool invocations by tool and status",
			},
			[]string{"tool", "status"},
		),

		ToolCallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "thinksuit_tool_call_duration_seconds",
				Help:    "Tool execution time in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool"},
		),

		ApprovalCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "thinksuit_approvals_total",
				Help: "Approval resolutions by outcome",
			},
			[]string{"outcome"},
		),

		RuleIterations: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "thinksuit_rule_iterations",
				Help:    "Iterations per rule evaluation",
				Buckets: []float64{1, 2, 4, 8, 16, 24, 32},
			},
		),

		RuleLoopDetections: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "thinksuit_rule_loop_detections_total",
				Help: "Rule evaluations that hit the iteration cap",
			},
		),

		RuleErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "thinksuit_rule_errors_total",
				Help: "Per-rule condition or action failures",
			},
			[]string{"rule"},
		),

		SignalCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "thinksuit_signals_total",
				Help: "Signals surviving the dimension gate",
			},
			[]string{"dimension", "signal"},
		),

		ActiveTurns: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "thinksuit_active_turns",
				Help: "Turns currently executing in this process",
			},
		),

		JournalAppends: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "thinksuit_journal_appends_total",
				Help: "Events written to session journals",
			},
		),

		InterruptCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "thinksuit_interrupts_total",
				Help: "User interrupts by stage at which they landed",
			},
			[]string{"stage"},
		),

		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "thinksuit_errors_total",
				Help: "Errors by component and kind",
			},
			[]string{"component", "kind"},
		),
	}
}

// NewTestMetrics creates metrics on a private registry so parallel tests
// cannot collide on the default one.
func NewTestMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		TurnCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "thinksuit_turns_total", Help: "test",
		}, []string{"status"}),
		TurnDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name: "thinksuit_turn_duration_seconds", Help: "test",
		}, []string{"status"}),
		CycleCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "thinksuit_cycles_total", Help: "test",
		}, []string{"strategy", "status"}),
		HandlerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name: "thinksuit_handler_duration_seconds", Help: "test",
		}, []string{"handler"}),
		BudgetOverruns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "thinksuit_handler_budget_overruns_total", Help: "test",
		}, []string{"handler"}),
		ProviderRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name: "thinksuit_provider_request_duration_seconds", Help: "test",
		}, []string{"provider", "model"}),
		ProviderRequestCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "thinksuit_provider_requests_total", Help: "test",
		}, []string{"provider", "model", "status"}),
		ProviderTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "thinksuit_provider_tokens_total", Help: "test",
		}, []string{"provider", "model", "type"}),
		ToolCallCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "thinksuit_tool_calls_total", Help: "test",
		}, []string{"tool", "status"}),
		ToolCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name: "thinksuit_tool_call_duration_seconds", Help: "test",
		}, []string{"tool"}),
		ApprovalCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "thinksuit_approvals_total", Help: "test",
		}, []string{"outcome"}),
		RuleIterations: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "thinksuit_rule_iterations", Help: "test",
		}),
		RuleLoopDetections: factory.NewCounter(prometheus.CounterOpts{
			Name: "thinksuit_rule_loop_detections_total", Help: "test",
		}),
		RuleErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "thinksuit_rule_errors_total", Help: "test",
		}, []string{"rule"}),
		SignalCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "thinksuit_signals_total", Help: "test",
		}, []string{"dimension", "signal"}),
		ActiveTurns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "thinksuit_active_turns", Help: "test",
		}),
		JournalAppends: factory.NewCounter(prometheus.CounterOpts{
			Name: "thinksuit_journal_appends_total", Help: "test",
		}),
		InterruptCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "thinksuit_interrupts_total", Help: "test",
		}, []string{"stage"}),
		ErrorCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "thinksuit_errors_total", Help: "test",
		}, []string{"component", "kind"}),
	}
}
