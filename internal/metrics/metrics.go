package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the gateway's Prometheus instruments. A nil *Metrics is a no-op.
type Metrics struct {
	// Calls counts terminal call outcomes.
	// Labels: tool_name, status (OK|CONFIRMATION_REQUIRED|DENIED|ERROR)
	Calls *prometheus.CounterVec

	// Decisions counts policy verdicts.
	// Labels: tool_name, decision (ALLOW|REQUIRE_CONFIRM|DENY)
	Decisions *prometheus.CounterVec

	// ExecutionDuration measures handler runtime in seconds, timeouts included.
	// Labels: tool_name
	ExecutionDuration *prometheus.HistogramVec

	// Timeouts counts handlers that outlived their timeout.
	// Labels: tool_name
	Timeouts *prometheus.CounterVec

	// IdempotentReplays counts calls answered from the idempotency cache or an in-flight execution.
	// Labels: tool_name
	IdempotentReplays *prometheus.CounterVec

	// ProposalTransitions counts proposal lifecycle changes.
	// Labels: status (NEEDS_CONFIRMATION|APPROVED|REJECTED|EXECUTED|FAILED)
	ProposalTransitions *prometheus.CounterVec

	// CachedResults is the current size of the idempotency cache.
	CachedResults prometheus.Gauge
}

// New creates the instruments and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_gateway_calls_total",
				Help: "Total tool calls by tool and terminal status",
			},
			[]string{"tool_name", "status"},
		),
		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_gateway_policy_decisions_total",
				Help: "Total policy decisions by tool and decision",
			},
			[]string{"tool_name", "decision"},
		),
		ExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tool_gateway_execution_duration_seconds",
				Help:    "Tool handler execution time in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"tool_name"},
		),
		Timeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_gateway_timeouts_total",
				Help: "Total tool executions that hit their timeout",
			},
			[]string{"tool_name"},
		),
		IdempotentReplays: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_gateway_idempotent_replays_total",
				Help: "Total calls served without invoking the handler because of an idempotency key",
			},
			[]string{"tool_name"},
		),
		ProposalTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_gateway_proposal_transitions_total",
				Help: "Total proposal lifecycle transitions by resulting status",
			},
			[]string{"status"},
		),
		CachedResults: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tool_gateway_idempotency_cache_entries",
				Help: "Number of results held in the idempotency cache",
			},
		),
	}
	reg.MustRegister(
		m.Calls,
		m.Decisions,
		m.ExecutionDuration,
		m.Timeouts,
		m.IdempotentReplays,
		m.ProposalTransitions,
		m.CachedResults,
	)
	return m
}

func (m *Metrics) ObserveCall(toolName, status string) {
	if m == nil {
		return
	}
	m.Calls.WithLabelValues(toolName, status).Inc()
}

func (m *Metrics) ObserveDecision(toolName, decision string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(toolName, decision).Inc()
}

func (m *Metrics) ObserveExecution(toolName string, d time.Duration, timedOut bool) {
	if m == nil {
		return
	}
	m.ExecutionDuration.WithLabelValues(toolName).Observe(d.Seconds())
	if timedOut {
		m.Timeouts.WithLabelValues(toolName).Inc()
	}
}

func (m *Metrics) ObserveReplay(toolName string) {
	if m == nil {
		return
	}
	m.IdempotentReplays.WithLabelValues(toolName).Inc()
}

func (m *Metrics) ObserveProposal(status string) {
	if m == nil {
		return
	}
	m.ProposalTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) SetCachedResults(n int) {
	if m == nil {
		return
	}
	m.CachedResults.Set(float64(n))
}
