package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ─── Runner ──────────────────────────────────────────────────────────────────

	RunnerTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agent",
		Subsystem: "runner",
		Name:      "tasks_total",
		Help:      "Total task runs, labelled by terminal status.",
	}, []string{"status"})

	RunnerStepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agent",
		Subsystem: "runner",
		Name:      "steps_total",
		Help:      "Total loop steps executed, labelled by action kind.",
	}, []string{"action"})

	RunnerStepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "agent",
		Subsystem: "runner",
		Name:      "step_duration_seconds",
		Help:      "Wall time of one analyze-decide-execute step.",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	})

	RunnerFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agent",
		Subsystem: "runner",
		Name:      "fallbacks_total",
		Help:      "Total steps where the fallback policy replaced the oracle decision.",
	})

	RunnerBlockedActionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agent",
		Subsystem: "runner",
		Name:      "blocked_actions_total",
		Help:      "Total actions rejected by the safety validator.",
	})

	// ─── Oracle ──────────────────────────────────────────────────────────────────

	OracleRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agent",
		Subsystem: "oracle",
		Name:      "retries_total",
		Help:      "Total retry attempts against the decision oracle.",
	})

	OracleCircuitState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "agent",
		Subsystem: "oracle",
		Name:      "circuit_state",
		Help:      "Circuit breaker state: 0=closed, 1=half-open, 2=open.",
	})

	OracleCircuitRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agent",
		Subsystem: "oracle",
		Name:      "circuit_rejections_total",
		Help:      "Total calls rejected while the circuit was open.",
	})

	// ─── Admission ───────────────────────────────────────────────────────────────

	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agent",
		Subsystem: "admission",
		Name:      "rate_limited_total",
		Help:      "Total task submissions rejected by the rate limiter.",
	})

	// ─── Checkpoints ─────────────────────────────────────────────────────────────

	CheckpointsSavedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agent",
		Subsystem: "checkpoint",
		Name:      "saved_total",
		Help:      "Total checkpoints persisted.",
	})

	CheckpointsSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agent",
		Subsystem: "checkpoint",
		Name:      "swept_total",
		Help:      "Total checkpoints removed by the age sweep.",
	})

	// ─── Build ───────────────────────────────────────────────────────────────────

	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "agent",
		Name:      "build_info",
		Help:      "Always 1; labels carry the build version and commit.",
	}, []string{"version", "commit"})
)
