// Package metrics exposes the prometheus vectors every kernel component
// reports through, grounded on infrastructure/metrics's "construct once,
// inject everywhere" style.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every counter/histogram/gauge the kernel publishes.
type Metrics struct {
	ActionsTotal      *prometheus.CounterVec
	ActionLatency     *prometheus.HistogramVec
	RateLimitRejects  *prometheus.CounterVec
	LedgerBalance     *prometheus.GaugeVec
	LoopHibernations  *prometheus.CounterVec
	LoopIterations    *prometheus.CounterVec
	ArtifactsTotal    prometheus.Gauge
	EventsAppended    prometheus.Counter
	LLMCallsTotal     *prometheus.CounterVec
	LLMSpendDollars   *prometheus.CounterVec
}

// New constructs and registers a Metrics set against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentsim",
			Subsystem: "dispatcher",
			Name:      "actions_total",
			Help:      "Total dispatched actions by intent kind and outcome.",
		}, []string{"intent", "outcome"}),
		ActionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentsim",
			Subsystem: "dispatcher",
			Name:      "action_duration_seconds",
			Help:      "Dispatch latency by intent kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"intent"}),
		RateLimitRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentsim",
			Subsystem: "dispatcher",
			Name:      "rate_limit_rejections_total",
			Help:      "Actions rejected due to rate-tracker capacity by resource.",
		}, []string{"resource"}),
		LedgerBalance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "agentsim",
			Subsystem: "ledger",
			Name:      "balance",
			Help:      "Current principal balance by resource.",
		}, []string{"principal_id", "resource"}),
		LoopHibernations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentsim",
			Subsystem: "loopmanager",
			Name:      "hibernations_total",
			Help:      "Loop hibernation events by reason.",
		}, []string{"reason"}),
		LoopIterations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentsim",
			Subsystem: "loopmanager",
			Name:      "ooda_iterations_total",
			Help:      "Completed OODA iterations by agent.",
		}, []string{"agent_id"}),
		ArtifactsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentsim",
			Subsystem: "world",
			Name:      "artifacts_total",
			Help:      "Live (non-deleted) artifact count.",
		}),
		EventsAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agentsim",
			Subsystem: "world",
			Name:      "events_appended_total",
			Help:      "Total events appended to the event log.",
		}),
		LLMCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentsim",
			Subsystem: "llmgateway",
			Name:      "calls_total",
			Help:      "LLM gateway calls by caller and outcome.",
		}, []string{"caller_id", "outcome"}),
		LLMSpendDollars: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentsim",
			Subsystem: "llmgateway",
			Name:      "spend_dollars_total",
			Help:      "Cumulative billed LLM spend by payer.",
		}, []string{"payer_id"}),
	}

	reg.MustRegister(
		m.ActionsTotal,
		m.ActionLatency,
		m.RateLimitRejects,
		m.LedgerBalance,
		m.LoopHibernations,
		m.LoopIterations,
		m.ArtifactsTotal,
		m.EventsAppended,
		m.LLMCallsTotal,
		m.LLMSpendDollars,
	)
	return m
}

// NewWithDefaultRegistry registers against prometheus.DefaultRegisterer.
func NewWithDefaultRegistry() *Metrics {
	return New(prometheus.DefaultRegisterer)
}
