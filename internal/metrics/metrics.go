package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline counters, partitioned by entity level.

var (
	// Suggest
	BatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "terminal",
		Subsystem: "suggest",
		Name:      "batches_total",
		Help:      "Total decision batches persisted",
	}, []string{"level", "strategy"})

	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "terminal",
		Subsystem: "suggest",
		Name:      "decisions_total",
		Help:      "Total decisions emitted, by action",
	}, []string{"level", "action"})

	LowConfidenceTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "terminal",
		Subsystem: "suggest",
		Name:      "low_confidence_total",
		Help:      "Decisions forced to hold by the confidence veto",
	}, []string{"level"})

	CooldownBlockedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "terminal",
		Subsystem: "suggest",
		Name:      "cooldown_blocked_total",
		Help:      "Decisions forced to hold by an active cooldown",
	}, []string{"level"})

	MalformedRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "terminal",
		Subsystem: "suggest",
		Name:      "malformed_rows_total",
		Help:      "Rows with unparseable numeric fields",
	}, []string{"level"})

	SpendDeltaUSD = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "terminal",
		Subsystem: "suggest",
		Name:      "spend_delta_usd",
		Help:      "Estimated spend delta of the latest batch",
	}, []string{"level"})

	SuggestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "terminal",
		Subsystem: "suggest",
		Name:      "duration_seconds",
		Help:      "Suggest run duration including collection",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"level"})

	// Apply
	CooldownsWrittenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "terminal",
		Subsystem: "apply",
		Name:      "cooldowns_written_total",
		Help:      "Cooldown records written for applied decisions",
	}, []string{"level"})

	// Learn
	LearnerUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "terminal",
		Subsystem: "learner",
		Name:      "updates_total",
		Help:      "Entity policy states updated from realized outcomes",
	}, []string{"level"})

	LearnerNotReadyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "terminal",
		Subsystem: "learner",
		Name:      "not_ready_total",
		Help:      "Learn runs refused by the freshness gate",
	}, []string{"level"})

	LearnerSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "terminal",
		Subsystem: "learner",
		Name:      "skipped_total",
		Help:      "Decisions the learner skipped, by reason",
	}, []string{"level", "reason"})

	// Lanes
	LaneReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "terminal",
		Subsystem: "lanes",
		Name:      "reloads_total",
		Help:      "Lane table reload attempts, by result",
	}, []string{"result"})
)
