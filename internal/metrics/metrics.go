package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PassRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "automation_pass_requests_total",
		Help: "Evaluation passes requested, labelled by what requested them.",
	}, []string{"reason"})

	PassRequestsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "automation_pass_requests_dropped_total",
		Help: "Pass requests coalesced because an equivalent pass was already queued.",
	})

	Passes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "automation_passes_total",
		Help: "Evaluation passes completed.",
	})

	PassFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "automation_pass_failures_total",
		Help: "Passes that ended in a recovered panic.",
	})

	PassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "automation_pass_duration_seconds",
		Help:    "Wall time of one evaluation pass, settle delays included.",
		Buckets: []float64{0.001, 0.01, 0.1, 1, 3, 5, 10, 30, 60},
	})

	RulesFired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "automation_rules_fired_total",
		Help: "Rules whose action lists were executed.",
	})

	GateBlocked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "automation_gate_blocked_total",
		Help: "Gate checks that disabled common rules, labelled by check.",
	}, []string{"check"})

	ActionsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "automation_actions_total",
		Help: "Actions handled by the executor, labelled by type and status.",
	}, []string{"action_type", "status"})

	PersistErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "automation_persist_errors_total",
		Help: "Failed attempts to store the rule document.",
	})

	Rules = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "automation_rules",
		Help: "Rules currently held by the store.",
	})
)
