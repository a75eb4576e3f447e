// Package observability exposes the Prometheus metrics every subsystem
// reports into, registered at init via promauto.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueDepth tracks the per-class STS queue depth.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dayforge_sts_queue_depth",
		Help: "Current number of tasks queued per priority class",
	}, []string{"priority"})

	// SchedulerDecisions tracks scheduling decisions by kind; LTS plan_day
	// runs are the only kind recorded.
	SchedulerDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dayforge_scheduler_decisions_total",
		Help: "Total scheduling decisions made by kind and outcome",
	}, []string{"kind", "outcome"})

	// PlanDayDuration tracks the duration of a single plan_day run.
	PlanDayDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dayforge_lts_plan_day_duration_seconds",
		Help:    "Duration of a single LTS plan_day invocation",
		Buckets: prometheus.DefBuckets,
	})

	// DisruptionsTotal tracks classified disruptions by severity/action.
	DisruptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dayforge_disruptions_total",
		Help: "Total disruptions classified, by severity and recommended action",
	}, []string{"severity", "action"})

	// PollerCycles tracks poller cycles by source and outcome.
	PollerCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dayforge_poller_cycles_total",
		Help: "Context poller cycles, by source and outcome",
	}, []string{"source", "outcome"})

	// PollerCircuitState reports each source's circuit breaker position.
	PollerCircuitState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dayforge_poller_circuit_state",
		Help: "Context poller circuit breaker state (0=closed, 1=half_open, 2=open)",
	}, []string{"source"})

	// EnergyLevelGauge tracks the last computed energy level; its confidence
	// is EnergyConfidence below.
	EnergyLevelGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dayforge_energy_level",
		Help: "Most recently computed energy level (1-5)",
	})

	EnergyConfidence = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dayforge_energy_confidence",
		Help: "Confidence (0-1) of the most recently computed energy level",
	})

	// ProfilerDrift tracks drift events emitted by the Profiler.
	ProfilerDrift = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dayforge_profiler_drift_total",
		Help: "Profile drift events detected, by changed field",
	}, []string{"field"})

	// ArchetypeGauge tracks the current archetype as a one-hot gauge set.
	ArchetypeGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dayforge_profiler_archetype",
		Help: "Current archetype (1 for the active archetype, 0 otherwise)",
	}, []string{"archetype"})

	// DraftsTotal tracks delegation drafts by terminal status.
	DraftsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dayforge_drafts_total",
		Help: "Delegation drafts by terminal status",
	}, []string{"status"})

	// DelegationCostUnits tracks cumulative cost units spent on delegation.
	DelegationCostUnits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dayforge_delegation_cost_units_total",
		Help: "Cumulative cost units consumed by executed delegations",
	})

	// RedisLatency tracks KV substrate round-trip latency.
	RedisLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dayforge_redis_roundtrip_latency_seconds",
		Help:    "KV substrate operation latency",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
	})

	// ConnectedClients tracks the number of connected WebSocket clients.
	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dayforge_connected_clients",
		Help: "Current number of connected WebSocket clients",
	})

	// BroadcastFailures tracks dropped/failed client broadcasts.
	BroadcastFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dayforge_broadcast_failures_total",
		Help: "Client broadcasts dropped or failed, by reason",
	}, []string{"reason"})
)
