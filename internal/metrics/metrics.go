// Package metrics exposes Prometheus collectors for the sync engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Snapshot discard reasons.
const (
	ReasonStale       = "stale"
	ReasonWrongThread = "wrong_thread"
	ReasonError       = "error"
)

// Mutation outcomes.
const (
	OutcomeConfirmed = "confirmed"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
)

// Metrics holds the engine collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	pollTicks          *prometheus.CounterVec
	pollSkipped        *prometheus.CounterVec
	pollFailures       *prometheus.CounterVec
	snapshotsDiscarded *prometheus.CounterVec
	mutations          *prometheus.CounterVec
	mutationsInFlight  prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		pollTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parley",
			Name:      "poll_ticks_total",
			Help:      "Refreshes issued per poll scope.",
		}, []string{"scope"}),
		pollSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parley",
			Name:      "poll_ticks_skipped_total",
			Help:      "Ticks skipped because the scope was at its concurrency limit.",
		}, []string{"scope"}),
		pollFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parley",
			Name:      "poll_failures_total",
			Help:      "Refreshes that failed per poll scope.",
		}, []string{"scope"}),
		snapshotsDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parley",
			Name:      "snapshots_discarded_total",
			Help:      "Snapshots fetched but not applied.",
		}, []string{"scope", "reason"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parley",
			Name:      "mutations_total",
			Help:      "Optimistic mutations by kind and outcome.",
		}, []string{"kind", "outcome"}),
		mutationsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "parley",
			Name:      "mutations_in_flight",
			Help:      "Mutations awaiting a server response.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.pollTicks, m.pollSkipped, m.pollFailures,
		m.snapshotsDiscarded, m.mutations, m.mutationsInFlight,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// PollTick counts an issued refresh.
func (m *Metrics) PollTick(scope string) {
	if m == nil {
		return
	}
	m.pollTicks.WithLabelValues(scope).Inc()
}

// PollSkipped counts a skipped tick.
func (m *Metrics) PollSkipped(scope string) {
	if m == nil {
		return
	}
	m.pollSkipped.WithLabelValues(scope).Inc()
}

// PollFailed counts a failed refresh.
func (m *Metrics) PollFailed(scope string) {
	if m == nil {
		return
	}
	m.pollFailures.WithLabelValues(scope).Inc()
}

// SnapshotDiscarded counts a snapshot that was fetched but not applied.
func (m *Metrics) SnapshotDiscarded(scope, reason string) {
	if m == nil {
		return
	}
	m.snapshotsDiscarded.WithLabelValues(scope, reason).Inc()
}

// MutationStarted increments the in-flight gauge.
func (m *Metrics) MutationStarted() {
	if m == nil {
		return
	}
	m.mutationsInFlight.Inc()
}

// MutationResolved decrements the in-flight gauge and counts the outcome.
func (m *Metrics) MutationResolved(kind, outcome string) {
	if m == nil {
		return
	}
	m.mutationsInFlight.Dec()
	m.mutations.WithLabelValues(kind, outcome).Inc()
}

// MutationRejected counts a write refused before any mutation was created.
func (m *Metrics) MutationRejected(kind string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(kind, OutcomeRejected).Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
