package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the ambient Prometheus surface for the engine: a scrape
// endpoint distinct from the per-transaction Report the engine itself
// produces (internal/txn.Report). Observe projects one onto the other.
type Metrics struct {
	config MetricsConfig

	transactionsStarted   prometheus.Counter
	transactionsCompleted *prometheus.CounterVec
	resourceDuration      *prometheus.HistogramVec
	resourcesByOutcome    *prometheus.CounterVec
	triggersFired         *prometheus.CounterVec
	rollbacks             prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics builds a Metrics collector. If cfg.Enabled is false, a no-op
// instance is returned (every method is still safe to call).
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	registry := prometheus.NewRegistry()
	m := &Metrics{
		config:   cfg,
		registry: registry,
		transactionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "transactions_started_total",
			Help:      "Total number of transactions started",
		}),
		transactionsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "transactions_completed_total",
			Help:      "Total number of transactions completed, by whether any resource failed",
		}, []string{"outcome"}),
		resourceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "resource_apply_duration_seconds",
			Help:      "Duration of a single resource's apply call",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		resourcesByOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "resources_total",
			Help:      "Resources evaluated, by outcome",
		}, []string{"outcome"}),
		triggersFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "triggers_fired_total",
			Help:      "Callbacks invoked by the trigger engine, by callback name",
		}, []string{"callback"}),
		rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "rollbacks_total",
			Help:      "Total number of rollbacks performed",
		}),
	}

	registry.MustRegister(
		m.transactionsStarted,
		m.transactionsCompleted,
		m.resourceDuration,
		m.resourcesByOutcome,
		m.triggersFired,
		m.rollbacks,
	)
	return m, nil
}

// Handler returns the HTTP handler serving the Prometheus scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordTransactionStarted() {
	if m.transactionsStarted != nil {
		m.transactionsStarted.Inc()
	}
}

func (m *Metrics) RecordTransactionCompleted(failed bool) {
	if m.transactionsCompleted == nil {
		return
	}
	outcome := "success"
	if failed {
		outcome = "failed"
	}
	m.transactionsCompleted.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveResourceDuration(kind string, seconds float64) {
	if m.resourceDuration != nil {
		m.resourceDuration.WithLabelValues(kind).Observe(seconds)
	}
}

func (m *Metrics) RecordResourceOutcome(outcome string) {
	if m.resourcesByOutcome != nil {
		m.resourcesByOutcome.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) RecordTrigger(callback string) {
	if m.triggersFired != nil {
		m.triggersFired.WithLabelValues(callback).Inc()
	}
}

func (m *Metrics) RecordRollback() {
	if m.rollbacks != nil {
		m.rollbacks.Inc()
	}
}

// Observe projects a finished transaction Report onto the ambient
// Prometheus surface: per-kind durations, outcome counters by resource
// class, and a single completed/failed counter for the transaction itself.
func (m *Metrics) Observe(resources map[string]float64, timePerKind map[string]float64) {
	if m.registry == nil {
		return
	}
	for kind, seconds := range timePerKind {
		if kind == "total" {
			continue
		}
		m.ObserveResourceDuration(kind, seconds)
	}
	m.resourcesByOutcome.WithLabelValues("applied").Add(resources["applied"])
	m.resourcesByOutcome.WithLabelValues("skipped").Add(resources["skipped"])
	m.resourcesByOutcome.WithLabelValues("failed").Add(resources["failed"])
	m.RecordTransactionCompleted(resources["failed"] > 0)
}
