package txn

import "time"

// ReportSink is the produced interface (§6.3) the engine emits its metric
// groups and wall-clock time to when evaluate finishes. name is one of
// "resources", "time", "changes"; values is a flat key to number mapping.
type ReportSink interface {
	NewMetric(name string, values map[string]float64)
	SetTime(t time.Time)

	// Log destination methods. Transaction does not call these; it logs
	// through each resource's own logging hooks.
	Debug(msg string)
	Info(msg string)
	Notice(msg string)
	Warning(msg string)
	Err(msg string)
}

// resourcemetrics keys, per §4.6.
const (
	metricTotal          = "total"
	metricOutOfSync      = "out_of_sync"
	metricApplied        = "applied"
	metricSkipped        = "skipped"
	metricRestarted      = "restarted"
	metricFailedRestarts = "failed_restarts"
	metricScheduled      = "scheduled"
	metricFailed         = "failed"

	// metricPolicyDenied is a domain-stack addition: resources skipped by
	// the policy Gate rather than by tag/schedule filtering or a failed
	// dependency.
	metricPolicyDenied = "policy_denied"
)

type resourceMetrics struct {
	counters map[string]float64
}

func newResourceMetrics() *resourceMetrics {
	return &resourceMetrics{counters: make(map[string]float64)}
}

func (m *resourceMetrics) inc(key string) {
	m.counters[key]++
}

// snapshot returns the emitted values map, computing "failed" from the
// caller-supplied count of resources with a positive failure tally (that
// count is not itself a counter incremented in-line; it is derived at
// report time per the spec).
func (m *resourceMetrics) snapshot(failedCount int) map[string]float64 {
	out := make(map[string]float64, len(m.counters)+1)
	for k, v := range m.counters {
		out[k] = v
	}
	out[metricFailed] = float64(failedCount)
	return out
}

// timeMetrics accumulates elapsed seconds per resource kind.
type timeMetrics struct {
	byKind map[string]float64
}

func newTimeMetrics() *timeMetrics {
	return &timeMetrics{byKind: make(map[string]float64)}
}

func (m *timeMetrics) add(kind string, seconds float64) {
	m.byKind[kind] += seconds
}

// perKind returns a copy of the internal per-kind breakdown, for feeding
// Prometheus histograms — a different destination than the emitted
// Report, which carries only the aggregate.
func (m *timeMetrics) perKind() map[string]float64 {
	out := make(map[string]float64, len(m.byKind))
	for k, v := range m.byKind {
		out[k] = v
	}
	return out
}

// snapshot returns only the aggregate across all kinds. Per-kind entries
// are accumulated internally but excluded before emission — only "total"
// is ever reported.
func (m *timeMetrics) snapshot() map[string]float64 {
	var total float64
	for _, v := range m.byKind {
		total += v
	}
	return map[string]float64{metricTotal: total}
}

// Report is the final structured output of a transaction: the three metric
// groups plus a wall-clock stamp.
type Report struct {
	Resources map[string]float64
	Time      map[string]float64
	Changes   map[string]float64
	StampedAt time.Time
}
