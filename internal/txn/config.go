package txn

import "github.com/latticectl/lattice/internal/telemetry"

// Config carries the options the spec recognizes (§6.4). These are passed
// explicitly at Transaction construction — the engine never reads
// process-wide state, per Design Note "Global configuration".
type Config struct {
	// Tags, when non-empty, restricts evaluation to resources carrying at
	// least one of them, unless IgnoreTags is set.
	Tags []string

	// IgnoreTags bypasses tag filtering entirely.
	IgnoreTags bool

	// IgnoreSchedules bypasses schedule filtering entirely.
	IgnoreSchedules bool

	// Trace, when set, makes the engine capture a stack trace with
	// runtime/debug.Stack and append it to log lines emitted for caught
	// errors. The engine itself never panics to produce one.
	Trace bool

	// Policy, if set, is consulted once per resource alongside tag and
	// schedule filtering. A denial skips the resource before apply with a
	// warning and counts it under policy_denied rather than skipped; its
	// dependents are not skipped because of it.
	Policy Gate

	// Tracer, if set, wraps Evaluate in a "transaction.evaluate" span and
	// each resource's apply in a child "resource.evaluate" span, plus a
	// span per trigger callback invocation.
	Tracer *telemetry.Tracer

	// Metrics, if set, is fed the finished Report's per-kind durations and
	// outcome counters once Evaluate completes.
	Metrics *telemetry.Metrics
}
