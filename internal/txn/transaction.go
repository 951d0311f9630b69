// Package txn implements the Scheduler/Evaluator, Trigger Engine, Rollback
// and Metrics & Report components: the sequential driver that prepares a
// relationship graph, evaluates each resource in topological order, routes
// events to subscribers, and supports reverse-order rollback of whatever it
// applied.
//
// Deliberately sequential: scheduling here is single-threaded by design
// (§5), not an oversight — a transaction owns its state exclusively during
// Evaluate and Rollback, and resource operations are treated as
// synchronous, uncancellable blocking calls.
package txn

import (
	"container/list"
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/latticectl/lattice/internal/change"
	"github.com/latticectl/lattice/internal/graph"
	"github.com/latticectl/lattice/internal/relationship"
	"github.com/latticectl/lattice/internal/resource"
	"github.com/latticectl/lattice/internal/telemetry"
)

// Transaction drives one sequential evaluation of a resource set. It is
// not reentrant: running Evaluate twice on the same instance is undefined,
// matching §5's reentrancy note.
type Transaction struct {
	id     string
	cfg    Config
	report ReportSink

	resources     map[string]resource.Resource
	resourceOrder []string
	parentOf      map[string]string

	relGraph  *graph.Graph[string]
	order     *list.List
	nodeByRef map[string]*list.Element

	failures  map[string]int
	targets   map[string][]graph.Edge[string]
	triggered map[string]map[string]int

	changes   []*change.Change
	generated []string

	metrics *resourceMetrics
	timers  *timeMetrics
}

// New constructs a Transaction over the given resources. report may be nil,
// in which case no report is emitted but the transaction still runs;
// cfg.Metrics, if set, is still fed.
func New(resources []resource.Resource, cfg Config, report ReportSink) *Transaction {
	t := &Transaction{
		id:        uuid.NewString(),
		cfg:       cfg,
		report:    report,
		resources: make(map[string]resource.Resource),
		parentOf:  make(map[string]string),
		failures:  make(map[string]int),
		targets:   make(map[string][]graph.Edge[string]),
		triggered: make(map[string]map[string]int),
		metrics:   newResourceMetrics(),
		timers:    newTimeMetrics(),
	}
	for _, r := range resources {
		t.addResource(r)
	}
	return t
}

// ID returns the transaction's unique identifier, used as the back-pointer
// stamped onto every Change and Event it produces.
func (t *Transaction) ID() string { return t.id }

// SetReport attaches a ReportSink after construction, for callers that
// need ID before they can build one (e.g. a persisted sink keyed by the
// transaction's own ID). Only meaningful before Evaluate runs.
func (t *Transaction) SetReport(report ReportSink) { t.report = report }

// logErr reports msg through r's Err log destination, appending a stack
// trace when cfg.Trace asks for one. The engine never panics to produce
// the trace; Trace only controls whether one is captured and attached to
// a log line for an error it caught.
func (t *Transaction) logErr(r resource.Resource, msg string) {
	if r == nil {
		return
	}
	if t.cfg.Trace {
		msg = msg + "\n" + string(debug.Stack())
	}
	r.Err(msg)
}

func (t *Transaction) addResource(r resource.Resource) {
	ref := r.Ref()
	if _, exists := t.resources[ref]; exists {
		return
	}
	t.resources[ref] = r
	t.resourceOrder = append(t.resourceOrder, ref)
	if p := r.Parent(); p != "" {
		t.parentOf[ref] = p
	}
}

func (t *Transaction) allResources() []resource.Resource {
	out := make([]resource.Resource, 0, len(t.resourceOrder))
	for _, ref := range t.resourceOrder {
		out = append(out, t.resources[ref])
	}
	return out
}

// Prepare runs prefetch, the generate fixed point, and builds the
// relationship graph and topological order. A cyclic relationship graph is
// a fatal preparation error that stops the transaction before any resource
// runs.
func (t *Transaction) Prepare(ctx context.Context) error {
	t.prefetch(ctx)
	t.generate(ctx)

	result, err := relationship.Build(t.allResources())
	if err != nil {
		return NewPermanentError("cyclic relationship graph", err).WithOperation("prepare")
	}

	t.relGraph = result.Graph
	for ref, parent := range result.Parent {
		t.parentOf[ref] = parent
	}

	t.order = list.New()
	t.nodeByRef = make(map[string]*list.Element, len(result.Order))
	for _, ref := range result.Order {
		t.nodeByRef[ref] = t.order.PushBack(ref)
	}
	return nil
}

func (t *Transaction) prefetch(ctx context.Context) {
	seen := make(map[string]bool)
	for _, r := range t.allResources() {
		wp, ok := r.(resource.WithProvider)
		if !ok {
			continue
		}
		p := wp.Provider()
		if p == nil || seen[p.Name()] {
			continue
		}
		seen[p.Name()] = true
		pf, ok := p.(resource.Prefetcher)
		if !ok {
			continue
		}
		if err := pf.Prefetch(ctx); err != nil {
			r.Warning(fmt.Sprintf("prefetch failed for provider %q: %v", p.Name(), err))
		}
	}
}

func (t *Transaction) generate(ctx context.Context) {
	for {
		added := false
		for _, r := range t.allResources() {
			g, ok := r.(resource.Generator)
			if !ok {
				continue
			}
			newRes, err := g.Generate(ctx)
			if err != nil {
				r.Warning(fmt.Sprintf("generate failed: %v", err))
				continue
			}
			for _, nr := range newRes {
				if _, exists := t.resources[nr.Ref()]; exists {
					continue
				}
				t.addResource(nr)
				t.generated = append(t.generated, nr.Ref())
				added = true
			}
		}
		if !added {
			break
		}
	}
}

func (t *Transaction) isTagged(r resource.Resource) bool {
	if t.cfg.IgnoreTags || len(t.cfg.Tags) == 0 {
		return true
	}
	return r.Tagged(t.cfg.Tags)
}

func (t *Transaction) isScheduled(r resource.Resource) bool {
	if t.cfg.IgnoreSchedules {
		return true
	}
	return r.Scheduled()
}

// Evaluate prepares, then walks sorted_resources calling eval_resource on
// each, flattening all returned events, emits the report, and cleans up
// generated resources in every path, a failed Prepare included. The report
// sink is not opened or used as a log destination.
func (t *Transaction) Evaluate(ctx context.Context) ([]change.Event, error) {
	if t.cfg.Metrics != nil {
		t.cfg.Metrics.RecordTransactionStarted()
	}

	var endSpan func(err error)
	if t.cfg.Tracer != nil {
		spanCtx, span := t.cfg.Tracer.StartTransactionSpan(ctx, t.id)
		ctx = spanCtx
		endSpan = func(err error) {
			if err != nil {
				telemetry.RecordError(span, err)
			} else {
				telemetry.RecordSuccess(span)
			}
			span.End()
		}
	}

	defer t.cleanup(ctx)
	if err := t.Prepare(ctx); err != nil {
		if endSpan != nil {
			endSpan(err)
		}
		return nil, err
	}

	var all []change.Event
	for e := t.order.Front(); e != nil; e = e.Next() {
		ref := e.Value.(string)
		r := t.resources[ref]
		all = append(all, t.evalResource(ctx, r)...)
	}

	t.emitReport()
	if endSpan != nil {
		endSpan(nil)
	}
	return all, nil
}

// eval_resource: filter, time the apply call, trigger accumulated events
// upward, and route every emitted event into targets.
func (t *Transaction) evalResource(ctx context.Context, r resource.Resource) []change.Event {
	if !t.isTagged(r) {
		return nil
	}
	if !t.isScheduled(r) {
		return nil
	}
	if !t.isAllowed(ctx, r) {
		t.metrics.inc(metricPolicyDenied)
		return nil
	}

	t.metrics.inc(metricScheduled)

	var span trace.Span
	if t.cfg.Tracer != nil {
		var spanCtx context.Context
		spanCtx, span = t.cfg.Tracer.StartResourceSpan(ctx, t.id, r.Ref(), "apply")
		ctx = spanCtx
	}

	start := time.Now()
	events := t.apply(ctx, r)
	elapsed := time.Since(start).Seconds()
	t.timers.add(r.Kind(), elapsed)

	if span != nil {
		if t.failures[r.Ref()] > 0 {
			telemetry.RecordError(span, fmt.Errorf("resource %s failed", r.Ref()))
		} else {
			telemetry.RecordSuccess(span)
		}
		span.End()
	}
	if t.cfg.Metrics != nil {
		t.cfg.Metrics.ObserveResourceDuration(r.Kind(), elapsed)
	}

	events = append(events, t.trigger(ctx, r.Ref())...)

	for _, ev := range events {
		for _, e := range t.relGraph.MatchingEdges([]graph.Event[string]{{Source: ev.Source, Kind: ev.Kind}}) {
			t.targets[e.Target] = append(t.targets[e.Target], e)
		}
	}
	return events
}

// apply computes and applies one resource's changes, per §4.3.
func (t *Transaction) apply(ctx context.Context, r resource.Resource) []change.Event {
	ref := r.Ref()

	for d := range t.relGraph.Reversal().TreeFromVertex(ref, graph.Out) {
		if d == ref {
			continue
		}
		if t.failures[d] > 0 {
			r.Warning(fmt.Sprintf("dependency %s has %d failure(s)", d, t.failures[d]))
			t.metrics.inc(metricSkipped)
			return nil
		}
	}

	if eg, ok := r.(resource.EvalGenerator); ok {
		children, err := eg.EvalGenerate(ctx)
		if err != nil {
			r.Warning(fmt.Sprintf("eval_generate failed: %v", err))
		} else {
			anchor := ref
			for _, child := range children {
				t.wireGeneratedChild(ref, child)
				t.insertAfter(anchor, child.Ref())
				anchor = child.Ref()
				t.generated = append(t.generated, child.Ref())
			}
		}
	}

	changes, err := r.Evaluate(ctx)
	if err != nil {
		t.logErr(r, fmt.Sprintf("evaluate failed: %v", err))
		t.failures[ref]++
		return nil
	}

	if len(changes) > 0 {
		t.metrics.inc(metricOutOfSync)
	}

	var events []change.Event
	for _, c := range changes {
		c.TransactionID = t.id
		t.changes = append(t.changes, c)

		evs, err := c.Forward(ctx)
		if err != nil {
			t.logErr(r, fmt.Sprintf("%s: %v", c.String(), err))
			t.failures[ref]++
			continue
		}
		if len(evs) > 0 {
			t.metrics.inc(metricApplied)
		}
		events = append(events, evs...)
	}

	if len(changes) > 0 {
		if s, ok := r.(resource.Syncer); ok {
			s.SetSynced(time.Now())
		}
		if f, ok := r.(resource.Flusher); ok {
			if err := f.Flush(ctx); err != nil {
				t.logErr(r, fmt.Sprintf("flush failed: %v", err))
			}
		}
	}

	return events
}

func (t *Transaction) wireGeneratedChild(parentRef string, child resource.Resource) {
	t.addResource(child)
	t.relGraph.AddVertex(child.Ref())
	for _, e := range t.relGraph.AdjacentEdges(parentRef, graph.Out) {
		t.relGraph.AddEdge(child.Ref(), e.Target, e.Label)
	}
	for _, e := range t.relGraph.AdjacentEdges(parentRef, graph.In) {
		t.relGraph.AddEdge(e.Source, child.Ref(), e.Label)
	}
}

func (t *Transaction) insertAfter(afterRef, newRef string) {
	anchor, ok := t.nodeByRef[afterRef]
	if !ok {
		return
	}
	t.nodeByRef[newRef] = t.order.InsertAfter(newRef, anchor)
}

// trigger walks upward via parent pointers starting at id (id itself is
// checked first), firing any accumulated targets at each ancestor.
func (t *Transaction) trigger(ctx context.Context, id string) []change.Event {
	var out []change.Event
	cur := id
	for cur != "" {
		out = append(out, t.fireAt(ctx, cur)...)
		cur = t.parentOf[cur]
	}
	return out
}

func (t *Transaction) fireAt(ctx context.Context, obj string) []change.Event {
	edges := t.targets[obj]
	if len(edges) == 0 {
		return nil
	}

	var order []string
	groups := make(map[string][]graph.Edge[string])
	for _, e := range edges {
		if e.Label.Callback == "" {
			continue
		}
		if _, ok := groups[e.Label.Callback]; !ok {
			order = append(order, e.Label.Callback)
		}
		groups[e.Label.Callback] = append(groups[e.Label.Callback], e)
	}

	r := t.resources[obj]
	var result []change.Event
	for _, cb := range order {
		contributing := groups[cb]
		if r != nil {
			r.Notice(fmt.Sprintf("triggering %q from %d subscription(s)", cb, len(contributing)))
		}
		if err := t.invoke(ctx, obj, cb); err != nil {
			t.metrics.inc(metricFailedRestarts)
			if r != nil {
				t.logErr(r, fmt.Sprintf("callback %q failed: %v", cb, err))
			}
		} else {
			t.metrics.inc(metricRestarted)
		}

		result = append(result, change.Event{Kind: change.TriggeredKind, Source: obj, TransactionID: t.id})
		if t.triggered[obj] == nil {
			t.triggered[obj] = make(map[string]int)
		}
		t.triggered[obj][cb]++
	}
	return result
}

func (t *Transaction) invoke(ctx context.Context, ref, callback string) error {
	var span trace.Span
	if t.cfg.Tracer != nil {
		var spanCtx context.Context
		spanCtx, span = t.cfg.Tracer.StartTriggerSpan(ctx, ref, callback)
		ctx = spanCtx
		defer span.End()
	}
	if t.cfg.Metrics != nil {
		t.cfg.Metrics.RecordTrigger(callback)
	}

	r, ok := t.resources[ref]
	if !ok {
		err := fmt.Errorf("trigger: unknown resource %q", ref)
		if span != nil {
			telemetry.RecordError(span, err)
		}
		return err
	}
	callable, ok := r.(resource.Callable)
	if !ok {
		err := fmt.Errorf("trigger: resource %q exposes no callbacks", ref)
		if span != nil {
			telemetry.RecordError(span, err)
		}
		return err
	}
	fn, ok := callable.Callback(callback)
	if !ok {
		err := fmt.Errorf("trigger: resource %q has no callback %q", ref, callback)
		if span != nil {
			telemetry.RecordError(span, err)
		}
		return err
	}
	err := fn(ctx)
	if span != nil {
		if err != nil {
			telemetry.RecordError(span, err)
		} else {
			telemetry.RecordSuccess(span)
		}
	}
	return err
}

// Rollback consumes recorded changes in strict reverse order, reverting
// every one whose Changed flag is true, routing the events that produces
// back through matching_edges into targets, and running trigger on each
// change's owning resource. targets and triggered are cleared first.
func (t *Transaction) Rollback(ctx context.Context) error {
	if t.cfg.Metrics != nil {
		t.cfg.Metrics.RecordRollback()
	}

	t.targets = make(map[string][]graph.Edge[string])
	t.triggered = make(map[string]map[string]int)

	for i := len(t.changes) - 1; i >= 0; i-- {
		c := t.changes[i]
		if !c.Changed {
			continue
		}

		events, err := c.Backward(ctx)
		if err != nil {
			if r, ok := t.resources[c.Resource]; ok {
				t.logErr(r, fmt.Sprintf("rollback failed for %s: %v", c.String(), err))
			}
			continue
		}

		for _, ev := range events {
			for _, e := range t.relGraph.MatchingEdges([]graph.Event[string]{{Source: ev.Source, Kind: ev.Kind}}) {
				t.targets[e.Target] = append(t.targets[e.Target], e)
			}
		}
		t.trigger(ctx, c.Resource)
	}
	return nil
}

// cleanup removes every dynamically generated resource, in the order they
// were generated.
func (t *Transaction) cleanup(ctx context.Context) {
	for _, ref := range t.generated {
		r, ok := t.resources[ref]
		if !ok {
			continue
		}
		rem, ok := r.(resource.Remover)
		if !ok {
			continue
		}
		if err := rem.Remove(ctx); err != nil {
			t.logErr(r, fmt.Sprintf("cleanup remove failed: %v", err))
		}
	}
}

func (t *Transaction) emitReport() {
	failedCount := 0
	for _, n := range t.failures {
		if n > 0 {
			failedCount++
		}
	}
	t.metrics.counters[metricTotal] = float64(len(t.resources))
	resourceSnapshot := t.metrics.snapshot(failedCount)

	if t.cfg.Metrics != nil {
		t.cfg.Metrics.Observe(resourceSnapshot, t.timers.perKind())
	}

	if t.report == nil {
		return
	}

	t.report.NewMetric("resources", resourceSnapshot)
	t.report.NewMetric("time", t.timers.snapshot())
	t.report.NewMetric("changes", map[string]float64{"total": float64(len(t.changes))})
	t.report.SetTime(time.Now())
}
