package txn

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/latticectl/lattice/internal/change"
	"github.com/latticectl/lattice/internal/resource"
)

type fakeResource struct {
	kind, name, parent string
	container          bool
	depends            []resource.Relation
	auto               []resource.Relation

	evaluate     func(ctx context.Context) ([]*change.Change, error)
	evalGenerate func(ctx context.Context) ([]resource.Resource, error)
	remove       func(ctx context.Context) error
	callbacks    map[string]func(ctx context.Context) error
}

func newFake(kind, name string) *fakeResource {
	return &fakeResource{kind: kind, name: name}
}

func (f *fakeResource) Kind() string      { return f.kind }
func (f *fakeResource) Name() string      { return f.name }
func (f *fakeResource) Ref() string       { return f.kind + "[" + f.name + "]" }
func (f *fakeResource) Parent() string    { return f.parent }
func (f *fakeResource) IsContainer() bool { return f.container }

func (f *fakeResource) BuildDepends() []resource.Relation                 { return f.depends }
func (f *fakeResource) Autorequire(resource.Lookup) []resource.Relation   { return f.auto }
func (f *fakeResource) Tagged([]string) bool                             { return true }
func (f *fakeResource) Scheduled() bool                                  { return true }

func (f *fakeResource) Evaluate(ctx context.Context) ([]*change.Change, error) {
	if f.evaluate == nil {
		return nil, nil
	}
	return f.evaluate(ctx)
}

func (f *fakeResource) EvalGenerate(ctx context.Context) ([]resource.Resource, error) {
	if f.evalGenerate == nil {
		return nil, nil
	}
	return f.evalGenerate(ctx)
}

func (f *fakeResource) Remove(ctx context.Context) error {
	if f.remove == nil {
		return nil
	}
	return f.remove(ctx)
}

func (f *fakeResource) Callback(name string) (func(context.Context) error, bool) {
	if f.callbacks == nil {
		return nil, false
	}
	fn, ok := f.callbacks[name]
	return fn, ok
}

func (f *fakeResource) Debug(string)   {}
func (f *fakeResource) Info(string)    {}
func (f *fakeResource) Notice(string)  {}
func (f *fakeResource) Warning(string) {}
func (f *fakeResource) Err(string)     {}

type fakeSink struct {
	resources map[string]float64
	time      map[string]float64
	changes   map[string]float64
}

func (s *fakeSink) NewMetric(name string, values map[string]float64) {
	switch name {
	case "resources":
		s.resources = values
	case "time":
		s.time = values
	case "changes":
		s.changes = values
	}
}
func (s *fakeSink) SetTime(time.Time)  {}
func (s *fakeSink) Debug(string)       {}
func (s *fakeSink) Info(string)        {}
func (s *fakeSink) Notice(string)      {}
func (s *fakeSink) Warning(string)     {}
func (s *fakeSink) Err(string)         {}

func recordingChange(ref string, order *[]string, eventKind string) *change.Change {
	return change.New(ref, "state", "absent", "present",
		func(ctx context.Context) ([]change.Event, error) {
			*order = append(*order, ref)
			return []change.Event{{Kind: eventKind, Source: ref}}, nil
		}, nil)
}

func TestEvaluateLinearSuccess(t *testing.T) {
	var order []string
	a := newFake("file", "a")
	b := newFake("file", "b")
	c := newFake("file", "c")
	b.depends = []resource.Relation{{Kind: resource.Require, Target: a.Ref()}}
	c.depends = []resource.Relation{{Kind: resource.Require, Target: b.Ref()}}

	a.evaluate = func(ctx context.Context) ([]*change.Change, error) {
		return []*change.Change{recordingChange(a.Ref(), &order, "applied")}, nil
	}
	b.evaluate = func(ctx context.Context) ([]*change.Change, error) {
		return []*change.Change{recordingChange(b.Ref(), &order, "applied")}, nil
	}
	c.evaluate = func(ctx context.Context) ([]*change.Change, error) {
		return []*change.Change{recordingChange(c.Ref(), &order, "applied")}, nil
	}

	sink := &fakeSink{}
	tx := New([]resource.Resource{a, b, c}, Config{}, sink)
	if _, err := tx.Evaluate(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{a.Ref(), b.Ref(), c.Ref()}
	for i, w := range want {
		if order[i] != w {
			t.Fatalf("evaluation order[%d] = %v, want %v (full order %v)", i, order[i], w, order)
		}
	}

	if sink.resources["applied"] != 3 {
		t.Errorf("applied = %v, want 3", sink.resources["applied"])
	}
	if sink.resources["out_of_sync"] != 3 {
		t.Errorf("out_of_sync = %v, want 3", sink.resources["out_of_sync"])
	}
	if sink.resources["failed"] != 0 {
		t.Errorf("failed = %v, want 0", sink.resources["failed"])
	}
	if sink.resources["skipped"] != 0 {
		t.Errorf("skipped = %v, want 0", sink.resources["skipped"])
	}
}

func TestEvaluateTransitiveSkip(t *testing.T) {
	a := newFake("file", "a")
	b := newFake("file", "b")
	c := newFake("file", "c")
	b.depends = []resource.Relation{{Kind: resource.Require, Target: a.Ref()}}
	c.depends = []resource.Relation{{Kind: resource.Require, Target: b.Ref()}}

	a.evaluate = func(ctx context.Context) ([]*change.Change, error) {
		return nil, errors.New("boom")
	}

	sink := &fakeSink{}
	tx := New([]resource.Resource{a, b, c}, Config{}, sink)
	if _, err := tx.Evaluate(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sink.resources["failed"] != 1 {
		t.Errorf("failed = %v, want 1", sink.resources["failed"])
	}
	if sink.resources["skipped"] != 2 {
		t.Errorf("skipped = %v, want 2", sink.resources["skipped"])
	}
	if sink.resources["applied"] != 0 {
		t.Errorf("applied = %v, want 0", sink.resources["applied"])
	}
}

func TestEvaluateSubscriptionTriggersCallback(t *testing.T) {
	restarts := 0
	f := newFake("file", "f")
	s := newFake("service", "s")
	s.depends = []resource.Relation{{Kind: resource.Subscribe, Target: f.Ref(), Event: "file_changed", Callback: "restart"}}
	s.callbacks = map[string]func(context.Context) error{
		"restart": func(context.Context) error {
			restarts++
			return nil
		},
	}

	f.evaluate = func(ctx context.Context) ([]*change.Change, error) {
		return []*change.Change{change.New(f.Ref(), "content", "old", "new",
			func(ctx context.Context) ([]change.Event, error) {
				return []change.Event{{Kind: "file_changed", Source: f.Ref()}}, nil
			}, nil)}, nil
	}

	sink := &fakeSink{}
	tx := New([]resource.Resource{f, s}, Config{}, sink)
	events, err := tx.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if restarts != 1 {
		t.Fatalf("expected restart to be invoked once, got %d", restarts)
	}
	if sink.resources["restarted"] != 1 {
		t.Errorf("restarted = %v, want 1", sink.resources["restarted"])
	}

	found := false
	for _, ev := range events {
		if ev.Kind == change.TriggeredKind && ev.Source == s.Ref() {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a triggered event sourced from %s, got %+v", s.Ref(), events)
	}
}

func TestEvaluateDynamicGeneration(t *testing.T) {
	var childEvaluated bool
	var childRemoved bool

	tResource := newFake("file", "t")
	r := newFake("file", "r")
	r.depends = []resource.Relation{{Kind: resource.Before, Target: tResource.Ref()}}

	child := newFake("file", "r-child")
	child.evaluate = func(ctx context.Context) ([]*change.Change, error) {
		childEvaluated = true
		return nil, nil
	}
	child.remove = func(ctx context.Context) error {
		childRemoved = true
		return nil
	}

	r.evalGenerate = func(ctx context.Context) ([]resource.Resource, error) {
		return []resource.Resource{child}, nil
	}

	sink := &fakeSink{}
	tx := New([]resource.Resource{r, tResource}, Config{}, sink)
	if _, err := tx.Evaluate(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !childEvaluated {
		t.Errorf("expected dynamically generated child to be evaluated in the same run")
	}
	if !tx.relGraph.HasEdge(child.Ref(), tResource.Ref()) {
		t.Errorf("expected generated child to inherit r's outbound edge to t")
	}
	if !childRemoved {
		t.Errorf("expected cleanup to remove the generated child")
	}
}

func TestRollbackReverseOrderContinuesPastFailure(t *testing.T) {
	var backwardOrder []string

	mk := func(ref string, failBackward bool) *change.Change {
		return change.New(ref, "state", "absent", "present",
			func(ctx context.Context) ([]change.Event, error) {
				return []change.Event{{Kind: "applied", Source: ref}}, nil
			},
			func(ctx context.Context) ([]change.Event, error) {
				backwardOrder = append(backwardOrder, ref)
				if failBackward {
					return nil, errors.New("revert failed")
				}
				return nil, nil
			})
	}

	c1 := mk("r1", false)
	c2 := mk("r2", true)
	c3 := mk("r3", false)

	r1, r2, r3 := newFake("file", "r1"), newFake("file", "r2"), newFake("file", "r3")
	r1.evaluate = func(context.Context) ([]*change.Change, error) { return []*change.Change{c1}, nil }
	r2.evaluate = func(context.Context) ([]*change.Change, error) { return []*change.Change{c2}, nil }
	r3.evaluate = func(context.Context) ([]*change.Change, error) { return []*change.Change{c3}, nil }

	tx := New([]resource.Resource{r1, r2, r3}, Config{}, nil)
	if _, err := tx.Evaluate(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := tx.Rollback(context.Background()); err != nil {
		t.Fatalf("unexpected rollback error: %v", err)
	}

	want := []string{"r3", "r2", "r1"}
	if len(backwardOrder) != len(want) {
		t.Fatalf("backward invocations = %v, want %v", backwardOrder, want)
	}
	for i, w := range want {
		if backwardOrder[i] != w {
			t.Errorf("backwardOrder[%d] = %v, want %v", i, backwardOrder[i], w)
		}
	}
}

func TestIdempotentDryEvaluationProducesNoActivity(t *testing.T) {
	a := newFake("file", "a")
	b := newFake("file", "b")

	sink := &fakeSink{}
	tx := New([]resource.Resource{a, b}, Config{}, sink)
	events, err := tx.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no events from a no-op evaluation, got %+v", events)
	}
	if sink.resources["out_of_sync"] != 0 || sink.resources["applied"] != 0 {
		t.Errorf("expected out_of_sync=0 and applied=0, got %+v", sink.resources)
	}
}

type denyAllGate struct{}

func (denyAllGate) Allow(ctx context.Context, ref, kind string) (bool, string, error) {
	return false, "blocked for test", nil
}

func TestPolicyGateSkipsDeniedResource(t *testing.T) {
	a := newFake("file", "a")
	evaluated := false
	a.evaluate = func(ctx context.Context) ([]*change.Change, error) {
		evaluated = true
		return nil, nil
	}

	sink := &fakeSink{}
	tx := New([]resource.Resource{a}, Config{Policy: denyAllGate{}}, sink)
	if _, err := tx.Evaluate(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if evaluated {
		t.Error("expected policy-denied resource to never reach Evaluate")
	}
	if sink.resources["policy_denied"] != 1 {
		t.Errorf("policy_denied = %v, want 1", sink.resources["policy_denied"])
	}
}
