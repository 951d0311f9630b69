package relationship

import (
	"context"
	"testing"

	"github.com/latticectl/lattice/internal/change"
	"github.com/latticectl/lattice/internal/resource"
)

type fakeResource struct {
	kind, name, parent string
	container          bool
	depends            []resource.Relation
	auto               []resource.Relation
}

func (f *fakeResource) Kind() string    { return f.kind }
func (f *fakeResource) Name() string    { return f.name }
func (f *fakeResource) Ref() string     { return f.kind + "[" + f.name + "]" }
func (f *fakeResource) Parent() string  { return f.parent }
func (f *fakeResource) IsContainer() bool { return f.container }
func (f *fakeResource) BuildDepends() []resource.Relation { return f.depends }
func (f *fakeResource) Autorequire(resource.Lookup) []resource.Relation { return f.auto }
func (f *fakeResource) Tagged([]string) bool { return true }
func (f *fakeResource) Scheduled() bool      { return true }
func (f *fakeResource) Evaluate(context.Context) ([]*change.Change, error) { return nil, nil }
func (f *fakeResource) Debug(string)   {}
func (f *fakeResource) Info(string)    {}
func (f *fakeResource) Notice(string)  {}
func (f *fakeResource) Warning(string) {}
func (f *fakeResource) Err(string)     {}

func TestBuildLinearRequireOrdering(t *testing.T) {
	a := &fakeResource{kind: "file", name: "a"}
	b := &fakeResource{kind: "file", name: "b", depends: []resource.Relation{{Kind: resource.Require, Target: "file[a]"}}}
	c := &fakeResource{kind: "file", name: "c", depends: []resource.Relation{{Kind: resource.Require, Target: "file[b]"}}}

	res, err := Build([]resource.Resource{a, b, c})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"file[a]", "file[b]", "file[c]"}
	for i, v := range want {
		if res.Order[i] != v {
			t.Fatalf("position %d: got %v, want %v (order %v)", i, res.Order[i], v, res.Order)
		}
	}
}

func TestBuildContainerSplice(t *testing.T) {
	k := &fakeResource{kind: "class", name: "K", container: true}
	m1 := &fakeResource{kind: "file", name: "m1", parent: "class[K]"}
	m2 := &fakeResource{kind: "file", name: "m2", parent: "class[K]"}
	x := &fakeResource{kind: "file", name: "x", depends: []resource.Relation{{Kind: resource.Before, Target: "class[K]"}}}
	y := &fakeResource{kind: "file", name: "y", depends: []resource.Relation{{Kind: resource.Require, Target: "class[K]"}}}

	res, err := Build([]resource.Resource{k, m1, m2, x, y})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Graph.HasVertex("class[K]") {
		t.Fatalf("container must not survive splice")
	}
	for _, m := range []string{"file[m1]", "file[m2]"} {
		if !res.Graph.HasEdge("file[x]", m) {
			t.Errorf("expected x->%s", m)
		}
		if !res.Graph.HasEdge(m, "file[y]") {
			t.Errorf("expected %s->y", m)
		}
	}
}

func TestBuildAutorequireSkipsDuplicateEdge(t *testing.T) {
	dir := &fakeResource{kind: "directory", name: "/etc"}
	f := &fakeResource{
		kind: "file", name: "/etc/hosts",
		depends: []resource.Relation{{Kind: resource.Require, Target: "directory[/etc]"}},
		auto:    []resource.Relation{{Kind: resource.Require, Target: "directory[/etc]"}},
	}

	res, err := Build([]resource.Resource{dir, f})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	count := 0
	for _, e := range res.Graph.AdjacentEdges("directory[/etc]", 0) {
		if e.Target == "file[/etc/hosts]" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected autorequire to be deduplicated against the declared edge, got %d edges", count)
	}
}

func TestBuildCyclicGraphFails(t *testing.T) {
	a := &fakeResource{kind: "file", name: "a", depends: []resource.Relation{{Kind: resource.Require, Target: "file[b]"}}}
	b := &fakeResource{kind: "file", name: "b", depends: []resource.Relation{{Kind: resource.Require, Target: "file[a]"}}}

	if _, err := Build([]resource.Resource{a, b}); err == nil {
		t.Fatalf("expected a cycle error")
	}
}
