// Package relationship builds the evaluation-time relationship graph from a
// set of declared resources: collect each resource's declared edges, splice
// containers out in favor of their members, add auto-required edges, and
// produce a topological order.
package relationship

import (
	"fmt"

	"github.com/latticectl/lattice/internal/graph"
	"github.com/latticectl/lattice/internal/resource"
)

// lookup implements resource.Lookup over the full declared resource set so
// that Autorequire can find peers by kind and name.
type lookup struct {
	byKindName map[string]string
}

func (l *lookup) ByKindAndName(kind, name string) (string, bool) {
	ref, ok := l.byKindName[kind+"/"+name]
	return ref, ok
}

func buildLookup(resources []resource.Resource) *lookup {
	l := &lookup{byKindName: make(map[string]string, len(resources))}
	for _, r := range resources {
		l.byKindName[r.Kind()+"/"+r.Name()] = r.Ref()
	}
	return l
}

// toEdge translates a declared Relation into the graph edge's source,
// target and label, per the direction rules for each RelationKind: Require
// and Before express ordering only; Notify and Subscribe additionally carry
// a callback and therefore a subscription.
func toEdge(owner string, rel resource.Relation) (src, dst string, label graph.Label) {
	switch rel.Kind {
	case resource.Require:
		return rel.Target, owner, graph.Label{}
	case resource.Before:
		return owner, rel.Target, graph.Label{}
	case resource.Notify:
		event := rel.Event
		if event == "" {
			event = graph.EventAny
		}
		callback := rel.Callback
		if callback == "" {
			callback = "refresh"
		}
		return owner, rel.Target, graph.Label{Event: event, Callback: callback}
	case resource.Subscribe:
		event := rel.Event
		if event == "" {
			event = graph.EventAny
		}
		callback := rel.Callback
		if callback == "" {
			callback = "refresh"
		}
		return rel.Target, owner, graph.Label{Event: event, Callback: callback}
	default:
		return owner, rel.Target, graph.Label{}
	}
}

// Result is everything the Relationship Builder produces: the spliced
// relationship graph, the resources' Parent pointers keyed by Ref (for the
// Trigger Engine's upward walk), and a topological order over the
// non-container resources.
type Result struct {
	Graph  *graph.Graph[string]
	Parent map[string]string
	Order  []string
}

// Build runs the full four-step algorithm from declared resources to a
// topologically ordered relationship graph.
func Build(resources []resource.Resource) (*Result, error) {
	byRef := make(map[string]resource.Resource, len(resources))
	membersOf := make(map[string][]string)
	parentOf := make(map[string]string)

	declared := graph.New[string]()
	l := buildLookup(resources)

	// Step 1: insert every vertex and its build_depends edges.
	for _, r := range resources {
		ref := r.Ref()
		byRef[ref] = r
		declared.AddVertex(ref)
		if p := r.Parent(); p != "" {
			parentOf[ref] = p
			membersOf[p] = append(membersOf[p], ref)
		}
		for _, rel := range r.BuildDepends() {
			src, dst, label := toEdge(ref, rel)
			declared.AddEdge(src, dst, label)
		}
	}

	isContainer := func(ref string) bool {
		r, ok := byRef[ref]
		return ok && r.IsContainer()
	}
	members := func(ref string) []string {
		return membersOf[ref]
	}

	// Step 2: splice containers out onto their member closures.
	spliced := declared.Splice(isContainer, members)

	// Step 3: autorequire, skipping any (src,dst) pair already present.
	for _, r := range resources {
		if r.IsContainer() {
			continue
		}
		ref := r.Ref()
		for _, rel := range r.Autorequire(l) {
			src, dst, label := toEdge(ref, rel)
			if spliced.HasEdge(src, dst) {
				continue
			}
			spliced.AddEdge(src, dst, label)
		}
	}

	// Step 4: topological sort.
	order, err := spliced.TopSort()
	if err != nil {
		return nil, fmt.Errorf("relationship: %w", err)
	}

	return &Result{Graph: spliced, Parent: parentOf, Order: order}, nil
}
