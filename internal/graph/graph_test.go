package graph

import "testing"

func TestAddEdgeCreatesVertices(t *testing.T) {
	g := New[string]()
	g.AddEdge("a", "b", Label{})

	if !g.HasVertex("a") || !g.HasVertex("b") {
		t.Fatalf("expected both endpoints to be added as vertices")
	}
	if !g.HasEdge("a", "b") {
		t.Fatalf("expected edge a->b")
	}
	if g.HasEdge("b", "a") {
		t.Fatalf("did not expect reverse edge")
	}
}

func TestTopSortLinear(t *testing.T) {
	g := New[string]()
	g.AddEdge("a", "b", Label{})
	g.AddEdge("b", "c", Label{})

	order, err := g.TopSort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"a", "b", "c"}
	for i, v := range want {
		if order[i] != v {
			t.Errorf("position %d: got %v, want %v (full order %v)", i, order[i], v, order)
		}
	}
}

func TestTopSortTieBreakIsInsertionOrder(t *testing.T) {
	g := New[string]()
	// No edges: three independent vertices inserted in a specific order.
	g.AddVertex("z")
	g.AddVertex("a")
	g.AddVertex("m")

	order, err := g.TopSort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"z", "a", "m"}
	for i, v := range want {
		if order[i] != v {
			t.Errorf("position %d: got %v, want %v", i, order[i], v)
		}
	}
}

func TestTopSortDetectsCycle(t *testing.T) {
	g := New[string]()
	g.AddEdge("a", "b", Label{})
	g.AddEdge("b", "c", Label{})
	g.AddEdge("c", "a", Label{})

	if _, err := g.TopSort(); err == nil {
		t.Fatalf("expected a cycle error")
	}
}

func TestReversalFlipsEdges(t *testing.T) {
	g := New[string]()
	g.AddEdge("a", "b", Label{})

	r := g.Reversal()
	if !r.HasEdge("b", "a") {
		t.Fatalf("expected reversed edge b->a")
	}
	if r.HasEdge("a", "b") {
		t.Fatalf("original direction should not survive reversal")
	}
	if !g.HasEdge("a", "b") {
		t.Fatalf("reversal must not mutate the receiver")
	}
}

func TestTreeFromVertex(t *testing.T) {
	g := New[string]()
	g.AddEdge("a", "b", Label{})
	g.AddEdge("b", "c", Label{})
	g.AddVertex("d")

	reached := g.TreeFromVertex("a", Out)
	for _, v := range []string{"a", "b", "c"} {
		if !reached[v] {
			t.Errorf("expected %q reachable from a", v)
		}
	}
	if reached["d"] {
		t.Errorf("d should not be reachable from a")
	}
}

func TestMatchingEdgesWildcard(t *testing.T) {
	g := New[string]()
	g.AddEdge("f", "s", Label{Event: EventAny, Callback: "restart"})

	matches := g.MatchingEdges([]Event[string]{{Source: "f", Kind: "file_changed"}})
	if len(matches) != 1 {
		t.Fatalf("expected 1 matching edge, got %d", len(matches))
	}
	if matches[0].Target != "s" || matches[0].Label.Callback != "restart" {
		t.Errorf("unexpected match: %+v", matches[0])
	}
}

func TestMatchingEdgesSpecificEvent(t *testing.T) {
	g := New[string]()
	g.AddEdge("f", "s", Label{Event: "file_changed", Callback: "restart"})
	g.AddEdge("f", "t", Label{Event: "other_event", Callback: "reload"})

	matches := g.MatchingEdges([]Event[string]{{Source: "f", Kind: "file_changed"}})
	if len(matches) != 1 || matches[0].Target != "s" {
		t.Fatalf("expected only the file_changed edge to match, got %+v", matches)
	}
}

func TestSpliceRedistributesContainerEdges(t *testing.T) {
	g := New[string]()
	g.AddVertex("K")
	g.AddVertex("m1")
	g.AddVertex("m2")
	g.AddEdge("X", "K", Label{})
	g.AddEdge("K", "Y", Label{})

	isContainer := func(v string) bool { return v == "K" }
	membersOf := func(v string) []string {
		if v == "K" {
			return []string{"m1", "m2"}
		}
		return nil
	}

	spliced := g.Splice(isContainer, membersOf)

	if spliced.HasVertex("K") {
		t.Fatalf("container vertex K must not survive splice")
	}
	for _, m := range []string{"m1", "m2"} {
		if !spliced.HasEdge("X", m) {
			t.Errorf("expected X->%s after splice", m)
		}
		if !spliced.HasEdge(m, "Y") {
			t.Errorf("expected %s->Y after splice", m)
		}
	}
}

func TestSpliceNestedContainers(t *testing.T) {
	g := New[string]()
	g.AddVertex("outer")
	g.AddVertex("inner")
	g.AddVertex("leaf")
	g.AddEdge("X", "outer", Label{})

	isContainer := func(v string) bool { return v == "outer" || v == "inner" }
	membersOf := func(v string) []string {
		switch v {
		case "outer":
			return []string{"inner"}
		case "inner":
			return []string{"leaf"}
		}
		return nil
	}

	spliced := g.Splice(isContainer, membersOf)
	if !spliced.HasEdge("X", "leaf") {
		t.Fatalf("expected nested container expansion to reach leaf, got vertices %v", spliced.Vertices())
	}
	if spliced.HasVertex("outer") || spliced.HasVertex("inner") {
		t.Fatalf("no container vertex should survive splice")
	}
}

func TestRemoveVertexClearsIncidentEdges(t *testing.T) {
	g := New[string]()
	g.AddEdge("a", "b", Label{})
	g.AddEdge("b", "c", Label{})

	g.RemoveVertex("b")

	if g.HasVertex("b") {
		t.Fatalf("b should be removed")
	}
	if g.HasEdge("a", "b") || g.HasEdge("b", "c") {
		t.Fatalf("edges incident to removed vertex should be gone")
	}
}
