package graph

import (
	"errors"
	"testing"
	"time"

	"github.com/traelm/memengine/pkg/core"
)

func node(id, typ string) *Node {
	return &Node{ID: id, Type: typ, Label: id, CreatedAt: time.Now(), UpdatedAt: time.Now()}
}

func TestAddEdgeRejectsDanglingEndpoint(t *testing.T) {
	g := New(nil)
	if err := g.AddNode(node("a", "memory")); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	err := g.AddEdge(&Edge{ID: "e1", From: "a", To: "missing", Type: "relates_to"})
	if !errors.Is(err, core.ErrDanglingEndpoint) {
		t.Fatalf("expected ErrDanglingEndpoint, got %v", err)
	}
}

func TestRemoveNodeCascadesEdges(t *testing.T) {
	g := New(nil)
	_ = g.AddNode(node("a", "memory"))
	_ = g.AddNode(node("b", "concept"))
	if err := g.AddEdge(&Edge{ID: "e1", From: "a", To: "b", Type: "relates_to"}); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	if err := g.RemoveNode("a"); err != nil {
		t.Fatalf("RemoveNode: %v", err)
	}
	if _, err := g.GetEdge("e1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatal("expected incident edge to be removed")
	}
}

func TestReferentialIntegrityHoldsForEveryEdge(t *testing.T) {
	g := New(nil)
	_ = g.AddNode(node("a", "memory"))
	_ = g.AddNode(node("b", "memory"))
	_ = g.AddNode(node("c", "concept"))
	_ = g.AddEdge(&Edge{ID: "e1", From: "a", To: "b", Type: "similar_to"})
	_ = g.AddEdge(&Edge{ID: "e2", From: "b", To: "c", Type: "relates_to"})

	snap := g.Snapshot()
	ids := make(map[string]struct{}, len(snap.Nodes))
	for _, n := range snap.Nodes {
		ids[n.ID] = struct{}{}
	}
	for _, e := range snap.Edges {
		if _, ok := ids[e.From]; !ok {
			t.Fatalf("edge %s has dangling From %s", e.ID, e.From)
		}
		if _, ok := ids[e.To]; !ok {
			t.Fatalf("edge %s has dangling To %s", e.ID, e.To)
		}
	}
}

func TestGetNeighborsExcludesSelfAndRespectsDepth(t *testing.T) {
	g := New(nil)
	_ = g.AddNode(node("a", "memory"))
	_ = g.AddNode(node("b", "memory"))
	_ = g.AddNode(node("c", "memory"))
	_ = g.AddEdge(&Edge{ID: "ab", From: "a", To: "b", Type: "similar_to"})
	_ = g.AddEdge(&Edge{ID: "bc", From: "b", To: "c", Type: "similar_to"})

	depth1 := g.GetNeighbors("a", TraversalOptions{MaxDepth: 1})
	if len(depth1) != 1 || depth1[0].ID != "b" {
		t.Fatalf("expected [b] at depth 1, got %v", depth1)
	}

	depth2 := g.GetNeighbors("a", TraversalOptions{MaxDepth: 2})
	if len(depth2) != 2 {
		t.Fatalf("expected 2 nodes at depth 2, got %v", depth2)
	}
}

func TestFindPathsLengthIsNodeCount(t *testing.T) {
	g := New(nil)
	_ = g.AddNode(node("a", "memory"))
	_ = g.AddNode(node("b", "memory"))
	_ = g.AddNode(node("c", "memory"))
	_ = g.AddEdge(&Edge{ID: "ab", From: "a", To: "b", Type: "similar_to", Weight: 1})
	_ = g.AddEdge(&Edge{ID: "bc", From: "b", To: "c", Type: "similar_to", Weight: 1})

	paths := g.FindPaths("a", "c", 5)
	if len(paths) != 1 {
		t.Fatalf("expected 1 path, got %d", len(paths))
	}
	if paths[0].Length != 3 {
		t.Fatalf("expected length 3 (node count), got %d", paths[0].Length)
	}
}

func TestCreateListRestoreSnapshot(t *testing.T) {
	g := New(nil)
	_ = g.AddNode(node("a", "memory"))

	meta1 := g.CreateSnapshot("before")
	if meta1.NodeCount != 1 {
		t.Fatalf("expected 1 node in first snapshot, got %d", meta1.NodeCount)
	}

	_ = g.AddNode(node("b", "memory"))
	meta2 := g.CreateSnapshot("after")
	if meta2.NodeCount != 2 {
		t.Fatalf("expected 2 nodes in second snapshot, got %d", meta2.NodeCount)
	}

	list := g.Snapshots()
	if len(list) != 2 || list[0].ID != meta1.ID || list[1].ID != meta2.ID {
		t.Fatalf("expected snapshots in creation order, got %+v", list)
	}

	if err := g.RestoreSnapshot(meta1.ID); err != nil {
		t.Fatalf("RestoreSnapshot: %v", err)
	}
	if g.NodeCount() != 1 {
		t.Fatalf("expected graph to revert to 1 node, got %d", g.NodeCount())
	}

	if err := g.RestoreSnapshot("missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown snapshot id, got %v", err)
	}
}

func TestMetricsAndComponents(t *testing.T) {
	g := New(nil)
	_ = g.AddNode(node("a", "memory"))
	_ = g.AddNode(node("b", "memory"))
	_ = g.AddNode(node("c", "memory"))
	_ = g.AddEdge(&Edge{ID: "ab", From: "a", To: "b", Type: "similar_to"})

	m := g.Metrics()
	if m.NodeCount != 3 || m.EdgeCount != 1 {
		t.Fatalf("unexpected metrics: %+v", m)
	}
	if m.ConnectedComponents != 2 {
		t.Fatalf("expected 2 components (ab, c), got %d", m.ConnectedComponents)
	}
}
