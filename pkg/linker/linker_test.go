package linker

import (
	"testing"

	"github.com/traelm/memengine/pkg/core"
	"github.com/traelm/memengine/pkg/graph"
)

func newTestLinker() (*core.Store, *graph.Graph, *Linker) {
	s := core.New(core.Config{MaxSize: 100})
	g := graph.New(nil)
	l := New(s, g, Config{})
	return s, g, l
}

func TestStoreCreatesMatchingMemoryNode(t *testing.T) {
	s, g, _ := newTestLinker()

	m, err := s.Store(core.MemoryInput{ID: "m1", Type: core.Semantic, Content: "remembering go idioms", Tags: []string{"go"}})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	node, err := g.GetNode(memoryNodeID(m.ID))
	if err != nil {
		t.Fatalf("expected memory node to exist: %v", err)
	}
	if node.Type != "memory" {
		t.Fatalf("expected type memory, got %s", node.Type)
	}
}

func TestRemoveDeletesMemoryNode(t *testing.T) {
	s, g, _ := newTestLinker()

	m, err := s.Store(core.MemoryInput{ID: "m1", Type: core.Semantic, Content: "to be removed"})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := s.Remove(m.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if _, err := g.GetNode(memoryNodeID(m.ID)); err == nil {
		t.Fatal("expected memory node to be gone after remove")
	}
}

func TestLabelTruncatesAtFiftyRunes(t *testing.T) {
	long := ""
	for i := 0; i < 80; i++ {
		long += "x"
	}
	got := label(long)
	if got != long[:50]+"…" {
		t.Fatalf("unexpected label: %q", got)
	}

	short := "short content"
	if label(short) != short {
		t.Fatalf("expected untouched short label, got %q", label(short))
	}
}

func TestConceptEdgeHasExpectedShape(t *testing.T) {
	s, g, _ := newTestLinker()

	m, err := s.Store(core.MemoryInput{ID: "m1", Type: core.Semantic, Content: "go concurrency patterns", Tags: []string{"concurrency"}})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	conceptID := conceptNodeID("concurrency")
	node, err := g.GetNode(conceptID)
	if err != nil {
		t.Fatalf("expected concept node: %v", err)
	}
	if node.Type != "concept" {
		t.Fatalf("expected concept type, got %s", node.Type)
	}

	edgeID := "tagged_with_" + m.ID + "_" + slug("concurrency")
	edge, err := g.GetEdge(edgeID)
	if err != nil {
		t.Fatalf("expected tagged_with edge: %v", err)
	}
	if edge.Relationship != "tagged_with" || edge.Weight != 1 {
		t.Fatalf("unexpected edge shape: %+v", edge)
	}
}

func TestContextFacetsCreateWeightedEdges(t *testing.T) {
	s, g, _ := newTestLinker()

	m, err := s.Store(core.MemoryInput{
		ID: "m1", Type: core.Episodic, Content: "a session event",
		Context: &core.Context{UserID: "u1", SessionID: "s1", Domain: "billing", Task: "refund"},
	})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	taskEdgeID := "related_to_" + m.ID + "_" + taskNodeID("refund")
	edge, err := g.GetEdge(taskEdgeID)
	if err != nil {
		t.Fatalf("expected task edge: %v", err)
	}
	if edge.Weight != 0.8 || edge.Relationship != "related_to" {
		t.Fatalf("unexpected task edge shape: %+v", edge)
	}

	userEdgeID := "created_by_" + m.ID + "_" + userNodeID("u1")
	if _, err := g.GetEdge(userEdgeID); err != nil {
		t.Fatalf("expected user edge: %v", err)
	}
}

func TestBackfillLinksPreExistingMemories(t *testing.T) {
	s := core.New(core.Config{MaxSize: 100})
	if _, err := s.Store(core.MemoryInput{ID: "m1", Type: core.Semantic, Content: "pre-existing memory", Tags: []string{"alpha"}}); err != nil {
		t.Fatalf("Store: %v", err)
	}

	g := graph.New(nil)
	l := New(s, g, Config{})
	l.Backfill()

	if _, err := g.GetNode(memoryNodeID("m1")); err != nil {
		t.Fatalf("expected backfilled node: %v", err)
	}
}

func TestSimilarEdgeCreatedAboveThreshold(t *testing.T) {
	s, g, _ := newTestLinker()

	if _, err := s.Store(core.MemoryInput{ID: "m1", Type: core.Semantic, Content: "deploying kubernetes clusters", Tags: []string{"k8s"}}); err != nil {
		t.Fatalf("Store m1: %v", err)
	}
	if _, err := s.Store(core.MemoryInput{ID: "m2", Type: core.Semantic, Content: "deploying kubernetes clusters", Tags: []string{"k8s"}}); err != nil {
		t.Fatalf("Store m2: %v", err)
	}

	edgeID := "similar_to_m2_m1"
	if _, err := g.GetEdge(edgeID); err != nil {
		t.Fatalf("expected similar_to edge between near-identical memories: %v", err)
	}
}
