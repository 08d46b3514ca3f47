package engine

import (
	"testing"

	"github.com/traelm/memengine/pkg/core"
	"github.com/traelm/memengine/pkg/retrieval"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Persistence.Enabled = false
	e := New(cfg, nil)
	if err := e.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { _ = e.Destroy() })
	return e
}

func TestInitializeIsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Initialize(); err != nil {
		t.Fatalf("second Initialize: %v", err)
	}
}

func TestStoreAndRetrieveRoundTrip(t *testing.T) {
	e := newTestEngine(t)

	if _, err := e.StoreMemory(core.MemoryInput{
		ID:      "mr-1",
		Type:    core.Semantic,
		Content: "AI assistants can help with coding tasks",
		Tags:    []string{"ai", "coding"},
	}); err != nil {
		t.Fatalf("StoreMemory: %v", err)
	}

	result, err := e.RetrieveMemories(retrieval.Query{Text: "AI coding help", Limit: 5})
	if err != nil {
		t.Fatalf("RetrieveMemories: %v", err)
	}
	if len(result.Memories) == 0 {
		t.Fatal("expected at least one match")
	}
}

func TestValidateDataIntegrityDetectsLinkage(t *testing.T) {
	e := newTestEngine(t)

	if _, err := e.StoreMemory(core.MemoryInput{ID: "m1", Type: core.Semantic, Content: "some content here"}); err != nil {
		t.Fatalf("StoreMemory: %v", err)
	}

	report := e.ValidateDataIntegrity()
	if !report.Valid {
		t.Fatalf("expected valid report, got errors: %v", report.Errors)
	}
}

func TestUpdateConfigurationDisablesGraphGracefully(t *testing.T) {
	e := newTestEngine(t)

	if _, err := e.StoreMemory(core.MemoryInput{ID: "m1", Type: core.Semantic, Content: "graph toggle content"}); err != nil {
		t.Fatalf("StoreMemory: %v", err)
	}

	disabled := false
	e.UpdateConfiguration(ConfigPatch{Features: &FeatureFlags{KnowledgeGraph: disabled}})

	result, err := e.RetrieveMemories(retrieval.Query{Text: "graph toggle", IncludeRelated: true, Limit: 5})
	if err != nil {
		t.Fatalf("RetrieveMemories: %v", err)
	}
	if len(result.RelatedNodes) != 0 {
		t.Fatalf("expected no related nodes once graph disabled, got %d", len(result.RelatedNodes))
	}

	e.UpdateConfiguration(ConfigPatch{Features: &FeatureFlags{KnowledgeGraph: true}})
	result, err = e.RetrieveMemories(retrieval.Query{Text: "graph toggle", IncludeRelated: true, Limit: 5})
	if err != nil {
		t.Fatalf("RetrieveMemories after re-enable: %v", err)
	}
	_ = result
}

func TestGetSystemStatsAggregates(t *testing.T) {
	e := newTestEngine(t)

	if _, err := e.StoreMemory(core.MemoryInput{ID: "m1", Type: core.Semantic, Content: "stats content"}); err != nil {
		t.Fatalf("StoreMemory: %v", err)
	}

	stats := e.GetSystemStats()
	if stats.MemoryCount != 1 {
		t.Fatalf("expected MemoryCount 1, got %d", stats.MemoryCount)
	}
	if !stats.GraphEnabled {
		t.Fatal("expected graph enabled by default")
	}
	if stats.NodeCount == 0 {
		t.Fatal("expected at least one graph node after store")
	}
}
