package manager

import (
	"testing"
	"time"

	"github.com/traelm/memengine/pkg/core"
	"github.com/traelm/memengine/pkg/events"
	"github.com/traelm/memengine/pkg/retrieval"
)

func newTestManager(t *testing.T) (*Manager, *core.Store) {
	t.Helper()
	store := core.New(core.Config{})
	r := retrieval.New(store, nil, retrieval.Config{})
	return New(r, Config{}), store
}

func TestEnhanceAgentDoesNotMutateInput(t *testing.T) {
	m, store := newTestManager(t)
	defer m.Destroy()

	if _, err := store.Store(core.MemoryInput{
		ID:      "m1",
		Type:    core.Semantic,
		Content: "deploying go services with kubernetes",
	}); err != nil {
		t.Fatalf("Store: %v", err)
	}

	original := Agent{ID: "a1", Semantic: []*core.Memory{{ID: "existing"}}}
	result, err := m.EnhanceAgent(original, AgentContext{CurrentTask: "deploying go services"})
	if err != nil {
		t.Fatalf("EnhanceAgent: %v", err)
	}
	if !result.Success {
		t.Fatal("expected success")
	}
	if len(original.Semantic) != 1 {
		t.Fatalf("input agent was mutated: %v", original.Semantic)
	}
	if result.EnhancedAgent.Status != "enhanced" {
		t.Fatalf("expected status enhanced, got %q", result.EnhancedAgent.Status)
	}
}

func TestEnhanceAgentAsyncCompletesEachRequest(t *testing.T) {
	m, store := newTestManager(t)
	defer m.Destroy()

	for i := 0; i < 3; i++ {
		_, err := store.Store(core.MemoryInput{ID: string(rune('a' + i)), Type: core.Semantic, Content: "content"})
		if err != nil {
			t.Fatalf("Store: %v", err)
		}
	}

	ch1 := m.EnhanceAgentAsync(Agent{ID: "1"}, AgentContext{CurrentTask: "content"})
	ch2 := m.EnhanceAgentAsync(Agent{ID: "2"}, AgentContext{CurrentTask: "content"})

	select {
	case r := <-ch1:
		if !r.Success {
			t.Fatal("expected first enhancement to succeed")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first enhancement")
	}
	select {
	case r := <-ch2:
		if !r.Success {
			t.Fatal("expected second enhancement to succeed")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for second enhancement")
	}
}

func TestLearningPatternsClusterByQuery(t *testing.T) {
	m, store := newTestManager(t)
	defer m.Destroy()

	_, _ = store.Store(core.MemoryInput{ID: "m1", Type: core.Semantic, Content: "go routines"})

	for i := 0; i < 3; i++ {
		if _, err := m.RetrieveMemories(retrieval.Query{Text: "go routines"}); err != nil {
			t.Fatalf("RetrieveMemories: %v", err)
		}
	}

	patterns := m.GetLearningPatterns()
	if len(patterns) != 1 {
		t.Fatalf("expected 1 cluster, got %d", len(patterns))
	}
	if patterns[0].Occurrences != 3 {
		t.Fatalf("expected 3 occurrences, got %d", patterns[0].Occurrences)
	}

	m.ClearHistory()
	if len(m.GetLearningPatterns()) != 0 {
		t.Fatal("expected empty history after ClearHistory")
	}
}

func TestGetLearningPatternsEmitsAnalysisCompleted(t *testing.T) {
	store := core.New(core.Config{})
	r := retrieval.New(store, nil, retrieval.Config{})
	bus := events.NewBus(nil)
	m := New(r, Config{Events: bus})
	defer m.Destroy()

	if _, err := store.Store(core.MemoryInput{ID: "m1", Type: core.Semantic, Content: "go routines"}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, err := m.RetrieveMemories(retrieval.Query{Text: "go routines"}); err != nil {
		t.Fatalf("RetrieveMemories: %v", err)
	}

	fired := false
	bus.On(events.AnalysisCompleted, func(events.Event) { fired = true })

	m.GetLearningPatterns()

	if !fired {
		t.Fatal("expected AnalysisCompleted to be emitted")
	}
}

func TestPerformanceBaseline(t *testing.T) {
	m, _ := newTestManager(t)
	defer m.Destroy()

	m.SetPerformanceBaseline("agent1", map[string]float64{"latencyMs": 120})
	baseline, ok := m.GetPerformanceBaseline("agent1")
	if !ok {
		t.Fatal("expected baseline to exist")
	}
	if baseline["latencyMs"] != 120 {
		t.Fatalf("expected latencyMs 120, got %v", baseline["latencyMs"])
	}
}
