package retrieval

import (
	"testing"
	"time"

	"github.com/traelm/memengine/pkg/core"
	"github.com/traelm/memengine/pkg/graph"
	"github.com/traelm/memengine/pkg/linker"
)

func newTestRetriever(t *testing.T) (*core.Store, *graph.Graph, *Retriever) {
	t.Helper()
	s := core.New(core.Config{MaxSize: 100})
	g := graph.New(nil)
	l := linker.New(s, g, linker.Config{})
	_ = l
	r := New(s, g, Config{})
	return s, g, r
}

func TestRetrieveScoresAndOrdersByText(t *testing.T) {
	s, _, r := newTestRetriever(t)

	if _, err := s.Store(core.MemoryInput{ID: "m1", Type: core.Semantic, Content: "deploying kubernetes clusters"}); err != nil {
		t.Fatalf("Store m1: %v", err)
	}
	if _, err := s.Store(core.MemoryInput{ID: "m2", Type: core.Semantic, Content: "baking sourdough bread"}); err != nil {
		t.Fatalf("Store m2: %v", err)
	}

	result, err := r.Retrieve(Query{Text: "kubernetes deployment", Limit: 5})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(result.Memories) == 0 {
		t.Fatal("expected at least one match")
	}
	if result.Memories[0].Memory.ID != "m1" {
		t.Fatalf("expected m1 to rank first, got %s", result.Memories[0].Memory.ID)
	}
}

func TestRetrieveRejectsNegativeLimit(t *testing.T) {
	_, _, r := newTestRetriever(t)
	if _, err := r.Retrieve(Query{Limit: -1}); err == nil {
		t.Fatal("expected error on negative limit")
	}
}

func TestRetrieveCachesIdenticalQueries(t *testing.T) {
	s, _, r := newTestRetriever(t)
	if _, err := s.Store(core.MemoryInput{ID: "m1", Type: core.Semantic, Content: "caching behavior test"}); err != nil {
		t.Fatalf("Store: %v", err)
	}

	q := Query{Text: "caching behavior", Limit: 5}
	first, err := r.Retrieve(q)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if first.FromCache {
		t.Fatal("expected first call to miss cache")
	}

	second, err := r.Retrieve(q)
	if err != nil {
		t.Fatalf("Retrieve second: %v", err)
	}
	if !second.FromCache {
		t.Fatal("expected second identical call to hit cache")
	}
}

func TestMinConfidenceDistinguishesCacheEntries(t *testing.T) {
	s, _, r := newTestRetriever(t)
	if _, err := s.Store(core.MemoryInput{ID: "m1", Type: core.Semantic, Content: "confidence floor test"}); err != nil {
		t.Fatalf("Store: %v", err)
	}

	low, err := r.Retrieve(Query{Text: "confidence floor", MinConfidence: 0, Limit: 5})
	if err != nil {
		t.Fatalf("Retrieve low: %v", err)
	}
	if len(low.Memories) == 0 {
		t.Fatal("expected at least one result with MinConfidence 0")
	}

	high, err := r.Retrieve(Query{Text: "confidence floor", MinConfidence: 100, Limit: 5})
	if err != nil {
		t.Fatalf("Retrieve high: %v", err)
	}
	if len(high.Memories) != 0 {
		t.Fatal("expected an unreachable MinConfidence to exclude every result, not reuse the low-floor cache entry")
	}
}

func TestAddStrategyContributesAndClearsCache(t *testing.T) {
	s, _, r := newTestRetriever(t)
	if _, err := s.Store(core.MemoryInput{ID: "m1", Type: core.Semantic, Content: "irrelevant content", Importance: nil}); err != nil {
		t.Fatalf("Store m1: %v", err)
	}

	if _, err := r.Retrieve(Query{Text: "irrelevant", Limit: 5}); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	r.AddStrategy(alwaysTop{})

	result, err := r.Retrieve(Query{Text: "irrelevant", Limit: 5})
	if err != nil {
		t.Fatalf("Retrieve after AddStrategy: %v", err)
	}
	if result.FromCache {
		t.Fatal("expected AddStrategy to invalidate the cache")
	}
	if _, ok := result.Memories[0].PerStrategy["alwaysTop"]; !ok {
		t.Fatal("expected alwaysTop strategy contribution present")
	}

	r.RemoveStrategy("alwaysTop")
	result, err = r.Retrieve(Query{Text: "irrelevant", Limit: 5})
	if err != nil {
		t.Fatalf("Retrieve after RemoveStrategy: %v", err)
	}
	if _, ok := result.Memories[0].PerStrategy["alwaysTop"]; ok {
		t.Fatal("expected alwaysTop strategy removed")
	}
}

type alwaysTop struct{}

func (alwaysTop) Name() string   { return "alwaysTop" }
func (alwaysTop) Weight() float64 { return 10 }
func (alwaysTop) Score(q Query, m *core.Memory) StrategyResult {
	return StrategyResult{Score: 1, Confidence: 1}
}

func TestIncludeRelatedReturnsGraphNeighbors(t *testing.T) {
	s, _, r := newTestRetriever(t)
	if _, err := s.Store(core.MemoryInput{ID: "m1", Type: core.Semantic, Content: "graph neighbor test", Tags: []string{"graphtag"}}); err != nil {
		t.Fatalf("Store: %v", err)
	}

	result, err := r.Retrieve(Query{Text: "graph neighbor", IncludeRelated: true, Limit: 5})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(result.RelatedNodes) == 0 {
		t.Fatal("expected related concept node from tag")
	}
}

func TestSetGraphNilDisablesRelatedNodes(t *testing.T) {
	s, _, r := newTestRetriever(t)
	if _, err := s.Store(core.MemoryInput{ID: "m1", Type: core.Semantic, Content: "graph disable test", Tags: []string{"disabletag"}}); err != nil {
		t.Fatalf("Store: %v", err)
	}

	r.SetGraph(nil)
	result, err := r.Retrieve(Query{Text: "graph disable", IncludeRelated: true, Limit: 5})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(result.RelatedNodes) != 0 {
		t.Fatal("expected no related nodes once graph detached")
	}
}

func TestConfidenceReflectsTheActualQuery(t *testing.T) {
	s, _, r := newTestRetriever(t)
	if _, err := s.Store(core.MemoryInput{ID: "m1", Type: core.Semantic, Content: "kubernetes deployment pipelines"}); err != nil {
		t.Fatalf("Store: %v", err)
	}

	exact, err := r.Retrieve(Query{Text: "kubernetes deployment pipelines", Limit: 5})
	if err != nil {
		t.Fatalf("Retrieve exact: %v", err)
	}
	unrelated, err := r.Retrieve(Query{Text: "sourdough bread baking", Limit: 5})
	if err != nil {
		t.Fatalf("Retrieve unrelated: %v", err)
	}

	if exact.Confidence <= unrelated.Confidence {
		t.Fatalf("expected a closely matching query to report higher confidence than an unrelated one: exact=%v unrelated=%v", exact.Confidence, unrelated.Confidence)
	}
}

func TestCacheExpiresAfterTTL(t *testing.T) {
	s := core.New(core.Config{MaxSize: 100})
	g := graph.New(nil)
	clock := core.NewManualClock(time.Now())
	r := New(s, g, Config{CacheTTL: time.Minute, Clock: clock})

	if _, err := s.Store(core.MemoryInput{ID: "m1", Type: core.Semantic, Content: "ttl expiry test"}); err != nil {
		t.Fatalf("Store: %v", err)
	}

	q := Query{Text: "ttl expiry", Limit: 5}
	if _, err := r.Retrieve(q); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	clock.Advance(2 * time.Minute)

	second, err := r.Retrieve(q)
	if err != nil {
		t.Fatalf("Retrieve second: %v", err)
	}
	if second.FromCache {
		t.Fatal("expected cache entry to have expired")
	}
}
