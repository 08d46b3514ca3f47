package core

import (
	"errors"
	"testing"
	"time"
)

func newTestStore() *Store {
	return New(Config{MaxSize: 100})
}

func TestStoreIdempotence(t *testing.T) {
	s := newTestStore()
	if _, err := s.Store(MemoryInput{ID: "m1", Type: Semantic, Content: "hello world"}); err != nil {
		t.Fatalf("first Store: %v", err)
	}
	if _, err := s.Store(MemoryInput{ID: "m1", Type: Semantic, Content: "hello world"}); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID on second Store, got %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("expected exactly one record, got %d", s.Len())
	}
}

func TestIndexConsistencyAcrossLifecycle(t *testing.T) {
	s := newTestStore()
	if _, err := s.Store(MemoryInput{ID: "m1", Type: Semantic, Content: "alpha beta"}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, err := s.Store(MemoryInput{ID: "m2", Type: Episodic, Content: "gamma delta"}); err != nil {
		t.Fatalf("Store: %v", err)
	}

	if got := s.GetMemoriesByType(Semantic); len(got) != 1 || got[0].ID != "m1" {
		t.Fatalf("expected [m1] for semantic, got %v", got)
	}

	newType := Episodic
	if _, err := s.Update("m1", MemoryPatch{ContextSet: false}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	_ = newType // MemoryPatch has no type field, so Update never changes a memory's type

	if err := s.Remove("m2"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if got := s.GetMemoriesByType(Episodic); len(got) != 0 {
		t.Fatalf("expected no episodic memories after remove, got %v", got)
	}
}

func TestSimilaritySymmetryAndIdentity(t *testing.T) {
	a := &Memory{ID: "a", Type: Semantic, Content: "deploying go services with kubernetes"}
	a.setTags([]string{"go", "kubernetes"})
	b := &Memory{ID: "b", Type: Semantic, Content: "deploying python services with docker"}
	b.setTags([]string{"python", "docker"})

	ab := Similarity(a, b)
	ba := Similarity(b, a)
	if diff := ab - ba; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("similarity not symmetric: a,b=%v b,a=%v", ab, ba)
	}
	if got := Similarity(a, a); got != 1 {
		t.Fatalf("expected self-similarity 1, got %v", got)
	}
}

func TestMergeConservation(t *testing.T) {
	s := newTestStore()
	clock := NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s = New(Config{MaxSize: 100, Clock: clock})

	clock.Advance(time.Hour)
	impA := 0.4
	if _, err := s.Store(MemoryInput{ID: "merge-1", Type: Semantic, Content: "sunny weather", Tags: []string{"weather"}, Importance: &impA}); err != nil {
		t.Fatalf("Store a: %v", err)
	}
	clock.Advance(time.Hour)
	impB := 0.5
	if _, err := s.Store(MemoryInput{ID: "merge-2", Type: Semantic, Content: "rainy weather", Tags: []string{"weather"}, Importance: &impB}); err != nil {
		t.Fatalf("Store b: %v", err)
	}

	a, _ := s.Peek("merge-1")
	b, _ := s.Peek("merge-2")

	summary := "Merged: sunny day"
	merged, err := s.Merge([]string{"merge-1", "merge-2"}, MergePatch{Summary: &summary})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	if _, err := s.Peek("merge-1"); !errors.Is(err, ErrNotFound) {
		t.Fatal("expected merge-1 to be gone")
	}
	if _, err := s.Peek("merge-2"); !errors.Is(err, ErrNotFound) {
		t.Fatal("expected merge-2 to be gone")
	}
	if !merged.CreatedAt.Equal(a.CreatedAt) {
		t.Fatalf("expected merged.createdAt == min(a,b).createdAt, got %v want %v", merged.CreatedAt, a.CreatedAt)
	}
	if merged.Importance != b.Importance {
		t.Fatalf("expected merged.importance == max(a,b), got %v want %v", merged.Importance, b.Importance)
	}
}

func TestCleanupExpired(t *testing.T) {
	clock := NewManualClock(time.Now())
	s := New(Config{MaxSize: 100, Clock: clock})

	past := clock.Now().Add(-time.Second)
	if _, err := s.Store(MemoryInput{ID: "m1", Type: Semantic, Content: "will expire"}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, err := s.Update("m1", MemoryPatch{ExpiresAt: &past}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if n := s.CleanupExpired(); n != 1 {
		t.Fatalf("expected 1 expired, got %d", n)
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty store after cleanup, got %d", s.Len())
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{MaxSize: 100, Persistence: PersistenceConfig{Enabled: true, Dir: dir, FileName: "memories.json"}}

	s1 := New(cfg)
	imp := 0.75
	m, err := s1.Store(MemoryInput{ID: "m1", Type: Semantic, Content: "roundtrip content", Importance: &imp})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := s1.SaveNow(); err != nil {
		t.Fatalf("SaveNow: %v", err)
	}

	s2 := New(cfg)
	if err := s2.LoadNow(); err != nil {
		t.Fatalf("LoadNow: %v", err)
	}
	loaded, err := s2.Peek("m1")
	if err != nil {
		t.Fatalf("Peek after load: %v", err)
	}
	if loaded.Importance != m.Importance {
		t.Fatalf("importance mismatch: got %v want %v", loaded.Importance, m.Importance)
	}
	if !loaded.CreatedAt.Truncate(time.Millisecond).Equal(m.CreatedAt.Truncate(time.Millisecond)) {
		t.Fatalf("createdAt mismatch: got %v want %v", loaded.CreatedAt, m.CreatedAt)
	}
}

func TestSearchRejectsNegativeLimit(t *testing.T) {
	s := newTestStore()
	if _, err := s.Search(SearchQuery{Limit: -1}); !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestStoreRejectsExpiresAtNotAfterCreation(t *testing.T) {
	s := newTestStore()
	now := time.Now()
	if _, err := s.Store(MemoryInput{ID: "m1", Type: Semantic, Content: "x", ExpiresAt: &now}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
