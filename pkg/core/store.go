package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/traelm/memengine/pkg/events"
	"github.com/traelm/memengine/pkg/logging"
)

// PersistenceConfig controls the optional single-file JSON snapshot
// described in spec.md §4.2/§6.
type PersistenceConfig struct {
	Enabled          bool
	Dir              string
	FileName         string
	AutoSave         bool
	AutoSaveInterval time.Duration
	SaveOnDestroy    bool
}

// Config configures a Store. Grounded in the teacher's Config/DefaultConfig
// idiom (pkg/hindsight.Config, pkg/semantic-router.Config).
type Config struct {
	MaxSize           int
	RetentionDays     int
	EnableAutoCleanup bool
	CleanupInterval   time.Duration
	Persistence       PersistenceConfig

	Logger logging.Logger
	Clock  Clock
	Events *events.Bus
}

// DefaultConfig returns a Config with the defaults named in spec.md §6.
func DefaultConfig() Config {
	return Config{
		MaxSize:           10000,
		RetentionDays:     30,
		EnableAutoCleanup: true,
		CleanupInterval:   time.Hour,
		Persistence: PersistenceConfig{
			Enabled:          false,
			Dir:              "data",
			FileName:         "memories.json",
			AutoSave:         true,
			AutoSaveInterval: 5 * time.Second,
			SaveOnDestroy:    true,
		},
	}
}

// Store is the canonical owner of Memory records: it maintains the type,
// context-key, and keyword indices, enforces capacity, and emits the
// lifecycle events listed in spec.md §6. Grounded in the teacher's
// pkg/core/store*.go family, reworked from a SQLite table into in-memory
// maps guarded by a single RWMutex — the concurrency model in spec.md §5
// is strictly single-threaded-cooperative, so there is no need for the
// teacher's connection pool or WAL tuning.
type Store struct {
	mu sync.RWMutex

	cfg    Config
	logger logging.Logger
	clock  Clock
	events *events.Bus

	memories     map[string]*Memory
	byType       map[MemoryType]map[string]struct{}
	byContextKey map[string]map[string]struct{}
	byKeyword    map[string]map[string]struct{}

	persistTimer Timer
	dirty        bool
	closed       bool
}

// New creates a Store from cfg, filling in the Logger/Clock/Events
// defaults (NopLogger, RealClock, a fresh unshared Bus) when absent.
func New(cfg Config) *Store {
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	if cfg.Events == nil {
		cfg.Events = events.NewBus(nil)
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultConfig().MaxSize
	}

	return &Store{
		cfg:          cfg,
		logger:       cfg.Logger,
		clock:        cfg.Clock,
		events:       cfg.Events,
		memories:     make(map[string]*Memory),
		byType:       make(map[MemoryType]map[string]struct{}),
		byContextKey: make(map[string]map[string]struct{}),
		byKeyword:    make(map[string]map[string]struct{}),
	}
}

// Events returns the bus this store emits lifecycle events on, so other
// components (pkg/linker, pkg/retrieval) can subscribe.
func (s *Store) Events() *events.Bus { return s.events }

// Len returns the current number of stored memories.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.memories)
}

func (s *Store) indexAdd(m *Memory) {
	if s.byType[m.Type] == nil {
		s.byType[m.Type] = make(map[string]struct{})
	}
	s.byType[m.Type][m.ID] = struct{}{}

	for k, v := range m.Context.entries() {
		ck := contextIndexKey(k, v)
		if s.byContextKey[ck] == nil {
			s.byContextKey[ck] = make(map[string]struct{})
		}
		s.byContextKey[ck][m.ID] = struct{}{}
	}

	for _, kw := range keywordTokens(m) {
		if s.byKeyword[kw] == nil {
			s.byKeyword[kw] = make(map[string]struct{})
		}
		s.byKeyword[kw][m.ID] = struct{}{}
	}
}

func (s *Store) indexRemove(m *Memory) {
	if set, ok := s.byType[m.Type]; ok {
		delete(set, m.ID)
		if len(set) == 0 {
			delete(s.byType, m.Type)
		}
	}
	for k, v := range m.Context.entries() {
		ck := contextIndexKey(k, v)
		if set, ok := s.byContextKey[ck]; ok {
			delete(set, m.ID)
			if len(set) == 0 {
				delete(s.byContextKey, ck)
			}
		}
	}
	for _, kw := range keywordTokens(m) {
		if set, ok := s.byKeyword[kw]; ok {
			delete(set, m.ID)
			if len(set) == 0 {
				delete(s.byKeyword, kw)
			}
		}
	}
}

func contextIndexKey(k string, v any) string {
	return fmt.Sprintf("%s\x00%v", k, v)
}

// keywordTokens returns the deduplicated keyword/tag tokens a memory is
// indexed under.
func keywordTokens(m *Memory) []string {
	seen := make(map[string]struct{})
	for _, kw := range extractKeywords(m.Content) {
		seen[kw] = struct{}{}
	}
	for t := range lowerSet(m.Tags) {
		seen[t] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	return out
}

// GetMemoriesByType returns every stored memory of the given type, per the
// index-consistency invariant in spec.md §8.
func (s *Store) GetMemoriesByType(t MemoryType) []*Memory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byType[t]
	out := make([]*Memory, 0, len(ids))
	for id := range ids {
		out = append(out, s.memories[id].Clone())
	}
	return out
}

// defaultImportance implements the rubric in spec.md §4.2: base 0.5; kind
// adds 0.05–0.3; content length tier adds up to 0.1; tag count adds up to
// 0.1 capped; context richness adds up to 0.05; clamped to [0,1].
func defaultImportance(m *Memory) float64 {
	score := 0.5

	switch m.Type {
	case Semantic, Procedural:
		score += 0.3
	case LongTerm, Consolidated:
		score += 0.2
	case Episodic:
		score += 0.15
	case Working:
		score += 0.1
	case ShortTerm:
		score += 0.05
	}

	switch {
	case len(m.Content) > 500:
		score += 0.1
	case len(m.Content) > 200:
		score += 0.06
	case len(m.Content) > 50:
		score += 0.03
	}

	tagBonus := float64(len(m.Tags)) * 0.02
	if tagBonus > 0.1 {
		tagBonus = 0.1
	}
	score += tagBonus

	if !m.Context.IsZero() {
		score += 0.05
	}

	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
