package retrieval

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/traelm/memengine/pkg/core"
	"github.com/traelm/memengine/pkg/events"
	"github.com/traelm/memengine/pkg/graph"
	"github.com/traelm/memengine/pkg/logging"
)

// ScoredMemory pairs a memory with its composed retrieval score and the
// per-strategy contributions that produced it.
type ScoredMemory struct {
	Memory      *core.Memory       `json:"memory"`
	Score       float64            `json:"score"`
	PerStrategy map[string]float64 `json:"perStrategy,omitempty"`
}

// Result is the outcome of a single Retrieve call.
type Result struct {
	Memories     []ScoredMemory `json:"memories"`
	RelatedNodes []*graph.Node  `json:"relatedNodes,omitempty"`
	TotalResults int            `json:"totalResults"`
	Confidence   float64        `json:"confidence"`
	FromCache    bool           `json:"fromCache"`
}

// Config configures a Retriever.
type Config struct {
	Logger   logging.Logger
	Events   *events.Bus
	Clock    core.Clock
	CacheTTL time.Duration
}

// DefaultConfig returns the defaults named in spec.md §6: a 60-second
// fingerprint cache.
func DefaultConfig() Config {
	return Config{CacheTTL: 60 * time.Second}
}

type cacheEntry struct {
	result    Result
	expiresAt time.Time
}

// Retriever composes pluggable Strategy implementations by weighted sum,
// per spec.md §4.4 ("re-ranks by summing per-memory scores weighted by
// strategy weight") — this replaces the teacher's Reciprocal Rank Fusion
// (pkg/memory/recall.go's rrfFuse) while keeping its multi-channel shape
// (see DESIGN.md).
type Retriever struct {
	mu sync.RWMutex

	store *core.Store
	graph *graph.Graph

	cfg    Config
	logger logging.Logger
	clock  core.Clock
	events *events.Bus

	strategies []Strategy
	cache      map[string]cacheEntry
}

// New creates a Retriever over store (required) and g (optional; nil
// disables includeRelated), seeded with the default strategy set named in
// spec.md §4.4: textSimilarity (weight 1.0), contextMatch (0.5),
// temporalRelevance (0.3), importance (0.2).
func New(store *core.Store, g *graph.Graph, cfg Config) *Retriever {
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if cfg.Clock == nil {
		cfg.Clock = core.RealClock()
	}
	if cfg.Events == nil {
		cfg.Events = events.NewBus(nil)
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultConfig().CacheTTL
	}

	return &Retriever{
		store:  store,
		graph:  g,
		cfg:    cfg,
		logger: cfg.Logger,
		clock:  cfg.Clock,
		events: cfg.Events,
		strategies: []Strategy{
			TextSimilarityStrategy{W: 1.0},
			ContextMatchStrategy{W: 0.5},
			TemporalRelevanceStrategy{W: 0.3, Now: cfg.Clock.Now},
			ImportanceStrategy{W: 0.2},
		},
		cache: make(map[string]cacheEntry),
	}
}

// AddStrategy registers an additional scoring strategy and invalidates
// the cache, since past results no longer reflect the full strategy set.
func (r *Retriever) AddStrategy(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies = append(r.strategies, s)
	r.clearCacheLocked()
}

// RemoveStrategy removes the strategy registered under name, if any, and
// invalidates the cache.
func (r *Retriever) RemoveStrategy(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.strategies[:0]
	for _, s := range r.strategies {
		if s.Name() != name {
			out = append(out, s)
		}
	}
	r.strategies = out
	r.clearCacheLocked()
}

// SetGraph swaps the graph the retriever consults for includeRelated,
// or disables it when g is nil. Used by pkg/engine to honor the
// features.knowledgeGraph flag: retrieval degrades gracefully to
// store-only when the graph is disabled, per spec.md §4.7.
func (r *Retriever) SetGraph(g *graph.Graph) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.graph = g
}

// ClearCache empties the fingerprint cache and emits CacheCleared.
func (r *Retriever) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearCacheLocked()
}

func (r *Retriever) clearCacheLocked() {
	r.cache = make(map[string]cacheEntry)
	r.events.Emit(events.CacheCleared, nil)
}

// Retrieve scores every candidate memory matching q's filters against
// every registered strategy, composes a weighted-sum score, and returns
// the top q.Limit results descending. Repeated identical queries within
// Config.CacheTTL are served from cache (see spec.md §4.4).
func (r *Retriever) Retrieve(q Query) (Result, error) {
	if q.Limit < 0 {
		return Result{}, fmt.Errorf("retrieval: %w: negative limit", core.ErrInvalidQuery)
	}
	if q.Type != nil {
		t := *q.Type
		if !validMemoryType(t) {
			return Result{}, fmt.Errorf("retrieval: %w: unknown type %q", core.ErrInvalidQuery, t)
		}
	}

	fp := fingerprint(q)

	r.mu.Lock()
	if entry, ok := r.cache[fp]; ok && r.clock.Now().Before(entry.expiresAt) {
		r.mu.Unlock()
		r.events.Emit(events.CacheHit, map[string]any{"fingerprint": fp})
		cached := entry.result
		cached.FromCache = true
		return cached, nil
	}
	strategies := append([]Strategy(nil), r.strategies...)
	g := r.graph
	r.mu.Unlock()

	candidates, err := r.store.Search(core.SearchQuery{
		Type:          q.Type,
		TagsAny:       q.TagsAny,
		MinImportance: q.MinImportance,
	})
	if err != nil {
		return Result{}, err
	}

	scored := make([]ScoredMemory, 0, len(candidates))
	for _, m := range candidates {
		sm := ScoredMemory{Memory: m, PerStrategy: make(map[string]float64, len(strategies))}
		for _, s := range strategies {
			res := s.Score(q, m)
			sm.PerStrategy[s.Name()] = res.Score
			sm.Score += s.Weight() * res.Score
		}
		if sm.Score >= q.MinConfidence {
			scored = append(scored, sm)
		}
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	totalResults := len(scored)

	confidence := confidenceOf(scored, strategies, q)

	limit := q.Limit
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}

	var related []*graph.Node
	if q.IncludeRelated && g != nil {
		related = relatedNodes(g, scored)
	}

	result := Result{
		Memories:     scored,
		RelatedNodes: related,
		TotalResults: totalResults,
		Confidence:   confidence,
	}

	r.mu.Lock()
	r.cache[fp] = cacheEntry{result: result, expiresAt: r.clock.Now().Add(r.cfg.CacheTTL)}
	r.mu.Unlock()

	return result, nil
}

func validMemoryType(t core.MemoryType) bool {
	switch t {
	case core.ShortTerm, core.LongTerm, core.Working, core.Episodic, core.Semantic, core.Procedural, core.Consolidated:
		return true
	}
	return false
}

// confidenceOf averages the self-reported confidence of every active
// strategy over the top min(5, len) results, per spec.md §4.4. Returns 0
// when there are no results. Strategies are scored against the caller's
// own query q, not an empty one, since several strategies (textSimilarity,
// contextMatch) report confidence relative to how well a memory matches
// q's text/context.
func confidenceOf(scored []ScoredMemory, strategies []Strategy, q Query) float64 {
	if len(scored) == 0 {
		return 0
	}
	topK := 5
	if topK > len(scored) {
		topK = len(scored)
	}
	var sum float64
	var n int
	for i := 0; i < topK; i++ {
		for _, s := range strategies {
			sum += s.Score(q, scored[i].Memory).Confidence
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// relatedNodes unions the depth-1 graph neighbors of every result memory's
// node, excluding nodes that are themselves one of the result memories,
// per spec.md §4.4.
func relatedNodes(g *graph.Graph, scored []ScoredMemory) []*graph.Node {
	resultMemoryNodes := make(map[string]struct{}, len(scored))
	for _, sm := range scored {
		resultMemoryNodes["memory_"+sm.Memory.ID] = struct{}{}
	}

	seen := make(map[string]struct{})
	var out []*graph.Node
	for _, sm := range scored {
		neighbors := g.GetNeighbors("memory_"+sm.Memory.ID, graph.TraversalOptions{MaxDepth: 1})
		for _, n := range neighbors {
			if _, isResult := resultMemoryNodes[n.ID]; isResult {
				continue
			}
			if _, dup := seen[n.ID]; dup {
				continue
			}
			seen[n.ID] = struct{}{}
			out = append(out, n)
		}
	}
	return out
}

// fingerprint builds a deterministic cache key from a query's fields.
func fingerprint(q Query) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(strings.TrimSpace(q.Text)))
	b.WriteByte('|')
	if q.Type != nil {
		b.WriteString(string(*q.Type))
	}
	b.WriteByte('|')
	tags := append([]string(nil), q.TagsAny...)
	sort.Strings(tags)
	b.WriteString(strings.Join(tags, ","))
	b.WriteByte('|')
	if q.Context != nil {
		fmt.Fprintf(&b, "%s,%s,%s,%s", q.Context.UserID, q.Context.SessionID, q.Context.Domain, q.Context.Task)
	}
	fmt.Fprintf(&b, "|%f|%f|%d|%t", q.MinImportance, q.MinConfidence, q.Limit, q.IncludeRelated)
	return b.String()
}
