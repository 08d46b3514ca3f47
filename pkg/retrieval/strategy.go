// Package retrieval implements the pluggable multi-strategy retriever:
// independent scoring strategies are combined by a weighted sum (not the
// Reciprocal Rank Fusion the teacher uses for its own TEMPR channels —
// spec.md explicitly calls for "sums per-memory scores weighted by
// strategy weight", so the fusion math is replaced while the
// multi-channel shape is kept; see DESIGN.md).
//
// Grounded in the teacher's four-channel Recall (pkg/memory/recall.go)
// and its reranker hook (pkg/core/reranker.go).
package retrieval

import (
	"math"
	"strings"
	"time"

	"github.com/traelm/memengine/pkg/core"
)

// Query describes a retrieval request, per spec.md §3/§4.4.
type Query struct {
	Text           string
	Type           *core.MemoryType
	TagsAny        []string
	Context        *core.Context
	MinImportance  float64
	MinConfidence  float64
	Limit          int
	IncludeRelated bool
}

// StrategyResult is a single strategy's opinion of one memory: a score in
// [0,1] and a self-reported confidence in [0,1] used to compute the
// retrieval's overall confidence.
type StrategyResult struct {
	Score      float64
	Confidence float64
}

// Strategy scores a single memory against a query. Implementations must
// be safe for concurrent use; the retriever may invoke Score from
// multiple goroutines for different memories.
type Strategy interface {
	Name() string
	Weight() float64
	Score(q Query, m *core.Memory) StrategyResult
}

// TextSimilarityStrategy scores memories against Query.Text using the
// same content/tag Jaccard blend the store uses for findSimilar,
// grounded in pkg/core.TextSimilarity.
type TextSimilarityStrategy struct{ W float64 }

func (s TextSimilarityStrategy) Name() string   { return "textSimilarity" }
func (s TextSimilarityStrategy) Weight() float64 { return s.W }

func (s TextSimilarityStrategy) Score(q Query, m *core.Memory) StrategyResult {
	if strings.TrimSpace(q.Text) == "" {
		return StrategyResult{}
	}
	score := core.TextSimilarity(q.Text, m)
	confidence := score
	return StrategyResult{Score: score, Confidence: confidence}
}

// ContextMatchStrategy scores memories by how many of the query's
// populated context fields match the memory's context exactly.
type ContextMatchStrategy struct{ W float64 }

func (s ContextMatchStrategy) Name() string   { return "contextMatch" }
func (s ContextMatchStrategy) Weight() float64 { return s.W }

func (s ContextMatchStrategy) Score(q Query, m *core.Memory) StrategyResult {
	if q.Context == nil || q.Context.IsZero() {
		return StrategyResult{}
	}
	want := contextFields(q.Context)
	if len(want) == 0 {
		return StrategyResult{}
	}
	have := contextFields(m.Context)
	matched := 0
	for k, v := range want {
		if hv, ok := have[k]; ok && hv == v {
			matched++
		}
	}
	score := float64(matched) / float64(len(want))
	return StrategyResult{Score: score, Confidence: score}
}

func contextFields(c *core.Context) map[string]string {
	out := make(map[string]string)
	if c == nil {
		return out
	}
	if c.UserID != "" {
		out["userId"] = c.UserID
	}
	if c.SessionID != "" {
		out["sessionId"] = c.SessionID
	}
	if c.Domain != "" {
		out["domain"] = c.Domain
	}
	if c.Task != "" {
		out["task"] = c.Task
	}
	for k, v := range c.Extras {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// TemporalRelevanceStrategy scores memories higher the more recently
// they were created, decaying over halfLife. A zero halfLife defaults to
// 7 days.
type TemporalRelevanceStrategy struct {
	W        float64
	HalfLife time.Duration
	Now      func() time.Time
}

func (s TemporalRelevanceStrategy) Name() string   { return "temporalRelevance" }
func (s TemporalRelevanceStrategy) Weight() float64 { return s.W }

func (s TemporalRelevanceStrategy) Score(q Query, m *core.Memory) StrategyResult {
	halfLife := s.HalfLife
	if halfLife <= 0 {
		halfLife = 7 * 24 * time.Hour
	}
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	age := now.Sub(m.CreatedAt)
	if age < 0 {
		age = 0
	}
	// Exponential decay: score halves every halfLife.
	halvings := float64(age) / float64(halfLife)
	score := math.Pow(2, -halvings)
	return StrategyResult{Score: score, Confidence: 0.5}
}

// ImportanceStrategy scores memories by their own stored importance,
// letting high-importance memories surface even without a strong text
// match.
type ImportanceStrategy struct{ W float64 }

func (s ImportanceStrategy) Name() string   { return "importance" }
func (s ImportanceStrategy) Weight() float64 { return s.W }

func (s ImportanceStrategy) Score(q Query, m *core.Memory) StrategyResult {
	return StrategyResult{Score: m.Importance, Confidence: m.Importance}
}
