// Package linker keeps the knowledge graph (pkg/graph) synchronized with
// the memory store (pkg/core): every stored memory becomes a node,
// connected to concept nodes for its tags and facet nodes for its
// context, plus similarity edges to the memories it most resembles.
//
// It is grounded in the teacher's buildNodeID/Retain/LinkFacts idiom
// (pkg/memory/memory.go) and the entity-node upsert pattern in
// pkg/hindsight/hindsight.go, reworked from an LLM-fact/vector pipeline
// into a rule-based linker that reacts to the store's own lifecycle
// events (pkg/events) instead of being called inline by ingestion code.
package linker

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/traelm/memengine/pkg/core"
	"github.com/traelm/memengine/pkg/events"
	"github.com/traelm/memengine/pkg/graph"
	"github.com/traelm/memengine/pkg/logging"
)

const (
	// similarityThreshold and topSimilar bound the "similar_to" edges
	// created between memories, per spec.md §4.3.
	similarityThreshold = 0.7
	topSimilar           = 5

	// labelLen is the number of content characters kept in a memory
	// node's label before the "…" ellipsis, per spec.md §4.3.
	labelLen = 50
)

// Config configures a Linker.
type Config struct {
	Logger logging.Logger
}

// Linker subscribes to a Store's event bus and maintains the Graph in
// lockstep with it.
type Linker struct {
	store  *core.Store
	graph  *graph.Graph
	logger logging.Logger
}

// New creates a Linker wired to store and g, and subscribes its handlers
// on store's event bus. Call Backfill to link memories that already
// existed before the Linker was created.
func New(store *core.Store, g *graph.Graph, cfg Config) *Linker {
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	l := &Linker{store: store, graph: g, logger: cfg.Logger}

	store.Events().On(events.MemoryStored, func(evt events.Event) {
		if m, ok := evt.Payload.(*core.Memory); ok {
			l.linkMemory(m)
		}
	})
	store.Events().On(events.MemoryUpdated, func(evt events.Event) {
		if pair, ok := evt.Payload.(map[string]*core.Memory); ok {
			l.linkMemory(pair["new"])
		}
	})
	store.Events().On(events.MemoryRemoved, func(evt events.Event) {
		if m, ok := evt.Payload.(*core.Memory); ok {
			l.unlinkMemory(m)
		}
	})

	return l
}

var allMemoryTypes = []core.MemoryType{
	core.ShortTerm, core.LongTerm, core.Working,
	core.Episodic, core.Semantic, core.Procedural, core.Consolidated,
}

// Backfill links every memory currently in the store. Use this once after
// construction (or after a snapshot load) to catch up on history the
// Linker was not subscribed for. Runs in two passes so that every
// memory's own node exists before similarity edges (which require both
// endpoints to already be present) are created.
func (l *Linker) Backfill() {
	var all []*core.Memory
	for _, t := range allMemoryTypes {
		all = append(all, l.store.GetMemoriesByType(t)...)
	}
	for _, m := range all {
		l.upsertMemoryNode(m)
	}
	for _, m := range all {
		l.linkConcepts(m, m.UpdatedAt)
		l.linkContext(m, m.UpdatedAt)
		l.linkSimilar(m)
	}
}

func memoryNodeID(id string) string { return "memory_" + id }
func conceptNodeID(tag string) string { return "concept_" + slug(tag) }
func userNodeID(uid string) string    { return "user_" + uid }
func sessionNodeID(sid string) string { return "session_" + sid }
func domainNodeID(d string) string    { return "domain_" + slug(d) }
func taskNodeID(t string) string      { return "task_" + slug(t) }

var slugNonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// slug normalizes an arbitrary label into a node-ID-safe token: lower
// case, runs of non-alphanumerics collapsed to a single underscore.
func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugNonAlnum.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// linkMemory upserts the memory's own node, its tag/concept edges, its
// context-facet edges, and its top similarity edges, per spec.md §4.3.
func (l *Linker) linkMemory(m *core.Memory) {
	if m == nil {
		return
	}
	l.upsertMemoryNode(m)
	l.linkConcepts(m, m.UpdatedAt)
	l.linkContext(m, m.UpdatedAt)
	l.linkSimilar(m)
}

func (l *Linker) upsertMemoryNode(m *core.Memory) {
	l.graph.UpsertNode(&graph.Node{
		ID:    memoryNodeID(m.ID),
		Type:  "memory",
		Label: label(m.Content),
		Properties: map[string]any{
			"memoryId":   m.ID,
			"memoryType": string(m.Type),
		},
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	})
}

// label truncates content to labelLen runes followed by an ellipsis, per
// spec.md §4.3's "first 50 chars of content + …".
func label(content string) string {
	r := []rune(content)
	if len(r) <= labelLen {
		return content
	}
	return string(r[:labelLen]) + "…"
}

// linkConcepts upserts a concept node per tag and a relates_to/tagged_with
// edge from the memory node to it, weight 1, per spec.md §4.3.
func (l *Linker) linkConcepts(m *core.Memory, now time.Time) {
	for tag := range m.Tags {
		nodeID := conceptNodeID(tag)
		l.bumpCount(nodeID, "concept", tag, "memoryCount", now)

		edgeID := fmt.Sprintf("tagged_with_%s_%s", m.ID, slug(tag))
		_ = l.graph.UpsertEdge(&graph.Edge{
			ID:           edgeID,
			From:         memoryNodeID(m.ID),
			To:           nodeID,
			Type:         "relates_to",
			Relationship: "tagged_with",
			Weight:       1,
			CreatedAt:    now,
		})
	}
}

// linkContext upserts a facet node per populated context field
// (user/session/domain/task) and the type/relationship/weight edge spec.md
// §4.3 assigns to each: belongs_to/created_by (user, weight 1),
// part_of/occurred_in (session, weight 1), categorized_as/belongs_to_domain
// (domain, weight 1), relates_to/related_to (task, weight 0.8).
func (l *Linker) linkContext(m *core.Memory, now time.Time) {
	if m.Context == nil {
		return
	}

	type facet struct {
		value, nodeID, nodeType, edgeType, relationship string
		weight                                          float64
	}
	facets := []facet{
		{m.Context.UserID, userNodeID(m.Context.UserID), "user", "belongs_to", "created_by", 1},
		{m.Context.SessionID, sessionNodeID(m.Context.SessionID), "session", "part_of", "occurred_in", 1},
		{m.Context.Domain, domainNodeID(m.Context.Domain), "domain", "categorized_as", "belongs_to_domain", 1},
		{m.Context.Task, taskNodeID(m.Context.Task), "task", "relates_to", "related_to", 0.8},
	}

	for _, f := range facets {
		if f.value == "" {
			continue
		}
		l.bumpCount(f.nodeID, f.nodeType, f.value, "relatedMemoryCount", now)

		edgeID := fmt.Sprintf("%s_%s_%s", f.relationship, m.ID, f.nodeID)
		_ = l.graph.UpsertEdge(&graph.Edge{
			ID:           edgeID,
			From:         memoryNodeID(m.ID),
			To:           f.nodeID,
			Type:         f.edgeType,
			Relationship: f.relationship,
			Weight:       f.weight,
			CreatedAt:    now,
		})
	}
}

// bumpCount upserts a non-memory node, incrementing its counter property
// (memoryCount for concepts, relatedMemoryCount for context facets) each
// time a memory references it, per spec.md §4.3.
func (l *Linker) bumpCount(nodeID, nodeType, nodeLabel, counterProp string, now time.Time) {
	if existing, err := l.graph.GetNode(nodeID); err == nil {
		l.graph.UpsertNode(&graph.Node{
			ID:        nodeID,
			Type:      nodeType,
			Label:     nodeLabel,
			UpdatedAt: now,
			Properties: map[string]any{
				counterProp: countOf(existing.Properties, counterProp) + 1,
			},
		})
		return
	}
	_ = l.graph.AddNode(&graph.Node{
		ID:         nodeID,
		Type:       nodeType,
		Label:      nodeLabel,
		Properties: map[string]any{counterProp: 1},
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

func countOf(props map[string]any, key string) int {
	if props == nil {
		return 0
	}
	if v, ok := props[key].(int); ok {
		return v
	}
	return 0
}

// linkSimilar creates "similar_to" edges from m's node to the nodes of the
// topSimilar other memories scoring at least similarityThreshold, per
// spec.md §4.3. Similarity is computed with the same tokenizer/weighting
// the store itself uses (pkg/core.Similarity), eliminating the
// tokenizer-divergence spec.md §9 flags between store and linker.
func (l *Linker) linkSimilar(m *core.Memory) {
	related, err := l.store.GetRelated(m.ID, topSimilar, similarityThreshold)
	if err != nil {
		return
	}
	for _, r := range related {
		edgeID := fmt.Sprintf("similar_to_%s_%s", m.ID, r.Memory.ID)
		_ = l.graph.UpsertEdge(&graph.Edge{
			ID:        edgeID,
			From:      memoryNodeID(m.ID),
			To:        memoryNodeID(r.Memory.ID),
			Type:      "similar_to",
			Weight:    r.Similarity,
			CreatedAt: m.UpdatedAt,
		})
	}
}

// unlinkMemory removes the memory's node (cascading its edges); concept
// and facet nodes are left in place since other memories may still
// reference them.
func (l *Linker) unlinkMemory(m *core.Memory) {
	if m == nil {
		return
	}
	_ = l.graph.RemoveNode(memoryNodeID(m.ID))
}
