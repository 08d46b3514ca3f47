// Package engine implements SystemFacade: the single entry point that
// constructs every subsystem in dependency order, wires their events
// together, and owns their combined lifecycle, per spec.md §4.7.
//
// It is grounded in the teacher's top-level System (pkg/hindsight/
// hindsight.go), which plays the same role — constructing a Store,
// a Retriever, and hook registries behind one facade and exposing
// aggregate stats and a single Close/destroy path.
package engine

import (
	"fmt"
	"sync"

	"github.com/traelm/memengine/pkg/core"
	"github.com/traelm/memengine/pkg/events"
	"github.com/traelm/memengine/pkg/graph"
	"github.com/traelm/memengine/pkg/linker"
	"github.com/traelm/memengine/pkg/logging"
	"github.com/traelm/memengine/pkg/manager"
	"github.com/traelm/memengine/pkg/retrieval"
	"github.com/traelm/memengine/pkg/rules"
)

// SystemStats aggregates counts and rolling numbers from every subsystem,
// per spec.md §4.7's getSystemStats().
type SystemStats struct {
	MemoryCount     int
	NodeCount       int
	EdgeCount       int
	GraphEnabled    bool
	RetrievalStats  manager.Stats
	RuleEngineState rules.EngineState
}

// IntegrityReport is the outcome of ValidateDataIntegrity, per spec.md
// §4.7's validateDataIntegrity().
type IntegrityReport struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// Engine is the SystemFacade: it owns the store, the optional knowledge
// graph and linker, the retriever, the rule engine, and the retrieval
// manager, and is the only type callers embedding memengine construct
// directly.
type Engine struct {
	mu sync.RWMutex

	cfg Config

	logger logging.Logger
	bus    *events.Bus

	store     *core.Store
	g         *graph.Graph
	gLinker   *linker.Linker
	retriever *retrieval.Retriever
	rulesEng  *rules.Engine
	mgr       *manager.Manager

	initialized bool
}

// New constructs an Engine from cfg without starting it. Call Initialize
// before using any of its operations.
func New(cfg Config, logger logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Engine{cfg: cfg, logger: logger}
}

// Initialize constructs every subsystem in dependency order — store,
// graph, linker, retriever, rule engine, manager — wires store events to
// the linker and to retriever cache invalidation, loads persistence, and
// starts the rule engine, per spec.md §4.7. Idempotent: a second call is
// a no-op.
func (e *Engine) Initialize() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initialized {
		return nil
	}

	e.bus = events.NewBus(func(name string, r any) {
		e.logger.Error("event handler panicked", "event", name, "recover", r)
	})

	e.store = core.New(core.Config{
		MaxSize:           e.cfg.Memory.MaxSize,
		RetentionDays:     e.cfg.Memory.RetentionDays,
		EnableAutoCleanup: e.cfg.Memory.EnableAutoCleanup,
		CleanupInterval:   e.cfg.Memory.CleanupInterval,
		Persistence: core.PersistenceConfig{
			Enabled:          e.cfg.Persistence.Enabled,
			Dir:              e.cfg.Persistence.Dir,
			FileName:         e.cfg.Persistence.FileName,
			AutoSave:         e.cfg.Persistence.AutoSave,
			AutoSaveInterval: e.cfg.Persistence.AutoSaveInterval,
			SaveOnDestroy:    e.cfg.Persistence.SaveOnDestroy,
		},
		Logger: e.logger.With("component", "store"),
		Events: e.bus,
	})

	if e.cfg.Features.KnowledgeGraph {
		e.g = graph.New(e.logger.With("component", "graph"))
	}

	if e.cfg.Persistence.Enabled {
		if err := e.store.LoadNow(); err != nil {
			return fmt.Errorf("engine: initialize: %w", err)
		}
	}

	if e.g != nil {
		e.gLinker = linker.New(e.store, e.g, linker.Config{Logger: e.logger.With("component", "linker")})
		e.gLinker.Backfill()
	}

	e.retriever = retrieval.New(e.store, e.g, retrieval.Config{
		Logger:   e.logger.With("component", "retriever"),
		Events:   e.bus,
		CacheTTL: e.cfg.Retrieval.CacheTTL,
	})

	// Any mutation the store reports invalidates cached retrieval
	// results, since a cached Result may no longer reflect current state.
	invalidate := func(events.Event) { e.retriever.ClearCache() }
	e.bus.On(events.MemoryStored, invalidate)
	e.bus.On(events.MemoryUpdated, invalidate)
	e.bus.On(events.MemoryRemoved, invalidate)
	e.bus.On(events.MemoriesMerged, invalidate)
	e.bus.On(events.MemoriesExpired, invalidate)
	e.bus.On(events.LowImportanceMemoriesRemoved, invalidate)
	e.bus.On(events.MemoriesLoaded, invalidate)

	e.rulesEng = rules.New(rules.Config{
		Logger: e.logger.With("component", "rules"),
		Events: e.bus,
	})
	if err := rules.LoadInto(e.rulesEng, e.cfg.Rules.PersonalRulesPath, e.cfg.Rules.ProjectRulesPath); err != nil {
		return fmt.Errorf("engine: initialize: %w", err)
	}
	e.rulesEng.Start()

	e.mgr = manager.New(e.retriever, manager.Config{Logger: e.logger.With("component", "manager"), Events: e.bus})

	e.initialized = true
	return nil
}

// StoreMemory is a pass-through to the store, per spec.md §4.7.
func (e *Engine) StoreMemory(in core.MemoryInput) (*core.Memory, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.Store(in)
}

// RetrieveMemories is a pass-through to the retrieval manager, per
// spec.md §4.7.
func (e *Engine) RetrieveMemories(q retrieval.Query) (retrieval.Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mgr.RetrieveMemories(q)
}

// EnhanceAgent is a pass-through to the retrieval manager, per spec.md
// §4.7.
func (e *Engine) EnhanceAgent(agent manager.Agent, ctx manager.AgentContext) (manager.EnhanceResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mgr.EnhanceAgent(agent, ctx)
}

// Merge is a pass-through to the store's merge operation, per spec.md
// §4.2.
func (e *Engine) Merge(ids []string, patch core.MergePatch) (*core.Memory, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.Merge(ids, patch)
}

// ErrGraphDisabled is returned by the graph-snapshot operations when
// features.knowledgeGraph is off and there is no graph to snapshot.
var ErrGraphDisabled = fmt.Errorf("engine: knowledge graph disabled")

// CreateGraphSnapshot captures the knowledge graph's current contents
// under label and retains it in the graph's own history, per spec.md
// §4.1's "snapshot create/list/restore".
func (e *Engine) CreateGraphSnapshot(label string) (graph.SnapshotMeta, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.g == nil {
		return graph.SnapshotMeta{}, ErrGraphDisabled
	}
	return e.g.CreateSnapshot(label), nil
}

// ListGraphSnapshots lists the metadata of every snapshot retained in the
// knowledge graph's history, oldest first.
func (e *Engine) ListGraphSnapshots() ([]graph.SnapshotMeta, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.g == nil {
		return nil, ErrGraphDisabled
	}
	return e.g.Snapshots(), nil
}

// RestoreGraphSnapshot reapplies a previously created snapshot by ID.
func (e *Engine) RestoreGraphSnapshot(id string) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.g == nil {
		return ErrGraphDisabled
	}
	if err := e.g.RestoreSnapshot(id); err != nil {
		return err
	}
	e.retriever.ClearCache()
	return nil
}

// RuleEngine exposes the underlying rule engine for callers that need to
// register action handlers or add rules at runtime.
func (e *Engine) RuleEngine() *rules.Engine {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rulesEng
}

// Graph exposes the underlying knowledge graph, or nil when
// features.knowledgeGraph is disabled.
func (e *Engine) Graph() *graph.Graph {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.g
}

// GetSystemStats aggregates counts and rolling performance numbers from
// every subsystem, per spec.md §4.7.
func (e *Engine) GetSystemStats() SystemStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := SystemStats{
		MemoryCount:     e.store.Len(),
		GraphEnabled:    e.g != nil,
		RetrievalStats:  e.mgr.Stats(),
		RuleEngineState: e.rulesEng.State(),
	}
	if e.g != nil {
		stats.NodeCount = e.g.NodeCount()
		stats.EdgeCount = e.g.EdgeCount()
	}
	return stats
}

// UpdateConfiguration shallow-merges patch into the current configuration
// and honors feature-flag toggles immediately: disabling
// features.knowledgeGraph detaches the retriever from the graph so
// retrieval degrades gracefully to store-only, per spec.md §4.7. Enabling
// it again requires a graph to already exist (set at Initialize time);
// the flag alone does not construct one.
func (e *Engine) UpdateConfiguration(patch ConfigPatch) {
	e.mu.Lock()
	defer e.mu.Unlock()

	before := e.cfg
	e.cfg = e.cfg.apply(patch)

	if before.Features.KnowledgeGraph != e.cfg.Features.KnowledgeGraph {
		if e.cfg.Features.KnowledgeGraph {
			e.retriever.SetGraph(e.g)
		} else {
			e.retriever.SetGraph(nil)
		}
	}
}

// ValidateDataIntegrity cross-checks that every memory has a matching
// memory_<id> graph node (when the graph is enabled) and that no edge
// references a missing node, per spec.md §4.7 and §8's referential-
// integrity invariant.
func (e *Engine) ValidateDataIntegrity() IntegrityReport {
	e.mu.RLock()
	defer e.mu.RUnlock()

	report := IntegrityReport{Valid: true}

	if e.g == nil {
		report.Warnings = append(report.Warnings, "knowledge graph disabled; skipping node/edge checks")
		return report
	}

	for _, t := range allMemoryTypes {
		for _, m := range e.store.GetMemoriesByType(t) {
			if _, err := e.g.GetNode("memory_" + m.ID); err != nil {
				report.Valid = false
				report.Errors = append(report.Errors, fmt.Sprintf("memory %s has no matching graph node", m.ID))
			}
		}
	}

	snap := e.g.Snapshot()
	nodeIDs := make(map[string]struct{}, len(snap.Nodes))
	for _, n := range snap.Nodes {
		nodeIDs[n.ID] = struct{}{}
	}
	for _, edge := range snap.Edges {
		if _, ok := nodeIDs[edge.From]; !ok {
			report.Valid = false
			report.Errors = append(report.Errors, fmt.Sprintf("edge %s references missing node %s", edge.ID, edge.From))
		}
		if _, ok := nodeIDs[edge.To]; !ok {
			report.Valid = false
			report.Errors = append(report.Errors, fmt.Sprintf("edge %s references missing node %s", edge.ID, edge.To))
		}
	}

	return report
}

var allMemoryTypes = []core.MemoryType{
	core.ShortTerm, core.LongTerm, core.Working,
	core.Episodic, core.Semantic, core.Procedural, core.Consolidated,
}

// Destroy tears down every subsystem in reverse dependency order —
// manager, rule engine, store (which flushes persistence if configured)
// — per spec.md §4.7. Safe to call once; a second call is a no-op.
func (e *Engine) Destroy() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return nil
	}

	e.mgr.Destroy()
	e.rulesEng.Stop()
	err := e.store.Destroy()

	e.initialized = false
	return err
}
