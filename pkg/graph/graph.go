package graph

import (
	"fmt"
	"sort"
	"sync"

	"github.com/traelm/memengine/pkg/core"
	"github.com/traelm/memengine/pkg/logging"
)

// Graph is the in-memory knowledge graph: nodes indexed by ID and type,
// edges indexed by ID and endpoint, with adjacency maps for traversal.
// Grounded in the teacher's GraphStore (pkg/graph/graph.go), reworked from
// a SQL-table-backed store into maps guarded by a single RWMutex, matching
// the rest of this module's concurrency model (spec.md §5).
type Graph struct {
	mu     sync.RWMutex
	logger logging.Logger
	clock  core.Clock

	nodes map[string]*Node
	edges map[string]*Edge

	nodesByType map[string]map[string]struct{}
	edgesByType map[string]map[string]struct{}
	outgoing    map[string]map[string]struct{} // nodeID -> edge IDs leaving it
	incoming    map[string]map[string]struct{} // nodeID -> edge IDs entering it

	snapshots   []storedSnapshot
	snapshotSeq int
}

// New creates an empty Graph. A nil logger defaults to logging.Nop().
func New(logger logging.Logger) *Graph {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Graph{
		logger:      logger,
		clock:       core.RealClock(),
		nodes:       make(map[string]*Node),
		edges:       make(map[string]*Edge),
		nodesByType: make(map[string]map[string]struct{}),
		edgesByType: make(map[string]map[string]struct{}),
		outgoing:    make(map[string]map[string]struct{}),
		incoming:    make(map[string]map[string]struct{}),
	}
}

// NodeCount returns the number of nodes currently in the graph.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the number of edges currently in the graph.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// AddNode inserts a new node. Returns core.ErrDuplicateID if id already
// exists.
func (g *Graph) AddNode(n *Node) error {
	if n == nil || n.ID == "" {
		return fmt.Errorf("graph: add node: %w", core.ErrInvalidInput)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.nodes[n.ID]; exists {
		return fmt.Errorf("graph: add node %s: %w", n.ID, core.ErrDuplicateID)
	}
	g.nodes[n.ID] = n
	g.indexNodeType(n)
	return nil
}

// UpsertNode inserts n, or, if a node with the same ID already exists,
// replaces its Label and Type, merges n.Properties into its properties
// key by key, and takes n's UpdatedAt.
func (g *Graph) UpsertNode(n *Node) {
	g.mu.Lock()
	defer g.mu.Unlock()

	existing, ok := g.nodes[n.ID]
	if !ok {
		g.nodes[n.ID] = n
		g.indexNodeType(n)
		return
	}
	g.deindexNodeType(existing)
	existing.Label = n.Label
	existing.Type = n.Type
	if n.Properties != nil {
		if existing.Properties == nil {
			existing.Properties = make(map[string]any, len(n.Properties))
		}
		for k, v := range n.Properties {
			existing.Properties[k] = v
		}
	}
	existing.UpdatedAt = n.UpdatedAt
	g.indexNodeType(existing)
}

// GetNode retrieves a node by ID. Returns core.ErrNotFound if absent.
func (g *Graph) GetNode(id string) (*Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("graph: get node %s: %w", id, core.ErrNotFound)
	}
	return n.Clone(), nil
}

// UpdateNode applies a mutator to the node identified by id under the
// graph's lock, returning the updated clone. Returns core.ErrNotFound if
// absent.
func (g *Graph) UpdateNode(id string, mutate func(*Node)) (*Node, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("graph: update node %s: %w", id, core.ErrNotFound)
	}
	g.deindexNodeType(n)
	mutate(n)
	g.indexNodeType(n)
	return n.Clone(), nil
}

// RemoveNode deletes a node and cascades the deletion to every incident
// edge, per spec.md's referential-integrity invariant (no dangling edges).
func (g *Graph) RemoveNode(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("graph: remove node %s: %w", id, core.ErrNotFound)
	}

	incident := make(map[string]struct{})
	for eid := range g.outgoing[id] {
		incident[eid] = struct{}{}
	}
	for eid := range g.incoming[id] {
		incident[eid] = struct{}{}
	}
	for eid := range incident {
		g.removeEdgeLocked(eid)
	}

	g.deindexNodeType(n)
	delete(g.nodes, id)
	delete(g.outgoing, id)
	delete(g.incoming, id)
	return nil
}

func (g *Graph) indexNodeType(n *Node) {
	if g.nodesByType[n.Type] == nil {
		g.nodesByType[n.Type] = make(map[string]struct{})
	}
	g.nodesByType[n.Type][n.ID] = struct{}{}
}

func (g *Graph) deindexNodeType(n *Node) {
	if set, ok := g.nodesByType[n.Type]; ok {
		delete(set, n.ID)
		if len(set) == 0 {
			delete(g.nodesByType, n.Type)
		}
	}
}

// GetNodesByType returns every node of the given type.
func (g *Graph) GetNodesByType(nodeType string) []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := g.nodesByType[nodeType]
	out := make([]*Node, 0, len(ids))
	for id := range ids {
		out = append(out, g.nodes[id].Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddEdge inserts a directed edge. Returns core.ErrDanglingEndpoint if
// either endpoint does not exist, core.ErrDuplicateID if the edge ID is
// already in use.
func (g *Graph) AddEdge(e *Edge) error {
	if e == nil || e.ID == "" || e.From == "" || e.To == "" {
		return fmt.Errorf("graph: add edge: %w", core.ErrInvalidInput)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.edges[e.ID]; exists {
		return fmt.Errorf("graph: add edge %s: %w", e.ID, core.ErrDuplicateID)
	}
	if _, ok := g.nodes[e.From]; !ok {
		return fmt.Errorf("graph: add edge %s: from %s: %w", e.ID, e.From, core.ErrDanglingEndpoint)
	}
	if _, ok := g.nodes[e.To]; !ok {
		return fmt.Errorf("graph: add edge %s: to %s: %w", e.ID, e.To, core.ErrDanglingEndpoint)
	}
	if e.Weight == 0 {
		e.Weight = 1.0
	}

	g.edges[e.ID] = e
	g.indexEdge(e)
	return nil
}

func (g *Graph) indexEdge(e *Edge) {
	if g.edgesByType[e.Type] == nil {
		g.edgesByType[e.Type] = make(map[string]struct{})
	}
	g.edgesByType[e.Type][e.ID] = struct{}{}

	if g.outgoing[e.From] == nil {
		g.outgoing[e.From] = make(map[string]struct{})
	}
	g.outgoing[e.From][e.ID] = struct{}{}

	if g.incoming[e.To] == nil {
		g.incoming[e.To] = make(map[string]struct{})
	}
	g.incoming[e.To][e.ID] = struct{}{}
}

func (g *Graph) deindexEdge(e *Edge) {
	if set, ok := g.edgesByType[e.Type]; ok {
		delete(set, e.ID)
		if len(set) == 0 {
			delete(g.edgesByType, e.Type)
		}
	}
	if set, ok := g.outgoing[e.From]; ok {
		delete(set, e.ID)
	}
	if set, ok := g.incoming[e.To]; ok {
		delete(set, e.ID)
	}
}

// UpsertEdge inserts e, or replaces the existing edge's Weight and merges
// e.Properties into its properties key by key if one with the same ID
// already exists. Returns core.ErrDanglingEndpoint
// if e names endpoints that don't exist and no edge with that ID exists
// yet.
func (g *Graph) UpsertEdge(e *Edge) error {
	g.mu.Lock()
	existing, ok := g.edges[e.ID]
	g.mu.Unlock()
	if !ok {
		return g.AddEdge(e)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	existing.Weight = e.Weight
	if e.Properties != nil {
		if existing.Properties == nil {
			existing.Properties = make(map[string]any, len(e.Properties))
		}
		for k, v := range e.Properties {
			existing.Properties[k] = v
		}
	}
	return nil
}

// UpdateEdge applies a mutator to the edge identified by id. The mutator
// must not change From/To; use RemoveEdge+AddEdge to rewire an edge.
func (g *Graph) UpdateEdge(id string, mutate func(*Edge)) (*Edge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.edges[id]
	if !ok {
		return nil, fmt.Errorf("graph: update edge %s: %w", id, core.ErrNotFound)
	}
	mutate(e)
	return e.Clone(), nil
}

// RemoveEdge deletes an edge. Returns core.ErrNotFound if absent.
func (g *Graph) RemoveEdge(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.edges[id]; !ok {
		return fmt.Errorf("graph: remove edge %s: %w", id, core.ErrNotFound)
	}
	g.removeEdgeLocked(id)
	return nil
}

func (g *Graph) removeEdgeLocked(id string) {
	e, ok := g.edges[id]
	if !ok {
		return
	}
	g.deindexEdge(e)
	delete(g.edges, id)
}

// GetEdgesByType returns every edge of the given type.
func (g *Graph) GetEdgesByType(edgeType string) []*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := g.edgesByType[edgeType]
	out := make([]*Edge, 0, len(ids))
	for id := range ids {
		out = append(out, g.edges[id].Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetEdge retrieves an edge by ID. Returns core.ErrNotFound if absent.
func (g *Graph) GetEdge(id string) (*Edge, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.edges[id]
	if !ok {
		return nil, fmt.Errorf("graph: get edge %s: %w", id, core.ErrNotFound)
	}
	return e.Clone(), nil
}
