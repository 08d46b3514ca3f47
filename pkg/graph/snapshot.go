package graph

import (
	"fmt"
	"time"

	"github.com/traelm/memengine/pkg/core"
)

// SnapshotData is the JSON-serializable shape of a graph snapshot,
// The graph has no durable storage of its own: pkg/engine persists only
// the memory list and rebuilds the graph from it (linker Backfill) when
// it initializes.
type SnapshotData struct {
	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`
}

// SnapshotMeta describes a named snapshot held in the graph's own
// in-memory history, without the (possibly large) node/edge payload —
// the shape returned by Snapshots(), per spec.md §4.1's "snapshot
// create/list/restore".
type SnapshotMeta struct {
	ID        string
	Label     string
	CreatedAt time.Time
	NodeCount int
	EdgeCount int
}

type storedSnapshot struct {
	meta SnapshotMeta
	data SnapshotData
}

// maxSnapshotHistory bounds the number of named snapshots CreateSnapshot
// retains in memory; older ones are dropped, oldest first.
const maxSnapshotHistory = 20

// Snapshot captures the current graph contents.
func (g *Graph) Snapshot() SnapshotData {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.snapshotLocked()
}

func (g *Graph) snapshotLocked() SnapshotData {
	nodes := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		nodes = append(nodes, n.Clone())
	}
	edges := make([]*Edge, 0, len(g.edges))
	for _, e := range g.edges {
		edges = append(edges, e.Clone())
	}
	return SnapshotData{Nodes: nodes, Edges: edges}
}

// CreateSnapshot captures the current graph contents under label and
// retains it in the graph's own history (bounded by maxSnapshotHistory),
// so it can later be listed via Snapshots() and reapplied via
// RestoreSnapshot, per spec.md §4.1.
func (g *Graph) CreateSnapshot(label string) SnapshotMeta {
	g.mu.Lock()
	defer g.mu.Unlock()

	data := g.snapshotLocked()
	g.snapshotSeq++
	meta := SnapshotMeta{
		ID:        fmt.Sprintf("snap_%d", g.snapshotSeq),
		Label:     label,
		CreatedAt: g.clock.Now(),
		NodeCount: len(data.Nodes),
		EdgeCount: len(data.Edges),
	}
	g.snapshots = append(g.snapshots, storedSnapshot{meta: meta, data: data})
	if len(g.snapshots) > maxSnapshotHistory {
		g.snapshots = g.snapshots[len(g.snapshots)-maxSnapshotHistory:]
	}
	return meta
}

// Snapshots lists the metadata of every snapshot currently retained in
// history, oldest first.
func (g *Graph) Snapshots() []SnapshotMeta {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]SnapshotMeta, len(g.snapshots))
	for i, s := range g.snapshots {
		out[i] = s.meta
	}
	return out
}

// RestoreSnapshot replaces the graph's contents with the named snapshot
// from history. Returns core.ErrNotFound if id does not match any
// retained snapshot.
func (g *Graph) RestoreSnapshot(id string) error {
	g.mu.RLock()
	var data SnapshotData
	found := false
	for _, s := range g.snapshots {
		if s.meta.ID == id {
			data = s.data
			found = true
			break
		}
	}
	g.mu.RUnlock()
	if !found {
		return fmt.Errorf("graph: restore snapshot %s: %w", id, core.ErrNotFound)
	}
	g.Restore(data)
	return nil
}

// Restore replaces the graph's contents with snap. Edges whose endpoints
// are missing from snap.Nodes are dropped rather than rejected, since a
// snapshot produced by this same Graph can never contain one.
func (g *Graph) Restore(snap SnapshotData) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nodes = make(map[string]*Node, len(snap.Nodes))
	g.nodesByType = make(map[string]map[string]struct{})
	for _, n := range snap.Nodes {
		if n == nil || n.ID == "" {
			continue
		}
		g.nodes[n.ID] = n
		g.indexNodeType(n)
	}

	g.edges = make(map[string]*Edge, len(snap.Edges))
	g.edgesByType = make(map[string]map[string]struct{})
	g.outgoing = make(map[string]map[string]struct{})
	g.incoming = make(map[string]map[string]struct{})
	for _, e := range snap.Edges {
		if e == nil || e.ID == "" {
			continue
		}
		if _, ok := g.nodes[e.From]; !ok {
			continue
		}
		if _, ok := g.nodes[e.To]; !ok {
			continue
		}
		g.edges[e.ID] = e
		g.indexEdge(e)
	}
}
