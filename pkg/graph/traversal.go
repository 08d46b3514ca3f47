package graph

import (
	"sort"
	"strings"
	"time"
)

// TraversalOptions controls GetNeighbors/GetSubgraph, grounded in the
// teacher's TraversalOptions (graph_traversal.go).
type TraversalOptions struct {
	MaxDepth  int
	EdgeTypes []string
	NodeTypes []string
	Direction string // "out", "in", "both" (default)
	Limit     int
}

func (g *Graph) adjacentEdges(nodeID, direction string) []*Edge {
	var ids map[string]struct{}
	switch direction {
	case "out":
		ids = g.outgoing[nodeID]
	case "in":
		ids = g.incoming[nodeID]
	default:
		out := make([]*Edge, 0)
		for id := range g.outgoing[nodeID] {
			out = append(out, g.edges[id])
		}
		for id := range g.incoming[nodeID] {
			out = append(out, g.edges[id])
		}
		return out
	}
	out := make([]*Edge, 0, len(ids))
	for id := range ids {
		out = append(out, g.edges[id])
	}
	return out
}

func otherEndpoint(e *Edge, nodeID string) string {
	if e.From == nodeID {
		return e.To
	}
	return e.From
}

func containsStr(items []string, v string) bool {
	for _, it := range items {
		if it == v {
			return true
		}
	}
	return false
}

// GetNeighbors performs a breadth-first walk from nodeID up to MaxDepth
// hops, filtering by edge/node type and direction, grounded in the
// teacher's Neighbors (graph_traversal.go).
func (g *Graph) GetNeighbors(nodeID string, opts TraversalOptions) []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 1
	}
	if opts.Direction == "" {
		opts.Direction = "both"
	}

	type queued struct {
		id    string
		depth int
	}
	visited := map[string]struct{}{nodeID: {}}
	queue := []queued{{nodeID, 0}}
	var out []*Node

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= opts.MaxDepth {
			continue
		}
		for _, e := range g.adjacentEdges(cur.id, opts.Direction) {
			if len(opts.EdgeTypes) > 0 && !containsStr(opts.EdgeTypes, e.Type) {
				continue
			}
			neighborID := otherEndpoint(e, cur.id)
			if _, seen := visited[neighborID]; seen {
				continue
			}
			visited[neighborID] = struct{}{}
			n, ok := g.nodes[neighborID]
			if !ok {
				continue
			}
			if len(opts.NodeTypes) > 0 && !containsStr(opts.NodeTypes, n.Type) {
				continue
			}
			out = append(out, n.Clone())
			if cur.depth+1 < opts.MaxDepth {
				queue = append(queue, queued{neighborID, cur.depth + 1})
			}
			if opts.Limit > 0 && len(out) >= opts.Limit {
				return out
			}
		}
	}
	return out
}

// FindPaths enumerates simple paths from fromID to toID up to maxDepth
// hops using depth-first search with a visited set (no node revisited
// within a single path), grounded in the teacher's ShortestPath
// (graph_traversal.go) generalized from single-shortest-path to
// all-simple-paths since spec.md calls for ranked path enumeration, not
// just the shortest. Results are sorted by Length ascending.
func (g *Graph) FindPaths(fromID, toID string, maxDepth int) []*Path {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if maxDepth <= 0 {
		maxDepth = 6
	}
	if _, ok := g.nodes[fromID]; !ok {
		return nil
	}
	if _, ok := g.nodes[toID]; !ok {
		return nil
	}

	var results []*Path
	visited := map[string]struct{}{fromID: {}}
	nodePath := []*Node{g.nodes[fromID]}
	var edgePath []*Edge

	var dfs func(current string, weight float64)
	dfs = func(current string, weight float64) {
		if current == toID {
			results = append(results, &Path{
				Nodes:  cloneNodes(nodePath),
				Edges:  cloneEdges(edgePath),
				Length: len(nodePath),
				Weight: weight,
			})
			return
		}
		if len(nodePath) > maxDepth {
			return
		}
		for _, e := range g.adjacentEdges(current, "out") {
			next := e.To
			if _, seen := visited[next]; seen {
				continue
			}
			n, ok := g.nodes[next]
			if !ok {
				continue
			}
			visited[next] = struct{}{}
			nodePath = append(nodePath, n)
			edgePath = append(edgePath, e)

			dfs(next, weight+e.Weight)

			edgePath = edgePath[:len(edgePath)-1]
			nodePath = nodePath[:len(nodePath)-1]
			delete(visited, next)
		}
	}
	dfs(fromID, 0)

	sort.Slice(results, func(i, j int) bool {
		if results[i].Length != results[j].Length {
			return results[i].Length < results[j].Length
		}
		return results[i].Weight < results[j].Weight
	})
	return results
}

func cloneNodes(nodes []*Node) []*Node {
	out := make([]*Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}

func cloneEdges(edges []*Edge) []*Edge {
	out := make([]*Edge, len(edges))
	for i, e := range edges {
		out[i] = e.Clone()
	}
	return out
}

// GetSubgraph extracts the induced subgraph reachable from seed nodes
// within depth hops: every node visited by a breadth-first walk from the
// seeds, and every edge whose endpoints are both in that node set.
// Grounded in the teacher's Subgraph (graph_traversal.go), generalized
// from an explicit node list to a depth-bounded BFS per spec.md.
func (g *Graph) GetSubgraph(seedIDs []string, depth int) *Path {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if depth <= 0 {
		depth = 1
	}

	type queued struct {
		id    string
		depth int
	}
	visited := make(map[string]struct{})
	var queue []queued
	for _, id := range seedIDs {
		if _, ok := g.nodes[id]; !ok {
			continue
		}
		if _, seen := visited[id]; !seen {
			visited[id] = struct{}{}
			queue = append(queue, queued{id, 0})
		}
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= depth {
			continue
		}
		for _, e := range g.adjacentEdges(cur.id, "both") {
			next := otherEndpoint(e, cur.id)
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = struct{}{}
			queue = append(queue, queued{next, cur.depth + 1})
		}
	}

	nodes := make([]*Node, 0, len(visited))
	for id := range visited {
		nodes = append(nodes, g.nodes[id].Clone())
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	edges := make([]*Edge, 0)
	for _, e := range g.edges {
		_, fromIn := visited[e.From]
		_, toIn := visited[e.To]
		if fromIn && toIn {
			edges = append(edges, e.Clone())
		}
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })

	return &Path{Nodes: nodes, Edges: edges, Length: len(nodes)}
}

// NodeSearchQuery composes predicates for SearchNodes.
type NodeSearchQuery struct {
	Type          string
	TagsAny       []string // matched against Properties["tags"].([]string)
	Property      string
	PropertyValue any
	TextContains  string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	SortDesc      bool
	Limit         int
}

// SearchNodes filters nodes by type, tag intersection, a single
// property-equality check, substring text match on Label, and a creation
// window, sorted by CreatedAt and truncated to Limit.
func (g *Graph) SearchNodes(q NodeSearchQuery) []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	textContains := strings.ToLower(q.TextContains)
	out := make([]*Node, 0)
	for _, n := range g.nodes {
		if q.Type != "" && n.Type != q.Type {
			continue
		}
		if q.CreatedAfter != nil && n.CreatedAt.Before(*q.CreatedAfter) {
			continue
		}
		if q.CreatedBefore != nil && n.CreatedAt.After(*q.CreatedBefore) {
			continue
		}
		if len(q.TagsAny) > 0 {
			tags, _ := n.Properties["tags"].([]string)
			found := false
			for _, t := range tags {
				if containsStr(q.TagsAny, t) {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		if q.Property != "" {
			v, ok := n.Properties[q.Property]
			if !ok || v != q.PropertyValue {
				continue
			}
		}
		if textContains != "" && !strings.Contains(strings.ToLower(n.Label), textContains) {
			continue
		}
		out = append(out, n.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		if q.SortDesc {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}
