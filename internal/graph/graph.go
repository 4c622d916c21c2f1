// Package graph is a small directed graph keyed by node identifier.
//
// Nodes live in an arena (map by id) and successors are kept in insertion
// order so traversals are deterministic. Cross-node references elsewhere in
// the module are plain ids resolved through a Graph, never owning pointers.
package graph

import (
	"fmt"
	"iter"

	"github.com/google/uuid"
)

// Node is anything with a stable identifier.
type Node interface {
	NodeID() uuid.UUID
}

// Edge is a directed edge with an optional weight (energy cost).
type Edge struct {
	From   uuid.UUID
	To     uuid.UUID
	Weight *float64
}

type edgeKey struct {
	from, to uuid.UUID
}

// Graph is a directed graph of N.
type Graph[N Node] struct {
	nodes map[uuid.UUID]N
	order []uuid.UUID
	succ  map[uuid.UUID][]uuid.UUID
	pred  map[uuid.UUID][]uuid.UUID
	edges map[edgeKey]*Edge
	eord  []edgeKey
}

// New creates an empty graph.
func New[N Node]() *Graph[N] {
	return &Graph[N]{
		nodes: make(map[uuid.UUID]N),
		succ:  make(map[uuid.UUID][]uuid.UUID),
		pred:  make(map[uuid.UUID][]uuid.UUID),
		edges: make(map[edgeKey]*Edge),
	}
}

// AddNode inserts n. Re-adding a node with the same id replaces the stored
// value but keeps its edges and position.
func (g *Graph[N]) AddNode(n N) {
	id := n.NodeID()
	if _, ok := g.nodes[id]; !ok {
		g.order = append(g.order, id)
	}
	g.nodes[id] = n
}

// AddEdge adds from->to, inserting either node if missing. Adding an existing
// edge only updates its weight when weight is non-nil.
func (g *Graph[N]) AddEdge(from, to N, weight *float64) {
	g.AddNode(from)
	g.AddNode(to)
	k := edgeKey{from.NodeID(), to.NodeID()}
	if e, ok := g.edges[k]; ok {
		if weight != nil {
			w := *weight
			e.Weight = &w
		}
		return
	}
	e := &Edge{From: k.from, To: k.to}
	if weight != nil {
		w := *weight
		e.Weight = &w
	}
	g.edges[k] = e
	g.eord = append(g.eord, k)
	g.succ[k.from] = append(g.succ[k.from], k.to)
	g.pred[k.to] = append(g.pred[k.to], k.from)
}

// Node returns the node stored under id.
func (g *Graph[N]) Node(id uuid.UUID) (N, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// HasNode reports whether id is a node of g.
func (g *Graph[N]) HasNode(id uuid.UUID) bool {
	_, ok := g.nodes[id]
	return ok
}

// Len returns the number of nodes.
func (g *Graph[N]) Len() int {
	return len(g.nodes)
}

// Nodes returns every node in insertion order.
func (g *Graph[N]) Nodes() []N {
	out := make([]N, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// HasEdge reports whether from->to exists.
func (g *Graph[N]) HasEdge(from, to uuid.UUID) bool {
	_, ok := g.edges[edgeKey{from, to}]
	return ok
}

// Edge returns a copy of the edge from->to.
func (g *Graph[N]) Edge(from, to uuid.UUID) (Edge, bool) {
	e, ok := g.edges[edgeKey{from, to}]
	if !ok {
		return Edge{}, false
	}
	return *e, true
}

// Edges returns every edge in insertion order.
func (g *Graph[N]) Edges() []Edge {
	out := make([]Edge, 0, len(g.eord))
	for _, k := range g.eord {
		out = append(out, *g.edges[k])
	}
	return out
}

// Successors returns the direct successors of id in insertion order.
func (g *Graph[N]) Successors(id uuid.UUID) []N {
	ids := g.succ[id]
	out := make([]N, 0, len(ids))
	for _, s := range ids {
		out = append(out, g.nodes[s])
	}
	return out
}

// Predecessors returns the direct predecessors of id in insertion order.
func (g *Graph[N]) Predecessors(id uuid.UUID) []N {
	ids := g.pred[id]
	out := make([]N, 0, len(ids))
	for _, p := range ids {
		out = append(out, g.nodes[p])
	}
	return out
}

// OutDegree returns the number of outgoing edges of id.
func (g *Graph[N]) OutDegree(id uuid.UUID) int {
	return len(g.succ[id])
}

// IsAcyclic reports whether g has no directed cycle (Kahn's algorithm).
func (g *Graph[N]) IsAcyclic() bool {
	indeg := make(map[uuid.UUID]int, len(g.nodes))
	for id := range g.nodes {
		indeg[id] = len(g.pred[id])
	}
	queue := make([]uuid.UUID, 0, len(g.nodes))
	for _, id := range g.order {
		if indeg[id] == 0 {
			queue = append(queue, id)
		}
	}
	seen := 0
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		seen++
		for _, s := range g.succ[current] {
			indeg[s]--
			if indeg[s] == 0 {
				queue = append(queue, s)
			}
		}
	}
	return seen == len(g.nodes)
}

// DFS yields every node reachable from start (start included) in depth-first
// preorder. Each node is yielded once. The sequence reads the graph lazily, so
// mutating g while ranging over it gives unspecified results.
func (g *Graph[N]) DFS(start uuid.UUID) iter.Seq[N] {
	return func(yield func(N) bool) {
		if !g.HasNode(start) {
			return
		}
		visited := make(map[uuid.UUID]struct{})
		stack := []uuid.UUID{start}
		for len(stack) > 0 {
			current := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if _, ok := visited[current]; ok {
				continue
			}
			visited[current] = struct{}{}
			if !yield(g.nodes[current]) {
				return
			}
			next := g.succ[current]
			for i := len(next) - 1; i >= 0; i-- {
				if _, ok := visited[next[i]]; !ok {
					stack = append(stack, next[i])
				}
			}
		}
	}
}

// DFSEdges yields each edge reachable from start exactly once, in the order a
// depth-first walk first crosses it.
func (g *Graph[N]) DFSEdges(start uuid.UUID) iter.Seq[Edge] {
	return func(yield func(Edge) bool) {
		if !g.HasNode(start) {
			return
		}
		type frame struct {
			id   uuid.UUID
			next int
		}
		visited := map[uuid.UUID]struct{}{start: {}}
		stack := []frame{{id: start}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			succ := g.succ[top.id]
			if top.next >= len(succ) {
				stack = stack[:len(stack)-1]
				continue
			}
			to := succ[top.next]
			top.next++
			if !yield(*g.edges[edgeKey{top.id, to}]) {
				return
			}
			if _, ok := visited[to]; !ok {
				visited[to] = struct{}{}
				stack = append(stack, frame{id: to})
			}
		}
	}
}

// Reachable reports whether to can be reached from from.
func (g *Graph[N]) Reachable(from, to uuid.UUID) bool {
	for n := range g.DFS(from) {
		if n.NodeID() == to {
			return true
		}
	}
	return false
}

// Roots returns the nodes without incoming edges, in insertion order.
func (g *Graph[N]) Roots() []N {
	var out []N
	for _, id := range g.order {
		if len(g.pred[id]) == 0 {
			out = append(out, g.nodes[id])
		}
	}
	return out
}

// String summarizes g for debugging.
func (g *Graph[N]) String() string {
	return fmt.Sprintf("graph(%d nodes, %d edges)", len(g.nodes), len(g.edges))
}
