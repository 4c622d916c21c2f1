package store

import (
	"context"
	"fmt"
	"slices"
)

// VertexFunc loads a vertex by handle.
type VertexFunc func(ctx context.Context, id string) (Document, error)

// OutboundFunc lists the edges leaving a vertex in insertion order.
type OutboundFunc func(ctx context.Context, id string) ([]Document, error)

type frame struct {
	vertices []Document
	edges    []Document
	out      []Document
	next     int
}

// Walk runs the outbound depth-first traversal shared by every Store
// implementation. Each vertex is listed once in discovery order. Each edge
// is crossed once and yields a path from start ending in that edge, so a
// replay of all paths restores every reachable edge, including edges into
// vertices that were already discovered.
func Walk(ctx context.Context, start string, vertex VertexFunc, outbound OutboundFunc) (*Traversal, error) {
	root, err := vertex(ctx, start)
	if err != nil {
		return nil, err
	}
	t := &Traversal{
		Vertices: []Document{root},
		Paths:    []Path{{Vertices: []Document{root}}},
	}
	seen := map[string]struct{}{start: {}}
	crossed := make(map[string]struct{})

	out, err := outbound(ctx, start)
	if err != nil {
		return nil, err
	}
	stack := []*frame{{vertices: t.Paths[0].Vertices, out: out}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		top := stack[len(stack)-1]
		if top.next >= len(top.out) {
			stack = stack[:len(stack)-1]
			continue
		}
		e := top.out[top.next]
		top.next++

		to := e.String("_to")
		handle := e.String("_from") + ">" + to + "#" + e.Key()
		if _, ok := crossed[handle]; ok {
			continue
		}
		crossed[handle] = struct{}{}

		v, err := vertex(ctx, to)
		if err != nil {
			return nil, fmt.Errorf("failed to load vertex %s: %w", to, err)
		}
		p := Path{
			Vertices: append(slices.Clone(top.vertices), v),
			Edges:    append(slices.Clone(top.edges), e),
		}
		t.Paths = append(t.Paths, p)

		if _, ok := seen[to]; ok {
			continue
		}
		seen[to] = struct{}{}
		t.Vertices = append(t.Vertices, v)
		next, err := outbound(ctx, to)
		if err != nil {
			return nil, err
		}
		stack = append(stack, &frame{vertices: p.Vertices, edges: p.Edges, out: next})
	}
	return t, nil
}
