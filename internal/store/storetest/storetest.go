// Package storetest holds the conformance suite every store.Store passes.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/storygraph/internal/store"
)

// Run exercises s. open must return an empty store.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Run("collections", func(t *testing.T) { testCollections(t, open(t)) })
	t.Run("documents", func(t *testing.T) { testDocuments(t, open(t)) })
	t.Run("graph traversal", func(t *testing.T) { testTraversal(t, open(t)) })
	t.Run("delete graph", func(t *testing.T) { testDeleteGraph(t, open(t)) })
	t.Run("transactions", func(t *testing.T) { testTransactions(t, open(t)) })
	t.Run("cancelled context", func(t *testing.T) { testCancelled(t, open(t)) })
}

func testCollections(t *testing.T, s store.Store) {
	ctx := context.Background()
	ok, err := s.HasCollection(ctx, "games")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.CreateCollection(ctx, "games"))
	err = s.CreateCollection(ctx, "games")
	assert.True(t, errors.Is(err, store.ErrExists), "got %v", err)

	ok, err = s.HasCollection(ctx, "games")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.EnsureCollection(ctx, s, "games"))
	require.NoError(t, store.EnsureCollection(ctx, s, "players"))

	err = s.Insert(ctx, "missing", store.Document{"_key": "x"})
	assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)
}

func testDocuments(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateCollection(ctx, "tasks"))

	docs := []store.Document{
		{"_key": "a", "for": "w1", "ratio": 90},
		{"_key": "b", "for": "w2", "ratio": 80},
		{"_key": "c", "for": "w1", "items": []string{"x"}},
	}
	for _, d := range docs {
		require.NoError(t, s.Insert(ctx, "tasks", d))
	}
	err := s.Insert(ctx, "tasks", store.Document{"_key": "a"})
	assert.True(t, errors.Is(err, store.ErrExists), "got %v", err)

	got, err := s.Get(ctx, "tasks", "b")
	require.NoError(t, err)
	assert.Equal(t, "w2", got.String("for"))

	_, err = s.Get(ctx, "tasks", "zz")
	assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)

	found, err := s.Find(ctx, "tasks", store.Document{"for": "w1"})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "a", found[0].Key())
	assert.Equal(t, "c", found[1].Key())

	found, err = s.Find(ctx, "tasks", store.Document{"ratio": 80})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "b", found[0].Key())

	all, err := s.All(ctx, "tasks")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	// Mutating a returned document never reaches the store.
	all[0]["for"] = "changed"
	again, err := s.Get(ctx, "tasks", "a")
	require.NoError(t, err)
	assert.Equal(t, "w1", again.String("for"))

	require.NoError(t, s.Delete(ctx, "tasks", "a"))
	err = s.Delete(ctx, "tasks", "a")
	assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)
}

func edge(from, to string) store.Document {
	return store.Document{
		"_key":  from + "-" + to,
		"_from": store.VertexID("waypoints", from),
		"_to":   store.VertexID("waypoints", to),
	}
}

// diamond: s -> a -> k, s -> b -> k, k -> f
func diamond(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateGraph(ctx, "game_diamond", store.GraphDefinition{VertexCollection: "waypoints", EdgeCollection: "path"}))
	for _, k := range []string{"s", "a", "b", "k", "f"} {
		require.NoError(t, s.InsertVertex(ctx, "game_diamond", store.Document{"_key": k, "title": k}))
	}
	for _, e := range [][2]string{{"s", "a"}, {"s", "b"}, {"a", "k"}, {"b", "k"}, {"k", "f"}} {
		require.NoError(t, s.InsertEdge(ctx, "game_diamond", edge(e[0], e[1])))
	}
}

func testTraversal(t *testing.T, s store.Store) {
	ctx := context.Background()
	diamond(t, s)

	err := s.InsertVertex(ctx, "game_diamond", store.Document{"_key": "s"})
	assert.True(t, errors.Is(err, store.ErrExists), "got %v", err)
	err = s.InsertEdge(ctx, "game_diamond", edge("s", "nowhere"))
	assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)

	tr, err := s.Traverse(ctx, "game_diamond", "waypoints/s")
	require.NoError(t, err)

	var keys []string
	for _, v := range tr.Vertices {
		keys = append(keys, v.Key())
	}
	assert.Equal(t, []string{"s", "a", "k", "f", "b"}, keys)

	require.Len(t, tr.Paths, 6)
	assert.Empty(t, tr.Paths[0].Edges)
	assert.Equal(t, "s", tr.Paths[0].Vertices[0].Key())

	edges := make(map[string]bool)
	for _, p := range tr.Paths[1:] {
		require.Len(t, p.Vertices, len(p.Edges)+1)
		edges[p.Edges[len(p.Edges)-1].Key()] = true
	}
	assert.Equal(t, map[string]bool{"s-a": true, "s-b": true, "a-k": true, "b-k": true, "k-f": true}, edges)

	sub, err := s.Traverse(ctx, "game_diamond", "waypoints/k")
	require.NoError(t, err)
	assert.Len(t, sub.Vertices, 2)

	_, err = s.Traverse(ctx, "game_diamond", "waypoints/zz")
	assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)
	_, err = s.Traverse(ctx, "game_missing", "waypoints/s")
	assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)
}

func testDeleteGraph(t *testing.T, s store.Store) {
	ctx := context.Background()
	diamond(t, s)

	ok, err := s.HasGraph(ctx, "game_diamond")
	require.NoError(t, err)
	assert.True(t, ok)
	err = s.CreateGraph(ctx, "game_diamond", store.GraphDefinition{VertexCollection: "waypoints", EdgeCollection: "path"})
	assert.True(t, errors.Is(err, store.ErrExists), "got %v", err)

	require.NoError(t, s.DeleteGraph(ctx, "game_diamond"))
	ok, err = s.HasGraph(ctx, "game_diamond")
	require.NoError(t, err)
	assert.False(t, ok)
	err = s.DeleteGraph(ctx, "game_diamond")
	assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)

	// A recreated graph starts empty.
	require.NoError(t, s.CreateGraph(ctx, "game_diamond", store.GraphDefinition{VertexCollection: "waypoints", EdgeCollection: "path"}))
	require.NoError(t, s.InsertVertex(ctx, "game_diamond", store.Document{"_key": "s"}))
	tr, err := s.Traverse(ctx, "game_diamond", "waypoints/s")
	require.NoError(t, err)
	assert.Len(t, tr.Vertices, 1)
}

func testTransactions(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateCollection(ctx, "instances"))

	tx, err := s.Begin(ctx, "instances")
	require.NoError(t, err)
	require.NoError(t, tx.Insert(ctx, store.Document{"_key": "one"}))
	require.NoError(t, tx.Insert(ctx, store.Document{"_key": "two"}))
	require.NoError(t, tx.Commit())
	require.NoError(t, tx.Rollback())

	all, err := s.All(ctx, "instances")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	tx, err = s.Begin(ctx, "instances")
	require.NoError(t, err)
	require.NoError(t, tx.Insert(ctx, store.Document{"_key": "three"}))
	require.NoError(t, tx.Rollback())

	_, err = s.Get(ctx, "instances", "three")
	assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)

	tx, err = s.Begin(ctx, "instances")
	require.NoError(t, err)
	require.NoError(t, tx.Delete(ctx, "one"))
	require.NoError(t, tx.Insert(ctx, store.Document{"_key": "one", "round": "second"}))
	err = tx.Delete(ctx, "three")
	assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)
	require.NoError(t, tx.Commit())
	one, err := s.Get(ctx, "instances", "one")
	require.NoError(t, err)
	assert.Equal(t, "second", one["round"])

	tx, err = s.Begin(ctx, "instances")
	require.NoError(t, err)
	require.NoError(t, tx.Delete(ctx, "two"))
	require.NoError(t, tx.Rollback())
	_, err = s.Get(ctx, "instances", "two")
	assert.NoError(t, err, "rolled back delete keeps the document")

	_, err = s.Begin(ctx, "missing")
	assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)
}

func testCancelled(t *testing.T, s store.Store) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.HasCollection(ctx, "games")
	assert.ErrorIs(t, err, context.Canceled)
	err = s.Insert(ctx, "games", store.Document{"_key": "x"})
	assert.ErrorIs(t, err, context.Canceled)
}
