// Package memory is an in-process Store used by tests and the validate
// command.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/AaronLay10/storygraph/internal/store"
)

type collection struct {
	keys []string
	docs map[string]store.Document
}

func newCollection() *collection {
	return &collection{docs: make(map[string]store.Document)}
}

func (c *collection) insert(doc store.Document) error {
	key := doc.Key()
	if key == "" {
		return fmt.Errorf("document without _key")
	}
	if _, ok := c.docs[key]; ok {
		return fmt.Errorf("key %s: %w", key, store.ErrExists)
	}
	c.keys = append(c.keys, key)
	c.docs[key] = doc
	return nil
}

func (c *collection) remove(key string) bool {
	if _, ok := c.docs[key]; !ok {
		return false
	}
	delete(c.docs, key)
	for n, k := range c.keys {
		if k == key {
			c.keys = append(c.keys[:n], c.keys[n+1:]...)
			break
		}
	}
	return true
}

func (c *collection) list() []store.Document {
	out := make([]store.Document, 0, len(c.keys))
	for _, k := range c.keys {
		out = append(out, c.docs[k])
	}
	return out
}

type graph struct {
	def      store.GraphDefinition
	vertices *collection
	edges    *collection
}

// Store keeps every document as normalized JSON in memory.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
	graphs      map[string]*graph
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		collections: make(map[string]*collection),
		graphs:      make(map[string]*graph),
	}
}

func (s *Store) HasCollection(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[name]
	return ok, nil
}

func (s *Store) CreateCollection(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; ok {
		return fmt.Errorf("collection %s: %w", name, store.ErrExists)
	}
	s.collections[name] = newCollection()
	return nil
}

func (s *Store) collection(name string) (*collection, error) {
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", name, store.ErrNotFound)
	}
	return c, nil
}

func (s *Store) Insert(ctx context.Context, name string, doc store.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d, err := store.Normalize(doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.collection(name)
	if err != nil {
		return err
	}
	return c.insert(d)
}

func (s *Store) Get(ctx context.Context, name, key string) (store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.collection(name)
	if err != nil {
		return nil, err
	}
	d, ok := c.docs[key]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", name, key, store.ErrNotFound)
	}
	return store.Normalize(d)
}

func (s *Store) Find(ctx context.Context, name string, filter store.Document) ([]store.Document, error) {
	all, err := s.All(ctx, name)
	if err != nil {
		return nil, err
	}
	var out []store.Document
	for _, d := range all {
		if store.Matches(d, filter) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Store) All(ctx context.Context, name string) ([]store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.collection(name)
	if err != nil {
		return nil, err
	}
	return copyDocs(c.list())
}

func (s *Store) Delete(ctx context.Context, name, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.collection(name)
	if err != nil {
		return err
	}
	if !c.remove(key) {
		return fmt.Errorf("%s/%s: %w", name, key, store.ErrNotFound)
	}
	return nil
}

func (s *Store) HasGraph(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.graphs[name]
	return ok, nil
}

func (s *Store) CreateGraph(ctx context.Context, name string, def store.GraphDefinition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.graphs[name]; ok {
		return fmt.Errorf("graph %s: %w", name, store.ErrExists)
	}
	s.graphs[name] = &graph{def: def, vertices: newCollection(), edges: newCollection()}
	return nil
}

func (s *Store) graph(name string) (*graph, error) {
	g, ok := s.graphs[name]
	if !ok {
		return nil, fmt.Errorf("graph %s: %w", name, store.ErrNotFound)
	}
	return g, nil
}

func (s *Store) InsertVertex(ctx context.Context, name string, doc store.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d, err := store.Normalize(doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.graph(name)
	if err != nil {
		return err
	}
	return g.vertices.insert(d)
}

func (s *Store) InsertEdge(ctx context.Context, name string, doc store.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d, err := store.Normalize(doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.graph(name)
	if err != nil {
		return err
	}
	for _, end := range []string{d.String("_from"), d.String("_to")} {
		if _, err := g.vertex(end); err != nil {
			return err
		}
	}
	return g.edges.insert(d)
}

func (g *graph) vertex(id string) (store.Document, error) {
	coll, key, err := store.SplitVertexID(id)
	if err != nil {
		return nil, err
	}
	if coll != g.def.VertexCollection {
		return nil, fmt.Errorf("vertex %s: %w", id, store.ErrNotFound)
	}
	d, ok := g.vertices.docs[key]
	if !ok {
		return nil, fmt.Errorf("vertex %s: %w", id, store.ErrNotFound)
	}
	return d, nil
}

func (s *Store) Traverse(ctx context.Context, name, start string) (*store.Traversal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, err := s.graph(name)
	if err != nil {
		return nil, err
	}
	vertex := func(_ context.Context, id string) (store.Document, error) {
		d, err := g.vertex(id)
		if err != nil {
			return nil, err
		}
		return store.Normalize(d)
	}
	outbound := func(_ context.Context, id string) ([]store.Document, error) {
		var out []store.Document
		for _, e := range g.edges.list() {
			if e.String("_from") == id {
				out = append(out, e)
			}
		}
		return copyDocs(out)
	}
	return store.Walk(ctx, start, vertex, outbound)
}

func (s *Store) DeleteGraph(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.graph(name); err != nil {
		return err
	}
	delete(s.graphs, name)
	return nil
}

// Begin buffers writes to one collection until Commit.
func (s *Store) Begin(ctx context.Context, name string) (store.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, err := s.collection(name); err != nil {
		return nil, err
	}
	return &tx{store: s, collection: name}, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// txOp is a buffered write; a nil doc deletes key.
type txOp struct {
	key string
	doc store.Document
}

type tx struct {
	store      *Store
	collection string
	pending    []txOp
	done       bool
}

func (t *tx) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.done {
		return fmt.Errorf("transaction already finished")
	}
	return nil
}

func (t *tx) Insert(ctx context.Context, doc store.Document) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	d, err := store.Normalize(doc)
	if err != nil {
		return err
	}
	t.pending = append(t.pending, txOp{key: d.Key(), doc: d})
	return nil
}

func (t *tx) Delete(ctx context.Context, key string) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	s := t.store
	s.mu.RLock()
	c, err := s.collection(t.collection)
	if err != nil {
		s.mu.RUnlock()
		return err
	}
	_, present := c.docs[key]
	s.mu.RUnlock()
	for _, op := range t.pending {
		if op.key == key {
			present = op.doc != nil
		}
	}
	if !present {
		return fmt.Errorf("%s/%s: %w", t.collection, key, store.ErrNotFound)
	}
	t.pending = append(t.pending, txOp{key: key})
	return nil
}

// Commit replays the buffered writes against the collection. Nothing is
// applied when any of them would fail.
func (t *tx) Commit() error {
	if t.done {
		return fmt.Errorf("transaction already finished")
	}
	t.done = true
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.collection(t.collection)
	if err != nil {
		return err
	}
	present := make(map[string]bool, len(t.pending))
	for _, op := range t.pending {
		was, seen := present[op.key]
		if !seen {
			_, was = c.docs[op.key]
		}
		switch {
		case op.doc == nil && !was:
			return fmt.Errorf("%s/%s: %w", t.collection, op.key, store.ErrNotFound)
		case op.doc != nil && was:
			return fmt.Errorf("key %s: %w", op.key, store.ErrExists)
		}
		present[op.key] = op.doc != nil
	}
	for _, op := range t.pending {
		if op.doc == nil {
			c.remove(op.key)
			continue
		}
		if err := c.insert(op.doc); err != nil {
			return err
		}
	}
	return nil
}

func (t *tx) Rollback() error {
	t.done = true
	t.pending = nil
	return nil
}

func copyDocs(in []store.Document) ([]store.Document, error) {
	out := make([]store.Document, 0, len(in))
	for _, d := range in {
		c, err := store.Normalize(d)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
