// Package store defines the document and graph store the repository writes
// games, dialogs, tasks, players and instances to.
//
// A store holds named document collections and named graphs. Each graph
// has one vertex collection and one edge collection; vertices are addressed
// as "<collection>/<_key>" and edges carry "_from" and "_to" in that form.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned for missing collections, documents and graphs.
	ErrNotFound = errors.New("not found")
	// ErrExists is returned when a key, collection or graph already exists.
	ErrExists = errors.New("already exists")
)

// Document is a JSON object. Every stored document carries a "_key".
type Document map[string]any

// Key returns the document key.
func (d Document) Key() string {
	k, _ := d["_key"].(string)
	return k
}

// String returns the string field name or "".
func (d Document) String(name string) string {
	s, _ := d[name].(string)
	return s
}

// GraphDefinition names the collections of a graph.
type GraphDefinition struct {
	VertexCollection string
	EdgeCollection   string
}

// Path is the chain of edges from the traversal start to one vertex. The
// first path of a traversal holds only the start vertex and no edges.
type Path struct {
	Vertices []Document
	Edges    []Document
}

// Traversal is the result of an outbound depth-first walk in which every
// vertex and every edge is visited once.
type Traversal struct {
	Vertices []Document
	Paths    []Path
}

// Tx is a single-collection write transaction. Delete of a key that is
// neither stored nor inserted earlier in the transaction returns ErrNotFound.
type Tx interface {
	Insert(ctx context.Context, doc Document) error
	Delete(ctx context.Context, key string) error
	Commit() error
	Rollback() error
}

// Store is the persistence contract consumed by the repository.
type Store interface {
	HasCollection(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, name string) error
	Insert(ctx context.Context, collection string, doc Document) error
	Get(ctx context.Context, collection, key string) (Document, error)
	// Find returns the documents whose top-level fields equal every field
	// of filter, in insertion order.
	Find(ctx context.Context, collection string, filter Document) ([]Document, error)
	All(ctx context.Context, collection string) ([]Document, error)
	Delete(ctx context.Context, collection, key string) error

	HasGraph(ctx context.Context, name string) (bool, error)
	CreateGraph(ctx context.Context, name string, def GraphDefinition) error
	InsertVertex(ctx context.Context, graph string, doc Document) error
	InsertEdge(ctx context.Context, graph string, doc Document) error
	// Traverse walks the graph outbound from start ("<collection>/<key>").
	Traverse(ctx context.Context, graph, start string) (*Traversal, error)
	// DeleteGraph drops the graph with its vertices and edges.
	DeleteGraph(ctx context.Context, name string) error

	Begin(ctx context.Context, collection string) (Tx, error)
	Close() error
}

// EnsureCollection creates the collection when it does not exist yet.
func EnsureCollection(ctx context.Context, s Store, name string) error {
	ok, err := s.HasCollection(ctx, name)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if err := s.CreateCollection(ctx, name); err != nil && !errors.Is(err, ErrExists) {
		return err
	}
	return nil
}

// VertexID joins a collection and key into a vertex handle.
func VertexID(collection, key string) string {
	return collection + "/" + key
}

// SplitVertexID splits a vertex handle into collection and key.
func SplitVertexID(id string) (collection, key string, err error) {
	collection, key, ok := strings.Cut(id, "/")
	if !ok || collection == "" || key == "" {
		return "", "", fmt.Errorf("malformed vertex id %q", id)
	}
	return collection, key, nil
}

// Normalize round-trips v through JSON so stored documents never alias
// caller memory and numbers compare consistently (json.Number).
func Normalize(v any) (Document, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	return Unmarshal(b)
}

// Unmarshal decodes a JSON object into a Document keeping numbers as
// json.Number.
func Unmarshal(b []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var d Document
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return d, nil
}

// Matches reports whether doc carries every field of filter with an equal
// JSON value.
func Matches(doc, filter Document) bool {
	for k, want := range filter {
		got, ok := doc[k]
		if !ok {
			return false
		}
		wb, err := json.Marshal(want)
		if err != nil {
			return false
		}
		gb, err := json.Marshal(got)
		if err != nil {
			return false
		}
		if !bytes.Equal(wb, gb) {
			return false
		}
	}
	return true
}
