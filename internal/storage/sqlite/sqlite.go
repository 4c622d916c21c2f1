package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/AaronLay10/storygraph/internal/storage/sqldoc"
)

// Dialect is the SQLite flavour of the document store.
var Dialect = sqldoc.Dialect{
	Name:        "sqlite",
	Placeholder: sqldoc.Question,
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS collections (
			name TEXT PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS documents (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			collection TEXT NOT NULL,
			doc_key    TEXT NOT NULL,
			body       TEXT NOT NULL,
			UNIQUE (collection, doc_key)
		)`,
		`CREATE TABLE IF NOT EXISTS graphs (
			name              TEXT PRIMARY KEY,
			vertex_collection TEXT NOT NULL,
			edge_collection   TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS vertices (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			graph   TEXT NOT NULL,
			doc_key TEXT NOT NULL,
			body    TEXT NOT NULL,
			UNIQUE (graph, doc_key)
		)`,
		`CREATE TABLE IF NOT EXISTS edges (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			graph   TEXT NOT NULL,
			doc_key TEXT NOT NULL,
			from_id TEXT NOT NULL,
			to_id   TEXT NOT NULL,
			body    TEXT NOT NULL,
			UNIQUE (graph, doc_key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_from ON edges(graph, from_id)`,
		`CREATE TABLE IF NOT EXISTS events (
			event_id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts       TEXT NOT NULL,
			level    TEXT NOT NULL,
			event    TEXT NOT NULL,
			msg      TEXT,
			fields   TEXT
		)`,
	},
}

// Open opens (creating if needed) the SQLite database at path and applies
// the schema.
func Open(ctx context.Context, path string) (*sqldoc.DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	db, err := sql.Open("sqlite", filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}
	s, err := sqldoc.New(ctx, db, Dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}
