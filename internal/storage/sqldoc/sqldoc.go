// Package sqldoc implements store.Store on top of database/sql. Documents,
// graph vertices and edges are JSON bodies in four tables; the SQL dialect
// only changes DDL and placeholders. The same database also keeps the
// domain event log.
package sqldoc

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AaronLay10/storygraph/internal/store"
)

// Dialect adapts queries to one SQL engine.
type Dialect struct {
	Name   string
	Schema []string
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
}

// Dollar renders $1, $2, ...
func Dollar(n int) string { return "$" + strconv.Itoa(n) }

// Question renders ? for every parameter.
func Question(int) string { return "?" }

// DB is a store.Store backed by a SQL database.
type DB struct {
	db      *sql.DB
	dialect Dialect
}

var _ store.Store = (*DB)(nil)

// New applies the dialect schema and returns the store. Close closes db.
func New(ctx context.Context, db *sql.DB, d Dialect) (*DB, error) {
	if db == nil {
		return nil, errors.New("sqldoc: nil database")
	}
	s := &DB{db: db, dialect: d}
	for _, stmt := range d.Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to apply %s schema: %w", d.Name, err)
		}
	}
	return s, nil
}

// SQL exposes the underlying handle.
func (s *DB) SQL() *sql.DB { return s.db }

// Close closes the database. Safe on a nil store.
func (s *DB) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// bind rewrites ? placeholders for the dialect.
func (s *DB) bind(query string) string {
	if s.dialect.Placeholder == nil {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(s.dialect.Placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *DB) exists(ctx context.Context, q querier, query string, args ...any) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, s.bind(query), args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *DB) HasCollection(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ok, err := s.exists(ctx, s.db, `SELECT 1 FROM collections WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("failed to look up collection %s: %w", name, err)
	}
	return ok, nil
}

func (s *DB) CreateCollection(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, s.bind(`INSERT INTO collections (name) VALUES (?) ON CONFLICT DO NOTHING`), name)
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("collection %s: %w", name, store.ErrExists)
	}
	return nil
}

func (s *DB) requireCollection(ctx context.Context, q querier, name string) error {
	ok, err := s.exists(ctx, q, `SELECT 1 FROM collections WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to look up collection %s: %w", name, err)
	}
	if !ok {
		return fmt.Errorf("collection %s: %w", name, store.ErrNotFound)
	}
	return nil
}

func (s *DB) insertDocument(ctx context.Context, q querier, collection string, doc store.Document) error {
	key := doc.Key()
	if key == "" {
		return fmt.Errorf("document without _key")
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	res, err := q.ExecContext(ctx,
		s.bind(`INSERT INTO documents (collection, doc_key, body) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`),
		collection, key, string(body))
	if err != nil {
		return fmt.Errorf("failed to insert %s/%s: %w", collection, key, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("key %s: %w", key, store.ErrExists)
	}
	return nil
}

func (s *DB) Insert(ctx context.Context, collection string, doc store.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.requireCollection(ctx, s.db, collection); err != nil {
		return err
	}
	return s.insertDocument(ctx, s.db, collection, doc)
}

func scanBody(row interface{ Scan(...any) error }) (store.Document, error) {
	var body []byte
	if err := row.Scan(&body); err != nil {
		return nil, err
	}
	return store.Unmarshal(body)
}

func (s *DB) Get(ctx context.Context, collection, key string) (store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.requireCollection(ctx, s.db, collection); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, s.bind(`SELECT body FROM documents WHERE collection = ? AND doc_key = ?`), collection, key)
	d, err := scanBody(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", collection, key, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", collection, key, err)
	}
	return d, nil
}

func (s *DB) list(ctx context.Context, query string, args ...any) ([]store.Document, error) {
	rows, err := s.db.QueryContext(ctx, s.bind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.Document
	for rows.Next() {
		d, err := scanBody(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *DB) All(ctx context.Context, collection string) ([]store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.requireCollection(ctx, s.db, collection); err != nil {
		return nil, err
	}
	docs, err := s.list(ctx, `SELECT body FROM documents WHERE collection = ? ORDER BY id`, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	return docs, nil
}

func (s *DB) Find(ctx context.Context, collection string, filter store.Document) ([]store.Document, error) {
	all, err := s.All(ctx, collection)
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

func (s *DB) Delete(ctx context.Context, collection, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.deleteDocument(ctx, s.db, collection, key)
}

func (s *DB) deleteDocument(ctx context.Context, q querier, collection, key string) error {
	res, err := q.ExecContext(ctx, s.bind(`DELETE FROM documents WHERE collection = ? AND doc_key = ?`), collection, key)
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", collection, key, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s/%s: %w", collection, key, store.ErrNotFound)
	}
	return nil
}

func (s *DB) HasGraph(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ok, err := s.exists(ctx, s.db, `SELECT 1 FROM graphs WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("failed to look up graph %s: %w", name, err)
	}
	return ok, nil
}

func (s *DB) CreateGraph(ctx context.Context, name string, def store.GraphDefinition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		s.bind(`INSERT INTO graphs (name, vertex_collection, edge_collection) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`),
		name, def.VertexCollection, def.EdgeCollection)
	if err != nil {
		return fmt.Errorf("failed to create graph %s: %w", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("graph %s: %w", name, store.ErrExists)
	}
	return nil
}

func (s *DB) definition(ctx context.Context, name string) (store.GraphDefinition, error) {
	var def store.GraphDefinition
	err := s.db.QueryRowContext(ctx, s.bind(`SELECT vertex_collection, edge_collection FROM graphs WHERE name = ?`), name).
		Scan(&def.VertexCollection, &def.EdgeCollection)
	if errors.Is(err, sql.ErrNoRows) {
		return def, fmt.Errorf("graph %s: %w", name, store.ErrNotFound)
	}
	if err != nil {
		return def, fmt.Errorf("failed to look up graph %s: %w", name, err)
	}
	return def, nil
}

func (s *DB) InsertVertex(ctx context.Context, graph string, doc store.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.definition(ctx, graph); err != nil {
		return err
	}
	key := doc.Key()
	if key == "" {
		return fmt.Errorf("vertex without _key")
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal vertex: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		s.bind(`INSERT INTO vertices (graph, doc_key, body) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`),
		graph, key, string(body))
	if err != nil {
		return fmt.Errorf("failed to insert vertex %s: %w", key, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("vertex %s: %w", key, store.ErrExists)
	}
	return nil
}

func (s *DB) vertex(ctx context.Context, graph string, def store.GraphDefinition, id string) (store.Document, error) {
	coll, key, err := store.SplitVertexID(id)
	if err != nil {
		return nil, err
	}
	if coll != def.VertexCollection {
		return nil, fmt.Errorf("vertex %s: %w", id, store.ErrNotFound)
	}
	row := s.db.QueryRowContext(ctx, s.bind(`SELECT body FROM vertices WHERE graph = ? AND doc_key = ?`), graph, key)
	d, err := scanBody(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("vertex %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load vertex %s: %w", id, err)
	}
	return d, nil
}

func (s *DB) InsertEdge(ctx context.Context, graph string, doc store.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	def, err := s.definition(ctx, graph)
	if err != nil {
		return err
	}
	from, to := doc.String("_from"), doc.String("_to")
	for _, end := range []string{from, to} {
		if _, err := s.vertex(ctx, graph, def, end); err != nil {
			return err
		}
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal edge: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		s.bind(`INSERT INTO edges (graph, doc_key, from_id, to_id, body) VALUES (?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`),
		graph, doc.Key(), from, to, string(body))
	if err != nil {
		return fmt.Errorf("failed to insert edge %s: %w", doc.Key(), err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("edge %s: %w", doc.Key(), store.ErrExists)
	}
	return nil
}

func (s *DB) Traverse(ctx context.Context, graph, start string) (*store.Traversal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	def, err := s.definition(ctx, graph)
	if err != nil {
		return nil, err
	}
	vertex := func(ctx context.Context, id string) (store.Document, error) {
		return s.vertex(ctx, graph, def, id)
	}
	outbound := func(ctx context.Context, id string) ([]store.Document, error) {
		docs, err := s.list(ctx, `SELECT body FROM edges WHERE graph = ? AND from_id = ? ORDER BY id`, graph, id)
		if err != nil {
			return nil, fmt.Errorf("failed to list edges of %s: %w", id, err)
		}
		return docs, nil
	}
	return store.Walk(ctx, start, vertex, outbound)
}

func (s *DB) DeleteGraph(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.definition(ctx, name); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	for _, q := range []string{
		`DELETE FROM edges WHERE graph = ?`,
		`DELETE FROM vertices WHERE graph = ?`,
		`DELETE FROM graphs WHERE name = ?`,
	} {
		if _, err := tx.ExecContext(ctx, s.bind(q), name); err != nil {
			return fmt.Errorf("failed to delete graph %s: %w", name, err)
		}
	}
	return tx.Commit()
}

// Begin opens a database transaction scoped to one collection.
func (s *DB) Begin(ctx context.Context, collection string) (store.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.requireCollection(ctx, s.db, collection); err != nil {
		return nil, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &docTx{db: s, tx: tx, collection: collection}, nil
}

type docTx struct {
	db         *DB
	tx         *sql.Tx
	collection string
}

func (t *docTx) Insert(ctx context.Context, doc store.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.db.insertDocument(ctx, t.tx, t.collection, doc)
}

func (t *docTx) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.db.deleteDocument(ctx, t.tx, t.collection, key)
}

func (t *docTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Rollback is a no-op after Commit.
func (t *docTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// EventRow is one persisted domain event.
type EventRow struct {
	EventID   int64                  `json:"event_id"`
	Timestamp time.Time              `json:"ts"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	Message   *string                `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Append inserts an event. It implements events.Sink.
func (s *DB) Append(ts time.Time, level, event, msg string, fields map[string]interface{}) error {
	var fieldsJSON *string
	if fields != nil {
		b, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields: %w", err)
		}
		f := string(b)
		fieldsJSON = &f
	}
	var msgPtr *string
	if msg != "" {
		msgPtr = &msg
	}
	_, err := s.db.Exec(s.bind(`INSERT INTO events (ts, level, event, msg, fields) VALUES (?, ?, ?, ?, ?)`),
		ts.UTC().Format(time.RFC3339Nano), level, event, msgPtr, fieldsJSON)
	return err
}

// Events returns the last limit events, newest first.
func (s *DB) Events(ctx context.Context, limit int) ([]EventRow, error) {
	if limit <= 0 {
		limit = 200
	}
	if limit > 10000 {
		limit = 10000
	}
	rows, err := s.db.QueryContext(ctx,
		s.bind(`SELECT event_id, ts, level, event, msg, fields FROM events ORDER BY event_id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var e EventRow
		var ts string
		var msg, fields sql.NullString
		if err := rows.Scan(&e.EventID, &ts, &e.Level, &e.Event, &msg, &fields); err != nil {
			return nil, err
		}
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("failed to parse event time: %w", err)
		}
		if msg.Valid {
			e.Message = &msg.String
		}
		if fields.Valid && fields.String != "" {
			if err := json.Unmarshal([]byte(fields.String), &e.Fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
