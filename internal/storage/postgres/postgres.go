package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/AaronLay10/storygraph/internal/storage/sqldoc"
)

// Config is the connection configuration, read from the PG* variables.
type Config struct {
	Host     string `env:"PGHOST" envDefault:"127.0.0.1"`
	Port     string `env:"PGPORT" envDefault:"5432"`
	User     string `env:"PGUSER" envDefault:"storygraph"`
	Database string `env:"PGDATABASE" envDefault:"storygraph"`
	Password string `env:"PGPASSWORD"`
	SSLMode  string `env:"PGSSLMODE" envDefault:"disable"`
}

// DSN renders the lib/pq connection string.
func (c Config) DSN() string {
	if c.Password != "" {
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
	}
	return fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Database, c.SSLMode)
}

// Dialect is the Postgres flavour of the document store.
var Dialect = sqldoc.Dialect{
	Name:        "postgres",
	Placeholder: sqldoc.Dollar,
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS collections (
			name TEXT PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS documents (
			id         BIGSERIAL PRIMARY KEY,
			collection TEXT NOT NULL,
			doc_key    TEXT NOT NULL,
			body       JSONB NOT NULL,
			UNIQUE (collection, doc_key)
		)`,
		`CREATE TABLE IF NOT EXISTS graphs (
			name              TEXT PRIMARY KEY,
			vertex_collection TEXT NOT NULL,
			edge_collection   TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS vertices (
			id      BIGSERIAL PRIMARY KEY,
			graph   TEXT NOT NULL,
			doc_key TEXT NOT NULL,
			body    JSONB NOT NULL,
			UNIQUE (graph, doc_key)
		)`,
		`CREATE TABLE IF NOT EXISTS edges (
			id      BIGSERIAL PRIMARY KEY,
			graph   TEXT NOT NULL,
			doc_key TEXT NOT NULL,
			from_id TEXT NOT NULL,
			to_id   TEXT NOT NULL,
			body    JSONB NOT NULL,
			UNIQUE (graph, doc_key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_from ON edges(graph, from_id)`,
		`CREATE TABLE IF NOT EXISTS events (
			event_id BIGSERIAL PRIMARY KEY,
			ts       TEXT NOT NULL,
			level    TEXT NOT NULL,
			event    TEXT NOT NULL,
			msg      TEXT,
			fields   JSONB
		)`,
	},
}

// Open connects to Postgres, pings it and applies the schema.
func Open(ctx context.Context, cfg Config) (*sqldoc.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	s, err := sqldoc.New(ctx, db, Dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}
