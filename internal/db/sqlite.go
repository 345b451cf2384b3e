// Package db is the SQLite-backed persistence layer: the graph store
// (messages + anchors + indexer cursor) and the three kind-specific state
// stores (domains, tokens, markets), all behind a single database/sql
// handle. Grounded on the reference node's storage package: one
// mattn/go-sqlite3 connection opened in WAL mode, capped to a single
// writer, schema applied once at startup.
package db

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Store is the concrete backing for graph.Store, graph.CursorStore,
// domain.Store, token.Store and market.Store.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Connect opens (or creates) the anchor-engine's SQLite database under
// dataDir and applies its schema.
func Connect(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("db: create data dir: %w", err)
	}
	dbPath := filepath.Join(dataDir, "anchor.db")

	sqlDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("db: open database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("db: ping: %w", err)
	}

	// SQLite only supports one writer at a time.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	s := &Store{db: sqlDB, dbPath: dbPath}
	if err := s.InitSchema(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// InitSchema executes the embedded schema against the database. Every
// statement is CREATE TABLE/INDEX IF NOT EXISTS or INSERT OR IGNORE, so
// running it against an already-initialized database is a no-op.
func (s *Store) InitSchema() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("db: init schema: %w", err)
	}
	return nil
}

// DB exposes the underlying handle for callers that need raw access.
func (s *Store) DB() *sql.DB {
	return s.db
}
