// Package store is the SQLite-backed persistence provider: conversations,
// descriptors, annotations, invitations and operations, plus the
// migration path from legacy on-disk schema versions.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// Store wraps a SQLite database holding one device's conversation state.
// Mirrors the teacher's single-DB-handle-plus-RWMutex shape: writers take
// the full lock, readers the read lock, and every exported method routes
// through exec/query/queryRow/withTx below rather than touching db directly.
type Store struct {
	db    *sql.DB
	path  string
	mu    sync.RWMutex
	cache *DescriptorCache
}

// Open opens or creates the database at dbPath (directories created as
// needed), applies WAL/foreign-key pragmas, and runs any pending schema
// migration.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("store: create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	if _, err := db.Exec(`
		PRAGMA foreign_keys = ON;
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: configure database: %w", err)
	}

	s := &Store{db: db, path: dbPath, cache: NewDescriptorCache(DefaultCacheCapacity)}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) exec(query string, args ...any) (sql.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Exec(query, args...)
}

func (s *Store) query(query string, args ...any) (*sql.Rows, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.Query(query, args...)
}

func (s *Store) queryRow(query string, args ...any) *sql.Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.QueryRow(query, args...)
}

// withTx runs fn inside a single write transaction, committing on success
// and rolling back on any error fn returns. All multi-statement mutating
// contracts (createDescriptor, deleteDescriptors, ...) go through this so
// the "single-writer transaction" concurrency rule holds in one place.
func (s *Store) withTx(fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
