// Package store persists VitteLight modules in a local SQLite cache,
// keyed by their SHA-256 content hash. Payloads are the canonical CBOR
// chunks of the wire package, so a cache row round-trips through the same
// verification as a network exchange.
package store

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vittelang/vittelight/vm"
	"github.com/vittelang/vittelight/wire"
)

// ErrNotFound indicates the requested module is not cached.
var ErrNotFound = errors.New("module not found")

// Entry describes one cached module.
type Entry struct {
	Hash      string
	Size      int // chunk payload bytes
	ContextID string
	CreatedAt time.Time
}

// Store handles SQLite storage for modules.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// Open opens (creating if needed) the cache database at dbPath.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Busy timeout for concurrent access from multiple drivers.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS modules (
		hash       TEXT PRIMARY KEY,
		context_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		chunk      BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// OpenDefault opens the cache at VITTE_CACHE_DB or ~/.vitte/modules.db.
func OpenDefault() (*Store, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return Open(path)
}

// DefaultPath returns the default cache location.
func DefaultPath() (string, error) {
	if p := os.Getenv("VITTE_CACHE_DB"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home dir: %w", err)
	}
	return filepath.Join(home, ".vitte", "modules.db"), nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Put caches m and returns its hex content hash. contextID records which
// Context produced or loaded the module; it may be empty.
func (s *Store) Put(m *vm.Module, contextID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chunk := wire.FromModule(m)
	payload, err := wire.Marshal(chunk)
	if err != nil {
		return "", fmt.Errorf("encoding module: %w", err)
	}
	hash := hex.EncodeToString(chunk.Hash[:])

	if _, err := s.db.Exec(
		"INSERT OR REPLACE INTO modules (hash, context_id, chunk) VALUES (?, ?, ?)",
		hash, contextID, payload,
	); err != nil {
		return "", fmt.Errorf("saving module: %w", err)
	}
	return hash, nil
}

// Get loads the cached module with the given hex hash.
func (s *Store) Get(hash string) (*vm.Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var payload []byte
	err := s.db.QueryRow("SELECT chunk FROM modules WHERE hash = ?", hash).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying module: %w", err)
	}

	chunk, err := wire.Unmarshal(payload)
	if err != nil {
		return nil, err
	}
	return chunk.Module()
}

// Del removes the cached module with the given hex hash.
func (s *Store) Del(hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM modules WHERE hash = ?", hash)
	if err != nil {
		return fmt.Errorf("deleting module: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns entries for all cached modules, newest first.
func (s *Store) List() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		"SELECT hash, context_id, created_at, length(chunk) FROM modules ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("listing modules: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Hash, &e.ContextID, &e.CreatedAt, &e.Size); err != nil {
			return nil, fmt.Errorf("scanning module row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
