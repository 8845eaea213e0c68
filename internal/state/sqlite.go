package state

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3" // "sqlite3" driver (CGO)
	_ "modernc.org/sqlite"          // "sqlite" driver (pure Go)
)

// Driver names accepted by Open.
const (
	DriverPureGo = "sqlite"
	DriverCGO    = "sqlite3"
)

// SQLiteStore implements Store on SQLite.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var _ Store = (*SQLiteStore)(nil)

// Open opens or creates the state database at path. An empty path opens an
// in-memory database. driver is DriverPureGo (default) or DriverCGO.
func Open(path, driver string) (*SQLiteStore, error) {
	if driver == "" {
		driver = DriverPureGo
	}
	if driver != DriverPureGo && driver != DriverCGO {
		return nil, fmt.Errorf("unknown sqlite driver %q", driver)
	}

	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
		dsn = path
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	// One connection keeps an in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{db: db, path: path}
	if err := s.prepare(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

var statePragmas = [...]string{
	"journal_mode = WAL",
	"busy_timeout = 5000",
	"synchronous = NORMAL",
	"foreign_keys = ON",
}

const stateSchema = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

CREATE TABLE IF NOT EXISTS resource_state (
	project_id   TEXT NOT NULL,
	source_type  TEXT NOT NULL,
	resource_id  TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	updated_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (project_id, source_type, resource_id)
);

CREATE TABLE IF NOT EXISTS segment_mappings (
	project_id  TEXT NOT NULL,
	resource_id TEXT NOT NULL,
	segment_id  TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	PRIMARY KEY (project_id, resource_id, segment_id)
);
CREATE INDEX IF NOT EXISTS idx_segment_mappings_segment
	ON segment_mappings(project_id, segment_id);

INSERT OR IGNORE INTO schema_version (version) VALUES (1);
`

// prepare applies connection pragmas and creates the tables.
func (s *SQLiteStore) prepare() error {
	for _, p := range statePragmas {
		if _, err := s.db.Exec("PRAGMA " + p); err != nil {
			return fmt.Errorf("set pragma %s: %w", p, err)
		}
	}
	if _, err := s.db.Exec(stateSchema); err != nil {
		return fmt.Errorf("create state schema: %w", err)
	}
	return nil
}

// Path returns the database path, or "" for in-memory stores.
func (s *SQLiteStore) Path() string {
	return s.path
}

// LoadState returns the stored hashes for one source type.
func (s *SQLiteStore) LoadState(ctx context.Context, projectID string, st SourceType) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("state store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT resource_id, content_hash
		FROM resource_state
		WHERE project_id = ? AND source_type = ?
	`, projectID, string(st))
	if err != nil {
		return nil, fmt.Errorf("query state: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]string)
	for rows.Next() {
		var id, hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		hashes[id] = hash
	}
	return hashes, rows.Err()
}

// SaveState replaces the stored hashes for one source type in a single
// transaction.
func (s *SQLiteStore) SaveState(ctx context.Context, projectID string, st SourceType, hashes map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("state store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM resource_state WHERE project_id = ? AND source_type = ?`,
		projectID, string(st)); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO resource_state (project_id, source_type, resource_id, content_hash)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for id, hash := range hashes {
		if _, err := stmt.ExecContext(ctx, projectID, string(st), id, hash); err != nil {
			return fmt.Errorf("insert state for %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// PutHash upserts one resource hash.
func (s *SQLiteStore) PutHash(ctx context.Context, projectID string, st SourceType, resourceID, hash string) error {
	return s.exec(ctx, `
		INSERT INTO resource_state (project_id, source_type, resource_id, content_hash, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(project_id, source_type, resource_id) DO UPDATE SET
			content_hash = excluded.content_hash,
			updated_at = CURRENT_TIMESTAMP
	`, projectID, string(st), resourceID, hash)
}

// DeleteHash removes one resource hash.
func (s *SQLiteStore) DeleteHash(ctx context.Context, projectID string, st SourceType, resourceID string) error {
	return s.exec(ctx,
		`DELETE FROM resource_state WHERE project_id = ? AND source_type = ? AND resource_id = ?`,
		projectID, string(st), resourceID)
}

// Clear removes every state row and mapping for a project.
func (s *SQLiteStore) Clear(ctx context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("state store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM resource_state WHERE project_id = ?`, projectID); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM segment_mappings WHERE project_id = ?`, projectID); err != nil {
		return fmt.Errorf("clear mappings: %w", err)
	}
	return tx.Commit()
}

// AddMappings records segment mappings. Re-adding an existing mapping
// updates its chunk index.
func (s *SQLiteStore) AddMappings(ctx context.Context, mappings []Mapping) error {
	if len(mappings) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("state store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO segment_mappings (project_id, resource_id, segment_id, chunk_index)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(project_id, resource_id, segment_id) DO UPDATE SET
			chunk_index = excluded.chunk_index
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, m := range mappings {
		if _, err := stmt.ExecContext(ctx, m.ProjectID, m.ResourceID, m.SegmentID, m.ChunkIndex); err != nil {
			return fmt.Errorf("insert mapping %s: %w", m.SegmentID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// MappingsFor returns a resource's mappings ordered by chunk index.
func (s *SQLiteStore) MappingsFor(ctx context.Context, projectID, resourceID string) ([]Mapping, error) {
	return s.queryMappings(ctx, `
		SELECT project_id, resource_id, segment_id, chunk_index
		FROM segment_mappings
		WHERE project_id = ? AND resource_id = ?
		ORDER BY chunk_index
	`, projectID, resourceID)
}

// AllMappings returns every mapping of a project.
func (s *SQLiteStore) AllMappings(ctx context.Context, projectID string) ([]Mapping, error) {
	return s.queryMappings(ctx, `
		SELECT project_id, resource_id, segment_id, chunk_index
		FROM segment_mappings
		WHERE project_id = ?
		ORDER BY resource_id, chunk_index
	`, projectID)
}

// DeleteMappings removes all mappings of a resource.
func (s *SQLiteStore) DeleteMappings(ctx context.Context, projectID, resourceID string) error {
	return s.exec(ctx,
		`DELETE FROM segment_mappings WHERE project_id = ? AND resource_id = ?`,
		projectID, resourceID)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *SQLiteStore) exec(ctx context.Context, query string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("state store is closed")
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}

func (s *SQLiteStore) queryMappings(ctx context.Context, query string, args ...any) ([]Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("state store is closed")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query mappings: %w", err)
	}
	defer rows.Close()

	var out []Mapping
	for rows.Next() {
		var m Mapping
		if err := rows.Scan(&m.ProjectID, &m.ResourceID, &m.SegmentID, &m.ChunkIndex); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
