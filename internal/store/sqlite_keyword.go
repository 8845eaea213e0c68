package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// sqliteSchemaVersion is stored in PRAGMA user_version.
const sqliteSchemaVersion = 2

// Segments are stored once in a plain table. Their analyzed terms live in
// an FTS5 table whose rowid is the segment's seq, so the two are joined
// without a text key.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS segments (
	seq         INTEGER PRIMARY KEY,
	doc_id      TEXT NOT NULL UNIQUE,
	resource_id TEXT NOT NULL,
	text        TEXT NOT NULL,
	metadata    TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS segments_by_resource ON segments(resource_id);
CREATE VIRTUAL TABLE IF NOT EXISTS segment_terms USING fts5(terms, tokenize='unicode61');
`

// sqlitePragmas are applied per connection. modernc.org/sqlite ignores
// most DSN parameters.
var sqlitePragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA cache_size = -65536",
	"PRAGMA temp_store = MEMORY",
}

// SQLiteKeywordIndex is the default KeywordIndex, built on SQLite FTS5.
// WAL mode lets a CLI search while the watcher writes from another process.
type SQLiteKeywordIndex struct {
	mu        sync.RWMutex
	db        *sql.DB
	path      string
	closed    bool
	stopWords map[string]struct{}
}

var (
	_ KeywordIndex = (*SQLiteKeywordIndex)(nil)
	_ Saver        = (*SQLiteKeywordIndex)(nil)
)

// NewSQLiteKeywordIndex opens the index at path, or an in-memory one for an
// empty path. A file that fails the integrity check is deleted and the
// index starts empty; the caller is expected to reindex.
func NewSQLiteKeywordIndex(path string, config BM25Config) (*SQLiteKeywordIndex, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create keyword index directory: %w", err)
		}
		if err := discardIfCorrupt(path); err != nil {
			return nil, err
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open keyword index: %w", err)
	}
	// One connection: a single writer, and the in-memory database is per
	// connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, stmt := range append(sqlitePragmas, sqliteSchema,
		fmt.Sprintf("PRAGMA user_version = %d", sqliteSchemaVersion)) {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("prepare keyword index: %w", err)
		}
	}

	return &SQLiteKeywordIndex{
		db:        db,
		path:      path,
		stopWords: BuildStopWordMap(config.StopWords),
	}, nil
}

// checkSQLiteIndex opens path read-only and verifies integrity, schema
// version and the presence of the FTS table.
func checkSQLiteIndex(path string) error {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	var verdict string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&verdict); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if verdict != "ok" {
		return fmt.Errorf("integrity check: %s", verdict)
	}

	var version, tables int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != sqliteSchemaVersion {
		return fmt.Errorf("schema version %d, want %d", version, sqliteSchemaVersion)
	}
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'segment_terms'`).Scan(&tables)
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	if tables == 0 {
		return errors.New("fts table segment_terms missing")
	}
	return nil
}

func discardIfCorrupt(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	problem := checkSQLiteIndex(path)
	if problem == nil {
		return nil
	}

	slog.Warn("keyword_index_discarded",
		slog.String("path", path),
		slog.String("reason", problem.Error()))
	for _, f := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("keyword index at %s is unusable (%v) and cannot be removed: %w", path, problem, err)
		}
	}
	return nil
}

// write runs fn in a transaction under the write lock.
func (s *SQLiteKeywordIndex) write(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin keyword transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// IndexDocuments upserts segments. A known doc ID keeps its seq and gets
// its terms rewritten.
func (s *SQLiteKeywordIndex) IndexDocuments(ctx context.Context, segments []Segment) error {
	if len(segments) == 0 {
		s.mu.RLock()
		defer s.mu.RUnlock()
		if s.closed {
			return ErrClosed
		}
		return nil
	}

	return s.write(ctx, func(tx *sql.Tx) error {
		upsert, err := tx.PrepareContext(ctx, `
			INSERT INTO segments (doc_id, resource_id, text, metadata) VALUES (?, ?, ?, ?)
			ON CONFLICT (doc_id) DO UPDATE SET
				resource_id = excluded.resource_id,
				text = excluded.text,
				metadata = excluded.metadata
			RETURNING seq`)
		if err != nil {
			return err
		}
		defer func() { _ = upsert.Close() }()

		clearTerms, err := tx.PrepareContext(ctx, `DELETE FROM segment_terms WHERE rowid = ?`)
		if err != nil {
			return err
		}
		defer func() { _ = clearTerms.Close() }()

		addTerms, err := tx.PrepareContext(ctx, `INSERT INTO segment_terms (rowid, terms) VALUES (?, ?)`)
		if err != nil {
			return err
		}
		defer func() { _ = addTerms.Close() }()

		for _, seg := range segments {
			meta, err := json.Marshal(seg.Metadata)
			if err != nil {
				return fmt.Errorf("encode metadata of %s: %w", seg.ID, err)
			}
			var seq int64
			if err := upsert.QueryRowContext(ctx, seg.ID, seg.ResourceID, seg.Text, string(meta)).Scan(&seq); err != nil {
				return fmt.Errorf("store segment %s: %w", seg.ID, err)
			}
			if _, err := clearTerms.ExecContext(ctx, seq); err != nil {
				return fmt.Errorf("clear terms of %s: %w", seg.ID, err)
			}
			terms := strings.Join(analyze(seg.Text, s.stopWords), " ")
			if _, err := addTerms.ExecContext(ctx, seq, terms); err != nil {
				return fmt.Errorf("index terms of %s: %w", seg.ID, err)
			}
		}
		return nil
	})
}

// matchExpr ORs the analyzed query terms, each quoted so FTS5 operators in
// user input stay literal. It is empty when no term survives analysis.
func (s *SQLiteKeywordIndex) matchExpr(query string) string {
	terms := analyze(query, s.stopWords)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(terms, " OR ")
}

// Search returns up to limit segments, best BM25 first. FTS5 reports BM25
// as a negative number, so the sign is flipped for Hit.Score.
func (s *SQLiteKeywordIndex) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	match := s.matchExpr(query)
	if match == "" || limit <= 0 {
		return []Hit{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seg.doc_id, seg.resource_id, seg.text, seg.metadata, bm25(segment_terms)
		FROM segment_terms
		JOIN segments seg ON seg.seq = segment_terms.rowid
		WHERE segment_terms MATCH ?
		ORDER BY bm25(segment_terms)
		LIMIT ?`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	hits := []Hit{}
	for rows.Next() {
		var (
			h    Hit
			meta string
		)
		if err := rows.Scan(&h.Segment.ID, &h.Segment.ResourceID, &h.Segment.Text, &meta, &h.Score); err != nil {
			return nil, fmt.Errorf("read keyword hit: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &h.Segment.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", h.Segment.ID, err)
		}
		h.Score = -h.Score
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// RemoveByResource deletes every segment of resourceID.
func (s *SQLiteKeywordIndex) RemoveByResource(ctx context.Context, resourceID string) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM segment_terms WHERE rowid IN (SELECT seq FROM segments WHERE resource_id = ?)`,
			resourceID); err != nil {
			return fmt.Errorf("remove terms of %s: %w", resourceID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM segments WHERE resource_id = ?`, resourceID); err != nil {
			return fmt.Errorf("remove segments of %s: %w", resourceID, err)
		}
		return nil
	})
}

// Delete removes segments by doc ID. Unknown IDs are ignored.
func (s *SQLiteKeywordIndex) Delete(ctx context.Context, docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}
	return s.write(ctx, func(tx *sql.Tx) error {
		del, err := tx.PrepareContext(ctx, `DELETE FROM segments WHERE doc_id = ? RETURNING seq`)
		if err != nil {
			return err
		}
		defer func() { _ = del.Close() }()

		for _, id := range docIDs {
			var seq int64
			switch err := del.QueryRowContext(ctx, id).Scan(&seq); {
			case errors.Is(err, sql.ErrNoRows):
				continue
			case err != nil:
				return fmt.Errorf("delete segment %s: %w", id, err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM segment_terms WHERE rowid = ?`, seq); err != nil {
				return fmt.Errorf("delete terms of %s: %w", id, err)
			}
		}
		return nil
	})
}

// AllIDs returns every doc ID in sorted order.
func (s *SQLiteKeywordIndex) AllIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, `SELECT doc_id FROM segments ORDER BY doc_id`)
	if err != nil {
		return nil, fmt.Errorf("list keyword ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteKeywordIndex) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM segments`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count keyword documents: %w", err)
	}
	return n, nil
}

// Save folds the WAL back into the database file.
func (s *SQLiteKeywordIndex) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	_, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// Close checkpoints and closes the database. Later calls return nil.
func (s *SQLiteKeywordIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}
