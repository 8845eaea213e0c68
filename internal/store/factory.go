package store

import (
	"context"
	"fmt"
	"path/filepath"
)

// Keyword index backends.
const (
	// KeywordBackendSQLite uses SQLite FTS5 (default). WAL mode allows
	// concurrent readers from other processes.
	KeywordBackendSQLite = "sqlite"
	// KeywordBackendBleve uses Bleve v2. Single process only.
	KeywordBackendBleve = "bleve"
)

// Vector store backends.
const (
	VectorBackendHNSW   = "hnsw"
	VectorBackendQdrant = "qdrant"
)

// NewKeywordIndex opens the keyword index for backend under dataDir. An
// empty dataDir creates an in-memory index.
func NewKeywordIndex(backend, dataDir string, config BM25Config) (KeywordIndex, error) {
	path := ""
	if dataDir != "" {
		path = KeywordIndexPath(dataDir, backend)
	}
	switch backend {
	case KeywordBackendSQLite, "":
		return NewSQLiteKeywordIndex(path, config)
	case KeywordBackendBleve:
		return NewBleveKeywordIndex(path, config)
	default:
		return nil, fmt.Errorf("unknown keyword backend: %s (valid options: sqlite, bleve)", backend)
	}
}

// KeywordIndexPath returns the on-disk location of a keyword index.
func KeywordIndexPath(dataDir, backend string) string {
	base := filepath.Join(dataDir, "keyword")
	if backend == KeywordBackendBleve {
		return base + ".bleve"
	}
	return base + ".db"
}

// VectorOptions selects and configures a vector store.
type VectorOptions struct {
	Backend    string
	DataDir    string
	Dimensions int

	QdrantAddr       string
	QdrantCollection string

	// ReadOnly loads an HNSW store without writing it back on Close.
	ReadOnly bool
}

// NewVectorStore opens the vector store described by opts. An HNSW store
// with an empty DataDir is in-memory.
func NewVectorStore(ctx context.Context, opts VectorOptions) (VectorStore, error) {
	switch opts.Backend {
	case VectorBackendHNSW, "":
		cfg := DefaultVectorStoreConfig(opts.Dimensions)
		if opts.DataDir == "" {
			return NewHNSWStore(cfg)
		}
		s, err := OpenHNSWStore(VectorStorePath(opts.DataDir), cfg)
		if err != nil {
			return nil, err
		}
		if opts.ReadOnly {
			s.path = ""
		}
		return s, nil
	case VectorBackendQdrant:
		return NewQdrantStore(ctx, opts.QdrantAddr, opts.QdrantCollection, opts.Dimensions)
	default:
		return nil, fmt.Errorf("unknown vector backend: %s (valid options: hnsw, qdrant)", opts.Backend)
	}
}

// VectorStorePath returns the on-disk location of the HNSW store.
func VectorStorePath(dataDir string) string {
	return filepath.Join(dataDir, "vectors.hnsw")
}
