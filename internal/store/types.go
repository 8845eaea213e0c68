package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// Segment metadata keys.
const (
	MetaFilePath    = "file_path"
	MetaURL         = "url"
	MetaFileName    = "file_name"
	MetaChunkIndex  = "chunk_index"
	MetaTotalChunks = "total_chunks"
	MetaStartLine   = "start_line"
	MetaEndLine     = "end_line"
	MetaSourceType  = "source_type"
)

// Segment is a chunk of extracted text and its metadata. It is the unit
// written to both the vector store and the keyword index.
type Segment struct {
	ID         string
	ResourceID string
	Text       string
	Metadata   map[string]string
}

// ChunkIndex returns the chunk_index metadata value, or -1.
func (s Segment) ChunkIndex() int {
	return s.intMeta(MetaChunkIndex)
}

// Lines returns the start and end line, or 0, 0 if the segment has none.
func (s Segment) Lines() (start, end int) {
	start, end = s.intMeta(MetaStartLine), s.intMeta(MetaEndLine)
	if start < 0 || end < 0 {
		return 0, 0
	}
	return start, end
}

func (s Segment) intMeta(key string) int {
	v, ok := s.Metadata[key]
	if !ok {
		return -1
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}

// Hit is a search result.
type Hit struct {
	Segment Segment
	// Score is higher for better matches. Vector scores are similarities in
	// [0, 1]; keyword scores are BM25 and unbounded.
	Score float64
}

// VectorStore stores embeddings with their segments.
type VectorStore interface {
	// AddAll stores vectors[i] under segments[i].ID and returns the IDs.
	// Existing IDs are replaced.
	AddAll(ctx context.Context, vectors [][]float32, segments []Segment) ([]string, error)
	// RemoveAll deletes IDs. Unknown IDs are ignored.
	RemoveAll(ctx context.Context, ids []string) error
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)
	AllIDs(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// KeywordIndex is a BM25-ranked inverted index over segment text.
type KeywordIndex interface {
	IndexDocuments(ctx context.Context, segments []Segment) error
	// RemoveByResource deletes every document of a resource. Removing an
	// unknown resource is not an error.
	RemoveByResource(ctx context.Context, resourceID string) error
	Search(ctx context.Context, query string, k int) ([]Hit, error)
	AllIDs(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Saver is implemented by stores that buffer state in memory and must be
// saved explicitly.
type Saver interface {
	Save() error
}

// ErrClosed is returned by every store operation after Close.
var ErrClosed = errors.New("store is closed")

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (run 'ragindex clear' and reindex)", e.Expected, e.Got)
}

// VectorStoreConfig configures the HNSW vector store.
type VectorStoreConfig struct {
	// Dimensions is the vector dimension.
	Dimensions int

	// Metric is MetricCosine (default) or MetricEuclidean.
	Metric string

	// M is HNSW max connections per layer (default: 16)
	M int

	// EfSearch is HNSW query-time search width (default: 20)
	EfSearch int
}

// DefaultVectorStoreConfig returns defaults for the given dimension.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions: dimensions,
		Metric:     MetricCosine,
		M:          16,
		EfSearch:   20,
	}
}

// BM25Config configures keyword tokenization.
type BM25Config struct {
	// StopWords is a list of words to filter out during tokenization
	StopWords []string
}

// DefaultBM25Config returns default BM25 configuration.
func DefaultBM25Config() BM25Config {
	return BM25Config{StopWords: DefaultStopWords}
}

// DefaultStopWords are frequent words with no retrieval value in prose or code.
var DefaultStopWords = []string{
	"the", "and", "of", "to", "in", "is", "it", "that", "for", "on", "with", "as", "at", "by", "an",
	"var", "let", "const", "func", "function", "def", "return", "if", "else",
}
