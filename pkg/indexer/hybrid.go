package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Aman-CERP/ragindex/internal/embed"
	ragerrors "github.com/Aman-CERP/ragindex/internal/errors"
	"github.com/Aman-CERP/ragindex/internal/state"
	"github.com/Aman-CERP/ragindex/internal/store"
)

// DefaultBatchSize is the queue length that triggers an automatic flush.
const DefaultBatchSize = 100

const tracerName = "github.com/Aman-CERP/ragindex/pkg/indexer"

var (
	// ErrNoEmbedder is returned when no embedder is configured.
	ErrNoEmbedder = errors.New("embedder is required")
	// ErrNoVectorStore is returned when no vector store is configured.
	ErrNoVectorStore = errors.New("vector store is required")
	// ErrNoKeywordIndex is returned when no keyword index is configured.
	ErrNoKeywordIndex = errors.New("keyword index is required")
	// ErrNoStateStore is returned when no state store is configured.
	ErrNoStateStore = errors.New("state store is required")
)

type queued struct {
	seg        store.Segment
	chunkIndex int
}

// HybridIndexer batches segments and writes them to the vector store and
// the keyword index of one project.
type HybridIndexer struct {
	projectID string
	embedder  embed.Embedder
	vectors   store.VectorStore
	keywords  store.KeywordIndex
	state     state.Store
	batchSize int
	logger    *slog.Logger

	mu      sync.Mutex
	pending []queued
	stats   Stats
}

// Option configures a HybridIndexer.
type Option func(*HybridIndexer)

// WithEmbedder sets the embedding provider. Required.
func WithEmbedder(e embed.Embedder) Option {
	return func(h *HybridIndexer) { h.embedder = e }
}

// WithVectorStore sets the vector store. Required.
func WithVectorStore(v store.VectorStore) Option {
	return func(h *HybridIndexer) { h.vectors = v }
}

// WithKeywordIndex sets the keyword index. Required.
func WithKeywordIndex(k store.KeywordIndex) Option {
	return func(h *HybridIndexer) { h.keywords = k }
}

// WithStateStore sets the store that persists segment mappings. Required.
func WithStateStore(s state.Store) Option {
	return func(h *HybridIndexer) { h.state = s }
}

// WithBatchSize overrides DefaultBatchSize. Values < 1 are ignored.
func WithBatchSize(n int) Option {
	return func(h *HybridIndexer) {
		if n >= 1 {
			h.batchSize = n
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *HybridIndexer) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHybridIndexer creates an indexer for projectID.
//
//	h, err := indexer.NewHybridIndexer(projectID,
//	    indexer.WithEmbedder(embedder),
//	    indexer.WithVectorStore(vectors),
//	    indexer.WithKeywordIndex(keywords),
//	    indexer.WithStateStore(st),
//	)
func NewHybridIndexer(projectID string, opts ...Option) (*HybridIndexer, error) {
	h := &HybridIndexer{
		projectID: projectID,
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}

	switch {
	case h.embedder == nil:
		return nil, ErrNoEmbedder
	case h.vectors == nil:
		return nil, ErrNoVectorStore
	case h.keywords == nil:
		return nil, ErrNoKeywordIndex
	case h.state == nil:
		return nil, ErrNoStateStore
	}
	return h, nil
}

// AddSegmentToBatch queues seg for resourceID, assigning its deterministic
// ID. The segment must carry a chunk_index metadata value. When the queue
// reaches the batch size it is flushed before returning; the result is
// false if that flush failed or the segment was rejected.
func (h *HybridIndexer) AddSegmentToBatch(ctx context.Context, seg store.Segment, resourceID string) bool {
	idx := seg.ChunkIndex()
	if idx < 0 {
		h.logger.Error("segment_missing_chunk_index",
			slog.String("resource", resourceID))
		return false
	}

	seg.ResourceID = resourceID
	seg.ID = SegmentID(h.projectID, resourceID, idx)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.pending = append(h.pending, queued{seg: seg, chunkIndex: idx})
	if len(h.pending) < h.batchSize {
		return true
	}
	return h.flushLocked(ctx)
}

// FlushRemaining flushes every queued segment. An empty queue is a
// successful no-op.
func (h *HybridIndexer) FlushRemaining(ctx context.Context) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.flushLocked(ctx)
}

// must hold h.mu
func (h *HybridIndexer) flushLocked(ctx context.Context) bool {
	if len(h.pending) == 0 {
		return true
	}
	batch := h.pending

	ctx, span := otel.Tracer(tracerName).Start(ctx, "indexer.flush")
	defer span.End()

	texts := make([]string, len(batch))
	segments := make([]store.Segment, len(batch))
	largest := 0
	for i, q := range batch {
		texts[i] = q.seg.Text
		segments[i] = q.seg
		if n := utf8.RuneCountInString(q.seg.Text); n > largest {
			largest = n
		}
	}
	span.SetAttributes(
		attribute.String("project.id", h.projectID),
		attribute.Int("batch.size", len(batch)),
		attribute.Int("batch.largest_segment", largest),
	)

	fail := func(stage string, err error) bool {
		h.stats.FailedFlushes++
		span.RecordError(err)
		span.SetStatus(codes.Error, stage)
		h.logger.Error("batch_flush_failed",
			slog.String("stage", stage),
			slog.String("project", h.projectID),
			slog.Int("batch_size", len(batch)),
			slog.Int("largest_segment_chars", largest),
			slog.Int("token_limit", h.embedder.TokenLimit()),
			slog.String("error", err.Error()))
		return false
	}

	vectors, err := h.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fail("embed", ragerrors.New(ragerrors.ErrCodeEmbeddingFailed, "embed batch", err))
	}
	if len(vectors) != len(batch) {
		return fail("embed", ragerrors.New(ragerrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("embedder returned %d vectors for %d segments", len(vectors), len(batch)), nil))
	}

	ids, err := h.vectors.AddAll(ctx, vectors, segments)
	if err != nil {
		return fail("vector_store", ragerrors.New(ragerrors.ErrCodeIndexFailed, "vector store write", err))
	}

	if err := h.keywords.IndexDocuments(ctx, segments); err != nil {
		// Undo the vector write so no stored segment lacks a mapping.
		if rerr := h.vectors.RemoveAll(ctx, ids); rerr != nil {
			h.logger.Error("vector_compensation_failed",
				slog.Int("segments", len(ids)),
				slog.String("error", rerr.Error()))
		}
		return fail("keyword_index", ragerrors.New(ragerrors.ErrCodeIndexFailed, "keyword index write", err))
	}

	mappings := make([]state.Mapping, len(batch))
	for i, q := range batch {
		mappings[i] = state.Mapping{
			ProjectID:  h.projectID,
			ResourceID: q.seg.ResourceID,
			SegmentID:  q.seg.ID,
			ChunkIndex: q.chunkIndex,
		}
	}
	if err := h.state.AddMappings(ctx, mappings); err != nil {
		return fail("mappings", ragerrors.New(ragerrors.ErrCodeStateFailed, "persist segment mappings", err))
	}

	h.pending = nil
	h.stats.Flushes++
	h.stats.SegmentsWritten += int64(len(batch))

	h.logger.Debug("batch_flushed",
		slog.String("project", h.projectID),
		slog.Int("batch_size", len(batch)),
		slog.Int("largest_segment_chars", largest))
	return true
}

// DiscardPending empties the queue. Segments left behind by a failed flush
// would otherwise be written by the next successful one.
func (h *HybridIndexer) DiscardPending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.pending)
	h.pending = nil
	return n
}

// RemoveResource deletes a resource's segments from both stores, then its
// mapping rows. Queued segments of the resource are dropped first so a
// later flush cannot resurrect them.
func (h *HybridIndexer) RemoveResource(ctx context.Context, resourceID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	kept := h.pending[:0:0]
	for _, q := range h.pending {
		if q.seg.ResourceID != resourceID {
			kept = append(kept, q)
		}
	}
	h.pending = kept

	mappings, err := h.state.MappingsFor(ctx, h.projectID, resourceID)
	if err != nil {
		return fmt.Errorf("load mappings for %s: %w", resourceID, err)
	}

	if len(mappings) > 0 {
		ids := make([]string, len(mappings))
		for i, m := range mappings {
			ids[i] = m.SegmentID
		}
		if err := h.vectors.RemoveAll(ctx, ids); err != nil {
			return fmt.Errorf("remove vectors for %s: %w", resourceID, err)
		}
	}

	// Always ask the keyword index: it is keyed by resource and may hold
	// documents whose mappings were never written.
	if err := h.keywords.RemoveByResource(ctx, resourceID); err != nil {
		return fmt.Errorf("remove keyword documents for %s: %w", resourceID, err)
	}

	if len(mappings) == 0 {
		return nil
	}
	if err := h.state.DeleteMappings(ctx, h.projectID, resourceID); err != nil {
		return fmt.Errorf("delete mappings for %s: %w", resourceID, err)
	}

	h.stats.ResourcesRemoved++
	h.logger.Debug("resource_removed",
		slog.String("resource", resourceID),
		slog.Int("segments", len(mappings)))
	return nil
}

// Stats returns a snapshot of the indexer counters.
func (h *HybridIndexer) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.stats
	s.Pending = len(h.pending)
	return s
}

// ProjectID returns the project this indexer writes for.
func (h *HybridIndexer) ProjectID() string {
	return h.projectID
}

// Persist saves stores that buffer writes in memory.
func (h *HybridIndexer) Persist() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var errs []error
	if s, ok := h.vectors.(store.Saver); ok {
		if err := s.Save(); err != nil {
			errs = append(errs, fmt.Errorf("save vector store: %w", err))
		}
	}
	if s, ok := h.keywords.(store.Saver); ok {
		if err := s.Save(); err != nil {
			errs = append(errs, fmt.Errorf("save keyword index: %w", err))
		}
	}
	return errors.Join(errs...)
}

var _ SegmentIndexer = (*HybridIndexer)(nil)
