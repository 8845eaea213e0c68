package searcher

import (
	"context"
	"fmt"

	"github.com/Aman-CERP/ragindex/internal/embed"
	"github.com/Aman-CERP/ragindex/internal/store"
)

// VectorSearcher embeds the query with the embedder that built the index
// and returns the nearest segments. Safe for concurrent use.
type VectorSearcher struct {
	embedder embed.Embedder
	store    store.VectorStore
	prefix   string
}

// VectorOption configures a VectorSearcher.
type VectorOption func(*VectorSearcher)

// WithSearchEmbedder is required.
func WithSearchEmbedder(e embed.Embedder) VectorOption {
	return func(s *VectorSearcher) { s.embedder = e }
}

// WithSearchVectorStore is required.
func WithSearchVectorStore(vs store.VectorStore) VectorOption {
	return func(s *VectorSearcher) { s.store = vs }
}

// WithQueryPrefix prepends an instruction such as "search_query:" to each
// query, for models trained with separate query and document prompts.
func WithQueryPrefix(prefix string) VectorOption {
	return func(s *VectorSearcher) { s.prefix = prefix }
}

// NewVectorSearcher fails with ErrNilEmbedder or ErrNilVectorStore when a
// required option is missing.
func NewVectorSearcher(opts ...VectorOption) (*VectorSearcher, error) {
	var s VectorSearcher
	for _, opt := range opts {
		opt(&s)
	}
	switch {
	case s.embedder == nil:
		return nil, ErrNilEmbedder
	case s.store == nil:
		return nil, ErrNilVectorStore
	}
	return &s, nil
}

func (s *VectorSearcher) queryText(query string) string {
	if s.prefix == "" {
		return query
	}
	return s.prefix + " " + query
}

// Search returns up to limit segments by descending similarity.
func (s *VectorSearcher) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	vec, err := s.embedder.Embed(ctx, s.queryText(query))
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := s.store.Search(ctx, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return toResults(hits, nil), nil
}
