package searcher

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/Aman-CERP/ragindex/internal/store"
)

// KeywordSearcher performs lexical search against a store.KeywordIndex.
// Thread-safe for concurrent use.
type KeywordSearcher struct {
	index store.KeywordIndex
}

// KeywordOption configures KeywordSearcher.
type KeywordOption func(*KeywordSearcher)

// WithKeywordIndex sets the keyword index backend.
func WithKeywordIndex(idx store.KeywordIndex) KeywordOption {
	return func(s *KeywordSearcher) {
		s.index = idx
	}
}

// NewKeywordSearcher creates a new keyword searcher.
//
// Requires WithKeywordIndex. Returns ErrNilKeywordIndex if it is missing.
func NewKeywordSearcher(opts ...KeywordOption) (*KeywordSearcher, error) {
	s := &KeywordSearcher{}
	for _, opt := range opts {
		opt(s)
	}
	if s.index == nil {
		return nil, ErrNilKeywordIndex
	}
	return s, nil
}

// Search executes a BM25 query and returns ranked results with the query
// terms each segment contains.
func (s *KeywordSearcher) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	hits, err := s.index.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}

	terms := uniqueTerms(query)
	return toResults(hits, func(r *Result) {
		r.MatchedTerms = matchedTerms(terms, r.Text)
	}), nil
}

// uniqueTerms returns the analyzed query terms in first-seen order.
func uniqueTerms(query string) []string {
	terms := store.TokenizeCode(query)
	seen := make(map[string]bool, len(terms))
	return slices.DeleteFunc(terms, func(t string) bool {
		dup := seen[t]
		seen[t] = true
		return dup
	})
}

func matchedTerms(terms []string, text string) []string {
	lower := strings.ToLower(text)
	var matched []string
	for _, t := range terms {
		if strings.Contains(lower, t) {
			matched = append(matched, t)
		}
	}
	return matched
}
