package searcher

import (
	"context"
	"errors"

	"github.com/Aman-CERP/ragindex/internal/store"
)

// Construction errors for missing dependencies.
var (
	ErrNilKeywordIndex = errors.New("keyword index is required")
	ErrNilEmbedder     = errors.New("embedder is required")
	ErrNilVectorStore  = errors.New("vector store is required")
)

// Searcher performs search operations and returns ranked results.
//
// Implementations must be thread-safe for concurrent use.
type Searcher interface {
	// Search executes a search query and returns at most limit results,
	// best first. Returns an empty slice (not nil) if nothing matches.
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// Result represents a single matched segment.
type Result struct {
	// ID is the segment ID.
	ID string `json:"id"`

	// ResourceID is the file path or URL the segment came from.
	ResourceID string `json:"resource_id"`

	// Score is higher for better matches. Vector scores are similarities;
	// keyword scores are BM25 and not comparable across the two searchers.
	Score float64 `json:"score"`

	// Text is the segment content.
	Text string `json:"text"`

	// Metadata carries the segment metadata (file path, chunk index, lines).
	Metadata map[string]string `json:"metadata,omitempty"`

	// MatchedTerms contains the query terms found in Text (keyword only).
	MatchedTerms []string `json:"matched_terms,omitempty"`
}

// toResults converts store hits in order. decorate, when set, fills in
// searcher-specific fields.
func toResults(hits []store.Hit, decorate func(*Result)) []Result {
	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		r := Result{
			ID:         h.Segment.ID,
			ResourceID: h.Segment.ResourceID,
			Score:      h.Score,
			Text:       h.Segment.Text,
			Metadata:   h.Segment.Metadata,
		}
		if decorate != nil {
			decorate(&r)
		}
		results = append(results, r)
	}
	return results
}
