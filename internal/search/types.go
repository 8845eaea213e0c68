package search

import (
	"time"

	"github.com/Aman-CERP/ragindex/pkg/searcher"
)

// Mode selects which retrieval paths a query runs.
type Mode string

const (
	// ModeBoth runs keyword and vector search side by side.
	ModeBoth Mode = "both"
	// ModeKeyword runs keyword search only.
	ModeKeyword Mode = "keyword"
	// ModeVector runs vector search only.
	ModeVector Mode = "vector"
)

// ParseMode converts a user-supplied mode. Empty means ModeBoth.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case "", ModeBoth:
		return ModeBoth, true
	case ModeKeyword:
		return ModeKeyword, true
	case ModeVector:
		return ModeVector, true
	default:
		return "", false
	}
}

// Options configures a single search.
type Options struct {
	// Limit is the maximum number of results per list.
	Limit int

	// Mode selects keyword, vector or both. Empty means both.
	Mode Mode

	// Scopes restricts results to path prefixes relative to the engine root.
	// Multiple scopes use OR logic.
	Scopes []string

	// SourceType restricts results to "folders", "files" or "urls".
	SourceType string
}

// Results holds both result lists of a query. The lists are ranked
// independently and never merged; their scores are not comparable.
type Results struct {
	Query   string            `json:"query"`
	Keyword []searcher.Result `json:"keyword"`
	Vector  []searcher.Result `json:"vector"`

	// KeywordError and VectorError are set when one path failed and the
	// other still answered.
	KeywordError string `json:"keyword_error,omitempty"`
	VectorError  string `json:"vector_error,omitempty"`

	Took time.Duration `json:"took"`
}

// Degraded reports whether one of the retrieval paths failed.
func (r *Results) Degraded() bool {
	return r.KeywordError != "" || r.VectorError != ""
}

// Len returns the total number of results across both lists.
func (r *Results) Len() int {
	return len(r.Keyword) + len(r.Vector)
}

// EngineConfig holds engine limits.
type EngineConfig struct {
	DefaultLimit int
	MaxLimit     int
}

// DefaultEngineConfig returns the default limits.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DefaultLimit: 10,
		MaxLimit:     100,
	}
}
