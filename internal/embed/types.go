// Package embed turns text into vectors for the indexing pipeline. It has
// two providers, an offline static hash embedder and an Ollama HTTP client,
// plus caching and rate limiting decorators that wrap either of them.
package embed

import (
	"context"
	"time"
)

// Provider request limits.
const (
	MaxBatchSize     = 256
	DefaultBatchSize = 32
	DefaultTimeout   = 60 * time.Second
	// DefaultTokenLimit is assumed when a model does not report its context.
	DefaultTokenLimit = 2048
)

// StaticDimensions and StaticTokenLimit describe the static embedder. The
// token limit is nominal and only sizes chunks.
const (
	StaticDimensions = 256
	StaticTokenLimit = 2048
)

// Embedder generates vector embeddings for text. Vectors are unit length.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per text in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	Dimensions() int

	// TokenLimit is the model's maximum input length in tokens.
	TokenLimit() int

	ModelName() string

	// Available reports whether the provider answers right now.
	Available(ctx context.Context) bool

	Close() error
}
