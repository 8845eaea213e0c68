package embed

import (
	"cmp"
	"strings"
	"time"
)

const (
	DefaultOllamaHost  = "http://localhost:11434"
	DefaultOllamaModel = "nomic-embed-text"

	// OllamaPoolSize is the idle connection pool per host.
	OllamaPoolSize = 4
)

// OllamaConfig configures OllamaEmbedder. Zero fields take the values of
// DefaultOllamaConfig, except MaxRetries where zero means no retries.
type OllamaConfig struct {
	Host  string
	Model string
	// Dimensions skips probing the model when non-zero.
	Dimensions int
	TokenLimit int
	// BatchSize is the number of texts per request, at most MaxBatchSize.
	BatchSize int
	// Timeout bounds one request, retries excluded.
	Timeout    time.Duration
	MaxRetries int
	// BreakerFailures consecutive failed requests open the circuit for
	// BreakerReset.
	BreakerFailures int
	BreakerReset    time.Duration
}

func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		Host:            DefaultOllamaHost,
		Model:           DefaultOllamaModel,
		TokenLimit:      DefaultTokenLimit,
		BatchSize:       DefaultBatchSize,
		Timeout:         DefaultTimeout,
		MaxRetries:      3,
		BreakerFailures: 5,
		BreakerReset:    30 * time.Second,
	}
}

func (c OllamaConfig) withDefaults() OllamaConfig {
	def := DefaultOllamaConfig()
	c.Host = strings.TrimRight(cmp.Or(c.Host, def.Host), "/")
	c.Model = cmp.Or(c.Model, def.Model)
	c.TokenLimit = cmp.Or(max(c.TokenLimit, 0), def.TokenLimit)
	c.BatchSize = min(cmp.Or(max(c.BatchSize, 0), def.BatchSize), MaxBatchSize)
	c.Timeout = cmp.Or(max(c.Timeout, 0), def.Timeout)
	c.MaxRetries = max(c.MaxRetries, 0)
	c.BreakerFailures = cmp.Or(max(c.BreakerFailures, 0), def.BreakerFailures)
	c.BreakerReset = cmp.Or(max(c.BreakerReset, 0), def.BreakerReset)
	return c
}

// embedRequest is the body of POST /api/embed. Input is a string for one
// text and a []string for several.
type embedRequest struct {
	Model    string `json:"model"`
	Input    any    `json:"input"`
	Truncate bool   `json:"truncate"`
}

// OllamaEmbedResponse is the body returned by POST /api/embed.
type OllamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

// OllamaModelInfo is one model listed by GET /api/tags.
type OllamaModelInfo struct {
	Name       string `json:"name"`
	ModifiedAt string `json:"modified_at"`
	Size       int64  `json:"size"`
}

type OllamaModelListResponse struct {
	Models []OllamaModelInfo `json:"models"`
}
