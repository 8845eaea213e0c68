package config

import (
	"errors"
	"fmt"
	"time"
)

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.Chunking.MinChars <= 0 {
		errs = append(errs, fmt.Errorf("chunking.min_chars must be positive, got %d", c.Chunking.MinChars))
	}
	if c.Chunking.MaxChars < c.Chunking.MinChars {
		errs = append(errs, fmt.Errorf("chunking.max_chars (%d) must be >= min_chars (%d)",
			c.Chunking.MaxChars, c.Chunking.MinChars))
	}
	if c.Chunking.MaxOverlap < 50 {
		errs = append(errs, fmt.Errorf("chunking.max_overlap must be >= 50, got %d", c.Chunking.MaxOverlap))
	}
	if c.Chunking.SafetyFactor <= 0 || c.Chunking.SafetyFactor > 1 {
		errs = append(errs, fmt.Errorf("chunking.safety_factor must be in (0, 1], got %v", c.Chunking.SafetyFactor))
	}
	if c.Chunking.CharsPerToken <= 0 {
		errs = append(errs, fmt.Errorf("chunking.chars_per_token must be positive, got %v", c.Chunking.CharsPerToken))
	}

	if c.Indexing.Workers <= 0 {
		errs = append(errs, fmt.Errorf("indexing.workers must be positive, got %d", c.Indexing.Workers))
	}
	if c.Indexing.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("indexing.batch_size must be positive, got %d", c.Indexing.BatchSize))
	}
	if c.Indexing.ProgressEvery <= 0 {
		errs = append(errs, fmt.Errorf("indexing.progress_every must be positive, got %d", c.Indexing.ProgressEvery))
	}
	if c.Indexing.MaxFileSize <= 0 {
		errs = append(errs, fmt.Errorf("indexing.max_file_size must be positive, got %d", c.Indexing.MaxFileSize))
	}

	switch c.Embeddings.Provider {
	case "static", "ollama":
	default:
		errs = append(errs, fmt.Errorf("embeddings.provider must be static or ollama, got %q", c.Embeddings.Provider))
	}
	if c.Embeddings.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions))
	}
	if c.Embeddings.TokenLimit <= 0 {
		errs = append(errs, fmt.Errorf("embeddings.token_limit must be positive, got %d", c.Embeddings.TokenLimit))
	}
	if c.Embeddings.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("embeddings.rate_limit must not be negative, got %v", c.Embeddings.RateLimit))
	}

	switch c.Store.VectorBackend {
	case "hnsw", "qdrant":
	default:
		errs = append(errs, fmt.Errorf("store.vector_backend must be hnsw or qdrant, got %q", c.Store.VectorBackend))
	}
	switch c.Store.KeywordBackend {
	case "sqlite", "bleve":
	default:
		errs = append(errs, fmt.Errorf("store.keyword_backend must be sqlite or bleve, got %q", c.Store.KeywordBackend))
	}
	switch c.Store.StateDriver {
	case "sqlite", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("store.state_driver must be sqlite or sqlite3, got %q", c.Store.StateDriver))
	}

	switch c.Server.Transport {
	case "stdio", "http":
	default:
		errs = append(errs, fmt.Errorf("server.transport must be stdio or http, got %q", c.Server.Transport))
	}

	for name, v := range map[string]string{
		"watcher.debounce":      c.Watcher.Debounce,
		"watcher.poll_interval": c.Watcher.PollInterval,
		"embeddings.timeout":    c.Embeddings.Timeout,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q", name, v))
		}
	}

	return errors.Join(errs...)
}
