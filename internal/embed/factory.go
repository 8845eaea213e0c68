package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Aman-CERP/ragindex/internal/config"
	ragerrors "github.com/Aman-CERP/ragindex/internal/errors"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderStatic uses offline hash embeddings.
	ProviderStatic ProviderType = "static"

	// ProviderOllama uses the Ollama HTTP API.
	ProviderOllama ProviderType = "ollama"
)

// ParseProvider parses a provider name, case-insensitively.
func ParseProvider(s string) (ProviderType, error) {
	switch p := ProviderType(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderStatic, ProviderOllama:
		return p, nil
	case "":
		return ProviderStatic, nil
	default:
		return "", ragerrors.ConfigError(fmt.Sprintf("unknown embedding provider %q", s), nil).
			WithSuggestion("use 'static' or 'ollama'")
	}
}

// NewEmbedder builds the configured provider and wraps it with the rate
// limiter (when RateLimit > 0) and the LRU cache (when CacheSize > 0).
// There is no silent fallback: an unreachable Ollama is an error.
func NewEmbedder(ctx context.Context, cfg config.EmbeddingsConfig, timeout time.Duration) (Embedder, error) {
	provider, err := ParseProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}

	var embedder Embedder
	switch provider {
	case ProviderOllama:
		o, err := NewOllamaEmbedder(ctx, OllamaConfig{
			Host:       cfg.Host,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			TokenLimit: cfg.TokenLimit,
			Timeout:    timeout,
			MaxRetries: 3,
		})
		if err != nil {
			return nil, ragerrors.New(ragerrors.ErrCodeNetworkUnavailable, "ollama unavailable", err).
				WithSuggestion("start Ollama (ollama serve) or set embeddings.provider: static")
		}
		embedder = o
	default:
		s := NewStaticEmbedder(cfg.Dimensions)
		if cfg.TokenLimit > 0 {
			s.tokenLimit = cfg.TokenLimit
		}
		embedder = s
	}

	if cfg.RateLimit > 0 {
		embedder = NewRateLimitedEmbedder(embedder, cfg.RateLimit, cfg.RateBurst)
	}
	if cfg.CacheSize > 0 {
		embedder = NewCachedEmbedder(embedder, cfg.CacheSize)
	}

	slog.Debug("embedder_ready",
		slog.String("provider", string(provider)),
		slog.String("model", embedder.ModelName()),
		slog.Int("dimensions", embedder.Dimensions()),
		slog.Int("token_limit", embedder.TokenLimit()))

	return embedder, nil
}
