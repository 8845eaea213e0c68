package embed

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ragindex/internal/config"
	ragerrors "github.com/Aman-CERP/ragindex/internal/errors"
)

func TestParseProvider(t *testing.T) {
	tests := []struct {
		in      string
		want    ProviderType
		wantErr bool
	}{
		{"static", ProviderStatic, false},
		{" Ollama ", ProviderOllama, false},
		{"", ProviderStatic, false},
		{"mlx", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProvider(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, ragerrors.ErrCodeConfigInvalid, ragerrors.GetCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewEmbedder_StaticWithDecorators(t *testing.T) {
	// Given static embeddings with rate limit and cache
	cfg := config.EmbeddingsConfig{
		Provider:   "static",
		Dimensions: 64,
		TokenLimit: 1024,
		RateLimit:  100,
		RateBurst:  5,
		CacheSize:  10,
	}

	// When building the embedder
	e, err := NewEmbedder(context.Background(), cfg, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	// Then the cache wraps the limiter which wraps the static embedder
	cached, ok := e.(*CachedEmbedder)
	require.True(t, ok)
	limited, ok := cached.Inner().(*RateLimitedEmbedder)
	require.True(t, ok)
	_, ok = limited.inner.(*StaticEmbedder)
	assert.True(t, ok)

	assert.Equal(t, 64, e.Dimensions())
	assert.Equal(t, 1024, e.TokenLimit())
}

func TestNewEmbedder_PlainStatic(t *testing.T) {
	e, err := NewEmbedder(context.Background(), config.EmbeddingsConfig{Provider: "static"}, 0)
	require.NoError(t, err)

	_, ok := e.(*StaticEmbedder)
	assert.True(t, ok)
	assert.Equal(t, StaticDimensions, e.Dimensions())
	assert.Equal(t, StaticTokenLimit, e.TokenLimit())
}

func TestNewEmbedder_Ollama(t *testing.T) {
	f := &fakeOllama{}
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	e, err := NewEmbedder(context.Background(), config.EmbeddingsConfig{
		Provider:   "ollama",
		Host:       srv.URL,
		Model:      "nomic-embed-text",
		TokenLimit: 8192,
	}, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	assert.Equal(t, 3, e.Dimensions())
	assert.Equal(t, 8192, e.TokenLimit())
}

func TestNewEmbedder_OllamaUnavailable(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close()

	_, err := NewEmbedder(context.Background(), config.EmbeddingsConfig{Provider: "ollama", Host: url}, time.Second)
	require.Error(t, err)
	assert.Equal(t, ragerrors.ErrCodeNetworkUnavailable, ragerrors.GetCode(err))
}
