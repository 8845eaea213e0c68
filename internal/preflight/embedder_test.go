package preflight

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/ragindex/internal/config"
	"github.com/Aman-CERP/ragindex/internal/embed"
)

// probeEmbedder wraps a static embedder with controllable failures.
type probeEmbedder struct {
	*embed.StaticEmbedder
	down     bool
	embedErr error
	dims     int
}

func (p *probeEmbedder) Available(context.Context) bool { return !p.down }

func (p *probeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if p.embedErr != nil {
		return nil, p.embedErr
	}
	return p.StaticEmbedder.Embed(ctx, text)
}

func (p *probeEmbedder) Dimensions() int {
	if p.dims > 0 {
		return p.dims
	}
	return p.StaticEmbedder.Dimensions()
}

func TestChecker_CheckEmbedder(t *testing.T) {
	tests := []struct {
		name    string
		emb     *probeEmbedder
		status  Status
		message string
	}{
		{
			name:    "reachable",
			emb:     &probeEmbedder{StaticEmbedder: embed.NewStaticEmbedder(32)},
			status:  StatusPass,
			message: "32 dims",
		},
		{
			name:    "unreachable",
			emb:     &probeEmbedder{StaticEmbedder: embed.NewStaticEmbedder(32), down: true},
			status:  StatusFail,
			message: "unreachable",
		},
		{
			name:    "embed error",
			emb:     &probeEmbedder{StaticEmbedder: embed.NewStaticEmbedder(32), embedErr: errors.New("boom")},
			status:  StatusFail,
			message: "failed to embed",
		},
		{
			name:    "dimension mismatch",
			emb:     &probeEmbedder{StaticEmbedder: embed.NewStaticEmbedder(32), dims: 768},
			status:  StatusFail,
			message: "expected 768",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a checker probing the embedder
			checker := New(WithEmbedder(tt.emb))

			// When: checking the embedder
			result := checker.CheckEmbedder(context.Background())

			// Then: the status reflects the probe
			assert.Equal(t, "embedder", result.Name)
			assert.Equal(t, tt.status, result.Status)
			assert.Contains(t, result.Message, tt.message)
			assert.True(t, result.Required)
		})
	}
}

func TestChecker_CheckEmbedder_NotConfigured(t *testing.T) {
	result := New().CheckEmbedder(context.Background())

	assert.Equal(t, StatusWarn, result.Status)
	assert.False(t, result.IsCritical())
}

func TestChecker_CheckConfig(t *testing.T) {
	// Given: a valid and an invalid configuration
	valid := config.NewConfig()
	invalid := config.NewConfig()
	invalid.Embeddings.Provider = "onnx"
	invalid.Indexing.Workers = 0

	// When: checking both
	ok := New(WithConfig(valid)).CheckConfig()
	bad := New(WithConfig(invalid)).CheckConfig()

	// Then: only the invalid one fails, listing every problem
	assert.Equal(t, StatusPass, ok.Status)
	assert.Contains(t, ok.Message, "static embeddings")

	assert.Equal(t, StatusFail, bad.Status)
	assert.True(t, bad.IsCritical())
	assert.Contains(t, bad.Details, "embeddings.provider")
	assert.Contains(t, bad.Details, "indexing.workers")
	assert.NotContains(t, bad.Details, "\n")
}
