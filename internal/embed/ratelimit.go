package embed

import (
	"context"

	"golang.org/x/time/rate"

	ragerrors "github.com/Aman-CERP/ragindex/internal/errors"
)

// RateLimitedEmbedder throttles calls to an inner embedder with a token
// bucket. Each EmbedBatch call costs one token regardless of batch size,
// matching providers that meter requests rather than inputs.
type RateLimitedEmbedder struct {
	inner   Embedder
	limiter *rate.Limiter
}

var _ Embedder = (*RateLimitedEmbedder)(nil)

// NewRateLimitedEmbedder allows rps requests per second with the given
// burst. burst < 1 is treated as 1.
func NewRateLimitedEmbedder(inner Embedder, rps float64, burst int) *RateLimitedEmbedder {
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedEmbedder{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (r *RateLimitedEmbedder) wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return ragerrors.New(ragerrors.ErrCodeRateLimited, "embedding rate limit wait aborted", err)
	}
	return nil
}

// Embed waits for a token, then embeds text.
func (r *RateLimitedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Embed(ctx, text)
}

// EmbedBatch waits for a token, then embeds texts.
func (r *RateLimitedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.EmbedBatch(ctx, texts)
}

func (r *RateLimitedEmbedder) Dimensions() int                    { return r.inner.Dimensions() }
func (r *RateLimitedEmbedder) TokenLimit() int                    { return r.inner.TokenLimit() }
func (r *RateLimitedEmbedder) ModelName() string                  { return r.inner.ModelName() }
func (r *RateLimitedEmbedder) Available(ctx context.Context) bool { return r.inner.Available(ctx) }
func (r *RateLimitedEmbedder) Close() error                       { return r.inner.Close() }
