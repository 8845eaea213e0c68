package embed

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedEmbedder_Embed_MemoizesByText(t *testing.T) {
	// Given: an empty cache
	inner := newMockEmbedder(16)
	cached := NewCachedEmbedder(inner, 8)
	ctx := context.Background()

	// When: the same query is embedded twice
	first, err := cached.Embed(ctx, "how are tokens refreshed")
	require.NoError(t, err)
	second, err := cached.Embed(ctx, "how are tokens refreshed")
	require.NoError(t, err)

	// Then: the provider saw it once and the stats say so
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), inner.embedCalls.Load())
	assert.Equal(t, CacheStats{Hits: 1, Misses: 1, Entries: 1}, cached.Stats())
}

func TestCachedEmbedder_EmbedBatch(t *testing.T) {
	tests := []struct {
		name      string
		warm      []string
		batch     []string
		wantSent  [][]string
		wantCalls int64
	}{
		{
			name:      "duplicate misses sent once in order",
			warm:      []string{"alpha"},
			batch:     []string{"alpha", "beta", "gamma", "beta"},
			wantSent:  [][]string{{"beta", "gamma"}},
			wantCalls: 1,
		},
		{
			name:      "fully cached batch skips provider",
			warm:      []string{"x", "y"},
			batch:     []string{"y", "x", "y"},
			wantCalls: 0,
		},
		{
			name:      "empty batch",
			batch:     []string{},
			wantCalls: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := newMockEmbedder(16)
			cached := NewCachedEmbedder(inner, 32)
			ctx := context.Background()
			for _, w := range tt.warm {
				_, err := cached.Embed(ctx, w)
				require.NoError(t, err)
			}

			vecs, err := cached.EmbedBatch(ctx, tt.batch)

			require.NoError(t, err)
			assert.Equal(t, tt.wantCalls, inner.batchCalls.Load())
			assert.Equal(t, tt.wantSent, inner.batchSeen)
			require.Len(t, vecs, len(tt.batch))
			for i, text := range tt.batch {
				assert.Equal(t, inner.vectorFor(text), vecs[i], text)
			}
		})
	}
}

func TestCachedEmbedder_BatchFillsCacheForEmbed(t *testing.T) {
	inner := newMockEmbedder(16)
	cached := NewCachedEmbedder(inner, 32)
	ctx := context.Background()

	_, err := cached.EmbedBatch(ctx, []string{"a1", "b22"})
	require.NoError(t, err)
	_, err = cached.Embed(ctx, "b22")
	require.NoError(t, err)

	assert.Zero(t, inner.embedCalls.Load())
	assert.Equal(t, 2, cached.Len())
}

type failingEmbedder struct{ *mockEmbedder }

func (failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("provider down")
}

func TestCachedEmbedder_BatchErrorCachesNothing(t *testing.T) {
	cached := NewCachedEmbedder(failingEmbedder{newMockEmbedder(8)}, 32)

	_, err := cached.EmbedBatch(context.Background(), []string{"a", "b"})

	require.Error(t, err)
	assert.Zero(t, cached.Len())
}

func TestCachedEmbedder_ModelSwitchMisses(t *testing.T) {
	inner := newMockEmbedder(16)
	cached := NewCachedEmbedder(inner, 32)
	ctx := context.Background()

	_, _ = cached.Embed(ctx, "text")
	inner.modelName = "other-model"
	_, _ = cached.Embed(ctx, "text")

	assert.Equal(t, int64(2), inner.embedCalls.Load())
}

func TestCachedEmbedder_DelegatesMetadata(t *testing.T) {
	inner := newMockEmbedder(1024)
	inner.modelName = "custom-model-v2"
	cached := NewCachedEmbedder(inner, 0)

	assert.Equal(t, 1024, cached.Dimensions())
	assert.Equal(t, "custom-model-v2", cached.ModelName())
	assert.Equal(t, 512, cached.TokenLimit())
	assert.True(t, cached.Available(context.Background()))
	assert.Same(t, inner, cached.Inner())

	require.NoError(t, cached.Close())
	assert.Equal(t, int64(1), inner.closeCalls.Load())
}

func TestCachedEmbedder_EvictsLeastRecentlyUsed(t *testing.T) {
	// Given: room for three vectors
	inner := newMockEmbedder(16)
	cached := NewCachedEmbedder(inner, 3)
	ctx := context.Background()
	for _, text := range []string{"one", "two", "three"} {
		_, _ = cached.Embed(ctx, text)
	}

	// When: "one" is touched and a fourth text arrives
	_, _ = cached.Embed(ctx, "one")
	_, _ = cached.Embed(ctx, "four")
	inner.embedCalls.Store(0)

	// Then: "two" was evicted and "one" survived
	_, _ = cached.Embed(ctx, "one")
	assert.Zero(t, inner.embedCalls.Load())
	_, _ = cached.Embed(ctx, "two")
	assert.Equal(t, int64(1), inner.embedCalls.Load())
}

func TestCachedEmbedder_ConcurrentAccess(t *testing.T) {
	inner := newMockEmbedder(16)
	cached := NewCachedEmbedder(inner, 100)
	ctx := context.Background()
	texts := []string{"a", "b", "c", "d", "e"}

	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			for j := range 100 {
				_, _ = cached.Embed(ctx, texts[j%len(texts)])
				_, _ = cached.EmbedBatch(ctx, texts[:j%len(texts)+1])
			}
		})
	}
	wg.Wait()

	assert.Equal(t, len(texts), cached.Len())
	st := cached.Stats()
	assert.Equal(t, int64(4000), st.Hits+st.Misses)
}
