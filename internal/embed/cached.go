package embed

import (
	"context"
	"crypto/sha256"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultEmbeddingCacheSize holds roughly 3MB of 768-dimension vectors.
const DefaultEmbeddingCacheSize = 1000

// vectorKey identifies a cached vector. The model is part of the key so a
// model switch never serves stale vectors.
type vectorKey struct {
	model  string
	digest [sha256.Size]byte
}

// CachedEmbedder memoizes vectors of an Embedder in an LRU. Unchanged
// segments on re-index and repeated queries skip the provider.
type CachedEmbedder struct {
	Embedder

	vectors *lru.Cache[vectorKey, []float32]
	hits    atomic.Int64
	misses  atomic.Int64
}

var _ Embedder = (*CachedEmbedder)(nil)

// CacheStats counts lookups since construction.
type CacheStats struct {
	Hits    int64
	Misses  int64
	Entries int
}

// NewCachedEmbedder wraps inner. size <= 0 selects DefaultEmbeddingCacheSize.
func NewCachedEmbedder(inner Embedder, size int) *CachedEmbedder {
	if size <= 0 {
		size = DefaultEmbeddingCacheSize
	}
	// lru.New only fails for a non-positive size.
	vectors, _ := lru.New[vectorKey, []float32](size)
	return &CachedEmbedder{Embedder: inner, vectors: vectors}
}

func (c *CachedEmbedder) key(text string) vectorKey {
	return vectorKey{model: c.Embedder.ModelName(), digest: sha256.Sum256([]byte(text))}
}

func (c *CachedEmbedder) lookup(k vectorKey) ([]float32, bool) {
	vec, ok := c.vectors.Get(k)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return vec, ok
}

// Embed serves text from the cache or asks the wrapped embedder.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	k := c.key(text)
	if vec, ok := c.lookup(k); ok {
		return vec, nil
	}
	vec, err := c.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.vectors.Add(k, vec)
	return vec, nil
}

// EmbedBatch forwards only the misses, each distinct text once and in
// first-seen order, and fans the vectors back out to every position.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var (
		todo      []string
		todoKeys  []vectorKey
		positions = make(map[vectorKey][]int)
	)
	for i, text := range texts {
		k := c.key(text)
		if vec, ok := c.lookup(k); ok {
			out[i] = vec
			continue
		}
		if _, queued := positions[k]; !queued {
			todo = append(todo, text)
			todoKeys = append(todoKeys, k)
		}
		positions[k] = append(positions[k], i)
	}
	if len(todo) == 0 {
		return out, nil
	}

	fresh, err := c.Embedder.EmbedBatch(ctx, todo)
	if err != nil {
		return nil, err
	}
	for j, k := range todoKeys {
		c.vectors.Add(k, fresh[j])
		for _, i := range positions[k] {
			out[i] = fresh[j]
		}
	}
	return out, nil
}

// Inner returns the wrapped embedder.
func (c *CachedEmbedder) Inner() Embedder {
	return c.Embedder
}

// Len returns the number of cached vectors.
func (c *CachedEmbedder) Len() int {
	return c.vectors.Len()
}

func (c *CachedEmbedder) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load(), Entries: c.vectors.Len()}
}
