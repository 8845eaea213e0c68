package embed

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/Aman-CERP/ragindex/internal/store"
)

// A text contributes its code tokens and its letter/digit trigrams.
// Tokens dominate so that shared identifiers outrank shared spelling.
const (
	staticTokenWeight   = 0.7
	staticTrigramWeight = 0.3
)

var errStaticClosed = errors.New("static embedder is closed")

// StaticEmbedder is the offline backend. Every feature of a text is hashed
// into one of dims buckets and the bucket counts are L2-normalized, so the
// same text always maps to the same vector.
type StaticEmbedder struct {
	dims       int
	tokenLimit int
	stop       map[string]struct{}
	closed     atomic.Bool
}

var _ Embedder = (*StaticEmbedder)(nil)

// NewStaticEmbedder returns a hashing embedder with dims buckets, or
// StaticDimensions when dims is not positive.
func NewStaticEmbedder(dims int) *StaticEmbedder {
	if dims <= 0 {
		dims = StaticDimensions
	}
	return &StaticEmbedder{
		dims:       dims,
		tokenLimit: StaticTokenLimit,
		stop:       store.BuildStopWordMap(store.DefaultStopWords),
	}
}

func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.closed.Load() {
		return nil, errStaticClosed
	}
	return e.vector(text), nil
}

// EmbedBatch checks ctx between texts.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.closed.Load() {
		return nil, errStaticClosed
	}
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, e.vector(text))
	}
	return out, nil
}

// vector returns the zero vector for blank text.
func (e *StaticEmbedder) vector(text string) []float32 {
	v := make([]float32, e.dims)
	text = strings.TrimSpace(text)
	if text == "" {
		return v
	}
	for _, tok := range store.FilterStopWords(store.TokenizeCode(text), e.stop) {
		v[e.bucket(tok)] += staticTokenWeight
	}
	forEachTrigram(text, func(g string) {
		v[e.bucket(g)] += staticTrigramWeight
	})
	return store.Normalize(v)
}

func (e *StaticEmbedder) bucket(feature string) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(feature))
	return int(h.Sum64() % uint64(e.dims))
}

// forEachTrigram calls fn with every three-rune window of the lowercased
// letters and digits of text.
func forEachTrigram(text string, fn func(string)) {
	var window []rune
	for _, r := range strings.ToLower(text) {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		window = append(window, r)
		if len(window) >= 3 {
			fn(string(window[len(window)-3:]))
		}
	}
}

func (e *StaticEmbedder) Dimensions() int { return e.dims }

func (e *StaticEmbedder) TokenLimit() int { return e.tokenLimit }

func (e *StaticEmbedder) ModelName() string { return fmt.Sprintf("static-%d", e.dims) }

// Available is true until Close.
func (e *StaticEmbedder) Available(context.Context) bool { return !e.closed.Load() }

func (e *StaticEmbedder) Close() error {
	e.closed.Store(true)
	return nil
}
