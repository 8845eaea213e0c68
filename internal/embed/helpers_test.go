package embed

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
	"sync/atomic"
)

// mockEmbedder returns one-hot vectors and records how it was called.
type mockEmbedder struct {
	dimensions int
	modelName  string

	embedCalls atomic.Int64
	batchCalls atomic.Int64
	closeCalls atomic.Int64

	mu        sync.Mutex
	batchSeen [][]string
}

func newMockEmbedder(dims int) *mockEmbedder {
	return &mockEmbedder{dimensions: dims, modelName: "mock-model"}
}

// vectorFor sets the component picked by a hash of text.
func (m *mockEmbedder) vectorFor(text string) []float32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	vec := make([]float32, m.dimensions)
	vec[h.Sum32()%uint32(m.dimensions)] = 1
	return vec
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.embedCalls.Add(1)
	return m.vectorFor(text), nil
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.batchCalls.Add(1)
	m.mu.Lock()
	m.batchSeen = append(m.batchSeen, append([]string(nil), texts...))
	m.mu.Unlock()

	vecs := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vecs = append(vecs, m.vectorFor(text))
	}
	return vecs, nil
}

func (m *mockEmbedder) Dimensions() int                { return m.dimensions }
func (m *mockEmbedder) TokenLimit() int                { return 512 }
func (m *mockEmbedder) ModelName() string              { return m.modelName }
func (m *mockEmbedder) Available(context.Context) bool { return true }
func (m *mockEmbedder) Close() error                   { m.closeCalls.Add(1); return nil }

func dot(a, b []float32) float64 {
	var sum float64
	for i := range min(len(a), len(b)) {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func vectorMagnitude(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}

// cosineSimilarity is 0 for vectors of different length or zero magnitude.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	norm := vectorMagnitude(a) * vectorMagnitude(b)
	if norm == 0 {
		return 0
	}
	return dot(a, b) / norm
}
