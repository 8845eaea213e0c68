package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ragerrors "github.com/Aman-CERP/ragindex/internal/errors"
)

// fakeOllama serves /api/embed with 3-dimensional vectors whose first
// component is the input length, and /api/tags with one model.
type fakeOllama struct {
	calls    atomic.Int32
	failures atomic.Int32 // remaining 503 responses
	status   int          // fixed error status when non-zero

	mu     sync.Mutex
	inputs [][]string
}

func (f *fakeOllama) seen() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inputs
}

func (f *fakeOllama) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		if f.status != 0 {
			http.Error(w, "nope", f.status)
			return
		}
		if f.failures.Load() > 0 {
			f.failures.Add(-1)
			http.Error(w, "loading model", http.StatusServiceUnavailable)
			return
		}

		var req struct {
			Model string          `json:"model"`
			Input json.RawMessage `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var inputs []string
		if err := json.Unmarshal(req.Input, &inputs); err != nil {
			var single string
			if err := json.Unmarshal(req.Input, &single); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			inputs = []string{single}
		}
		f.mu.Lock()
		f.inputs = append(f.inputs, inputs)
		f.mu.Unlock()

		resp := OllamaEmbedResponse{Model: req.Model}
		for _, in := range inputs {
			resp.Embeddings = append(resp.Embeddings, []float64{float64(len(in)), 0, 0})
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(OllamaModelListResponse{
			Models: []OllamaModelInfo{{Name: "nomic-embed-text:latest"}},
		})
	})
	return mux
}

func newTestOllama(t *testing.T, f *fakeOllama, cfg OllamaConfig) *OllamaEmbedder {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	cfg.Host = srv.URL + "/"
	e, err := NewOllamaEmbedder(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestOllamaEmbedder_DetectsDimensions(t *testing.T) {
	f := &fakeOllama{}
	e := newTestOllama(t, f, OllamaConfig{})

	assert.Equal(t, 3, e.Dimensions())
	assert.Equal(t, DefaultOllamaModel, e.ModelName())
	assert.Equal(t, DefaultTokenLimit, e.TokenLimit())
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestOllamaEmbedder_EmbedBatch_SplitsAndSkipsBlanks(t *testing.T) {
	// Given an embedder with provider batches of 2
	f := &fakeOllama{}
	e := newTestOllama(t, f, OllamaConfig{Dimensions: 3, BatchSize: 2})

	// When embedding 4 texts, one blank
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "  ", "bb", "ccc"})
	require.NoError(t, err)

	// Then the blank gets a zero vector and is never sent
	require.Len(t, vecs, 4)
	assert.Equal(t, []float32{0, 0, 0}, vecs[1])
	assert.Equal(t, [][]string{{"a", "bb"}, {"ccc"}}, f.seen())

	// And returned vectors are unit length
	assert.InDelta(t, 1.0, vectorMagnitude(vecs[0]), 1e-6)
	assert.InDelta(t, 1.0, vectorMagnitude(vecs[3]), 1e-6)
}

func TestOllamaEmbedder_RetriesTransientFailures(t *testing.T) {
	f := &fakeOllama{}
	f.failures.Store(1)
	e := newTestOllama(t, f, OllamaConfig{Dimensions: 3, MaxRetries: 2})

	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 3)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestOllamaEmbedder_ClientErrorIsNotRetried(t *testing.T) {
	f := &fakeOllama{status: http.StatusBadRequest}
	e := newTestOllama(t, f, OllamaConfig{Dimensions: 3, MaxRetries: 3})

	_, err := e.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, ragerrors.ErrCodeEmbeddingFailed, ragerrors.GetCode(err))
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestOllamaEmbedder_CircuitOpensAfterFailures(t *testing.T) {
	// Given a server that always fails and a breaker that opens after 2
	f := &fakeOllama{status: http.StatusBadRequest}
	e := newTestOllama(t, f, OllamaConfig{
		Dimensions:      3,
		MaxRetries:      0,
		BreakerFailures: 2,
		BreakerReset:    time.Hour,
	})
	ctx := context.Background()

	_, _ = e.Embed(ctx, "one")
	_, _ = e.Embed(ctx, "two")

	// When calling again
	_, err := e.Embed(ctx, "three")

	// Then the call fails fast without reaching the server
	assert.ErrorIs(t, err, ragerrors.ErrCircuitOpen)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestOllamaEmbedder_Available(t *testing.T) {
	f := &fakeOllama{}
	e := newTestOllama(t, f, OllamaConfig{Dimensions: 3})
	assert.True(t, e.Available(context.Background()))

	other := newTestOllama(t, f, OllamaConfig{Dimensions: 3, Model: "mxbai-embed-large"})
	assert.False(t, other.Available(context.Background()))

	require.NoError(t, e.Close())
	assert.False(t, e.Available(context.Background()))
	_, err := e.EmbedBatch(context.Background(), []string{"x"})
	assert.Error(t, err)
}

func TestNewOllamaEmbedder_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: url, MaxRetries: 0})
	assert.Error(t, err)
}
