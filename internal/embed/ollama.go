package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	ragerrors "github.com/Aman-CERP/ragindex/internal/errors"
	"github.com/Aman-CERP/ragindex/internal/store"
)

var errEmbedderClosed = errors.New("embedder is closed")

// OllamaEmbedder calls the Ollama /api/embed endpoint. Each request is
// retried with backoff while the error is transient, and every attempt
// passes through a circuit breaker so a dead server fails fast.
type OllamaEmbedder struct {
	cfg     OllamaConfig
	dims    int
	pool    *http.Transport
	client  *http.Client
	breaker *ragerrors.CircuitBreaker
	retry   ragerrors.RetryConfig
	closed  atomic.Bool
}

var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder returns an embedder for cfg. With cfg.Dimensions zero
// it embeds a probe text once to learn the model's dimension.
func NewOllamaEmbedder(ctx context.Context, cfg OllamaConfig) (*OllamaEmbedder, error) {
	cfg = cfg.withDefaults()

	pool := &http.Transport{
		MaxIdleConns:        OllamaPoolSize,
		MaxIdleConnsPerHost: OllamaPoolSize,
		MaxConnsPerHost:     2 * OllamaPoolSize,
		IdleConnTimeout:     10 * time.Second,
	}
	retry := ragerrors.DefaultRetryConfig()
	retry.MaxRetries = cfg.MaxRetries
	retry.Jitter = true
	retry.ShouldRetry = func(err error) bool {
		return ragerrors.IsRetryable(err) && !errors.Is(err, ragerrors.ErrCircuitOpen)
	}

	e := &OllamaEmbedder{
		cfg:    cfg,
		dims:   cfg.Dimensions,
		pool:   pool,
		client: &http.Client{Transport: otelhttp.NewTransport(pool)},
		breaker: ragerrors.NewCircuitBreaker("ollama",
			ragerrors.WithMaxFailures(cfg.BreakerFailures),
			ragerrors.WithResetTimeout(cfg.BreakerReset),
			ragerrors.WithStateChange(logBreakerChange)),
		retry: retry,
	}
	if e.dims > 0 {
		return e, nil
	}

	vecs, err := e.request(ctx, []string{"dimension probe"})
	if err == nil && (len(vecs) == 0 || len(vecs[0]) == 0) {
		err = ragerrors.New(ragerrors.ErrCodeEmbeddingFailed, "ollama returned an empty embedding", nil)
	}
	if err != nil {
		pool.CloseIdleConnections()
		return nil, fmt.Errorf("detect embedding dimensions: %w", err)
	}
	e.dims = len(vecs[0])
	return e, nil
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in requests of at most BatchSize texts. Blank
// texts are not sent; they get zero vectors.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.closed.Load() {
		return nil, errEmbedderClosed
	}

	out := make([][]float32, len(texts))
	var send []int
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			out[i] = make([]float32, e.dims)
			continue
		}
		send = append(send, i)
	}

	for len(send) > 0 {
		n := min(len(send), e.cfg.BatchSize)
		part := make([]string, n)
		for j, i := range send[:n] {
			part[j] = texts[i]
		}

		vecs, err := e.request(ctx, part)
		if err != nil {
			return nil, err
		}
		if len(vecs) != n {
			return nil, ragerrors.New(ragerrors.ErrCodeEmbeddingFailed,
				fmt.Sprintf("ollama returned %d embeddings for %d inputs", len(vecs), n), nil)
		}
		for j, v := range vecs {
			if len(v) != e.dims {
				return nil, ragerrors.New(ragerrors.ErrCodeDimensionMismatch,
					fmt.Sprintf("ollama returned dimension %d, expected %d", len(v), e.dims), nil)
			}
			out[send[j]] = v
		}
		send = send[n:]
	}
	return out, nil
}

// request embeds texts in one call, with retries and the breaker.
func (e *OllamaEmbedder) request(ctx context.Context, texts []string) ([][]float32, error) {
	attempt := 0
	return ragerrors.RetryWithResult(ctx, e.retry, func() ([][]float32, error) {
		attempt++
		var vecs [][]float32
		err := e.breaker.Execute(func() error {
			callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
			defer cancel()
			var err error
			vecs, err = e.post(callCtx, texts)
			return err
		})
		if err != nil {
			slog.Debug("embedding_attempt_failed",
				slog.Int("attempt", attempt),
				slog.Int("texts", len(texts)),
				slog.String("breaker", e.breaker.State().String()),
				slog.String("error", err.Error()))
		}
		return vecs, err
	})
}

func (e *OllamaEmbedder) post(ctx context.Context, texts []string) ([][]float32, error) {
	body := embedRequest{Model: e.cfg.Model, Input: texts, Truncate: true}
	if len(texts) == 1 {
		body.Input = texts[0]
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode embed request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Host+"/api/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var res OllamaEmbedResponse
	if err := e.do(req, &res); err != nil {
		return nil, err
	}

	vecs := make([][]float32, len(res.Embeddings))
	for i, raw := range res.Embeddings {
		v := make([]float32, len(raw))
		for j, x := range raw {
			v[j] = float32(x)
		}
		vecs[i] = store.Normalize(v)
	}
	return vecs, nil
}

// do sends req and decodes a 200 response into dst. Other statuses are
// classified so that only 429 and 5xx are retried.
func (e *OllamaEmbedder) do(req *http.Request, dst any) error {
	resp, err := e.client.Do(req)
	if err != nil {
		return ragerrors.New(ragerrors.ErrCodeNetworkUnavailable, "ollama request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return statusError(resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return ragerrors.New(ragerrors.ErrCodeEmbeddingFailed, "decode ollama response", err)
	}
	return nil
}

func statusError(status int, detail string) error {
	msg := fmt.Sprintf("ollama returned status %d: %s", status, detail)
	code := ragerrors.ErrCodeEmbeddingFailed
	switch {
	case status == http.StatusTooManyRequests:
		code = ragerrors.ErrCodeRateLimited
	case status >= 500:
		code = ragerrors.ErrCodeNetworkUnavailable
	}
	return ragerrors.New(code, msg, nil)
}

func logBreakerChange(name string, from, to ragerrors.State) {
	level := slog.LevelInfo
	if to == ragerrors.StateOpen {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "embedding_breaker_state",
		slog.String("breaker", name),
		slog.String("from", from.String()),
		slog.String("to", to.String()))
}

func (e *OllamaEmbedder) Dimensions() int   { return e.dims }
func (e *OllamaEmbedder) TokenLimit() int   { return e.cfg.TokenLimit }
func (e *OllamaEmbedder) ModelName() string { return e.cfg.Model }

// Available reports whether the server answers /api/tags within five
// seconds and lists the configured model under any tag.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	if e.closed.Load() {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.Host+"/api/tags", nil)
	if err != nil {
		return false
	}
	var list OllamaModelListResponse
	if err := e.do(req, &list); err != nil {
		return false
	}
	want := modelBase(e.cfg.Model)
	for _, m := range list.Models {
		if modelBase(m.Name) == want {
			return true
		}
	}
	return false
}

// modelBase drops the tag: "nomic-embed-text:latest" -> "nomic-embed-text".
func modelBase(name string) string {
	base, _, _ := strings.Cut(strings.ToLower(name), ":")
	return base
}

// Close drops idle connections. Later calls fail with errEmbedderClosed.
func (e *OllamaEmbedder) Close() error {
	if e.closed.CompareAndSwap(false, true) {
		e.pool.CloseIdleConnections()
	}
	return nil
}
