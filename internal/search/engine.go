package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/ragindex/internal/embed"
	ragerrors "github.com/Aman-CERP/ragindex/internal/errors"
	"github.com/Aman-CERP/ragindex/internal/store"
	"github.com/Aman-CERP/ragindex/pkg/searcher"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// Engine runs keyword and vector search over the same corpus and returns
// both ranked lists. Safe for concurrent use.
type Engine struct {
	keyword *searcher.KeywordSearcher
	vector  *searcher.VectorSearcher
	root    string
	config  EngineConfig
	logger  *slog.Logger
}

// EngineOption configures the search engine.
type EngineOption func(*engineSetup)

type engineSetup struct {
	root        string
	config      EngineConfig
	logger      *slog.Logger
	queryPrefix string
}

// WithRoot sets the project root used to resolve scope filters.
func WithRoot(root string) EngineOption {
	return func(s *engineSetup) { s.root = root }
}

// WithConfig overrides the default limits.
func WithConfig(cfg EngineConfig) EngineOption {
	return func(s *engineSetup) { s.config = cfg }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(s *engineSetup) { s.logger = l }
}

// WithQueryPrefix sets an instruction prepended to queries before embedding.
func WithQueryPrefix(prefix string) EngineOption {
	return func(s *engineSetup) { s.queryPrefix = prefix }
}

// NewEngine creates a search engine over the given stores.
// Returns an error if any required dependency is nil.
func NewEngine(embedder embed.Embedder, vectors store.VectorStore, keywords store.KeywordIndex, opts ...EngineOption) (*Engine, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}
	if vectors == nil {
		return nil, fmt.Errorf("%w: vector store is required", ErrNilDependency)
	}
	if keywords == nil {
		return nil, fmt.Errorf("%w: keyword index is required", ErrNilDependency)
	}

	setup := engineSetup{config: DefaultEngineConfig(), logger: slog.Default()}
	for _, opt := range opts {
		opt(&setup)
	}
	if setup.config.DefaultLimit <= 0 {
		setup.config.DefaultLimit = DefaultEngineConfig().DefaultLimit
	}
	if setup.config.MaxLimit < setup.config.DefaultLimit {
		setup.config.MaxLimit = setup.config.DefaultLimit
	}

	ks, err := searcher.NewKeywordSearcher(searcher.WithKeywordIndex(keywords))
	if err != nil {
		return nil, err
	}
	vs, err := searcher.NewVectorSearcher(
		searcher.WithSearchEmbedder(embedder),
		searcher.WithSearchVectorStore(vectors),
		searcher.WithQueryPrefix(setup.queryPrefix),
	)
	if err != nil {
		return nil, err
	}

	return &Engine{
		keyword: ks,
		vector:  vs,
		root:    setup.root,
		config:  setup.config,
		logger:  setup.logger,
	}, nil
}

// Search runs the query on the paths selected by opts.Mode. When both run
// and one fails, the other's results are returned and the failure is
// reported in Results. It is an error only when every selected path fails.
func (e *Engine) Search(ctx context.Context, query string, opts Options) (*Results, error) {
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ragerrors.New(ragerrors.ErrCodeQueryEmpty, "search query is empty", nil).
			WithSuggestion("provide a non-empty query")
	}
	if err := ValidateOptions(opts); err != nil {
		return nil, err
	}
	opts = e.applyDefaults(opts)

	// Filters run after retrieval, so over-fetch when they can drop results.
	fetch := opts.Limit
	if opts.SourceType != "" || len(opts.Scopes) > 0 {
		fetch = opts.Limit * 2
	}

	kw, vec, kwErr, vecErr := e.parallelSearch(ctx, query, opts.Mode, fetch)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	res := &Results{Query: query}
	switch {
	case kwErr != nil && vecErr != nil:
		return nil, ragerrors.New(ragerrors.ErrCodeSearchFailed, "keyword and vector search failed",
			errors.Join(kwErr, vecErr))
	case kwErr != nil:
		if opts.Mode == ModeKeyword {
			return nil, ragerrors.New(ragerrors.ErrCodeSearchFailed, "keyword search failed", kwErr)
		}
		res.KeywordError = kwErr.Error()
		e.logger.Warn("keyword_search_failed", slog.String("error", kwErr.Error()))
	case vecErr != nil:
		if opts.Mode == ModeVector {
			return nil, ragerrors.New(ragerrors.ErrCodeSearchFailed, "vector search failed", vecErr)
		}
		res.VectorError = vecErr.Error()
		e.logger.Warn("vector_search_failed", slog.String("error", vecErr.Error()))
	}

	res.Keyword = truncate(ApplyFilters(kw, opts, e.root), opts.Limit)
	res.Vector = truncate(ApplyFilters(vec, opts, e.root), opts.Limit)
	res.Took = time.Since(start)

	e.logger.Debug("search_completed",
		slog.String("mode", string(opts.Mode)),
		slog.Int("keyword", len(res.Keyword)),
		slog.Int("vector", len(res.Vector)),
		slog.Duration("took", res.Took))
	return res, nil
}

// applyDefaults fills in default values for search options.
func (e *Engine) applyDefaults(opts Options) Options {
	if opts.Limit <= 0 {
		opts.Limit = e.config.DefaultLimit
	}
	if opts.Limit > e.config.MaxLimit {
		opts.Limit = e.config.MaxLimit
	}
	if opts.Mode == "" {
		opts.Mode = ModeBoth
	}
	return opts
}

// parallelSearch executes the selected searches concurrently. A failing
// side does not cancel the other.
func (e *Engine) parallelSearch(ctx context.Context, query string, mode Mode, limit int) (
	kw, vec []searcher.Result, kwErr, vecErr error,
) {
	var g errgroup.Group

	if mode != ModeVector {
		g.Go(func() error {
			kw, kwErr = e.keyword.Search(ctx, query, limit)
			return nil
		})
	}
	if mode != ModeKeyword {
		g.Go(func() error {
			vec, vecErr = e.vector.Search(ctx, query, limit)
			return nil
		})
	}
	_ = g.Wait()

	if kw == nil {
		kw = []searcher.Result{}
	}
	if vec == nil {
		vec = []searcher.Result{}
	}
	return kw, vec, kwErr, vecErr
}

func truncate(results []searcher.Result, limit int) []searcher.Result {
	if len(results) > limit {
		return results[:limit]
	}
	return results
}

func errInvalidMode(m Mode) error {
	return ragerrors.ValidationError(fmt.Sprintf("invalid search mode %q", m), nil).
		WithSuggestion("use one of: both, keyword, vector")
}

func errInvalidSourceType(s string) error {
	return ragerrors.ValidationError(fmt.Sprintf("invalid source type %q", s), nil).
		WithSuggestion("use one of: folders, files, urls")
}

func errNegativeLimit(n int) error {
	return ragerrors.ValidationError(fmt.Sprintf("limit must not be negative, got %d", n), nil)
}
