// Package project opens every component of a ragindex project rooted at a
// directory: lock, embedder, state, stores, indexer, coordinator, progress
// fan-out and search engine.
package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/Aman-CERP/ragindex/internal/chunk"
	"github.com/Aman-CERP/ragindex/internal/config"
	"github.com/Aman-CERP/ragindex/internal/embed"
	ragerrors "github.com/Aman-CERP/ragindex/internal/errors"
	"github.com/Aman-CERP/ragindex/internal/events"
	"github.com/Aman-CERP/ragindex/internal/extract"
	"github.com/Aman-CERP/ragindex/internal/filter"
	"github.com/Aman-CERP/ragindex/internal/index"
	"github.com/Aman-CERP/ragindex/internal/search"
	"github.com/Aman-CERP/ragindex/internal/state"
	"github.com/Aman-CERP/ragindex/internal/store"
	"github.com/Aman-CERP/ragindex/internal/telemetry"
	"github.com/Aman-CERP/ragindex/internal/watcher"
	"github.com/Aman-CERP/ragindex/pkg/indexer"
)

// StateFileName is the state database inside the data directory.
const StateFileName = "state.db"

// queryStatsTopTerms is the number of terms reported by QueryStats.
const queryStatsTopTerms = 10

// Project holds the open components of one indexed project.
type Project struct {
	id       string
	root     string
	dataDir  string
	cfg      *config.Config
	readOnly bool
	logger   *slog.Logger

	lock        *Lock
	embedder    embed.Embedder
	state       *state.SQLiteStore
	vectors     store.VectorStore
	keywords    store.KeywordIndex
	indexer     *indexer.HybridIndexer
	coordinator *index.Coordinator
	broadcaster *events.Broadcaster
	publisher   *events.NATSPublisher
	engine      *search.Engine
	queries     *telemetry.QueryStats

	cancel    context.CancelFunc
	closeOnce sync.Once
	closeErr  error
}

// Option configures Open.
type Option func(*openOptions)

type openOptions struct {
	logger   *slog.Logger
	readOnly bool
	embedder embed.Embedder
}

// WithLogger sets the logger for every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *openOptions) { o.logger = l }
}

// ReadOnly opens the project without taking the lock. Indexing, watching
// and clearing are refused and stores are not written back on Close.
func ReadOnly() Option {
	return func(o *openOptions) { o.readOnly = true }
}

// WithEmbedder uses e instead of building one from configuration. The
// project takes ownership and closes it.
func WithEmbedder(e embed.Embedder) Option {
	return func(o *openOptions) { o.embedder = e }
}

// ID derives the stable project identifier from an absolute root.
func ID(absRoot string) string {
	return state.HashString(absRoot)[:16]
}

// Open opens the project rooted at root. On failure every component opened
// so far is closed again.
func Open(ctx context.Context, root string, cfg *config.Config, opts ...Option) (p *Project, err error) {
	o := openOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, ragerrors.New(ragerrors.ErrCodeInvalidPath, "cannot resolve project root", err)
	}
	if fi, statErr := os.Stat(absRoot); statErr != nil || !fi.IsDir() {
		return nil, ragerrors.New(ragerrors.ErrCodeInvalidPath,
			fmt.Sprintf("project root %s is not a directory", absRoot), statErr)
	}

	id := ID(absRoot)
	p = &Project{
		id:       id,
		root:     absRoot,
		dataDir:  cfg.DataDir(absRoot),
		cfg:      cfg,
		readOnly: o.readOnly,
		logger:   o.logger.With(slog.String("project", id)),
	}
	defer func() {
		if err != nil {
			_ = p.Close()
			p = nil
		}
	}()

	if err := p.acquireLock(); err != nil {
		return p, err
	}
	if err := p.openStores(ctx, o.embedder); err != nil {
		return p, err
	}
	if err := p.buildPipeline(); err != nil {
		return p, err
	}
	p.startEvents()

	p.engine, err = search.NewEngine(p.embedder, p.vectors, p.keywords,
		search.WithRoot(absRoot), search.WithLogger(p.logger))
	if err != nil {
		return p, err
	}
	p.queries = telemetry.New(telemetry.DefaultConfig())

	p.logger.Info("project_opened",
		slog.String("root", absRoot),
		slog.String("data_dir", p.dataDir),
		slog.String("model", p.embedder.ModelName()),
		slog.Bool("read_only", p.readOnly))
	return p, nil
}

func (p *Project) acquireLock() error {
	if p.readOnly {
		return nil
	}
	p.lock = NewLock(p.dataDir)
	ok, err := p.lock.TryLock()
	if err != nil {
		return ragerrors.New(ragerrors.ErrCodeLocked, "cannot lock project", err)
	}
	if !ok {
		return ragerrors.New(ragerrors.ErrCodeLocked,
			fmt.Sprintf("project %s is locked by another process", p.root), nil).
			WithDetail("lock", p.lock.Path()).
			WithSuggestion("stop the running 'ragindex watch' or 'ragindex serve', or use a read-only command")
	}
	return nil
}

func (p *Project) openStores(ctx context.Context, emb embed.Embedder) error {
	if emb == nil {
		var err error
		emb, err = embed.NewEmbedder(ctx, p.cfg.Embeddings, p.cfg.EmbedTimeout())
		if err != nil {
			return err
		}
	}
	p.embedder = emb

	if err := os.MkdirAll(p.dataDir, 0o755); err != nil {
		return ragerrors.New(ragerrors.ErrCodeFilePermission, "cannot create data directory", err).
			WithDetail("path", p.dataDir)
	}

	st, err := state.Open(filepath.Join(p.dataDir, StateFileName), p.cfg.Store.StateDriver)
	if err != nil {
		return ragerrors.New(ragerrors.ErrCodeStateFailed, "cannot open state store", err)
	}
	p.state = st

	p.vectors, err = store.NewVectorStore(ctx, store.VectorOptions{
		Backend:          p.cfg.Store.VectorBackend,
		DataDir:          p.dataDir,
		Dimensions:       emb.Dimensions(),
		QdrantAddr:       p.cfg.Store.QdrantAddr,
		QdrantCollection: p.cfg.Store.QdrantCollection,
		ReadOnly:         p.readOnly,
	})
	if err != nil {
		var dm store.ErrDimensionMismatch
		if errors.As(err, &dm) {
			return ragerrors.New(ragerrors.ErrCodeDimensionMismatch, "vector index was built with another model", err).
				WithSuggestion("run 'ragindex clear' and re-index, or restore the previous embeddings config")
		}
		return ragerrors.New(ragerrors.ErrCodeCorruptIndex, "cannot open vector store", err)
	}

	p.keywords, err = store.NewKeywordIndex(p.cfg.Store.KeywordBackend, p.dataDir, store.DefaultBM25Config())
	if err != nil {
		return ragerrors.New(ragerrors.ErrCodeCorruptIndex, "cannot open keyword index", err)
	}
	return nil
}

func (p *Project) buildPipeline() error {
	var err error
	p.indexer, err = indexer.NewHybridIndexer(p.id,
		indexer.WithEmbedder(p.embedder),
		indexer.WithVectorStore(p.vectors),
		indexer.WithKeywordIndex(p.keywords),
		indexer.WithStateStore(p.state),
		indexer.WithBatchSize(p.cfg.Indexing.BatchSize),
		indexer.WithLogger(p.logger),
	)
	if err != nil {
		return err
	}

	paths := p.cfg.Paths
	folders, err := filter.NewStandard(filter.Options{
		Boundary:       p.root,
		CustomPatterns: paths.Exclude,
		MaxFileSize:    p.cfg.Indexing.MaxFileSize,
		Logger:         p.logger,
	})
	if err != nil {
		return fmt.Errorf("folder filter: %w", err)
	}
	files, err := filter.NewStandard(filter.Options{
		Boundary:       p.root,
		CustomPatterns: paths.Exclude,
		MaxFileSize:    p.cfg.Indexing.MaxFileSize,
		Extensions:     paths.Extensions,
		Logger:         p.logger,
	})
	if err != nil {
		return fmt.Errorf("file filter: %w", err)
	}

	c := p.cfg.Chunking
	chunker := chunk.New(p.embedder.TokenLimit(), chunk.Config{
		MinChars:      c.MinChars,
		MaxChars:      c.MaxChars,
		MaxOverlap:    c.MaxOverlap,
		SafetyFactor:  c.SafetyFactor,
		CharsPerToken: c.CharsPerToken,
	}, chunk.WithLogger(p.logger))

	rc := index.RegistryConfig{
		FolderFilter: folders,
		FileFilter:   files,
		Extractor:    extract.NewFileExtractor(p.cfg.Indexing.MaxFileSize),
		Chunker:      chunker,
		Logger:       p.logger,
	}
	if len(paths.URLs) > 0 {
		rc.Fetcher = extract.NewURLFetcher()
	}
	registry, err := index.DefaultRegistry(rc)
	if err != nil {
		return err
	}

	watch := watcher.DefaultOptions()
	watch.DebounceWindow = p.cfg.DebounceDuration()
	watch.PollInterval = p.cfg.PollIntervalDuration()
	watch.Filter = folders
	watch.Logger = p.logger

	p.coordinator, err = index.NewCoordinator(index.CoordinatorConfig{
		ProjectID:     p.id,
		Sources:       index.SourcesFromConfig(p.root, paths),
		Registry:      registry,
		Indexer:       p.indexer,
		State:         p.state,
		Workers:       p.cfg.Indexing.Workers,
		ProgressEvery: p.cfg.Indexing.ProgressEvery,
		Watch:         watch,
		Logger:        p.logger,
	})
	return err
}

// startEvents fans progress out and, when configured, forwards it to NATS.
// An unreachable NATS server is logged and ignored.
func (p *Project) startEvents() {
	p.broadcaster = events.NewBroadcaster(p.coordinator.Progress(), p.logger)

	url := p.cfg.Events.NATSURL
	if url == "" || p.readOnly {
		return
	}
	pub, err := events.NewNATSPublisher(url, p.cfg.Events.Subject, p.id, p.root, p.logger)
	if err != nil {
		p.logger.Warn("progress_publisher_unavailable",
			slog.String("url", url),
			slog.String("error", err.Error()))
		return
	}
	p.publisher = pub

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	ch, _ := p.broadcaster.Subscribe(events.DefaultSubscriberBuffer)
	go pub.Forward(ctx, ch)
}

// ID returns the project identifier.
func (p *Project) ID() string { return p.id }

// Root returns the absolute project root.
func (p *Project) Root() string { return p.root }

// DataDir returns the directory holding indexes and state.
func (p *Project) DataDir() string { return p.dataDir }

// Config returns the configuration the project was opened with.
func (p *Project) Config() *config.Config { return p.cfg }

// ReadOnly reports whether the project was opened without the lock.
func (p *Project) ReadOnly() bool { return p.readOnly }

// Coordinator returns the indexing coordinator.
func (p *Project) Coordinator() *index.Coordinator { return p.coordinator }

// Progress returns the progress fan-out.
func (p *Project) Progress() *events.Broadcaster { return p.broadcaster }

// Embedder returns the project embedder.
func (p *Project) Embedder() embed.Embedder { return p.embedder }

func (p *Project) requireWritable(op string) error {
	if p.readOnly {
		return ragerrors.New(ragerrors.ErrCodeLocked, op+" needs a writable project", nil).
			WithSuggestion("open the project without read-only mode")
	}
	return nil
}

// Index runs an incremental indexing pass and reports whether it ended
// READY. The failure, if any, is in the progress snapshot.
func (p *Project) Index(ctx context.Context) (bool, error) {
	if err := p.requireWritable("indexing"); err != nil {
		return false, err
	}
	return p.coordinator.StartIndexing(ctx), nil
}

// Watch starts applying filesystem changes until StopWatching or Close.
func (p *Project) Watch(ctx context.Context) error {
	if err := p.requireWritable("watching"); err != nil {
		return err
	}
	return p.coordinator.StartWatching(ctx)
}

// StopWatching stops the watcher if it runs.
func (p *Project) StopWatching() {
	p.coordinator.StopWatching()
}

// Clear removes every segment, mapping and hash of the project.
func (p *Project) Clear(ctx context.Context) error {
	if err := p.requireWritable("clearing"); err != nil {
		return err
	}
	return p.coordinator.ClearAll(ctx)
}

// Search runs a query against both indexes. Answered queries are counted
// in the query statistics.
func (p *Project) Search(ctx context.Context, query string, opts search.Options) (*search.Results, error) {
	res, err := p.engine.Search(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	mode := opts.Mode
	if mode == "" {
		mode = search.ModeBoth
	}
	p.queries.Record(telemetry.Query{
		Text:     query,
		Mode:     string(mode),
		Keyword:  len(res.Keyword),
		Vector:   len(res.Vector),
		Degraded: res.Degraded(),
		Latency:  res.Took,
	})
	return res, nil
}

// QueryStats returns statistics about the queries answered by this process.
func (p *Project) QueryStats() telemetry.Snapshot {
	return p.queries.Snapshot(queryStatsTopTerms)
}

// Check compares mappings with both stores. With repair set, orphans are
// deleted; repairing needs a writable project.
func (p *Project) Check(ctx context.Context, repair bool) (*index.CheckResult, error) {
	result, err := index.CheckConsistency(ctx, p.id, p.state, p.vectors, p.keywords)
	if err != nil {
		return nil, err
	}
	if !repair || result.Consistent() {
		return result, nil
	}
	if err := p.requireWritable("repair"); err != nil {
		return result, err
	}
	if err := index.RepairOrphans(ctx, result, p.vectors, p.keywords); err != nil {
		return result, err
	}
	return result, p.indexer.Persist()
}

// Close releases every component in reverse order of opening. It is safe to
// call more than once.
func (p *Project) Close() error {
	p.closeOnce.Do(func() {
		var errs []error
		if p.coordinator != nil {
			p.coordinator.StopWatching()
		}
		if p.cancel != nil {
			p.cancel()
		}
		if p.broadcaster != nil {
			p.broadcaster.Close()
		}
		if p.publisher != nil {
			errs = append(errs, p.publisher.Close())
		}
		if p.keywords != nil {
			errs = append(errs, p.keywords.Close())
		}
		if p.vectors != nil {
			errs = append(errs, p.vectors.Close())
		}
		if p.state != nil {
			errs = append(errs, p.state.Close())
		}
		if p.embedder != nil {
			if c, ok := p.embedder.(*embed.CachedEmbedder); ok {
				st := c.Stats()
				p.logger.Debug("embedding_cache",
					slog.Int64("hits", st.Hits),
					slog.Int64("misses", st.Misses),
					slog.Int("entries", st.Entries))
			}
			errs = append(errs, p.embedder.Close())
		}
		if p.lock != nil {
			errs = append(errs, p.lock.Unlock())
		}
		p.closeErr = errors.Join(errs...)
		if p.closeErr != nil {
			p.logger.Warn("project_close_failed", slog.String("error", p.closeErr.Error()))
		}
	})
	return p.closeErr
}
