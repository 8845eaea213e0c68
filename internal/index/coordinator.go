// Package index orchestrates indexing passes for one project: it enumerates
// sources under the exclusion filters, diffs them against the persisted
// state, drives the hybrid indexer under bounded concurrency, removes
// deleted resources and reports progress. After a pass it can keep the
// index current from filesystem events.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	ragerrors "github.com/Aman-CERP/ragindex/internal/errors"
	"github.com/Aman-CERP/ragindex/internal/state"
	"github.com/Aman-CERP/ragindex/internal/store"
	"github.com/Aman-CERP/ragindex/internal/watcher"
	"github.com/Aman-CERP/ragindex/pkg/indexer"
)

const tracerName = "github.com/Aman-CERP/ragindex/internal/index"

// DefaultProgressEvery is how many finished resources trigger a progress
// event.
const DefaultProgressEvery = 10

// errFlushFailed aborts a run after the indexer reported a failed flush.
var errFlushFailed = errors.New("batch flush failed")

// CoordinatorConfig contains configuration for the Coordinator.
type CoordinatorConfig struct {
	// ProjectID is the unique identifier for this project.
	ProjectID string

	// Sources are the knowledge sources. Several sources of one kind are
	// merged.
	Sources []Source

	// Registry dispatches each source kind to its handler.
	Registry *Registry

	// Indexer is the write path.
	Indexer indexer.SegmentIndexer

	// State persists content hashes per source kind.
	State state.Store

	// Workers bounds concurrently processed resources. Defaults to NumCPU.
	Workers int

	// ProgressEvery emits a progress event every N resources.
	ProgressEvery int

	// Watch configures StartWatching.
	Watch watcher.Options

	Logger *slog.Logger
}

// Coordinator runs full passes and watcher-driven updates for one project.
// Runs are serialized: a watcher update waits for a running pass and vice
// versa.
type Coordinator struct {
	cfg      CoordinatorConfig
	logger   *slog.Logger
	progress *tracker
	sources  map[state.SourceType][]string
	kinds    []state.SourceType

	// runMu serializes passes, watcher updates and ClearAll.
	runMu sync.Mutex
	// known caches the persisted hashes; guarded by runMu.
	known map[state.SourceType]map[string]string

	watchMu sync.Mutex
	watch   *watchSession
}

type watchSession struct {
	w      *watcher.Watcher
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCoordinator creates a coordinator. Every source kind must have a
// registered handler.
func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	switch {
	case cfg.ProjectID == "":
		return nil, ragerrors.ValidationError("project id is required", nil)
	case cfg.Indexer == nil:
		return nil, ragerrors.ValidationError("indexer is required", nil)
	case cfg.State == nil:
		return nil, ragerrors.ValidationError("state store is required", nil)
	case cfg.Registry == nil:
		return nil, ragerrors.ValidationError("source registry is required", nil)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = DefaultProgressEvery
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sources := make(map[state.SourceType][]string)
	var kinds []state.SourceType
	for _, s := range cfg.Sources {
		if !s.Kind.Valid() {
			return nil, ragerrors.New(ragerrors.ErrCodeUnknownSource,
				fmt.Sprintf("unknown source kind %q", s.Kind), nil)
		}
		if _, ok := cfg.Registry.Lookup(s.Kind); !ok {
			return nil, ragerrors.New(ragerrors.ErrCodeUnknownSource,
				fmt.Sprintf("no handler registered for %s", s.Kind), nil)
		}
		if _, ok := sources[s.Kind]; !ok {
			kinds = append(kinds, s.Kind)
		}
		sources[s.Kind] = append(sources[s.Kind], s.Targets...)
	}

	return &Coordinator{
		cfg:      cfg,
		logger:   logger.With(slog.String("project", cfg.ProjectID)),
		progress: newTracker(cfg.ProgressEvery),
		sources:  sources,
		kinds:    kinds,
	}, nil
}

// Progress returns the progress stream. Events are dropped oldest-first
// when the reader falls behind; Snapshot always has the latest state.
func (c *Coordinator) Progress() <-chan IndexProgress {
	return c.progress.ch
}

// Snapshot returns the current progress.
func (c *Coordinator) Snapshot() IndexProgress {
	return c.progress.snapshot()
}

// StartIndexing runs a full incremental pass and reports whether it ended
// READY. Failures are reported through the progress error.
func (c *Coordinator) StartIndexing(ctx context.Context) bool {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return c.runLocked(ctx)
}

// plan is the per-kind working set of a pass.
type plan struct {
	kind     state.SourceType
	handler  Handler
	previous map[string]string
	ids      []string

	mu      sync.Mutex
	next    map[string]string
	touched []string
}

// touch records that the stored segments of id are about to change.
func (p *plan) touch(id string) {
	p.mu.Lock()
	p.touched = append(p.touched, id)
	p.mu.Unlock()
}

func (p *plan) keep(id, hash string) {
	p.mu.Lock()
	p.next[id] = hash
	p.mu.Unlock()
}

// keepPrevious carries the last-known hash forward, if any.
func (p *plan) keepPrevious(id string) {
	if h, ok := p.previous[id]; ok {
		p.keep(id, h)
	}
}

// must hold c.runMu
func (c *Coordinator) runLocked(ctx context.Context) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("indexing_panic", slog.Any("panic", r))
			c.progress.finish(ragerrors.New(ragerrors.ErrCodeInternal, fmt.Sprint(r), nil))
			ok = false
		}
	}()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "index.run")
	defer span.End()
	span.SetAttributes(attribute.String("project.id", c.cfg.ProjectID))

	c.progress.begin(0)
	c.logger.Info("indexing_started", slog.Int("workers", c.cfg.Workers))
	c.discardPending()

	var plans []*plan
	fail := func(err error) bool {
		c.discardPending()
		c.forgetTouched(ctx, plans)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p := c.progress.finish(err)
		c.logger.Error("indexing_failed",
			slog.Int("processed", p.ProcessedFiles),
			slog.String("error", err.Error()))
		return false
	}

	// 1. previous state and enumeration
	total := 0
	for _, kind := range c.kinds {
		h, _ := c.cfg.Registry.Lookup(kind)
		prev, err := c.cfg.State.LoadState(ctx, c.cfg.ProjectID, kind)
		if err != nil {
			return fail(ragerrors.New(ragerrors.ErrCodeStateFailed, "load state", err))
		}
		ids := h.Enumerate(ctx, c.sources[kind])
		plans = append(plans, &plan{
			kind:     kind,
			handler:  h,
			previous: prev,
			ids:      ids,
			next:     make(map[string]string, len(ids)),
		})
		total += len(ids)
	}
	c.progress.setTotal(total)
	span.SetAttributes(attribute.Int("resources.total", total))

	// 2. bounded per-resource processing
	sem := semaphore.NewWeighted(int64(c.cfg.Workers))
	g, gctx := errgroup.WithContext(ctx)
dispatch:
	for _, p := range plans {
		for _, id := range p.ids {
			if err := sem.Acquire(gctx, 1); err != nil {
				break dispatch
			}
			g.Go(func() error {
				defer sem.Release(1)
				return c.processResource(gctx, p, id)
			})
		}
	}
	if err := g.Wait(); err != nil {
		return fail(ragerrors.New(ragerrors.ErrCodeFlushFailed, "indexing aborted", err))
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	// 3. deletions
	removed := 0
	for _, p := range plans {
		for _, id := range state.Deleted(p.previous, setOf(p.ids)) {
			if err := c.cfg.Indexer.RemoveResource(ctx, id); err != nil {
				c.logger.Warn("resource_remove_failed",
					slog.String("resource", id),
					slog.String("error", err.Error()))
				p.keepPrevious(id)
				continue
			}
			removed++
		}
	}
	removed += c.removeStrays(ctx, plans)
	c.progress.removed(removed)

	// 4. flush, persist stores, then state
	if !c.cfg.Indexer.FlushRemaining(ctx) {
		return fail(ragerrors.New(ragerrors.ErrCodeFlushFailed, errFlushFailed.Error(), nil))
	}
	if err := c.persist(); err != nil {
		return fail(ragerrors.New(ragerrors.ErrCodeIndexFailed, "persist index", err))
	}
	known := make(map[state.SourceType]map[string]string, len(plans))
	for _, p := range plans {
		if err := c.cfg.State.SaveState(ctx, c.cfg.ProjectID, p.kind, p.next); err != nil {
			return fail(ragerrors.New(ragerrors.ErrCodeStateFailed, "save state", err))
		}
		known[p.kind] = p.next
	}
	c.known = known

	final := c.progress.finish(nil)
	span.SetAttributes(
		attribute.Int("resources.indexed", final.IndexedFiles),
		attribute.Int("resources.skipped", final.SkippedFiles),
		attribute.Int("resources.removed", final.RemovedFiles),
	)
	c.logger.Info("indexing_complete",
		slog.Int("total", final.TotalFiles),
		slog.Int("indexed", final.IndexedFiles),
		slog.Int("skipped", final.SkippedFiles),
		slog.Int("failed", final.FailedFiles),
		slog.Int("removed", final.RemovedFiles),
		slog.Int("segments", final.Segments),
		slog.Duration("duration", final.FinishedAt.Sub(final.StartedAt)))
	return true
}

// processResource hashes, loads and feeds one resource. It returns an
// error only when the run must abort; resource-level failures are logged
// and recorded.
func (c *Coordinator) processResource(ctx context.Context, p *plan, id string) error {
	hash, err := p.handler.Signature(ctx, id)
	if err != nil {
		c.resourceFailed(id, "hash", err)
		p.keepPrevious(id)
		return nil
	}
	if state.Classify(p.previous, id, hash) == state.StatusUnchanged {
		p.keep(id, hash)
		c.progress.record(OutcomeSkip, 0)
		return nil
	}

	out := p.handler.Load(ctx, id)
	if out.Kind == OutcomeFail {
		c.resourceFailed(id, "load", out.Err)
		p.keepPrevious(id)
		return nil
	}

	p.touch(id)
	n, err := c.replace(ctx, id, out)
	if err != nil {
		if errors.Is(err, errFlushFailed) {
			return err
		}
		c.resourceFailed(id, "remove", err)
		p.keepPrevious(id)
		return nil
	}
	p.keep(id, hash)
	c.progress.record(out.Kind, n)
	return nil
}

// replace drops whatever is stored for id and queues out's segments in
// chunk order. It also runs for new resources, so segments left by an
// aborted run are replaced rather than duplicated.
func (c *Coordinator) replace(ctx context.Context, id string, out Outcome) (int, error) {
	if err := c.cfg.Indexer.RemoveResource(ctx, id); err != nil {
		return 0, err
	}
	if out.Kind != OutcomeOK {
		c.logger.Debug("resource_skipped",
			slog.String("resource", id),
			slog.String("reason", out.Reason))
		return 0, nil
	}

	segs := slices.Clone(out.Segments)
	slices.SortStableFunc(segs, func(a, b store.Segment) int {
		return a.ChunkIndex() - b.ChunkIndex()
	})
	for _, seg := range segs {
		if !c.cfg.Indexer.AddSegmentToBatch(ctx, seg, id) {
			return 0, fmt.Errorf("%w: while indexing %s", errFlushFailed, id)
		}
	}
	return len(segs), nil
}

// discardPending drops segments queued by an earlier failed flush. Their
// resources were not recorded in state, so they are processed again.
func (c *Coordinator) discardPending() {
	if n := c.cfg.Indexer.DiscardPending(); n > 0 {
		c.logger.Warn("pending_segments_discarded", slog.Int("segments", n))
	}
}

// forgetTouched deletes the saved hash of every resource a failed pass
// started to replace, so the next pass reprocesses it even if its content
// is back to the saved version.
func (c *Coordinator) forgetTouched(ctx context.Context, plans []*plan) {
	ctx = context.WithoutCancel(ctx)
	for _, p := range plans {
		p.mu.Lock()
		touched := slices.Clone(p.touched)
		p.mu.Unlock()
		for _, id := range touched {
			if _, ok := p.previous[id]; !ok {
				continue
			}
			if err := c.cfg.State.DeleteHash(ctx, c.cfg.ProjectID, p.kind, id); err != nil {
				c.logger.Warn("hash_forget_failed",
					slog.String("resource", id),
					slog.String("error", err.Error()))
			}
		}
	}
}

// removeStrays removes resources that still have segment mappings but are
// neither enumerated nor in the saved state. An aborted pass can leave
// them behind when a batch was flushed before the failure.
func (c *Coordinator) removeStrays(ctx context.Context, plans []*plan) int {
	mappings, err := c.cfg.State.AllMappings(ctx, c.cfg.ProjectID)
	if err != nil {
		c.logger.Warn("stray_scan_failed", slog.String("error", err.Error()))
		return 0
	}
	known := make(map[string]struct{})
	for _, p := range plans {
		for _, id := range p.ids {
			known[id] = struct{}{}
		}
	}
	// Saved hashes of every kind count, including kinds no longer configured.
	for _, kind := range []state.SourceType{state.SourceFolders, state.SourceFiles, state.SourceURLs} {
		hashes, err := c.cfg.State.LoadState(ctx, c.cfg.ProjectID, kind)
		if err != nil {
			c.logger.Warn("stray_scan_failed", slog.String("error", err.Error()))
			return 0
		}
		for id := range hashes {
			known[id] = struct{}{}
		}
	}
	strays := make(map[string]struct{})
	for _, m := range mappings {
		if _, ok := known[m.ResourceID]; !ok {
			strays[m.ResourceID] = struct{}{}
		}
	}

	removed := 0
	for _, id := range slices.Sorted(maps.Keys(strays)) {
		if err := c.cfg.Indexer.RemoveResource(ctx, id); err != nil {
			c.logger.Warn("resource_remove_failed",
				slog.String("resource", id),
				slog.String("error", err.Error()))
			continue
		}
		c.logger.Debug("stray_resource_removed", slog.String("resource", id))
		removed++
	}
	return removed
}

func (c *Coordinator) resourceFailed(id, stage string, err error) {
	c.progress.record(OutcomeFail, 0)
	attrs := append([]slog.Attr{
		slog.String("resource", id),
		slog.String("stage", stage),
	}, ragerrors.LogAttrs(err)...)
	c.logger.LogAttrs(context.Background(), slog.LevelWarn, "resource_failed", attrs...)
}

// persist saves stores that buffer writes, when the indexer supports it.
func (c *Coordinator) persist() error {
	if p, ok := c.cfg.Indexer.(interface{ Persist() error }); ok {
		return p.Persist()
	}
	return nil
}

// ClearAll removes every segment, mapping and hash of the project and
// returns to IDLE.
func (c *Coordinator) ClearAll(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	resources := make(map[string]struct{})
	mappings, err := c.cfg.State.AllMappings(ctx, c.cfg.ProjectID)
	if err != nil {
		return ragerrors.New(ragerrors.ErrCodeStateFailed, "load mappings", err)
	}
	for _, m := range mappings {
		resources[m.ResourceID] = struct{}{}
	}
	for _, kind := range []state.SourceType{state.SourceFolders, state.SourceFiles, state.SourceURLs} {
		hashes, err := c.cfg.State.LoadState(ctx, c.cfg.ProjectID, kind)
		if err != nil {
			return ragerrors.New(ragerrors.ErrCodeStateFailed, "load state", err)
		}
		for id := range hashes {
			resources[id] = struct{}{}
		}
	}

	var errs []error
	for id := range resources {
		if err := c.cfg.Indexer.RemoveResource(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.cfg.State.Clear(ctx, c.cfg.ProjectID); err != nil {
		errs = append(errs, fmt.Errorf("clear state: %w", err))
	}
	if err := c.persist(); err != nil {
		errs = append(errs, fmt.Errorf("persist index: %w", err))
	}
	c.known = nil

	if err := errors.Join(errs...); err != nil {
		return ragerrors.New(ragerrors.ErrCodeIndexFailed, "clear index", err)
	}
	c.progress.reset()
	c.logger.Info("index_cleared", slog.Int("resources", len(resources)))
	return nil
}

// StartWatching subscribes to filesystem changes under the folder roots
// and the directories of selected files. Calling it while already
// watching is a no-op.
func (c *Coordinator) StartWatching(ctx context.Context) error {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()

	if c.watch != nil {
		return nil
	}
	roots := c.watchRoots()
	if len(roots) == 0 {
		c.logger.Info("watch_skipped", slog.String("reason", "no local sources"))
		return nil
	}

	opts := c.cfg.Watch
	if opts.Logger == nil {
		opts.Logger = c.logger
	}
	w, err := watcher.New(opts)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithCancel(ctx)
	if err := w.Start(wctx, roots); err != nil {
		cancel()
		return err
	}

	s := &watchSession{w: w, cancel: cancel, done: make(chan struct{})}
	c.watch = s
	go c.consume(wctx, s)

	c.logger.Info("watch_started",
		slog.Int("roots", len(roots)),
		slog.String("mode", w.Mode()))
	return nil
}

// StopWatching stops the watcher. It is safe to call at any time; an
// update in progress completes first.
func (c *Coordinator) StopWatching() {
	c.watchMu.Lock()
	s := c.watch
	c.watch = nil
	c.watchMu.Unlock()

	if s == nil {
		return
	}
	s.cancel()
	if err := s.w.Stop(); err != nil {
		c.logger.Warn("watch_stop_failed", slog.String("error", err.Error()))
	}
	<-s.done
	c.logger.Info("watch_stopped")
}

func (c *Coordinator) watchRoots() []string {
	var roots []string
	roots = append(roots, c.sources[state.SourceFolders]...)
	for _, f := range c.sources[state.SourceFiles] {
		roots = append(roots, filepath.Dir(f))
	}
	for i, r := range roots {
		if abs, err := filepath.Abs(r); err == nil {
			roots[i] = abs
		}
	}
	slices.Sort(roots)
	return slices.Compact(roots)
}

func (c *Coordinator) consume(ctx context.Context, s *watchSession) {
	defer close(s.done)

	events := s.w.Events()
	errs := s.w.Errors()
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-events:
			if !ok {
				c.logger.Info("watch_closed")
				return
			}
			// The update runs to completion even if Stop is called meanwhile.
			c.HandleEvents(context.WithoutCancel(ctx), batch)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if errors.Is(err, watcher.ErrOverflow) {
				c.logger.Warn("rescan_recommended", slog.String("reason", err.Error()))
				continue
			}
			c.logger.Warn("watch_error", slog.String("error", err.Error()))
		}
	}
}

// HandleEvents applies a batch of filesystem events as one update and
// reports whether it ended READY. An ignore rule change triggers a full
// incremental pass after the batch.
func (c *Coordinator) HandleEvents(ctx context.Context, events []watcher.FileEvent) bool {
	if len(events) == 0 {
		return true
	}
	c.runMu.Lock()
	defer c.runMu.Unlock()

	c.progress.begin(len(events))
	rescan := false
	var runErr error

	for _, ev := range events {
		var err error
		switch ev.Operation {
		case watcher.OpIgnoreChange:
			rescan = true
			c.progress.record(OutcomeSkip, 0)
			continue
		case watcher.OpDelete, watcher.OpRename:
			err = c.removePath(ctx, ev.Path)
		default:
			if ev.IsDir {
				err = c.updateDir(ctx, ev.Path)
			} else {
				err = c.updateResource(ctx, ev.Path)
			}
		}
		if err != nil {
			runErr = err
			break
		}
	}

	if runErr == nil && !c.cfg.Indexer.FlushRemaining(ctx) {
		runErr = ragerrors.New(ragerrors.ErrCodeFlushFailed, errFlushFailed.Error(), nil)
	}
	if runErr == nil {
		if err := c.persist(); err != nil {
			runErr = ragerrors.New(ragerrors.ErrCodeIndexFailed, "persist index", err)
		}
	}
	p := c.progress.finish(runErr)
	if runErr != nil {
		c.discardPending()
		c.logger.Error("watch_update_failed",
			slog.Int("events", len(events)),
			slog.String("error", runErr.Error()))
		return false
	}
	c.logger.Debug("watch_update_complete",
		slog.Int("events", len(events)),
		slog.Int("indexed", p.IndexedFiles),
		slog.Int("removed", p.RemovedFiles))

	if rescan {
		c.logger.Info("ignore_rules_changed")
		c.cfg.Registry.refresh()
		return c.runLocked(ctx)
	}
	return true
}

// must hold c.runMu
func (c *Coordinator) knownFor(ctx context.Context, kind state.SourceType) (map[string]string, error) {
	if m, ok := c.known[kind]; ok {
		return m, nil
	}
	m, err := c.cfg.State.LoadState(ctx, c.cfg.ProjectID, kind)
	if err != nil {
		return nil, ragerrors.New(ragerrors.ErrCodeStateFailed, "load state", err)
	}
	if c.known == nil {
		c.known = make(map[state.SourceType]map[string]string)
	}
	c.known[kind] = m
	return m, nil
}

// ownerOf returns the local source kind that covers path.
func (c *Coordinator) ownerOf(path string) (state.SourceType, bool) {
	for _, f := range c.sources[state.SourceFiles] {
		if abs, err := filepath.Abs(f); err == nil && abs == path {
			return state.SourceFiles, true
		}
	}
	for _, root := range c.sources[state.SourceFolders] {
		if abs, err := filepath.Abs(root); err == nil && within(abs, path) {
			return state.SourceFolders, true
		}
	}
	return "", false
}

// updateDir indexes the non-excluded files of a newly visible directory.
func (c *Coordinator) updateDir(ctx context.Context, dir string) error {
	if _, ok := c.ownerOf(dir); !ok {
		return nil
	}
	h, ok := c.cfg.Registry.Lookup(state.SourceFolders)
	if !ok {
		return nil
	}
	for _, id := range h.Enumerate(ctx, []string{dir}) {
		if err := c.updateResource(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// updateResource re-indexes one file if its hash changed. It returns an
// error only for batch-level failures.
func (c *Coordinator) updateResource(ctx context.Context, path string) error {
	kind, ok := c.ownerOf(path)
	if !ok {
		return nil
	}
	h, _ := c.cfg.Registry.Lookup(kind)
	known, err := c.knownFor(ctx, kind)
	if err != nil {
		return err
	}

	hash, err := h.Signature(ctx, path)
	if err != nil {
		c.resourceFailed(path, "hash", err)
		return nil
	}
	if state.Classify(known, path, hash) == state.StatusUnchanged {
		c.progress.record(OutcomeSkip, 0)
		return nil
	}

	out := h.Load(ctx, path)
	if out.Kind == OutcomeFail {
		c.resourceFailed(path, "load", out.Err)
		return nil
	}
	n, err := c.replace(ctx, path, out)
	if err != nil {
		if errors.Is(err, errFlushFailed) {
			return err
		}
		c.resourceFailed(path, "remove", err)
		return nil
	}
	// The hash is recorded only once the segments are durable.
	if !c.cfg.Indexer.FlushRemaining(ctx) {
		// The old segments are gone; make the next event or pass redo it.
		if err := c.cfg.State.DeleteHash(ctx, c.cfg.ProjectID, kind, path); err != nil {
			c.logger.Warn("hash_forget_failed",
				slog.String("resource", path),
				slog.String("error", err.Error()))
		}
		delete(known, path)
		return fmt.Errorf("%w: while indexing %s", errFlushFailed, path)
	}
	if err := c.cfg.State.PutHash(ctx, c.cfg.ProjectID, kind, path, hash); err != nil {
		return ragerrors.New(ragerrors.ErrCodeStateFailed, "save hash", err)
	}
	known[path] = hash
	c.progress.record(out.Kind, n)
	return nil
}

// removePath removes a deleted file, or every known file under a deleted
// directory.
func (c *Coordinator) removePath(ctx context.Context, path string) error {
	for _, kind := range []state.SourceType{state.SourceFolders, state.SourceFiles} {
		if _, ok := c.sources[kind]; !ok {
			continue
		}
		known, err := c.knownFor(ctx, kind)
		if err != nil {
			return err
		}
		var ids []string
		for id := range known {
			if id == path || within(path, id) {
				ids = append(ids, id)
			}
		}
		slices.Sort(ids)
		for _, id := range ids {
			if err := c.cfg.Indexer.RemoveResource(ctx, id); err != nil {
				c.resourceFailed(id, "remove", err)
				continue
			}
			if err := c.cfg.State.DeleteHash(ctx, c.cfg.ProjectID, kind, id); err != nil {
				return ragerrors.New(ragerrors.ErrCodeStateFailed, "delete hash", err)
			}
			delete(known, id)
			c.progress.removed(1)
		}
	}
	c.progress.record(OutcomeSkip, 0)
	return nil
}

// within reports whether path lies strictly inside dir.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == "." || rel == ".." {
		return false
	}
	return !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func setOf(ids []string) map[string]struct{} {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}
