package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches directory trees with fsnotify, falling back to polling
// when fsnotify cannot be created. Events are debounced into batches.
type Watcher struct {
	opts        Options
	logger      *slog.Logger
	fsWatcher   *fsnotify.Watcher
	pollWatcher *PollingWatcher
	debouncer   *Debouncer
	ruleFiles   map[string]struct{}
	events      chan []FileEvent
	errors      chan error
	stopCh      chan struct{}
	wg          sync.WaitGroup

	mu      sync.RWMutex
	started bool
	stopped bool

	droppedBatches atomic.Uint64
}

// New creates a watcher. fsnotify is tried first unless opts.ForcePolling
// is set.
func New(opts Options) (*Watcher, error) {
	opts = opts.WithDefaults()

	w := &Watcher{
		opts:      opts,
		logger:    opts.Logger,
		ruleFiles: make(map[string]struct{}, len(opts.IgnoreFileNames)),
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}
	for _, name := range opts.IgnoreFileNames {
		w.ruleFiles[name] = struct{}{}
	}
	w.debouncer = NewDebouncer(opts.DebounceWindow, 16, w.overflow)

	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			w.fsWatcher = fsw
			return w, nil
		}
		w.logger.Warn("fsnotify_unavailable",
			slog.String("error", err.Error()),
			slog.String("fallback", "polling"))
	}
	w.pollWatcher = NewPollingWatcher(opts.PollInterval, opts.Filter, w.logger)
	return w, nil
}

// Start registers every non-excluded directory under roots and begins
// delivering events in the background. A directory that cannot be
// registered is logged and skipped; Start fails only if nothing could be
// registered.
func (w *Watcher) Start(ctx context.Context, roots []string) error {
	w.mu.Lock()
	if w.started || w.stopped {
		w.mu.Unlock()
		return errors.New("watcher already started or stopped")
	}
	w.started = true
	w.mu.Unlock()

	if w.fsWatcher == nil {
		if err := w.pollWatcher.Start(ctx, roots); err != nil {
			return err
		}
		w.wg.Add(2)
		go w.forwardPolled(ctx)
		go w.forwardDebounced(ctx)
		return nil
	}

	registered := 0
	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return fmt.Errorf("resolve absolute path: %w", err)
		}
		registered += w.addRecursive(abs)
	}
	if registered == 0 {
		return fmt.Errorf("no watchable directories among %d roots", len(roots))
	}

	w.wg.Add(2)
	go w.loop(ctx)
	go w.forwardDebounced(ctx)
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				w.closedExternally()
				return
			}
			w.handleFsnotifyEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				w.closedExternally()
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.overflow(nil)
				continue
			}
			w.emitError(err)
		}
	}
}

// closedExternally treats a watch service closed underneath us as a clean
// shutdown.
func (w *Watcher) closedExternally() {
	w.mu.RLock()
	stopped := w.stopped
	w.mu.RUnlock()
	if stopped {
		return
	}
	w.logger.Info("watch_service_closed")
	go func() { _ = w.Stop() }()
}

// handleFsnotifyEvent converts, filters and debounces one fsnotify event.
func (w *Watcher) handleFsnotifyEvent(event fsnotify.Event) {
	path := event.Name
	now := time.Now()

	if w.isRuleFile(path) && !event.Has(fsnotify.Chmod) {
		w.debouncer.Add(FileEvent{Path: path, Operation: OpIgnoreChange, Timestamp: now})
		return
	}

	switch {
	case event.Has(fsnotify.Remove):
		w.debouncer.Add(FileEvent{Path: path, Operation: OpDelete, Timestamp: now})
	case event.Has(fsnotify.Rename):
		w.debouncer.Add(FileEvent{Path: path, Operation: OpRename, Timestamp: now})
	case event.Has(fsnotify.Create):
		info, err := os.Lstat(path)
		if err != nil {
			return
		}
		isDir := info.IsDir()
		if w.excluded(path, isDir) {
			return
		}
		// Register the new subtree before its event is processed.
		if isDir {
			w.addRecursive(path)
		}
		w.debouncer.Add(FileEvent{Path: path, Operation: OpCreate, IsDir: isDir, Timestamp: now})
	case event.Has(fsnotify.Write):
		info, err := os.Lstat(path)
		if err != nil || info.IsDir() || w.excluded(path, false) {
			return
		}
		w.debouncer.Add(FileEvent{Path: path, Operation: OpModify, Timestamp: now})
	}
}

// forwardPolled feeds polling events through the same rule file handling
// and debouncer as fsnotify events.
func (w *Watcher) forwardPolled(ctx context.Context) {
	defer w.wg.Done()
	events := w.pollWatcher.Events()
	errs := w.pollWatcher.Errors()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if w.isRuleFile(event.Path) {
				event.Operation = OpIgnoreChange
			}
			w.debouncer.Add(event)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.emitError(err)
		}
	}
}

func (w *Watcher) forwardDebounced(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case events, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			if len(events) > 0 {
				w.emitEvents(events)
			}
		}
	}
}

// addRecursive registers dir and its non-excluded subdirectories and
// returns how many were registered.
func (w *Watcher) addRecursive(dir string) int {
	count := 0
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("watch_register_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			if d != nil && d.IsDir() && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && w.excluded(path, true) {
			return filepath.SkipDir
		}
		if err := w.fsWatcher.Add(path); err != nil {
			w.logger.Warn("watch_register_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			return nil
		}
		count++
		return nil
	})
	return count
}

func (w *Watcher) excluded(path string, isDir bool) bool {
	return w.opts.Filter != nil && w.opts.Filter.ShouldExclude(path, isDir, nil)
}

func (w *Watcher) isRuleFile(path string) bool {
	_, ok := w.ruleFiles[filepath.Base(path)]
	return ok
}

// emitEvents sends a batch to the output channel without blocking.
func (w *Watcher) emitEvents(events []FileEvent) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.stopped {
		return
	}
	select {
	case w.events <- events:
	default:
		go w.overflow(events)
	}
}

// overflow records lost events and reports ErrOverflow. It does not
// trigger a re-scan.
func (w *Watcher) overflow(lost []FileEvent) {
	count := w.droppedBatches.Add(1)
	w.logger.Warn("watch_overflow",
		slog.Int("batch_size", len(lost)),
		slog.Uint64("total_dropped_batches", count),
		slog.String("action", "re-scan recommended"))
	w.emitError(ErrOverflow)
}

// emitError sends an error to the error channel without blocking.
func (w *Watcher) emitError(err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.stopped {
		return
	}
	select {
	case w.errors <- err:
	default:
	}
}

// Stop stops the watcher and closes its channels. It is safe to call at
// any time and more than once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.mu.Unlock()

	var err error
	if w.fsWatcher != nil {
		err = w.fsWatcher.Close()
	}
	if w.pollWatcher != nil {
		_ = w.pollWatcher.Stop()
	}
	w.wg.Wait()
	w.debouncer.Stop()

	w.mu.Lock()
	close(w.events)
	close(w.errors)
	w.mu.Unlock()
	return err
}

// Events returns the channel of debounced event batches. It is closed by
// Stop.
func (w *Watcher) Events() <-chan []FileEvent {
	return w.events
}

// Errors returns the channel of non-fatal errors, including ErrOverflow.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Mode returns "fsnotify" or "polling".
func (w *Watcher) Mode() string {
	if w.fsWatcher != nil {
		return "fsnotify"
	}
	return "polling"
}

// DroppedBatches returns the number of event batches lost to overflow.
func (w *Watcher) DroppedBatches() uint64 {
	return w.droppedBatches.Load()
}
