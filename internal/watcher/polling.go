package watcher

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"
)

// PollingWatcher rescans its roots every interval and reports what changed
// between two scans. It stands in for fsnotify where that is unavailable.
type PollingWatcher struct {
	interval time.Duration
	filter   Excluder
	logger   *slog.Logger

	events chan FileEvent
	errors chan error

	mu      sync.Mutex
	roots   []string
	last    snapshot
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

// entry is what one scan records about a path.
type entry struct {
	modTime time.Time
	size    int64
	isDir   bool
}

type snapshot map[string]entry

// NewPollingWatcher returns a stopped watcher. A nil filter watches
// everything.
func NewPollingWatcher(interval time.Duration, f Excluder, logger *slog.Logger) *PollingWatcher {
	return &PollingWatcher{
		interval: interval,
		filter:   f,
		logger:   cmp.Or(logger, slog.Default()),
		events:   make(chan FileEvent, 256),
		errors:   make(chan error, 10),
	}
}

// Start takes a baseline scan and polls in the background until ctx ends
// or Stop is called. Unreadable roots are logged and skipped; Start fails
// only when none is usable.
func (p *PollingWatcher) Start(ctx context.Context, roots []string) error {
	usable := make([]string, 0, len(roots))
	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", root, err)
		}
		if info, err := os.Stat(abs); err != nil || !info.IsDir() {
			p.logger.Warn("watch_register_failed", slog.String("path", abs), slog.Any("error", err))
			continue
		}
		usable = append(usable, abs)
	}
	if len(usable) == 0 {
		return fmt.Errorf("no watchable directories among %d roots", len(roots))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped || p.done != nil {
		return errors.New("polling watcher already started or stopped")
	}
	p.roots = usable
	p.last = p.scan()

	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.poll(ctx, p.done)
	return nil
}

func (p *PollingWatcher) poll(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	tick := time.NewTicker(p.interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			p.rescan()
		}
	}
}

// Stop ends polling and closes both channels. It may be called more than
// once and before Start.
func (p *PollingWatcher) Stop() error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	close(p.events)
	close(p.errors)
	return nil
}

func (p *PollingWatcher) Events() <-chan FileEvent { return p.events }

func (p *PollingWatcher) Errors() <-chan error { return p.errors }

// scan records every non-excluded path under the roots. Excluded and
// unreadable directories are not descended into.
func (p *PollingWatcher) scan() snapshot {
	snap := make(snapshot)
	for _, root := range p.roots {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if path == root {
				return nil
			}
			if err != nil || (p.filter != nil && p.filter.ShouldExclude(path, d.IsDir(), nil)) {
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if info, err := d.Info(); err == nil {
				snap[path] = entry{modTime: info.ModTime(), size: info.Size(), isDir: d.IsDir()}
			}
			return nil
		})
	}
	return snap
}

func (p *PollingWatcher) rescan() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	next := p.scan()
	for _, ev := range diffSnapshots(p.last, next, time.Now()) {
		p.emitLocked(ev)
	}
	p.last = next
}

// diffSnapshots lists the events that turn prev into next, ordered by
// path. Directories only ever appear as created or deleted.
func diffSnapshots(prev, next snapshot, at time.Time) []FileEvent {
	var events []FileEvent
	for path, now := range next {
		was, ok := prev[path]
		switch {
		case !ok:
			events = append(events, FileEvent{Path: path, Operation: OpCreate, IsDir: now.isDir, Timestamp: at})
		case !now.isDir && (was.size != now.size || !was.modTime.Equal(now.modTime)):
			events = append(events, FileEvent{Path: path, Operation: OpModify, Timestamp: at})
		}
	}
	for path := range prev {
		if _, ok := next[path]; !ok {
			events = append(events, FileEvent{Path: path, Operation: OpDelete, Timestamp: at})
		}
	}
	slices.SortFunc(events, func(a, b FileEvent) int { return cmp.Compare(a.Path, b.Path) })
	return events
}

// emitLocked sends ev without blocking. A full queue drops it and reports
// ErrOverflow. Must hold p.mu.
func (p *PollingWatcher) emitLocked(ev FileEvent) {
	select {
	case p.events <- ev:
		return
	default:
	}
	p.logger.Warn("watch_overflow",
		slog.String("path", ev.Path),
		slog.String("op", ev.Operation.String()))
	select {
	case p.errors <- ErrOverflow:
	default:
	}
}
