package watcher

import (
	"cmp"
	"maps"
	"slices"
	"sync"
	"time"
)

// Debouncer holds events until the watched tree has been quiet for one
// window, then emits them as a single batch with at most one event per path.
type Debouncer struct {
	mu     sync.Mutex
	window time.Duration
	held   map[string]FileEvent
	timer  *time.Timer
	closed bool

	out    chan []FileEvent
	onDrop func([]FileEvent)
}

// NewDebouncer returns a debouncer whose output holds up to buffer batches.
// onDrop receives batches that found the output full; nil discards them.
func NewDebouncer(window time.Duration, buffer int, onDrop func([]FileEvent)) *Debouncer {
	return &Debouncer{
		window: window,
		held:   make(map[string]FileEvent),
		out:    make(chan []FileEvent, cmp.Or(max(buffer, 0), 10)),
		onDrop: onDrop,
	}
}

// merge folds next into the event already held for the same path. The
// second result is false when the two cancel out.
//
//	CREATE then MODIFY   -> CREATE
//	CREATE then DELETE   -> dropped
//	DELETE then CREATE   -> MODIFY
//	IGNORE_CHANGE then * -> IGNORE_CHANGE
func merge(held, next FileEvent) (FileEvent, bool) {
	switch held.Operation {
	case OpIgnoreChange:
		return held, true
	case OpCreate:
		switch next.Operation {
		case OpDelete, OpRename:
			return FileEvent{}, false
		case OpModify:
			held.Timestamp = next.Timestamp
			return held, true
		}
	}
	if next.Operation == OpCreate && held.Operation != OpCreate {
		next.Operation = OpModify
	}
	return next, true
}

// Add records event and restarts the quiet window.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	if held, ok := d.held[event.Path]; ok {
		var keep bool
		if event, keep = merge(held, event); !keep {
			delete(d.held, held.Path)
		} else {
			d.held[event.Path] = event
		}
	} else {
		d.held[event.Path] = event
	}

	if d.timer == nil {
		d.timer = time.AfterFunc(d.window, d.release)
		return
	}
	d.timer.Reset(d.window)
}

// release sends everything held as one batch sorted by path.
func (d *Debouncer) release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || len(d.held) == 0 {
		return
	}

	batch := slices.SortedFunc(maps.Values(d.held), func(a, b FileEvent) int {
		return cmp.Compare(a.Path, b.Path)
	})
	clear(d.held)

	select {
	case d.out <- batch:
	default:
		if d.onDrop != nil {
			d.onDrop(batch)
		}
	}
}

// Output returns the channel of batches. It is closed by Stop.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.out
}

// Stop discards held events and closes the output. Later calls and later
// Adds are no-ops.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
	}
	clear(d.held)
	close(d.out)
}
