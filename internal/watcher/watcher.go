package watcher

import (
	"cmp"
	"errors"
	"log/slog"
	"time"

	"github.com/Aman-CERP/ragindex/internal/filter"
)

// Operation is the kind of change a FileEvent reports.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
	// OpRename is reported for the old name; the new name arrives as OpCreate.
	OpRename
	// OpIgnoreChange marks any change to an ignore rule file such as
	// .gitignore. The caller re-evaluates what is in scope.
	OpIgnoreChange
)

var opNames = [...]string{
	OpCreate:       "CREATE",
	OpModify:       "MODIFY",
	OpDelete:       "DELETE",
	OpRename:       "RENAME",
	OpIgnoreChange: "IGNORE_CHANGE",
}

func (op Operation) String() string {
	if op < 0 || int(op) >= len(opNames) {
		return "UNKNOWN"
	}
	return opNames[op]
}

// ErrOverflow is sent on Errors when events were lost to a full queue.
// Watching continues; the caller should re-scan.
var ErrOverflow = errors.New("watch event queue overflow, re-scan recommended")

// FileEvent is one debounced change.
type FileEvent struct {
	// Path is absolute.
	Path      string
	Operation Operation
	// IsDir is always false for deletions.
	IsDir     bool
	Timestamp time.Time
}

// Excluder decides which paths are outside the watch. *filter.Chain
// satisfies it.
type Excluder interface {
	ShouldExclude(path string, isDir bool, ctx *filter.Context) bool
}

// Options configures a watcher. Zero fields take the DefaultOptions value.
type Options struct {
	// DebounceWindow is how long the tree must stay quiet before a batch is
	// released.
	DebounceWindow time.Duration

	// PollInterval is the scan period of the polling fallback.
	PollInterval time.Duration

	// EventBufferSize is the number of batches Events can hold.
	EventBufferSize int

	// ForcePolling skips fsnotify entirely.
	ForcePolling bool

	// Filter prunes directories before registration and drops events for
	// excluded files. Nil watches everything.
	Filter Excluder

	// IgnoreFileNames are reported as OpIgnoreChange.
	IgnoreFileNames []string

	Logger *slog.Logger
}

// DefaultOptions returns a 300ms debounce window, 5s polling and room for
// 64 batches.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  300 * time.Millisecond,
		PollInterval:    5 * time.Second,
		EventBufferSize: 64,
		IgnoreFileNames: filter.DefaultIgnoreFileNames,
	}
}

// WithDefaults fills zero fields from DefaultOptions. Negative durations and
// sizes count as zero.
func (o Options) WithDefaults() Options {
	def := DefaultOptions()
	o.DebounceWindow = cmp.Or(max(o.DebounceWindow, 0), def.DebounceWindow)
	o.PollInterval = cmp.Or(max(o.PollInterval, 0), def.PollInterval)
	o.EventBufferSize = cmp.Or(max(o.EventBufferSize, 0), def.EventBufferSize)
	if o.IgnoreFileNames == nil {
		o.IgnoreFileNames = def.IgnoreFileNames
	}
	o.Logger = cmp.Or(o.Logger, slog.Default())
	return o
}
