package index

import (
	"sync"
	"time"
)

// Status is the coordinator's indexing state.
type Status string

const (
	// StatusIdle means nothing has run since start or the last clear.
	StatusIdle Status = "IDLE"
	// StatusIndexing means a full pass or watcher update is running.
	StatusIndexing Status = "INDEXING"
	// StatusReady means the last run completed and was flushed.
	StatusReady Status = "READY"
	// StatusFailed means the last run was aborted.
	StatusFailed Status = "FAILED"
)

// progressBuffer is the capacity of the progress channel. When the reader
// falls behind, the oldest update is dropped.
const progressBuffer = 64

// IndexProgress is an immutable snapshot of indexing progress.
type IndexProgress struct {
	Status         Status    `json:"status"`
	TotalFiles     int       `json:"total_files"`
	ProcessedFiles int       `json:"processed_files"`
	IndexedFiles   int       `json:"indexed_files"`
	SkippedFiles   int       `json:"skipped_files"`
	FailedFiles    int       `json:"failed_files"`
	RemovedFiles   int       `json:"removed_files"`
	Segments       int       `json:"segments"`
	Error          string    `json:"error,omitempty"`
	StartedAt      time.Time `json:"started_at,omitzero"`
	FinishedAt     time.Time `json:"finished_at,omitzero"`
}

// Percent returns processed/total as a percentage.
func (p IndexProgress) Percent() float64 {
	if p.TotalFiles == 0 {
		return 0
	}
	return float64(p.ProcessedFiles) / float64(p.TotalFiles) * 100.0
}

// Done reports whether the snapshot is terminal for its run.
func (p IndexProgress) Done() bool {
	return p.Status == StatusReady || p.Status == StatusFailed
}

// tracker provides thread-safe progress accounting and emits every Nth
// update plus every state transition.
type tracker struct {
	mu      sync.Mutex
	cur     IndexProgress
	every   int
	updates int
	ch      chan IndexProgress
}

func newTracker(every int) *tracker {
	if every < 1 {
		every = 1
	}
	return &tracker{
		cur:   IndexProgress{Status: StatusIdle},
		every: every,
		ch:    make(chan IndexProgress, progressBuffer),
	}
}

func (t *tracker) begin(total int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cur = IndexProgress{
		Status:     StatusIndexing,
		TotalFiles: total,
		StartedAt:  time.Now(),
	}
	t.updates = 0
	t.emitLocked()
}

func (t *tracker) setTotal(total int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cur.TotalFiles = total
	t.emitLocked()
}

// record accounts one finished resource.
func (t *tracker) record(kind OutcomeKind, segments int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cur.ProcessedFiles++
	switch kind {
	case OutcomeOK:
		t.cur.IndexedFiles++
		t.cur.Segments += segments
	case OutcomeSkip:
		t.cur.SkippedFiles++
	case OutcomeFail:
		t.cur.FailedFiles++
	}

	t.updates++
	if t.updates%t.every == 0 {
		t.emitLocked()
	}
}

func (t *tracker) removed(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cur.RemovedFiles += n
}

// finish moves to READY, or FAILED when err is non-nil.
func (t *tracker) finish(err error) IndexProgress {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cur.Status = StatusReady
	t.cur.Error = ""
	if err != nil {
		t.cur.Status = StatusFailed
		t.cur.Error = err.Error()
	}
	t.cur.FinishedAt = time.Now()
	t.emitLocked()
	return t.cur
}

func (t *tracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cur = IndexProgress{Status: StatusIdle}
	t.updates = 0
	t.emitLocked()
}

func (t *tracker) snapshot() IndexProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cur
}

// must hold t.mu
func (t *tracker) emitLocked() {
	p := t.cur
	select {
	case t.ch <- p:
		return
	default:
	}
	// Full: drop the oldest update so the latest one is never lost.
	select {
	case <-t.ch:
	default:
	}
	select {
	case t.ch <- p:
	default:
	}
}
