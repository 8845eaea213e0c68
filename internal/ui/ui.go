// Package ui renders indexing progress and index status in the terminal.
package ui

import (
	"context"
	"time"

	"github.com/Aman-CERP/ragindex/internal/index"
)

// Stage is the phase of an indexing run as shown to the user.
type Stage int

const (
	// StageScanning is enumeration before the total is known.
	StageScanning Stage = iota
	// StageIndexing covers extraction, chunking, embedding and storing.
	StageIndexing
	StageComplete
	StageFailed
)

var stageLabels = [...]struct{ name, icon string }{
	StageScanning: {"Scanning", "SCAN"},
	StageIndexing: {"Indexing", "INDEX"},
	StageComplete: {"Complete", "DONE"},
	StageFailed:   {"Failed", "FAIL"},
}

func (s Stage) known() bool { return s >= 0 && int(s) < len(stageLabels) }

func (s Stage) String() string {
	if !s.known() {
		return "Unknown"
	}
	return stageLabels[s].name
}

// Icon is the bracketed tag used by plain output.
func (s Stage) Icon() string {
	if !s.known() {
		return "???"
	}
	return stageLabels[s].icon
}

// StageOf maps a progress snapshot to a display stage.
func StageOf(p index.IndexProgress) Stage {
	switch {
	case p.Status == index.StatusReady:
		return StageComplete
	case p.Status == index.StatusFailed:
		return StageFailed
	case p.Status == index.StatusIndexing && p.TotalFiles > 0:
		return StageIndexing
	default:
		return StageScanning
	}
}

// EmbedderInfo describes the embedding backend of a run.
type EmbedderInfo struct {
	Backend    string
	Model      string
	Dimensions int
}

// CompletionStats summarizes a finished run.
type CompletionStats struct {
	Indexed  int
	Skipped  int
	Removed  int
	Failed   int
	Segments int
	Duration time.Duration
	// Error is the run failure, empty on success.
	Error    string
	Embedder EmbedderInfo
}

// NewCompletionStats summarizes a terminal progress snapshot.
func NewCompletionStats(p index.IndexProgress, embedder EmbedderInfo) CompletionStats {
	stats := CompletionStats{
		Indexed:  p.IndexedFiles,
		Skipped:  p.SkippedFiles,
		Removed:  p.RemovedFiles,
		Failed:   p.FailedFiles,
		Segments: p.Segments,
		Error:    p.Error,
		Embedder: embedder,
	}
	if !p.StartedAt.IsZero() && !p.FinishedAt.IsZero() {
		stats.Duration = p.FinishedAt.Sub(p.StartedAt)
	}
	if p.Status == index.StatusFailed && stats.Error == "" {
		stats.Error = "indexing failed"
	}
	return stats
}

// Succeeded reports whether the run completed.
func (c CompletionStats) Succeeded() bool {
	return c.Error == ""
}

// Renderer displays the progress of one indexing run.
type Renderer interface {
	Start(ctx context.Context) error
	UpdateProgress(p index.IndexProgress)
	Complete(stats CompletionStats)
	Stop() error
}

// Follow renders snapshots from ch until ctx is done or ch is closed.
func Follow(ctx context.Context, r Renderer, ch <-chan index.IndexProgress) {
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-ch:
			if !ok {
				return
			}
			r.UpdateProgress(p)
		}
	}
}
