package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Aman-CERP/ragindex/internal/index"
)

// PlainRenderer outputs plain text progress (for CI/pipes). It writes a
// line only when the stage or processed count changes.
type PlainRenderer struct {
	mu        sync.Mutex
	out       io.Writer
	stage     Stage
	processed int
	started   bool
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(_ context.Context) error {
	return nil
}

// UpdateProgress implements Renderer.
func (r *PlainRenderer) UpdateProgress(p index.IndexProgress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stage := StageOf(p)
	if r.started && stage == r.stage && p.ProcessedFiles == r.processed {
		return
	}
	r.started = true
	r.stage = stage
	r.processed = p.ProcessedFiles

	switch stage {
	case StageScanning:
		_, _ = fmt.Fprintf(r.out, "[%s] discovering resources\n", stage.Icon())
	case StageIndexing:
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d - %d indexed, %d unchanged, %d failed\n",
			stage.Icon(), p.ProcessedFiles, p.TotalFiles, p.IndexedFiles, p.SkippedFiles, p.FailedFiles)
	}
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !stats.Succeeded() {
		_, _ = fmt.Fprintf(r.out, "Failed: %s\n", stats.Error)
		return
	}

	_, _ = fmt.Fprintf(r.out, "Complete: %d indexed, %d unchanged, %d removed, %d segments in %s",
		stats.Indexed, stats.Skipped, stats.Removed, stats.Segments, stats.Duration.Round(100*time.Millisecond))
	if stats.Failed > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d failed)", stats.Failed)
	}
	_, _ = fmt.Fprintln(r.out)

	if stats.Embedder.Backend != "" {
		_, _ = fmt.Fprintf(r.out, "Backend: %s (%s, %d dims)\n",
			stats.Embedder.Backend, stats.Embedder.Model, stats.Embedder.Dimensions)
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}

var _ Renderer = (*PlainRenderer)(nil)
