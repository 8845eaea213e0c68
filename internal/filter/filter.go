// Package filter decides which paths take part in indexing.
//
// A Chain evaluates independent Filters in ascending priority and stops at
// the first one that excludes the path. Order only affects cost: every
// exclusion is final.
package filter

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Priorities of the built-in filters. Cheap name checks run before filters
// that stat or read the file.
const (
	PriorityIgnoreFile  = 10
	PriorityProjectType = 20
	PriorityCustom      = 25
	PriorityExtension   = 30
	PrioritySize        = 40
	PriorityBinary      = 50
)

// Context describes the path being evaluated.
type Context struct {
	// Root is the detected project root owning the path.
	Root string
	// RelPath is the slash-separated path relative to Root.
	RelPath string
	// FileName is the last path element.
	FileName string
	// Ext is the lower-cased extension including the dot.
	Ext string
	// ProjectTypes are the names of the project types detected at Root.
	ProjectTypes []string
}

// Filter is one exclusion rule.
type Filter interface {
	Name() string
	Priority() int
	ShouldExclude(path string, isDir bool, ctx *Context) bool
}

// Chain runs filters in priority order.
type Chain struct {
	filters  []Filter
	detector *RootDetector
	logger   *slog.Logger
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithLogger sets the logger used for exclusion diagnostics.
func WithLogger(l *slog.Logger) ChainOption {
	return func(c *Chain) { c.logger = l }
}

// NewChain builds a chain from filters. The detector derives contexts for
// ShouldExcludePath.
func NewChain(detector *RootDetector, filters []Filter, opts ...ChainOption) *Chain {
	sorted := append([]Filter(nil), filters...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() < sorted[j].Priority()
	})

	c := &Chain{
		filters:  sorted,
		detector: detector,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Filters returns the filters in evaluation order.
func (c *Chain) Filters() []Filter {
	return append([]Filter(nil), c.filters...)
}

// ShouldExclude reports whether path is excluded. A nil ctx is derived.
func (c *Chain) ShouldExclude(path string, isDir bool, ctx *Context) bool {
	if ctx == nil {
		ctx = c.ContextFor(path)
	}
	for _, f := range c.filters {
		if f.ShouldExclude(path, isDir, ctx) {
			c.logger.Debug("path_excluded",
				slog.String("path", path),
				slog.String("filter", f.Name()))
			return true
		}
	}
	return false
}

// ShouldExcludePath stats path to learn whether it is a directory, then
// evaluates it. Paths that no longer exist are evaluated as files.
func (c *Chain) ShouldExcludePath(path string) bool {
	isDir := false
	if info, err := os.Stat(path); err == nil {
		isDir = info.IsDir()
	}
	return c.ShouldExclude(path, isDir, c.ContextFor(path))
}

// ContextFor derives the evaluation context of path.
func (c *Chain) ContextFor(path string) *Context {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	ctx := &Context{
		FileName: filepath.Base(abs),
		Ext:      strings.ToLower(filepath.Ext(abs)),
	}

	if c.detector == nil {
		ctx.Root = filepath.Dir(abs)
	} else {
		root := c.detector.Detect(filepath.Dir(abs))
		ctx.Root = root.Dir
		ctx.ProjectTypes = root.Types
	}

	if rel, err := filepath.Rel(ctx.Root, abs); err == nil && !strings.HasPrefix(rel, "..") {
		ctx.RelPath = filepath.ToSlash(rel)
	} else {
		ctx.RelPath = ctx.FileName
	}
	return ctx
}
