package filter

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/ragindex/internal/gitignore"
)

// matcherCacheSize bounds the per-directory matcher cache.
const matcherCacheSize = 1000

// DefaultIgnoreFileNames are the rule files read in every directory, in order.
var DefaultIgnoreFileNames = []string{".gitignore", ".ragindexignore"}

// IgnoreFileFilter applies .gitignore-style rule files found in the path's
// directory and every ancestor up to the boundary. Rules accumulate walking
// upward; deeper files are evaluated last and so take precedence.
type IgnoreFileFilter struct {
	boundary string
	names    []string
	cache    *lru.Cache[string, *gitignore.Matcher]
}

// NewIgnoreFileFilter returns a filter rooted at boundary. An empty boundary
// uses the context root of each path.
func NewIgnoreFileFilter(boundary string, names ...string) (*IgnoreFileFilter, error) {
	cache, err := lru.New[string, *gitignore.Matcher](matcherCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create ignore matcher cache: %w", err)
	}
	if len(names) == 0 {
		names = DefaultIgnoreFileNames
	}
	if boundary != "" {
		if abs, err := filepath.Abs(boundary); err == nil {
			boundary = abs
		}
	}
	return &IgnoreFileFilter{boundary: boundary, names: names, cache: cache}, nil
}

func (f *IgnoreFileFilter) Name() string  { return "ignore-file" }
func (f *IgnoreFileFilter) Priority() int { return PriorityIgnoreFile }

// ShouldExclude implements Filter.
func (f *IgnoreFileFilter) ShouldExclude(path string, isDir bool, ctx *Context) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}

	base := f.boundary
	if base == "" || !isUnder(abs, base) {
		base = ctx.Root
	}
	if abs == base || !isUnder(abs, base) {
		return false
	}

	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return false
	}

	m := f.matcherFor(base, filepath.Dir(abs))
	return m.Match(filepath.ToSlash(rel), isDir)
}

// Invalidate drops cached matchers. Call it when a rule file changes.
func (f *IgnoreFileFilter) Invalidate() {
	f.cache.Purge()
}

// IsRuleFile reports whether path names one of the filter's rule files.
func (f *IgnoreFileFilter) IsRuleFile(path string) bool {
	name := filepath.Base(path)
	for _, n := range f.names {
		if name == n {
			return true
		}
	}
	return false
}

// matcherFor returns the cumulative matcher for dir: rule files from base
// down to dir, each scoped to its own directory.
func (f *IgnoreFileFilter) matcherFor(base, dir string) *gitignore.Matcher {
	key := base + "\x00" + dir
	if m, ok := f.cache.Get(key); ok {
		return m
	}

	var dirs []string
	for cur := dir; ; cur = filepath.Dir(cur) {
		dirs = append(dirs, cur)
		if cur == base || filepath.Dir(cur) == cur {
			break
		}
	}

	m := gitignore.New()
	for i := len(dirs) - 1; i >= 0; i-- {
		relBase, err := filepath.Rel(base, dirs[i])
		if err != nil {
			continue
		}
		relBase = filepath.ToSlash(relBase)
		if relBase == "." {
			relBase = ""
		}
		for _, name := range f.names {
			p := filepath.Join(dirs[i], name)
			if _, err := os.Stat(p); err != nil {
				continue
			}
			if err := m.AddFromFile(p, relBase); err != nil {
				slog.Warn("ignore_file_unreadable",
					slog.String("path", p),
					slog.String("error", err.Error()))
			}
		}
	}

	f.cache.Add(key, m)
	return m
}
