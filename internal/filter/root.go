package filter

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// rootCacheSize bounds the directory -> root cache.
const rootCacheSize = 4096

// Root is a detected project root.
type Root struct {
	Dir   string
	Types []string
}

// RootDetector finds the project root of a directory: the nearest ancestor
// holding a project marker, else the nearest one holding a VCS directory,
// else the boundary. Lookups never walk above the boundary.
type RootDetector struct {
	boundary string
	types    []ProjectType
	cache    *lru.Cache[string, Root]
}

// NewRootDetector returns a detector that stops at boundary. An empty
// boundary walks to the filesystem root.
func NewRootDetector(boundary string, types []ProjectType) (*RootDetector, error) {
	cache, err := lru.New[string, Root](rootCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create root cache: %w", err)
	}
	if boundary != "" {
		if abs, err := filepath.Abs(boundary); err == nil {
			boundary = abs
		}
	}
	return &RootDetector{boundary: boundary, types: types, cache: cache}, nil
}

// Boundary returns the outermost directory the detector considers.
func (d *RootDetector) Boundary() string {
	return d.boundary
}

// Detect returns the root owning dir.
func (d *RootDetector) Detect(dir string) Root {
	dir = filepath.Clean(dir)
	if r, ok := d.cache.Get(dir); ok {
		return r
	}

	var (
		visited []string
		vcsRoot string
		found   *Root
	)

	for cur := dir; ; {
		if r, ok := d.cache.Get(cur); ok {
			found = &r
			break
		}
		visited = append(visited, cur)

		if types := d.detectTypes(cur); len(types) > 0 {
			found = &Root{Dir: cur, Types: types}
			break
		}
		if vcsRoot == "" && hasVCS(cur) {
			vcsRoot = cur
		}

		parent := filepath.Dir(cur)
		if parent == cur || cur == d.boundary || !d.within(parent) {
			break
		}
		cur = parent
	}

	var root Root
	switch {
	case found != nil:
		root = *found
	case vcsRoot != "":
		root = Root{Dir: vcsRoot}
	case d.boundary != "" && d.within(dir):
		root = Root{Dir: d.boundary}
	default:
		root = Root{Dir: dir}
	}

	// Cache only directories at or below the chosen root; the ones above
	// it were probed on behalf of a deeper directory.
	for _, v := range visited {
		if isUnder(v, root.Dir) {
			d.cache.Add(v, root)
		}
	}
	return root
}

// Purge drops cached roots, e.g. after a marker file was created or removed.
func (d *RootDetector) Purge() {
	d.cache.Purge()
}

func (d *RootDetector) detectTypes(dir string) []string {
	var names []string
	for _, t := range d.types {
		for _, m := range t.Markers {
			if hasMarker(dir, m) {
				names = append(names, t.Name)
				break
			}
		}
	}
	return names
}

func (d *RootDetector) within(dir string) bool {
	return d.boundary == "" || isUnder(dir, d.boundary)
}

func hasMarker(dir, marker string) bool {
	if strings.ContainsAny(marker, "*?[") {
		matches, err := filepath.Glob(filepath.Join(dir, marker))
		return err == nil && len(matches) > 0
	}
	_, err := os.Stat(filepath.Join(dir, marker))
	return err == nil
}

func hasVCS(dir string) bool {
	for _, v := range VCSDirs {
		if info, err := os.Stat(filepath.Join(dir, v)); err == nil && info.IsDir() {
			return true
		}
	}
	return false
}

// isUnder reports whether path is dir or inside it.
func isUnder(path, dir string) bool {
	if path == dir {
		return true
	}
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}
