package filter

import (
	"path"
	"path/filepath"
	"strings"
)

// MatchPattern reports whether the slash-separated relative path rel
// matches an exclude pattern.
//
// Patterns are matched segment-wise against every window of rel, so a
// directory pattern such as "node_modules/" or "target/classes" matches at
// any depth: as a prefix, a suffix or an interior run of segments. Each
// pattern segment may use path.Match globs ("*.pyc", "*.egg-info/").
// A trailing slash means the final segment must be a directory; leading
// "**/" and trailing "/**" are accepted and ignored.
func MatchPattern(rel string, isDir bool, pattern string) bool {
	rel = strings.Trim(filepath.ToSlash(rel), "/")
	if rel == "" || pattern == "" {
		return false
	}

	dirOnly := strings.HasSuffix(pattern, "/")
	p := strings.Trim(pattern, "/")
	p = strings.TrimPrefix(p, "**/")
	p = strings.TrimSuffix(p, "/**")
	if p == "" || p == "**" {
		return false
	}

	segs := strings.Split(rel, "/")
	psegs := strings.Split(p, "/")

	for i := 0; i+len(psegs) <= len(segs); i++ {
		last := i+len(psegs) == len(segs)
		if dirOnly && last && !isDir {
			continue
		}
		if segmentsMatch(segs[i:i+len(psegs)], psegs) {
			return true
		}
	}
	return false
}

func segmentsMatch(segs, psegs []string) bool {
	for i, ps := range psegs {
		ok, err := path.Match(ps, segs[i])
		if err != nil || !ok {
			return false
		}
	}
	return true
}

// matchAny reports whether rel matches any of patterns.
func matchAny(rel string, isDir bool, patterns []string) (string, bool) {
	for _, p := range patterns {
		if MatchPattern(rel, isDir, p) {
			return p, true
		}
	}
	return "", false
}
