package search

import (
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/ragindex/internal/store"
	"github.com/Aman-CERP/ragindex/pkg/searcher"
)

// FilterFunc checks if a search result matches filter criteria.
type FilterFunc func(r *searcher.Result) bool

// ValidateOptions checks options before a search runs.
func ValidateOptions(opts Options) error {
	if _, ok := ParseMode(string(opts.Mode)); !ok {
		return errInvalidMode(opts.Mode)
	}
	switch opts.SourceType {
	case "", "folders", "files", "urls":
	default:
		return errInvalidSourceType(opts.SourceType)
	}
	if opts.Limit < 0 {
		return errNegativeLimit(opts.Limit)
	}
	return nil
}

// ApplyFilters filters results based on search options.
// Filters use AND logic - results must match all specified criteria.
func ApplyFilters(results []searcher.Result, opts Options, root string) []searcher.Result {
	filters := buildFilters(opts, root)
	if len(filters) == 0 {
		return results
	}

	filtered := make([]searcher.Result, 0, len(results))
	for i := range results {
		if matchesAll(&results[i], filters) {
			filtered = append(filtered, results[i])
		}
	}
	return filtered
}

func buildFilters(opts Options, root string) []FilterFunc {
	var filters []FilterFunc
	if opts.SourceType != "" {
		filters = append(filters, sourceTypeFilter(opts.SourceType))
	}
	if len(opts.Scopes) > 0 {
		filters = append(filters, scopeFilter(opts.Scopes, root))
	}
	return filters
}

func matchesAll(r *searcher.Result, filters []FilterFunc) bool {
	for _, f := range filters {
		if !f(r) {
			return false
		}
	}
	return true
}

func sourceTypeFilter(kind string) FilterFunc {
	return func(r *searcher.Result) bool {
		return r.Metadata[store.MetaSourceType] == kind
	}
}

// NormalizeScope ensures consistent path format for matching.
// Strips leading and trailing slashes.
func NormalizeScope(scope string) string {
	return strings.Trim(filepath.ToSlash(scope), "/")
}

// scopeFilter matches results whose path, relative to root, starts with any
// scope. A trailing slash is added so "services/api" does not match
// "services/api-v2". URL resources match against the full URL.
func scopeFilter(scopes []string, root string) FilterFunc {
	normalized := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if n := NormalizeScope(s); n != "" {
			normalized = append(normalized, n+"/")
		}
	}
	if len(normalized) == 0 {
		return func(*searcher.Result) bool { return true }
	}

	return func(r *searcher.Result) bool {
		p := resultPath(r, root)
		if p == "" {
			return false
		}
		p = NormalizeScope(p) + "/"
		for _, scope := range normalized {
			if strings.HasPrefix(p, scope) {
				return true
			}
		}
		return false
	}
}

// resultPath returns the path used for scope matching.
func resultPath(r *searcher.Result, root string) string {
	if u := r.Metadata[store.MetaURL]; u != "" {
		return u
	}
	p := r.Metadata[store.MetaFilePath]
	if p == "" {
		p = r.ResourceID
	}
	if root != "" && filepath.IsAbs(p) {
		if rel, err := filepath.Rel(root, p); err == nil && !strings.HasPrefix(rel, "..") {
			return rel
		}
	}
	return p
}
