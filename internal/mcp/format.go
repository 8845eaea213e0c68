package mcp

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Aman-CERP/ragindex/internal/extract"
	"github.com/Aman-CERP/ragindex/internal/search"
	"github.com/Aman-CERP/ragindex/internal/store"
	"github.com/Aman-CERP/ragindex/pkg/searcher"
)

// FormatSearchResults renders both result lists as markdown. The lists are
// shown one after the other, never interleaved.
func FormatSearchResults(res *search.Results, root string) string {
	if res == nil || res.Len() == 0 {
		q := ""
		if res != nil {
			q = res.Query
		}
		return fmt.Sprintf("No results found for \"%s\"", q)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for \"%s\"\n\n", res.Query)
	formatSection(&sb, "Keyword matches", res.Keyword, res.KeywordError, root)
	formatSection(&sb, "Semantic matches", res.Vector, res.VectorError, root)
	return sb.String()
}

func formatSection(sb *strings.Builder, title string, results []searcher.Result, failure, root string) {
	fmt.Fprintf(sb, "### %s (%d)\n\n", title, len(results))
	if failure != "" {
		fmt.Fprintf(sb, "_Unavailable: %s_\n\n", failure)
		return
	}
	if len(results) == 0 {
		sb.WriteString("_No matches._\n\n")
		return
	}
	for i := range results {
		formatResult(sb, i+1, &results[i], root)
	}
}

// formatResult formats a single result.
func formatResult(sb *strings.Builder, num int, r *searcher.Result, root string) {
	out := ToSearchResultOutput(r, root)

	if out.StartLine > 0 {
		fmt.Fprintf(sb, "#### %d. %s:%d-%d (score: %.3f)\n", num, out.Source, out.StartLine, out.EndLine, out.Score)
	} else {
		fmt.Fprintf(sb, "#### %d. %s (score: %.3f)\n", num, out.Source, out.Score)
	}
	if len(out.MatchedTerms) > 0 {
		fmt.Fprintf(sb, "**Matched:** %s\n", strings.Join(out.MatchedTerms, ", "))
	}
	sb.WriteString("\n")

	lang := extract.DetectLanguage(out.Source)
	if lang == "markdown" {
		sb.WriteString(out.Content)
		sb.WriteString("\n\n---\n\n")
		return
	}
	if lang == "" {
		lang = "text"
	}
	fmt.Fprintf(sb, "```%s\n%s\n```\n\n", lang, out.Content)
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}

// ToSearchResultOutput converts a result to the tool output format, with
// file paths made relative to root.
func ToSearchResultOutput(r *searcher.Result, root string) SearchResultOutput {
	if r == nil {
		return SearchResultOutput{}
	}
	return SearchResultOutput{
		Source:       displaySource(r, root),
		Content:      r.Text,
		Score:        r.Score,
		StartLine:    atoi(r.Metadata[store.MetaStartLine]),
		EndLine:      atoi(r.Metadata[store.MetaEndLine]),
		ChunkIndex:   atoi(r.Metadata[store.MetaChunkIndex]),
		MatchedTerms: r.MatchedTerms,
	}
}

// NewSearchOutput converts both result lists of res, with file paths made
// relative to root.
func NewSearchOutput(res *search.Results, root string) *SearchOutput {
	return &SearchOutput{
		Query:        res.Query,
		Keyword:      toOutputs(res.Keyword, root),
		Vector:       toOutputs(res.Vector, root),
		KeywordError: res.KeywordError,
		VectorError:  res.VectorError,
	}
}

func toOutputs(results []searcher.Result, root string) []SearchResultOutput {
	out := make([]SearchResultOutput, 0, len(results))
	for i := range results {
		out = append(out, ToSearchResultOutput(&results[i], root))
	}
	return out
}

// displaySource returns the URL, or the file path relative to root when
// the file lies inside it.
func displaySource(r *searcher.Result, root string) string {
	if u := r.Metadata[store.MetaURL]; u != "" {
		return u
	}
	p := r.Metadata[store.MetaFilePath]
	if p == "" {
		p = r.ResourceID
	}
	if root != "" {
		if rel, err := filepath.Rel(root, p); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return p
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
