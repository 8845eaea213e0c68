package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	ragerrors "github.com/Aman-CERP/ragindex/internal/errors"
	"github.com/Aman-CERP/ragindex/internal/mcp"
	"github.com/Aman-CERP/ragindex/internal/output"
	"github.com/Aman-CERP/ragindex/internal/search"
	"github.com/Aman-CERP/ragindex/internal/ui"
)

// Search output formats.
const (
	formatText     = "text"
	formatJSON     = "json"
	formatMarkdown = "markdown"
)

type searchFlags struct {
	limit      int
	mode       string
	scopes     []string
	sourceType string
	format     string
}

func newSearchCmd(g *globalFlags) *cobra.Command {
	f := &searchFlags{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Query the keyword and vector indexes",
		Long: `Search the project with both indexes. Keyword (BM25) and semantic matches
are ranked independently and shown as two separate lists; their scores are
not comparable.

Search opens the project read-only and works while 'ragindex watch' or
'ragindex serve' holds the project lock.`,
		Example: `  # Search both indexes
  ragindex search "token bucket rate limiter"

  # Keyword matches under internal/ only, as JSON
  ragindex search -n 5 --mode keyword --scope internal/ --format json "RateLimit"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, g, f, strings.Join(args, " "))
		},
	}

	cmd.Flags().IntVarP(&f.limit, "limit", "n", 10, "Maximum results per list")
	cmd.Flags().StringVar(&f.mode, "mode", string(search.ModeBoth), "Indexes to query: both, keyword, vector")
	cmd.Flags().StringSliceVar(&f.scopes, "scope", nil, "Restrict to path prefixes relative to the project root")
	cmd.Flags().StringVar(&f.sourceType, "source-type", "", "Restrict to a source kind: folders, files, urls")
	cmd.Flags().StringVar(&f.format, "format", formatText, "Output format: text, json, markdown")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, g *globalFlags, f *searchFlags, query string) error {
	mode, ok := search.ParseMode(f.mode)
	if !ok {
		return ragerrors.ValidationError(fmt.Sprintf("invalid mode %q: use both, keyword or vector", f.mode), nil)
	}
	switch f.format {
	case formatText, formatJSON, formatMarkdown:
	default:
		return ragerrors.ValidationError(fmt.Sprintf("invalid format %q: use text, json or markdown", f.format), nil)
	}

	p, err := g.openProject(ctx, true)
	if err != nil {
		return err
	}
	defer closeProject(p)

	res, err := p.Search(ctx, query, search.Options{
		Limit:      f.limit,
		Mode:       mode,
		Scopes:     f.scopes,
		SourceType: f.sourceType,
	})
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	switch f.format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(mcp.NewSearchOutput(res, p.Root()))
	case formatMarkdown:
		_, err := fmt.Fprintln(w, mcp.FormatSearchResults(res, p.Root()))
		return err
	}

	out := output.NewWithColor(w, ui.IsTTY(w) && !ui.DetectNoColor())
	if res.Len() == 0 && !res.Degraded() {
		out.Warningf("No results for %q", res.Query)
		return nil
	}
	lists := mcp.NewSearchOutput(res, p.Root())
	if mode != search.ModeVector {
		printResultList(out, "Keyword matches", lists.Keyword, res.KeywordError)
	}
	if mode != search.ModeKeyword {
		printResultList(out, "Semantic matches", lists.Vector, res.VectorError)
	}
	out.Statusf("", "%d results in %s", res.Len(), res.Took.Round(time.Millisecond))
	return nil
}

func printResultList(out *output.Writer, title string, results []mcp.SearchResultOutput, failure string) {
	out.Section(fmt.Sprintf("%s (%d)", title, len(results)))
	if failure != "" {
		out.Errorf("unavailable: %s", failure)
		out.Newline()
		return
	}
	if len(results) == 0 {
		out.Status("", "no matches")
		out.Newline()
		return
	}
	for i, r := range results {
		loc := r.Source
		if r.StartLine > 0 {
			loc = fmt.Sprintf("%s:%d-%d", r.Source, r.StartLine, r.EndLine)
		}
		out.Statusf(fmt.Sprintf("%d.", i+1), "%s  (score %.3f)", loc, r.Score)
		if len(r.MatchedTerms) > 0 {
			out.Statusf("", "matched: %s", strings.Join(r.MatchedTerms, ", "))
		}
		out.Code(snippet(r.Content, 8))
	}
}

// snippet returns at most maxLines lines of text.
func snippet(text string, maxLines int) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) <= maxLines {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[:maxLines], "\n") + "\n..."
}
