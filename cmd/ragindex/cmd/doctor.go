package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragindex/internal/config"
	"github.com/Aman-CERP/ragindex/internal/embed"
	ragerrors "github.com/Aman-CERP/ragindex/internal/errors"
	"github.com/Aman-CERP/ragindex/internal/preflight"
	"github.com/Aman-CERP/ragindex/internal/ui"
)

func newDoctorCmd(g *globalFlags) *cobra.Command {
	var (
		verbose    bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check system requirements and diagnose issues",
		Long: `Run diagnostics to ensure ragindex can operate correctly.

Checks:
  - Configuration validity
  - Disk space (100MB minimum)
  - Write permissions in the data directory
  - File descriptor limits (1024 minimum)
  - Embedding provider reachability and output dimensions

Doctor does not take the project lock and can run next to 'ragindex serve'.`,
		Example: `  # Run diagnostics
  ragindex doctor

  # Verbose output with details
  ragindex doctor --verbose

  # JSON output for scripting
  ragindex doctor --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, g, verbose, jsonOutput)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed diagnostic info")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runDoctor(cmd *cobra.Command, g *globalFlags, verbose, jsonOutput bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, err := config.FindProjectRoot(g.dir)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	opts := []preflight.Option{
		preflight.WithVerbose(verbose),
		preflight.WithOutput(w),
		preflight.WithColor(ui.IsTTY(w) && !ui.DetectNoColor()),
	}

	// A broken config is reported as a failed check, not a command error.
	var results []preflight.CheckResult
	cfg, cfgErr := config.Load(root)
	if cfgErr != nil {
		results = append(results, preflight.CheckResult{
			Name:     "config",
			Status:   preflight.StatusFail,
			Message:  "invalid configuration",
			Details:  strings.ReplaceAll(cfgErr.Error(), "\n", "; "),
			Required: true,
		})
	} else {
		opts = append(opts, preflight.WithConfig(cfg))
		emb, err := embed.NewEmbedder(ctx, cfg.Embeddings, cfg.EmbedTimeout())
		if err != nil {
			results = append(results, preflight.CheckResult{
				Name:     "embedder",
				Status:   preflight.StatusFail,
				Message:  fmt.Sprintf("cannot create %s embedder: %v", cfg.Embeddings.Provider, err),
				Required: true,
			})
		} else {
			defer func() { _ = emb.Close() }()
			opts = append(opts, preflight.WithEmbedder(emb))
		}
	}

	checker := preflight.New(opts...)
	results = append(results, checker.RunAll(ctx, root)...)
	summary := preflight.Summarize(results)

	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(JSONOutput{Summary: summary, Checks: results}); err != nil {
			return err
		}
	} else {
		checker.PrintResults(results)
		if cfg != nil {
			if age := preflight.MarkerAge(cfg.DataDir(root)); age > 0 {
				cmd.Printf("\nLast successful check: %s ago\n", formatAge(age))
			}
		}
	}

	if summary.Failed() {
		return ragerrors.New(ragerrors.ErrCodeInternal, "system check failed", nil).
			WithSuggestion("fix the failed checks listed above and run 'ragindex doctor' again")
	}
	if cfg != nil {
		_ = preflight.MarkPassed(cfg.DataDir(root))
	}
	return nil
}

// JSONOutput is the report printed by 'doctor --json'.
type JSONOutput struct {
	preflight.Summary
	Checks []preflight.CheckResult `json:"checks"`
}

// formatAge renders d in whole hours or days.
func formatAge(d time.Duration) string {
	hours := int(d.Hours())
	switch {
	case hours < 1:
		return "less than 1 hour"
	case hours == 1:
		return "1 hour"
	case hours < 24:
		return fmt.Sprintf("%d hours", hours)
	case hours < 48:
		return "1 day"
	default:
		return fmt.Sprintf("%d days", hours/24)
	}
}
