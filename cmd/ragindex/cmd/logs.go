package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragindex/internal/logging"
	"github.com/Aman-CERP/ragindex/internal/ui"
)

type logsFlags struct {
	follow  bool
	lines   int
	level   string
	filter  string
	noColor bool
	file    string
}

func newLogsCmd() *cobra.Command {
	f := &logsFlags{}

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View ragindex logs",
		Long: `Show the last lines of the ragindex log file, or follow new entries.

Logs are JSON lines under ~/.ragindex/logs (or $RAGINDEX_LOG_DIR).`,
		Example: `  ragindex logs
  ragindex logs -n 200 --level warn
  ragindex logs -f --filter flush`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd.Context(), cmd, f)
		},
	}

	cmd.Flags().BoolVarP(&f.follow, "follow", "f", false, "Follow log output (like tail -f)")
	cmd.Flags().IntVarP(&f.lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&f.level, "level", "", "Minimum level (debug|info|warn|error)")
	cmd.Flags().StringVar(&f.filter, "filter", "", "Only lines matching this regular expression")
	cmd.Flags().BoolVar(&f.noColor, "no-color", false, "Disable colored output")
	cmd.Flags().StringVar(&f.file, "file", "", "Log file to read (default: the ragindex log)")

	return cmd
}

func runLogs(ctx context.Context, cmd *cobra.Command, f *logsFlags) error {
	path := f.file
	if path == "" {
		path = logging.DefaultLogPath()
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("no log file at %s: %w", path, err)
	}

	cfg := logging.ViewerConfig{
		Level:   f.level,
		NoColor: f.noColor || ui.DetectNoColor() || !ui.IsTTY(cmd.OutOrStdout()),
	}
	if f.filter != "" {
		re, err := regexp.Compile(f.filter)
		if err != nil {
			return fmt.Errorf("invalid filter pattern: %w", err)
		}
		cfg.Pattern = re
	}
	viewer := logging.NewViewer(cfg, cmd.OutOrStdout())

	cmd.PrintErrf("Log file: %s\n", path)
	if !f.follow {
		entries, err := viewer.Tail(path, f.lines)
		if err != nil {
			return err
		}
		viewer.Print(entries)
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	cmd.PrintErrln("Following... (Ctrl+C to stop)")

	entries := make(chan logging.Entry, 100)
	errCh := make(chan error, 1)
	go func() { errCh <- viewer.Follow(ctx, path, entries) }()

	for {
		select {
		case e := <-entries:
			viewer.Print([]logging.Entry{e})
		case err := <-errCh:
			return err
		}
	}
}
