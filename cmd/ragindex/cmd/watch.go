package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragindex/internal/ui"
)

func newWatchCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Index, then keep the index in sync with file changes",
		Long: `Run an indexing pass and then watch the configured folders and selected
files. Created, modified, renamed and deleted files are applied to both
indexes until interrupted. URLs are only refreshed by 'ragindex index'.

The watcher holds the project lock; read-only commands such as 'search'
and 'status' keep working alongside it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cmd, g)
		},
	}
}

func runWatch(ctx context.Context, cmd *cobra.Command, g *globalFlags) error {
	p, err := g.openProject(ctx, false)
	if err != nil {
		return err
	}
	defer closeProject(p)

	out := cmd.OutOrStdout()
	if _, err := indexWithProgress(ctx, out, p, true); err != nil {
		return err
	}

	if err := p.Watch(ctx); err != nil {
		return err
	}
	defer p.StopWatching()
	_, _ = fmt.Fprintf(out, "Watching %s (Ctrl+C to stop)\n", p.Root())

	renderer := ui.NewPlainRenderer(ui.NewConfig(out))
	ch, unsubscribe := p.Progress().Subscribe(64)
	defer unsubscribe()
	ui.Follow(ctx, renderer, ch)

	_, _ = fmt.Fprintln(out, "Stopped watching")
	return nil
}
