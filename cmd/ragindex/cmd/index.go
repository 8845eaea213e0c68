package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	ragerrors "github.com/Aman-CERP/ragindex/internal/errors"
	"github.com/Aman-CERP/ragindex/internal/project"
	"github.com/Aman-CERP/ragindex/internal/ui"
)

func newIndexCmd(g *globalFlags) *cobra.Command {
	var (
		noTUI bool
		force bool
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index the configured sources",
		Long: `Run one incremental indexing pass over every configured source.

Resources whose content hash is unchanged are skipped, changed ones are
re-indexed, and resources that disappeared are removed from both indexes.
Use --force to clear the project first and rebuild everything.`,
		Example: `  # Index the current project
  ragindex index

  # Rebuild from scratch with plain output
  ragindex index --force --no-tui`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runIndex(ctx, cmd, g, noTUI, force)
		},
	}

	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Plain text progress output")
	cmd.Flags().BoolVar(&force, "force", false, "Clear the index before indexing")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, g *globalFlags, noTUI, force bool) error {
	p, err := g.openProject(ctx, false)
	if err != nil {
		return err
	}
	defer closeProject(p)

	if force {
		if err := p.Clear(ctx); err != nil {
			return err
		}
	}

	ok, err := indexWithProgress(ctx, cmd.OutOrStdout(), p, noTUI)
	if err != nil {
		return err
	}
	if !ok {
		msg := "indexing failed"
		if e := p.Snapshot().Error; e != "" {
			msg += ": " + e
		}
		return ragerrors.New(ragerrors.ErrCodeIndexFailed, msg, nil).
			WithSuggestion("run 'ragindex doctor' to check the embedding provider and storage")
	}
	return nil
}

// indexWithProgress runs one indexing pass while rendering coordinator
// progress to out, and reports whether the pass ended READY.
func indexWithProgress(ctx context.Context, out io.Writer, p *project.Project, plain bool) (bool, error) {
	renderer := ui.NewRenderer(ui.NewConfig(out,
		ui.WithForcePlain(plain),
		ui.WithNoColor(ui.DetectNoColor()),
		ui.WithProjectDir(p.Root()),
	))
	if err := renderer.Start(ctx); err != nil {
		return false, err
	}
	defer func() { _ = renderer.Stop() }()

	ch, unsubscribe := p.Progress().Subscribe(64)
	followCtx, cancelFollow := context.WithCancel(ctx)
	followed := make(chan struct{})
	go func() {
		defer close(followed)
		ui.Follow(followCtx, renderer, ch)
	}()

	ok, err := p.Index(ctx)
	cancelFollow()
	<-followed
	unsubscribe()
	if err != nil {
		return false, err
	}

	snap := p.Snapshot()
	renderer.UpdateProgress(snap)
	renderer.Complete(ui.NewCompletionStats(snap, embedderInfo(p)))
	return ok, nil
}

func embedderInfo(p *project.Project) ui.EmbedderInfo {
	e := p.Embedder()
	return ui.EmbedderInfo{
		Backend:    p.Config().Embeddings.Provider,
		Model:      e.ModelName(),
		Dimensions: e.Dimensions(),
	}
}
