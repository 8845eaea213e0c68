package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragindex/internal/output"
)

func newClearCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every indexed segment of the project",
		Long: `Delete all segments from both indexes together with their mappings and
content hashes. The next 'ragindex index' rebuilds everything.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runClear(cmd.Context(), cmd, g)
		},
	}
}

func runClear(ctx context.Context, cmd *cobra.Command, g *globalFlags) error {
	p, err := g.openProject(ctx, false)
	if err != nil {
		return err
	}
	defer closeProject(p)

	st, err := p.Status(ctx)
	if err != nil {
		return err
	}
	if err := p.Clear(ctx); err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	out.Successf("Cleared %d resources (%d vectors, %d keyword documents)",
		st.TotalResources(), st.Vectors, st.Keywords)
	return nil
}
