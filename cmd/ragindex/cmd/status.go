package cmd

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragindex/internal/index"
	"github.com/Aman-CERP/ragindex/internal/project"
	"github.com/Aman-CERP/ragindex/internal/ui"
)

// embedderProbeTimeout bounds the reachability probe of 'status'.
const embedderProbeTimeout = 5 * time.Second

type statusFlags struct {
	json   bool
	check  bool
	repair bool
}

func newStatusCmd(g *globalFlags) *cobra.Command {
	f := &statusFlags{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health",
		Long: `Show resource counts, store sizes, embedder reachability and whether a
writer currently holds the project lock.

--check compares the segment mappings with both stores. --repair also
deletes orphaned entries and needs the project lock.`,
		Example: `  ragindex status
  ragindex status --json
  ragindex status --check --repair`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, g, f)
		},
	}

	cmd.Flags().BoolVar(&f.json, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&f.check, "check", false, "Verify cross-store consistency")
	cmd.Flags().BoolVar(&f.repair, "repair", false, "Delete orphaned entries (implies --check)")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, g *globalFlags, f *statusFlags) error {
	p, err := g.openProject(ctx, !f.repair)
	if err != nil {
		return err
	}
	defer closeProject(p)

	info, err := collectStatus(ctx, p)
	if err != nil {
		return err
	}

	if f.check || f.repair {
		result, err := p.Check(ctx, f.repair)
		if err != nil {
			return err
		}
		info.Consistency = consistencyInfo(result, f.repair)
	}

	r := ui.NewStatusRenderer(cmd.OutOrStdout(), ui.DetectNoColor() || !ui.IsTTY(cmd.OutOrStdout()))
	if f.json {
		return r.RenderJSON(info)
	}
	return r.Render(info)
}

func collectStatus(ctx context.Context, p *project.Project) (ui.StatusInfo, error) {
	st, err := p.Status(ctx)
	if err != nil {
		return ui.StatusInfo{}, err
	}

	resources := make(map[string]int, len(st.Resources))
	for kind, n := range st.Resources {
		resources[string(kind)] = n
	}

	info := ui.StatusInfo{
		ProjectID:          st.ProjectID,
		Root:               st.Root,
		State:              string(st.Progress.Status),
		LastError:          st.Progress.Error,
		Resources:          resources,
		Vectors:            st.Vectors,
		Keywords:           st.Keywords,
		LastIndexed:        lastIndexed(st),
		DataDir:            st.DataDir,
		StorageSize:        dirSize(st.DataDir),
		VectorBackend:      st.VectorBackend,
		KeywordBackend:     st.KeywordBackend,
		EmbedderType:       p.Config().Embeddings.Provider,
		EmbedderStatus:     "offline",
		EmbedderModel:      st.Model,
		EmbedderDimensions: st.Dimensions,
		LockStatus:         lockStatus(p),
	}

	probeCtx, cancel := context.WithTimeout(ctx, embedderProbeTimeout)
	defer cancel()
	if p.Embedder().Available(probeCtx) {
		info.EmbedderStatus = "ready"
	}
	return info, nil
}

// lastIndexed is the finish time of the last run in this process, else the
// modification time of the state database.
func lastIndexed(st *project.StatusReport) time.Time {
	if !st.Progress.FinishedAt.IsZero() {
		return st.Progress.FinishedAt
	}
	fi, err := os.Stat(filepath.Join(st.DataDir, project.StateFileName))
	if err != nil || st.TotalResources() == 0 {
		return time.Time{}
	}
	return fi.ModTime()
}

// lockStatus probes the writer lock without keeping it.
func lockStatus(p *project.Project) string {
	if !p.ReadOnly() {
		return "held (this process)"
	}
	l := project.NewLock(p.DataDir())
	ok, err := l.TryLock()
	if err != nil {
		return "unknown"
	}
	if !ok {
		return "held"
	}
	_ = l.Unlock()
	return "free"
}

// dirSize sums the sizes of the regular files under dir.
func dirSize(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if fi, err := d.Info(); err == nil {
				total += fi.Size()
			}
		}
		return nil
	})
	return total
}

func consistencyInfo(result *index.CheckResult, repaired bool) *ui.ConsistencyInfo {
	c := &ui.ConsistencyInfo{Checked: result.Checked, Repaired: repaired && !result.Consistent()}
	for _, issue := range result.Inconsistencies {
		if c.Issues == nil {
			c.Issues = make(map[string]int)
		}
		c.Issues[issue.Type.String()]++
	}
	return c
}
