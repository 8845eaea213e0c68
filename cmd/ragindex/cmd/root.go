// Package cmd provides the CLI commands for ragindex.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragindex/internal/config"
	ragerrors "github.com/Aman-CERP/ragindex/internal/errors"
	"github.com/Aman-CERP/ragindex/internal/logging"
	"github.com/Aman-CERP/ragindex/internal/profiling"
	"github.com/Aman-CERP/ragindex/internal/project"
	"github.com/Aman-CERP/ragindex/pkg/version"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	dir      string
	debug    bool
	profile  profiling.Options
	session  *profiling.Session
	cleanups []func()
}

// NewRootCmd creates the root command for the ragindex CLI.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "ragindex",
		Short: "Local hybrid search index for folders, files and URLs",
		Long: `ragindex keeps a keyword index and a vector index of your project in sync
and answers queries with both ranked lists side by side.

Sources are configured in .ragindex.yaml: folders are walked recursively,
selected files are filtered by extension, URLs are fetched as plain text.
Unchanged resources are skipped on every run; deleted ones are removed.

Search it from the terminal with 'ragindex search', or serve it to AI
assistants over MCP with 'ragindex serve'.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("ragindex version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&g.dir, "dir", "C", ".", "Project directory")
	cmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "Enable debug logging to ~/.ragindex/logs/")
	cmd.PersistentFlags().StringVar(&g.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&g.profile.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&g.profile.Trace, "profile-trace", "", "Write execution trace to file")
	cmd.PersistentFlags().StringVar(&g.profile.Goroutine, "profile-goroutine", "", "Write goroutine profile to file")

	cmd.PersistentPreRunE = g.start
	cmd.PersistentPostRunE = g.stop

	cmd.AddCommand(newIndexCmd(g))
	cmd.AddCommand(newWatchCmd(g))
	cmd.AddCommand(newSearchCmd(g))
	cmd.AddCommand(newStatusCmd(g))
	cmd.AddCommand(newClearCmd(g))
	cmd.AddCommand(newServeCmd(g))
	cmd.AddCommand(newDoctorCmd(g))
	cmd.AddCommand(newConfigCmd(g))
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command and prints a failure to stderr.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		fmt.Fprint(os.Stderr, ragerrors.FormatForCLI(err))
	}
	return err
}

// start installs file logging and starts profiling.
func (g *globalFlags) start(_ *cobra.Command, _ []string) error {
	level := "info"
	if env := os.Getenv("RAGINDEX_LOG_LEVEL"); env != "" {
		level = env
	}
	if g.debug {
		level = "debug"
	}
	cleanup, err := logging.SetupQuiet(level)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	g.cleanups = append(g.cleanups, cleanup)

	if g.profile.Enabled() {
		g.session, err = profiling.Start(g.profile)
		if err != nil {
			return err
		}
	}
	return nil
}

// stop ends profiling and flushes the log file.
func (g *globalFlags) stop(_ *cobra.Command, _ []string) error {
	err := g.session.Stop()
	g.session = nil
	for i := len(g.cleanups) - 1; i >= 0; i-- {
		g.cleanups[i]()
	}
	g.cleanups = nil
	if err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	return nil
}

// loadConfig resolves the project root from --dir and loads its layered
// configuration.
func (g *globalFlags) loadConfig() (string, *config.Config, error) {
	root, err := config.FindProjectRoot(g.dir)
	if err != nil {
		return "", nil, ragerrors.New(ragerrors.ErrCodeInvalidPath, "cannot resolve project directory", err)
	}
	cfg, err := config.Load(root)
	if err != nil {
		return "", nil, ragerrors.ConfigError("cannot load configuration", err).
			WithSuggestion("run 'ragindex config show' to inspect the merged configuration")
	}
	return root, cfg, nil
}

// openProject loads the configuration and opens the project. Read-only
// projects do not take the writer lock.
func (g *globalFlags) openProject(ctx context.Context, readOnly bool) (*project.Project, error) {
	root, cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	opts := []project.Option{project.WithLogger(slog.Default())}
	if readOnly {
		opts = append(opts, project.ReadOnly())
	}
	return project.Open(ctx, root, cfg, opts...)
}

// closeProject closes p and logs a failure.
func closeProject(p *project.Project) {
	if err := p.Close(); err != nil {
		slog.Warn("project_close_failed", slog.String("error", err.Error()))
	}
}
