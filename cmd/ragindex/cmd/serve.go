package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragindex/internal/mcp"
	"github.com/Aman-CERP/ragindex/internal/preflight"
	"github.com/Aman-CERP/ragindex/internal/project"
)

type serveFlags struct {
	transport string
	addr      string
	noIndex   bool
	noWatch   bool
	skipCheck bool
}

func newServeCmd(g *globalFlags) *cobra.Command {
	f := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the index to AI assistants over MCP",
		Long: `Start an MCP server exposing the search, index_status and reindex tools
and every indexed file as a resource.

The server indexes the project in the background on start and then watches
for changes. With the stdio transport nothing but JSON-RPC is written to
stdout; logs go to ~/.ragindex/logs/.`,
		Example: `  # stdio, for editor and assistant integrations
  ragindex serve

  # streamable HTTP on a custom address
  ragindex serve --transport http --addr 127.0.0.1:9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, g, f)
		},
	}

	cmd.Flags().StringVar(&f.transport, "transport", "", "Transport: stdio or http (default from config)")
	cmd.Flags().StringVar(&f.addr, "addr", "", "Listen address for the http transport (default from config)")
	cmd.Flags().BoolVar(&f.noIndex, "no-index", false, "Do not index on start")
	cmd.Flags().BoolVar(&f.noWatch, "no-watch", false, "Do not watch for file changes")
	cmd.Flags().BoolVar(&f.skipCheck, "skip-check", false, "Skip pre-flight system checks")

	return cmd
}

func runServe(ctx context.Context, g *globalFlags, f *serveFlags) error {
	root, cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	transport := cfg.Server.Transport
	if f.transport != "" {
		transport = f.transport
	}
	addr := cfg.Server.Addr
	if f.addr != "" {
		addr = f.addr
	}

	p, err := project.Open(ctx, root, cfg, project.WithLogger(slog.Default()))
	if err != nil {
		return err
	}
	defer closeProject(p)

	// Preflight results go to the log only: stdout belongs to JSON-RPC.
	if !f.skipCheck && preflight.NeedsCheck(p.DataDir()) {
		checker := preflight.New(
			preflight.WithConfig(cfg),
			preflight.WithEmbedder(p.Embedder()),
			preflight.WithOutput(io.Discard),
		)
		results := checker.RunAll(ctx, root)
		for _, r := range results {
			slog.Info("preflight_check",
				slog.String("name", r.Name),
				slog.String("status", r.Status.String()),
				slog.String("message", r.Message))
		}
		if preflight.Summarize(results).Failed() {
			return errors.New("system check failed: run 'ragindex doctor' for diagnostics")
		}
		if err := preflight.MarkPassed(p.DataDir()); err != nil {
			slog.Debug("preflight_marker_failed", slog.String("error", err.Error()))
		}
	}

	srv, err := mcp.NewServer(p, mcp.WithLogger(slog.Default()))
	if err != nil {
		return fmt.Errorf("create MCP server: %w", err)
	}
	defer func() { _ = srv.Close() }()

	if err := srv.RegisterResources(ctx); err != nil {
		slog.Warn("resources_register_failed", slog.String("error", err.Error()))
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	if !f.noIndex {
		wg.Add(1)
		go func() {
			defer wg.Done()
			startupIndex(ctx, p, srv, !f.noWatch)
		}()
	}

	return srv.Serve(ctx, transport, addr)
}

// startupIndex brings the index up to date, refreshes the MCP resources
// and then starts watching.
func startupIndex(ctx context.Context, p *project.Project, srv *mcp.Server, watch bool) {
	ok, err := p.Index(ctx)
	if err != nil {
		slog.Error("startup_index_failed", slog.String("error", err.Error()))
		return
	}
	if ok {
		if err := srv.RegisterResources(ctx); err != nil {
			slog.Warn("resources_register_failed", slog.String("error", err.Error()))
		}
	}
	if !watch || ctx.Err() != nil {
		return
	}
	if err := p.Watch(ctx); err != nil {
		slog.Error("watch_failed", slog.String("error", err.Error()))
	}
}
