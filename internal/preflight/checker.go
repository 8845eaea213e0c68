package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Aman-CERP/ragindex/internal/config"
	"github.com/Aman-CERP/ragindex/internal/embed"
	"github.com/Aman-CERP/ragindex/internal/output"
)

// Checker runs the checks for one project.
type Checker struct {
	cfg      *config.Config
	embedder embed.Embedder
	out      io.Writer
	color    bool
	verbose  bool
}

// Option configures a Checker.
type Option func(*Checker)

// WithConfig adds the config check and locates the data directory.
func WithConfig(cfg *config.Config) Option {
	return func(c *Checker) { c.cfg = cfg }
}

// WithEmbedder adds the embedding provider probe.
func WithEmbedder(e embed.Embedder) Option {
	return func(c *Checker) { c.embedder = e }
}

// WithVerbose prints details under each result.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) { c.verbose = verbose }
}

func WithOutput(w io.Writer) Option {
	return func(c *Checker) { c.out = w }
}

func WithColor(color bool) Option {
	return func(c *Checker) { c.color = color }
}

// New returns a Checker printing to stdout.
func New(opts ...Option) *Checker {
	c := &Checker{out: os.Stdout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check that applies to root. The config and embedder
// checks run only when configured.
func (c *Checker) RunAll(ctx context.Context, root string) []CheckResult {
	var results []CheckResult
	if c.cfg != nil {
		results = append(results, c.CheckConfig())
	}
	results = append(results,
		c.CheckDiskSpace(root),
		c.CheckWritePermissions(c.storagePath(root)),
		c.CheckFileDescriptors(),
	)
	if c.embedder != nil {
		results = append(results, c.CheckEmbedder(ctx))
	}
	return results
}

// storagePath is the data directory once it exists and the project root
// before the first index run creates it.
func (c *Checker) storagePath(root string) string {
	if c.cfg == nil {
		return root
	}
	if dir := c.cfg.DataDir(root); isDir(dir) {
		return dir
	}
	return root
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// PrintResults writes a report of results and their summary.
func (c *Checker) PrintResults(results []CheckResult) {
	w := output.NewWithColor(c.out, c.color)
	w.Section("ragindex doctor")

	width := 0
	for _, r := range results {
		width = max(width, len(r.Name))
	}
	for _, r := range results {
		w.Statusf("["+r.Status.String()+"]", "%-*s  %s", width, r.Name, r.Message)
		if c.verbose && r.Details != "" {
			w.Status("", "       "+r.Details)
		}
	}

	sum := Summarize(results)
	w.Newline()
	w.Fields("Status", strings.ToUpper(sum.Status))
	if len(sum.Errors) > 0 {
		w.Newline()
		w.Errorf("%d error(s)", len(sum.Errors))
		for _, e := range sum.Errors {
			w.Status("", "- "+e)
		}
	}
	if len(sum.Warnings) > 0 {
		w.Newline()
		w.Warningf("%d warning(s)", len(sum.Warnings))
		for _, msg := range sum.Warnings {
			w.Status("", "- "+msg)
		}
	}
}

// CheckConfig validates the loaded configuration.
func (c *Checker) CheckConfig() CheckResult {
	const name = "config"
	if c.cfg == nil {
		return skipped(name, "no configuration loaded")
	}
	if err := c.cfg.Validate(); err != nil {
		return failed(name, "invalid configuration", strings.ReplaceAll(err.Error(), "\n", "; "))
	}
	return passed(name, fmt.Sprintf("%s embeddings, %s vectors, %s keywords",
		c.cfg.Embeddings.Provider, c.cfg.Store.VectorBackend, c.cfg.Store.KeywordBackend))
}

// CheckWritePermissions creates and removes a probe file in dir.
func (c *Checker) CheckWritePermissions(dir string) CheckResult {
	const name = "write_permissions"
	f, err := os.CreateTemp(dir, ".ragindex-probe-*")
	if err != nil {
		return failed(name, "cannot write to "+dir, err.Error())
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
	return passed(name, dir+" is writable")
}
