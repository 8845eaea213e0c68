// Package integration exercises a whole project: config, filters, the
// indexing pipeline, watching, search and the MCP server together.
package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ragindex/internal/config"
	"github.com/Aman-CERP/ragindex/internal/project"
	"github.com/Aman-CERP/ragindex/internal/search"
)

// testConfig uses the offline embedder and a short debounce window.
func testConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Embeddings.Provider = "static"
	cfg.Embeddings.Dimensions = 64
	cfg.Indexing.Workers = 2
	cfg.Indexing.BatchSize = 8
	cfg.Watcher.Debounce = "50ms"
	cfg.Watcher.PollInterval = "200ms"
	return cfg
}

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

// seedRepo writes a small multi-language project.
func seedRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "main.go", `package main

import "net/http"

func handleRequest(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("hello"))
}

func main() {
	http.HandleFunc("/", handleRequest)
}
`)
	writeFile(t, root, "web/greet.js", "function greet(name) {\n  return `Hello, ${name}`;\n}\n")
	writeFile(t, root, "docs/auth.md", "# Authentication\n\nTokens are validated by the gateway before any handler runs.\n")
	return root
}

func openIndexed(t *testing.T, root string, cfg *config.Config) *project.Project {
	t.Helper()
	p, err := project.Open(context.Background(), root, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	ok, err := p.Index(context.Background())
	require.NoError(t, err)
	require.True(t, ok, p.Snapshot().Error)
	return p
}

// keywordSources returns the resource IDs of keyword hits for query.
func keywordSources(t *testing.T, p *project.Project, query string, opts search.Options) map[string]bool {
	t.Helper()
	if opts.Mode == "" {
		opts.Mode = search.ModeKeyword
	}
	res, err := p.Search(context.Background(), query, opts)
	require.NoError(t, err)
	out := make(map[string]bool, len(res.Keyword))
	for _, r := range res.Keyword {
		out[r.ResourceID] = true
	}
	return out
}

const eventually = 5 * time.Second
