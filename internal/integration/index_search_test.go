package integration

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ragindex/internal/config"
	"github.com/Aman-CERP/ragindex/internal/mcp"
	"github.com/Aman-CERP/ragindex/internal/project"
	"github.com/Aman-CERP/ragindex/internal/search"
	"github.com/Aman-CERP/ragindex/internal/state"
)

func TestIntegration_IndexAndSearch_BothLists(t *testing.T) {
	// Given: an indexed multi-language project
	root := seedRepo(t)
	p := openIndexed(t, root, testConfig())

	// When: searching both indexes
	res, err := p.Search(context.Background(), "handleRequest", search.Options{Limit: 5})

	// Then: keyword hits point at the Go file and the vector list is filled
	require.NoError(t, err)
	require.NotEmpty(t, res.Keyword)
	assert.Equal(t, filepath.Join(root, "main.go"), res.Keyword[0].ResourceID)
	assert.NotEmpty(t, res.Vector)
	assert.False(t, res.Degraded())
}

func TestIntegration_ScopeAndSourceType(t *testing.T) {
	root := seedRepo(t)
	p := openIndexed(t, root, testConfig())

	t.Run("scope", func(t *testing.T) {
		got := keywordSources(t, p, "greet handler tokens", search.Options{Limit: 10, Scopes: []string{"docs"}})

		assert.Equal(t, map[string]bool{filepath.Join(root, "docs", "auth.md"): true}, got)
	})

	t.Run("source type without matches", func(t *testing.T) {
		got := keywordSources(t, p, "greet", search.Options{Limit: 10, SourceType: "urls"})

		assert.Empty(t, got)
	})
}

func TestIntegration_IgnoreFilesAndExcludes(t *testing.T) {
	// Given: a .gitignore rule and a configured exclude pattern
	root := seedRepo(t)
	writeFile(t, root, ".gitignore", "secret/\n")
	writeFile(t, root, "secret/keys.txt", "zebracorn private material\n")
	writeFile(t, root, "generated/out.txt", "zebracorn generated output\n")
	writeFile(t, root, "notes.txt", "zebracorn public notes\n")
	cfg := testConfig()
	cfg.Paths.Exclude = append(cfg.Paths.Exclude, "generated/")

	// When: indexing
	p := openIndexed(t, root, cfg)

	// Then: only the public file is tracked and searchable
	ids, err := p.TrackedResources(context.Background(), state.SourceFolders)
	require.NoError(t, err)
	assert.Contains(t, ids, filepath.Join(root, "notes.txt"))
	assert.NotContains(t, ids, filepath.Join(root, "secret", "keys.txt"))
	assert.NotContains(t, ids, filepath.Join(root, "generated", "out.txt"))
	assert.Equal(t, map[string]bool{filepath.Join(root, "notes.txt"): true},
		keywordSources(t, p, "zebracorn", search.Options{Limit: 10}))
}

func TestIntegration_ConfigFileDrivesSources(t *testing.T) {
	// Given: a project config selecting one folder and one extra file
	root := seedRepo(t)
	writeFile(t, root, "extra/standalone.txt", "zebracorn standalone file\n")
	writeFile(t, root, ".ragindex.yaml", `version: 1
paths:
  folders: [docs]
  files: [extra/standalone.txt]
embeddings:
  provider: static
  dimensions: 32
`)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	// When: loading the config and indexing
	cfg, err := config.Load(root)
	require.NoError(t, err)
	p := openIndexed(t, root, cfg)

	// Then: each source kind tracks its own resources
	st, err := p.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, st.Resources[state.SourceFolders])
	assert.Equal(t, 1, st.Resources[state.SourceFiles])
	assert.Equal(t, 32, st.Dimensions)

	got := keywordSources(t, p, "zebracorn", search.Options{Limit: 10, SourceType: "files"})
	assert.Equal(t, map[string]bool{filepath.Join(root, "extra", "standalone.txt"): true}, got)
}

func TestIntegration_URLSource(t *testing.T) {
	// Given: a web page served locally
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, "<html><body><h1>Runbook</h1><p>Rotate the zebracorn credentials weekly.</p></body></html>")
	}))
	t.Cleanup(srv.Close)

	root := seedRepo(t)
	cfg := testConfig()
	cfg.Paths.Folders = []string{"."}
	cfg.Paths.URLs = []string{srv.URL + "/runbook"}

	// When: indexing
	p := openIndexed(t, root, cfg)

	// Then: the page is tracked and its text is searchable
	ids, err := p.TrackedResources(context.Background(), state.SourceURLs)
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL + "/runbook"}, ids)
	got := keywordSources(t, p, "zebracorn", search.Options{Limit: 10, SourceType: "urls"})
	assert.Equal(t, map[string]bool{srv.URL + "/runbook": true}, got)
}

func TestIntegration_ReadOnlyReaderSeesWriterIndex(t *testing.T) {
	// Given: a writer that indexed and still holds the lock
	root := seedRepo(t)
	openIndexed(t, root, testConfig())

	// When: a second process opens the project read-only
	reader, err := project.Open(context.Background(), root, testConfig(), project.ReadOnly())
	require.NoError(t, err)
	t.Cleanup(func() { _ = reader.Close() })

	// Then: it answers from the persisted index
	got := keywordSources(t, reader, "handleRequest", search.Options{Limit: 5})
	assert.True(t, got[filepath.Join(root, "main.go")])
}

func TestIntegration_ConsistentAfterReindex(t *testing.T) {
	root := seedRepo(t)
	p := openIndexed(t, root, testConfig())
	writeFile(t, root, "main.go", "package main\n\nfunc main() {}\n")

	ok, err := p.Index(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	check, err := p.Check(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, check.Consistent(), "%+v", check.Inconsistencies)
	assert.Empty(t, keywordSources(t, p, "handleRequest", search.Options{Limit: 5}))
}

func TestIntegration_ConcurrentSearches(t *testing.T) {
	root := seedRepo(t)
	p := openIndexed(t, root, testConfig())

	queries := []string{"handleRequest", "greet", "authentication tokens", "gateway"}
	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(q string) {
			defer wg.Done()
			if _, err := p.Search(context.Background(), q, search.Options{Limit: 5}); err != nil {
				errs <- err
			}
		}(queries[i%len(queries)])
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("search failed: %v", err)
	}
	assert.Equal(t, int64(40), p.QueryStats().Total)
}

func TestIntegration_MCPServerOverProject(t *testing.T) {
	// Given: an MCP server backed by an indexed project
	root := seedRepo(t)
	p := openIndexed(t, root, testConfig())
	srv, err := mcp.NewServer(p)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	// When: calling the search tool, then index_status
	out, err := srv.CallTool(context.Background(), mcp.ToolSearch, map[string]any{
		"query": "greet",
		"mode":  "keyword",
	})
	require.NoError(t, err)
	status, err := srv.CallTool(context.Background(), mcp.ToolIndexStatus, nil)
	require.NoError(t, err)

	// Then: results use project-relative sources and the query was counted
	res := out.(*mcp.SearchOutput)
	require.NotEmpty(t, res.Keyword)
	assert.Equal(t, "web/greet.js", res.Keyword[0].Source)
	assert.Empty(t, res.Vector)

	st := status.(*mcp.IndexStatusOutput)
	assert.Equal(t, 3, st.Stats.Resources)
	assert.Equal(t, int64(1), st.Queries.Total)
	assert.Equal(t, int64(1), st.Queries.ByMode["keyword"])
}
