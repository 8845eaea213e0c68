package index

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ragindex/internal/config"
	"github.com/Aman-CERP/ragindex/internal/state"
	"github.com/Aman-CERP/ragindex/internal/store"
	"github.com/Aman-CERP/ragindex/internal/watcher"
)

func writeSampleProject(t *testing.T, env *testEnv) (goFile, readme, notes string) {
	t.Helper()
	goFile = env.write(t, "main.go", "package main\n\nfunc main() {\n\tprintln(\"hello\")\n}\n")
	readme = env.write(t, "docs/readme.md", "# Readme\n\nThis project indexes documents.\n")
	notes = env.write(t, "notes.txt", "alpha beta gamma\ndelta epsilon\n")
	return goFile, readme, notes
}

func TestNewCoordinator_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		cfg  CoordinatorConfig
	}{
		{"missing project id", CoordinatorConfig{Indexer: env.hybrid, State: env.state, Registry: NewRegistry()}},
		{"missing indexer", CoordinatorConfig{ProjectID: "p", State: env.state, Registry: NewRegistry()}},
		{"missing state", CoordinatorConfig{ProjectID: "p", Indexer: env.hybrid, Registry: NewRegistry()}},
		{"missing registry", CoordinatorConfig{ProjectID: "p", Indexer: env.hybrid, State: env.state}},
		{"unregistered kind", CoordinatorConfig{
			ProjectID: "p", Indexer: env.hybrid, State: env.state, Registry: NewRegistry(),
			Sources: []Source{{Kind: state.SourceFolders, Targets: []string{env.root}}},
		}},
		{"invalid kind", CoordinatorConfig{
			ProjectID: "p", Indexer: env.hybrid, State: env.state, Registry: NewRegistry(),
			Sources: []Source{{Kind: "ftp"}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCoordinator(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestCoordinator_StartIndexing_IndexesAllFiles(t *testing.T) {
	// Given: a folder with three text files
	env := newTestEnv(t)
	goFile, readme, notes := writeSampleProject(t, env)

	// When: running a full pass
	ok := env.coord.StartIndexing(context.Background())

	// Then: every file is indexed in both stores and recorded in state
	require.True(t, ok)
	snap := env.coord.Snapshot()
	assert.Equal(t, StatusReady, snap.Status)
	assert.Equal(t, 3, snap.TotalFiles)
	assert.Equal(t, 3, snap.ProcessedFiles)
	assert.Equal(t, 3, snap.IndexedFiles)
	assert.Empty(t, snap.Error)

	for _, p := range []string{goFile, readme, notes} {
		vecs := env.vectors.Segments(p)
		require.NotEmpty(t, vecs, p)
		assert.Len(t, env.keywords.Segments(p), len(vecs))
		assert.Len(t, env.mappings(t, p), len(vecs))
		assert.Equal(t, p, vecs[0].Metadata[store.MetaFilePath])
		assert.Equal(t, "0", vecs[0].Metadata[store.MetaChunkIndex])
	}

	// Text-like files carry line ranges.
	start, end := env.vectors.Segments(notes)[0].Lines()
	assert.Equal(t, 1, start)
	assert.GreaterOrEqual(t, end, start)

	saved := env.loadState(t, state.SourceFolders)
	require.Len(t, saved, 3)
	wantHash, err := state.HashFile(notes)
	require.NoError(t, err)
	assert.Equal(t, wantHash, saved[notes])
}

func TestCoordinator_StartIndexing_Idempotent(t *testing.T) {
	// Given: an indexed folder
	env := newTestEnv(t)
	writeSampleProject(t, env)
	require.True(t, env.coord.StartIndexing(context.Background()))
	before := env.loadState(t, state.SourceFolders)
	addCalls := env.vectors.AddCalls

	// When: running again without changes
	require.True(t, env.coord.StartIndexing(context.Background()))

	// Then: everything is skipped and nothing is written
	snap := env.coord.Snapshot()
	assert.Equal(t, 3, snap.SkippedFiles)
	assert.Equal(t, 0, snap.IndexedFiles)
	assert.Equal(t, 0, snap.RemovedFiles)
	assert.Equal(t, addCalls, env.vectors.AddCalls)
	assert.Equal(t, before, env.loadState(t, state.SourceFolders))
}

func TestCoordinator_StartIndexing_SingleByteChange(t *testing.T) {
	// Given: an indexed folder
	env := newTestEnv(t)
	goFile, _, notes := writeSampleProject(t, env)
	require.True(t, env.coord.StartIndexing(context.Background()))
	goIDs := segmentIDs(t, env, goFile)
	oldHash := env.loadState(t, state.SourceFolders)[notes]

	// When: one byte of one file changes
	env.write(t, "notes.txt", "alpha beta gamma\ndelta epsiloN\n")
	require.True(t, env.coord.StartIndexing(context.Background()))

	// Then: only that file is re-chunked
	snap := env.coord.Snapshot()
	assert.Equal(t, 1, snap.IndexedFiles)
	assert.Equal(t, 2, snap.SkippedFiles)
	assert.NotEqual(t, oldHash, env.loadState(t, state.SourceFolders)[notes])
	assert.Equal(t, goIDs, segmentIDs(t, env, goFile))
	assert.Contains(t, env.keywords.Segments(notes)[0].Text, "epsiloN")
}

func TestCoordinator_StartIndexing_DeletedFile(t *testing.T) {
	// Given: an indexed folder
	env := newTestEnv(t)
	goFile, _, _ := writeSampleProject(t, env)
	require.True(t, env.coord.StartIndexing(context.Background()))
	require.NotEmpty(t, env.vectors.Segments(goFile))

	// When: a file is removed from disk and the pass re-runs
	require.NoError(t, os.Remove(goFile))
	require.True(t, env.coord.StartIndexing(context.Background()))

	// Then: nothing of it remains anywhere
	assert.Equal(t, 1, env.coord.Snapshot().RemovedFiles)
	assert.Empty(t, env.vectors.Segments(goFile))
	assert.Empty(t, env.keywords.Segments(goFile))
	assert.Empty(t, env.mappings(t, goFile))
	assert.NotContains(t, env.loadState(t, state.SourceFolders), goFile)
}

func TestCoordinator_StartIndexing_GitignoreNegation(t *testing.T) {
	// Given: *.log ignored with keep.log re-included
	env := newTestEnv(t)
	env.write(t, ".gitignore", "*.log\n!keep.log\n")
	appLog := env.write(t, "app.log", "request served in 12ms\n")
	keepLog := env.write(t, "keep.log", "release notes worth keeping\n")

	// When: indexing
	require.True(t, env.coord.StartIndexing(context.Background()))

	// Then: only keep.log is indexed
	saved := env.loadState(t, state.SourceFolders)
	assert.NotContains(t, saved, appLog)
	assert.Contains(t, saved, keepLog)
	assert.Empty(t, env.vectors.Segments(appLog))
	assert.NotEmpty(t, env.vectors.Segments(keepLog))
}

func TestCoordinator_StartIndexing_ExcludedDirNotDescended(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "package.json", "{\"name\": \"demo\"}\n")
	dep := env.write(t, "node_modules/lib/index.js", "module.exports = 1\n")
	src := env.write(t, "src/app.js", "console.log('app')\n")

	require.True(t, env.coord.StartIndexing(context.Background()))

	saved := env.loadState(t, state.SourceFolders)
	assert.NotContains(t, saved, dep)
	assert.Contains(t, saved, src)
}

func TestCoordinator_StartIndexing_PartialFailureIsolation(t *testing.T) {
	// Given: three files, the second fails extraction
	env := newTestEnv(t)
	first := env.write(t, "one.txt", "first document\n")
	second := env.write(t, "two.txt", "second document\n")
	third := env.write(t, "three.txt", "third document\n")
	env.extractor.setFailName("two.txt")

	// When: indexing
	ok := env.coord.StartIndexing(context.Background())

	// Then: the run is READY with the others indexed
	require.True(t, ok)
	snap := env.coord.Snapshot()
	assert.Equal(t, StatusReady, snap.Status)
	assert.Equal(t, 2, snap.IndexedFiles)
	assert.Equal(t, 1, snap.FailedFiles)
	assert.NotEmpty(t, env.vectors.Segments(first))
	assert.NotEmpty(t, env.vectors.Segments(third))
	assert.Empty(t, env.vectors.Segments(second))

	// The failed file is not recorded, so the next pass retries it.
	assert.NotContains(t, env.loadState(t, state.SourceFolders), second)

	env.extractor.setFailName("")
	require.True(t, env.coord.StartIndexing(context.Background()))
	assert.Equal(t, 1, env.coord.Snapshot().IndexedFiles)
	assert.NotEmpty(t, env.vectors.Segments(second))
}

func TestCoordinator_StartIndexing_FailedModificationKeepsBaseline(t *testing.T) {
	env := newTestEnv(t)
	_, _, notes := writeSampleProject(t, env)
	require.True(t, env.coord.StartIndexing(context.Background()))
	oldHash := env.loadState(t, state.SourceFolders)[notes]

	env.write(t, "notes.txt", "rewritten content\n")
	env.extractor.setFailName("notes.txt")
	require.True(t, env.coord.StartIndexing(context.Background()))

	// Old segments and hash stay until the file can be read again.
	assert.Equal(t, oldHash, env.loadState(t, state.SourceFolders)[notes])
	assert.NotEmpty(t, env.vectors.Segments(notes))
}

func TestCoordinator_StartIndexing_FlushFailure(t *testing.T) {
	// Given: an embedding provider that is down
	env := newTestEnv(t)
	writeSampleProject(t, env)
	env.embedder.setFail(true)

	// When: indexing
	ok := env.coord.StartIndexing(context.Background())

	// Then: the run fails and the state baseline is untouched
	assert.False(t, ok)
	snap := env.coord.Snapshot()
	assert.Equal(t, StatusFailed, snap.Status)
	assert.NotEmpty(t, snap.Error)
	assert.Empty(t, env.loadState(t, state.SourceFolders))

	// And: the next run after recovery indexes everything
	env.embedder.setFail(false)
	require.True(t, env.coord.StartIndexing(context.Background()))
	assert.Equal(t, 3, env.coord.Snapshot().IndexedFiles)
	assert.Len(t, env.loadState(t, state.SourceFolders), 3)
}

func TestCoordinator_StartIndexing_FailedRunThenDeletedFile(t *testing.T) {
	// Given: a run that fails while two new files are queued
	env := newTestEnv(t)
	gone := env.write(t, "gone.txt", "short lived draft\n")
	keep := env.write(t, "keep.txt", "long lived notes\n")
	env.embedder.setFail(true)
	require.False(t, env.coord.StartIndexing(context.Background()))

	// When: one of them is deleted and the provider recovers
	require.NoError(t, os.Remove(gone))
	env.embedder.setFail(false)
	require.True(t, env.coord.StartIndexing(context.Background()))

	// Then: nothing of the deleted file reaches the stores
	assert.Empty(t, env.vectors.Segments(gone))
	assert.Empty(t, env.keywords.Segments(gone))
	assert.Empty(t, env.mappings(t, gone))
	assert.NotEmpty(t, env.vectors.Segments(keep))
	assert.Zero(t, env.hybrid.Stats().Pending)
}

func TestCoordinator_StartIndexing_RevertAfterFailedRun(t *testing.T) {
	// Given: an indexed file whose rewrite failed to flush
	env := newTestEnv(t)
	notes := env.write(t, "notes.txt", "original wording\n")
	require.True(t, env.coord.StartIndexing(context.Background()))

	env.write(t, "notes.txt", "abandoned rewrite\n")
	env.embedder.setFail(true)
	require.False(t, env.coord.StartIndexing(context.Background()))

	// When: the file goes back to the indexed content
	env.write(t, "notes.txt", "original wording\n")
	env.embedder.setFail(false)
	require.True(t, env.coord.StartIndexing(context.Background()))

	// Then: the stores hold the original text again
	segs := env.keywords.Segments(notes)
	require.NotEmpty(t, segs)
	assert.Contains(t, segs[0].Text, "original wording")
	assert.NotContains(t, segs[0].Text, "abandoned")
	assert.Len(t, env.mappings(t, notes), len(env.vectors.Segments(notes)))
}

func TestCoordinator_StartIndexing_RemovesUnrecordedSegments(t *testing.T) {
	// Given: segments of a resource that no source lists and state never saw
	env := newTestEnv(t)
	writeSampleProject(t, env)
	ghost := env.path("ghost.txt")
	seg := store.Segment{Text: "left by an aborted run", Metadata: map[string]string{store.MetaChunkIndex: "0"}}
	require.True(t, env.hybrid.AddSegmentToBatch(context.Background(), seg, ghost))
	require.True(t, env.hybrid.FlushRemaining(context.Background()))
	require.NotEmpty(t, env.mappings(t, ghost))

	// When: running a pass
	require.True(t, env.coord.StartIndexing(context.Background()))

	// Then: the stray resource is gone from every store
	assert.Empty(t, env.vectors.Segments(ghost))
	assert.Empty(t, env.keywords.Segments(ghost))
	assert.Empty(t, env.mappings(t, ghost))
	assert.Len(t, env.loadState(t, state.SourceFolders), 3)
}

func TestCoordinator_StartIndexing_SelectedFiles(t *testing.T) {
	env := newTestEnv(t,
		withExtensions(".md"),
		withSources(func(root string) []Source {
			return []Source{{Kind: state.SourceFiles, Targets: []string{
				filepath.Join(root, "main.go"),
				filepath.Join(root, "docs", "readme.md"),
				filepath.Join(root, "missing.md"),
			}}}
		}),
	)
	goFile, readme, _ := writeSampleProject(t, env)

	require.True(t, env.coord.StartIndexing(context.Background()))

	saved := env.loadState(t, state.SourceFiles)
	assert.Contains(t, saved, readme)
	assert.NotContains(t, saved, goFile)
	assert.Empty(t, env.loadState(t, state.SourceFolders))
}

func TestCoordinator_StartIndexing_URLSource(t *testing.T) {
	var gets atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Content-Type", "text/html")
		if r.Method == http.MethodHead {
			return
		}
		gets.Add(1)
		fmt.Fprint(w, "<html><head><title>Guide</title></head><body><p>Install the indexer first.</p></body></html>")
	}))
	defer srv.Close()
	page := srv.URL + "/guide"

	env := newTestEnv(t, withSources(func(string) []Source {
		return []Source{{Kind: state.SourceURLs, Targets: []string{page, "not a url"}}}
	}))

	require.True(t, env.coord.StartIndexing(context.Background()))
	segs := env.keywords.Segments(page)
	require.NotEmpty(t, segs)
	assert.Equal(t, page, segs[0].Metadata[store.MetaURL])
	assert.Equal(t, "Guide", segs[0].Metadata[store.MetaFileName])
	assert.Contains(t, segs[0].Text, "Install the indexer")
	assert.Equal(t, int32(1), gets.Load())

	// Unchanged validators skip the download entirely.
	require.True(t, env.coord.StartIndexing(context.Background()))
	assert.Equal(t, 1, env.coord.Snapshot().SkippedFiles)
	assert.Equal(t, int32(1), gets.Load())
}

func TestCoordinator_Progress_EmitsTransitions(t *testing.T) {
	env := newTestEnv(t, withProgressEvery(1))
	writeSampleProject(t, env)

	require.True(t, env.coord.StartIndexing(context.Background()))

	var events []IndexProgress
	for len(env.coord.Progress()) > 0 {
		events = append(events, <-env.coord.Progress())
	}
	require.NotEmpty(t, events)
	assert.Equal(t, StatusIndexing, events[0].Status)
	last := events[len(events)-1]
	assert.Equal(t, StatusReady, last.Status)
	assert.Equal(t, 3, last.ProcessedFiles)
	assert.True(t, last.Done())
	assert.InDelta(t, 100.0, last.Percent(), 0.001)
}

func TestCoordinator_ClearAll(t *testing.T) {
	// Given: an indexed folder
	env := newTestEnv(t)
	goFile, _, _ := writeSampleProject(t, env)
	require.True(t, env.coord.StartIndexing(context.Background()))

	// When: clearing
	require.NoError(t, env.coord.ClearAll(context.Background()))

	// Then: stores, mappings and state are empty and the status is IDLE
	vectors, _ := env.vectors.Count(context.Background())
	keywords, _ := env.keywords.Count(context.Background())
	assert.Zero(t, vectors)
	assert.Zero(t, keywords)
	assert.Empty(t, env.mappings(t, goFile))
	assert.Empty(t, env.loadState(t, state.SourceFolders))
	assert.Equal(t, StatusIdle, env.coord.Snapshot().Status)

	// And: the next pass indexes from scratch
	require.True(t, env.coord.StartIndexing(context.Background()))
	assert.Equal(t, 3, env.coord.Snapshot().IndexedFiles)
}

func TestCoordinator_HandleEvents(t *testing.T) {
	env := newTestEnv(t)
	goFile, _, notes := writeSampleProject(t, env)
	require.True(t, env.coord.StartIndexing(context.Background()))
	ctx := context.Background()

	t.Run("modify", func(t *testing.T) {
		env.write(t, "notes.txt", "zeta eta theta\n")
		ok := env.coord.HandleEvents(ctx, []watcher.FileEvent{{Path: notes, Operation: watcher.OpModify}})

		require.True(t, ok)
		assert.Equal(t, StatusReady, env.coord.Snapshot().Status)
		assert.Contains(t, env.keywords.Segments(notes)[0].Text, "theta")
		hash, err := state.HashFile(notes)
		require.NoError(t, err)
		assert.Equal(t, hash, env.loadState(t, state.SourceFolders)[notes])
	})

	t.Run("unchanged modify is a no-op", func(t *testing.T) {
		calls := env.vectors.AddCalls
		require.True(t, env.coord.HandleEvents(ctx, []watcher.FileEvent{{Path: notes, Operation: watcher.OpModify}}))
		assert.Equal(t, calls, env.vectors.AddCalls)
		assert.Equal(t, 1, env.coord.Snapshot().SkippedFiles)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, os.Remove(goFile))
		require.True(t, env.coord.HandleEvents(ctx, []watcher.FileEvent{{Path: goFile, Operation: watcher.OpDelete}}))

		assert.Empty(t, env.vectors.Segments(goFile))
		assert.Empty(t, env.mappings(t, goFile))
		assert.NotContains(t, env.loadState(t, state.SourceFolders), goFile)
		assert.Equal(t, 1, env.coord.Snapshot().RemovedFiles)
	})

	t.Run("new directory", func(t *testing.T) {
		nested := env.write(t, "pkg/util/strings.go", "package util\n\nfunc Upper() {}\n")
		require.True(t, env.coord.HandleEvents(ctx, []watcher.FileEvent{
			{Path: env.path("pkg"), Operation: watcher.OpCreate, IsDir: true},
		}))
		assert.NotEmpty(t, env.vectors.Segments(nested))
		assert.Contains(t, env.loadState(t, state.SourceFolders), nested)
	})

	t.Run("deleted directory", func(t *testing.T) {
		nested := env.path("pkg/util/strings.go")
		require.NoError(t, os.RemoveAll(env.path("pkg")))
		require.True(t, env.coord.HandleEvents(ctx, []watcher.FileEvent{
			{Path: env.path("pkg"), Operation: watcher.OpDelete, IsDir: true},
		}))
		assert.Empty(t, env.vectors.Segments(nested))
		assert.NotContains(t, env.loadState(t, state.SourceFolders), nested)
	})

	t.Run("outside sources is ignored", func(t *testing.T) {
		outside := filepath.Join(t.TempDir(), "other.txt")
		require.NoError(t, os.WriteFile(outside, []byte("elsewhere"), 0o644))
		require.True(t, env.coord.HandleEvents(ctx, []watcher.FileEvent{{Path: outside, Operation: watcher.OpCreate}}))
		assert.Empty(t, env.vectors.Segments(outside))
	})

	t.Run("flush failure fails the update", func(t *testing.T) {
		env.embedder.setFail(true)
		defer env.embedder.setFail(false)
		env.write(t, "notes.txt", "iota kappa\n")

		ok := env.coord.HandleEvents(ctx, []watcher.FileEvent{{Path: notes, Operation: watcher.OpModify}})

		assert.False(t, ok)
		assert.Equal(t, StatusFailed, env.coord.Snapshot().Status)
		hash, err := state.HashFile(notes)
		require.NoError(t, err)
		assert.NotEqual(t, hash, env.loadState(t, state.SourceFolders)[notes])
	})

	t.Run("ignore rule change triggers a pass", func(t *testing.T) {
		env.write(t, ".gitignore", "*.txt\n")
		ok := env.coord.HandleEvents(ctx, []watcher.FileEvent{
			{Path: env.path(".gitignore"), Operation: watcher.OpIgnoreChange},
		})

		require.True(t, ok)
		assert.Empty(t, env.vectors.Segments(notes))
		assert.NotContains(t, env.loadState(t, state.SourceFolders), notes)
	})
}

func TestSourcesFromConfig(t *testing.T) {
	root := filepath.FromSlash("/work/project")
	tests := []struct {
		name  string
		paths config.PathsConfig
		want  []Source
	}{
		{
			name: "defaults to root",
			want: []Source{{Kind: state.SourceFolders, Targets: []string{root}}},
		},
		{
			name: "relative and absolute",
			paths: config.PathsConfig{
				Folders: []string{"docs", "/abs/dir"},
				Files:   []string{"README.md"},
				URLs:    []string{"https://example.com/a"},
			},
			want: []Source{
				{Kind: state.SourceFolders, Targets: []string{filepath.Join(root, "docs"), filepath.FromSlash("/abs/dir")}},
				{Kind: state.SourceFiles, Targets: []string{filepath.Join(root, "README.md")}},
				{Kind: state.SourceURLs, Targets: []string{"https://example.com/a"}},
			},
		},
		{
			name:  "urls only",
			paths: config.PathsConfig{URLs: []string{"https://example.com"}},
			want:  []Source{{Kind: state.SourceURLs, Targets: []string{"https://example.com"}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SourcesFromConfig(root, tt.paths))
		})
	}
}

func TestWithin(t *testing.T) {
	tests := []struct {
		dir, path string
		want      bool
	}{
		{"/a/b", "/a/b/c.txt", true},
		{"/a/b", "/a/b/c/d.txt", true},
		{"/a/b", "/a/b/..hidden", true},
		{"/a/b", "/a/b", false},
		{"/a/b", "/a/bc/d.txt", false},
		{"/a/b", "/a", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, within(filepath.FromSlash(tt.dir), filepath.FromSlash(tt.path)), tt.path)
	}
}
