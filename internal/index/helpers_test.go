package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ragindex/internal/chunk"
	"github.com/Aman-CERP/ragindex/internal/embed"
	"github.com/Aman-CERP/ragindex/internal/extract"
	"github.com/Aman-CERP/ragindex/internal/filter"
	"github.com/Aman-CERP/ragindex/internal/state"
	"github.com/Aman-CERP/ragindex/internal/store/storetest"
	"github.com/Aman-CERP/ragindex/pkg/indexer"
)

const testProject = "test-project"

// switchableEmbedder fails EmbedBatch while fail is set.
type switchableEmbedder struct {
	*embed.StaticEmbedder
	mu   sync.Mutex
	fail bool
}

func (s *switchableEmbedder) setFail(v bool) {
	s.mu.Lock()
	s.fail = v
	s.mu.Unlock()
}

func (s *switchableEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	fail := s.fail
	s.mu.Unlock()
	if fail {
		return nil, errors.New("embedding provider unavailable")
	}
	return s.StaticEmbedder.EmbedBatch(ctx, texts)
}

// flakyExtractor fails on files with a given base name.
type flakyExtractor struct {
	*extract.FileExtractor
	mu       sync.Mutex
	failName string
}

func (f *flakyExtractor) setFailName(name string) {
	f.mu.Lock()
	f.failName = name
	f.mu.Unlock()
}

func (f *flakyExtractor) ExtractText(ctx context.Context, path string) (string, error) {
	f.mu.Lock()
	fail := f.failName != "" && filepath.Base(path) == f.failName
	f.mu.Unlock()
	if fail {
		return "", errors.New("corrupt document")
	}
	return f.FileExtractor.ExtractText(ctx, path)
}

type testEnv struct {
	root      string
	coord     *Coordinator
	hybrid    *indexer.HybridIndexer
	embedder  *switchableEmbedder
	extractor *flakyExtractor
	vectors   *storetest.VectorStore
	keywords  *storetest.KeywordIndex
	state     *state.SQLiteStore
}

type envOption func(*envSetup)

type envSetup struct {
	sources       func(root string) []Source
	extensions    []string
	progressEvery int
}

func withSources(f func(root string) []Source) envOption {
	return func(s *envSetup) { s.sources = f }
}

func withExtensions(exts ...string) envOption {
	return func(s *envSetup) { s.extensions = exts }
}

func withProgressEvery(n int) envOption {
	return func(s *envSetup) { s.progressEvery = n }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	setup := envSetup{
		sources: func(root string) []Source {
			return []Source{{Kind: state.SourceFolders, Targets: []string{root}}}
		},
	}
	for _, opt := range opts {
		opt(&setup)
	}

	root := t.TempDir()
	st, err := state.Open("", state.DriverPureGo)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	env := &testEnv{
		root:      root,
		embedder:  &switchableEmbedder{StaticEmbedder: embed.NewStaticEmbedder(32)},
		extractor: &flakyExtractor{FileExtractor: extract.NewFileExtractor(0)},
		vectors:   storetest.NewVectorStore(),
		keywords:  storetest.NewKeywordIndex(),
		state:     st,
	}

	env.hybrid, err = indexer.NewHybridIndexer(testProject,
		indexer.WithEmbedder(env.embedder),
		indexer.WithVectorStore(env.vectors),
		indexer.WithKeywordIndex(env.keywords),
		indexer.WithStateStore(st),
		indexer.WithBatchSize(4),
	)
	require.NoError(t, err)

	folders, err := filter.NewStandard(filter.Options{Boundary: root})
	require.NoError(t, err)
	files, err := filter.NewStandard(filter.Options{Boundary: root, Extensions: setup.extensions})
	require.NoError(t, err)

	registry, err := DefaultRegistry(RegistryConfig{
		FolderFilter: folders,
		FileFilter:   files,
		Extractor:    env.extractor,
		Fetcher:      extract.NewURLFetcher(),
		Chunker:      chunk.New(512, chunk.DefaultConfig()),
	})
	require.NoError(t, err)

	env.coord, err = NewCoordinator(CoordinatorConfig{
		ProjectID:     testProject,
		Sources:       setup.sources(root),
		Registry:      registry,
		Indexer:       env.hybrid,
		State:         st,
		Workers:       4,
		ProgressEvery: setup.progressEvery,
	})
	require.NoError(t, err)
	t.Cleanup(env.coord.StopWatching)
	return env
}

func (e *testEnv) path(rel string) string {
	return filepath.Join(e.root, filepath.FromSlash(rel))
}

func (e *testEnv) write(t *testing.T, rel, content string) string {
	t.Helper()
	p := e.path(rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func (e *testEnv) loadState(t *testing.T, kind state.SourceType) map[string]string {
	t.Helper()
	m, err := e.state.LoadState(context.Background(), testProject, kind)
	require.NoError(t, err)
	return m
}

func (e *testEnv) mappings(t *testing.T, resourceID string) []state.Mapping {
	t.Helper()
	m, err := e.state.MappingsFor(context.Background(), testProject, resourceID)
	require.NoError(t, err)
	return m
}

func segmentIDs(t *testing.T, e *testEnv, resourceID string) []string {
	t.Helper()
	var ids []string
	for _, seg := range e.vectors.Segments(resourceID) {
		ids = append(ids, seg.ID)
	}
	return ids
}
