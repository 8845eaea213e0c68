package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seg(id, resource, text string) Segment {
	return Segment{ID: id, ResourceID: resource, Text: text, Metadata: map[string]string{MetaFilePath: resource}}
}

func TestHNSWStore_AddSearchRemove(t *testing.T) {
	ctx := context.Background()
	s, err := NewHNSWStore(DefaultVectorStoreConfig(3))
	require.NoError(t, err)
	defer s.Close()

	// Given three orthogonal-ish vectors
	ids, err := s.AddAll(ctx,
		[][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
		[]Segment{seg("a", "/r1", "alpha"), seg("b", "/r1", "beta"), seg("c", "/r2", "gamma")})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	// When searching near the first
	hits, err := s.Search(ctx, []float32{0.9, 0.1, 0}, 1)
	require.NoError(t, err)

	// Then the first segment comes back with its text
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].Segment.ID)
	assert.Equal(t, "alpha", hits[0].Segment.Text)
	assert.Equal(t, "/r1", hits[0].Segment.ResourceID)
	assert.Greater(t, hits[0].Score, 0.9)

	// And removal hides it, idempotently
	require.NoError(t, s.RemoveAll(ctx, []string{"a", "missing"}))
	require.NoError(t, s.RemoveAll(ctx, []string{"a"}))
	hits, err = s.Search(ctx, []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.NotEqual(t, "a", h.Segment.ID)
	}

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, s.Stats().Orphans)
}

func TestHNSWStore_ReplaceSameID(t *testing.T) {
	ctx := context.Background()
	s, err := NewHNSWStore(DefaultVectorStoreConfig(2))
	require.NoError(t, err)

	_, err = s.AddAll(ctx, [][]float32{{1, 0}}, []Segment{seg("x", "/r", "old")})
	require.NoError(t, err)
	_, err = s.AddAll(ctx, [][]float32{{0, 1}}, []Segment{seg("x", "/r", "new")})
	require.NoError(t, err)

	ids, err := s.AllIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, ids)

	hits, err := s.Search(ctx, []float32{0, 1}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "new", hits[0].Segment.Text)
}

func TestHNSWStore_Validation(t *testing.T) {
	ctx := context.Background()
	_, err := NewHNSWStore(VectorStoreConfig{})
	assert.Error(t, err)

	s, err := NewHNSWStore(DefaultVectorStoreConfig(2))
	require.NoError(t, err)

	_, err = s.AddAll(ctx, [][]float32{{1, 0, 0}}, []Segment{seg("x", "/r", "t")})
	assert.ErrorAs(t, err, &ErrDimensionMismatch{})

	_, err = s.AddAll(ctx, [][]float32{{1, 0}}, []Segment{})
	assert.NoError(t, err)

	_, err = s.AddAll(ctx, [][]float32{{1, 0}}, []Segment{{Text: "no id"}})
	assert.Error(t, err)

	_, err = s.Search(ctx, []float32{1}, 1)
	assert.Error(t, err)

	hits, err := s.Search(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestHNSWStore_PersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vectors.hnsw")

	s, err := OpenHNSWStore(path, DefaultVectorStoreConfig(2))
	require.NoError(t, err)
	_, err = s.AddAll(ctx, [][]float32{{1, 0}, {0, 1}}, []Segment{seg("a", "/r", "one"), seg("b", "/r", "two")})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	dims, err := ReadHNSWStoreDimensions(path)
	require.NoError(t, err)
	assert.Equal(t, 2, dims)

	reopened, err := OpenHNSWStore(path, DefaultVectorStoreConfig(2))
	require.NoError(t, err)
	defer reopened.Close()

	hits, err := reopened.Search(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "two", hits[0].Segment.Text)
	assert.Equal(t, "/r", hits[0].Segment.Metadata[MetaFilePath])

	_, err = OpenHNSWStore(path, DefaultVectorStoreConfig(3))
	assert.ErrorAs(t, err, &ErrDimensionMismatch{})
}

func TestHNSWStore_SaveCompactsOrphans(t *testing.T) {
	tests := []struct {
		name        string
		replaced    int
		wantOrphans int
	}{
		{name: "below threshold keeps graph", replaced: 1, wantOrphans: 1},
		{name: "above threshold rebuilds", replaced: 5, wantOrphans: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given ten segments, some of them stored twice
			ctx := context.Background()
			s, err := NewHNSWStore(DefaultVectorStoreConfig(4))
			require.NoError(t, err)
			defer s.Close()

			vec := func(i int) []float32 { return []float32{float32(i + 1), 1, float32(i % 3), 0.5} }
			for i := range 10 {
				_, err := s.AddAll(ctx, [][]float32{vec(i)}, []Segment{seg(fmt.Sprintf("s%d", i), "/r", "text")})
				require.NoError(t, err)
			}
			for i := range tt.replaced {
				_, err := s.AddAll(ctx, [][]float32{vec(i + 5)}, []Segment{seg(fmt.Sprintf("s%d", i), "/r", "moved")})
				require.NoError(t, err)
			}

			// When saving
			require.NoError(t, s.Save())

			// Then the live set is unchanged and orphans are gone past the ratio
			stats := s.Stats()
			assert.Equal(t, 10, stats.ValidIDs)
			assert.Equal(t, tt.wantOrphans, stats.Orphans)
			hits, err := s.Search(ctx, vec(5), 10)
			require.NoError(t, err)
			assert.Len(t, hits, 10)
		})
	}
}

func TestHNSWStore_CompactedGraphPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vectors.hnsw")
	s, err := OpenHNSWStore(path, DefaultVectorStoreConfig(3))
	require.NoError(t, err)

	_, err = s.AddAll(ctx, [][]float32{{1, 0, 0}, {0, 1, 0}}, []Segment{seg("a", "/r", "alpha"), seg("b", "/r", "beta")})
	require.NoError(t, err)
	require.NoError(t, s.RemoveAll(ctx, []string{"a"}))
	require.NoError(t, s.Close())

	reopened, err := OpenHNSWStore(path, DefaultVectorStoreConfig(3))
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, HNSWStats{ValidIDs: 1, GraphNodes: 1}, reopened.Stats())
	hits, err := reopened.Search(ctx, []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].Segment.ID)
}

func TestSegmentAccessors(t *testing.T) {
	s := Segment{Metadata: map[string]string{MetaChunkIndex: "3", MetaStartLine: "10", MetaEndLine: "20"}}
	assert.Equal(t, 3, s.ChunkIndex())
	start, end := s.Lines()
	assert.Equal(t, 10, start)
	assert.Equal(t, 20, end)

	empty := Segment{}
	assert.Equal(t, -1, empty.ChunkIndex())
	start, end = empty.Lines()
	assert.Zero(t, start)
	assert.Zero(t, end)
}

func TestHNSWStore_ClosedStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewHNSWStore(DefaultVectorStoreConfig(2))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Search(ctx, []float32{1, 0}, 1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.AddAll(ctx, [][]float32{{1, 0}}, []Segment{seg("a", "/r", "x")})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Save(), ErrClosed)
	assert.False(t, s.Contains("a"))
	assert.Equal(t, HNSWStats{}, s.Stats())
}

func TestHNSWStore_MissingSidecarIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "vectors.hnsw")

	dims, err := ReadHNSWStoreDimensions(path)
	require.NoError(t, err)
	assert.Zero(t, dims)

	s, err := OpenHNSWStore(path, DefaultVectorStoreConfig(4))
	require.NoError(t, err)
	require.NoError(t, s.Save())
	assert.FileExists(t, path)
	assert.FileExists(t, path+".meta")
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := []float32{0, 0}
	assert.Equal(t, []float32{0, 0}, Normalize(zero))
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, similarity(0, MetricCosine), 1e-9)
	assert.InDelta(t, 0.0, similarity(2, MetricCosine), 1e-9)
	assert.InDelta(t, 0.5, similarity(1, MetricEuclidean), 1e-9)
}
