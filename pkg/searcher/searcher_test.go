package searcher

import (
	"context"
	"errors"
	"testing"

	"github.com/Aman-CERP/ragindex/internal/embed"
	"github.com/Aman-CERP/ragindex/internal/store"
	"github.com/Aman-CERP/ragindex/internal/store/storetest"
)

// failingKeywordIndex fails every search.
type failingKeywordIndex struct {
	*storetest.KeywordIndex
}

func (failingKeywordIndex) Search(context.Context, string, int) ([]store.Hit, error) {
	return nil, errors.New("index unavailable")
}

// failingEmbedder fails every embedding request.
type failingEmbedder struct {
	*embed.StaticEmbedder
}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("provider down")
}

func segments() []store.Segment {
	return []store.Segment{
		{ID: "s1", ResourceID: "/p/limiter.go", Text: "func NewRateLimiter(rps float64) *Limiter",
			Metadata: map[string]string{store.MetaFilePath: "/p/limiter.go", store.MetaChunkIndex: "0"}},
		{ID: "s2", ResourceID: "/p/README.md", Text: "The watcher debounces file events.",
			Metadata: map[string]string{store.MetaFilePath: "/p/README.md", store.MetaChunkIndex: "0"}},
	}
}

func TestNewKeywordSearcher_NilIndex_ReturnsError(t *testing.T) {
	s, err := NewKeywordSearcher()
	if !errors.Is(err, ErrNilKeywordIndex) {
		t.Fatalf("expected ErrNilKeywordIndex, got %v", err)
	}
	if s != nil {
		t.Fatal("expected nil searcher")
	}
}

func TestKeywordSearcher_Search_ReturnsMatchedTerms(t *testing.T) {
	// Given: an index with two segments
	idx := storetest.NewKeywordIndex()
	if err := idx.IndexDocuments(context.Background(), segments()); err != nil {
		t.Fatal(err)
	}
	s, err := NewKeywordSearcher(WithKeywordIndex(idx))
	if err != nil {
		t.Fatal(err)
	}

	// When: searching for a term in one of them
	results, err := s.Search(context.Background(), "rate limiter", 10)

	// Then: that segment is returned with its text, metadata and matched terms
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.ID != "s1" || r.ResourceID != "/p/limiter.go" {
		t.Errorf("unexpected result %+v", r)
	}
	if r.Metadata[store.MetaFilePath] != "/p/limiter.go" {
		t.Errorf("metadata not carried: %v", r.Metadata)
	}
	if len(r.MatchedTerms) == 0 {
		t.Error("expected matched terms")
	}
}

func TestKeywordSearcher_Search_NoMatchesIsEmptyNotNil(t *testing.T) {
	s, _ := NewKeywordSearcher(WithKeywordIndex(storetest.NewKeywordIndex()))

	results, err := s.Search(context.Background(), "nothing", 5)
	if err != nil {
		t.Fatal(err)
	}
	if results == nil || len(results) != 0 {
		t.Fatalf("expected empty slice, got %#v", results)
	}
}

func TestKeywordSearcher_Search_WrapsError(t *testing.T) {
	s, _ := NewKeywordSearcher(WithKeywordIndex(failingKeywordIndex{storetest.NewKeywordIndex()}))

	if _, err := s.Search(context.Background(), "x", 5); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewVectorSearcher_MissingDependencies(t *testing.T) {
	tests := []struct {
		name string
		opts []VectorOption
		want error
	}{
		{"no embedder", []VectorOption{WithSearchVectorStore(storetest.NewVectorStore())}, ErrNilEmbedder},
		{"no store", []VectorOption{WithSearchEmbedder(embed.NewStaticEmbedder(16))}, ErrNilVectorStore},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewVectorSearcher(tt.opts...); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestVectorSearcher_Search_FindsIdenticalText(t *testing.T) {
	// Given: vectors embedded with the static embedder
	ctx := context.Background()
	emb := embed.NewStaticEmbedder(64)
	vs := storetest.NewVectorStore()
	segs := segments()
	texts := []string{segs[0].Text, segs[1].Text}
	vectors, err := emb.EmbedBatch(ctx, texts)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := vs.AddAll(ctx, vectors, segs); err != nil {
		t.Fatal(err)
	}

	s, err := NewVectorSearcher(WithSearchEmbedder(emb), WithSearchVectorStore(vs))
	if err != nil {
		t.Fatal(err)
	}

	// When: querying with the exact text of the second segment
	results, err := s.Search(ctx, segs[1].Text, 1)

	// Then: it ranks first
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != "s2" {
		t.Fatalf("expected s2 first, got %+v", results)
	}
	if results[0].Score <= 0 {
		t.Errorf("expected positive similarity, got %f", results[0].Score)
	}
}

func TestVectorSearcher_Search_EmbedError(t *testing.T) {
	s, _ := NewVectorSearcher(
		WithSearchEmbedder(failingEmbedder{embed.NewStaticEmbedder(16)}),
		WithSearchVectorStore(storetest.NewVectorStore()),
	)

	if _, err := s.Search(context.Background(), "query", 3); err == nil {
		t.Fatal("expected error")
	}
}
