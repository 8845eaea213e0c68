// Package storetest provides in-memory VectorStore and KeywordIndex
// implementations with failure injection for tests.
package storetest

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/Aman-CERP/ragindex/internal/store"
)

// ErrInjected is returned by operations configured to fail.
var ErrInjected = errors.New("injected failure")

// VectorStore is an in-memory store.VectorStore using brute-force cosine
// search.
type VectorStore struct {
	mu       sync.Mutex
	vectors  map[string][]float32
	segments map[string]store.Segment

	// FailAdd and FailRemove make the next calls fail while true.
	FailAdd    bool
	FailRemove bool

	AddCalls    int
	RemoveCalls int
}

// NewVectorStore returns an empty store.
func NewVectorStore() *VectorStore {
	return &VectorStore{
		vectors:  make(map[string][]float32),
		segments: make(map[string]store.Segment),
	}
}

func (v *VectorStore) AddAll(_ context.Context, vectors [][]float32, segments []store.Segment) ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.AddCalls++
	if v.FailAdd {
		return nil, ErrInjected
	}
	if len(vectors) != len(segments) {
		return nil, errors.New("length mismatch")
	}
	ids := make([]string, len(segments))
	for i, seg := range segments {
		v.vectors[seg.ID] = vectors[i]
		v.segments[seg.ID] = seg
		ids[i] = seg.ID
	}
	return ids, nil
}

func (v *VectorStore) RemoveAll(_ context.Context, ids []string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.RemoveCalls++
	if v.FailRemove {
		return ErrInjected
	}
	for _, id := range ids {
		delete(v.vectors, id)
		delete(v.segments, id)
	}
	return nil
}

func (v *VectorStore) Search(_ context.Context, query []float32, k int) ([]store.Hit, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	hits := make([]store.Hit, 0, len(v.vectors))
	for id, vec := range v.vectors {
		hits = append(hits, store.Hit{Segment: v.segments[id], Score: cosine(query, vec)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Segment.ID < hits[j].Segment.ID
	})
	if k < len(hits) {
		hits = hits[:max(k, 0)]
	}
	return hits, nil
}

func (v *VectorStore) AllIDs(_ context.Context) ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return sortedKeys(v.segments), nil
}

func (v *VectorStore) Count(_ context.Context) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.segments), nil
}

func (v *VectorStore) Close() error { return nil }

// Segments returns the stored segments of resourceID.
func (v *VectorStore) Segments(resourceID string) []store.Segment {
	v.mu.Lock()
	defer v.mu.Unlock()
	return filterResource(v.segments, resourceID)
}

// KeywordIndex is an in-memory store.KeywordIndex. Search scores by the
// number of query tokens contained in the text.
type KeywordIndex struct {
	mu   sync.Mutex
	docs map[string]store.Segment

	// FailIndex and FailRemove make the next calls fail while true.
	FailIndex  bool
	FailRemove bool

	IndexCalls int
}

// NewKeywordIndex returns an empty index.
func NewKeywordIndex() *KeywordIndex {
	return &KeywordIndex{docs: make(map[string]store.Segment)}
}

func (k *KeywordIndex) IndexDocuments(_ context.Context, segments []store.Segment) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.IndexCalls++
	if k.FailIndex {
		return ErrInjected
	}
	for _, seg := range segments {
		k.docs[seg.ID] = seg
	}
	return nil
}

func (k *KeywordIndex) RemoveByResource(_ context.Context, resourceID string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.FailRemove {
		return ErrInjected
	}
	for id, seg := range k.docs {
		if seg.ResourceID == resourceID {
			delete(k.docs, id)
		}
	}
	return nil
}

// Delete removes documents by segment ID.
func (k *KeywordIndex) Delete(_ context.Context, ids []string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, id := range ids {
		delete(k.docs, id)
	}
	return nil
}

func (k *KeywordIndex) Search(_ context.Context, query string, limit int) ([]store.Hit, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	terms := store.TokenizeCode(query)
	var hits []store.Hit
	for _, seg := range k.docs {
		text := strings.ToLower(seg.Text)
		score := 0.0
		for _, t := range terms {
			if strings.Contains(text, t) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, store.Hit{Segment: seg, Score: score})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Segment.ID < hits[j].Segment.ID
	})
	if limit < len(hits) {
		hits = hits[:max(limit, 0)]
	}
	return hits, nil
}

func (k *KeywordIndex) AllIDs(_ context.Context) ([]string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return sortedKeys(k.docs), nil
}

func (k *KeywordIndex) Count(_ context.Context) (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.docs), nil
}

func (k *KeywordIndex) Close() error { return nil }

// Segments returns the indexed segments of resourceID.
func (k *KeywordIndex) Segments(resourceID string) []store.Segment {
	k.mu.Lock()
	defer k.mu.Unlock()
	return filterResource(k.docs, resourceID)
}

var (
	_ store.VectorStore  = (*VectorStore)(nil)
	_ store.KeywordIndex = (*KeywordIndex)(nil)
)

func sortedKeys(m map[string]store.Segment) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// filterResource returns the segments of resourceID ordered by chunk index.
func filterResource(m map[string]store.Segment, resourceID string) []store.Segment {
	var out []store.Segment
	for _, seg := range m {
		if seg.ResourceID == resourceID {
			out = append(out, seg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex() < out[j].ChunkIndex() })
	return out
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
