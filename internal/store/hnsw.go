package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/coder/hnsw"
	"github.com/google/renameio"
)

// HNSWStore is the embedded VectorStore. Vectors live in a coder/hnsw
// graph keyed by uint64; segments are kept beside it so hits carry their
// text. A persisted store is two files: the exported graph at path and a
// gob sidecar at path+".meta".
//
// coder/hnsw corrupts its graph when the last node of a layer is deleted,
// so removed and replaced vectors are orphaned: their graph node stays and
// is filtered out of results. Save rebuilds the graph from the live nodes
// once orphans pass compactRatio of it.
type HNSWStore struct {
	mu     sync.RWMutex
	cfg    VectorStoreConfig
	path   string
	graph  *hnsw.Graph[uint64]
	closed bool

	keys     map[string]uint64
	owners   map[uint64]string
	segments map[string]Segment
	nextKey  uint64
}

// hnswSidecar is the gob-encoded companion of the exported graph.
type hnswSidecar struct {
	Config   VectorStoreConfig
	IDMap    map[string]uint64
	NextKey  uint64
	Segments map[string]Segment
}

// NewHNSWStore returns an empty in-memory store. Zero Metric, M and
// EfSearch take the DefaultVectorStoreConfig values.
func NewHNSWStore(cfg VectorStoreConfig) (*HNSWStore, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("vector dimensions must be positive, got %d", cfg.Dimensions)
	}
	def := DefaultVectorStoreConfig(cfg.Dimensions)
	if cfg.Metric == "" {
		cfg.Metric = def.Metric
	}
	if cfg.M == 0 {
		cfg.M = def.M
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = def.EfSearch
	}

	return &HNSWStore{
		cfg:      cfg,
		graph:    newGraph(cfg),
		keys:     make(map[string]uint64),
		owners:   make(map[uint64]string),
		segments: make(map[string]Segment),
	}, nil
}

// OpenHNSWStore returns a store persisted at path, loading what is there.
// A saved store of another dimension yields ErrDimensionMismatch.
func OpenHNSWStore(path string, cfg VectorStoreConfig) (*HNSWStore, error) {
	s, err := NewHNSWStore(cfg)
	if err != nil {
		return nil, err
	}
	s.path = path

	side, err := readSidecar(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, err
	case side.Config.Dimensions != 0 && side.Config.Dimensions != cfg.Dimensions:
		return nil, ErrDimensionMismatch{Expected: side.Config.Dimensions, Got: cfg.Dimensions}
	}
	if err := s.importGraph(path); err != nil {
		return nil, err
	}
	s.restore(side)
	return s, nil
}

func newGraph(cfg VectorStoreConfig) *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.M, g.EfSearch, g.Ml = cfg.M, cfg.EfSearch, 0.25
	g.Distance = hnsw.CosineDistance
	if cfg.Metric == MetricEuclidean {
		g.Distance = hnsw.EuclideanDistance
	}
	return g
}

// ReadHNSWStoreDimensions returns the dimension of the store saved at
// vectorPath, or 0 when there is none.
func ReadHNSWStoreDimensions(vectorPath string) (int, error) {
	side, err := readSidecar(vectorPath)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return side.Config.Dimensions, nil
}

// prepare copies v and normalizes it for the cosine metric.
func (s *HNSWStore) prepare(v []float32) []float32 {
	v = slices.Clone(v)
	if s.cfg.Metric == MetricCosine {
		Normalize(v)
	}
	return v
}

// forget orphans the graph node of id. Must hold s.mu.
func (s *HNSWStore) forget(id string) {
	if key, ok := s.keys[id]; ok {
		delete(s.owners, key)
		delete(s.keys, id)
		delete(s.segments, id)
	}
}

// AddAll stores vectors[i] under segments[i].ID. Input is validated as a
// whole before anything is written.
func (s *HNSWStore) AddAll(_ context.Context, vectors [][]float32, segments []Segment) ([]string, error) {
	if len(segments) == 0 {
		return nil, nil
	}
	if len(segments) != len(vectors) {
		return nil, fmt.Errorf("segments and vectors length mismatch: %d vs %d", len(segments), len(vectors))
	}
	for i, v := range vectors {
		if len(v) != s.cfg.Dimensions {
			return nil, ErrDimensionMismatch{Expected: s.cfg.Dimensions, Got: len(v)}
		}
		if segments[i].ID == "" {
			return nil, fmt.Errorf("segment %d has no ID", i)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	ids := make([]string, 0, len(segments))
	for i, seg := range segments {
		s.forget(seg.ID)

		key := s.nextKey
		s.nextKey++
		s.graph.Add(hnsw.MakeNode(key, s.prepare(vectors[i])))

		seg.Metadata = maps.Clone(seg.Metadata)
		s.keys[seg.ID] = key
		s.owners[key] = seg.ID
		s.segments[seg.ID] = seg
		ids = append(ids, seg.ID)
	}
	return ids, nil
}

// Search returns up to k live segments nearest to query, best first.
func (s *HNSWStore) Search(_ context.Context, query []float32, k int) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	if len(query) != s.cfg.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.cfg.Dimensions, Got: len(query)}
	}
	if k <= 0 || len(s.keys) == 0 {
		return []Hit{}, nil
	}

	q := s.prepare(query)
	// Orphans compete for result slots; widen the request by their number.
	nodes := s.graph.Search(q, min(k+s.graph.Len()-len(s.keys), s.graph.Len()))

	hits := make([]Hit, 0, k)
	for _, n := range nodes {
		id, live := s.owners[n.Key]
		if !live {
			continue
		}
		hits = append(hits, Hit{
			Segment: s.segments[id],
			Score:   similarity(s.graph.Distance(q, n.Value), s.cfg.Metric),
		})
		if len(hits) == k {
			break
		}
	}
	return hits, nil
}

// RemoveAll orphans the nodes of ids. Unknown IDs are ignored.
func (s *HNSWStore) RemoveAll(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for _, id := range ids {
		s.forget(id)
	}
	return nil
}

// AllIDs returns the live IDs in sorted order.
func (s *HNSWStore) AllIDs(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return slices.Sorted(maps.Keys(s.keys)), nil
}

func (s *HNSWStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	return len(s.keys), nil
}

// Contains reports whether id is live.
func (s *HNSWStore) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.keys[id]
	return ok && !s.closed
}

// HNSWStats counts graph nodes. Orphans are nodes no ID points to.
type HNSWStats struct {
	ValidIDs   int
	GraphNodes int
	Orphans    int
}

func (s *HNSWStore) Stats() HNSWStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return HNSWStats{}
	}
	nodes := s.graph.Len()
	return HNSWStats{ValidIDs: len(s.keys), GraphNodes: nodes, Orphans: nodes - len(s.keys)}
}

// compactRatio is the orphan share of the graph that triggers a rebuild.
const compactRatio = 0.2

// Save compacts the graph when needed and writes a persisted store to
// disk. An in-memory store is only compacted.
func (s *HNSWStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.compact()
	return s.persist()
}

// compact replaces the graph with one holding only live nodes, under the
// same keys. Must hold s.mu for writing.
func (s *HNSWStore) compact() {
	nodes := s.graph.Len()
	if nodes == 0 || float64(nodes-len(s.keys)) <= compactRatio*float64(nodes) {
		return
	}
	g := newGraph(s.cfg)
	for _, key := range slices.Sorted(maps.Keys(s.owners)) {
		if v, ok := s.graph.Lookup(key); ok {
			g.Add(hnsw.MakeNode(key, v))
		}
	}
	s.graph = g
}

// Close saves a persisted store and releases the graph.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if s.path != "" {
		s.compact()
	}
	err := s.persist()
	s.closed = true
	s.graph = nil
	return err
}

// persist replaces the graph file, then the sidecar. Each file is swapped
// in atomically. Must hold s.mu.
func (s *HNSWStore) persist() error {
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create vector store directory: %w", err)
	}
	if err := writeAtomic(s.path, s.graph.Export); err != nil {
		return fmt.Errorf("save hnsw graph: %w", err)
	}
	side := hnswSidecar{Config: s.cfg, IDMap: s.keys, NextKey: s.nextKey, Segments: s.segments}
	err := writeAtomic(s.path+".meta", func(w io.Writer) error {
		return gob.NewEncoder(w).Encode(side)
	})
	if err != nil {
		return fmt.Errorf("save hnsw metadata: %w", err)
	}
	return nil
}

func writeAtomic(path string, write func(io.Writer) error) error {
	f, err := renameio.TempFile("", path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Cleanup() }()

	buf := bufio.NewWriter(f)
	if err := write(buf); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	return f.CloseAtomicallyReplace()
}

func (s *HNSWStore) importGraph(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open hnsw graph: %w", err)
	}
	defer func() { _ = f.Close() }()

	// Import needs an io.ByteReader.
	if err := s.graph.Import(bufio.NewReader(f)); err != nil {
		return fmt.Errorf("import hnsw graph: %w", err)
	}
	return nil
}

func (s *HNSWStore) restore(side *hnswSidecar) {
	if side.IDMap != nil {
		s.keys = side.IDMap
	}
	if side.Segments != nil {
		s.segments = side.Segments
	}
	s.nextKey = side.NextKey
	for id, key := range s.keys {
		s.owners[key] = id
	}
}

func readSidecar(vectorPath string) (*hnswSidecar, error) {
	f, err := os.Open(vectorPath + ".meta")
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var side hnswSidecar
	if err := gob.NewDecoder(bufio.NewReader(f)).Decode(&side); err != nil {
		return nil, fmt.Errorf("decode hnsw metadata: %w", err)
	}
	return &side, nil
}

var (
	_ VectorStore = (*HNSWStore)(nil)
	_ Saver       = (*HNSWStore)(nil)
)
