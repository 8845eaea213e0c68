package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
)

// codeTokenizerType is registered with Bleve once; each index mapping
// configures its own instance with the stop words it was opened with.
const (
	codeTokenizerType = "ragindex_code"
	codeTokenizerName = "ragindex_code_cfg"
	codeAnalyzerName  = "ragindex_code_analyzer"
)

const (
	fieldTerms    = "terms"
	fieldResource = "resource_id"
	fieldText     = "text"
	fieldMetadata = "metadata"
)

// removePage bounds how many documents one RemoveByResource round deletes.
const removePage = 1000

func init() {
	_ = registry.RegisterTokenizer(codeTokenizerType, newCodeTokenizer)
}

// BleveKeywordIndex is the Bleve-backed KeywordIndex. A disk index is held
// under an exclusive file lock by Bleve itself, so one process at a time.
type BleveKeywordIndex struct {
	mu     sync.RWMutex
	idx    bleve.Index
	closed bool
}

type bleveDoc struct {
	Terms      string `json:"terms"`
	ResourceID string `json:"resource_id"`
	Text       string `json:"text"`
	Metadata   string `json:"metadata"`
}

// NewBleveKeywordIndex opens the index at path, creating it when absent.
// An empty path gives an in-memory index. An index whose metadata is
// unreadable is removed and recreated empty.
func NewBleveKeywordIndex(path string, cfg BM25Config) (*BleveKeywordIndex, error) {
	m, err := bleveMapping(cfg.StopWords)
	if err != nil {
		return nil, err
	}
	if path == "" {
		idx, err := bleve.NewMemOnly(m)
		if err != nil {
			return nil, fmt.Errorf("create in-memory keyword index: %w", err)
		}
		return &BleveKeywordIndex{idx: idx}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create keyword index directory: %w", err)
	}
	if problem := checkBleveMeta(path); problem != nil {
		slog.Warn("keyword_index_discarded",
			slog.String("path", path),
			slog.String("reason", problem.Error()))
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("remove unreadable keyword index %s: %w", path, err)
		}
	}

	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, m)
	}
	if err != nil {
		return nil, fmt.Errorf("open keyword index %s: %w", path, err)
	}
	return &BleveKeywordIndex{idx: idx}, nil
}

// checkBleveMeta returns nil for a missing index or one whose
// index_meta.json is present and valid JSON.
func checkBleveMeta(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(path, "index_meta.json"))
	switch {
	case err != nil:
		return fmt.Errorf("read index_meta.json: %w", err)
	case len(data) == 0:
		return errors.New("index_meta.json is empty")
	case !json.Valid(data):
		return errors.New("index_meta.json is not valid JSON")
	}
	return nil
}

// bleveMapping analyzes terms with the code tokenizer, matches resource_id
// exactly and stores text and metadata without indexing them.
func bleveMapping(stopWords []string) (*mapping.IndexMappingImpl, error) {
	m := bleve.NewIndexMapping()

	words := make([]any, len(stopWords))
	for i, w := range stopWords {
		words[i] = w
	}
	if err := m.AddCustomTokenizer(codeTokenizerName, map[string]any{
		"type":       codeTokenizerType,
		"stop_words": words,
	}); err != nil {
		return nil, fmt.Errorf("configure code tokenizer: %w", err)
	}
	if err := m.AddCustomAnalyzer(codeAnalyzerName, map[string]any{
		"type":      custom.Name,
		"tokenizer": codeTokenizerName,
	}); err != nil {
		return nil, fmt.Errorf("configure code analyzer: %w", err)
	}

	terms := bleve.NewTextFieldMapping()
	terms.Analyzer = codeAnalyzerName
	terms.Store = false

	resource := bleve.NewKeywordFieldMapping()
	resource.Analyzer = keyword.Name

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt(fieldTerms, terms)
	doc.AddFieldMappingsAt(fieldResource, resource)
	for _, name := range []string{fieldText, fieldMetadata} {
		stored := bleve.NewTextFieldMapping()
		stored.Index = false
		stored.IncludeInAll = false
		doc.AddFieldMappingsAt(name, stored)
	}

	m.DefaultMapping = doc
	m.DefaultAnalyzer = codeAnalyzerName
	return m, nil
}

// IndexDocuments writes segments in one batch, replacing existing IDs.
func (b *BleveKeywordIndex) IndexDocuments(_ context.Context, segments []Segment) error {
	if len(segments) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	batch := b.idx.NewBatch()
	for _, seg := range segments {
		meta, err := json.Marshal(seg.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata of %s: %w", seg.ID, err)
		}
		doc := bleveDoc{Terms: seg.Text, ResourceID: seg.ResourceID, Text: seg.Text, Metadata: string(meta)}
		if err := batch.Index(seg.ID, doc); err != nil {
			return fmt.Errorf("index %s: %w", seg.ID, err)
		}
	}
	if err := b.idx.Batch(batch); err != nil {
		return fmt.Errorf("write keyword batch: %w", err)
	}
	return nil
}

// Search returns up to limit segments matching query, best BM25 score
// first.
func (b *BleveKeywordIndex) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}
	if limit <= 0 || strings.TrimSpace(query) == "" {
		return []Hit{}, nil
	}

	q := bleve.NewMatchQuery(query)
	q.SetField(fieldTerms)
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = []string{fieldResource, fieldText, fieldMetadata}

	res, err := b.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		seg, err := segmentFromFields(h.ID, h.Fields)
		if err != nil {
			return nil, err
		}
		hits = append(hits, Hit{Segment: seg, Score: h.Score})
	}
	return hits, nil
}

func segmentFromFields(id string, fields map[string]any) (Segment, error) {
	seg := Segment{ID: id}
	seg.ResourceID, _ = fields[fieldResource].(string)
	seg.Text, _ = fields[fieldText].(string)
	if raw, _ := fields[fieldMetadata].(string); raw != "" {
		if err := json.Unmarshal([]byte(raw), &seg.Metadata); err != nil {
			return Segment{}, fmt.Errorf("decode metadata of %s: %w", id, err)
		}
	}
	return seg, nil
}

// RemoveByResource deletes every document of resourceID, a page at a time.
func (b *BleveKeywordIndex) RemoveByResource(ctx context.Context, resourceID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	q := bleve.NewTermQuery(resourceID)
	q.SetField(fieldResource)
	for {
		res, err := b.idx.SearchInContext(ctx, bleve.NewSearchRequestOptions(q, removePage, 0, false))
		if err != nil {
			return fmt.Errorf("find documents of %s: %w", resourceID, err)
		}
		if len(res.Hits) == 0 {
			return nil
		}
		batch := b.idx.NewBatch()
		for _, h := range res.Hits {
			batch.Delete(h.ID)
		}
		if err := b.idx.Batch(batch); err != nil {
			return fmt.Errorf("delete documents of %s: %w", resourceID, err)
		}
		if len(res.Hits) < removePage {
			return nil
		}
	}
}

// AllIDs returns every document ID in sorted order.
func (b *BleveKeywordIndex) AllIDs(ctx context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}

	n, err := b.idx.DocCount()
	if err != nil {
		return nil, fmt.Errorf("count keyword documents: %w", err)
	}
	if n == 0 {
		return []string{}, nil
	}
	res, err := b.idx.SearchInContext(ctx, bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), int(n), 0, false))
	if err != nil {
		return nil, fmt.Errorf("list keyword documents: %w", err)
	}
	ids := make([]string, 0, len(res.Hits))
	for _, h := range res.Hits {
		ids = append(ids, h.ID)
	}
	slices.Sort(ids)
	return ids, nil
}

func (b *BleveKeywordIndex) Count(context.Context) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, ErrClosed
	}
	n, err := b.idx.DocCount()
	if err != nil {
		return 0, fmt.Errorf("count keyword documents: %w", err)
	}
	return int(n), nil
}

// Close releases the index and its file lock. Later calls are no-ops.
func (b *BleveKeywordIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.idx.Close()
}

// codeTokenizer feeds TokenizeCode output to Bleve, stop words removed.
type codeTokenizer struct {
	stop map[string]struct{}
}

func newCodeTokenizer(cfg map[string]any, _ *registry.Cache) (analysis.Tokenizer, error) {
	words := DefaultStopWords
	if raw, ok := cfg["stop_words"].([]any); ok {
		words = make([]string, 0, len(raw))
		for _, w := range raw {
			if s, ok := w.(string); ok {
				words = append(words, s)
			}
		}
	}
	return &codeTokenizer{stop: BuildStopWordMap(words)}, nil
}

// Tokenize locates each term in the lowercased input to give it byte
// offsets. A term not found verbatim takes the current offset.
func (t *codeTokenizer) Tokenize(input []byte) analysis.TokenStream {
	lower := strings.ToLower(string(input))
	terms := analyze(string(input), t.stop)

	stream := make(analysis.TokenStream, 0, len(terms))
	at := 0
	for pos, term := range terms {
		start := at
		if i := strings.Index(lower[at:], term); i >= 0 {
			start = at + i
		}
		end := min(start+len(term), len(lower))
		stream = append(stream, &analysis.Token{
			Term:     []byte(term),
			Start:    start,
			End:      end,
			Position: pos + 1,
			Type:     analysis.AlphaNumeric,
		})
		at = end
	}
	return stream
}

var _ KeywordIndex = (*BleveKeywordIndex)(nil)
