// Package telemetry keeps in-process statistics about search queries: how
// often each mode runs, latency, repeated and zero-result queries, and the
// most frequent terms. Nothing is persisted or sent anywhere.
package telemetry

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LatencyBucket is a latency histogram bucket.
type LatencyBucket string

const (
	BucketUnder10ms  LatencyBucket = "<10ms"
	BucketUnder50ms  LatencyBucket = "10-50ms"
	BucketUnder100ms LatencyBucket = "50-100ms"
	BucketUnder500ms LatencyBucket = "100-500ms"
	BucketSlow       LatencyBucket = ">=500ms"
)

// BucketOf returns the histogram bucket of d.
func BucketOf(d time.Duration) LatencyBucket {
	switch ms := d.Milliseconds(); {
	case ms < 10:
		return BucketUnder10ms
	case ms < 50:
		return BucketUnder50ms
	case ms < 100:
		return BucketUnder100ms
	case ms < 500:
		return BucketUnder500ms
	default:
		return BucketSlow
	}
}

// Query describes one answered search.
type Query struct {
	Text     string
	Mode     string
	Keyword  int // keyword results returned
	Vector   int // vector results returned
	Degraded bool
	Latency  time.Duration
}

// ZeroResult reports whether both lists came back empty.
func (q Query) ZeroResult() bool {
	return q.Keyword+q.Vector == 0
}

// Terms returns the lowercased words of a query with at least three
// characters.
func Terms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

// TermCount is a term and how often it was queried.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is a point-in-time copy of the statistics.
type Snapshot struct {
	Total       int64                   `json:"total"`
	ByMode      map[string]int64        `json:"by_mode"`
	ZeroResults int64                   `json:"zero_results"`
	Degraded    int64                   `json:"degraded"`
	Repeats     int64                   `json:"repeats"`
	Latency     map[LatencyBucket]int64 `json:"latency"`
	TopTerms    []TermCount             `json:"top_terms,omitempty"`
	// RecentZeroResult holds the latest queries that found nothing, oldest
	// first.
	RecentZeroResult []string  `json:"recent_zero_result,omitempty"`
	Since            time.Time `json:"since"`
}

// RepeatRate returns the share of queries seen before among recent queries.
func (s Snapshot) RepeatRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Repeats) / float64(s.Total)
}

// Config bounds the memory used by QueryStats.
type Config struct {
	// Terms is the number of distinct terms tracked.
	Terms int
	// ZeroResults is the number of recent zero-result queries kept.
	ZeroResults int
	// RecentQueries is the window used to detect repeated queries.
	RecentQueries int
}

// DefaultConfig returns the default bounds.
func DefaultConfig() Config {
	return Config{Terms: 100, ZeroResults: 50, RecentQueries: 500}
}

// QueryStats aggregates Query records. It is safe for concurrent use.
type QueryStats struct {
	mu sync.Mutex

	total    int64
	zero     int64
	degraded int64
	repeats  int64
	byMode   map[string]int64
	latency  map[LatencyBucket]int64
	since    time.Time

	terms      *lru.Cache[string, int64]
	recent     *lru.Cache[string, struct{}]
	zeroRecent *Ring[string]
}

// New creates empty statistics.
func New(cfg Config) *QueryStats {
	def := DefaultConfig()
	if cfg.Terms <= 0 {
		cfg.Terms = def.Terms
	}
	if cfg.ZeroResults <= 0 {
		cfg.ZeroResults = def.ZeroResults
	}
	if cfg.RecentQueries <= 0 {
		cfg.RecentQueries = def.RecentQueries
	}

	// lru.New only fails on a non-positive size.
	terms, _ := lru.New[string, int64](cfg.Terms)
	recent, _ := lru.New[string, struct{}](cfg.RecentQueries)

	return &QueryStats{
		byMode:     make(map[string]int64),
		latency:    make(map[LatencyBucket]int64),
		since:      time.Now(),
		terms:      terms,
		recent:     recent,
		zeroRecent: NewRing[string](cfg.ZeroResults),
	}
}

// Record adds one query.
func (s *QueryStats) Record(q Query) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	s.byMode[q.Mode]++
	s.latency[BucketOf(q.Latency)]++
	if q.Degraded {
		s.degraded++
	}
	if q.ZeroResult() {
		s.zero++
		s.zeroRecent.Add(q.Text)
	}

	for _, term := range Terms(q.Text) {
		n, _ := s.terms.Get(term)
		s.terms.Add(term, n+1)
	}

	key := queryKey(q.Text)
	if s.recent.Contains(key) {
		s.repeats++
	}
	s.recent.Add(key, struct{}{})
}

// Snapshot copies the statistics. TopTerms holds at most topN entries,
// most frequent first.
func (s *QueryStats) Snapshot(topN int) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Total:            s.total,
		ByMode:           make(map[string]int64, len(s.byMode)),
		ZeroResults:      s.zero,
		Degraded:         s.degraded,
		Repeats:          s.repeats,
		Latency:          make(map[LatencyBucket]int64, len(s.latency)),
		RecentZeroResult: s.zeroRecent.Items(),
		Since:            s.since,
	}
	for k, v := range s.byMode {
		snap.ByMode[k] = v
	}
	for k, v := range s.latency {
		snap.Latency[k] = v
	}

	for _, term := range s.terms.Keys() {
		if n, ok := s.terms.Peek(term); ok {
			snap.TopTerms = append(snap.TopTerms, TermCount{Term: term, Count: n})
		}
	}
	slices.SortFunc(snap.TopTerms, func(a, b TermCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return strings.Compare(a.Term, b.Term)
	})
	if topN >= 0 && len(snap.TopTerms) > topN {
		snap.TopTerms = snap.TopTerms[:topN]
	}
	return snap
}

// Reset drops all statistics.
func (s *QueryStats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total, s.zero, s.degraded, s.repeats = 0, 0, 0, 0
	clear(s.byMode)
	clear(s.latency)
	s.terms.Purge()
	s.recent.Purge()
	s.zeroRecent.Reset()
	s.since = time.Now()
}

// queryKey normalizes a query for repeat detection.
func queryKey(query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query))))
	return hex.EncodeToString(sum[:16])
}
