package mcp

import (
	"github.com/Aman-CERP/ragindex/internal/index"
)

// Tool names.
const (
	ToolSearch      = "search"
	ToolIndexStatus = "index_status"
	ToolReindex     = "reindex"
)

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query      string   `json:"query" jsonschema:"the search query to execute"`
	Limit      int      `json:"limit,omitempty" jsonschema:"maximum number of results per list, default 10"`
	Mode       string   `json:"mode,omitempty" jsonschema:"which indexes to query: both, keyword or vector (default both)"`
	Scope      []string `json:"scope,omitempty" jsonschema:"filter by path prefixes relative to the project root (OR logic)"`
	SourceType string   `json:"source_type,omitempty" jsonschema:"filter by source kind: folders, files or urls"`
}

// SearchOutput defines the output schema for the search tool. Keyword and
// vector results are ranked independently.
type SearchOutput struct {
	Query        string               `json:"query"`
	Keyword      []SearchResultOutput `json:"keyword" jsonschema:"keyword (BM25) matches, best first"`
	Vector       []SearchResultOutput `json:"vector" jsonschema:"semantic matches, best first"`
	KeywordError string               `json:"keyword_error,omitempty" jsonschema:"set when keyword search failed"`
	VectorError  string               `json:"vector_error,omitempty" jsonschema:"set when vector search failed"`
	Indexing     bool                 `json:"indexing,omitempty" jsonschema:"true while an indexing run is in progress; results may be incomplete"`
}

// SearchResultOutput defines a single matched segment.
type SearchResultOutput struct {
	Source       string   `json:"source" jsonschema:"file path relative to the project root, or URL"`
	Content      string   `json:"content" jsonschema:"matched segment text"`
	Score        float64  `json:"score" jsonschema:"score within its list; keyword and vector scores are not comparable"`
	StartLine    int      `json:"start_line,omitempty" jsonschema:"first line of the segment in the file"`
	EndLine      int      `json:"end_line,omitempty" jsonschema:"last line of the segment in the file"`
	ChunkIndex   int      `json:"chunk_index" jsonschema:"position of the segment within its resource"`
	MatchedTerms []string `json:"matched_terms,omitempty" jsonschema:"query terms found in the segment"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Project    ProjectInfo       `json:"project"`
	Stats      IndexStats        `json:"stats"`
	Embeddings EmbeddingInfo     `json:"embeddings"`
	Indexing   *IndexingProgress `json:"indexing,omitempty"`
	Queries    QueryStats        `json:"queries" jsonschema:"queries answered by this server since it started"`
}

// QueryStats summarizes the queries answered by this server.
type QueryStats struct {
	Total            int64            `json:"total"`
	ByMode           map[string]int64 `json:"by_mode,omitempty"`
	ZeroResults      int64            `json:"zero_results"`
	Degraded         int64            `json:"degraded" jsonschema:"queries where one retrieval path failed"`
	RepeatRate       float64          `json:"repeat_rate" jsonschema:"share of queries repeated within the recent window"`
	Latency          map[string]int64 `json:"latency,omitempty" jsonschema:"query count per latency bucket"`
	TopTerms         []string         `json:"top_terms,omitempty" jsonschema:"most frequent query terms, most frequent first"`
	RecentZeroResult []string         `json:"recent_zero_result,omitempty" jsonschema:"latest queries that found nothing"`
}

// IndexingProgress mirrors the coordinator progress snapshot.
type IndexingProgress struct {
	Status         string  `json:"status"` // IDLE, INDEXING, READY or FAILED
	FilesTotal     int     `json:"files_total"`
	FilesProcessed int     `json:"files_processed"`
	FilesIndexed   int     `json:"files_indexed"`
	FilesSkipped   int     `json:"files_skipped"`
	FilesFailed    int     `json:"files_failed"`
	FilesRemoved   int     `json:"files_removed"`
	Segments       int     `json:"segments"`
	ProgressPct    float64 `json:"progress_pct"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

// ProjectInfo contains information about the indexed project.
type ProjectInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	RootPath string `json:"root_path"`
	Type     string `json:"type"`
}

// IndexStats contains statistics about the index.
type IndexStats struct {
	Resources        int            `json:"resources"`
	ResourcesByKind  map[string]int `json:"resources_by_kind"`
	VectorCount      int            `json:"vector_count"`
	KeywordDocuments int            `json:"keyword_documents"`
	DataDir          string         `json:"data_dir"`
}

// EmbeddingInfo contains information about the embedding configuration.
type EmbeddingInfo struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	Status     string `json:"status"` // "ready" or "unavailable"
}

// ReindexInput defines the input schema for the reindex tool.
type ReindexInput struct {
	Wait bool `json:"wait,omitempty" jsonschema:"block until the run finishes instead of returning immediately"`
}

// ReindexOutput defines the output schema for the reindex tool.
type ReindexOutput struct {
	Started  bool              `json:"started"`
	Message  string            `json:"message"`
	Progress *IndexingProgress `json:"progress,omitempty"`
}

func toIndexingProgress(p index.IndexProgress) *IndexingProgress {
	out := &IndexingProgress{
		Status:         string(p.Status),
		FilesTotal:     p.TotalFiles,
		FilesProcessed: p.ProcessedFiles,
		FilesIndexed:   p.IndexedFiles,
		FilesSkipped:   p.SkippedFiles,
		FilesFailed:    p.FailedFiles,
		FilesRemoved:   p.RemovedFiles,
		Segments:       p.Segments,
		ProgressPct:    p.Percent(),
		ErrorMessage:   p.Error,
	}
	if !p.StartedAt.IsZero() {
		end := p.FinishedAt
		if end.IsZero() {
			end = timeNow()
		}
		out.ElapsedSeconds = int(end.Sub(p.StartedAt).Seconds())
	}
	return out
}
