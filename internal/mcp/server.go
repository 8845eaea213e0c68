package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Aman-CERP/ragindex/internal/config"
	"github.com/Aman-CERP/ragindex/internal/embed"
	"github.com/Aman-CERP/ragindex/internal/index"
	"github.com/Aman-CERP/ragindex/internal/project"
	"github.com/Aman-CERP/ragindex/internal/search"
	"github.com/Aman-CERP/ragindex/internal/state"
	"github.com/Aman-CERP/ragindex/internal/telemetry"
	"github.com/Aman-CERP/ragindex/pkg/version"
)

// ServerName is reported to MCP clients.
const ServerName = "ragindex"

// Supported transports.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

var timeNow = time.Now

// Backend is the project surface the server needs. *project.Project
// satisfies it.
type Backend interface {
	ID() string
	Root() string
	Config() *config.Config
	Embedder() embed.Embedder
	Search(ctx context.Context, query string, opts search.Options) (*search.Results, error)
	Status(ctx context.Context) (*project.StatusReport, error)
	Snapshot() index.IndexProgress
	Index(ctx context.Context) (bool, error)
	ReadOnly() bool
	TrackedResources(ctx context.Context, kinds ...state.SourceType) ([]string, error)
	QueryStats() telemetry.Snapshot
}

var _ Backend = (*project.Project)(nil)

// Server is the MCP server. It bridges AI clients with a ragindex project.
type Server struct {
	mcp     *mcp.Server
	backend Backend
	logger  *slog.Logger
	info    ProjectInfo

	// reindexing is set while a reindex tool call owns a run.
	reindexing atomic.Bool
	bg         sync.WaitGroup

	mu      sync.RWMutex
	baseCtx context.Context
	// tracked holds the registered file resources by relative path.
	tracked map[string]struct{}
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name: ToolSearch,
		Description: "Search the project index. Returns two independently ranked lists: keyword (BM25) matches " +
			"for exact identifiers and phrases, and semantic matches for meaning. Supports path scopes and source kinds.",
	},
	{
		Name:        ToolIndexStatus,
		Description: "Report whether the index is ready, how many resources and segments it holds, and which embedding model is active.",
	},
	{
		Name: ToolReindex,
		Description: "Run an incremental indexing pass. Only new or changed files and pages are re-embedded; " +
			"deleted ones are removed. Returns immediately unless wait is true.",
	},
}

// NewServer creates an MCP server over backend.
func NewServer(backend Backend, opts ...ServerOption) (*Server, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}

	s := &Server{
		backend: backend,
		logger:  slog.Default(),
		baseCtx: context.Background(),
		tracked: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.info = DetectProject(backend.Root(), s.logger)
	s.info.ID = backend.ID()

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    ServerName,
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return ServerName, version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return append([]ToolInfo(nil), tools...)
}

// CallTool invokes a tool by name with JSON-like arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case ToolSearch:
		var in SearchInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return s.handleSearch(ctx, in)
	case ToolIndexStatus:
		return s.handleIndexStatus(ctx)
	case ToolReindex:
		var in ReindexInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return s.handleReindex(ctx, in)
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func decodeArgs(args map[string]any, dst any) error {
	if len(args) == 0 {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return NewInvalidParamsError(err.Error())
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return NewInvalidParamsError(fmt.Sprintf("invalid arguments: %v", err))
	}
	return nil
}

func (s *Server) handleSearch(ctx context.Context, in SearchInput) (*SearchOutput, error) {
	out, _, err := s.runSearch(ctx, in)
	return out, err
}

func (s *Server) runSearch(ctx context.Context, in SearchInput) (*SearchOutput, *search.Results, error) {
	start := time.Now()
	requestID := generateRequestID()

	query := strings.TrimSpace(in.Query)
	if query == "" {
		return nil, nil, NewInvalidParamsError("query cannot be empty or whitespace only")
	}
	mode, ok := search.ParseMode(in.Mode)
	if !ok {
		return nil, nil, NewInvalidParamsError(fmt.Sprintf("invalid mode %q: use both, keyword or vector", in.Mode))
	}
	limit := clampLimit(in.Limit, 10, 1, 50)

	s.logger.Info("search_started",
		slog.String("request_id", requestID),
		slog.String("query", query),
		slog.String("mode", string(mode)),
		slog.Int("limit", limit))

	res, err := s.backend.Search(ctx, query, search.Options{
		Limit:      limit,
		Mode:       mode,
		Scopes:     in.Scope,
		SourceType: in.SourceType,
	})
	if err != nil {
		s.logger.Error("search_failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
		return nil, nil, MapError(err)
	}

	out := NewSearchOutput(res, s.backend.Root())
	out.Indexing = s.backend.Snapshot().Status == index.StatusIndexing

	s.logger.Info("search_completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)),
		slog.Int("keyword", len(out.Keyword)),
		slog.Int("vector", len(out.Vector)))
	return out, res, nil
}

func (s *Server) handleIndexStatus(ctx context.Context) (*IndexStatusOutput, error) {
	st, err := s.backend.Status(ctx)
	if err != nil {
		return nil, MapError(err)
	}

	byKind := make(map[string]int, len(st.Resources))
	for kind, n := range st.Resources {
		byKind[string(kind)] = n
	}

	status := "unavailable"
	if s.backend.Embedder().Available(ctx) {
		status = "ready"
	}

	return &IndexStatusOutput{
		Project: s.info,
		Stats: IndexStats{
			Resources:        st.TotalResources(),
			ResourcesByKind:  byKind,
			VectorCount:      st.Vectors,
			KeywordDocuments: st.Keywords,
			DataDir:          st.DataDir,
		},
		Embeddings: EmbeddingInfo{
			Provider:   s.backend.Config().Embeddings.Provider,
			Model:      st.Model,
			Dimensions: st.Dimensions,
			Status:     status,
		},
		Indexing: toIndexingProgress(st.Progress),
		Queries:  toQueryStats(s.backend.QueryStats()),
	}, nil
}

func toQueryStats(snap telemetry.Snapshot) QueryStats {
	out := QueryStats{
		Total:            snap.Total,
		ByMode:           snap.ByMode,
		ZeroResults:      snap.ZeroResults,
		Degraded:         snap.Degraded,
		RepeatRate:       snap.RepeatRate(),
		RecentZeroResult: snap.RecentZeroResult,
	}
	if len(snap.Latency) > 0 {
		out.Latency = make(map[string]int64, len(snap.Latency))
		for bucket, n := range snap.Latency {
			out.Latency[string(bucket)] = n
		}
	}
	for _, tc := range snap.TopTerms {
		out.TopTerms = append(out.TopTerms, tc.Term)
	}
	return out
}

// handleReindex starts an indexing run. Only one tool-initiated run may be
// active; the coordinator serializes it with watcher updates.
func (s *Server) handleReindex(ctx context.Context, in ReindexInput) (*ReindexOutput, error) {
	if s.backend.ReadOnly() {
		return nil, NewInvalidParamsError("project is open read-only; reindex from the process that holds the lock")
	}
	if !s.reindexing.CompareAndSwap(false, true) {
		return nil, MapError(ErrBusy)
	}

	if in.Wait {
		defer s.reindexing.Store(false)
		ok, err := s.backend.Index(ctx)
		if err != nil {
			return nil, MapError(err)
		}
		snap := s.backend.Snapshot()
		msg := "indexing completed"
		if !ok {
			msg = "indexing failed: " + snap.Error
		} else {
			s.refreshResources(ctx)
		}
		return &ReindexOutput{Started: true, Message: msg, Progress: toIndexingProgress(snap)}, nil
	}

	s.mu.RLock()
	base := s.baseCtx
	s.mu.RUnlock()

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		defer s.reindexing.Store(false)
		ok, err := s.backend.Index(base)
		switch {
		case err != nil:
			s.logger.Warn("reindex_failed", slog.String("error", err.Error()))
		case ok:
			s.refreshResources(base)
		}
	}()

	return &ReindexOutput{
		Started:  true,
		Message:  "indexing started; poll index_status for progress",
		Progress: toIndexingProgress(s.backend.Snapshot()),
	}, nil
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolSearch, Description: tools[0].Description}, s.mcpSearchHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolIndexStatus, Description: tools[1].Description}, s.mcpIndexStatusHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolReindex, Description: tools[2].Description}, s.mcpReindexHandler)
	s.logger.Debug("mcp_tools_registered", slog.Int("count", len(tools)))
}

// mcpSearchHandler returns the structured lists plus a markdown rendering.
func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	*SearchOutput,
	error,
) {
	out, res, err := s.runSearch(ctx, input)
	if err != nil {
		return nil, nil, err
	}
	md := FormatSearchResults(res, s.backend.Root())
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: md}}}, out, nil
}

func (s *Server) mcpIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	out, err := s.handleIndexStatus(ctx)
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

func (s *Server) mcpReindexHandler(ctx context.Context, _ *mcp.CallToolRequest, input ReindexInput) (
	*mcp.CallToolResult,
	*ReindexOutput,
	error,
) {
	out, err := s.handleReindex(ctx, input)
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

// Serve runs the server on transport until ctx is canceled. addr is used
// by the HTTP transport only.
func (s *Server) Serve(ctx context.Context, transport, addr string) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	s.logger.Info("mcp_server_starting",
		slog.String("transport", transport),
		slog.String("addr", addr))

	switch transport {
	case TransportStdio, "":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("mcp_server_stopped")
		return nil
	case TransportHTTP:
		return s.serveHTTP(ctx, addr)
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio, http)", transport)
	}
}

// serveHTTP serves the streamable HTTP transport, traced with otelhttp.
func (s *Server) serveHTTP(ctx context.Context, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.mcp
	}, nil)

	srv := &http.Server{
		Addr:              addr,
		Handler:           otelhttp.NewHandler(handler, "mcp"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		s.logger.Info("mcp_server_stopped")
		return nil
	}
	return err
}

// Close waits for a background reindex to finish. Cancel the Serve
// context first to abort it.
func (s *Server) Close() error {
	s.bg.Wait()
	return nil
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
