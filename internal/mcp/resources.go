package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/ragindex/internal/state"
)

// MaxResourceSize is the largest file served as a resource (1 MiB).
const MaxResourceSize = 1024 * 1024

// RegisterResources registers every tracked local file as an MCP resource.
// URL resources are not exposed. Call it before serving; reindex runs
// refresh the set.
func (s *Server) RegisterResources(ctx context.Context) error {
	ids, err := s.backend.TrackedResources(ctx, state.SourceFolders, state.SourceFiles)
	if err != nil {
		return fmt.Errorf("failed to list tracked resources: %w", err)
	}

	root := s.backend.Root()
	next := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		rel, err := filepath.Rel(root, id)
		if err != nil || !s.isValidPath(rel) {
			continue
		}
		next[filepath.ToSlash(rel)] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []string
	for rel := range s.tracked {
		if _, ok := next[rel]; !ok {
			stale = append(stale, resourceURI(rel))
		}
	}
	if len(stale) > 0 {
		s.mcp.RemoveResources(stale...)
	}
	added := 0
	for rel := range next {
		if _, ok := s.tracked[rel]; ok {
			continue
		}
		s.registerFileResource(rel)
		added++
	}
	s.tracked = next

	s.logger.Info("resources_registered",
		slog.Int("count", len(next)),
		slog.Int("added", added),
		slog.Int("removed", len(stale)))
	return nil
}

// refreshResources re-registers resources after a successful run.
func (s *Server) refreshResources(ctx context.Context) {
	if err := s.RegisterResources(ctx); err != nil {
		s.logger.Warn("resources_refresh_failed", slog.String("error", err.Error()))
	}
}

func resourceURI(rel string) string {
	return "file://" + rel
}

// registerFileResource registers a single file as an MCP resource.
func (s *Server) registerFileResource(rel string) {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:     filepath.Base(rel),
			URI:      resourceURI(rel),
			MIMEType: MimeTypeForPath(rel),
		},
		s.makeFileHandler(rel),
	)
}

// makeFileHandler creates a read handler for a specific file path.
func (s *Server) makeFileHandler(rel string) mcp.ResourceHandler {
	return func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return s.handleReadResource(ctx, rel)
	}
}

// handleReadResource reads a tracked file relative to the project root.
func (s *Server) handleReadResource(_ context.Context, rel string) (*mcp.ReadResourceResult, error) {
	if !s.isValidPath(rel) {
		return nil, NewInvalidParamsError(fmt.Sprintf("invalid path: %s", rel))
	}

	s.mu.RLock()
	_, ok := s.tracked[filepath.ToSlash(rel)]
	s.mu.RUnlock()
	if !ok {
		return nil, NewInvalidParamsError(fmt.Sprintf("file not indexed: %s", rel))
	}

	fullPath := filepath.Join(s.backend.Root(), filepath.FromSlash(rel))
	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &MCPError{
				Code:    ErrCodeFileNotFound,
				Message: fmt.Sprintf("file not found: %s", rel),
			}
		}
		return nil, MapError(err)
	}
	if info.Size() > MaxResourceSize {
		return nil, &MCPError{
			Code:    ErrCodeFileTooLarge,
			Message: fmt.Sprintf("file too large: %s (max %s)", humanize.IBytes(uint64(info.Size())), humanize.IBytes(MaxResourceSize)),
		}
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, MapError(err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      resourceURI(rel),
				MIMEType: MimeTypeForPath(rel),
				Text:     string(content),
			},
		},
	}, nil
}

// isValidPath reports whether a relative path stays inside the root.
func (s *Server) isValidPath(path string) bool {
	if path == "" || filepath.IsAbs(path) {
		return false
	}
	if len(path) >= 2 && path[1] == ':' {
		return false
	}
	cleaned := filepath.Clean(path)
	for _, part := range strings.Split(filepath.ToSlash(cleaned), "/") {
		if part == ".." {
			return false
		}
	}
	return true
}

