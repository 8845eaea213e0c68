package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ragerrors "github.com/Aman-CERP/ragindex/internal/errors"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{"deadline", context.DeadlineExceeded, ErrCodeTimeout, "timed out"},
		{"canceled", context.Canceled, ErrCodeTimeout, "canceled"},
		{"busy", ErrBusy, ErrCodeBusy, "Poll index_status"},
		{"wrapped busy", fmt.Errorf("reindex: %w", ErrBusy), ErrCodeBusy, "already in progress"},
		{"unknown", errors.New("disk on fire"), ErrCodeInternalError, "Internal server error."},
		{
			"file not found",
			ragerrors.New(ragerrors.ErrCodeFileNotFound, "file 'config.yaml' not found", nil),
			ErrCodeFileNotFound, "config.yaml",
		},
		{
			"file too large",
			ragerrors.New(ragerrors.ErrCodeFileTooLarge, "file too large", nil),
			ErrCodeFileTooLarge, "too large",
		},
		{
			"corrupt index",
			ragerrors.New(ragerrors.ErrCodeCorruptIndex, "vector store unreadable", nil),
			ErrCodeIndexNotFound, "unreadable",
		},
		{
			"locked",
			ragerrors.New(ragerrors.ErrCodeLocked, "project is locked", nil),
			ErrCodeBusy, "locked",
		},
		{
			"embedding failed",
			ragerrors.New(ragerrors.ErrCodeEmbeddingFailed, "empty embedding returned", nil),
			ErrCodeEmbeddingFailed, "empty embedding",
		},
		{
			"network category",
			ragerrors.New(ragerrors.ErrCodeNetworkTimeout, "connection timed out", nil),
			ErrCodeTimeout, "connection timed out",
		},
		{
			"validation category",
			ragerrors.New(ragerrors.ErrCodeInvalidInput, "query cannot be empty", nil),
			ErrCodeInvalidParams, "query cannot be empty",
		},
		{
			"internal category",
			ragerrors.New(ragerrors.ErrCodeInternal, "unexpected error", nil),
			ErrCodeInternalError, "unexpected error",
		},
		{
			"wrapped rag error",
			fmt.Errorf("search: %w", ragerrors.New(ragerrors.ErrCodeNetworkTimeout, "timeout", nil)),
			ErrCodeTimeout, "timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)

			require.NotNil(t, got)
			assert.Equal(t, tt.code, got.Code)
			assert.Contains(t, got.Message, tt.msg)
		})
	}
}

func TestMapError_Nil(t *testing.T) {
	assert.Nil(t, MapError(nil))
}

func TestMapError_AppendsSuggestion(t *testing.T) {
	// Given: a structured error with a suggestion
	err := ragerrors.New(ragerrors.ErrCodeFileNotFound, "file not found", nil).
		WithSuggestion("Run 'ragindex index' to refresh.")

	// When: mapping it
	got := MapError(err)

	// Then: the client sees both
	assert.Equal(t, "file not found Run 'ragindex index' to refresh.", got.Message)
}

func TestMapError_MCPErrorPassesThrough(t *testing.T) {
	orig := NewInvalidParamsError("limit must be positive")

	got := MapError(fmt.Errorf("tool: %w", orig))

	assert.Same(t, orig, got)
}

func TestMCPError_Constructors(t *testing.T) {
	params := NewInvalidParamsError("bad scope")
	assert.Equal(t, ErrCodeInvalidParams, params.Code)
	assert.Equal(t, "MCP error -32602: bad scope", params.Error())

	missing := NewMethodNotFoundError("summarize")
	assert.Equal(t, ErrCodeMethodNotFound, missing.Code)
	assert.Equal(t, "Tool 'summarize' not found.", missing.Message)
}
