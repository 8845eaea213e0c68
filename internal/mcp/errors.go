// Package mcp exposes a ragindex project over the Model Context Protocol:
// search, index_status and reindex tools plus tracked files as resources.
package mcp

import (
	"context"
	"errors"
	"fmt"

	ragerrors "github.com/Aman-CERP/ragindex/internal/errors"
)

// JSON-RPC error codes. The -3200x range is specific to ragindex.
const (
	ErrCodeIndexNotFound   = -32001
	ErrCodeEmbeddingFailed = -32002
	// ErrCodeTimeout covers deadlines, cancellation and unreachable
	// network dependencies.
	ErrCodeTimeout      = -32003
	ErrCodeFileNotFound = -32004
	ErrCodeFileTooLarge = -32005
	// ErrCodeBusy means the project lock is held or a run is in progress.
	ErrCodeBusy = -32006

	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// ErrBusy is returned when a reindex is requested during a run.
var ErrBusy = errors.New("indexing already in progress")

// MCPError is an error reported to the client with a JSON-RPC code.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// sentinels lists errors with a fixed client message, checked in order.
var sentinels = []struct {
	err  error
	code int
	msg  string
}{
	{ErrBusy, ErrCodeBusy, "Indexing is already in progress. Poll index_status."},
	{context.DeadlineExceeded, ErrCodeTimeout, "Request timed out."},
	{context.Canceled, ErrCodeTimeout, "Request was canceled."},
}

// byCode maps ragindex error codes whose client code differs from their
// category default.
var byCode = map[string]int{
	ragerrors.ErrCodeFileNotFound:    ErrCodeFileNotFound,
	ragerrors.ErrCodeFileTooLarge:    ErrCodeFileTooLarge,
	ragerrors.ErrCodeCorruptIndex:    ErrCodeIndexNotFound,
	ragerrors.ErrCodeLocked:          ErrCodeBusy,
	ragerrors.ErrCodeEmbeddingFailed: ErrCodeEmbeddingFailed,
}

var byCategory = map[ragerrors.Category]int{
	ragerrors.CategoryNetwork:    ErrCodeTimeout,
	ragerrors.CategoryValidation: ErrCodeInvalidParams,
}

// MapError converts err into the error reported to the client. Structured
// ragindex errors keep their message and suggestion; anything else
// unrecognized becomes a generic internal error.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}
	var ragErr *ragerrors.RagError
	if errors.As(err, &ragErr) {
		return fromRagError(ragErr)
	}
	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return &MCPError{Code: s.code, Message: s.msg}
		}
	}
	return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
}

func fromRagError(e *ragerrors.RagError) *MCPError {
	msg := e.Message
	if e.Suggestion != "" {
		msg += " " + e.Suggestion
	}
	code, ok := byCode[e.Code]
	if !ok {
		code, ok = byCategory[e.Category]
	}
	if !ok {
		code = ErrCodeInternalError
	}
	return &MCPError{Code: code, Message: msg}
}

// NewInvalidParamsError reports bad tool arguments.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError reports an unknown tool.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("Tool '%s' not found.", name)}
}
