package mcp

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTracked creates files under root and marks them as tracked.
func writeTracked(t *testing.T, backend *fakeBackend, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(backend.root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		backend.tracked = append(backend.tracked, p)
	}
}

func TestRegisterResources_TracksFiles(t *testing.T) {
	// Given: two tracked files and one path outside the root
	backend := newFakeBackend(t.TempDir())
	writeTracked(t, backend, map[string]string{
		"src/main.go":   "package main\n\nfunc main() {}",
		"docs/guide.md": "# Guide",
	})
	backend.tracked = append(backend.tracked, filepath.Join(filepath.Dir(backend.root), "elsewhere.go"))
	srv := newTestServer(t, backend)

	// When: registering resources
	require.NoError(t, srv.RegisterResources(context.Background()))

	// Then: only files inside the root are tracked, by relative path
	assert.Len(t, srv.tracked, 2)
	assert.Contains(t, srv.tracked, "src/main.go")
	assert.Contains(t, srv.tracked, "docs/guide.md")
}

func TestRegisterResources_RemovesStale(t *testing.T) {
	// Given: resources registered for two files
	backend := newFakeBackend(t.TempDir())
	writeTracked(t, backend, map[string]string{"a.go": "package a", "b.go": "package b"})
	srv := newTestServer(t, backend)
	require.NoError(t, srv.RegisterResources(context.Background()))

	// When: one file stops being tracked and resources refresh
	backend.tracked = backend.tracked[:0]
	writeTracked(t, backend, map[string]string{"a.go": "package a"})
	srv.refreshResources(context.Background())

	// Then: the stale file is no longer readable
	assert.Len(t, srv.tracked, 1)
	_, err := srv.handleReadResource(context.Background(), "b.go")
	requireMCPCode(t, err, ErrCodeInvalidParams)
}

func TestHandleReadResource_ReturnsContent(t *testing.T) {
	// Given: a tracked Go file
	backend := newFakeBackend(t.TempDir())
	writeTracked(t, backend, map[string]string{"src/main.go": "package main\n\nfunc main() {}"})
	srv := newTestServer(t, backend)
	require.NoError(t, srv.RegisterResources(context.Background()))

	// When: reading the resource
	result, err := srv.handleReadResource(context.Background(), "src/main.go")

	// Then: content is returned with MIME type
	require.NoError(t, err)
	require.Len(t, result.Contents, 1)
	assert.Equal(t, "file://src/main.go", result.Contents[0].URI)
	assert.Contains(t, result.Contents[0].Text, "package main")
	assert.Equal(t, "text/x-go", result.Contents[0].MIMEType)
}

func TestHandleReadResource_Errors(t *testing.T) {
	backend := newFakeBackend(t.TempDir())
	writeTracked(t, backend, map[string]string{
		"deleted.go": "package gone",
		"big.txt":    strings.Repeat("x", MaxResourceSize+1),
	})
	srv := newTestServer(t, backend)
	require.NoError(t, srv.RegisterResources(context.Background()))
	require.NoError(t, os.Remove(filepath.Join(backend.root, "deleted.go")))

	tests := []struct {
		name string
		path string
		code int
	}{
		{name: "not indexed", path: "not-indexed.go", code: ErrCodeInvalidParams},
		{name: "deleted on disk", path: "deleted.go", code: ErrCodeFileNotFound},
		{name: "too large", path: "big.txt", code: ErrCodeFileTooLarge},
		{name: "traversal", path: "../../../etc/passwd", code: ErrCodeInvalidParams},
		{name: "absolute", path: "/etc/passwd", code: ErrCodeInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := srv.handleReadResource(context.Background(), tt.path)
			requireMCPCode(t, err, tt.code)
		})
	}
}

func TestIsValidPath(t *testing.T) {
	srv := newTestServer(t, newFakeBackend("/repo"))

	tests := []struct {
		path  string
		valid bool
	}{
		{"src/main.go", true},
		{"a/../b.go", true},
		{"", false},
		{"/etc/passwd", false},
		{"C:/Windows", false},
		{"../secret", false},
		{"src/../../secret", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.valid, srv.isValidPath(tt.path))
		})
	}
}
