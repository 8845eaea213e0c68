package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ragindex/internal/logging"
)

// newTestProject creates a project with a config file and two sources, and
// isolates user config and logs from the machine.
func newTestProject(t *testing.T) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv(logging.LogDirEnv, t.TempDir())
	t.Setenv("RAGINDEX_EMBEDDINGS_PROVIDER", "")

	dir := t.TempDir()
	writeFile(t, dir, ".ragindex.yaml", "version: 1\nembeddings:\n  provider: static\n  dimensions: 64\n")
	writeFile(t, dir, "main.go", "package main\n\n// TokenBucket throttles zebracorn requests.\nfunc TokenBucket() {}\n")
	writeFile(t, dir, "docs/guide.md", "# Guide\n\nThe zebracorn limiter refills tokens every second.\n")
	return dir
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

// execute runs the root command with args and returns its combined output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

// mustExecute runs the root command and fails the test on error.
func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, args...)
	require.NoError(t, err, out)
	return out
}
