package filter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootDetector_NearestMarkerWins(t *testing.T) {
	// Given: a monorepo with a VCS root and a nested node service
	repo := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(repo, ".git"), 0o755))
	writeFile(t, filepath.Join(repo, "svc", "package.json"), "{}")
	writeFile(t, filepath.Join(repo, "svc", "src", "a.js"), "x")
	writeFile(t, filepath.Join(repo, "docs", "x.md"), "x")

	d, err := NewRootDetector(repo, DefaultProjectTypes)
	require.NoError(t, err)

	// Then: the service owns its files, the VCS root owns the rest
	svc := d.Detect(filepath.Join(repo, "svc", "src"))
	assert.Equal(t, filepath.Join(repo, "svc"), svc.Dir)
	assert.Equal(t, []string{"node"}, svc.Types)

	docs := d.Detect(filepath.Join(repo, "docs"))
	assert.Equal(t, repo, docs.Dir)
	assert.Empty(t, docs.Types)
}

func TestRootDetector_MultipleTypesAndGlobMarkers(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "go.mod"), "module x")
	writeFile(t, filepath.Join(root, "App.csproj"), "<Project/>")

	d, err := NewRootDetector(root, DefaultProjectTypes)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"go", "dotnet"}, d.Detect(root).Types)
}

func TestRootDetector_FallsBackToBoundary(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	d, err := NewRootDetector(root, DefaultProjectTypes)
	require.NoError(t, err)

	assert.Equal(t, root, d.Detect(sub).Dir)
	assert.Equal(t, root, d.Boundary())
}

func TestRootDetector_CachesUntilPurge(t *testing.T) {
	// Given: a detected node root
	root := t.TempDir()
	marker := filepath.Join(root, "svc", "package.json")
	writeFile(t, marker, "{}")
	d, err := NewRootDetector(root, DefaultProjectTypes)
	require.NoError(t, err)
	require.Equal(t, []string{"node"}, d.Detect(filepath.Join(root, "svc")).Types)

	// When: the marker disappears
	require.NoError(t, os.Remove(marker))

	// Then: the cached answer holds until purged
	assert.Equal(t, []string{"node"}, d.Detect(filepath.Join(root, "svc")).Types)
	d.Purge()
	assert.Equal(t, root, d.Detect(filepath.Join(root, "svc")).Dir)
}
