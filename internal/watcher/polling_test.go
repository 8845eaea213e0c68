package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPollInterval = 40 * time.Millisecond

func startPolling(t *testing.T, f Excluder, roots ...string) *PollingWatcher {
	t.Helper()
	p := NewPollingWatcher(testPollInterval, f, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = p.Stop()
	})
	require.NoError(t, p.Start(ctx, roots))
	return p
}

func collectUntil(t *testing.T, ch <-chan FileEvent, match func(FileEvent) bool) FileEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			require.True(t, ok, "events channel closed")
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("timeout waiting for polled event")
			return FileEvent{}
		}
	}
}

func TestDiffSnapshots(t *testing.T) {
	t0 := time.Unix(1700000000, 0)
	t1 := t0.Add(time.Second)
	prev := snapshot{
		"/r/kept.go":    {modTime: t0, size: 10},
		"/r/touched.go": {modTime: t0, size: 10},
		"/r/grown.go":   {modTime: t0, size: 10},
		"/r/gone.go":    {modTime: t0, size: 10},
		"/r/pkg":        {modTime: t0, isDir: true},
	}
	next := snapshot{
		"/r/kept.go":    {modTime: t0, size: 10},
		"/r/touched.go": {modTime: t1, size: 10},
		"/r/grown.go":   {modTime: t0, size: 11},
		"/r/new.go":     {modTime: t1, size: 1},
		"/r/pkg":        {modTime: t1, isDir: true},
		"/r/sub":        {modTime: t1, isDir: true},
	}

	got := diffSnapshots(prev, next, t1)

	want := []FileEvent{
		{Path: "/r/gone.go", Operation: OpDelete, Timestamp: t1},
		{Path: "/r/grown.go", Operation: OpModify, Timestamp: t1},
		{Path: "/r/new.go", Operation: OpCreate, Timestamp: t1},
		{Path: "/r/sub", Operation: OpCreate, IsDir: true, Timestamp: t1},
		{Path: "/r/touched.go", Operation: OpModify, Timestamp: t1},
	}
	assert.Equal(t, want, got)
	assert.Empty(t, diffSnapshots(next, next, t1))
}

func TestPollingWatcher_StopBeforeStart(t *testing.T) {
	p := NewPollingWatcher(testPollInterval, nil, nil)

	require.NoError(t, p.Stop())

	_, open := <-p.Errors()
	assert.False(t, open)
	assert.Error(t, p.Start(context.Background(), []string{t.TempDir()}))
}

func TestPollingWatcher_DetectsChanges(t *testing.T) {
	// Given: a polled directory with one file
	dir := t.TempDir()
	existing := filepath.Join(dir, "existing.txt")
	require.NoError(t, os.WriteFile(existing, []byte("v1"), 0o644))
	p := startPolling(t, nil, dir)

	// When/Then: a new file appears
	created := filepath.Join(dir, "new.txt")
	require.NoError(t, os.WriteFile(created, []byte("hello"), 0o644))
	collectUntil(t, p.Events(), isEvent(created, OpCreate))

	// When/Then: the existing file grows
	require.NoError(t, os.WriteFile(existing, []byte("version two"), 0o644))
	collectUntil(t, p.Events(), isEvent(existing, OpModify))

	// When/Then: a file disappears
	require.NoError(t, os.Remove(created))
	collectUntil(t, p.Events(), isEvent(created, OpDelete))
}

func TestPollingWatcher_DetectsNewDirectory(t *testing.T) {
	dir := t.TempDir()
	p := startPolling(t, nil, dir)

	sub := filepath.Join(dir, "docs")
	require.NoError(t, os.Mkdir(sub, 0o755))
	ev := collectUntil(t, p.Events(), isEvent(sub, OpCreate))
	assert.True(t, ev.IsDir)
}

func TestPollingWatcher_SkipsExcludedDirectories(t *testing.T) {
	dir := t.TempDir()
	p := startPolling(t, excludeNamed{"vendor"}, dir)

	vendored := filepath.Join(dir, "vendor", "lib.go")
	require.NoError(t, os.MkdirAll(filepath.Dir(vendored), 0o755))
	require.NoError(t, os.WriteFile(vendored, []byte("package lib"), 0o644))
	marker := filepath.Join(dir, "marker.txt")
	require.NoError(t, os.WriteFile(marker, []byte("x"), 0o644))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-p.Events():
			assert.NotContains(t, ev.Path, "vendor")
			if ev.Path == marker {
				return
			}
		case <-deadline:
			t.Fatal("timeout waiting for marker")
		}
	}
}

func TestPollingWatcher_Start_InvalidRoots(t *testing.T) {
	p := NewPollingWatcher(testPollInterval, nil, nil)
	defer func() { _ = p.Stop() }()

	err := p.Start(context.Background(), []string{filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)
}

func TestPollingWatcher_Stop_ClosesChannels(t *testing.T) {
	p := NewPollingWatcher(testPollInterval, nil, nil)
	require.NoError(t, p.Start(context.Background(), []string{t.TempDir()}))

	require.NoError(t, p.Stop())
	require.NoError(t, p.Stop())

	_, ok := <-p.Events()
	assert.False(t, ok)
}

func TestWatcher_PollingMode_EndToEnd(t *testing.T) {
	// Given: a watcher forced into polling mode
	dir := t.TempDir()
	w := startWatcher(t, Options{ForcePolling: true, PollInterval: testPollInterval}, dir)
	require.Equal(t, "polling", w.Mode())

	// When: a rule file appears
	rules := filepath.Join(dir, ".ragindexignore")
	require.NoError(t, os.WriteFile(rules, []byte("*.tmp\n"), 0o644))

	// Then: it arrives debounced as an ignore change
	waitForEvent(t, w, isEvent(rules, OpIgnoreChange))
}
