package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ragindex/internal/index"
	"github.com/Aman-CERP/ragindex/internal/ui"
)

func statusJSON(t *testing.T, args ...string) ui.StatusInfo {
	t.Helper()
	out := mustExecute(t, args...)
	var info ui.StatusInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info), out)
	return info
}

func TestStatusCmd_JSON(t *testing.T) {
	// Given: an indexed project
	dir := newTestProject(t)
	mustExecute(t, "-C", dir, "index", "--no-tui")

	// When: reading status as JSON
	info := statusJSON(t, "-C", dir, "status", "--json")

	// Then: counts and probes are filled in
	assert.GreaterOrEqual(t, info.Resources["folders"], 2)
	assert.Positive(t, info.Vectors)
	assert.Equal(t, info.Vectors, info.Keywords)
	assert.Equal(t, "static", info.EmbedderType)
	assert.Equal(t, "ready", info.EmbedderStatus)
	assert.Equal(t, 64, info.EmbedderDimensions)
	assert.Equal(t, "free", info.LockStatus)
	assert.Positive(t, info.StorageSize)
	assert.False(t, info.LastIndexed.IsZero())
	assert.Nil(t, info.Consistency)
}

func TestStatusCmd_Check(t *testing.T) {
	dir := newTestProject(t)
	mustExecute(t, "-C", dir, "index", "--no-tui")

	info := statusJSON(t, "-C", dir, "status", "--json", "--check")

	require.NotNil(t, info.Consistency)
	assert.True(t, info.Consistency.Consistent())
	assert.Equal(t, info.Vectors, info.Consistency.Checked)
	assert.False(t, info.Consistency.Repaired)
}

func TestStatusCmd_RepairHoldsLock(t *testing.T) {
	dir := newTestProject(t)
	mustExecute(t, "-C", dir, "index", "--no-tui")

	info := statusJSON(t, "-C", dir, "status", "--json", "--repair")

	require.NotNil(t, info.Consistency)
	assert.True(t, info.Consistency.Repaired)
	assert.Equal(t, "held (this process)", info.LockStatus)
}

func TestStatusCmd_EmptyProject(t *testing.T) {
	dir := newTestProject(t)

	out := mustExecute(t, "-C", dir, "status")

	assert.Contains(t, out, "static")
}

func TestConsistencyInfo(t *testing.T) {
	result := &index.CheckResult{
		Checked: 5,
		Inconsistencies: []index.Inconsistency{
			{Type: index.InconsistencyOrphanVector, SegmentID: "a"},
			{Type: index.InconsistencyOrphanVector, SegmentID: "b"},
			{Type: index.InconsistencyMissingKeyword, SegmentID: "c"},
		},
	}

	info := consistencyInfo(result, true)

	assert.Equal(t, 5, info.Checked)
	assert.Equal(t, map[string]int{"orphan_vector": 2, "missing_keyword": 1}, info.Issues)
	assert.True(t, info.Repaired)
	assert.False(t, info.Consistent())
}

func TestDirSize(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), make([]byte, 100), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b"), make([]byte, 50), 0o644))

	assert.Equal(t, int64(150), dirSize(dir))
	assert.Zero(t, dirSize(filepath.Join(dir, "missing")))
}

func TestClearCmd(t *testing.T) {
	// Given: an indexed project
	dir := newTestProject(t)
	mustExecute(t, "-C", dir, "index", "--no-tui")

	// When: clearing it
	out := mustExecute(t, "-C", dir, "clear")

	// Then: the summary names what was removed and the stores are empty
	assert.Contains(t, out, "Cleared")
	info := statusJSON(t, "-C", dir, "status", "--json")
	assert.Zero(t, info.Vectors)
	assert.Zero(t, info.Keywords)
	assert.Zero(t, info.Resources["folders"])
}

func TestFormatAge(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Minute, "less than 1 hour"},
		{time.Hour, "1 hour"},
		{5 * time.Hour, "5 hours"},
		{30 * time.Hour, "1 day"},
		{72 * time.Hour, "3 days"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatAge(tt.d))
		})
	}
}
