package ui

import (
	"bytes"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ragindex/internal/index"
)

func newTestDashboard(tracker *ProgressTracker, dir string) *dashboard {
	d := newDashboard(tracker, dir, spinner.Dot)
	d.styles = NoColorStyles()
	return d
}

func TestNewTUIRenderer_RejectsNonTerminal(t *testing.T) {
	r, err := NewTUIRenderer(NewConfig(&bytes.Buffer{}))

	require.ErrorIs(t, err, errNotTerminal)
	assert.Nil(t, r)
}

func TestDashboard_BeforeTotalKnown(t *testing.T) {
	view := newTestDashboard(NewProgressTracker(), "").View()

	for _, want := range []string{"ragindex", "Scan", "Index", "Done", "Preparing...", "q quit"} {
		assert.Contains(t, view, want)
	}
}

func TestDashboard_MidRun(t *testing.T) {
	// Given: a tracker half way through a run with failures
	tracker := NewProgressTracker()
	tracker.Update(index.IndexProgress{
		Status:         index.StatusIndexing,
		TotalFiles:     100,
		ProcessedFiles: 50,
		IndexedFiles:   30,
		SkippedFiles:   20,
		FailedFiles:    2,
		RemovedFiles:   1,
		Segments:       240,
	})

	// When: rendering
	view := newTestDashboard(tracker, "/work/api").View()

	// Then: the scan stage is done and counters are shown
	for _, want := range []string{
		"✓ Scan", "50 / 100 resources", "50.0%", "240", "segments",
		"unchanged", "2 failed", "/work/api", "now 0.0/s",
	} {
		assert.Contains(t, view, want)
	}
}

func TestDashboard_Summary(t *testing.T) {
	tests := []struct {
		name  string
		stats CompletionStats
		want  []string
	}{
		{
			name: "success",
			stats: CompletionStats{
				Indexed: 100, Skipped: 4, Segments: 500, Duration: 90 * time.Second,
				Embedder: EmbedderInfo{Backend: "static", Model: "static-hash", Dimensions: 64},
			},
			want: []string{"Indexing Complete", "100", "500", "1m30s", "static static-hash (64 dims)"},
		},
		{
			name:  "partial failures",
			stats: CompletionStats{Indexed: 3, Failed: 2},
			want:  []string{"Indexing Complete", "2 failed"},
		},
		{
			name:  "failure",
			stats: CompletionStats{Error: "vector store unavailable"},
			want:  []string{"Indexing Failed", "vector store unavailable"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDashboard(NewProgressTracker(), "")

			_, cmd := d.Update(finishedMsg(tt.stats))

			assert.NotNil(t, cmd)
			view := d.View()
			for _, w := range tt.want {
				assert.Contains(t, view, w)
			}
		})
	}
}

func TestDashboard_QuitKey(t *testing.T) {
	d := newTestDashboard(NewProgressTracker(), "")

	_, cmd := d.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})

	assert.NotNil(t, cmd)
	assert.Equal(t, "Cancelled.\n", d.View())
}

func TestDashboard_ResizeKeepsMinimumBar(t *testing.T) {
	d := newTestDashboard(NewProgressTracker(), "")

	d.Update(tea.WindowSizeMsg{Width: 30, Height: 10})
	assert.Equal(t, 16, d.bar.Width)

	d.Update(tea.WindowSizeMsg{Width: 124, Height: 40})
	assert.Equal(t, 100, d.bar.Width)
}

func TestSpinnerFor(t *testing.T) {
	assert.Equal(t, spinner.Meter, spinnerFor("meter"))
	assert.Equal(t, spinner.Line, spinnerFor("line"))
	assert.Equal(t, spinner.Dot, spinnerFor("unknown"))
}

func TestHumanDuration(t *testing.T) {
	tests := map[time.Duration]string{
		0:                       "0s",
		45 * time.Second:        "45s",
		2 * time.Minute:         "2m00s",
		125 * time.Second:       "2m05s",
		61 * time.Minute:        "1h01m",
		1499 * time.Millisecond: "1s",
	}
	for d, want := range tests {
		assert.Equal(t, want, humanDuration(d), d.String())
	}
}

func TestShortenPath(t *testing.T) {
	assert.Equal(t, "src/main.go", shortenPath("src/main.go", 50))
	assert.Equal(t, "", shortenPath("", 50))

	long := shortenPath("/home/dev/src/components/very/deeply/nested/file.go", 30)
	assert.LessOrEqual(t, len(long), 30)
	assert.Contains(t, long, "...")
	assert.Contains(t, long, "/nested/file.go")
}
