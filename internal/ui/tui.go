package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Aman-CERP/ragindex/internal/index"
)

// errNotTerminal is returned by NewTUIRenderer for non-terminal output.
var errNotTerminal = errors.New("output is not a terminal")

// stopTimeout bounds how long Stop waits for the program to exit.
const stopTimeout = 2 * time.Second

// TUIRenderer draws a live dashboard of an indexing run with bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	tracker *ProgressTracker
	board   *dashboard
	program *tea.Program
	exited  chan struct{}
}

// NewTUIRenderer fails unless cfg.Output is a terminal.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, errNotTerminal
	}
	tracker := NewProgressTracker()
	board := newDashboard(tracker, cfg.ProjectDir, spinnerFor(cfg.SpinnerStyle))
	if cfg.NoColor || DetectNoColor() {
		board.styles = NoColorStyles()
	}
	return &TUIRenderer{cfg: cfg, tracker: tracker, board: board}, nil
}

// Start runs the bubbletea program in the background. It is a no-op after
// the first call.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		return nil
	}

	r.program = tea.NewProgram(r.board,
		tea.WithContext(ctx),
		tea.WithOutput(r.cfg.Output),
		tea.WithAltScreen(),
	)
	r.exited = make(chan struct{})
	go func(p *tea.Program, exited chan struct{}) {
		defer close(exited)
		_, _ = p.Run()
	}(r.program, r.exited)
	return nil
}

// UpdateProgress feeds a snapshot to the tracker and wakes the program.
func (r *TUIRenderer) UpdateProgress(p index.IndexProgress) {
	r.tracker.Update(p)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		r.program.Send(snapshotMsg{})
	}
}

// Complete shows the summary and ends the program.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		r.program.Send(finishedMsg(stats))
	}
}

// Stop quits the program and waits up to stopTimeout for it to exit.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	p, exited := r.program, r.exited
	r.mu.Unlock()
	if p == nil {
		return nil
	}

	p.Quit()
	select {
	case <-exited:
	case <-time.After(stopTimeout):
	}
	return nil
}

type (
	snapshotMsg struct{}
	finishedMsg CompletionStats
	redrawMsg   struct{}
)

func spinnerFor(style string) spinner.Spinner {
	switch style {
	case "line":
		return spinner.Line
	case "points":
		return spinner.Points
	case "meter":
		return spinner.Meter
	default:
		return spinner.Dot
	}
}

// dashboard is the bubbletea model. It reads all figures from the tracker
// so snapshot messages only trigger a redraw.
type dashboard struct {
	tracker    *ProgressTracker
	projectDir string
	styles     Styles
	spin       spinner.Model
	bar        progress.Model
	width      int

	cancelled bool
	finished  *CompletionStats
}

func newDashboard(tracker *ProgressTracker, projectDir string, spin spinner.Spinner) *dashboard {
	styles := DefaultStyles()
	s := spinner.New(spinner.WithSpinner(spin), spinner.WithStyle(styles.Current))
	return &dashboard{
		tracker:    tracker,
		projectDir: projectDir,
		styles:     styles,
		spin:       s,
		bar: progress.New(
			progress.WithSolidFill(harbor.accent),
			progress.WithoutPercentage(),
			progress.WithWidth(48),
		),
		width: 80,
	}
}

func redrawEvery(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return redrawMsg{} })
}

// Init implements tea.Model.
func (d *dashboard) Init() tea.Cmd {
	return tea.Batch(d.spin.Tick, redrawEvery(250*time.Millisecond))
}

// Update implements tea.Model.
func (d *dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if k := msg.String(); k == "q" || k == "ctrl+c" {
			d.cancelled = true
			return d, tea.Quit
		}
	case tea.WindowSizeMsg:
		d.width = msg.Width
		d.bar.Width = max(msg.Width-24, 16)
	case finishedMsg:
		stats := CompletionStats(msg)
		d.finished = &stats
		return d, tea.Quit
	case redrawMsg:
		return d, redrawEvery(250 * time.Millisecond)
	case spinner.TickMsg:
		var cmd tea.Cmd
		d.spin, cmd = d.spin.Update(msg)
		return d, cmd
	}
	return d, nil
}

// View implements tea.Model.
func (d *dashboard) View() string {
	switch {
	case d.cancelled:
		return "Cancelled.\n"
	case d.finished != nil:
		return d.summaryView(*d.finished)
	}

	inner := max(d.width-4, 40)
	stats := d.tracker.Stats()
	rule := d.styles.Rule.Render(strings.Repeat("─", inner))

	body := strings.Join([]string{
		d.stageRail(stats.Stage),
		rule,
		d.progressBlock(stats),
		d.rateLine(stats),
		d.styles.Chart.Render(d.tracker.RenderSparkline(max(inner-12, 10))) + d.styles.Muted.Render(" files/s"),
		rule,
		d.countsGrid(stats),
	}, "\n")

	return lipgloss.JoinVertical(lipgloss.Left,
		d.styles.Header.Render(d.title(inner)),
		d.styles.frame(d.styles.colors.rule).Padding(0, 1).Width(inner).Render(body),
		d.footer(stats),
	)
}

func (d *dashboard) title(width int) string {
	if d.projectDir == "" {
		return "ragindex"
	}
	return "ragindex · " + shortenPath(d.projectDir, width-12)
}

// stageRail draws Scan, Index and Done with the current stage spinning.
func (d *dashboard) stageRail(current Stage) string {
	rail := []struct {
		stage Stage
		name  string
	}{
		{StageScanning, "Scan"},
		{StageIndexing, "Index"},
		{StageComplete, "Done"},
	}
	steps := make([]string, 0, len(rail))
	for _, step := range rail {
		switch {
		case step.stage < current:
			steps = append(steps, d.styles.Success.Render("✓ "+step.name))
		case step.stage == current:
			steps = append(steps, d.styles.Current.Render(d.spin.View()+" "+step.name))
		default:
			steps = append(steps, d.styles.Muted.Render("· "+step.name))
		}
	}
	return strings.Join(steps, d.styles.Muted.Render("  ━━  "))
}

func (d *dashboard) progressBlock(stats ProgressStats) string {
	if stats.Total == 0 {
		return d.spin.View() + " " + d.styles.Label.Render("Preparing... discovering resources")
	}
	pct := d.styles.Current.Render(fmt.Sprintf("%5.1f%%", stats.Progress*100))
	count := d.styles.Label.Render(fmt.Sprintf("%d / %d resources", stats.Current, stats.Total))
	return d.bar.ViewAs(stats.Progress) + " " + pct + "\n" + count
}

func (d *dashboard) rateLine(stats ProgressStats) string {
	line := fmt.Sprintf("now %.1f/s", stats.Speed.Current)
	if stats.Speed.Avg > 0 {
		line += fmt.Sprintf("  avg %.1f/s  peak %.1f/s", stats.Speed.Avg, stats.Speed.Peak)
	}
	if stats.ETA > 0 {
		line += "  eta " + humanDuration(stats.ETA)
	}
	return d.styles.Rate.Render(line)
}

// countsGrid lays out the per-outcome counters as labelled columns.
func (d *dashboard) countsGrid(stats ProgressStats) string {
	cells := []struct {
		label string
		value int
	}{
		{"indexed", stats.Indexed},
		{"unchanged", stats.Skipped},
		{"removed", stats.Removed},
		{"failed", stats.Failed},
		{"segments", stats.Segments},
	}
	cols := make([]string, 0, len(cells))
	for _, c := range cells {
		value := d.styles.Current.Render(fmt.Sprint(c.value))
		if c.label == "failed" && c.value > 0 {
			value = d.styles.Error.Render(fmt.Sprint(c.value))
		}
		cols = append(cols, lipgloss.NewStyle().PaddingRight(3).Render(
			lipgloss.JoinVertical(lipgloss.Left, value, d.styles.Label.Render(c.label))))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cols...)
}

func (d *dashboard) footer(stats ProgressStats) string {
	hint := d.styles.Muted.Render("q quit")
	if stats.Failed == 0 {
		return hint
	}
	return d.styles.Error.Render(fmt.Sprintf("✗ %d failed", stats.Failed)) + d.styles.Muted.Render("  |  ") + hint
}

func (d *dashboard) summaryView(stats CompletionStats) string {
	width := max(d.width-4, 40)
	border := d.styles.colors.good

	var lines []string
	if !stats.Succeeded() {
		border = d.styles.colors.bad
		lines = append(lines, d.styles.Error.Render("✗ Indexing Failed"), "", stats.Error)
	} else {
		field := func(name, value string) string {
			return d.styles.Label.Render(fmt.Sprintf("%-11s", name)) + d.styles.Current.Render(value)
		}
		lines = append(lines,
			d.styles.Success.Render("✓ Indexing Complete"),
			"",
			field("indexed", fmt.Sprint(stats.Indexed)),
			field("unchanged", fmt.Sprint(stats.Skipped)),
			field("removed", fmt.Sprint(stats.Removed)),
			field("segments", fmt.Sprint(stats.Segments)),
			field("took", humanDuration(stats.Duration)),
		)
		if e := stats.Embedder; e.Backend != "" {
			lines = append(lines, field("embedder", fmt.Sprintf("%s %s (%d dims)", e.Backend, e.Model, e.Dimensions)))
		}
		if avg := d.tracker.SpeedStats().Avg; avg > 0 {
			lines = append(lines, field("rate", fmt.Sprintf("%.1f files/s", avg)))
		}
		if stats.Failed > 0 {
			lines = append(lines, "", d.styles.Error.Render(fmt.Sprintf("✗ %d failed", stats.Failed)))
		}
	}
	return d.styles.frame(border).Padding(1, 2).Width(width).Render(strings.Join(lines, "\n")) + "\n"
}

// humanDuration prints whole seconds as 45s, 2m05s or 1h01m.
func humanDuration(d time.Duration) string {
	secs := int(d.Round(time.Second).Seconds())
	h, m, s := secs/3600, secs/60%60, secs%60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh%02dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm%02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// shortenPath keeps the tail of path within limit bytes, starting at a
// separator when one falls inside the kept part.
func shortenPath(path string, limit int) string {
	limit = max(limit, 8)
	if len(path) <= limit {
		return path
	}
	tail := path[len(path)-(limit-3):]
	if i := strings.IndexByte(tail, '/'); i > 0 {
		tail = tail[i:]
	}
	return "..." + tail
}

var _ Renderer = (*TUIRenderer)(nil)
