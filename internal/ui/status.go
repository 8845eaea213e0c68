package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// StatusInfo contains index health information.
type StatusInfo struct {
	ProjectID string `json:"project_id"`
	Root      string `json:"root"`
	// State is IDLE, INDEXING, READY or FAILED.
	State       string         `json:"state"`
	LastError   string         `json:"last_error,omitempty"`
	Resources   map[string]int `json:"resources"`
	Vectors     int            `json:"vectors"`
	Keywords    int            `json:"keyword_documents"`
	LastIndexed time.Time      `json:"last_indexed,omitzero"`

	DataDir     string `json:"data_dir"`
	StorageSize int64  `json:"storage_size"`

	VectorBackend  string `json:"vector_backend"`
	KeywordBackend string `json:"keyword_backend"`

	EmbedderType       string `json:"embedder_type"`
	EmbedderStatus     string `json:"embedder_status"` // "ready", "offline", "error"
	EmbedderModel      string `json:"embedder_model,omitempty"`
	EmbedderDimensions int    `json:"embedder_dimensions"`
	// LockStatus is "free", or "held" while a writer owns the project.
	LockStatus string `json:"lock_status"`

	// Consistency is set when a cross-store check ran.
	Consistency *ConsistencyInfo `json:"consistency,omitempty"`
}

// ConsistencyInfo summarizes a cross-store consistency check.
type ConsistencyInfo struct {
	Checked int `json:"checked"`
	// Issues counts problems per kind (orphan_vector, missing_keyword, ...).
	Issues   map[string]int `json:"issues,omitempty"`
	Repaired bool           `json:"repaired"`
}

// Consistent reports whether no issue was found.
func (c *ConsistencyInfo) Consistent() bool {
	return len(c.Issues) == 0
}

// StatusRenderer writes StatusInfo as an indented report or as JSON.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor)}
}

func (r *StatusRenderer) line(format string, args ...any) {
	_, _ = fmt.Fprintf(r.out, format+"\n", args...)
}

// Render writes the report: state, resources per source kind, storage,
// embedder, then the lock and consistency sections when known.
func (r *StatusRenderer) Render(info StatusInfo) error {
	r.line("%s\n", r.styles.Header.Render("Index Status: "+info.Root))

	r.line("  Project:      %s", info.ProjectID)
	r.line("  State:        %s", r.colorize(info.State))
	if info.LastError != "" {
		r.line("  Last error:   %s", r.styles.Error.Render(info.LastError))
	}
	if !info.LastIndexed.IsZero() {
		r.line("  Last indexed: %s", formatTime(info.LastIndexed))
	}

	r.line("\n  Resources:")
	if len(info.Resources) == 0 {
		r.line("    (none)")
	}
	for _, kind := range slices.Sorted(maps.Keys(info.Resources)) {
		r.line("    %-8s %d", kind+":", info.Resources[kind])
	}

	r.line("\n  Storage:")
	r.line("    Vectors:    %d (%s)", info.Vectors, info.VectorBackend)
	r.line("    Keywords:   %d (%s)", info.Keywords, info.KeywordBackend)
	r.line("    Data dir:   %s", info.DataDir)
	r.line("    Total:      %s", FormatBytes(info.StorageSize))

	r.line("\n  Embedder:")
	r.line("    Type:   %s", info.EmbedderType)
	r.line("    Status: %s", r.colorize(info.EmbedderStatus))
	if info.EmbedderModel != "" {
		r.line("    Model:  %s (%d dims)", info.EmbedderModel, info.EmbedderDimensions)
	}

	if info.LockStatus != "" {
		r.line("\n  Writer lock: %s", info.LockStatus)
	}
	if info.Consistency != nil {
		r.line("")
		r.consistency(info.Consistency)
	}
	return nil
}

func (r *StatusRenderer) consistency(c *ConsistencyInfo) {
	verdict := r.styles.Success.Render("ok")
	if !c.Consistent() {
		verdict = r.styles.Error.Render("issues found")
	}
	r.line("  Consistency: %s (%d mappings)", verdict, c.Checked)
	if c.Consistent() {
		return
	}

	for _, kind := range slices.Sorted(maps.Keys(c.Issues)) {
		r.line("    %-16s %d", kind+":", c.Issues[kind])
	}
	if c.Repaired {
		r.line("    Orphans deleted; missing entries need 'ragindex index --force'")
		return
	}
	r.line("    Run with --repair to delete orphans")
}

func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}

// colorize styles run states and embedder states alike.
func (r *StatusRenderer) colorize(status string) string {
	switch strings.ToLower(status) {
	case "ready":
		return r.styles.Success.Render(status)
	case "offline", "indexing", "idle":
		return r.styles.Warning.Render(status)
	case "error", "failed":
		return r.styles.Error.Render(status)
	}
	return status
}

// ago is one step of formatTime: below limit, count whole units.
var ago = []struct {
	limit time.Duration
	unit  time.Duration
	name  string
}{
	{time.Hour, time.Minute, "minute"},
	{24 * time.Hour, time.Hour, "hour"},
	{7 * 24 * time.Hour, 24 * time.Hour, "day"},
}

// formatTime says how long ago t was, up to a week; older times are
// printed as a date.
func formatTime(t time.Time) string {
	d := time.Since(t)
	if d < time.Minute {
		return "just now"
	}
	for _, step := range ago {
		if d >= step.limit {
			continue
		}
		n := int(d / step.unit)
		if n == 1 {
			return "1 " + step.name + " ago"
		}
		return fmt.Sprintf("%d %ss ago", n, step.name)
	}
	return t.Format("2006-01-02 15:04")
}

// FormatBytes formats a size in IEC units, e.g. "6.5 MiB".
func FormatBytes(bytes int64) string {
	return humanize.IBytes(uint64(max(bytes, 0)))
}
