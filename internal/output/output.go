// Package output writes the line-oriented CLI output of the non-interactive
// commands: status lines with a leading glyph, headed sections, aligned
// fields and indented code.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Aman-CERP/ragindex/internal/ui"
)

// Writer formats CLI output. Write errors are dropped; there is nowhere
// left to report them.
type Writer struct {
	out    io.Writer
	styles ui.Styles
}

// New returns a Writer that never emits ANSI sequences.
func New(out io.Writer) *Writer {
	return NewWithColor(out, false)
}

// NewWithColor returns a Writer that colors glyphs, headings and labels
// when color is set.
func NewWithColor(out io.Writer, color bool) *Writer {
	return &Writer{out: out, styles: ui.GetStyles(!color)}
}

func (w *Writer) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(w.out, format, args...)
}

// Status prints msg after icon. An empty icon indents msg under the
// previous status line.
func (w *Writer) Status(icon, msg string) {
	if icon == "" {
		icon = "  "
	}
	w.printf("%s %s\n", icon, msg)
}

func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

func (w *Writer) Success(msg string) { w.Status(w.styles.Success.Render("✓"), msg) }
func (w *Writer) Warning(msg string) { w.Status(w.styles.Warning.Render("!"), msg) }
func (w *Writer) Error(msg string)   { w.Status(w.styles.Error.Render("✗"), msg) }

func (w *Writer) Successf(format string, args ...any) { w.Success(fmt.Sprintf(format, args...)) }
func (w *Writer) Warningf(format string, args ...any) { w.Warning(fmt.Sprintf(format, args...)) }
func (w *Writer) Errorf(format string, args ...any)   { w.Error(fmt.Sprintf(format, args...)) }

// Section prints title underlined to its display width.
func (w *Writer) Section(title string) {
	w.printf("%s\n%s\n", w.styles.Header.Render(title), strings.Repeat("─", lipgloss.Width(title)))
}

// Fields prints alternating label and value arguments with the values in
// one column. A label without a value is skipped.
func (w *Writer) Fields(pairs ...string) {
	n := len(pairs) &^ 1
	width := 0
	for i := 0; i < n; i += 2 {
		width = max(width, lipgloss.Width(pairs[i]))
	}
	for i := 0; i < n; i += 2 {
		label := pairs[i] + ":" + strings.Repeat(" ", width-lipgloss.Width(pairs[i]))
		w.printf("  %s %s\n", w.styles.Label.Render(label), pairs[i+1])
	}
}

// Code prints content indented by two spaces between blank lines.
func (w *Writer) Code(content string) {
	w.printf("\n  %s\n\n", strings.ReplaceAll(content, "\n", "\n  "))
}

func (w *Writer) Newline() {
	w.printf("\n")
}
