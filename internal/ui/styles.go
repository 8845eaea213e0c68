package ui

import "github.com/charmbracelet/lipgloss"

// palette holds ANSI 256 color codes. An empty code renders unstyled.
type palette struct {
	accent  string
	soft    string
	text    string
	muted   string
	rule    string
	good    string
	caution string
	bad     string
}

var (
	// harbor is the default blue palette.
	harbor = palette{
		accent:  "39",
		soft:    "67",
		text:    "252",
		muted:   "243",
		rule:    "237",
		good:    "78",
		caution: "214",
		bad:     "203",
	}
	monochrome = palette{}
)

// Styles is the set of lipgloss styles shared by the renderers and the
// CLI output writer.
type Styles struct {
	Header  lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Label   lipgloss.Style

	// Muted is used for pending stages, hints and separators.
	Muted lipgloss.Style
	// Current highlights the active stage and headline figures.
	Current lipgloss.Style
	Rule    lipgloss.Style
	Chart   lipgloss.Style
	Rate    lipgloss.Style

	colors palette
}

func newStyles(p palette) Styles {
	fg := func(code string) lipgloss.Style {
		s := lipgloss.NewStyle()
		if code != "" {
			s = s.Foreground(lipgloss.Color(code))
		}
		return s
	}
	colored := p != monochrome
	return Styles{
		Header:  fg(p.text).Bold(colored),
		Success: fg(p.good),
		Warning: fg(p.caution),
		Error:   fg(p.bad),
		Label:   fg(p.muted),
		Muted:   fg(p.rule),
		Current: fg(p.accent).Bold(colored),
		Rule:    fg(p.rule),
		Chart:   fg(p.soft),
		Rate:    fg(p.text),
		colors:  p,
	}
}

// DefaultStyles returns the colored styles.
func DefaultStyles() Styles { return newStyles(harbor) }

// NoColorStyles returns styles that render text unchanged.
func NoColorStyles() Styles { return newStyles(monochrome) }

// GetStyles picks DefaultStyles or NoColorStyles.
func GetStyles(noColor bool) Styles {
	if noColor {
		return NoColorStyles()
	}
	return DefaultStyles()
}

// frame returns a rounded border box in color code, or a plain box when
// colors are off.
func (s Styles) frame(code string) lipgloss.Style {
	box := lipgloss.NewStyle().Border(lipgloss.RoundedBorder())
	if code != "" {
		box = box.BorderForeground(lipgloss.Color(code))
	}
	return box
}
