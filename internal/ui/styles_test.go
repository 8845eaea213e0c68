package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoColorStyles_RenderPlainText(t *testing.T) {
	// Given: styles with colors disabled
	s := GetStyles(true)

	// Then: every style leaves its input untouched
	for name, style := range map[string]func(...string) string{
		"header":  s.Header.Render,
		"success": s.Success.Render,
		"warning": s.Warning.Render,
		"error":   s.Error.Render,
		"label":   s.Label.Render,
		"muted":   s.Muted.Render,
		"current": s.Current.Render,
		"chart":   s.Chart.Render,
	} {
		assert.Equal(t, "segments", style("segments"), name)
	}
	assert.Empty(t, s.colors.accent)
}

func TestDefaultStyles_KeepText(t *testing.T) {
	s := GetStyles(false)

	assert.Contains(t, s.Header.Render("Index Status"), "Index Status")
	assert.Contains(t, s.Current.Render("●"), "●")
	assert.Contains(t, s.Muted.Render("○"), "○")
	assert.Equal(t, harbor, s.colors)
}

func TestStyles_Frame(t *testing.T) {
	boxed := NoColorStyles().frame("").Render("ok")

	assert.Contains(t, boxed, "ok")
	assert.Contains(t, boxed, "╭")
}
