package ui

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSparkline_EmptyDrawsBaseline(t *testing.T) {
	s := NewSparkline(6)

	assert.Equal(t, "▁▁▁▁▁▁", s.Render(0))
	assert.Equal(t, "▁▁▁", s.Render(3))
	assert.Zero(t, s.Peak())
}

func TestSparkline_ScalesToWindowPeak(t *testing.T) {
	// Given: a rising series
	s := NewSparkline(4)
	for _, v := range []float64{0, 2, 4, 8} {
		s.Add(v)
	}

	// Then: the oldest bar is lowest and the newest full height
	runes := []rune(s.Render(4))
	assert.Len(t, runes, 4)
	assert.Equal(t, '▁', runes[0])
	assert.Equal(t, '█', runes[3])
	assert.Equal(t, 8.0, s.Peak())
}

func TestSparkline_WindowEvictsOldest(t *testing.T) {
	// Given: more samples than the window holds
	s := NewSparkline(3)
	for _, v := range []float64{100, 1, 1, 1} {
		s.Add(v)
	}

	// Then: the evicted spike no longer sets the scale
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, 1.0, s.Peak())
	assert.Equal(t, "███", s.Render(3))
}

func TestSparkline_RenderNarrowAndWide(t *testing.T) {
	s := NewSparkline(5)
	s.Add(4)
	s.Add(-2)

	// Then: narrow shows the newest samples, wide pads on the left
	assert.Equal(t, "▁", s.Render(1))
	assert.Equal(t, 8, utf8.RuneCountInString(s.Render(8)))
	assert.Equal(t, '█', []rune(s.Render(8))[6])

	s.Reset()
	assert.Zero(t, s.Len())
}
