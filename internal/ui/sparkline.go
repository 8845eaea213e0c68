package ui

import (
	"slices"
	"strings"

	"github.com/Aman-CERP/ragindex/internal/telemetry"
)

// sparkGlyphs are the bar heights, lowest first.
var sparkGlyphs = []rune("▁▂▃▄▅▆▇█")

// Sparkline keeps a window of throughput samples and draws them as a row
// of block glyphs scaled to the window peak.
type Sparkline struct {
	window *telemetry.Ring[float64]
	size   int
}

// NewSparkline keeps the last size samples. Non-positive sizes default
// to 60.
func NewSparkline(size int) *Sparkline {
	if size <= 0 {
		size = 60
	}
	return &Sparkline{window: telemetry.NewRing[float64](size), size: size}
}

// Add records a sample. Negative samples count as zero.
func (s *Sparkline) Add(v float64) {
	s.window.Add(max(v, 0))
}

// Len returns the number of samples in the window.
func (s *Sparkline) Len() int { return s.window.Len() }

// Peak returns the largest sample in the window.
func (s *Sparkline) Peak() float64 {
	samples := s.window.Items()
	if len(samples) == 0 {
		return 0
	}
	return slices.Max(samples)
}

// Reset empties the window.
func (s *Sparkline) Reset() { s.window.Reset() }

// Render draws the newest width samples, right aligned. Missing samples
// are drawn as the lowest glyph. Width defaults to the window size.
func (s *Sparkline) Render(width int) string {
	if width <= 0 {
		width = s.size
	}
	samples := s.window.Items()
	if len(samples) > width {
		samples = samples[len(samples)-width:]
	}

	var b strings.Builder
	b.Grow(width * 3)
	for range width - len(samples) {
		b.WriteRune(sparkGlyphs[0])
	}
	peak := 0.0
	if len(samples) > 0 {
		peak = slices.Max(samples)
	}
	top := len(sparkGlyphs) - 1
	for _, v := range samples {
		level := 0
		if peak > 0 {
			level = min(int(v/peak*float64(top)+0.5), top)
		}
		b.WriteRune(sparkGlyphs[level])
	}
	return b.String()
}
