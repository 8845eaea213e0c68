// Package chunk splits extracted text into segments sized against the
// embedding model's token budget.
package chunk

// Defaults for deriving the chunk size from a token limit. The factors are
// conservative so CJK, code and mixed-script text never exceed the model
// input limit even when every character costs a token or more.
const (
	DefaultSafetyFactor  = 0.3
	DefaultCharsPerToken = 2.0
	DefaultMinChars      = 200
	DefaultMaxChars      = 8000
	DefaultMaxOverlap    = 400

	// OverlapRatio is the share of the chunk size carried into the next chunk.
	OverlapRatio = 0.05
	// MinOverlap is the overlap floor in characters.
	MinOverlap = 50
)

// Config bounds the computed sizes.
type Config struct {
	MinChars      int
	MaxChars      int
	MaxOverlap    int
	SafetyFactor  float64
	CharsPerToken float64
}

// DefaultConfig returns the default bounds.
func DefaultConfig() Config {
	return Config{
		MinChars:      DefaultMinChars,
		MaxChars:      DefaultMaxChars,
		MaxOverlap:    DefaultMaxOverlap,
		SafetyFactor:  DefaultSafetyFactor,
		CharsPerToken: DefaultCharsPerToken,
	}
}

// Sizing is the resolved chunk and overlap budget, in characters.
type Sizing struct {
	ChunkChars   int
	OverlapChars int
}

// ComputeSizing derives the chunk size from the model token limit:
// tokenLimit × SafetyFactor × CharsPerToken clamped to [MinChars, MaxChars].
// The overlap is OverlapRatio of that, clamped to [MinOverlap, MaxOverlap]
// and kept below half the chunk size.
func ComputeSizing(tokenLimit int, cfg Config) Sizing {
	cfg = cfg.withDefaults()

	size := int(float64(tokenLimit) * cfg.SafetyFactor * cfg.CharsPerToken)
	size = clamp(size, cfg.MinChars, cfg.MaxChars)

	maxOverlap := cfg.MaxOverlap
	if maxOverlap < MinOverlap {
		maxOverlap = MinOverlap
	}
	overlap := clamp(int(float64(size)*OverlapRatio), MinOverlap, maxOverlap)
	if overlap > size/2 {
		overlap = size / 2
	}

	return Sizing{ChunkChars: size, OverlapChars: overlap}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MinChars <= 0 {
		c.MinChars = d.MinChars
	}
	if c.MaxChars <= 0 {
		c.MaxChars = d.MaxChars
	}
	if c.MaxChars < c.MinChars {
		c.MaxChars = c.MinChars
	}
	if c.MaxOverlap <= 0 {
		c.MaxOverlap = d.MaxOverlap
	}
	if c.SafetyFactor <= 0 {
		c.SafetyFactor = d.SafetyFactor
	}
	if c.CharsPerToken <= 0 {
		c.CharsPerToken = d.CharsPerToken
	}
	return c
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
