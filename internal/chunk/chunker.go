package chunk

import (
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"
)

// LineChunk is a chunk with the 1-indexed, inclusive line range it covers.
type LineChunk struct {
	Text      string
	StartLine int
	EndLine   int
}

// Chunker splits text by whole lines with a trailing-line overlap.
type Chunker struct {
	size   Sizing
	logger *slog.Logger
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithLogger sets the logger used for split diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Chunker) { c.logger = l }
}

// New returns a Chunker sized for a model with the given token limit.
func New(tokenLimit int, cfg Config, opts ...Option) *Chunker {
	return NewWithSizing(ComputeSizing(tokenLimit, cfg), opts...)
}

// NewWithSizing returns a Chunker with an explicit budget.
func NewWithSizing(size Sizing, opts ...Option) *Chunker {
	if size.ChunkChars <= 0 {
		size.ChunkChars = DefaultMinChars
	}
	if size.OverlapChars < 0 || size.OverlapChars >= size.ChunkChars {
		size.OverlapChars = 0
	}
	c := &Chunker{size: size, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sizing returns the chunk budget.
func (c *Chunker) Sizing() Sizing {
	return c.size
}

// unit is the smallest piece the accumulator places: a whole line, or a
// piece of a line too long to fit a chunk.
type unit struct {
	text string
	n    int // rune count
	line int
	// newline is set when the unit starts a source line.
	newline bool
	// alone units are emitted as their own chunk and never overlap.
	alone bool
}

// ChunkWithLineNumbers splits text into line-addressed chunks. A line longer
// than the budget becomes several single-line chunks with no overlap.
func (c *Chunker) ChunkWithLineNumbers(text string) []LineChunk {
	var units []unit
	for i, line := range splitLines(text) {
		n := utf8.RuneCountInString(line)
		if n <= c.size.ChunkChars {
			units = append(units, unit{text: line, n: n, line: i + 1, newline: true})
			continue
		}
		c.logger.Debug("chunk_line_split",
			slog.Int("line", i+1),
			slog.Int("line_chars", n),
			slog.Int("chunk_chars", c.size.ChunkChars))
		for _, piece := range splitRunes(line, c.size.ChunkChars, false) {
			units = append(units, unit{text: piece, n: utf8.RuneCountInString(piece), line: i + 1, newline: true, alone: true})
		}
	}
	return c.accumulate(units)
}

// Chunk splits text into opaque chunks. Over-long lines are broken at word
// boundaries and take part in overlap like any other piece.
func (c *Chunker) Chunk(text string) []string {
	var units []unit
	for i, line := range splitLines(text) {
		n := utf8.RuneCountInString(line)
		if n <= c.size.ChunkChars {
			units = append(units, unit{text: line, n: n, line: i + 1, newline: true})
			continue
		}
		for j, piece := range splitRunes(line, c.size.ChunkChars, true) {
			units = append(units, unit{text: piece, n: utf8.RuneCountInString(piece), line: i + 1, newline: j == 0})
		}
	}

	chunks := c.accumulate(units)
	out := make([]string, len(chunks))
	for i, ch := range chunks {
		out[i] = ch.Text
	}
	return out
}

// accumulate packs units into chunks of at most ChunkChars runes. When a
// chunk closes, trailing units up to OverlapChars seed the next one.
func (c *Chunker) accumulate(units []unit) []LineChunk {
	var (
		out     []LineChunk
		cur     []unit
		curLen  int
		pending bool // cur holds units not yet emitted
	)

	emit := func(us []unit) {
		if ch, ok := build(us); ok {
			out = append(out, ch)
		}
	}

	for i := 0; i < len(units); {
		u := units[i]

		if u.alone {
			if pending {
				emit(cur)
			}
			emit([]unit{u})
			cur, curLen, pending = nil, 0, false
			i++
			continue
		}

		add := u.n + joinCost(cur, u)
		if len(cur) > 0 && curLen+add > c.size.ChunkChars {
			if pending {
				emit(cur)
				cur, curLen = c.overlapTail(cur, u)
				pending = false
				continue
			}
			// cur is only overlap carried from the previous chunk and u does
			// not fit next to it: drop the overlap.
			cur, curLen = nil, 0
			continue
		}

		cur = append(cur, u)
		curLen += add
		pending = true
		i++
	}

	if pending {
		emit(cur)
	}
	return out
}

// overlapTail returns the longest run of trailing units of cur that fits the
// overlap budget and still leaves room for next.
func (c *Chunker) overlapTail(cur []unit, next unit) ([]unit, int) {
	if c.size.OverlapChars <= 0 {
		return nil, 0
	}

	start := len(cur)
	total := 0
	for j := len(cur) - 1; j >= 1; j-- {
		cost := cur[j].n
		if j < len(cur)-1 {
			cost += joinCost(cur[j:j+1], cur[j+1])
		}
		if total+cost > c.size.OverlapChars {
			break
		}
		total += cost
		start = j
	}

	for start < len(cur) {
		tail := cur[start:]
		if total+joinCost(tail, next)+next.n <= c.size.ChunkChars {
			return append([]unit(nil), tail...), total
		}
		total -= cur[start].n
		if start+1 < len(cur) {
			total -= joinCost(cur[start:start+1], cur[start+1])
		}
		start++
	}
	return nil, 0
}

func joinCost(cur []unit, next unit) int {
	if len(cur) > 0 && next.newline {
		return 1
	}
	return 0
}

// build joins units into a chunk. Blank chunks are dropped.
func build(us []unit) (LineChunk, bool) {
	if len(us) == 0 {
		return LineChunk{}, false
	}
	var sb strings.Builder
	for i, u := range us {
		if i > 0 && u.newline {
			sb.WriteByte('\n')
		}
		sb.WriteString(u.text)
	}
	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return LineChunk{}, false
	}
	return LineChunk{Text: text, StartLine: us[0].line, EndLine: us[len(us)-1].line}, true
}

// splitLines splits on \n and strips a trailing \r from each line. A final
// newline does not produce an extra empty line.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.TrimSuffix(text, "\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// splitRunes cuts s into pieces of at most size runes. With soft set, a cut
// backs up to the last whitespace in the second half of the window.
func splitRunes(s string, size int, soft bool) []string {
	rs := []rune(s)
	var out []string
	for len(rs) > 0 {
		if len(rs) <= size {
			out = append(out, string(rs))
			break
		}
		cut := size
		if soft {
			for k := size; k > size/2; k-- {
				if unicode.IsSpace(rs[k-1]) {
					cut = k
					break
				}
			}
		}
		out = append(out, string(rs[:cut]))
		rs = rs[cut:]
	}
	return out
}
