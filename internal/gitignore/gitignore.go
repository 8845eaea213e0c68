package gitignore

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// Matcher holds compiled rules from one or more rule files. Safe for
// concurrent use.
type Matcher struct {
	mu    sync.RWMutex
	rules []rule
}

type rule struct {
	pattern  string
	regex    *regexp.Regexp
	negation bool
	dirOnly  bool
	// shallow rules only match entries directly under base.
	shallow bool
	// base is the slash-separated directory owning the rule, "" for the root.
	base string
}

// New returns an empty Matcher.
func New() *Matcher {
	return &Matcher{}
}

// Len returns the number of compiled rules.
func (m *Matcher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rules)
}

// AddPattern adds a rule owned by the root directory.
func (m *Matcher) AddPattern(pattern string) {
	m.AddPatternWithBase(pattern, "")
}

// AddPatternWithBase adds a rule owned by base, a slash-separated directory
// relative to the matcher root.
func (m *Matcher) AddPatternWithBase(pattern, base string) {
	r, ok := compile(pattern, base)
	if !ok {
		return
	}
	m.mu.Lock()
	m.rules = append(m.rules, r)
	m.mu.Unlock()
}

// AddFromFile adds every rule in the file at path, owned by base.
func (m *Matcher) AddFromFile(path, base string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open ignore file: %w", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m.AddPatternWithBase(sc.Text(), base)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read ignore file %s: %w", path, err)
	}
	return nil
}

func compile(pattern, base string) (rule, bool) {
	escapedSpace := strings.HasSuffix(pattern, `\ `)
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || strings.HasPrefix(pattern, "#") {
		return rule{}, false
	}

	r := rule{pattern: pattern, base: strings.Trim(filepath.ToSlash(base), "/")}

	switch {
	case strings.HasPrefix(pattern, `\#`), strings.HasPrefix(pattern, `\!`):
		pattern = pattern[1:]
	case strings.HasPrefix(pattern, "!"):
		r.negation = true
		pattern = pattern[1:]
	}
	if escapedSpace && strings.HasSuffix(pattern, `\`) {
		pattern = strings.TrimSuffix(pattern, `\`) + " "
	}

	if strings.HasSuffix(pattern, "/") {
		r.dirOnly = true
		pattern = strings.TrimRight(pattern, "/")
	}

	anchored := strings.HasPrefix(pattern, "/")
	pattern = strings.TrimPrefix(pattern, "/")
	if pattern == "" {
		return rule{}, false
	}

	// "**/name" matches at any depth; any other slash anchors.
	r.shallow = !anchored && !strings.Contains(pattern, "/")

	// git treats a malformed class such as [z-a] as matching nothing.
	re, err := regexp.Compile("^" + patternToRegex(pattern) + "$")
	if err != nil {
		slog.Warn("ignore_rule_skipped",
			slog.String("pattern", r.pattern),
			slog.String("base", r.base),
			slog.String("error", err.Error()))
		return rule{}, false
	}
	r.regex = re
	return r, true
}

// Match reports whether path (slash or OS separated, relative to the
// matcher root) is ignored.
func (m *Matcher) Match(path string, isDir bool) bool {
	path = strings.Trim(filepath.ToSlash(path), "/")
	if path == "" || path == "." {
		return false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.rules) == 0 {
		return false
	}

	// Check ancestors first: git never descends into an ignored directory.
	parts := strings.Split(path, "/")
	for i := 1; i < len(parts); i++ {
		if m.evaluate(strings.Join(parts[:i], "/"), true) {
			return true
		}
	}
	return m.evaluate(path, isDir)
}

// evaluate applies every rule to a single entry; the last matching rule wins.
func (m *Matcher) evaluate(path string, isDir bool) bool {
	ignored := false
	for i := range m.rules {
		if m.rules[i].matches(path, isDir) {
			ignored = !m.rules[i].negation
		}
	}
	return ignored
}

func (r *rule) matches(path string, isDir bool) bool {
	if r.dirOnly && !isDir {
		return false
	}

	rel := path
	if r.base != "" {
		if !strings.HasPrefix(path, r.base+"/") {
			return false
		}
		rel = path[len(r.base)+1:]
	}

	if r.shallow && strings.Contains(rel, "/") {
		return false
	}
	return r.regex.MatchString(rel)
}

// patternToRegex converts a glob to a regular expression body.
func patternToRegex(pattern string) string {
	var sb strings.Builder

	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				switch {
				case i+2 < len(pattern) && pattern[i+2] == '/':
					// "**/" matches zero or more directories.
					sb.WriteString("(?:.*/)?")
					i += 2
					continue
				case i+2 == len(pattern):
					sb.WriteString(".*")
					i++
					continue
				}
			}
			sb.WriteString("[^/]*")
		case '?':
			sb.WriteString("[^/]")
		case '[':
			j := strings.IndexByte(pattern[i+1:], ']')
			if j <= 0 {
				sb.WriteString(`\[`)
				continue
			}
			class := pattern[i+1 : i+1+j]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			sb.WriteString("[" + class + "]")
			i += j + 1
		case '\\':
			if i+1 < len(pattern) {
				i++
				sb.WriteString(regexp.QuoteMeta(string(pattern[i])))
			} else {
				sb.WriteString(`\\`)
			}
		default:
			sb.WriteString(regexp.QuoteMeta(string(c)))
		}
	}

	return sb.String()
}
