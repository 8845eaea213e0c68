package gitignore

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_SimplePatternsAreShallow(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		path    string
		isDir   bool
		want    bool
	}{
		{name: "exact name at owner", pattern: "foo.txt", path: "foo.txt", want: true},
		{name: "exact name nested", pattern: "foo.txt", path: "src/foo.txt", want: false},
		{name: "glob at owner", pattern: "*.log", path: "app.log", want: true},
		{name: "glob nested", pattern: "*.log", path: "logs/app.log", want: false},
		{name: "double star prefix nested", pattern: "**/*.log", path: "a/b/app.log", want: true},
		{name: "double star prefix at owner", pattern: "**/*.log", path: "app.log", want: true},
		{name: "question mark", pattern: "file?.go", path: "file1.go", want: true},
		{name: "question mark no slash", pattern: "a?b", path: "a/b", want: false},
		{name: "char class", pattern: "file[0-9].go", path: "file7.go", want: true},
		{name: "negated char class", pattern: "file[!0-9].go", path: "file7.go", want: false},
		{name: "no match", pattern: "*.log", path: "app.txt", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			m.AddPattern(tt.pattern)
			assert.Equal(t, tt.want, m.Match(tt.path, tt.isDir))
		})
	}
}

func TestMatcher_AnchoredAndDirectoryPatterns(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		path    string
		isDir   bool
		want    bool
	}{
		{name: "leading slash at root", pattern: "/build", path: "build", isDir: true, want: true},
		{name: "leading slash not nested", pattern: "/build", path: "src/build", isDir: true, want: false},
		{name: "inner slash anchors", pattern: "doc/frotz", path: "doc/frotz", want: true},
		{name: "inner slash not nested", pattern: "doc/frotz", path: "a/doc/frotz", want: false},
		{name: "dir only matches dir", pattern: "tmp/", path: "tmp", isDir: true, want: true},
		{name: "dir only skips file", pattern: "tmp/", path: "tmp", isDir: false, want: false},
		{name: "contents of ignored dir", pattern: "tmp/", path: "tmp/a/b.txt", want: true},
		{name: "double star dir anywhere", pattern: "**/node_modules/", path: "web/node_modules/x.js", want: true},
		{name: "trailing double star", pattern: "out/**", path: "out/a/b", want: true},
		{name: "middle double star", pattern: "a/**/z.txt", path: "a/b/c/z.txt", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			m.AddPattern(tt.pattern)
			assert.Equal(t, tt.want, m.Match(tt.path, tt.isDir))
		})
	}
}

func TestMatcher_NegationInFileOrder(t *testing.T) {
	// Given: an exclusion followed by a re-include
	m := New()
	m.AddPattern("*.log")
	m.AddPattern("!keep.log")

	// Then: app.log is ignored, keep.log is not
	assert.True(t, m.Match("app.log", false))
	assert.False(t, m.Match("keep.log", false))
}

func TestMatcher_LaterRuleOverridesNegation(t *testing.T) {
	m := New()
	m.AddPattern("*.log")
	m.AddPattern("!keep.log")
	m.AddPattern("keep.log")

	assert.True(t, m.Match("keep.log", false))
}

func TestMatcher_NegationCannotEscapeIgnoredDir(t *testing.T) {
	m := New()
	m.AddPattern("vendor/")
	m.AddPattern("!vendor/keep.go")

	assert.True(t, m.Match("vendor/keep.go", false))
}

func TestMatcher_CommentsBlanksAndEscapes(t *testing.T) {
	m := New()
	m.AddPattern("# comment")
	m.AddPattern("   ")
	m.AddPattern(`\#hash`)
	m.AddPattern(`\!bang`)
	m.AddPattern(`space\ `)

	assert.Equal(t, 3, m.Len())
	assert.True(t, m.Match("#hash", false))
	assert.True(t, m.Match("!bang", false))
	assert.True(t, m.Match("space ", false))
	assert.False(t, m.Match("comment", false))
}

func TestMatcher_BaseScopesRules(t *testing.T) {
	// Given: a nested rule owned by src
	m := New()
	m.AddPatternWithBase("*.gen.go", "src")

	assert.True(t, m.Match("src/a.gen.go", false))
	assert.False(t, m.Match("a.gen.go", false))
	assert.False(t, m.Match("src/sub/a.gen.go", false))
}

func TestMatcher_RootLevelIsCumulativeWithNested(t *testing.T) {
	// Given: a root rule and a nested negation
	m := New()
	m.AddPattern("**/*.tmp")
	m.AddPatternWithBase("!keep.tmp", "pkg")

	assert.True(t, m.Match("pkg/drop.tmp", false))
	assert.False(t, m.Match("pkg/keep.tmp", false))
	assert.True(t, m.Match("other/keep.tmp", false))
}

func TestMatcher_AddFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".gitignore")
	require.NoError(t, os.WriteFile(path, []byte("# logs\n*.log\n\n!keep.log\n/dist/\n"), 0o644))

	m := New()
	require.NoError(t, m.AddFromFile(path, ""))

	assert.True(t, m.Match("app.log", false))
	assert.False(t, m.Match("keep.log", false))
	assert.True(t, m.Match("dist", true))
	assert.True(t, m.Match(filepath.Join("dist", "bundle.js"), false))
}

func TestMatcher_AddFromFileMissing(t *testing.T) {
	err := New().AddFromFile(filepath.Join(t.TempDir(), "nope"), "")
	assert.Error(t, err)
}

func TestMatcher_EmptyAndRootPaths(t *testing.T) {
	m := New()
	m.AddPattern("*")

	assert.False(t, m.Match("", true))
	assert.False(t, m.Match(".", true))
}

func TestMatcher_ConcurrentUse(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			m.AddPattern("*.log")
		}()
		go func() {
			defer wg.Done()
			_ = m.Match("x.log", false)
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, m.Len())
}

func TestMatcher_MalformedClassIsSkipped(t *testing.T) {
	// Given: a reversed range between two valid rules
	m := New()
	assert.NotPanics(t, func() {
		m.AddPattern("*.log")
		m.AddPattern("[z-a].txt")
		m.AddPattern("!keep.log")
	})

	// Then: only the malformed rule is dropped
	assert.Equal(t, 2, m.Len())
	assert.True(t, m.Match("app.log", false))
	assert.False(t, m.Match("keep.log", false))
	assert.False(t, m.Match("z.txt", false))
}
