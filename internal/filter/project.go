package filter

import "slices"

// ProjectType describes a kind of project: the marker files that identify
// it and the paths it never wants indexed.
type ProjectType struct {
	Name string
	// Markers are file names or globs looked up in a candidate root.
	Markers []string
	// Excludes use MatchPattern semantics.
	Excludes []string
}

// CommonExcludes covers VCS metadata, IDE state, OS cruft, secrets and the
// ragindex data directory. It is applied for every root, and is the only set
// applied when no project type is detected.
var CommonExcludes = []string{
	".git/", ".hg/", ".svn/", ".bzr/",
	".idea/", ".vscode/", ".vs/", ".fleet/",
	".DS_Store", "Thumbs.db", "desktop.ini",
	"*.swp", "*.swo", "*~",
	".env", ".env.*", "*.pem", "*.key", "id_rsa*",
	".ragindex/",
}

// VCSDirs are the fallback root markers.
var VCSDirs = []string{".git", ".hg", ".svn"}

// DefaultProjectTypes is the built-in project type table.
var DefaultProjectTypes = []ProjectType{
	{
		Name:     "node",
		Markers:  []string{"package.json"},
		Excludes: []string{"node_modules/", "dist/", "build/", ".next/", ".nuxt/", "coverage/", ".turbo/", "*.min.js", "*.min.css", "*.map", "package-lock.json", "yarn.lock", "pnpm-lock.yaml"},
	},
	{
		Name:     "go",
		Markers:  []string{"go.mod"},
		Excludes: []string{"vendor/", "bin/", "go.sum"},
	},
	{
		Name:     "python",
		Markers:  []string{"pyproject.toml", "requirements.txt", "setup.py", "Pipfile"},
		Excludes: []string{"__pycache__/", ".venv/", "venv/", ".tox/", ".mypy_cache/", ".pytest_cache/", ".ruff_cache/", "*.egg-info/", "*.pyc", "build/", "dist/"},
	},
	{
		Name:     "maven",
		Markers:  []string{"pom.xml"},
		Excludes: []string{"target/", ".mvn/"},
	},
	{
		Name:     "gradle",
		Markers:  []string{"build.gradle", "build.gradle.kts", "settings.gradle", "settings.gradle.kts"},
		Excludes: []string{"build/", ".gradle/", "out/"},
	},
	{
		Name:     "rust",
		Markers:  []string{"Cargo.toml"},
		Excludes: []string{"target/", "Cargo.lock"},
	},
	{
		Name:     "dotnet",
		Markers:  []string{"*.csproj", "*.fsproj", "*.sln"},
		Excludes: []string{"bin/", "obj/", "packages/"},
	},
	{
		Name:     "ruby",
		Markers:  []string{"Gemfile"},
		Excludes: []string{"vendor/bundle/", ".bundle/", "tmp/", "log/"},
	},
	{
		Name:     "php",
		Markers:  []string{"composer.json"},
		Excludes: []string{"vendor/"},
	},
}

// ProjectTypeFilter excludes paths listed by the project types detected at
// the path's root, plus CommonExcludes.
type ProjectTypeFilter struct {
	types map[string]ProjectType
}

// NewProjectTypeFilter builds the filter over types.
func NewProjectTypeFilter(types []ProjectType) *ProjectTypeFilter {
	m := make(map[string]ProjectType, len(types))
	for _, t := range types {
		m[t.Name] = t
	}
	return &ProjectTypeFilter{types: m}
}

func (f *ProjectTypeFilter) Name() string  { return "project-type" }
func (f *ProjectTypeFilter) Priority() int { return PriorityProjectType }

// ShouldExclude implements Filter.
func (f *ProjectTypeFilter) ShouldExclude(_ string, isDir bool, ctx *Context) bool {
	if _, ok := matchAny(ctx.RelPath, isDir, CommonExcludes); ok {
		return true
	}
	for _, name := range ctx.ProjectTypes {
		t, ok := f.types[name]
		if !ok {
			continue
		}
		if _, ok := matchAny(ctx.RelPath, isDir, t.Excludes); ok {
			return true
		}
	}
	return false
}

// Excludes returns the patterns that apply to a root with the given types.
func (f *ProjectTypeFilter) Excludes(types []string) []string {
	out := slices.Clone(CommonExcludes)
	for _, name := range types {
		out = append(out, f.types[name].Excludes...)
	}
	return out
}

// CustomPatternFilter excludes user-supplied patterns.
type CustomPatternFilter struct {
	patterns []string
}

// NewCustomPatternFilter returns a filter over patterns.
func NewCustomPatternFilter(patterns []string) *CustomPatternFilter {
	return &CustomPatternFilter{patterns: slices.Clone(patterns)}
}

func (f *CustomPatternFilter) Name() string  { return "custom-pattern" }
func (f *CustomPatternFilter) Priority() int { return PriorityCustom }

// ShouldExclude implements Filter.
func (f *CustomPatternFilter) ShouldExclude(_ string, isDir bool, ctx *Context) bool {
	_, ok := matchAny(ctx.RelPath, isDir, f.patterns)
	return ok
}
