// Package extract turns resources into plain text for chunking. It reads
// local files and fetches URLs, and decides which files are line-addressable
// source text.
package extract

import (
	"path/filepath"
	"strings"
)

// ContentType groups languages by how their text is chunked.
type ContentType string

const (
	ContentTypeCode     ContentType = "code"
	ContentTypeMarkdown ContentType = "markdown"
	ContentTypeText     ContentType = "text"
	ContentTypeConfig   ContentType = "config"
	// ContentTypeHTML is markup that is stripped before chunking.
	ContentTypeHTML ContentType = "html"
)

type language struct {
	name  string
	kind  ContentType
	files []string // extensions, or exact base names without a leading dot
}

var languages = []language{
	{"go", ContentTypeCode, []string{".go"}},
	{"javascript", ContentTypeCode, []string{".js", ".jsx", ".mjs", ".cjs"}},
	{"typescript", ContentTypeCode, []string{".ts", ".tsx"}},
	{"python", ContentTypeCode, []string{".py", ".pyi"}},
	{"ruby", ContentTypeCode, []string{".rb", ".rake", "Gemfile"}},
	{"rust", ContentTypeCode, []string{".rs"}},
	{"java", ContentTypeCode, []string{".java"}},
	{"kotlin", ContentTypeCode, []string{".kt", ".kts"}},
	{"c", ContentTypeCode, []string{".c", ".h"}},
	{"cpp", ContentTypeCode, []string{".cpp", ".hpp", ".cc"}},
	{"csharp", ContentTypeCode, []string{".cs"}},
	{"swift", ContentTypeCode, []string{".swift"}},
	{"php", ContentTypeCode, []string{".php"}},
	{"scala", ContentTypeCode, []string{".scala"}},
	{"elixir", ContentTypeCode, []string{".ex", ".exs"}},
	{"haskell", ContentTypeCode, []string{".hs"}},
	{"lua", ContentTypeCode, []string{".lua"}},
	{"r", ContentTypeCode, []string{".r"}},
	{"sql", ContentTypeCode, []string{".sql"}},
	{"vue", ContentTypeCode, []string{".vue"}},
	{"svelte", ContentTypeCode, []string{".svelte"}},
	{"graphql", ContentTypeCode, []string{".graphql"}},
	{"protobuf", ContentTypeCode, []string{".proto"}},
	{"terraform", ContentTypeCode, []string{".tf"}},
	{"shell", ContentTypeCode, []string{".sh", ".bash", ".zsh"}},
	{"groovy", ContentTypeCode, []string{"Jenkinsfile"}},
	{"css", ContentTypeCode, []string{".css"}},
	{"scss", ContentTypeCode, []string{".scss"}},
	{"less", ContentTypeCode, []string{".less"}},

	{"html", ContentTypeHTML, []string{".html", ".htm", ".xhtml"}},

	{"markdown", ContentTypeMarkdown, []string{".md", ".mdx", ".markdown"}},
	{"rst", ContentTypeMarkdown, []string{".rst"}},
	{"asciidoc", ContentTypeMarkdown, []string{".adoc"}},
	{"text", ContentTypeText, []string{".txt", ".csv", ".log"}},

	{"json", ContentTypeConfig, []string{".json"}},
	{"yaml", ContentTypeConfig, []string{".yaml", ".yml"}},
	{"toml", ContentTypeConfig, []string{".toml"}},
	{"xml", ContentTypeConfig, []string{".xml"}},
	{"ini", ContentTypeConfig, []string{".ini"}},
	{"config", ContentTypeConfig, []string{".conf", ".cfg"}},
	{"properties", ContentTypeConfig, []string{".properties"}},
	{"dockerfile", ContentTypeConfig, []string{"Dockerfile"}},
	{"makefile", ContentTypeConfig, []string{"Makefile", "makefile", "GNUmakefile"}},
}

var (
	langByName = make(map[string]string)
	kindByLang = make(map[string]ContentType)
)

func init() {
	for _, l := range languages {
		kindByLang[l.name] = l.kind
		for _, f := range l.files {
			langByName[f] = l.name
		}
	}
}

// DetectLanguage returns the language of path from its exact base name or,
// failing that, its lowercased extension. Unknown paths yield "".
func DetectLanguage(path string) string {
	base := filepath.Base(path)
	if lang, ok := langByName[base]; ok {
		return lang
	}
	return langByName[strings.ToLower(filepath.Ext(base))]
}

// DetectContentType treats unknown paths as text.
func DetectContentType(path string) ContentType {
	if kind, ok := kindByLang[DetectLanguage(path)]; ok {
		return kind
	}
	return ContentTypeText
}

// IsTextLike reports whether chunks of path carry line numbers. Markup
// loses its line mapping when stripped, so HTML is excluded.
func IsTextLike(path string) bool {
	lang := DetectLanguage(path)
	return lang != "" && kindByLang[lang] != ContentTypeHTML
}

// SupportedExtensions lists the extensions with a known language.
func SupportedExtensions() []string {
	var exts []string
	for _, l := range languages {
		for _, f := range l.files {
			if strings.HasPrefix(f, ".") {
				exts = append(exts, f)
			}
		}
	}
	return exts
}
