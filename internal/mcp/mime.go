package mcp

import "github.com/Aman-CERP/ragindex/internal/extract"

// languageMIME overrides the text/x-<language> default for languages with
// a registered MIME type.
var languageMIME = map[string]string{
	"text":       "text/plain",
	"ini":        "text/plain",
	"config":     "text/plain",
	"properties": "text/plain",
	"markdown":   "text/markdown",
	"html":       "text/html",
	"css":        "text/css",
	"javascript": "text/javascript",
	"typescript": "text/typescript",
	"cpp":        "text/x-c++",
	"shell":      "text/x-sh",
	"json":       "application/json",
	"xml":        "application/xml",
	"yaml":       "application/yaml",
	"toml":       "application/toml",
	"sql":        "application/sql",
	"graphql":    "application/graphql",
}

// MimeTypeForPath returns the resource MIME type of path, based on the
// language the extractor detects. Unknown files are text/plain.
func MimeTypeForPath(path string) string {
	lang := extract.DetectLanguage(path)
	if lang == "" {
		return "text/plain"
	}
	if mime, ok := languageMIME[lang]; ok {
		return mime
	}
	return "text/x-" + lang
}
