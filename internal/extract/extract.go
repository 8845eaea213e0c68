package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	ragerrors "github.com/Aman-CERP/ragindex/internal/errors"
	"github.com/Aman-CERP/ragindex/internal/filter"
)

// DefaultMaxFileSize is the largest file ExtractText reads (10MB).
const DefaultMaxFileSize = 10 * 1024 * 1024

// Extractor reads a resource as plain text. A blank result means the
// resource has no indexable content and is skipped.
type Extractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
	IsTextLike(path string) bool
}

// FileExtractor extracts text from local files.
type FileExtractor struct {
	maxSize int64
}

// NewFileExtractor returns a FileExtractor. maxSize <= 0 uses the default.
func NewFileExtractor(maxSize int64) *FileExtractor {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	return &FileExtractor{maxSize: maxSize}
}

// IsTextLike reports whether the file is line-addressable text.
func (e *FileExtractor) IsTextLike(path string) bool {
	return IsTextLike(path)
}

// ExtractText reads path and returns its text. Binary files yield "".
func (e *FileExtractor) ExtractText(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ragerrors.New(ragerrors.ErrCodeFileNotFound, "file not found", err).WithDetail("path", path)
		}
		if os.IsPermission(err) {
			return "", ragerrors.New(ragerrors.ErrCodeFilePermission, "permission denied", err).WithDetail("path", path)
		}
		return "", ragerrors.Wrap(ragerrors.ErrCodeExtractFailed, err).WithDetail("path", path)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return "", ragerrors.Wrap(ragerrors.ErrCodeExtractFailed, err).WithDetail("path", path)
	}
	if info.Size() > e.maxSize {
		return "", ragerrors.New(ragerrors.ErrCodeFileTooLarge,
			fmt.Sprintf("file is %d bytes, limit is %d", info.Size(), e.maxSize), nil).
			WithDetail("path", path)
	}

	data, err := io.ReadAll(io.LimitReader(f, e.maxSize+1))
	if err != nil {
		return "", ragerrors.Wrap(ragerrors.ErrCodeExtractFailed, err).WithDetail("path", path)
	}

	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	if filter.IsBinaryContent(head) {
		return "", nil
	}

	text := DecodeText(data)
	if DetectContentType(path) == ContentTypeHTML {
		return HTMLToText(strings.NewReader(text))
	}
	return text, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeText strips a UTF-8 byte order mark and replaces invalid sequences.
func DecodeText(data []byte) string {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "�")
}

// skipElements are elements whose text is never indexed.
var skipElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"svg":      true,
	"head":     true,
}

// blockElements end the current line of output.
var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"pre": true, "section": true, "article": true, "blockquote": true,
	"header": true, "footer": true, "table": true, "ul": true, "ol": true,
}

// HTMLToText returns the visible text of an HTML document, one block per line.
func HTMLToText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipElements[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
				if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
					sb.WriteByte(' ')
				}
				sb.WriteString(t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] && sb.Len() > 0 &&
			!strings.HasSuffix(sb.String(), "\n") {
			sb.WriteByte('\n')
		}
	}
	walk(doc)

	return strings.TrimSpace(sb.String()), nil
}
