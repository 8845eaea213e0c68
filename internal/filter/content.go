package filter

import (
	"bytes"
	"io"
	"os"
	"slices"
	"strings"
)

// sniffLen is how much of a file the binary filter reads.
const sniffLen = 512

// binaryExtensions are rejected without opening the file.
var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".ico": true,
	".webp": true, ".tif": true, ".tiff": true, ".psd": true,
	".mp3": true, ".mp4": true, ".wav": true, ".ogg": true, ".flac": true, ".mov": true,
	".avi": true, ".mkv": true, ".webm": true,
	".zip": true, ".gz": true, ".tgz": true, ".bz2": true, ".xz": true, ".7z": true,
	".rar": true, ".tar": true, ".jar": true, ".war": true,
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".a": true, ".o": true,
	".class": true, ".pyc": true, ".wasm": true, ".bin": true,
	".pdf": true, ".doc": true, ".xls": true, ".ppt": true,
	".ttf": true, ".otf": true, ".woff": true, ".woff2": true,
	".db": true, ".sqlite": true, ".sqlite3": true,
}

// binarySignatures are leading magic bytes of common binary formats.
var binarySignatures = [][]byte{
	[]byte("\x89PNG\r\n\x1a\n"),
	[]byte("GIF87a"),
	[]byte("GIF89a"),
	{0xFF, 0xD8, 0xFF},
	[]byte("PK\x03\x04"),
	[]byte("\x7fELF"),
	[]byte("%PDF-"),
	{0x1F, 0x8B},
	{0xCF, 0xFA, 0xED, 0xFE},
	[]byte("SQLite format 3\x00"),
}

// IsBinaryContent reports whether head looks like binary data: a known
// signature or a NUL byte.
func IsBinaryContent(head []byte) bool {
	for _, sig := range binarySignatures {
		if bytes.HasPrefix(head, sig) {
			return true
		}
	}
	return bytes.IndexByte(head, 0) >= 0
}

// BinaryFilter rejects binary files by extension or content sniffing.
type BinaryFilter struct{}

func (BinaryFilter) Name() string  { return "binary" }
func (BinaryFilter) Priority() int { return PriorityBinary }

// ShouldExclude implements Filter.
func (BinaryFilter) ShouldExclude(path string, isDir bool, ctx *Context) bool {
	if isDir {
		return false
	}
	if binaryExtensions[ctx.Ext] {
		return true
	}

	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return false
	}
	return IsBinaryContent(buf[:n])
}

// SizeFilter rejects files larger than Max bytes.
type SizeFilter struct {
	Max int64
}

func (SizeFilter) Name() string  { return "size" }
func (SizeFilter) Priority() int { return PrioritySize }

// ShouldExclude implements Filter.
func (f SizeFilter) ShouldExclude(path string, isDir bool, _ *Context) bool {
	if isDir || f.Max <= 0 {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Size() > f.Max
}

// ExtensionFilter keeps only files whose extension is allow-listed. It is
// used for individually selected files.
type ExtensionFilter struct {
	allowed map[string]bool
}

// NewExtensionFilter builds an allow-list. Entries may omit the dot.
func NewExtensionFilter(exts []string) *ExtensionFilter {
	allowed := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		allowed[e] = true
	}
	return &ExtensionFilter{allowed: allowed}
}

func (f *ExtensionFilter) Name() string  { return "extension" }
func (f *ExtensionFilter) Priority() int { return PriorityExtension }

// ShouldExclude implements Filter.
func (f *ExtensionFilter) ShouldExclude(_ string, isDir bool, ctx *Context) bool {
	if isDir {
		return false
	}
	return !f.allowed[ctx.Ext]
}

// Extensions returns the sorted allow-list.
func (f *ExtensionFilter) Extensions() []string {
	out := make([]string, 0, len(f.allowed))
	for e := range f.allowed {
		out = append(out, e)
	}
	slices.Sort(out)
	return out
}
