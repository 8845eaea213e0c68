package index

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/Aman-CERP/ragindex/internal/chunk"
	"github.com/Aman-CERP/ragindex/internal/config"
	"github.com/Aman-CERP/ragindex/internal/extract"
	"github.com/Aman-CERP/ragindex/internal/filter"
	"github.com/Aman-CERP/ragindex/internal/state"
	"github.com/Aman-CERP/ragindex/internal/store"
)

// Source is one configured knowledge source. Kind selects the handler;
// Targets are directory roots, file paths or URLs depending on Kind.
type Source struct {
	Kind    state.SourceType
	Targets []string
}

// SourcesFromConfig resolves the configured paths against root. With no
// folders, files or URLs configured, root itself is the only folder.
func SourcesFromConfig(root string, paths config.PathsConfig) []Source {
	resolve := func(p string) string {
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		return filepath.Join(root, p)
	}

	var sources []Source
	folders := make([]string, 0, len(paths.Folders))
	for _, f := range paths.Folders {
		folders = append(folders, resolve(f))
	}
	if len(folders) == 0 && len(paths.Files) == 0 && len(paths.URLs) == 0 {
		folders = append(folders, root)
	}
	if len(folders) > 0 {
		sources = append(sources, Source{Kind: state.SourceFolders, Targets: folders})
	}
	if len(paths.Files) > 0 {
		files := make([]string, 0, len(paths.Files))
		for _, f := range paths.Files {
			files = append(files, resolve(f))
		}
		sources = append(sources, Source{Kind: state.SourceFiles, Targets: files})
	}
	if len(paths.URLs) > 0 {
		sources = append(sources, Source{Kind: state.SourceURLs, Targets: append([]string(nil), paths.URLs...)})
	}
	return sources
}

// Handler enumerates, fingerprints and loads the resources of one source
// kind.
type Handler interface {
	// Enumerate returns the candidate resource IDs under targets. Targets
	// or subtrees that cannot be read are logged and skipped.
	Enumerate(ctx context.Context, targets []string) []string
	// Signature returns the content hash used for change detection.
	Signature(ctx context.Context, resourceID string) (string, error)
	// Load extracts and chunks the resource.
	Load(ctx context.Context, resourceID string) Outcome
}

// Registry dispatches source kinds to their handlers.
type Registry struct {
	handlers map[state.SourceType]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[state.SourceType]Handler)}
}

// Register installs h for kind, replacing any previous handler.
func (r *Registry) Register(kind state.SourceType, h Handler) {
	r.handlers[kind] = h
}

// Lookup returns the handler for kind.
func (r *Registry) Lookup(kind state.SourceType) (Handler, bool) {
	h, ok := r.handlers[kind]
	return h, ok
}

// refresh drops cached exclusion rules of every handler that keeps some.
func (r *Registry) refresh() {
	for _, h := range r.handlers {
		if rf, ok := h.(interface{ Refresh() }); ok {
			rf.Refresh()
		}
	}
}

// Excluder decides whether a path takes part in indexing.
// *filter.Chain and *filter.Standard satisfy it.
type Excluder interface {
	ShouldExclude(path string, isDir bool, ctx *filter.Context) bool
}

// Fetcher retrieves web pages. *extract.URLFetcher satisfies it.
type Fetcher interface {
	Signature(ctx context.Context, url string) (string, error)
	Fetch(ctx context.Context, url string) (*extract.Page, error)
}

// RegistryConfig holds the collaborators of the built-in handlers.
type RegistryConfig struct {
	// FolderFilter applies to recursive folder enumeration.
	FolderFilter Excluder
	// FileFilter applies to selected files, usually with an extension
	// allow-list. Defaults to FolderFilter.
	FileFilter Excluder
	Extractor  extract.Extractor
	// Fetcher enables the URL handler when set.
	Fetcher Fetcher
	Chunker *chunk.Chunker
	Logger  *slog.Logger
}

// DefaultRegistry registers the folder, file and (with a Fetcher) URL
// handlers.
func DefaultRegistry(cfg RegistryConfig) (*Registry, error) {
	if cfg.FolderFilter == nil {
		return nil, fmt.Errorf("folder filter is required")
	}
	if cfg.Extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if cfg.Chunker == nil {
		return nil, fmt.Errorf("chunker is required")
	}
	if cfg.FileFilter == nil {
		cfg.FileFilter = cfg.FolderFilter
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := NewRegistry()
	r.Register(state.SourceFolders, &folderHandler{localLoader{
		filter: cfg.FolderFilter, extractor: cfg.Extractor, chunker: cfg.Chunker,
		kind: state.SourceFolders, logger: cfg.Logger,
	}})
	r.Register(state.SourceFiles, &fileHandler{localLoader{
		filter: cfg.FileFilter, extractor: cfg.Extractor, chunker: cfg.Chunker,
		kind: state.SourceFiles, logger: cfg.Logger,
	}})
	if cfg.Fetcher != nil {
		r.Register(state.SourceURLs, &urlHandler{
			fetcher: cfg.Fetcher, chunker: cfg.Chunker, logger: cfg.Logger,
		})
	}
	return r, nil
}

// localLoader fingerprints and loads local files.
type localLoader struct {
	filter    Excluder
	extractor extract.Extractor
	chunker   *chunk.Chunker
	kind      state.SourceType
	logger    *slog.Logger
}

func (l *localLoader) Signature(_ context.Context, resourceID string) (string, error) {
	return state.HashFile(resourceID)
}

func (l *localLoader) Load(ctx context.Context, resourceID string) Outcome {
	text, err := l.extractor.ExtractText(ctx, resourceID)
	if err != nil {
		return Fail(err)
	}
	if strings.TrimSpace(text) == "" {
		return Skip("no content")
	}

	var segs []store.Segment
	if l.extractor.IsTextLike(resourceID) {
		chunks := l.chunker.ChunkWithLineNumbers(text)
		segs = make([]store.Segment, len(chunks))
		for i, c := range chunks {
			segs[i] = l.segment(resourceID, c.Text, i, len(chunks))
			segs[i].Metadata[store.MetaStartLine] = strconv.Itoa(c.StartLine)
			segs[i].Metadata[store.MetaEndLine] = strconv.Itoa(c.EndLine)
		}
	} else {
		chunks := l.chunker.Chunk(text)
		segs = make([]store.Segment, len(chunks))
		for i, c := range chunks {
			segs[i] = l.segment(resourceID, c, i, len(chunks))
		}
	}
	if len(segs) == 0 {
		return Skip("no chunks")
	}
	return OK(segs)
}

func (l *localLoader) segment(resourceID, text string, idx, total int) store.Segment {
	return store.Segment{
		ResourceID: resourceID,
		Text:       text,
		Metadata: map[string]string{
			store.MetaFilePath:    resourceID,
			store.MetaFileName:    filepath.Base(resourceID),
			store.MetaChunkIndex:  strconv.Itoa(idx),
			store.MetaTotalChunks: strconv.Itoa(total),
			store.MetaSourceType:  string(l.kind),
		},
	}
}

// Refresh drops cached ignore rules after a rule file changed.
func (l *localLoader) Refresh() {
	if rf, ok := l.filter.(interface{ Refresh() }); ok {
		rf.Refresh()
	}
}

// folderHandler walks directory roots recursively. Excluded directories
// are never descended into.
type folderHandler struct {
	localLoader
}

func (h *folderHandler) Enumerate(ctx context.Context, targets []string) []string {
	seen := make(map[string]struct{})
	var out []string

	for _, target := range targets {
		root, err := filepath.Abs(target)
		if err != nil {
			root = filepath.Clean(target)
		}

		walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				h.logger.Warn("enumerate_failed",
					slog.String("path", p),
					slog.String("error", err.Error()))
				if d != nil && d.IsDir() && p != root {
					return fs.SkipDir
				}
				return nil
			}

			if d.IsDir() {
				if p != root && h.filter.ShouldExclude(p, true, nil) {
					return fs.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			if h.filter.ShouldExclude(p, false, nil) {
				return nil
			}
			if _, dup := seen[p]; !dup {
				seen[p] = struct{}{}
				out = append(out, p)
			}
			return nil
		})
		if walkErr != nil {
			h.logger.Warn("enumerate_aborted",
				slog.String("root", root),
				slog.String("error", walkErr.Error()))
		}
	}
	return out
}

// fileHandler indexes individually selected files.
type fileHandler struct {
	localLoader
}

func (h *fileHandler) Enumerate(ctx context.Context, targets []string) []string {
	seen := make(map[string]struct{})
	var out []string

	for _, target := range targets {
		if ctx.Err() != nil {
			break
		}
		p, err := filepath.Abs(target)
		if err != nil {
			p = filepath.Clean(target)
		}
		info, err := os.Stat(p)
		if err != nil {
			h.logger.Warn("selected_file_unavailable",
				slog.String("path", p),
				slog.String("error", err.Error()))
			continue
		}
		if !info.Mode().IsRegular() {
			h.logger.Warn("selected_file_not_regular", slog.String("path", p))
			continue
		}
		if h.filter.ShouldExclude(p, false, nil) {
			continue
		}
		if _, dup := seen[p]; !dup {
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

// urlHandler indexes web pages. A page fetched to compute its signature
// is kept until Load so it is downloaded once per pass.
type urlHandler struct {
	fetcher Fetcher
	chunker *chunk.Chunker
	logger  *slog.Logger
	pages   sync.Map // url -> *extract.Page
}

func (h *urlHandler) Enumerate(_ context.Context, targets []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, raw := range targets {
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			h.logger.Warn("invalid_url", slog.String("url", raw))
			continue
		}
		id := u.String()
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

func (h *urlHandler) Signature(ctx context.Context, resourceID string) (string, error) {
	sig, err := h.fetcher.Signature(ctx, resourceID)
	if err != nil {
		return "", err
	}
	if sig != "" {
		return sig, nil
	}

	// No validators: the body hash is the signature.
	page, err := h.fetcher.Fetch(ctx, resourceID)
	if err != nil {
		return "", err
	}
	h.pages.Store(resourceID, page)
	return page.Signature, nil
}

func (h *urlHandler) Load(ctx context.Context, resourceID string) Outcome {
	var page *extract.Page
	if v, ok := h.pages.LoadAndDelete(resourceID); ok {
		page = v.(*extract.Page)
	} else {
		p, err := h.fetcher.Fetch(ctx, resourceID)
		if err != nil {
			return Fail(err)
		}
		page = p
	}
	if strings.TrimSpace(page.Text) == "" {
		return Skip("no content")
	}

	name := page.Title
	if name == "" {
		if u, err := url.Parse(resourceID); err == nil {
			name = u.Host + path.Clean("/"+u.Path)
		} else {
			name = resourceID
		}
	}

	chunks := h.chunker.Chunk(page.Text)
	if len(chunks) == 0 {
		return Skip("no chunks")
	}
	segs := make([]store.Segment, len(chunks))
	for i, c := range chunks {
		segs[i] = store.Segment{
			ResourceID: resourceID,
			Text:       c,
			Metadata: map[string]string{
				store.MetaURL:         resourceID,
				store.MetaFileName:    name,
				store.MetaChunkIndex:  strconv.Itoa(i),
				store.MetaTotalChunks: strconv.Itoa(len(chunks)),
				store.MetaSourceType:  string(state.SourceURLs),
			},
		}
	}
	return OK(segs)
}
