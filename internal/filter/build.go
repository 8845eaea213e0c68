package filter

import (
	"fmt"
	"log/slog"
)

// Options configures a standard chain.
type Options struct {
	// Boundary is the outermost project directory.
	Boundary string
	// ProjectTypes defaults to DefaultProjectTypes.
	ProjectTypes []ProjectType
	// CustomPatterns feed the custom pattern filter.
	CustomPatterns []string
	// MaxFileSize of 0 disables the size filter.
	MaxFileSize int64
	// Extensions enables the extension allow-list when non-empty.
	Extensions []string
	// IgnoreFileNames defaults to DefaultIgnoreFileNames.
	IgnoreFileNames []string
	Logger          *slog.Logger
}

// Standard is a chain assembled from Options, exposing the parts other
// components need to reach (cache invalidation on rule file changes).
type Standard struct {
	*Chain
	Detector *RootDetector
	Ignore   *IgnoreFileFilter
}

// NewStandard assembles the ignore-file, project-type, custom pattern,
// extension, size and binary filters.
func NewStandard(opts Options) (*Standard, error) {
	types := opts.ProjectTypes
	if types == nil {
		types = DefaultProjectTypes
	}

	detector, err := NewRootDetector(opts.Boundary, types)
	if err != nil {
		return nil, err
	}
	ignore, err := NewIgnoreFileFilter(opts.Boundary, opts.IgnoreFileNames...)
	if err != nil {
		return nil, fmt.Errorf("ignore filter: %w", err)
	}

	filters := []Filter{
		ignore,
		NewProjectTypeFilter(types),
		BinaryFilter{},
	}
	if len(opts.CustomPatterns) > 0 {
		filters = append(filters, NewCustomPatternFilter(opts.CustomPatterns))
	}
	if opts.MaxFileSize > 0 {
		filters = append(filters, SizeFilter{Max: opts.MaxFileSize})
	}
	if len(opts.Extensions) > 0 {
		filters = append(filters, NewExtensionFilter(opts.Extensions))
	}

	var chainOpts []ChainOption
	if opts.Logger != nil {
		chainOpts = append(chainOpts, WithLogger(opts.Logger))
	}

	return &Standard{
		Chain:    NewChain(detector, filters, chainOpts...),
		Detector: detector,
		Ignore:   ignore,
	}, nil
}

// Refresh drops cached ignore matchers and roots.
func (s *Standard) Refresh() {
	s.Ignore.Invalidate()
	s.Detector.Purge()
}
