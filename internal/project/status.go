package project

import (
	"context"
	"fmt"
	"slices"

	"github.com/Aman-CERP/ragindex/internal/index"
	"github.com/Aman-CERP/ragindex/internal/state"
)

// StatusReport describes the index of a project.
type StatusReport struct {
	ProjectID string              `json:"project_id"`
	Root      string              `json:"root"`
	DataDir   string              `json:"data_dir"`
	Progress  index.IndexProgress `json:"progress"`

	Vectors  int `json:"vectors"`
	Keywords int `json:"keywords"`
	// Resources counts tracked resources per source kind.
	Resources map[state.SourceType]int `json:"resources"`

	Model          string `json:"model"`
	Dimensions     int    `json:"dimensions"`
	VectorBackend  string `json:"vector_backend"`
	KeywordBackend string `json:"keyword_backend"`
	ReadOnly       bool   `json:"read_only"`
}

// TotalResources sums Resources.
func (r *StatusReport) TotalResources() int {
	n := 0
	for _, c := range r.Resources {
		n += c
	}
	return n
}

// Status collects counts from the stores and the latest progress snapshot.
func (p *Project) Status(ctx context.Context) (*StatusReport, error) {
	vectors, err := p.vectors.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count vectors: %w", err)
	}
	keywords, err := p.keywords.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count keyword documents: %w", err)
	}

	resources := make(map[state.SourceType]int, 3)
	for _, kind := range []state.SourceType{state.SourceFolders, state.SourceFiles, state.SourceURLs} {
		hashes, err := p.state.LoadState(ctx, p.id, kind)
		if err != nil {
			return nil, fmt.Errorf("load %s state: %w", kind, err)
		}
		resources[kind] = len(hashes)
	}

	return &StatusReport{
		ProjectID:      p.id,
		Root:           p.root,
		DataDir:        p.dataDir,
		Progress:       p.coordinator.Snapshot(),
		Vectors:        vectors,
		Keywords:       keywords,
		Resources:      resources,
		Model:          p.embedder.ModelName(),
		Dimensions:     p.embedder.Dimensions(),
		VectorBackend:  p.cfg.Store.VectorBackend,
		KeywordBackend: p.cfg.Store.KeywordBackend,
		ReadOnly:       p.readOnly,
	}, nil
}

// TrackedResources returns the resource IDs with a recorded hash for the
// given kinds, sorted.
func (p *Project) TrackedResources(ctx context.Context, kinds ...state.SourceType) ([]string, error) {
	var ids []string
	for _, kind := range kinds {
		hashes, err := p.state.LoadState(ctx, p.id, kind)
		if err != nil {
			return nil, fmt.Errorf("load %s state: %w", kind, err)
		}
		for id := range hashes {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// Snapshot returns the latest indexing progress.
func (p *Project) Snapshot() index.IndexProgress {
	return p.coordinator.Snapshot()
}
