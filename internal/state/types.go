package state

import "context"

// SourceType partitions state within a project so each source kind is
// diffed independently.
type SourceType string

const (
	SourceFolders SourceType = "folders"
	SourceFiles   SourceType = "files"
	SourceURLs    SourceType = "urls"
)

// Valid reports whether s is a known source type.
func (s SourceType) Valid() bool {
	switch s {
	case SourceFolders, SourceFiles, SourceURLs:
		return true
	}
	return false
}

// Mapping links one stored segment to the resource that produced it.
type Mapping struct {
	ProjectID  string
	ResourceID string
	SegmentID  string
	ChunkIndex int
}

// Store is the persisted state backend.
type Store interface {
	// LoadState returns resourceID -> content hash for one source type.
	LoadState(ctx context.Context, projectID string, st SourceType) (map[string]string, error)
	// SaveState replaces the stored hashes for one source type.
	SaveState(ctx context.Context, projectID string, st SourceType, hashes map[string]string) error
	// PutHash records a single resource hash, for watcher-driven updates.
	PutHash(ctx context.Context, projectID string, st SourceType, resourceID, hash string) error
	// DeleteHash forgets a single resource.
	DeleteHash(ctx context.Context, projectID string, st SourceType, resourceID string) error
	// Clear removes all state and mappings for a project.
	Clear(ctx context.Context, projectID string) error

	AddMappings(ctx context.Context, mappings []Mapping) error
	MappingsFor(ctx context.Context, projectID, resourceID string) ([]Mapping, error)
	DeleteMappings(ctx context.Context, projectID, resourceID string) error
	AllMappings(ctx context.Context, projectID string) ([]Mapping, error)

	Close() error
}
