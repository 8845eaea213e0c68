package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aman-CERP/ragindex/internal/state"
	"github.com/Aman-CERP/ragindex/internal/store"
)

// InconsistencyType categorizes detected issues.
type InconsistencyType int

const (
	// InconsistencyOrphanKeyword is a keyword document without a mapping.
	InconsistencyOrphanKeyword InconsistencyType = iota
	// InconsistencyOrphanVector is a vector without a mapping.
	InconsistencyOrphanVector
	// InconsistencyMissingKeyword is a mapping whose keyword document is gone.
	InconsistencyMissingKeyword
	// InconsistencyMissingVector is a mapping whose vector is gone.
	InconsistencyMissingVector
)

// String returns a human-readable description of the inconsistency type.
func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyOrphanKeyword:
		return "orphan_keyword"
	case InconsistencyOrphanVector:
		return "orphan_vector"
	case InconsistencyMissingKeyword:
		return "missing_keyword"
	case InconsistencyMissingVector:
		return "missing_vector"
	default:
		return "unknown"
	}
}

// Inconsistency represents a detected cross-store issue.
type Inconsistency struct {
	Type      InconsistencyType
	SegmentID string
	// ResourceID is set for missing entries, which come from a mapping.
	ResourceID string
}

// CheckResult contains the outcome of a consistency check.
type CheckResult struct {
	// Checked is the number of mapping rows verified.
	Checked int
	// Inconsistencies contains all detected issues.
	Inconsistencies []Inconsistency
	// Duration is how long the check took.
	Duration time.Duration
}

// Consistent reports whether no issue was found.
func (r *CheckResult) Consistent() bool {
	return len(r.Inconsistencies) == 0
}

// Count returns the number of issues of type t.
func (r *CheckResult) Count(t InconsistencyType) int {
	n := 0
	for _, i := range r.Inconsistencies {
		if i.Type == t {
			n++
		}
	}
	return n
}

// CheckConsistency compares the mapping table of a project, which is the
// source of truth, with the IDs held by both stores. It is O(n) in the
// total number of entries.
func CheckConsistency(ctx context.Context, projectID string, st state.Store,
	vectors store.VectorStore, keywords store.KeywordIndex) (*CheckResult, error) {
	start := time.Now()

	mappings, err := st.AllMappings(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load mappings: %w", err)
	}
	mapped := make(map[string]string, len(mappings))
	for _, m := range mappings {
		mapped[m.SegmentID] = m.ResourceID
	}

	keywordIDs, err := keywords.AllIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list keyword documents: %w", err)
	}
	vectorIDs, err := vectors.AllIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list vectors: %w", err)
	}

	var issues []Inconsistency
	keywordSet := make(map[string]struct{}, len(keywordIDs))
	for _, id := range keywordIDs {
		keywordSet[id] = struct{}{}
		if _, ok := mapped[id]; !ok {
			issues = append(issues, Inconsistency{Type: InconsistencyOrphanKeyword, SegmentID: id})
		}
	}
	vectorSet := make(map[string]struct{}, len(vectorIDs))
	for _, id := range vectorIDs {
		vectorSet[id] = struct{}{}
		if _, ok := mapped[id]; !ok {
			issues = append(issues, Inconsistency{Type: InconsistencyOrphanVector, SegmentID: id})
		}
	}
	for _, m := range mappings {
		if _, ok := keywordSet[m.SegmentID]; !ok {
			issues = append(issues, Inconsistency{
				Type: InconsistencyMissingKeyword, SegmentID: m.SegmentID, ResourceID: m.ResourceID,
			})
		}
		if _, ok := vectorSet[m.SegmentID]; !ok {
			issues = append(issues, Inconsistency{
				Type: InconsistencyMissingVector, SegmentID: m.SegmentID, ResourceID: m.ResourceID,
			})
		}
	}

	return &CheckResult{
		Checked:         len(mappings),
		Inconsistencies: issues,
		Duration:        time.Since(start),
	}, nil
}

// RepairOrphans deletes orphaned entries from the stores (best-effort).
// Keyword orphans are removed only when the index supports deletion by ID.
// Missing entries need a re-index of their resource and are only logged.
func RepairOrphans(ctx context.Context, result *CheckResult,
	vectors store.VectorStore, keywords store.KeywordIndex) error {
	var orphanKeyword, orphanVector []string
	missing := 0
	for _, issue := range result.Inconsistencies {
		switch issue.Type {
		case InconsistencyOrphanKeyword:
			orphanKeyword = append(orphanKeyword, issue.SegmentID)
		case InconsistencyOrphanVector:
			orphanVector = append(orphanVector, issue.SegmentID)
		default:
			missing++
		}
	}

	if len(orphanVector) > 0 {
		if err := vectors.RemoveAll(ctx, orphanVector); err != nil {
			return fmt.Errorf("delete orphan vectors: %w", err)
		}
		slog.Info("orphan_vectors_deleted", slog.Int("count", len(orphanVector)))
	}

	if len(orphanKeyword) > 0 {
		d, ok := keywords.(interface {
			Delete(ctx context.Context, ids []string) error
		})
		if !ok {
			slog.Warn("orphan_keywords_kept",
				slog.Int("count", len(orphanKeyword)),
				slog.String("reason", "keyword index cannot delete by id"))
		} else if err := d.Delete(ctx, orphanKeyword); err != nil {
			return fmt.Errorf("delete orphan keyword documents: %w", err)
		} else {
			slog.Info("orphan_keywords_deleted", slog.Int("count", len(orphanKeyword)))
		}
	}

	if missing > 0 {
		slog.Warn("index_entries_missing",
			slog.Int("count", missing),
			slog.String("suggestion", "run 'ragindex clear' then 'ragindex index'"))
	}
	return nil
}
