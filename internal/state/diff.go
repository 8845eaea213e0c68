package state

import "sort"

// Status classifies a resource against the previous state.
type Status int

const (
	StatusNew Status = iota
	StatusModified
	StatusUnchanged
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusModified:
		return "modified"
	case StatusUnchanged:
		return "unchanged"
	}
	return "unknown"
}

// Classify compares a resource's current hash with the previous state.
func Classify(previous map[string]string, resourceID, hash string) Status {
	old, ok := previous[resourceID]
	switch {
	case !ok:
		return StatusNew
	case old == hash:
		return StatusUnchanged
	default:
		return StatusModified
	}
}

// Changes is the result of diffing two hash sets.
type Changes struct {
	New       []string
	Modified  []string
	Unchanged []string
	Deleted   []string
}

// Diff compares the previous state with the current enumeration. All
// slices are sorted.
func Diff(previous, current map[string]string) Changes {
	var c Changes
	for id, hash := range current {
		switch Classify(previous, id, hash) {
		case StatusNew:
			c.New = append(c.New, id)
		case StatusModified:
			c.Modified = append(c.Modified, id)
		default:
			c.Unchanged = append(c.Unchanged, id)
		}
	}
	c.Deleted = Deleted(previous, current)

	sort.Strings(c.New)
	sort.Strings(c.Modified)
	sort.Strings(c.Unchanged)
	return c
}

// Deleted returns the sorted IDs present in previous but not in seen.
func Deleted[V any](previous map[string]string, seen map[string]V) []string {
	var out []string
	for id := range previous {
		if _, ok := seen[id]; !ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
