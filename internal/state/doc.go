// Package state persists incremental indexing state: the content hash of
// every indexed resource, keyed by project and source type, and the mapping
// from each resource to the segment IDs it produced.
//
// State is the baseline for change detection. A resource is unchanged when
// its stored hash equals its current hash, new or modified otherwise, and
// deleted when it has a stored hash but is no longer enumerated.
package state
