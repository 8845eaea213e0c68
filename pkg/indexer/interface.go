package indexer

import (
	"context"

	"github.com/Aman-CERP/ragindex/internal/store"
)

// SegmentIndexer is the write-path contract the coordinator drives.
type SegmentIndexer interface {
	// AddSegmentToBatch queues a segment and flushes when the batch is
	// full. It returns false only when that flush failed.
	AddSegmentToBatch(ctx context.Context, seg store.Segment, resourceID string) bool

	// FlushRemaining forces a flush of whatever is queued.
	FlushRemaining(ctx context.Context) bool

	// RemoveResource deletes every segment of a resource from both stores
	// and drops its mappings. Removing an unknown resource is a no-op.
	RemoveResource(ctx context.Context, resourceID string) error

	// DiscardPending drops every queued segment without writing it and
	// returns how many were dropped.
	DiscardPending() int
}

// Stats is a snapshot of indexer counters.
type Stats struct {
	// Pending is the number of queued segments.
	Pending int
	// Flushes counts successful flushes.
	Flushes int64
	// FailedFlushes counts flushes that returned false.
	FailedFlushes int64
	// SegmentsWritten counts segments written by successful flushes.
	SegmentsWritten int64
	// ResourcesRemoved counts RemoveResource calls that found segments.
	ResourcesRemoved int64
}
