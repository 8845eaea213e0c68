package indexer

import (
	"strconv"

	"github.com/google/uuid"

	"github.com/Aman-CERP/ragindex/internal/state"
)

// segmentNamespace scopes segment UUIDs to this index format.
var segmentNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/Aman-CERP/ragindex/segment"))

// SegmentID returns the deterministic ID of chunk chunkIndex of a
// resource. It is a version 5 UUID over the project ID, the resource ID
// hash and the chunk index.
func SegmentID(projectID, resourceID string, chunkIndex int) string {
	name := projectID + "\x00" + state.HashString(resourceID) + "\x00" + strconv.Itoa(chunkIndex)
	return uuid.NewSHA1(segmentNamespace, []byte(name)).String()
}
