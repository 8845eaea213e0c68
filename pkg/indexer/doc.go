// Package indexer implements the write path of the hybrid index.
//
// A [HybridIndexer] batches text segments, embeds each batch with one
// provider call, and writes the result to both the vector store and the
// keyword index before recording segment-to-resource mappings in the state
// store:
//
//	AddSegmentToBatch ──► queue (mutex) ──► flush
//	                                          │
//	                    ┌─────────────────────┼──────────────────────┐
//	                    ▼                     ▼                      ▼
//	              EmbedBatch ──► VectorStore.AddAll ──► KeywordIndex.IndexDocuments
//	                                                                 │
//	                                                                 ▼
//	                                                     state.Store.AddMappings
//
// Segment IDs are deterministic UUIDs derived from the project, the
// resource and the chunk index, so re-indexing an unchanged chunk rewrites
// the same entries instead of creating new ones.
//
// # Failure
//
// A failed flush keeps its segments queued and reports false. If the vector
// write succeeded but the keyword write failed, the just-written vectors
// are deleted again so neither store holds segments without mappings.
//
// # Thread Safety
//
// All methods are safe for concurrent use. One mutex covers the queue,
// both flush paths and resource removal, so no caller observes a
// partially flushed batch.
package indexer
