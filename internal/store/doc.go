// Package store holds the two halves of the hybrid index: vector stores
// (HNSW in-process, Qdrant remote) and keyword indexes (SQLite FTS5, Bleve).
//
// Both halves store the same segments under the same IDs. Keyword indexes
// additionally record the owning resource so all of a resource's documents
// can be removed without knowing their IDs.
package store
