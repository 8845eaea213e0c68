// Package searcher provides the two retrieval paths over an index built by
// pkg/indexer:
//
//   - [KeywordSearcher]: lexical search ranked by BM25
//   - [VectorSearcher]: semantic search over segment embeddings
//
// The searchers are independent and return their own rankings. Combining
// them is left to the caller; internal/search runs both side by side.
//
// # Usage
//
//	kw, _ := searcher.NewKeywordSearcher(searcher.WithKeywordIndex(keywords))
//	vec, _ := searcher.NewVectorSearcher(
//	    searcher.WithSearchEmbedder(embedder),
//	    searcher.WithSearchVectorStore(vectors),
//	)
//
//	hits, err := kw.Search(ctx, "rate limiter", 10)
//
// # Thread Safety
//
// All Searcher implementations are safe for concurrent use.
package searcher
