// Package vectorstore provides vector similarity search over indexed chunks.
package vectorstore

import (
	"context"
)

// Payload keys stored with every indexed chunk.
const (
	PayloadDocumentID = "document_id"
	PayloadContent    = "content"
	PayloadChunkIndex = "chunk_index"
)

// SearchResult is one chunk returned by a similarity search.
type SearchResult struct {
	ID         string
	DocumentID string
	Content    string
	Score      float32

	// ChunkIndex is the chunk's position in its document. HasChunkIndex is false when the
	// point was indexed without one.
	ChunkIndex    int
	HasChunkIndex bool
}

// Searcher finds the chunks closest to a query vector.
type Searcher interface {
	// Search returns up to topK chunks of collection scoring at least minScore, best first.
	Search(ctx context.Context, collection string, vector []float32, topK int, minScore float32) ([]SearchResult, error)

	// CollectionExists reports whether collection is present.
	CollectionExists(ctx context.Context, collection string) (bool, error)
}
