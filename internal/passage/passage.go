// Package passage defines the batch shapes exchanged between retrieval post-processors.
//
// A Batch holds, for each query, parallel lists of retrieved chunk contents, scores, and
// source document ids. Filters and rerankers consume a Batch and produce a Result with the
// same per-query alignment.
package passage

import (
	"errors"
	"fmt"
)

// ErrInvalidBatch is returned when the parallel lists of a batch are not aligned.
var ErrInvalidBatch = errors.New("invalid batch")

// Batch is a set of queries with their retrieved chunks.
type Batch struct {
	Queries []string `json:"queries"`

	// Contents, Scores, and IDs are index-aligned per query: Contents[q][i] was retrieved
	// from document IDs[q][i] with relevance Scores[q][i].
	Contents [][]string  `json:"contents_list"`
	Scores   [][]float64 `json:"scores_list"`
	IDs      [][]string  `json:"ids_list"`

	// ChunkIndices optionally gives the position of each chunk inside its source document.
	// When nil, chunks are numbered by retrieval order within each document.
	ChunkIndices [][]int `json:"chunk_indices_list,omitempty"`
}

// Len returns the number of queries in the batch.
func (b Batch) Len() int {
	return len(b.Queries)
}

// Validate checks that the batch lists agree in length at both levels.
func (b Batch) Validate() error {
	q := len(b.Queries)
	if len(b.Contents) != q || len(b.Scores) != q || len(b.IDs) != q {
		return fmt.Errorf("%w: %d queries but %d contents, %d scores, %d ids lists",
			ErrInvalidBatch, q, len(b.Contents), len(b.Scores), len(b.IDs))
	}
	if b.ChunkIndices != nil && len(b.ChunkIndices) != q {
		return fmt.Errorf("%w: %d queries but %d chunk index lists", ErrInvalidBatch, q, len(b.ChunkIndices))
	}

	for i := 0; i < q; i++ {
		n := len(b.Contents[i])
		if len(b.Scores[i]) != n || len(b.IDs[i]) != n {
			return fmt.Errorf("%w: query %d has %d contents, %d scores, %d ids",
				ErrInvalidBatch, i, n, len(b.Scores[i]), len(b.IDs[i]))
		}
		if b.ChunkIndices != nil && len(b.ChunkIndices[i]) != n {
			return fmt.Errorf("%w: query %d has %d contents but %d chunk indices",
				ErrInvalidBatch, i, n, len(b.ChunkIndices[i]))
		}
	}

	return nil
}

// Query returns the retrieved chunks of query q.
func (b Batch) Query(q int) Retrieved {
	r := Retrieved{
		Index:    q,
		Text:     b.Queries[q],
		Contents: b.Contents[q],
		Scores:   b.Scores[q],
		IDs:      b.IDs[q],
	}
	if b.ChunkIndices != nil {
		r.ChunkIndices = b.ChunkIndices[q]
	}
	return r
}

// Retrieved is one query's slice of a Batch. Index is the query's position in the batch
// and is the only key used to attribute results back to the query.
type Retrieved struct {
	Index        int
	Text         string
	Contents     []string
	Scores       []float64
	IDs          []string
	ChunkIndices []int
}

// Len returns the number of retrieved chunks.
func (r Retrieved) Len() int {
	return len(r.Contents)
}

// Validate checks that the retrieved lists are aligned.
func (r Retrieved) Validate() error {
	n := len(r.Contents)
	if len(r.Scores) != n || len(r.IDs) != n || (r.ChunkIndices != nil && len(r.ChunkIndices) != n) {
		return fmt.Errorf("%w: query %d has %d contents, %d scores, %d ids, %d chunk indices",
			ErrInvalidBatch, r.Index, n, len(r.Scores), len(r.IDs), len(r.ChunkIndices))
	}
	return nil
}

// Segment is a selected contiguous range of one document in a query's meta-document.
// Start and End are half-open offsets in the meta-document index space.
type Segment struct {
	DocumentID string  `json:"document_id"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Value      float64 `json:"value"`
}

// Len returns the number of positions the segment covers.
func (s Segment) Len() int {
	return s.End - s.Start
}

// Result holds per-query outputs aligned with the input batch.
type Result struct {
	Contents [][]string  `json:"contents_list"`
	IDs      [][]string  `json:"ids_list"`
	Scores   [][]float64 `json:"scores_list"`

	// Segments lists, per query, the ranges the output was drawn from, in selection order.
	// It is empty for post-processors that do not select segments.
	Segments [][]Segment `json:"segments,omitempty"`
}

// NewResult returns a Result with n empty per-query entries.
func NewResult(n int) *Result {
	r := &Result{
		Contents: make([][]string, n),
		IDs:      make([][]string, n),
		Scores:   make([][]float64, n),
	}
	for i := 0; i < n; i++ {
		r.Contents[i] = []string{}
		r.IDs[i] = []string{}
		r.Scores[i] = []float64{}
	}
	return r
}
