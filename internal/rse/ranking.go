package rse

import (
	"fmt"
	"sort"

	"github.com/knoguchi/rse/internal/passage"
)

// Chunk is one retrieved chunk of a query.
type Chunk struct {
	// QueryIndex is the index of the chunk's query in its batch.
	QueryIndex int
	DocumentID string
	// LocalIndex is the chunk's index inside its document; (DocumentID, LocalIndex) is unique
	// within a query.
	LocalIndex int
	// Position is the chunk's index in the query's retrieved lists.
	Position int
	Content  string
	Score    float64
}

// RankedResult is a Chunk annotated with its rank (0 = highest score).
type RankedResult struct {
	Chunk
	Rank int
}

type chunkKey struct {
	doc   string
	local int
}

// RankResults orders a query's chunks by score descending. Ties keep retrieval order.
func RankResults(r passage.Retrieved) ([]RankedResult, error) {
	ranked := make([]RankedResult, r.Len())
	seen := make(map[chunkKey]int, r.Len())
	ordinal := make(map[string]int)

	for i := 0; i < r.Len(); i++ {
		doc := r.IDs[i]

		local := ordinal[doc]
		ordinal[doc]++
		if r.ChunkIndices != nil {
			local = r.ChunkIndices[i]
			if local < 0 {
				return nil, fmt.Errorf("%w: query %d chunk %d has negative chunk index %d",
					passage.ErrInvalidBatch, r.Index, i, local)
			}
		}

		key := chunkKey{doc: doc, local: local}
		if prev, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: query %d chunks %d and %d are both chunk %d of document %q",
				passage.ErrInvalidBatch, r.Index, prev, i, local, doc)
		}
		seen[key] = i

		ranked[i] = RankedResult{Chunk: Chunk{
			QueryIndex: r.Index,
			DocumentID: doc,
			LocalIndex: local,
			Position:   i,
			Content:    r.Contents[i],
			Score:      r.Scores[i],
		}}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	for i := range ranked {
		ranked[i].Rank = i
	}

	return ranked, nil
}
