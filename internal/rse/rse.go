// Package rse implements Relevance Segment Extraction over retrieval results.
//
// Rather than keeping or dropping chunks one by one, RSE rebuilds a virtual document per
// query from its best source documents, scores every position with a rank-decayed
// relevance value, and selects the contiguous, length-bounded ranges with the highest
// summed value. Adjacent chunks of one document are thereby kept together.
//
// The package is pure: no I/O, no logging, no state between calls. Queries are processed
// independently and only ever addressed by their index in the batch.
package rse

import (
	"github.com/knoguchi/rse/internal/passage"
)

// Filter runs the extraction over every query of a batch. The configuration and the batch
// shape are validated before anything is computed.
func Filter(batch passage.Batch, cfg Config) (*passage.Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := batch.Validate(); err != nil {
		return nil, err
	}

	ranked := make([][]RankedResult, batch.Len())
	for q := range batch.Queries {
		rr, err := RankResults(batch.Query(q))
		if err != nil {
			return nil, err
		}
		ranked[q] = rr
	}

	res := passage.NewResult(batch.Len())
	res.Segments = make([][]passage.Segment, batch.Len())
	for q := range batch.Queries {
		out := extract(batch.Query(q), ranked[q], cfg)
		res.Contents[q] = out.Contents
		res.IDs[q] = out.IDs
		res.Scores[q] = out.Scores
		res.Segments[q] = out.Segments
	}

	return res, nil
}

// FilterQuery runs the extraction for a single query.
func FilterQuery(r passage.Retrieved, cfg Config) (QueryResult, error) {
	if err := cfg.Validate(); err != nil {
		return QueryResult{}, err
	}
	if err := r.Validate(); err != nil {
		return QueryResult{}, err
	}
	ranked, err := RankResults(r)
	if err != nil {
		return QueryResult{}, err
	}
	return extract(r, ranked, cfg), nil
}

func extract(r passage.Retrieved, ranked []RankedResult, cfg Config) QueryResult {
	meta := AssembleMetaDocument(ranked, cfg)
	values := RelevanceValues(meta, cfg)
	segments := SelectSegments(values, meta, cfg)
	return MapSegments(r, meta, segments)
}
