package reranker

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/knoguchi/rse/internal/passage"
)

// DefaultConcurrency is the number of queries reranked at once when none is given.
const DefaultConcurrency = 8

// ErrInvalidTopK is returned when top-k is not positive.
var ErrInvalidTopK = errors.New("top_k must be positive")

// RerankBatch reranks every query of a batch and keeps the topK best passages of each.
// At most concurrency queries are in flight; the first failure cancels the rest.
func RerankBatch(ctx context.Context, r Reranker, batch passage.Batch, topK, concurrency int) (*passage.Result, error) {
	if err := batch.Validate(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTopK, topK)
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	res := passage.NewResult(batch.Len())

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for q := range batch.Queries {
		g.Go(func() error {
			query := batch.Query(q)
			rankings, err := r.Rerank(ctx, query.Text, query.Contents)
			if err != nil {
				return fmt.Errorf("query %d: %w", q, err)
			}

			if len(rankings) > topK {
				rankings = rankings[:topK]
			}
			for _, rk := range rankings {
				if rk.Index < 0 || rk.Index >= query.Len() {
					return fmt.Errorf("query %d: %w: index %d out of range", q, ErrInvalidResponse, rk.Index)
				}
				res.Contents[q] = append(res.Contents[q], query.Contents[rk.Index])
				res.IDs[q] = append(res.IDs[q], query.IDs[rk.Index])
				res.Scores[q] = append(res.Scores[q], rk.Score)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return res, nil
}
