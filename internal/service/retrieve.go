package service

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/knoguchi/rse/internal/api"
	"github.com/knoguchi/rse/internal/passage"
	"github.com/knoguchi/rse/internal/rse"
	"github.com/knoguchi/rse/internal/vectorstore"
)

// searchConcurrency bounds concurrent vector searches per request.
const searchConcurrency = 4

// RetrieveAndFilter embeds each query, searches the vector store, and filters the hits
func (s *PassageService) RetrieveAndFilter(ctx context.Context, req *api.RetrieveRequest) (resp *api.RetrieveResponse, err error) {
	cfg := s.defaults.Apply(req.Options)
	c := &call{
		method:  "RetrieveAndFilter",
		start:   time.Now(),
		queries: len(req.Queries),
		options: cfg,
	}
	defer func() {
		if resp != nil {
			c.input = countChunks(resp.Retrieved.Contents)
			c.output = countChunks(resp.Filtered.Contents)
		}
		s.finish(ctx, c, err)
	}()

	if s.embedder == nil || s.searcher == nil {
		return nil, status.Error(codes.FailedPrecondition, "retrieval is not configured")
	}
	if req.TopK <= 0 {
		return nil, status.Errorf(codes.InvalidArgument, "top_k must be positive, got %d", req.TopK)
	}
	if err := cfg.Validate(); err != nil {
		return nil, toStatus(err)
	}

	collection := req.Collection
	if collection == "" {
		collection = s.collection
	}

	batch, err := s.retrieve(ctx, collection, req.Queries, req.TopK, req.MinScore)
	if err != nil {
		return nil, toStatus(err)
	}

	result, err := rse.Filter(batch, cfg)
	if err != nil {
		return nil, toStatus(err)
	}

	return &api.RetrieveResponse{Retrieved: batch, Filtered: *result, Config: cfg}, nil
}

func (s *PassageService) retrieve(ctx context.Context, collection string, queries []string, topK int, minScore float32) (passage.Batch, error) {
	vectors, err := s.embedder.EmbedBatch(ctx, queries)
	if err != nil {
		return passage.Batch{}, fmt.Errorf("failed to embed queries: %w", err)
	}

	hits := make([][]vectorstore.SearchResult, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(searchConcurrency)
	for q := range queries {
		g.Go(func() error {
			results, err := s.searcher.Search(gctx, collection, vectors[q], topK, minScore)
			if err != nil {
				return fmt.Errorf("query %d: %w", q, err)
			}
			hits[q] = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return passage.Batch{}, err
	}

	return toBatch(queries, hits), nil
}

// toBatch lays search hits out as a batch. Explicit chunk indices are used only when every
// hit carries one; otherwise chunks are numbered by retrieval order.
func toBatch(queries []string, hits [][]vectorstore.SearchResult) passage.Batch {
	b := passage.Batch{
		Queries:  queries,
		Contents: make([][]string, len(queries)),
		Scores:   make([][]float64, len(queries)),
		IDs:      make([][]string, len(queries)),
	}
	indices := make([][]int, len(queries))
	explicit := true

	for q, results := range hits {
		b.Contents[q] = make([]string, len(results))
		b.Scores[q] = make([]float64, len(results))
		b.IDs[q] = make([]string, len(results))
		indices[q] = make([]int, len(results))

		for i, r := range results {
			b.Contents[q][i] = r.Content
			b.Scores[q][i] = float64(r.Score)
			b.IDs[q][i] = r.DocumentID
			if b.IDs[q][i] == "" {
				b.IDs[q][i] = r.ID
			}
			indices[q][i] = r.ChunkIndex
			explicit = explicit && r.HasChunkIndex
		}
	}

	if explicit {
		b.ChunkIndices = indices
	}
	return b
}
