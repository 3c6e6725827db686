package service

import (
	"context"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/knoguchi/rse/internal/api"
	"github.com/knoguchi/rse/internal/cache"
	"github.com/knoguchi/rse/internal/reranker"
)

// Rerank re-scores each query's passages and keeps the top_k best
func (s *PassageService) Rerank(ctx context.Context, req *api.RerankRequest) (resp *api.RerankResponse, err error) {
	c := &call{
		method:  "Rerank",
		start:   time.Now(),
		queries: req.Len(),
		input:   countChunks(req.Contents),
	}
	defer func() {
		if resp != nil {
			c.output = countChunks(resp.Contents)
		}
		s.finish(ctx, c, err)
	}()

	name := req.Reranker
	if name == "" {
		name = s.defaultReranker
	}
	c.options = map[string]any{"reranker": name, "top_k": req.TopK}

	r, ok := s.rerankers[name]
	if !ok {
		if len(s.rerankers) == 0 {
			return nil, status.Error(codes.FailedPrecondition, "no reranker configured")
		}
		return nil, status.Errorf(codes.InvalidArgument, "unknown reranker %q", name)
	}

	var key string
	if s.rerankCache != nil {
		key, err = cache.Key("Rerank/"+name, req)
		if err != nil {
			return nil, toStatus(err)
		}
		if cached, ok := s.rerankCache.Get(key); ok {
			c.hit = true
			cached.Cached = true
			return &cached, nil
		}
	}

	result, err := reranker.RerankBatch(ctx, r, req.Batch, req.TopK, s.rerankConcurrency)
	if err != nil {
		return nil, toStatus(err)
	}

	resp = &api.RerankResponse{Result: *result}
	if s.rerankCache != nil {
		s.rerankCache.Set(key, *resp)
	}
	return resp, nil
}
