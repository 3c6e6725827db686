package service

import (
	"context"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/knoguchi/rse/internal/api"
	"github.com/knoguchi/rse/internal/cache"
	"github.com/knoguchi/rse/internal/evaluate"
)

// EvaluatePrecision asks the LLM judge which retrieved contexts are relevant
func (s *PassageService) EvaluatePrecision(ctx context.Context, req *api.PrecisionRequest) (resp *api.PrecisionResponse, err error) {
	c := &call{
		method:  "EvaluatePrecision",
		start:   time.Now(),
		queries: len(req.Queries),
		input:   countChunks(req.RetrievedContents),
	}
	defer func() { s.finish(ctx, c, err) }()

	if s.judge == nil {
		return nil, status.Error(codes.FailedPrecondition, "no llm judge configured")
	}

	var key string
	if s.precisionCache != nil {
		key, err = cache.Key("EvaluatePrecision", req)
		if err != nil {
			return nil, toStatus(err)
		}
		if cached, ok := s.precisionCache.Get(key); ok {
			c.hit = true
			cached.Cached = true
			return &cached, nil
		}
	}

	scores, err := evaluate.RetrievalPrecision(ctx, s.judge, req.Queries, req.RetrievedContents)
	if err != nil {
		return nil, toStatus(err)
	}

	resp = &api.PrecisionResponse{Scores: scores}
	if len(scores) > 0 {
		var sum float64
		for _, v := range scores {
			sum += v
		}
		resp.Mean = sum / float64(len(scores))
	}

	if s.precisionCache != nil {
		s.precisionCache.Set(key, *resp)
	}
	return resp, nil
}
