package service

import (
	"context"
	"fmt"
	"time"

	"github.com/knoguchi/rse/internal/api"
	"github.com/knoguchi/rse/internal/cache"
	"github.com/knoguchi/rse/internal/passage"
	"github.com/knoguchi/rse/internal/rse"
)

// Filter runs relevance segment extraction over a batch
func (s *PassageService) Filter(ctx context.Context, req *api.FilterRequest) (resp *api.FilterResponse, err error) {
	cfg := s.defaults.Apply(req.Options)
	c := &call{
		method:  "Filter",
		start:   time.Now(),
		queries: req.Len(),
		input:   countChunks(req.Contents),
		options: cfg,
	}
	defer func() {
		if resp != nil {
			c.output = countChunks(resp.Contents)
		}
		s.finish(ctx, c, err)
	}()

	key, err := s.filterKey(req.Batch, cfg)
	if err != nil {
		return nil, toStatus(err)
	}
	if s.filterCache != nil {
		if cached, ok := s.filterCache.Get(key); ok {
			c.hit = true
			cached.Cached = true
			return &cached, nil
		}
	}

	result, err := rse.Filter(req.Batch, cfg)
	if err != nil {
		return nil, toStatus(err)
	}

	resp = &api.FilterResponse{Result: *result, Config: cfg}
	if s.filterCache != nil {
		s.filterCache.Set(key, *resp)
	}
	return resp, nil
}

func (s *PassageService) filterKey(batch passage.Batch, cfg rse.Config) (string, error) {
	if s.filterCache == nil {
		return "", nil
	}
	key, err := cache.Key("Filter", struct {
		Batch  passage.Batch `json:"batch"`
		Config rse.Config    `json:"config"`
	}{batch, cfg})
	if err != nil {
		return "", fmt.Errorf("%w: %v", passage.ErrInvalidBatch, err)
	}
	return key, nil
}
