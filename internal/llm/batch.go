package llm

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// DefaultBatchConcurrency bounds in-flight prompts when no limit is given.
const DefaultBatchConcurrency = 8

// Batch runs prompts through an LLM with bounded concurrency.
type Batch struct {
	llm         LLM
	opts        GenerateOptions
	concurrency int
}

// NewBatch wraps an LLM as a BatchGenerator. Every prompt is sent with opts.
func NewBatch(l LLM, opts GenerateOptions, concurrency int) *Batch {
	if concurrency <= 0 {
		concurrency = DefaultBatchConcurrency
	}
	return &Batch{llm: l, opts: opts, concurrency: concurrency}
}

// GenerateBatch returns one response per prompt, in prompt order. The first failure cancels
// the prompts still in flight.
func (b *Batch) GenerateBatch(ctx context.Context, prompts []string) ([]string, error) {
	responses := make([]string, len(prompts))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	for i, prompt := range prompts {
		g.Go(func() error {
			resp, err := b.llm.Generate(ctx, prompt, b.opts)
			if err != nil {
				return fmt.Errorf("prompt %d: %w", i, err)
			}
			responses[i] = resp
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return responses, nil
}

var _ BatchGenerator = (*Batch)(nil)
