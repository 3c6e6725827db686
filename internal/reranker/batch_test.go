package reranker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knoguchi/rse/internal/passage"
)

// lengthReranker scores a passage by its length.
type lengthReranker struct {
	inFlight atomic.Int32
	peak     atomic.Int32
	fail     map[string]error

	mu      sync.Mutex
	queries []string
}

func (r *lengthReranker) Rerank(ctx context.Context, query string, passages []string) ([]Ranking, error) {
	n := r.inFlight.Add(1)
	defer r.inFlight.Add(-1)
	for {
		p := r.peak.Load()
		if n <= p || r.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	r.mu.Lock()
	r.queries = append(r.queries, query)
	r.mu.Unlock()

	if err := r.fail[query]; err != nil {
		return nil, err
	}

	rankings := make([]Ranking, len(passages))
	for i, p := range passages {
		rankings[i] = Ranking{Index: i, Score: float64(len(p))}
	}
	sort.SliceStable(rankings, func(i, j int) bool { return rankings[i].Score > rankings[j].Score })
	return rankings, ctx.Err()
}

func TestRerankBatch(t *testing.T) {
	batch := passage.Batch{
		Queries:  []string{"q0", "q1", "q2"},
		Contents: [][]string{{"a", "aaa", "aa"}, {}, {"bb", "b"}},
		Scores:   [][]float64{{0.1, 0.2, 0.3}, {}, {0.9, 0.8}},
		IDs:      [][]string{{"d1", "d3", "d2"}, {}, {"e2", "e1"}},
	}

	res, err := RerankBatch(context.Background(), &lengthReranker{}, batch, 2, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"aaa", "aa"}, res.Contents[0])
	assert.Equal(t, []string{"d3", "d2"}, res.IDs[0])
	assert.Equal(t, []float64{3, 2}, res.Scores[0])

	assert.Equal(t, []string{}, res.Contents[1])

	assert.Equal(t, []string{"bb", "b"}, res.Contents[2])
	assert.Equal(t, []string{"e2", "e1"}, res.IDs[2])
}

func TestRerankBatchBoundsConcurrency(t *testing.T) {
	batch := passage.Batch{}
	for i := 0; i < 12; i++ {
		batch.Queries = append(batch.Queries, "q")
		batch.Contents = append(batch.Contents, []string{"x"})
		batch.Scores = append(batch.Scores, []float64{1})
		batch.IDs = append(batch.IDs, []string{"d"})
	}

	r := &lengthReranker{}
	_, err := RerankBatch(context.Background(), r, batch, 1, 3)
	require.NoError(t, err)
	assert.LessOrEqual(t, r.peak.Load(), int32(3))
	assert.Len(t, r.queries, 12)
}

func TestRerankBatchErrors(t *testing.T) {
	batch := passage.Batch{
		Queries:  []string{"ok", "bad"},
		Contents: [][]string{{"a"}, {"b"}},
		Scores:   [][]float64{{1}, {1}},
		IDs:      [][]string{{"d"}, {"e"}},
	}

	t.Run("reranker failure", func(t *testing.T) {
		r := &lengthReranker{fail: map[string]error{"bad": ErrMissingCredentials}}
		_, err := RerankBatch(context.Background(), r, batch, 1, 0)
		assert.ErrorIs(t, err, ErrMissingCredentials)
	})

	t.Run("non-positive top k", func(t *testing.T) {
		_, err := RerankBatch(context.Background(), &lengthReranker{}, batch, 0, 0)
		assert.ErrorIs(t, err, ErrInvalidTopK)
	})

	t.Run("misaligned batch", func(t *testing.T) {
		bad := batch
		bad.IDs = [][]string{{"d"}}
		_, err := RerankBatch(context.Background(), &lengthReranker{}, bad, 1, 0)
		assert.True(t, errors.Is(err, passage.ErrInvalidBatch))
	})
}
