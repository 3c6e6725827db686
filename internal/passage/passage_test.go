package passage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchValidate(t *testing.T) {
	tests := []struct {
		name    string
		batch   Batch
		wantErr bool
	}{
		{
			name:  "empty batch",
			batch: Batch{},
		},
		{
			name: "aligned",
			batch: Batch{
				Queries:  []string{"q0", "q1"},
				Contents: [][]string{{"a", "b"}, {}},
				Scores:   [][]float64{{0.5, 0.1}, {}},
				IDs:      [][]string{{"d0", "d0"}, {}},
			},
		},
		{
			name: "missing ids list",
			batch: Batch{
				Queries:  []string{"q0"},
				Contents: [][]string{{"a"}},
				Scores:   [][]float64{{0.5}},
			},
			wantErr: true,
		},
		{
			name: "short scores for a query",
			batch: Batch{
				Queries:  []string{"q0"},
				Contents: [][]string{{"a", "b"}},
				Scores:   [][]float64{{0.5}},
				IDs:      [][]string{{"d0", "d0"}},
			},
			wantErr: true,
		},
		{
			name: "chunk indices misaligned",
			batch: Batch{
				Queries:      []string{"q0"},
				Contents:     [][]string{{"a"}},
				Scores:       [][]float64{{0.5}},
				IDs:          [][]string{{"d0"}},
				ChunkIndices: [][]int{{0, 1}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.batch.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidBatch)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestBatchQuery(t *testing.T) {
	b := Batch{
		Queries:      []string{"q0", "q1"},
		Contents:     [][]string{{"a"}, {"b", "c"}},
		Scores:       [][]float64{{0.1}, {0.2, 0.3}},
		IDs:          [][]string{{"d0"}, {"d1", "d2"}},
		ChunkIndices: [][]int{{4}, {0, 7}},
	}

	r := b.Query(1)
	assert.Equal(t, 1, r.Index)
	assert.Equal(t, "q1", r.Text)
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []int{0, 7}, r.ChunkIndices)
	require.NoError(t, r.Validate())
}

func TestNewResult(t *testing.T) {
	r := NewResult(2)
	require.Len(t, r.Contents, 2)
	for i := 0; i < 2; i++ {
		assert.NotNil(t, r.Contents[i])
		assert.Empty(t, r.IDs[i])
		assert.Empty(t, r.Scores[i])
	}
}
