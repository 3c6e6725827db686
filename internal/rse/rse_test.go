package rse

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knoguchi/rse/internal/passage"
)

func singleQuery(contents []string, scores []float64, ids []string) passage.Batch {
	return passage.Batch{
		Queries:  []string{"query"},
		Contents: [][]string{contents},
		Scores:   [][]float64{scores},
		IDs:      [][]string{ids},
	}
}

func TestFilter_SingleDocumentTopPair(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxLength = 2
	cfg.MinimumValue = 0
	cfg.DecayRate = 20

	batch := singleQuery(
		[]string{"c0", "c1", "c2"},
		[]float64{0.9, 0.5, 0.1},
		[]string{"doc", "doc", "doc"},
	)

	res, err := Filter(batch, cfg)
	require.NoError(t, err)
	require.NotEmpty(t, res.Segments[0])

	first := res.Segments[0][0]
	assert.Equal(t, "doc", first.DocumentID)
	assert.Equal(t, 0, first.Start)
	assert.Equal(t, 2, first.End)
	assert.InDelta(t, 0.9+0.5*math.Exp(-1.0/20), first.Value, 1e-12)
	assert.Equal(t, []string{"c0", "c1"}, res.Contents[0][:2])

	// The leftover chunk still clears a zero floor and forms its own segment.
	require.Len(t, res.Segments[0], 2)
	assert.Equal(t, passage.Segment{DocumentID: "doc", Start: 2, End: 3, Value: 0.1 * math.Exp(-2.0/20)}, res.Segments[0][1])
}

func TestFilter_OverallBudgetDropsSecondSegment(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxLength = 2
	cfg.OverallMaxLength = 3

	batch := singleQuery(
		[]string{"a0", "a1", "b0", "b1"},
		[]float64{0.9, 0.8, 0.7, 0.6},
		[]string{"A", "A", "B", "B"},
	)

	res, err := Filter(batch, cfg)
	require.NoError(t, err)

	require.Len(t, res.Segments[0], 1)
	assert.Equal(t, "A", res.Segments[0][0].DocumentID)
	assert.Equal(t, []string{"a0", "a1"}, res.Contents[0])
	assert.Equal(t, []string{"A", "A"}, res.IDs[0])
	assert.Equal(t, []float64{0.9, 0.8}, res.Scores[0])
}

func TestFilter_EmptyQuery(t *testing.T) {
	batch := passage.Batch{
		Queries:  []string{"empty", "full"},
		Contents: [][]string{{}, {"x"}},
		Scores:   [][]float64{{}, {0.9}},
		IDs:      [][]string{{}, {"d"}},
	}

	res, err := Filter(batch, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, []string{}, res.Contents[0])
	assert.Equal(t, []string{}, res.IDs[0])
	assert.Equal(t, []float64{}, res.Scores[0])
	assert.Equal(t, []string{"x"}, res.Contents[1])
}

func TestFilter_TopDocumentSelection(t *testing.T) {
	var contents, ids []string
	var scores []float64
	for i := 0; i < 10; i++ {
		doc := fmt.Sprintf("d%d", i)
		contents = append(contents, doc+"-best")
		ids = append(ids, doc)
		scores = append(scores, 1.0-0.05*float64(i))
	}
	// A weak chunk of d0 that d3's best chunk outscores.
	contents = append(contents, "d0-weak")
	ids = append(ids, "d0")
	scores = append(scores, 0.01)

	cfg := DefaultConfig()
	cfg.TopKForDocumentSelection = 3

	batch := singleQuery(contents, scores, ids)

	ranked, err := RankResults(batch.Query(0))
	require.NoError(t, err)
	meta := AssembleMetaDocument(ranked, cfg)
	require.Len(t, meta.Blocks, 3)
	assert.Equal(t, "d0", meta.Blocks[0].ID)
	assert.Equal(t, "d1", meta.Blocks[1].ID)
	assert.Equal(t, "d2", meta.Blocks[2].ID)
	assert.Equal(t, map[string]int{"d0": 0, "d1": 2, "d2": 3}, meta.StartPoints)
	assert.Equal(t, map[string]int{"d0": 2, "d1": 1, "d2": 1}, meta.Splits)
	assert.Equal(t, 4, meta.Len())

	res, err := Filter(batch, cfg)
	require.NoError(t, err)
	require.NotEmpty(t, res.IDs[0])
	for _, id := range res.IDs[0] {
		assert.Contains(t, []string{"d0", "d1", "d2"}, id)
	}
}

func TestFilter_OverallBudgetSkipsToSmallerSegment(t *testing.T) {
	// Candidates in value order: A (2 chunks), B (2 chunks), C (1 chunk).
	batch := singleQuery(
		[]string{"a0", "a1", "b0", "b1", "c0"},
		[]float64{0.9, 0.8, 0.7, 0.6, 0.5},
		[]string{"A", "A", "B", "B", "C"},
	)

	tests := []struct {
		name         string
		overall      int
		wantDocs     []string
		wantContents []string
	}{
		{
			name:         "over-budget candidate is skipped for a later one",
			overall:      3,
			wantDocs:     []string{"A", "C"},
			wantContents: []string{"a0", "a1", "c0"},
		},
		{
			name:         "budget filled by the first two",
			overall:      4,
			wantDocs:     []string{"A", "B"},
			wantContents: []string{"a0", "a1", "b0", "b1"},
		},
		{
			name:         "everything fits",
			overall:      5,
			wantDocs:     []string{"A", "B", "C"},
			wantContents: []string{"a0", "a1", "b0", "b1", "c0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.MaxLength = 2
			cfg.OverallMaxLength = tt.overall

			res, err := Filter(batch, cfg)
			require.NoError(t, err)

			var docs []string
			for i, seg := range res.Segments[0] {
				docs = append(docs, seg.DocumentID)
				if i > 0 {
					assert.Less(t, seg.Value, res.Segments[0][i-1].Value)
				}
			}
			assert.Equal(t, tt.wantDocs, docs)
			assert.Equal(t, tt.wantContents, res.Contents[0])
		})
	}
}

func TestFilter_SparseChunkIndices(t *testing.T) {
	tests := []struct {
		name         string
		indices      []int
		wantLen      int
		wantSegments []passage.Segment
	}{
		{
			name:    "short gap is bridged",
			indices: []int{0, 5},
			wantLen: 6,
			wantSegments: []passage.Segment{
				{DocumentID: "doc", Start: 0, End: 6, Value: 0.9 - 4*0.01 + 0.8*math.Exp(-1.0/20)},
			},
		},
		{
			name:    "gap longer than a segment is shortened",
			indices: []int{0, 12},
			wantLen: 12,
			wantSegments: []passage.Segment{
				{DocumentID: "doc", Start: 0, End: 1, Value: 0.9},
				{DocumentID: "doc", Start: 11, End: 12, Value: 0.8 * math.Exp(-1.0/20)},
			},
		},
		{
			name:    "twenty million missing chunks",
			indices: []int{0, 20_000_000},
			wantLen: 12,
			wantSegments: []passage.Segment{
				{DocumentID: "doc", Start: 0, End: 1, Value: 0.9},
				{DocumentID: "doc", Start: 11, End: 12, Value: 0.8 * math.Exp(-1.0/20)},
			},
		},
		{
			name:    "index near the int range",
			indices: []int{0, 1 << 62},
			wantLen: 12,
			wantSegments: []passage.Segment{
				{DocumentID: "doc", Start: 0, End: 1, Value: 0.9},
				{DocumentID: "doc", Start: 11, End: 12, Value: 0.8 * math.Exp(-1.0/20)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.MinimumValue = 0
			cfg.IrrelevantChunkPenalty = 0.01

			batch := passage.Batch{
				Queries:      []string{"q"},
				Contents:     [][]string{{"first", "last"}},
				Scores:       [][]float64{{0.9, 0.8}},
				IDs:          [][]string{{"doc", "doc"}},
				ChunkIndices: [][]int{tt.indices},
			}

			ranked, err := RankResults(batch.Query(0))
			require.NoError(t, err)
			meta := AssembleMetaDocument(ranked, cfg)
			assert.Equal(t, tt.wantLen, meta.Len())
			assert.Equal(t, map[string]int{"doc": tt.wantLen}, meta.Splits)

			res, err := Filter(batch, cfg)
			require.NoError(t, err)
			require.Len(t, res.Segments[0], len(tt.wantSegments))
			for i, want := range tt.wantSegments {
				got := res.Segments[0][i]
				assert.Equal(t, want.DocumentID, got.DocumentID)
				assert.Equal(t, want.Start, got.Start)
				assert.Equal(t, want.End, got.End)
				assert.InDelta(t, want.Value, got.Value, 1e-12)
			}
			assert.Equal(t, []string{"first", "last"}, res.Contents[0])
		})
	}
}

func TestFilter_FillersAloneNeverFormSegments(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinimumValue = 0
	cfg.IrrelevantChunkPenalty = 0

	batch := passage.Batch{
		Queries:      []string{"q"},
		Contents:     [][]string{{"first", "last"}},
		Scores:       [][]float64{{0.9, 0.8}},
		IDs:          [][]string{{"doc", "doc"}},
		ChunkIndices: [][]int{{0, 100}},
	}

	res, err := Filter(batch, cfg)
	require.NoError(t, err)
	for _, seg := range res.Segments[0] {
		assert.LessOrEqual(t, seg.Len(), cfg.MaxLength)
		assert.Greater(t, seg.Value, 0.0, "segment %+v covers no chunk", seg)
	}
	assert.ElementsMatch(t, []string{"first", "last"}, res.Contents[0])
}

func TestFilter_FillerPenalty(t *testing.T) {
	batch := passage.Batch{
		Queries:      []string{"q"},
		Contents:     [][]string{{"first", "third"}},
		Scores:       [][]float64{{0.9, 0.8}},
		IDs:          [][]string{{"doc", "doc"}},
		ChunkIndices: [][]int{{0, 2}},
	}

	tests := []struct {
		name         string
		penalty      float64
		wantSegments []passage.Segment
		wantContents []string
	}{
		{
			name:    "cheap filler is bridged",
			penalty: 0.2,
			wantSegments: []passage.Segment{
				{DocumentID: "doc", Start: 0, End: 3, Value: 0.9 - 0.2 + 0.8*math.Exp(-1.0/20)},
			},
			wantContents: []string{"first", "third"},
		},
		{
			name:    "expensive filler splits the document",
			penalty: 1.0,
			wantSegments: []passage.Segment{
				{DocumentID: "doc", Start: 0, End: 1, Value: 0.9},
				{DocumentID: "doc", Start: 2, End: 3, Value: 0.8 * math.Exp(-1.0/20)},
			},
			wantContents: []string{"first", "third"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.IrrelevantChunkPenalty = tt.penalty

			res, err := Filter(batch, cfg)
			require.NoError(t, err)
			require.Len(t, res.Segments[0], len(tt.wantSegments))
			for i, want := range tt.wantSegments {
				got := res.Segments[0][i]
				assert.Equal(t, want.DocumentID, got.DocumentID)
				assert.Equal(t, want.Start, got.Start)
				assert.Equal(t, want.End, got.End)
				assert.InDelta(t, want.Value, got.Value, 1e-12)
			}
			assert.Equal(t, tt.wantContents, res.Contents[0])
		})
	}
}

func TestFilter_IdenticalQueriesKeepTheirOwnResults(t *testing.T) {
	batch := passage.Batch{
		Queries:  []string{"same", "same"},
		Contents: [][]string{{"q0-a", "q0-b"}, {"q1-a"}},
		Scores:   [][]float64{{0.9, 0.7}, {0.8}},
		IDs:      [][]string{{"x", "x"}, {"y"}},
	}

	res, err := Filter(batch, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, []string{"q0-a", "q0-b"}, res.Contents[0])
	assert.Equal(t, []string{"q1-a"}, res.Contents[1])
	assert.Equal(t, []string{"y"}, res.IDs[1])
}

func TestFilter_SegmentCappedByOverallBudget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxLength = 10
	cfg.OverallMaxLength = 3

	batch := singleQuery(
		[]string{"c0", "c1", "c2", "c3", "c4"},
		[]float64{0.9, 0.9, 0.9, 0.9, 0.9},
		[]string{"d", "d", "d", "d", "d"},
	)

	res, err := Filter(batch, cfg)
	require.NoError(t, err)
	require.Len(t, res.Segments[0], 1)
	assert.Equal(t, 3, res.Segments[0][0].Len())
	assert.Len(t, res.Contents[0], 3)
}

func TestFilter_NoQualifyingSegment(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinimumValue = 5

	res, err := Filter(singleQuery([]string{"a"}, []float64{0.3}, []string{"d"}), cfg)
	require.NoError(t, err)
	assert.Empty(t, res.Contents[0])
	assert.Empty(t, res.Segments[0])
}

func TestFilter_ValidationFailsBeforeComputing(t *testing.T) {
	t.Run("misaligned batch", func(t *testing.T) {
		batch := passage.Batch{
			Queries:  []string{"q0", "q1"},
			Contents: [][]string{{"a"}},
			Scores:   [][]float64{{0.1}},
			IDs:      [][]string{{"d"}},
		}
		_, err := Filter(batch, DefaultConfig())
		assert.ErrorIs(t, err, passage.ErrInvalidBatch)
	})

	t.Run("duplicate chunk identity", func(t *testing.T) {
		batch := passage.Batch{
			Queries:      []string{"q"},
			Contents:     [][]string{{"a", "b"}},
			Scores:       [][]float64{{0.1, 0.2}},
			IDs:          [][]string{{"d", "d"}},
			ChunkIndices: [][]int{{3, 3}},
		}
		_, err := Filter(batch, DefaultConfig())
		assert.ErrorIs(t, err, passage.ErrInvalidBatch)
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.DecayRate = 0
		_, err := Filter(singleQuery([]string{"a"}, []float64{0.9}, []string{"d"}), cfg)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestFilter_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	batch := passage.Batch{}
	for q := 0; q < 20; q++ {
		n := rng.Intn(40)
		var contents, ids []string
		var scores []float64
		for i := 0; i < n; i++ {
			doc := fmt.Sprintf("doc-%d", rng.Intn(9))
			contents = append(contents, fmt.Sprintf("q%d-c%d", q, i))
			ids = append(ids, doc)
			scores = append(scores, rng.Float64())
		}
		batch.Queries = append(batch.Queries, fmt.Sprintf("query %d", q))
		batch.Contents = append(batch.Contents, contents)
		batch.Scores = append(batch.Scores, scores)
		batch.IDs = append(batch.IDs, ids)
	}

	cfg := DefaultConfig()
	cfg.MaxLength = 4
	cfg.OverallMaxLength = 9
	cfg.TopKForDocumentSelection = 4

	res, err := Filter(batch, cfg)
	require.NoError(t, err)

	again, err := Filter(batch, cfg)
	require.NoError(t, err)
	assert.Equal(t, res, again)

	for q := range batch.Queries {
		ranked, err := RankResults(batch.Query(q))
		require.NoError(t, err)
		meta := AssembleMetaDocument(ranked, cfg)

		assert.Len(t, res.IDs[q], len(res.Contents[q]))
		assert.Len(t, res.Scores[q], len(res.Contents[q]))
		assert.LessOrEqual(t, len(res.Contents[q]), cfg.OverallMaxLength)

		total := 0
		covered := make(map[int]bool)
		for _, seg := range res.Segments[q] {
			assert.Greater(t, seg.End, seg.Start)
			assert.LessOrEqual(t, seg.Len(), cfg.MaxLength)
			assert.GreaterOrEqual(t, seg.Value, cfg.MinimumValue)

			b, ok := meta.Block(seg.DocumentID)
			require.True(t, ok)
			assert.GreaterOrEqual(t, seg.Start, b.Start)
			assert.LessOrEqual(t, seg.End, b.End())

			for p := seg.Start; p < seg.End; p++ {
				assert.False(t, covered[p], "query %d position %d selected twice", q, p)
				covered[p] = true
			}
			total += seg.Len()
		}
		assert.LessOrEqual(t, total, cfg.OverallMaxLength)
	}
}

func TestRankResults_StableTies(t *testing.T) {
	r := passage.Retrieved{
		Contents: []string{"a", "b", "c"},
		Scores:   []float64{0.5, 0.5, 0.9},
		IDs:      []string{"d", "d", "e"},
	}

	r.Index = 3

	ranked, err := RankResults(r)
	require.NoError(t, err)

	got := make([]string, len(ranked))
	for i, rr := range ranked {
		got[i] = rr.Content
		assert.Equal(t, i, rr.Rank)
		assert.Equal(t, 3, rr.QueryIndex)
	}
	assert.Equal(t, []string{"c", "a", "b"}, got)

	// Ordinal local indices follow retrieval order per document.
	assert.Equal(t, 0, ranked[1].LocalIndex)
	assert.Equal(t, 1, ranked[2].LocalIndex)
	assert.Equal(t, 0, ranked[0].LocalIndex)
}

func TestAssembleMetaDocument_RestoresTextOrder(t *testing.T) {
	r := passage.Retrieved{
		Contents: []string{"d-0", "e-0", "d-1", "d-2"},
		Scores:   []float64{0.2, 0.8, 0.9, 0.1},
		IDs:      []string{"d", "e", "d", "d"},
	}
	ranked, err := RankResults(r)
	require.NoError(t, err)

	meta := AssembleMetaDocument(ranked, DefaultConfig())
	require.Len(t, meta.Blocks, 2)
	assert.Equal(t, "d", meta.Blocks[0].ID)

	var order []string
	for p := 0; p < meta.Len(); p++ {
		order = append(order, meta.At(p).Content)
	}
	assert.Equal(t, []string{"d-0", "d-1", "d-2", "e-0"}, order)
}

func TestRelevanceValues(t *testing.T) {
	r := passage.Retrieved{
		Contents:     []string{"a", "b"},
		Scores:       []float64{0.5, 1.0},
		IDs:          []string{"d", "d"},
		ChunkIndices: []int{5, 7},
	}
	ranked, err := RankResults(r)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.DecayRate = 10
	cfg.IrrelevantChunkPenalty = 0.3

	values := RelevanceValues(AssembleMetaDocument(ranked, cfg), cfg)
	require.Len(t, values, 3)
	assert.InDelta(t, 0.5*math.Exp(-0.1), values[0], 1e-12)
	assert.Equal(t, -0.3, values[1])
	assert.InDelta(t, 1.0, values[2], 1e-12)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "zero floor allowed", mutate: func(c *Config) { c.MinimumValue = 0; c.IrrelevantChunkPenalty = 0 }},
		{name: "zero max length", mutate: func(c *Config) { c.MaxLength = 0 }, wantErr: true},
		{name: "max length at bound", mutate: func(c *Config) { c.MaxLength = 1000 }},
		{name: "max length over bound", mutate: func(c *Config) { c.MaxLength = 1001 }, wantErr: true},
		{name: "negative overall", mutate: func(c *Config) { c.OverallMaxLength = -1 }, wantErr: true},
		{name: "zero document breadth", mutate: func(c *Config) { c.TopKForDocumentSelection = 0 }, wantErr: true},
		{name: "negative floor", mutate: func(c *Config) { c.MinimumValue = -0.1 }, wantErr: true},
		{name: "negative penalty", mutate: func(c *Config) { c.IrrelevantChunkPenalty = -1 }, wantErr: true},
		{name: "zero decay", mutate: func(c *Config) { c.DecayRate = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestConfigApply(t *testing.T) {
	maxLen := 3
	floor := 0.0

	cfg := DefaultConfig().Apply(&Overrides{MaxLength: &maxLen, MinimumValue: &floor})
	assert.Equal(t, 3, cfg.MaxLength)
	assert.Equal(t, 0.0, cfg.MinimumValue)
	assert.Equal(t, 50, cfg.OverallMaxLength)

	assert.Equal(t, DefaultConfig(), DefaultConfig().Apply(nil))
}
