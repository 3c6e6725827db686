package reranker

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knoguchi/rse/internal/llm"
)

type fakeLLM struct {
	response string
	err      error
	prompts  []string
	opts     []llm.GenerateOptions
}

func (f *fakeLLM) Generate(_ context.Context, prompt string, opts llm.GenerateOptions) (string, error) {
	f.prompts = append(f.prompts, prompt)
	f.opts = append(f.opts, opts)
	return f.response, f.err
}

func (f *fakeLLM) GenerateStream(context.Context, string, llm.GenerateOptions) (<-chan llm.StreamChunk, error) {
	return nil, errors.New("not implemented")
}

func TestLLMRerankerRerank(t *testing.T) {
	fake := &fakeLLM{response: "```json\n{\"scores\": [{\"doc_index\": 0, \"score\": 0.2}, {\"doc_index\": 2, \"score\": 1.7}]}\n```"}
	r := NewLLMReranker(fake, WithModel("mistral"))

	rankings, err := r.Rerank(context.Background(), "capital of france", []string{"berlin", "madrid", "paris"})
	require.NoError(t, err)

	// Clamped to 1, left-out passage scores 0.
	assert.Equal(t, []Ranking{
		{Index: 2, Score: 1},
		{Index: 0, Score: 0.2},
		{Index: 1, Score: 0},
	}, rankings)

	require.Len(t, fake.prompts, 1)
	assert.Contains(t, fake.prompts[0], "Query: capital of france")
	assert.Contains(t, fake.prompts[0], "[Doc 2]: paris")
	assert.Equal(t, "mistral", fake.opts[0].Model)
}

func TestLLMRerankerTruncatesLongPassages(t *testing.T) {
	fake := &fakeLLM{response: `{"scores": []}`}
	r := NewLLMReranker(fake)

	_, err := r.Rerank(context.Background(), "q", []string{strings.Repeat("x", 2*maxPromptPassage)})
	require.NoError(t, err)
	assert.Contains(t, fake.prompts[0], strings.Repeat("x", maxPromptPassage)+"...")
	assert.NotContains(t, fake.prompts[0], strings.Repeat("x", maxPromptPassage+1))
}

func TestLLMRerankerErrors(t *testing.T) {
	t.Run("unparsable output", func(t *testing.T) {
		r := NewLLMReranker(&fakeLLM{response: "the first one looks best"})
		_, err := r.Rerank(context.Background(), "q", []string{"a", "b"})
		assert.ErrorIs(t, err, ErrInvalidResponse)
	})

	t.Run("generation failure", func(t *testing.T) {
		boom := errors.New("connection refused")
		r := NewLLMReranker(&fakeLLM{err: boom})
		_, err := r.Rerank(context.Background(), "q", []string{"a"})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("no passages skips the model", func(t *testing.T) {
		fake := &fakeLLM{}
		rankings, err := NewLLMReranker(fake).Rerank(context.Background(), "q", nil)
		require.NoError(t, err)
		assert.Empty(t, rankings)
		assert.Empty(t, fake.prompts)
	})
}
