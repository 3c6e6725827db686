package reranker

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/knoguchi/rse/internal/llm"
)

// maxPromptPassage bounds how much of each passage is shown to the model.
const maxPromptPassage = 500

// LLMReranker asks an LLM to score query-passage pairs. The model sees the query and all
// passages in one prompt and answers with a JSON score per passage.
type LLMReranker struct {
	llmClient llm.LLM
	model     string
}

// LLMRerankerOption is a functional option for configuring LLMReranker.
type LLMRerankerOption func(*LLMReranker)

// WithModel sets the model to use for reranking.
func WithModel(model string) LLMRerankerOption {
	return func(r *LLMReranker) {
		r.model = model
	}
}

// NewLLMReranker creates a new LLM-based reranker.
func NewLLMReranker(llmClient llm.LLM, opts ...LLMRerankerOption) *LLMReranker {
	r := &LLMReranker{
		llmClient: llmClient,
		model:     llm.DefaultModel,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

type relevanceScore struct {
	DocIndex int     `json:"doc_index"`
	Score    float64 `json:"score"`
}

type rerankResponse struct {
	Scores []relevanceScore `json:"scores"`
}

// Rerank scores every passage. Passages the model leaves out score 0.
func (r *LLMReranker) Rerank(ctx context.Context, query string, passages []string) ([]Ranking, error) {
	if len(passages) == 0 {
		return []Ranking{}, nil
	}

	opts := llm.GenerateOptions{
		Model:       r.model,
		Temperature: 0.0,
		MaxTokens:   1024,
		JSON:        true,
	}

	response, err := r.llmClient.Generate(ctx, buildRerankPrompt(query, passages), opts)
	if err != nil {
		return nil, fmt.Errorf("LLM reranking failed: %w", err)
	}

	scores, err := parseRerankResponse(response, len(passages))
	if err != nil {
		return nil, err
	}

	rankings := make([]Ranking, len(passages))
	for i, s := range scores {
		rankings[i] = Ranking{Index: i, Score: s}
	}
	sort.SliceStable(rankings, func(i, j int) bool {
		return rankings[i].Score > rankings[j].Score
	})

	return rankings, nil
}

func buildRerankPrompt(query string, passages []string) string {
	var sb strings.Builder

	sb.WriteString("You are a relevance scoring system. Score each document's relevance to the query.\n\n")
	sb.WriteString("Query: ")
	sb.WriteString(query)
	sb.WriteString("\n\n")

	sb.WriteString("Documents to score:\n")
	for i, p := range passages {
		if len(p) > maxPromptPassage {
			p = p[:maxPromptPassage] + "..."
		}
		fmt.Fprintf(&sb, "[Doc %d]: %s\n\n", i, p)
	}

	sb.WriteString(`Score each document from 0.0 to 1.0 based on relevance to the query.
Output ONLY valid JSON in this exact format:
{"scores": [{"doc_index": 0, "score": 0.9}, {"doc_index": 1, "score": 0.3}, ...]}

Be strict: irrelevant documents should score below 0.3, somewhat relevant 0.3-0.7, highly relevant above 0.7.
Output only JSON, no explanation:`)

	return sb.String()
}

// parseRerankResponse extracts one score per passage, clamped to [0, 1].
func parseRerankResponse(response string, n int) ([]float64, error) {
	response = stripCodeFence(strings.TrimSpace(response))

	var parsed rerankResponse
	if err := json.Unmarshal([]byte(response), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	scores := make([]float64, n)
	for _, s := range parsed.Scores {
		if s.DocIndex < 0 || s.DocIndex >= n {
			continue
		}
		scores[s.DocIndex] = min(max(s.Score, 0), 1)
	}

	return scores, nil
}

// stripCodeFence returns the body of the first markdown code block, if any.
func stripCodeFence(s string) string {
	for _, fence := range []string{"```json", "```"} {
		idx := strings.Index(s, fence)
		if idx == -1 {
			continue
		}
		start := idx + len(fence)
		if end := strings.Index(s[start:], "```"); end != -1 {
			return strings.TrimSpace(s[start : start+end])
		}
	}
	return s
}

var _ Reranker = (*LLMReranker)(nil)
