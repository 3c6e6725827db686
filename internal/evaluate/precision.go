// Package evaluate scores retrieval quality with an LLM judge.
package evaluate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/knoguchi/rse/internal/llm"
)

// ErrAmbiguousResponse is returned when a judge answer is neither clearly true nor false.
var ErrAmbiguousResponse = errors.New("could not determine true or false from response")

// ErrMisalignedInput is returned when queries and retrieved contexts differ in length.
var ErrMisalignedInput = errors.New("queries and retrieved contexts are not aligned")

const precisionInstruction = "Considering the following question and context, determine whether the context " +
	"is relevant for answering the question. If the context is relevant for " +
	"answering the question, respond with true. If the context is not relevant for " +
	"answering the question, respond with false. Respond with either true or false " +
	"and no additional text."

// JudgeOptions are the generation options suited to a true/false judge.
var JudgeOptions = llm.GenerateOptions{Temperature: 0.1, MaxTokens: 16}

// PrecisionPrompt renders the relevance question for one query and retrieved context.
func PrecisionPrompt(query, retrieved string) string {
	return precisionInstruction + "\nQUESTION: " + query + "\nCONTEXT: " + retrieved
}

// ParseBooleanResponse interprets a judge answer. Matching is case-insensitive: an exact
// "true" or "false" wins, otherwise the answer must mention exactly one of the two words.
func ParseBooleanResponse(response string) (bool, error) {
	lower := strings.ToLower(response)
	switch lower {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}

	hasTrue := strings.Contains(lower, "true")
	hasFalse := strings.Contains(lower, "false")
	switch {
	case hasTrue && !hasFalse:
		return true, nil
	case hasFalse && !hasTrue:
		return false, nil
	}
	return false, fmt.Errorf("%w %q", ErrAmbiguousResponse, lower)
}

// RetrievalPrecision returns, per query, the fraction of its retrieved contexts the judge
// deems relevant. All prompts go to gen in a single batch. A query without contexts scores 0.
func RetrievalPrecision(ctx context.Context, gen llm.BatchGenerator, queries []string, retrieved [][]string) ([]float64, error) {
	if len(queries) != len(retrieved) {
		return nil, fmt.Errorf("%w: %d queries, %d context lists", ErrMisalignedInput, len(queries), len(retrieved))
	}

	var prompts []string
	var owner []int
	for q, contexts := range retrieved {
		for _, c := range contexts {
			prompts = append(prompts, PrecisionPrompt(queries[q], c))
			owner = append(owner, q)
		}
	}

	scores := make([]float64, len(queries))
	if len(prompts) == 0 {
		return scores, nil
	}

	answers, err := gen.GenerateBatch(ctx, prompts)
	if err != nil {
		return nil, fmt.Errorf("generating judgements: %w", err)
	}
	if len(answers) != len(prompts) {
		return nil, fmt.Errorf("generator returned %d answers for %d prompts", len(answers), len(prompts))
	}

	relevant := make([]int, len(queries))
	for i, answer := range answers {
		ok, err := ParseBooleanResponse(answer)
		if err != nil {
			return nil, fmt.Errorf("query %d: %w", owner[i], err)
		}
		if ok {
			relevant[owner[i]]++
		}
	}

	for q, contexts := range retrieved {
		if len(contexts) > 0 {
			scores[q] = float64(relevant[q]) / float64(len(contexts))
		}
	}

	return scores, nil
}
