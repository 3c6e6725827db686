// Package reranker re-scores a query's retrieved passages with a model that sees the query
// and each passage together.
//
// Rerankers are collaborators of the passage service: they replace the retrieval scores of a
// batch with their own and keep the top-k passages per query. Batch fan-out is bounded, and
// failures are returned to the caller; nothing in this package retries.
package reranker

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrMissingCredentials is returned before any network call when no API key is configured.
	ErrMissingCredentials = errors.New("reranker API key is not configured")

	// ErrInvalidResponse is returned when an upstream answer lacks the expected fields.
	ErrInvalidResponse = errors.New("invalid reranker response")
)

// StatusError reports a non-2xx answer from a reranking endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("reranker API error (status %d): %s", e.StatusCode, e.Body)
}

// Ranking is the score of one passage, addressed by its index in the request.
type Ranking struct {
	Index int
	Score float64
}

// Reranker scores passages against a query.
type Reranker interface {
	// Rerank returns one Ranking per scored passage, highest score first.
	Rerank(ctx context.Context, query string, passages []string) ([]Ranking, error)
}
