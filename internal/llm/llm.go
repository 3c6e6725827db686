// Package llm provides Large Language Model clients used to score and judge passages.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmptyResponse is returned when a backend answers without any generated text.
var ErrEmptyResponse = errors.New("llm returned no choices")

// StatusError is a non-2xx answer from an LLM backend.
type StatusError struct {
	Backend    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Backend, e.StatusCode, e.Body)
}

// GenerateOptions configures a generation request.
type GenerateOptions struct {
	// Model overrides the client's default model when set.
	Model string

	SystemPrompt string

	// Temperature controls randomness (0.0 = deterministic).
	Temperature float32

	// MaxTokens limits the response length. Zero means the backend default.
	MaxTokens int

	// JSON constrains the answer to a single JSON object on backends that support it.
	JSON bool
}

// StreamChunk is one fragment of a streamed response.
type StreamChunk struct {
	Token string
	Done  bool
	Error error
}

// LLM is a text generation backend.
type LLM interface {
	// Generate sends a prompt and blocks until the full response is received.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// GenerateStream sends a prompt and streams response fragments. The channel is closed
	// when generation completes; a chunk with a non-nil Error is always the last one.
	GenerateStream(ctx context.Context, prompt string, opts GenerateOptions) (<-chan StreamChunk, error)
}

// BatchGenerator turns a batch of prompts into a batch of responses, in prompt order.
type BatchGenerator interface {
	GenerateBatch(ctx context.Context, prompts []string) ([]string, error)
}
