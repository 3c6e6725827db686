package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is the default chat model for OpenAIClient.
const DefaultOpenAIModel = openai.GPT3Dot5Turbo

// OpenAIClient implements LLM with the OpenAI chat completions API.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// OpenAIOption is a functional option for configuring OpenAIClient.
type OpenAIOption func(*openai.ClientConfig, *OpenAIClient)

// WithOpenAIBaseURL points the client at an OpenAI-compatible endpoint.
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(cfg *openai.ClientConfig, _ *OpenAIClient) {
		cfg.BaseURL = url
	}
}

// WithOpenAIModel sets the default chat model.
func WithOpenAIModel(model string) OpenAIOption {
	return func(_ *openai.ClientConfig, c *OpenAIClient) {
		c.model = model
	}
}

// NewOpenAIClient creates a chat completions client.
func NewOpenAIClient(apiKey string, opts ...OpenAIOption) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY is not set")
	}

	cfg := openai.DefaultConfig(apiKey)
	c := &OpenAIClient{model: DefaultOpenAIModel}
	for _, opt := range opts {
		opt(&cfg, c)
	}
	c.client = openai.NewClientWithConfig(cfg)

	return c, nil
}

// Model returns the client's default model.
func (c *OpenAIClient) Model() string {
	return c.model
}

func (c *OpenAIClient) request(prompt string, opts GenerateOptions, stream bool) openai.ChatCompletionRequest {
	model := opts.Model
	if model == "" {
		model = c.model
	}

	var messages []openai.ChatCompletionMessage
	if opts.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: opts.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      stream,
	}
	if opts.JSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return req
}

// openAIError surfaces HTTP failures as *StatusError.
func openAIError(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return fmt.Errorf("%s: %w", op, &StatusError{Backend: "openai", StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message})
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%s: %w", op, &StatusError{Backend: "openai", StatusCode: reqErr.HTTPStatusCode, Body: string(reqErr.Body)})
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Generate sends a prompt and returns the first choice's content.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.request(prompt, opts, false))
	if err != nil {
		return "", openAIError("openai chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateStream sends a prompt and streams content deltas.
func (c *OpenAIClient) GenerateStream(ctx context.Context, prompt string, opts GenerateOptions) (<-chan StreamChunk, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, c.request(prompt, opts, true))
	if err != nil {
		return nil, openAIError("openai chat completion stream", err)
	}

	chunks := make(chan StreamChunk)

	go func() {
		defer close(chunks)
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				select {
				case <-ctx.Done():
				case chunks <- StreamChunk{Done: true}:
				}
				return
			}

			chunk := StreamChunk{}
			if err != nil {
				chunk = StreamChunk{Error: fmt.Errorf("reading stream: %w", err), Done: true}
			} else if len(resp.Choices) > 0 {
				chunk.Token = resp.Choices[0].Delta.Content
			}

			select {
			case <-ctx.Done():
				return
			case chunks <- chunk:
			}
			if chunk.Done {
				return
			}
		}
	}()

	return chunks, nil
}

var _ LLM = (*OpenAIClient)(nil)
