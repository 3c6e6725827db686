package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultNVIDIAURL is the hosted NVIDIA reranking endpoint.
	DefaultNVIDIAURL = "https://ai.api.nvidia.com/v1/retrieval/nvidia/reranking"

	// DefaultNVIDIAModel is the default NVIDIA reranking model.
	DefaultNVIDIAModel = "nv-rerank-qa-mistral-4b:1"
)

// NVIDIAReranker scores passages with the NVIDIA hosted reranking API.
type NVIDIAReranker struct {
	apiKey     string
	model      string
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NVIDIAOption is a functional option for configuring NVIDIAReranker.
type NVIDIAOption func(*NVIDIAReranker)

// WithEndpoint sets the reranking endpoint URL.
func WithEndpoint(url string) NVIDIAOption {
	return func(r *NVIDIAReranker) {
		r.endpoint = url
	}
}

// WithNVIDIAModel sets the reranking model.
func WithNVIDIAModel(model string) NVIDIAOption {
	return func(r *NVIDIAReranker) {
		r.model = model
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) NVIDIAOption {
	return func(r *NVIDIAReranker) {
		r.httpClient = client
	}
}

// WithRateLimit paces outgoing requests to rps per second. Zero or less disables pacing.
func WithRateLimit(rps float64) NVIDIAOption {
	return func(r *NVIDIAReranker) {
		if rps <= 0 {
			r.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		r.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// NewNVIDIAReranker creates a reranker for the NVIDIA API. An empty apiKey is accepted here
// and reported as ErrMissingCredentials on the first Rerank call.
func NewNVIDIAReranker(apiKey string, opts ...NVIDIAOption) *NVIDIAReranker {
	r := &NVIDIAReranker{
		apiKey:     apiKey,
		model:      DefaultNVIDIAModel,
		endpoint:   DefaultNVIDIAURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Available returns true if an API key is configured.
func (r *NVIDIAReranker) Available() bool {
	return r.apiKey != ""
}

// Name returns the reranker identifier for logging.
func (r *NVIDIAReranker) Name() string {
	return "nvidia/" + r.model
}

type nvidiaRequest struct {
	Model    string       `json:"model"`
	Query    nvidiaText   `json:"query"`
	Passages []nvidiaText `json:"passages"`
}

type nvidiaText struct {
	Text string `json:"text"`
}

type nvidiaResponse struct {
	Rankings *[]nvidiaRanking `json:"rankings"`
}

type nvidiaRanking struct {
	Index          int      `json:"index"`
	Logit          *float64 `json:"logit"`
	RelevanceScore *float64 `json:"relevance_score"`
}

// Rerank scores passages against query. Rankings come back in the order the API returns
// them, which is highest score first.
func (r *NVIDIAReranker) Rerank(ctx context.Context, query string, passages []string) ([]Ranking, error) {
	if r.apiKey == "" {
		return nil, ErrMissingCredentials
	}
	if len(passages) == 0 {
		return []Ranking{}, nil
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	reqBody := nvidiaRequest{
		Model:    r.model,
		Query:    nvidiaText{Text: query},
		Passages: make([]nvidiaText, len(passages)),
	}
	for i, p := range passages {
		reqBody.Passages[i] = nvidiaText{Text: p}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var parsed nvidiaResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if parsed.Rankings == nil {
		return nil, fmt.Errorf("%w: no rankings in %s", ErrInvalidResponse, string(respBody))
	}

	rankings := make([]Ranking, 0, len(*parsed.Rankings))
	for _, rk := range *parsed.Rankings {
		if rk.Index < 0 || rk.Index >= len(passages) {
			return nil, fmt.Errorf("%w: ranking index %d out of range for %d passages",
				ErrInvalidResponse, rk.Index, len(passages))
		}

		var score float64
		switch {
		case rk.Logit != nil:
			score = *rk.Logit
		case rk.RelevanceScore != nil:
			score = *rk.RelevanceScore
		default:
			return nil, fmt.Errorf("%w: ranking %d has no score", ErrInvalidResponse, rk.Index)
		}

		rankings = append(rankings, Ranking{Index: rk.Index, Score: score})
	}

	// The API already orders by score; keep its order among equal scores.
	sort.SliceStable(rankings, func(i, j int) bool {
		return rankings[i].Score > rankings[j].Score
	})

	return rankings, nil
}

var _ Reranker = (*NVIDIAReranker)(nil)
