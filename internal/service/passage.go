// Package service implements the passage service on top of the filter, reranker, judge, and
// retrieval packages. Errors leave this package as gRPC statuses.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/knoguchi/rse/internal/api"
	"github.com/knoguchi/rse/internal/auth"
	"github.com/knoguchi/rse/internal/cache"
	"github.com/knoguchi/rse/internal/embedder"
	"github.com/knoguchi/rse/internal/llm"
	"github.com/knoguchi/rse/internal/repository"
	"github.com/knoguchi/rse/internal/reranker"
	"github.com/knoguchi/rse/internal/rse"
	"github.com/knoguchi/rse/internal/vectorstore"
)

// PassageService implements api.PassageServiceServer
type PassageService struct {
	defaults rse.Config
	logger   *slog.Logger

	rerankers         map[string]reranker.Reranker
	defaultReranker   string
	rerankConcurrency int

	judge llm.BatchGenerator

	embedder   embedder.Embedder
	searcher   vectorstore.Searcher
	collection string

	runs repository.RunRepository

	filterCache    *cache.Store[api.FilterResponse]
	rerankCache    *cache.Store[api.RerankResponse]
	precisionCache *cache.Store[api.PrecisionResponse]
}

// PassageServiceOption is a functional option for configuring PassageService.
type PassageServiceOption func(*PassageService)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) PassageServiceOption {
	return func(s *PassageService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithReranker registers a reranker backend under name. The first one registered is the
// default unless WithDefaultReranker says otherwise.
func WithReranker(name string, r reranker.Reranker) PassageServiceOption {
	return func(s *PassageService) {
		s.rerankers[name] = r
		if s.defaultReranker == "" {
			s.defaultReranker = name
		}
	}
}

// WithDefaultReranker selects the backend used when a request names none.
func WithDefaultReranker(name string) PassageServiceOption {
	return func(s *PassageService) {
		s.defaultReranker = name
	}
}

// WithRerankConcurrency limits how many queries of a batch are reranked at once.
func WithRerankConcurrency(n int) PassageServiceOption {
	return func(s *PassageService) {
		s.rerankConcurrency = n
	}
}

// WithJudge sets the LLM used for precision evaluation.
func WithJudge(judge llm.BatchGenerator) PassageServiceOption {
	return func(s *PassageService) {
		s.judge = judge
	}
}

// WithRetrieval enables RetrieveAndFilter against collection.
func WithRetrieval(e embedder.Embedder, searcher vectorstore.Searcher, collection string) PassageServiceOption {
	return func(s *PassageService) {
		s.embedder = e
		s.searcher = searcher
		s.collection = collection
	}
}

// WithRunRepository records every call in repo.
func WithRunRepository(repo repository.RunRepository) PassageServiceOption {
	return func(s *PassageService) {
		s.runs = repo
	}
}

// WithCache keeps responses of deterministic calls for ttl. A non-positive ttl disables it.
func WithCache(ttl time.Duration, maxEntries int) PassageServiceOption {
	return func(s *PassageService) {
		if ttl <= 0 {
			return
		}
		s.filterCache = cache.NewStore[api.FilterResponse](ttl, maxEntries)
		s.rerankCache = cache.NewStore[api.RerankResponse](ttl, maxEntries)
		s.precisionCache = cache.NewStore[api.PrecisionResponse](ttl, maxEntries)
	}
}

// NewPassageService creates a new PassageService filtering with defaults unless a request
// overrides them.
func NewPassageService(defaults rse.Config, opts ...PassageServiceOption) *PassageService {
	s := &PassageService{
		defaults:  defaults,
		logger:    slog.Default(),
		rerankers: make(map[string]reranker.Reranker),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Close releases the caches.
func (s *PassageService) Close() {
	if s.filterCache != nil {
		s.filterCache.Close()
		s.rerankCache.Close()
		s.precisionCache.Close()
	}
}

// call describes one service invocation for logging and the run audit.
type call struct {
	method  string
	start   time.Time
	queries int
	input   int
	output  int
	options any
	hit     bool
}

func (s *PassageService) finish(ctx context.Context, c *call, err error) {
	elapsed := time.Since(c.start)
	subject := auth.SubjectFromContext(ctx)

	if err != nil {
		s.logger.Warn("passage call failed",
			"method", c.method,
			"subject", subject,
			"queries", c.queries,
			"duration", elapsed,
			"error", err,
		)
	} else {
		s.logger.Info("passage call",
			"method", c.method,
			"subject", subject,
			"queries", c.queries,
			"input_chunks", c.input,
			"output_chunks", c.output,
			"cache_hit", c.hit,
			"duration", elapsed,
		)
	}

	if s.runs == nil {
		return
	}

	run := &repository.Run{
		ID:           uuid.New(),
		Method:       c.method,
		Subject:      subject,
		Status:       repository.RunStatusSucceeded,
		QueryCount:   c.queries,
		InputChunks:  c.input,
		OutputChunks: c.output,
		CacheHit:     c.hit,
		Duration:     elapsed,
		CreatedAt:    c.start,
	}
	if err != nil {
		run.Status = repository.RunStatusFailed
		run.ErrorMessage = err.Error()
	}
	if c.options != nil {
		if b, mErr := json.Marshal(c.options); mErr == nil {
			run.Options = b
		}
	}

	// Audit failures are logged, never returned.
	if rErr := s.runs.Create(context.WithoutCancel(ctx), run); rErr != nil {
		s.logger.Error("failed to record run", "method", c.method, "error", rErr)
	}
}

func countChunks(lists [][]string) int {
	n := 0
	for _, l := range lists {
		n += len(l)
	}
	return n
}

var _ api.PassageServiceServer = (*PassageService)(nil)
