package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/knoguchi/rse/internal/auth"
	"github.com/knoguchi/rse/internal/config"
	"github.com/knoguchi/rse/internal/embedder"
	"github.com/knoguchi/rse/internal/evaluate"
	"github.com/knoguchi/rse/internal/llm"
	"github.com/knoguchi/rse/internal/repository"
	"github.com/knoguchi/rse/internal/repository/postgres"
	"github.com/knoguchi/rse/internal/reranker"
	"github.com/knoguchi/rse/internal/server"
	"github.com/knoguchi/rse/internal/service"
	"github.com/knoguchi/rse/internal/vectorstore"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Set up structured logging
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(os.Getenv("LOG_LEVEL"))); err != nil {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("failed to run server", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("starting passage service",
		"grpc_port", cfg.GRPCPort,
		"http_port", cfg.HTTPPort,
		"environment", cfg.Environment,
		"rse", cfg.RSE,
	)

	opts := []service.PassageServiceOption{
		service.WithLogger(slog.Default()),
		service.WithCache(cfg.CacheTTL, cfg.CacheMaxEntries),
		service.WithRerankConcurrency(cfg.RerankBatch),
	}
	checks := map[string]server.ReadinessCheck{}

	// PostgreSQL run audit is optional
	if cfg.DatabaseURL != "" {
		db, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to prepare database schema: %w", err)
		}
		slog.Info("connected to PostgreSQL")

		opts = append(opts, service.WithRunRepository(postgres.NewRunRepo(db)))
		checks["postgres"] = db.Ping
	}

	vectorStore, err := vectorstore.NewQdrantStore(cfg.QdrantGRPCURL)
	if err != nil {
		return fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	defer vectorStore.Close()
	slog.Info("connected to Qdrant", "collection", cfg.QdrantCollection)

	embed := embedder.NewOllamaEmbedder(embedder.OllamaConfig{
		BaseURL: cfg.OllamaURL,
		Model:   cfg.OllamaEmbeddingModel,
	})
	slog.Info("initialized Ollama embedder", "model", cfg.OllamaEmbeddingModel)

	opts = append(opts, service.WithRetrieval(embed, vectorStore, cfg.QdrantCollection))
	checks["qdrant"] = func(ctx context.Context) error {
		exists, err := vectorStore.CollectionExists(ctx, cfg.QdrantCollection)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("collection %q does not exist", cfg.QdrantCollection)
		}
		return nil
	}

	llmClient, model, err := newLLM(cfg)
	if err != nil {
		return err
	}
	slog.Info("initialized LLM", "backend", cfg.LLMBackend, "model", model)

	nvidia := reranker.NewNVIDIAReranker(cfg.NVIDIAAPIKey,
		reranker.WithEndpoint(cfg.NVIDIARerankURL),
		reranker.WithNVIDIAModel(cfg.NVIDIARerankModel),
		reranker.WithRateLimit(cfg.RerankRPS),
	)
	defaultReranker := "llm"
	if nvidia.Available() {
		defaultReranker = "nvidia"
	} else {
		slog.Warn("NVIDIA_API_KEY not set, defaulting to the LLM reranker")
	}

	opts = append(opts,
		service.WithJudge(llm.NewBatch(llmClient, evaluate.JudgeOptions, cfg.RerankBatch)),
		service.WithReranker("nvidia", nvidia),
		service.WithReranker("llm", reranker.NewLLMReranker(llmClient, reranker.WithModel(model))),
		service.WithDefaultReranker(defaultReranker),
	)

	passages := service.NewPassageService(cfg.RSE, opts...)
	defer passages.Close()

	var jwtManager *auth.JWTManager
	if cfg.JWTSecret != "" {
		jwtCfg := auth.DefaultJWTConfig(cfg.JWTSecret)
		jwtCfg.Expiry = cfg.JWTExpiry
		jwtManager = auth.NewJWTManager(jwtCfg)
	}
	interceptor := auth.NewInterceptor(auth.ParseAPIKeys(cfg.APIKeys), jwtManager)
	if !interceptor.Enabled() {
		slog.Warn("no API keys or JWT secret configured, gRPC surface is unauthenticated")
	}

	grpcServer := server.NewGRPCServer(server.GRPCServerConfig{
		Port:   cfg.GRPCPort,
		Logger: slog.Default(),
		Auth:   interceptor,
	}, passages)

	httpServer := server.NewHTTPServer(server.HTTPServerConfig{
		Port:            cfg.HTTPPort,
		GRPCAddr:        fmt.Sprintf("localhost:%d", cfg.GRPCPort),
		Logger:          slog.Default(),
		ReadinessChecks: checks,
	})

	errCh := make(chan error, 2)

	go func() {
		if err := grpcServer.Start(); err != nil {
			errCh <- err
		}
	}()

	go func() {
		if err := httpServer.RegisterHandlers(ctx); err != nil {
			errCh <- fmt.Errorf("failed to register HTTP handlers: %w", err)
			return
		}
		if err := httpServer.Start(); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown HTTP server", "error", err)
	}
	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown gRPC server", "error", err)
	}

	slog.Info("servers stopped")
	return nil
}

// newLLM builds the configured LLM backend and reports the model it uses.
func newLLM(cfg *config.Config) (llm.LLM, string, error) {
	switch cfg.LLMBackend {
	case "openai":
		client, err := llm.NewOpenAIClient(cfg.OpenAIAPIKey, llm.WithOpenAIModel(cfg.OpenAIModel))
		if err != nil {
			return nil, "", fmt.Errorf("failed to create OpenAI client: %w", err)
		}
		return client, client.Model(), nil
	default:
		client := llm.NewOllamaClient(
			llm.WithBaseURL(cfg.OllamaURL),
			llm.WithModel(cfg.OllamaLLMModel),
		)
		return client, client.Model(), nil
	}
}

// Ensure interfaces are satisfied at compile time
var (
	_ repository.RunRepository = (*postgres.RunRepo)(nil)
	_ vectorstore.Searcher     = (*vectorstore.QdrantStore)(nil)
	_ embedder.Embedder        = (*embedder.OllamaEmbedder)(nil)
	_ llm.LLM                  = (*llm.OllamaClient)(nil)
	_ llm.LLM                  = (*llm.OpenAIClient)(nil)
	_ llm.BatchGenerator       = (*llm.Batch)(nil)
	_ reranker.Reranker        = (*reranker.NVIDIAReranker)(nil)
	_ reranker.Reranker        = (*reranker.LLMReranker)(nil)
)
