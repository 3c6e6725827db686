// Package config loads configuration from environment variables, .env files, and an optional
// YAML filter profile.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/knoguchi/rse/internal/rse"
)

// Config holds all configuration for the passage service
type Config struct {
	// Server
	GRPCPort    int    `env:"GRPC_PORT" envDefault:"9090" validate:"gt=0,lt=65536"`
	HTTPPort    int    `env:"HTTP_PORT" envDefault:"8080" validate:"gt=0,lt=65536"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	// PostgreSQL run audit. Empty disables it.
	DatabaseURL string `env:"DATABASE_URL"`

	// Qdrant
	QdrantGRPCURL    string `env:"QDRANT_GRPC_URL" envDefault:"localhost:6334"`
	QdrantCollection string `env:"QDRANT_COLLECTION" envDefault:"passages"`

	// Ollama
	OllamaURL            string `env:"OLLAMA_URL" envDefault:"http://localhost:11434" validate:"url"`
	OllamaEmbeddingModel string `env:"OLLAMA_EMBEDDING_MODEL" envDefault:"nomic-embed-text"`
	OllamaLLMModel       string `env:"OLLAMA_LLM_MODEL" envDefault:"llama3.2"`

	// LLM used by the precision judge and the LLM reranker
	LLMBackend   string `env:"LLM_BACKEND" envDefault:"ollama" validate:"oneof=ollama openai"`
	OpenAIAPIKey string `env:"OPENAI_API_KEY" validate:"required_if=LLMBackend openai"`
	OpenAIModel  string `env:"OPENAI_MODEL" envDefault:"gpt-3.5-turbo"`

	// NVIDIA reranker
	NVIDIAAPIKey      string  `env:"NVIDIA_API_KEY"`
	NVIDIARerankURL   string  `env:"NVIDIA_RERANK_URL" envDefault:"https://ai.api.nvidia.com/v1/retrieval/nvidia/reranking" validate:"url"`
	NVIDIARerankModel string  `env:"NVIDIA_RERANK_MODEL" envDefault:"nv-rerank-qa-mistral-4b:1"`
	RerankBatch       int     `env:"RERANK_BATCH" envDefault:"8" validate:"gt=0"`
	RerankRPS         float64 `env:"RERANK_RPS" envDefault:"5" validate:"gte=0"`

	// Auth. With neither a secret nor keys the gRPC surface is unauthenticated.
	JWTSecret string        `env:"JWT_SECRET"`
	JWTExpiry time.Duration `env:"JWT_EXPIRY" envDefault:"24h"`
	APIKeys   []string      `env:"API_KEYS" envSeparator:","`

	// Result cache
	CacheTTL        time.Duration `env:"CACHE_TTL" envDefault:"10m"`
	CacheMaxEntries int           `env:"CACHE_MAX_ENTRIES" envDefault:"1000" validate:"gte=0"`

	// Filter defaults, overlaid by RSEConfigFile when set
	RSE           rse.Config `envPrefix:"RSE_"`
	RSEConfigFile string     `env:"RSE_CONFIG_FILE"`
}

var validate = validator.New()

// Load loads configuration from .env file (if present) and environment variables, then
// overlays the filter profile file and validates the result.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if cfg.RSEConfigFile != "" {
		profile, err := LoadProfile(cfg.RSEConfigFile, cfg.RSE)
		if err != nil {
			return nil, err
		}
		cfg.RSE = profile
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e := verrs[0]
			return fmt.Errorf("invalid config: %s must satisfy %s=%s", e.Namespace(), e.Tag(), e.Param())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LoadProfile reads a YAML filter profile and overlays the keys it sets onto base.
func LoadProfile(path string, base rse.Config) (rse.Config, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return rse.Config{}, fmt.Errorf("loading filter profile %s: %w", path, err)
	}

	cfg := base
	if err := k.Unmarshal("", &cfg); err != nil {
		return rse.Config{}, fmt.Errorf("decoding filter profile %s: %w", path, err)
	}
	return cfg, nil
}
