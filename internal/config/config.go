// Package config provides configuration management for the service.
// It supports loading configuration from environment variables, files
// (YAML/JSON), and defaults, with a clear precedence order: env > file > defaults.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration.
type Config struct {
	Server        ServerConfig        `json:"server" yaml:"server"`
	Forge         ForgeConfig         `json:"forge" yaml:"forge"`
	Embedding     EmbeddingConfig     `json:"embedding" yaml:"embedding"`
	VectorStore   VectorStoreConfig   `json:"vector_store" yaml:"vector_store"`
	LLM           LLMConfig           `json:"llm" yaml:"llm"`
	Logging       LoggingConfig       `json:"logging" yaml:"logging"`
	CORS          CORSConfig          `json:"cors" yaml:"cors"`
	RateLimit     RateLimitConfig     `json:"rate_limit" yaml:"rate_limit"`
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

// ForgeConfig holds the code-forge client configuration (spec §6 environment).
type ForgeConfig struct {
	GitHubToken string `json:"github_token" yaml:"github_token"`
}

// EmbeddingConfig holds embedding provider configuration.
type EmbeddingConfig struct {
	Provider   string `json:"provider" yaml:"provider"`
	Model      string `json:"model" yaml:"model"`
	Dimensions int    `json:"dimensions" yaml:"dimensions"`
	BaseURL    string `json:"base_url" yaml:"base_url"`
	APIKey     string `json:"api_key" yaml:"api_key"`
}

// VectorStoreConfig selects and configures the vector store backend.
// Backend is "memory" (process-local, for tests and small deployments) or
// "qdrant". Pinecone* fields are accepted for environment-variable
// compatibility with spec §6 but only Qdrant is wired (see DESIGN.md).
type VectorStoreConfig struct {
	Backend            string `json:"backend" yaml:"backend"`
	QdrantHost         string `json:"qdrant_host" yaml:"qdrant_host"`
	QdrantPort         int    `json:"qdrant_port" yaml:"qdrant_port"`
	QdrantAPIKey       string `json:"qdrant_api_key" yaml:"qdrant_api_key"`
	QdrantUseTLS       bool   `json:"qdrant_use_tls" yaml:"qdrant_use_tls"`
	PineconeAPIKey     string `json:"pinecone_api_key" yaml:"pinecone_api_key"`
	PineconeEnv        string `json:"pinecone_environment" yaml:"pinecone_environment"`
	MaxPhysicalIndexes int    `json:"max_physical_indexes" yaml:"max_physical_indexes"`
}

// LLMConfig holds the chat-completion provider configuration.
type LLMConfig struct {
	Provider string `json:"provider" yaml:"provider"`
	APIKey   string `json:"api_key" yaml:"api_key"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	Model    string `json:"model" yaml:"model"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
	AllowedMethods []string `json:"allowed_methods" yaml:"allowed_methods"`
	AllowedHeaders []string `json:"allowed_headers" yaml:"allowed_headers"`
	MaxAge         int      `json:"max_age" yaml:"max_age"`
}

// RateLimitConfig holds rate limiting configuration. Default applies to
// routes outside the three operations below; BuildEmbeddings, Query, and
// Summarize let an operator tune each operation's budget independently,
// since build_embeddings is far more expensive per call than query or
// summarize.
type RateLimitConfig struct {
	Enabled         bool                 `json:"enabled" yaml:"enabled"`
	Redis           RateLimitRedisConfig `json:"redis" yaml:"redis"`
	Default         RateLimitRuleConfig  `json:"default" yaml:"default"`
	BuildEmbeddings RateLimitRuleConfig  `json:"build_embeddings" yaml:"build_embeddings"`
	Query           RateLimitRuleConfig  `json:"query" yaml:"query"`
	Summarize       RateLimitRuleConfig  `json:"summarize" yaml:"summarize"`
	SkipPaths       []string             `json:"skip_paths" yaml:"skip_paths"`
}

// RateLimitRedisConfig holds Redis configuration for rate limiting.
type RateLimitRedisConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Addr      string `json:"addr" yaml:"addr"`
	Password  string `json:"password" yaml:"password"`
	DB        int    `json:"db" yaml:"db"`
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
}

// RateLimitRuleConfig holds one request budget (requests per window); it is
// used for the Default rule and each per-operation rule of RateLimitConfig.
type RateLimitRuleConfig struct {
	Requests int           `json:"requests" yaml:"requests"`
	Window   time.Duration `json:"window" yaml:"window"`
}

// ObservabilityConfig holds observability configuration.
type ObservabilityConfig struct {
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
	Sentry  SentryConfig  `json:"sentry" yaml:"sentry"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Port    int    `json:"port" yaml:"port"`
	Path    string `json:"path" yaml:"path"`
}

// TracingConfig holds tracing configuration.
type TracingConfig struct {
	Enabled    bool    `json:"enabled" yaml:"enabled"`
	Endpoint   string  `json:"endpoint" yaml:"endpoint"`
	SampleRate float64 `json:"sample_rate" yaml:"sample_rate"`
}

// SentryConfig holds Sentry error monitoring configuration.
type SentryConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	DSN         string  `json:"dsn" yaml:"dsn"`
	Environment string  `json:"environment" yaml:"environment"`
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`
}

// Default values
const (
	DefaultHost                  = "0.0.0.0"
	DefaultPort                  = 8080
	DefaultEmbeddingProvider     = "http"
	DefaultEmbeddingModel        = "all-MiniLM-L6-v2"
	DefaultEmbeddingDimensions   = 384
	DefaultVectorStoreBackend    = "memory"
	DefaultQdrantPort            = 6334
	DefaultMaxPhysicalIndexes    = 10
	DefaultLLMProvider           = "groq"
	DefaultLogLevel              = "info"
	DefaultLogFormat             = "json"
	DefaultCORSEnabled           = false
	DefaultCORSMaxAge            = 86400 // 24 hours
	DefaultRateLimitEnabled      = false
	DefaultRateLimitRequests     = 60
	DefaultRateLimitWindow       = time.Minute
	DefaultBuildEmbeddingsLimit  = 5
	DefaultQueryLimit            = 60
	DefaultSummarizeLimit        = 20
	DefaultMetricsEnabled        = false
	DefaultMetricsPort           = 9091
	DefaultMetricsPath           = "/metrics"
	DefaultTracingEnabled        = false
	DefaultTracingEndpoint       = "http://localhost:4318"
	DefaultSampleRate            = 0.1
	DefaultSentryEnabled         = false
	DefaultSentryEnv             = "development"
	DefaultSentrySampleRate      = 1.0
)

// ValidLogLevels and ValidLogFormats enumerate the accepted values.
var (
	ValidLogLevels  = []string{"debug", "info", "warn", "error"}
	ValidLogFormats = []string{"json", "text"}
)

// Load loads configuration from environment variables and an optional
// config file. Precedence: env vars > config file > defaults.
func Load(ctx context.Context) (*Config, error) {
	cfg := defaults()

	if configFile := os.Getenv("CODEFORGE_CONFIG_FILE"); configFile != "" {
		fileCfg, err := loadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
		cfg = merge(cfg, fileCfg)
	}

	cfg = loadEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config with all default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{Host: DefaultHost, Port: DefaultPort},
		Embedding: EmbeddingConfig{
			Provider:   DefaultEmbeddingProvider,
			Model:      DefaultEmbeddingModel,
			Dimensions: DefaultEmbeddingDimensions,
		},
		VectorStore: VectorStoreConfig{
			Backend:            DefaultVectorStoreBackend,
			QdrantPort:         DefaultQdrantPort,
			MaxPhysicalIndexes: DefaultMaxPhysicalIndexes,
		},
		LLM: LLMConfig{Provider: DefaultLLMProvider},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		CORS: CORSConfig{
			Enabled:        DefaultCORSEnabled,
			AllowedOrigins: []string{},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
			MaxAge:         DefaultCORSMaxAge,
		},
		RateLimit: RateLimitConfig{
			Enabled: DefaultRateLimitEnabled,
			Default: RateLimitRuleConfig{
				Requests: DefaultRateLimitRequests,
				Window:   DefaultRateLimitWindow,
			},
			BuildEmbeddings: RateLimitRuleConfig{
				Requests: DefaultBuildEmbeddingsLimit,
				Window:   DefaultRateLimitWindow,
			},
			Query: RateLimitRuleConfig{
				Requests: DefaultQueryLimit,
				Window:   DefaultRateLimitWindow,
			},
			Summarize: RateLimitRuleConfig{
				Requests: DefaultSummarizeLimit,
				Window:   DefaultRateLimitWindow,
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: DefaultMetricsEnabled,
				Port:    DefaultMetricsPort,
				Path:    DefaultMetricsPath,
			},
			Tracing: TracingConfig{
				Enabled:    DefaultTracingEnabled,
				Endpoint:   DefaultTracingEndpoint,
				SampleRate: DefaultSampleRate,
			},
			Sentry: SentryConfig{
				Enabled:     DefaultSentryEnabled,
				Environment: DefaultSentryEnv,
				SampleRate:  DefaultSentrySampleRate,
			},
		},
	}
}

// loadFile loads configuration from a YAML or JSON file.
func loadFile(path string) (*Config, error) {
	safePath := filepath.Clean(path)

	data, err := os.ReadFile(safePath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	cfg := &Config{}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}

	return cfg, nil
}

// loadEnv overrides cfg with any non-empty environment variables. Variable
// names follow spec §6's environment table where one is named there; the
// rest extend that table in the same style.
func loadEnv(cfg *Config) *Config {
	if host := os.Getenv("HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		cfg.Forge.GitHubToken = token
	}

	if model := os.Getenv("EMBEDDING_MODEL"); model != "" {
		cfg.Embedding.Model = model
	}
	if provider := os.Getenv("EMBEDDING_PROVIDER"); provider != "" {
		cfg.Embedding.Provider = provider
	}
	if baseURL := os.Getenv("EMBEDDING_BASE_URL"); baseURL != "" {
		cfg.Embedding.BaseURL = baseURL
	}
	if apiKey := os.Getenv("EMBEDDING_API_KEY"); apiKey != "" {
		cfg.Embedding.APIKey = apiKey
	}

	if backend := os.Getenv("VECTOR_STORE_BACKEND"); backend != "" {
		cfg.VectorStore.Backend = backend
	}
	if host := os.Getenv("QDRANT_HOST"); host != "" {
		cfg.VectorStore.QdrantHost = host
	}
	if port := os.Getenv("QDRANT_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.VectorStore.QdrantPort = p
		}
	}
	if key := os.Getenv("QDRANT_API_KEY"); key != "" {
		cfg.VectorStore.QdrantAPIKey = key
	}
	if useTLS := os.Getenv("QDRANT_USE_TLS"); useTLS != "" {
		if v, err := strconv.ParseBool(useTLS); err == nil {
			cfg.VectorStore.QdrantUseTLS = v
		}
	}
	if key := os.Getenv("PINECONE_API_KEY"); key != "" {
		cfg.VectorStore.PineconeAPIKey = key
	}
	if env := os.Getenv("PINECONE_ENVIRONMENT"); env != "" {
		cfg.VectorStore.PineconeEnv = env
	}
	if max := os.Getenv("PINECONE_MAX_INDEXES"); max != "" {
		if m, err := strconv.Atoi(max); err == nil {
			cfg.VectorStore.MaxPhysicalIndexes = m
		}
	}

	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		cfg.LLM.APIKey = key
	} else if key := os.Getenv("API_KEY"); key != "" {
		cfg.LLM.APIKey = key
	}
	if baseURL := os.Getenv("LLM_BASE_URL"); baseURL != "" {
		cfg.LLM.BaseURL = baseURL
	}
	if model := os.Getenv("LLM_MODEL"); model != "" {
		cfg.LLM.Model = model
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.CORS.Enabled = true
		cfg.CORS.AllowedOrigins = splitAndTrim(origins)
	}

	if enabled := os.Getenv("RATE_LIMIT_ENABLED"); enabled != "" {
		if v, err := strconv.ParseBool(enabled); err == nil {
			cfg.RateLimit.Enabled = v
		}
	}
	if addr := os.Getenv("RATE_LIMIT_REDIS_ADDR"); addr != "" {
		cfg.RateLimit.Redis.Enabled = true
		cfg.RateLimit.Redis.Addr = addr
	}

	if enabled := os.Getenv("METRICS_ENABLED"); enabled != "" {
		if v, err := strconv.ParseBool(enabled); err == nil {
			cfg.Observability.Metrics.Enabled = v
		}
	}
	if port := os.Getenv("METRICS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Observability.Metrics.Port = p
		}
	}

	if enabled := os.Getenv("TRACING_ENABLED"); enabled != "" {
		if v, err := strconv.ParseBool(enabled); err == nil {
			cfg.Observability.Tracing.Enabled = v
		}
	}
	if endpoint := os.Getenv("TRACING_ENDPOINT"); endpoint != "" {
		cfg.Observability.Tracing.Endpoint = endpoint
	}

	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		cfg.Observability.Sentry.Enabled = true
		cfg.Observability.Sentry.DSN = dsn
	}
	if env := os.Getenv("SENTRY_ENVIRONMENT"); env != "" {
		cfg.Observability.Sentry.Environment = env
	}

	return cfg
}

func splitAndTrim(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// merge merges two configs, preferring non-zero values from override.
func merge(base, override *Config) *Config {
	result := *base

	if override.Server.Host != "" {
		result.Server.Host = override.Server.Host
	}
	if override.Server.Port != 0 {
		result.Server.Port = override.Server.Port
	}

	if override.Forge.GitHubToken != "" {
		result.Forge.GitHubToken = override.Forge.GitHubToken
	}

	if override.Embedding.Provider != "" {
		result.Embedding.Provider = override.Embedding.Provider
	}
	if override.Embedding.Model != "" {
		result.Embedding.Model = override.Embedding.Model
	}
	if override.Embedding.Dimensions != 0 {
		result.Embedding.Dimensions = override.Embedding.Dimensions
	}
	if override.Embedding.BaseURL != "" {
		result.Embedding.BaseURL = override.Embedding.BaseURL
	}
	if override.Embedding.APIKey != "" {
		result.Embedding.APIKey = override.Embedding.APIKey
	}

	if override.VectorStore.Backend != "" {
		result.VectorStore.Backend = override.VectorStore.Backend
	}
	if override.VectorStore.QdrantHost != "" {
		result.VectorStore.QdrantHost = override.VectorStore.QdrantHost
	}
	if override.VectorStore.QdrantPort != 0 {
		result.VectorStore.QdrantPort = override.VectorStore.QdrantPort
	}
	if override.VectorStore.MaxPhysicalIndexes != 0 {
		result.VectorStore.MaxPhysicalIndexes = override.VectorStore.MaxPhysicalIndexes
	}

	if override.LLM.Provider != "" {
		result.LLM.Provider = override.LLM.Provider
	}
	if override.LLM.APIKey != "" {
		result.LLM.APIKey = override.LLM.APIKey
	}
	if override.LLM.Model != "" {
		result.LLM.Model = override.LLM.Model
	}

	if override.Logging.Level != "" {
		result.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		result.Logging.Format = override.Logging.Format
	}

	if override.CORS.Enabled != DefaultCORSEnabled {
		result.CORS.Enabled = override.CORS.Enabled
	}
	if len(override.CORS.AllowedOrigins) > 0 {
		result.CORS.AllowedOrigins = override.CORS.AllowedOrigins
	}

	if override.RateLimit.Enabled != DefaultRateLimitEnabled {
		result.RateLimit.Enabled = override.RateLimit.Enabled
	}
	if override.RateLimit.Default.Requests != 0 {
		result.RateLimit.Default.Requests = override.RateLimit.Default.Requests
	}
	if override.RateLimit.BuildEmbeddings.Requests != 0 {
		result.RateLimit.BuildEmbeddings.Requests = override.RateLimit.BuildEmbeddings.Requests
	}
	if override.RateLimit.Query.Requests != 0 {
		result.RateLimit.Query.Requests = override.RateLimit.Query.Requests
	}
	if override.RateLimit.Summarize.Requests != 0 {
		result.RateLimit.Summarize.Requests = override.RateLimit.Summarize.Requests
	}

	if override.Observability.Metrics.Enabled != DefaultMetricsEnabled {
		result.Observability.Metrics.Enabled = override.Observability.Metrics.Enabled
	}
	if override.Observability.Tracing.Enabled != DefaultTracingEnabled {
		result.Observability.Tracing.Enabled = override.Observability.Tracing.Enabled
	}
	if override.Observability.Sentry.DSN != "" {
		result.Observability.Sentry.Enabled = true
		result.Observability.Sentry.DSN = override.Observability.Sentry.DSN
	}

	return &result
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 0-65535)", c.Server.Port)
	}
	if !contains(ValidLogLevels, c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (valid: %v)", c.Logging.Level, ValidLogLevels)
	}
	if !contains(ValidLogFormats, c.Logging.Format) {
		return fmt.Errorf("invalid log format: %s (valid: %v)", c.Logging.Format, ValidLogFormats)
	}
	if c.VectorStore.Backend != "memory" && c.VectorStore.Backend != "qdrant" {
		return fmt.Errorf("invalid vector store backend: %s (valid: memory, qdrant)", c.VectorStore.Backend)
	}
	if c.VectorStore.MaxPhysicalIndexes < 1 {
		return fmt.Errorf("max physical indexes must be positive: %d", c.VectorStore.MaxPhysicalIndexes)
	}
	if c.Observability.Metrics.Enabled && (c.Observability.Metrics.Port < 1 || c.Observability.Metrics.Port > 65535) {
		return fmt.Errorf("invalid metrics port: %d (must be 1-65535)", c.Observability.Metrics.Port)
	}
	if c.Observability.Sentry.Enabled && c.Observability.Sentry.DSN == "" {
		return fmt.Errorf("sentry DSN cannot be empty when sentry enabled")
	}
	return nil
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// Default returns a default configuration for testing and documentation.
func Default() *Config {
	return defaults()
}
