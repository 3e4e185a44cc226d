// Command server runs the codeforge-rag HTTP service: it builds the
// process-wide embedder and vector-store singletons once at startup (spec
// §9: fail fast rather than lazy-init per request) and serves the three
// facade operations over HTTP.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codeforge-rag/service/internal/answer"
	"github.com/codeforge-rag/service/internal/config"
	"github.com/codeforge-rag/service/internal/embedding"
	"github.com/codeforge-rag/service/internal/forge"
	"github.com/codeforge-rag/service/internal/httpapi"
	"github.com/codeforge-rag/service/internal/indexer"
	"github.com/codeforge-rag/service/internal/llmclient"
	"github.com/codeforge-rag/service/internal/middleware"
	"github.com/codeforge-rag/service/internal/observability"
	"github.com/codeforge-rag/service/internal/retriever"
	"github.com/codeforge-rag/service/internal/security/ratelimit"
	"github.com/codeforge-rag/service/internal/service"
	"github.com/codeforge-rag/service/internal/vectorstore"
)

// Version is the service's build version, reported in logs only (no HTTP
// surface names it, per spec §6).
const Version = "0.1.0"

func main() {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LoggerConfig{
		Level:         cfg.Logging.Level,
		Format:        cfg.Logging.Format,
		Output:        os.Stdout,
		AddSource:     true,
		SentryEnabled: cfg.Observability.Sentry.Enabled,
	})
	logger.Info("codeforge-rag server starting", "version", Version, "host", cfg.Server.Host, "port", cfg.Server.Port)

	if cfg.Observability.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Observability.Sentry.DSN,
			Environment:      cfg.Observability.Sentry.Environment,
			TracesSampleRate: cfg.Observability.Sentry.SampleRate,
		}); err != nil {
			logger.Error("failed to initialize sentry", "error", err)
			os.Exit(1)
		}
		defer sentry.Flush(2 * time.Second)
	}

	var metrics *observability.MetricsCollector
	if cfg.Observability.Metrics.Enabled {
		metrics = observability.NewMetricsCollector("codeforge_rag")
		go startMetricsServer(cfg.Observability.Metrics, logger)
	}

	var tracerProvider *observability.TracerProvider
	if cfg.Observability.Tracing.Enabled {
		tracerProvider, err = observability.NewTracerProvider(observability.TracerConfig{
			ServiceName:    "codeforge-rag",
			ServiceVersion: Version,
			Environment:    cfg.Observability.Sentry.Environment,
			OTLPEndpoint:   cfg.Observability.Tracing.Endpoint,
			SamplingRate:   cfg.Observability.Tracing.SampleRate,
			Enabled:        true,
		})
		if err != nil {
			logger.Error("failed to initialize tracer provider", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to shutdown tracer provider", "error", err)
			}
		}()
	}

	errorHandler := observability.NewErrorHandler(logger, metrics, cfg.Observability.Sentry.Enabled)

	forgeClient := forge.NewGitHubClient(cfg.Forge.GitHubToken)

	embedder, err := buildEmbedder(cfg.Embedding)
	if err != nil {
		logger.Error("failed to build embedder", "error", err)
		os.Exit(1)
	}
	logger.Info("embedder ready", "provider", cfg.Embedding.Provider, "model", embedder.Model(), "dimensions", embedder.Dimensions())

	store, err := buildVectorStore(ctx, cfg.VectorStore, embedder.Dimensions())
	if err != nil {
		logger.Error("failed to build vector store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	llm := buildLLMClient(cfg.LLM)
	if llm == nil {
		logger.Warn("no LLM credential configured; query/summarize will return degraded-success answers")
	}

	idx := indexer.New(forgeClient, embedder, store, logger.Underlying()).WithMetrics(metrics)
	ret := retriever.New(embedder, store).WithMetrics(metrics)
	composer := answer.New(llm)
	facade := service.New(forgeClient, store, idx, ret, composer, "", logger.Underlying())

	handler := httpapi.NewHandler(facade, logger, metrics, errorHandler, Version)

	corsMiddleware := middleware.NewCORSMiddleware(middleware.CORSConfig{
		Enabled:        cfg.CORS.Enabled,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: cfg.CORS.AllowedMethods,
		AllowedHeaders: cfg.CORS.AllowedHeaders,
		MaxAge:         cfg.CORS.MaxAge,
	}, logger)

	securityMiddleware := middleware.NewSecurityMiddleware(middleware.SecurityConfig{}, logger)

	var rateLimitMiddleware *middleware.RateLimitMiddleware
	if cfg.RateLimit.Enabled {
		rateLimiter, err := ratelimit.NewRateLimiter(ratelimit.Config{
			Enabled:   true,
			Algorithm: ratelimit.SlidingWindow,
			Redis: ratelimit.RedisConfig{
				Enabled: cfg.RateLimit.Redis.Enabled,
				Addr:    cfg.RateLimit.Redis.Addr,
				DB:      cfg.RateLimit.Redis.DB,
			},
			Default: ratelimit.LimitConfig{
				Requests: cfg.RateLimit.Default.Requests,
				Window:   cfg.RateLimit.Default.Window,
			},
			BuildEmbeddings: ratelimit.LimitConfig{
				Requests: cfg.RateLimit.BuildEmbeddings.Requests,
				Window:   cfg.RateLimit.BuildEmbeddings.Window,
			},
			Query: ratelimit.LimitConfig{
				Requests: cfg.RateLimit.Query.Requests,
				Window:   cfg.RateLimit.Query.Window,
			},
			Summarize: ratelimit.LimitConfig{
				Requests: cfg.RateLimit.Summarize.Requests,
				Window:   cfg.RateLimit.Summarize.Window,
			},
		})
		if err != nil {
			logger.Error("failed to initialize rate limiter", "error", err)
			os.Exit(1)
		}
		defer rateLimiter.Close()

		rateLimitMiddleware = middleware.NewRateLimitMiddleware(middleware.RateLimitConfig{
			RateLimiter:      rateLimiter,
			MetricsCollector: metrics,
			SkipPaths:        cfg.RateLimit.SkipPaths,
		}, logger)
		logger.Info("rate limiting enabled", "redis_enabled", cfg.RateLimit.Redis.Enabled)
	}

	router := httpapi.NewRouter(handler, corsMiddleware, securityMiddleware, rateLimitMiddleware)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	logger.Info("server stopped")
}

func startMetricsServer(cfg config.MetricsConfig, logger *observability.Logger) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: mux, ReadTimeout: 5 * time.Second, WriteTimeout: 10 * time.Second}
	logger.Info("metrics server starting", "addr", addr, "path", cfg.Path)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server failed", "error", err)
	}
}

// buildEmbedder selects the configured provider, falling back to the mock
// provider when the http provider has no base URL (local/dev/test runs,
// per DESIGN.md).
func buildEmbedder(cfg config.EmbeddingConfig) (embedding.Embedder, error) {
	providerName := cfg.Provider
	if providerName == "http" && cfg.BaseURL == "" {
		providerName = "mock"
	}

	provider, err := embedding.Get(providerName)
	if err != nil {
		return nil, fmt.Errorf("get embedding provider %s: %w", providerName, err)
	}

	embedder, err := provider.Create(map[string]interface{}{
		"base_url":   cfg.BaseURL,
		"api_key":    cfg.APIKey,
		"model":      cfg.Model,
		"dimensions": cfg.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return embedder, nil
}

// buildVectorStore selects a backend: Qdrant when the backend is "qdrant" and
// a host is set, otherwise the in-memory store for local/dev/test runs. When
// Qdrant is selected, a dial or collection-setup failure is returned as an
// error; there is no fallback to the in-memory store.
func buildVectorStore(ctx context.Context, cfg config.VectorStoreConfig, dimensions int) (vectorstore.Store, error) {
	if cfg.Backend != "qdrant" || cfg.QdrantHost == "" {
		return vectorstore.NewMemoryStore(), nil
	}

	store, err := vectorstore.NewCollectionStore(ctx, cfg.QdrantHost, cfg.QdrantPort, cfg.QdrantAPIKey, cfg.QdrantUseTLS, dimensions, cfg.MaxPhysicalIndexes)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureCollections(ctx); err != nil {
		return nil, fmt.Errorf("ensure qdrant collections: %w", err)
	}
	return store, nil
}

// buildLLMClient returns nil when no credential is configured, which the
// answer composer treats as the degraded-success path (spec §7.5).
func buildLLMClient(cfg config.LLMConfig) llmclient.Client {
	if cfg.APIKey == "" {
		return nil
	}
	return llmclient.NewGroqClient(cfg.BaseURL, cfg.APIKey, cfg.Model)
}
