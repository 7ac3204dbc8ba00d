package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/annai-dev/annai/internal/config"
	"github.com/annai-dev/annai/internal/index"
	idxmemory "github.com/annai-dev/annai/internal/index/memory"
	idxredis "github.com/annai-dev/annai/internal/index/redis"
	logpkg "github.com/annai-dev/annai/internal/logger"
	"github.com/annai-dev/annai/internal/metrics"
	"github.com/annai-dev/annai/internal/ratelimit"
	chiTransport "github.com/annai-dev/annai/internal/transport/chi"
	"github.com/annai-dev/annai/internal/transport/openai"
	askuc "github.com/annai-dev/annai/internal/usecase/ask"
	healthuc "github.com/annai-dev/annai/internal/usecase/health"
	"github.com/annai-dev/annai/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting annai API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("index_backend", cfg.Index.Backend),
		zap.String("index_dir", cfg.Index.Dir),
	)

	// Register service metrics explicitly (no init())
	metrics.RegisterServiceMetrics()

	ctx := context.Background()

	// Load the index artifact. A missing artifact is either fatal or a
	// degraded start, depending on index.require.
	artifact, err := index.Load(cfg.Index.Dir)
	if err != nil {
		if cfg.Index.Require {
			logger.Fatal("Index artifact required but not loadable",
				zap.String("dir", cfg.Index.Dir), zap.Error(err))
		}
		logger.Warn("No index artifact, serving in degraded mode (every question falls back)",
			zap.String("dir", cfg.Index.Dir), zap.Error(err))
		artifact = nil
	}

	if artifact != nil && cfg.Embedding.Dimensions > 0 && artifact.Dimensions != cfg.Embedding.Dimensions {
		logger.Fatal("Artifact dimensions do not match configured embedding dimensions",
			zap.Int("artifact", artifact.Dimensions),
			zap.Int("configured", cfg.Embedding.Dimensions))
	}
	if artifact != nil && artifact.EmbeddingModel != cfg.Embedding.Model {
		logger.Fatal("Artifact was built with a different embedding model",
			zap.String("artifact", artifact.EmbeddingModel),
			zap.String("configured", cfg.Embedding.Model))
	}

	searcher, closeSearcher := buildSearcher(ctx, cfg, artifact, logger)
	if closeSearcher != nil {
		defer closeSearcher()
	}

	// Providers. Missing API key means degraded mode rather than a broken
	// process, same policy as a missing artifact.
	var embedder *openai.Embedder
	var chat *openai.Chat
	if cfg.Embedding.APIKey == "" {
		if cfg.Index.Require {
			logger.Fatal("Embedding API key is required")
		}
		logger.Warn("No embedding API key, serving in degraded mode")
	} else {
		embedder = openai.NewEmbedder(openai.EmbedderConfig{
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
		})
		chat = openai.NewChat(openai.ChatConfig{
			APIKey:      cfg.Chat.APIKey,
			BaseURL:     cfg.Chat.BaseURL,
			Model:       cfg.Chat.Model,
			Temperature: cfg.Chat.Temperature,
		})
	}

	askSvc := askuc.New(
		searcherOrNil(searcher),
		embedderOrNil(embedder),
		completerOrNil(chat),
		askuc.Options{
			Threshold:       *cfg.Retrieval.SimilarityThreshold,
			TopK:            cfg.Retrieval.TopK,
			ContactURL:      cfg.Retrieval.FallbackContactURL,
			FallbackMessage: cfg.Retrieval.FallbackMessage,
			NotReadyMessage: cfg.Retrieval.NotReadyMessage,
			MaxContextChars: cfg.Retrieval.MaxContextChars,
			SystemPrompt:    cfg.Chat.SystemPrompt,
		},
	)

	var embedChecker, chatChecker healthuc.ProviderChecker
	if embedder != nil {
		embedChecker = embedder
	}
	if chat != nil {
		chatChecker = chat
	}
	healthSvc := healthuc.New(indexCheckerOrNil(searcher), embedChecker, chatChecker)

	limiter := ratelimit.New(cfg.RateLimit.Capacity, time.Duration(cfg.RateLimit.WindowSec)*time.Second)

	diag := chiTransport.Diagnostics{
		ArtifactPath:   index.Path(cfg.Index.Dir),
		ArtifactLoaded: artifact != nil,
		Backend:        cfg.Index.Backend,
		EmbeddingModel: cfg.Embedding.Model,
		ChatModel:      cfg.Chat.Model,
		Threshold:      *cfg.Retrieval.SimilarityThreshold,
		TopK:           cfg.Retrieval.TopK,
	}
	if searcher != nil {
		diag.Chunks = searcher.Size()
		diag.Dimensions = searcher.Dimensions()
	}

	server := chiTransport.NewServer(askSvc, healthSvc, limiter, diag, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildSearcher selects the search backend. The artifact on disk is the
// source of truth; the redis backend gets it synced in at startup.
func buildSearcher(
	ctx context.Context, cfg config.Config, artifact *index.Artifact, logger *zap.Logger,
) (index.Searcher, func()) {
	if artifact == nil {
		return nil, nil
	}

	switch cfg.Index.Backend {
	case "memory":
		store, err := idxmemory.NewStore(artifact, idxmemory.Metric(cfg.Index.Metric))
		if err != nil {
			logger.Fatal("Failed to build in-memory index", zap.Error(err))
		}
		logger.Info("In-memory index ready",
			zap.Int("chunks", store.Size()),
			zap.Int("dimensions", store.Dimensions()),
			zap.String("metric", cfg.Index.Metric))
		return store, nil

	case "redis":
		store, err := idxredis.NewStore(idxredis.Config{
			Addrs:     cfg.Index.Redis.Addrs,
			Password:  cfg.Index.Redis.Password,
			KeyPrefix: cfg.Index.Redis.KeyPrefix,
		})
		if err != nil {
			logger.Fatal("Failed to create redis index store", zap.Error(err))
		}
		if err := store.WaitForReady(ctx, time.Duration(cfg.Index.Redis.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Redis not ready", zap.Error(err))
		}
		if err := store.Sync(ctx, artifact); err != nil {
			logger.Fatal("Failed to sync artifact into redis", zap.Error(err))
		}
		logger.Info("Redis index ready",
			zap.Int("chunks", store.Size()),
			zap.Int("dimensions", store.Dimensions()))
		return store, store.Close

	default:
		logger.Fatal("Unknown index backend", zap.String("backend", cfg.Index.Backend))
		return nil, nil
	}
}

// The *OrNil helpers avoid the typed-nil-in-interface gotcha: a nil
// *openai.Embedder wrapped in an interface would not compare equal to nil.
func searcherOrNil(s index.Searcher) askuc.Searcher {
	if s == nil {
		return nil
	}
	return s
}

func indexCheckerOrNil(s index.Searcher) healthuc.IndexChecker {
	if s == nil {
		return nil
	}
	return s
}

func embedderOrNil(e *openai.Embedder) askuc.Embedder {
	if e == nil {
		return nil
	}
	return e
}

func completerOrNil(c *openai.Chat) askuc.Completer {
	if c == nil {
		return nil
	}
	return c
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
