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

	"github.com/kitab-cloud/isnad/internal/config"
	"github.com/kitab-cloud/isnad/internal/db"
	dbRedis "github.com/kitab-cloud/isnad/internal/db/redis"
	"github.com/kitab-cloud/isnad/internal/domain"
	logpkg "github.com/kitab-cloud/isnad/internal/logger"
	"github.com/kitab-cloud/isnad/internal/metrics"
	"github.com/kitab-cloud/isnad/internal/repository/embcache"
	graphrepo "github.com/kitab-cloud/isnad/internal/repository/graph"
	vectorrepo "github.com/kitab-cloud/isnad/internal/repository/vector"
	chiTransport "github.com/kitab-cloud/isnad/internal/transport/chi"
	openaiEmb "github.com/kitab-cloud/isnad/internal/transport/openai"
	scorerClient "github.com/kitab-cloud/isnad/internal/transport/scorer"
	answeruc "github.com/kitab-cloud/isnad/internal/usecase/answer"
	confidenceuc "github.com/kitab-cloud/isnad/internal/usecase/confidence"
	evidenceuc "github.com/kitab-cloud/isnad/internal/usecase/evidence"
	expansionuc "github.com/kitab-cloud/isnad/internal/usecase/expansion"
	healthuc "github.com/kitab-cloud/isnad/internal/usecase/health"
	rerankuc "github.com/kitab-cloud/isnad/internal/usecase/rerank"
	"github.com/kitab-cloud/isnad/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting isnad API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()

	embedder := buildEmbedder(cfg.Embedding, store, logger)
	logger.Info("Embedder created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	// Optional relevance model; nil interface keeps the lexical fallback only.
	var relevance rerankuc.RelevanceScorer
	if cfg.Scorer.BaseURL != "" {
		relevance = scorerClient.New(scorerClient.Config{
			BaseURL: cfg.Scorer.BaseURL,
			Model:   cfg.Scorer.Model,
			Timeout: time.Duration(cfg.Scorer.TimeoutMS) * time.Millisecond,
			Logger:  logger,
		})
		logger.Info("Relevance model client created", zap.String("base_url", cfg.Scorer.BaseURL))
	}

	// Repositories
	vectorRepo := vectorrepo.New(store, cfg.Retrieval.Collection)
	graphRepo := graphrepo.New(store)

	// Use case services
	expansionSvc := expansionuc.New(graphRepo, logger)
	rerankSvc := rerankuc.New(relevance, rerankuc.Config{
		BatchSize:        cfg.Rerank.BatchSize,
		MaxTextLen:       cfg.Rerank.MaxTextLen,
		LexicalWeight:    cfg.Rerank.LexicalWeight,
		AssumedAvgDocLen: cfg.Rerank.AssumedAvgDocLen,
	}, logger)

	catalogue := make([]string, 0, len(cfg.Evidence.Sources))
	reliability := make(map[string]float64, len(cfg.Evidence.Sources))
	for _, src := range cfg.Evidence.Sources {
		catalogue = append(catalogue, src.ID)
		reliability[src.ID] = src.Reliability
	}
	resolver := evidenceuc.NewResolver(catalogue, reliability, evidenceuc.Config{
		MinDistinctSources: cfg.Evidence.MinDistinctSources,
		MinDistinctChunks:  cfg.Evidence.MinDistinctChunks,
		MinDensity:         cfg.Evidence.MinDensity,
	})
	scorer := confidenceuc.New(cfg.Confidence)

	answerSvc := answeruc.New(embedder, vectorRepo, expansionSvc, rerankSvc, resolver, scorer, answeruc.Config{
		TopK:        cfg.Retrieval.TopK,
		AnswerTopK:  cfg.Pipeline.AnswerTopK,
		PreferModel: cfg.Rerank.PreferModel,
		Expansion: expansionuc.Config{
			MaxDepth:            cfg.Expansion.MaxDepth,
			MaxNeighborsPerNode: cfg.Expansion.MaxNeighborsPerNode,
			IncludeTimeline:     cfg.Expansion.IncludeTimeline,
			IncludeThematic:     cfg.Expansion.IncludeThematic,
			IncludeEntities:     cfg.Expansion.IncludeEntities,
		},
		RetrievalTimeout: time.Duration(cfg.Retrieval.TimeoutMS) * time.Millisecond,
		ExpansionTimeout: time.Duration(cfg.Expansion.TimeoutMS) * time.Millisecond,
		RerankTimeout:    time.Duration(cfg.Rerank.TimeoutMS) * time.Millisecond,
		Deadline:         time.Duration(cfg.Pipeline.DeadlineMS) * time.Millisecond,
	}, logger)

	healthSvc := healthuc.New(store, newEmbeddingHealthChecker(embedder))

	server := chiTransport.NewServer(answerSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
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

// buildEmbedder assembles the decorator chain: OpenAI -> Cached.
func buildEmbedder(cfg config.EmbeddingConfig, store db.Store, logger *zap.Logger) domain.Embedder {
	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		Provider:   cfg.Provider,
		Logger:     logger,
	})

	if store == nil {
		return base
	}
	return embcache.New(base, store, metrics.EmbeddingCacheTotal, logger)
}

// embeddingHealthChecker wraps domain.Embedder to implement health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(healthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
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

			// Set X-Request-ID in response header
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
