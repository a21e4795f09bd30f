package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/mrmushfiq/inference-gateway/internal/gateway/auth"
	"github.com/mrmushfiq/inference-gateway/internal/gateway/handlers"
	"github.com/mrmushfiq/inference-gateway/internal/gateway/pipeline"
	"github.com/mrmushfiq/inference-gateway/internal/gateway/policy"
	"github.com/mrmushfiq/inference-gateway/internal/gateway/providers"
	"github.com/mrmushfiq/inference-gateway/internal/gateway/ratelimit"
	"github.com/mrmushfiq/inference-gateway/internal/shared/config"
	"github.com/mrmushfiq/inference-gateway/internal/shared/database"
	"github.com/mrmushfiq/inference-gateway/internal/shared/redis"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	logger.Info("starting inference gateway",
		slog.String("port", cfg.Port),
		slog.String("env", cfg.Env),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Directory (PostgreSQL)
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to postgres")

	// Shared counter store (Redis)
	redisClient, err := redis.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer redisClient.Close()
	logger.Info("connected to redis")

	// Collaborators
	authn := auth.New(cfg.JWTSecret, cfg.TokenTTL, db)
	resolver := policy.New(db, cfg.PolicyCacheTTL, logger)
	limiter := ratelimit.New(redisClient)
	router := providers.NewRouter(
		providers.NewOpenAIAdapter(cfg.OpenAIAPIKey, cfg.ProviderTimeout),
		providers.NewInternalAdapter(cfg.ProviderTimeout),
	)
	recorder := pipeline.NewLogRecorder(logger, db)
	gw := pipeline.New(authn, db, resolver, limiter, router, recorder)

	h := handlers.New(gw, authn, authn)

	// Router
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(handlers.Logging(logger))
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Mount("/", h.Routes())

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}
