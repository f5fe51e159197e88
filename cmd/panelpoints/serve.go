package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/pauljmillar/survey-sub001/internal/auth"
	"github.com/pauljmillar/survey-sub001/internal/config"
	"github.com/pauljmillar/survey-sub001/internal/database"
	"github.com/pauljmillar/survey-sub001/internal/middleware"
	"github.com/pauljmillar/survey-sub001/internal/server"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveRun(cmd, mustConfig(cmd))
		},
	}
}

func serveRun(cmd *cobra.Command, cfg *config.Config) error {
	logger := commonRun(cfg)

	if cfg.JWTSecret == "" {
		return errors.New("jwt_secret is required to serve")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	var limiter middleware.Limiter
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		limiter = middleware.NewRedisLimiter(client)
		logger.Info("rate limiting with redis", "addr", opts.Addr)
	} else {
		memory := middleware.NewRateLimiter()
		go memory.RunCleanup(ctx, 5*time.Minute)
		limiter = memory
		logger.Warn("REDIS_URL not set, rate limits are per instance")
	}

	var registry *prometheus.Registry
	if cfg.MetricsEnabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	srv := server.New(db, server.Options{
		Verifier:         auth.NewJWTVerifier(cfg.JWTSecret),
		Limiter:          limiter,
		RateLimit:        cfg.RateLimit,
		RateLimitWindow:  cfg.RateLimitWindow,
		AllowedOrigins:   cfg.AllowedOrigins,
		LeaderboardLimit: cfg.LeaderboardLimit,
		Registry:         registry,
	}, logger)

	httpServer := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     srv.Router(),
		ReadTimeout: 5 * time.Second,
		// Websocket connections outlive any write timeout, so none is set.
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", httpServer.Addr, "db", cfg.DBPath)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
