package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/maumercado/sayathing-queue/internal/api"
	"github.com/maumercado/sayathing-queue/internal/config"
	"github.com/maumercado/sayathing-queue/internal/events"
	"github.com/maumercado/sayathing-queue/internal/logger"
	"github.com/maumercado/sayathing-queue/internal/queue"
	"github.com/maumercado/sayathing-queue/internal/store"
	"github.com/maumercado/sayathing-queue/internal/task"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, os.Getenv("ENV") != "production")
	log := logger.Get()
	log.Info().Msg("starting API server")

	st, err := store.Open(cfg.Queue.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close store")
		}
	}()

	q := queue.New(st, queue.Config{
		Backoff: task.BackoffPolicy{
			BaseDelay:  cfg.Queue.RetryBaseDelay,
			Multiplier: cfg.Queue.RetryBackoffMultiplier,
			MaxDelay:   cfg.Queue.MaxRetryDelay,
		},
		DefaultMaxAttempts: cfg.Queue.MaxAttempts,
		DefaultVisibility:  cfg.Queue.VisibilityTimeout,
	})

	if notifier := buildNotifier(log); notifier != nil {
		q.SetNotifier(notifier)
	}

	server := api.NewServer(cfg, q)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down API server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("API server stopped")
}

// buildNotifier wires an optional Redis-backed event publisher. A
// notification broker is not part of the core queue contract: a missing
// or unparsable EVENTS_REDIS_ADDR just runs the server without one.
func buildNotifier(log *zerolog.Logger) *events.Notifier {
	redisURL := os.Getenv("EVENTS_REDIS_ADDR")
	if redisURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Warn().Err(err).Msg("invalid EVENTS_REDIS_ADDR, event notifications disabled")
		return nil
	}
	client := redis.NewClient(opts)
	return events.NewNotifier(events.NewRedisPubSub(client))
}
