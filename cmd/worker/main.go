package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/maumercado/sayathing-queue/internal/config"
	"github.com/maumercado/sayathing-queue/internal/events"
	"github.com/maumercado/sayathing-queue/internal/logger"
	"github.com/maumercado/sayathing-queue/internal/queue"
	"github.com/maumercado/sayathing-queue/internal/store"
	"github.com/maumercado/sayathing-queue/internal/synth"
	"github.com/maumercado/sayathing-queue/internal/task"
	"github.com/maumercado/sayathing-queue/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, os.Getenv("ENV") != "production")
	log := logger.Get()
	log.Info().Msg("starting worker")

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

	// The concrete voice engine lives outside this module's scope; the
	// mock engine stands in as the wired Synthesizer until a real one is
	// plugged in behind the same interface.
	pool := synth.NewPool(synth.NewMockEngine(), cfg.TTS.ThreadPoolMaxWorkers)

	primary := &worker.Primary{
		Queue:             q,
		Pool:              pool,
		BatchSize:         cfg.Worker.BatchSize,
		PollDelay:         cfg.Worker.PollDelay,
		GenerationTimeout: cfg.TTS.GenerationTimeout,
	}
	retry := &worker.Retry{
		Queue:             q,
		Pool:              pool,
		BatchSize:         cfg.RetryWorker.BatchSize,
		PollDelay:         cfg.RetryWorker.PollDelay,
		VisibilityTimeout: cfg.RetryWorker.VisibilityTimeout,
		MaxAttempts:       cfg.RetryWorker.MaxAttempts,
		GenerationTimeout: cfg.TTS.GenerationTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		logger.WithWorker("primary").Info().Msg("primary worker starting")
		primary.Run(ctx)
	}()
	go func() {
		logger.WithWorker("retry").Info().Msg("retry worker starting")
		retry.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	cancel()

	log.Info().Msg("worker stopped")
}

// buildNotifier wires an optional Redis-backed event publisher; see
// cmd/api-server for the matching configuration.
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
