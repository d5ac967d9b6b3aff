package worker

import (
	"context"
	"time"

	"github.com/maumercado/sayathing-queue/internal/logger"
	"github.com/maumercado/sayathing-queue/internal/queue"
	"github.com/maumercado/sayathing-queue/internal/synth"
)

// Primary repeatedly dequeues a batch of PENDING tasks and drains it
// through the synth pool, polling with PollDelay when the queue is empty.
type Primary struct {
	Queue             queue.Queue
	Pool              *synth.Pool
	BatchSize         int
	PollDelay         time.Duration
	GenerationTimeout time.Duration
}

// Run blocks until ctx is cancelled. In-flight batches are allowed to
// finish (cooperative shutdown); no new batch is started once ctx is done.
func (p *Primary) Run(ctx context.Context) {
	log := logger.WithComponent("primary_worker")
	log.Info().Int("batch_size", p.BatchSize).Msg("primary worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("primary worker stopping")
			return
		default:
		}

		tasks, err := p.Queue.Dequeue(ctx, p.BatchSize)
		if err != nil {
			log.Error().Err(err).Msg("dequeue failed")
			sleepOrDone(ctx, p.PollDelay)
			continue
		}

		if len(tasks) == 0 {
			sleepOrDone(ctx, p.PollDelay)
			continue
		}

		log.Debug().Int("count", len(tasks)).Msg("claimed batch")
		processBatch(ctx, p.Queue, p.Pool, tasks, p.GenerationTimeout)
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
