package worker

import (
	"context"
	"time"

	"github.com/maumercado/sayathing-queue/internal/logger"
	"github.com/maumercado/sayathing-queue/internal/queue"
	"github.com/maumercado/sayathing-queue/internal/synth"
	"github.com/maumercado/sayathing-queue/internal/task"
)

// Retry is the reaper loop: it calls Queue.Retry to both reschedule
// RETRYABLE tasks with backoff and reclaim PROCESSING tasks whose
// visibility timeout has elapsed, then immediately drains whatever it
// reactivated through the same per-item processing as Primary.
type Retry struct {
	Queue             queue.Queue
	Pool              *synth.Pool
	BatchSize         int
	PollDelay         time.Duration
	VisibilityTimeout time.Duration
	MaxAttempts       int
	GenerationTimeout time.Duration
}

func (r *Retry) Run(ctx context.Context) {
	log := logger.WithComponent("retry_worker")
	log.Info().
		Int("batch_size", r.BatchSize).
		Dur("visibility_timeout", r.VisibilityTimeout).
		Int("max_attempts", r.MaxAttempts).
		Msg("retry worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("retry worker stopping")
			return
		default:
		}

		reactivated, err := r.Queue.Retry(ctx, r.BatchSize, r.VisibilityTimeout, r.MaxAttempts)
		if err != nil {
			log.Error().Err(err).Msg("retry pass failed")
			sleepOrDone(ctx, r.PollDelay)
			continue
		}

		if len(reactivated) == 0 {
			sleepOrDone(ctx, r.PollDelay)
			continue
		}

		// Retry moved eligible tasks back to PENDING (ready now or after a
		// backoff delay) and exhausted ones to DISCARDED, which is
		// terminal: log and move on rather than claiming them. Claim only
		// the specific rows that are both PENDING and actually due, by id,
		// rather than a size-bounded Dequeue that could reach past this
		// batch into unrelated PENDING tasks.
		now := time.Now().UnixMilli()
		ids := make([]string, 0, len(reactivated))
		for _, t := range reactivated {
			switch {
			case t.State == task.StateDiscarded:
				log.Info().Str("task_id", t.ID).Int("attempt_count", t.AttemptCount).Msg("task discarded after exhausting retries")
			case t.State == task.StatePending && t.ScheduleAt <= now:
				ids = append(ids, t.ID)
			}
		}
		if len(ids) == 0 {
			sleepOrDone(ctx, r.PollDelay)
			continue
		}

		claimed, err := r.Queue.DequeueByIDs(ctx, ids)
		if err != nil {
			log.Error().Err(err).Msg("failed to claim reactivated tasks")
			continue
		}
		if len(claimed) == 0 {
			continue
		}

		log.Debug().Int("count", len(claimed)).Msg("reactivated batch")
		processBatch(ctx, r.Queue, r.Pool, claimed, r.GenerationTimeout)
	}
}
