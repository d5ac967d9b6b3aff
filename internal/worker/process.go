// Package worker hosts the two long-running loops that drain the queue:
// Primary (drains PENDING tasks) and Retry (reschedules RETRYABLE tasks
// and reaps stale PROCESSING leases, then drains what it reactivated).
// Both share the same per-task item-processing logic.
package worker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/maumercado/sayathing-queue/internal/logger"
	"github.com/maumercado/sayathing-queue/internal/metrics"
	"github.com/maumercado/sayathing-queue/internal/queue"
	"github.com/maumercado/sayathing-queue/internal/synth"
	"github.com/maumercado/sayathing-queue/internal/task"
)

// itemRequest is the wire shape persisted into TaskItem.Request by the
// HTTP adapter; the worker decodes it to drive the Synthesizer.
type itemRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id"`
}

// processBatch fans a batch of claimed tasks out with bounded
// parallelism, processing each task's items sequentially through the
// synth pool, and transitions every task to COMPLETED or RETRYABLE.
// Individual task failures are captured into state transitions; they
// never abort the batch. Every goroutine returns nil, so errgroup never
// cancels the group: a failed MarkComplete or MarkRetry is logged, not
// propagated.
// generationTimeout bounds each item's Synthesize call so a hung engine
// fails that item into RETRYABLE instead of blocking forever.
func processBatch(ctx context.Context, q queue.Queue, pool *synth.Pool, tasks []*task.Task, generationTimeout time.Duration) {
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		t := t
		g.Go(func() error {
			processTask(gctx, q, pool, t, generationTimeout)
			return nil
		})
	}
	_ = g.Wait()
}

func processTask(ctx context.Context, q queue.Queue, pool *synth.Pool, t *task.Task, generationTimeout time.Duration) {
	log := logger.WithTask(t.ID)

	for i := range t.Items {
		var req itemRequest
		if err := json.Unmarshal(t.Items[i].Request, &req); err != nil {
			markRetry(ctx, q, log, t.ID, fmt.Sprintf("invalid item payload: %v", err))
			return
		}

		start := time.Now()
		itemCtx, cancel := context.WithTimeout(ctx, generationTimeout)
		audio, err := pool.Synthesize(itemCtx, req.Text, req.VoiceID)
		cancel()
		if err != nil {
			metrics.RecordSynthesis("error", time.Since(start).Seconds())
			markRetry(ctx, q, log, t.ID, fmt.Sprintf("item %d: %v", i, err))
			return
		}
		metrics.RecordSynthesis("success", time.Since(start).Seconds())

		t.Items[i].ResponseURL = "data:audio/wav;base64," + base64.StdEncoding.EncodeToString(audio)
	}

	if _, err := q.MarkComplete(ctx, t); err != nil {
		log.Error().Err(err).Msg("failed to mark task complete")
	}
}

func markRetry(ctx context.Context, q queue.Queue, log zerolog.Logger, id, reason string) {
	if _, err := q.MarkRetry(ctx, id, reason); err != nil {
		log.Error().Err(err).Msg("failed to mark task for retry")
	}
}
