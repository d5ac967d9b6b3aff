//go:build integration
// +build integration

package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maumercado/sayathing-queue/internal/logger"
	"github.com/maumercado/sayathing-queue/internal/queue"
	"github.com/maumercado/sayathing-queue/internal/store"
	"github.com/maumercado/sayathing-queue/internal/task"
)

func init() {
	logger.Init("error", false)
}

func setupQueue(t *testing.T) queue.Queue {
	t.Helper()
	q, _ := setupQueueAndDB(t)
	return q
}

func setupQueueAndDB(t *testing.T) (queue.Queue, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	s, err := store.New(db)
	require.NoError(t, err)

	return queue.New(s, queue.DefaultConfig()), db
}

// makeDue simulates the clock passing a task's retry backoff by moving
// its schedule_at back to the present.
func makeDue(t *testing.T, db *sql.DB, id string) {
	t.Helper()
	_, err := db.Exec(`UPDATE tasks SET schedule_at = ? WHERE id = ?`, time.Now().UnixMilli(), id)
	require.NoError(t, err)
}

func newTask(t *testing.T, text, voiceID string) *task.Task {
	t.Helper()
	req := &task.CreateTaskRequest{
		Items: []task.CreateTaskItemRequest{{Text: text, VoiceID: voiceID}},
	}
	tk, err := req.ToTask()
	require.NoError(t, err)
	return tk
}

// Scenario A: happy path.
func TestLifecycle_HappyPath(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)

	ids, err := q.Enqueue(ctx, []*task.Task{newTask(t, "Hello", "kokoro.af_heart")})
	require.NoError(t, err)
	require.Len(t, ids, 1)

	claimed, err := q.Dequeue(ctx, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, task.StateProcessing, claimed[0].State)

	tk := claimed[0]
	tk.Items[0].ResponseURL = "data:audio/wav;base64,AAAA"
	completed, err := q.MarkComplete(ctx, tk)
	require.NoError(t, err)

	assert.Equal(t, task.StateCompleted, completed.State)
	require.NotNil(t, completed.FinalizedAt)
	assert.Regexp(t, `^data:audio/wav;base64,[A-Za-z0-9+/=]+$`, completed.Items[0].ResponseURL)
}

// Scenario B: retry then success.
func TestLifecycle_RetryThenSuccess(t *testing.T) {
	ctx := context.Background()
	q, db := setupQueueAndDB(t)

	ids, err := q.Enqueue(ctx, []*task.Task{newTask(t, "Hello", "kokoro.af_heart")})
	require.NoError(t, err)
	id := ids[0]

	claimed, err := q.Dequeue(ctx, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	retryable, err := q.MarkRetry(ctx, id, "boom")
	require.NoError(t, err)
	assert.Equal(t, task.StateRetryable, retryable.State)
	assert.Equal(t, []string{"boom"}, retryable.AttemptedError)

	rescheduled, err := q.Retry(ctx, 1, time.Hour, 3)
	require.NoError(t, err)
	require.Len(t, rescheduled, 1)
	assert.Equal(t, task.StatePending, rescheduled[0].State)
	assert.Equal(t, 1, rescheduled[0].AttemptCount)

	makeDue(t, db, id)
	claimedAgain, err := q.Dequeue(ctx, 1)
	require.NoError(t, err)
	require.Len(t, claimedAgain, 1)

	completed, err := q.MarkComplete(ctx, claimedAgain[0])
	require.NoError(t, err)
	assert.Equal(t, task.StateCompleted, completed.State)
	assert.Equal(t, 1, completed.AttemptCount)
}

// Scenario C: exhausted retries.
func TestLifecycle_ExhaustedRetriesDiscards(t *testing.T) {
	ctx := context.Background()
	q, db := setupQueueAndDB(t)

	ids, err := q.Enqueue(ctx, []*task.Task{newTask(t, "Hello", "kokoro.af_heart")})
	require.NoError(t, err)
	id := ids[0]

	for i := 0; i < 3; i++ {
		makeDue(t, db, id)
		_, err := q.Dequeue(ctx, 1)
		require.NoError(t, err)
		_, err = q.MarkRetry(ctx, id, "fail")
		require.NoError(t, err)
		_, err = q.Retry(ctx, 1, time.Hour, 3)
		require.NoError(t, err)
	}

	final, err := q.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, task.StateDiscarded, final.State)
	require.NotNil(t, final.FinalizedAt)
	assert.Equal(t, 3, final.AttemptCount)
	assert.Len(t, final.AttemptedError, 3)
}

// Scenario D: stale-lease reaping.
func TestLifecycle_StaleLeaseReaping(t *testing.T) {
	ctx := context.Background()
	q, db := setupQueueAndDB(t)

	ids, err := q.Enqueue(ctx, []*task.Task{newTask(t, "Hello", "kokoro.af_heart")})
	require.NoError(t, err)
	id := ids[0]

	_, err = q.Dequeue(ctx, 1)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)

	// A near-zero visibility timeout puts the cutoff right at "now", so the
	// lease claimed above reads as already expired.
	reaped, err := q.Retry(ctx, 1, time.Nanosecond, 3)
	require.NoError(t, err)
	require.Len(t, reaped, 1)
	assert.Equal(t, id, reaped[0].ID)
	assert.Equal(t, task.StatePending, reaped[0].State)
	assert.Equal(t, 1, reaped[0].AttemptCount)

	makeDue(t, db, id)
	claimed, err := q.Dequeue(ctx, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, id, claimed[0].ID)
}

// Scenario E: concurrent dequeue.
func TestLifecycle_ConcurrentDequeueNoDuplicates(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)

	tasks := make([]*task.Task, 0, 100)
	for i := 0; i < 100; i++ {
		tasks = append(tasks, newTask(t, "Hello", "kokoro.af_heart"))
	}
	_, err := q.Enqueue(ctx, tasks)
	require.NoError(t, err)

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := q.Dequeue(ctx, 10)
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			for _, tk := range claimed {
				assert.False(t, seen[tk.ID], "task claimed twice: %s", tk.ID)
				seen[tk.ID] = true
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 100)

	leftover, err := q.Dequeue(ctx, 100)
	require.NoError(t, err)
	assert.Empty(t, leftover)
}

// Scenario F: cancel and resume.
func TestLifecycle_CancelAndResume(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)

	ids, err := q.Enqueue(ctx, []*task.Task{newTask(t, "Hello", "kokoro.af_heart")})
	require.NoError(t, err)
	id := ids[0]

	cancelled, err := q.MarkCancelled(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, task.StateCancelled, cancelled.State)

	claimed, err := q.Dequeue(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	ids2, err := q.Enqueue(ctx, []*task.Task{newTask(t, "Hello", "kokoro.af_heart")})
	require.NoError(t, err)
	pendingID := ids2[0]
	_, err = q.MarkDiscarded(ctx, pendingID)
	assert.ErrorIs(t, err, task.ErrInvalidStateTransition)

	processing, err := q.Dequeue(ctx, 1)
	require.NoError(t, err)
	require.Len(t, processing, 1)
	discarded, err := q.MarkDiscarded(ctx, processing[0].ID)
	require.NoError(t, err)
	assert.Equal(t, task.StateDiscarded, discarded.State)

	resumed, err := q.Resume(ctx, discarded.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatePending, resumed.State)

	reclaimed, err := q.Dequeue(ctx, 1)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
	assert.Equal(t, discarded.ID, reclaimed[0].ID)
}

// Exercises the opaque-payload contract: items round-trip their JSON
// request body unchanged through enqueue/dequeue.
func TestLifecycle_ItemPayloadRoundTrips(t *testing.T) {
	ctx := context.Background()
	q := setupQueue(t)

	_, err := q.Enqueue(ctx, []*task.Task{newTask(t, "Hello world", "kokoro.af_heart")})
	require.NoError(t, err)

	claimed, err := q.Dequeue(ctx, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	var decoded struct {
		Text    string `json:"text"`
		VoiceID string `json:"voice_id"`
	}
	require.NoError(t, json.Unmarshal(claimed[0].Items[0].Request, &decoded))
	assert.Equal(t, "Hello world", decoded.Text)
	assert.Equal(t, "kokoro.af_heart", decoded.VoiceID)
}
