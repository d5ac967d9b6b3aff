// Package queue is the transactional API over the store. It owns the
// state machine, ID minting, timestamping and retry-delay computation;
// package store only knows how to run guarded SQL.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/maumercado/sayathing-queue/internal/events"
	"github.com/maumercado/sayathing-queue/internal/metrics"
	"github.com/maumercado/sayathing-queue/internal/store"
	"github.com/maumercado/sayathing-queue/internal/task"
)

// Queue is the transactional API consumed by the HTTP adapter and the
// worker loops.
type Queue interface {
	Enqueue(ctx context.Context, tasks []*task.Task) ([]string, error)
	Dequeue(ctx context.Context, size int) ([]*task.Task, error)
	DequeueByIDs(ctx context.Context, ids []string) ([]*task.Task, error)
	Retry(ctx context.Context, size int, visibilityTimeout time.Duration, maxAttempts int) ([]*task.Task, error)
	MarkComplete(ctx context.Context, t *task.Task) (*task.Task, error)
	MarkRetry(ctx context.Context, id string, errMsg string) (*task.Task, error)
	MarkCancelled(ctx context.Context, id string) (*task.Task, error)
	MarkDiscarded(ctx context.Context, id string) (*task.Task, error)
	Resume(ctx context.Context, id string) (*task.Task, error)
	GetTask(ctx context.Context, id string) (*task.Task, error)
	ListTasks(ctx context.Context, limit int, cursor string) ([]*task.Task, string, error)
	ListTasksByState(ctx context.Context, state task.State, limit int, cursor string) ([]*task.Task, string, error)
}

// Config carries the tunables a WorkerQueue needs but does not own: the
// reference defaults mirror the base 60s / 2x / one-hour backoff curve
// and a 3-attempt, one-hour visibility timeout.
type Config struct {
	Backoff            task.BackoffPolicy
	DefaultMaxAttempts int
	DefaultVisibility  time.Duration
}

// DefaultConfig returns the reference tunables.
func DefaultConfig() Config {
	return Config{
		Backoff:            task.DefaultBackoffPolicy(),
		DefaultMaxAttempts: 3,
		DefaultVisibility:  time.Hour,
	}
}

// WorkerQueue is the SQLite-backed Queue implementation.
type WorkerQueue struct {
	store    *store.Store
	cfg      Config
	clock    func() time.Time
	notifier *events.Notifier
}

// New builds a WorkerQueue over an already-opened store. Event
// notification is disabled until SetNotifier is called.
func New(s *store.Store, cfg Config) *WorkerQueue {
	return &WorkerQueue{store: s, cfg: cfg, clock: time.Now, notifier: events.NewNotifier(nil)}
}

// SetNotifier attaches a best-effort task lifecycle notifier. Passing nil
// disables notifications.
func (q *WorkerQueue) SetNotifier(n *events.Notifier) {
	if n == nil {
		n = events.NewNotifier(nil)
	}
	q.notifier = n
}

func (q *WorkerQueue) now() int64 {
	return q.clock().UnixMilli()
}

// Enqueue bulk-inserts tasks, minting an ID for any task without one and
// setting schedule_at to now where it is zero. created_at and updated_at
// are always set to now. Enqueue([]) is a no-op returning an empty slice.
func (q *WorkerQueue) Enqueue(ctx context.Context, tasks []*task.Task) ([]string, error) {
	if len(tasks) == 0 {
		return []string{}, nil
	}

	now := q.now()
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if t.ID == "" {
			t.ID = task.NewID()
		}
		t.CreatedAt = now
		t.UpdatedAt = now
		if t.ScheduleAt == 0 {
			t.ScheduleAt = now
		}
		if t.AttemptedError == nil {
			t.AttemptedError = []string{}
		}
		t.ItemCount = len(t.Items)
		ids = append(ids, t.ID)
	}

	if err := q.store.Insert(ctx, tasks); err != nil {
		return nil, wrapQueueErr("enqueue", err)
	}
	metrics.TasksEnqueued.Add(float64(len(tasks)))
	for _, t := range tasks {
		q.notifier.Notify(events.EventTaskEnqueued, t.ID, t.State.String(), nil)
	}
	return ids, nil
}

// Dequeue claims up to size PENDING tasks ready to run. Dequeue(0) and
// an empty PENDING population both return an empty slice without error.
func (q *WorkerQueue) Dequeue(ctx context.Context, size int) ([]*task.Task, error) {
	if size <= 0 {
		return []*task.Task{}, nil
	}
	tasks, err := q.store.Dequeue(ctx, size, q.now())
	if err != nil {
		return nil, wrapQueueErr("dequeue", err)
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}
	return tasks, nil
}

// DequeueByIDs claims exactly the given ids that are still PENDING and
// ready to run, moving them to PROCESSING. Unlike Dequeue, ids not
// currently PENDING (e.g. already claimed, or discarded) are simply
// absent from the result rather than being replaced by unrelated rows.
func (q *WorkerQueue) DequeueByIDs(ctx context.Context, ids []string) ([]*task.Task, error) {
	if len(ids) == 0 {
		return []*task.Task{}, nil
	}
	tasks, err := q.store.DequeueByIDs(ctx, ids, q.now())
	if err != nil {
		return nil, wrapQueueErr("dequeue_by_ids", err)
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}
	return tasks, nil
}

// Retry reschedules RETRYABLE tasks with backoff and reaps PROCESSING
// tasks whose lease has expired, discarding any that have exhausted
// maxAttempts. visibilityTimeout and maxAttempts fall back to the
// queue's configured defaults when zero.
func (q *WorkerQueue) Retry(ctx context.Context, size int, visibilityTimeout time.Duration, maxAttempts int) ([]*task.Task, error) {
	if size <= 0 {
		return []*task.Task{}, nil
	}
	if visibilityTimeout <= 0 {
		visibilityTimeout = q.cfg.DefaultVisibility
	}
	if maxAttempts <= 0 {
		maxAttempts = q.cfg.DefaultMaxAttempts
	}

	now := q.now()
	staleCutoff := now - visibilityTimeout.Milliseconds()

	plan := store.RetryPlan{
		MaxAttempts:          maxAttempts,
		ScheduleAtForAttempt: make(map[int]int64, maxAttempts-1),
	}
	for attempt := 1; attempt < maxAttempts; attempt++ {
		plan.ScheduleAtForAttempt[attempt] = now + q.cfg.Backoff.Delay(attempt-1)
	}

	tasks, err := q.store.Retry(ctx, size, now, staleCutoff, plan)
	if err != nil {
		return nil, wrapQueueErr("retry", err)
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}
	for _, t := range tasks {
		if t.State == task.StateDiscarded {
			metrics.TasksDiscarded.Inc()
			metrics.TaskAttemptCount.Observe(float64(t.AttemptCount))
			q.notifier.Notify(events.EventTaskDiscarded, t.ID, t.State.String(), nil)
		} else {
			q.notifier.Notify(events.EventTaskRetrying, t.ID, t.State.String(), nil)
		}
	}
	return tasks, nil
}

// MarkComplete transitions a PROCESSING task to COMPLETED. t must carry
// the items (with response_url populated by the worker) that should be
// persisted alongside the state change.
func (q *WorkerQueue) MarkComplete(ctx context.Context, t *task.Task) (*task.Task, error) {
	updated, err := q.store.UpdateState(ctx, t.ID, store.StateUpdate{
		NewState: task.StateCompleted,
		Expected: task.StateProcessing,
		Now:      q.now(),
		Finalize: true,
	})
	if err != nil {
		return nil, translateStoreErr(err)
	}
	// The items (including the worker-written response_url) are stored
	// separately from the lifecycle columns the guarded UPDATE touches;
	// persist them now that the transition has succeeded.
	if err := q.store.UpdateItems(ctx, t.ID, t.Items); err != nil {
		return nil, wrapQueueErr("mark_complete", err)
	}
	updated.Items = t.Items
	updated.ItemCount = len(t.Items)
	metrics.TasksCompleted.Inc()
	metrics.TaskAttemptCount.Observe(float64(updated.AttemptCount))
	q.notifier.Notify(events.EventTaskCompleted, updated.ID, updated.State.String(), nil)
	return updated, nil
}

// MarkRetry transitions a PROCESSING task to RETRYABLE, appending errMsg
// to its attempted_error log.
func (q *WorkerQueue) MarkRetry(ctx context.Context, id string, errMsg string) (*task.Task, error) {
	updated, err := q.store.UpdateState(ctx, id, store.StateUpdate{
		NewState:       task.StateRetryable,
		Expected:       task.StateProcessing,
		Now:            q.now(),
		HasAppendError: true,
		AppendError:    errMsg,
	})
	if err != nil {
		return nil, translateStoreErr(err)
	}
	metrics.TasksRetried.Inc()
	q.notifier.Notify(events.EventTaskRetrying, id, updated.State.String(), nil)
	return updated, nil
}

// MarkCancelled transitions a PENDING task to CANCELLED.
func (q *WorkerQueue) MarkCancelled(ctx context.Context, id string) (*task.Task, error) {
	updated, err := q.store.UpdateState(ctx, id, store.StateUpdate{
		NewState: task.StateCancelled,
		Expected: task.StatePending,
		Now:      q.now(),
		Finalize: true,
	})
	if err != nil {
		return nil, translateStoreErr(err)
	}
	q.notifier.Notify(events.EventTaskCancelled, id, updated.State.String(), nil)
	return updated, nil
}

// MarkDiscarded transitions a PROCESSING task directly to DISCARDED,
// bypassing the reaper's attempt-count bookkeeping. Used by callers that
// want to give up on a task immediately rather than let it exhaust
// retries naturally.
func (q *WorkerQueue) MarkDiscarded(ctx context.Context, id string) (*task.Task, error) {
	updated, err := q.store.UpdateState(ctx, id, store.StateUpdate{
		NewState: task.StateDiscarded,
		Expected: task.StateProcessing,
		Now:      q.now(),
		Finalize: true,
	})
	return updated, translateStoreErr(err)
}

// Resume transitions a DISCARDED task back to PENDING with a fresh
// schedule_at, the only way a dead-lettered task re-enters the queue.
func (q *WorkerQueue) Resume(ctx context.Context, id string) (*task.Task, error) {
	updated, err := q.store.UpdateState(ctx, id, store.StateUpdate{
		NewState:      task.StatePending,
		Expected:      task.StateDiscarded,
		Now:           q.now(),
		ResetSchedule: true,
	})
	return updated, translateStoreErr(err)
}

func (q *WorkerQueue) GetTask(ctx context.Context, id string) (*task.Task, error) {
	t, err := q.store.Get(ctx, id)
	return t, translateStoreErr(err)
}

func (q *WorkerQueue) ListTasks(ctx context.Context, limit int, cursor string) ([]*task.Task, string, error) {
	return q.listTasks(ctx, limit, cursor, nil)
}

func (q *WorkerQueue) ListTasksByState(ctx context.Context, state task.State, limit int, cursor string) ([]*task.Task, string, error) {
	return q.listTasks(ctx, limit, cursor, &state)
}

func (q *WorkerQueue) listTasks(ctx context.Context, limit int, cursor string, state *task.State) ([]*task.Task, string, error) {
	afterCreatedAt, afterID, err := decodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	tasks, nextCreatedAt, nextID, err := q.store.List(ctx, limit, afterCreatedAt, afterID, state)
	if err != nil {
		return nil, "", wrapQueueErr("list_tasks", err)
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}
	return tasks, encodeCursor(nextCreatedAt, nextID), nil
}

// translateStoreErr passes task package sentinels through unwrapped so
// callers can match them with errors.Is, and wraps anything else as a
// QueueError.
func translateStoreErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, task.ErrTaskNotFound) || errors.Is(err, task.ErrInvalidStateTransition) || errors.Is(err, task.ErrInvalidTaskData) {
		return err
	}
	return wrapQueueErr("update_state", err)
}
