package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/maumercado/sayathing-queue/internal/task"
)

// row is the flat column shape written to and read from the tasks table.
type row struct {
	id             string
	state          int
	scheduleAt     int64
	attemptCount   int
	attemptedAt    sql.NullInt64
	attemptedError string
	finalizedAt    sql.NullInt64
	items          string
	itemCount      int
	createdAt      int64
	updatedAt      int64
}

func toRow(t *task.Task) (row, error) {
	itemsJSON, err := json.Marshal(t.Items)
	if err != nil {
		return row{}, fmt.Errorf("store: marshal items: %w", err)
	}
	errJSON, err := json.Marshal(t.AttemptedError)
	if err != nil {
		return row{}, fmt.Errorf("store: marshal attempted_error: %w", err)
	}

	r := row{
		id:             t.ID,
		state:          int(t.State),
		scheduleAt:     t.ScheduleAt,
		attemptCount:   t.AttemptCount,
		attemptedError: string(errJSON),
		items:          string(itemsJSON),
		itemCount:      t.ItemCount,
		createdAt:      t.CreatedAt,
		updatedAt:      t.UpdatedAt,
	}
	if t.AttemptedAt != nil {
		r.attemptedAt = sql.NullInt64{Int64: *t.AttemptedAt, Valid: true}
	}
	if t.FinalizedAt != nil {
		r.finalizedAt = sql.NullInt64{Int64: *t.FinalizedAt, Valid: true}
	}
	return r, nil
}

func (r row) toTask() (*task.Task, error) {
	var items []task.TaskItem
	if err := json.Unmarshal([]byte(r.items), &items); err != nil {
		return nil, fmt.Errorf("%w: items: %v", task.ErrInvalidTaskData, err)
	}
	var attemptedErr []string
	if err := json.Unmarshal([]byte(r.attemptedError), &attemptedErr); err != nil {
		return nil, fmt.Errorf("%w: attempted_error: %v", task.ErrInvalidTaskData, err)
	}
	if attemptedErr == nil {
		attemptedErr = []string{}
	}

	t := &task.Task{
		ID:             r.id,
		State:          task.State(r.state),
		ScheduleAt:     r.scheduleAt,
		AttemptCount:   r.attemptCount,
		AttemptedError: attemptedErr,
		Items:          items,
		ItemCount:      r.itemCount,
		CreatedAt:      r.createdAt,
		UpdatedAt:      r.updatedAt,
	}
	if r.attemptedAt.Valid {
		v := r.attemptedAt.Int64
		t.AttemptedAt = &v
	}
	if r.finalizedAt.Valid {
		v := r.finalizedAt.Int64
		t.FinalizedAt = &v
	}
	return t, nil
}

const rowColumns = `id, state, schedule_at, attempt_count, attempted_at, attempted_error, finalized_at, items, item_count, created_at, updated_at`

func scanRow(s interface{ Scan(...any) error }) (row, error) {
	var r row
	err := s.Scan(
		&r.id, &r.state, &r.scheduleAt, &r.attemptCount, &r.attemptedAt,
		&r.attemptedError, &r.finalizedAt, &r.items, &r.itemCount,
		&r.createdAt, &r.updatedAt,
	)
	return r, err
}

// Insert bulk-inserts tasks in one transaction. Rows with a duplicate id
// are skipped (INSERT OR IGNORE) rather than failing the whole batch,
// mirroring the original's "some tasks may have duplicate IDs" tolerance.
func (s *Store) Insert(ctx context.Context, tasks []*task.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("store: begin insert tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO tasks (`+rowColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("store: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range tasks {
		r, err := toRow(t)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			r.id, r.state, r.scheduleAt, r.attemptCount, r.attemptedAt,
			r.attemptedError, r.finalizedAt, r.items, r.itemCount,
			r.createdAt, r.updatedAt,
		); err != nil {
			return fmt.Errorf("store: insert task %s: %w", r.id, err)
		}
	}

	return tx.Commit()
}

// Get retrieves a single task by id. Returns task.ErrTaskNotFound if no
// row matches.
func (s *Store) Get(ctx context.Context, id string) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+rowColumns+` FROM tasks WHERE id = ?`, id)
	r, err := scanRow(row)
	if err == sql.ErrNoRows {
		return nil, task.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get task %s: %w", id, err)
	}
	return r.toTask()
}

// List returns up to limit tasks ordered by (created_at, id), optionally
// filtered by state, starting after the given (created_at, id) cursor
// (afterCreatedAt 0 and afterID "" for the first page). The id tiebreak
// matters because a batch Enqueue gives every row in the batch the same
// created_at: without it, rows sharing the cursor's created_at value
// would be silently skipped on every page after the first. It returns
// the next cursor (0, "" when exhausted).
func (s *Store) List(ctx context.Context, limit int, afterCreatedAt int64, afterID string, state *task.State) ([]*task.Task, int64, string, error) {
	var rows *sql.Rows
	var err error

	if state != nil {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+rowColumns+` FROM tasks
			WHERE (created_at > ? OR (created_at = ? AND id > ?)) AND state = ?
			ORDER BY created_at ASC, id ASC
			LIMIT ?
		`, afterCreatedAt, afterCreatedAt, afterID, int(*state), limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+rowColumns+` FROM tasks
			WHERE created_at > ? OR (created_at = ? AND id > ?)
			ORDER BY created_at ASC, id ASC
			LIMIT ?
		`, afterCreatedAt, afterCreatedAt, afterID, limit)
	}
	if err != nil {
		return nil, 0, "", fmt.Errorf("store: list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*task.Task
	var nextCreatedAt int64
	var nextID string
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, 0, "", fmt.Errorf("store: scan task row: %w", err)
		}
		t, err := r.toTask()
		if err != nil {
			return nil, 0, "", err
		}
		tasks = append(tasks, t)
		nextCreatedAt = t.CreatedAt
		nextID = t.ID
	}
	if err := rows.Err(); err != nil {
		return nil, 0, "", fmt.Errorf("store: list tasks: %w", err)
	}
	if len(tasks) < limit {
		nextCreatedAt = 0
		nextID = ""
	}
	return tasks, nextCreatedAt, nextID, nil
}

// UpdateItems persists the items column on its own, used by MarkComplete
// after the worker has written each item's response_url.
func (s *Store) UpdateItems(ctx context.Context, id string, items []task.TaskItem) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("store: marshal items: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE tasks SET items = ?, item_count = ? WHERE id = ?`, string(raw), len(items), id); err != nil {
		return fmt.Errorf("store: update items %s: %w", id, err)
	}
	return nil
}

// Dequeue atomically claims up to size PENDING tasks whose schedule_at
// has arrived, moving them to PROCESSING. The SELECT-then-UPDATE runs as
// a single statement guarded by WHERE state = PENDING so concurrent
// callers never claim the same row twice.
func (s *Store) Dequeue(ctx context.Context, size int, now int64) ([]*task.Task, error) {
	if size <= 0 {
		return nil, nil
	}

	tx, err := s.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: begin dequeue tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		UPDATE tasks SET
			state = ?,
			updated_at = ?
		WHERE id IN (
			SELECT id FROM tasks
			WHERE state = ? AND schedule_at <= ?
			ORDER BY created_at ASC
			LIMIT ?
		) AND state = ?
		RETURNING `+rowColumns,
		int(taskStateProcessing), now,
		int(taskStatePending), now, size,
		int(taskStatePending),
	)
	if err != nil {
		return nil, fmt.Errorf("store: dequeue: %w", err)
	}

	tasks, err := collectRows(rows)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit dequeue: %w", err)
	}
	return tasks, nil
}

// DequeueByIDs atomically claims exactly the given task ids that are
// still PENDING and ready to run, moving them to PROCESSING. Unlike
// Dequeue, it never reaches past the requested ids into the rest of the
// PENDING population — callers use this to claim a specific,
// already-identified subset (e.g. the rows a Retry pass just
// reactivated) rather than an arbitrary size-bounded slice.
func (s *Store) DequeueByIDs(ctx context.Context, ids []string, now int64) ([]*task.Task, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	tx, err := s.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: begin dequeue-by-ids tx: %w", err)
	}
	defer tx.Rollback()

	placeholders := make([]string, len(ids))
	args := make([]interface{}, 0, len(ids)+4)
	args = append(args, int(taskStateProcessing), now)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	args = append(args, int(taskStatePending), now)

	query := fmt.Sprintf(`
		UPDATE tasks SET
			state = ?,
			updated_at = ?
		WHERE id IN (%s) AND state = ? AND schedule_at <= ?
		RETURNING `+rowColumns, strings.Join(placeholders, ", "))

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: dequeue by ids: %w", err)
	}

	tasks, err := collectRows(rows)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit dequeue-by-ids: %w", err)
	}
	return tasks, nil
}

// RetryPlan carries the precomputed per-attempt backoff schedule used by
// Retry's CASE expression, keeping backoff math inside package queue.
type RetryPlan struct {
	MaxAttempts int
	// ScheduleAtForAttempt maps attempt_count+1 -> schedule_at epoch-millis
	// for attempts below MaxAttempts.
	ScheduleAtForAttempt map[int]int64
}

// Retry atomically reschedules RETRYABLE tasks and reaps PROCESSING tasks
// whose lease (schedule_at) is older than staleCutoff, up to size rows.
// A task whose attempt_count would reach MaxAttempts is moved to
// DISCARDED and finalized instead of rescheduled.
func (s *Store) Retry(ctx context.Context, size int, now, staleCutoff int64, plan RetryPlan) ([]*task.Task, error) {
	if size <= 0 {
		return nil, nil
	}

	tx, err := s.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: begin retry tx: %w", err)
	}
	defer tx.Rollback()

	caseSQL, args := buildRetryScheduleCase(now, plan)

	query := fmt.Sprintf(`
		UPDATE tasks SET
			state = CASE WHEN (attempt_count + 1) >= ? THEN ? ELSE ? END,
			schedule_at = CASE WHEN (attempt_count + 1) >= ? THEN schedule_at ELSE %s END,
			finalized_at = CASE WHEN (attempt_count + 1) >= ? THEN ? ELSE finalized_at END,
			attempt_count = attempt_count + 1,
			attempted_at = ?,
			updated_at = ?
		WHERE id IN (
			SELECT id FROM tasks
			WHERE ((state = ?) OR (state = ? AND schedule_at < ?))
				AND schedule_at <= ? AND attempt_count < ?
			ORDER BY created_at ASC
			LIMIT ?
		) AND ((state = ?) OR (state = ? AND schedule_at < ?))
		RETURNING `+rowColumns, caseSQL)

	params := []any{
		plan.MaxAttempts, int(taskStateDiscarded), int(taskStatePending),
		plan.MaxAttempts,
	}
	params = append(params, args...)
	params = append(params,
		plan.MaxAttempts, now,
		now, now,
		int(taskStateRetryable), int(taskStateProcessing), staleCutoff,
		now, plan.MaxAttempts, size,
		int(taskStateRetryable), int(taskStateProcessing), staleCutoff,
	)

	rows, err := tx.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("store: retry: %w", err)
	}

	tasks, err := collectRows(rows)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit retry: %w", err)
	}
	return tasks, nil
}

// buildRetryScheduleCase renders the CASE expression mapping
// attempt_count+1 to its scheduled retry time, with the same shape as
// the original's generated SQL.
func buildRetryScheduleCase(now int64, plan RetryPlan) (string, []any) {
	caseSQL := "CASE "
	var args []any
	for attempt := 1; attempt < plan.MaxAttempts; attempt++ {
		caseSQL += "WHEN (attempt_count + 1) = ? THEN ? "
		args = append(args, attempt, plan.ScheduleAtForAttempt[attempt])
	}
	caseSQL += "ELSE ? END"
	args = append(args, now)
	return caseSQL, args
}

// UpdateState performs a single-row guarded transition: the row's state
// must equal expected or the update affects zero rows and
// task.ErrInvalidStateTransition is returned. The caller (package queue)
// picks Expected and NewState for each operation; this guard is the only
// place the expected state is enforced. Moving to a non-terminal state
// without Finalize clears finalized_at.
type StateUpdate struct {
	NewState       task.State
	Expected       task.State
	Now            int64
	Finalize       bool
	ResetSchedule  bool
	AppendError    string
	HasAppendError bool
}

func (s *Store) UpdateState(ctx context.Context, id string, u StateUpdate) (*task.Task, error) {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: begin update tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+rowColumns+` FROM tasks WHERE id = ?`, id)
	r, err := scanRow(row)
	if err == sql.ErrNoRows {
		return nil, task.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: lookup task %s: %w", id, err)
	}
	if task.State(r.state) != u.Expected {
		return nil, task.ErrInvalidStateTransition
	}

	attemptedError := r.attemptedError
	if u.HasAppendError {
		var existing []string
		if err := json.Unmarshal([]byte(r.attemptedError), &existing); err != nil {
			return nil, fmt.Errorf("%w: attempted_error: %v", task.ErrInvalidTaskData, err)
		}
		existing = append(existing, u.AppendError)
		raw, err := json.Marshal(existing)
		if err != nil {
			return nil, fmt.Errorf("store: marshal attempted_error: %w", err)
		}
		attemptedError = string(raw)
	}

	scheduleAt := r.scheduleAt
	if u.ResetSchedule {
		scheduleAt = u.Now
	}
	finalizedAt := r.finalizedAt
	if u.Finalize {
		finalizedAt = sql.NullInt64{Int64: u.Now, Valid: true}
	} else if !u.NewState.IsTerminal() {
		finalizedAt = sql.NullInt64{}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE tasks SET
			state = ?,
			schedule_at = ?,
			finalized_at = ?,
			attempted_error = ?,
			updated_at = ?
		WHERE id = ? AND state = ?
	`, int(u.NewState), scheduleAt, finalizedAt, attemptedError, u.Now, id, int(u.Expected))
	if err != nil {
		return nil, fmt.Errorf("store: update task %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return nil, task.ErrInvalidStateTransition
	}

	r.state = int(u.NewState)
	r.scheduleAt = scheduleAt
	r.finalizedAt = finalizedAt
	r.attemptedError = attemptedError
	r.updatedAt = u.Now

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit update: %w", err)
	}
	return r.toTask()
}

func collectRows(rows *sql.Rows) ([]*task.Task, error) {
	defer rows.Close()
	var tasks []*task.Task
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan returned row: %w", err)
		}
		t, err := r.toTask()
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate returned rows: %w", err)
	}
	return tasks, nil
}

// Local aliases for the wire-visible state values, keeping the SQL
// builders above readable.
const (
	taskStateDiscarded  = task.StateDiscarded
	taskStatePending    = task.StatePending
	taskStateProcessing = task.StateProcessing
	taskStateRetryable  = task.StateRetryable
)
