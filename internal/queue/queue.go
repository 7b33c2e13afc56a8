// Package queue implements the work queue: pending →
// leased → succeeded/failed/cancelled tasks, leased atomically so two
// workers never claim the same task, with backoff-scheduled retries
// and bulk-operation grouping/pause/resume.
//
// SQLite has no SELECT ... FOR UPDATE SKIP LOCKED, so lease uses a
// BEGIN IMMEDIATE transaction to take a write lock before reading
// eligible rows, making the select-then-update atomic against
// concurrent leasers.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/nova-repository/newsrepo/internal/apperr"
	"github.com/nova-repository/newsrepo/internal/backoff"
	"github.com/nova-repository/newsrepo/internal/domain"
)

type Queue struct {
	db     *sql.DB
	sb     sq.StatementBuilderType
	policy backoff.Policy
}

func New(db *sql.DB) *Queue {
	return &Queue{
		db:     db,
		sb:     sq.StatementBuilder.PlaceholderFormat(sq.Question),
		policy: backoff.Queue(),
	}
}

// EnqueueParams describes a single task to create.
type EnqueueParams struct {
	PageID      *string
	Operation   domain.Operation
	Parameters  map[string]string
	Priority    int
	MaxAttempts int
	BulkID      *string
}

// Enqueue inserts a single pending task.
func (q *Queue) Enqueue(ctx context.Context, p EnqueueParams) (domain.Task, error) {
	return q.insertTask(ctx, q.db, p)
}

// BulkCreate registers a BulkOperation and enqueues every task in
// params under it, matching original_source's add_bulk_tasks:
// counters are derived, never stored redundantly per task.
func (q *Queue) BulkCreate(ctx context.Context, description string, operation domain.Operation, params []EnqueueParams) (domain.BulkOperation, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.BulkOperation{}, apperr.Wrap(apperr.Internal, "begin bulk_create transaction", err)
	}
	defer tx.Rollback()

	bulkID := uuid.NewString()
	now := time.Now().UTC()

	insert := q.sb.Insert("bulk_operations").
		Columns("bulk_id", "description", "operation", "status", "total", "pending", "created_at").
		Values(bulkID, description, string(operation), string(domain.BulkStatusRunning), len(params), len(params), now.Unix())
	query, args, err := insert.ToSql()
	if err != nil {
		return domain.BulkOperation{}, apperr.Wrap(apperr.Internal, "build bulk_operations insert", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return domain.BulkOperation{}, apperr.Wrap(apperr.Internal, "insert bulk_operations row", err)
	}

	for _, p := range params {
		p.BulkID = &bulkID
		if _, err := q.insertTask(ctx, tx, p); err != nil {
			return domain.BulkOperation{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.BulkOperation{}, apperr.Wrap(apperr.Internal, "commit bulk_create transaction", err)
	}

	return domain.BulkOperation{
		BulkID:      bulkID,
		Description: description,
		Operation:   operation,
		Status:      domain.BulkStatusRunning,
		Counters:    domain.BulkCounters{Total: len(params), Pending: len(params)},
		CreatedAt:   now,
	}, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (q *Queue) insertTask(ctx context.Context, ex execer, p EnqueueParams) (domain.Task, error) {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 5
	}
	taskID := uuid.NewString()
	now := time.Now().UTC()

	paramsJSON, err := json.Marshal(p.Parameters)
	if err != nil {
		return domain.Task{}, apperr.Wrap(apperr.Internal, "marshal task parameters", err)
	}

	insert := q.sb.Insert("tasks").
		Columns("task_id", "page_id", "operation", "parameters", "priority", "status",
			"max_attempts", "bulk_id", "next_eligible_at", "created_at", "updated_at").
		Values(taskID, p.PageID, string(p.Operation), string(paramsJSON), p.Priority, string(domain.TaskStatusPending),
			p.MaxAttempts, p.BulkID, now.Unix(), now.Unix(), now.Unix())

	query, args, err := insert.ToSql()
	if err != nil {
		return domain.Task{}, apperr.Wrap(apperr.Internal, "build enqueue insert", err)
	}
	if _, err := ex.ExecContext(ctx, query, args...); err != nil {
		return domain.Task{}, apperr.Wrap(apperr.Internal, "insert task row", err)
	}

	return domain.Task{
		TaskID:         taskID,
		PageID:         p.PageID,
		Operation:      p.Operation,
		Parameters:     p.Parameters,
		Priority:       p.Priority,
		Status:         domain.TaskStatusPending,
		MaxAttempts:    p.MaxAttempts,
		BulkID:         p.BulkID,
		NextEligibleAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Lease atomically claims up to n pending, eligible, non-paused tasks
// for workerID, setting their lease to expire after leaseDuration.
func (q *Queue) Lease(ctx context.Context, workerID string, n int, leaseDuration time.Duration) ([]domain.Task, error) {
	conn, err := q.db.Conn(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "acquire connection for lease", err)
	}
	defer conn.Close()

	// BEGIN IMMEDIATE takes SQLite's write lock up front, so the
	// select below cannot race with another connection's lease;
	// standard BEGIN would only lock lazily on the first write.
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "begin immediate lease transaction", err)
	}
	commit := false
	defer func() {
		if !commit {
			conn.ExecContext(ctx, "ROLLBACK")
		}
	}()

	now := time.Now().UTC()
	selectQuery, selectArgs, err := q.sb.Select("task_id").From("tasks").
		Where(sq.Eq{"status": string(domain.TaskStatusPending)}).
		Where(sq.LtOrEq{"next_eligible_at": now.Unix()}).
		Where(sq.Expr(`(bulk_id IS NULL OR bulk_id NOT IN (
			SELECT bulk_id FROM bulk_operations WHERE status = ?
		))`, string(domain.BulkStatusPaused))).
		OrderBy("priority ASC", "created_at ASC").
		Limit(uint64(n)).
		ToSql()
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "build lease select", err)
	}

	rows, err := conn.QueryContext(ctx, selectQuery, selectArgs...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "query leasable tasks", err)
	}
	var taskIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, apperr.Wrap(apperr.Internal, "scan leasable task id", err)
		}
		taskIDs = append(taskIDs, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, apperr.Wrap(apperr.Internal, "iterate leasable tasks", err)
	}
	rows.Close()

	if len(taskIDs) == 0 {
		if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "commit empty lease transaction", err)
		}
		commit = true
		return nil, nil
	}

	leaseExpiry := now.Add(leaseDuration)
	var leased []domain.Task
	for _, id := range taskIDs {
		update := q.sb.Update("tasks").
			Set("status", string(domain.TaskStatusLeased)).
			Set("leased_by", workerID).
			Set("lease_expires_at", leaseExpiry.Unix()).
			Set("attempts", sq.Expr("attempts + 1")).
			Set("updated_at", now.Unix()).
			Where(sq.Eq{"task_id": id}).
			Where(sq.Eq{"status": string(domain.TaskStatusPending)})

		query, args, err := update.ToSql()
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, "build lease update", err)
		}
		res, err := conn.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, "claim task row", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, "read rows affected", err)
		}
		if affected == 0 {
			// another connection claimed it between select and update
			continue
		}

		task, err := getTaskTx(ctx, conn, q.sb, id)
		if err != nil {
			return nil, err
		}
		leased = append(leased, task)
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "commit lease transaction", err)
	}
	commit = true
	return leased, nil
}

// Heartbeat extends a held lease, used by long-running tasks so they
// are not reclaimed as expired mid-flight.
func (q *Queue) Heartbeat(ctx context.Context, taskID, workerID string, leaseDuration time.Duration) error {
	newExpiry := time.Now().UTC().Add(leaseDuration)
	update := q.sb.Update("tasks").
		Set("lease_expires_at", newExpiry.Unix()).
		Set("updated_at", time.Now().UTC().Unix()).
		Where(sq.Eq{"task_id": taskID}).
		Where(sq.Eq{"leased_by": workerID}).
		Where(sq.Eq{"status": string(domain.TaskStatusLeased)})

	query, args, err := update.ToSql()
	if err != nil {
		return apperr.Wrap(apperr.Internal, "build heartbeat update", err)
	}
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "extend task lease", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(apperr.Internal, "read heartbeat rows affected", err)
	}
	if affected == 0 {
		return apperr.Newf(apperr.Conflict, "task %s is not leased by %s", taskID, workerID)
	}
	return nil
}

// Complete marks a leased task succeeded and updates its bulk
// counters if part of a bulk operation.
func (q *Queue) Complete(ctx context.Context, taskID string) error {
	return q.finish(ctx, taskID, domain.TaskStatusSucceeded, nil, time.Time{})
}

// Fail records a failure. If attempts have not exhausted max_attempts
// the task is returned to pending with next_eligible_at pushed out by
// the queue backoff policy; otherwise it is marked failed terminally.
func (q *Queue) Fail(ctx context.Context, taskID string, causeErr error) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	errMsg := causeErr.Error()
	if task.Attempts < task.MaxAttempts {
		delay := q.policy.Delay(task.Attempts)
		nextEligible := time.Now().UTC().Add(delay)

		update := q.sb.Update("tasks").
			Set("status", string(domain.TaskStatusPending)).
			Set("last_error", errMsg).
			Set("leased_by", nil).
			Set("lease_expires_at", nil).
			Set("next_eligible_at", nextEligible.Unix()).
			Set("updated_at", time.Now().UTC().Unix()).
			Where(sq.Eq{"task_id": taskID})

		query, args, err := update.ToSql()
		if err != nil {
			return apperr.Wrap(apperr.Internal, "build retry update", err)
		}
		if _, err := q.db.ExecContext(ctx, query, args...); err != nil {
			return apperr.Wrap(apperr.Internal, "schedule task retry", err)
		}
		return nil
	}

	return q.finish(ctx, taskID, domain.TaskStatusFailed, &errMsg, time.Time{})
}

// Cancel marks a task cancelled regardless of its current status,
// short of a terminal state it is already in.
func (q *Queue) Cancel(ctx context.Context, taskID string) error {
	return q.finish(ctx, taskID, domain.TaskStatusCancelled, nil, time.Time{})
}

func (q *Queue) finish(ctx context.Context, taskID string, status domain.TaskStatus, lastError *string, _ time.Time) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "begin finish transaction", err)
	}
	defer tx.Rollback()

	task, err := getTaskTx(ctx, tx, q.sb, taskID)
	if err != nil {
		return err
	}
	if task.Status.IsTerminal() {
		return apperr.Newf(apperr.Conflict, "task %s is already terminal (%s)", taskID, task.Status)
	}

	update := q.sb.Update("tasks").
		Set("status", string(status)).
		Set("leased_by", nil).
		Set("lease_expires_at", nil).
		Set("updated_at", time.Now().UTC().Unix())
	if lastError != nil {
		update = update.Set("last_error", *lastError)
	}
	update = update.Where(sq.Eq{"task_id": taskID})

	query, args, err := update.ToSql()
	if err != nil {
		return apperr.Wrap(apperr.Internal, "build finish update", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return apperr.Wrap(apperr.Internal, "update task terminal status", err)
	}

	if task.BulkID != nil {
		if err := adjustBulkCounters(ctx, tx, q.sb, *task.BulkID, status); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func adjustBulkCounters(ctx context.Context, tx *sql.Tx, sb sq.StatementBuilderType, bulkID string, status domain.TaskStatus) error {
	column := "succeeded"
	if status == domain.TaskStatusFailed {
		column = "failed"
	}

	update := sb.Update("bulk_operations").
		Set(column, sq.Expr(column+" + 1")).
		Set("pending", sq.Expr("pending - 1")).
		Where(sq.Eq{"bulk_id": bulkID})
	query, args, err := update.ToSql()
	if err != nil {
		return apperr.Wrap(apperr.Internal, "build bulk counter update", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return apperr.Wrap(apperr.Internal, "update bulk counters", err)
	}

	var pending, total int
	if err := tx.QueryRowContext(ctx, `SELECT pending, total FROM bulk_operations WHERE bulk_id = ?`, bulkID).Scan(&pending, &total); err != nil {
		return apperr.Wrap(apperr.Internal, "read bulk counters", err)
	}
	if pending <= 0 {
		if _, err := tx.ExecContext(ctx,
			`UPDATE bulk_operations SET status = ?, completed_at = ? WHERE bulk_id = ?`,
			string(domain.BulkStatusCompleted), time.Now().UTC().Unix(), bulkID,
		); err != nil {
			return apperr.Wrap(apperr.Internal, "mark bulk operation completed", err)
		}
	}
	return nil
}

// PauseBulk stops leasing new tasks for bulkID without disturbing
// tasks already leased.
func (q *Queue) PauseBulk(ctx context.Context, bulkID string) error {
	return q.setBulkStatus(ctx, bulkID, domain.BulkStatusPaused)
}

// ResumeBulk makes bulkID's tasks eligible for leasing again.
func (q *Queue) ResumeBulk(ctx context.Context, bulkID string) error {
	return q.setBulkStatus(ctx, bulkID, domain.BulkStatusRunning)
}

func (q *Queue) setBulkStatus(ctx context.Context, bulkID string, status domain.BulkStatus) error {
	query, args, err := q.sb.Update("bulk_operations").
		Set("status", string(status)).
		Where(sq.Eq{"bulk_id": bulkID}).
		ToSql()
	if err != nil {
		return apperr.Wrap(apperr.Internal, "build bulk status update", err)
	}
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "update bulk operation status", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(apperr.Internal, "read bulk status rows affected", err)
	}
	if affected == 0 {
		return apperr.Newf(apperr.NotFound, "bulk operation %s not found", bulkID)
	}
	return nil
}

// AddToBulk enqueues additional tasks under an existing bulk
// operation and extends its total/pending counters, matching the CLI's
// `bulk add` verb for bulks created incrementally.
func (q *Queue) AddToBulk(ctx context.Context, bulkID string, params []EnqueueParams) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "begin add_to_bulk transaction", err)
	}
	defer tx.Rollback()

	for _, p := range params {
		p.BulkID = &bulkID
		if _, err := q.insertTask(ctx, tx, p); err != nil {
			return err
		}
	}

	update := q.sb.Update("bulk_operations").
		Set("total", sq.Expr("total + ?", len(params))).
		Set("pending", sq.Expr("pending + ?", len(params))).
		Where(sq.Eq{"bulk_id": bulkID})
	query, args, err := update.ToSql()
	if err != nil {
		return apperr.Wrap(apperr.Internal, "build add_to_bulk counter update", err)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "update bulk counters for add_to_bulk", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return apperr.Newf(apperr.NotFound, "bulk operation %s not found", bulkID)
	}

	return tx.Commit()
}

// CancelBulk cancels every non-terminal task in a bulk and marks the
// bulk itself cancelled.
func (q *Queue) CancelBulk(ctx context.Context, bulkID string) error {
	tasks, err := q.listBulkTasks(ctx, bulkID)
	if err != nil {
		return err
	}
	for _, task := range tasks {
		if task.Status.IsTerminal() {
			continue
		}
		if err := q.Cancel(ctx, task.TaskID); err != nil && apperr.KindOf(err) != apperr.Conflict {
			return err
		}
	}

	query, args, err := q.sb.Update("bulk_operations").
		Set("status", string(domain.BulkStatusCancelled)).
		Set("completed_at", time.Now().UTC().Unix()).
		Where(sq.Eq{"bulk_id": bulkID}).
		ToSql()
	if err != nil {
		return apperr.Wrap(apperr.Internal, "build cancel_bulk update", err)
	}
	if _, err := q.db.ExecContext(ctx, query, args...); err != nil {
		return apperr.Wrap(apperr.Internal, "mark bulk operation cancelled", err)
	}
	return nil
}

// RetryFailed requeues every failed child task of a bulk as pending,
// leaving succeeded ones untouched.
func (q *Queue) RetryFailed(ctx context.Context, bulkID string) (int, error) {
	now := time.Now().UTC().Unix()
	res, err := q.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, attempts = 0, last_error = NULL, next_eligible_at = ?, updated_at = ?
		 WHERE bulk_id = ? AND status = ?`,
		string(domain.TaskStatusPending), now, now, bulkID, string(domain.TaskStatusFailed),
	)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "requeue failed bulk tasks", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "read retry_failed rows affected", err)
	}
	if affected == 0 {
		return 0, nil
	}

	update := q.sb.Update("bulk_operations").
		Set("status", string(domain.BulkStatusRunning)).
		Set("failed", sq.Expr("failed - ?", affected)).
		Set("pending", sq.Expr("pending + ?", affected)).
		Where(sq.Eq{"bulk_id": bulkID})
	query, args, err := update.ToSql()
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "build retry_failed counter update", err)
	}
	if _, err := q.db.ExecContext(ctx, query, args...); err != nil {
		return 0, apperr.Wrap(apperr.Internal, "update bulk counters for retry_failed", err)
	}
	return int(affected), nil
}

// GetBulk reports a bulk operation's current status and counters.
func (q *Queue) GetBulk(ctx context.Context, bulkID string) (domain.BulkOperation, error) {
	var b domain.BulkOperation
	var operation, status, description string
	var total, pending, succeeded, failed int
	var createdAt int64
	var completedAt sql.NullInt64

	row := q.db.QueryRowContext(ctx,
		`SELECT bulk_id, description, operation, status, total, pending, succeeded, failed, created_at, completed_at
		 FROM bulk_operations WHERE bulk_id = ?`, bulkID)
	if err := row.Scan(&b.BulkID, &description, &operation, &status, &total, &pending, &succeeded, &failed, &createdAt, &completedAt); err != nil {
		if err == sql.ErrNoRows {
			return domain.BulkOperation{}, apperr.Newf(apperr.NotFound, "bulk operation %s not found", bulkID)
		}
		return domain.BulkOperation{}, apperr.Wrap(apperr.Internal, "scan bulk operation row", err)
	}

	b.Description = description
	b.Operation = domain.Operation(operation)
	b.Status = domain.BulkStatus(status)
	b.CreatedAt = time.Unix(createdAt, 0).UTC()
	b.Counters = domain.BulkCounters{
		Total:     total,
		Pending:   pending,
		Succeeded: succeeded,
		Failed:    failed,
		InProgress: total - pending - succeeded - failed,
	}
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0).UTC()
		b.CompletedAt = &t
	}
	return b, nil
}

func (q *Queue) listBulkTasks(ctx context.Context, bulkID string) ([]domain.Task, error) {
	query, args, err := q.sb.Select(
		"task_id", "page_id", "operation", "parameters", "priority", "status",
		"attempts", "max_attempts", "last_error", "lease_expires_at", "leased_by",
		"bulk_id", "next_eligible_at", "created_at", "updated_at",
	).From("tasks").Where(sq.Eq{"bulk_id": bulkID}).ToSql()
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "build list_bulk_tasks query", err)
	}
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "query bulk tasks", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		task, err := scanTaskRows(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "iterate bulk tasks", err)
	}
	return tasks, nil
}

// ReclaimExpiredLeases returns expired leases to pending, for a
// background sweep against workers that died mid-task.
func (q *Queue) ReclaimExpiredLeases(ctx context.Context) (int, error) {
	now := time.Now().UTC().Unix()
	res, err := q.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, leased_by = NULL, lease_expires_at = NULL, updated_at = ?
		 WHERE status = ? AND lease_expires_at IS NOT NULL AND lease_expires_at < ?`,
		string(domain.TaskStatusPending), now, string(domain.TaskStatusLeased), now,
	)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "reclaim expired leases", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "read reclaim rows affected", err)
	}
	return int(affected), nil
}

func (q *Queue) GetTask(ctx context.Context, taskID string) (domain.Task, error) {
	return getTaskTx(ctx, q.db, q.sb, taskID)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getTaskTx(ctx context.Context, q queryRower, sb sq.StatementBuilderType, taskID string) (domain.Task, error) {
	query, args, err := sb.Select(
		"task_id", "page_id", "operation", "parameters", "priority", "status",
		"attempts", "max_attempts", "last_error", "lease_expires_at", "leased_by",
		"bulk_id", "next_eligible_at", "created_at", "updated_at",
	).From("tasks").Where(sq.Eq{"task_id": taskID}).ToSql()
	if err != nil {
		return domain.Task{}, apperr.Wrap(apperr.Internal, "build get_task query", err)
	}

	row := q.QueryRowContext(ctx, query, args...)
	return scanTask(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row *sql.Row) (domain.Task, error) {
	t, err := scanTaskRow(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Task{}, apperr.New(apperr.NotFound, "task not found")
		}
		return domain.Task{}, err
	}
	return t, nil
}

func scanTaskRows(rows *sql.Rows) (domain.Task, error) {
	return scanTaskRow(rows)
}

func scanTaskRow(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var pageID, leasedBy, bulkID, lastError sql.NullString
	var leaseExpiresAt sql.NullInt64
	var operation, status, paramsJSON string
	var nextEligibleAt, createdAt, updatedAt int64

	if err := row.Scan(&t.TaskID, &pageID, &operation, &paramsJSON, &t.Priority, &status,
		&t.Attempts, &t.MaxAttempts, &lastError, &leaseExpiresAt, &leasedBy,
		&bulkID, &nextEligibleAt, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return domain.Task{}, err
		}
		return domain.Task{}, apperr.Wrap(apperr.Internal, "scan task row", err)
	}

	t.Operation = domain.Operation(operation)
	t.Status = domain.TaskStatus(status)
	t.NextEligibleAt = time.Unix(nextEligibleAt, 0).UTC()
	t.CreatedAt = time.Unix(createdAt, 0).UTC()
	t.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	if pageID.Valid {
		t.PageID = &pageID.String
	}
	if leasedBy.Valid {
		t.LeasedBy = &leasedBy.String
	}
	if bulkID.Valid {
		t.BulkID = &bulkID.String
	}
	if lastError.Valid {
		t.LastError = &lastError.String
	}
	if leaseExpiresAt.Valid {
		lt := time.Unix(leaseExpiresAt.Int64, 0).UTC()
		t.LeaseExpiresAt = &lt
	}
	if paramsJSON != "" {
		if err := json.Unmarshal([]byte(paramsJSON), &t.Parameters); err != nil {
			return domain.Task{}, apperr.Wrap(apperr.CorruptData, "unmarshal task parameters", err)
		}
	}
	return t, nil
}
