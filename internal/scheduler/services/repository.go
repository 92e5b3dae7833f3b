package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"go-batchd/internal/scheduler/models"
	"go-batchd/pkg/database"
)

// Repository handles non-transactional database operations for the scheduler:
// the admin surface, the console, and the cron fan-out statements. Claim and
// completion writes live in TxService, which manages its own transactions.
type Repository struct {
	db *database.SQL
}

// NewRepository creates a new repository instance
func NewRepository(db *database.SQL) *Repository {
	return &Repository{db: db}
}

// insertReturningID inserts one row and returns its generated id, using
// LastInsertId on MySQL and a RETURNING clause on Postgres.
func insertReturningID(ctx context.Context, ext sqlx.ExtContext, driver, query string, args ...any) (int64, error) {
	if driver == database.DriverPostgres {
		var id int64
		err := ext.QueryRowxContext(ctx, ext.Rebind(query+" RETURNING id"), args...).Scan(&id)
		return id, err
	}
	res, err := ext.ExecContext(ctx, ext.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Schedule Operations

// CreateSchedule inserts a new cron schedule and returns its id.
func (r *Repository) CreateSchedule(ctx context.Context, typ, cron string, payload *string, enabled int) (int64, error) {
	const q = `INSERT INTO batch_schedule (type, cron, payload, enabled) VALUES (?, ?, ?, ?)`
	return insertReturningID(ctx, r.db.DB, r.db.Driver, q, typ, cron, payload, enabled)
}

// GetSchedule retrieves a schedule by id.
func (r *Repository) GetSchedule(ctx context.Context, id int64) (*models.Schedule, error) {
	var s models.Schedule
	err := r.db.DB.GetContext(ctx, &s, r.db.Rebind(`SELECT * FROM batch_schedule WHERE id = ?`), id)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSchedules lists all schedules ordered by id.
func (r *Repository) ListSchedules(ctx context.Context) ([]models.Schedule, error) {
	var out []models.Schedule
	err := r.db.DB.SelectContext(ctx, &out, `SELECT * FROM batch_schedule ORDER BY id`)
	return out, err
}

// SetScheduleEnabled flips the enabled flag and returns the rows updated.
func (r *Repository) SetScheduleEnabled(ctx context.Context, id int64, enabled int) (int64, error) {
	res, err := r.db.DB.ExecContext(ctx, r.db.Rebind(`UPDATE batch_schedule SET enabled = ? WHERE id = ?`), enabled, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteSchedule removes a schedule row. Callers must check for referencing
// tasks first; the task table keeps schedule_id as a plain column so the
// delete itself never cascades.
func (r *Repository) DeleteSchedule(ctx context.Context, id int64) error {
	_, err := r.db.DB.ExecContext(ctx, r.db.Rebind(`DELETE FROM batch_schedule WHERE id = ?`), id)
	return err
}

// CountTasksBySchedule counts tasks referencing the given schedule.
func (r *Repository) CountTasksBySchedule(ctx context.Context, scheduleID int64) (int64, error) {
	var n int64
	err := r.db.DB.GetContext(ctx, &n, r.db.Rebind(`SELECT COUNT(*) FROM batch_task WHERE schedule_id = ?`), scheduleID)
	return n, err
}

// ListEnabledSchedulesTx lists enabled schedules inside the fan-out transaction.
func (r *Repository) ListEnabledSchedulesTx(ctx context.Context, tx *sqlx.Tx) ([]models.Schedule, error) {
	var out []models.Schedule
	err := tx.SelectContext(ctx, &out, tx.Rebind(`SELECT * FROM batch_schedule WHERE enabled = ? ORDER BY id`), 1)
	return out, err
}

// AdvanceLastFireTx moves a schedule's last-fire watermark to the given instant.
func (r *Repository) AdvanceLastFireTx(ctx context.Context, tx *sqlx.Tx, id int64, t time.Time) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE batch_schedule SET last_fire_at = ? WHERE id = ?`), t, id)
	return err
}

// Task Operations

// CreateTask inserts an ad-hoc PENDING task and returns its id. Cron-born
// tasks go through InsertTaskIfAbsentTx instead so the ticket constraint can
// collapse duplicate firings.
func (r *Repository) CreateTask(ctx context.Context, typ string, payload *string, priority int, notBefore *time.Time) (int64, error) {
	now := time.Now()
	const q = `INSERT INTO batch_task
		(type, payload, priority, status, attempts, max_attempts, not_before, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, 3, ?, ?, ?)`
	return insertReturningID(ctx, r.db.DB, r.db.Driver, q,
		typ, payload, priority, models.TaskStatusPending, notBefore, now, now)
}

// InsertTaskIfAbsentTx performs the conditional ticket insert that makes cron
// fan-out idempotent. Returns the number of rows inserted: 0 means a task for
// this ticket already exists and the firing collapses to a no-op.
func (r *Repository) InsertTaskIfAbsentTx(ctx context.Context, tx *sqlx.Tx, ticket, typ string, payload *string, priority int, notBefore time.Time, scheduleID int64) (int64, error) {
	now := time.Now()
	const q = `INSERT INTO batch_task
		(ticket_no, type, payload, priority, status, attempts, max_attempts, not_before, schedule_id, created_at, updated_at)
		SELECT ?, ?, ?, ?, ?, 0, 3, ?, ?, ?, ?
		WHERE NOT EXISTS (SELECT 1 FROM batch_task WHERE ticket_no = ?)`
	res, err := tx.ExecContext(ctx, tx.Rebind(q),
		ticket, typ, payload, priority, models.TaskStatusPending, notBefore, scheduleID, now, now, ticket)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetTask retrieves a task by id. Returns nil without error when no row exists.
func (r *Repository) GetTask(ctx context.Context, id int64) (*models.Task, error) {
	var t models.Task
	err := r.db.DB.GetContext(ctx, &t, r.db.Rebind(`SELECT * FROM batch_task WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTasks lists tasks newest-first with an optional status filter.
func (r *Repository) ListTasks(ctx context.Context, status string, limit, offset int) ([]models.Task, int64, error) {
	var (
		total int64
		out   []models.Task
	)
	if status != "" {
		if err := r.db.DB.GetContext(ctx, &total, r.db.Rebind(`SELECT COUNT(*) FROM batch_task WHERE status = ?`), status); err != nil {
			return nil, 0, err
		}
		err := r.db.DB.SelectContext(ctx, &out,
			r.db.Rebind(`SELECT * FROM batch_task WHERE status = ? ORDER BY id DESC LIMIT ? OFFSET ?`),
			status, limit, offset)
		return out, total, err
	}
	if err := r.db.DB.GetContext(ctx, &total, `SELECT COUNT(*) FROM batch_task`); err != nil {
		return nil, 0, err
	}
	err := r.db.DB.SelectContext(ctx, &out,
		r.db.Rebind(`SELECT * FROM batch_task ORDER BY id DESC LIMIT ? OFFSET ?`), limit, offset)
	return out, total, err
}

// DeleteTask removes a task row. Callers must refuse RUNNING and
// CANCEL_REQUESTED tasks before calling.
func (r *Repository) DeleteTask(ctx context.Context, id int64) error {
	_, err := r.db.DB.ExecContext(ctx, r.db.Rebind(`DELETE FROM batch_task WHERE id = ?`), id)
	return err
}

// CancelPendingTask cancels a task that has not started. The status guard
// makes the update a no-op when a poller claimed the row in between.
func (r *Repository) CancelPendingTask(ctx context.Context, id int64) (int64, error) {
	const q = `UPDATE batch_task SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	res, err := r.db.DB.ExecContext(ctx, r.db.Rebind(q),
		models.TaskStatusCanceled, time.Now(), id, models.TaskStatusPending)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RequestCancel flags a RUNNING task for cooperative cancellation. The engine
// observes the flag at its next checkpoint and finishes the task as CANCELED.
func (r *Repository) RequestCancel(ctx context.Context, id int64) (int64, error) {
	const q = `UPDATE batch_task SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	res, err := r.db.DB.ExecContext(ctx, r.db.Rebind(q),
		models.TaskStatusCancelRequested, time.Now(), id, models.TaskStatusRunning)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// TaskStatusCounts aggregates task counts per status.
func (r *Repository) TaskStatusCounts(ctx context.Context) (*models.StatusCounts, error) {
	rows, err := r.db.DB.QueryxContext(ctx, `SELECT status, COUNT(*) AS n FROM batch_task GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts models.StatusCounts
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		switch models.TaskStatus(status) {
		case models.TaskStatusPending:
			counts.Pending = n
		case models.TaskStatusRunning:
			counts.Running = n
		case models.TaskStatusSucceed:
			counts.Succeed = n
		case models.TaskStatusFailed:
			counts.Failed = n
		case models.TaskStatusCanceled:
			counts.Canceled = n
		case models.TaskStatusCancelRequested:
			counts.CancelRequested = n
		}
	}
	return &counts, rows.Err()
}

// Run Operations

// GetRun retrieves a run by id. Returns nil without error when no row exists.
func (r *Repository) GetRun(ctx context.Context, id int64) (*models.Run, error) {
	var run models.Run
	err := r.db.DB.GetContext(ctx, &run, r.db.Rebind(`SELECT * FROM batch_run WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRunsByTask lists execution attempts for a task, newest-first.
func (r *Repository) ListRunsByTask(ctx context.Context, taskID int64) ([]models.Run, error) {
	var out []models.Run
	err := r.db.DB.SelectContext(ctx, &out,
		r.db.Rebind(`SELECT * FROM batch_run WHERE task_id = ? ORDER BY id DESC`), taskID)
	return out, err
}

// Operation Log Operations

// ListOperationsByRun lists compensation entries for a run in recording order.
func (r *Repository) ListOperationsByRun(ctx context.Context, runID int64) ([]models.OperationLog, error) {
	var out []models.OperationLog
	err := r.db.DB.SelectContext(ctx, &out,
		r.db.Rebind(`SELECT * FROM batch_operation_log WHERE run_id = ? ORDER BY seq_no ASC`), runID)
	return out, err
}
