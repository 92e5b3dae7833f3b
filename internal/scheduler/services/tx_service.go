package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go-batchd/internal/scheduler/models"
	"go-batchd/pkg/database"
)

// TxService owns the short transactions of the dispatch pipeline. Each method
// opens and commits its own transaction so that claim, run bookkeeping, and
// completion writes land independently of whatever state the engine is in.
type TxService struct {
	db     *database.SQL
	picker TaskPicker
}

// NewTxService creates a new transactional service instance
func NewTxService(db *database.SQL, picker TaskPicker) *TxService {
	return &TxService{db: db, picker: picker}
}

// ClaimOne atomically claims the next eligible PENDING task: lock one row with
// the vendor picker, flip it to RUNNING with this owner, and return the row.
// Returns nil when no task is eligible or another poller won the claim.
func (s *TxService) ClaimOne(ctx context.Context, owner string) (*models.Task, error) {
	tx, err := s.db.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	id, ok, err := s.picker.LockOnePendingID(ctx, tx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, tx.Commit()
	}

	updated, err := s.picker.MarkRunning(ctx, tx, id, owner)
	if err != nil {
		return nil, err
	}
	if updated == 0 {
		// Another instance won the row between lock and update.
		return nil, tx.Commit()
	}

	var task models.Task
	if err := tx.GetContext(ctx, &task, tx.Rebind(`SELECT * FROM batch_task WHERE id = ?`), id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &task, nil
}

// CreateRun records the start of an execution attempt and returns the run id.
func (s *TxService) CreateRun(ctx context.Context, taskID int64, startedAt time.Time) (int64, error) {
	const q = `INSERT INTO batch_run (task_id, started_at, status) VALUES (?, ?, ?)`
	return insertReturningID(ctx, s.db.DB, s.db.Driver, q, taskID, startedAt, models.RunStatusRunning)
}

// Complete writes the final state of a task and its run in one transaction.
// finalStatus overrides the succeed-derived status when set (the cancellation
// path finishes tasks as CANCELED regardless of handler outcome). A missing
// task row is logged and ignored; a missing run row is synthesized so the
// attempt is never lost.
func (s *TxService) Complete(ctx context.Context, taskID, runID int64, succeed bool, message *string, finishAt time.Time, finalStatus *models.TaskStatus) error {
	tx, err := s.db.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var task models.Task
	err = tx.GetContext(ctx, &task, tx.Rebind(`SELECT * FROM batch_task WHERE id = ?`), taskID)
	if errors.Is(err, sql.ErrNoRows) {
		slog.Warn("Task not found when completing", slog.Int64("task_id", taskID))
		return tx.Commit()
	}
	if err != nil {
		return err
	}

	statusToSet := models.TaskStatusFailed
	if finalStatus != nil {
		statusToSet = *finalStatus
	} else if succeed {
		statusToSet = models.TaskStatusSucceed
	}

	runStatus := models.RunStatusFailed
	if statusToSet == models.TaskStatusCanceled {
		runStatus = models.RunStatusCanceled
	} else if succeed {
		runStatus = models.RunStatusSucceed
	}

	const taskQ = `UPDATE batch_task SET status = ?, message = ?, finish_at = ?, updated_at = ? WHERE id = ?`
	if _, err := tx.ExecContext(ctx, tx.Rebind(taskQ), statusToSet, message, finishAt, finishAt, taskID); err != nil {
		return err
	}

	const runQ = `UPDATE batch_run SET status = ?, ended_at = ?, message = ? WHERE id = ?`
	res, err := tx.ExecContext(ctx, tx.Rebind(runQ), runStatus, finishAt, message, runID)
	if err != nil {
		return err
	}
	updated, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if updated == 0 {
		// Run row unexpectedly missing; synthesize one so the attempt is recorded.
		const synthQ = `INSERT INTO batch_run (task_id, started_at, status, ended_at, message) VALUES (?, ?, ?, ?, ?)`
		if _, err := tx.ExecContext(ctx, tx.Rebind(synthQ), taskID, finishAt, runStatus, finishAt, message); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// IsCancelRequested reads the cooperative cancellation flag. A missing task
// reads as not requested.
func (s *TxService) IsCancelRequested(ctx context.Context, taskID int64) (bool, error) {
	var status models.TaskStatus
	err := s.db.DB.GetContext(ctx, &status, s.db.Rebind(`SELECT status FROM batch_task WHERE id = ?`), taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return status == models.TaskStatusCancelRequested, nil
}

// LogCompensation appends a PENDING compensation entry for a run with the next
// sequence number. When runID is zero the run bound to ctx by the engine is
// used, so runners can record entries without carrying the id themselves.
func (s *TxService) LogCompensation(ctx context.Context, runID int64, actionType, actionPayload string) error {
	if runID == 0 {
		bound, ok := models.RunIDFrom(ctx)
		if !ok {
			return errors.New("no run id bound for compensation logging")
		}
		runID = bound
	}

	tx, err := s.db.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var next int
	const seqQ = `SELECT COALESCE(MAX(seq_no), 0) + 1 FROM batch_operation_log WHERE run_id = ?`
	if err := tx.GetContext(ctx, &next, tx.Rebind(seqQ), runID); err != nil {
		return err
	}

	now := time.Now()
	const insQ = `INSERT INTO batch_operation_log
		(run_id, seq_no, action_type, action_payload, status, attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)`
	if _, err := tx.ExecContext(ctx, tx.Rebind(insQ), runID, next, actionType, actionPayload, models.OperationStatusPending, now, now); err != nil {
		return err
	}

	return tx.Commit()
}

// FetchCompensationsDesc returns a run's compensation entries in reverse
// recording order, the order replay must follow.
func (s *TxService) FetchCompensationsDesc(ctx context.Context, runID int64) ([]models.OperationLog, error) {
	var out []models.OperationLog
	err := s.db.DB.SelectContext(ctx, &out,
		s.db.Rebind(`SELECT * FROM batch_operation_log WHERE run_id = ? ORDER BY seq_no DESC`), runID)
	return out, err
}

// MarkCompensationDone marks one entry as successfully undone.
func (s *TxService) MarkCompensationDone(ctx context.Context, opID int64) error {
	const q = `UPDATE batch_operation_log SET status = ?, updated_at = ? WHERE id = ?`
	res, err := s.db.DB.ExecContext(ctx, s.db.Rebind(q), models.OperationStatusDone, time.Now(), opID)
	if err != nil {
		return err
	}
	updated, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if updated == 0 {
		return fmt.Errorf("operation log not found: %d", opID)
	}
	return nil
}

// MarkCompensationFailed records a failed undo attempt with its error text.
func (s *TxService) MarkCompensationFailed(ctx context.Context, opID int64, lastError string) error {
	const q = `UPDATE batch_operation_log SET status = ?, attempts = attempts + 1, last_error = ?, updated_at = ? WHERE id = ?`
	res, err := s.db.DB.ExecContext(ctx, s.db.Rebind(q), models.OperationStatusFailed, lastError, time.Now(), opID)
	if err != nil {
		return err
	}
	updated, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if updated == 0 {
		return fmt.Errorf("operation log not found: %d", opID)
	}
	return nil
}
