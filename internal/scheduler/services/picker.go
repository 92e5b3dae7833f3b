package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"go-batchd/pkg/database"
)

// TaskPicker selects and claims one eligible task using vendor-specific
// row-locking SQL. Both methods must run inside the caller's transaction:
// the row lock taken by LockOnePendingID is only held until that
// transaction ends.
//
// The contract across concurrent pollers is that for any given task at most
// one of them observes MarkRunning returning 1.
type TaskPicker interface {
	// LockOnePendingID locks and returns the id of the highest-priority
	// eligible PENDING task, skipping rows locked by other pollers.
	// ok is false when no eligible row exists.
	LockOnePendingID(ctx context.Context, tx *sqlx.Tx) (id int64, ok bool, err error)

	// MarkRunning flips the locked row to RUNNING and stamps the owner.
	// Returns the number of rows updated (0 when the row was no longer
	// PENDING, 1 on a successful claim).
	MarkRunning(ctx context.Context, tx *sqlx.Tx, id int64, owner string) (int64, error)
}

// NewTaskPicker returns the picker for the configured database driver.
func NewTaskPicker(driver string) (TaskPicker, error) {
	switch driver {
	case database.DriverMySQL:
		return &mysqlTaskPicker{}, nil
	case database.DriverPostgres:
		return &postgresTaskPicker{}, nil
	default:
		return nil, fmt.Errorf("no task picker for driver %q", driver)
	}
}

type mysqlTaskPicker struct{}

func (p *mysqlTaskPicker) LockOnePendingID(ctx context.Context, tx *sqlx.Tx) (int64, bool, error) {
	const q = `SELECT id FROM batch_task
		WHERE status = 'PENDING'
		  AND (not_before IS NULL OR not_before <= CURRENT_TIMESTAMP(3))
		ORDER BY priority DESC, id ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`

	var id int64
	if err := tx.QueryRowxContext(ctx, q).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return id, true, nil
}

func (p *mysqlTaskPicker) MarkRunning(ctx context.Context, tx *sqlx.Tx, id int64, owner string) (int64, error) {
	const q = `UPDATE batch_task
		SET status = 'RUNNING', owner = ?, heartbeat_at = CURRENT_TIMESTAMP(3), updated_at = CURRENT_TIMESTAMP(3)
		WHERE id = ? AND status = 'PENDING'`

	res, err := tx.ExecContext(ctx, q, owner, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type postgresTaskPicker struct{}

func (p *postgresTaskPicker) LockOnePendingID(ctx context.Context, tx *sqlx.Tx) (int64, bool, error) {
	const q = `SELECT id FROM batch_task
		WHERE status = 'PENDING'
		  AND (not_before IS NULL OR not_before <= now())
		ORDER BY priority DESC, id ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`

	var id int64
	if err := tx.QueryRowxContext(ctx, q).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return id, true, nil
}

func (p *postgresTaskPicker) MarkRunning(ctx context.Context, tx *sqlx.Tx, id int64, owner string) (int64, error) {
	const q = `UPDATE batch_task
		SET status = 'RUNNING', owner = $1, heartbeat_at = now(), updated_at = now()
		WHERE id = $2 AND status = 'PENDING'`

	res, err := tx.ExecContext(ctx, q, owner, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
