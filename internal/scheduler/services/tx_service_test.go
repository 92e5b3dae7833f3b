package services

import (
	"context"
	"database/sql"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"go-batchd/internal/scheduler/models"
	"go-batchd/pkg/database"
)

const svcOwner = "local#test"

func newMySQLTxService(t *testing.T) (*TxService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t, database.DriverMySQL)
	picker, err := NewTaskPicker(db.Driver)
	if err != nil {
		t.Fatalf("failed to build picker: %v", err)
	}
	return NewTxService(db, picker), mock
}

func taskRows(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "type", "status", "priority", "attempts", "max_attempts", "created_at", "updated_at",
	}).AddRow(42, "code.index", "RUNNING", 0, 0, 3, now, now)
}

func TestClaimOne(t *testing.T) {
	t.Run("claims the locked row", func(t *testing.T) {
		svc, mock := newMySQLTxService(t)
		now := time.Now()

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE batch_task")).
			WithArgs(svcOwner, int64(42)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM batch_task WHERE id = ?")).
			WithArgs(int64(42)).
			WillReturnRows(taskRows(now))
		mock.ExpectCommit()

		task, err := svc.ClaimOne(context.Background(), svcOwner)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if task == nil || task.ID != 42 {
			t.Fatalf("expected task 42, got %+v", task)
		}
		if task.Status != models.TaskStatusRunning {
			t.Errorf("expected RUNNING status, got %s", task.Status)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})

	t.Run("returns nil when nothing is eligible", func(t *testing.T) {
		svc, mock := newMySQLTxService(t)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectCommit()

		task, err := svc.ClaimOne(context.Background(), svcOwner)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if task != nil {
			t.Errorf("expected nil task, got %+v", task)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})

	t.Run("returns nil when another poller wins the row", func(t *testing.T) {
		svc, mock := newMySQLTxService(t)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE batch_task")).
			WithArgs(svcOwner, int64(42)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		task, err := svc.ClaimOne(context.Background(), svcOwner)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if task != nil {
			t.Errorf("expected nil task after lost race, got %+v", task)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}

func TestCreateRun(t *testing.T) {
	svc, mock := newMySQLTxService(t)
	startedAt := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO batch_run (task_id, started_at, status) VALUES (?, ?, ?)")).
		WithArgs(int64(5), startedAt, "RUNNING").
		WillReturnResult(sqlmock.NewResult(77, 1))

	runID, err := svc.CreateRun(context.Background(), 5, startedAt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if runID != 77 {
		t.Errorf("expected run id 77, got %d", runID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestComplete(t *testing.T) {
	t.Run("writes SUCCEED to both tables", func(t *testing.T) {
		svc, mock := newMySQLTxService(t)
		finishAt := time.Now()
		message := "done"

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM batch_task WHERE id = ?")).
			WithArgs(int64(5)).
			WillReturnRows(taskRows(finishAt))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE batch_task SET status = ?, message = ?, finish_at = ?, updated_at = ? WHERE id = ?")).
			WithArgs("SUCCEED", message, finishAt, finishAt, int64(5)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE batch_run SET status = ?, ended_at = ?, message = ? WHERE id = ?")).
			WithArgs("SUCCEED", finishAt, message, int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		if err := svc.Complete(context.Background(), 5, 7, true, &message, finishAt, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})

	t.Run("final status override wins over succeed", func(t *testing.T) {
		svc, mock := newMySQLTxService(t)
		finishAt := time.Now()
		message := "Canceled before start"
		canceled := models.TaskStatusCanceled

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM batch_task WHERE id = ?")).
			WithArgs(int64(5)).
			WillReturnRows(taskRows(finishAt))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE batch_task SET status = ?")).
			WithArgs("CANCELED", message, finishAt, finishAt, int64(5)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE batch_run SET status = ?")).
			WithArgs("CANCELED", finishAt, message, int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		if err := svc.Complete(context.Background(), 5, 7, false, &message, finishAt, &canceled); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})

	t.Run("synthesizes a run row when the update misses", func(t *testing.T) {
		svc, mock := newMySQLTxService(t)
		finishAt := time.Now()

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM batch_task WHERE id = ?")).
			WithArgs(int64(5)).
			WillReturnRows(taskRows(finishAt))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE batch_task SET status = ?")).
			WithArgs("FAILED", nil, finishAt, finishAt, int64(5)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE batch_run SET status = ?")).
			WithArgs("FAILED", finishAt, nil, int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO batch_run (task_id, started_at, status, ended_at, message) VALUES (?, ?, ?, ?, ?)")).
			WithArgs(int64(5), finishAt, "FAILED", finishAt, nil).
			WillReturnResult(sqlmock.NewResult(78, 1))
		mock.ExpectCommit()

		if err := svc.Complete(context.Background(), 5, 7, false, nil, finishAt, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})

	t.Run("missing task is logged and ignored", func(t *testing.T) {
		svc, mock := newMySQLTxService(t)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM batch_task WHERE id = ?")).
			WithArgs(int64(5)).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectCommit()

		if err := svc.Complete(context.Background(), 5, 7, true, nil, time.Now(), nil); err != nil {
			t.Fatalf("expected nil error for a missing task, got %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}

func TestIsCancelRequested(t *testing.T) {
	tests := []struct {
		name   string
		status string
		noRow  bool
		want   bool
	}{
		{name: "cancel requested", status: "CANCEL_REQUESTED", want: true},
		{name: "still running", status: "RUNNING", want: false},
		{name: "missing task reads as not requested", noRow: true, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, mock := newMySQLTxService(t)
			q := mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM batch_task WHERE id = ?")).
				WithArgs(int64(5))
			if tt.noRow {
				q.WillReturnError(sql.ErrNoRows)
			} else {
				q.WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(tt.status))
			}

			got, err := svc.IsCancelRequested(context.Background(), 5)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("IsCancelRequested() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLogCompensation(t *testing.T) {
	expectLog := func(mock sqlmock.Sqlmock, runID int64, next int) {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("COALESCE(MAX(seq_no), 0) + 1")).
			WithArgs(runID).
			WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(next))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO batch_operation_log")).
			WithArgs(runID, next, "file.restore", `{"file":"a.txt"}`, "PENDING", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()
	}

	t.Run("explicit run id", func(t *testing.T) {
		svc, mock := newMySQLTxService(t)
		expectLog(mock, 7, 3)

		if err := svc.LogCompensation(context.Background(), 7, "file.restore", `{"file":"a.txt"}`); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})

	t.Run("falls back to the run id bound to the context", func(t *testing.T) {
		svc, mock := newMySQLTxService(t)
		expectLog(mock, 9, 1)

		ctx := models.WithRunID(context.Background(), 9)
		if err := svc.LogCompensation(ctx, 0, "file.restore", `{"file":"a.txt"}`); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})

	t.Run("fails without any run id", func(t *testing.T) {
		svc, _ := newMySQLTxService(t)

		err := svc.LogCompensation(context.Background(), 0, "file.restore", `{}`)
		if err == nil || !strings.Contains(err.Error(), "no run id bound") {
			t.Errorf("expected a missing run id error, got %v", err)
		}
	})
}

func TestFetchCompensationsDesc(t *testing.T) {
	svc, mock := newMySQLTxService(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "run_id", "seq_no", "action_type", "action_payload", "status", "attempts", "created_at", "updated_at",
	}).
		AddRow(22, 7, 2, "file.restore", `{"file":"b.txt"}`, "PENDING", 0, now, now).
		AddRow(21, 7, 1, "file.restore", `{"file":"a.txt"}`, "PENDING", 0, now, now)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY seq_no DESC")).
		WithArgs(int64(7)).
		WillReturnRows(rows)

	ops, err := svc.FetchCompensationsDesc(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(ops))
	}
	if ops[0].SeqNo != 2 || ops[1].SeqNo != 1 {
		t.Errorf("expected descending seq order, got %d then %d", ops[0].SeqNo, ops[1].SeqNo)
	}
	if ops[0].ActionType == nil || *ops[0].ActionType != "file.restore" {
		t.Errorf("unexpected action type %v", ops[0].ActionType)
	}
}

func TestMarkCompensationDone(t *testing.T) {
	t.Run("marks the entry", func(t *testing.T) {
		svc, mock := newMySQLTxService(t)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE batch_operation_log SET status = ?, updated_at = ? WHERE id = ?")).
			WithArgs("DONE", sqlmock.AnyArg(), int64(21)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		if err := svc.MarkCompensationDone(context.Background(), 21); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("missing entry is an error", func(t *testing.T) {
		svc, mock := newMySQLTxService(t)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE batch_operation_log SET status = ?, updated_at = ? WHERE id = ?")).
			WithArgs("DONE", sqlmock.AnyArg(), int64(21)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := svc.MarkCompensationDone(context.Background(), 21)
		if err == nil || !strings.Contains(err.Error(), "operation log not found: 21") {
			t.Errorf("expected a not-found error, got %v", err)
		}
	})
}

func TestMarkCompensationFailed(t *testing.T) {
	svc, mock := newMySQLTxService(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE batch_operation_log SET status = ?, attempts = attempts + 1, last_error = ?, updated_at = ? WHERE id = ?")).
		WithArgs("FAILED", "undo blew up", sqlmock.AnyArg(), int64(21)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := svc.MarkCompensationFailed(context.Background(), 21, "undo blew up"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
