package scheduler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"

	"go-batchd/internal/scheduler/models"
	"go-batchd/pkg/database"
)

type nopRunner struct{}

func (nopRunner) InitJob(ctx context.Context, payload json.RawMessage) error { return nil }

type nopCompensator struct{}

func (nopCompensator) ActionType() string { return "file.restore" }
func (nopCompensator) Compensate(ctx context.Context, runID int64, payload json.RawMessage) (bool, error) {
	return true, nil
}

func newModuleDB(t *testing.T) (*database.SQL, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &database.SQL{DB: sqlx.NewDb(db, "sqlmock"), Driver: database.DriverMySQL}, mock
}

func newTestModule(t *testing.T) (*Module, sqlmock.Sqlmock) {
	t.Helper()
	t.Setenv("RUNNER_MAPPING_FILE", filepath.Join(t.TempDir(), "absent.properties"))
	db, mock := newModuleDB(t)
	m, err := New(db, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(m.Stop)
	return m, mock
}

func TestNewModule(t *testing.T) {
	m, _ := newTestModule(t)

	if m.Name() != "scheduler" {
		t.Errorf("Name() = %q, want scheduler", m.Name())
	}
	if m.TxService() == nil {
		t.Error("expected the transactional service to be exposed")
	}
}

func TestNewModuleRejectsUnknownDriver(t *testing.T) {
	db, _ := newModuleDB(t)
	db.Driver = "oracle"

	if _, err := New(db, nil); err == nil {
		t.Error("expected an error for an unsupported driver")
	}
}

func TestModuleRunnerWiring(t *testing.T) {
	m, _ := newTestModule(t)

	if err := m.RegisterRunner("code.index", nopRunner{}); err != nil {
		t.Fatalf("RegisterRunner() error = %v", err)
	}
	if err := m.RegisterRunnerFactory("scheduler.nopRunner", func() models.Runner { return nopRunner{} }); err != nil {
		t.Fatalf("RegisterRunnerFactory() error = %v", err)
	}
	if err := m.RegisterCompensator(nopCompensator{}); err != nil {
		t.Fatalf("RegisterCompensator() error = %v", err)
	}
	m.InitRunners()
}

func TestModuleConsoleRoute(t *testing.T) {
	m, mock := newTestModule(t)
	if err := m.RegisterRunner("code.index", nopRunner{}); err != nil {
		t.Fatal(err)
	}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM batch_schedule ORDER BY id`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "type", "cron", "payload", "enabled", "last_fire_at"}))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM batch_task`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM batch_task ORDER BY id DESC LIMIT ? OFFSET ?`)).
		WithArgs(200, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "type", "status", "priority", "attempts", "max_attempts", "created_at", "updated_at"}))

	r := chi.NewRouter()
	m.Routes(r)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
	body := w.Body.String()
	if !strings.Contains(body, "batchd console") {
		t.Error("expected the console page title")
	}
	if !strings.Contains(body, "<code>code.index</code>") {
		t.Error("expected the registered runner type to render")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestModuleLifecycle(t *testing.T) {
	m, _ := newTestModule(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Both loops must notice the dead context during their startup delay and
	// return without ever touching the database.
	m.StartBackgroundTasks(ctx)
	m.Stop()
	m.Stop() // idempotent
}
