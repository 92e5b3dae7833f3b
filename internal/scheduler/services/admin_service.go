package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go-batchd/internal/scheduler/dto"
	"go-batchd/internal/scheduler/models"
	"go-batchd/pkg/database"
	"go-batchd/pkg/version"
)

// Sentinel errors the HTTP surfaces translate into user-facing messages.
var (
	ErrUnknownType      = errors.New("unknown task type")
	ErrBadPayload       = errors.New("payload is not valid json")
	ErrBadNotBefore     = errors.New("invalid not-before format")
	ErrTaskNotFound     = errors.New("task not found")
	ErrScheduleNotFound = errors.New("schedule not found")
	ErrTaskActive       = errors.New("task is running or waiting for cancellation")
	ErrScheduleHasTasks = errors.New("schedule has linked tasks")
)

// CancelOutcome describes what a cancel request did.
type CancelOutcome string

const (
	CancelOutcomeCanceled  CancelOutcome = "canceled"
	CancelOutcomeRequested CancelOutcome = "cancel_requested"
	CancelOutcomeNothing   CancelOutcome = "nothing_to_cancel"
)

// CancelResult carries the outcome and the task status it was decided on.
type CancelResult struct {
	Outcome CancelOutcome
	Status  models.TaskStatus
}

// NormalizePayload trims a payload and substitutes "{}" when empty, the same
// normalization the engine applies before invoking a runner.
func NormalizePayload(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "{}"
	}
	return p
}

// checkPayload parses p and wraps any syntax error in ErrBadPayload so the
// HTTP surfaces can show the parser's detail to the operator.
func checkPayload(p string) error {
	var raw json.RawMessage
	if err := json.Unmarshal([]byte(p), &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}

// AdminService implements the operator surface shared by the HTML console and
// the JSON API: schedule and task management, manual runs, status and stats.
type AdminService struct {
	repo     *Repository
	engine   *EngineService
	registry *RunnerRegistry
	cache    *SchedulerCache
	db       *database.SQL
	redis    *database.Redis
}

// NewAdminService creates a new admin service instance
func NewAdminService(repo *Repository, engine *EngineService, registry *RunnerRegistry, cache *SchedulerCache, db *database.SQL, redis *database.Redis) *AdminService {
	return &AdminService{
		repo:     repo,
		engine:   engine,
		registry: registry,
		cache:    cache,
		db:       db,
		redis:    redis,
	}
}

// RunnerTypes returns the task type codes operators may use.
func (s *AdminService) RunnerTypes() []string {
	return s.registry.AvailableTypes()
}

// ConsoleData loads everything the console page renders.
func (s *AdminService) ConsoleData(ctx context.Context) (*dto.ConsoleData, error) {
	schedules, err := s.repo.ListSchedules(ctx)
	if err != nil {
		return nil, err
	}
	tasks, _, err := s.repo.ListTasks(ctx, "", 200, 0)
	if err != nil {
		return nil, err
	}
	return &dto.ConsoleData{
		Schedules: schedules,
		Tasks:     tasks,
		Runners:   s.registry.AvailableTypes(),
	}, nil
}

// ManualRun executes a runner synchronously with the given payload, without a
// task row, a run row, or compensation records. Meant for smoke-testing a
// runner wiring before scheduling it.
func (s *AdminService) ManualRun(ctx context.Context, typeCode, payload string) error {
	runner, ok := s.registry.Resolve(typeCode)
	if !ok {
		return ErrUnknownType
	}
	payload = NormalizePayload(payload)
	if err := checkPayload(payload); err != nil {
		return err
	}
	return runner.InitJob(ctx, json.RawMessage(payload))
}

// CreateSchedule validates and stores a new cron schedule. The cron
// expression itself is not parsed here: fan-out warns and skips unparsable
// expressions, so creation never blocks on one.
func (s *AdminService) CreateSchedule(ctx context.Context, typeCode, cronExpr, payload string, enabled *int) (int64, error) {
	if !s.registry.HasRunner(typeCode) {
		return 0, ErrUnknownType
	}
	payload = NormalizePayload(payload)
	if err := checkPayload(payload); err != nil {
		return 0, err
	}
	en := 1
	if enabled != nil {
		en = *enabled
	}
	id, err := s.repo.CreateSchedule(ctx, typeCode, strings.TrimSpace(cronExpr), &payload, en)
	if err != nil {
		return 0, err
	}
	slog.Info("Schedule created", slog.Int64("schedule_id", id), slog.String("type", typeCode))
	return id, nil
}

// ListSchedules returns all schedules.
func (s *AdminService) ListSchedules(ctx context.Context) ([]models.Schedule, error) {
	return s.repo.ListSchedules(ctx)
}

// GetSchedule returns one schedule.
func (s *AdminService) GetSchedule(ctx context.Context, id int64) (*models.Schedule, error) {
	sched, err := s.repo.GetSchedule(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrScheduleNotFound
	}
	if err != nil {
		return nil, err
	}
	return sched, nil
}

// ToggleSchedule flips the enabled flag and returns the updated schedule.
func (s *AdminService) ToggleSchedule(ctx context.Context, id int64, enabled bool) (*models.Schedule, error) {
	en := 0
	if enabled {
		en = 1
	}
	rows, err := s.repo.SetScheduleEnabled(ctx, id, en)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrScheduleNotFound
	}
	return s.repo.GetSchedule(ctx, id)
}

// DeleteSchedule removes a schedule with no linked tasks. When tasks still
// reference it, the linked-task count is returned with ErrScheduleHasTasks.
func (s *AdminService) DeleteSchedule(ctx context.Context, id int64) (int64, error) {
	if _, err := s.repo.GetSchedule(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrScheduleNotFound
		}
		return 0, err
	}
	n, err := s.repo.CountTasksBySchedule(ctx, id)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return n, ErrScheduleHasTasks
	}
	if err := s.repo.DeleteSchedule(ctx, id); err != nil {
		return 0, err
	}
	slog.Info("Schedule deleted", slog.Int64("schedule_id", id))
	return 0, nil
}

// EnqueueTask validates and inserts an ad-hoc PENDING task.
func (s *AdminService) EnqueueTask(ctx context.Context, typeCode, payload string, priority int, notBefore string) (int64, error) {
	if !s.registry.HasRunner(typeCode) {
		return 0, ErrUnknownType
	}
	payload = NormalizePayload(payload)
	if err := checkPayload(payload); err != nil {
		return 0, err
	}
	nb, err := dto.NormalizeNotBefore(notBefore)
	if err != nil {
		return 0, ErrBadNotBefore
	}
	id, err := s.repo.CreateTask(ctx, typeCode, &payload, priority, nb)
	if err != nil {
		return 0, err
	}
	s.invalidateStats(ctx)
	slog.Info("Task enqueued", slog.Int64("task_id", id), slog.String("type", typeCode))
	return id, nil
}

// ListTasks returns tasks newest-first with an optional status filter.
func (s *AdminService) ListTasks(ctx context.Context, status string, limit, offset int) ([]models.Task, int64, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListTasks(ctx, status, limit, offset)
}

// GetTask returns one task.
func (s *AdminService) GetTask(ctx context.Context, id int64) (*models.Task, error) {
	t, err := s.repo.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrTaskNotFound
	}
	return t, nil
}

// DeleteTask removes a task unless it is executing or waiting for its
// cancellation to be observed.
func (s *AdminService) DeleteTask(ctx context.Context, id int64) error {
	t, err := s.repo.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if t == nil {
		return ErrTaskNotFound
	}
	if t.Status == models.TaskStatusRunning || t.Status == models.TaskStatusCancelRequested {
		return ErrTaskActive
	}
	if err := s.repo.DeleteTask(ctx, id); err != nil {
		return err
	}
	s.invalidateStats(ctx)
	slog.Info("Task deleted", slog.Int64("task_id", id))
	return nil
}

// CancelTask cancels a PENDING task outright, requests cooperative
// cancellation of a RUNNING one, and reports nothing-to-cancel for terminal
// states. When the task is running in this process its execution context is
// canceled as well so blocking handlers unwind promptly.
func (s *AdminService) CancelTask(ctx context.Context, id int64) (*CancelResult, error) {
	t, err := s.repo.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrTaskNotFound
	}

	switch t.Status {
	case models.TaskStatusPending:
		rows, err := s.repo.CancelPendingTask(ctx, id)
		if err != nil {
			return nil, err
		}
		if rows > 0 {
			s.invalidateStats(ctx)
			slog.Info("Task canceled before start", slog.Int64("task_id", id))
			return &CancelResult{Outcome: CancelOutcomeCanceled, Status: models.TaskStatusCanceled}, nil
		}
		// A poller claimed the row in between; re-read and fall through.
		t, err = s.repo.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, ErrTaskNotFound
		}
		if t.Status == models.TaskStatusRunning {
			return s.requestCancel(ctx, id)
		}
		return &CancelResult{Outcome: CancelOutcomeNothing, Status: t.Status}, nil

	case models.TaskStatusRunning:
		return s.requestCancel(ctx, id)

	default:
		return &CancelResult{Outcome: CancelOutcomeNothing, Status: t.Status}, nil
	}
}

func (s *AdminService) requestCancel(ctx context.Context, id int64) (*CancelResult, error) {
	rows, err := s.repo.RequestCancel(ctx, id)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		t, err := s.repo.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, ErrTaskNotFound
		}
		return &CancelResult{Outcome: CancelOutcomeNothing, Status: t.Status}, nil
	}

	if s.engine.InterruptIfRunning(id) {
		slog.Info("Interrupted local execution", slog.Int64("task_id", id))
	}
	s.invalidateStats(ctx)
	slog.Info("Cancel requested for running task", slog.Int64("task_id", id))
	return &CancelResult{Outcome: CancelOutcomeRequested, Status: models.TaskStatusCancelRequested}, nil
}

// ListRuns returns the execution attempts of a task.
func (s *AdminService) ListRuns(ctx context.Context, taskID int64) ([]models.Run, error) {
	return s.repo.ListRunsByTask(ctx, taskID)
}

// ListOperations returns the compensation entries of a run.
func (s *AdminService) ListOperations(ctx context.Context, runID int64) ([]models.OperationLog, error) {
	return s.repo.ListOperationsByRun(ctx, runID)
}

// GetStatus reports module health with live dependency checks.
func (s *AdminService) GetStatus(ctx context.Context) *dto.StatusResponse {
	resp := &dto.StatusResponse{
		Module:   "scheduler",
		Status:   "healthy",
		Version:  version.GetVersionString(),
		Database: "healthy",
		Redis:    "disabled",
	}
	if err := s.db.HealthCheck(ctx); err != nil {
		resp.Status = "degraded"
		resp.Database = "unhealthy: " + err.Error()
	}
	if s.redis != nil {
		resp.Redis = "healthy"
		if err := s.redis.HealthCheck(ctx); err != nil {
			resp.Status = "degraded"
			resp.Redis = "unhealthy: " + err.Error()
		}
	}
	return resp
}

// GetStats returns store-wide task counts plus this process's engine
// snapshot, cached briefly to keep the console cheap under refresh.
func (s *AdminService) GetStats(ctx context.Context) (*dto.StatsResponse, error) {
	if cached, err := s.cache.GetStats(ctx); err == nil && cached != nil {
		return cached, nil
	}

	counts, err := s.repo.TaskStatusCounts(ctx)
	if err != nil {
		return nil, err
	}
	resp := &dto.StatsResponse{
		Counts:      *counts,
		Engine:      s.engine.Stats(),
		GeneratedAt: time.Now(),
	}
	if err := s.cache.SetStats(ctx, resp, 10*time.Second); err != nil {
		slog.Debug("Failed to cache stats", slog.String("error", err.Error()))
	}
	return resp, nil
}

func (s *AdminService) invalidateStats(ctx context.Context) {
	if err := s.cache.InvalidateStats(ctx); err != nil {
		slog.Debug("Failed to invalidate stats cache", slog.String("error", err.Error()))
	}
}
