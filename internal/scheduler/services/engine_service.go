package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"go-batchd/internal/scheduler/models"
)

// TaskStore is the transactional surface the engine drives. *TxService
// implements it; tests substitute fakes.
type TaskStore interface {
	ClaimOne(ctx context.Context, owner string) (*models.Task, error)
	CreateRun(ctx context.Context, taskID int64, startedAt time.Time) (int64, error)
	Complete(ctx context.Context, taskID, runID int64, succeed bool, message *string, finishAt time.Time, finalStatus *models.TaskStatus) error
	IsCancelRequested(ctx context.Context, taskID int64) (bool, error)
	FetchCompensationsDesc(ctx context.Context, runID int64) ([]models.OperationLog, error)
	MarkCompensationDone(ctx context.Context, opID int64) error
	MarkCompensationFailed(ctx context.Context, opID int64, lastError string) error
}

// EngineService drives the dispatch pipeline: claim a task, execute its
// runner on the worker pool, and write the outcome back. Failed executions
// replay their recorded compensation entries in reverse order before the
// final write-back.
type EngineService struct {
	store        TaskStore
	registry     *RunnerRegistry
	compensators *CompensatorRegistry
	pool         *WorkerPool
	owner        string

	mu      sync.RWMutex
	running map[int64]*executionHandle
}

// executionHandle tracks one in-flight execution so operators can interrupt it.
type executionHandle struct {
	runID  int64
	cancel context.CancelFunc
}

// NewEngineService creates a new engine instance
func NewEngineService(store TaskStore, registry *RunnerRegistry, compensators *CompensatorRegistry, pool *WorkerPool) *EngineService {
	return &EngineService{
		store:        store,
		registry:     registry,
		compensators: compensators,
		pool:         pool,
		owner:        fmt.Sprintf("local#%d#%s", os.Getpid(), uuid.New().String()[:8]),
		running:      make(map[int64]*executionHandle),
	}
}

// Owner returns the claim owner string for this process.
func (e *EngineService) Owner() string {
	return e.owner
}

// PollAndRunOnce claims at most one eligible task and hands it to the worker
// pool. Returns true when a task was dispatched, false when nothing was
// eligible or another poller won the claim.
func (e *EngineService) PollAndRunOnce(ctx context.Context) bool {
	task, err := e.store.ClaimOne(ctx, e.owner)
	if err != nil {
		slog.Error("Failed to claim task", slog.String("error", err.Error()))
		return false
	}
	if task == nil {
		return false
	}

	runID, err := e.store.CreateRun(ctx, task.ID, time.Now())
	if err != nil {
		slog.Error("Failed to create run", slog.Int64("task_id", task.ID), slog.String("error", err.Error()))
		return false
	}

	taskID := task.ID
	typeCode := task.Type
	payload := safePayload(task.Payload)

	slog.Info("Submit task to pool", slog.Int64("task_id", taskID), slog.String("type", typeCode))

	// Register the handle before submitting: under caller-runs saturation the
	// job may execute inline and finish before Submit returns.
	execCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.running[taskID] = &executionHandle{runID: runID, cancel: cancel}
	e.mu.Unlock()

	e.pool.Submit(func() {
		e.executeAndComplete(execCtx, taskID, typeCode, payload, runID)
	})
	return true
}

// executeAndComplete runs one claimed task to its final state. The completion
// write-back happens exactly once, whatever path the execution takes.
func (e *EngineService) executeAndComplete(ctx context.Context, taskID int64, typeCode, payload string, runID int64) {
	var (
		succeed     bool
		errMsg      *string
		finalStatus *models.TaskStatus
	)

	// Bind the run id so runners can record compensation entries through the
	// context alone.
	ctx = models.WithRunID(ctx, runID)

	defer func() {
		// The write-back and cleanup must happen even when the execution
		// context is already canceled.
		finishCtx := context.WithoutCancel(ctx)
		if err := e.store.Complete(finishCtx, taskID, runID, succeed, errMsg, time.Now(), finalStatus); err != nil {
			slog.Error("Failed to complete task",
				slog.Int64("task_id", taskID),
				slog.Int64("run_id", runID),
				slog.String("error", err.Error()))
		}
		e.mu.Lock()
		if h, ok := e.running[taskID]; ok {
			h.cancel()
			delete(e.running, taskID)
		}
		e.mu.Unlock()
	}()

	slog.Info("Start execute task",
		slog.Int64("task_id", taskID),
		slog.String("type", typeCode),
		slog.Int64("run_id", runID))

	execErr := func() error {
		requested, err := e.store.IsCancelRequested(ctx, taskID)
		if err != nil {
			return err
		}
		if requested {
			finalStatus = statusPtr(models.TaskStatusCanceled)
			errMsg = strPtr("Canceled before start")
			return nil
		}

		runner, ok := e.registry.Resolve(typeCode)
		if !ok {
			return fmt.Errorf("no runner for type=%s", typeCode)
		}

		requested, err = e.store.IsCancelRequested(ctx, taskID)
		if err != nil {
			return err
		}
		if requested {
			finalStatus = statusPtr(models.TaskStatusCanceled)
			errMsg = strPtr("Canceled right before start")
			return nil
		}
		if ctx.Err() != nil {
			finalStatus = statusPtr(models.TaskStatusCanceled)
			errMsg = strPtr("Interrupted before start")
			return nil
		}

		if !json.Valid([]byte(payload)) {
			return fmt.Errorf("invalid task payload json for type=%s", typeCode)
		}
		return e.runHandler(ctx, runner, payload)
	}()

	switch {
	case execErr == nil && finalStatus == nil:
		succeed = true
		finalStatus = statusPtr(models.TaskStatusSucceed)

	case execErr == nil:
		// Cooperative cancellation observed before the handler started.

	case errors.Is(execErr, context.Canceled):
		// Interrupted mid-execution: finish as CANCELED without compensation,
		// matching a cancel request honored by the handler.
		slog.Warn("Task interrupted", slog.Int64("task_id", taskID))
		finalStatus = statusPtr(models.TaskStatusCanceled)
		errMsg = strPtr("Interrupted during execution")

	default:
		slog.Error("Task failed", slog.Int64("task_id", taskID), slog.String("error", execErr.Error()))
		errMsg = strPtr(trimMessage(execErr.Error()))
		if finalStatus == nil {
			finalStatus = statusPtr(models.TaskStatusFailed)
		}

		// Best-effort compensation; replay infrastructure errors are appended
		// to the task message so they surface with the failure.
		if compErr := e.replayCompensations(context.WithoutCancel(ctx), runID); compErr != nil {
			trimmed := trimMessage(compErr.Error())
			slog.Error("Compensation process error",
				slog.Int64("run_id", runID),
				slog.String("error", trimmed))
			combined := "CompensationError: " + trimmed
			if errMsg != nil {
				combined = *errMsg + " | " + combined
			}
			errMsg = strPtr(trimMessage(combined))
		}
	}
}

// runHandler invokes the runner, converting panics into errors so one bad
// handler cannot take the worker down.
func (e *EngineService) runHandler(ctx context.Context, runner models.Runner, payload string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("runner panic: %v", rec)
		}
	}()
	return runner.InitJob(ctx, json.RawMessage(payload))
}

// runCompensator invokes a compensator with the same panic guard.
func (e *EngineService) runCompensator(ctx context.Context, c models.Compensator, runID int64, payload json.RawMessage) (ok bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
			err = fmt.Errorf("compensator panic: %v", rec)
		}
	}()
	return c.Compensate(ctx, runID, payload)
}

// replayCompensations walks a run's PENDING compensation entries in reverse
// sequence order and invokes the matching compensator for each. Individual
// entry failures are recorded and replay continues; the returned error is
// reserved for infrastructure failures that abort the replay itself.
func (e *EngineService) replayCompensations(ctx context.Context, runID int64) error {
	slog.Info("Start compensation", slog.Int64("run_id", runID))

	ops, err := e.store.FetchCompensationsDesc(ctx, runID)
	if err != nil {
		return err
	}
	if len(ops) == 0 {
		slog.Info("No compensation entries", slog.Int64("run_id", runID))
		return nil
	}

	for _, op := range ops {
		if !strings.EqualFold(string(op.Status), string(models.OperationStatusPending)) {
			slog.Debug("Skip compensation entry",
				slog.Int64("op_id", op.ID),
				slog.String("status", string(op.Status)))
			continue
		}

		if op.ActionType == nil {
			if err := e.store.MarkCompensationFailed(ctx, op.ID, "MISSING_ACTION_TYPE"); err != nil {
				return err
			}
			continue
		}
		actionType := *op.ActionType

		comp := e.compensators.Get(actionType)
		if comp == nil {
			msg := "No compensator registered for actionType=" + actionType
			slog.Warn("Compensation entry has no compensator",
				slog.Int64("op_id", op.ID),
				slog.String("action_type", actionType))
			if err := e.store.MarkCompensationFailed(ctx, op.ID, msg); err != nil {
				return err
			}
			continue
		}

		var payload json.RawMessage
		if op.ActionPayload != nil && json.Valid([]byte(*op.ActionPayload)) {
			payload = json.RawMessage(*op.ActionPayload)
		} else {
			e.markFailedBestEffort(ctx, op.ID, "invalid action payload json")
			continue
		}

		ok, compErr := e.runCompensator(ctx, comp, runID, payload)
		switch {
		case compErr != nil:
			em := trimMessage(compErr.Error())
			slog.Error("Compensation error",
				slog.Int64("op_id", op.ID),
				slog.String("action_type", actionType),
				slog.String("error", em))
			e.markFailedBestEffort(ctx, op.ID, em)

		case ok:
			if err := e.store.MarkCompensationDone(ctx, op.ID); err != nil {
				e.markFailedBestEffort(ctx, op.ID, trimMessage(err.Error()))
				continue
			}
			slog.Info("Compensation done",
				slog.Int64("op_id", op.ID),
				slog.String("action_type", actionType))

		default:
			slog.Warn("Compensation returned false",
				slog.Int64("op_id", op.ID),
				slog.String("action_type", actionType))
			e.markFailedBestEffort(ctx, op.ID, "COMPENSATE_RETURNED_FALSE")
		}
	}

	slog.Info("Compensation finished", slog.Int64("run_id", runID))
	return nil
}

func (e *EngineService) markFailedBestEffort(ctx context.Context, opID int64, msg string) {
	if err := e.store.MarkCompensationFailed(ctx, opID, msg); err != nil {
		slog.Error("Failed to mark compensation entry failed",
			slog.Int64("op_id", opID),
			slog.String("error", err.Error()))
	}
}

// IsRunning reports whether this process is currently executing the task.
func (e *EngineService) IsRunning(taskID int64) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.running[taskID]
	return ok
}

// InterruptIfRunning cancels the execution context of a task running in this
// process. Returns false when the task is not running here.
func (e *EngineService) InterruptIfRunning(taskID int64) bool {
	e.mu.RLock()
	h, ok := e.running[taskID]
	e.mu.RUnlock()
	if !ok {
		return false
	}
	h.cancel()
	return true
}

// RunningIDs returns the ids of tasks executing in this process, sorted.
func (e *EngineService) RunningIDs() []int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]int64, 0, len(e.running))
	for id := range e.running {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Stats returns a snapshot of the in-process engine state.
func (e *EngineService) Stats() models.EngineStats {
	ids := e.RunningIDs()
	return models.EngineStats{
		RunningTasks: len(ids),
		RunningIDs:   ids,
		PoolSize:     e.pool.Size(),
		Owner:        e.owner,
		RunnerTypes:  e.registry.AvailableTypes(),
	}
}

var collapseWhitespace = regexp.MustCompile(`\s+`)

// trimMessage collapses whitespace and caps the message so it always fits the
// storage column.
func trimMessage(m string) string {
	m = strings.TrimSpace(collapseWhitespace.ReplaceAllString(m, " "))
	if utf8.RuneCountInString(m) > 1900 {
		runes := []rune(m)
		m = string(runes[:1900])
	}
	return m
}

// safePayload substitutes an empty JSON object for missing payloads.
func safePayload(p *string) string {
	if p == nil || strings.TrimSpace(*p) == "" {
		return "{}"
	}
	return *p
}

func strPtr(s string) *string {
	return &s
}

func statusPtr(s models.TaskStatus) *models.TaskStatus {
	return &s
}
