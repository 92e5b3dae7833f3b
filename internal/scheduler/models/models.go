package models

import (
	"context"
	"encoding/json"
	"time"
)

// TaskStatus represents the lifecycle state of a batch task.
type TaskStatus string

const (
	TaskStatusPending         TaskStatus = "PENDING"
	TaskStatusRunning         TaskStatus = "RUNNING"
	TaskStatusSucceed         TaskStatus = "SUCCEED"
	TaskStatusFailed          TaskStatus = "FAILED"
	TaskStatusCanceled        TaskStatus = "CANCELED"
	TaskStatusCancelRequested TaskStatus = "CANCEL_REQUESTED"
)

// Terminal reports whether the status is final and the task will not run again.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusSucceed, TaskStatusFailed, TaskStatusCanceled:
		return true
	}
	return false
}

// RunStatus represents the outcome of a single execution attempt.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "RUNNING"
	RunStatusSucceed  RunStatus = "SUCCEED"
	RunStatusFailed   RunStatus = "FAILED"
	RunStatusCanceled RunStatus = "CANCELED"
)

// OperationStatus represents the state of a recorded compensation entry.
type OperationStatus string

const (
	OperationStatusPending OperationStatus = "PENDING"
	OperationStatusDone    OperationStatus = "DONE"
	OperationStatusFailed  OperationStatus = "FAILED"
)

// Task is one unit of work in the batch_task table. Cron-born tasks carry a
// schedule reference and a unique ticket; ad-hoc enqueues leave both null.
type Task struct {
	ID          int64      `db:"id" json:"id"`
	ScheduleID  *int64     `db:"schedule_id" json:"schedule_id,omitempty"`
	TicketNo    *string    `db:"ticket_no" json:"ticket_no,omitempty"`
	Type        string     `db:"type" json:"type"`
	Payload     *string    `db:"payload" json:"payload,omitempty"`
	Priority    int        `db:"priority" json:"priority"`
	Status      TaskStatus `db:"status" json:"status"`
	Attempts    int        `db:"attempts" json:"attempts"`
	MaxAttempts int        `db:"max_attempts" json:"max_attempts"`
	NotBefore   *time.Time `db:"not_before" json:"not_before,omitempty"`
	Owner       *string    `db:"owner" json:"owner,omitempty"`
	HeartbeatAt *time.Time `db:"heartbeat_at" json:"heartbeat_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
	FinishAt    *time.Time `db:"finish_at" json:"finish_at,omitempty"`
	Message     *string    `db:"message" json:"message,omitempty"`
}

// Schedule is a cron definition in the batch_schedule table. Enabled is an
// integer flag (1/0) rather than a boolean to match the storage column.
type Schedule struct {
	ID         int64      `db:"id" json:"id"`
	Type       string     `db:"type" json:"type"`
	Cron       string     `db:"cron" json:"cron"`
	Payload    *string    `db:"payload" json:"payload,omitempty"`
	Enabled    int        `db:"enabled" json:"enabled"`
	LastFireAt *time.Time `db:"last_fire_at" json:"last_fire_at,omitempty"`
}

// Run records a single execution attempt of a task in the batch_run table.
type Run struct {
	ID        int64      `db:"id" json:"id"`
	TaskID    int64      `db:"task_id" json:"task_id"`
	StartedAt time.Time  `db:"started_at" json:"started_at"`
	EndedAt   *time.Time `db:"ended_at" json:"ended_at,omitempty"`
	Status    RunStatus  `db:"status" json:"status"`
	Message   *string    `db:"message" json:"message,omitempty"`
}

// OperationLog is one compensation entry in the batch_operation_log table.
// Entries are recorded in ascending SeqNo while a run makes forward progress
// and replayed in descending SeqNo when the run fails.
type OperationLog struct {
	ID            int64           `db:"id" json:"id"`
	RunID         int64           `db:"run_id" json:"run_id"`
	SeqNo         int             `db:"seq_no" json:"seq_no"`
	ActionType    *string         `db:"action_type" json:"action_type,omitempty"`
	ActionPayload *string         `db:"action_payload" json:"action_payload,omitempty"`
	Status        OperationStatus `db:"status" json:"status"`
	Attempts      int             `db:"attempts" json:"attempts"`
	LastError     *string         `db:"last_error" json:"last_error,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// Runner executes one typed unit of work. Implementations must honor ctx
// cancellation: the engine cancels the context when an operator requests
// cancellation of a running task.
type Runner interface {
	InitJob(ctx context.Context, payload json.RawMessage) error
}

// Compensator undoes one recorded action during compensation replay.
// Compensate returns (true, nil) when the action was undone, (false, nil)
// when the entry should be marked failed without an error, and a non-nil
// error for infrastructure failures.
type Compensator interface {
	ActionType() string
	Compensate(ctx context.Context, runID int64, payload json.RawMessage) (bool, error)
}

// StatusCounts aggregates task counts per status for the status endpoint.
type StatusCounts struct {
	Pending         int64 `json:"pending"`
	Running         int64 `json:"running"`
	Succeed         int64 `json:"succeed"`
	Failed          int64 `json:"failed"`
	Canceled        int64 `json:"canceled"`
	CancelRequested int64 `json:"cancel_requested"`
}

// EngineStats is a point-in-time snapshot of the in-process engine.
type EngineStats struct {
	RunningTasks int      `json:"running_tasks"`
	RunningIDs   []int64  `json:"running_ids"`
	PoolSize     int      `json:"pool_size"`
	Owner        string   `json:"owner"`
	RunnerTypes  []string `json:"runner_types"`
}
