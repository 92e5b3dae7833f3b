package dto

import (
	"time"

	"go-batchd/internal/scheduler/models"
)

// ScheduleListResponse lists all schedules.
type ScheduleListResponse struct {
	Schedules []models.Schedule `json:"schedules"`
	Total     int               `json:"total"`
}

// ScheduleCreateResponse returns the id of a created schedule.
type ScheduleCreateResponse struct {
	ID int64 `json:"id"`
}

// TaskListResponse lists tasks with pagination totals.
type TaskListResponse struct {
	Tasks  []models.Task `json:"tasks"`
	Total  int64         `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// TaskEnqueueResponse returns the id of an enqueued task.
type TaskEnqueueResponse struct {
	ID int64 `json:"id"`
}

// CancelResponse reports what a cancel request did: canceled outright,
// requested cooperative cancellation, or found nothing to cancel.
type CancelResponse struct {
	ID      int64             `json:"id"`
	Outcome string            `json:"outcome"`
	Status  models.TaskStatus `json:"status"`
}

// DeleteResponse confirms a deletion.
type DeleteResponse struct {
	ID int64 `json:"id"`
}

// RunListResponse lists the execution attempts of a task.
type RunListResponse struct {
	Runs  []models.Run `json:"runs"`
	Total int          `json:"total"`
}

// OperationListResponse lists the compensation entries of a run.
type OperationListResponse struct {
	Operations []models.OperationLog `json:"operations"`
	Total      int                   `json:"total"`
}

// ManualRunResponse reports the outcome of a synchronous manual run.
type ManualRunResponse struct {
	OK      bool   `json:"ok"`
	Type    string `json:"type"`
	Payload string `json:"payload"`
	CostMS  int64  `json:"cost_ms"`
	Error   string `json:"error,omitempty"`
}

// StatusResponse reports module health.
type StatusResponse struct {
	Module   string `json:"module"`
	Status   string `json:"status"`
	Version  string `json:"version"`
	Database string `json:"database"`
	Redis    string `json:"redis"`
}

// StatsResponse aggregates store-wide task counts with this process's
// engine snapshot.
type StatsResponse struct {
	Counts      models.StatusCounts `json:"counts"`
	Engine      models.EngineStats  `json:"engine"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// ConsoleData is everything the HTML console page renders.
type ConsoleData struct {
	Schedules []models.Schedule
	Tasks     []models.Task
	Runners   []string
}

// Huma output wrappers

type ScheduleListOutput struct {
	Body ScheduleListResponse
}

type ScheduleCreateOutput struct {
	Body ScheduleCreateResponse
}

type ScheduleGetOutput struct {
	Body models.Schedule
}

type ScheduleDeleteOutput struct {
	Body DeleteResponse
}

type ScheduleToggleOutput struct {
	Body models.Schedule
}

type TaskListOutput struct {
	Body TaskListResponse
}

type TaskGetOutput struct {
	Body models.Task
}

type TaskEnqueueOutput struct {
	Body TaskEnqueueResponse
}

type TaskCancelOutput struct {
	Body CancelResponse
}

type TaskDeleteOutput struct {
	Body DeleteResponse
}

type RunListOutput struct {
	Body RunListResponse
}

type OperationListOutput struct {
	Body OperationListResponse
}

type ManualRunOutput struct {
	Body ManualRunResponse
}

type StatusOutput struct {
	Body StatusResponse
}

type StatsOutput struct {
	Body StatsResponse
}
