package routes

import (
	"context"
	"errors"
	"time"

	"go-batchd/internal/scheduler/dto"
	"go-batchd/internal/scheduler/services"

	"github.com/danielgtaylor/huma/v2"
)

// RegisterSchedulerRoutes registers the scheduler JSON API on a shared Huma
// API. The form console in forms.go covers the same operations for browsers;
// this surface is for automation.
func RegisterSchedulerRoutes(api huma.API, basePath string, admin *services.AdminService) {
	huma.Register(api, huma.Operation{
		OperationID: "scheduler-get-status",
		Method:      "GET",
		Path:        basePath + "/status",
		Summary:     "Get scheduler module status",
		Description: "Returns the health of the scheduler module and its dependencies",
		Tags:        []string{"Module Status"},
	}, func(ctx context.Context, input *struct{}) (*dto.StatusOutput, error) {
		return &dto.StatusOutput{Body: *admin.GetStatus(ctx)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "scheduler-get-stats",
		Method:      "GET",
		Path:        basePath + "/stats",
		Summary:     "Get scheduler statistics",
		Description: "Task counts by status plus this process's engine snapshot",
		Tags:        []string{"Scheduler / Status"},
	}, func(ctx context.Context, input *struct{}) (*dto.StatsOutput, error) {
		stats, err := admin.GetStats(ctx)
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to get scheduler stats", err)
		}
		return &dto.StatsOutput{Body: *stats}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "scheduler-list-schedules",
		Method:      "GET",
		Path:        basePath + "/schedules",
		Summary:     "List cron schedules",
		Tags:        []string{"Scheduler / Schedules"},
	}, func(ctx context.Context, input *struct{}) (*dto.ScheduleListOutput, error) {
		schedules, err := admin.ListSchedules(ctx)
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to list schedules", err)
		}
		return &dto.ScheduleListOutput{Body: dto.ScheduleListResponse{
			Schedules: schedules,
			Total:     len(schedules),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "scheduler-create-schedule",
		Method:        "POST",
		Path:          basePath + "/schedules",
		Summary:       "Create a cron schedule",
		Description:   "Creates a schedule whose cron firings fan out into tasks",
		Tags:          []string{"Scheduler / Schedules"},
		DefaultStatus: 201,
	}, func(ctx context.Context, input *dto.CreateScheduleInput) (*dto.ScheduleCreateOutput, error) {
		if err := dto.Validate(&input.Body); err != nil {
			return nil, huma.Error400BadRequest("Invalid schedule request", err)
		}
		id, err := admin.CreateSchedule(ctx, input.Body.Type, input.Body.Cron, input.Body.Payload, input.Body.Enabled)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrUnknownType):
				return nil, huma.Error400BadRequest(MsgUnknownType(input.Body.Type))
			case errors.Is(err, services.ErrBadPayload):
				return nil, huma.Error400BadRequest(MsgBadSchedulePayload(err))
			default:
				return nil, huma.Error500InternalServerError("Failed to create schedule", err)
			}
		}
		return &dto.ScheduleCreateOutput{Body: dto.ScheduleCreateResponse{ID: id}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "scheduler-get-schedule",
		Method:      "GET",
		Path:        basePath + "/schedules/{id}",
		Summary:     "Get one schedule",
		Tags:        []string{"Scheduler / Schedules"},
	}, func(ctx context.Context, input *dto.ScheduleIDInput) (*dto.ScheduleGetOutput, error) {
		sched, err := admin.GetSchedule(ctx, input.ID)
		if err != nil {
			if errors.Is(err, services.ErrScheduleNotFound) {
				return nil, huma.Error404NotFound(MsgScheduleNotFound(input.ID))
			}
			return nil, huma.Error500InternalServerError("Failed to get schedule", err)
		}
		return &dto.ScheduleGetOutput{Body: *sched}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "scheduler-toggle-schedule",
		Method:      "POST",
		Path:        basePath + "/schedules/{id}/toggle",
		Summary:     "Enable or disable a schedule",
		Tags:        []string{"Scheduler / Schedules"},
	}, func(ctx context.Context, input *dto.ToggleScheduleInput) (*dto.ScheduleToggleOutput, error) {
		sched, err := admin.ToggleSchedule(ctx, input.ID, input.Body.Enabled)
		if err != nil {
			if errors.Is(err, services.ErrScheduleNotFound) {
				return nil, huma.Error404NotFound(MsgScheduleNotFound(input.ID))
			}
			return nil, huma.Error500InternalServerError("Failed to toggle schedule", err)
		}
		return &dto.ScheduleToggleOutput{Body: *sched}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "scheduler-delete-schedule",
		Method:      "DELETE",
		Path:        basePath + "/schedules/{id}",
		Summary:     "Delete a schedule",
		Description: "Refuses while any task still references the schedule",
		Tags:        []string{"Scheduler / Schedules"},
	}, func(ctx context.Context, input *dto.ScheduleIDInput) (*dto.ScheduleDeleteOutput, error) {
		linked, err := admin.DeleteSchedule(ctx, input.ID)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrScheduleNotFound):
				return nil, huma.Error404NotFound(MsgScheduleNotFound(input.ID))
			case errors.Is(err, services.ErrScheduleHasTasks):
				return nil, huma.Error409Conflict(MsgScheduleHasTasks(linked))
			default:
				return nil, huma.Error500InternalServerError("Failed to delete schedule", err)
			}
		}
		return &dto.ScheduleDeleteOutput{Body: dto.DeleteResponse{ID: input.ID}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "scheduler-list-tasks",
		Method:      "GET",
		Path:        basePath + "/tasks",
		Summary:     "List tasks",
		Description: "Newest-first with optional status filter and pagination",
		Tags:        []string{"Scheduler / Tasks"},
	}, func(ctx context.Context, input *dto.TaskListInput) (*dto.TaskListOutput, error) {
		if err := dto.Validate(input); err != nil {
			return nil, huma.Error400BadRequest("Invalid task filter", err)
		}
		limit := input.Limit
		if limit == 0 {
			limit = 50
		}
		tasks, total, err := admin.ListTasks(ctx, input.Status, limit, input.Offset)
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to list tasks", err)
		}
		return &dto.TaskListOutput{Body: dto.TaskListResponse{
			Tasks:  tasks,
			Total:  total,
			Limit:  limit,
			Offset: input.Offset,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "scheduler-enqueue-task",
		Method:        "POST",
		Path:          basePath + "/tasks",
		Summary:       "Enqueue an ad-hoc task",
		Tags:          []string{"Scheduler / Tasks"},
		DefaultStatus: 201,
	}, func(ctx context.Context, input *dto.EnqueueTaskInput) (*dto.TaskEnqueueOutput, error) {
		if err := dto.Validate(&input.Body); err != nil {
			return nil, huma.Error400BadRequest("Invalid enqueue request", err)
		}
		id, err := admin.EnqueueTask(ctx, input.Body.Type, input.Body.Payload, input.Body.Priority, input.Body.NotBefore)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrUnknownType):
				return nil, huma.Error400BadRequest(MsgUnknownType(input.Body.Type))
			case errors.Is(err, services.ErrBadPayload):
				return nil, huma.Error400BadRequest(MsgBadPayload(err))
			case errors.Is(err, services.ErrBadNotBefore):
				return nil, huma.Error400BadRequest(MsgBadNotBefore)
			default:
				return nil, huma.Error500InternalServerError("Failed to enqueue task", err)
			}
		}
		return &dto.TaskEnqueueOutput{Body: dto.TaskEnqueueResponse{ID: id}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "scheduler-get-task",
		Method:      "GET",
		Path:        basePath + "/tasks/{id}",
		Summary:     "Get one task",
		Tags:        []string{"Scheduler / Tasks"},
	}, func(ctx context.Context, input *dto.TaskIDInput) (*dto.TaskGetOutput, error) {
		task, err := admin.GetTask(ctx, input.ID)
		if err != nil {
			if errors.Is(err, services.ErrTaskNotFound) {
				return nil, huma.Error404NotFound(MsgTaskNotFound(input.ID))
			}
			return nil, huma.Error500InternalServerError("Failed to get task", err)
		}
		return &dto.TaskGetOutput{Body: *task}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "scheduler-cancel-task",
		Method:      "POST",
		Path:        basePath + "/tasks/{id}/cancel",
		Summary:     "Cancel a task",
		Description: "PENDING tasks are canceled outright; RUNNING tasks get a cooperative cancel request",
		Tags:        []string{"Scheduler / Tasks"},
	}, func(ctx context.Context, input *dto.TaskIDInput) (*dto.TaskCancelOutput, error) {
		result, err := admin.CancelTask(ctx, input.ID)
		if err != nil {
			if errors.Is(err, services.ErrTaskNotFound) {
				return nil, huma.Error404NotFound(MsgTaskNotFound(input.ID))
			}
			return nil, huma.Error500InternalServerError("Failed to cancel task", err)
		}
		return &dto.TaskCancelOutput{Body: dto.CancelResponse{
			ID:      input.ID,
			Outcome: string(result.Outcome),
			Status:  result.Status,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "scheduler-delete-task",
		Method:      "DELETE",
		Path:        basePath + "/tasks/{id}",
		Summary:     "Delete a task",
		Description: "Refuses RUNNING and CANCEL_REQUESTED tasks",
		Tags:        []string{"Scheduler / Tasks"},
	}, func(ctx context.Context, input *dto.TaskIDInput) (*dto.TaskDeleteOutput, error) {
		if err := admin.DeleteTask(ctx, input.ID); err != nil {
			switch {
			case errors.Is(err, services.ErrTaskNotFound):
				return nil, huma.Error404NotFound(MsgTaskNotFound(input.ID))
			case errors.Is(err, services.ErrTaskActive):
				return nil, huma.Error409Conflict(MsgTaskActive(input.ID))
			default:
				return nil, huma.Error500InternalServerError("Failed to delete task", err)
			}
		}
		return &dto.TaskDeleteOutput{Body: dto.DeleteResponse{ID: input.ID}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "scheduler-list-runs",
		Method:      "GET",
		Path:        basePath + "/tasks/{id}/runs",
		Summary:     "List the execution attempts of a task",
		Tags:        []string{"Scheduler / Runs"},
	}, func(ctx context.Context, input *dto.RunListInput) (*dto.RunListOutput, error) {
		runs, err := admin.ListRuns(ctx, input.ID)
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to list runs", err)
		}
		return &dto.RunListOutput{Body: dto.RunListResponse{Runs: runs, Total: len(runs)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "scheduler-list-operations",
		Method:      "GET",
		Path:        basePath + "/runs/{run_id}/operations",
		Summary:     "List the compensation entries of a run",
		Tags:        []string{"Scheduler / Runs"},
	}, func(ctx context.Context, input *dto.OperationListInput) (*dto.OperationListOutput, error) {
		ops, err := admin.ListOperations(ctx, input.RunID)
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to list operations", err)
		}
		return &dto.OperationListOutput{Body: dto.OperationListResponse{Operations: ops, Total: len(ops)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "scheduler-manual-run",
		Method:      "POST",
		Path:        basePath + "/manual/run",
		Summary:     "Run a task type synchronously",
		Description: "Executes the runner inline without task or run bookkeeping. For smoke-testing runner wiring.",
		Tags:        []string{"Scheduler / Tasks"},
	}, func(ctx context.Context, input *dto.ManualRunInput) (*dto.ManualRunOutput, error) {
		if err := dto.Validate(&input.Body); err != nil {
			return nil, huma.Error400BadRequest("Invalid manual run request", err)
		}
		payload := services.NormalizePayload(input.Body.Payload)
		start := time.Now()
		err := admin.ManualRun(ctx, input.Body.Type, payload)
		resp := dto.ManualRunResponse{
			OK:      err == nil,
			Type:    input.Body.Type,
			Payload: payload,
			CostMS:  time.Since(start).Milliseconds(),
		}
		if err != nil {
			switch {
			case errors.Is(err, services.ErrUnknownType):
				resp.Error = MsgNoRunner(input.Body.Type)
			case errors.Is(err, services.ErrBadPayload):
				resp.Error = MsgBadPayload(err)
			default:
				resp.Error = SafeMsg(err.Error())
			}
		}
		return &dto.ManualRunOutput{Body: resp}, nil
	})
}
