package dto

// CreateScheduleRequest represents a request to create a cron schedule.
// Cron expressions are not parsed here: fan-out skips unparsable expressions
// with a warning, so a bad expression never blocks creation.
type CreateScheduleRequest struct {
	Type    string `json:"type" validate:"required,max=64" doc:"Task type code the schedule fans out"`
	Cron    string `json:"cron" validate:"required,max=64" doc:"Six-field cron expression with seconds, e.g. */5 * * * * *"`
	Payload string `json:"payload,omitempty" validate:"omitempty,json" doc:"JSON payload passed to every fired task"`
	Enabled *int   `json:"enabled,omitempty" validate:"omitempty,oneof=0 1" doc:"1 enables fan-out, 0 pauses it (default 1)"`
}

// EnqueueTaskRequest represents a request to enqueue an ad-hoc task.
type EnqueueTaskRequest struct {
	Type      string `json:"type" validate:"required,max=64" doc:"Task type code"`
	Payload   string `json:"payload,omitempty" validate:"omitempty,json" doc:"JSON payload passed to the runner"`
	Priority  int    `json:"priority,omitempty" doc:"Higher priority tasks are claimed first"`
	NotBefore string `json:"not_before,omitempty" validate:"omitempty,notbefore" doc:"Earliest execution instant, e.g. 2025-09-22 08:00:00 or 2025-09-22T08:00"`
}

// ManualRunRequest represents a request to run a task type synchronously,
// bypassing the queue. Intended for smoke-testing runners.
type ManualRunRequest struct {
	Type    string `json:"type" validate:"required,max=64" doc:"Task type code"`
	Payload string `json:"payload,omitempty" validate:"omitempty,json" doc:"JSON payload passed to the runner"`
}

// ToggleScheduleRequest flips a schedule's enabled flag.
type ToggleScheduleRequest struct {
	Enabled bool `json:"enabled" doc:"True resumes fan-out, false pauses it"`
}

// CreateScheduleInput represents the input for creating a schedule
type CreateScheduleInput struct {
	Body CreateScheduleRequest `json:"body"`
}

// EnqueueTaskInput represents the input for enqueueing a task
type EnqueueTaskInput struct {
	Body EnqueueTaskRequest `json:"body"`
}

// ManualRunInput represents the input for a synchronous manual run
type ManualRunInput struct {
	Body ManualRunRequest `json:"body"`
}

// ScheduleIDInput addresses one schedule
type ScheduleIDInput struct {
	ID int64 `path:"id" doc:"Schedule id"`
}

// ToggleScheduleInput represents the input for toggling a schedule
type ToggleScheduleInput struct {
	ID   int64                 `path:"id" doc:"Schedule id"`
	Body ToggleScheduleRequest `json:"body"`
}

// TaskIDInput addresses one task
type TaskIDInput struct {
	ID int64 `path:"id" doc:"Task id"`
}

// TaskListInput represents query parameters for listing tasks
type TaskListInput struct {
	Status string `query:"status" validate:"omitempty,task_status" doc:"Filter by task status"`
	Limit  int    `query:"limit" minimum:"1" maximum:"500" doc:"Page size (default 50)"`
	Offset int    `query:"offset" minimum:"0" doc:"Rows to skip"`
}

// RunListInput addresses the runs of one task
type RunListInput struct {
	ID int64 `path:"id" doc:"Task id"`
}

// OperationListInput addresses the compensation entries of one run
type OperationListInput struct {
	RunID int64 `path:"run_id" doc:"Run id"`
}
