package scheduler

import (
	"testing"

	"go-batchd/internal/scheduler/dto"

	"github.com/stretchr/testify/assert"
)

// TestSchedulerHumaDTOs tests that scheduler Huma DTOs are properly structured
func TestSchedulerHumaDTOs(t *testing.T) {
	// Test basic input/output types compile correctly
	var scheduleCreateInput interface{} = &dto.CreateScheduleInput{}
	var scheduleCreateOutput interface{} = &dto.ScheduleCreateOutput{}
	var enqueueInput interface{} = &dto.EnqueueTaskInput{}
	var enqueueOutput interface{} = &dto.TaskEnqueueOutput{}
	var taskListInput interface{} = &dto.TaskListInput{}
	var taskListOutput interface{} = &dto.TaskListOutput{}
	var manualRunInput interface{} = &dto.ManualRunInput{}
	var manualRunOutput interface{} = &dto.ManualRunOutput{}

	assert.NotNil(t, scheduleCreateInput)
	assert.NotNil(t, scheduleCreateOutput)
	assert.NotNil(t, enqueueInput)
	assert.NotNil(t, enqueueOutput)
	assert.NotNil(t, taskListInput)
	assert.NotNil(t, taskListOutput)
	assert.NotNil(t, manualRunInput)
	assert.NotNil(t, manualRunOutput)

	t.Logf("✅ Scheduler Huma DTOs are properly structured")
}

// TestSchedulerHumaValidation tests that validation tags are properly set
func TestSchedulerHumaValidation(t *testing.T) {
	// Test TaskIDInput with required path id
	taskIDInput := &dto.TaskIDInput{ID: 42}
	assert.Equal(t, int64(42), taskIDInput.ID)

	// Test TaskListInput with status filter and pagination
	taskListInput := &dto.TaskListInput{
		Status: "RUNNING",
		Limit:  20,
		Offset: 40,
	}

	assert.Equal(t, "RUNNING", taskListInput.Status)
	assert.Equal(t, 20, taskListInput.Limit)
	assert.Equal(t, 40, taskListInput.Offset)

	// Test EnqueueTaskInput body shape
	enqueueInput := &dto.EnqueueTaskInput{
		Body: dto.EnqueueTaskRequest{
			Type:      "code.index",
			Payload:   `{"root":"/srv/src","output":"/srv/index"}`,
			Priority:  5,
			NotBefore: "2025-09-22 08:00:00",
		},
	}

	assert.Equal(t, "code.index", enqueueInput.Body.Type)
	assert.Equal(t, 5, enqueueInput.Body.Priority)
	assert.NoError(t, dto.Validate(&enqueueInput.Body))

	t.Logf("✅ Scheduler Huma validation tags are properly configured")
}
