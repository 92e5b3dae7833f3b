package routes

import (
	"fmt"
	"strings"

	"go-batchd/internal/scheduler/models"
	"go-batchd/internal/scheduler/services"
)

// Operator-facing messages for the console and the JSON API, collected here
// so both surfaces emit identical wording.

// MsgBadNotBefore names both accepted notBefore layouts.
const MsgBadNotBefore = "invalid notBefore format, expected e.g. 2025-09-22 08:00:00 or 2025-09-22T08:00"

func MsgNoRunner(typeCode string) string {
	return "no runner for type=" + typeCode
}

func MsgUnknownType(typeCode string) string {
	return "Unknown type: " + typeCode + " (no registered runner)"
}

func MsgBadPayload(err error) string {
	return "BadPayload: " + SafeMsg(payloadDetail(err))
}

func MsgBadSchedulePayload(err error) string {
	return "BadPayload in schedule: " + SafeMsg(payloadDetail(err))
}

func MsgTaskNotFound(id int64) string {
	return fmt.Sprintf("Task not found: id=%d", id)
}

func MsgScheduleNotFound(id int64) string {
	return fmt.Sprintf("Schedule not found: id=%d", id)
}

func MsgScheduleHasTasks(count int64) string {
	return fmt.Sprintf("schedule still has %d linked task(s), delete them first", count)
}

func MsgScheduleDeleted(id int64) string {
	return fmt.Sprintf("schedule deleted: id=%d", id)
}

func MsgTaskActive(id int64) string {
	return fmt.Sprintf("cannot delete a running or cancel-requested task: id=%d", id)
}

func MsgTaskDeleted(id int64) string {
	return fmt.Sprintf("task deleted: id=%d", id)
}

func MsgTaskCanceled(id int64) string {
	return fmt.Sprintf("task canceled: id=%d", id)
}

func MsgCancelRequested(id int64) string {
	return fmt.Sprintf("cancel requested for running task: id=%d", id)
}

func MsgCancelNotNeeded(id int64, status models.TaskStatus) string {
	return fmt.Sprintf("cancel not needed: id=%d, status=%s", id, status)
}

// SafeMsg collapses whitespace and caps a message at 500 characters so one
// giant error cannot blow up a redirect URL or a JSON response.
func SafeMsg(msg string) string {
	msg = strings.Join(strings.Fields(msg), " ")
	runes := []rune(msg)
	if len(runes) > 500 {
		return string(runes[:500]) + "..."
	}
	return msg
}

// payloadDetail strips the ErrBadPayload prefix so the operator sees the
// parser's own words, matching what checkPayload wrapped.
func payloadDetail(err error) string {
	detail := strings.TrimPrefix(err.Error(), services.ErrBadPayload.Error())
	detail = strings.TrimPrefix(detail, ": ")
	if detail == "" {
		return services.ErrBadPayload.Error()
	}
	return detail
}
