package dto

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

func init() {
	RegisterCustomValidators(validate)
}

// Validate checks a request struct against its declared rules.
func Validate(v any) error {
	return validate.Struct(v)
}

// RegisterCustomValidators registers custom validation rules for scheduler DTOs
func RegisterCustomValidators(v *validator.Validate) {
	v.RegisterValidation("task_status", validateTaskStatus)
	v.RegisterValidation("notbefore", validateNotBefore)
}

// validateTaskStatus accepts task lifecycle status values.
func validateTaskStatus(fl validator.FieldLevel) bool {
	status := fl.Field().String()
	validStatuses := []string{"PENDING", "RUNNING", "SUCCEED", "FAILED", "CANCELED", "CANCEL_REQUESTED"}

	for _, valid := range validStatuses {
		if status == valid {
			return true
		}
	}
	return false
}

// validateNotBefore accepts instants NormalizeNotBefore can parse.
func validateNotBefore(fl validator.FieldLevel) bool {
	_, err := NormalizeNotBefore(fl.Field().String())
	return err == nil
}

// NormalizeNotBefore parses the operator-facing not-before formats:
// "2006-01-02 15:04:05" and the HTML datetime-local shape
// "2006-01-02T15:04" (seconds optional, sub-second precision dropped).
// Empty input means no constraint and returns nil.
func NormalizeNotBefore(raw string) (*time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, nil
	}
	s = strings.Replace(s, "T", " ", 1)
	if len(s) == 16 {
		s += ":00"
	}
	if len(s) >= 19 {
		s = s[:19]
	}
	t, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.Local)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
