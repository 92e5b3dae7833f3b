package routes

import (
	"fmt"
	"strings"
	"testing"

	"go-batchd/internal/scheduler/models"
	"go-batchd/internal/scheduler/services"
)

func TestSafeMsg(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain message passes through",
			in:   "schedule deleted: id=3",
			want: "schedule deleted: id=3",
		},
		{
			name: "whitespace collapses to single spaces",
			in:   "  invalid character 'b'\n\tlooking for   beginning ",
			want: "invalid character 'b' looking for beginning",
		},
		{
			name: "long message is capped",
			in:   strings.Repeat("x", 600),
			want: strings.Repeat("x", 500) + "...",
		},
		{
			name: "empty stays empty",
			in:   "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafeMsg(tt.in); got != tt.want {
				t.Errorf("SafeMsg() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMsgBadPayload(t *testing.T) {
	t.Run("wrapped error exposes the parser detail", func(t *testing.T) {
		err := fmt.Errorf("%w: invalid character 'b' looking for beginning of object key string", services.ErrBadPayload)
		got := MsgBadPayload(err)
		want := "BadPayload: invalid character 'b' looking for beginning of object key string"
		if got != want {
			t.Errorf("MsgBadPayload() = %q, want %q", got, want)
		}
	})

	t.Run("bare sentinel falls back to its own text", func(t *testing.T) {
		got := MsgBadPayload(services.ErrBadPayload)
		want := "BadPayload: payload is not valid json"
		if got != want {
			t.Errorf("MsgBadPayload() = %q, want %q", got, want)
		}
	})

	t.Run("schedule variant carries its own prefix", func(t *testing.T) {
		err := fmt.Errorf("%w: unexpected end of JSON input", services.ErrBadPayload)
		got := MsgBadSchedulePayload(err)
		want := "BadPayload in schedule: unexpected end of JSON input"
		if got != want {
			t.Errorf("MsgBadSchedulePayload() = %q, want %q", got, want)
		}
	})
}

func TestMsgCancelNotNeeded(t *testing.T) {
	got := MsgCancelNotNeeded(42, models.TaskStatusSucceed)
	want := "cancel not needed: id=42, status=SUCCEED"
	if got != want {
		t.Errorf("MsgCancelNotNeeded() = %q, want %q", got, want)
	}
}
