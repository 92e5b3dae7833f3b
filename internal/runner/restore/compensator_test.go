package restore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func restoreJSON(t *testing.T, root, file string, orig *string) json.RawMessage {
	t.Helper()
	p := map[string]interface{}{"root": root, "file": file}
	if orig != nil {
		p["origBase64"] = *orig
	}
	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestCompensatorActionType(t *testing.T) {
	if got := NewCompensator().ActionType(); got != "file.restore" {
		t.Errorf("ActionType() = %q, want file.restore", got)
	}
}

func TestCompensateRestoresOriginalContent(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "data", "config.json")
	orig := b64(`{"mode":"old"}`)

	// The file was replaced during the run; the parent directory may even be
	// gone by now.
	done, err := NewCompensator().Compensate(context.Background(), 7, restoreJSON(t, root, "data/config.json", &orig))
	if err != nil {
		t.Fatalf("Compensate() error = %v", err)
	}
	if !done {
		t.Fatal("expected the restore to be applied")
	}
	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("failed to read restored file: %v", err)
	}
	if string(got) != `{"mode":"old"}` {
		t.Errorf("restored content = %q", got)
	}
}

func TestCompensateOverwritesCurrentContent(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "a.txt")
	if err := os.WriteFile(target, []byte("changed during the run"), 0o644); err != nil {
		t.Fatal(err)
	}
	orig := b64("original")

	done, err := NewCompensator().Compensate(context.Background(), 7, restoreJSON(t, root, "a.txt", &orig))
	if err != nil || !done {
		t.Fatalf("Compensate() = (%v, %v)", done, err)
	}
	got, _ := os.ReadFile(target)
	if string(got) != "original" {
		t.Errorf("restored content = %q", got)
	}
}

func TestCompensateDeletesCreatedFile(t *testing.T) {
	t.Run("file exists", func(t *testing.T) {
		root := t.TempDir()
		target := filepath.Join(root, "created.txt")
		if err := os.WriteFile(target, []byte("new"), 0o644); err != nil {
			t.Fatal(err)
		}

		done, err := NewCompensator().Compensate(context.Background(), 7, restoreJSON(t, root, "created.txt", nil))
		if err != nil || !done {
			t.Fatalf("Compensate() = (%v, %v)", done, err)
		}
		if _, serr := os.Stat(target); !os.IsNotExist(serr) {
			t.Errorf("expected the file to be deleted, stat err = %v", serr)
		}
	})

	t.Run("file already gone", func(t *testing.T) {
		root := t.TempDir()

		done, err := NewCompensator().Compensate(context.Background(), 7, restoreJSON(t, root, "created.txt", nil))
		if err != nil || !done {
			t.Fatalf("Compensate() = (%v, %v), want idempotent success", done, err)
		}
	})
}

func TestCompensateRejectsEscapingPaths(t *testing.T) {
	root := t.TempDir()
	orig := b64("x")

	tests := []struct {
		name string
		file string
	}{
		{"relative traversal", "../escape.txt"},
		{"nested traversal", "data/../../escape.txt"},
		{"absolute path outside root", filepath.Join(os.TempDir(), "outside.txt")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			done, err := NewCompensator().Compensate(context.Background(), 7, restoreJSON(t, root, tt.file, &orig))
			if done || err == nil {
				t.Fatalf("Compensate() = (%v, %v), want a path error", done, err)
			}
			if !strings.Contains(err.Error(), "outside root") {
				t.Errorf("unexpected error %v", err)
			}
		})
	}
}

func TestCompensateSoftFailures(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name    string
		payload json.RawMessage
	}{
		{"empty payload", nil},
		{"undecodable payload", json.RawMessage(`{broken`)},
		{"missing file field", json.RawMessage(fmt.Sprintf(`{"root": %q}`, root))},
		{"blank file field", json.RawMessage(fmt.Sprintf(`{"root": %q, "file": "   "}`, root))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			done, err := NewCompensator().Compensate(context.Background(), 7, tt.payload)
			if err != nil {
				t.Fatalf("Compensate() error = %v, want a soft skip", err)
			}
			if done {
				t.Error("expected done=false for an unusable payload")
			}
		})
	}
}

func TestCompensateRejectsBadContent(t *testing.T) {
	root := t.TempDir()

	t.Run("oversized origBase64", func(t *testing.T) {
		huge := strings.Repeat("A", maxBase64Len+4)
		done, err := NewCompensator().Compensate(context.Background(), 7, restoreJSON(t, root, "a.txt", &huge))
		if done || err == nil || !strings.Contains(err.Error(), "origBase64 too large") {
			t.Errorf("Compensate() = (%v, %v)", done, err)
		}
	})

	t.Run("invalid base64", func(t *testing.T) {
		bad := "!!!not base64!!!"
		done, err := NewCompensator().Compensate(context.Background(), 7, restoreJSON(t, root, "a.txt", &bad))
		if done || err == nil || !strings.Contains(err.Error(), "invalid origBase64") {
			t.Errorf("Compensate() = (%v, %v)", done, err)
		}
	})
}

func TestCompensateDefaultRoot(t *testing.T) {
	root := t.TempDir()
	t.Setenv("SCHEDULER_DEFAULT_ROOT", root)
	orig := b64("fallback")

	payload := json.RawMessage(`{"file": "nested/fallback.txt", "origBase64": "` + orig + `"}`)
	done, err := NewCompensator().Compensate(context.Background(), 7, payload)
	if err != nil || !done {
		t.Fatalf("Compensate() = (%v, %v)", done, err)
	}
	got, err := os.ReadFile(filepath.Join(root, "nested", "fallback.txt"))
	if err != nil {
		t.Fatalf("failed to read restored file: %v", err)
	}
	if string(got) != "fallback" {
		t.Errorf("restored content = %q", got)
	}
}
