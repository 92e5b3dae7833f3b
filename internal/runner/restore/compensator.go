package restore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"go-batchd/pkg/config"
)

// maxBase64Len caps the origBase64 field so a poisoned compensation entry
// cannot balloon memory during replay.
const maxBase64Len = 200 * 1024

// Compensator restores a file to its pre-run state. Payload:
//
//	{"root": "...", "file": "rel/path", "origBase64": "..."}
//
// With origBase64 the decoded bytes are written back atomically; without it
// the file did not exist before the run and is deleted. The resolved target
// must stay inside root after normalization.
type Compensator struct {
	defaultRoot string
}

// NewCompensator reads the fallback root from SCHEDULER_DEFAULT_ROOT.
func NewCompensator() *Compensator {
	return &Compensator{defaultRoot: config.GetEnv("SCHEDULER_DEFAULT_ROOT", "/")}
}

// ActionType implements models.Compensator.
func (c *Compensator) ActionType() string {
	return "file.restore"
}

type restorePayload struct {
	Root       string  `json:"root"`
	File       string  `json:"file"`
	OrigBase64 *string `json:"origBase64"`
}

// Compensate implements models.Compensator. It returns (false, nil) for
// payloads that name no usable file, and an error for path traversal,
// oversized content or filesystem failures.
func (c *Compensator) Compensate(ctx context.Context, runID int64, payload json.RawMessage) (bool, error) {
	if len(payload) == 0 {
		slog.Warn("file.restore: empty payload", slog.Int64("run_id", runID))
		return false, nil
	}
	var p restorePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		slog.Warn("file.restore: undecodable payload",
			slog.Int64("run_id", runID), slog.String("error", err.Error()))
		return false, nil
	}

	rootIn := strings.TrimSpace(p.Root)
	if rootIn == "" {
		rootIn = c.defaultRoot
	}
	root, err := filepath.Abs(rootIn)
	if err != nil {
		return false, fmt.Errorf("file.restore: failed to resolve root %s: %w", rootIn, err)
	}

	if strings.TrimSpace(p.File) == "" {
		slog.Warn("file.restore: missing 'file' in payload", slog.Int64("run_id", runID))
		return false, nil
	}

	var target string
	if filepath.IsAbs(p.File) {
		target = filepath.Clean(p.File)
	} else {
		target = filepath.Join(root, p.File)
	}
	rel, rerr := filepath.Rel(root, target)
	if rerr != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		err := fmt.Errorf("file.restore: illegal target path (outside root) run=%d target=%s root=%s", runID, target, root)
		slog.Error(err.Error())
		return false, err
	}

	if p.OrigBase64 != nil {
		b64 := *p.OrigBase64
		if len(b64) > maxBase64Len {
			err := fmt.Errorf("file.restore: origBase64 too large run=%d size=%d", runID, len(b64))
			slog.Error(err.Error())
			return false, err
		}
		data, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return false, fmt.Errorf("file.restore: invalid origBase64 for run=%d: %w", runID, err)
		}
		if err := writeAtomic(target, data); err != nil {
			slog.Error("file.restore: failed",
				slog.Int64("run_id", runID), slog.String("target", target), slog.String("error", err.Error()))
			return false, err
		}
		slog.Info("file.restore: restored file", slog.Int64("run_id", runID), slog.String("target", target))
		return true, nil
	}

	// No original content recorded: the file did not exist before the run,
	// so undo means delete. Idempotent when the file is already gone.
	deleted := true
	if err := os.Remove(target); err != nil {
		if !os.IsNotExist(err) {
			slog.Error("file.restore: failed",
				slog.Int64("run_id", runID), slog.String("target", target), slog.String("error", err.Error()))
			return false, err
		}
		deleted = false
	}
	slog.Info("file.restore: delete-if-exists",
		slog.Int64("run_id", runID), slog.String("target", target), slog.Bool("deleted", deleted))
	return true, nil
}

// writeAtomic writes data to a sibling temp file and renames it over the
// target, so a crash mid-write never leaves a truncated file behind. The
// temp lives in the target's directory, which keeps the rename on one
// filesystem; filesystems that still refuse the rename get a plain write.
func writeAtomic(target string, data []byte) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*.part")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		slog.Debug("Atomic rename not supported, falling back to direct write",
			slog.String("target", target), slog.String("error", err.Error()))
		if werr := os.WriteFile(target, data, 0o644); werr != nil {
			return fmt.Errorf("failed to replace %s: %w", target, werr)
		}
	}
	return nil
}
