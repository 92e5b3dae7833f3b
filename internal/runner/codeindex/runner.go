package codeindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Runner indexes a Go source tree. Payload:
//
//	{"root": "...", "output": "...", "includes": [...], "excludes": [...]}
//
// root and output are required. includes and excludes are doublestar globs
// matched against the root-relative path; excludes extend the built-in
// defaults.
type Runner struct {
	indexer *Indexer
}

// NewRunner creates a new code index runner
func NewRunner() *Runner {
	return &Runner{indexer: NewIndexer()}
}

type runPayload struct {
	Root     string   `json:"root"`
	Output   string   `json:"output"`
	Includes []string `json:"includes"`
	Excludes []string `json:"excludes"`
}

// InitJob implements models.Runner.
func (r *Runner) InitJob(ctx context.Context, payload json.RawMessage) error {
	var p runPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("failed to decode code index payload: %w", err)
	}
	if strings.TrimSpace(p.Root) == "" {
		return errors.New("payload.root required")
	}
	if strings.TrimSpace(p.Output) == "" {
		return errors.New("payload.output required")
	}

	slog.Info("Code index run starting", slog.String("root", p.Root), slog.String("output", p.Output))
	if err := r.indexer.Index(ctx, p.Root, p.Output, p.Includes, p.Excludes); err != nil {
		slog.Error("Code index run failed",
			slog.String("root", p.Root),
			slog.String("output", p.Output),
			slog.String("error", err.Error()))
		return err
	}
	slog.Info("Code index run finished", slog.String("root", p.Root), slog.String("output", p.Output))
	return nil
}
