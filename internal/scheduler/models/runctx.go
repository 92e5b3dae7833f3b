package models

import "context"

type runIDKey struct{}

// WithRunID binds the current run identifier to the context. The engine binds
// it for the duration of a task execution so that runners can record
// compensation entries without threading the run id through their own APIs.
func WithRunID(ctx context.Context, runID int64) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFrom extracts the run identifier bound by WithRunID, if any.
func RunIDFrom(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(runIDKey{}).(int64)
	return id, ok
}
