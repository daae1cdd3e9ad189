package history

import "context"

// Store persists build run history.
type Store interface {
	// Append adds a completed run. Rows are never updated or deleted.
	Append(ctx context.Context, run Run) error
	// Recent returns the most recent runs, newest first.
	Recent(ctx context.Context, limit int) ([]Run, error)
	// ByTarget returns the most recent runs for one target, newest first.
	ByTarget(ctx context.Context, target string, limit int) ([]Run, error)
	// Close releases the underlying storage.
	Close() error
}
