package domain

import (
	"context"
	"time"
)

// JobStore defines persistence for jobs. Reads return snapshots; updates are
// atomic per job and enforce the state machine. Implementations must be safe
// for concurrent use.
type JobStore interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	Update(ctx context.Context, id string, update JobUpdate) (*Job, error)
	// PurgeTerminal removes jobs that reached a terminal stage more than
	// olderThan ago and returns how many were dropped.
	PurgeTerminal(ctx context.Context, olderThan time.Duration) (int, error)
}
