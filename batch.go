package jobrelay

import (
	"context"
	"time"
)

// FetchOptions controls how pending messages are selected.
type FetchOptions struct {
	BatchSize    int
	MinCreatedAt time.Time
}

// Consumer provides locked batches of queued messages.
type Consumer interface {
	// Fetch returns a batch of pending messages locked for processing.
	// It returns ErrNoMessages when nothing is pending.
	Fetch(ctx context.Context, opts FetchOptions) (Batch, error)
}

// Batch represents a locked set of messages fetched for processing.
type Batch interface {
	// Messages returns the fetched messages in this batch.
	Messages() []Message
	// Ack marks the provided messages as handled.
	Ack(ctx context.Context, ids []ID) error
	// Fail records failures and updates retry state for each message.
	Fail(ctx context.Context, failures []Failure) error
	// Commit finalizes the batch.
	Commit() error
	// Rollback releases locks without applying any changes.
	Rollback() error
}

// DeadBatch supports immediate dead-lettering of messages.
type DeadBatch interface {
	// Dead marks the provided messages as non retryable failures.
	Dead(ctx context.Context, failures []Failure) error
}

// PendingCounter provides a total count of pending messages.
type PendingCounter interface {
	// PendingCount returns the current number of pending messages.
	PendingCount(ctx context.Context) (int, error)
}
