package mysql

import (
	"context"
	"database/sql"
	"errors"

	"github.com/velmie/jobrelay"
)

type batch struct {
	tx       *sql.Tx
	store    *Store
	messages []jobrelay.Message
}

var _ jobrelay.DeadBatch = (*batch)(nil)

// Messages returns the messages fetched for this batch.
func (b *batch) Messages() []jobrelay.Message {
	return b.messages
}

// Ack marks the provided messages as processed.
func (b *batch) Ack(ctx context.Context, ids []jobrelay.ID) error {
	return b.store.ack(ctx, b.tx, ids)
}

// Fail records failures; messages reaching MaxAttempts become dead.
func (b *batch) Fail(ctx context.Context, failures []jobrelay.Failure) error {
	return b.store.fail(ctx, b.tx, failures)
}

// Dead marks the provided messages as dead.
func (b *batch) Dead(ctx context.Context, failures []jobrelay.Failure) error {
	return b.store.dead(ctx, b.tx, failures)
}

// Commit finalizes the batch transaction.
func (b *batch) Commit() error {
	return b.tx.Commit()
}

// Rollback releases locks without applying any changes.
func (b *batch) Rollback() error {
	err := b.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}

	return err
}
