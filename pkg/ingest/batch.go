package ingest

import (
	"context"
	"database/sql"
	"fmt"
)

// WriteFunc is a callback that performs database writes inside a transaction.
type WriteFunc func(ctx context.Context, tx *sql.Tx) error

// Batch buffers write operations and commits them together in one
// transaction. The first failing write rolls back the whole batch.
type Batch struct {
	db     *sql.DB
	buf    []WriteFunc
	closed bool
}

// NewBatch creates a Batch writing to db.
func NewBatch(db *sql.DB) *Batch {
	return &Batch{db: db}
}

// Submit enqueues a write function.
func (b *Batch) Submit(w WriteFunc) error {
	if b.closed {
		return ErrBatchClosed
	}
	b.buf = append(b.buf, w)
	return nil
}

// Len returns the number of queued writes.
func (b *Batch) Len() int { return len(b.buf) }

// Flush executes every queued write in a single transaction and empties the
// buffer whether or not the commit succeeds.
func (b *Batch) Flush(ctx context.Context) error {
	if len(b.buf) == 0 {
		return nil
	}
	batch := b.buf
	b.buf = nil
	return b.execute(ctx, batch)
}

// Close flushes any remaining writes and rejects further submissions.
func (b *Batch) Close(ctx context.Context) error {
	if b.closed {
		return ErrBatchClosed
	}
	b.closed = true
	return b.Flush(ctx)
}

func (b *Batch) execute(ctx context.Context, batch []WriteFunc) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin batch tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // ignored if committed
	}()

	for _, w := range batch {
		if err := w(ctx, tx); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch (%d items): %w", len(batch), err)
	}
	return nil
}

// Run commits fns as one batch.
func Run(ctx context.Context, db *sql.DB, fns ...WriteFunc) error {
	b := NewBatch(db)
	for _, fn := range fns {
		if err := b.Submit(fn); err != nil {
			return err
		}
	}
	return b.Close(ctx)
}

// ErrBatchClosed is returned when writing to a closed Batch.
var ErrBatchClosed = &BatchError{"batch closed"}

// BatchError is a misuse of a Batch, as opposed to a failed write.
type BatchError struct{ msg string }

func (e *BatchError) Error() string { return e.msg }
