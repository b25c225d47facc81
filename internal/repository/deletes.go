package repository

import (
	"context"
	"fmt"
	"time"
)

// PendingDelete is an object delete that failed and waits for a retry.
type PendingDelete struct {
	ID        int64
	Bucket    string
	Key       string
	Attempts  int
	LastError string
}

// EnqueueDelete queues bucket/key for a retry. Queuing the same object twice
// keeps one entry with the latest error.
func (r *Repository) EnqueueDelete(ctx context.Context, bucket, key, cause string) error {
	now := sqlTime(r.now())
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO pending_deletes (bucket, object_key, last_error, next_attempt_at, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(bucket, object_key) DO UPDATE SET last_error = excluded.last_error`,
		bucket, key, cause, now, now)
	if err != nil {
		return fmt.Errorf("enqueue delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

// DueDeletes returns up to limit entries whose next attempt is due and that
// have been tried fewer than maxAttempts times.
func (r *Repository) DueDeletes(ctx context.Context, limit, maxAttempts int) ([]PendingDelete, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, bucket, object_key, attempts, last_error
		 FROM pending_deletes
		 WHERE next_attempt_at <= ? AND attempts < ?
		 ORDER BY next_attempt_at, id
		 LIMIT ?`,
		sqlTime(r.now()), maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("query due deletes: %w", err)
	}
	defer rows.Close()

	var out []PendingDelete
	for rows.Next() {
		var p PendingDelete
		if err := rows.Scan(&p.ID, &p.Bucket, &p.Key, &p.Attempts, &p.LastError); err != nil {
			return nil, fmt.Errorf("scan pending delete: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkDeleteDone removes entry id from the queue.
func (r *Repository) MarkDeleteDone(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM pending_deletes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("complete pending delete %d: %w", id, err)
	}
	return nil
}

// MarkDeleteFailed records another failed attempt and schedules the next one
// after backoff.
func (r *Repository) MarkDeleteFailed(ctx context.Context, id int64, cause string, backoff time.Duration) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE pending_deletes
		 SET attempts = attempts + 1, last_error = ?, next_attempt_at = ?
		 WHERE id = ?`,
		cause, sqlTime(r.now().Add(backoff)), id)
	if err != nil {
		return fmt.Errorf("fail pending delete %d: %w", id, err)
	}
	return nil
}

// DropExhaustedDeletes removes entries that reached maxAttempts.
func (r *Repository) DropExhaustedDeletes(ctx context.Context, maxAttempts int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM pending_deletes WHERE attempts >= ?`, maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("drop exhausted deletes: %w", err)
	}
	return res.RowsAffected()
}

// PendingDeleteCount returns the queue length.
func (r *Repository) PendingDeleteCount(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_deletes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending deletes: %w", err)
	}
	return n, nil
}
