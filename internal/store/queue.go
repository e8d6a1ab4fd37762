package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrItemNotPending is returned by the queue transition methods when the
// guarded UPDATE matched no row, meaning the item already left the pending
// state. Transitions happen at most once.
var ErrItemNotPending = errors.New("store: queue item not pending")

func (s *Store) prepareQueueStmts(ctx context.Context) error {
	const selectCols = `
		SELECT id, kind, endpoint, method, payload, headers, retry_count,
		       max_retries, next_eligible_at, status, last_error, user_id, created_at
		FROM sync_queue`

	return prepareAll(ctx, s.db, []stmtDef{
		{&s.queueStmts.insert, `
			INSERT INTO sync_queue
				(kind, endpoint, method, payload, headers, retry_count,
				 max_retries, next_eligible_at, status, last_error, user_id, created_at)
			VALUES (?, ?, ?, ?, ?, 0, ?, NULL, 'pending', '', ?, ?)`, "queue insert"},
		{&s.queueStmts.oldestEligible, selectCols + `
			WHERE status = 'pending'
			  AND (next_eligible_at IS NULL OR next_eligible_at <= ?)
			ORDER BY created_at, id LIMIT 1`, "queue oldest eligible"},
		{&s.queueStmts.batch, selectCols + `
			WHERE status = 'pending' AND endpoint = ?
			  AND (next_eligible_at IS NULL OR next_eligible_at <= ?)
			ORDER BY created_at, id LIMIT ?`, "queue batch"},
		{&s.queueStmts.markSuccess, `
			UPDATE sync_queue SET status = 'success', last_error = ''
			WHERE id = ? AND status = 'pending'`, "queue mark success"},
		{&s.queueStmts.markRetry, `
			UPDATE sync_queue SET
				retry_count = retry_count + 1,
				next_eligible_at = ?,
				last_error = ?,
				status = CASE WHEN retry_count + 1 >= max_retries
					THEN 'failed' ELSE 'pending' END
			WHERE id = ? AND status = 'pending'`, "queue mark retry"},
		{&s.queueStmts.markFailed, `
			UPDATE sync_queue SET status = 'failed', last_error = ?
			WHERE id = ? AND status = 'pending'`, "queue mark failed"},
		{&s.queueStmts.get, selectCols + ` WHERE id = ?`, "queue get"},
		{&s.queueStmts.countByStatus, `
			SELECT COUNT(*) FROM sync_queue WHERE status = ?`, "queue count by status"},
		{&s.queueStmts.deadLetters, selectCols + `
			WHERE status = 'failed' ORDER BY created_at, id`, "queue dead letters"},
	})
}

// Enqueue appends a delivery job to the durable queue and returns its id.
// The item is created pending with a nil next-eligible time, meaning it is
// eligible for the next sync cycle immediately.
func (s *Store) Enqueue(ctx context.Context, job Job) (int64, error) {
	maxRetries := job.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries(job.Kind)
	}

	var headers any
	if len(job.Headers) > 0 {
		raw, err := json.Marshal(job.Headers)
		if err != nil {
			return 0, wrapErr("encoding queue headers", err)
		}

		headers = string(raw)
	}

	res, err := s.queueStmts.insert.ExecContext(ctx,
		string(job.Kind), job.Endpoint, job.Method, string(job.Payload),
		headers, maxRetries, job.UserID, NowNano())
	if err != nil {
		return 0, wrapErr("enqueueing "+string(job.Kind), err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrapErr("enqueueing "+string(job.Kind), err)
	}

	return id, nil
}

// NextBatch returns up to limit eligible pending items, all targeting the
// same endpoint as the oldest eligible item, in creation order. An empty
// result means nothing is eligible at the given time. Items stay pending;
// the caller reports the outcome with MarkSuccess, MarkRetry or
// MarkFailed.
func (s *Store) NextBatch(ctx context.Context, now int64, limit int) ([]*QueueItem, error) {
	head, err := scanQueueItem(s.queueStmts.oldestEligible.QueryRowContext(ctx, now))
	if err != nil {
		return nil, err
	}

	if head == nil {
		return nil, nil
	}

	rows, err := s.queueStmts.batch.QueryContext(ctx, head.Endpoint, now, limit)
	if err != nil {
		return nil, wrapErr("reading queue batch", err)
	}
	defer rows.Close()

	var out []*QueueItem

	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, item)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterating queue batch", err)
	}

	return out, nil
}

// MarkSuccess transitions a pending item to success.
func (s *Store) MarkSuccess(ctx context.Context, id int64) error {
	return s.guardedTransition(ctx, s.queueStmts.markSuccess, "success", id)
}

// MarkRetry records a retryable failure: increments the retry counter,
// stores the error and the next-eligible time, and flips the item to
// failed when the retry budget is exhausted. Returns the item's resulting
// status so the caller can surface dead-lettering.
func (s *Store) MarkRetry(ctx context.Context, id int64, nextEligibleAt int64, lastError string) (QueueStatus, error) {
	res, err := s.queueStmts.markRetry.ExecContext(ctx, nextEligibleAt, lastError, id)
	if err != nil {
		return "", wrapErr(fmt.Sprintf("marking item %d for retry", id), err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return "", wrapErr(fmt.Sprintf("marking item %d for retry", id), err)
	}

	if n == 0 {
		return "", fmt.Errorf("store: marking item %d for retry: %w", id, ErrItemNotPending)
	}

	item, err := s.GetQueueItem(ctx, id)
	if err != nil {
		return "", err
	}

	return item.Status, nil
}

// MarkFailed transitions a pending item straight to failed, bypassing the
// retry budget. Used for permanent rejections such as validation errors.
func (s *Store) MarkFailed(ctx context.Context, id int64, lastError string) error {
	res, err := s.queueStmts.markFailed.ExecContext(ctx, lastError, id)
	if err != nil {
		return wrapErr(fmt.Sprintf("marking item %d failed", id), err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr(fmt.Sprintf("marking item %d failed", id), err)
	}

	if n == 0 {
		return fmt.Errorf("store: marking item %d failed: %w", id, ErrItemNotPending)
	}

	return nil
}

func (s *Store) guardedTransition(ctx context.Context, stmt *sql.Stmt, to string, id int64) error {
	res, err := stmt.ExecContext(ctx, id)
	if err != nil {
		return wrapErr(fmt.Sprintf("marking item %d %s", id, to), err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr(fmt.Sprintf("marking item %d %s", id, to), err)
	}

	if n == 0 {
		return fmt.Errorf("store: marking item %d %s: %w", id, to, ErrItemNotPending)
	}

	return nil
}

// GetQueueItem returns the item with the given id, or (nil, nil).
func (s *Store) GetQueueItem(ctx context.Context, id int64) (*QueueItem, error) {
	return scanQueueItem(s.queueStmts.get.QueryRowContext(ctx, id))
}

// CountQueued returns the number of items in the given status.
func (s *Store) CountQueued(ctx context.Context, status QueueStatus) (int, error) {
	var n int
	if err := s.queueStmts.countByStatus.QueryRowContext(ctx, string(status)).Scan(&n); err != nil {
		return 0, wrapErr("counting queue items", err)
	}

	return n, nil
}

// DeadLetters returns all failed items, oldest first, for inspection.
func (s *Store) DeadLetters(ctx context.Context) ([]*QueueItem, error) {
	rows, err := s.queueStmts.deadLetters.QueryContext(ctx)
	if err != nil {
		return nil, wrapErr("listing dead letters", err)
	}
	defer rows.Close()

	var out []*QueueItem

	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, item)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterating dead letters", err)
	}

	return out, nil
}

func scanQueueItem(row rowScanner) (*QueueItem, error) {
	var (
		item         QueueItem
		kind         string
		payload      string
		headers      sql.NullString
		nextEligible sql.NullInt64
		status       string
	)

	err := row.Scan(&item.ID, &kind, &item.Endpoint, &item.Method, &payload,
		&headers, &item.RetryCount, &item.MaxRetries, &nextEligible,
		&status, &item.LastError, &item.UserID, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, wrapErr("scanning queue item", err)
	}

	item.Kind = ParseJobKind(kind)
	item.Payload = []byte(payload)
	item.Status = QueueStatus(status)

	if nextEligible.Valid {
		item.NextEligibleAt = &nextEligible.Int64
	}

	if headers.Valid && headers.String != "" {
		if err := json.Unmarshal([]byte(headers.String), &item.Headers); err != nil {
			return nil, wrapErr("decoding queue headers", err)
		}
	}

	return &item, nil
}
