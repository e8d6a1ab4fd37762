package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrSessionClosed is returned when closing a session that already has an
// end time. Close happens exactly once; callers that race simply lose.
var ErrSessionClosed = errors.New("store: session already closed")

func (s *Store) prepareSessionStmts(ctx context.Context) error {
	const selectCols = `
		SELECT id, user_id, device_id, started_at, ended_at, total_blinks,
		       app_version, os_info, synced, created_at
		FROM sessions`

	return prepareAll(ctx, s.db, []stmtDef{
		{&s.sessionStmts.insert, `
			INSERT INTO sessions
				(id, user_id, device_id, started_at, ended_at, total_blinks,
				 app_version, os_info, synced, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, "session insert"},
		{&s.sessionStmts.get, selectCols + ` WHERE id = ?`, "session get"},
		{&s.sessionStmts.getOpen, selectCols + `
			WHERE user_id = ? AND device_id = ? AND ended_at IS NULL`, "session get open"},
		{&s.sessionStmts.close, `
			UPDATE sessions SET ended_at = ?, synced = 0
			WHERE id = ? AND ended_at IS NULL`, "session close"},
		{&s.sessionStmts.recomputeTotal, `
			UPDATE sessions SET total_blinks =
				(SELECT COALESCE(SUM(blink_count), 0) FROM interval_records
				 WHERE session_id = sessions.id)
			WHERE id = ?`, "session recompute total"},
		{&s.sessionStmts.markSynced, `
			UPDATE sessions SET synced = 1 WHERE id = ?`, "session mark synced"},
		{&s.sessionStmts.upsert, `
			INSERT INTO sessions
				(id, user_id, device_id, started_at, ended_at, total_blinks,
				 app_version, os_info, synced, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				started_at = excluded.started_at,
				ended_at = excluded.ended_at,
				total_blinks = excluded.total_blinks,
				synced = excluded.synced`, "session upsert"},
		{&s.sessionStmts.listByUser, selectCols + `
			WHERE user_id = ? ORDER BY started_at`, "session list by user"},
	})
}

// CreateSession inserts a new open session. The partial unique index on
// (user_id, device_id) rejects a second open session for the same pair.
func (s *Store) CreateSession(ctx context.Context, sess *Session) error {
	if sess.CreatedAt == 0 {
		sess.CreatedAt = NowNano()
	}

	_, err := s.sessionStmts.insert.ExecContext(ctx,
		sess.ID, sess.UserID, sess.DeviceID, sess.StartedAt, sess.EndedAt,
		sess.TotalBlinks, sess.AppVersion, sess.OSInfo, sess.Synced, sess.CreatedAt)
	if err != nil {
		return wrapErr("creating session "+sess.ID, err)
	}

	return nil
}

// GetSession returns the session with the given id, or (nil, nil) if none
// exists.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	return scanSession(s.sessionStmts.get.QueryRowContext(ctx, id))
}

// OpenSession returns the open session for a (user, device) pair, or
// (nil, nil) if the device has no session in progress.
func (s *Store) OpenSession(ctx context.Context, userID, deviceID string) (*Session, error) {
	return scanSession(s.sessionStmts.getOpen.QueryRowContext(ctx, userID, deviceID))
}

// CloseSession sets the session's end time and recomputes total_blinks
// from its interval records, in one transaction. Returns ErrSessionClosed
// if the session was already closed, so the end time is written at most
// once.
func (s *Store) CloseSession(ctx context.Context, id string, endedAt int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("closing session "+id, err)
	}
	defer tx.Rollback()

	res, err := tx.StmtContext(ctx, s.sessionStmts.close).ExecContext(ctx, endedAt, id)
	if err != nil {
		return wrapErr("closing session "+id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr("closing session "+id, err)
	}

	if n == 0 {
		return fmt.Errorf("store: closing session %s: %w", id, ErrSessionClosed)
	}

	if _, err := tx.StmtContext(ctx, s.sessionStmts.recomputeTotal).ExecContext(ctx, id); err != nil {
		return wrapErr("recomputing totals for session "+id, err)
	}

	if err := tx.Commit(); err != nil {
		return wrapErr("closing session "+id, err)
	}

	return nil
}

// RecomputeSessionTotal re-derives total_blinks from the session's
// interval records. Called after merging records in from another device.
func (s *Store) RecomputeSessionTotal(ctx context.Context, id string) error {
	if _, err := s.sessionStmts.recomputeTotal.ExecContext(ctx, id); err != nil {
		return wrapErr("recomputing totals for session "+id, err)
	}

	return nil
}

// MarkSessionSynced records server acknowledgement of the session's
// current state.
func (s *Store) MarkSessionSynced(ctx context.Context, id string) error {
	if _, err := s.sessionStmts.markSynced.ExecContext(ctx, id); err != nil {
		return wrapErr("marking session synced "+id, err)
	}

	return nil
}

// ApplyMergedSession writes a conflict-resolution result: the merged
// session row plus any interval records from other devices this store has
// not seen, then recomputes total_blinks, all in one transaction. Records
// already present locally are left untouched.
func (s *Store) ApplyMergedSession(ctx context.Context, sess *Session, foreign []*IntervalRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("applying merged session "+sess.ID, err)
	}
	defer tx.Rollback()

	_, err = tx.StmtContext(ctx, s.sessionStmts.upsert).ExecContext(ctx,
		sess.ID, sess.UserID, sess.DeviceID, sess.StartedAt, sess.EndedAt,
		sess.TotalBlinks, sess.AppVersion, sess.OSInfo, sess.Synced, sess.CreatedAt)
	if err != nil {
		return wrapErr("applying merged session "+sess.ID, err)
	}

	for _, rec := range foreign {
		if rec.CreatedAt == 0 {
			rec.CreatedAt = NowNano()
		}

		// Foreign records arrive already server-acknowledged.
		_, err := tx.ExecContext(ctx, `
			INSERT INTO interval_records
				(id, session_id, device_id, timestamp, blink_count, confidence,
				 strain_score, interval_seconds, synced, sync_attempts, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, 0, ?)
			ON CONFLICT(id) DO NOTHING`,
			rec.ID, rec.SessionID, rec.DeviceID, rec.Timestamp, rec.BlinkCount,
			rec.Confidence, rec.StrainScore, rec.IntervalSeconds, rec.CreatedAt)
		if err != nil {
			return wrapErr("merging record "+rec.ID, err)
		}
	}

	_, err = tx.StmtContext(ctx, s.sessionStmts.recomputeTotal).ExecContext(ctx, sess.ID)
	if err != nil {
		return wrapErr("recomputing totals for session "+sess.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return wrapErr("applying merged session "+sess.ID, err)
	}

	return nil
}

// ListSessions returns all of a user's sessions ordered by start time.
func (s *Store) ListSessions(ctx context.Context, userID string) ([]*Session, error) {
	rows, err := s.sessionStmts.listByUser.QueryContext(ctx, userID)
	if err != nil {
		return nil, wrapErr("listing sessions for "+userID, err)
	}
	defer rows.Close()

	var out []*Session

	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, sess)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterating sessions", err)
	}

	return out, nil
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		sess    Session
		endedAt sql.NullInt64
	)

	err := row.Scan(&sess.ID, &sess.UserID, &sess.DeviceID, &sess.StartedAt,
		&endedAt, &sess.TotalBlinks, &sess.AppVersion, &sess.OSInfo,
		&sess.Synced, &sess.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, wrapErr("scanning session", err)
	}

	if endedAt.Valid {
		sess.EndedAt = &endedAt.Int64
	}

	return &sess, nil
}
