package store

import (
	"context"
	"database/sql"
	"errors"
)

func (s *Store) prepareRecordStmts(ctx context.Context) error {
	return prepareAll(ctx, s.db, []stmtDef{
		{&s.recordStmts.insert, `
			INSERT INTO interval_records
				(id, session_id, device_id, timestamp, blink_count, confidence,
				 strain_score, interval_seconds, synced, sync_attempts, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, "record insert"},
		{&s.recordStmts.listBySession, `
			SELECT id, session_id, device_id, timestamp, blink_count, confidence,
			       strain_score, interval_seconds, synced, sync_attempts, created_at
			FROM interval_records WHERE session_id = ? ORDER BY timestamp`, "record list by session"},
		{&s.recordStmts.listUnsynced, `
			SELECT id, session_id, device_id, timestamp, blink_count, confidence,
			       strain_score, interval_seconds, synced, sync_attempts, created_at
			FROM interval_records WHERE synced = 0 ORDER BY created_at LIMIT ?`, "record list unsynced"},
		{&s.recordStmts.markSynced, `
			UPDATE interval_records SET synced = 1 WHERE id = ?`, "record mark synced"},
		{&s.recordStmts.bumpAttempts, `
			UPDATE interval_records SET sync_attempts = sync_attempts + 1
			WHERE id = ?`, "record bump attempts"},
		{&s.recordStmts.sumSession, `
			SELECT COALESCE(SUM(blink_count), 0) FROM interval_records
			WHERE session_id = ?`, "record sum session"},
		{&s.recordStmts.countUnsynced, `
			SELECT COUNT(*) FROM interval_records WHERE synced = 0`, "record count unsynced"},
	})
}

// InsertRecord persists one interval measurement. The caller supplies the
// record id; records are immutable after this point except the sync
// bookkeeping columns.
func (s *Store) InsertRecord(ctx context.Context, rec *IntervalRecord) error {
	if rec.CreatedAt == 0 {
		rec.CreatedAt = NowNano()
	}

	_, err := s.recordStmts.insert.ExecContext(ctx,
		rec.ID, rec.SessionID, rec.DeviceID, rec.Timestamp, rec.BlinkCount,
		rec.Confidence, rec.StrainScore, rec.IntervalSeconds,
		rec.Synced, rec.SyncAttempts, rec.CreatedAt)
	if err != nil {
		return wrapErr("inserting record "+rec.ID, err)
	}

	return nil
}

// ListRecordsBySession returns a session's records ordered by timestamp.
func (s *Store) ListRecordsBySession(ctx context.Context, sessionID string) ([]*IntervalRecord, error) {
	rows, err := s.recordStmts.listBySession.QueryContext(ctx, sessionID)
	if err != nil {
		return nil, wrapErr("listing records for session "+sessionID, err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ListUnsyncedRecords returns up to limit records not yet confirmed by the
// server, oldest first.
func (s *Store) ListUnsyncedRecords(ctx context.Context, limit int) ([]*IntervalRecord, error) {
	rows, err := s.recordStmts.listUnsynced.QueryContext(ctx, limit)
	if err != nil {
		return nil, wrapErr("listing unsynced records", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// MarkRecordsSynced flips the synced flag for a batch of records in one
// transaction, after the server has acknowledged the containing upload.
func (s *Store) MarkRecordsSynced(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("marking records synced", err)
	}
	defer tx.Rollback()

	stmt := tx.StmtContext(ctx, s.recordStmts.markSynced)

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return wrapErr("marking record synced "+id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return wrapErr("marking records synced", err)
	}

	return nil
}

// IncrementSyncAttempts bumps the attempt counter on a record after a
// failed upload containing it.
func (s *Store) IncrementSyncAttempts(ctx context.Context, id string) error {
	if _, err := s.recordStmts.bumpAttempts.ExecContext(ctx, id); err != nil {
		return wrapErr("incrementing sync attempts "+id, err)
	}

	return nil
}

// CountUnsyncedRecords returns the number of records awaiting server
// confirmation.
func (s *Store) CountUnsyncedRecords(ctx context.Context) (int, error) {
	var n int
	if err := s.recordStmts.countUnsynced.QueryRowContext(ctx).Scan(&n); err != nil {
		return 0, wrapErr("counting unsynced records", err)
	}

	return n, nil
}

func scanRecords(rows *sql.Rows) ([]*IntervalRecord, error) {
	var out []*IntervalRecord

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterating records", err)
	}

	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*IntervalRecord, error) {
	var (
		rec         IntervalRecord
		strainScore sql.NullFloat64
	)

	err := row.Scan(&rec.ID, &rec.SessionID, &rec.DeviceID, &rec.Timestamp,
		&rec.BlinkCount, &rec.Confidence, &strainScore, &rec.IntervalSeconds,
		&rec.Synced, &rec.SyncAttempts, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, wrapErr("scanning record", err)
	}

	if strainScore.Valid {
		rec.StrainScore = &strainScore.Float64
	}

	return &rec, nil
}
