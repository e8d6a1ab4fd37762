package store

import (
	"context"
	"log/slog"
)

// EraseUser deletes every row belonging to the user across all tables in
// a single transaction: interval records (via their sessions), sessions,
// consent history, and the user's queued deliveries. Partial erasure is
// never visible; either the transaction commits or nothing changes.
func (s *Store) EraseUser(ctx context.Context, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("erasing user "+userID, err)
	}
	defer tx.Rollback()

	steps := []struct {
		name string
		sql  string
	}{
		{"records", `DELETE FROM interval_records WHERE session_id IN
			(SELECT id FROM sessions WHERE user_id = ?)`},
		{"sessions", `DELETE FROM sessions WHERE user_id = ?`},
		{"consents", `DELETE FROM consent_events WHERE user_id = ?`},
		{"queue items", `DELETE FROM sync_queue WHERE user_id = ?`},
	}

	for _, step := range steps {
		if _, err := tx.ExecContext(ctx, step.sql, userID); err != nil {
			return wrapErr("erasing "+step.name+" for "+userID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return wrapErr("erasing user "+userID, err)
	}

	s.logger.Info("erased all local data for user", slog.String("user_id", userID))

	return nil
}

// ExportUser collects the user's full local dataset: all sessions, their
// interval records, and the consent history. An unknown user yields an
// export with empty slices, not an error.
func (s *Store) ExportUser(ctx context.Context, userID string) (*Export, error) {
	export := &Export{
		UserID:     userID,
		ExportedAt: NowNano(),
		Sessions:   []*Session{},
		Records:    []*IntervalRecord{},
		Consents:   []*ConsentEvent{},
	}

	sessions, err := s.ListSessions(ctx, userID)
	if err != nil {
		return nil, err
	}

	export.Sessions = append(export.Sessions, sessions...)

	for _, sess := range sessions {
		records, err := s.ListRecordsBySession(ctx, sess.ID)
		if err != nil {
			return nil, err
		}

		export.Records = append(export.Records, records...)
	}

	consents, err := s.ListConsents(ctx, userID)
	if err != nil {
		return nil, err
	}

	export.Consents = append(export.Consents, consents...)

	return export, nil
}
