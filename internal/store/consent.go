package store

import "context"

func (s *Store) prepareConsentStmts(ctx context.Context) error {
	return prepareAll(ctx, s.db, []stmtDef{
		{&s.consentStmts.append, `
			INSERT INTO consent_events
				(id, user_id, consent_type, granted, timestamp, policy_version)
			VALUES (?, ?, ?, ?, ?, ?)`, "consent append"},
		{&s.consentStmts.listByUser, `
			SELECT id, user_id, consent_type, granted, timestamp, policy_version
			FROM consent_events WHERE user_id = ? ORDER BY timestamp, id`, "consent list"},
	})
}

// AppendConsent records one consent decision. Events are append-only;
// revoking consent is a new event, not a mutation.
func (s *Store) AppendConsent(ctx context.Context, ev *ConsentEvent) error {
	_, err := s.consentStmts.append.ExecContext(ctx,
		ev.ID, ev.UserID, ev.ConsentType, ev.Granted, ev.Timestamp, ev.PolicyVersion)
	if err != nil {
		return wrapErr("appending consent "+ev.ID, err)
	}

	return nil
}

// ListConsents returns a user's consent history in chronological order.
func (s *Store) ListConsents(ctx context.Context, userID string) ([]*ConsentEvent, error) {
	rows, err := s.consentStmts.listByUser.QueryContext(ctx, userID)
	if err != nil {
		return nil, wrapErr("listing consents for "+userID, err)
	}
	defer rows.Close()

	var out []*ConsentEvent

	for rows.Next() {
		var ev ConsentEvent

		err := rows.Scan(&ev.ID, &ev.UserID, &ev.ConsentType, &ev.Granted,
			&ev.Timestamp, &ev.PolicyVersion)
		if err != nil {
			return nil, wrapErr("scanning consent event", err)
		}

		out = append(out, &ev)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterating consent events", err)
	}

	return out, nil
}
