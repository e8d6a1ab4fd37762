package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedUser populates sessions, records, consents and a queue item for one
// user.
func seedUser(t *testing.T, s *Store, userID, sessionID string) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, makeTestSession(sessionID, userID, "device_"+userID)))
	require.NoError(t, s.InsertRecord(ctx, makeTestRecord(sessionID+"-r1", sessionID, "device_"+userID, 3)))
	require.NoError(t, s.AppendConsent(ctx, &ConsentEvent{
		ID: sessionID + "-c1", UserID: userID, ConsentType: "telemetry",
		Granted: true, Timestamp: NowNano(),
	}))

	job := makeTestJob(KindBlinkBatch, "/sessions/"+sessionID+"/blinks/batch")
	job.UserID = userID
	_, err := s.Enqueue(ctx, job)
	require.NoError(t, err)
}

func TestEraseUser(t *testing.T) {
	ctx := context.Background()

	t.Run("removes every row for the user", func(t *testing.T) {
		s := newTestStore(t)
		seedUser(t, s, "u1", "s1")

		require.NoError(t, s.EraseUser(ctx, "u1"))

		sessions, err := s.ListSessions(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, sessions)

		records, err := s.ListRecordsBySession(ctx, "s1")
		require.NoError(t, err)
		assert.Empty(t, records)

		consents, err := s.ListConsents(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, consents)

		pending, err := s.CountQueued(ctx, StatusPending)
		require.NoError(t, err)
		assert.Zero(t, pending)
	})

	t.Run("other users are untouched", func(t *testing.T) {
		s := newTestStore(t)
		seedUser(t, s, "u1", "s1")
		seedUser(t, s, "u2", "s2")

		require.NoError(t, s.EraseUser(ctx, "u1"))

		sessions, err := s.ListSessions(ctx, "u2")
		require.NoError(t, err)
		assert.Len(t, sessions, 1)

		records, err := s.ListRecordsBySession(ctx, "s2")
		require.NoError(t, err)
		assert.Len(t, records, 1)

		pending, err := s.CountQueued(ctx, StatusPending)
		require.NoError(t, err)
		assert.Equal(t, 1, pending)
	})

	t.Run("export after erasure is empty", func(t *testing.T) {
		s := newTestStore(t)
		seedUser(t, s, "u1", "s1")

		require.NoError(t, s.EraseUser(ctx, "u1"))

		export, err := s.ExportUser(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, export.Sessions)
		assert.Empty(t, export.Records)
		assert.Empty(t, export.Consents)
	})
}

func TestExportUser(t *testing.T) {
	ctx := context.Background()

	t.Run("collects the full dataset", func(t *testing.T) {
		s := newTestStore(t)
		seedUser(t, s, "u1", "s1")

		export, err := s.ExportUser(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "u1", export.UserID)
		assert.NotZero(t, export.ExportedAt)
		require.Len(t, export.Sessions, 1)
		require.Len(t, export.Records, 1)
		require.Len(t, export.Consents, 1)
		assert.Equal(t, "s1", export.Records[0].SessionID)
	})

	t.Run("unknown user yields empty slices", func(t *testing.T) {
		s := newTestStore(t)

		export, err := s.ExportUser(ctx, "ghost")
		require.NoError(t, err)
		assert.NotNil(t, export.Sessions)
		assert.Empty(t, export.Sessions)
		assert.Empty(t, export.Records)
		assert.Empty(t, export.Consents)
	})
}
