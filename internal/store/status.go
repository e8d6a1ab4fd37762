package store

import "context"

// SyncStatus aggregates the queue and record counters the UI layer polls.
// Items with retry budget remaining count as pending; exhausted items as
// failed.
func (s *Store) SyncStatus(ctx context.Context) (*Status, error) {
	pending, err := s.CountQueued(ctx, StatusPending)
	if err != nil {
		return nil, err
	}

	failed, err := s.CountQueued(ctx, StatusFailed)
	if err != nil {
		return nil, err
	}

	unsynced, err := s.CountUnsyncedRecords(ctx)
	if err != nil {
		return nil, err
	}

	lastSuccess, err := s.LastSyncSuccess(ctx)
	if err != nil {
		return nil, err
	}

	return &Status{
		PendingItems:    pending,
		FailedItems:     failed,
		UnsyncedRecords: unsynced,
		LastSuccess:     lastSuccess,
	}, nil
}
