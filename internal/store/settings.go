package store

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
)

func (s *Store) prepareSettingStmts(ctx context.Context) error {
	return prepareAll(ctx, s.db, []stmtDef{
		{&s.settingStmts.get, `
			SELECT value, updated_at FROM settings WHERE key = ?`, "setting get"},
		{&s.settingStmts.set, `
			INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				value = excluded.value, updated_at = excluded.updated_at`, "setting set"},
	})
}

// GetSetting returns the value for a key, or (nil, nil) when unset.
func (s *Store) GetSetting(ctx context.Context, key string) (*Setting, error) {
	setting := Setting{Key: key}

	err := s.settingStmts.get.QueryRowContext(ctx, key).Scan(&setting.Value, &setting.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, wrapErr("reading setting "+key, err)
	}

	return &setting, nil
}

// SetSetting writes a key/value pair, last write wins.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	if _, err := s.settingStmts.set.ExecContext(ctx, key, value, NowNano()); err != nil {
		return wrapErr("writing setting "+key, err)
	}

	return nil
}

// LastSyncSuccess returns the timestamp of the last fully successful sync
// cycle, or nil if none has completed yet.
func (s *Store) LastSyncSuccess(ctx context.Context) (*int64, error) {
	setting, err := s.GetSetting(ctx, SettingLastSuccess)
	if err != nil || setting == nil {
		return nil, err
	}

	ts, err := strconv.ParseInt(setting.Value, 10, 64)
	if err != nil {
		return nil, wrapErr("parsing last sync success", err)
	}

	return &ts, nil
}

// SetLastSyncSuccess records the completion time of a successful cycle.
func (s *Store) SetLastSyncSuccess(ctx context.Context, ts int64) error {
	return s.SetSetting(ctx, SettingLastSuccess, strconv.FormatInt(ts, 10))
}
