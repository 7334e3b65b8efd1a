package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Settings keys are namespaced with a colon-separated prefix. The kill-switch
// keys below gate the assistant per (space, channel) and are checked on every
// turn before any model call or quota consumption.
const (
	killSwitchPrefix = "killswitch"
)

// SetSetting stores value under key, creating or overwriting the entry.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assistant_settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set setting %q: %w", key, err)
	}
	return nil
}

// GetSetting returns the value for key. Returns ErrNotFound when absent.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM assistant_settings WHERE key = ?`, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("setting %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %q: %w", key, err)
	}
	return value, nil
}

// DeleteSetting removes key. Deleting an absent key is a no-op.
func (s *Store) DeleteSetting(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM assistant_settings WHERE key = ?`, key,
	); err != nil {
		return fmt.Errorf("failed to delete setting %q: %w", key, err)
	}
	return nil
}

// SetKillSwitch disables (or re-enables) the assistant for a space on one
// channel ("text" or "voice"). Channels toggle independently.
func (s *Store) SetKillSwitch(ctx context.Context, spaceID, channel string, disabled bool) error {
	key := killSwitchKey(spaceID, channel)
	if !disabled {
		return s.DeleteSetting(ctx, key)
	}
	return s.SetSetting(ctx, key, "1")
}

// IsChannelDisabled reports whether the kill-switch is set for the space and
// channel. Lookup failures other than absence propagate so the engine can
// fail safe.
func (s *Store) IsChannelDisabled(ctx context.Context, spaceID, channel string) (bool, error) {
	_, err := s.GetSetting(ctx, killSwitchKey(spaceID, channel))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

func killSwitchKey(spaceID, channel string) string {
	return fmt.Sprintf("%s:%s:%s", killSwitchPrefix, spaceID, channel)
}
