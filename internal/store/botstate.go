package store

import (
	"database/sql"
	"fmt"
)

// safeModeKey is the bot_state key that latches safe mode on: once set, it
// stays set until an operator explicitly clears it (I5). Nothing in the
// scheduler or jobs ever clears it automatically.
const safeModeKey = "safe_mode"

// GetState returns the raw string value stored under key, or ErrNotFound.
func (s *Store) GetState(key string) (string, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM bot_state WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: read state %q: %v", ErrUnavailable, key, err)
	}
	return v, nil
}

// SetState upserts key to value.
func (s *Store) SetState(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO bot_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("%w: write state %q: %v", ErrUnavailable, key, err)
	}
	return nil
}

// DeleteState removes key. Deleting an absent key is not an error.
func (s *Store) DeleteState(key string) error {
	_, err := s.db.Exec(`DELETE FROM bot_state WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("%w: delete state %q: %v", ErrUnavailable, key, err)
	}
	return nil
}

// IsSafeMode reports whether safe mode is currently latched.
func (s *Store) IsSafeMode() (bool, error) {
	_, err := s.GetState(safeModeKey)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// TripSafeMode latches safe mode with reason recorded for the operator.
// Calling it again while already tripped just overwrites the reason.
func (s *Store) TripSafeMode(reason string) error {
	return s.SetState(safeModeKey, reason)
}

// ClearSafeMode un-latches safe mode. This is the only path that removes
// the safe_mode key; it exists for the operator-driven --exit-safe-mode
// command, never called from a job or the scheduler itself.
func (s *Store) ClearSafeMode() error {
	return s.DeleteState(safeModeKey)
}
