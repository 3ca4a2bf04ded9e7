package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// AcquireLock attempts to take the named execution lock for owner (the
// process pid). It returns ErrConflict if another owner already holds it,
// which callers use as the single-flight signal to skip a run.
func (s *Store) AcquireLock(t LockType, ownerPid int, nowTs int64) error {
	_, err := s.db.Exec(`
		INSERT INTO execution_locks (lock_type, acquired_ts, owner_pid)
		VALUES (?, ?, ?)`, string(t), nowTs, ownerPid)
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return ErrConflict
	}
	return fmt.Errorf("%w: acquire lock: %v", ErrUnavailable, err)
}

// ReleaseLock drops the named lock. Releasing a lock that isn't held is not
// an error, so shutdown paths can release unconditionally.
func (s *Store) ReleaseLock(t LockType) error {
	_, err := s.db.Exec(`DELETE FROM execution_locks WHERE lock_type = ?`, string(t))
	if err != nil {
		return fmt.Errorf("%w: release lock: %v", ErrUnavailable, err)
	}
	return nil
}

// ClearStaleLock removes the named lock if it was acquired before
// olderThanTs, recovering from a crash that left a lock held without its
// owner process actually running. Returns whether a stale lock was cleared.
func (s *Store) ClearStaleLock(t LockType, olderThanTs int64) (bool, error) {
	res, err := s.db.Exec(`
		DELETE FROM execution_locks WHERE lock_type = ? AND acquired_ts < ?`,
		string(t), olderThanTs)
	if err != nil {
		return false, fmt.Errorf("%w: clear stale lock: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: clear stale lock: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}

// LockHolder reports the owner pid currently holding t, or ErrNotFound.
func (s *Store) LockHolder(t LockType) (int, error) {
	var pid int
	err := s.db.QueryRow(`SELECT owner_pid FROM execution_locks WHERE lock_type = ?`, string(t)).Scan(&pid)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("%w: read lock holder: %v", ErrUnavailable, err)
	}
	return pid, nil
}
