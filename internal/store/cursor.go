package store

import (
	"database/sql"
	"fmt"
)

// ScanCursor returns the scanner's current position, or the zero cursor if
// scanning has never run.
func (s *Store) ScanCursor() (ScanCursor, error) {
	var c ScanCursor
	var sig sql.NullString
	var ts sql.NullInt64
	err := s.db.QueryRow(`
		SELECT last_processed_signature, last_processed_timestamp
		FROM scan_state WHERE id = 1`).Scan(&sig, &ts)
	if err == sql.ErrNoRows {
		return ScanCursor{}, nil
	}
	if err != nil {
		return ScanCursor{}, fmt.Errorf("%w: read scan cursor: %v", ErrUnavailable, err)
	}
	c.LastProcessedSignature = sig.String
	c.LastProcessedTimestamp = ts.Int64
	return c, nil
}

// AdvanceScanCursor moves the cursor forward. Callers are responsible for
// only ever advancing to a newer signature; the store does not itself
// enforce monotonicity since the scanner derives newest-first ordering from
// the ledger adapter.
func (s *Store) AdvanceScanCursor(c ScanCursor) error {
	_, err := s.db.Exec(`
		INSERT INTO scan_state (id, last_processed_signature, last_processed_timestamp)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_processed_signature = excluded.last_processed_signature,
			last_processed_timestamp = excluded.last_processed_timestamp`,
		c.LastProcessedSignature, c.LastProcessedTimestamp,
	)
	if err != nil {
		return fmt.Errorf("%w: advance scan cursor: %v", ErrUnavailable, err)
	}
	return nil
}
