package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// InsertRound appends a new round record. Rounds are append-only: there is
// no update path, so a round always reflects what actually happened (or was
// attempted) at the time it ran, even on failure.
func (s *Store) InsertRound(r Round, createdTs int64) error {
	txs, err := json.Marshal(r.Txs)
	if err != nil {
		return fmt.Errorf("marshal round txs: %w", err)
	}
	meta, err := json.Marshal(r.Meta)
	if err != nil {
		return fmt.Errorf("marshal round meta: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO rounds (id, type, ts, txs, meta, created_ts)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.Type), r.Ts, string(txs), string(meta), createdTs,
	)
	if err != nil {
		return fmt.Errorf("%w: insert round: %v", ErrUnavailable, err)
	}
	return nil
}

// LatestRound returns the most recently timestamped round of the given
// type, or ErrNotFound if none exists yet.
func (s *Store) LatestRound(t RoundType) (*Round, error) {
	row := s.db.QueryRow(`
		SELECT id, type, ts, txs, meta FROM rounds
		WHERE type = ? ORDER BY ts DESC, id DESC LIMIT 1`, string(t))
	return scanRound(row)
}

// RoundsByType returns rounds of the given type, newest first, capped at
// limit.
func (s *Store) RoundsByType(t RoundType, limit int) ([]Round, error) {
	rows, err := s.db.Query(`
		SELECT id, type, ts, txs, meta FROM rounds
		WHERE type = ? ORDER BY ts DESC, id DESC LIMIT ?`, string(t), limit)
	if err != nil {
		return nil, fmt.Errorf("%w: query rounds: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var out []Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan round: %v", ErrUnavailable, err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func scanRound(row rowScanner) (*Round, error) {
	var r Round
	var rtype, txs, meta string
	if err := row.Scan(&r.ID, &rtype, &r.Ts, &txs, &meta); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	r.Type = RoundType(rtype)
	if err := json.Unmarshal([]byte(txs), &r.Txs); err != nil {
		return nil, fmt.Errorf("unmarshal round txs: %w", err)
	}
	if err := json.Unmarshal([]byte(meta), &r.Meta); err != nil {
		return nil, fmt.Errorf("unmarshal round meta: %w", err)
	}
	return &r, nil
}
