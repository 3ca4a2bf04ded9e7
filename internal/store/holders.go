package store

import (
	"database/sql"
	"fmt"
)

// GetHolder returns the holder for wallet, or ErrNotFound.
func (s *Store) GetHolder(wallet string) (*Holder, error) {
	row := s.db.QueryRow(`
		SELECT wallet, first_seen_ts, last_seen_ts, last_balance_raw,
		       last_balance_check_ts, last_decrease_ts, continuity_start_ts,
		       streak_rounds, twb_score, cumulative_buy_sol,
		       cumulative_buy_sol_low_conf, is_blacklisted
		FROM holders WHERE wallet = ?`, wallet)
	h, err := scanHolder(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get holder: %v", ErrUnavailable, err)
	}
	return h, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHolder(row rowScanner) (*Holder, error) {
	var h Holder
	var isBlacklisted int
	if err := row.Scan(
		&h.Wallet, &h.FirstSeenTs, &h.LastSeenTs, &h.LastBalanceRaw,
		&h.LastBalanceCheckTs, &h.LastDecreaseTs, &h.ContinuityStartTs,
		&h.StreakRounds, &h.TWBScore, &h.CumulativeBuySOL,
		&h.CumulativeBuySOLLowConf, &isBlacklisted,
	); err != nil {
		return nil, err
	}
	h.IsBlacklisted = isBlacklisted != 0
	return &h, nil
}

// UpsertHolder inserts the wallet if unseen, or merges the provided fields
// into the existing row. Omitted (nil) pointer fields are preserved.
func (s *Store) UpsertHolder(u HolderUpsert) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: begin upsert: %v", ErrUnavailable, err)
	}
	defer tx.Rollback()

	existing, err := s.getHolderTx(tx, u.Wallet)
	if err != nil && err != ErrNotFound {
		return err
	}

	if existing == nil {
		lastSeen := int64(0)
		if u.LastSeenTs != nil {
			lastSeen = *u.LastSeenTs
		}
		if _, err := tx.Exec(`
			INSERT INTO holders (wallet, first_seen_ts, last_seen_ts, last_balance_raw,
				last_balance_check_ts, last_decrease_ts, continuity_start_ts,
				streak_rounds, twb_score, cumulative_buy_sol, cumulative_buy_sol_low_conf,
				is_blacklisted)
			VALUES (?, ?, ?, 0, NULL, NULL, NULL, 0, 0, 0, 0, 0)`,
			u.Wallet, u.FirstSeenTs, lastSeen,
		); err != nil {
			return fmt.Errorf("%w: insert holder: %v", ErrUnavailable, err)
		}
		existing = &Holder{Wallet: u.Wallet, LastSeenTs: lastSeen}
	}

	next := applyUpsert(*existing, u)

	if _, err := tx.Exec(`
		UPDATE holders SET
			first_seen_ts = ?, last_seen_ts = ?, last_balance_raw = ?,
			last_balance_check_ts = ?, last_decrease_ts = ?, continuity_start_ts = ?,
			streak_rounds = ?, twb_score = ?, cumulative_buy_sol = ?,
			cumulative_buy_sol_low_conf = ?, is_blacklisted = ?
		WHERE wallet = ?`,
		next.FirstSeenTs, next.LastSeenTs, next.LastBalanceRaw,
		next.LastBalanceCheckTs, next.LastDecreaseTs, next.ContinuityStartTs,
		next.StreakRounds, next.TWBScore, next.CumulativeBuySOL,
		next.CumulativeBuySOLLowConf, boolToInt(next.IsBlacklisted),
		u.Wallet,
	); err != nil {
		return fmt.Errorf("%w: update holder: %v", ErrUnavailable, err)
	}

	return tx.Commit()
}

func (s *Store) getHolderTx(tx *sql.Tx, wallet string) (*Holder, error) {
	row := tx.QueryRow(`
		SELECT wallet, first_seen_ts, last_seen_ts, last_balance_raw,
		       last_balance_check_ts, last_decrease_ts, continuity_start_ts,
		       streak_rounds, twb_score, cumulative_buy_sol,
		       cumulative_buy_sol_low_conf, is_blacklisted
		FROM holders WHERE wallet = ?`, wallet)
	h, err := scanHolder(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get holder: %v", ErrUnavailable, err)
	}
	return h, nil
}

// applyUpsert merges u onto existing, honoring (I1): FirstSeenTs, once
// non-null, never changes.
func applyUpsert(existing Holder, u HolderUpsert) Holder {
	next := existing

	if existing.FirstSeenTs == nil && u.FirstSeenTs != nil {
		next.FirstSeenTs = u.FirstSeenTs
	}
	if u.LastSeenTs != nil {
		next.LastSeenTs = *u.LastSeenTs
	}
	if u.LastBalanceRaw != nil {
		next.LastBalanceRaw = *u.LastBalanceRaw
	}
	if u.LastBalanceCheckTs != nil {
		next.LastBalanceCheckTs = u.LastBalanceCheckTs
	}
	if u.LastDecreaseTs != nil {
		next.LastDecreaseTs = u.LastDecreaseTs
	}
	if u.ContinuityStartTs != nil {
		next.ContinuityStartTs = u.ContinuityStartTs
	}
	if u.StreakRoundsSet != nil {
		next.StreakRounds = *u.StreakRoundsSet
	}
	if u.StreakRoundsDelta != nil {
		next.StreakRounds += *u.StreakRoundsDelta
	}
	if u.TWBScoreSet != nil {
		next.TWBScore = *u.TWBScoreSet
	}
	if u.TWBScoreDelta != nil {
		next.TWBScore += *u.TWBScoreDelta
	}
	if u.CumulativeBuyAdd != nil {
		next.CumulativeBuySOL += *u.CumulativeBuyAdd
	}
	if u.CumulativeBuyLowConfAdd != nil {
		next.CumulativeBuySOLLowConf += *u.CumulativeBuyLowConfAdd
	}
	if u.IsBlacklisted != nil {
		next.IsBlacklisted = *u.IsBlacklisted
	}
	return next
}

// EligibleHolders runs the (I3) eligibility predicate directly as an
// indexed query over (is_blacklisted, cumulative_buy_sol, first_seen_ts,
// continuity_start_ts, last_balance_raw).
func (s *Store) EligibleHolders(p EligibilityParams) ([]Holder, error) {
	rows, err := s.db.Query(`
		SELECT wallet, first_seen_ts, last_seen_ts, last_balance_raw,
		       last_balance_check_ts, last_decrease_ts, continuity_start_ts,
		       streak_rounds, twb_score, cumulative_buy_sol,
		       cumulative_buy_sol_low_conf, is_blacklisted
		FROM holders
		WHERE is_blacklisted = 0
		  AND cumulative_buy_sol >= ?
		  AND first_seen_ts IS NOT NULL AND first_seen_ts <= ?
		  AND continuity_start_ts IS NOT NULL AND continuity_start_ts <= ?
		  AND last_balance_raw > 0`,
		p.MinCumulativeBuy, p.Now-p.MinAgeSeconds, p.Now-p.MinContinuitySec,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: query eligible holders: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var out []Holder
	for rows.Next() {
		h, err := scanHolder(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan eligible holder: %v", ErrUnavailable, err)
		}
		out = append(out, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate eligible holders: %v", ErrUnavailable, err)
	}
	return out, nil
}

// AllWallets returns every known wallet address, for the balance refresher.
func (s *Store) AllWallets() ([]string, error) {
	rows, err := s.db.Query(`SELECT wallet FROM holders`)
	if err != nil {
		return nil, fmt.Errorf("%w: query wallets: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, fmt.Errorf("%w: scan wallet: %v", ErrUnavailable, err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
