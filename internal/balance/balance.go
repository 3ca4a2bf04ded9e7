// Package balance refreshes each known holder's current token balance and
// applies the continuity-reset rule: any strict decrease zeroes the
// holder's streak and time-weighted-balance accrual.
package balance

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"treasurybot/internal/clockid"
	"treasurybot/internal/ledger"
	"treasurybot/internal/store"
)

const (
	batchSize      = 50
	interBatchWait = 100 * time.Millisecond
)

// Refresher walks every known wallet and reconciles its stored balance
// against the ledger's current view.
type Refresher struct {
	store   *store.Store
	adapter ledger.Adapter
	mint    string
}

func New(s *store.Store, adapter ledger.Adapter, mint string) *Refresher {
	return &Refresher{store: s, adapter: adapter, mint: mint}
}

// Result summarizes one refresh pass.
type Result struct {
	WalletsChecked int
	Decreases      int
	Failed         int
}

// Refresh fetches every wallet's current token balance in batches of
// batchSize, pausing interBatchWait between batches. A per-wallet lookup
// failure is swallowed: its stored balance is left untouched.
func (r *Refresher) Refresh(ctx context.Context) (Result, error) {
	var result Result

	wallets, err := r.store.AllWallets()
	if err != nil {
		return result, err
	}

	for i := 0; i < len(wallets); i += batchSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		end := i + batchSize
		if end > len(wallets) {
			end = len(wallets)
		}
		for _, w := range wallets[i:end] {
			if err := r.refreshOne(ctx, w); err != nil {
				result.Failed++
				log.WithError(err).WithField("wallet", w).Debug("balance: refresh failed, leaving stored balance untouched")
				continue
			}
			result.WalletsChecked++
		}

		if end < len(wallets) {
			time.Sleep(interBatchWait)
		}
	}

	return result, nil
}

func (r *Refresher) refreshOne(ctx context.Context, wallet string) error {
	tb, err := r.adapter.TokenBalance(ctx, wallet, r.mint)
	if err != nil {
		return err
	}

	holder, err := r.store.GetHolder(wallet)
	if err != nil {
		return err
	}

	now := clockid.NowUnix()
	rawBalance := tb.RawAmount

	u := store.HolderUpsert{
		Wallet:             wallet,
		LastBalanceRaw:     &rawBalance,
		LastBalanceCheckTs: &now,
		LastSeenTs:         &now,
	}

	switch {
	case rawBalance < holder.LastBalanceRaw:
		u.ContinuityStartTs = &now
		u.LastDecreaseTs = &now
		zero := 0
		zeroF := 0.0
		u.StreakRoundsSet = &zero
		u.TWBScoreSet = &zeroF
	case holder.LastBalanceRaw == 0 && rawBalance > 0 && holder.ContinuityStartTs == nil:
		u.ContinuityStartTs = &now
	}

	return r.store.UpsertHolder(u)
}
