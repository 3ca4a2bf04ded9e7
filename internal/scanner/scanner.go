// Package scanner drives the holder registry from enriched ledger
// transactions: holder discovery, three-tiered buy detection, and cursor
// advancement.
package scanner

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"treasurybot/internal/agecache"
	"treasurybot/internal/ledger"
	"treasurybot/internal/store"
)

const (
	batchSize      = 100
	interPageDelay = 200 * time.Millisecond
)

// Scanner transforms a page-at-a-time stream of enriched transactions into
// holder-registry writes.
type Scanner struct {
	store   *store.Store
	adapter ledger.Adapter
	ages    *agecache.Cache
	mint    string
}

func New(s *store.Store, adapter ledger.Adapter, ages *agecache.Cache, mint string) *Scanner {
	return &Scanner{store: s, adapter: adapter, ages: ages, mint: mint}
}

// Result summarizes one scan run.
type Result struct {
	TransactionsSeen int
	NewHolders       int
	BuysDetected     int
}

// Bootstrap replays ledger history for the treasury's token newest-first,
// up to limit transactions, without stopping at the stored cursor.
func (s *Scanner) Bootstrap(ctx context.Context, limit int) (Result, error) {
	return s.run(ctx, limit, "")
}

// Incremental scans forward from the stored cursor, stopping once the
// cursor's signature is reached again.
func (s *Scanner) Incremental(ctx context.Context, limit int) (Result, error) {
	cursor, err := s.store.ScanCursor()
	if err != nil {
		return Result{}, err
	}
	return s.run(ctx, limit, cursor.LastProcessedSignature)
}

func (s *Scanner) run(ctx context.Context, limit int, stopAtSignature string) (Result, error) {
	var result Result
	var newestSignature string
	remaining := limit
	before := ""

	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		pageSize := batchSize
		if remaining < pageSize {
			pageSize = remaining
		}
		txs, err := s.adapter.EnrichedTransactionsByAddress(ctx, s.mint, pageSize, before)
		if err != nil {
			log.WithError(err).Warn("scanner: fetch page failed")
			return result, err
		}
		if len(txs) == 0 {
			break
		}

		stop := false
		for _, tx := range txs {
			if tx.Signature == stopAtSignature {
				// Already processed on the prior run; reprocessing would
				// double-count its buys against the idempotent cursor.
				stop = true
				break
			}

			result.TransactionsSeen++
			if newestSignature == "" {
				newestSignature = tx.Signature
			}

			if !tx.Failed {
				n, b, err := s.processTx(tx)
				if err != nil {
					log.WithError(err).WithField("signature", tx.Signature).Warn("scanner: skipping unparsable transaction")
				} else {
					result.NewHolders += n
					result.BuysDetected += b
				}
			}
		}

		if stop {
			break
		}

		before = txs[len(txs)-1].Signature
		remaining -= len(txs)
		if len(txs) < pageSize {
			break
		}
		time.Sleep(interPageDelay)
	}

	if newestSignature != "" {
		if err := s.store.AdvanceScanCursor(store.ScanCursor{
			LastProcessedSignature: newestSignature,
			LastProcessedTimestamp: time.Now().UTC().Unix(),
		}); err != nil {
			return result, err
		}
	}

	return result, nil
}

// processTx applies holder discovery and buy detection for one
// transaction, returning counts of new holders and detected buys.
func (s *Scanner) processTx(tx ledger.WalletTransaction) (newHolders, buys int, err error) {
	wallets := discoverWallets(tx, s.mint)
	for w := range wallets {
		_, getErr := s.store.GetHolder(w)
		if getErr != nil && getErr != store.ErrNotFound {
			return newHolders, buys, getErr
		}
		isNew := getErr == store.ErrNotFound

		if err := s.store.UpsertHolder(store.HolderUpsert{
			Wallet:     w,
			LastSeenTs: int64Ptr(tx.Timestamp),
		}); err != nil {
			return newHolders, buys, err
		}

		if isNew {
			newHolders++
			if s.ages != nil {
				s.ages.ScheduleLookup(w)
			}
		}
	}

	events := detectBuys(tx, s.mint)
	for _, ev := range events {
		var upsert store.HolderUpsert
		upsert.Wallet = ev.Wallet
		if ev.HighConfidence {
			upsert.CumulativeBuyAdd = floatPtr(ev.NativeAmount)
		} else {
			upsert.CumulativeBuyLowConfAdd = floatPtr(ev.NativeAmount)
		}
		if err := s.store.UpsertHolder(upsert); err != nil {
			return newHolders, buys, err
		}
		buys++
	}

	return newHolders, buys, nil
}

func int64Ptr(v int64) *int64     { return &v }
func floatPtr(v float64) *float64 { return &v }
