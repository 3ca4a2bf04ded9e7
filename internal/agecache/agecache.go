// Package agecache discovers a wallet's first-seen timestamp lazily, off
// the scanner's critical path, by paginating its full signature history.
package agecache

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"treasurybot/internal/ledger"
	"treasurybot/internal/store"
)

const (
	maxPages       = 20
	pageSize       = 1000
	interPageDelay = 100 * time.Millisecond
)

// Cache resolves and persists first_seen_ts for wallets, deduplicating
// concurrent lookups for the same wallet.
type Cache struct {
	store   *store.Store
	adapter ledger.Adapter

	mu      sync.Mutex
	pending map[string]struct{}
}

func New(s *store.Store, adapter ledger.Adapter) *Cache {
	return &Cache{store: s, adapter: adapter, pending: map[string]struct{}{}}
}

// ScheduleLookup kicks off a background resolution for wallet if one isn't
// already in flight. It never blocks the caller.
func (c *Cache) ScheduleLookup(wallet string) {
	c.mu.Lock()
	if _, inFlight := c.pending[wallet]; inFlight {
		c.mu.Unlock()
		return
	}
	c.pending[wallet] = struct{}{}
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			delete(c.pending, wallet)
			c.mu.Unlock()
		}()
		if err := c.Resolve(context.Background(), wallet); err != nil {
			log.WithError(err).WithField("wallet", wallet).Debug("agecache: resolution failed, will retry on next sighting")
		}
	}()
}

// Resolve fetches and persists wallet's first-seen timestamp if it is not
// already stored. A transport error fails open: it returns nil without
// persisting anything or marking safe mode, since the scanner will simply
// retry next time the wallet is seen again.
func (c *Cache) Resolve(ctx context.Context, wallet string) error {
	h, err := c.store.GetHolder(wallet)
	if err != nil && err != store.ErrNotFound {
		return err
	}
	if h != nil && h.FirstSeenTs != nil {
		return nil
	}

	var minTs int64
	have := false
	before := ""

	for page := 0; page < maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		sigs, err := c.adapter.SignaturesForAddress(ctx, wallet, pageSize, before)
		if err != nil {
			return nil // fail open
		}
		if len(sigs) == 0 {
			break
		}

		for _, sig := range sigs {
			if !have || sig.BlockTime < minTs {
				minTs = sig.BlockTime
				have = true
			}
		}

		before = sigs[len(sigs)-1].Signature
		if len(sigs) < pageSize {
			break
		}
		time.Sleep(interPageDelay)
	}

	if !have {
		return nil
	}

	ts := minTs
	return c.store.UpsertHolder(store.HolderUpsert{Wallet: wallet, FirstSeenTs: &ts})
}
