package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func ptr[T any](v T) *T { return &v }

func TestUpsertHolder_InsertsNewWallet(t *testing.T) {
	s := openTestStore(t)

	err := s.UpsertHolder(HolderUpsert{
		Wallet:      "wallet-1",
		FirstSeenTs: ptr(int64(100)),
		LastSeenTs:  ptr(int64(100)),
	})
	require.NoError(t, err)

	h, err := s.GetHolder("wallet-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), *h.FirstSeenTs)
	assert.Equal(t, int64(100), h.LastSeenTs)
}

func TestUpsertHolder_PreservesFirstSeenTs(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.UpsertHolder(HolderUpsert{
		Wallet: "wallet-1", FirstSeenTs: ptr(int64(100)), LastSeenTs: ptr(int64(100)),
	}))
	require.NoError(t, s.UpsertHolder(HolderUpsert{
		Wallet: "wallet-1", FirstSeenTs: ptr(int64(500)), LastSeenTs: ptr(int64(500)),
	}))

	h, err := s.GetHolder("wallet-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), *h.FirstSeenTs, "first_seen_ts must not move once set")
	assert.Equal(t, int64(500), h.LastSeenTs)
}

func TestUpsertHolder_MergesOmittedFields(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.UpsertHolder(HolderUpsert{
		Wallet: "w", FirstSeenTs: ptr(int64(1)), LastSeenTs: ptr(int64(1)),
		LastBalanceRaw: ptr(uint64(1000)),
	}))
	require.NoError(t, s.UpsertHolder(HolderUpsert{
		Wallet: "w", StreakRoundsDelta: ptr(1),
	}))

	h, err := s.GetHolder("w")
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), h.LastBalanceRaw, "balance untouched by unrelated upsert")
	assert.Equal(t, 1, h.StreakRounds)
}

func TestUpsertHolder_AccumulatorDeltas(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.UpsertHolder(HolderUpsert{Wallet: "w", LastSeenTs: ptr(int64(1))}))
	require.NoError(t, s.UpsertHolder(HolderUpsert{Wallet: "w", CumulativeBuyAdd: ptr(1.5)}))
	require.NoError(t, s.UpsertHolder(HolderUpsert{Wallet: "w", CumulativeBuyAdd: ptr(2.5)}))

	h, err := s.GetHolder("w")
	require.NoError(t, err)
	assert.InDelta(t, 4.0, h.CumulativeBuySOL, 1e-9)
}

func TestEligibleHolders_FiltersByAllCriteria(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.UpsertHolder(HolderUpsert{
		Wallet: "eligible", FirstSeenTs: ptr(int64(0)), LastSeenTs: ptr(int64(1000)),
		LastBalanceRaw: ptr(uint64(10)), ContinuityStartTs: ptr(int64(0)),
		CumulativeBuyAdd: ptr(5.0),
	}))
	require.NoError(t, s.UpsertHolder(HolderUpsert{
		Wallet: "too-new", FirstSeenTs: ptr(int64(950)), LastSeenTs: ptr(int64(1000)),
		LastBalanceRaw: ptr(uint64(10)), ContinuityStartTs: ptr(int64(950)),
		CumulativeBuyAdd: ptr(5.0),
	}))
	require.NoError(t, s.UpsertHolder(HolderUpsert{
		Wallet: "blacklisted", FirstSeenTs: ptr(int64(0)), LastSeenTs: ptr(int64(1000)),
		LastBalanceRaw: ptr(uint64(10)), ContinuityStartTs: ptr(int64(0)),
		CumulativeBuyAdd: ptr(5.0), IsBlacklisted: ptr(true),
	}))
	require.NoError(t, s.UpsertHolder(HolderUpsert{
		Wallet: "zero-balance", FirstSeenTs: ptr(int64(0)), LastSeenTs: ptr(int64(1000)),
		ContinuityStartTs: ptr(int64(0)), CumulativeBuyAdd: ptr(5.0),
	}))

	got, err := s.EligibleHolders(EligibilityParams{
		Now: 1000, MinAgeSeconds: 100, MinContinuitySec: 100, MinCumulativeBuy: 1,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "eligible", got[0].Wallet)
}

func TestInsertRound_IsAppendOnlyAndOrderedByTs(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.InsertRound(Round{ID: "r1", Type: RoundBuy, Ts: 100, Meta: map[string]any{}}, 100))
	require.NoError(t, s.InsertRound(Round{ID: "r2", Type: RoundBuy, Ts: 200, Meta: map[string]any{}}, 200))

	latest, err := s.LatestRound(RoundBuy)
	require.NoError(t, err)
	assert.Equal(t, "r2", latest.ID)

	_, err = s.LatestRound(RoundReward)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInsertRound_RoundTripsTxsAndMeta(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.InsertRound(Round{
		ID: "r1", Type: RoundReward, Ts: 100,
		Txs:  []string{"sig1", "sig2"},
		Meta: map[string]any{"seed": float64(42), "winners": []any{"w1"}},
	}, 100))

	got, err := s.LatestRound(RoundReward)
	require.NoError(t, err)
	assert.Equal(t, []string{"sig1", "sig2"}, got.Txs)
	assert.Equal(t, float64(42), got.Meta["seed"])
}

func TestScanCursor_ZeroValueWhenUnset(t *testing.T) {
	s := openTestStore(t)

	c, err := s.ScanCursor()
	require.NoError(t, err)
	assert.Equal(t, ScanCursor{}, c)
}

func TestScanCursor_AdvanceIsIdempotentOnRepeat(t *testing.T) {
	s := openTestStore(t)

	cursor := ScanCursor{LastProcessedSignature: "sig-5", LastProcessedTimestamp: 500}
	require.NoError(t, s.AdvanceScanCursor(cursor))
	require.NoError(t, s.AdvanceScanCursor(cursor))

	got, err := s.ScanCursor()
	require.NoError(t, err)
	assert.Equal(t, cursor, got)
}

func TestAcquireLock_SecondCallerConflicts(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.AcquireLock(LockBuyJob, 100, 1000))
	err := s.AcquireLock(LockBuyJob, 200, 1001)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestAcquireLock_ReleaseThenReacquire(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.AcquireLock(LockBuyJob, 100, 1000))
	require.NoError(t, s.ReleaseLock(LockBuyJob))
	assert.NoError(t, s.AcquireLock(LockBuyJob, 200, 1001))
}

func TestClearStaleLock_OnlyClearsOldLocks(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.AcquireLock(LockBuyJob, 100, 1000))

	cleared, err := s.ClearStaleLock(LockBuyJob, 900)
	require.NoError(t, err)
	assert.False(t, cleared, "lock acquired after the cutoff must not be cleared")

	cleared, err = s.ClearStaleLock(LockBuyJob, 1100)
	require.NoError(t, err)
	assert.True(t, cleared)

	assert.NoError(t, s.AcquireLock(LockBuyJob, 200, 1101))
}

func TestSafeMode_LatchesUntilExplicitlyCleared(t *testing.T) {
	s := openTestStore(t)

	on, err := s.IsSafeMode()
	require.NoError(t, err)
	assert.False(t, on)

	require.NoError(t, s.TripSafeMode("too many rpc errors"))
	on, err = s.IsSafeMode()
	require.NoError(t, err)
	assert.True(t, on)

	require.NoError(t, s.ClearSafeMode())
	on, err = s.IsSafeMode()
	require.NoError(t, err)
	assert.False(t, on)
}
