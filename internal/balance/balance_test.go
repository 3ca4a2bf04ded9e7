package balance

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treasurybot/internal/ledger"
	"treasurybot/internal/store"
)

const testMint = "MintAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func ptr[T any](v T) *T { return &v }

// TestRefresh_ContinuityResetOnStrictDecrease is the continuity-reset
// scenario: a holder whose balance strictly drops must have its streak,
// twb_score, and continuity window reset at the moment of the decrease.
func TestRefresh_ContinuityResetOnStrictDecrease(t *testing.T) {
	s := openTestStore(t)
	adapter := ledger.NewFakeAdapter()

	t0 := int64(1000)
	require.NoError(t, s.UpsertHolder(store.HolderUpsert{
		Wallet:            "holder-1",
		LastSeenTs:        ptr(t0),
		LastBalanceRaw:    ptr(uint64(1000)),
		ContinuityStartTs: ptr(t0),
		StreakRoundsSet:   ptr(5),
		TWBScoreSet:       ptr(12.5),
	}))

	adapter.TokenBalances["holder-1"] = ledger.TokenBalance{RawAmount: 400, UiAmount: 400, Decimals: 0}

	r := New(s, adapter, testMint)
	result, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.WalletsChecked)
	assert.Equal(t, 0, result.Failed)

	h, err := s.GetHolder("holder-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(400), h.LastBalanceRaw)
	require.NotNil(t, h.ContinuityStartTs)
	require.NotNil(t, h.LastDecreaseTs)
	assert.Equal(t, 0, h.StreakRounds)
	assert.Equal(t, 0.0, h.TWBScore)
	assert.Greater(t, *h.ContinuityStartTs, t0)
	assert.Equal(t, *h.ContinuityStartTs, *h.LastDecreaseTs)
}

func TestRefresh_NoResetWhenBalanceUnchangedOrIncreased(t *testing.T) {
	s := openTestStore(t)
	adapter := ledger.NewFakeAdapter()

	t0 := int64(1000)
	require.NoError(t, s.UpsertHolder(store.HolderUpsert{
		Wallet:            "holder-1",
		LastSeenTs:        ptr(t0),
		LastBalanceRaw:    ptr(uint64(1000)),
		ContinuityStartTs: ptr(t0),
		StreakRoundsSet:   ptr(5),
		TWBScoreSet:       ptr(12.5),
	}))

	adapter.TokenBalances["holder-1"] = ledger.TokenBalance{RawAmount: 1500, UiAmount: 1500, Decimals: 0}

	r := New(s, adapter, testMint)
	_, err := r.Refresh(context.Background())
	require.NoError(t, err)

	h, err := s.GetHolder("holder-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1500), h.LastBalanceRaw)
	assert.Equal(t, t0, *h.ContinuityStartTs, "continuity window must survive an increase")
	assert.Equal(t, 5, h.StreakRounds)
	assert.Equal(t, 12.5, h.TWBScore)
	assert.Nil(t, h.LastDecreaseTs)
}

// TestRefresh_ContinuityStartsOnFirstPositiveBalance covers the 0→positive
// transition: a holder discovered with no prior balance must get its
// continuity window opened on the very first observation, not left NULL
// until some future decrease (which would otherwise leave buy-and-hold
// holders permanently ineligible for reward).
func TestRefresh_ContinuityStartsOnFirstPositiveBalance(t *testing.T) {
	s := openTestStore(t)
	adapter := ledger.NewFakeAdapter()

	t0 := int64(1000)
	require.NoError(t, s.UpsertHolder(store.HolderUpsert{
		Wallet:     "holder-1",
		LastSeenTs: ptr(t0),
	}))

	adapter.TokenBalances["holder-1"] = ledger.TokenBalance{RawAmount: 500, UiAmount: 500, Decimals: 0}

	r := New(s, adapter, testMint)
	_, err := r.Refresh(context.Background())
	require.NoError(t, err)

	h, err := s.GetHolder("holder-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(500), h.LastBalanceRaw)
	require.NotNil(t, h.ContinuityStartTs, "continuity window must open on the first positive balance")
	assert.Nil(t, h.LastDecreaseTs)
}

// TestRefresh_ContinuityNotReopenedOnceAlreadySet ensures the first-positive
// initialization never clobbers a continuity window the holder already
// has (e.g. a previous decrease reset it to a later timestamp).
func TestRefresh_ContinuityNotReopenedOnceAlreadySet(t *testing.T) {
	s := openTestStore(t)
	adapter := ledger.NewFakeAdapter()

	t0 := int64(1000)
	require.NoError(t, s.UpsertHolder(store.HolderUpsert{
		Wallet:            "holder-1",
		LastSeenTs:        ptr(t0),
		LastBalanceRaw:    ptr(uint64(0)),
		ContinuityStartTs: ptr(t0),
	}))

	adapter.TokenBalances["holder-1"] = ledger.TokenBalance{RawAmount: 500, UiAmount: 500, Decimals: 0}

	r := New(s, adapter, testMint)
	_, err := r.Refresh(context.Background())
	require.NoError(t, err)

	h, err := s.GetHolder("holder-1")
	require.NoError(t, err)
	assert.Equal(t, t0, *h.ContinuityStartTs, "an existing continuity window must not be overwritten")
}

func TestRefresh_PerWalletFailureIsSwallowed(t *testing.T) {
	s := openTestStore(t)
	adapter := ledger.NewFakeAdapter()

	t0 := int64(1000)
	require.NoError(t, s.UpsertHolder(store.HolderUpsert{Wallet: "good", LastSeenTs: ptr(t0), LastBalanceRaw: ptr(uint64(10))}))
	require.NoError(t, s.UpsertHolder(store.HolderUpsert{Wallet: "bad", LastSeenTs: ptr(t0), LastBalanceRaw: ptr(uint64(10))}))

	adapter.TokenBalances["good"] = ledger.TokenBalance{RawAmount: 20}
	adapter.TokenBalanceErr = map[string]error{"bad": assertErr("rpc unavailable")}

	r := New(s, adapter, testMint)
	result, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.WalletsChecked)
	assert.Equal(t, 1, result.Failed)

	bad, err := s.GetHolder("bad")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), bad.LastBalanceRaw, "a failed lookup must leave the stored balance untouched")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
