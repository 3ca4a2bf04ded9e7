package buyjob

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
const treasury = "treasury-wallet"

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func baseParams() Params {
	return Params{
		TreasuryAddress: treasury,
		TokenMint:       testMint,
		FeeReserveSOL:   0.03,
		MinBuySOL:       0.01,
		MaxBuySOL:       0.2,
		SlippageBps:     100,
	}
}

// TestRun_SkipsOnInsufficientSpendableBalance is S1: a treasury balance
// that leaves nothing above the fee reserve must skip, not fail.
func TestRun_SkipsOnInsufficientSpendableBalance(t *testing.T) {
	s := openTestStore(t)
	adapter := ledger.NewFakeAdapter()
	adapter.NativeBalances[treasury] = uint64(0.02 * 1e9) // below feeReserve

	job := New(s, adapter, baseParams())
	outcome, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, outcome.Skipped)
	assert.NotEmpty(t, outcome.Reason)

	_, roundErr := s.LatestRound(store.RoundBuy)
	assert.ErrorIs(t, roundErr, store.ErrNotFound, "a skip must not record a round")
}

// TestRun_CapsActualBuyAtMaxBuyPerInterval is S2: a large spendable
// balance must be capped at maxBuyPerInterval, and safetyCap recorded.
func TestRun_CapsActualBuyAtMaxBuyPerInterval(t *testing.T) {
	s := openTestStore(t)
	adapter := ledger.NewFakeAdapter()
	adapter.NativeBalances[treasury] = uint64(5.0 * 1e9) // spendable = 4.97

	job := New(s, adapter, baseParams())
	outcome, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, outcome.Skipped)

	round := outcome.Round
	assert.Equal(t, store.RoundBuy, round.Type)
	assert.InDelta(t, 0.2, round.Meta["safetyCap"].(float64), 1e-9, "safetyCap records the cap amount applied, not a boolean")
	assert.InDelta(t, 4.97, round.Meta["spendableBeforeCap"].(float64), 1e-9)
	assert.Equal(t, true, round.Meta["success"])
	assert.InDelta(t, 0.2, round.Meta["solSpent"].(float64), 1e-9)
	assert.Len(t, round.Txs, 1)
}

// TestRun_NoSafetyCapWhenSpendableUnderMax asserts safetyCap is recorded
// as 0.0, not omitted or true, when the buy never reaches the cap.
func TestRun_NoSafetyCapWhenSpendableUnderMax(t *testing.T) {
	s := openTestStore(t)
	adapter := ledger.NewFakeAdapter()
	adapter.NativeBalances[treasury] = uint64(0.1 * 1e9) // spendable = 0.07, under maxBuySOL=0.2

	job := New(s, adapter, baseParams())
	outcome, err := job.Run(context.Background())
	require.NoError(t, err)
	require.False(t, outcome.Skipped)

	round := outcome.Round
	assert.Equal(t, 0.0, round.Meta["safetyCap"])
	assert.InDelta(t, 0.07, round.Meta["solSpent"].(float64), 1e-9)
}

func TestRun_RecordsRoundEvenOnSwapFailure(t *testing.T) {
	s := openTestStore(t)
	adapter := ledger.NewFakeAdapter()
	adapter.NativeBalances[treasury] = uint64(1.0 * 1e9)
	adapter.ExecuteSwapFn = func(quote ledger.SwapQuote) (ledger.SwapResult, error) {
		return ledger.SwapResult{}, assertErr("jupiter: 503 Service Unavailable")
	}

	job := New(s, adapter, baseParams())
	outcome, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, outcome.Skipped)

	round := outcome.Round
	assert.Equal(t, false, round.Meta["success"])
	assert.Contains(t, round.Meta["error"], "503")
	assert.Empty(t, round.Txs)

	persisted, err := s.LatestRound(store.RoundBuy)
	require.NoError(t, err)
	assert.Equal(t, round.ID, persisted.ID)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
