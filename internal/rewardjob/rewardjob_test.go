package rewardjob

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treasurybot/internal/agecache"
	"treasurybot/internal/balance"
	"treasurybot/internal/ledger"
	"treasurybot/internal/scanner"
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

func ptr[T any](v T) *T { return &v }

func baseParams() Params {
	return Params{
		TreasuryAddress:       treasury,
		TokenMint:             testMint,
		MinAgeSeconds:         0,
		MinContinuitySec:      0,
		MinCumulativeBuy:      0,
		WinnersPerRound:       2,
		RewardPercentBps:      500,
		MaxRewardPercentBps:   1000,
		MaxSendsPerTx:         10,
		RewardIntervalSeconds: 7200,
	}
}

func setupEligibleHolder(t *testing.T, s *store.Store, wallet string, firstSeen int64, balanceRaw uint64) {
	t.Helper()
	continuity := int64(1)
	require.NoError(t, s.UpsertHolder(store.HolderUpsert{
		Wallet:            wallet,
		FirstSeenTs:       ptr(firstSeen),
		LastSeenTs:        ptr(firstSeen),
		ContinuityStartTs: ptr(continuity),
		LastBalanceRaw:    ptr(balanceRaw),
		CumulativeBuyAdd:  ptr(1.0),
	}))
}

func newJob(s *store.Store, adapter ledger.Adapter, p Params) *Job {
	ages := agecache.New(s, adapter)
	sc := scanner.New(s, adapter, ages, p.TokenMint)
	bal := balance.New(s, adapter, p.TokenMint)
	return New(s, adapter, sc, bal, p)
}

func TestRun_SkipsWhenTreasuryBalanceIsZero(t *testing.T) {
	s := openTestStore(t)
	adapter := ledger.NewFakeAdapter()
	setupEligibleHolder(t, s, "holder-1", 1, 1000)

	job := newJob(s, adapter, baseParams())
	outcome, err := job.Run(context.Background(), 100)
	require.NoError(t, err)
	assert.True(t, outcome.Skipped)
}

func TestRun_SkipsWhenNoEligibleHolders(t *testing.T) {
	s := openTestStore(t)
	adapter := ledger.NewFakeAdapter()
	adapter.TokenBalances[treasury] = ledger.TokenBalance{RawAmount: 1_000_000}

	job := newJob(s, adapter, baseParams())
	outcome, err := job.Run(context.Background(), 100)
	require.NoError(t, err)
	assert.True(t, outcome.Skipped)
	assert.Equal(t, "no eligible holders", outcome.Reason)
}

func TestRun_DistributesToWinnersAndUpdatesAllEligibleHolders(t *testing.T) {
	s := openTestStore(t)
	adapter := ledger.NewFakeAdapter()
	adapter.TokenBalances[treasury] = ledger.TokenBalance{RawAmount: 1_000_000, Decimals: 6}
	adapter.Supply = ledger.TokenBalance{RawAmount: 10_000_000, Decimals: 6}
	adapter.Blockhash = "testblockhash"

	setupEligibleHolder(t, s, "holder-1", 1, 1000)
	setupEligibleHolder(t, s, "holder-2", 1, 2000)
	setupEligibleHolder(t, s, "holder-3", 1, 3000)
	adapter.TokenBalances["holder-1"] = ledger.TokenBalance{RawAmount: 1000, Decimals: 6}
	adapter.TokenBalances["holder-2"] = ledger.TokenBalance{RawAmount: 2000, Decimals: 6}
	adapter.TokenBalances["holder-3"] = ledger.TokenBalance{RawAmount: 3000, Decimals: 6}

	p := baseParams()
	p.MinAgeSeconds = 0
	job := newJob(s, adapter, p)
	outcome, err := job.Run(context.Background(), 100)
	require.NoError(t, err)
	require.False(t, outcome.Skipped)

	round := outcome.Round
	assert.Equal(t, store.RoundReward, round.Type)
	assert.Equal(t, 2, round.Meta["winnersCount"])
	assert.Equal(t, "testblockhash", round.Meta["lotteryBlockhash"])
	assert.Len(t, round.Txs, 2, "two winners batched into one TransferTokens call, 2 signatures")

	for _, w := range []string{"holder-1", "holder-2", "holder-3"} {
		h, err := s.GetHolder(w)
		require.NoError(t, err)
		assert.Equal(t, 1, h.StreakRounds, "every eligible holder gets a streak bump, winners and losers alike")
		assert.Greater(t, h.TWBScore, 0.0)
	}
}

func TestRun_DryRunProducesSentinelSignaturesAndNoTransfers(t *testing.T) {
	s := openTestStore(t)
	adapter := ledger.NewFakeAdapter()
	adapter.TokenBalances[treasury] = ledger.TokenBalance{RawAmount: 1_000_000, Decimals: 0}
	adapter.Supply = ledger.TokenBalance{RawAmount: 10_000_000, Decimals: 0}

	setupEligibleHolder(t, s, "holder-1", 1, 1000)
	adapter.TokenBalances["holder-1"] = ledger.TokenBalance{RawAmount: 1000, Decimals: 0}

	p := baseParams()
	p.DryRun = true
	p.WinnersPerRound = 1
	job := newJob(s, adapter, p)
	outcome, err := job.Run(context.Background(), 100)
	require.NoError(t, err)
	require.False(t, outcome.Skipped)
	assert.Equal(t, []string{"dry-run-sig-1", "dry-run-sig-2"}, outcome.Round.Txs)
}
