package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treasurybot/internal/agecache"
	"treasurybot/internal/balance"
	"treasurybot/internal/buyjob"
	"treasurybot/internal/clockid"
	"treasurybot/internal/engine"
	"treasurybot/internal/ledger"
	"treasurybot/internal/rewardjob"
	"treasurybot/internal/scanner"
	"treasurybot/internal/store"
)

func TestCronSpecFor_IntervalMapping(t *testing.T) {
	cases := []struct {
		seconds int
		want    string
	}{
		{30, "0 * * * * *"},
		{300, "0 */5 * * * *"},
		{7200, "0 0 */2 * * *"},
		{172800, "0 0 0 * * *"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, cronSpecFor(c.seconds))
	}
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestScheduler(t *testing.T, adapter *ledger.FakeAdapter) *Scheduler {
	s := openTestStore(t)
	ages := agecache.New(s, adapter)
	mint := "MintAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	sc := scanner.New(s, adapter, ages, mint)
	bal := balance.New(s, adapter, mint)
	eng := engine.New(s, 3)
	buy := buyjob.New(s, adapter, buyjob.Params{TreasuryAddress: "treasury", TokenMint: mint, MaxBuySOL: 1, MinBuySOL: 0.01, FeeReserveSOL: 0.03})
	reward := rewardjob.New(s, adapter, sc, bal, rewardjob.Params{TreasuryAddress: "treasury", TokenMint: mint, WinnersPerRound: 1, RewardPercentBps: 500, MaxRewardPercentBps: 1000, MaxSendsPerTx: 10})
	cfg := Config{
		BuyIntervalSeconds:      3600,
		RewardIntervalSeconds:   7200,
		PerTickScanLimit:        100,
		BootstrapSignLimit:      100,
		MaxRPCErrorsBeforePause: 3,
		TreasuryAddress:         "treasury",
		TokenMint:               mint,
		MinTreasuryNativeSOL:    0.05,
		MinTreasuryTokenRaw:     100,
		BuyJobTimeout:           time.Second,
		RewardJobTimeout:        time.Second,
	}
	return New(s, adapter, sc, bal, eng, buy, reward, cfg)
}

func TestTimingGuard_SkipsWhenLastRoundTooRecent(t *testing.T) {
	adapter := ledger.NewFakeAdapter()
	sched := newTestScheduler(t, adapter)

	require.NoError(t, sched.store.InsertRound(store.Round{
		ID: "r1", Type: store.RoundBuy, Ts: clockid.NowUnix(), Meta: map[string]any{},
	}, clockid.NowUnix()))

	assert.False(t, sched.timingGuardPasses(store.RoundBuy, 3600), "a round recorded moments ago must block another so soon")
}

func TestTimingGuard_PassesWhenNoPriorRound(t *testing.T) {
	adapter := ledger.NewFakeAdapter()
	sched := newTestScheduler(t, adapter)

	assert.True(t, sched.timingGuardPasses(store.RoundBuy, 3600))
}

func TestTickBuy_SkipsWhenBelowMinimumTreasuryReserve(t *testing.T) {
	adapter := ledger.NewFakeAdapter()
	adapter.NativeBalances["treasury"] = uint64(0.01 * 1e9)
	sched := newTestScheduler(t, adapter)

	sched.tickBuy(context.Background())

	_, err := sched.store.LatestRound(store.RoundBuy)
	assert.ErrorIs(t, err, store.ErrNotFound, "a balance pre-check failure must never invoke the engine")
}

func TestTickReward_SkipsWhenBelowMinimumTokenReserve(t *testing.T) {
	adapter := ledger.NewFakeAdapter()
	adapter.TokenBalances["treasury"] = ledger.TokenBalance{RawAmount: 10}
	sched := newTestScheduler(t, adapter)

	sched.tickReward(context.Background())

	_, err := sched.store.LatestRound(store.RoundReward)
	assert.ErrorIs(t, err, store.ErrNotFound, "a token-reserve pre-check failure must never invoke the engine")
}

func TestTickScan_GuardsAgainstOverlap(t *testing.T) {
	adapter := ledger.NewFakeAdapter()
	sched := newTestScheduler(t, adapter)

	sched.scanInFlight = 1
	sched.tickScan(context.Background())
	assert.EqualValues(t, 1, sched.scanInFlight, "a tick that finds the guard held must leave it untouched")
}
