// Package rewardjob implements the periodic lottery distribution: an
// incremental scan, a balance refresh, a deterministic weighted draw over
// eligible holders, batched transfers, and the per-eligible-holder
// streak/twb update.
package rewardjob

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"treasurybot/internal/balance"
	"treasurybot/internal/clockid"
	"treasurybot/internal/ledger"
	"treasurybot/internal/lottery"
	"treasurybot/internal/scanner"
	"treasurybot/internal/store"
)

const interBatchDelay = 500 * time.Millisecond

// Params are the tunables a single invocation reads from config.
type Params struct {
	TreasuryAddress       string
	TokenMint             string
	MinAgeSeconds         int64
	MinContinuitySec      int64
	MinCumulativeBuy      float64
	WinnersPerRound       int
	RewardPercentBps      int
	MaxRewardPercentBps   int
	MaxSendsPerTx         int
	RewardIntervalSeconds int64
	DryRun                bool
}

// Outcome is what one invocation did.
type Outcome struct {
	Skipped bool
	Reason  string
	Round   store.Round
}

// Job runs the reward state machine against a Store and a ledger Adapter.
type Job struct {
	store    *store.Store
	adapter  ledger.Adapter
	scanner  *scanner.Scanner
	balances *balance.Refresher
	params   Params
}

func New(s *store.Store, adapter ledger.Adapter, sc *scanner.Scanner, bal *balance.Refresher, p Params) *Job {
	return &Job{store: s, adapter: adapter, scanner: sc, balances: bal, params: p}
}

// Run executes one reward attempt. As with the buy job, a job-level
// failure (no eligible holders, zero treasury balance) is recorded as a
// Skipped outcome, not a Go error.
func (j *Job) Run(ctx context.Context, perTickScanLimit int) (Outcome, error) {
	jobStart := clockid.NowUnix()

	if _, err := j.scanner.Incremental(ctx, perTickScanLimit); err != nil {
		return Outcome{}, err
	}
	if _, err := j.balances.Refresh(ctx); err != nil {
		return Outcome{}, err
	}

	supply, err := j.adapter.TokenSupply(ctx, j.params.TokenMint)
	if err != nil {
		return Outcome{}, err
	}
	decimals := supply.Decimals

	treasuryTb, err := j.adapter.TokenBalance(ctx, j.params.TreasuryAddress, j.params.TokenMint)
	if err != nil {
		return Outcome{}, err
	}
	if treasuryTb.RawAmount == 0 {
		return Outcome{Skipped: true, Reason: "treasury token balance is zero"}, nil
	}

	pctBps := j.params.RewardPercentBps
	if j.params.MaxRewardPercentBps < pctBps {
		pctBps = j.params.MaxRewardPercentBps
	}
	distributeRaw := treasuryTb.RawAmount * uint64(pctBps) / 10000

	holders, err := j.store.EligibleHolders(store.EligibilityParams{
		Now:              jobStart,
		MinAgeSeconds:    j.params.MinAgeSeconds,
		MinContinuitySec: j.params.MinContinuitySec,
		MinCumulativeBuy: j.params.MinCumulativeBuy,
	})
	if err != nil {
		return Outcome{}, err
	}
	if len(holders) == 0 {
		return Outcome{Skipped: true, Reason: "no eligible holders"}, nil
	}

	candidates := make([]lottery.Candidate, len(holders))
	weights := make([]float64, len(holders))
	for i, h := range holders {
		ageDays := 0.0
		if h.FirstSeenTs != nil {
			ageDays = float64(jobStart-*h.FirstSeenTs) / 86400
		}
		tokenBalanceUi := rawToUi(h.LastBalanceRaw, decimals)
		c := lottery.Candidate{
			Wallet:         h.Wallet,
			WalletAgeDays:  ageDays,
			StreakRounds:   h.StreakRounds,
			TWBScore:       h.TWBScore,
			TokenBalanceUi: tokenBalanceUi,
		}
		candidates[i] = c
		weights[i] = lottery.Weight(c)
	}

	blockhash, err := j.adapter.LatestBlockhash(ctx)
	if err != nil {
		return Outcome{}, err
	}
	seed := lottery.Seed(jobStart, j.params.TokenMint, blockhash)
	rng := lottery.NewMulberry32(seed)
	winners := lottery.SelectWinners(candidates, weights, j.params.WinnersPerRound, rng)

	if len(winners) == 0 {
		return Outcome{Skipped: true, Reason: "lottery produced no winners"}, nil
	}
	perWinner := distributeRaw / uint64(len(winners))

	var txs []string
	if j.params.DryRun {
		txs = []string{"dry-run-sig-1", "dry-run-sig-2"}
	} else {
		txs = j.executeTransfers(ctx, winners, perWinner)
	}

	if err := j.updateEligibleHolders(candidates); err != nil {
		log.WithError(err).Error("rewardjob: failed to update streak/twb for eligible holders")
	}

	totalDistributedRaw := perWinner * uint64(len(winners))
	meta := map[string]any{
		"winnersCount":        len(winners),
		"perWinnerUi":         rawToUi(perWinner, decimals),
		"totalDistributedUi":  rawToUi(totalDistributedRaw, decimals),
		"lotterySeed":         seed,
		"lotteryBlockhash":    blockhash,
		"rewardPercentBps":    j.params.RewardPercentBps,
		"maxRewardPercentBps": j.params.MaxRewardPercentBps,
	}

	round := store.Round{
		ID:   clockid.NewID(),
		Type: store.RoundReward,
		Ts:   jobStart,
		Txs:  txs,
		Meta: meta,
	}
	if err := j.store.InsertRound(round, clockid.NowUnix()); err != nil {
		return Outcome{}, err
	}
	return Outcome{Round: round}, nil
}

// executeTransfers batches winners maxSendsPerTx at a time. A batch
// failure does not abort the remaining batches.
func (j *Job) executeTransfers(ctx context.Context, winners []lottery.Winner, perWinner uint64) []string {
	var signatures []string
	batchSize := j.params.MaxSendsPerTx
	if batchSize <= 0 {
		batchSize = len(winners)
	}

	for i := 0; i < len(winners); i += batchSize {
		end := i + batchSize
		if end > len(winners) {
			end = len(winners)
		}
		sends := make(map[string]uint64, end-i)
		for _, w := range winners[i:end] {
			sends[w.Wallet] = perWinner
		}

		results := j.adapter.TransferTokens(ctx, j.params.TokenMint, sends)
		for _, r := range results {
			if r.Success {
				signatures = append(signatures, r.Signature)
			} else {
				log.WithError(r.Err).WithField("wallet", r.Wallet).Warn("rewardjob: transfer failed")
			}
		}

		if end < len(winners) {
			time.Sleep(interBatchDelay)
		}
	}
	return signatures
}

// updateEligibleHolders bumps streak_rounds and twb_score for every
// eligible holder, winners and non-winners alike.
func (j *Job) updateEligibleHolders(candidates []lottery.Candidate) error {
	intervalHours := float64(j.params.RewardIntervalSeconds) / 3600
	one := 1
	for _, c := range candidates {
		twbDelta := c.TokenBalanceUi * intervalHours
		if err := j.store.UpsertHolder(store.HolderUpsert{
			Wallet:            c.Wallet,
			StreakRoundsDelta: &one,
			TWBScoreDelta:     &twbDelta,
		}); err != nil {
			return err
		}
	}
	return nil
}

func rawToUi(raw uint64, decimals uint8) float64 {
	divisor := 1.0
	for i := uint8(0); i < decimals; i++ {
		divisor *= 10
	}
	return float64(raw) / divisor
}
