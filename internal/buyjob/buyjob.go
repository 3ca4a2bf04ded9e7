// Package buyjob implements the periodic treasury buy: swap a bounded
// slice of the treasury's native-coin balance into the configured token
// through the ledger adapter's swap router, and record the attempt
// unconditionally.
package buyjob

import (
	"context"
	"math"

	log "github.com/sirupsen/logrus"

	"treasurybot/internal/clockid"
	"treasurybot/internal/ledger"
	"treasurybot/internal/store"
)

// Params are the tunables a single invocation reads from config.
type Params struct {
	TreasuryAddress string
	TokenMint       string
	FeeReserveSOL   float64
	MinBuySOL       float64
	MaxBuySOL       float64
	SlippageBps     int
}

// Outcome is what one invocation did, for the caller (engine/scheduler) to
// log and for tests to assert on.
type Outcome struct {
	Skipped bool
	Reason  string
	Round   store.Round
}

// Job runs the buy state machine against a Store and a ledger Adapter.
type Job struct {
	store   *store.Store
	adapter ledger.Adapter
	params  Params
}

func New(s *store.Store, adapter ledger.Adapter, p Params) *Job {
	return &Job{store: s, adapter: adapter, params: p}
}

// Run executes one buy attempt. It always returns a nil error for any
// failure that is the job's own outcome (insufficient balance, a failed
// swap) — those are recorded in the round, not propagated as a Go error.
// A non-nil error means either the treasury's native balance could not be
// read (no round is recorded) or the round itself could not be recorded.
func (j *Job) Run(ctx context.Context) (Outcome, error) {
	jobStart := clockid.NowUnix()

	nativeLamports, err := j.adapter.NativeBalance(ctx, j.params.TreasuryAddress)
	if err != nil {
		return Outcome{}, err
	}
	nativeBalance := float64(nativeLamports) / 1e9

	spendable := nativeBalance - j.params.FeeReserveSOL
	if spendable < 0 {
		spendable = 0
	}

	actualBuy := spendable
	safetyCap := 0.0
	if actualBuy > j.params.MaxBuySOL {
		actualBuy = j.params.MaxBuySOL
		safetyCap = j.params.MaxBuySOL
	}

	if actualBuy < j.params.MinBuySOL {
		return Outcome{Skipped: true, Reason: "spendable below minimum buy"}, nil
	}

	inLamports := uint64(math.Floor(actualBuy * 1e9))

	meta := map[string]any{
		"solSpent":           0.0,
		"tokenReceived":      uint64(0),
		"success":            false,
		"safetyCap":          safetyCap,
		"spendableBeforeCap": spendable,
	}

	var txs []string

	quote, quoteErr := j.adapter.Quote(ctx, j.params.TokenMint, inLamports, j.params.SlippageBps)
	if quoteErr != nil {
		meta["error"] = quoteErr.Error()
		return j.record(jobStart, txs, meta)
	}

	swapResult, swapErr := j.adapter.ExecuteSwap(ctx, quote, j.params.SlippageBps)
	if swapErr != nil {
		meta["error"] = swapErr.Error()
		return j.record(jobStart, txs, meta)
	}

	meta["solSpent"] = actualBuy
	meta["tokenReceived"] = swapResult.OutAmountRaw
	meta["success"] = true
	txs = []string{swapResult.Signature}

	return j.record(jobStart, txs, meta)
}

func (j *Job) record(ts int64, txs []string, meta map[string]any) (Outcome, error) {
	round := store.Round{
		ID:   clockid.NewID(),
		Type: store.RoundBuy,
		Ts:   ts,
		Txs:  txs,
		Meta: meta,
	}
	if err := j.store.InsertRound(round, clockid.NowUnix()); err != nil {
		log.WithError(err).Error("buyjob: failed to record round")
		return Outcome{}, err
	}
	return Outcome{Round: round}, nil
}
