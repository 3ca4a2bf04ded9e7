package store

import "errors"

// Error kinds the Store surfaces: Conflict for lock contention, NotFound
// for missing rows, Corrupt for an unopenable or unmigratable database,
// and Unavailable for any other query/transaction failure.
var (
	ErrConflict   = errors.New("store: conflict")
	ErrNotFound   = errors.New("store: not found")
	ErrCorrupt    = errors.New("store: corrupt")
	ErrUnavailable = errors.New("store: unavailable")
)

// Holder mirrors the persisted holder row.
type Holder struct {
	Wallet                      string
	FirstSeenTs                 *int64
	LastSeenTs                  int64
	LastBalanceRaw              uint64
	LastBalanceCheckTs          *int64
	LastDecreaseTs              *int64
	ContinuityStartTs           *int64
	StreakRounds                int
	TWBScore                    float64
	CumulativeBuySOL            float64
	CumulativeBuySOLLowConf     float64
	IsBlacklisted               bool
}

// HolderUpsert carries the subset of a holder's fields a caller wants to write.
// Nil pointer fields are left untouched (merge semantics); the *Set fields
// overwrite the stored value and the *Delta/*Add fields are added to it.
type HolderUpsert struct {
	Wallet string

	FirstSeenTs        *int64
	LastSeenTs         *int64
	LastBalanceRaw     *uint64
	LastBalanceCheckTs *int64
	LastDecreaseTs     *int64
	ContinuityStartTs  *int64
	StreakRoundsDelta   *int
	StreakRoundsSet     *int
	TWBScoreDelta       *float64
	TWBScoreSet         *float64
	CumulativeBuyAdd         *float64
	CumulativeBuyLowConfAdd  *float64
	IsBlacklisted      *bool
}

// RoundType enumerates the two job kinds that produce Round records.
type RoundType string

const (
	RoundBuy    RoundType = "buy"
	RoundReward RoundType = "reward"
)

// Round is one append-only record of a completed (or attempted) buy or
// reward job.
type Round struct {
	ID   string
	Type RoundType
	Ts   int64
	Txs  []string
	Meta map[string]any
}

// ScanCursor tracks how far the ledger scanner has progressed.
type ScanCursor struct {
	LastProcessedSignature string
	LastProcessedTimestamp int64
}

// LockType enumerates the two execution locks a single instance enforces.
type LockType string

const (
	LockBuyJob    LockType = "buy_job"
	LockRewardJob LockType = "reward_job"
)

// EligibilityParams parameterizes the reward-eligibility predicate.
type EligibilityParams struct {
	Now              int64
	MinAgeSeconds    int64
	MinContinuitySec int64
	MinCumulativeBuy float64
}
