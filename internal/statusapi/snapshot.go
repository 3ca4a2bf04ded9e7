// Package statusapi assembles and serves the bot's externally visible
// status snapshot: a tamper-evident view of timing, liveness, and
// safe-mode state built fresh from the Store on every request.
package statusapi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"treasurybot/internal/clockid"
	"treasurybot/internal/store"
)

const onlineWindowSeconds = 60

// Snapshot is the exact JSON shape served at GET /status.
type Snapshot struct {
	Now            int64   `json:"now"`
	SourceOfTruth  string  `json:"sourceOfTruth"`
	Checksum       string  `json:"checksum"`
	BotOnline      bool    `json:"botOnline"`
	HeartbeatAge   int64   `json:"heartbeatAgeSeconds"`
	SafeMode       bool    `json:"safeMode"`
	SafeModeReason *string `json:"safeModeReason"`
	DryRun         bool    `json:"dryRun"`

	LastBuyTs    *int64 `json:"lastBuyTs"`
	LastRewardTs *int64 `json:"lastRewardTs"`
	NextBuyTs    *int64 `json:"nextBuyTs"`
	NextRewardTs *int64 `json:"nextRewardTs"`

	BuyIntervalSeconds    int `json:"buyIntervalSeconds"`
	RewardIntervalSeconds int `json:"rewardIntervalSeconds"`

	BuyInProgress    bool `json:"buyInProgress"`
	RewardInProgress bool `json:"rewardInProgress"`

	LastBuyTx     *string  `json:"lastBuyTx"`
	LastRewardTxs []string `json:"lastRewardTxs"`
}

// Projector builds a Snapshot from the Store on demand.
type Projector struct {
	store                 *store.Store
	dryRun                bool
	buyIntervalSeconds    int
	rewardIntervalSeconds int
}

func NewProjector(s *store.Store, dryRun bool, buyIntervalSeconds, rewardIntervalSeconds int) *Projector {
	return &Projector{store: s, dryRun: dryRun, buyIntervalSeconds: buyIntervalSeconds, rewardIntervalSeconds: rewardIntervalSeconds}
}

func (p *Projector) Build() (Snapshot, error) {
	now := clockid.NowUnix()

	var heartbeatAge int64 = -1
	if v, err := p.store.GetState("heartbeat_ts"); err == nil {
		var ts int64
		if _, scanErr := fmt.Sscanf(v, "%d", &ts); scanErr == nil {
			heartbeatAge = now - ts
		}
	} else if err != store.ErrNotFound {
		return Snapshot{}, err
	}

	safeMode, err := p.store.IsSafeMode()
	if err != nil {
		return Snapshot{}, err
	}
	var safeModeReason *string
	if safeMode {
		reason, _ := p.store.GetState("safe_mode")
		safeModeReason = &reason
	}

	lastBuyTs, lastBuyTx := lastRoundSummary(p.store, store.RoundBuy)
	lastRewardTs, lastRewardTxs := lastRoundTxs(p.store, store.RoundReward)

	var nextBuyTs, nextRewardTs *int64
	if lastBuyTs != nil {
		v := *lastBuyTs + int64(p.buyIntervalSeconds)
		nextBuyTs = &v
	}
	if lastRewardTs != nil {
		v := *lastRewardTs + int64(p.rewardIntervalSeconds)
		nextRewardTs = &v
	}

	_, buyLockErr := p.store.LockHolder(store.LockBuyJob)
	_, rewardLockErr := p.store.LockHolder(store.LockRewardJob)

	snap := Snapshot{
		Now:                   now,
		SourceOfTruth:         "server",
		BotOnline:             heartbeatAge >= 0 && heartbeatAge < onlineWindowSeconds,
		HeartbeatAge:          heartbeatAge,
		SafeMode:              safeMode,
		SafeModeReason:        safeModeReason,
		DryRun:                p.dryRun,
		LastBuyTs:             lastBuyTs,
		LastRewardTs:          lastRewardTs,
		NextBuyTs:             nextBuyTs,
		NextRewardTs:          nextRewardTs,
		BuyIntervalSeconds:    p.buyIntervalSeconds,
		RewardIntervalSeconds: p.rewardIntervalSeconds,
		BuyInProgress:         buyLockErr == nil,
		RewardInProgress:      rewardLockErr == nil,
		LastBuyTx:             lastBuyTx,
		LastRewardTxs:         lastRewardTxs,
	}
	if snap.LastRewardTxs == nil {
		snap.LastRewardTxs = []string{}
	}

	snap.Checksum = checksum(snap)
	return snap, nil
}

func lastRoundSummary(s *store.Store, t store.RoundType) (*int64, *string) {
	r, err := s.LatestRound(t)
	if err != nil {
		return nil, nil
	}
	ts := r.Ts
	var tx *string
	if len(r.Txs) > 0 {
		tx = &r.Txs[0]
	}
	return &ts, tx
}

func lastRoundTxs(s *store.Store, t store.RoundType) (*int64, []string) {
	r, err := s.LatestRound(t)
	if err != nil {
		return nil, nil
	}
	ts := r.Ts
	return &ts, r.Txs
}

// checksum detects tampering of the timing-critical fields: first 16 hex
// chars of SHA-256 over the JSON of a fixed 7-field subset.
func checksum(s Snapshot) string {
	subset := struct {
		Now          int64  `json:"now"`
		BotOnline    bool   `json:"botOnline"`
		SafeMode     bool   `json:"safeMode"`
		LastBuyTs    *int64 `json:"lastBuyTs"`
		LastRewardTs *int64 `json:"lastRewardTs"`
		NextBuyTs    *int64 `json:"nextBuyTs"`
		NextRewardTs *int64 `json:"nextRewardTs"`
	}{s.Now, s.BotOnline, s.SafeMode, s.LastBuyTs, s.LastRewardTs, s.NextBuyTs, s.NextRewardTs}

	b, _ := json.Marshal(subset)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:16]
}
