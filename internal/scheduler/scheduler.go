// Package scheduler is the main loop: it registers cron triggers for the
// buy job, reward job, and continuous scan, each guarded against
// double-firing and overlap, and runs the heartbeat alongside them. The
// status server is started separately by cmd/bot.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"treasurybot/internal/balance"
	"treasurybot/internal/buyjob"
	"treasurybot/internal/clockid"
	"treasurybot/internal/engine"
	"treasurybot/internal/ledger"
	"treasurybot/internal/rewardjob"
	"treasurybot/internal/scanner"
	"treasurybot/internal/store"
)

const (
	scanTriggerInterval = 10 * time.Minute
	heartbeatInterval   = 30 * time.Second
	shutdownGrace       = 30 * time.Second
)

// Config carries everything the scheduler needs that isn't derivable from
// the wired components themselves.
type Config struct {
	BuyIntervalSeconds    int
	RewardIntervalSeconds int
	PerTickScanLimit      int
	BootstrapSignLimit    int
	MaxRPCErrorsBeforePause int

	TreasuryAddress      string
	TokenMint            string
	MinTreasuryNativeSOL float64
	MinTreasuryTokenRaw  uint64

	BuyJobTimeout    time.Duration
	RewardJobTimeout time.Duration
}

// Scheduler owns the cron instance and the process-local overlap guards.
type Scheduler struct {
	store   *store.Store
	adapter ledger.Adapter
	scanner *scanner.Scanner
	engine  *engine.Engine
	buy     *buyjob.Job
	reward  *rewardjob.Job
	cfg     Config

	cron *cron.Cron

	scanInFlight int32

	// onRound, if set, is invoked with every round a buy or reward job
	// records — the hook point for side-file and event-bus publication.
	onRound func(store.Round)
}

func New(s *store.Store, adapter ledger.Adapter, sc *scanner.Scanner, bal *balance.Refresher, eng *engine.Engine, buy *buyjob.Job, reward *rewardjob.Job, cfg Config) *Scheduler {
	return &Scheduler{
		store:   s,
		adapter: adapter,
		scanner: sc,
		engine:  eng,
		buy:     buy,
		reward:  reward,
		cfg:     cfg,
		cron:    cron.New(cron.WithSeconds()),
	}
}

// OnRound registers a callback invoked after every round a buy or reward
// job records, in addition to the Store write that already happened.
func (s *Scheduler) OnRound(fn func(store.Round)) {
	s.onRound = fn
}

// Start performs the startup sequence — clear stale locks, verify the
// adapter is reachable, run one initial scan — then registers the three
// periodic triggers and begins the heartbeat. It returns once triggers
// are registered; Stop reverses it.
func (s *Scheduler) Start(ctx context.Context) error {
	staleBefore := clockid.NowUnix() - 2*int64(maxInt(s.cfg.BuyIntervalSeconds, s.cfg.RewardIntervalSeconds))
	for _, lt := range []store.LockType{store.LockBuyJob, store.LockRewardJob} {
		if cleared, err := s.store.ClearStaleLock(lt, staleBefore); err != nil {
			return fmt.Errorf("scheduler: clear stale lock %s: %w", lt, err)
		} else if cleared {
			log.WithField("lock", lt).Warn("scheduler: cleared a stale lock left by a previous process")
		}
	}

	if _, err := s.adapter.LatestBlockhash(ctx); err != nil {
		return fmt.Errorf("scheduler: ledger adapter unreachable at startup: %w", err)
	}

	if _, err := s.scanner.Bootstrap(ctx, s.cfg.BootstrapSignLimit); err != nil {
		log.WithError(err).Warn("scheduler: initial scan failed, continuing startup")
	}

	go s.heartbeatLoop(ctx)

	if _, err := s.cron.AddFunc(cronSpecFor(s.cfg.BuyIntervalSeconds), func() { s.tickBuy(ctx) }); err != nil {
		return fmt.Errorf("scheduler: register buy trigger: %w", err)
	}
	if _, err := s.cron.AddFunc(cronSpecFor(s.cfg.RewardIntervalSeconds), func() { s.tickReward(ctx) }); err != nil {
		return fmt.Errorf("scheduler: register reward trigger: %w", err)
	}
	if _, err := s.cron.AddFunc(cronSpecFor(int(scanTriggerInterval.Seconds())), func() { s.tickScan(ctx) }); err != nil {
		return fmt.Errorf("scheduler: register scan trigger: %w", err)
	}

	s.cron.Start()
	return nil
}

// Stop halts the cron scheduler and waits up to shutdownGrace for any
// in-flight scan to finish.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()

	deadline := time.Now().Add(shutdownGrace)
	for atomic.LoadInt32(&s.scanInFlight) == 1 && time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
	}
}

func (s *Scheduler) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.store.SetState("heartbeat_ts", fmt.Sprintf("%d", clockid.NowUnix())); err != nil {
				log.WithError(err).Warn("scheduler: heartbeat write failed")
			}
		}
	}
}

func (s *Scheduler) tickBuy(ctx context.Context) {
	if !s.timingGuardPasses(store.RoundBuy, s.cfg.BuyIntervalSeconds) {
		return
	}
	nativeLamports, err := s.adapter.NativeBalance(ctx, s.cfg.TreasuryAddress)
	if err != nil {
		log.WithError(err).Warn("scheduler: buy pre-check balance lookup failed, skipping tick")
		return
	}
	if float64(nativeLamports)/1e9 < s.cfg.MinTreasuryNativeSOL {
		log.Debug("scheduler: treasury below minimum native reserve, skipping buy tick")
		return
	}

	res := s.engine.RunGuarded(ctx, store.LockBuyJob, s.cfg.BuyJobTimeout, func(jobCtx context.Context) (any, error) {
		outcome, err := s.buy.Run(jobCtx)
		return outcome, err
	})
	logEngineResult("buy", res)
	if outcome, ok := res.Value.(buyjob.Outcome); ok && !outcome.Skipped {
		s.notifyRound(outcome.Round)
	}
}

func (s *Scheduler) tickReward(ctx context.Context) {
	if !s.timingGuardPasses(store.RoundReward, s.cfg.RewardIntervalSeconds) {
		return
	}
	tokenBal, err := s.adapter.TokenBalance(ctx, s.cfg.TreasuryAddress, s.cfg.TokenMint)
	if err != nil {
		log.WithError(err).Warn("scheduler: reward pre-check balance lookup failed, skipping tick")
		return
	}
	if tokenBal.RawAmount < s.cfg.MinTreasuryTokenRaw {
		log.Debug("scheduler: treasury below minimum token reserve, skipping reward tick")
		return
	}

	res := s.engine.RunGuarded(ctx, store.LockRewardJob, s.cfg.RewardJobTimeout, func(jobCtx context.Context) (any, error) {
		outcome, err := s.reward.Run(jobCtx, s.cfg.PerTickScanLimit)
		return outcome, err
	})
	logEngineResult("reward", res)
	if outcome, ok := res.Value.(rewardjob.Outcome); ok && !outcome.Skipped {
		s.notifyRound(outcome.Round)
	}
}

func (s *Scheduler) notifyRound(r store.Round) {
	if s.onRound != nil {
		s.onRound(r)
	}
}

func (s *Scheduler) tickScan(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&s.scanInFlight, 0, 1) {
		log.Debug("scheduler: scan already in progress, skipping tick")
		return
	}
	defer atomic.StoreInt32(&s.scanInFlight, 0)

	if _, err := s.scanner.Incremental(ctx, s.cfg.PerTickScanLimit); err != nil {
		log.WithError(err).Warn("scheduler: incremental scan tick failed")
	}
}

// timingGuardPasses makes a restart-triggered double fire safe even
// before the execution lock is considered: skip if the last round of
// this type is younger than the configured interval.
func (s *Scheduler) timingGuardPasses(t store.RoundType, intervalSeconds int) bool {
	last, err := s.store.LatestRound(t)
	if err == store.ErrNotFound {
		return true
	}
	if err != nil {
		log.WithError(err).WithField("round_type", t).Warn("scheduler: timing guard lookup failed, proceeding")
		return true
	}
	return clockid.NowUnix()-last.Ts >= int64(intervalSeconds)
}

func logEngineResult(job string, res engine.Result) {
	logEntry := log.WithField("job", job)
	switch res.Outcome {
	case engine.OutcomeSkippedSafeMode:
		logEntry.WithField("reason", res.Reason).Info("skipped: safe mode latched")
	case engine.OutcomeSkippedLockHeld:
		logEntry.Info("skipped: lock held by another run")
	case engine.OutcomeTimedOut:
		logEntry.Warn("timed out")
	case engine.OutcomeRan:
		if res.Err != nil {
			logEntry.WithError(res.Err).Warn("ran with error")
		} else {
			logEntry.Info("ran")
		}
	}
}

// cronSpecFor maps an interval in seconds to a human-calendar-aligned
// cron expression: sub-minute intervals fire every minute, sub-hour
// intervals fire every N minutes aligned to the minute, sub-day
// intervals fire every N hours aligned to the hour, and anything larger
// fires once daily at midnight.
func cronSpecFor(seconds int) string {
	switch {
	case seconds < 60:
		return "0 * * * * *"
	case seconds < 3600:
		n := seconds / 60
		return fmt.Sprintf("0 */%d * * * *", n)
	case seconds < 86400:
		n := seconds / 3600
		return fmt.Sprintf("0 0 */%d * * *", n)
	default:
		return "0 0 0 * * *"
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
