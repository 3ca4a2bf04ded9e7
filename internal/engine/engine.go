// Package engine is the single place a job's outcome is decided: the
// safe-mode gate, the single-flight lock, the timeout wrapper, and the
// classification of adapter errors into transient-RPC vs. fatal.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"treasurybot/internal/clockid"
	"treasurybot/internal/store"
)

// Outcome tags why a job did or didn't produce a JobResult.
type Outcome int

const (
	OutcomeRan Outcome = iota
	OutcomeSkippedSafeMode
	OutcomeSkippedLockHeld
	OutcomeTimedOut
)

// JobResult is whatever the job body wants recorded; the engine doesn't
// interpret it.
type JobResult struct {
	Value any
	Err   error
}

// Result is what RunGuarded returns to its caller.
type Result struct {
	Outcome Outcome
	Value   any
	Err     error
	Reason  string
}

var rpcTransientSubstrings = []string{"503", "429", "timeout", "ECONNREFUSED", "fetch failed"}

// Engine wraps job bodies with the safe-mode gate, execution lock,
// timeout, and error classification described for the buy/reward jobs.
type Engine struct {
	store                   *store.Store
	maxRPCErrorsBeforePause int
}

func New(s *store.Store, maxRPCErrorsBeforePause int) *Engine {
	return &Engine{store: s, maxRPCErrorsBeforePause: maxRPCErrorsBeforePause}
}

// RunGuarded gates, locks, times out, runs, classifies, and always
// releases the lock for lockType. body receives a context cancelled at
// timeout and should return a result/error that reflects the job's own
// outcome (a job can itself fail without an adapter error).
func (e *Engine) RunGuarded(ctx context.Context, lockType store.LockType, timeout time.Duration, body func(context.Context) (any, error)) Result {
	safeMode, err := e.store.IsSafeMode()
	if err != nil {
		return Result{Outcome: OutcomeRan, Err: err}
	}
	if safeMode {
		reason, _ := e.store.GetState("safe_mode")
		return Result{Outcome: OutcomeSkippedSafeMode, Reason: reason}
	}

	if err := e.store.AcquireLock(lockType, os.Getpid(), clockid.NowUnix()); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return Result{Outcome: OutcomeSkippedLockHeld}
		}
		return Result{Outcome: OutcomeRan, Err: err}
	}
	defer func() {
		if relErr := e.store.ReleaseLock(lockType); relErr != nil {
			log.WithError(relErr).WithField("lock", lockType).Warn("engine: lock release failed")
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	value, runErr := body(runCtx)

	if runErr == nil {
		if err := e.resetRPCErrorCount(); err != nil {
			log.WithError(err).Warn("engine: failed to reset consecutive_rpc_errors")
		}
		return Result{Outcome: OutcomeRan, Value: value}
	}

	if runCtx.Err() != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return Result{Outcome: OutcomeTimedOut, Err: runErr}
	}

	if isRPCTransient(runErr) {
		if err := e.recordRPCError(); err != nil {
			log.WithError(err).Warn("engine: failed to record consecutive_rpc_errors")
		}
	}

	return Result{Outcome: OutcomeRan, Value: value, Err: runErr}
}

func isRPCTransient(err error) bool {
	msg := err.Error()
	for _, substr := range rpcTransientSubstrings {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

func (e *Engine) resetRPCErrorCount() error {
	return e.store.SetState("consecutive_rpc_errors", "0")
}

func (e *Engine) recordRPCError() error {
	count, err := e.currentRPCErrorCount()
	if err != nil {
		return err
	}
	count++
	if err := e.store.SetState("consecutive_rpc_errors", fmt.Sprintf("%d", count)); err != nil {
		return err
	}
	if count >= e.maxRPCErrorsBeforePause {
		return e.store.TripSafeMode(fmt.Sprintf("consecutive_rpc_errors reached %d", count))
	}
	return nil
}

func (e *Engine) currentRPCErrorCount() (int, error) {
	v, err := e.store.GetState("consecutive_rpc_errors")
	if err != nil && err != store.ErrNotFound {
		return 0, err
	}
	if v == "" {
		return 0, nil
	}
	var n int
	if _, scanErr := fmt.Sscanf(v, "%d", &n); scanErr != nil {
		return 0, nil
	}
	return n, nil
}
