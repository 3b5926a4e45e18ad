// Package compactor is the local compactor FSM the Watchdog Adaptive
// Controller throttles and, opportunistically, drives.
// It wraps localstore.Store.CompactData with the IDLE/RUNNING status
// and pending-target bookkeeping the controller's CompactorFSM
// contract needs; parallelism is an atomically adjustable knob so
// Increase/Decrease never race a running compaction.
package compactor

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/facebookgo/clock"

	"github.com/windkit/leo-storage/internal/localstore"
	"github.com/windkit/leo-storage/internal/model"
)

// FSM is the concrete compactor state machine.
type FSM struct {
	store localstore.Store
	clk   clock.Clock

	mu             sync.Mutex
	status         model.CompactionStatus
	pendingTargets []string
	latestExecTime uint64

	parallelism int64
}

func New(store localstore.Store, initialParallelism int) *FSM {
	if initialParallelism <= 0 {
		initialParallelism = 1
	}
	return &FSM{store: store, clk: clock.New(), parallelism: int64(initialParallelism)}
}

// SetClock overrides the clock for deterministic tests.
func (f *FSM) SetClock(cl clock.Clock) { f.clk = cl }

// SetPendingTargets records which containers currently need compaction
// (populated by whatever out-of-scope disk watchdog tracks
// fragmentation; this core only reacts to the resulting list).
func (f *FSM) SetPendingTargets(targets []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pendingTargets = targets
}

// Increase raises the compaction parallelism budget by one, never
// exceeding no explicit ceiling beyond what CompactData is asked to use.
func (f *FSM) Increase() { atomic.AddInt64(&f.parallelism, 1) }

// Decrease lowers the compaction parallelism budget by one, floored at 1.
func (f *FSM) Decrease() {
	for {
		cur := atomic.LoadInt64(&f.parallelism)
		if cur <= 1 {
			return
		}
		if atomic.CompareAndSwapInt64(&f.parallelism, cur, cur-1) {
			return
		}
	}
}

// Status reports the FSM's externally visible state, the same shape returned over peer RPC by Compact.
func (f *FSM) Status() model.CompactionStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	targets := make([]string, len(f.pendingTargets))
	copy(targets, f.pendingTargets)
	return model.CompactionStats{Status: f.status, PendingTargets: targets, LatestExecTime: f.latestExecTime}
}

// CompactData runs a compaction pass, going RUNNING for its duration.
// A call made while a pass is already RUNNING is not queued: it
// returns a KindUnavailable error without touching the store.
func (f *FSM) CompactData(ctx context.Context, targets []string, parallelism int, ownership func(key []byte) bool) error {
	f.mu.Lock()
	if f.status == model.CompactionRunning {
		f.mu.Unlock()
		return model.NewError(model.KindUnavailable, "", nil)
	}
	f.status = model.CompactionRunning
	f.mu.Unlock()

	if parallelism <= 0 {
		parallelism = int(atomic.LoadInt64(&f.parallelism))
	}

	err := f.store.CompactData(ctx, targets, parallelism, ownership)

	f.mu.Lock()
	f.status = model.CompactionIdle
	f.latestExecTime = uint64(f.clk.Now().Unix())
	if err == nil {
		f.pendingTargets = nil
	}
	f.mu.Unlock()
	return err
}
