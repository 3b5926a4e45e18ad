// Package watchdog implements the Watchdog Subscriber / Adaptive
// Controller: it reacts to two alarm channels by
// raising/lowering compactor and queue concurrency, and by triggering
// opportunistic compaction when cluster conditions permit. Wall-clock
// reads go through github.com/facebookgo/clock so tests can advance a
// fake clock instead of sleeping for real.
package watchdog

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/facebookgo/clock"

	"github.com/windkit/leo-storage/internal/glog"
	"github.com/windkit/leo-storage/internal/model"
	"github.com/windkit/leo-storage/internal/peer"
	"github.com/windkit/leo-storage/internal/queue"
	"github.com/windkit/leo-storage/internal/stats"
)

// CompactorFSM is the local compactor state machine the controller
// throttles and, opportunistically, drives.
type CompactorFSM interface {
	Increase()
	Decrease()
	Status() model.CompactionStats
	CompactData(ctx context.Context, targets []string, parallelism int, ownership func(key []byte) bool) error
}

// MembershipSource supplies the cluster's running members, used by
// CanStartCompaction to query peer compaction status.
type MembershipSource interface {
	RunningMembers() []string
}

// SafetyQuery answers the Handler's pre-flight guard:
// "every local PUT/DELETE/GET-fun consults find_not_safe_items".
type SafetyQuery interface {
	FindNotSafeItems(exclude []string) []string
}

// Controller is the Watchdog Subscriber / Adaptive Controller.
type Controller struct {
	cfg    Config
	clock  clock.Clock
	queues queue.Queue
	fsm    CompactorFSM
	peers  peer.Client
	self   string
	members MembershipSource

	mu            sync.Mutex
	unsafeItems   map[string]struct{}
	ownership     func(key []byte) bool
}

// Config mirrors the configuration keys the controller reads.
type Config struct {
	CPUEnabled              bool
	DiskEnabled             bool
	AutoCompactionInterval  time.Duration
	AutoCompactionParallel  int
	CompactionPreWait       time.Duration
	ReplicationFactorN      int // 0 means "N unknown"; CanStartCompaction always false
}

func New(cfg Config, q queue.Queue, fsm CompactorFSM, peers peer.Client, selfNode string, members MembershipSource, ownership func(key []byte) bool) *Controller {
	return &Controller{
		cfg: cfg, clock: clock.New(), queues: q, fsm: fsm, peers: peers,
		self: selfNode, members: members, unsafeItems: make(map[string]struct{}),
		ownership: ownership,
	}
}

// SetClock overrides the clock for deterministic tests.
func (c *Controller) SetClock(cl clock.Clock) { c.clock = cl }

// MarkUnsafe/ClearUnsafe let a real CPU/disk/cluster watchdog populate
// the set find_not_safe_items reads; this package only exposes the
// query side the Handler's pre-flight guard needs.
func (c *Controller) MarkUnsafe(item string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsafeItems[item] = struct{}{}
}

func (c *Controller) ClearUnsafe(item string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.unsafeItems, item)
}

// FindNotSafeItems implements SafetyQuery.
func (c *Controller) FindNotSafeItems(exclude []string) []string {
	excluded := make(map[string]struct{}, len(exclude))
	for _, e := range exclude {
		excluded[e] = struct{}{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for item := range c.unsafeItems {
		if _, skip := excluded[item]; !skip {
			out = append(out, item)
		}
	}
	return out
}

// OnChannelA handles the CPU/disk/cluster/message-count alarm channel.
// safeCountReached distinguishes the "alarm" direction from the "safe
// count reached" direction; both are symmetric.
func (c *Controller) OnChannelA(alarm model.WatchdogAlarm, safeCountReached bool) {
	if !c.cfg.CPUEnabled && !c.cfg.DiskEnabled {
		return // both disabled means no effect at all
	}
	if safeCountReached {
		c.fsm.Increase()
		for _, topic := range queue.Topics {
			c.queues.Handle(topic).SetConcurrency(+1)
			stats.WatchdogQueueConcurrencyDelta.WithLabelValues(topic, "increase").Inc()
		}
		return
	}
	c.fsm.Decrease()
	for _, topic := range queue.Topics {
		c.queues.Handle(topic).SetConcurrency(-1)
		stats.WatchdogQueueConcurrencyDelta.WithLabelValues(topic, "decrease").Inc()
	}
}

// OnChannelB handles the fragmentation-watchdog alarm channel: at
// level >= ERROR, if CanStartCompaction holds, sleep the configured
// pre-wait, then trigger compaction if the FSM is IDLE with pending
// targets and the interval has elapsed.
func (c *Controller) OnChannelB(ctx context.Context, alarm model.WatchdogAlarm) {
	if alarm.Level < model.AlarmError {
		return
	}
	if !c.CanStartCompaction(ctx) {
		return
	}

	select {
	case <-c.clock.After(c.cfg.CompactionPreWait):
	case <-ctx.Done():
		return
	}

	status := c.fsm.Status()
	if status.Status != model.CompactionIdle || len(status.PendingTargets) == 0 {
		return
	}
	now := uint64(c.clock.Now().Unix())
	if now < status.LatestExecTime || now-status.LatestExecTime < uint64(c.cfg.AutoCompactionInterval.Seconds()) {
		return
	}

	if err := c.fsm.CompactData(ctx, status.PendingTargets, c.cfg.AutoCompactionParallel, c.ownership); err != nil {
		glog.Errorf("opportunistic compaction failed: %v", err)
		return
	}
	stats.CompactionTriggered.WithLabelValues().Inc()
}

// CanStartCompaction holds when, across all RUNNING cluster members
// (queried via peer RPC), fewer than max(1, round(|members|/N) - 1)
// are currently RUNNING. Missing N (ReplicationFactorN == 0) means
// false.
func (c *Controller) CanStartCompaction(ctx context.Context) bool {
	if c.cfg.ReplicationFactorN <= 0 {
		return false
	}
	members := c.members.RunningMembers()
	allowable := int(math.Max(1, math.Round(float64(len(members))/float64(c.cfg.ReplicationFactorN)))) - 1
	if allowable < 1 {
		allowable = 1
	}

	running := 0
	for _, m := range members {
		if m == c.self {
			if c.fsm.Status().Status == model.CompactionRunning {
				running++
			}
			continue
		}
		stats2, err := c.peers.Compact(ctx, m)
		if err != nil {
			glog.V(2).Infof("compaction status query to %s failed: %v", m, err)
			continue
		}
		if stats2.Status == model.CompactionRunning {
			running++
		}
	}

	if len(members) == 0 {
		// Base case with zero running members: true whenever
		// allowable >= 1, since running is 0.
		return running < allowable
	}
	return running < allowable
}
