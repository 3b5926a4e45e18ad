package watchdog

import (
	"context"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/stretchr/testify/assert"

	"github.com/windkit/leo-storage/internal/model"
	"github.com/windkit/leo-storage/internal/queue"
)

type fakeFSM struct {
	increaseCalls int
	decreaseCalls int
	status        model.CompactionStats
	compactCalls  chan []string
	compactErr    error
}

func newFakeFSM() *fakeFSM { return &fakeFSM{compactCalls: make(chan []string, 4)} }

func (f *fakeFSM) Increase() { f.increaseCalls++ }
func (f *fakeFSM) Decrease() { f.decreaseCalls++ }
func (f *fakeFSM) Status() model.CompactionStats { return f.status }
func (f *fakeFSM) CompactData(ctx context.Context, targets []string, parallelism int, ownership func([]byte) bool) error {
	f.compactCalls <- targets
	return f.compactErr
}

type fakeMembers struct{ nodes []string }

func (f fakeMembers) RunningMembers() []string { return f.nodes }

type fakePeerCompactor struct{ status map[string]model.CompactionStats }

func (f fakePeerCompactor) Get(ctx context.Context, node, ref string, addressID uint32, key []byte, start, end int64, etag uint64) (model.Metadata, []byte, error) {
	return model.Metadata{}, nil, nil
}
func (f fakePeerCompactor) Put(ctx context.Context, node, ref string, obj model.Object) (uint64, error) {
	return 0, nil
}
func (f fakePeerCompactor) Delete(ctx context.Context, node, ref string, obj model.Object) error {
	return nil
}
func (f fakePeerCompactor) Head(ctx context.Context, node string, addressID uint32, key []byte) ([]byte, error) {
	return nil, nil
}
func (f fakePeerCompactor) Compact(ctx context.Context, node string) (model.CompactionStats, error) {
	return f.status[node], nil
}
func (f fakePeerCompactor) DeleteObjectsUnderDir(ctx context.Context, node, ref string, prefix []byte) error {
	return nil
}

// TestOnChannelANoopWhenBothDisabled asserts that with both
// cpu_enabled and disk_enabled false, channel A has no effect.
func TestOnChannelANoopWhenBothDisabled(t *testing.T) {
	fsm := newFakeFSM()
	q := queue.NewMemQueue()
	c := New(Config{}, q, fsm, fakePeerCompactor{}, "self", fakeMembers{}, nil)

	c.OnChannelA(model.WatchdogAlarm{Level: model.AlarmWarning}, true)
	c.OnChannelA(model.WatchdogAlarm{Level: model.AlarmWarning}, false)

	assert.Equal(t, 0, fsm.increaseCalls)
	assert.Equal(t, 0, fsm.decreaseCalls)
	assert.Equal(t, 0, q.Concurrency(queue.TopicPerObject))
}

func TestOnChannelAIncreasesOnSafeCountReached(t *testing.T) {
	fsm := newFakeFSM()
	q := queue.NewMemQueue()
	c := New(Config{CPUEnabled: true}, q, fsm, fakePeerCompactor{}, "self", fakeMembers{}, nil)

	c.OnChannelA(model.WatchdogAlarm{Level: model.AlarmWarning}, true)

	assert.Equal(t, 1, fsm.increaseCalls)
	for _, topic := range queue.Topics {
		assert.Equal(t, 1, q.Concurrency(topic))
	}
}

func TestOnChannelADecreasesOnAlarm(t *testing.T) {
	fsm := newFakeFSM()
	q := queue.NewMemQueue()
	c := New(Config{DiskEnabled: true}, q, fsm, fakePeerCompactor{}, "self", fakeMembers{}, nil)

	c.OnChannelA(model.WatchdogAlarm{Level: model.AlarmWarning}, false)

	assert.Equal(t, 1, fsm.decreaseCalls)
	for _, topic := range queue.Topics {
		assert.Equal(t, -1, q.Concurrency(topic))
	}
}

func TestCanStartCompactionFalseWhenReplicationFactorMissing(t *testing.T) {
	c := New(Config{ReplicationFactorN: 0}, queue.NewMemQueue(), newFakeFSM(), fakePeerCompactor{}, "self", fakeMembers{nodes: []string{"self"}}, nil)
	assert.False(t, c.CanStartCompaction(context.Background()))
}

// TestCanStartCompactionZeroMembersBaseCase is the open
// question resolution: with no running members, running(0) < allowable
// evaluates literally, which is true whenever allowable >= 1.
func TestCanStartCompactionZeroMembersBaseCase(t *testing.T) {
	c := New(Config{ReplicationFactorN: 3}, queue.NewMemQueue(), newFakeFSM(), fakePeerCompactor{}, "self", fakeMembers{nodes: nil}, nil)
	assert.True(t, c.CanStartCompaction(context.Background()))
}

func TestCanStartCompactionFalseWhenEnoughPeersAlreadyRunning(t *testing.T) {
	fsm := newFakeFSM()
	fsm.status = model.CompactionStats{Status: model.CompactionRunning}
	peers := fakePeerCompactor{status: map[string]model.CompactionStats{
		"b": {Status: model.CompactionRunning},
		"c": {Status: model.CompactionIdle},
	}}
	members := fakeMembers{nodes: []string{"self", "b", "c"}}
	c := New(Config{ReplicationFactorN: 3}, queue.NewMemQueue(), fsm, peers, "self", members, nil)

	assert.False(t, c.CanStartCompaction(context.Background()))
}

func TestCanStartCompactionTrueWhenFewPeersRunning(t *testing.T) {
	fsm := newFakeFSM()
	fsm.status = model.CompactionStats{Status: model.CompactionRunning}
	peers := fakePeerCompactor{status: map[string]model.CompactionStats{
		"b": {Status: model.CompactionIdle},
		"c": {Status: model.CompactionIdle},
		"d": {Status: model.CompactionIdle},
		"e": {Status: model.CompactionIdle},
		"f": {Status: model.CompactionIdle},
	}}
	members := fakeMembers{nodes: []string{"self", "b", "c", "d", "e", "f"}}
	c := New(Config{ReplicationFactorN: 2}, queue.NewMemQueue(), fsm, peers, "self", members, nil)

	assert.True(t, c.CanStartCompaction(context.Background()))
}

// TestOnChannelBTriggersCompactionAfterPreWait exercises the full
// channel-B path: alarm at ERROR, CanStartCompaction true, sleep the
// configured pre-wait (advanced via a mock clock instead of a real
// sleep), then CompactData fires because the FSM is IDLE with pending
// targets and the interval has elapsed.
func TestOnChannelBTriggersCompactionAfterPreWait(t *testing.T) {
	fsm := newFakeFSM()
	fsm.status = model.CompactionStats{Status: model.CompactionIdle, PendingTargets: []string{"container-1"}}
	members := fakeMembers{nodes: []string{"self"}}
	cfg := Config{ReplicationFactorN: 1, CompactionPreWait: 5 * time.Second, AutoCompactionInterval: 0, AutoCompactionParallel: 2}
	c := New(cfg, queue.NewMemQueue(), fsm, fakePeerCompactor{}, "self", members, func([]byte) bool { return true })

	mock := clock.NewMock()
	c.SetClock(mock)

	done := make(chan struct{})
	go func() {
		c.OnChannelB(context.Background(), model.WatchdogAlarm{Level: model.AlarmError})
		close(done)
	}()

	// Give OnChannelB time to reach the clock.After call before advancing it.
	time.Sleep(20 * time.Millisecond)
	mock.Add(cfg.CompactionPreWait)

	select {
	case targets := <-fsm.compactCalls:
		assert.Equal(t, []string{"container-1"}, targets)
	case <-time.After(time.Second):
		t.Fatal("CompactData was not called")
	}
	<-done
}

func TestOnChannelBSkipsBelowErrorLevel(t *testing.T) {
	fsm := newFakeFSM()
	c := New(Config{ReplicationFactorN: 1, CompactionPreWait: time.Millisecond}, queue.NewMemQueue(), fsm, fakePeerCompactor{}, "self", fakeMembers{nodes: []string{"self"}}, nil)

	c.OnChannelB(context.Background(), model.WatchdogAlarm{Level: model.AlarmWarning})

	select {
	case <-fsm.compactCalls:
		t.Fatal("CompactData must not run below ERROR level")
	default:
	}
}
