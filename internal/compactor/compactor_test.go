package compactor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/windkit/leo-storage/internal/localstore"
	"github.com/windkit/leo-storage/internal/model"
)

type fakeStore struct {
	compactErr   error
	compactCalls [][]string
}

func (f *fakeStore) Get(ctx context.Context, addr localstore.Addr, start, end int64, forcedIntegrityCheck bool) (model.Metadata, model.Object, error) {
	return model.Metadata{}, model.Object{}, nil
}

func (f *fakeStore) Put(ctx context.Context, addr localstore.Addr, obj model.Object) (uint64, error) {
	return 0, nil
}

func (f *fakeStore) Delete(ctx context.Context, addr localstore.Addr, obj model.Object) error {
	return nil
}

func (f *fakeStore) Head(ctx context.Context, addr localstore.Addr) ([]byte, error) {
	return nil, nil
}

func (f *fakeStore) HeadWithMD5(ctx context.Context, addr localstore.Addr, md5Ctx []byte) (model.Metadata, []byte, error) {
	return model.Metadata{}, nil, nil
}

func (f *fakeStore) FetchByKey(ctx context.Context, prefix []byte, visitor localstore.Visitor, seed interface{}) (interface{}, error) {
	return seed, nil
}

func (f *fakeStore) CompactData(ctx context.Context, targets []string, parallelism int, ownership func([]byte) bool) error {
	f.compactCalls = append(f.compactCalls, targets)
	return f.compactErr
}

func TestCompactDataGoesIdleAfterSuccess(t *testing.T) {
	store := &fakeStore{}
	f := New(store, 2)
	f.SetPendingTargets([]string{"c1"})

	err := f.CompactData(context.Background(), []string{"c1"}, 2, nil)
	assert.NoError(t, err)

	status := f.Status()
	assert.Equal(t, model.CompactionIdle, status.Status)
	assert.Empty(t, status.PendingTargets)
	assert.NotZero(t, status.LatestExecTime)
}

func TestCompactDataKeepsPendingTargetsOnFailure(t *testing.T) {
	store := &fakeStore{compactErr: assertError{}}
	f := New(store, 1)
	f.SetPendingTargets([]string{"c1"})

	err := f.CompactData(context.Background(), []string{"c1"}, 1, nil)
	assert.Error(t, err)
	assert.Equal(t, []string{"c1"}, f.Status().PendingTargets)
}

func TestCompactDataRejectsReentryWhileRunning(t *testing.T) {
	store := &fakeStore{}
	f := New(store, 1)
	f.status = model.CompactionRunning

	err := f.CompactData(context.Background(), nil, 1, nil)
	assert.Equal(t, model.KindUnavailable, model.KindOf(err))
}

func TestIncreaseAndDecreaseAdjustParallelismFlooredAtOne(t *testing.T) {
	f := New(&fakeStore{}, 1)
	f.Decrease()
	assert.Equal(t, int64(1), f.parallelism)

	f.Increase()
	f.Increase()
	assert.Equal(t, int64(3), f.parallelism)

	f.Decrease()
	f.Decrease()
	assert.Equal(t, int64(1), f.parallelism)
}

type assertError struct{}

func (assertError) Error() string { return "compaction failed" }
