package readrepair

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/windkit/leo-storage/internal/localstore"
	"github.com/windkit/leo-storage/internal/model"
)

type fakeLocal struct {
	meta     model.Metadata
	data     []byte
	err      error
	headErr  error
	headByte []byte
}

func (f fakeLocal) Head(ctx context.Context, addr localstore.Addr) ([]byte, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	return f.headByte, nil
}

func (f fakeLocal) Get(ctx context.Context, addr localstore.Addr, start, end int64) (model.Metadata, []byte, error) {
	return f.meta, f.data, f.err
}

type fakePeers struct {
	meta    map[string]model.Metadata
	data    map[string][]byte
	headErr map[string]error
	getErr  map[string]error
}

func newFakePeers() *fakePeers {
	return &fakePeers{meta: map[string]model.Metadata{}, data: map[string][]byte{}, headErr: map[string]error{}, getErr: map[string]error{}}
}

func (f *fakePeers) Get(ctx context.Context, node, ref string, addressID uint32, key []byte, start, end int64, etag uint64) (model.Metadata, []byte, error) {
	if err, ok := f.getErr[node]; ok {
		return model.Metadata{}, nil, err
	}
	return f.meta[node], f.data[node], nil
}
func (f *fakePeers) Put(ctx context.Context, node, ref string, obj model.Object) (uint64, error) {
	return 0, nil
}
func (f *fakePeers) Delete(ctx context.Context, node, ref string, obj model.Object) error { return nil }
func (f *fakePeers) Head(ctx context.Context, node string, addressID uint32, key []byte) ([]byte, error) {
	if err, ok := f.headErr[node]; ok {
		return nil, err
	}
	meta := f.meta[node]
	return localstore.EncodeMetadata(meta), nil
}
func (f *fakePeers) Compact(ctx context.Context, node string) (model.CompactionStats, error) {
	return model.CompactionStats{}, nil
}
func (f *fakePeers) DeleteObjectsUnderDir(ctx context.Context, node, ref string, prefix []byte) error {
	return nil
}

type noopRepairer struct{ called chan []model.Node }

func (n noopRepairer) Repair(ctx context.Context, params model.ReadParams, authoritative model.Metadata, authoritativeData []byte, remaining []model.Node, done func(error)) {
	if n.called != nil {
		n.called <- remaining
	}
	done(nil)
}

// TestIfMatchShortCircuit is S3: a GET with etag equal to
// the stored checksum returns Match with no body.
func TestIfMatchShortCircuit(t *testing.T) {
	local := fakeLocal{headByte: localstore.EncodeMetadata(model.Metadata{Checksum: 0xABCD})}
	e := New("self", local, newFakePeers(), noopRepairer{})

	params := model.ReadParams{AddressID: 1, Key: []byte("k"), ETag: 0xABCD, NumOfReplicas: 3, Quorum: 2}
	set := model.RedundancySet{Nodes: []model.Node{{ID: "self", Available: true}, {ID: "b", Available: true}}}

	_, _, isMatch, err := e.ReadAndRepair(context.Background(), params, set)
	assert.NoError(t, err)
	assert.True(t, isMatch)
}

// TestIfMatchFallsThroughWhenSingleReplica is boundary
// behavior: etag set but num_of_replicas==1 and no local match returns
// the locally read object, not Match.
func TestIfMatchFallsThroughWhenSingleReplica(t *testing.T) {
	local := fakeLocal{
		headByte: localstore.EncodeMetadata(model.Metadata{Checksum: 0x1111}),
		meta:     model.Metadata{Checksum: 0x1111, DataSize: 2},
		data:     []byte("hi"),
	}
	e := New("self", local, newFakePeers(), noopRepairer{})

	params := model.ReadParams{AddressID: 1, Key: []byte("k"), ETag: 0x9999, NumOfReplicas: 1, Quorum: 1}
	set := model.RedundancySet{Nodes: []model.Node{{ID: "self", Available: true}}}

	_, data, isMatch, err := e.ReadAndRepair(context.Background(), params, set)
	assert.NoError(t, err)
	assert.False(t, isMatch)
	assert.Equal(t, []byte("hi"), data)
}

// TestReadRepairTriggeredOnDivergentReplica is S2: a
// primary read returning successfully with remaining replicas spawns a
// background repair but still returns immediately.
func TestReadRepairTriggeredOnDivergentReplica(t *testing.T) {
	local := fakeLocal{meta: model.Metadata{Checksum: 0x1111, DataSize: 2}, data: []byte("hi")}
	peers := newFakePeers()
	repairer := noopRepairer{called: make(chan []model.Node, 1)}
	e := New("self", local, peers, repairer)

	params := model.ReadParams{AddressID: 1, Key: []byte("k"), NumOfReplicas: 3, Quorum: 2}
	set := model.RedundancySet{Nodes: []model.Node{{ID: "self", Available: true}, {ID: "b", Available: true}}}

	meta, data, isMatch, err := e.ReadAndRepair(context.Background(), params, set)
	assert.NoError(t, err)
	assert.False(t, isMatch)
	assert.Equal(t, []byte("hi"), data)
	assert.Equal(t, uint64(0x1111), meta.Checksum)

	select {
	case remaining := <-repairer.called:
		assert.Len(t, remaining, 1)
		assert.Equal(t, "b", remaining[0].ID)
	case <-time.After(time.Second):
		t.Fatal("background repair was not spawned")
	}
}

func TestReadAndRepairNotFoundWhenPrimaryMissing(t *testing.T) {
	local := fakeLocal{err: model.ErrNotFound}
	e := New("self", local, newFakePeers(), noopRepairer{})

	params := model.ReadParams{AddressID: 1, Key: []byte("k"), NumOfReplicas: 1, Quorum: 1}
	set := model.RedundancySet{Nodes: []model.Node{{ID: "self", Available: true}}}

	_, _, _, err := e.ReadAndRepair(context.Background(), params, set)
	assert.Equal(t, model.KindNotFound, model.KindOf(err))
}
