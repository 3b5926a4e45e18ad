package peer

import (
	"context"
	"sync"

	"github.com/windkit/leo-storage/internal/model"
)

// FakeClient is an in-process Client fake routing calls directly to a
// set of registered Inbound handlers, one per simulated node. It lets
// Replicator/Read-Repair/Watchdog tests exercise real peer fan-out
// without any wire transport, the way weed's own tests substitute a
// local MasterClient for grpc.ClientConn.
type FakeClient struct {
	mu       sync.RWMutex
	inbounds map[string]Inbound
	compact  map[string]func() (model.CompactionStats, error)
}

// Inbound is the server-side contract a simulated node registers; it
// mirrors the Handler's InboundXxx methods (handler/handler.go) minus
// the Reference plumbing FakeClient handles itself.
type Inbound interface {
	InboundGet(ctx context.Context, ref string, addressID uint32, key []byte, start, end int64) Reply[GetResult]
	InboundPut(ctx context.Context, ref string, obj model.Object) Reply[PutResult]
	InboundDelete(ctx context.Context, ref string, obj model.Object) Reply[struct{}]
	InboundHead(ctx context.Context, addressID uint32, key []byte) ([]byte, error)
	InboundDeleteObjectsUnderDir(ctx context.Context, ref string, prefix []byte) Reply[struct{}]
}

func NewFakeClient() *FakeClient {
	return &FakeClient{inbounds: make(map[string]Inbound), compact: make(map[string]func() (model.CompactionStats, error))}
}

// Register attaches a node's inbound handler under its node id.
func (f *FakeClient) Register(node string, in Inbound) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbounds[node] = in
}

// RegisterCompaction attaches a node's compaction-status poller, used
// by watchdog tests exercising CanStartCompaction.
func (f *FakeClient) RegisterCompaction(node string, status func() (model.CompactionStats, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.compact[node] = status
}

func (f *FakeClient) handlerFor(node string) (Inbound, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	in, ok := f.inbounds[node]
	if !ok {
		return nil, model.NewError(model.KindUnavailable, node, nil)
	}
	return in, nil
}

func (f *FakeClient) Get(ctx context.Context, node string, ref string, addressID uint32, key []byte, start, end int64, etag uint64) (model.Metadata, []byte, error) {
	in, err := f.handlerFor(node)
	if err != nil {
		return model.Metadata{}, nil, err
	}
	reply := in.InboundGet(ctx, ref, addressID, key, start, end)
	if reply.Err != nil {
		return model.Metadata{}, nil, reply.Err
	}
	if etag != 0 && reply.Value.Metadata.Checksum == etag {
		return reply.Value.Metadata, nil, nil
	}
	return reply.Value.Metadata, reply.Value.Data, nil
}

func (f *FakeClient) Put(ctx context.Context, node string, ref string, obj model.Object) (uint64, error) {
	in, err := f.handlerFor(node)
	if err != nil {
		return 0, err
	}
	reply := in.InboundPut(ctx, ref, obj)
	if reply.Err != nil {
		return 0, reply.Err
	}
	return reply.Value.ETag, nil
}

func (f *FakeClient) Delete(ctx context.Context, node string, ref string, obj model.Object) error {
	in, err := f.handlerFor(node)
	if err != nil {
		return err
	}
	reply := in.InboundDelete(ctx, ref, obj)
	return reply.Err
}

func (f *FakeClient) Head(ctx context.Context, node string, addressID uint32, key []byte) ([]byte, error) {
	in, err := f.handlerFor(node)
	if err != nil {
		return nil, err
	}
	return in.InboundHead(ctx, addressID, key)
}

func (f *FakeClient) Compact(ctx context.Context, node string) (model.CompactionStats, error) {
	f.mu.RLock()
	fn, ok := f.compact[node]
	f.mu.RUnlock()
	if !ok {
		return model.CompactionStats{}, model.NewError(model.KindUnavailable, node, nil)
	}
	return fn()
}

func (f *FakeClient) DeleteObjectsUnderDir(ctx context.Context, node string, ref string, prefix []byte) error {
	in, err := f.handlerFor(node)
	if err != nil {
		return err
	}
	reply := in.InboundDeleteObjectsUnderDir(ctx, ref, prefix)
	return reply.Err
}
