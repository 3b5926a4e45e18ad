package peer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/windkit/leo-storage/internal/model"
)

type fakeInbound struct {
	putETag uint64
	headErr error
}

func (f fakeInbound) InboundGet(ctx context.Context, ref string, addressID uint32, key []byte, start, end int64) Reply[GetResult] {
	return Reply[GetResult]{Ref: ref, Value: GetResult{Metadata: model.Metadata{Checksum: 0xBEEF}, Data: []byte("v")}}
}
func (f fakeInbound) InboundPut(ctx context.Context, ref string, obj model.Object) Reply[PutResult] {
	return Reply[PutResult]{Ref: ref, Value: PutResult{ETag: f.putETag}}
}
func (f fakeInbound) InboundDelete(ctx context.Context, ref string, obj model.Object) Reply[struct{}] {
	return Reply[struct{}]{Ref: ref}
}
func (f fakeInbound) InboundHead(ctx context.Context, addressID uint32, key []byte) ([]byte, error) {
	return nil, f.headErr
}
func (f fakeInbound) InboundDeleteObjectsUnderDir(ctx context.Context, ref string, prefix []byte) Reply[struct{}] {
	return Reply[struct{}]{Ref: ref}
}

func TestFakeClientRoutesToRegisteredNode(t *testing.T) {
	c := NewFakeClient()
	c.Register("a", fakeInbound{putETag: 0xABCD})

	etag, err := c.Put(context.Background(), "a", "ref-1", model.Object{})
	assert.NoError(t, err)
	assert.Equal(t, uint64(0xABCD), etag)
}

func TestFakeClientUnregisteredNodeIsUnavailable(t *testing.T) {
	c := NewFakeClient()
	_, err := c.Put(context.Background(), "ghost", "ref-1", model.Object{})
	assert.Equal(t, model.KindUnavailable, model.KindOf(err))
}

func TestFakeClientGetMatchingEtagReturnsNoBody(t *testing.T) {
	c := NewFakeClient()
	c.Register("a", fakeInbound{})

	meta, data, err := c.Get(context.Background(), "a", "ref-1", 1, []byte("k"), 0, -1, 0xBEEF)
	assert.NoError(t, err)
	assert.Nil(t, data)
	assert.Equal(t, uint64(0xBEEF), meta.Checksum)
}

func TestFakeClientCompactUsesRegisteredPoller(t *testing.T) {
	c := NewFakeClient()
	c.RegisterCompaction("a", func() (model.CompactionStats, error) {
		return model.CompactionStats{Status: model.CompactionRunning}, nil
	})

	stats, err := c.Compact(context.Background(), "a")
	assert.NoError(t, err)
	assert.Equal(t, model.CompactionRunning, stats.Status)
}

func TestFakeClientCompactUnregisteredIsUnavailable(t *testing.T) {
	c := NewFakeClient()
	_, err := c.Compact(context.Background(), "ghost")
	assert.Equal(t, model.KindUnavailable, model.KindOf(err))
}
