package handler

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/karlseguin/ccache/v2"

	"github.com/windkit/leo-storage/internal/localstore"
	"github.com/windkit/leo-storage/internal/model"
	"github.com/windkit/leo-storage/internal/queue"
	"github.com/windkit/leo-storage/internal/ring"
	"github.com/windkit/leo-storage/internal/stats"
)

// DirCache holds directory-listing cache entries the Handler
// invalidates on a recursive delete. The cache's
// actual population is outside this core's scope — only the
// invalidation hook is; karlseguin/ccache/v2's TTL-bucketed cache is a
// convenient off-the-shelf fit since directory listings are read far
// more than they're invalidated.
type DirCache struct {
	c *ccache.Cache
}

func NewDirCache() *DirCache {
	return &DirCache{c: ccache.New(ccache.Configure().MaxSize(10000).ItemsToPrune(100))}
}

func (d *DirCache) Invalidate(key string) { d.c.Delete(key) }

func (d *DirCache) Put(key string, value interface{}, ttl time.Duration) {
	d.c.Set(key, value, ttl)
}

func (d *DirCache) Get(key string) interface{} {
	item := d.c.Get(key)
	if item == nil || item.Expired() {
		return nil
	}
	return item.Value()
}

// teardownChunks implements chunked-object teardown: if the object at
// (addr,key) has a chunk count, each chunk is deleted through the
// full DELETE path before the parent delete proceeds. A nominal
// quorum of 0 is read as "each chunk delete must still reach a
// definitive success" — a literal quorum of zero would let the parent
// delete proceed even when every replica failed, defeating the
// invariant that chunks are actually gone before the parent is
// acknowledged — so each chunk delete is dispatched with an explicit
// quorum override of 1 rather than the computed W/D quorum.
func (h *Handler) teardownChunks(ctx context.Context, obj model.Object) error {
	metaBytes, err := h.store.Head(ctx, localstore.Addr{AddressID: obj.AddressID, Key: obj.Key})
	if err != nil {
		if model.KindOf(err) == model.KindNotFound {
			return nil
		}
		return err
	}
	meta, err := localstore.DecodeMetadata(metaBytes)
	if err != nil {
		return err
	}
	if meta.CNumber == 0 {
		return nil
	}

	chunkQuorum := uint8(1)
	for i := int64(meta.CNumber); i >= 1; i-- {
		index := uint32(i)
		chunkKey := model.ChunkKey(obj.Key, index)
		chunkObj := model.Object{
			AddressID:    ring.VnodeID(chunkKey),
			Key:          chunkKey,
			Method:       model.MethodPut,
			Del:          true,
			ParentKey:    obj.Key,
			ContentIndex: index,
		}
		_, kind, cerr := h.replicateMutation(ctx, model.MethodDelete, chunkObj, &chunkQuorum)
		if kind != model.KindNone && kind != model.KindNotFound {
			return cerr
		}
	}
	return nil
}

// afterDirectoryDelete drives steps 2-6 once a directory
// key's own DELETE has replicated successfully.
func (h *Handler) afterDirectoryDelete(dirKey []byte, ref string) {
	h.dirCache.Invalidate(string(dirKey))
	h.notifier.AfterDirectoryTombstone(dirKey)

	members := h.resolver.RunningMembers()
	go h.fanOutDirDelete(members, ref, dirKey)
	go h.prefixSearchAndRemove(context.Background(), dirKey)
}

// fanOutDirDelete dispatches delete_objects_under_dir to every running
// peer (step 5); an RPC failure is swallowed into a durable retry
// message rather than propagated, since directory-delete fan-out is
// fire-and-forget background work.
func (h *Handler) fanOutDirDelete(members []string, ref string, prefix []byte) {
	for _, m := range members {
		if m == h.self {
			continue
		}
		callCtx, cancel := context.WithTimeout(context.Background(), h.reqTimeout)
		err := h.peers.DeleteObjectsUnderDir(callCtx, m, ref, prefix)
		cancel()
		if err != nil {
			payload := encodeDirDeleteRetry(prefix, m)
			_ = h.queues.Handle(queue.TopicDelDir).Publish(string(prefix), payload)
		}
	}
}

// prefixSearchAndRemove implements step 6: scan the local store under
// prefix and publish an ASYNC_DELETE_OBJ message for each live entry,
// skipping anything already tombstoned.
func (h *Handler) prefixSearchAndRemove(ctx context.Context, prefix []byte) {
	visitor := func(key []byte, metaBytes []byte, acc interface{}) interface{} {
		meta, err := localstore.DecodeMetadata(metaBytes)
		if err != nil || meta.Del {
			return acc
		}
		payload := encodeAsyncDeleteObj(meta.AddressID, key)
		topicKey := strconv.FormatUint(uint64(meta.AddressID), 10) + ":" + string(key)
		_ = h.queues.Handle(queue.TopicAsyncDeleteObj).Publish(topicKey, payload)
		stats.DirDeleteObjectsEnqueued.WithLabelValues().Inc()
		return acc
	}
	_, _ = h.store.FetchByKey(ctx, prefix, visitor, nil)
}

type dirDeleteRetryRecord struct {
	Prefix []byte
	Node   string
	Kind   string
}

func encodeDirDeleteRetry(prefix []byte, node string) []byte {
	b, _ := json.Marshal(dirDeleteRetryRecord{Prefix: prefix, Node: node, Kind: queue.TopicAsyncDeleteDir})
	return b
}

type asyncDeleteObjRecord struct {
	AddressID uint32
	Key       []byte
}

func encodeAsyncDeleteObj(addressID uint32, key []byte) []byte {
	b, _ := json.Marshal(asyncDeleteObjRecord{AddressID: addressID, Key: key})
	return b
}
