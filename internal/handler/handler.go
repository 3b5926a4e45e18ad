// Package handler implements the Handler Layer: the
// GET/PUT/DELETE/HEAD entry points a gateway front-end calls into, and
// the symmetric inbound entry points a peer's Replicator calls back
// into on this node. Chunked-object teardown and recursive directory
// delete live alongside in dirdelete.go.
package handler

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/facebookgo/clock"

	"github.com/windkit/leo-storage/internal/localstore"
	"github.com/windkit/leo-storage/internal/model"
	"github.com/windkit/leo-storage/internal/notify"
	"github.com/windkit/leo-storage/internal/peer"
	"github.com/windkit/leo-storage/internal/pool"
	"github.com/windkit/leo-storage/internal/queue"
	"github.com/windkit/leo-storage/internal/readrepair"
	"github.com/windkit/leo-storage/internal/refid"
	"github.com/windkit/leo-storage/internal/replicate"
	"github.com/windkit/leo-storage/internal/ring"
)

// SafetyQuery is the watchdog's pre-flight guard contract: every
// local PUT/DELETE/GET consults FindNotSafeItems before touching
// local storage.
type SafetyQuery interface {
	FindNotSafeItems(exclude []string) []string
}

// LocalAdapter makes localstore.Store satisfy both the Replicator's
// LocalApplier and the Read-Repair Engine's LocalReader, since the
// Handler is the only thing that needs both views of the same store.
// Exported so cmd/leo-storaged can wire the Replicator and Read-Repair
// Engine against the same store instance the Handler uses.
type LocalAdapter struct{ store localstore.Store }

func NewLocalAdapter(store localstore.Store) *LocalAdapter { return &LocalAdapter{store: store} }

func (a *LocalAdapter) ApplyLocal(ctx context.Context, method model.Method, addressID uint32, obj model.Object) (uint64, error) {
	addr := localstore.Addr{AddressID: addressID, Key: obj.Key}
	if method == model.MethodDelete {
		return 0, a.store.Delete(ctx, addr, obj)
	}
	return a.store.Put(ctx, addr, obj)
}

func (a *LocalAdapter) Head(ctx context.Context, addr localstore.Addr) ([]byte, error) {
	return a.store.Head(ctx, addr)
}

func (a *LocalAdapter) Get(ctx context.Context, addr localstore.Addr, start, end int64) (model.Metadata, []byte, error) {
	meta, obj, err := a.store.Get(ctx, addr, start, end, false)
	return meta, obj.Data, err
}

// Handler is the per-node Handler Layer.
type Handler struct {
	self       string
	store      localstore.Store
	local      *LocalAdapter
	resolver   *ring.Resolver
	replicator *replicate.Replicator
	repair     *readrepair.Engine
	peers      peer.Client
	notifier   *notify.Notifier
	queues     queue.Queue
	safety     SafetyQuery
	dirCache   *DirCache
	clk        clock.Clock
	logical    uint64
	reqTimeout time.Duration
	admission  *pool.Pool
}

func New(selfNode string, store localstore.Store, resolver *ring.Resolver, replicator *replicate.Replicator,
	repair *readrepair.Engine, peers peer.Client, notifier *notify.Notifier, queues queue.Queue,
	safety SafetyQuery, reqTimeout time.Duration, admission *pool.Pool) *Handler {
	cl := clock.New()
	return &Handler{
		self: selfNode, store: store, local: NewLocalAdapter(store),
		resolver: resolver, replicator: replicator, repair: repair, peers: peers,
		notifier: notifier, queues: queues, safety: safety, dirCache: NewDirCache(),
		clk: cl, logical: uint64(cl.Now().UnixNano()), reqTimeout: reqTimeout,
		admission: admission,
	}
}

// SetClock overrides the clock for deterministic tests.
func (h *Handler) SetClock(cl clock.Clock) { h.clk = cl }

// nextClock mints a monotone logical clock value within a single
// process lifetime, seeded from wall time so values are also roughly
// time-ordered across a restart.
func (h *Handler) nextClock() uint64 {
	return atomic.AddUint64(&h.logical, 1)
}

func (h *Handler) guard(unsafeExclude []string) error {
	if unsafe := h.safety.FindNotSafeItems(unsafeExclude); len(unsafe) > 0 {
		return model.NewError(model.KindUnavailable, "", nil)
	}
	return nil
}

// admit is the sole admission valve: every gateway-facing request runs
// its body through the Handler's worker pool rather than executing
// inline, so the pool's pending-depth gate actually bounds concurrent
// requests instead of only bounding whatever a caller chooses to
// enqueue. A rejected admission surfaces as KindUnavailable.
func (h *Handler) admit(task func() (interface{}, error)) (interface{}, error) {
	fut, err := h.admission.Enqueue(task)
	if err != nil {
		return nil, model.NewError(model.KindUnavailable, h.self, err)
	}
	res := fut.Await()
	return res.Value, res.Err
}

// Get implements GET: resolve N/R via the ring, delegate
// to the Read-Repair Engine. isMatch is true only for the if-match
// short-circuit.
func (h *Handler) Get(ctx context.Context, addressID uint32, key []byte, etag uint64, start, end int64, reqID uint64) (model.Metadata, []byte, bool, error) {
	type getResult struct {
		meta    model.Metadata
		data    []byte
		isMatch bool
	}
	v, err := h.admit(func() (interface{}, error) {
		meta, data, isMatch, err := h.doGet(ctx, addressID, key, etag, start, end, reqID)
		return getResult{meta, data, isMatch}, err
	})
	if err != nil {
		return model.Metadata{}, nil, false, err
	}
	r := v.(getResult)
	return r.meta, r.data, r.isMatch, nil
}

func (h *Handler) doGet(ctx context.Context, addressID uint32, key []byte, etag uint64, start, end int64, reqID uint64) (model.Metadata, []byte, bool, error) {
	if err := h.guard(nil); err != nil {
		return model.Metadata{}, nil, false, err
	}

	set, err := h.resolver.LookupByAddr(model.OpGet, addressID)
	if err != nil {
		return model.Metadata{}, nil, false, err
	}

	params := model.ReadParams{
		Ref: refid.NewReference(), AddressID: addressID, Key: key, ETag: etag,
		StartPos: start, EndPos: end, NumOfReplicas: set.N, Quorum: set.R, ReqID: reqID,
	}
	return h.repair.ReadAndRepair(ctx, params, set)
}

// Put implements PUT.
func (h *Handler) Put(ctx context.Context, obj model.Object, reqID uint64) (uint64, error) {
	v, err := h.admit(func() (interface{}, error) {
		etag, err := h.doPut(ctx, obj, reqID)
		return etag, err
	})
	if err != nil {
		return 0, err
	}
	return v.(uint64), nil
}

func (h *Handler) doPut(ctx context.Context, obj model.Object, reqID uint64) (uint64, error) {
	if err := h.guard(nil); err != nil {
		return 0, err
	}

	obj.Method = model.MethodPut
	obj.Clock = h.nextClock()
	obj.Timestamp = uint64(h.clk.Now().Unix())
	obj.ReqID = reqID
	obj.Del = false
	obj.DataSize = uint64(len(obj.Data))
	obj.Checksum = ring.Checksum(obj.Data)

	etag, kind, err := h.replicateMutation(ctx, model.MethodPut, obj, nil)
	if kind != model.KindNone {
		return 0, err
	}
	return etag, nil
}

// Delete implements DELETE: stamps a tombstone, tears
// down chunks first if the prior object was chunked, replicates the
// delete, then fans out a recursive directory delete if checkUnderDir
// and the key is a directory key.
func (h *Handler) Delete(ctx context.Context, obj model.Object, reqID uint64, checkUnderDir bool) error {
	_, err := h.admit(func() (interface{}, error) {
		return nil, h.doDelete(ctx, obj, reqID, checkUnderDir)
	})
	return err
}

func (h *Handler) doDelete(ctx context.Context, obj model.Object, reqID uint64, checkUnderDir bool) error {
	if err := h.guard(nil); err != nil {
		return err
	}

	if err := h.teardownChunks(ctx, obj); err != nil {
		return err
	}

	obj.Method = model.MethodPut
	obj.Clock = h.nextClock()
	obj.Timestamp = uint64(h.clk.Now().Unix())
	obj.ReqID = reqID
	obj.Del = true
	obj.Data = nil
	obj.DataSize = 0
	obj.Checksum = 0

	_, kind, err := h.replicateMutation(ctx, model.MethodDelete, obj, nil)
	if kind != model.KindNone && kind != model.KindNotFound {
		return err
	}

	if checkUnderDir && strings.HasSuffix(string(obj.Key), "/") {
		h.afterDirectoryDelete(obj.Key, refid.NewReference())
	}
	return nil
}

// Head implements HEAD. canRetry=false does a single
// local lookup (used during recovery/rebalance); canRetry=true
// iterates the available nodes of the redundancy set in order, using
// a local HEAD for this node and a peer HEAD for others; first success
// wins.
func (h *Handler) Head(ctx context.Context, addressID uint32, key []byte, canRetry bool) ([]byte, error) {
	v, err := h.admit(func() (interface{}, error) {
		return h.doHead(ctx, addressID, key, canRetry)
	})
	if err != nil {
		return nil, err
	}
	b, _ := v.([]byte)
	return b, nil
}

func (h *Handler) doHead(ctx context.Context, addressID uint32, key []byte, canRetry bool) ([]byte, error) {
	if err := h.guard(nil); err != nil {
		return nil, err
	}

	addr := localstore.Addr{AddressID: addressID, Key: key}
	if !canRetry {
		return h.store.Head(ctx, addr)
	}

	set, err := h.resolver.LookupByAddr(model.OpGet, addressID)
	if err != nil {
		return nil, err
	}
	if len(set.Nodes) == 0 {
		return nil, model.ErrNotFound
	}

	var lastErr error
	for _, n := range set.Available() {
		var b []byte
		var e error
		if n.ID == h.self {
			b, e = h.store.Head(ctx, addr)
		} else {
			b, e = h.peers.Head(ctx, n.ID, addressID, key)
		}
		if e == nil {
			return b, nil
		}
		lastErr = e
	}
	if lastErr == nil {
		lastErr = model.ErrNotFound
	}
	return nil, lastErr
}

// replicateMutation resolves redundancies, computes (or accepts an
// override for) quorum, filters active replicas, and invokes the
// Replicator, firing the Event Notifier on success.
func (h *Handler) replicateMutation(ctx context.Context, method model.Method, obj model.Object, quorumOverride *uint8) (uint64, model.Kind, error) {
	set, err := h.resolver.LookupByAddr(model.OpPut, obj.AddressID)
	if err != nil {
		return 0, model.KindNoRedundancy, err
	}
	obj.NumOfReplicas = uint8(len(set.Nodes))
	obj.RingHash = set.RingHash

	var quorum uint8
	if quorumOverride != nil {
		quorum = *quorumOverride
	} else {
		quorum = replicate.ComputeQuorum(method, set.W, set.D, obj.NumOfReplicas)
	}

	active, err := replicate.GetActiveRedundancies(quorum, set)
	if err != nil {
		return 0, model.KindOf(err), err
	}

	callCtx, cancel := context.WithTimeout(ctx, h.reqTimeout)
	defer cancel()
	result := h.replicator.Replicate(callCtx, method, quorum, active, obj)
	if result.Kind != model.KindNone {
		return 0, result.Kind, firstErr(result.Kind, result.Errs)
	}

	h.notifier.AfterMutation(obj)
	return result.ETag, model.KindNone, nil
}

func firstErr(kind model.Kind, errs []error) error {
	if len(errs) > 0 {
		return model.NewError(kind, "", errs[0])
	}
	return model.NewError(kind, "", nil)
}

// --- Inbound replication (peer-initiated) entry points ---

// InboundPut applies a peer-initiated PUT directly to the local store
// (this node is itself one of the Replicator's fanned-out replicas, so
// no further replication happens here) and echoes the Reference.
func (h *Handler) InboundPut(ctx context.Context, ref string, obj model.Object) peer.Reply[peer.PutResult] {
	if err := h.guard(nil); err != nil {
		return peer.Reply[peer.PutResult]{Ref: ref, Err: err}
	}
	etag, err := h.local.ApplyLocal(ctx, model.MethodPut, obj.AddressID, obj)
	if err != nil {
		return peer.Reply[peer.PutResult]{Ref: ref, Err: err}
	}
	return peer.Reply[peer.PutResult]{Ref: ref, Value: peer.PutResult{ETag: etag}}
}

// InboundDelete applies a peer-initiated DELETE locally. A NotFound
// with req_id=0 is normalized to Ok because it indicates a concurrent
// rebalance rather than a genuine failure.
func (h *Handler) InboundDelete(ctx context.Context, ref string, obj model.Object) peer.Reply[struct{}] {
	if err := h.guard(nil); err != nil {
		return peer.Reply[struct{}]{Ref: ref, Err: err}
	}
	_, err := h.local.ApplyLocal(ctx, model.MethodDelete, obj.AddressID, obj)
	if err != nil {
		if model.KindOf(err) == model.KindNotFound && obj.ReqID == 0 {
			return peer.Reply[struct{}]{Ref: ref}
		}
		return peer.Reply[struct{}]{Ref: ref, Err: err}
	}
	return peer.Reply[struct{}]{Ref: ref}
}

// InboundHead answers a peer HEAD RPC against the local store only.
func (h *Handler) InboundHead(ctx context.Context, addressID uint32, key []byte) ([]byte, error) {
	if err := h.guard(nil); err != nil {
		return nil, err
	}
	return h.store.Head(ctx, localstore.Addr{AddressID: addressID, Key: key})
}

// InboundGet answers a peer GET RPC against the local store only (no
// further read-repair fan-out — the requesting node's own Read-Repair
// Engine owns that).
func (h *Handler) InboundGet(ctx context.Context, ref string, addressID uint32, key []byte, start, end int64) peer.Reply[peer.GetResult] {
	if err := h.guard(nil); err != nil {
		return peer.Reply[peer.GetResult]{Ref: ref, Err: err}
	}
	meta, obj, err := h.store.Get(ctx, localstore.Addr{AddressID: addressID, Key: key}, start, end, false)
	if err != nil {
		return peer.Reply[peer.GetResult]{Ref: ref, Err: err}
	}
	return peer.Reply[peer.GetResult]{Ref: ref, Value: peer.GetResult{Metadata: meta, Data: obj.Data}}
}

// InboundDeleteObjectsUnderDir answers the peer-side fan-out of a
// recursive directory delete by running the same
// local prefix scan the originating node runs.
func (h *Handler) InboundDeleteObjectsUnderDir(ctx context.Context, ref string, prefix []byte) peer.Reply[struct{}] {
	h.prefixSearchAndRemove(ctx, prefix)
	return peer.Reply[struct{}]{Ref: ref}
}
