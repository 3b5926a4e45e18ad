// Package replicate implements the Replicator: fan a mutation out to
// N peers, wait for quorum, return the first definitive outcome.
// Dispatch fans out on a WaitGroup plus a result channel, the same
// manual shape weed's topology package uses to fan volume RPCs out to
// replicas (replication_health_checker.go); the read-repair engine's
// concurrent metadata fetch instead uses golang.org/x/sync/errgroup,
// since that path needs first-error cancellation rather than a
// running success tally.
package replicate

import (
	"context"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/windkit/leo-storage/internal/model"
	"github.com/windkit/leo-storage/internal/peer"
	"github.com/windkit/leo-storage/internal/refid"
	"github.com/windkit/leo-storage/internal/stats"
)

// LocalApplier performs the local PUT/DELETE path for the replica that
// happens to be this node.
type LocalApplier interface {
	ApplyLocal(ctx context.Context, method model.Method, addressID uint32, obj model.Object) (etag uint64, err error)
}

// Replicator fans a mutation out to active replicas and resolves
// quorum.
type Replicator struct {
	self      string
	local     LocalApplier
	peers     peer.Client
	rpcBudget time.Duration
}

func New(selfNode string, local LocalApplier, peers peer.Client, rpcBudget time.Duration) *Replicator {
	return &Replicator{self: selfNode, local: local, peers: peers, rpcBudget: rpcBudget}
}

// replyKind classifies one replica's response.
type replyKind uint8

const (
	replyOk replyKind = iota
	replyNotFound
	replyUnavailable
	replyErr
)

type reply struct {
	node  string
	kind  replyKind
	etag  uint64
	cause error
}

// CallbackResult is what replicate returns: the outcome plus, on
// success, the winning etag.
type CallbackResult struct {
	Kind  model.Kind // KindNone on success
	ETag  uint64
	Errs  []error
}

// ComputeQuorum implements step 5: method=PUT uses W,
// DELETE uses D; if NumOfReplicas < quorum, it degrades to
// max(1, NumOfReplicas-1).
func ComputeQuorum(method model.Method, w, d, numOfReplicas uint8) uint8 {
	q := w
	if method == model.MethodDelete {
		q = d
	}
	if numOfReplicas < q {
		if numOfReplicas <= 1 {
			return 1
		}
		return numOfReplicas - 1
	}
	return q
}

// GetActiveRedundancies implements active-replica
// filter: returns the sublist of available nodes iff q <= len(available).
func GetActiveRedundancies(q uint8, set model.RedundancySet) ([]model.Node, error) {
	active := set.Available()
	if uint8(len(active)) < q {
		return nil, model.NewError(model.KindNotSatisfyQuorum, "", nil)
	}
	return active, nil
}

// Replicate dispatches obj to each node in activeReplicas, waits for
// quorum successes, and returns as soon as quorum is reached;
// outstanding replies continue in the background for logging only
//.
func (r *Replicator) Replicate(ctx context.Context, method model.Method, quorum uint8, activeReplicas []model.Node, obj model.Object) CallbackResult {
	start := time.Now()
	defer func() {
		stats.ReplicateQuorumLatency.WithLabelValues(method.String()).Observe(time.Since(start).Seconds())
	}()

	if uint8(len(activeReplicas)) < quorum {
		stats.ReplicateOutcome.WithLabelValues(method.String(), model.KindNotSatisfyQuorum.String()).Inc()
		return CallbackResult{Kind: model.KindNotSatisfyQuorum}
	}

	replies := make(chan reply, len(activeReplicas))
	var bg sync.WaitGroup
	bg.Add(len(activeReplicas))
	for _, node := range activeReplicas {
		node := node
		go func() {
			defer bg.Done()
			replies <- r.dispatch(ctx, method, node, obj)
		}()
	}
	// Outstanding replies are drained by a detached goroutine so the
	// per-node dispatch above never blocks on a full channel, and so
	// late arrivals after quorum are still observed for logging.
	go func() {
		bg.Wait()
		close(replies)
	}()

	successes := 0
	remaining := len(activeReplicas)
	var errs []error
	var winningETag uint64
	sawNotFound := false

	for rep := range replies {
		remaining--
		switch rep.kind {
		case replyOk:
			successes++
			winningETag = rep.etag
			if successes >= int(quorum) {
				stats.ReplicateOutcome.WithLabelValues(method.String(), "ok").Inc()
				return CallbackResult{Kind: model.KindNone, ETag: winningETag}
			}
		case replyNotFound:
			sawNotFound = true
			errs = append(errs, model.NewError(model.KindNotFound, rep.node, rep.cause))
		default:
			errs = append(errs, model.NewError(model.KindReplicateFailure, rep.node, rep.cause))
		}

		if remaining+successes < int(quorum) {
			kind := model.KindReplicateFailure
			if sawNotFound {
				kind = model.KindNotFound
			}
			stats.ReplicateOutcome.WithLabelValues(method.String(), kind.String()).Inc()
			return CallbackResult{Kind: kind, Errs: errs}
		}
	}

	// Replies channel drained without reaching either branch above:
	// treat as a quorum failure using the same NotFound-wins rule.
	kind := model.KindReplicateFailure
	if sawNotFound {
		kind = model.KindNotFound
	}
	return CallbackResult{Kind: kind, Errs: errs}
}

// dispatch calls the local or remote replica. Remote calls retry a
// bounded number of times on Unavailable/Timeout — transient
// conditions a brief backoff can ride out — but never on NotFound or a
// generic failure, which are definitive replies the quorum logic above
// needs to see as-is.
func (r *Replicator) dispatch(ctx context.Context, method model.Method, node model.Node, obj model.Object) reply {
	if node.ID == r.self {
		etag, err := r.local.ApplyLocal(ctx, method, obj.AddressID, obj)
		return classify(node.ID, etag, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.rpcBudget)
	defer cancel()

	ref := refid.NewReference()
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 20 * time.Millisecond
	bo.MaxElapsedTime = r.rpcBudget

	var etag uint64
	err := backoff.Retry(func() error {
		var callErr error
		if method == model.MethodDelete {
			callErr = r.peers.Delete(callCtx, node.ID, ref, obj)
		} else {
			etag, callErr = r.peers.Put(callCtx, node.ID, ref, obj)
		}
		if callErr == nil {
			return nil
		}
		switch model.KindOf(callErr) {
		case model.KindUnavailable, model.KindTimeout:
			return callErr
		default:
			return backoff.Permanent(callErr)
		}
	}, backoff.WithContext(bo, callCtx))

	if perm, ok := err.(*backoff.PermanentError); ok {
		err = perm.Unwrap()
	}
	return classify(node.ID, etag, err)
}

func classify(node string, etag uint64, err error) reply {
	if err == nil {
		return reply{node: node, kind: replyOk, etag: etag}
	}
	switch model.KindOf(err) {
	case model.KindNotFound:
		return reply{node: node, kind: replyNotFound, cause: err}
	case model.KindUnavailable:
		return reply{node: node, kind: replyUnavailable, cause: err}
	default:
		return reply{node: node, kind: replyErr, cause: err}
	}
}
