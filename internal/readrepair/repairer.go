package readrepair

import (
	"context"

	"github.com/windkit/leo-storage/internal/localstore"
	"github.com/windkit/leo-storage/internal/model"
	"github.com/windkit/leo-storage/internal/peer"
	"github.com/windkit/leo-storage/internal/refid"
)

// DefaultRepairer is the concrete Repairer: it compares metadata
// across the remaining replicas and issues a corrective PUT/DELETE
// against whichever remote ones are stale relative to the highest
// (clock, checksum) pair seen — replicas resolve conflicts by highest
// clock, then by checksum. Only remaining remote replicas are
// rewritten: the replica the primary read came from and this node's
// own copy are never rewritten by this repair, even when they are
// older than the winner.
type DefaultRepairer struct {
	self  string
	local LocalReader
	peers peer.Client
}

func NewDefaultRepairer(selfNode string, local LocalReader, peers peer.Client) *DefaultRepairer {
	return &DefaultRepairer{self: selfNode, local: local, peers: peers}
}

func (r *DefaultRepairer) Repair(ctx context.Context, params model.ReadParams, authoritative model.Metadata, authoritativeData []byte, remaining []model.Node, done func(error)) {
	addr := localstore.Addr{AddressID: params.AddressID, Key: params.Key}

	metas, err := fetchMetadata(ctx, r.peers, r.self, r.local, addr, remaining)
	if err != nil {
		done(model.NewError(model.KindRecoverFailure, "", err))
		return
	}

	winnerNode := "" // empty means the authoritative copy already read
	winner := authoritative
	for i, m := range metas {
		if isNewer(m, winner) {
			winner = m
			winnerNode = remaining[i].ID
		}
	}

	winnerData, err := r.dataFor(ctx, addr, winnerNode, authoritativeData)
	if err != nil {
		done(model.NewError(model.KindRecoverFailure, winnerNode, err))
		return
	}

	ref := refid.NewReference()
	for i, n := range remaining {
		m := metas[i]
		if m.Clock == winner.Clock && m.Checksum == winner.Checksum && m.Del == winner.Del {
			continue // already converged
		}
		if err := r.reconcile(ctx, ref, n, winner, winnerData); err != nil {
			done(model.NewError(model.KindRecoverFailure, n.ID, err))
			return
		}
	}
	done(nil)
}

// dataFor returns the winning replica's full object body: the
// already-in-hand authoritative data if that replica won, otherwise a
// fresh fetch from whichever replica turned out newer.
func (r *DefaultRepairer) dataFor(ctx context.Context, addr localstore.Addr, winnerNode string, authoritativeData []byte) ([]byte, error) {
	if winnerNode == "" || winnerNode == r.self {
		if winnerNode == r.self {
			_, data, err := r.local.Get(ctx, addr, model.WholeObject, model.WholeObject)
			return data, err
		}
		return authoritativeData, nil
	}
	_, data, err := r.peers.Get(ctx, winnerNode, refid.NewReference(), addr.AddressID, addr.Key, model.WholeObject, model.WholeObject, 0)
	return data, err
}

func (r *DefaultRepairer) reconcile(ctx context.Context, ref string, n model.Node, winner model.Metadata, data []byte) error {
	if n.ID == r.self {
		return nil // this node's own copy is skipped; the repair does not rewrite it
	}
	obj := model.Object{
		AddressID: winner.AddressID,
		Key:       winner.Key,
		Data:      data,
		DataSize:  uint64(len(data)),
		Clock:     winner.Clock,
		Timestamp: winner.Timestamp,
		Checksum:  winner.Checksum,
		Del:       winner.Del,
		RingHash:  winner.RingHash,
	}
	if winner.Del {
		obj.Data = nil
		obj.DataSize = 0
		return r.peers.Delete(ctx, n.ID, ref, obj)
	}
	_, err := r.peers.Put(ctx, n.ID, ref, obj)
	return err
}

func isNewer(candidate, current model.Metadata) bool {
	if candidate.Clock != current.Clock {
		return candidate.Clock > current.Clock
	}
	return candidate.Checksum > current.Checksum
}
