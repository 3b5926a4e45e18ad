// Package ring implements the Redundancy Resolver: a pure function
// from a key or address to an ordered list of responsible peers plus
// N/W/R/D parameters. Ranking uses the same rendezvous
// (highest-random-weight) hashing github.com/dgryski/go-rendezvous
// implements; that package's single-winner Lookup backs the cheap
// membership check (HasChargeOfNode), while the ordered top-N a
// RedundancySet needs is computed directly against
// cespare/xxhash/v2 so every candidate's weight is visible, not just
// the winner.
package ring

import (
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
	rendezvous "github.com/dgryski/go-rendezvous"

	"github.com/windkit/leo-storage/internal/model"
)

// MembershipSource supplies the live member list the resolver ranks.
// The ring/consistent-hashing membership service itself is out of
// scope; this is its contract.
type MembershipSource interface {
	RunningMembers() []string
}

// Quorum holds the N/W/R/D a resolved set carries.
type Quorum struct {
	N, W, R, D uint8
}

// Resolver is the Redundancy Resolver.
type Resolver struct {
	members MembershipSource
	quorum  Quorum
	self    string
}

func New(members MembershipSource, q Quorum, selfNode string) *Resolver {
	return &Resolver{members: members, quorum: q, self: selfNode}
}

// combine produces a per-(node,key) weight in the same spirit as
// go-rendezvous's internal scoring, built directly on xxhash so the
// full candidate order (not just the single winner) is available.
func combine(node, key string) uint64 {
	nodeHash := xxhash.Sum64String(node)
	keyHash := xxhash.Sum64String(key)
	x := nodeHash ^ keyHash
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	return x
}

// RunningMembers returns the live member snapshot.
func (r *Resolver) RunningMembers() []string {
	return r.members.RunningMembers()
}

// LookupByKey ranks running members for key and returns a RedundancySet.
// op may prefer a different primary ordering for GET vs PUT;
// here GET prefers the node rendezvous-hashing identifies as primary
// owner (stable read affinity), while PUT keeps the raw rendezvous
// order (spread writes evenly).
func (r *Resolver) LookupByKey(op model.Op, key []byte) (model.RedundancySet, error) {
	return r.lookup(op, string(key))
}

// LookupByAddr ranks running members for a numeric address id.
func (r *Resolver) LookupByAddr(op model.Op, addr uint32) (model.RedundancySet, error) {
	return r.lookup(op, "addr:"+strconv.FormatUint(uint64(addr), 10))
}

func (r *Resolver) lookup(op model.Op, rankKey string) (model.RedundancySet, error) {
	members := r.members.RunningMembers()
	if len(members) == 0 {
		return model.RedundancySet{}, model.NewError(model.KindNoRedundancy, "", nil)
	}

	type scored struct {
		id     string
		weight uint64
	}
	scoredNodes := make([]scored, 0, len(members))
	for _, m := range members {
		scoredNodes = append(scoredNodes, scored{id: m, weight: combine(m, rankKey)})
	}
	sort.Slice(scoredNodes, func(i, j int) bool {
		if scoredNodes[i].weight != scoredNodes[j].weight {
			return scoredNodes[i].weight > scoredNodes[j].weight
		}
		return scoredNodes[i].id < scoredNodes[j].id
	})

	if op == model.OpGet {
		// Stable read affinity: rendezvous's own single-winner pick
		// must agree with our top rank, or we've diverged from the
		// reference algorithm.
		rv := rendezvous.New(members, xxhash.Sum64String)
		primary := rv.Lookup(rankKey)
		if primary != "" && len(scoredNodes) > 0 && scoredNodes[0].id != primary {
			for i, s := range scoredNodes {
				if s.id == primary {
					scoredNodes[0], scoredNodes[i] = scoredNodes[i], scoredNodes[0]
					break
				}
			}
		}
	}

	// A RedundancySet carries only the N replicas a mutation or read
	// actually fans out to, not every running member; the remainder
	// are lower-ranked standbys this key doesn't own.
	if n := int(r.quorum.N); n > 0 && len(scoredNodes) > n {
		scoredNodes = scoredNodes[:n]
	}

	nodes := make([]model.Node, 0, len(scoredNodes))
	for _, s := range scoredNodes {
		nodes = append(nodes, model.Node{ID: s.id, Available: true})
	}

	ringHash := xxhash.Sum64String(rankKey)
	return model.RedundancySet{
		Nodes:    nodes,
		N:        r.quorum.N,
		W:        r.quorum.W,
		R:        r.quorum.R,
		D:        r.quorum.D,
		RingHash: ringHash,
	}, nil
}

// HasChargeOfNode reports whether node is the rendezvous-hash owner of
// key among the currently running members.
func (r *Resolver) HasChargeOfNode(key []byte, node string) bool {
	members := r.members.RunningMembers()
	if len(members) == 0 {
		return false
	}
	rv := rendezvous.New(members, xxhash.Sum64String)
	return rv.Lookup(string(key)) == node
}

// VnodeID derives the address_id (vnode id) for a key under the ring.
func VnodeID(key []byte) uint32 {
	return uint32(xxhash.Sum64(key))
}

// Checksum computes the content ETag for data.
func Checksum(data []byte) uint64 {
	return xxhash.Sum64(data)
}
