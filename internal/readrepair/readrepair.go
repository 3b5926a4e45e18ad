// Package readrepair implements the Read-Repair Engine:
// primary read, concurrent metadata comparison across replicas, and
// asynchronous reconciliation of stale ones, while preserving the
// strong "if-match" short-circuit. Concurrent metadata fetch uses
// golang.org/x/sync/errgroup so the first hard error can cancel the
// rest — unlike the Replicator's running-tally fan-out, this path
// just needs "did every remaining replica answer", not "which N did".
package readrepair

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/windkit/leo-storage/internal/localstore"
	"github.com/windkit/leo-storage/internal/model"
	"github.com/windkit/leo-storage/internal/peer"
	"github.com/windkit/leo-storage/internal/replicate"
	"github.com/windkit/leo-storage/internal/stats"
)

// LocalReader is the subset of the Local Store Facade the engine needs
// for the primary-read path.
type LocalReader interface {
	Head(ctx context.Context, addr localstore.Addr) ([]byte, error)
	Get(ctx context.Context, addr localstore.Addr, start, end int64) (model.Metadata, []byte, error)
}

// Repairer reconciles stale replicas in the background. A production
// implementation compares metadata across replicas and issues
// corrective PUT/DELETE; done is the completion callback the engine
// supplies. It records the outcome (success, or any failure as
// RecoverFailure) in the read-repair metrics; the reply to the caller
// has already been returned and is not affected.
type Repairer interface {
	Repair(ctx context.Context, params model.ReadParams, authoritative model.Metadata, authoritativeData []byte, remaining []model.Node, done func(error))
}

// Engine is the Read-Repair Engine.
type Engine struct {
	self     string
	local    LocalReader
	peers    peer.Client
	repairer Repairer
}

func New(selfNode string, local LocalReader, peers peer.Client, repairer Repairer) *Engine {
	return &Engine{self: selfNode, local: local, peers: peers, repairer: repairer}
}

// outcome is the internal result of one candidate attempt.
type outcome uint8

const (
	outcomeMatch outcome = iota
	outcomeOk
	outcomeNotFound
	outcomeTimeout
	outcomeErr
)

type attemptResult struct {
	outcome  outcome
	meta     model.Metadata
	data     []byte
	err      error
}

// ReadAndRepair is the engine's entry point.
func (e *Engine) ReadAndRepair(ctx context.Context, params model.ReadParams, redundancies model.RedundancySet) (model.Metadata, []byte, bool /*isMatch*/, error) {
	active, err := replicate.GetActiveRedundancies(params.Quorum, redundancies)
	if err != nil {
		return model.Metadata{}, nil, false, err
	}

	var lastErr error
	for i, candidate := range active {
		res := e.attempt(ctx, params, candidate)
		switch res.outcome {
		case outcomeMatch:
			return model.Metadata{}, nil, true, nil
		case outcomeOk:
			remaining := otherNodes(active, i)
			if len(remaining) == 0 {
				return res.meta, res.data, false, nil
			}
			stats.ReadRepairTriggered.WithLabelValues().Inc()
			e.spawnRepair(params, res.meta, res.data, remaining)
			return res.meta, res.data, false, nil
		case outcomeNotFound:
			return model.Metadata{}, nil, false, model.NewError(model.KindNotFound, candidate.ID, res.err)
		case outcomeTimeout:
			lastErr = model.NewError(model.KindTimeout, candidate.ID, res.err)
			continue
		default:
			lastErr = res.err
			continue
		}
	}
	if lastErr == nil {
		lastErr = model.NewError(model.KindReplicateFailure, "", nil)
	}
	return model.Metadata{}, nil, false, lastErr
}

// attempt implements read_and_repair_2 followed
// by read_and_repair_3 classification (step 4), collapsed into one
// outcome since both steps live entirely within a single candidate.
func (e *Engine) attempt(ctx context.Context, params model.ReadParams, candidate model.Node) attemptResult {
	addr := localstore.Addr{AddressID: params.AddressID, Key: params.Key}

	if candidate.ID == e.self {
		if params.ETag != 0 {
			metaBytes, err := e.local.Head(ctx, addr)
			if err == nil {
				meta, decErr := localstore.DecodeMetadata(metaBytes)
				if decErr == nil && meta.Checksum == params.ETag {
					return attemptResult{outcome: outcomeMatch}
				}
			} else if model.KindOf(err) == model.KindNotFound {
				return attemptResult{outcome: outcomeNotFound, err: err}
			}
			if params.NumOfReplicas == 1 {
				meta, data, gerr := e.local.Get(ctx, addr, params.StartPos, params.EndPos)
				return classifyLocal(meta, data, gerr)
			}
			// Falls through to a normal local read below.
		}
		meta, data, err := e.local.Get(ctx, addr, params.StartPos, params.EndPos)
		return classifyLocal(meta, data, err)
	}

	meta, data, err := e.peers.Get(ctx, candidate.ID, params.Ref, params.AddressID, params.Key, params.StartPos, params.EndPos, params.ETag)
	return classifyPeer(meta, data, params.ETag, err)
}

func classifyLocal(meta model.Metadata, data []byte, err error) attemptResult {
	if err == nil {
		if len(data) == 0 && meta.DataSize == 0 {
			return attemptResult{outcome: outcomeNotFound}
		}
		return attemptResult{outcome: outcomeOk, meta: meta, data: data}
	}
	switch model.KindOf(err) {
	case model.KindNotFound:
		return attemptResult{outcome: outcomeNotFound, err: err}
	case model.KindTimeout:
		return attemptResult{outcome: outcomeTimeout, err: err}
	default:
		return attemptResult{outcome: outcomeErr, err: err}
	}
}

func classifyPeer(meta model.Metadata, data []byte, etag uint64, err error) attemptResult {
	if err == nil {
		if etag != 0 && meta.Checksum == etag {
			return attemptResult{outcome: outcomeMatch}
		}
		if len(data) == 0 && meta.DataSize == 0 {
			return attemptResult{outcome: outcomeNotFound}
		}
		return attemptResult{outcome: outcomeOk, meta: meta, data: data}
	}
	switch model.KindOf(err) {
	case model.KindNotFound:
		return attemptResult{outcome: outcomeNotFound, err: err}
	case model.KindTimeout:
		return attemptResult{outcome: outcomeTimeout, err: err}
	default:
		return attemptResult{outcome: outcomeErr, err: err}
	}
}

func otherNodes(all []model.Node, excludeIdx int) []model.Node {
	out := make([]model.Node, 0, len(all)-1)
	for i, n := range all {
		if i != excludeIdx {
			out = append(out, n)
		}
	}
	return out
}

// spawnRepair fires the repairer detached.
func (e *Engine) spawnRepair(params model.ReadParams, authoritative model.Metadata, authoritativeData []byte, remaining []model.Node) {
	go func() {
		ctx := context.Background()
		e.repairer.Repair(ctx, params, authoritative, authoritativeData, remaining, func(err error) {
			if err != nil {
				stats.ReadRepairOutcome.WithLabelValues(model.KindRecoverFailure.String()).Inc()
				return
			}
			stats.ReadRepairOutcome.WithLabelValues("ok").Inc()
		})
	}()
}

// fetchMetadata concurrently HEADs remaining replicas, used by the
// default Repairer below. It cancels outstanding fetches on the first
// hard error via errgroup, since a partial metadata set is useless for
// a majority/high-clock comparison anyway.
func fetchMetadata(ctx context.Context, peers peer.Client, self string, local LocalReader, addr localstore.Addr, nodes []model.Node) ([]model.Metadata, error) {
	results := make([]model.Metadata, len(nodes))
	g, gctx := errgroup.WithContext(ctx)
	for i, n := range nodes {
		i, n := i, n
		g.Go(func() error {
			var b []byte
			var err error
			if n.ID == self {
				b, err = local.Head(gctx, addr)
			} else {
				b, err = peers.Head(gctx, n.ID, addr.AddressID, addr.Key)
			}
			if err != nil {
				return err
			}
			meta, decErr := localstore.DecodeMetadata(b)
			if decErr != nil {
				return decErr
			}
			results[i] = meta
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
