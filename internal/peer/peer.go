// Package peer declares the symmetric peer RPC contract every node
// exposes. The concrete wire transport and framing are out of scope
// here; this package only carries the request/response shapes and
// the Client interface the Replicator, Read-Repair Engine, Handler
// and Watchdog Controller depend on, the way weed's volume_server_pb
// client interface is injected into topology code without that code
// caring whether the transport is gRPC, HTTP, or (in tests) an
// in-process fake.
package peer

import (
	"context"

	"github.com/windkit/leo-storage/internal/model"
)

// Reply tags a peer response with the Reference the initiator minted.
type Reply[T any] struct {
	Ref   string
	Value T
	Err   error
}

type GetResult struct {
	Metadata model.Metadata
	Data     []byte
}

type PutResult struct {
	ETag uint64
}

// Client is the peer RPC contract, symmetric on every
// node: each Client method (other than Compact) has a counterpart in
// the Inbound interface that the peer's own handler implements for
// inbound calls.
type Client interface {
	Get(ctx context.Context, node string, ref string, addressID uint32, key []byte, start, end int64, etag uint64) (model.Metadata, []byte, error)
	Put(ctx context.Context, node string, ref string, obj model.Object) (etag uint64, err error)
	Delete(ctx context.Context, node string, ref string, obj model.Object) error
	Head(ctx context.Context, node string, addressID uint32, key []byte) ([]byte, error)
	Compact(ctx context.Context, node string) (model.CompactionStats, error)
	DeleteObjectsUnderDir(ctx context.Context, node string, ref string, prefix []byte) error
}
