// Package localstore is the thin contract over the on-disk object
// store engine. The engine itself — append-only log
// plus metadata index — is out of scope; this package
// only names the operations the core depends on and the translation
// rule at the handler boundary ("LockedContainer MUST be translated
// by callers to Unavailable").
package localstore

import (
	"context"

	"github.com/windkit/leo-storage/internal/model"
)

// Addr identifies a container entry by vnode and key.
type Addr struct {
	AddressID uint32
	Key       []byte
}

// ErrLockedContainer signals the store's own internal locking
// (surfaced during compaction); callers at the handler boundary must
// translate it to model.KindUnavailable rather than surface it raw.
var ErrLockedContainer = model.NewError(model.KindUnavailable, "", nil)

// Visitor is invoked by FetchByKey for each matching entry; acc is
// threaded through calls so a scan can accumulate state (e.g. the set
// of live keys under a directory prefix) without a closure per call.
type Visitor func(key []byte, metadataBytes []byte, acc interface{}) interface{}

// Store is the Local Store Facade.
type Store interface {
	// Get reads a range of an object. start/end use model.WholeObject
	// as the "entire object" sentinel. forcedIntegrityCheck requires
	// verifying the stored checksum against the data before returning.
	Get(ctx context.Context, addr Addr, start, end int64, forcedIntegrityCheck bool) (model.Metadata, model.Object, error)

	Put(ctx context.Context, addr Addr, obj model.Object) (etag uint64, err error)

	// Delete writes a tombstone carrying obj's clock/timestamp.
	Delete(ctx context.Context, addr Addr, obj model.Object) error

	// Head returns the encoded metadata bytes; decode with DecodeMetadata.
	Head(ctx context.Context, addr Addr) (metadataBytes []byte, err error)

	HeadWithMD5(ctx context.Context, addr Addr, md5Ctx []byte) (model.Metadata, []byte, error)

	// FetchByKey scans metadata whose key begins with prefix, invoking
	// visitor with (key, metadata bytes, acc) and folding its return
	// value forward; the final acc is returned.
	FetchByKey(ctx context.Context, prefix []byte, visitor Visitor, seed interface{}) (interface{}, error)

	CompactData(ctx context.Context, targets []string, parallelism int, ownershipPredicate func(key []byte) bool) error
}

// DecodeMetadata decodes the bytes Head/FetchByKey hand back. A decode
// failure is InvalidData: the object is treated as corrupt.
func DecodeMetadata(b []byte) (model.Metadata, error) {
	return decodeMetadata(b)
}

// EncodeMetadata is the inverse of DecodeMetadata, used by callers
// that need to hand metadata bytes back across the Store boundary
// (e.g. constructing a synthetic HEAD response for a fake store).
func EncodeMetadata(m model.Metadata) []byte {
	return encodeMetadata(m)
}
