package notify

import (
	"encoding/json"

	"github.com/windkit/leo-storage/internal/model"
)

// syncRecord is the payload shape published to the vnode-sync and
// cross-DC object-sync topics; downstream syncers are external
// collaborators so the wire shape only needs to be
// stable for this core's own publishers, hence plain JSON rather than
// a shared protobuf schema.
type syncRecord struct {
	AddressID uint32
	Key       []byte
	Clock     uint64
	Timestamp uint64
	Checksum  uint64
	Del       bool
	Method    string
}

func encodeSyncRecord(obj model.Object) []byte {
	b, _ := json.Marshal(syncRecord{
		AddressID: obj.AddressID,
		Key:       obj.Key,
		Clock:     obj.Clock,
		Timestamp: obj.Timestamp,
		Checksum:  obj.Checksum,
		Del:       obj.Del,
		Method:    obj.Method.String(),
	})
	return b
}
