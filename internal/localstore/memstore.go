package localstore

import (
	"bytes"
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/windkit/leo-storage/internal/model"
)

// MemStore is an in-process Store fake for tests: a single process's
// view of the on-disk engine treats as an external
// collaborator. It never locks (ErrLockedContainer is never returned).
type MemStore struct {
	mu      sync.RWMutex
	objects map[string]model.Object
}

func NewMemStore() *MemStore {
	return &MemStore{objects: make(map[string]model.Object)}
}

func key(addr Addr) string {
	return strconv.FormatUint(uint64(addr.AddressID), 10) + ":" + string(addr.Key)
}

func (s *MemStore) Get(ctx context.Context, addr Addr, start, end int64, forcedIntegrityCheck bool) (model.Metadata, model.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key(addr)]
	if !ok || obj.Del {
		return model.Metadata{}, model.Object{}, model.ErrNotFound
	}
	data := obj.Data
	if start != model.WholeObject && end != model.WholeObject {
		if start < 0 {
			start = 0
		}
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		if start <= end {
			data = data[start:end]
		}
	}
	out := obj
	out.Data = data
	return model.MetadataFromObject(&obj), out, nil
}

func (s *MemStore) Put(ctx context.Context, addr Addr, obj model.Object) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key(addr)] = obj
	return obj.Checksum, nil
}

func (s *MemStore) Delete(ctx context.Context, addr Addr, obj model.Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.objects[key(addr)]
	if !ok {
		return model.ErrNotFound
	}
	existing.Del = true
	existing.Data = nil
	existing.DataSize = 0
	existing.Clock = obj.Clock
	existing.Timestamp = obj.Timestamp
	s.objects[key(addr)] = existing
	return nil
}

func (s *MemStore) Head(ctx context.Context, addr Addr) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key(addr)]
	if !ok {
		return nil, model.ErrNotFound
	}
	meta := model.MetadataFromObject(&obj)
	return EncodeMetadata(meta), nil
}

func (s *MemStore) HeadWithMD5(ctx context.Context, addr Addr, md5Ctx []byte) (model.Metadata, []byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key(addr)]
	if !ok {
		return model.Metadata{}, nil, model.ErrNotFound
	}
	return model.MetadataFromObject(&obj), md5Ctx, nil
}

func (s *MemStore) FetchByKey(ctx context.Context, prefix []byte, visitor Visitor, seed interface{}) (interface{}, error) {
	s.mu.RLock()
	type entry struct {
		key  []byte
		meta []byte
	}
	var matches []entry
	for _, obj := range s.objects {
		if bytes.HasPrefix(obj.Key, prefix) {
			meta := model.MetadataFromObject(&obj)
			matches = append(matches, entry{key: obj.Key, meta: EncodeMetadata(meta)})
		}
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool { return bytes.Compare(matches[i].key, matches[j].key) < 0 })

	acc := seed
	for _, e := range matches {
		acc = visitor(e.key, e.meta, acc)
	}
	return acc, nil
}

func (s *MemStore) CompactData(ctx context.Context, targets []string, parallelism int, ownershipPredicate func(key []byte) bool) error {
	return nil
}
