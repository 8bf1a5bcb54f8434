package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring"
)

const memoryKind = "memory"

// MemoryStore is a single-process Store. Set members are interned to uint32
// ids so every set is a roaring bitmap and intersection is a bitmap AND.
type MemoryStore struct {
	mu      sync.RWMutex
	blobs   map[string][]byte
	sets    map[string]*roaring.Bitmap
	ids     map[string]uint32
	members []string
	closed  bool
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	st := defaultSettings()
	for _, opt := range opts {
		opt(&st)
	}
	return &MemoryStore{
		blobs: make(map[string][]byte),
		sets:  make(map[string]*roaring.Bitmap),
		ids:   make(map[string]uint32),
	}
}

// Kind implements Store.
func (s *MemoryStore) Kind() string { return memoryKind }

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, key string) (blob []byte, err error) {
	defer observe(memoryKind, "get", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return nil, storeError("memory get", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	b, ok := s.blobs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(b), nil
}

// Put implements Store.
func (s *MemoryStore) Put(ctx context.Context, key string, blob []byte) (err error) {
	defer observe(memoryKind, "put", time.Now(), &err)
	return s.apply(ctx, NewBatch().Put(key, blob))
}

// AddToSet implements Store.
func (s *MemoryStore) AddToSet(ctx context.Context, key, member string) (err error) {
	defer observe(memoryKind, "add_to_set", time.Now(), &err)
	return s.apply(ctx, NewBatch().AddToSet(key, member))
}

// RemoveFromSet implements Store.
func (s *MemoryStore) RemoveFromSet(ctx context.Context, key string, members ...string) (err error) {
	defer observe(memoryKind, "remove_from_set", time.Now(), &err)
	return s.apply(ctx, NewBatch().RemoveFromSet(key, members...))
}

// IntersectSets implements Store.
func (s *MemoryStore) IntersectSets(ctx context.Context, keys ...string) (out []string, err error) {
	if len(keys) == 0 {
		return nil, nil
	}
	defer observe(memoryKind, "intersect_sets", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return nil, storeError("memory intersect", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	bitmaps := make([]*roaring.Bitmap, 0, len(keys))
	for _, k := range keys {
		bm, ok := s.sets[k]
		if !ok {
			return []string{}, nil
		}
		bitmaps = append(bitmaps, bm)
	}
	result := roaring.FastAnd(bitmaps...)

	out = make([]string, 0, result.GetCardinality())
	it := result.Iterator()
	for it.HasNext() {
		out = append(out, s.members[it.Next()])
	}
	sort.Strings(out)
	return out, nil
}

// BulkGet implements Store.
func (s *MemoryStore) BulkGet(ctx context.Context, keys ...string) (blobs [][]byte, err error) {
	if len(keys) == 0 {
		return nil, nil
	}
	defer observe(memoryKind, "bulk_get", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return nil, storeError("memory bulk get", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	blobs = make([][]byte, len(keys))
	for i, k := range keys {
		if b, ok := s.blobs[k]; ok {
			blobs[i] = clone(b)
		}
	}
	return blobs, nil
}

// Commit implements Store. Guards and writes run under one lock.
func (s *MemoryStore) Commit(ctx context.Context, b *Batch) (err error) {
	if b == nil {
		return nil
	}
	defer observe(memoryKind, "commit", time.Now(), &err)
	return s.apply(ctx, b)
}

// Ping implements Store.
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return storeError("memory ping", ctx.Err())
}

// Close marks the store closed. Subsequent calls fail with ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Len returns the number of blobs and non-empty sets held.
func (s *MemoryStore) Len() (blobs, sets int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs), len(s.sets)
}

func (s *MemoryStore) apply(ctx context.Context, b *Batch) error {
	if err := ctx.Err(); err != nil {
		return storeError("memory commit", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	for _, g := range b.Guards() {
		cur, present := s.blobs[g.Key]
		if !guardHolds(g, present, cur) {
			return ErrConflict
		}
	}

	for _, op := range b.Ops() {
		switch op.Kind {
		case OpPut:
			s.blobs[op.Key] = clone(op.Blob)
		case OpAddToSet:
			bm, ok := s.sets[op.Key]
			if !ok {
				bm = roaring.New()
				s.sets[op.Key] = bm
			}
			for _, m := range op.Members {
				bm.Add(s.intern(m))
			}
		case OpRemoveFromSet:
			bm, ok := s.sets[op.Key]
			if !ok {
				continue
			}
			for _, m := range op.Members {
				if id, known := s.ids[m]; known {
					bm.Remove(id)
				}
			}
			if bm.IsEmpty() {
				delete(s.sets, op.Key)
			}
		}
	}
	return nil
}

// intern must be called with s.mu held for writing.
func (s *MemoryStore) intern(member string) uint32 {
	if id, ok := s.ids[member]; ok {
		return id
	}
	id := uint32(len(s.members))
	s.members = append(s.members, member)
	s.ids[member] = id
	return id
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
