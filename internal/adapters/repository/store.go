// Package repository defines the key-value store contract consumed by the
// index and the buyer registry, plus Redis and in-memory implementations.
package repository

import "context"

// Store is the external key-value collaborator.
//
// Blobs are opaque. Sets hold string members. Every call may block and must
// honour ctx cancellation.
type Store interface {
	// Get returns the blob stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put overwrites the blob stored under key.
	Put(ctx context.Context, key string, blob []byte) error

	// AddToSet adds member to the set at key.
	AddToSet(ctx context.Context, key, member string) error
	// RemoveFromSet removes members from the set at key. Missing members are ignored.
	RemoveFromSet(ctx context.Context, key string, members ...string) error
	// IntersectSets returns the members present in every set. A missing set is empty.
	IntersectSets(ctx context.Context, keys ...string) ([]string, error)

	// BulkGet returns one entry per key, in key order. Absent keys yield a nil entry.
	BulkGet(ctx context.Context, keys ...string) ([][]byte, error)

	// Commit applies every operation of b atomically after checking its guards.
	// Returns ErrConflict, with nothing applied, when a guard does not hold.
	Commit(ctx context.Context, b *Batch) error

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
	// Kind names the implementation for logs and stats.
	Kind() string
	Close() error
}
