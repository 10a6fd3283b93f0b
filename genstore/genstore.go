// Package genstore keeps one generation counter per cache namespace.
//
// Every stored entry carries the generation of its namespace at write time.
// Deleting a namespace bumps the counter, which makes every entry written
// before the delete unreadable even if the physical delete was partial or
// happened on another replica.
package genstore

import "context"

// GenStore abstracts where namespace generations live.
// Use LocalGenStore for a single process, RedisGenStore when several
// processes share one provider.
type GenStore interface {
	// Snapshot returns the current generation; missing => 0.
	Snapshot(ctx context.Context, key string) (uint64, error)
	// SnapshotMany returns gens for many keys; missing => 0.
	SnapshotMany(ctx context.Context, keys []string) (map[string]uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, key string) (uint64, error)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
