// Package store provides durable key-value storage for persisted node
// state.
//
// The engine requires only round-trip fidelity: whatever bytes were last
// written under a persistence ID come back on the next load. Two
// implementations are provided:
//
//   - SQLite (production): WAL mode for concurrent reads, single writer
//     connection, embedded schema applied on open.
//   - Memory (tests): a mutex-guarded map.
//
// All engine-side write scheduling, batching and shutdown flushing lives in
// the persist package; implementations here only need to be correct, not
// clever.
package store

import "context"

// Storage is the persistence backend consumed by the engine.
//
// Get returns (nil, false, nil) when no value is stored under id.
// Set overwrites any previous value under id (last write wins).
//
// Implementations must be safe for concurrent use; the engine serializes
// writes through a single boundary task but loads may happen from several
// graph-construction goroutines.
type Storage interface {
	Get(ctx context.Context, id string) ([]byte, bool, error)
	Set(ctx context.Context, id string, data []byte) error
	Close() error
}
