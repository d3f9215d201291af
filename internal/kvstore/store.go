// Package kvstore defines the key-value store the booking core persists
// its JSON documents in, plus the backends that implement it.  Every
// value carries a version so callers can do optimistic read-modify-write
// with CompareAndSwap instead of blind overwrites.
package kvstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("kvstore: key not found")

// ErrVersionConflict is returned by CompareAndSwap when the stored
// version differs from the expected one (or the key already exists for
// a create-only swap).  Callers reload and retry.
var ErrVersionConflict = errors.New("kvstore: version conflict")

// Entry is a stored value together with its key and version.  Versions
// start at 1 and grow by one with every successful write.
type Entry struct {
	Key     string
	Value   []byte
	Version int64
}

// Store is the contract every backend satisfies.  Implementations must
// be safe for concurrent use.
type Store interface {
	// Get returns the entry for key or ErrNotFound.
	Get(ctx context.Context, key string) (Entry, error)
	// Set writes value unconditionally and bumps the version.
	Set(ctx context.Context, key string, value []byte) error
	// MGet returns values in the order of keys; missing keys yield nil.
	MGet(ctx context.Context, keys []string) ([][]byte, error)
	// MDel removes keys and returns how many existed.
	MDel(ctx context.Context, keys []string) (int, error)
	// ScanPrefix returns all entries whose key starts with prefix,
	// sorted by key.
	ScanPrefix(ctx context.Context, prefix string) ([]Entry, error)
	// CompareAndSwap writes value only if the current version equals
	// expected.  expected == 0 means "create only if absent".  It
	// returns the new version.
	CompareAndSwap(ctx context.Context, key string, value []byte, expected int64) (int64, error)
}
