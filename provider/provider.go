// Package provider defines the byte store behind the optional second cache level.
//
// Evicted entries are framed and written here; an L1 miss reads them back before
// falling through to the loader. Implementations MUST be byte-for-byte transparent:
// Get returns exactly the []byte previously passed to Set for the key.
//
// The keyspace "vox:<kind>:" is owned by voxcache. Values written there by other code
// fail frame validation and are deleted on read.
package provider

import (
	"context"
	"time"
)

// Provider stores spilled entry frames. Implementations are safe for concurrent use.
type Provider interface {
	// Get reports a miss as (nil, false, nil). Transport failures come back as err.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set writes value under key. ttl <= 0 keeps it until evicted. cost is the frame
	// length, used only by stores that weigh entries. ok is false when the store
	// declined the write.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del drops key; a missing key is not an error.
	Del(ctx context.Context, key string) error

	Close(ctx context.Context) error
}

// Counter is implemented by providers that can report how many frames they hold.
type Counter interface {
	Len() int
}
