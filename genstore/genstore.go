// Package genstore holds the generation counters behind session tokens.
//
// Each guarded subject (a loaded entry, a viewer, a plugin instance) owns one
// monotonically increasing counter. Starting a session advances it; a token is
// current while its generation equals the stored one.
//
// Stores may lose counters (idle pruning, key expiry, Forget). Callers that have
// already issued generations pass the highest one as the floor of the next Advance,
// so a lost counter never hands out a generation twice.
package genstore

import (
	"context"
	"time"
)

// GenStore abstracts where generations live.
// Use LocalGenStore (default) for in-process guards, or RedisGenStore when several
// processes must fence writes for the same subject.
type GenStore interface {
	// Current returns the subject's generation; unknown subjects are at 0.
	Current(ctx context.Context, subject string) (uint64, error)
	// CurrentMany returns generations for many subjects; unknown => 0.
	CurrentMany(ctx context.Context, subjects []string) (map[string]uint64, error)
	// Advance atomically sets the generation to max(stored, floor)+1 and returns it.
	Advance(ctx context.Context, subject string, floor uint64) (uint64, error)
	// Forget drops the subject's counter. A later Advance restarts from its floor.
	Forget(ctx context.Context, subject string) error
	// Cleanup prunes subjects idle for longer than retention (no-op for Redis).
	Cleanup(retention time.Duration)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
