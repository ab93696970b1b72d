package voxcache

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedKind     = errors.New("voxcache: unsupported data kind")
	ErrNoLoader            = errors.New("voxcache: no loader configured")
	ErrTimeframeOutOfRange = errors.New("voxcache: timeframe out of range")
	errEntryKindMismatch   = errors.New("voxcache: entry kind does not match cache")
)

// LoadError is returned by Get when the injected loader fails.
// The cache is left unmodified; a later Get for the same key retries.
type LoadError struct {
	Kind       DataKind
	Timeframe  int
	ResourceID string
	Err        error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("voxcache: load %s %d_%s: %v", e.Kind, e.Timeframe, e.ResourceID, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// IsLoadError reports whether err came from a loader rather than from the cache.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}
