package voxcache

import "time"

const (
	DefaultByteBudget int64 = 1 << 30 // 1 GiB per cache
	defaultTierTTL          = 10 * time.Minute
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
