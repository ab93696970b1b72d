// Package voxcache implements a timeframe-indexed raw data cache for volume and
// segmentation payloads, bounded by a byte budget with least-recently-used eviction.
//
// Components:
//   - Cache[E]: one cache per data kind (volume channel, lattice, mesh, primitive) with an
//     injected loader. Misses for the same key share one in-flight load.
//   - Store: the four per-kind caches behind a single kind-dispatched API.
//   - Tier: optional provider.Provider (Ristretto, BigCache, Redis) that receives evicted
//     entries and is consulted before the loader on a miss.
//
// Keys:
//
//	<timeframe>_<resourceId>          - L1 key inside a per-kind cache
//	vox:<kind>:<timeframe>_<resourceId> - spill tier key
//
// Capacity:
//
//	maxEntries = round(ByteBudget / size(first inserted entry))
//
// The count is sampled once and never revisited. Set Sizing to SizeByBytes to also
// enforce the budget against a running byte total.
//
// Related packages: segkey (segment identity), visibility (which segments are shown),
// session (stale-write fencing for async chains).
package voxcache
