package util

import "strconv"

// CompositeKey is the cache key for one (timeframe, resource) pair: "<tf>_<id>".
func CompositeKey(timeframe int, resourceID string) string {
	return strconv.Itoa(timeframe) + "_" + resourceID
}
