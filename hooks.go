package voxcache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths. kind is DataKind.String().
type Hooks interface {
	Hit(kind, key string)
	Miss(kind, key string)

	// An entry left L1.
	// reason ∈ {"capacity", "bytes"}
	Evicted(kind, key string, size int64, reason string)

	// The loader failed; nothing was inserted or evicted.
	LoadFailed(kind, key string, err error)

	// A Get joined a load already in flight for the same key.
	LoadShared(kind, key string)

	// maxEntries was derived from the first inserted entry.
	CapacityDerived(kind string, maxEntries int, sampleSize int64)

	// Spill tier hit on an L1 miss.
	TierHit(kind, key string)

	// Spill tier failure. Never surfaced to callers.
	// op ∈ {"get", "put", "decode", "encode"}
	TierError(kind, key, op string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) Hit(string, string)                      {}
func (NopHooks) Miss(string, string)                     {}
func (NopHooks) Evicted(string, string, int64, string)   {}
func (NopHooks) LoadFailed(string, string, error)        {}
func (NopHooks) LoadShared(string, string)               {}
func (NopHooks) CapacityDerived(string, int, int64)      {}
func (NopHooks) TierHit(string, string)                  {}
func (NopHooks) TierError(string, string, string, error) {}

// MultiHooks fans every event out to hs in order. Nil entries are skipped.
func MultiHooks(hs ...Hooks) Hooks {
	out := make(multiHooks, 0, len(hs))
	for _, h := range hs {
		if h != nil {
			out = append(out, h)
		}
	}
	switch len(out) {
	case 0:
		return NopHooks{}
	case 1:
		return out[0]
	}
	return out
}

type multiHooks []Hooks

func (m multiHooks) Hit(kind, key string) {
	for _, h := range m {
		h.Hit(kind, key)
	}
}
func (m multiHooks) Miss(kind, key string) {
	for _, h := range m {
		h.Miss(kind, key)
	}
}
func (m multiHooks) Evicted(kind, key string, size int64, reason string) {
	for _, h := range m {
		h.Evicted(kind, key, size, reason)
	}
}
func (m multiHooks) LoadFailed(kind, key string, err error) {
	for _, h := range m {
		h.LoadFailed(kind, key, err)
	}
}
func (m multiHooks) LoadShared(kind, key string) {
	for _, h := range m {
		h.LoadShared(kind, key)
	}
}
func (m multiHooks) CapacityDerived(kind string, maxEntries int, sampleSize int64) {
	for _, h := range m {
		h.CapacityDerived(kind, maxEntries, sampleSize)
	}
}
func (m multiHooks) TierHit(kind, key string) {
	for _, h := range m {
		h.TierHit(kind, key)
	}
}
func (m multiHooks) TierError(kind, key, op string, err error) {
	for _, h := range m {
		h.TierError(kind, key, op, err)
	}
}
