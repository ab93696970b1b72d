package session

import (
	"context"
	"sort"
	"sync"

	"github.com/unkn0wn-root/voxcache"
)

// Value is an observable holder bound to a Guard. Guarded writes (SetIfCurrent,
// Update under WithToken) apply only while their token is current; Set and Reset
// always apply. Subscribers are called synchronously after each change, outside
// any lock.
type Value[T any] struct {
	g      *Guard
	def    T
	unbind func()

	mu   sync.Mutex
	v    T
	subs map[uint64]func(T)
	next uint64
}

// NewValue creates a holder with default def, reset by Guard.End.
func NewValue[T any](g *Guard, def T) *Value[T] {
	v := &Value[T]{g: g, def: def, v: def, subs: make(map[uint64]func(T))}
	v.unbind = g.bind(v)
	return v
}

func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.v
}

func (v *Value[T]) Default() T { return v.def }

// Set stores x unconditionally.
func (v *Value[T]) Set(x T) {
	v.notify(v.apply(func(T) T { return x }))
}

// SetIfCurrent stores x only if t is the guard's current token. A store error
// counts as stale.
func (v *Value[T]) SetIfCurrent(ctx context.Context, x T, t Token) bool {
	subs, ok := v.guarded(ctx, t, func(T) T { return x })
	if ok {
		v.notify(subs)
	}
	return ok
}

// Update applies fn to the current value. When ctx carries a token (WithToken),
// the update is fenced by it like SetIfCurrent; otherwise it always applies.
// fn runs under the value's lock and must not call back into v.
func (v *Value[T]) Update(ctx context.Context, fn func(T) T) bool {
	t, ok := TokenFrom(ctx)
	if !ok {
		v.notify(v.apply(fn))
		return true
	}
	subs, applied := v.guarded(ctx, t, fn)
	if applied {
		v.notify(subs)
	}
	return applied
}

// Reset restores the default value unconditionally.
func (v *Value[T]) Reset() {
	v.Set(v.def)
}

// Subscribe registers fn for changes. The returned func unsubscribes.
func (v *Value[T]) Subscribe(fn func(T)) (cancel func()) {
	v.mu.Lock()
	id := v.next
	v.next++
	v.subs[id] = fn
	v.mu.Unlock()
	return func() {
		v.mu.Lock()
		delete(v.subs, id)
		v.mu.Unlock()
	}
}

// Unbind detaches the value from its guard; Guard.End no longer resets it.
func (v *Value[T]) Unbind() { v.unbind() }

type change[T any] struct {
	val  T
	subs []func(T)
}

func (v *Value[T]) guarded(ctx context.Context, t Token, fn func(T) T) (change[T], bool) {
	g := v.g
	g.mu.RLock()
	defer g.mu.RUnlock()
	ok, err := g.isCurrentLocked(ctx, t)
	if err != nil {
		g.log.Warn("session check failed, write dropped", voxcache.Fields{"subject": g.subject, "err": err})
		return change[T]{}, false
	}
	if !ok {
		g.log.Debug("stale write dropped", voxcache.Fields{"subject": g.subject, "token": t.String()})
		return change[T]{}, false
	}
	return v.apply(fn), true
}

// apply replaces the value with fn(old) and snapshots the subscribers, under one lock.
func (v *Value[T]) apply(fn func(T) T) change[T] {
	v.mu.Lock()
	defer v.mu.Unlock()
	x := fn(v.v)
	v.v = x
	ids := make([]uint64, 0, len(v.subs))
	for id := range v.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	c := change[T]{val: x, subs: make([]func(T), len(ids))}
	for i, id := range ids {
		c.subs[i] = v.subs[id]
	}
	return c
}

func (v *Value[T]) notify(c change[T]) {
	for _, fn := range c.subs {
		fn(c.val)
	}
}
