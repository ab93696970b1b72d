// Package session fences state writes issued by superseded asynchronous chains.
//
// A Guard hands out tokens. Starting a session makes every earlier token stale;
// a Value bound to the guard only accepts guarded writes carrying the current token.
// Typical use:
//
//	tok, _ := guard.StartNewSession(ctx)
//	go func() {
//		meta := fetchMetadata(ctx)   // slow
//		state.SetIfCurrent(ctx, meta, tok) // dropped if the user switched entries meanwhile
//	}()
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/voxcache"
	"github.com/unkn0wn-root/voxcache/genstore"
)

// Options configure guards. Both fields are optional.
type Options struct {
	// Store holds the generation counters. Defaults to an in-process LocalGenStore.
	// Use genstore.RedisGenStore to fence writes across processes.
	Store  genstore.GenStore
	Logger voxcache.Logger
}

type resetter interface{ Reset() }

// Guard issues session tokens for one subject. Safe for concurrent use.
type Guard struct {
	id      string
	subject string
	store   genstore.GenStore
	log     voxcache.Logger

	// held for writing while the session changes, for reading while a guarded write applies
	mu sync.RWMutex
	// issued is the last generation this guard handed out. A store reading below it
	// lost the counter; the guard's own session stays current until the next start.
	issued uint64

	bmu    sync.Mutex
	bound  map[uint64]resetter
	nextID uint64
}

func NewGuard(subject string, opts Options) *Guard {
	g := &Guard{
		id:      uuid.NewString(),
		subject: subject,
		store:   opts.Store,
		log:     voxcache.With(opts.Logger, voxcache.Fields{"subject": subject}),
		bound:   make(map[uint64]resetter),
	}
	if g.store == nil {
		g.store = genstore.NewLocalGenStore(0, 0)
	}
	return g
}

func (g *Guard) Subject() string { return g.subject }

// StartNewSession replaces the current token; all previously issued tokens become stale.
func (g *Guard) StartNewSession(ctx context.Context) (Token, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	gen, err := g.store.Advance(ctx, g.subject, g.issued)
	if err != nil {
		return Token{}, fmt.Errorf("session: start %q: %w", g.subject, err)
	}
	g.issued = gen
	g.log.Debug("session started", voxcache.Fields{"gen": gen})
	return Token{guard: g.id, subject: g.subject, gen: gen}, nil
}

// Current returns the current token, or the zero Token before the first session.
func (g *Guard) Current(ctx context.Context) (Token, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	gen, err := g.store.Current(ctx, g.subject)
	if err != nil {
		return Token{}, err
	}
	return g.tokenLocked(gen), nil
}

// tokenLocked maps a stored generation to the current token; g.mu must be held.
func (g *Guard) tokenLocked(stored uint64) Token {
	gen := max(stored, g.issued)
	if gen == 0 {
		return Token{}
	}
	return Token{guard: g.id, subject: g.subject, gen: gen}
}

func (g *Guard) IsCurrent(ctx context.Context, t Token) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.isCurrentLocked(ctx, t)
}

func (g *Guard) isCurrentLocked(ctx context.Context, t Token) (bool, error) {
	if t.IsZero() || t.guard != g.id || t.subject != g.subject {
		return false, nil
	}
	gen, err := g.store.Current(ctx, g.subject)
	if err != nil {
		return false, err
	}
	return g.tokenLocked(gen).gen == t.gen, nil
}

// End closes the current session: a new one is started and every bound value is
// reset to its default.
func (g *Guard) End(ctx context.Context) (Token, error) {
	t, err := g.StartNewSession(ctx)
	if err != nil {
		return Token{}, err
	}
	g.bmu.Lock()
	vals := make([]resetter, 0, len(g.bound))
	for _, v := range g.bound {
		vals = append(vals, v)
	}
	g.bmu.Unlock()

	for _, v := range vals {
		v.Reset()
	}
	g.log.Debug("session ended", voxcache.Fields{"reset": len(vals)})
	return t, nil
}

func (g *Guard) bind(r resetter) (unbind func()) {
	g.bmu.Lock()
	id := g.nextID
	g.nextID++
	g.bound[id] = r
	g.bmu.Unlock()
	return func() {
		g.bmu.Lock()
		delete(g.bound, id)
		g.bmu.Unlock()
	}
}
