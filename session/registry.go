package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/unkn0wn-root/voxcache"
	"github.com/unkn0wn-root/voxcache/genstore"
)

var ErrRegistryClosed = errors.New("session: registry closed")

// Registry owns the guards of one application instance, keyed by subject
// (typically the loaded entry or viewer id). Guards share the registry's store.
type Registry struct {
	store     genstore.GenStore
	ownsStore bool
	log       voxcache.Logger

	mu     sync.Mutex
	guards map[string]*Guard
	closed bool
}

func NewRegistry(opts Options) *Registry {
	r := &Registry{
		store:  opts.Store,
		log:    opts.Logger,
		guards: make(map[string]*Guard),
	}
	if r.store == nil {
		r.store = genstore.NewLocalGenStore(0, 0)
		r.ownsStore = true
	}
	if r.log == nil {
		r.log = voxcache.NopLogger{}
	}
	return r
}

// Open returns the guard for subject, creating it on first use.
func (r *Registry) Open(subject string) (*Guard, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	if g, ok := r.guards[subject]; ok {
		return g, nil
	}
	g := NewGuard(subject, Options{Store: r.store, Logger: r.log})
	r.guards[subject] = g
	r.log.Debug("guard opened", voxcache.Fields{"subject": subject})
	return g, nil
}

func (r *Registry) Lookup(subject string) (*Guard, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.guards[subject]
	return g, ok
}

// Subjects lists open subjects in sorted order.
func (r *Registry) Subjects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.guards))
	for s := range r.guards {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Current snapshots the current token of every open guard with one store read.
// Subjects whose guard has not started a session map to the zero Token.
func (r *Registry) Current(ctx context.Context) (map[string]Token, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	guards := make(map[string]*Guard, len(r.guards))
	subjects := make([]string, 0, len(r.guards))
	for s, g := range r.guards {
		guards[s] = g
		subjects = append(subjects, s)
	}
	r.mu.Unlock()

	gens, err := r.store.CurrentMany(ctx, subjects)
	if err != nil {
		return nil, fmt.Errorf("session: snapshot: %w", err)
	}
	out := make(map[string]Token, len(guards))
	for s, g := range guards {
		g.mu.RLock()
		out[s] = g.tokenLocked(gens[s])
		g.mu.RUnlock()
	}
	return out, nil
}

// Dispose ends the subject's session (resetting its bound values) and forgets its
// generation. Outstanding tokens stay stale: a guard opened later for the same
// subject has a new identity. Unknown subjects are a no-op.
//
// With a shared store, dispose a subject only once no other process guards it.
func (r *Registry) Dispose(ctx context.Context, subject string) error {
	r.mu.Lock()
	g, ok := r.guards[subject]
	delete(r.guards, subject)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	if _, err := g.End(ctx); err != nil {
		return err
	}
	r.log.Debug("guard disposed", voxcache.Fields{"subject": subject})
	return r.store.Forget(ctx, subject)
}

// Close disposes every guard and closes the store if the registry created it.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	subjects := make([]string, 0, len(r.guards))
	for s := range r.guards {
		subjects = append(subjects, s)
	}
	r.mu.Unlock()

	var errs []error
	for _, s := range subjects {
		errs = append(errs, r.Dispose(ctx, s))
	}
	if r.ownsStore {
		errs = append(errs, r.store.Close(ctx))
	}
	return errors.Join(errs...)
}
