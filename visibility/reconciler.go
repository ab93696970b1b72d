package visibility

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/voxcache"
	"github.com/unkn0wn-root/voxcache/annotations"
	"github.com/unkn0wn-root/voxcache/segkey"
	"github.com/unkn0wn-root/voxcache/session"
)

var (
	// ErrStaleSession is returned when ctx carries a session token that is no longer
	// current. Nothing is written in that case.
	ErrStaleSession  = errors.New("visibility: stale session")
	ErrNoAnnotations = errors.New("visibility: no annotation lookup configured")
)

// State is the authoritative visibility model.
type State struct {
	Visible  []segkey.Key
	Selected *segkey.Key
}

func (s State) clone() State {
	out := State{Visible: append([]segkey.Key(nil), s.Visible...)}
	if s.Selected != nil {
		k := *s.Selected
		out.Selected = &k
	}
	return out
}

type Options struct {
	Logger voxcache.Logger
	// Concurrency caps parallel per-segmentation updates. 0 => unlimited.
	Concurrency int
	// Annotations enables ShowAnnotated.
	Annotations *annotations.Lookup
}

// Reconciler applies visibility and selection changes to the backends.
//
// Operations are serialized. When ctx carries a session token (session.WithToken),
// an operation started under a stale token returns ErrStaleSession before touching
// any backend, and its final state write is fenced by the guard.
type Reconciler struct {
	b     Backends
	guard *session.Guard
	state *session.Value[State]
	log   voxcache.Logger
	limit int
	notes *annotations.Lookup

	mu sync.Mutex
}

// New binds the reconciler's state to g, so Guard.End resets it.
func New(b Backends, g *session.Guard, opts Options) *Reconciler {
	r := &Reconciler{
		b:     b,
		guard: g,
		state: session.NewValue(g, State{}),
		log:   voxcache.With(opts.Logger, voxcache.Fields{"subject": g.Subject()}),
		limit: opts.Concurrency,
		notes: opts.Annotations,
	}
	return r
}

// State returns a copy of the current model.
func (r *Reconciler) State() State { return r.state.Get().clone() }

// Subscribe forwards model changes to fn.
func (r *Reconciler) Subscribe(fn func(State)) (cancel func()) {
	return r.state.Subscribe(func(s State) { fn(s.clone()) })
}

// Reset empties the model without touching backends, e.g. when a new entry loads.
func (r *Reconciler) Reset() { r.state.Reset() }

// ShowSegments makes exactly keys visible. An empty list hides every segment of
// every known segmentation. Malformed keys are ignored; keys of segmentations or
// segments that are not materialized stay in the model.
//
// If a backend update fails, the other in-flight updates are cancelled and the model
// keeps its previous value, so backends may be left partly applied. Retry the call.
func (r *Reconciler) ShowSegments(ctx context.Context, keys []segkey.Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.show(ctx, keys)
}

// ToggleSegment flips the visibility of key.
func (r *Reconciler) ToggleSegment(ctx context.Context, key segkey.Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.toggle(ctx, key)
}

// ToggleAllFiltered shows exactly candidates within (segmentationID, kind), or hides
// them if exactly those are visible already. Other segmentations are left as they are.
// Candidates outside (segmentationID, kind) are ignored.
func (r *Reconciler) ToggleAllFiltered(ctx context.Context, segmentationID string, kind segkey.Kind, candidates []segkey.Key) error {
	if !kind.Valid() {
		unsupported(kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	in := func(k segkey.Key) bool { return k.Kind == kind && k.SegmentationID == segmentationID }

	want := map[segkey.Key]struct{}{}
	for _, k := range segkey.Dedupe(candidates) {
		if in(k) {
			want[k] = struct{}{}
		}
	}

	cur := r.state.Get().Visible
	var rest []segkey.Key
	have := map[segkey.Key]struct{}{}
	for _, k := range cur {
		if in(k) {
			have[k] = struct{}{}
		} else {
			rest = append(rest, k)
		}
	}

	next := rest
	if !sameKeys(have, want) {
		for _, k := range segkey.Dedupe(candidates) {
			if in(k) {
				next = append(next, k)
			}
		}
	}
	if next == nil {
		next = []segkey.Key{}
	}
	return r.show(ctx, next)
}

// SelectSegment makes key visible if needed and selects it. nil clears the selection.
func (r *Reconciler) SelectSegment(ctx context.Context, key *segkey.Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkSession(ctx); err != nil {
		return err
	}

	if key == nil {
		if err := r.clearSelection(ctx); err != nil {
			return err
		}
		return r.commit(ctx, func(s State) State {
			s.Selected = nil
			return s
		})
	}

	k := *key
	if k.Malformed() {
		return fmt.Errorf("%w: %q", segkey.ErrMalformed, k.String())
	}
	if !k.Kind.Valid() {
		unsupported(k.Kind)
	}
	if !segkey.Contains(r.state.Get().Visible, k) {
		if err := r.toggle(ctx, k); err != nil {
			return err
		}
	}
	if err := r.clearSelection(ctx); err != nil {
		return err
	}
	if r.b.Selector != nil {
		if err := r.b.Selector.Select(ctx, k); err != nil {
			return fmt.Errorf("visibility: select %s: %w", k, err)
		}
	}
	return r.commit(ctx, func(s State) State {
		s.Selected = &k
		return s
	})
}

// ShowAnnotated shows the segments that carry a visible annotation at timeframe,
// across every materialized segmentation.
func (r *Reconciler) ShowAnnotated(ctx context.Context, timeframe int) error {
	if r.notes == nil {
		return ErrNoAnnotations
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkSession(ctx); err != nil {
		return err
	}

	var keys []segkey.Key
	for _, kind := range segkey.Kinds {
		for _, seg := range r.b.segmentations(ctx, kind) {
			keys = append(keys, r.notes.Visible(ctx, seg, kind, timeframe)...)
		}
	}
	if keys == nil {
		keys = []segkey.Key{}
	}
	return r.show(ctx, keys)
}

func (r *Reconciler) toggle(ctx context.Context, key segkey.Key) error {
	if key.Malformed() {
		return nil
	}
	cur := r.state.Get().Visible
	next := make([]segkey.Key, 0, len(cur)+1)
	found := false
	for _, k := range cur {
		if k.Matches(key) {
			found = true
			continue
		}
		next = append(next, k)
	}
	if !found {
		next = append(next, key)
	}
	return r.show(ctx, next)
}

// plan maps kind and segmentation to the desired visible ids.
type plan map[segkey.Kind]map[string]idSet

func (p plan) desired(kind segkey.Kind, seg string) idSet {
	if s, ok := p[kind][seg]; ok {
		return s
	}
	return newIDSet()
}

func (r *Reconciler) show(ctx context.Context, keys []segkey.Key) error {
	if err := r.checkSession(ctx); err != nil {
		return err
	}

	visible := make([]segkey.Key, 0, len(keys))
	seen := make(map[segkey.Key]struct{}, len(keys))
	p := plan{}
	for _, k := range keys {
		if k.Malformed() {
			continue
		}
		if !k.Kind.Valid() {
			unsupported(k.Kind)
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		visible = append(visible, k)
		if p[k.Kind] == nil {
			p[k.Kind] = map[string]idSet{}
		}
		s, ok := p[k.Kind][k.SegmentationID]
		if !ok {
			s = newIDSet()
			p[k.Kind][k.SegmentationID] = s
		}
		s.add(k.SegmentID)
	}

	if len(visible) == 0 {
		r.log.Debug("hiding all segments", nil)
	}
	if err := r.apply(ctx, p); err != nil {
		return err
	}
	return r.commit(ctx, func(s State) State {
		s.Visible = visible
		return s
	})
}

// apply pushes the plan to every materialized segmentation concurrently. With an
// empty plan every segmentation is cleared.
func (r *Reconciler) apply(ctx context.Context, p plan) error {
	selected := r.state.Get().Selected

	g, gctx := errgroup.WithContext(ctx)
	if r.limit > 0 {
		g.SetLimit(r.limit)
	}
	for _, kind := range segkey.Kinds {
		for _, seg := range r.b.segmentations(ctx, kind) {
			kind, seg := kind, seg
			want := p.desired(kind, seg)
			switch kind {
			case segkey.Lattice:
				g.Go(func() error { return r.updateLattice(gctx, seg, want, selected) })
			case segkey.Mesh, segkey.Primitive:
				g.Go(func() error { return r.updateNodes(gctx, kind, seg, want) })
			default:
				unsupported(kind)
			}
		}
	}
	return g.Wait()
}

func (r *Reconciler) updateLattice(ctx context.Context, seg string, want idSet, selected *segkey.Key) error {
	lb := r.b.Lattice
	applied, ok := lb.VisibleSegments(ctx, seg)
	if !ok {
		return nil
	}
	if newIDSet(applied...).equal(want) {
		return nil
	}
	if err := lb.SetVisibleSegments(ctx, seg, want.ints()); err != nil {
		return fmt.Errorf("visibility: lattice %q: %w", seg, err)
	}
	r.log.Debug("lattice visibility set", voxcache.Fields{"segmentation": seg, "count": want.len()})

	if selected == nil || selected.Kind != segkey.Lattice || selected.SegmentationID != seg || !want.has(selected.SegmentID) {
		return nil
	}
	after, _ := lb.VisibleSegments(ctx, seg)
	if newIDSet(after...).has(selected.SegmentID) || r.b.Selector == nil {
		return nil
	}
	r.log.Debug("reselecting segment dropped by backend", voxcache.Fields{"key": selected.String()})
	if err := r.b.Selector.Select(ctx, *selected); err != nil {
		return fmt.Errorf("visibility: reselect %s: %w", selected, err)
	}
	return nil
}

func (r *Reconciler) updateNodes(ctx context.Context, kind segkey.Kind, seg string, want idSet) error {
	nb := r.b.nodes(kind)
	nodes, ok := nb.Nodes(ctx, seg)
	if !ok {
		return nil
	}
	ids := make([]int, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	pending := want.clone()
	changed := 0
	for _, id := range ids {
		show := pending.has(id)
		pending.remove(id)
		if nodes[id] == show {
			continue
		}
		if err := nb.SetNodeVisibility(ctx, seg, id, show); err != nil {
			return fmt.Errorf("visibility: %s %q segment %d: %w", kind, seg, id, err)
		}
		changed++
	}
	if changed > 0 || pending.len() > 0 {
		r.log.Debug("node visibility set", voxcache.Fields{
			"kind": kind.String(), "segmentation": seg, "changed": changed, "absent": pending.len(),
		})
	}
	return nil
}

func (r *Reconciler) clearSelection(ctx context.Context) error {
	if r.b.Selector == nil {
		return nil
	}
	if err := r.b.Selector.ClearSelection(ctx); err != nil {
		return fmt.Errorf("visibility: clear selection: %w", err)
	}
	return nil
}

func (r *Reconciler) checkSession(ctx context.Context) error {
	t, ok := session.TokenFrom(ctx)
	if !ok {
		return nil
	}
	cur, err := r.guard.IsCurrent(ctx, t)
	if err != nil {
		return err
	}
	if !cur {
		return ErrStaleSession
	}
	return nil
}

func (r *Reconciler) commit(ctx context.Context, fn func(State) State) error {
	if !r.state.Update(ctx, func(s State) State { return fn(s.clone()) }) {
		return ErrStaleSession
	}
	return nil
}

func sameKeys(a, b map[segkey.Key]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
