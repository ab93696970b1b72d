package visibility

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"sync"
	"testing"

	"github.com/unkn0wn-root/voxcache/annotations"
	"github.com/unkn0wn-root/voxcache/segkey"
	"github.com/unkn0wn-root/voxcache/session"
)

// ==============================
// Fakes
// ==============================

type fakeLattice struct {
	mu      sync.Mutex
	applied map[string][]int
	refuse  map[int]bool // ids the backend silently leaves out
	writes  int
	fail    error
}

func newFakeLattice(segs map[string][]int) *fakeLattice {
	return &fakeLattice{applied: segs, refuse: map[int]bool{}}
}

func (f *fakeLattice) Segmentations(context.Context) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.applied))
	for s := range f.applied {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (f *fakeLattice) VisibleSegments(_ context.Context, seg string) ([]int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids, ok := f.applied[seg]
	return append([]int(nil), ids...), ok
}

func (f *fakeLattice) SetVisibleSegments(_ context.Context, seg string, ids []int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.writes++
	kept := []int{}
	for _, id := range ids {
		if !f.refuse[id] {
			kept = append(kept, id)
		}
	}
	f.applied[seg] = kept
	return nil
}

func (f *fakeLattice) visible(seg string) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.applied[seg]
}

type fakeNodes struct {
	mu     sync.Mutex
	nodes  map[string]map[int]bool
	writes int
	fail   error
}

func newFakeNodes(nodes map[string]map[int]bool) *fakeNodes { return &fakeNodes{nodes: nodes} }

func (f *fakeNodes) Segmentations(context.Context) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.nodes))
	for s := range f.nodes {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (f *fakeNodes) Nodes(_ context.Context, seg string) (map[int]bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[seg]
	if !ok {
		return nil, false
	}
	cp := make(map[int]bool, len(n))
	for k, v := range n {
		cp[k] = v
	}
	return cp, true
}

func (f *fakeNodes) SetNodeVisibility(_ context.Context, seg string, id int, visible bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.writes++
	f.nodes[seg][id] = visible
	return nil
}

// shown lists visible segment ids of seg in ascending order.
func (f *fakeNodes) shown(seg string) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []int{}
	for id, v := range f.nodes[seg] {
		if v {
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}

type fakeSelector struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeSelector) ClearSelection(context.Context) error {
	f.mu.Lock()
	f.calls = append(f.calls, "clear")
	f.mu.Unlock()
	return nil
}

func (f *fakeSelector) Select(_ context.Context, k segkey.Key) error {
	f.mu.Lock()
	f.calls = append(f.calls, "select "+k.String())
	f.mu.Unlock()
	return nil
}

func allVisible(ids ...int) map[int]bool {
	m := make(map[int]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

type fixture struct {
	lat   *fakeLattice
	mesh  *fakeNodes
	prim  *fakeNodes
	sel   *fakeSelector
	guard *session.Guard
	r     *Reconciler
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		lat:  newFakeLattice(map[string][]int{"L1": {1, 2, 3}, "L2": {10, 11}}),
		mesh: newFakeNodes(map[string]map[int]bool{"M": allVisible(1, 2, 3, 4, 5)}),
		prim: newFakeNodes(map[string]map[int]bool{"P": allVisible(7, 8)}),
		sel:  &fakeSelector{},
	}
	f.guard = session.NewGuard("entry", session.Options{})
	f.r = New(Backends{Lattice: f.lat, Mesh: f.mesh, Primitive: f.prim, Selector: f.sel}, f.guard, opts)
	return f
}

func keys(tokens ...string) []segkey.Key { return segkey.DecodeAll(tokens) }

// ==============================
// Reconciliation
// ==============================

func TestShowSegmentsConverges(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	want := keys("lattice:L1:1", "lattice:L2:10")

	if err := f.r.ShowSegments(ctx, want); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(f.lat.visible("L1"), []int{1}) || !reflect.DeepEqual(f.lat.visible("L2"), []int{10}) {
		t.Fatalf("L1=%v L2=%v", f.lat.visible("L1"), f.lat.visible("L2"))
	}
	latWrites, meshWrites, primWrites := f.lat.writes, f.mesh.writes, f.prim.writes

	if err := f.r.ShowSegments(ctx, want); err != nil {
		t.Fatal(err)
	}
	if f.lat.writes != latWrites || f.mesh.writes != meshWrites || f.prim.writes != primWrites {
		t.Fatalf("repeated call wrote to backends: lattice %d->%d mesh %d->%d prim %d->%d",
			latWrites, f.lat.writes, meshWrites, f.mesh.writes, primWrites, f.prim.writes)
	}
	if !reflect.DeepEqual(f.r.State().Visible, want) {
		t.Fatalf("state=%v", f.r.State().Visible)
	}
}

func TestShowSegmentsDedupesLargeKeySets(t *testing.T) {
	const n = 5000
	nodes := make(map[int]bool, n)
	var want []segkey.Key
	for i := 0; i < n; i++ {
		nodes[i] = false
		want = append(want, segkey.New(segkey.Mesh, "BIG", i))
	}
	mesh := newFakeNodes(map[string]map[int]bool{"BIG": nodes})
	g := session.NewGuard("entry", session.Options{})
	r := New(Backends{Mesh: mesh}, g, Options{})

	// every key twice, second pass in reverse
	in := append([]segkey.Key(nil), want...)
	for i := n - 1; i >= 0; i-- {
		in = append(in, want[i])
	}
	if err := r.ShowSegments(context.Background(), in); err != nil {
		t.Fatal(err)
	}
	if got := r.State().Visible; !reflect.DeepEqual(got, want) {
		t.Fatalf("state has %d keys, want %d in first-seen order", len(got), n)
	}
	if got := mesh.shown("BIG"); len(got) != n {
		t.Fatalf("shown=%d want %d", len(got), n)
	}
	if mesh.writes != n {
		t.Fatalf("writes=%d want %d", mesh.writes, n)
	}
}

func TestShowSegmentsClearsSegmentationsWithoutKeys(t *testing.T) {
	f := newFixture(t, Options{})
	if err := f.r.ShowSegments(context.Background(), keys("mesh:M:2", "mesh:M:4")); err != nil {
		t.Fatal(err)
	}
	if got := f.mesh.shown("M"); !reflect.DeepEqual(got, []int{2, 4}) {
		t.Fatalf("M shown=%v", got)
	}
	if len(f.lat.visible("L1")) != 0 || len(f.lat.visible("L2")) != 0 || len(f.prim.shown("P")) != 0 {
		t.Fatalf("other segmentations not cleared: L1=%v L2=%v P=%v",
			f.lat.visible("L1"), f.lat.visible("L2"), f.prim.shown("P"))
	}
}

func TestShowSegmentsEmptyHidesEverything(t *testing.T) {
	f := newFixture(t, Options{})
	if err := f.r.ShowSegments(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if len(f.lat.visible("L1")) != 0 || len(f.lat.visible("L2")) != 0 {
		t.Fatalf("lattice not cleared")
	}
	if len(f.mesh.shown("M")) != 0 || len(f.prim.shown("P")) != 0 {
		t.Fatalf("nodes not cleared: M=%v P=%v", f.mesh.shown("M"), f.prim.shown("P"))
	}
	if s := f.r.State(); len(s.Visible) != 0 {
		t.Fatalf("state=%v", s.Visible)
	}
}

func TestAbsentSegmentsAndSegmentationsAreTolerated(t *testing.T) {
	f := newFixture(t, Options{})
	want := keys("mesh:M:1", "mesh:M:99", "mesh:ghost:1", "primitive:P:7")
	if err := f.r.ShowSegments(context.Background(), want); err != nil {
		t.Fatalf("err=%v", err)
	}
	if got := f.mesh.shown("M"); !reflect.DeepEqual(got, []int{1}) {
		t.Fatalf("M shown=%v", got)
	}
	if !reflect.DeepEqual(f.r.State().Visible, want) {
		t.Fatalf("desired-but-absent keys dropped from state: %v", f.r.State().Visible)
	}
}

func TestMalformedKeysAreIgnored(t *testing.T) {
	f := newFixture(t, Options{})
	in := keys("lattice:L1:2", "lattice:L1:x", "volume:L1:3", "lattice:L1:2")
	if err := f.r.ShowSegments(context.Background(), in); err != nil {
		t.Fatal(err)
	}
	if got := f.lat.visible("L1"); !reflect.DeepEqual(got, []int{2}) {
		t.Fatalf("L1=%v", got)
	}
	if got := f.r.State().Visible; len(got) != 1 || got[0] != segkey.New(segkey.Lattice, "L1", 2) {
		t.Fatalf("state=%v", got)
	}
}

func TestUnsupportedKindPanics(t *testing.T) {
	f := newFixture(t, Options{})
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	_ = f.r.ShowSegments(context.Background(), []segkey.Key{segkey.New(segkey.Kind(9), "X", 1)})
}

func TestBackendErrorIsReturnedAndStateKept(t *testing.T) {
	f := newFixture(t, Options{Concurrency: 1})
	f.lat.fail = errors.New("gpu lost")
	err := f.r.ShowSegments(context.Background(), keys("lattice:L1:1"))
	if err == nil || !errors.Is(err, f.lat.fail) {
		t.Fatalf("err=%v", err)
	}
	if len(f.r.State().Visible) != 0 {
		t.Fatalf("state written despite failure")
	}
}

func TestFailedShowLeavesBackendsPartlyAppliedUntilRetried(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.prim.fail = errors.New("scene busy")
	want := keys("mesh:M:1", "primitive:P:7")

	if err := f.r.ShowSegments(ctx, want); !errors.Is(err, f.prim.fail) {
		t.Fatalf("err=%v", err)
	}
	if len(f.r.State().Visible) != 0 {
		t.Fatalf("state advanced on failure: %v", f.r.State().Visible)
	}

	f.prim.mu.Lock()
	f.prim.fail = nil
	f.prim.mu.Unlock()
	if err := f.r.ShowSegments(ctx, want); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !reflect.DeepEqual(f.mesh.shown("M"), []int{1}) || !reflect.DeepEqual(f.prim.shown("P"), []int{7}) {
		t.Fatalf("after retry M=%v P=%v", f.mesh.shown("M"), f.prim.shown("P"))
	}
	if !reflect.DeepEqual(f.r.State().Visible, want) {
		t.Fatalf("state=%v", f.r.State().Visible)
	}
}

// ==============================
// Reselection
// ==============================

func TestLatticeReselectsSegmentDroppedByBackend(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	sel := segkey.New(segkey.Lattice, "L1", 2)
	if err := f.r.SelectSegment(ctx, &sel); err != nil {
		t.Fatal(err)
	}
	f.sel.calls = nil
	f.lat.refuse[2] = true

	if err := f.r.ShowSegments(ctx, keys("lattice:L1:1", "lattice:L1:2")); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(f.sel.calls, []string{"select lattice:L1:2"}) {
		t.Fatalf("selector calls=%v", f.sel.calls)
	}
}

func TestNoReselectWhenSelectedNotRequested(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	sel := segkey.New(segkey.Lattice, "L1", 2)
	if err := f.r.SelectSegment(ctx, &sel); err != nil {
		t.Fatal(err)
	}
	f.sel.calls = nil

	if err := f.r.ShowSegments(ctx, keys("lattice:L1:1")); err != nil {
		t.Fatal(err)
	}
	if len(f.sel.calls) != 0 {
		t.Fatalf("selector calls=%v", f.sel.calls)
	}
	// the reconciler does not clear the selection itself
	if s := f.r.State(); s.Selected == nil || *s.Selected != sel {
		t.Fatalf("selection changed: %v", s.Selected)
	}
}

// ==============================
// Toggles and selection
// ==============================

func TestToggleSegment(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	k := segkey.New(segkey.Primitive, "P", 8)

	if err := f.r.ToggleSegment(ctx, k); err != nil {
		t.Fatal(err)
	}
	if got := f.prim.shown("P"); !reflect.DeepEqual(got, []int{8}) {
		t.Fatalf("after first toggle P=%v", got)
	}
	if err := f.r.ToggleSegment(ctx, k); err != nil {
		t.Fatal(err)
	}
	if got := f.prim.shown("P"); len(got) != 0 {
		t.Fatalf("after second toggle P=%v", got)
	}
}

func TestToggleAllFiltered(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	cands := keys("mesh:M:1", "mesh:M:2", "mesh:M:3", "mesh:M:4", "mesh:M:5")
	other := segkey.New(segkey.Lattice, "L2", 11)

	// proper subset visible => set to exactly the five
	if err := f.r.ShowSegments(ctx, append(keys("mesh:M:2"), other)); err != nil {
		t.Fatal(err)
	}
	if err := f.r.ToggleAllFiltered(ctx, "M", segkey.Mesh, cands); err != nil {
		t.Fatal(err)
	}
	if got := f.mesh.shown("M"); !reflect.DeepEqual(got, []int{1, 2, 3, 4, 5}) {
		t.Fatalf("M=%v", got)
	}

	// exactly the five visible => clear them
	if err := f.r.ToggleAllFiltered(ctx, "M", segkey.Mesh, cands); err != nil {
		t.Fatal(err)
	}
	if got := f.mesh.shown("M"); len(got) != 0 {
		t.Fatalf("M=%v want none", got)
	}
	if got := f.lat.visible("L2"); !reflect.DeepEqual(got, []int{11}) {
		t.Fatalf("other segmentation touched: L2=%v", got)
	}
	if got := f.r.State().Visible; len(got) != 1 || got[0] != other {
		t.Fatalf("state=%v", got)
	}

	// none visible => set to exactly the five
	if err := f.r.ToggleAllFiltered(ctx, "M", segkey.Mesh, cands); err != nil {
		t.Fatal(err)
	}
	if got := f.mesh.shown("M"); len(got) != 5 {
		t.Fatalf("M=%v", got)
	}
}

func TestSelectSegmentShowsAndSelects(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	if err := f.r.ShowSegments(ctx, []segkey.Key{}); err != nil {
		t.Fatal(err)
	}
	k := segkey.New(segkey.Mesh, "M", 3)

	if err := f.r.SelectSegment(ctx, &k); err != nil {
		t.Fatal(err)
	}
	if got := f.mesh.shown("M"); !reflect.DeepEqual(got, []int{3}) {
		t.Fatalf("M=%v", got)
	}
	if !reflect.DeepEqual(f.sel.calls, []string{"clear", "select mesh:M:3"}) {
		t.Fatalf("selector calls=%v", f.sel.calls)
	}
	s := f.r.State()
	if s.Selected == nil || *s.Selected != k {
		t.Fatalf("selected=%v", s.Selected)
	}

	// mutating the returned state must not leak into the model
	*s.Selected = segkey.New(segkey.Mesh, "M", 99)
	if got := f.r.State().Selected; *got != k {
		t.Fatalf("State returned shared pointer")
	}

	if err := f.r.SelectSegment(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if f.r.State().Selected != nil {
		t.Fatalf("selection not cleared")
	}
	if got := f.mesh.shown("M"); !reflect.DeepEqual(got, []int{3}) {
		t.Fatalf("deselect changed visibility: %v", got)
	}
}

func TestSelectMalformedKey(t *testing.T) {
	f := newFixture(t, Options{})
	k := segkey.Decode("mesh:M:x")
	if err := f.r.SelectSegment(context.Background(), &k); !errors.Is(err, segkey.ErrMalformed) {
		t.Fatalf("err=%v", err)
	}
}

// ==============================
// Session fencing
// ==============================

func TestStaleSessionWritesNothing(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	old, _ := f.guard.StartNewSession(ctx)
	if _, err := f.guard.StartNewSession(ctx); err != nil {
		t.Fatal(err)
	}

	stale := session.WithToken(ctx, old)
	if err := f.r.ShowSegments(stale, keys("lattice:L1:1")); !errors.Is(err, ErrStaleSession) {
		t.Fatalf("err=%v", err)
	}
	if f.lat.writes != 0 || f.mesh.writes != 0 || f.prim.writes != 0 {
		t.Fatalf("stale call reached backends")
	}
	if len(f.r.State().Visible) != 0 {
		t.Fatalf("stale call wrote state")
	}
}

func TestCurrentSessionApplies(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	tok, _ := f.guard.StartNewSession(ctx)
	if err := f.r.ToggleSegment(session.WithToken(ctx, tok), segkey.New(segkey.Mesh, "M", 1)); err != nil {
		t.Fatal(err)
	}
	if len(f.r.State().Visible) != 1 {
		t.Fatalf("state=%v", f.r.State().Visible)
	}
}

func TestGuardEndResetsState(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	var seen []State
	cancel := f.r.Subscribe(func(s State) { seen = append(seen, s) })
	defer cancel()

	if err := f.r.ShowSegments(ctx, keys("mesh:M:1")); err != nil {
		t.Fatal(err)
	}
	if _, err := f.guard.End(ctx); err != nil {
		t.Fatal(err)
	}
	if s := f.r.State(); len(s.Visible) != 0 || s.Selected != nil {
		t.Fatalf("state not reset: %+v", s)
	}
	if len(seen) != 2 || len(seen[0].Visible) != 1 || len(seen[1].Visible) != 0 {
		t.Fatalf("notifications=%+v", seen)
	}
}

// ==============================
// Annotations
// ==============================

func TestShowAnnotated(t *testing.T) {
	src := annotations.SourceFunc(func(_ context.Context, seg string, kind segkey.Kind, _ int) ([]annotations.Record, error) {
		switch {
		case kind == segkey.Lattice && seg == "L1":
			return []annotations.Record{
				{ID: "a", TargetKind: "lattice", TargetID: &annotations.Target{SegmentationID: "L1", SegmentID: 3}, Time: annotations.Timeframes{4}},
				{ID: "b", TargetKind: "lattice", TargetID: &annotations.Target{SegmentationID: "L1", SegmentID: 1}, Time: annotations.Timeframes{5}},
			}, nil
		case kind == segkey.Mesh:
			return []annotations.Record{
				{ID: "c", TargetKind: "mesh", TargetID: &annotations.Target{SegmentationID: seg, SegmentID: 2}},
				{ID: "d", TargetKind: "mesh", TargetID: &annotations.Target{SegmentationID: seg, SegmentID: 5}, IsHidden: true},
			}, nil
		case kind == segkey.Primitive:
			return nil, errors.New("offline")
		}
		return nil, nil
	})
	f := newFixture(t, Options{Annotations: annotations.NewLookup(src, annotations.Options{})})

	if err := f.r.ShowAnnotated(context.Background(), 4); err != nil {
		t.Fatal(err)
	}
	if got := f.lat.visible("L1"); !reflect.DeepEqual(got, []int{3}) {
		t.Fatalf("L1=%v", got)
	}
	if got := f.mesh.shown("M"); !reflect.DeepEqual(got, []int{2}) {
		t.Fatalf("M=%v", got)
	}
	if got := f.prim.shown("P"); len(got) != 0 {
		t.Fatalf("P=%v", got)
	}
}

func TestShowAnnotatedRequiresLookup(t *testing.T) {
	f := newFixture(t, Options{})
	if err := f.r.ShowAnnotated(context.Background(), 0); !errors.Is(err, ErrNoAnnotations) {
		t.Fatalf("err=%v", err)
	}
}

// ==============================
// Id sets
// ==============================

func TestIDSetKeepsNegativeIDs(t *testing.T) {
	s := newIDSet(3, -1, 0, 3)
	if s.len() != 3 || !s.has(-1) || s.has(1) {
		t.Fatalf("set=%v", s.ints())
	}
	if got := s.ints(); !reflect.DeepEqual(got, []int{-1, 0, 3}) {
		t.Fatalf("ints=%v", got)
	}
	if !s.equal(newIDSet(0, 3, -1)) || s.equal(newIDSet(0, 3)) {
		t.Fatalf("equal mismatch")
	}
}
