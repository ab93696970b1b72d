package promhooks

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func scrape(t *testing.T, h *Hooks, update func()) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Handler(update).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	b, err := io.ReadAll(rec.Result().Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestCountersPerKind(t *testing.T) {
	h := New("")
	h.Hit("lattice", "0_L")
	h.Hit("lattice", "1_L")
	h.Miss("mesh", "0_M")
	h.Evicted("mesh", "0_M", 128, "capacity")
	h.LoadFailed("channel", "0_0", errors.New("x"))
	h.TierError("primitive", "0_P", "decode", errors.New("y"))
	h.CapacityDerived("lattice", 4, 100)

	body := scrape(t, h, nil)
	for _, want := range []string{
		`voxcache_hits_total{kind="lattice"} 2`,
		`voxcache_misses_total{kind="mesh"} 1`,
		`voxcache_evictions_total{kind="mesh",reason="capacity"} 1`,
		`voxcache_evicted_bytes_total{kind="mesh"} 128`,
		`voxcache_load_errors_total{kind="channel"} 1`,
		`voxcache_tier_errors_total{kind="primitive",op="decode"} 1`,
		`voxcache_max_entries{kind="lattice"} 4`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
}

func TestHandlerRunsUpdate(t *testing.T) {
	h := New("viewer")
	called := 0
	body := scrape(t, h, func() {
		called++
		h.Hit("mesh", "k")
	})
	if called != 1 {
		t.Fatalf("update called %d times", called)
	}
	if !strings.Contains(body, `viewer_hits_total{kind="mesh"} 1`) {
		t.Fatalf("body:\n%s", body)
	}
}
