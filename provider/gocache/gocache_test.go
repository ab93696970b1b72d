package gocache

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestSetGetExpire(t *testing.T) {
	p := New(Config{})
	ctx := context.Background()

	if ok, err := p.Set(ctx, "vox:channel:0_0", []byte("a"), 1, 0); !ok || err != nil {
		t.Fatalf("Set ok=%v err=%v", ok, err)
	}
	if ok, _ := p.Set(ctx, "vox:channel:1_0", []byte("b"), 1, 20*time.Millisecond); !ok {
		t.Fatal("Set rejected")
	}
	if got, ok, _ := p.Get(ctx, "vox:channel:0_0"); !ok || !bytes.Equal(got, []byte("a")) {
		t.Fatalf("Get=%q ok=%v", got, ok)
	}

	time.Sleep(40 * time.Millisecond)
	if _, ok, _ := p.Get(ctx, "vox:channel:1_0"); ok {
		t.Fatalf("entry with ttl did not expire")
	}
	if _, ok, _ := p.Get(ctx, "vox:channel:0_0"); !ok {
		t.Fatalf("entry without ttl expired")
	}

	_ = p.Del(ctx, "vox:channel:0_0")
	if _, ok, _ := p.Get(ctx, "vox:channel:0_0"); ok {
		t.Fatalf("Del did not remove entry")
	}
	if err := p.Close(ctx); err != nil || p.Len() != 0 {
		t.Fatalf("Close err=%v len=%d", err, p.Len())
	}
}
