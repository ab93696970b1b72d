package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"
)

func mustEncode(t *testing.T, f Frame) []byte {
	t.Helper()
	b, err := Encode(f)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	return b
}

func mustDecode(t *testing.T, b []byte) Frame {
	t.Helper()
	f, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	return f
}

func TestFrameRoundTrip(t *testing.T) {
	cases := []Frame{
		{Kind: 1, Timeframe: 0, Resource: "ch0"}, // n=0
		{Kind: 2, Timeframe: 7, Resource: "L1", Parts: []Part{{Payload: []byte{1, 2, 3}}}},
		{Kind: 3, Timeframe: math.MaxInt32, Resource: "mesh", Parts: []Part{
			{ID: 1, Payload: []byte("a")},
			{ID: -4, Text: true, Payload: []byte("solid")},
			{ID: 9, Payload: nil}, // empty payload
		}},
	}
	for _, want := range cases {
		got := mustDecode(t, mustEncode(t, want))
		if got.Kind != want.Kind || got.Timeframe != want.Timeframe || got.Resource != want.Resource {
			t.Fatalf("header mismatch: got=%+v want=%+v", got, want)
		}
		if len(got.Parts) != len(want.Parts) {
			t.Fatalf("parts len: got %d want %d", len(got.Parts), len(want.Parts))
		}
		for i := range want.Parts {
			g, w := got.Parts[i], want.Parts[i]
			if g.ID != w.ID || g.Text != w.Text || !bytes.Equal(g.Payload, w.Payload) {
				t.Fatalf("part %d mismatch: got=%+v want=%+v", i, g, w)
			}
		}
	}
}

func TestFrameRejectsTrailingBytes(t *testing.T) {
	enc := mustEncode(t, Frame{Kind: 1, Resource: "x", Parts: []Part{{Payload: []byte("v")}}})
	enc = append(enc, 0xDE, 0xAD)
	if _, err := Decode(enc); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt on trailing bytes, got %v", err)
	}
}

func TestFrameResourceLengthValidation(t *testing.T) {
	if _, err := Encode(Frame{Resource: ""}); !errors.Is(err, ErrResourceSize) {
		t.Fatalf("expected error on empty resource")
	}
	if _, err := Encode(Frame{Resource: strings.Repeat("a", 0x10000)}); !errors.Is(err, ErrResourceSize) {
		t.Fatalf("expected error on resource length > 0xFFFF")
	}
	if _, err := Encode(Frame{Resource: strings.Repeat("b", 0xFFFF)}); err != nil {
		t.Fatalf("boundary resource length should succeed: %v", err)
	}
}

func TestFrameCorruptHeadersAndLengths(t *testing.T) {
	enc := mustEncode(t, Frame{Kind: 2, Timeframe: 1, Resource: "r", Parts: []Part{{ID: 5, Payload: []byte("xyz")}}})

	// bad magic
	badMagic := append([]byte(nil), enc...)
	badMagic[0] = 'X'
	if _, err := Decode(badMagic); err == nil {
		t.Fatalf("expected error on bad magic")
	}

	// wrong version
	badVer := append([]byte(nil), enc...)
	badVer[4] = version + 1
	if _, err := Decode(badVer); err == nil {
		t.Fatalf("expected error on bad version")
	}

	// header: 4 magic +1 ver +1 kind +4 tf +2 rlen +1 resource +4 n = 17
	// part: 8 id +1 flags +4 vlen
	const vlenOff = 17 + 8 + 1
	badVlen := append([]byte(nil), enc...)
	binary.BigEndian.PutUint32(badVlen[vlenOff:vlenOff+4], uint32(len("xyz")+1))
	if _, err := Decode(badVlen); err == nil {
		t.Fatalf("expected error on vlen beyond buffer")
	}

	// rlen beyond buffer
	badRlen := append([]byte(nil), enc...)
	binary.BigEndian.PutUint16(badRlen[10:12], 0xFFFF)
	if _, err := Decode(badRlen); err == nil {
		t.Fatalf("expected error on rlen beyond buffer")
	}

	// bogus n
	badN := append([]byte(nil), enc...)
	binary.BigEndian.PutUint32(badN[13:17], ^uint32(0))
	if _, err := Decode(badN); err == nil {
		t.Fatalf("expected error on bogus part count")
	}

	// truncated
	if _, err := Decode(enc[:len(enc)-1]); err == nil {
		t.Fatalf("expected error on truncated buffer")
	}
}

func TestFrameZeroCopyPayload(t *testing.T) {
	enc := mustEncode(t, Frame{Kind: 1, Resource: "z", Parts: []Part{{Payload: []byte("Z")}}})
	f := mustDecode(t, enc)
	f.Parts[0].Payload[0] = 'Q'
	if mustDecode(t, enc).Parts[0].Payload[0] != 'Q' {
		t.Fatalf("expected zero-copy payload slice into enc buffer")
	}
}
