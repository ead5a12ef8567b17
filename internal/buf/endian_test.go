package buf

import "testing"

func TestU32LERoundTrip(t *testing.T) {
	b := make([]byte, 8)
	PutU32LE(b, 0xdeadbeef)
	if got := U32LE(b); got != 0xdeadbeef {
		t.Fatalf("U32LE=0x%x", got)
	}
	if b[0] != 0xef || b[3] != 0xde {
		t.Fatalf("unexpected byte order: %x", b[:4])
	}
	if U32LE(b[:3]) != 0 {
		t.Fatalf("short buffer should read as zero")
	}
	PutU32LE(b[:2], 1) // must not panic
}

func TestWordRoundTrip(t *testing.T) {
	b := make([]byte, 16)
	PutWord(b[8:], 0x1234)
	if got := Word(b[8:]); got != 0x1234 {
		t.Fatalf("Word=0x%x", got)
	}
	if Word(b) != 0 {
		t.Fatalf("untouched word should read as zero")
	}
	PutU64LE(b, 1<<40)
	if U64LE(b) != 1<<40 {
		t.Fatalf("U64LE=0x%x", U64LE(b))
	}
}
