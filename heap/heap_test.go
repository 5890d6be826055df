package heap

import (
	"testing"

	"kernelcore/defs"
)

// TestCoalescingRoundTrip is scenario S1 from spec.md section 8: after
// allocating A, B, C of equal size, freeing B, A, C in that order, and
// allocating D of the combined size, D must equal A (coalescing is
// complete).
func TestCoalescingRoundTrip(t *testing.T) {
	h := Init(1 << 20)

	a, err := h.Alloc(256)
	if err != 0 {
		t.Fatalf("alloc A failed: %d", err)
	}
	b, err := h.Alloc(256)
	if err != 0 {
		t.Fatalf("alloc B failed: %d", err)
	}
	c, err := h.Alloc(256)
	if err != 0 {
		t.Fatalf("alloc C failed: %d", err)
	}

	if err := h.Free(b); err != 0 {
		t.Fatalf("free B failed: %d", err)
	}
	if err := h.Free(a); err != 0 {
		t.Fatalf("free A failed: %d", err)
	}
	if err := h.Free(c); err != 0 {
		t.Fatalf("free C failed: %d", err)
	}

	d, err := h.Alloc(256 * 3)
	if err != 0 {
		t.Fatalf("alloc D failed: %d", err)
	}
	if d != a {
		t.Fatalf("expected D == A (%d), got %d", a, d)
	}
}

func TestAllocWritesSurviveUntilFree(t *testing.T) {
	h := Init(4096)
	p, err := h.Alloc(64)
	if err != 0 {
		t.Fatalf("alloc failed: %d", err)
	}
	buf := h.Bytes(p, 64)
	for i := range buf {
		buf[i] = byte(i)
	}
	buf2 := h.Bytes(p, 64)
	for i := range buf2 {
		if buf2[i] != byte(i) {
			t.Fatalf("byte %d corrupted: got %d", i, buf2[i])
		}
	}
}

func TestAllocSplitsRemainder(t *testing.T) {
	h := Init(4096)
	a, _ := h.Alloc(32)
	b, _ := h.Alloc(32)
	if b <= a {
		t.Fatalf("expected second allocation to land after the first")
	}
	if _, ok := h.Check(); !ok {
		t.Fatalf("expected heap to remain uncorrupted after split")
	}
}

func TestAllocOutOfMemoryReturnsNil(t *testing.T) {
	h := Init(128)
	if p, err := h.Alloc(1 << 20); err == 0 || p != NilPtr {
		t.Fatalf("expected ENOMEM and NilPtr for an oversized request, got p=%d err=%d", p, err)
	}
}

func TestFreeDetectsCorruption(t *testing.T) {
	h := Init(4096)
	p, _ := h.Alloc(64)
	// Corrupt the magic word directly.
	h.arena[p-headerSize+12] = 0
	if err := h.Free(p); err != defs.ECORRUPT {
		t.Fatalf("expected corruption to be detected, got %d", err)
	}
}
