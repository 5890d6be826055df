package mem

import "testing"

func freshPhysmem(t *testing.T, nframes uint32) *Physmem_t {
	t.Helper()
	base := Pa_t(0)
	usable := []Region{{Base: base, Length: uintptr(nframes) * uintptr(PGSIZE)}}
	return Init(base, nframes, usable, base, Region{})
}

func TestAllocFreeRoundTrip(t *testing.T) {
	phys := freshPhysmem(t, 16)
	before := phys.FreeFrames()

	addr, err := phys.Alloc()
	if err != 0 {
		t.Fatalf("alloc failed: %d", err)
	}
	if phys.GetRef(addr) != 1 {
		t.Fatalf("expected refcount 1, got %d", phys.GetRef(addr))
	}
	if !phys.IsReserved(addr) {
		t.Fatalf("expected frame marked reserved after alloc")
	}
	phys.Free(addr)
	if phys.IsReserved(addr) {
		t.Fatalf("expected frame unreserved after free")
	}
	if phys.FreeFrames() != before {
		t.Fatalf("free frame count changed across alloc;free: before=%d after=%d", before, phys.FreeFrames())
	}
}

func TestAllocLowestIndexFirstFit(t *testing.T) {
	phys := freshPhysmem(t, 32)
	a, _ := phys.Alloc()
	b, _ := phys.Alloc()
	if b <= a {
		t.Fatalf("expected monotonically increasing allocation order, got a=%x b=%x", a, b)
	}
	phys.Free(a)
	c, _ := phys.Alloc()
	if c != a {
		t.Fatalf("expected first-fit to reuse lowest freed frame %x, got %x", a, c)
	}
}

func TestIncRefDelaysFree(t *testing.T) {
	phys := freshPhysmem(t, 8)
	addr, _ := phys.Alloc()
	phys.IncRef(addr)
	if phys.GetRef(addr) != 2 {
		t.Fatalf("expected refcount 2, got %d", phys.GetRef(addr))
	}
	phys.Free(addr)
	if !phys.IsReserved(addr) {
		t.Fatalf("frame should still be reserved with one reference remaining")
	}
	phys.Free(addr)
	if phys.IsReserved(addr) {
		t.Fatalf("frame should be free once refcount drops to zero")
	}
}

func TestAllocExhaustion(t *testing.T) {
	phys := freshPhysmem(t, 4)
	var called bool
	phys.OnExhausted = func() { called = true }
	for i := 0; i < 4; i++ {
		if _, err := phys.Alloc(); err != 0 {
			t.Fatalf("unexpected failure on frame %d: %d", i, err)
		}
	}
	if _, err := phys.Alloc(); err == 0 {
		t.Fatalf("expected ENOMEM once frames are exhausted")
	}
	if !called {
		t.Fatalf("expected OnExhausted hook to fire")
	}
}

func TestReservedRegionsStayReserved(t *testing.T) {
	// Kernel image occupies the first two frames of an otherwise-usable region.
	base := Pa_t(0)
	nframes := uint32(8)
	usable := []Region{{Base: base, Length: uintptr(nframes) * uintptr(PGSIZE)}}
	kernelEnd := base + Pa_t(2*PGSIZE)
	phys := Init(base, nframes, usable, kernelEnd, Region{})

	if !phys.IsReserved(base) || !phys.IsReserved(base+Pa_t(PGSIZE)) {
		t.Fatalf("expected kernel image frames to remain reserved")
	}
	if phys.IsReserved(base + Pa_t(2*PGSIZE)) {
		t.Fatalf("expected frames past the kernel image to be free")
	}
}
