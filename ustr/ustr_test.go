package ustr

import (
	"testing"

	"kernelcore/defs"
	"kernelcore/mem"
	"kernelcore/vm"
)

func freshVmm(t *testing.T, nframes uint32) (*vm.Vmm, *mem.Physmem_t) {
	t.Helper()
	phys := mem.Init(0, nframes, []mem.Region{{Base: 0, Length: uintptr(nframes) * uintptr(mem.PGSIZE)}}, 0, mem.Region{})
	v, err := vm.NewVmm(phys)
	if err != 0 {
		t.Fatalf("NewVmm failed: %d", err)
	}
	return v, phys
}

func TestCopyInOutRoundTrip(t *testing.T) {
	v, phys := freshVmm(t, 64)
	frame, _ := phys.Alloc()
	const va = uint32(0x3000)
	if err := v.Map(v.KernelDir, va, frame, vm.PTE_P|vm.PTE_W|vm.PTE_U); err != 0 {
		t.Fatalf("Map failed: %d", err)
	}

	payload := []byte("hello kernel")
	if err := CopyOut(v, v.KernelDir, va, payload); err != 0 {
		t.Fatalf("CopyOut failed: %d", err)
	}

	got, err := CopyIn(v, v.KernelDir, va, len(payload))
	if err != 0 {
		t.Fatalf("CopyIn failed: %d", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}

func TestCopyInSpansPageBoundary(t *testing.T) {
	v, phys := freshVmm(t, 64)
	f1, _ := phys.Alloc()
	f2, _ := phys.Alloc()
	pg := uint32(mem.PGSIZE)
	va := uint32(0x4000)
	v.Map(v.KernelDir, va, f1, vm.PTE_P|vm.PTE_W|vm.PTE_U)
	v.Map(v.KernelDir, va+pg, f2, vm.PTE_P|vm.PTE_W|vm.PTE_U)

	payload := make([]byte, 16)
	for i := range payload {
		payload[i] = byte(i)
	}
	// Straddle the boundary by writing starting 8 bytes before the page end.
	straddleVA := va + pg - 8
	if err := CopyOut(v, v.KernelDir, straddleVA, payload); err != 0 {
		t.Fatalf("CopyOut failed: %d", err)
	}
	got, err := CopyIn(v, v.KernelDir, straddleVA, len(payload))
	if err != 0 {
		t.Fatalf("CopyIn failed: %d", err)
	}
	for i := range payload {
		if got[i] != payload[i] {
			t.Fatalf("byte %d: got %d want %d", i, got[i], payload[i])
		}
	}
}

func TestCopyInUnmappedFaults(t *testing.T) {
	v, _ := freshVmm(t, 64)
	if _, err := CopyIn(v, v.KernelDir, 0x9000, 4); err != defs.EFAULT {
		t.Fatalf("expected EFAULT, got %d", err)
	}
}

func TestMemReaderForReadsWord(t *testing.T) {
	v, phys := freshVmm(t, 64)
	frame, _ := phys.Alloc()
	const va = uint32(0x5000)
	v.Map(v.KernelDir, va, frame, vm.PTE_P|vm.PTE_W|vm.PTE_U)
	CopyOut(v, v.KernelDir, va, []byte{0x78, 0x56, 0x34, 0x12})

	read := MemReaderFor(v, v.KernelDir)
	word, ok := read(va)
	if !ok {
		t.Fatalf("expected read to succeed")
	}
	if word != 0x12345678 {
		t.Fatalf("got %#x, want %#x", word, 0x12345678)
	}

	if _, ok := read(0xdead0); ok {
		t.Fatalf("expected unmapped address to fail")
	}
}
