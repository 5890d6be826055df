package vm

import (
	"testing"

	"kernelcore/mem"
)

func freshVmm(t *testing.T, nframes uint32) (*Vmm, *mem.Physmem_t) {
	t.Helper()
	phys := mem.Init(0, nframes, []mem.Region{{Base: 0, Length: uintptr(nframes) * uintptr(mem.PGSIZE)}}, 0, mem.Region{})
	v, err := NewVmm(phys)
	if err != 0 {
		t.Fatalf("NewVmm failed: %d", err)
	}
	return v, phys
}

func TestMapAndIsMapped(t *testing.T) {
	v, phys := freshVmm(t, 64)
	frame, _ := phys.Alloc()

	const va = uint32(0x1000)
	if v.IsMapped(v.KernelDir, va) {
		t.Fatalf("expected unmapped before Map")
	}
	if err := v.Map(v.KernelDir, va, frame, PTE_P|PTE_W|PTE_U); err != 0 {
		t.Fatalf("Map failed: %d", err)
	}
	if !v.IsMapped(v.KernelDir, va) {
		t.Fatalf("expected mapped after Map")
	}

	v.Unmap(v.KernelDir, va)
	if v.IsMapped(v.KernelDir, va) {
		t.Fatalf("expected unmapped after Unmap")
	}
}

func TestCloneSharesKernelEntries(t *testing.T) {
	v, phys := freshVmm(t, 64)
	kframe, _ := phys.Alloc()
	v.Map(v.KernelDir, KernelVirtBase, kframe, PTE_P|PTE_W)

	dst, err := v.Clone(v.KernelDir)
	if err != 0 {
		t.Fatalf("Clone failed: %d", err)
	}
	if !v.IsMapped(dst, KernelVirtBase) {
		t.Fatalf("expected cloned address space to share kernel mapping")
	}
}

func TestCloneMarksWritablePagesCOW(t *testing.T) {
	v, phys := freshVmm(t, 64)
	frame, _ := phys.Alloc()
	const va = uint32(0x2000)
	v.Map(v.KernelDir, va, frame, PTE_P|PTE_W|PTE_U)

	before := phys.GetRef(frame)
	dst, err := v.Clone(v.KernelDir)
	if err != 0 {
		t.Fatalf("Clone failed: %d", err)
	}

	if phys.GetRef(frame) != before+1 {
		t.Fatalf("expected refcount bumped by exactly 1, got %d -> %d", before, phys.GetRef(frame))
	}

	srcTable, srcIdx, _ := v.walkPTE(v.KernelDir, va)
	srcPTE := readEntry(srcTable, srcIdx)
	if srcPTE&PTE_W != 0 || srcPTE&PTE_COW == 0 {
		t.Fatalf("expected source PTE to be read-only and COW-marked, got %#x", srcPTE)
	}
	dstTable, dstIdx, _ := v.walkPTE(dst, va)
	dstPTE := readEntry(dstTable, dstIdx)
	if dstPTE&PTE_W != 0 || dstPTE&PTE_COW == 0 {
		t.Fatalf("expected destination PTE to be read-only and COW-marked, got %#x", dstPTE)
	}
}

// TestForkLikeCOWFault exercises the S2 scenario at the VM layer: a parent
// writes through its mapping, "forks" via Clone, the child observes the
// same content, then a write from either side triggers private
// duplication without disturbing the other address space's data.
func TestForkLikeCOWFault(t *testing.T) {
	v, phys := freshVmm(t, 64)
	frame, _ := phys.Alloc()
	const va = uint32(0x3000)
	v.Map(v.KernelDir, va, frame, PTE_P|PTE_W|PTE_U)
	phys.Dmap(frame)[0] = 100

	child, err := v.Clone(v.KernelDir)
	if err != 0 {
		t.Fatalf("Clone failed: %d", err)
	}

	childTable, childIdx, _ := v.walkPTE(child, va)
	childFrame := mem.Pa_t(readEntry(childTable, childIdx) & pteAddrMask)
	if phys.Dmap(childFrame)[0] != 100 {
		t.Fatalf("expected child to observe parent's pre-fork write")
	}

	// Child writes: triggers COW duplication since the frame is shared.
	ecode := ECODE_PRESENT | ECODE_WRITE | ECODE_USER
	if err := v.ResolveCOW(child, va, ecode); err != 0 {
		t.Fatalf("ResolveCOW failed: %d", err)
	}
	childTable, childIdx, _ = v.walkPTE(child, va)
	childFrame = mem.Pa_t(readEntry(childTable, childIdx) & pteAddrMask)
	phys.Dmap(childFrame)[0] = 200

	parentTable, parentIdx, _ := v.walkPTE(v.KernelDir, va)
	parentFrame := mem.Pa_t(readEntry(parentTable, parentIdx) & pteAddrMask)
	if phys.Dmap(parentFrame)[0] != 100 {
		t.Fatalf("expected parent's page to be unaffected by child's post-fault write, got %d", phys.Dmap(parentFrame)[0])
	}
	if phys.Dmap(childFrame)[0] != 200 {
		t.Fatalf("expected child's page to hold its own write")
	}
}

func TestResolveCOWSoleOwnerReusesFrame(t *testing.T) {
	v, phys := freshVmm(t, 64)
	frame, _ := phys.Alloc()
	const va = uint32(0x4000)
	v.Map(v.KernelDir, va, frame, PTE_P|PTE_W|PTE_U)

	dst, _ := v.Clone(v.KernelDir)
	v.Free(dst) // drop the clone's reference; src frame is sole-owned again

	table, idx, _ := v.walkPTE(v.KernelDir, va)
	pte := readEntry(table, idx)
	if pte&PTE_COW == 0 {
		t.Fatalf("expected source PTE to still be marked COW after clone")
	}

	ecode := ECODE_PRESENT | ECODE_WRITE | ECODE_USER
	if err := v.ResolveCOW(v.KernelDir, va, ecode); err != 0 {
		t.Fatalf("ResolveCOW failed: %d", err)
	}
	table, idx, _ = v.walkPTE(v.KernelDir, va)
	pte = readEntry(table, idx)
	if pte&PTE_W == 0 || pte&PTE_COW != 0 {
		t.Fatalf("expected PTE writable and COW-cleared, got %#x", pte)
	}
	if mem.Pa_t(pte&pteAddrMask) != frame {
		t.Fatalf("expected sole-owner fault to keep the original frame")
	}
}

func TestResolveCOWNonCOWFaultIsFatal(t *testing.T) {
	v, _ := freshVmm(t, 64)
	ecode := ECODE_PRESENT | ECODE_WRITE | ECODE_USER
	if err := v.ResolveCOW(v.KernelDir, 0xdead000, ecode); err == 0 {
		t.Fatalf("expected EFAULT for an unmapped address")
	}
}
