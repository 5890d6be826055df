// Package vm implements the two-level paging virtual memory manager for a
// higher-half kernel: page directory/table maintenance, address-space
// cloning with copy-on-write, teardown, and COW page-fault resolution.
// Grounded on the teacher's Vm_t (biscuit vm/as.go, vm/userbuf.go) and
// gopher-os's pdt.go/map.go, adapted from biscuit's 4-level amd64 paging to
// the 32-bit two-level directory/table scheme spec.md section 3 describes.
//
// There is no real MMU backing this simulation, so "physical memory" is the
// byte arena mem.Physmem_t.Dmap exposes, and page directories/tables are
// ordinary 4096-byte frames interpreted as 1024 little-endian uint32
// entries. Map/Clone/Free operate on that representation directly instead
// of walking hardware page-table-walker state, which is the one area
// Design Notes section 9 singles out as inherently non-typesafe; confining
// that bit-twiddling to this package is the adaptation of that guidance.
package vm

import (
	"encoding/binary"

	"kernelcore/defs"
	"kernelcore/mem"
)

// Page table entry / page directory entry flags (spec.md section 3).
const (
	PTE_P  uint32 = 1 << 0 /// present
	PTE_W  uint32 = 1 << 1 /// writable
	PTE_U  uint32 = 1 << 2 /// user-accessible
	PTE_PWT uint32 = 1 << 3 /// write-through
	PTE_PCD uint32 = 1 << 4 /// cache disabled
	PTE_A  uint32 = 1 << 5 /// accessed
	PTE_D  uint32 = 1 << 6 /// dirty
	PTE_G  uint32 = 1 << 8 /// global
	PTE_COW uint32 = 1 << 9 /// OS-reserved: page is copy-on-write

	pteAddrMask uint32 = 0xFFFFF000
)

// Page-fault error-code bits (spec.md section 4.2/6), matching the x86
// convention the hardware pushes onto the stack on vector 14.
const (
	ECODE_PRESENT uint32 = 1 << 0
	ECODE_WRITE   uint32 = 1 << 1
	ECODE_USER    uint32 = 1 << 2
	ECODE_RESERVED uint32 = 1 << 3
	ECODE_FETCH   uint32 = 1 << 4
)

// Address-space layout (spec.md section 3/4.2).
const (
	KernelPDEStart = 768         /// first kernel-space page-directory entry
	KernelPDEEnd   = 1024        /// one past the last page-directory entry
	NumPDE         = 1024
	NumPTE         = 1024
	KernelVirtBase uint32 = 0xC0000000 /// 3 GiB: start of kernel virtual space
	DirectMapBytes uint32 = 128 << 20  /// direct-map window size
)

func pdx(va uint32) uint32 { return (va >> 22) & 0x3FF }
func ptx(va uint32) uint32 { return (va >> 12) & 0x3FF }

/// AddressSpace identifies a page directory by the physical address of the
/// frame holding it (spec.md's "pointer to the process's address space").
type AddressSpace struct {
	Dir mem.Pa_t
}

/// Vmm owns the shared kernel page directory and cooperates with a
/// mem.Physmem_t for frame allocation. One Vmm exists per running kernel.
type Vmm struct {
	Phys      *mem.Physmem_t
	KernelDir mem.Pa_t /// the statically-established kernel page directory

	active mem.Pa_t /// address space currently loaded into the CR3-equivalent
}

/// NewVmm allocates and zeroes the initial kernel page directory. Callers
/// are expected to populate its kernel-space entries (768..1024) via Map
/// before cloning any user address space from it.
func NewVmm(phys *mem.Physmem_t) (*Vmm, defs.Err_t) {
	dir, err := phys.Alloc()
	if err != 0 {
		return nil, err
	}
	zero(phys.Dmap(dir))
	v := &Vmm{Phys: phys, KernelDir: dir, active: dir}
	return v, 0
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func readEntry(table []byte, idx uint32) uint32 {
	return binary.LittleEndian.Uint32(table[idx*4 : idx*4+4])
}

func writeEntry(table []byte, idx uint32, v uint32) {
	binary.LittleEndian.PutUint32(table[idx*4:idx*4+4], v)
}

/// SetActive records dir as the address space currently loaded into the
/// address-space base register, standing in for an assembly `mov cr3`.
/// Map and Clone consult this to decide whether a TLB shootdown is needed.
func (v *Vmm) SetActive(dir mem.Pa_t) { v.active = dir }

/// Active returns the currently loaded address space.
func (v *Vmm) Active() mem.Pa_t { return v.active }

// invalidate stands in for `invlpg`; there is no real TLB in this
// simulation, so this only matters as a documented call site for future
// arch-specific code and for tests asserting it was reached.
func (v *Vmm) invalidate(dir mem.Pa_t, va uint32) {
	_ = dir
	_ = va
}

/// Map ensures the page table covering virt exists in dir (allocating and
/// zeroing one if absent), then writes phys|flags into the leaf entry.
/// Invalidates the TLB for virt if dir is the active address space.
func (v *Vmm) Map(dir mem.Pa_t, virt uint32, phys_ mem.Pa_t, flags uint32) defs.Err_t {
	dirBytes := v.Phys.Dmap(dir)
	pi := pdx(virt)
	pde := readEntry(dirBytes, pi)
	var ptFrame mem.Pa_t
	if pde&PTE_P == 0 {
		frame, err := v.Phys.Alloc()
		if err != 0 {
			return err
		}
		zero(v.Phys.Dmap(frame))
		ptFrame = frame
		writeEntry(dirBytes, pi, uint32(frame)|PTE_P|PTE_W|PTE_U)
	} else {
		ptFrame = mem.Pa_t(pde & pteAddrMask)
	}
	ptBytes := v.Phys.Dmap(ptFrame)
	writeEntry(ptBytes, ptx(virt), uint32(phys_)|flags)
	if dir == v.active {
		v.invalidate(dir, virt)
	}
	return 0
}

/// Unmap clears the leaf entry for virt in dir, if a page table for that
/// region exists. It does not free the underlying frame; callers that own
/// the frame's reference must call mem.Physmem_t.Free themselves.
func (v *Vmm) Unmap(dir mem.Pa_t, virt uint32) {
	dirBytes := v.Phys.Dmap(dir)
	pde := readEntry(dirBytes, pdx(virt))
	if pde&PTE_P == 0 {
		return
	}
	ptBytes := v.Phys.Dmap(mem.Pa_t(pde & pteAddrMask))
	writeEntry(ptBytes, ptx(virt), 0)
	if dir == v.active {
		v.invalidate(dir, virt)
	}
}

/// Translate walks dir for virt and returns the physical frame backing it,
/// if any. Used by the futex/user-buffer copy paths (ustr, trap) that need
/// to turn a user virtual address into bytes without a real MMU.
func (v *Vmm) Translate(dir mem.Pa_t, virt uint32) (mem.Pa_t, bool) {
	table, idx, ok := v.walkPTE(dir, virt)
	if !ok {
		return 0, false
	}
	pte := readEntry(table, idx)
	if pte&PTE_P == 0 {
		return 0, false
	}
	return mem.Pa_t(pte & pteAddrMask), true
}

/// IsMapped walks dir's page directory and table for virt and reports
/// whether both the PDE and PTE have Present set.
func (v *Vmm) IsMapped(dir mem.Pa_t, virt uint32) bool {
	dirBytes := v.Phys.Dmap(dir)
	pde := readEntry(dirBytes, pdx(virt))
	if pde&PTE_P == 0 {
		return false
	}
	ptBytes := v.Phys.Dmap(mem.Pa_t(pde & pteAddrMask))
	pte := readEntry(ptBytes, ptx(virt))
	return pte&PTE_P != 0
}

// walkPTE returns a pointer-like (table, index) pair for the leaf entry backing
// virt in dir, and whether a page table exists for that region at all.
func (v *Vmm) walkPTE(dir mem.Pa_t, virt uint32) (table []byte, idx uint32, ok bool) {
	dirBytes := v.Phys.Dmap(dir)
	pde := readEntry(dirBytes, pdx(virt))
	if pde&PTE_P == 0 {
		return nil, 0, false
	}
	return v.Phys.Dmap(mem.Pa_t(pde & pteAddrMask)), ptx(virt), true
}

/// Clone produces a new page directory sharing src's kernel-space entries
/// by value and copy-on-write-sharing every present user-space page:
/// writable pages are marked read-only and COW in *both* the source and
/// destination PTEs, the frame's refcount is bumped, and the frame address
/// is copied into the destination with its (possibly now COW) flags
/// (spec.md section 4.2, invariant 4).
func (v *Vmm) Clone(src mem.Pa_t) (mem.Pa_t, defs.Err_t) {
	dst, err := v.Phys.Alloc()
	if err != 0 {
		return 0, err
	}
	zero(v.Phys.Dmap(dst))

	srcDirBytes := v.Phys.Dmap(src)
	dstDirBytes := v.Phys.Dmap(dst)

	for i := uint32(KernelPDEStart); i < KernelPDEEnd; i++ {
		writeEntry(dstDirBytes, i, readEntry(srcDirBytes, i))
	}

	for i := uint32(0); i < KernelPDEStart; i++ {
		srcPDE := readEntry(srcDirBytes, i)
		if srcPDE&PTE_P == 0 {
			continue
		}
		newPT, aerr := v.Phys.Alloc()
		if aerr != 0 {
			v.Free(dst)
			return 0, aerr
		}
		zero(v.Phys.Dmap(newPT))
		writeEntry(dstDirBytes, i, uint32(newPT)|PTE_P|PTE_W|PTE_U)

		srcPTBytes := v.Phys.Dmap(mem.Pa_t(srcPDE & pteAddrMask))
		dstPTBytes := v.Phys.Dmap(newPT)
		for j := uint32(0); j < NumPTE; j++ {
			pte := readEntry(srcPTBytes, j)
			if pte&PTE_P == 0 {
				continue
			}
			if pte&PTE_W != 0 {
				pte &^= PTE_W
				pte |= PTE_COW
				writeEntry(srcPTBytes, j, pte)
			}
			frame := mem.Pa_t(pte & pteAddrMask)
			v.Phys.IncRef(frame)
			writeEntry(dstPTBytes, j, pte)
		}
	}

	if src == v.active {
		v.SetActive(src)
	}
	return dst, 0
}

/// Free tears down dir: every present user-space PTE's frame is released
/// through mem.Physmem_t.Free (which honors COW sharing by decrementing
/// rather than unconditionally freeing), then the page table frame and
/// finally the directory frame are freed. Kernel-space page tables are
/// shared and therefore never freed here.
///
/// A directory itself can be shared: proc.Clone (kernel-thread creation)
/// bumps a directory's own refcount instead of calling vm.Clone, so two
/// PCBs can point at the very same dir. Free only tears down the user
/// page tables once the directory's refcount would drop to zero;
/// otherwise it just drops this address space's share, mirroring the
/// frame-level COW discipline one level up.
func (v *Vmm) Free(dir mem.Pa_t) {
	if v.Phys.GetRef(dir) > 1 {
		v.Phys.Free(dir)
		return
	}
	dirBytes := v.Phys.Dmap(dir)
	for i := uint32(0); i < KernelPDEStart; i++ {
		pde := readEntry(dirBytes, i)
		if pde&PTE_P == 0 {
			continue
		}
		ptFrame := mem.Pa_t(pde & pteAddrMask)
		ptBytes := v.Phys.Dmap(ptFrame)
		for j := uint32(0); j < NumPTE; j++ {
			pte := readEntry(ptBytes, j)
			if pte&PTE_P == 0 {
				continue
			}
			v.Phys.Free(mem.Pa_t(pte & pteAddrMask))
		}
		v.Phys.Free(ptFrame)
	}
	v.Phys.Free(dir)
}

/// ResolveCOW handles a page fault at faultAddr in dir whose hardware error
/// code is ecode. If the fault is a write to a COW page, it either claims
/// the frame outright (sole owner) or duplicates it, matching spec.md
/// section 4.2's algorithm exactly. Any other fault is reported back as
/// EFAULT for the caller to treat as fatal (print + halt).
func (v *Vmm) ResolveCOW(dir mem.Pa_t, faultAddr uint32, ecode uint32) defs.Err_t {
	present := ecode&ECODE_PRESENT != 0
	write := ecode&ECODE_WRITE != 0

	table, idx, ok := v.walkPTE(dir, faultAddr)
	if !ok {
		return defs.EFAULT
	}
	pte := readEntry(table, idx)
	if !(present && write && pte&PTE_COW != 0) {
		return defs.EFAULT
	}

	frame := mem.Pa_t(pte & pteAddrMask)
	if v.Phys.GetRef(frame) == 1 {
		pte &^= PTE_COW
		pte |= PTE_W
		writeEntry(table, idx, pte)
		v.invalidate(dir, faultAddr)
		return 0
	}

	newFrame, err := v.Phys.Alloc()
	if err != 0 {
		return err
	}
	copy(v.Phys.Dmap(newFrame), v.Phys.Dmap(frame))

	pte = (pte &^ pteAddrMask) | uint32(newFrame)
	pte &^= PTE_COW
	pte |= PTE_W
	writeEntry(table, idx, pte)

	v.Phys.Free(frame)
	v.invalidate(dir, faultAddr)
	return 0
}

/// DecodeEcode reports the three human-readable alternatives spec.md
/// section 4.2 prints on a fatal (non-COW) fault.
func DecodeEcode(ecode uint32) (protectionViolation bool, isWrite bool, isUser bool) {
	return ecode&ECODE_PRESENT != 0, ecode&ECODE_WRITE != 0, ecode&ECODE_USER != 0
}
