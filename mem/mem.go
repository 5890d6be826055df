// Package mem implements the physical frame allocator (PMM): a presence
// bitmap plus a per-frame reference-count array over the usable physical
// address range, grounded on the teacher's Physmem_t (biscuit mem/mem.go)
// but reworked from biscuit's free-list-of-pages design into the bitmap +
// refcount-array shape spec.md requires (needed so copy-on-write sharing
// is visible directly in Refcnt without walking a free list).
package mem

import (
	"kernelcore/defs"
	"kernelcore/util"
)

/// PGSHIFT is the base-2 exponent for the page size.
const PGSHIFT uint = 12

/// PGSIZE is the size of a single physical frame in bytes.
const PGSIZE int = 1 << PGSHIFT

/// PGOFFSET masks the in-page offset of an address.
const PGOFFSET Pa_t = Pa_t(PGSIZE - 1)

/// PGMASK masks the frame-aligned portion of an address.
const PGMASK Pa_t = ^PGOFFSET

/// Pa_t is a physical address. The low 12 bits are a page offset; the
/// high bits identify a frame.
type Pa_t uintptr

/// frameIdx returns the frame index of p within the range managed by this
/// allocator, relative to startFrame.
func (phys *Physmem_t) frameIdx(p Pa_t) uint32 {
	return uint32(p>>PGSHIFT) - phys.startFrame
}

/// Physmem_t owns the presence bitmap and refcount array for all physical
/// frames the kernel manages. One bit per frame (1 = in use), one byte per
/// frame for the reference count. For frames handed out by Alloc, the bit
/// is set iff the refcount is nonzero (spec.md invariant 1); frames
/// reserved by Init have their bit set with a refcount of zero.
type Physmem_t struct {
	startFrame uint32  /// frame index of the first managed physical address
	nframes    uint32  /// number of frames managed
	bitmap     []uint8 /// presence bitmap, one bit per frame
	refcnt     []uint8 /// reference count, one byte per frame

	/// OnExhausted, when non-nil, is invoked by Alloc before returning
	/// failure, mirroring the teacher's oommsg notification hook
	/// (biscuit oommsg/oommsg.go) adapted to a simple synchronous callback
	/// since this kernel has no out-of-band OOM-killer daemon.
	OnExhausted func()

	/// store backs every managed frame with real bytes, standing in for
	/// the teacher's direct-map window (biscuit mem/dmap.go Dmap): rather
	/// than computing a higher-half virtual alias of physical memory with
	/// unsafe.Pointer arithmetic, frame content is addressed as a Go byte
	/// slice. vm uses Dmap to read/write frame contents during COW copies.
	store []byte
}

/// Dmap returns the byte slice backing the frame at addr, standing in for
/// the teacher's direct-mapped virtual window onto physical memory.
func (phys *Physmem_t) Dmap(addr Pa_t) []byte {
	idx := phys.frameIdx(addr)
	off := int(idx) * PGSIZE
	return phys.store[off : off+PGSIZE]
}

/// Region describes a contiguous run of usable physical memory as reported
/// by the bootloader's memory map (spec.md section 6).
type Region struct {
	Base   Pa_t
	Length uintptr
}

/// Init constructs a Physmem_t spanning [base, base+nframes*PGSIZE), marks
/// every frame reserved, then unreserves the frames covered by usable and
/// re-reserves those below kernelEnd and backing bootStack, as spec.md
/// section 4.1 describes:
/// everything starts reserved; only bootloader-reported usable regions are
/// released, and frames below the kernel image's physical end or backing
/// the boot stack are re-reserved even if a usable region covered them.
func Init(base Pa_t, nframes uint32, usable []Region, kernelEnd Pa_t, bootStack Region) *Physmem_t {
	phys := &Physmem_t{
		startFrame: uint32(base >> PGSHIFT),
		nframes:    nframes,
		bitmap:     make([]uint8, (nframes+7)/8),
		refcnt:     make([]uint8, nframes),
		store:      make([]byte, int(nframes)*PGSIZE),
	}
	for i := range phys.bitmap {
		phys.bitmap[i] = 0xFF
	}
	for _, r := range usable {
		phys.unreserveRegion(r)
	}
	phys.reserveRegion(Region{Base: base, Length: uintptr(kernelEnd - base)})
	phys.reserveRegion(bootStack)
	return phys
}

func (phys *Physmem_t) setBit(idx uint32, v bool) {
	byteIdx := idx / 8
	bit := uint8(1) << (idx % 8)
	if v {
		phys.bitmap[byteIdx] |= bit
	} else {
		phys.bitmap[byteIdx] &^= bit
	}
}

func (phys *Physmem_t) bitSet(idx uint32) bool {
	return phys.bitmap[idx/8]&(1<<(idx%8)) != 0
}

// unreserveRegion clears bits for frames fully covered by r, rounding the
// start up and the end down to frame boundaries as spec.md requires.
func (phys *Physmem_t) unreserveRegion(r Region) {
	start := util.Roundup(uintptr(r.Base), uintptr(PGSIZE))
	end := util.Rounddown(uintptr(r.Base)+r.Length, uintptr(PGSIZE))
	for a := start; a+uintptr(PGSIZE) <= end; a += uintptr(PGSIZE) {
		p := Pa_t(a)
		fn := p >> PGSHIFT
		if uint32(fn) < phys.startFrame {
			continue
		}
		idx := uint32(fn) - phys.startFrame
		if idx >= phys.nframes {
			continue
		}
		phys.setBit(idx, false)
	}
}

func (phys *Physmem_t) reserveRegion(r Region) {
	start := util.Rounddown(uintptr(r.Base), uintptr(PGSIZE))
	end := util.Roundup(uintptr(r.Base)+r.Length, uintptr(PGSIZE))
	for a := start; a < end; a += uintptr(PGSIZE) {
		p := Pa_t(a)
		fn := p >> PGSHIFT
		if uint32(fn) < phys.startFrame {
			continue
		}
		idx := uint32(fn) - phys.startFrame
		if idx >= phys.nframes {
			continue
		}
		phys.setBit(idx, true)
	}
}

/// Alloc returns the physical address of one zero-refcount frame, sets its
/// bitmap bit, sets its refcount to 1. It scans byte-at-a-time, skipping
/// fully-reserved (0xFF) bytes, and returns the lowest-indexed free frame
/// (spec.md's scan policy). Returns (0, ENOMEM) if no frame is free.
func (phys *Physmem_t) Alloc() (Pa_t, defs.Err_t) {
	for byteIdx, b := range phys.bitmap {
		if b == 0xFF {
			continue
		}
		for bit := uint32(0); bit < 8; bit++ {
			idx := uint32(byteIdx)*8 + bit
			if idx >= phys.nframes {
				break
			}
			if b&(1<<bit) != 0 {
				continue
			}
			phys.setBit(idx, true)
			phys.refcnt[idx] = 1
			addr := Pa_t(idx+phys.startFrame) << PGSHIFT
			return addr, 0
		}
	}
	if phys.OnExhausted != nil {
		phys.OnExhausted()
	}
	return 0, defs.ENOMEM
}

/// Free decrements addr's reference count; when it reaches zero the
/// bitmap bit is cleared. A double-free past zero is a programming error
/// in the caller (spec.md section 4.1: "undefined" on invalid addresses),
/// so it is a no-op rather than a panic here to keep fault paths simple.
func (phys *Physmem_t) Free(addr Pa_t) {
	idx := phys.frameIdx(addr)
	if idx >= phys.nframes || phys.refcnt[idx] == 0 {
		return
	}
	phys.refcnt[idx]--
	if phys.refcnt[idx] == 0 {
		phys.setBit(idx, false)
	}
}

/// IncRef bumps addr's reference count without touching the presence bit.
/// Used by vm.Clone to record an additional address space sharing a COW
/// frame, and by kernel-thread Clone to share a page directory frame.
func (phys *Physmem_t) IncRef(addr Pa_t) {
	idx := phys.frameIdx(addr)
	if idx >= phys.nframes {
		return
	}
	phys.refcnt[idx]++
}

/// GetRef returns addr's current reference count.
func (phys *Physmem_t) GetRef(addr Pa_t) int {
	idx := phys.frameIdx(addr)
	if idx >= phys.nframes {
		return 0
	}
	return int(phys.refcnt[idx])
}

/// IsReserved reports whether addr's frame is currently marked in-use.
func (phys *Physmem_t) IsReserved(addr Pa_t) bool {
	idx := phys.frameIdx(addr)
	if idx >= phys.nframes {
		return true
	}
	return phys.bitSet(idx)
}

/// NFrames returns the number of frames this allocator manages, for
/// diagnostics (tools/kstat) and tests.
func (phys *Physmem_t) NFrames() uint32 { return phys.nframes }

/// FreeFrames counts currently-unreserved frames by scanning the bitmap.
/// O(nframes); intended for diagnostics/tests, not the hot alloc path.
func (phys *Physmem_t) FreeFrames() uint32 {
	var n uint32
	for idx := uint32(0); idx < phys.nframes; idx++ {
		if !phys.bitSet(idx) {
			n++
		}
	}
	return n
}
