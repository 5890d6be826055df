// Package heap implements the kernel's explicit free-list allocator with
// boundary-tag coalescing, grounded on original_source/mm/kheap.c's
// header_t (next, prev, size, magic, is_free) and spec.md section 4.3.
//
// Design Notes section 9 singles the heap out as the one pointer graph
// that "may remain boundary-tagged... local and easy to validate" — so
// rather than translating header_t into unsafe.Pointer-linked C structs,
// headers live at fixed offsets within a single reserved byte arena and
// are addressed by Ptr, a small integer handle (the offset), matching the
// "arena + index" re-architecture Design Notes section 9 recommends for
// the rest of the kernel's pointer graphs.
package heap

import (
	"encoding/binary"

	"kernelcore/defs"
	"kernelcore/util"
)

/// Magic tags a live header for corruption detection on every heap call.
const Magic uint32 = 0x12345678

// header layout, 20 bytes, all fields little-endian uint32:
//   next(4) prev(4) size(4) magic(4) free(4)
const headerSize = 20

/// Ptr is an offset into a Heap's arena. NilPtr represents the absence of
/// a block, standing in for a null header pointer.
type Ptr uint32

/// NilPtr is the sentinel for "no block".
const NilPtr Ptr = ^Ptr(0)

/// Heap is a single contiguous byte range carved from the kernel's virtual
/// address space (spec.md section 4.3). Heap expansion is a non-goal:
/// Alloc returns ENOMEM once the arena cannot satisfy a request.
type Heap struct {
	arena []byte
	head  Ptr /// first block in address order
}

/// Init reserves size bytes and sets up a single free block spanning the
/// whole range.
func Init(size int) *Heap {
	h := &Heap{arena: make([]byte, size), head: 0}
	h.setHeader(0, header{next: NilPtr, prev: NilPtr, size: uint32(size), magic: Magic, free: true})
	return h
}

type header struct {
	next, prev Ptr
	size       uint32
	magic      uint32
	free       bool
}

func (h *Heap) header(p Ptr) header {
	b := h.arena[p : p+headerSize]
	var hd header
	hd.next = Ptr(binary.LittleEndian.Uint32(b[0:4]))
	hd.prev = Ptr(binary.LittleEndian.Uint32(b[4:8]))
	hd.size = binary.LittleEndian.Uint32(b[8:12])
	hd.magic = binary.LittleEndian.Uint32(b[12:16])
	hd.free = binary.LittleEndian.Uint32(b[16:20]) != 0
	return hd
}

func (h *Heap) setHeader(p Ptr, hd header) {
	b := h.arena[p : p+headerSize]
	binary.LittleEndian.PutUint32(b[0:4], uint32(hd.next))
	binary.LittleEndian.PutUint32(b[4:8], uint32(hd.prev))
	binary.LittleEndian.PutUint32(b[8:12], hd.size)
	binary.LittleEndian.PutUint32(b[12:16], hd.magic)
	free := uint32(0)
	if hd.free {
		free = 1
	}
	binary.LittleEndian.PutUint32(b[16:20], free)
}

/// Alloc rounds size up to a 4-byte multiple and returns the first free
/// block big enough to hold it, splitting the remainder into a new free
/// block only if it can hold a header plus at least 4 bytes of payload
/// (spec.md section 4.3). Returns ENOMEM if no block fits.
func (h *Heap) Alloc(size int) (Ptr, defs.Err_t) {
	if size <= 0 {
		return NilPtr, defs.EINVAL
	}
	need := util.Roundup(size, 4) + headerSize

	p := h.head
	for p != NilPtr {
		hd := h.header(p)
		if hd.magic != Magic {
			return NilPtr, defs.ECORRUPT
		}
		if hd.free && int(hd.size) >= need {
			remainder := int(hd.size) - need
			if remainder >= headerSize+4 {
				h.split(p, hd, uint32(need))
				hd = h.header(p)
			}
			hd.free = false
			h.setHeader(p, hd)
			return p + headerSize, 0
		}
		p = hd.next
	}
	return NilPtr, defs.ENOMEM
}

// split carves a new free block of size hd.size-used out of the tail of
// the block at p (whose header is hd), relinking it into the free list.
func (h *Heap) split(p Ptr, hd header, used uint32) {
	newBlock := p + Ptr(used)
	newSize := hd.size - used
	h.setHeader(newBlock, header{next: hd.next, prev: p, size: newSize, magic: Magic, free: true})
	if hd.next != NilPtr {
		nextHd := h.header(hd.next)
		nextHd.prev = newBlock
		h.setHeader(hd.next, nextHd)
	}
	hd.size = used
	hd.next = newBlock
	h.setHeader(p, hd)
}

/// Free marks the block backing ptr (a value previously returned by
/// Alloc) as free, then coalesces it with its next neighbor and then its
/// previous neighbor if either is also free (spec.md section 4.3
/// invariant: adjacent free blocks are always coalesced immediately).
/// A magic mismatch indicates corruption; the call is refused rather than
/// continuing (spec.md section 7).
func (h *Heap) Free(ptr Ptr) defs.Err_t {
	p := ptr - headerSize
	hd := h.header(p)
	if hd.magic != Magic {
		return defs.ECORRUPT
	}
	hd.free = true
	h.setHeader(p, hd)

	if hd.next != NilPtr {
		nextHd := h.header(hd.next)
		if nextHd.magic == Magic && nextHd.free {
			h.mergeWithNext(p)
			hd = h.header(p)
		}
	}
	if hd.prev != NilPtr {
		prevHd := h.header(hd.prev)
		if prevHd.magic == Magic && prevHd.free {
			h.mergeWithNext(hd.prev)
		}
	}
	return 0
}

// mergeWithNext absorbs the block following p into p, updating the
// doubly-linked list and the head pointer if p was the list head.
func (h *Heap) mergeWithNext(p Ptr) {
	hd := h.header(p)
	next := hd.next
	nextHd := h.header(next)

	hd.size += nextHd.size
	hd.next = nextHd.next
	if nextHd.next != NilPtr {
		nnHd := h.header(nextHd.next)
		nnHd.prev = p
		h.setHeader(nextHd.next, nnHd)
	}
	h.setHeader(p, hd)
}

/// Bytes exposes the payload region backing ptr for n bytes, for callers
/// that need to read or write allocated memory directly (such as tests).
func (h *Heap) Bytes(ptr Ptr, n int) []byte {
	return h.arena[ptr : ptr+Ptr(n)]
}

/// Check validates every header's magic tag, returning the first offset at
/// which corruption is found or (NilPtr, true) if the whole list is sane.
func (h *Heap) Check() (Ptr, bool) {
	p := h.head
	for p != NilPtr {
		hd := h.header(p)
		if hd.magic != Magic {
			return p, false
		}
		p = hd.next
	}
	return NilPtr, true
}
