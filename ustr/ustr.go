// Package ustr implements bounds-checked copies between kernel buffers
// and user virtual memory, standing in for the teacher's Ustr byte-slice
// wrapper (biscuit ustr/ustr.go) — reworked from a path-string type (this
// kernel has no path-string model; fs.Filesystem is keyed by plain Go
// strings) into the byte-copy-with-bounds-checking utility the READ/WRITE
// syscalls and futex addresses actually need (spec.md sections 4.5/4.6:
// "user pointers are trusted" is the non-goal for *validation*, not for
// translating a user virtual address to kernel-visible bytes).
package ustr

import (
	"kernelcore/defs"
	"kernelcore/mem"
	"kernelcore/vm"
)

/// CopyIn reads n bytes starting at the user virtual address uva in dir
/// into a freshly allocated []byte, page by page via vmm.Translate. It
/// returns EFAULT if any page in the range is unmapped.
func CopyIn(vmm *vm.Vmm, dir mem.Pa_t, uva uint32, n int) ([]byte, defs.Err_t) {
	out := make([]byte, n)
	if err := walk(vmm, dir, uva, n, func(page []byte, dstOff, pageOff, cnt int) {
		copy(out[dstOff:dstOff+cnt], page[pageOff:pageOff+cnt])
	}); err != 0 {
		return nil, err
	}
	return out, 0
}

/// CopyOut writes src into user virtual memory starting at uva in dir,
/// page by page via vmm.Translate. Returns EFAULT if any page in the
/// range is unmapped.
func CopyOut(vmm *vm.Vmm, dir mem.Pa_t, uva uint32, src []byte) defs.Err_t {
	return walk(vmm, dir, uva, len(src), func(page []byte, srcOff, pageOff, cnt int) {
		copy(page[pageOff:pageOff+cnt], src[srcOff:srcOff+cnt])
	})
}

// walk invokes xfer once per page touched by [uva, uva+n), with the
// frame's backing bytes, the offset into the logical [0,n) range this
// chunk covers, the offset within the page, and the chunk length.
func walk(vmm *vm.Vmm, dir mem.Pa_t, uva uint32, n int, xfer func(page []byte, logicalOff, pageOff, cnt int)) defs.Err_t {
	remaining := n
	logicalOff := 0
	va := uva
	pgsize := uint32(mem.PGSIZE)

	for remaining > 0 {
		frame, ok := vmm.Translate(dir, va)
		if !ok {
			return defs.EFAULT
		}
		pageOff := int(va % pgsize)
		cnt := int(pgsize) - pageOff
		if cnt > remaining {
			cnt = remaining
		}
		xfer(vmm.Phys.Dmap(frame), logicalOff, pageOff, cnt)

		remaining -= cnt
		logicalOff += cnt
		va += uint32(cnt)
	}
	return 0
}

/// MemReaderFor builds a ksync.MemReader (a 4-byte word reader) backed by
/// dir, for FUTEX_WAIT's atomic compare (spec.md section 4.6).
func MemReaderFor(vmm *vm.Vmm, dir mem.Pa_t) func(addr uint32) (uint32, bool) {
	return func(addr uint32) (uint32, bool) {
		buf, err := CopyIn(vmm, dir, addr, 4)
		if err != 0 {
			return 0, false
		}
		return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24, true
	}
}
