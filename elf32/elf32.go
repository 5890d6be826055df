// Package elf32 loads a 32-bit ELF executable image into a process's
// address space for the EXEC syscall (spec.md section 4.1). It is
// grounded on the teacher's host-side use of debug/elf (biscuit's
// kernel/chentry.go patches ELF entry points with the same stdlib
// package); here the same package parses the image in-kernel instead,
// and every PT_LOAD segment is mapped through vm.Vmm rather than written
// to a host file.
package elf32

import (
	"bytes"
	"debug/elf"

	"kernelcore/defs"
	"kernelcore/mem"
	"kernelcore/vm"
)

/// Load parses data as a 32-bit ELF executable and maps every PT_LOAD
/// segment into dir through vmm, zero-filling the gap between a
/// segment's file size and its memory size (BSS). Returns the image's
/// entry point.
func Load(data []byte, vmm *vm.Vmm, dir mem.Pa_t) (uint32, defs.Err_t) {
	f, ferr := elf.NewFile(bytes.NewReader(data))
	if ferr != nil {
		return 0, defs.ECORRUPT
	}
	defer f.Close()

	if f.Class != elf.ELFCLASS32 || f.Machine != elf.EM_386 {
		return 0, defs.ECORRUPT
	}

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if err := loadSegment(f, prog, vmm, dir); err != 0 {
			return 0, err
		}
	}

	return uint32(f.Entry), 0
}

func loadSegment(f *elf.File, prog *elf.Prog, vmm *vm.Vmm, dir mem.Pa_t) defs.Err_t {
	flags := vm.PTE_P | vm.PTE_U
	if prog.Flags&elf.PF_W != 0 {
		flags |= vm.PTE_W
	}

	vaStart := uint32(prog.Vaddr) &^ (uint32(mem.PGSIZE) - 1)
	vaEnd := uint32(prog.Vaddr+prog.Memsz) + uint32(mem.PGSIZE) - 1
	vaEnd &^= uint32(mem.PGSIZE) - 1

	segData := make([]byte, prog.Filesz)
	if _, err := prog.ReadAt(segData, 0); err != nil {
		return defs.ECORRUPT
	}

	for va := vaStart; va < vaEnd; va += uint32(mem.PGSIZE) {
		frame, err := vmm.Phys.Alloc()
		if err != 0 {
			return err
		}
		page := vmm.Phys.Dmap(frame)
		for i := range page {
			page[i] = 0
		}
		if err := vmm.Map(dir, va, frame, flags); err != 0 {
			return err
		}
		copySegmentRange(page, va, prog.Vaddr, segData)
	}

	return 0
}

// copySegmentRange copies whatever portion of segData falls within the
// page starting at pageVA into page, given the segment's own virtual
// base segVaddr.
func copySegmentRange(page []byte, pageVA uint32, segVaddr uint64, segData []byte) {
	pageEnd := uint64(pageVA) + uint64(len(page))
	segStart := segVaddr
	segEnd := segVaddr + uint64(len(segData))

	lo := maxU64(uint64(pageVA), segStart)
	hi := minU64(pageEnd, segEnd)
	if lo >= hi {
		return
	}
	copy(page[lo-uint64(pageVA):hi-uint64(pageVA)], segData[lo-segStart:hi-segStart])
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
