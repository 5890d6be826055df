package elf32

import (
	"encoding/binary"
	"testing"

	"kernelcore/mem"
	"kernelcore/vm"
)

// buildMinimalELF constructs a 32-bit little-endian ET_EXEC image with a
// single PT_LOAD segment: segData bytes on disk, zero-filled out to
// memsz in memory (standard ELF BSS handling), starting at vaddr, with
// the entry point also set to vaddr.
func buildMinimalELF(vaddr uint32, segData []byte, memsz uint32) []byte {
	const ehsize = 52
	const phentsize = 32
	const phoff = ehsize
	const dataOff = phoff + phentsize

	buf := make([]byte, dataOff+len(segData))

	ident := []byte{0x7f, 'E', 'L', 'F', 1 /*32-bit*/, 1 /*LSB*/, 1 /*version*/, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	copy(buf[0:16], ident)
	le := binary.LittleEndian
	le.PutUint16(buf[16:18], 2)       // e_type = ET_EXEC
	le.PutUint16(buf[18:20], 3)       // e_machine = EM_386
	le.PutUint32(buf[20:24], 1)       // e_version
	le.PutUint32(buf[24:28], vaddr)   // e_entry
	le.PutUint32(buf[28:32], phoff)   // e_phoff
	le.PutUint32(buf[32:36], 0)       // e_shoff
	le.PutUint32(buf[36:40], 0)       // e_flags
	le.PutUint16(buf[40:42], ehsize)
	le.PutUint16(buf[42:44], phentsize)
	le.PutUint16(buf[44:46], 1) // e_phnum
	le.PutUint16(buf[46:48], 0)
	le.PutUint16(buf[48:50], 0)
	le.PutUint16(buf[50:52], 0)

	ph := buf[phoff : phoff+phentsize]
	le.PutUint32(ph[0:4], 1)              // p_type = PT_LOAD
	le.PutUint32(ph[4:8], dataOff)        // p_offset
	le.PutUint32(ph[8:12], vaddr)         // p_vaddr
	le.PutUint32(ph[12:16], vaddr)        // p_paddr
	le.PutUint32(ph[16:20], uint32(len(segData))) // p_filesz
	le.PutUint32(ph[20:24], memsz)        // p_memsz
	le.PutUint32(ph[24:28], 5)            // p_flags = PF_R|PF_X
	le.PutUint32(ph[28:32], uint32(mem.PGSIZE))

	copy(buf[dataOff:], segData)
	return buf
}

func freshVmm(t *testing.T, nframes uint32) (*vm.Vmm, mem.Pa_t) {
	t.Helper()
	phys := mem.Init(0, nframes, []mem.Region{{Base: 0, Length: uintptr(nframes) * uintptr(mem.PGSIZE)}}, 0, mem.Region{})
	v, err := vm.NewVmm(phys)
	if err != 0 {
		t.Fatalf("NewVmm failed: %d", err)
	}
	dir, derr := v.Clone(v.KernelDir)
	if derr != 0 {
		t.Fatalf("Clone failed: %d", derr)
	}
	return v, dir
}

func TestLoadMapsSegmentAndReportsEntry(t *testing.T) {
	v, dir := freshVmm(t, 64)
	const vaddr = uint32(0x400000)
	code := []byte{0x90, 0x90, 0xCC} // arbitrary bytes, never executed

	image := buildMinimalELF(vaddr, code, uint32(mem.PGSIZE))
	entry, err := Load(image, v, dir)
	if err != 0 {
		t.Fatalf("Load failed: %d", err)
	}
	if entry != vaddr {
		t.Fatalf("got entry %#x, want %#x", entry, vaddr)
	}

	frame, ok := v.Translate(dir, vaddr)
	if !ok {
		t.Fatalf("expected vaddr to be mapped")
	}
	page := v.Phys.Dmap(frame)
	for i, b := range code {
		if page[i] != b {
			t.Fatalf("byte %d: got %d want %d", i, page[i], b)
		}
	}
}

func TestLoadZeroFillsBSS(t *testing.T) {
	v, dir := freshVmm(t, 64)
	const vaddr = uint32(0x500000)
	code := []byte{1, 2, 3, 4}
	// memsz bigger than filesz: the extra space is BSS and must read zero.
	image := buildMinimalELF(vaddr, code, uint32(mem.PGSIZE))

	if _, err := Load(image, v, dir); err != 0 {
		t.Fatalf("Load failed: %d", err)
	}
	frame, _ := v.Translate(dir, vaddr)
	page := v.Phys.Dmap(frame)
	for i := len(code); i < 16; i++ {
		if page[i] != 0 {
			t.Fatalf("expected BSS byte %d to be zero, got %d", i, page[i])
		}
	}
}

func TestLoadRejectsBadMagic(t *testing.T) {
	v, dir := freshVmm(t, 64)
	if _, err := Load([]byte("not an elf"), v, dir); err == 0 {
		t.Fatalf("expected failure decoding garbage input")
	}
}
