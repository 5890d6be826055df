// Package diag implements the fatal-fault diagnostics kernelctx prints
// before halting on an unresolvable page fault (spec.md section 4.2: any
// fault ResolveCOW can't fix as copy-on-write is fatal). It combines two
// pieces adapted from the teacher: a distinct-call-site dedup so a fault
// recurring from the same code path floods the console only once
// (biscuit caller/caller.go's Distinct_caller_t, generalized from a
// caller-chain hash to a faulting-address hash), and an x86 instruction
// disassembly of the faulting opcode bytes using golang.org/x/arch's
// x86asm decoder, the library SPEC_FULL.md's domain stack commits to for
// exactly this.
package diag

import (
	"fmt"
	"sync"

	"golang.org/x/arch/x86/x86asm"
)

/// FaultDedup reports whether a fault at a given address has been seen
/// before, so a repeatedly faulting instruction (e.g. a runaway COW loop)
/// logs once instead of spamming the console every occurrence.
type FaultDedup struct {
	mu   sync.Mutex
	seen map[uint32]bool
}

/// NewFaultDedup constructs an empty dedup set.
func NewFaultDedup() *FaultDedup {
	return &FaultDedup{seen: make(map[uint32]bool)}
}

/// First reports true the first time addr is passed to it, and false on
/// every subsequent call for the same address.
func (d *FaultDedup) First(addr uint32) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[addr] {
		return false
	}
	d.seen[addr] = true
	return true
}

/// Disassemble decodes the single x86 instruction at the start of code
/// (the bytes at the faulting Eip, however many the caller could read out
/// of the page), returning a human-readable line for the fatal-fault
/// report. It always decodes in 32-bit mode, this kernel's protected-mode
/// code. If decoding
/// fails (e.g. code is empty or the bytes aren't a valid instruction),
/// it returns a line saying so instead of an error, since this path only
/// ever feeds a diagnostic printout.
func Disassemble(code []byte, pc uint32) string {
	inst, err := x86asm.Decode(code, 32)
	if err != nil {
		return fmt.Sprintf("%#08x: <undecodable: %v>", pc, err)
	}
	return fmt.Sprintf("%#08x: %s", pc, x86asm.GNUSyntax(inst, uint64(pc), nil))
}

/// ReportFault formats the fatal-fault line kernelctx prints: the
/// faulting address, whether hardware reported a protection violation, a
/// write, and user-mode access (spec.md section 4.2's three booleans),
/// and the disassembly of the faulting instruction if codeAtFault is
/// non-empty. Returns "" if dedup has already reported this faultAddr.
func ReportFault(dedup *FaultDedup, faultAddr uint32, protectionViolation, isWrite, isUser bool, codeAtFault []byte) string {
	if !dedup.First(faultAddr) {
		return ""
	}
	line := fmt.Sprintf("fatal fault at %#08x: protection=%v write=%v user=%v",
		faultAddr, protectionViolation, isWrite, isUser)
	if len(codeAtFault) > 0 {
		line += "\n  " + Disassemble(codeAtFault, faultAddr)
	}
	return line
}
