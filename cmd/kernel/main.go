// Command kernel is the freestanding entry point a multiboot trampoline
// calls into (spec.md explicitly excludes the bootloader/assembly
// hand-off itself from scope). Grounded on gopher-os's stub.go, which
// defines a minimal main() whose only job is calling the real kernel
// entry point through a package-level variable so the Go compiler
// cannot inline it away: a freestanding binary has no runtime
// scheduler driving goroutines the ordinary way, so the entry function
// must stay reachable in the compiled image even though nothing in
// ordinary Go ever calls main() directly.
package main

import (
	"os"

	"kernelcore/kernelctx"
	"kernelcore/mem"
)

// multibootInfoPtr stands in for the pointer a real multiboot-compliant
// bootloader leaves in a register at hand-off; a genuine freestanding
// build reads it out of assembly-saved state before calling boot.
var multibootInfoPtr uintptr

func main() {
	boot(multibootInfoPtr)
}

// boot constructs the kernel context from a (simulated) bootloader
// memory map, with pid 0 RUNNING, and returns. Real boot code
// parses the multiboot memory map out of info; this adaptation accepts
// a fixed single-region layout since no real memory map exists to
// parse in this simulation.
func boot(info uintptr) {
	_ = info

	const oneRegionFrames = 4096 // 16 MiB at 4 KiB pages, matching a small teaching VM's RAM

	cfg := kernelctx.Config{
		NFrames: oneRegionFrames,
		Usable:  []mem.Region{{Base: 0, Length: oneRegionFrames * uintptr(mem.PGSIZE)}},
		// os.Stdout stands in for the VGA text-mode driver spec.md's
		// scope excludes (section 1): it satisfies console.Writer
		// (WriteString(string) (int, error)) directly, so boot output
		// is visible when this simulation is run as an ordinary
		// process instead of booted on real hardware.
		Primary:      os.Stdout,
		MaxProcs:     64,
		MaxFutexes:   256,
		UserStackTop: 0xBFFFF000,
	}

	k, err := kernelctx.New(cfg)
	if err != 0 {
		panic("kernel: failed to initialize kernel context")
	}

	// pid 0 is already RUNNING from proc.Init; in a real boot it would
	// now jump to a userspace init program loaded via k.Syscalls. This
	// simulation has no CPU execution loop to drive that jump, so
	// boot's job ends at having assembled a consistent kernel context
	// ready for tests and tools to drive further.
	_ = k
}
