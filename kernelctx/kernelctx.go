// Package kernelctx wires every subsystem package into one running
// kernel, the way Design Notes section 9 describes a single "kernel
// context" struct tying the PMM, VMM, process table, console, keyboard,
// futex table, and resource limits together rather than scattering
// globals across packages. Grounded on the teacher's main.go boot
// sequence (biscuit's Main allocates Physmem_t then Vm_t then the
// process table in that order) and gopher-os's staged Init functions.
package kernelctx

import (
	"fmt"

	"kernelcore/console"
	"kernelcore/defs"
	"kernelcore/diag"
	"kernelcore/fd"
	"kernelcore/fs"
	"kernelcore/kbd"
	"kernelcore/ksync"
	"kernelcore/limits"
	"kernelcore/mem"
	"kernelcore/oom"
	"kernelcore/proc"
	"kernelcore/trap"
	"kernelcore/vm"
)

// KeyboardBufSize bounds the keyboard ring buffer installed on fd 0 for
// every process.
const KeyboardBufSize = 256

/// Kernel bundles every booted subsystem, handed to cmd/kernel's entry
/// point once assembled by New.
type Kernel struct {
	Phys     *mem.Physmem_t
	Vmm      *vm.Vmm
	Procs    *proc.Table
	Console  *console.Console
	Keyboard *kbd.Keyboard
	Futex    *ksync.FutexTable
	Limits   *limits.Syslimit_t
	FS       fs.Filesystem
	Oom      *oom.Notifier
	Dedup    *diag.FaultDedup
	Syscalls *trap.Syscalls
}

/// Config supplies the pieces New cannot construct on its own: the
/// physical memory layout the bootloader reported, the primary console
/// writer (VGA/serial, outside this kernel's scope to drive), and the
/// ceilings for countable resources.
type Config struct {
	Base       mem.Pa_t
	NFrames    uint32
	Usable     []mem.Region
	KernelEnd  mem.Pa_t
	BootStack  mem.Region
	Primary    console.Writer
	Mirror     console.Writer /// optional, nil if unused
	MaxProcs   int64
	MaxFutexes int64
	FS         fs.Filesystem
	UserStackTop uint32
}

/// New assembles a Kernel from cfg: the frame allocator, the kernel's
/// page directory, the process table seeded with pid 0 running in that
/// directory, and every ambient device/service pid 0 (and everything it
/// forks) expects to find already open on fd 0/1 (spec.md section 4.7).
func New(cfg Config) (*Kernel, defs.Err_t) {
	phys := mem.Init(cfg.Base, cfg.NFrames, cfg.Usable, cfg.KernelEnd, cfg.BootStack)

	vmm, err := vm.NewVmm(phys)
	if err != 0 {
		return nil, err
	}

	oomN := oom.NewNotifier()
	phys.OnExhausted = oomN.Hook()

	lim := limits.MkSysLimit(cfg.MaxProcs, cfg.MaxFutexes)

	procs := proc.Init(vmm.KernelDir)
	procs.Limits = lim

	cons := console.New(cfg.Primary, cfg.Mirror)
	keys := kbd.New(KeyboardBufSize)

	pcb0 := procs.Lookup(0)
	pcb0.Fds = fd.NewTable()
	pcb0.Fds.Install(&fd.Fd_t{Ops: &kbd.Fd{Keyboard: keys}, Perms: fd.FD_READ})
	pcb0.Fds.Install(&fd.Fd_t{Ops: &console.Fd{Console: cons}, Perms: fd.FD_WRITE})

	futex := ksync.NewFutexTable()

	k := &Kernel{
		Phys:     phys,
		Vmm:      vmm,
		Procs:    procs,
		Console:  cons,
		Keyboard: keys,
		Futex:    futex,
		Limits:   lim,
		FS:       cfg.FS,
		Oom:      oomN,
		Dedup:    diag.NewFaultDedup(),
	}
	k.Syscalls = &trap.Syscalls{
		Table:        procs,
		Vmm:          vmm,
		Futex:        futex,
		FS:           cfg.FS,
		UserStackTop: cfg.UserStackTop,
	}
	return k, 0
}

/// HandlePageFault is the vector-14 entry point (spec.md section 4.2):
/// try to resolve the fault as copy-on-write, and if that fails, print a
/// deduplicated diagnostic and halt. codeAtFault, if non-empty, is the
/// bytes at the faulting Eip for disassembly; a real trap handler reads
/// them out of the faulting process's own address space.
func (k *Kernel) HandlePageFault(p *proc.PCB, faultAddr uint32, ecode uint32, codeAtFault []byte) {
	if err := k.Vmm.ResolveCOW(p.AS, faultAddr, ecode); err == 0 {
		return
	}
	protectionViolation, isWrite, isUser := vm.DecodeEcode(ecode)
	if line := diag.ReportFault(k.Dedup, faultAddr, protectionViolation, isWrite, isUser, codeAtFault); line != "" {
		k.Console.WriteString(line + "\n")
	}
	k.Procs.Exit(p, -1)
	panic(fmt.Sprintf("kernelctx: unresolvable fault, pid %d halted", p.Pid))
}
