// Package trap implements syscall dispatch (spec.md section 4.5): a
// single entry point reads the syscall number and arguments out of a
// process's trapframe, routes to the matching kernel operation, and
// writes the result back. Grounded on the teacher's syscall-shaped
// "single integer return" convention (every kernel operation already
// returns defs.Err_t); this package's job is purely the register-to-
// argument and result-to-register plumbing spec.md's syscall table
// describes, using ustr's bounds-checked accessors to move bytes between
// kernel buffers and user virtual memory.
package trap

import (
	"kernelcore/defs"
	"kernelcore/elf32"
	"kernelcore/fs"
	"kernelcore/ksync"
	"kernelcore/mem"
	"kernelcore/proc"
	"kernelcore/ustr"
	"kernelcore/vm"
)

/// Syscalls bundles every kernel subsystem a syscall might need to touch.
/// One value is constructed per booted kernel (see kernelctx.Kernel) and
/// its Dispatch method is the trap handler's syscall path.
type Syscalls struct {
	Table        *proc.Table
	Vmm          *vm.Vmm
	Futex        *ksync.FutexTable
	FS           fs.Filesystem
	UserStackTop uint32

	// ResumeChild is the body a forked or cloned child's goroutine runs.
	// A real kernel replays the saved trapframe through an iret here;
	// this simulation has no user-mode instruction executor, so by
	// default (nil) the child becomes schedulable, exits with status 0
	// the first time it runs, and waits to be reaped. Tests/cmd wiring
	// may override this to drive a specific child behavior.
	ResumeChild func(child *proc.PCB)
}

func negErr(err defs.Err_t) int32 {
	if err == 0 {
		return 0
	}
	return -int32(err)
}

/// Dispatch reads p.Tf.Eax as a syscall number, routes to the matching
/// operation using p.Tf.Ebx/Ecx/Edx as arguments, and writes the
/// result back into p.Tf.Eax (negated on error, per the negative-errno
/// convention defs.Err_t documents). SYS_EXIT is the one syscall that
/// never returns to write a result: proc.Exit hands control to the
/// scheduler permanently.
func (s *Syscalls) Dispatch(p *proc.PCB) {
	start := p.Accnt.Now()
	defer func() { p.Accnt.Systadd(p.Accnt.Now() - start) }()

	num := p.Tf.Eax
	switch num {
	case defs.SYS_READ:
		p.Tf.Eax = uint32(s.sysRead(p))
	case defs.SYS_WRITE:
		p.Tf.Eax = uint32(s.sysWrite(p))
	case defs.SYS_EXIT:
		s.Table.Exit(p, int(int32(p.Tf.Ebx)))
	case defs.SYS_EXEC:
		p.Tf.Eax = uint32(s.sysExec(p))
	case defs.SYS_FORK:
		p.Tf.Eax = uint32(s.sysFork(p))
	case defs.SYS_WAIT:
		p.Tf.Eax = uint32(s.sysWait(p))
	case defs.SYS_CLONE:
		p.Tf.Eax = uint32(s.sysClone(p))
	case defs.SYS_FUTEX_WAIT:
		p.Tf.Eax = uint32(s.sysFutexWait(p))
	case defs.SYS_FUTEX_WAKE:
		s.Futex.Wake(p.Tf.Ebx)
		p.Tf.Eax = 0
	case defs.SYS_LS:
		p.Tf.Eax = uint32(s.sysLs(p))
	default:
		p.Tf.Eax = uint32(negErr(defs.EINVAL))
	}
}

func (s *Syscalls) sysRead(p *proc.PCB) int32 {
	fdno := int(p.Tf.Ebx)
	uva := p.Tf.Ecx
	n := int(p.Tf.Edx)
	f := p.Fds.Get(fdno)
	if f == nil {
		return negErr(defs.EINVAL)
	}
	buf := make([]byte, n)
	got, err := f.Ops.Read(buf)
	if err != 0 {
		return negErr(err)
	}
	if err := ustr.CopyOut(s.Vmm, p.AS, uva, buf[:got]); err != 0 {
		return negErr(err)
	}
	return int32(got)
}

func (s *Syscalls) sysWrite(p *proc.PCB) int32 {
	fdno := int(p.Tf.Ebx)
	uva := p.Tf.Ecx
	n := int(p.Tf.Edx)
	f := p.Fds.Get(fdno)
	if f == nil {
		return negErr(defs.EINVAL)
	}
	buf, err := ustr.CopyIn(s.Vmm, p.AS, uva, n)
	if err != 0 {
		return negErr(err)
	}
	wrote, werr := f.Ops.Write(buf)
	if werr != 0 {
		return negErr(werr)
	}
	return int32(wrote)
}

func (s *Syscalls) sysFork(p *proc.PCB) int32 {
	child, err := s.Table.Fork(p, s.Vmm, s.ResumeChild)
	if err != 0 {
		return negErr(err)
	}
	return int32(child.Pid)
}

func (s *Syscalls) sysClone(p *proc.PCB) int32 {
	newStack := p.Tf.Ebx
	entry := p.Tf.Ecx
	child, err := s.Table.Clone(p, s.Vmm, newStack, entry, s.ResumeChild)
	if err != 0 {
		return negErr(err)
	}
	return int32(child.Pid)
}

func (s *Syscalls) sysWait(p *proc.PCB) int32 {
	statusVA := p.Tf.Ebx
	pid, status, err := s.Table.Wait(p, s.Vmm)
	if err != 0 {
		return negErr(err)
	}
	if statusVA != 0 {
		buf := []byte{byte(status), byte(status >> 8), byte(status >> 16), byte(status >> 24)}
		ustr.CopyOut(s.Vmm, p.AS, statusVA, buf)
	}
	return int32(pid)
}

func (s *Syscalls) sysExec(p *proc.PCB) int32 {
	pathVA := p.Tf.Ebx
	pathLen := int(p.Tf.Ecx)
	raw, err := ustr.CopyIn(s.Vmm, p.AS, pathVA, pathLen)
	if err != 0 {
		return negErr(err)
	}
	path := string(raw)

	err = s.Table.Exec(p, path, s.loadImage, s.UserStackTop)
	if err != 0 {
		return negErr(err)
	}
	return 0
}

// loadImage adapts fs.Filesystem + elf32.Load into a proc.ExecLoader:
// resolve path, read its contents, and map it into dir.
func (s *Syscalls) loadImage(dir mem.Pa_t, path string) (uint32, defs.Err_t) {
	inode, err := s.FS.Find(path)
	if err != 0 {
		return 0, err
	}
	data, err := s.FS.Read(inode)
	if err != 0 {
		return 0, err
	}
	return elf32.Load(data, s.Vmm, dir)
}

func (s *Syscalls) sysFutexWait(p *proc.PCB) int32 {
	addr := p.Tf.Ebx
	expected := p.Tf.Ecx
	read := ustr.MemReaderFor(s.Vmm, p.AS)
	return negErr(s.Futex.Wait(addr, expected, read))
}

func (s *Syscalls) sysLs(p *proc.PCB) int32 {
	bufVA := p.Tf.Ebx
	bufSz := int(p.Tf.Ecx)
	names, err := s.FS.List()
	if err != 0 {
		return negErr(err)
	}
	joined := ""
	for i, n := range names {
		if i > 0 {
			joined += "\n"
		}
		joined += n
	}
	out := []byte(joined)
	if len(out) > bufSz {
		out = out[:bufSz]
	}
	if err := ustr.CopyOut(s.Vmm, p.AS, bufVA, out); err != 0 {
		return negErr(err)
	}
	return int32(len(out))
}
