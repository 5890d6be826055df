// Package proc implements the process table and cooperative scheduler:
// the PCB, fork/clone/exec/exit/wait, and the round-robin Schedule
// algorithm spec.md section 4.4 describes. Grounded on the teacher's
// proc_t / Proc_t bookkeeping (biscuit's tinfo/accnt pairing a thread
// table with per-process accounting) and on gopher-os's placeholder
// yieldFn wiring (kernel/sync/spinlock.go), which proc.Init completes by
// installing real Current/Reschedule hooks into ksync.
//
// A real context switch saves and restores CPU registers in assembly;
// none of that is expressible in portable, never-executed Go. Design
// Notes section 9 calls exactly this seam out as inherently
// non-typesafe. This package's adaptation is to model each task as a
// goroutine and the context switch as a handoff over a pair of
// capacity-1 channels: Schedule() wakes the chosen task's goroutine and,
// unless the outgoing task has exited, blocks the caller on its own
// channel until it is chosen again. Exactly one task's goroutine ever
// runs past its wait point at a time, so the PCB table, wait queues, and
// round-robin ordering are exercised with the same interleavings a real
// preemptive scheduler would produce, deterministically and testably.
package proc

import (
	"kernelcore/accnt"
	"kernelcore/defs"
	"kernelcore/fd"
	"kernelcore/ksync"
	"kernelcore/limits"
	"kernelcore/mem"
	"kernelcore/vm"
)

/// MaxProcs bounds the process table, matching spec.md's fixed-size PCB
/// array rather than an unbounded slice (section 4.4 data model).
const MaxProcs = 64

/// State is a PCB's scheduling state (spec.md section 4.4).
type State int

const (
	READY State = iota
	RUNNING
	BLOCKED
	TERMINATED
)

/// Trapframe holds the saved user-mode register state spec.md section 4.2
/// describes a page fault (and every syscall) trapping through. Fork
/// copies it into the child with Eax cleared; exec overwrites it wholesale
/// with the new image's entry point and stack.
type Trapframe struct {
	Eax, Ebx, Ecx, Edx uint32
	Esi, Edi, Ebp      uint32
	Eip                uint32
	UserEsp            uint32
	Eflags             uint32
}

/// PCB is one process (or kernel/user thread)'s control block: scheduling
/// state, address space, saved trapframe, accounting, and the wait-queue
/// and process-list linkage spec.md section 4.4 specifies. It implements
/// ksync.Waiter so the blocking primitives can enqueue and wake it without
/// importing this package.
type PCB struct {
	Pid  defs.Pid_t
	Ppid defs.Pid_t

	State    State
	ExitCode int

	AS mem.Pa_t /// physical address of this task's page directory
	Tf Trapframe

	Accnt accnt.Accnt_t
	Fds   *fd.Table /// per-process file-descriptor table (spec.md section 4.7)

	next, prev *PCB         /// process-list linkage (scheduler iteration order)
	waitNext   ksync.Waiter /// FIFO wait-queue linkage (ksync.Sema/FutexTable)

	resume chan struct{} /// context-switch handoff token
}

/// Block marks the PCB blocked. Called by ksync when this task enqueues
/// itself on a semaphore, mutex, or futex wait queue.
func (p *PCB) Block() { p.State = BLOCKED }

/// Ready marks the PCB ready to run again.
func (p *PCB) Ready() { p.State = READY }

/// SetWaitNext sets this PCB's wait-queue successor.
func (p *PCB) SetWaitNext(w ksync.Waiter) { p.waitNext = w }

/// WaitNext returns this PCB's wait-queue successor.
func (p *PCB) WaitNext() ksync.Waiter { return p.waitNext }

/// Table is the kernel's process table: a fixed-capacity pid-indexed
/// array (spec.md section 4.4) plus a doubly-linked list giving the
/// scheduler a stable round-robin iteration order, matching the teacher's
/// separation of a lookup table from list-ordered traversal.
type Table struct {
	procs   [MaxProcs]*PCB
	nextPid defs.Pid_t

	current              *PCB
	headList, tailList   *PCB

	lock ksync.IRQLock

	/// AckPIC, when non-nil, is invoked by Tick before rescheduling,
	/// standing in for the timer IRQ handler's EOI write (spec.md
	/// section 4.4: "acknowledges the PIC first").
	AckPIC func()

	/// Limits, when non-nil, caps the number of live processes
	/// (limits.Syslimit_t.Sysprocs); Fork/Clone refuse with EAGAIN once
	/// it is exhausted rather than growing the table without bound.
	Limits *limits.Syslimit_t

	/// lastSwitch is the timestamp (accnt.Accnt_t.Now) the currently
	/// running task started its quantum, so Schedule can credit it with
	/// the wall-clock time it actually held the CPU before handing off.
	lastSwitch int64
}

/// Init creates the process table with pid 0 — the calling goroutine
/// itself, already RUNNING, owning initialAS — as the sole process, and
/// installs this table's Current/Reschedule into ksync so the blocking
/// primitives (section 4.6) can suspend and resume tasks without a direct
/// import of this package (see the package doc and gopher-os's yieldFn).
func Init(initialAS mem.Pa_t) *Table {
	t := &Table{nextPid: 1}
	pcb0 := &PCB{
		Pid:    0,
		Ppid:   0,
		State:  RUNNING,
		AS:     initialAS,
		resume: newSwitchToken(),
	}
	t.procs[0] = pcb0
	t.current = pcb0
	t.headList = pcb0
	t.tailList = pcb0
	t.lastSwitch = pcb0.Accnt.Now()

	ksync.Current = func() ksync.Waiter { return t.current }
	ksync.Reschedule = t.Schedule
	return t
}

/// Current returns the PCB presently selected as running.
func (t *Table) Current() *PCB { return t.current }

/// Lookup returns the PCB for pid, or nil if none exists (spec.md's
/// process table is pid-indexed; reused pids are not supported at this
/// kernel's scale, so the index is pid modulo MaxProcs).
func (t *Table) Lookup(pid defs.Pid_t) *PCB {
	pcb := t.procs[int(pid)%MaxProcs]
	if pcb != nil && pcb.Pid == pid {
		return pcb
	}
	return nil
}

func (t *Table) allocPCB() (*PCB, defs.Err_t) {
	if t.Limits != nil && !t.Limits.Sysprocs.Taken(1) {
		return nil, defs.EAGAIN
	}
	pid := t.nextPid
	t.nextPid++
	pcb := &PCB{Pid: pid, State: READY, resume: newSwitchToken()}
	t.procs[int(pid)%MaxProcs] = pcb
	return pcb, 0
}

func (t *Table) appendList(pcb *PCB) {
	pcb.prev = t.tailList
	pcb.next = nil
	if t.tailList != nil {
		t.tailList.next = pcb
	} else {
		t.headList = pcb
	}
	t.tailList = pcb
}

func (t *Table) removeList(pcb *PCB) {
	if pcb.prev != nil {
		pcb.prev.next = pcb.next
	} else {
		t.headList = pcb.next
	}
	if pcb.next != nil {
		pcb.next.prev = pcb.prev
	} else {
		t.tailList = pcb.prev
	}
}

// pickNext implements spec.md section 4.4's scan: starting at cur.next
// (wrapping to the list head if nil), advance until a READY or RUNNING
// PCB is found; if the scan cycles back to its own starting point without
// finding one, report that no switch is possible.
func (t *Table) pickNext(cur *PCB) *PCB {
	start := cur.next
	if start == nil {
		start = t.headList
	}
	candidate := start
	for candidate != nil {
		if candidate.State == READY || candidate.State == RUNNING {
			return candidate
		}
		next := candidate.next
		if next == nil {
			next = t.headList
		}
		if next == start {
			return nil
		}
		candidate = next
	}
	return nil
}

/// Schedule runs the round-robin selection algorithm (spec.md section
/// 4.4): pick the next READY-or-RUNNING PCB after current, and if it
/// differs from current, hand control to it. The caller is expected to
/// have already updated its own PCB's State (BLOCKED, TERMINATED, or left
/// RUNNING for a voluntary yield) before calling.
//
// If no other runnable task exists, Schedule returns without switching,
// which only matters when the caller voluntarily yielded while still
// RUNNING (round-robin with a single task is a no-op); a task that
// blocked with nothing else runnable would stall forever; spec.md never
// places this kernel in that state in any of its scenarios, and the
// table always contains at least pid 0.
func (t *Table) Schedule() {
	t.lock.Lock()
	cur := t.current
	next := t.pickNext(cur)
	switchNeeded := next != nil && next != cur
	if switchNeeded {
		now := cur.Accnt.Now()
		cur.Accnt.Utadd(now - t.lastSwitch)
		t.lastSwitch = now
		next.State = RUNNING
		t.current = next
	}
	t.lock.Unlock()

	if !switchNeeded {
		return
	}
	next.resume <- struct{}{}
	if cur.State != TERMINATED {
		<-cur.resume
	}
}

/// Tick is the timer-IRQ entry point: it acknowledges the PIC (if AckPIC
/// is wired) and reschedules, matching spec.md section 4.4's preemption
/// path. The currently running task stays RUNNING (and so remains
/// eligible to be picked again next tick) unless something else already
/// changed its state.
func (t *Table) Tick() {
	if t.AckPIC != nil {
		t.AckPIC()
	}
	t.Schedule()
}

// spawn launches the goroutine backing a freshly created PCB: it blocks
// until first scheduled, runs run (the task's entire body — the
// adaptation of a forged kernel-thread stack plus trampoline, see the
// package doc), and then exits the task with status 0 if run returns.
func (t *Table) spawn(pcb *PCB, run func(*PCB)) {
	go func() {
		<-pcb.resume
		if run != nil {
			run(pcb)
		}
		if pcb.State != TERMINATED {
			t.Exit(pcb, 0)
		}
	}()
}

/// Fork creates a child PCB that is a copy-on-write duplicate of parent's
/// address space (spec.md section 4.1 invariant 4 / section 4.2), copying
/// parent's trapframe into the child with Eax cleared to 0 (the child's
/// view of fork's return value; trap sets the parent's Eax to the child's
/// pid). run is the child's entire body, standing in for "resume
/// execution at the saved trapframe" (see the package doc); trap's
/// SYS_FORK handler passes its Syscalls.ResumeChild, and tests can supply
/// a plain closure. A nil run makes the child exit with status 0 the first
/// time it is scheduled.
func (t *Table) Fork(parent *PCB, vmm *vm.Vmm, run func(child *PCB)) (*PCB, defs.Err_t) {
	childAS, err := vmm.Clone(parent.AS)
	if err != 0 {
		return nil, err
	}

	t.lock.Lock()
	child, aerr := t.allocPCB()
	if aerr != 0 {
		t.lock.Unlock()
		vmm.Free(childAS)
		return nil, aerr
	}
	child.Ppid = parent.Pid
	child.AS = childAS
	child.Tf = parent.Tf
	child.Tf.Eax = 0
	if parent.Fds != nil {
		child.Fds = parent.Fds.Clone()
	}
	t.appendList(child)
	t.lock.Unlock()

	t.spawn(child, run)
	return child, 0
}

/// Clone creates a new kernel/user thread sharing parent's address space
/// outright (no COW): the directory's PMM refcount is bumped rather than
/// cloning page tables, matching spec.md section 4.2's note that thread
/// creation shares an address space by reference. newStack and entry seed
/// the child's trapframe for a fresh thread (clone's C-library contract);
/// run is the thread's body.
func (t *Table) Clone(parent *PCB, vmm *vm.Vmm, newStack, entry uint32, run func(child *PCB)) (*PCB, defs.Err_t) {
	vmm.Phys.IncRef(parent.AS)

	t.lock.Lock()
	child, aerr := t.allocPCB()
	if aerr != 0 {
		t.lock.Unlock()
		vmm.Phys.Free(parent.AS)
		return nil, aerr
	}
	child.Ppid = parent.Pid
	child.AS = parent.AS
	child.Tf = parent.Tf
	child.Tf.Eip = entry
	child.Tf.UserEsp = newStack
	child.Tf.Ebp = 0
	child.Tf.Eax = 0
	child.Fds = parent.Fds /// threads share one fd table by reference
	t.appendList(child)
	t.lock.Unlock()

	t.spawn(child, run)
	return child, 0
}

// ExecLoader loads an executable image into dir, returning its entry
// point. trap wires this to fs.Filesystem + elf32.Load; tests can supply
// a stub.
type ExecLoader func(dir mem.Pa_t, path string) (entry uint32, err defs.Err_t)

/// Exec replaces proc's address space contents with a freshly loaded
/// image (spec.md section 4.1): load runs with interrupts held off for
/// the duration (modeled here as a single uninterrupted call, since no
/// other goroutine can observe proc's address space mid-load), and on
/// success proc's trapframe is rewritten to start at the image's entry
/// point with general-purpose registers cleared. Failure leaves proc's
/// existing image and trapframe untouched.
func (t *Table) Exec(proc *PCB, path string, load ExecLoader, userStackTop uint32) defs.Err_t {
	t.lock.Lock()
	entry, err := load(proc.AS, path)
	if err != 0 {
		t.lock.Unlock()
		return err
	}
	proc.Tf = Trapframe{Eip: entry, UserEsp: userStackTop}
	t.lock.Unlock()
	return 0
}

// findTerminatedChild scans the process table for a child of parent,
// reporting the first TERMINATED one found (if any) and whether parent
// has any children at all (terminated or not). pid 0 is its own parent
// and is excluded to avoid treating it as a child of itself.
func (t *Table) findTerminatedChild(parent defs.Pid_t) (child *PCB, anyChildren bool) {
	for _, pcb := range t.procs {
		if pcb == nil || pcb.Pid == parent || pcb.Ppid != parent {
			continue
		}
		anyChildren = true
		if pcb.State == TERMINATED && child == nil {
			child = pcb
		}
	}
	return child, anyChildren
}

/// Wait blocks proc until one of its children exits, then reaps it:
/// removes it from the process table and frees its address space
/// (spec.md section 4.1's "unlink and free" zombie-reaping discipline,
/// settling the leak-vs-free variant of section 9's open question in
/// favor of freeing). Returns ECHILD immediately if proc has no children
/// at all.
func (t *Table) Wait(proc *PCB, vmm *vm.Vmm) (defs.Pid_t, int, defs.Err_t) {
	for {
		t.lock.Lock()
		child, any := t.findTerminatedChild(proc.Pid)
		if child != nil {
			status := child.ExitCode
			pid := child.Pid
			t.removeList(child)
			t.procs[int(child.Pid)%MaxProcs] = nil
			if t.Limits != nil {
				t.Limits.Sysprocs.Give()
			}
			t.lock.Unlock()
			vmm.Free(child.AS)
			return pid, status, 0
		}
		if !any {
			t.lock.Unlock()
			return -1, 0, defs.ECHILD
		}
		proc.State = BLOCKED
		t.lock.Unlock()
		t.Schedule()
	}
}

/// Exit marks proc TERMINATED with the given status, wakes its parent if
/// the parent is blocked in Wait, and reschedules away from proc for the
/// last time. Schedule never blocks a TERMINATED task on its own resume
/// channel, so control returns here only to let proc's goroutine unwind;
/// real x86 code never returns from exit at all, the closest this
/// goroutine-per-task model comes to that is simply not running again.
func (t *Table) Exit(proc *PCB, code int) {
	t.lock.Lock()
	proc.ExitCode = code
	proc.State = TERMINATED
	if parent := t.procs[int(proc.Ppid)%MaxProcs]; parent != nil && parent.State == BLOCKED {
		parent.State = READY
	}
	t.lock.Unlock()
	t.Schedule()
}

/// CreateKernelThread starts a new thread sharing parent's address space
/// (via Clone) whose entire body is entry; it is the adaptation of
/// spec.md section 4.4's "forge an initial kernel stack and jump to the
/// supplied entry point" for kernel-internal worker tasks (as opposed to
/// user-facing clone(2), which also seeds a user stack/entry via Clone).
func (t *Table) CreateKernelThread(parent *PCB, vmm *vm.Vmm, entry func()) (*PCB, defs.Err_t) {
	return t.Clone(parent, vmm, 0, 0, func(*PCB) { entry() })
}
