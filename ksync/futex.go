package ksync

import (
	"kernelcore/defs"
	"kernelcore/hashtable"
)

/// MemReader reads a 4-byte word from a user virtual address, reporting
/// false if the address is not accessible. FutexTable uses it to perform
/// the atomic compare implied by "atomically check that *addr == expected"
/// (spec.md section 4.6) without needing to know how user memory is
/// mapped; trap wires this to vm/ustr's bounds-checked accessors.
type MemReader func(addr uint32) (uint32, bool)

type futexQueue struct {
	head, tail Waiter
}

/// FutexTable backs the FUTEX_WAIT/FUTEX_WAKE syscalls: a kernel wait
/// queue keyed by user virtual address, sharded via hashtable so waking
/// one address never walks another address's waiters (spec.md section 5
/// expansion).
type FutexTable struct {
	lock IRQLock
	ht   *hashtable.Hashtable_t
}

/// NewFutexTable constructs an empty futex registry.
func NewFutexTable() *FutexTable {
	return &FutexTable{ht: hashtable.New()}
}

/// Wait atomically checks that *addr == expected; if so it blocks the
/// calling task on addr's queue, otherwise it returns immediately without
/// blocking (spec.md section 4.6/7: a stale expected value is not an
/// error). Returns EFAULT if addr cannot be read.
func (ft *FutexTable) Wait(addr uint32, expected uint32, read MemReader) defs.Err_t {
	ft.lock.Lock()
	cur, ok := read(addr)
	if !ok {
		ft.lock.Unlock()
		return defs.EFAULT
	}
	if cur != expected {
		ft.lock.Unlock()
		return 0
	}

	qi := ft.ht.GetOrInsert(addr, func() interface{} { return &futexQueue{} })
	q := qi.(*futexQueue)
	self := Current()
	self.SetWaitNext(nil)
	if q.tail == nil {
		q.head = self
	} else {
		q.tail.SetWaitNext(self)
	}
	q.tail = self
	self.Block()
	// Interrupts stay disabled across Reschedule, same rationale as
	// Sema.Wait: no window exists for a concurrent Wake to be lost.
	Reschedule()
	return 0
}

/// Wake wakes one waiter queued on addr, if any (spec.md section 4.6).
func (ft *FutexTable) Wake(addr uint32) {
	ft.lock.Lock()
	defer ft.lock.Unlock()
	qi, ok := ft.ht.Get(addr)
	if !ok {
		return
	}
	q := qi.(*futexQueue)
	if q.head == nil {
		return
	}
	w := q.head
	q.head = w.WaitNext()
	if q.head == nil {
		q.tail = nil
	}
	w.SetWaitNext(nil)
	w.Ready()
}
