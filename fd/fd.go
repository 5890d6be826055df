// Package fd implements the per-process file-descriptor table (spec.md
// section 4.7): a small fixed-size array of Fd_t entries, with fd 0/1
// pre-opened onto the keyboard/console external contracts for every
// process. Grounded on the teacher's Fd_t/Copyfd (biscuit fd/fd.go),
// trimmed of the path/cwd machinery the filesystem non-goal makes moot.
package fd

import "kernelcore/defs"

/// MaxFds bounds a process's file-descriptor table.
const MaxFds = 16

/// Ops is the operations a file descriptor's underlying object
/// implements — console, keyboard, or (once opened) a file from fs.
type Ops interface {
	Read(buf []byte) (int, defs.Err_t)
	Write(buf []byte) (int, defs.Err_t)
	Close() defs.Err_t
}

/// Fd_t is one open file descriptor.
type Fd_t struct {
	Ops   Ops
	Perms int
}

// Permission bits (spec.md section 4.7).
const (
	FD_READ  = 0x1
	FD_WRITE = 0x2
)

/// Table is a process's file-descriptor table. Entries are nil when
/// closed.
type Table struct {
	fds [MaxFds]*Fd_t
}

/// NewTable constructs an empty file-descriptor table.
func NewTable() *Table {
	return &Table{}
}

/// Install places fd into the first free slot, returning its index, or
/// EAGAIN if the table is full (spec.md section 4.7/4.5 OPEN-adjacent
/// failure mode — this kernel never implements OPEN itself; kernelctx.New
/// uses Install to open fd 0/1 on pid 0).
func (t *Table) Install(entry *Fd_t) (int, defs.Err_t) {
	for i, f := range t.fds {
		if f == nil {
			t.fds[i] = entry
			return i, 0
		}
	}
	return -1, defs.EAGAIN
}

/// Get returns the Fd_t at index, or nil if it is closed or
/// out of range.
func (t *Table) Get(index int) *Fd_t {
	if index < 0 || index >= MaxFds {
		return nil
	}
	return t.fds[index]
}

/// Close releases the descriptor at index.
func (t *Table) Close(index int) defs.Err_t {
	f := t.Get(index)
	if f == nil {
		return defs.EINVAL
	}
	err := f.Ops.Close()
	t.fds[index] = nil
	return err
}

/// Clone duplicates every open descriptor into a new Table, for fork
/// (spec.md section 4.7: "fork gives the child its own Fd_t table
/// entries pointing at the same underlying operations"). The teacher's
/// Copyfd calls Reopen to let stateful backends (e.g. pipe refcounts)
/// react to the duplication; this kernel's console/keyboard backends are
/// stateless singletons, so sharing the Ops value directly is sufficient.
func (t *Table) Clone() *Table {
	nt := &Table{}
	for i, f := range t.fds {
		if f == nil {
			continue
		}
		nt.fds[i] = &Fd_t{Ops: f.Ops, Perms: f.Perms}
	}
	return nt
}
