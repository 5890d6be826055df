package fd

import "testing"

import "kernelcore/defs"

type fakeOps struct {
	written []byte
	closed  bool
}

func (f *fakeOps) Read(buf []byte) (int, defs.Err_t)  { return 0, defs.EINVAL }
func (f *fakeOps) Write(buf []byte) (int, defs.Err_t) { f.written = append(f.written, buf...); return len(buf), 0 }
func (f *fakeOps) Close() defs.Err_t                  { f.closed = true; return 0 }

func TestInstallGetClose(t *testing.T) {
	tbl := NewTable()
	ops := &fakeOps{}
	idx, err := tbl.Install(&Fd_t{Ops: ops, Perms: FD_WRITE})
	if err != 0 {
		t.Fatalf("unexpected error: %d", err)
	}
	if got := tbl.Get(idx); got == nil || got.Ops != ops {
		t.Fatalf("expected Get to return the installed entry")
	}
	if err := tbl.Close(idx); err != 0 {
		t.Fatalf("unexpected close error: %d", err)
	}
	if !ops.closed {
		t.Fatalf("expected underlying Ops.Close to run")
	}
	if tbl.Get(idx) != nil {
		t.Fatalf("expected slot to be empty after close")
	}
}

func TestInstallFullTableReturnsEAGAIN(t *testing.T) {
	tbl := NewTable()
	for i := 0; i < MaxFds; i++ {
		if _, err := tbl.Install(&Fd_t{Ops: &fakeOps{}}); err != 0 {
			t.Fatalf("unexpected error filling table at %d: %d", i, err)
		}
	}
	if _, err := tbl.Install(&Fd_t{Ops: &fakeOps{}}); err != defs.EAGAIN {
		t.Fatalf("expected EAGAIN once full, got %d", err)
	}
}

func TestCloneSharesOpsByReference(t *testing.T) {
	tbl := NewTable()
	ops := &fakeOps{}
	idx, _ := tbl.Install(&Fd_t{Ops: ops, Perms: FD_READ | FD_WRITE})

	clone := tbl.Clone()
	cloned := clone.Get(idx)
	if cloned == nil || cloned.Ops != ops {
		t.Fatalf("expected clone to share the same Ops value")
	}

	// Closing in the parent must not affect the clone's independent entry.
	tbl.Close(idx)
	if clone.Get(idx) == nil {
		t.Fatalf("expected clone's descriptor to survive the parent closing its own")
	}
}

func TestGetOutOfRange(t *testing.T) {
	tbl := NewTable()
	if tbl.Get(-1) != nil || tbl.Get(MaxFds) != nil {
		t.Fatalf("expected nil for out-of-range indices")
	}
}
