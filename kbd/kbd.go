// Package kbd implements the keyboard input contract: an IRQ-side
// producer feeding a circbuf ring buffer, and a blocking consumer side
// for the READ syscall on fd 0 (spec.md section 4.5/4.9). Grounded on
// the teacher's keyboard IRQ handler shape (feeds bytes into a consumer
// buffer, wakes blocked readers) without the teacher's full TTY line
// discipline, which is out of scope.
package kbd

import (
	"kernelcore/circbuf"
	"kernelcore/defs"
	"kernelcore/ksync"
)

/// Source is a byte-producing input device; the keyboard driver's IRQ
/// handler is the only intended implementer in a real boot, but tests
/// drive Keyboard.Feed directly instead of a Source.
type Source interface {
	// Poll returns the scancodes available since the last call, or nil
	// if none. Called from the IRQ handler's context.
	Poll() []uint8
}

/// Keyboard buffers bytes produced by the IRQ handler and serves blocking
/// reads: a reader blocked on an empty buffer waits on a semaphore the
/// IRQ handler signals once per byte delivered.
type Keyboard struct {
	buf   *circbuf.Circbuf_t
	ready *ksync.Sema
}

/// New constructs a Keyboard with the given ring-buffer capacity.
func New(bufsize int) *Keyboard {
	return &Keyboard{buf: circbuf.New(bufsize), ready: ksync.NewSema(0)}
}

/// Feed is called from the keyboard IRQ handler's context with newly
/// arrived scancodes. Bytes past the ring buffer's capacity are dropped
/// (spec.md carries no flow-control story for the keyboard device).
func (k *Keyboard) Feed(bytes []uint8) {
	n := k.buf.Write(bytes)
	for i := 0; i < n; i++ {
		k.ready.Signal()
	}
}

/// Read blocks until at least one byte is available, then copies as many
/// buffered bytes as fit into dst. spec.md section 4.5 describes fd 0's
/// READ as delivering one character into buf[0]; this generalizes that
/// to an arbitrary-length dst (a 1-byte dst reproduces the spec's literal
/// behavior exactly), matching the teacher's READ contract for other fds.
func (k *Keyboard) Read(dst []uint8) (int, defs.Err_t) {
	if len(dst) == 0 {
		return 0, 0
	}
	k.ready.Wait()
	n := k.buf.Read(dst)
	if n == 0 {
		// Raced with another reader that drained the buffer first;
		// the semaphore token we consumed belonged to a byte they
		// already took. Return 0 rather than block again, consistent
		// with a short read being legal for a device fd.
		return 0, 0
	}
	for i := 1; i < n; i++ {
		// Drain the extra tokens this read's bytes already cover so
		// the semaphore's value matches the buffer's contents.
		k.ready.Wait()
	}
	return n, 0
}

/// Fd adapts a Keyboard to the fd.Ops interface for fd 0 (spec.md
/// section 4.7): readable, not writable.
type Fd struct {
	*Keyboard
}

/// Read blocks for at least one byte, per Keyboard.Read.
func (f *Fd) Read(buf []byte) (int, defs.Err_t) { return f.Keyboard.Read(buf) }

/// Write always fails: the keyboard is read-only.
func (f *Fd) Write(buf []byte) (int, defs.Err_t) { return 0, defs.EINVAL }

/// Close is a no-op: the keyboard is a singleton with no per-fd state.
func (f *Fd) Close() defs.Err_t { return 0 }
