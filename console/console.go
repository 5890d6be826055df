// Package console implements the kernel's text output contract: a Writer
// interface the VGA/serial driver satisfies, and a Console wrapper that
// mirrors every write to a secondary Writer (spec.md section 6 external
// interfaces). Grounded on the teacher's console write path shape
// (biscuit's Cons_t ties a write function to the WRITE syscall for
// fd 1) but expressed as plain interfaces rather than a global.
package console

import "kernelcore/defs"

/// Writer is anything that can display a string, standing in for the
/// VGA text-mode driver this teaching kernel does not implement
/// (spec.md section 1's explicit non-goal).
type Writer interface {
	WriteString(s string) (int, error)
}

/// Console writes to a primary Writer and, through Mirror, optionally
/// sends a copy of everything written there to a second Writer, matching
/// the teacher's practice of echoing kernel console output to the serial
/// port for headless debugging.
type Console struct {
	Primary Writer
	Mirror  Writer /// nil if no mirror is configured
}

/// New constructs a Console writing to primary and, if mirror is
/// non-nil, echoing every write to it as well.
func New(primary Writer, mirror Writer) *Console {
	return &Console{Primary: primary, Mirror: mirror}
}

/// WriteString writes s to the primary writer and its mirror, if any.
/// The primary's error, if any, is returned; a mirror failure is not
/// fatal to the write (diagnostics output must not itself wedge the
/// kernel).
func (c *Console) WriteString(s string) (int, error) {
	n, err := c.Primary.WriteString(s)
	if c.Mirror != nil {
		c.Mirror.WriteString(s)
	}
	return n, err
}

/// Fd adapts a Console to the fd.Ops interface for fd 1 (spec.md section
/// 4.7): writable, not readable. Named Fd rather than implementing
/// fd.Ops on Console directly so Console stays a plain Writer elsewhere.
type Fd struct {
	*Console
}

/// Read always fails: the console is write-only.
func (f *Fd) Read(buf []byte) (int, defs.Err_t) { return 0, defs.EINVAL }

/// Write sends buf's bytes to the console.
func (f *Fd) Write(buf []byte) (int, defs.Err_t) {
	n, err := f.WriteString(string(buf))
	if err != nil {
		return n, defs.EFAULT
	}
	return n, 0
}

/// Close is a no-op: the console is a singleton with no per-fd state.
func (f *Fd) Close() defs.Err_t { return 0 }
