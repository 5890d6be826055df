// Package defs holds the small cross-cutting types and constants shared by
// every other kernel package: error codes, process/thread identifiers, and
// the syscall numbers recognized by trap dispatch.
package defs

/// Err_t is a kernel error code: zero means success, nonzero identifies a
/// failure by magnitude (see the constants below). Kernel-internal APIs
/// return Err_t instead of Go's error interface to match the
/// single-integer-return shape of the syscall boundary they ultimately
/// serve; trap negates a nonzero Err_t before writing it into a
/// trapframe's return register, matching the negative-errno convention a
/// user-mode caller expects.
type Err_t int

// Error codes returned across the syscall boundary and by internal kernel
// services. Values are arbitrary but stable within this module.
const (
	ENOMEM  Err_t = 1 /// out of physical memory or heap space
	EFAULT  Err_t = 2 /// bad user pointer or address-space violation
	EINVAL  Err_t = 3 /// invalid argument
	ENOENT  Err_t = 4 /// file or child process not found
	ECHILD  Err_t = 5 /// wait() called with no children
	EAGAIN  Err_t = 6 /// resource table full (fd table or process limit)
	ECORRUPT Err_t = 7 /// heap or page-table corruption detected
)

/// Pid_t identifies a process. Pid 0 is always the initial kernel process.
type Pid_t int

/// Tid_t identifies a kernel thread created via Clone. For a non-threaded
/// process Tid_t equals its Pid_t.
type Tid_t int

// Syscall numbers, matching spec.md section 4.5.
const (
	SYS_READ       = 0
	SYS_WRITE      = 1
	SYS_EXIT       = 2
	SYS_EXEC       = 3
	SYS_FORK       = 4
	SYS_WAIT       = 5
	SYS_CLONE      = 10
	SYS_FUTEX_WAIT = 11
	SYS_FUTEX_WAKE = 12
	SYS_LS         = 13
)

// Device numbers used by the fd layer (fd 0 = keyboard, fd 1 = console).
const (
	DEV_CONSOLE = 1
	DEV_KEYBOARD = 2
)
