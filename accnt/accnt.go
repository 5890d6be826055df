// Package accnt tracks per-process CPU-time accounting, adapted from the
// teacher's Accnt_t (biscuit accnt/accnt.go). It is not required by any
// operation in spec.md, but every PCB the teacher models carries one, and
// tools/kstat exports these counters as part of its pprof-profile dump
// (SPEC_FULL.md section 4 domain stack).
package accnt

import (
	"sync"
	"sync/atomic"
	"time"
)

/// Accnt_t accumulates user and system time for one process, in
/// nanoseconds. The embedded mutex lets callers take a consistent
/// snapshot when exporting usage statistics.
type Accnt_t struct {
	Userns int64
	Sysns  int64
	sync.Mutex
}

/// Utadd adds delta nanoseconds to the user-time counter.
func (a *Accnt_t) Utadd(delta int64) {
	atomic.AddInt64(&a.Userns, delta)
}

/// Systadd adds delta nanoseconds to the system-time counter.
func (a *Accnt_t) Systadd(delta int64) {
	atomic.AddInt64(&a.Sysns, delta)
}

/// Now returns the current time in nanoseconds since the epoch. Kept as a
/// method (rather than a bare time.Now call at each site) so tests can
/// wrap an Accnt_t with a fixed clock if needed.
func (a *Accnt_t) Now() int64 {
	return time.Now().UnixNano()
}

/// Snapshot returns a consistent (Userns, Sysns) pair.
func (a *Accnt_t) Snapshot() (int64, int64) {
	a.Lock()
	defer a.Unlock()
	return atomic.LoadInt64(&a.Userns), atomic.LoadInt64(&a.Sysns)
}
