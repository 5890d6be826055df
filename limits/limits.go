// Package limits tracks system-wide resource limits, adapted from the
// teacher's Syslimit_t (biscuit limits/limits.go) and trimmed to the
// resources this kernel actually has: processes and futex wait queues.
// The teacher's Sysatomic_t casts a struct field to *int64 via
// unsafe.Pointer to get an atomic counter; this version uses
// sync/atomic.Int64 directly, which gives the same semantics without an
// unsafe cast (no suitable third-party counter type exists in the
// retrieved pack for this, so stdlib atomic is the right call here).
package limits

import "sync/atomic"

/// Lhits counts how many times a caller was refused because a limit was
/// already exhausted, for diagnostics (tools/kstat).
var Lhits int64

/// Sysatomic_t is a resource count that can be atomically given back or
/// taken, refusing to go negative.
type Sysatomic_t struct {
	v atomic.Int64
}

/// Given increases the count by n.
func (s *Sysatomic_t) Given(n int64) {
	s.v.Add(n)
}

/// Taken attempts to decrement the count by n, refusing (and restoring
/// the count) if that would make it negative.
func (s *Sysatomic_t) Taken(n int64) bool {
	if s.v.Add(-n) >= 0 {
		return true
	}
	s.v.Add(n)
	atomic.AddInt64(&Lhits, 1)
	return false
}

/// Take decrements the count by one.
func (s *Sysatomic_t) Take() bool { return s.Taken(1) }

/// Give increments the count by one.
func (s *Sysatomic_t) Give() { s.Given(1) }

/// Value reports the current count.
func (s *Sysatomic_t) Value() int64 { return s.v.Load() }

/// Syslimit_t holds the configured ceilings for this kernel's two
/// countable resources (spec.md's process table and futex wait-queue
/// table).
type Syslimit_t struct {
	Sysprocs Sysatomic_t /// initialized to proc.MaxProcs by cmd/kernel
	Futexes  Sysatomic_t /// initialized to a configured ceiling
}

/// MkSysLimit constructs a Syslimit_t with the given process and futex
/// ceilings already credited.
func MkSysLimit(maxProcs, maxFutexes int64) *Syslimit_t {
	sl := &Syslimit_t{}
	sl.Sysprocs.Given(maxProcs)
	sl.Futexes.Given(maxFutexes)
	return sl
}
