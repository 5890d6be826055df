// Package oom implements the out-of-memory notification channel
// kernelctx wires into mem.Physmem_t.OnExhausted (spec.md section 4.1's
// ENOMEM edge case): when the frame allocator finds no free frame, a
// kernel reclaim task can be listening on Notifier.Ch instead of the
// allocation simply failing silently. Adapted from the teacher's
// oommsg.Oommsg_t/OomCh pair (biscuit mem/oommsg.go), generalized from a
// single package-level channel into a value callers construct and wire
// themselves, so tests don't share global state.
package oom

/// Msg is sent on a Notifier's channel when the allocator runs out of
/// frames. Need is how many frames the failed request wanted (always 1 in
/// this kernel's single-frame Alloc, kept as a field for a reclaimer that
/// might one day batch); Resume is closed by the reclaimer once it has
/// freed something, letting the hook's caller decide whether to retry.
type Msg struct {
	Need   int
	Resume chan bool
}

/// Notifier is the OOM signal a reclaim task listens on.
type Notifier struct {
	Ch chan Msg
}

/// NewNotifier constructs a Notifier with an unbuffered channel, like the
/// teacher's original OomCh: a message is only delivered to a reclaimer
/// already waiting to receive on Ch.
func NewNotifier() *Notifier {
	return &Notifier{Ch: make(chan Msg)}
}

/// Hook returns a func() suitable for mem.Physmem_t.OnExhausted: it sends
/// a Msg carrying a fresh Resume channel and waits for the reclaimer to
/// close it before returning, giving Alloc's caller a chance to retry
/// after reclaim runs. If no reclaimer is already waiting on Ch, the hook
/// is a silent no-op and the message is dropped
/// (OnExhausted firing with no reclaim task configured should not hang
/// the kernel).
func (n *Notifier) Hook() func() {
	return func() {
		msg := Msg{Need: 1, Resume: make(chan bool)}
		select {
		case n.Ch <- msg:
			<-msg.Resume
		default:
		}
	}
}
