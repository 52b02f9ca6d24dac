package shm

import (
	"sync/atomic"
	"unsafe"
)

// Entry is a single fixed-size slot in a client's shared-memory segment.
// It holds the argument pair, the result, and the control fields from
// spec.md §3: a completion flag and a distinguished failure marker
// (Design Notes §9's recommended fix for never-satisfied requests).
//
// Per Design Notes §9, the completion flag is published with a release
// store and observed with an acquire load instead of wrapping the entry
// in a process-shared mutex — simpler, and sufficient because the only
// thing that needs ordering is "result bytes visible before Done==1".
type Entry struct {
	X      int64
	Y      int64
	Res    int64
	Done   int32
	Failed int32
	_      [8]byte // pad: 24 + 8 + 8 gives a 40-byte stride, a multiple of 8
}

// EntrySize is the wire/memory stride of one Entry. Resize and entry
// addressing both depend on this being exact.
const EntrySize = int(unsafe.Sizeof(Entry{}))

// IsDone reports whether the entry's result is ready. The acquire load
// pairs with Publish's release store: if IsDone observes true, the
// result fields above are guaranteed visible (invariant 3, spec.md §3).
func (e *Entry) IsDone() bool {
	return atomic.LoadInt32(&e.Done) == 1
}

// IsFailed reports whether the completed entry carries a failure marker
// instead of a real result (e.g. an unknown service selector).
func (e *Entry) IsFailed() bool {
	return atomic.LoadInt32(&e.Failed) == 1
}

// Reset clears an entry's control fields so it can be reused from the
// free list (invariant 2, spec.md §3: the flag is cleared only when the
// entry returns to the free list).
func (e *Entry) Reset(x, y int64) {
	atomic.StoreInt32(&e.Failed, 0)
	atomic.StoreInt32(&e.Done, 0)
	e.X = x
	e.Y = y
	e.Res = 0
}

// Publish writes the result and then flips the completion flag with a
// release store, so Res is visible before Done==1. A failure is
// published with PublishFailure instead.
func (e *Entry) Publish(res int64) {
	e.Res = res
	atomic.StoreInt32(&e.Done, 1)
}

// PublishFailure marks the entry as permanently failed (e.g. an unknown
// service selector) so a waiting client can surface a FATAL error
// instead of blocking forever (Design Notes §9 open question).
func (e *Entry) PublishFailure() {
	atomic.StoreInt32(&e.Failed, 1)
	atomic.StoreInt32(&e.Done, 1)
}
