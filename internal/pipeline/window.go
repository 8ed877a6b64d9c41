package pipeline

import "sync"

// window is the admission gate that keeps the reorder buffer bounded: a
// worker may only decode and submit a block whose height falls inside
// [next, next+size). Workers holding a block beyond the window block here
// until the dispatcher releases enough lower heights, which also stops
// them from pre-decoding past what the buffer can hold.
type window struct {
	mu      sync.Mutex
	cond    *sync.Cond
	next    uint64
	size    uint64
	aborted bool
}

func newWindow(start uint64, size int) *window {
	w := &window{next: start, size: uint64(size)}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Acquire blocks until height is admissible or the run is aborted, and
// reports whether the caller may proceed.
func (w *window) Acquire(height uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for !w.aborted && height >= w.next+w.size {
		w.cond.Wait()
	}
	return !w.aborted
}

// Advance moves the window start to next (the lowest height not yet
// released to the consumer) and wakes every blocked worker.
func (w *window) Advance(next uint64) {
	w.mu.Lock()
	w.next = next
	w.mu.Unlock()
	w.cond.Broadcast()
}

// Abort wakes all blocked workers and makes every future Acquire fail, so
// a fatal error cannot leave a worker parked forever.
func (w *window) Abort() {
	w.mu.Lock()
	w.aborted = true
	w.mu.Unlock()
	w.cond.Broadcast()
}
