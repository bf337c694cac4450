// Package ringbuf provides a bounded FIFO ring buffer that evicts its oldest
// element on overflow. It backs the rolling bar history: memory stays
// O(capacity) no matter how long the stream runs.
//
// Ring is not safe for concurrent use; its owner serializes access.
package ringbuf

// Ring is a fixed-capacity FIFO. Push on a full ring overwrites the oldest
// element.
type Ring[T any] struct {
	buf  []T
	head int // index of the oldest element
	size int

	evicted uint64
}

// New creates a ring holding at most capacity elements. Minimum capacity is 1.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v. If the ring is full the oldest element is evicted and
// returned with true.
func (r *Ring[T]) Push(v T) (T, bool) {
	var old T
	if r.size < len(r.buf) {
		r.buf[(r.head+r.size)%len(r.buf)] = v
		r.size++
		return old, false
	}
	old = r.buf[r.head]
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	r.evicted++
	return old, true
}

// At returns the i-th element, 0 being the oldest. It panics if i is out of range.
func (r *Ring[T]) At(i int) T {
	if i < 0 || i >= r.size {
		panic("ringbuf: index out of range")
	}
	return r.buf[(r.head+i)%len(r.buf)]
}

// Last returns the newest element, or false if the ring is empty.
func (r *Ring[T]) Last() (T, bool) {
	if r.size == 0 {
		var zero T
		return zero, false
	}
	return r.At(r.size - 1), true
}

// Slice copies the contents oldest-first into a new slice.
func (r *Ring[T]) Slice() []T {
	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// Tail copies the newest n elements oldest-first. n larger than Len returns everything.
func (r *Ring[T]) Tail(n int) []T {
	if n > r.size {
		n = r.size
	}
	if n <= 0 {
		return nil
	}
	out := make([]T, n)
	start := r.size - n
	for i := 0; i < n; i++ {
		out[i] = r.buf[(r.head+start+i)%len(r.buf)]
	}
	return out
}

// Reset empties the ring without releasing its storage.
func (r *Ring[T]) Reset() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.head, r.size = 0, 0
}

// Len returns the current number of elements.
func (r *Ring[T]) Len() int { return r.size }

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Full reports whether the next Push will evict.
func (r *Ring[T]) Full() bool { return r.size == len(r.buf) }

// Evicted returns the total number of elements dropped on overflow.
func (r *Ring[T]) Evicted() uint64 { return r.evicted }
