package memory

// RetireRing is a bounded FIFO of retired objects awaiting reclamation.
// Single producer, single consumer; with the per-pool write lock held by
// both, no further synchronization is needed.
type RetireRing[T any] struct {
	head uint64
	tail uint64
	buf  []T
	mask uint64
}

func NewRetireRing[T any](size uint64) *RetireRing[T] {
	if size&(size-1) != 0 {
		panic("memory: RetireRing size must be a power of two")
	}
	return &RetireRing[T]{
		buf:  make([]T, size),
		mask: size - 1,
	}
}

func (r *RetireRing[T]) Enqueue(v T) bool {
	if r.head-r.tail == uint64(len(r.buf)) {
		return false
	}
	r.buf[r.head&r.mask] = v
	r.head++
	return true
}

// Dequeue removes the oldest entry. The second return is false when the
// ring is empty.
func (r *RetireRing[T]) Dequeue() (T, bool) {
	var zero T
	if r.tail == r.head {
		return zero, false
	}
	v := r.buf[r.tail&r.mask]
	r.buf[r.tail&r.mask] = zero
	r.tail++
	return v, true
}

// Requeue puts an entry back, behind everything currently queued. Age
// order is not preserved across a requeue; scans looking for reclaimable
// entries must bound themselves by Len instead of stopping at the first
// entry that is too new.
func (r *RetireRing[T]) Requeue(v T) bool {
	return r.Enqueue(v)
}

func (r *RetireRing[T]) Len() int {
	return int(r.head - r.tail)
}
