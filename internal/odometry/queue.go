package odometry

import "codeberg.org/mutker/swervectl/internal/device"

// Queue is a bounded FIFO of samples for one source. All access goes through
// the owning Thread, which serialises appends and drains on a single lock.
type Queue struct {
	owner   *Thread
	name    string
	buf     []float64
	head    int
	size    int
	dropped uint64

	signal   *device.Signal
	supplier func() (float64, bool)
	last     float64
	isTime   bool
}

func newQueue(owner *Thread, name string, capacity int) *Queue {
	return &Queue{owner: owner, name: name, buf: make([]float64, capacity)}
}

func (q *Queue) Name() string {
	return q.name
}

// Len returns the number of buffered samples.
func (q *Queue) Len() int {
	q.owner.mu.Lock()
	defer q.owner.mu.Unlock()
	return q.size
}

// Dropped returns how many samples overflow has discarded over the queue's
// lifetime.
func (q *Queue) Dropped() uint64 {
	q.owner.mu.Lock()
	defer q.owner.mu.Unlock()
	return q.dropped
}

// push appends v, discarding the oldest sample when full. It reports whether
// a sample was dropped. Callers hold the owner's lock.
func (q *Queue) push(v float64) bool {
	capacity := len(q.buf)
	if q.size == capacity {
		q.buf[q.head] = v
		q.head = (q.head + 1) % capacity
		q.dropped++
		return true
	}

	q.buf[(q.head+q.size)%capacity] = v
	q.size++

	return false
}

// drain copies out the buffered samples oldest first and empties the queue.
// Callers hold the owner's lock.
func (q *Queue) drain() []float64 {
	out := make([]float64, q.size)
	capacity := len(q.buf)
	for i := 0; i < q.size; i++ {
		out[i] = q.buf[(q.head+i)%capacity]
	}
	q.head = 0
	q.size = 0

	return out
}

// next computes this queue's value for a pass outside the lock.
func (q *Queue) next(timestamp float64) float64 {
	switch {
	case q.isTime:
		return timestamp
	case q.signal != nil:
		return q.signal.Value()
	case q.supplier != nil:
		if v, ok := q.supplier(); ok {
			q.last = v
		}
		return q.last
	default:
		return 0
	}
}
