// package queue implements a fixed-capacity multi-producer/multi-consumer ring used for every cross-goroutine
// hand-off in the engine: input events, worker jobs, build completions, and free recording tokens.
package queue

import (
	"fmt"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-stage/engine/waitable"
	"golang.org/x/sys/cpu"
)

// turn encodes which side may act on a slot. Each lap around the ring uses one pair of values:
// writeReady(lap) for producers, readReady(lap) for consumers.
type turn = uint64

func writeReady(lap uint64) turn { return lap * 2 }

func readReady(lap uint64) turn { return lap*2 + 1 }

// slot is one cell of the ring. Its turn is the only synchronisation the value needs.
type slot[T any] struct {
	turn  waitable.Uint64
	value T
	_     cpu.CacheLinePad
}

// BoundedQueue is a fixed-capacity MPMC FIFO queue built on per-slot turn counters.
// Producers claim positions from head and consumers from tail; both counters grow forever and are reduced
// modulo the capacity to find a slot, with counter / capacity giving the lap.
//
// T should be a plain value type: handles and identities, never owning pointers.
type BoundedQueue[T any] struct {
	_        cpu.CacheLinePad
	head     atomic.Uint64
	_        cpu.CacheLinePad
	tail     atomic.Uint64
	_        cpu.CacheLinePad
	capacity uint64
	slots    []slot[T]
}

// NewBoundedQueue creates a new BoundedQueue holding at most capacity items.
// Panics if capacity is not positive.
//
// Parameters:
//   - capacity: the fixed number of slots in the ring
//
// Returns:
//   - *BoundedQueue[T]: the empty queue
func NewBoundedQueue[T any](capacity int) *BoundedQueue[T] {
	if capacity <= 0 {
		panic(fmt.Sprintf("queue: capacity must be positive, got %d", capacity))
	}
	return &BoundedQueue[T]{
		capacity: uint64(capacity),
		slots:    make([]slot[T], capacity),
	}
}

// Push appends item, blocking while the target slot still holds an unread value from the previous lap.
// Never fails.
//
// Parameters:
//   - item: the value to enqueue
func (q *BoundedQueue[T]) Push(item T) {
	pos := q.head.Add(1) - 1
	s, lap := q.locate(pos)

	want := writeReady(lap)
	s.turn.WaitUntil(func(v uint64) bool {
		q.checkTurn(v, want, pos)
		return v == want
	})
	s.value = item
	// Store wakes every waiter on the slot: consumers and later-lap producers can be parked on the same turn.
	s.turn.Store(readReady(lap))
}

// TryPush appends item only if the next slot is free right now.
// It may report false while other producers are racing for the same position, so false means
// "backpressure, retry or drop" rather than strictly "full".
//
// Parameters:
//   - item: the value to enqueue
//
// Returns:
//   - bool: true if the item was enqueued
func (q *BoundedQueue[T]) TryPush(item T) bool {
	pos := q.head.Load()
	for {
		s, lap := q.locate(pos)
		if s.turn.Load() == writeReady(lap) {
			if q.head.CompareAndSwap(pos, pos+1) {
				s.value = item
				s.turn.Store(readReady(lap))
				return true
			}
			pos = q.head.Load()
			continue
		}

		prev := pos
		pos = q.head.Load()
		if pos == prev {
			return false
		}
	}
}

// Pop removes and returns the oldest item, blocking until one is available.
//
// Returns:
//   - T: the dequeued value
func (q *BoundedQueue[T]) Pop() T {
	pos := q.tail.Add(1) - 1
	s, lap := q.locate(pos)

	want := readReady(lap)
	s.turn.WaitUntil(func(v uint64) bool {
		q.checkTurn(v, want, pos)
		return v == want
	})
	item := s.value
	var zero T
	s.value = zero
	s.turn.Store(writeReady(lap + 1))
	return item
}

// TryPop removes the oldest item only if it is readable right now.
// Like TryPush it may spuriously report false under contention.
//
// Returns:
//   - T: the dequeued value, or the zero value
//   - bool: true if an item was dequeued
func (q *BoundedQueue[T]) TryPop() (T, bool) {
	pos := q.tail.Load()
	for {
		s, lap := q.locate(pos)
		if s.turn.Load() == readReady(lap) {
			if q.tail.CompareAndSwap(pos, pos+1) {
				item := s.value
				var zero T
				s.value = zero
				s.turn.Store(writeReady(lap + 1))
				return item, true
			}
			pos = q.tail.Load()
			continue
		}

		prev := pos
		pos = q.tail.Load()
		if pos == prev {
			var zero T
			return zero, false
		}
	}
}

// Empty reports whether the queue looked empty. The two counters are read separately so the answer is
// only a hint.
//
// Returns:
//   - bool: true if no items appeared to be queued
func (q *BoundedQueue[T]) Empty() bool {
	return q.Len() <= 0
}

// Len returns an approximate item count. Blocked producers that already claimed a position are counted,
// so the result may exceed Cap.
//
// Returns:
//   - int: the approximate number of queued items
func (q *BoundedQueue[T]) Len() int {
	return int(int64(q.head.Load() - q.tail.Load()))
}

// Cap returns the fixed capacity.
//
// Returns:
//   - int: the number of slots
func (q *BoundedQueue[T]) Cap() int {
	return int(q.capacity)
}

// locate maps a position counter to its slot and lap.
func (q *BoundedQueue[T]) locate(pos uint64) (*slot[T], uint64) {
	return &q.slots[pos%q.capacity], pos / q.capacity
}

// checkTurn panics if a slot's turn has moved past the value a blocked claimant is waiting for.
// Turns only grow, so a later value means another goroutine acted on a position it never owned.
func (q *BoundedQueue[T]) checkTurn(got, want turn, pos uint64) {
	if got > want {
		panic(fmt.Sprintf("queue: slot %d overtaken at position %d (turn %d, expected %d)", pos%q.capacity, pos, got, want))
	}
}
