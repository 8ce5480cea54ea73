// package waitable provides an atomic counter with block/wake semantics. Goroutines park on the value itself
// until a predicate over it holds, and writers only touch the parking lock when somebody is actually parked.
package waitable

import (
	"sync"
	"sync/atomic"
)

// Uint64 is an atomic 64-bit value that goroutines can wait on.
// The zero value is ready to use. A Uint64 must not be copied after first use.
type Uint64 struct {
	value   atomic.Uint64
	waiters atomic.Int32

	mu   sync.Mutex
	cond sync.Cond
}

// Load atomically reads the current value.
//
// Returns:
//   - uint64: the current value
func (u *Uint64) Load() uint64 {
	return u.value.Load()
}

// Store atomically replaces the value and wakes every parked waiter.
//
// Parameters:
//   - v: the new value
func (u *Uint64) Store(v uint64) {
	u.value.Store(v)
	u.notify()
}

// Add atomically adds delta to the value and wakes every parked waiter.
//
// Parameters:
//   - delta: the amount to add
//
// Returns:
//   - uint64: the new value
func (u *Uint64) Add(delta uint64) uint64 {
	v := u.value.Add(delta)
	u.notify()
	return v
}

// CompareAndSwap executes the compare-and-swap operation and wakes parked waiters when it succeeds.
//
// Parameters:
//   - old: the expected current value
//   - next: the value to store when the current value equals old
//
// Returns:
//   - bool: true if the swap happened
func (u *Uint64) CompareAndSwap(old, next uint64) bool {
	if !u.value.CompareAndSwap(old, next) {
		return false
	}
	u.notify()
	return true
}

// WaitUntil blocks until pred reports true for the current value.
// The predicate is evaluated once without locking; the caller only parks if that check fails.
// Predicates may consult state outside the value (a shutdown flag, for example) as long as whoever
// changes that state calls Wake afterwards.
//
// Parameters:
//   - pred: the condition to wait for
//
// Returns:
//   - uint64: the value that satisfied pred
func (u *Uint64) WaitUntil(pred func(uint64) bool) uint64 {
	if v := u.value.Load(); pred(v) {
		return v
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	u.ensureCond()

	// The waiter count is published before the value is re-checked so a concurrent writer either sees the
	// waiter and broadcasts under the lock, or its store is visible to the re-check below.
	u.waiters.Add(1)
	defer u.waiters.Add(-1)

	for {
		v := u.value.Load()
		if pred(v) {
			return v
		}
		u.cond.Wait()
	}
}

// Wake wakes every parked waiter so it re-evaluates its predicate.
func (u *Uint64) Wake() {
	u.mu.Lock()
	u.ensureCond()
	u.cond.Broadcast()
	u.mu.Unlock()
}

// notify broadcasts to parked waiters, skipping the lock entirely when none are registered.
func (u *Uint64) notify() {
	if u.waiters.Load() == 0 {
		return
	}
	u.Wake()
}

// ensureCond binds the condition variable to the mutex. Must be called with mu held.
func (u *Uint64) ensureCond() {
	if u.cond.L == nil {
		u.cond.L = &u.mu
	}
}
