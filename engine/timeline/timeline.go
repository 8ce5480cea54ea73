// package timeline tracks asynchronous GPU work. Every build submission is tagged with a Ticket; the Timeline
// is advanced as submissions complete, and a ticket counts as retired once the Timeline has reached it.
package timeline

import (
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-stage/engine/waitable"
)

// Ticket identifies one asynchronous submission. Tickets are issued in ascending order starting at 1;
// the zero Ticket means "none".
type Ticket uint64

// NoTicket is the zero Ticket.
const NoTicket Ticket = 0

// Timeline is a monotonically increasing completion counter.
// It is only ever moved forward, and only to tickets whose work has actually finished.
type Timeline struct {
	value  waitable.Uint64
	closed atomic.Bool
}

// NewTimeline creates a new Timeline starting at NoTicket.
//
// Returns:
//   - *Timeline: the new timeline
func NewTimeline() *Timeline {
	return &Timeline{}
}

// Load returns the highest retired ticket.
//
// Returns:
//   - Ticket: the current timeline value
func (tl *Timeline) Load() Ticket {
	return Ticket(tl.value.Load())
}

// Retired reports whether the work tagged with t has completed.
//
// Parameters:
//   - t: the ticket to check
//
// Returns:
//   - bool: true if the timeline has reached t
func (tl *Timeline) Retired(t Ticket) bool {
	return tl.Load() >= t
}

// Signal advances the timeline to t. Values at or below the current value are ignored so the
// timeline never moves backwards.
//
// Parameters:
//   - t: the ticket whose work (and all earlier work) has completed
func (tl *Timeline) Signal(t Ticket) {
	for {
		cur := tl.value.Load()
		if uint64(t) <= cur {
			return
		}
		if tl.value.CompareAndSwap(cur, uint64(t)) {
			return
		}
	}
}

// Wait blocks until t has retired or the timeline is closed.
//
// Parameters:
//   - t: the ticket to wait for
//
// Returns:
//   - bool: true if t retired, false if the timeline was closed first
func (tl *Timeline) Wait(t Ticket) bool {
	v := tl.value.WaitUntil(func(v uint64) bool {
		return v >= uint64(t) || tl.closed.Load()
	})
	return v >= uint64(t)
}

// Close releases every goroutine blocked in Wait. The timeline can still be read and signalled.
func (tl *Timeline) Close() {
	tl.closed.Store(true)
	tl.value.Wake()
}
