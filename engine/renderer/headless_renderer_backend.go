package renderer

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-stage/engine/timeline"
)

// HeadlessTarget is the recording target handed out by the headless backend.
// Scenes append plain-text commands to it.
type HeadlessTarget struct {
	label    string
	commands []string
}

// Label returns the label the target was opened with.
func (t *HeadlessTarget) Label() string {
	return t.label
}

// Record appends a command to the stream.
//
// Parameters:
//   - command: the command text
func (t *HeadlessTarget) Record(command string) {
	t.commands = append(t.commands, command)
}

// Recordf appends a formatted command to the stream.
//
// Parameters:
//   - format: fmt format string
//   - args: format arguments
func (t *HeadlessTarget) Recordf(format string, args ...any) {
	t.commands = append(t.commands, fmt.Sprintf(format, args...))
}

// HeadlessRecording is a finished headless command stream.
type HeadlessRecording struct {
	Label    string
	Commands []string
}

// Release is a no-op; headless recordings hold no external resources.
func (r *HeadlessRecording) Release() {}

// PresentedFrame is the headless backend's record of one consumed frame.
type PresentedFrame struct {
	Frame    uint64
	Commands []string
}

// HeadlessBackend is a RendererBackend that runs entirely on the CPU.
// In manual completion mode submitted batches stay pending until CompleteNext or CompleteAll is called,
// which lets callers hold the Timeline back deterministically.
type HeadlessBackend interface {
	RendererBackend

	// CompleteNext completes the oldest pending batch and advances the Timeline to its signal ticket.
	//
	// Returns:
	//   - timeline.Ticket: the signalled ticket, or NoTicket if nothing was pending
	CompleteNext() timeline.Ticket

	// CompleteAll completes every pending batch in submission order.
	//
	// Returns:
	//   - timeline.Ticket: the last signalled ticket, or NoTicket if nothing was pending
	CompleteAll() timeline.Ticket

	// Pending returns the number of submitted batches that have not completed.
	//
	// Returns:
	//   - int: pending batch count
	Pending() int

	// Submitted returns the labels of every submitted recording, one slice per batch.
	//
	// Returns:
	//   - [][]string: recording labels grouped by batch
	Submitted() [][]string

	// Presented returns every frame consumed so far.
	//
	// Returns:
	//   - []PresentedFrame: presented frames in order
	Presented() []PresentedFrame
}

// headlessBatch is a submitted batch awaiting completion.
type headlessBatch struct {
	signal timeline.Ticket
}

// headlessRendererBackendImpl is the implementation of the HeadlessBackend interface.
type headlessRendererBackendImpl struct {
	mu       sync.Mutex
	timeline *timeline.Timeline
	manual   bool
	history  int

	pending   []headlessBatch
	submitted [][]string
	presented []PresentedFrame

	width  int
	height int
}

var _ HeadlessBackend = &headlessRendererBackendImpl{}

// NewHeadlessBackend creates a new HeadlessBackend that advances tl as batches complete.
//
// Parameters:
//   - tl: the timeline to signal
//   - manual: if true, batches complete only through CompleteNext/CompleteAll
//
// Returns:
//   - HeadlessBackend: the backend
func NewHeadlessBackend(tl *timeline.Timeline, manual bool) HeadlessBackend {
	return &headlessRendererBackendImpl{
		timeline: tl,
		manual:   manual,
		history:  1024,
	}
}

func (b *headlessRendererBackendImpl) BeginRecording(label string) (RecordingTarget, error) {
	return &HeadlessTarget{label: label}, nil
}

func (b *headlessRendererBackendImpl) FinishRecording(target RecordingTarget) (Recording, error) {
	t, ok := target.(*HeadlessTarget)
	if !ok {
		return nil, fmt.Errorf("headless backend cannot finish %T", target)
	}
	return &HeadlessRecording{Label: t.label, Commands: t.commands}, nil
}

func (b *headlessRendererBackendImpl) Submit(batch []Recording, signal timeline.Ticket) error {
	labels := make([]string, 0, len(batch))
	for _, rec := range batch {
		hr, ok := rec.(*HeadlessRecording)
		if !ok {
			return fmt.Errorf("headless backend cannot submit %T", rec)
		}
		labels = append(labels, hr.Label)
		rec.Release()
	}

	b.mu.Lock()
	b.submitted = appendBounded(b.submitted, labels, b.history)
	if b.manual {
		b.pending = append(b.pending, headlessBatch{signal: signal})
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	b.timeline.Signal(signal)
	return nil
}

func (b *headlessRendererBackendImpl) Present(frame uint64, rec Recording) error {
	pf := PresentedFrame{Frame: frame}
	if rec != nil {
		hr, ok := rec.(*HeadlessRecording)
		if !ok {
			return fmt.Errorf("headless backend cannot present %T", rec)
		}
		pf.Commands = hr.Commands
		rec.Release()
	}

	b.mu.Lock()
	b.presented = appendBounded(b.presented, pf, b.history)
	b.mu.Unlock()
	return nil
}

func (b *headlessRendererBackendImpl) Resize(width, height int) {
	b.mu.Lock()
	b.width, b.height = width, height
	b.mu.Unlock()
}

func (b *headlessRendererBackendImpl) Poll() {}

func (b *headlessRendererBackendImpl) Release() {
	b.mu.Lock()
	b.pending = nil
	b.mu.Unlock()
}

func (b *headlessRendererBackendImpl) CompleteNext() timeline.Ticket {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return timeline.NoTicket
	}
	next := b.pending[0]
	b.pending = b.pending[1:]
	b.mu.Unlock()

	b.timeline.Signal(next.signal)
	return next.signal
}

func (b *headlessRendererBackendImpl) CompleteAll() timeline.Ticket {
	last := timeline.NoTicket
	for {
		t := b.CompleteNext()
		if t == timeline.NoTicket {
			return last
		}
		last = t
	}
}

func (b *headlessRendererBackendImpl) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *headlessRendererBackendImpl) Submitted() [][]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]string(nil), b.submitted...)
}

func (b *headlessRendererBackendImpl) Presented() []PresentedFrame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]PresentedFrame(nil), b.presented...)
}

// appendBounded appends v, trimming back to the newest limit entries once the slice holds twice that many.
func appendBounded[T any](s []T, v T, limit int) []T {
	s = append(s, v)
	if len(s) > 2*limit {
		s = append(s[:0:0], s[len(s)-limit:]...)
	}
	return s
}
