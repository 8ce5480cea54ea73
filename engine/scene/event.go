package scene

// EventKind classifies an Event.
type EventKind uint8

const (
	// EventNone is the zero kind; a zero Event carries nothing.
	EventNone EventKind = iota

	// EventKeyDown reports a key press or repeat. Code holds the key code.
	EventKeyDown

	// EventKeyUp reports a key release. Code holds the key code.
	EventKeyUp

	// EventScroll reports mouse wheel movement. Delta is positive for scroll up.
	EventScroll

	// EventMouseMove reports the cursor position in X and Y.
	EventMouseMove

	// EventMouseDown reports a mouse button press. Code holds the button, X and Y the position.
	EventMouseDown

	// EventMouseUp reports a mouse button release. Code holds the button, X and Y the position.
	EventMouseUp

	// EventResize reports a new framebuffer size in X and Y.
	EventResize

	// EventCustom is free for application use; Code identifies the message.
	EventCustom
)

// Event is a fixed-size input or control message delivered to the executing scene at the start of a tick.
// It is a plain value so it can cross the event queue by copy.
type Event struct {
	Kind  EventKind
	Code  uint32
	X     int32
	Y     int32
	Delta float32
}
