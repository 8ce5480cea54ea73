package scene

// Key codes carried in Event.Code for EventKeyDown and EventKeyUp.
// These values match GLFW key codes which use ASCII values for printable keys.
// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#Key
const (
	KeySpace     uint32 = 32  // Spacebar (ASCII)
	KeyA         uint32 = 65  // A key (ASCII)
	KeyD         uint32 = 68  // D key (ASCII)
	KeyN         uint32 = 78  // N key (ASCII)
	KeyP         uint32 = 80  // P key (ASCII)
	KeyQ         uint32 = 81  // Q key (ASCII)
	KeyR         uint32 = 82  // R key (ASCII)
	KeyEsc       uint32 = 256 // Escape key (GLFW)
	KeyBackspace uint32 = 259 // Backspace key (GLFW)

	Key0 uint32 = 48 // 0 key (ASCII)
	Key9 uint32 = 57 // 9 key (ASCII)
)

// IsKeyPress reports whether the event is a press (or repeat) of key.
//
// Parameters:
//   - key: the key code
//
// Returns:
//   - bool: true if the event presses key
func (e Event) IsKeyPress(key uint32) bool {
	return e.Kind == EventKeyDown && e.Code == key
}

// Digit returns the digit of a number-row key press.
//
// Returns:
//   - int: 0-9 for a number-row key press
//   - bool: false for any other event
func (e Event) Digit() (int, bool) {
	if e.Kind != EventKeyDown || e.Code < Key0 || e.Code > Key9 {
		return 0, false
	}
	return int(e.Code - Key0), true
}
