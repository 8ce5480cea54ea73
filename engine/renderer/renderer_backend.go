package renderer

import (
	"github.com/Carmen-Shannon/oxy-stage/engine/timeline"
)

// RendererBackendType identifies the backend implementation used by the Renderer.
type RendererBackendType int

const (
	// BackendTypeHeadless selects the CPU-only backend. Recordings are command lists and submissions
	// complete immediately (or when released manually), which makes it suitable for tests and servers.
	BackendTypeHeadless RendererBackendType = iota

	// BackendTypeWGPU selects the WebGPU-based backend.
	BackendTypeWGPU
)

// String returns the config name of the backend type.
func (t RendererBackendType) String() string {
	switch t {
	case BackendTypeWGPU:
		return "wgpu"
	default:
		return "headless"
	}
}

// ParseBackendType maps a config name to a RendererBackendType. Unknown names select the headless backend.
//
// Parameters:
//   - name: "headless" or "wgpu"
//
// Returns:
//   - RendererBackendType: the matching backend type
func ParseBackendType(name string) RendererBackendType {
	if name == "wgpu" {
		return BackendTypeWGPU
	}
	return BackendTypeHeadless
}

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting, capping frame rate
	// to the monitor's refresh rate. Eliminates tearing.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	// May cause screen tearing but provides the lowest latency.
	PresentModeUncapped
)

// ParsePresentMode maps a config name to a PresentMode. Anything other than "uncapped" selects VSync.
//
// Parameters:
//   - name: "vsync" or "uncapped"
//
// Returns:
//   - PresentMode: the matching present mode
func ParsePresentMode(name string) PresentMode {
	if name == "uncapped" {
		return PresentModeUncapped
	}
	return PresentModeVSync
}

// Recording is a finished command stream. Whoever holds a Recording owns it until it is handed to
// Submit or Present, or released.
type Recording interface {
	// Release frees the recording without submitting it.
	Release()
}

// RecordingTarget is an open command stream that scenes record into.
// Backends hand out concrete targets (HeadlessTarget, WGPUTarget); scenes type-assert to the one they support.
type RecordingTarget interface {
	// Label returns the debug label the target was opened with.
	//
	// Returns:
	//   - string: the label
	Label() string
}

// RendererBackend is the contract between the scene pipeline and a GPU API.
// BeginRecording and FinishRecording may be called from any goroutine; Submit, Present and Poll are only
// called from the render loop.
type RendererBackend interface {
	// BeginRecording opens a new command stream.
	//
	// Parameters:
	//   - label: debug label for the stream
	//
	// Returns:
	//   - RecordingTarget: the open stream
	//   - error: error if the stream could not be created
	BeginRecording(label string) (RecordingTarget, error)

	// FinishRecording closes a stream opened by BeginRecording.
	//
	// Parameters:
	//   - target: the stream to close
	//
	// Returns:
	//   - Recording: the finished command stream
	//   - error: error if the stream could not be finished
	FinishRecording(target RecordingTarget) (Recording, error)

	// Submit hands a batch of build recordings to the transfer stage as one unit of work and arranges for the
	// Timeline to advance to signal once the whole batch has completed. The backend takes ownership of the
	// recordings.
	//
	// Parameters:
	//   - batch: the completed recordings, in ticket order
	//   - signal: the highest ticket in the batch
	//
	// Returns:
	//   - error: error if the batch could not be submitted
	Submit(batch []Recording, signal timeline.Ticket) error

	// Present consumes one frame's commands and displays the result. rec may be nil when no scene recorded
	// anything for the frame. The backend takes ownership of rec.
	//
	// Parameters:
	//   - frame: the frame number
	//   - rec: the frame's recorded commands, or nil
	//
	// Returns:
	//   - error: error if the frame could not be presented
	Present(frame uint64, rec Recording) error

	// Resize reconfigures the presentation surface.
	//
	// Parameters:
	//   - width: the new width in pixels
	//   - height: the new height in pixels
	Resize(width, height int)

	// Poll processes completion callbacks without blocking.
	Poll()

	// Release frees every backend resource.
	Release()
}
