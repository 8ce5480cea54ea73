// package scene defines the operations every scene exposes to the scene host, plus a callback-driven
// implementation for programs that do not need their own scene type.
package scene

import (
	"fmt"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-stage/engine/renderer"
)

// ID is a scene's stable identity in the host's registry. The zero ID means "no scene".
type ID uint32

// NoID is the zero ID.
const NoID ID = 0

// Scene is a unit of game state the host can build, run and tear down.
//
// The host calls these in a fixed order: Construct once on a worker goroutine; then, each tick the scene
// executes, HandleEvent for every queued event, Update, and Record on the scene goroutine; finally Destroy once
// on a worker goroutine after the last frame that referenced the scene has been consumed.
// Construct and Destroy failures are fatal to the process.
type Scene interface {
	// Name returns a human-readable name used in logs.
	//
	// Returns:
	//   - string: the scene name
	Name() string

	// Construct builds the scene's resources, recording any upload commands into target.
	//
	// Parameters:
	//   - target: the command stream bound to this build
	//
	// Returns:
	//   - error: error if construction failed
	Construct(target renderer.RecordingTarget) error

	// HandleEvent consumes one input or control event.
	//
	// Parameters:
	//   - event: the event
	HandleEvent(event Event)

	// Update advances the scene's state.
	//
	// Parameters:
	//   - deltaTime: seconds since the previous tick
	Update(deltaTime float32)

	// Record records the commands for one frame into target.
	//
	// Parameters:
	//   - frame: the frame number being produced
	//   - target: the frame's command stream
	//
	// Returns:
	//   - error: error if recording failed
	Record(frame uint64, target renderer.RecordingTarget) error

	// Destroy releases every resource the scene owns.
	//
	// Returns:
	//   - error: error if teardown failed
	Destroy() error
}

// CallbackScene is a Scene assembled from builder callbacks. It also counts what the host did to it.
type CallbackScene interface {
	Scene

	// Constructed reports whether Construct has completed.
	Constructed() bool

	// Destroyed reports whether Destroy has completed.
	Destroyed() bool

	// Events returns how many events the scene has handled.
	Events() uint64

	// Updates returns how many times Update has been called.
	Updates() uint64

	// Frames returns how many frames the scene has recorded.
	Frames() uint64

	// LastFrame returns the most recent frame number recorded.
	LastFrame() uint64
}

// scene is the implementation of the CallbackScene interface.
type scene struct {
	name string

	onConstruct func(target renderer.RecordingTarget) error
	onEvent     func(event Event)
	onUpdate    func(deltaTime float32)
	onRecord    func(frame uint64, target renderer.RecordingTarget) error
	onDestroy   func() error

	constructed atomic.Bool
	destroyed   atomic.Bool
	events      atomic.Uint64
	updates     atomic.Uint64
	frames      atomic.Uint64
	lastFrame   atomic.Uint64
}

var _ CallbackScene = &scene{}

// NewScene creates a new CallbackScene. Every callback is optional.
//
// Parameters:
//   - name: the scene name
//   - options: variadic list of SceneBuilderOption functions to configure the scene
//
// Returns:
//   - CallbackScene: the scene, not yet constructed
func NewScene(name string, options ...SceneBuilderOption) CallbackScene {
	s := &scene{name: name}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *scene) Name() string {
	return s.name
}

func (s *scene) Construct(target renderer.RecordingTarget) error {
	if s.destroyed.Load() {
		return fmt.Errorf("scene %q: construct after destroy", s.name)
	}
	if s.onConstruct != nil {
		if err := s.onConstruct(target); err != nil {
			return err
		}
	}
	s.constructed.Store(true)
	return nil
}

func (s *scene) HandleEvent(event Event) {
	s.events.Add(1)
	if s.onEvent != nil {
		s.onEvent(event)
	}
}

func (s *scene) Update(deltaTime float32) {
	s.updates.Add(1)
	if s.onUpdate != nil {
		s.onUpdate(deltaTime)
	}
}

func (s *scene) Record(frame uint64, target renderer.RecordingTarget) error {
	if s.onRecord != nil {
		if err := s.onRecord(frame, target); err != nil {
			return err
		}
	}
	s.frames.Add(1)
	s.lastFrame.Store(frame)
	return nil
}

func (s *scene) Destroy() error {
	if !s.destroyed.CompareAndSwap(false, true) {
		return fmt.Errorf("scene %q: destroyed twice", s.name)
	}
	if s.onDestroy != nil {
		return s.onDestroy()
	}
	return nil
}

func (s *scene) Constructed() bool {
	return s.constructed.Load()
}

func (s *scene) Destroyed() bool {
	return s.destroyed.Load()
}

func (s *scene) Events() uint64 {
	return s.events.Load()
}

func (s *scene) Updates() uint64 {
	return s.updates.Load()
}

func (s *scene) Frames() uint64 {
	return s.frames.Load()
}

func (s *scene) LastFrame() uint64 {
	return s.lastFrame.Load()
}
