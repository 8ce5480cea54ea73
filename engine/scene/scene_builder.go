package scene

import (
	"github.com/Carmen-Shannon/oxy-stage/engine/renderer"
)

// SceneBuilderOption is a functional option for configuring a CallbackScene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithConstruct sets the callback run on a worker goroutine when the scene is built.
//
// Parameters:
//   - callback: builds resources into the given recording target
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithConstruct(callback func(target renderer.RecordingTarget) error) SceneBuilderOption {
	return func(s *scene) {
		s.onConstruct = callback
	}
}

// WithEventHandler sets the callback that receives queued events before each update.
//
// Parameters:
//   - callback: handles one event
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithEventHandler(callback func(event Event)) SceneBuilderOption {
	return func(s *scene) {
		s.onEvent = callback
	}
}

// WithUpdate sets the per-tick update callback.
//
// Parameters:
//   - callback: receives the elapsed time in seconds
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithUpdate(callback func(deltaTime float32)) SceneBuilderOption {
	return func(s *scene) {
		s.onUpdate = callback
	}
}

// WithRecord sets the per-frame command recording callback.
//
// Parameters:
//   - callback: records the frame's commands into the given target
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithRecord(callback func(frame uint64, target renderer.RecordingTarget) error) SceneBuilderOption {
	return func(s *scene) {
		s.onRecord = callback
	}
}

// WithDestroy sets the teardown callback run on a worker goroutine.
//
// Parameters:
//   - callback: releases the scene's resources
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithDestroy(callback func() error) SceneBuilderOption {
	return func(s *scene) {
		s.onDestroy = callback
	}
}
