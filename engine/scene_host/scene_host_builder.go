package scene_host

import "go.uber.org/zap"

// SceneHostBuilderOption is a functional option for configuring a SceneHost.
type SceneHostBuilderOption func(*sceneHost)

// WithPipelineDepth sets K, the number of frames the scene loop may run ahead of the render loop.
// Defaults to 2, the minimum.
//
// Parameters:
//   - depth: the pipeline depth
//
// Returns:
//   - SceneHostBuilderOption: option function to apply
func WithPipelineDepth(depth int) SceneHostBuilderOption {
	return func(h *sceneHost) {
		if depth < 0 {
			depth = 0
		}
		h.depth = uint64(depth)
	}
}

// WithGraceWindow sets how many frames a superseded scene waits before teardown. Must be at least the
// pipeline depth. Defaults to the pipeline depth plus one.
//
// Parameters:
//   - frames: the grace window in frames
//
// Returns:
//   - SceneHostBuilderOption: option function to apply
func WithGraceWindow(frames int) SceneHostBuilderOption {
	return func(h *sceneHost) {
		if frames < 0 {
			frames = 0
		}
		h.graceWindow = uint64(frames)
	}
}

// WithWorkers sets the number of worker goroutines that build and destroy scenes.
//
// Parameters:
//   - n: the worker count
//
// Returns:
//   - SceneHostBuilderOption: option function to apply
func WithWorkers(n int) SceneHostBuilderOption {
	return func(h *sceneHost) {
		h.workers = max(n, 1)
	}
}

// WithTokens sets how many builds may be outstanding at once. Defaults to 4.
//
// Parameters:
//   - n: the token count
//
// Returns:
//   - SceneHostBuilderOption: option function to apply
func WithTokens(n int) SceneHostBuilderOption {
	return func(h *sceneHost) {
		h.tokenCount = max(n, 1)
	}
}

// WithEventQueueCapacity sets the capacity of the event queue. Defaults to 256.
//
// Parameters:
//   - n: the capacity
//
// Returns:
//   - SceneHostBuilderOption: option function to apply
func WithEventQueueCapacity(n int) SceneHostBuilderOption {
	return func(h *sceneHost) {
		h.eventCapacity = max(n, 1)
	}
}

// WithJobQueueCapacity sets the capacity of the worker job queue. Raised to the token count if lower.
//
// Parameters:
//   - n: the capacity
//
// Returns:
//   - SceneHostBuilderOption: option function to apply
func WithJobQueueCapacity(n int) SceneHostBuilderOption {
	return func(h *sceneHost) {
		h.jobCapacity = max(n, 1)
	}
}

// WithCompletionQueueCapacity sets the capacity of the completion queue. Raised to the token count if lower.
//
// Parameters:
//   - n: the capacity
//
// Returns:
//   - SceneHostBuilderOption: option function to apply
func WithCompletionQueueCapacity(n int) SceneHostBuilderOption {
	return func(h *sceneHost) {
		h.completionCapacity = max(n, 1)
	}
}

// WithLogger sets the logger used by the host and its workers.
//
// Parameters:
//   - log: the logger
//
// Returns:
//   - SceneHostBuilderOption: option function to apply
func WithLogger(log *zap.Logger) SceneHostBuilderOption {
	return func(h *sceneHost) {
		if log != nil {
			h.log = log
		}
	}
}
