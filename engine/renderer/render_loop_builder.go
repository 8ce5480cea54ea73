package renderer

import (
	"time"

	"go.uber.org/zap"
)

// RenderLoopBuilderOption is a functional option for configuring a RenderLoop.
type RenderLoopBuilderOption func(*renderLoop)

// WithFrameLimit sets an optional render frame rate cap in frames per second.
// Pass 0 to uncap the render loop (default).
//
// Parameters:
//   - fps: maximum render frames per second (0 = uncapped)
//
// Returns:
//   - RenderLoopBuilderOption: option function to apply
func WithFrameLimit(fps float64) RenderLoopBuilderOption {
	return func(l *renderLoop) {
		if fps <= 0 {
			l.frameLimit = 0
			return
		}
		l.frameLimit = time.Duration(float64(time.Second) / fps)
	}
}

// WithFrameCallback registers a function called after every presented frame.
//
// Parameters:
//   - callback: receives the frame number and the time since the previous frame in seconds
//
// Returns:
//   - RenderLoopBuilderOption: option function to apply
func WithFrameCallback(callback func(frame uint64, deltaTime float32)) RenderLoopBuilderOption {
	return func(l *renderLoop) {
		l.onFrame = callback
	}
}

// WithLoopLogger sets the logger used by the render loop.
//
// Parameters:
//   - log: the logger
//
// Returns:
//   - RenderLoopBuilderOption: option function to apply
func WithLoopLogger(log *zap.Logger) RenderLoopBuilderOption {
	return func(l *renderLoop) {
		if log != nil {
			l.log = log
		}
	}
}
