package renderer

import (
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// FrameSource produces numbered frames for the render loop. The scene host is the production implementation.
type FrameSource interface {
	// Tick runs the render-thread half of the pipeline: completed build recordings are batched and submitted.
	Tick()

	// WaitFrame blocks until the given frame has been published.
	//
	// Parameters:
	//   - frame: the frame number to wait for
	//
	// Returns:
	//   - Recording: the frame's commands, or nil if nothing was recorded
	//   - bool: false if the source is shutting down
	WaitFrame(frame uint64) (Recording, bool)

	// ConsumeFrame reports that the given frame's resources are free to reuse.
	//
	// Parameters:
	//   - frame: the frame number just consumed
	ConsumeFrame(frame uint64)
}

// RenderLoop consumes frames from a FrameSource and presents them through a RendererBackend.
type RenderLoop interface {
	// Run drives the loop on the calling goroutine until the source shuts down.
	//
	// Returns:
	//   - error: error if a frame could not be presented
	Run() error

	// Frame returns the last frame consumed.
	//
	// Returns:
	//   - uint64: the frame number
	Frame() uint64
}

// renderLoop is the implementation of the RenderLoop interface.
type renderLoop struct {
	source  FrameSource
	backend RendererBackend
	log     *zap.Logger

	frameLimit time.Duration // minimum frame duration; 0 = uncapped
	onFrame    func(frame uint64, deltaTime float32)

	frame atomic.Uint64
}

var _ RenderLoop = &renderLoop{}

// NewRenderLoop creates a new RenderLoop.
//
// Parameters:
//   - source: where frames come from
//   - backend: where frames go
//   - options: variadic list of RenderLoopBuilderOption functions to configure the loop
//
// Returns:
//   - RenderLoop: the loop, not yet running
func NewRenderLoop(source FrameSource, backend RendererBackend, options ...RenderLoopBuilderOption) RenderLoop {
	l := &renderLoop{
		source:  source,
		backend: backend,
		log:     zap.NewNop(),
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

func (l *renderLoop) Run() error {
	lastRender := time.Now()

	for next := l.frame.Load() + 1; ; next++ {
		frameStart := time.Now()
		l.source.Tick()

		rec, ok := l.source.WaitFrame(next)
		if !ok {
			l.log.Debug("render loop stopping", zap.Uint64("frame", next-1))
			return nil
		}

		if err := l.backend.Present(next, rec); err != nil {
			return fmt.Errorf("present frame %d: %w", next, err)
		}
		l.source.ConsumeFrame(next)
		l.frame.Store(next)
		l.backend.Poll()

		now := time.Now()
		dt := float32(now.Sub(lastRender).Seconds())
		lastRender = now
		if l.onFrame != nil {
			l.onFrame(next, dt)
		}

		if l.frameLimit > 0 {
			if remaining := l.frameLimit - time.Since(frameStart); remaining > 0 {
				time.Sleep(remaining)
			}
		}
	}
}

func (l *renderLoop) Frame() uint64 {
	return l.frame.Load()
}
