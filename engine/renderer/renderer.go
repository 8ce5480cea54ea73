package renderer

import (
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-stage/engine/timeline"
	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

// SurfaceSource is anything that can provide a presentation surface, typically a window.Window.
type SurfaceSource interface {
	SurfaceDescriptor() *wgpu.SurfaceDescriptor
	Width() int
	Height() int
}

// rendererConfig collects builder options before the backend is created.
type rendererConfig struct {
	log                  *zap.Logger
	presentMode          PresentMode
	forceFallbackAdapter bool
	manualCompletion     bool
	clearColor           wgpu.Color
}

// renderer is the implementation of the Renderer interface.
type renderer struct {
	backendType RendererBackendType
	backend     RendererBackend

	submittedBatches atomic.Uint64
	presentedFrames  atomic.Uint64
	lastSignal       atomic.Uint64
}

// Renderer is the RendererBackend the engine talks to. It selects a concrete backend at construction and
// keeps counters for profiling.
type Renderer interface {
	RendererBackend

	// BackendType returns the type of the underlying backend.
	//
	// Returns:
	//   - RendererBackendType: the backend type
	BackendType() RendererBackendType

	// Backend returns the underlying backend, for backend-specific calls such as HeadlessBackend.CompleteAll.
	//
	// Returns:
	//   - RendererBackend: the wrapped backend
	Backend() RendererBackend

	// SubmittedBatches returns how many transfer batches have been submitted.
	//
	// Returns:
	//   - uint64: batch count
	SubmittedBatches() uint64

	// PresentedFrames returns how many frames have been presented.
	//
	// Returns:
	//   - uint64: frame count
	PresentedFrames() uint64

	// LastSignal returns the signal ticket of the most recent batch.
	//
	// Returns:
	//   - timeline.Ticket: the last submitted signal ticket
	LastSignal() timeline.Ticket
}

var _ Renderer = &renderer{}

// NewRenderer creates a new Renderer with the requested backend type.
// The WGPU backend needs a surface source; the headless backend ignores it.
//
// Parameters:
//   - backendType: the backend to create
//   - tl: the timeline that submitted batches advance
//   - source: the presentation surface source, or nil for headless rendering
//   - options: variadic list of RendererBuilderOption functions to configure the Renderer
//
// Returns:
//   - Renderer: the renderer
//   - error: error if the backend could not be created
func NewRenderer(backendType RendererBackendType, tl *timeline.Timeline, source SurfaceSource, options ...RendererBuilderOption) (Renderer, error) {
	cfg := rendererConfig{
		log:         zap.NewNop(),
		presentMode: PresentModeVSync,
		clearColor:  wgpu.Color{R: 0.1, G: 0.1, B: 0.1, A: 1.0},
	}
	for _, opt := range options {
		opt(&cfg)
	}

	r := &renderer{backendType: backendType}
	switch backendType {
	case BackendTypeWGPU:
		b, err := newWGPURendererBackend(tl, source, cfg)
		if err != nil {
			return nil, err
		}
		r.backend = b
	default:
		r.backend = NewHeadlessBackend(tl, cfg.manualCompletion)
	}

	cfg.log.Info("renderer ready", zap.Stringer("backend", backendType))
	return r, nil
}

func (r *renderer) BeginRecording(label string) (RecordingTarget, error) {
	return r.backend.BeginRecording(label)
}

func (r *renderer) FinishRecording(target RecordingTarget) (Recording, error) {
	return r.backend.FinishRecording(target)
}

func (r *renderer) Submit(batch []Recording, signal timeline.Ticket) error {
	if err := r.backend.Submit(batch, signal); err != nil {
		return err
	}
	r.submittedBatches.Add(1)
	r.lastSignal.Store(uint64(signal))
	return nil
}

func (r *renderer) Present(frame uint64, rec Recording) error {
	if err := r.backend.Present(frame, rec); err != nil {
		return err
	}
	r.presentedFrames.Add(1)
	return nil
}

func (r *renderer) Resize(width, height int) {
	r.backend.Resize(width, height)
}

func (r *renderer) Poll() {
	r.backend.Poll()
}

func (r *renderer) Release() {
	r.backend.Release()
}

func (r *renderer) BackendType() RendererBackendType {
	return r.backendType
}

func (r *renderer) Backend() RendererBackend {
	return r.backend
}

func (r *renderer) SubmittedBatches() uint64 {
	return r.submittedBatches.Load()
}

func (r *renderer) PresentedFrames() uint64 {
	return r.presentedFrames.Load()
}

func (r *renderer) LastSignal() timeline.Ticket {
	return timeline.Ticket(r.lastSignal.Load())
}
