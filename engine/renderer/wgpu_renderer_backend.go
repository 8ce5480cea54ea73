package renderer

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/Carmen-Shannon/oxy-stage/engine/timeline"
	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

// ErrNoSurface is returned when the WGPU backend is asked to present before a surface exists.
var ErrNoSurface = errors.New("renderer: no presentation surface")

// WGPUTarget is the recording target handed out by the WGPU backend. Scenes encode into its command encoder
// and may create resources through its device and queue.
type WGPUTarget struct {
	label   string
	encoder *wgpu.CommandEncoder
	device  *wgpu.Device
	queue   *wgpu.Queue
}

// Label returns the label the target was opened with.
func (t *WGPUTarget) Label() string {
	return t.label
}

// Encoder returns the open command encoder.
func (t *WGPUTarget) Encoder() *wgpu.CommandEncoder {
	return t.encoder
}

// Device returns the device that owns the encoder.
func (t *WGPUTarget) Device() *wgpu.Device {
	return t.device
}

// Queue returns the device queue, for buffer and texture uploads.
func (t *WGPUTarget) Queue() *wgpu.Queue {
	return t.queue
}

type wgpuRendererBackendImpl struct {
	mu       *sync.Mutex
	timeline *timeline.Timeline
	log      *zap.Logger

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	surface  *wgpu.Surface

	surfaceFormat *wgpu.TextureFormat
	presentMode   wgpu.PresentMode
	clearColor    wgpu.Color
}

var _ RendererBackend = &wgpuRendererBackendImpl{}

// newWGPURendererBackend creates the instance, surface, adapter, device and queue, then configures the surface
// to the source's current size.
func newWGPURendererBackend(tl *timeline.Timeline, source SurfaceSource, cfg rendererConfig) (*wgpuRendererBackendImpl, error) {
	if source == nil || source.SurfaceDescriptor() == nil {
		return nil, ErrNoSurface
	}

	runtime.LockOSThread()
	w := &wgpuRendererBackendImpl{
		mu:          &sync.Mutex{},
		timeline:    tl,
		log:         cfg.log,
		instance:    wgpu.CreateInstance(nil),
		presentMode: wgpu.PresentModeFifo,
		clearColor:  cfg.clearColor,
	}
	if cfg.presentMode == PresentModeUncapped {
		w.presentMode = wgpu.PresentModeImmediate
	}
	w.surface = w.instance.CreateSurface(source.SurfaceDescriptor())

	a, err := w.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: cfg.forceFallbackAdapter,
		CompatibleSurface:    w.surface,
	})
	if err != nil {
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	w.adapter = a

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Stage Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: wgpu.DefaultLimits(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("request device: %w", err)
	}
	w.device = d
	w.queue = d.GetQueue()

	w.configureSurface(source.Width(), source.Height())
	return w, nil
}

func (b *wgpuRendererBackendImpl) BeginRecording(label string) (RecordingTarget, error) {
	encoder, err := b.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("create encoder %q: %w", label, err)
	}
	return &WGPUTarget{
		label:   label,
		encoder: encoder,
		device:  b.device,
		queue:   b.queue,
	}, nil
}

func (b *wgpuRendererBackendImpl) FinishRecording(target RecordingTarget) (Recording, error) {
	t, ok := target.(*WGPUTarget)
	if !ok {
		return nil, fmt.Errorf("wgpu backend cannot finish %T", target)
	}
	defer t.encoder.Release()

	commandBuffer, err := t.encoder.Finish(nil)
	if err != nil {
		return nil, fmt.Errorf("finish encoder %q: %w", t.label, err)
	}
	return commandBuffer, nil
}

func (b *wgpuRendererBackendImpl) Submit(batch []Recording, signal timeline.Ticket) error {
	buffers, err := commandBuffers(batch)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.queue.Submit(buffers...)
	for _, cb := range buffers {
		cb.Release()
	}

	// Callbacks fire from Poll in submission order, so the timeline only ever moves to a ticket whose whole
	// prefix has finished on the GPU.
	b.queue.OnSubmittedWorkDone(func(status wgpu.QueueWorkDoneStatus) {
		b.log.Debug("transfer batch complete", zap.Uint64("ticket", uint64(signal)), zap.Uint32("status", uint32(status)))
		b.timeline.Signal(signal)
	})
	return nil
}

func (b *wgpuRendererBackendImpl) Present(frame uint64, rec Recording) error {
	var buffers []*wgpu.CommandBuffer
	if rec != nil {
		var err error
		if buffers, err = commandBuffers([]Recording{rec}); err != nil {
			return err
		}
	}
	release := func() {
		for _, cb := range buffers {
			cb.Release()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.surfaceFormat == nil {
		release()
		return ErrNoSurface
	}

	surfaceTexture, err := b.surface.GetCurrentTexture()
	if err != nil {
		release()
		return fmt.Errorf("acquire surface texture for frame %d: %w", frame, err)
	}
	defer surfaceTexture.Release()

	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		release()
		return err
	}
	defer view.Release()

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		release()
		return err
	}
	defer encoder.Release()

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:       view,
				LoadOp:     wgpu.LoadOpClear,
				StoreOp:    wgpu.StoreOpStore,
				ClearValue: b.clearColor,
			},
		},
	})
	pass.End()

	presentBuffer, err := encoder.Finish(nil)
	if err != nil {
		release()
		return err
	}
	buffers = append(buffers, presentBuffer)

	b.queue.Submit(buffers...)
	release()
	b.surface.Present()
	return nil
}

func (b *wgpuRendererBackendImpl) Resize(width, height int) {
	b.configureSurface(width, height)
}

func (b *wgpuRendererBackendImpl) Poll() {
	b.device.Poll(false, nil)
}

func (b *wgpuRendererBackendImpl) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.device.Poll(true, nil)
	b.surface.Release()
	b.queue.Release()
	b.device.Release()
	b.adapter.Release()
	b.instance.Release()
}

// configureSurface applies the surface configuration for the given size. A zero size (a minimised window)
// leaves the surface unconfigured until the next resize.
func (b *wgpuRendererBackendImpl) configureSurface(width, height int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if width <= 0 || height <= 0 {
		b.surfaceFormat = nil
		return
	}

	capabilities := b.surface.GetCapabilities(b.adapter)
	b.surfaceFormat = &capabilities.Formats[0]

	b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      *b.surfaceFormat,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: b.presentMode,
		AlphaMode:   capabilities.AlphaModes[0],
	})
}

// commandBuffers unwraps recordings produced by this backend.
func commandBuffers(batch []Recording) ([]*wgpu.CommandBuffer, error) {
	buffers := make([]*wgpu.CommandBuffer, 0, len(batch)+1)
	for _, rec := range batch {
		cb, ok := rec.(*wgpu.CommandBuffer)
		if !ok {
			return nil, fmt.Errorf("wgpu backend cannot submit %T", rec)
		}
		buffers = append(buffers, cb)
	}
	return buffers, nil
}
