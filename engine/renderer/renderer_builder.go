package renderer

import (
	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

// RendererBuilderOption is a functional option for configuring a Renderer.
// Options are collected before the backend is created so adapter and surface settings take effect.
type RendererBuilderOption func(*rendererConfig)

// WithPresentMode sets the present mode for the renderer surface.
// When not specified, the default is PresentModeVSync.
//
// Parameters:
//   - mode: the PresentMode to use (VSync or Uncapped)
//
// Returns:
//   - RendererBuilderOption: a function that applies the present mode option
func WithPresentMode(mode PresentMode) RendererBuilderOption {
	return func(c *rendererConfig) {
		c.presentMode = mode
	}
}

// WithForceSoftwareRenderer forces WGPU to use a CPU/software fallback adapter instead of
// hardware GPU acceleration. This requires a software Vulkan ICD to be installed on the system
// (e.g. SwiftShader or lavapipe).
//
// Parameters:
//   - force: true to force the software fallback adapter, false to use hardware (default)
//
// Returns:
//   - RendererBuilderOption: a function that applies the option
func WithForceSoftwareRenderer(force bool) RendererBuilderOption {
	return func(c *rendererConfig) {
		c.forceFallbackAdapter = force
	}
}

// WithClearColor sets the colour the WGPU backend clears the surface to each frame.
//
// Parameters:
//   - r, g, b, a: colour components in [0, 1]
//
// Returns:
//   - RendererBuilderOption: a function that applies the option
func WithClearColor(r, g, b, a float64) RendererBuilderOption {
	return func(c *rendererConfig) {
		c.clearColor = wgpu.Color{R: r, G: g, B: b, A: a}
	}
}

// WithManualCompletion makes the headless backend hold submitted batches until they are completed explicitly.
// Ignored by the WGPU backend.
//
// Returns:
//   - RendererBuilderOption: a function that applies the option
func WithManualCompletion() RendererBuilderOption {
	return func(c *rendererConfig) {
		c.manualCompletion = true
	}
}

// WithLogger sets the logger used by the renderer.
//
// Parameters:
//   - log: the logger
//
// Returns:
//   - RendererBuilderOption: a function that applies the option
func WithLogger(log *zap.Logger) RendererBuilderOption {
	return func(c *rendererConfig) {
		if log != nil {
			c.log = log
		}
	}
}
