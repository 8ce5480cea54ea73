package engine

import (
	"github.com/Carmen-Shannon/oxy-stage/engine/config"
	"github.com/Carmen-Shannon/oxy-stage/engine/profiler"
	"github.com/Carmen-Shannon/oxy-stage/engine/renderer"
	"github.com/Carmen-Shannon/oxy-stage/engine/scene_host"
	"github.com/Carmen-Shannon/oxy-stage/engine/window"
	"go.uber.org/zap"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithProfiling enables or disables performance profiling output.
//
// Parameters:
//   - enabled: if true, enables performance profiling
//   - options: options for the profiler, such as its report interval
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool, options ...profiler.ProfilerBuilderOption) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled.Store(enabled)
		e.profilerOptions = append(e.profilerOptions, options...)
	}
}

// WithWindow sets a custom configured window for the engine to use rather than allowing the engine
// to create and manage one internally.
//
// Parameters:
//   - w: a pre-configured Window instance
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithWindow(w window.Window) EngineBuilderOption {
	return func(e *engine) {
		e.window = w
	}
}

// WithNewWindow makes the engine create its own window during construction.
//
// Parameters:
//   - options: options for the window
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithNewWindow(options ...window.WindowBuilderOption) EngineBuilderOption {
	return func(e *engine) {
		e.createWindow = true
		e.windowOptions = append(e.windowOptions, options...)
	}
}

// WithBackend selects the renderer backend. Defaults to BackendTypeHeadless.
//
// Parameters:
//   - backendType: the backend to create
//   - options: options for the renderer
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithBackend(backendType renderer.RendererBackendType, options ...renderer.RendererBuilderOption) EngineBuilderOption {
	return func(e *engine) {
		e.backendType = backendType
		e.rendererOptions = append(e.rendererOptions, options...)
	}
}

// WithHostOptions passes options through to the scene host.
//
// Parameters:
//   - options: options for the scene host
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithHostOptions(options ...scene_host.SceneHostBuilderOption) EngineBuilderOption {
	return func(e *engine) {
		e.hostOptions = append(e.hostOptions, options...)
	}
}

// WithRenderFrameLimit sets an optional render frame rate cap in frames per second.
// Pass 0 to uncap the render loop (default).
//
// Parameters:
//   - fps: maximum render frames per second (0 = uncapped)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderFrameLimit(fps float64) EngineBuilderOption {
	return func(e *engine) {
		e.renderFrameLimit = max(fps, 0)
	}
}

// WithFrameCallback registers the function called on the render goroutine after every presented frame.
//
// Parameters:
//   - callback: function receiving the frame number and the delta time in seconds
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithFrameCallback(callback func(frame uint64, deltaTime float32)) EngineBuilderOption {
	return func(e *engine) {
		e.frameCallback = callback
	}
}

// WithLogger sets the logger shared by every engine component.
//
// Parameters:
//   - log: the logger
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithLogger(log *zap.Logger) EngineBuilderOption {
	return func(e *engine) {
		e.log = log
	}
}

// WithConfig applies a loaded config file. Options listed after it override the values it sets.
// The logger is built from the config's logging section unless WithLogger is also given.
//
// Parameters:
//   - cfg: the config
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithConfig(cfg *config.Config) EngineBuilderOption {
	return func(e *engine) {
		p := cfg.Pipeline
		host := []scene_host.SceneHostBuilderOption{
			scene_host.WithPipelineDepth(p.Depth),
			scene_host.WithGraceWindow(p.GraceWindow),
			scene_host.WithTokens(p.Tokens),
			scene_host.WithEventQueueCapacity(p.EventQueue),
			scene_host.WithJobQueueCapacity(p.JobQueue),
			scene_host.WithCompletionQueueCapacity(p.CompletionQueue),
		}
		if p.Workers > 0 {
			host = append(host, scene_host.WithWorkers(p.Workers))
		}
		WithHostOptions(host...)(e)

		rc := cfg.Render
		WithBackend(renderer.ParseBackendType(rc.Backend),
			renderer.WithPresentMode(renderer.ParsePresentMode(rc.PresentMode)),
			renderer.WithForceSoftwareRenderer(rc.ForceSoftware),
			renderer.WithClearColor(rc.ClearColor[0], rc.ClearColor[1], rc.ClearColor[2], rc.ClearColor[3]),
		)(e)
		WithRenderFrameLimit(rc.FrameLimit)(e)

		if cfg.Window.Enabled {
			WithNewWindow(
				window.WithTitle(cfg.Window.Title),
				window.WithWidth(cfg.Window.Width),
				window.WithHeight(cfg.Window.Height),
			)(e)
		}

		WithProfiling(cfg.Profiler.Enabled, profiler.WithInterval(cfg.Profiler.Interval))(e)

		logging := cfg.Logging
		e.loggingConfig = &logging
	}
}
