// package engine is the composition root: it owns the timeline, renderer, scene host, render loop, optional
// window and profiler, and runs the scene loop and render loop until the window closes or Quit is called.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-stage/engine/config"
	"github.com/Carmen-Shannon/oxy-stage/engine/profiler"
	"github.com/Carmen-Shannon/oxy-stage/engine/renderer"
	"github.com/Carmen-Shannon/oxy-stage/engine/scene"
	"github.com/Carmen-Shannon/oxy-stage/engine/scene_host"
	"github.com/Carmen-Shannon/oxy-stage/engine/timeline"
	"github.com/Carmen-Shannon/oxy-stage/engine/window"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrAlreadyRun is returned by Run when the engine has already been run.
var ErrAlreadyRun = errors.New("engine already run")

// engine implements the Engine interface.
// Coordinates the scene, render, and window goroutines.
type engine struct {
	log *zap.Logger

	backendType     renderer.RendererBackendType
	rendererOptions []renderer.RendererBuilderOption
	hostOptions     []scene_host.SceneHostBuilderOption
	windowOptions   []window.WindowBuilderOption
	createWindow    bool
	loggingConfig   *config.LoggingConfig

	profilerOptions  []profiler.ProfilerBuilderOption
	profilingEnabled atomic.Bool

	renderFrameLimit float64
	frameCallback    func(frame uint64, deltaTime float32)

	timeline *timeline.Timeline
	renderer renderer.Renderer
	host     scene_host.SceneHost
	loop     renderer.RenderLoop
	window   window.Window
	profiler *profiler.Profiler

	ran         atomic.Bool
	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once
}

// Engine is the main entry point for the engine.
// It wires the scene host to a renderer and runs the scene loop and render loop.
type Engine interface {
	// Host returns the scene host. Register, Add and SwitchTo scenes through it.
	//
	// Returns:
	//   - scene_host.SceneHost: the scene host
	Host() scene_host.SceneHost

	// Renderer returns the renderer the host records into and the render loop presents through.
	//
	// Returns:
	//   - renderer.Renderer: the renderer
	Renderer() renderer.Renderer

	// Window returns the underlying window.
	//
	// Returns:
	//   - window.Window: the window instance, or nil when running without one
	Window() window.Window

	// Timeline returns the timeline shared by the renderer and the scene host.
	//
	// Returns:
	//   - *timeline.Timeline: the timeline
	Timeline() *timeline.Timeline

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// Run starts the scene loop and render loop and blocks until the window closes or Quit is called.
	// Without a window, Run blocks until Quit. On return every scene has been torn down and the renderer
	// released. Run may only be called once.
	//
	// Returns:
	//   - error: the render loop's error, if it failed
	Run() error

	// Quit signals all engine goroutines to stop.
	// Safe to call multiple times and from any goroutine; subsequent calls are no-ops.
	Quit()
}

var _ Engine = &engine{}

// NewEngine creates a new Engine instance with the provided options.
// Options are applied directly to the engine struct via the option-builder pattern, then the renderer, scene
// host, render loop and profiler are created. When a window is requested it is created on the calling
// goroutine, which must also call Run.
//
// Parameters:
//   - options: functional options for engine configuration (backend, window, pipeline, profiling, etc.)
//
// Returns:
//   - Engine: the newly created engine
//   - error: error if the logger, window or renderer could not be created
func NewEngine(options ...EngineBuilderOption) (Engine, error) {
	e := &engine{
		backendType: renderer.BackendTypeHeadless,
		quitChannel: make(chan struct{}),
	}
	for _, opt := range options {
		opt(e)
	}

	if e.log == nil {
		e.log = zap.NewNop()
		if e.loggingConfig != nil {
			log, err := config.NewLogger(*e.loggingConfig)
			if err != nil {
				return nil, fmt.Errorf("create logger: %w", err)
			}
			e.log = log
		}
	}

	if e.window == nil && e.createWindow {
		w, err := window.NewWindow(e.windowOptions...)
		if err != nil {
			return nil, err
		}
		e.window = w
	}

	e.timeline = timeline.NewTimeline()

	var source renderer.SurfaceSource
	if e.window != nil {
		source = e.window
	}
	r, err := renderer.NewRenderer(e.backendType, e.timeline, source,
		append([]renderer.RendererBuilderOption{renderer.WithLogger(e.log)}, e.rendererOptions...)...)
	if err != nil {
		if e.window != nil {
			_ = e.window.Close()
		}
		return nil, fmt.Errorf("create renderer: %w", err)
	}
	e.renderer = r

	e.host = scene_host.NewSceneHost(e.renderer, e.timeline,
		append([]scene_host.SceneHostBuilderOption{scene_host.WithLogger(e.log)}, e.hostOptions...)...)
	e.profiler = profiler.NewProfiler(e.log, e.profilerOptions...)
	e.loop = renderer.NewRenderLoop(e.host, e.renderer,
		renderer.WithFrameLimit(e.renderFrameLimit),
		renderer.WithFrameCallback(e.onFrame),
		renderer.WithLoopLogger(e.log))

	if e.window != nil {
		e.window.SetEventCallback(func(event scene.Event) {
			if !e.host.PushEvent(event) {
				e.log.Debug("input event dropped", zap.Uint8("kind", uint8(event.Kind)))
			}
		})
		e.window.SetResizeCallback(func(width, height int) {
			e.renderer.Resize(width, height)
			e.host.PushEvent(scene.Event{Kind: scene.EventResize, X: int32(width), Y: int32(height)})
		})
		e.window.SetUpdateCallback(func() {
			select {
			case <-e.quitChannel:
				e.window.RequestClose()
			default:
			}
		})
	}

	return e, nil
}

func (e *engine) Host() scene_host.SceneHost {
	return e.host
}

func (e *engine) Renderer() renderer.Renderer {
	return e.renderer
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Timeline() *timeline.Timeline {
	return e.timeline
}

func (e *engine) EnableProfiler() {
	e.profilingEnabled.Store(true)
}

func (e *engine) DisableProfiler() {
	e.profilingEnabled.Store(false)
}

func (e *engine) Run() error {
	if !e.ran.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}

	e.log.Info("engine running",
		zap.Stringer("backend", e.renderer.BackendType()),
		zap.Bool("window", e.window != nil))

	var g errgroup.Group
	g.Go(func() error {
		e.host.Run()
		return nil
	})
	g.Go(func() error {
		defer e.Quit()
		return e.loop.Run()
	})

	if e.window != nil {
		e.window.ProcessMessages()
		e.Quit()
	} else {
		<-e.quitChannel
	}

	e.host.Stop()
	err := g.Wait()

	// The render loop has returned, so Tick can no longer race the host's teardown.
	e.host.Shutdown()
	e.timeline.Close()
	e.renderer.Release()
	if e.window != nil {
		if cerr := e.window.Close(); cerr != nil {
			e.log.Warn("window close failed", zap.Error(cerr))
		}
	}

	if err != nil {
		e.log.Error("engine stopped with error", zap.Error(err))
		return err
	}
	e.log.Info("engine stopped", zap.Uint64("frames", e.loop.Frame()))
	return nil
}

func (e *engine) Quit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
		e.host.Stop()
	})
}

// onFrame runs on the render goroutine after every presented frame.
func (e *engine) onFrame(frame uint64, deltaTime float32) {
	if e.profilingEnabled.Load() {
		e.profiler.Tick(e.host.Stats())
	}
	if e.frameCallback != nil {
		e.frameCallback(frame, deltaTime)
	}
}
