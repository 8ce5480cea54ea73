package engine

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-stage/engine/config"
	"github.com/Carmen-Shannon/oxy-stage/engine/renderer"
	"github.com/Carmen-Shannon/oxy-stage/engine/scene"
	"github.com/Carmen-Shannon/oxy-stage/engine/scene_host"
	"github.com/zeebo/assert"
)

func runAsync(e Engine) <-chan error {
	done := make(chan error, 1)
	go func() { done <- e.Run() }()
	return done
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("engine did not stop")
		return nil
	}
}

func TestHeadlessEngineSwitchesScenes(t *testing.T) {
	var switched atomic.Bool

	e, err := NewEngine(
		WithHostOptions(scene_host.WithWorkers(2), scene_host.WithGraceWindow(3)),
		WithRenderFrameLimit(1000),
	)
	assert.NoError(t, err)
	host := e.Host()

	first := scene.NewScene("first")
	second := scene.NewScene("second")
	a := host.Register(first)
	b := host.Register(second)

	assert.That(t, host.Add(a))
	host.SwitchTo(a)
	done := runAsync(e)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !switched.Load() && first.Frames() > 5 {
			assert.That(t, host.Add(b))
			host.SwitchTo(b)
			switched.Store(true)
		}
		if first.Destroyed() && second.Frames() > 5 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	e.Quit()
	e.Quit()
	assert.NoError(t, waitRun(t, done))

	assert.That(t, first.Destroyed())
	assert.That(t, second.Destroyed())
	assert.That(t, second.Frames() > 5)
	assert.That(t, e.Renderer().PresentedFrames() > 0)
	assert.That(t, e.Renderer().SubmittedBatches() >= 2)
	assert.Equal(t, e.Timeline().Load(), 2)
	assert.Equal(t, host.Active(), scene.NoID)
}

func TestRunOnlyOnce(t *testing.T) {
	e, err := NewEngine(WithHostOptions(scene_host.WithWorkers(1)))
	assert.NoError(t, err)

	e.Quit()
	assert.NoError(t, e.Run())
	assert.Equal(t, e.Run(), ErrAlreadyRun)
}

func TestEventsReachActiveScene(t *testing.T) {
	var handled atomic.Int64
	s := scene.NewScene("input", scene.WithEventHandler(func(event scene.Event) {
		if event.Kind == scene.EventCustom {
			handled.Add(1)
		}
	}))

	e, err := NewEngine(WithHostOptions(scene_host.WithWorkers(1)), WithRenderFrameLimit(500))
	assert.NoError(t, err)
	id := e.Host().Register(s)
	assert.That(t, e.Host().Add(id))
	e.Host().SwitchTo(id)
	done := runAsync(e)

	for i := range 3 {
		assert.That(t, e.Host().PushEvent(scene.Event{Kind: scene.EventCustom, Code: uint32(i)}))
	}

	deadline := time.Now().Add(5 * time.Second)
	for handled.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	e.Quit()
	assert.NoError(t, waitRun(t, done))
	assert.Equal(t, handled.Load(), 3)
}

func TestEngineFromConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stage.toml")
	assert.NoError(t, os.WriteFile(path, []byte(`
[pipeline]
depth = 3
workers = 1
tokens = 2

[render]
frame_limit = 1000.0

[logging]
level = "error"

[profiler]
enabled = true
interval = "10ms"
`), 0o644))

	cfg, err := config.Load(path)
	assert.NoError(t, err)

	var frames atomic.Uint64
	e, err := NewEngine(WithConfig(cfg), WithFrameCallback(func(frame uint64, _ float32) {
		frames.Store(frame)
	}))
	assert.NoError(t, err)
	assert.Equal(t, e.Renderer().BackendType(), renderer.BackendTypeHeadless)
	assert.Nil(t, e.Window())

	done := runAsync(e)
	deadline := time.Now().Add(5 * time.Second)
	for frames.Load() < 20 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	e.Quit()
	assert.NoError(t, waitRun(t, done))
	assert.That(t, frames.Load() >= 20)
	assert.That(t, e.Host().Stats().Lag() <= 2)
}

func TestSubmittedBuildRetiresOnTimeline(t *testing.T) {
	e, err := NewEngine(WithHostOptions(scene_host.WithWorkers(1)), WithRenderFrameLimit(1000))
	assert.NoError(t, err)
	s := scene.NewScene("waited")
	id := e.Host().Register(s)
	done := runAsync(e)

	ticket, ok := e.Host().Submit(id)
	assert.That(t, ok)
	assert.Equal(t, ticket, 1)
	assert.That(t, e.Timeline().Wait(ticket))
	assert.That(t, s.Constructed())
	assert.That(t, e.Timeline().Retired(ticket))

	e.Quit()
	assert.NoError(t, waitRun(t, done))
}

func TestQuitReleasesTimelineWaiters(t *testing.T) {
	e, err := NewEngine(WithHostOptions(scene_host.WithWorkers(1)), WithRenderFrameLimit(1000))
	assert.NoError(t, err)
	done := runAsync(e)

	released := make(chan bool, 1)
	go func() { released <- e.Timeline().Wait(100) }()

	e.Quit()
	assert.NoError(t, waitRun(t, done))
	select {
	case ok := <-released:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("timeline waiter was not released")
	}
}
