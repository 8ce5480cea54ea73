package scene_host

import (
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-stage/engine/renderer"
	"github.com/Carmen-Shannon/oxy-stage/engine/scene"
	"github.com/Carmen-Shannon/oxy-stage/engine/timeline"
	"github.com/Carmen-Shannon/oxy-stage/engine/worker_pool"
	"github.com/zeebo/assert"
)

func newTestHost(t *testing.T, options ...SceneHostBuilderOption) (*sceneHost, renderer.HeadlessBackend) {
	t.Helper()
	tl := timeline.NewTimeline()
	backend := renderer.NewHeadlessBackend(tl, true)
	options = append([]SceneHostBuilderOption{WithWorkers(2)}, options...)
	h := NewSceneHost(backend, tl, options...).(*sceneHost)
	t.Cleanup(h.Shutdown)
	return h, backend
}

// advance runs one scene loop iteration and plays the render loop's part of the handshake.
func advance(t *testing.T, h *sceneHost) renderer.Recording {
	t.Helper()
	assert.That(t, h.step())
	rec, ok := h.WaitFrame(h.Frame())
	assert.That(t, ok)
	h.ConsumeFrame(h.Frame())
	return rec
}

// settle ticks and completes transfer batches until the timeline reaches ticket.
func settle(t *testing.T, h *sceneHost, backend renderer.HeadlessBackend, ticket timeline.Ticket) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !h.timeline.Retired(ticket) {
		if time.Now().After(deadline) {
			t.Fatalf("timeline stuck at %d waiting for %d", h.timeline.Load(), ticket)
		}
		h.Tick()
		backend.CompleteAll()
		time.Sleep(time.Millisecond)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func purgeDeadline(h *sceneHost, id scene.ID) (uint64, bool) {
	for _, e := range h.purge {
		if e.scene == id {
			return e.deadline, true
		}
	}
	return 0, false
}

func TestAddRefusedWithoutFreeToken(t *testing.T) {
	h, _ := newTestHost(t, WithTokens(1))
	a := h.Register(scene.NewScene("a"))
	b := h.Register(scene.NewScene("b"))

	ticket, ok := h.add(b)
	assert.That(t, ok)
	assert.Equal(t, ticket, 1)

	assert.False(t, h.Add(a))
	assert.Equal(t, h.lastTicket, 1)
	assert.Equal(t, h.tokens.Available(), 0)
	assert.Equal(t, h.Active(), scene.NoID)
	assert.Equal(t, h.Requested(), scene.NoID)
	assert.That(t, advance(t, h) == nil)
	_, queued := h.backlog[a]
	assert.False(t, queued)
}

func TestAddRefusesUnknownScene(t *testing.T) {
	h, _ := newTestHost(t)
	assert.False(t, h.Add(42))
	assert.Equal(t, h.tokens.Available(), h.tokens.Cap())
	assert.Equal(t, h.lastTicket, timeline.NoTicket)
}

func TestSwitchWaitsForBuildToRetire(t *testing.T) {
	h, backend := newTestHost(t)
	a := h.Register(scene.NewScene("a"))

	ticket, ok := h.add(a)
	assert.That(t, ok)
	assert.Equal(t, ticket, 1)
	h.SwitchTo(a)

	advance(t, h)
	assert.Equal(t, h.Active(), scene.NoID)
	assert.Equal(t, h.Requested(), a)
	assert.Equal(t, h.backlog[a], 1)

	settle(t, h, backend, 1)
	advance(t, h)
	assert.Equal(t, h.Active(), a)
	assert.Equal(t, h.Requested(), scene.NoID)
	_, queued := h.backlog[a]
	assert.False(t, queued)
	assert.Equal(t, len(h.purge), 0)
}

func TestPromotionPurgesPreviousActive(t *testing.T) {
	h, backend := newTestHost(t, WithGraceWindow(5))
	a := h.Register(scene.NewScene("a"))
	b := h.Register(scene.NewScene("b"))

	assert.That(t, h.Add(a))
	h.SwitchTo(a)
	settle(t, h, backend, 1)
	advance(t, h)
	assert.Equal(t, h.Active(), a)

	assert.That(t, h.Add(b))
	h.SwitchTo(b)
	settle(t, h, backend, 2)
	advance(t, h)
	frame := h.Frame()

	assert.Equal(t, h.Active(), b)
	deadline, ok := purgeDeadline(h, a)
	assert.That(t, ok)
	assert.Equal(t, deadline, frame+5)
}

func TestFrameIsRecordedByActiveScene(t *testing.T) {
	h, backend := newTestHost(t)
	a := h.Register(scene.NewScene("a",
		scene.WithConstruct(func(target renderer.RecordingTarget) error {
			target.(*renderer.HeadlessTarget).Record("upload")
			return nil
		}),
		scene.WithRecord(func(frame uint64, target renderer.RecordingTarget) error {
			target.(*renderer.HeadlessTarget).Recordf("draw %d", frame)
			return nil
		})))

	assert.That(t, h.Add(a))
	h.SwitchTo(a)
	settle(t, h, backend, 1)
	assert.DeepEqual(t, backend.Submitted(), [][]string{{"a"}})

	rec := advance(t, h)
	assert.NotNil(t, rec)
	assert.DeepEqual(t, rec.(*renderer.HeadlessRecording).Commands, []string{"draw 1"})
}

func TestTicketsStrictlyIncreaseUnderConcurrentAdds(t *testing.T) {
	const adders, perAdder = 4, 8
	h, backend := newTestHost(t, WithTokens(adders*perAdder), WithJobQueueCapacity(adders*perAdder))

	ids := make([]scene.ID, adders*perAdder)
	for i := range ids {
		ids[i] = h.Register(scene.NewScene("s"))
	}

	var (
		mu       sync.Mutex
		tickets  []timeline.Ticket
		wg       sync.WaitGroup
		refused  atomic.Int64
		reversed atomic.Int64
	)
	for a := range adders {
		wg.Add(1)
		go func(a int) {
			defer wg.Done()
			var mine []timeline.Ticket
			for i := range perAdder {
				ticket, ok := h.add(ids[a*perAdder+i])
				if !ok {
					refused.Add(1)
					continue
				}
				if len(mine) > 0 && ticket <= mine[len(mine)-1] {
					reversed.Add(1)
				}
				mine = append(mine, ticket)
			}
			mu.Lock()
			tickets = append(tickets, mine...)
			mu.Unlock()
		}(a)
	}
	wg.Wait()
	assert.Equal(t, refused.Load(), 0)
	assert.Equal(t, reversed.Load(), 0)

	slices.Sort(tickets)
	for i, ticket := range tickets {
		assert.Equal(t, ticket, i+1)
	}

	settle(t, h, backend, timeline.Ticket(len(tickets)))
	assert.Equal(t, h.timeline.Load(), len(tickets))
	assert.Equal(t, h.pool.Built(), len(tickets))
}

func TestTickBatchesOnlyContiguousTickets(t *testing.T) {
	h, backend := newTestHost(t)

	h.recordings[2] = &renderer.HeadlessRecording{Label: "second"}
	assert.That(t, h.completions.TryPush(worker_pool.Completion{Scene: 2, Ticket: 2, Token: 2}))
	h.Tick()
	assert.Equal(t, len(backend.Submitted()), 0)
	assert.Equal(t, len(h.completed), 1)

	h.recordings[1] = &renderer.HeadlessRecording{Label: "first"}
	assert.That(t, h.completions.TryPush(worker_pool.Completion{Scene: 1, Ticket: 1, Token: 1}))
	h.Tick()
	assert.DeepEqual(t, backend.Submitted(), [][]string{{"first", "second"}})
	assert.Equal(t, h.submitted, 2)
	assert.Equal(t, len(h.completed), 0)
	assert.Nil(t, h.recordings[1])
	assert.Nil(t, h.recordings[2])

	assert.Equal(t, h.timeline.Load(), timeline.NoTicket)
	assert.Equal(t, backend.CompleteNext(), 2)
	assert.Equal(t, h.timeline.Load(), 2)
}

func TestTokensReturnAfterRetire(t *testing.T) {
	h, backend := newTestHost(t, WithTokens(2))
	a := h.Register(scene.NewScene("a"))
	b := h.Register(scene.NewScene("b"))
	c := h.Register(scene.NewScene("c"))

	assert.That(t, h.Add(a))
	assert.That(t, h.Add(b))
	assert.False(t, h.Add(c))

	advance(t, h)
	assert.Equal(t, h.tokens.Available(), 0)
	assert.Equal(t, len(h.inUse), 2)

	settle(t, h, backend, 2)
	advance(t, h)
	assert.Equal(t, h.tokens.Available(), 2)
	assert.Equal(t, len(h.inUse), 0)
	assert.That(t, h.Add(c))
}

func TestNoDestroyBeforeGraceWindow(t *testing.T) {
	const grace = 4
	var destroyedAt atomic.Uint64

	h, backend := newTestHost(t, WithGraceWindow(grace))
	a := h.Register(scene.NewScene("a", scene.WithDestroy(func() error {
		destroyedAt.Store(h.Frame())
		return nil
	})))
	b := h.Register(scene.NewScene("b"))

	assert.That(t, h.Add(a))
	h.SwitchTo(a)
	settle(t, h, backend, 1)
	advance(t, h)

	assert.That(t, h.Add(b))
	h.SwitchTo(b)
	settle(t, h, backend, 2)
	advance(t, h)
	retiredAt := h.Frame()
	assert.Equal(t, h.Active(), b)

	for h.Frame() < retiredAt+grace-1 {
		advance(t, h)
		_, ok := purgeDeadline(h, a)
		assert.That(t, ok)
	}
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, h.pool.Destroyed(), 0)

	advance(t, h)
	_, ok := purgeDeadline(h, a)
	assert.False(t, ok)
	waitFor(t, "teardown of a", func() bool { return h.pool.Destroyed() == 1 })
	assert.That(t, destroyedAt.Load() >= retiredAt+grace)

	_, registered := h.Scene(a)
	assert.False(t, registered)
	assert.False(t, h.Add(a))
}

func TestRepromotionCancelsPurge(t *testing.T) {
	h, backend := newTestHost(t, WithGraceWindow(3), WithTokens(4))
	a := h.Register(scene.NewScene("a"))
	b := h.Register(scene.NewScene("b"))

	assert.That(t, h.Add(a))
	h.SwitchTo(a)
	settle(t, h, backend, 1)
	advance(t, h)

	assert.That(t, h.Add(b))
	h.SwitchTo(b)
	settle(t, h, backend, 2)
	advance(t, h)
	_, ok := purgeDeadline(h, a)
	assert.That(t, ok)

	assert.That(t, h.Add(a))
	h.SwitchTo(a)
	settle(t, h, backend, 3)
	advance(t, h)
	assert.Equal(t, h.Active(), a)

	_, ok = purgeDeadline(h, a)
	assert.False(t, ok)
	_, ok = purgeDeadline(h, b)
	assert.That(t, ok)

	for range 5 {
		advance(t, h)
	}
	waitFor(t, "teardown of b", func() bool { return h.pool.Destroyed() == 1 })
	_, registered := h.Scene(a)
	assert.That(t, registered)
	assert.Equal(t, h.ActiveScene().Name(), "a")
}

func TestSwitchToActiveClearsRequest(t *testing.T) {
	h, backend := newTestHost(t)
	a := h.Register(scene.NewScene("a"))

	assert.That(t, h.Add(a))
	h.SwitchTo(a)
	settle(t, h, backend, 1)
	advance(t, h)

	h.SwitchTo(a)
	advance(t, h)
	assert.Equal(t, h.Requested(), scene.NoID)
	assert.Equal(t, h.Active(), a)
	assert.Equal(t, len(h.purge), 0)
}

func TestAddRefusedWhileActiveOrPending(t *testing.T) {
	const grace = 3
	var constructs atomic.Int64

	h, backend := newTestHost(t, WithGraceWindow(grace), WithTokens(4))
	s := scene.NewScene("a", scene.WithConstruct(func(renderer.RecordingTarget) error {
		constructs.Add(1)
		return nil
	}))
	a := h.Register(s)
	b := h.Register(scene.NewScene("b"))

	assert.That(t, h.Add(a))
	assert.False(t, h.Add(a))
	assert.That(t, h.registry.pending(a))
	h.SwitchTo(a)
	settle(t, h, backend, 1)
	advance(t, h)
	assert.Equal(t, h.Active(), a)
	assert.False(t, h.registry.pending(a))

	assert.False(t, h.Add(a))
	assert.Equal(t, h.lastTicket, 1)
	assert.Equal(t, h.tokens.Available(), 4)
	_, queued := h.backlog[a]
	assert.False(t, queued)

	ticket, ok := h.Submit(b)
	assert.That(t, ok)
	assert.Equal(t, ticket, 2)
	_, ok = h.Submit(b)
	assert.False(t, ok)
	h.SwitchTo(b)
	settle(t, h, backend, 2)
	advance(t, h)
	assert.Equal(t, h.Active(), b)

	for range grace + 1 {
		advance(t, h)
	}
	waitFor(t, "teardown of a", func() bool { return h.pool.Destroyed() == 1 })
	assert.That(t, s.Destroyed())
	assert.Equal(t, constructs.Load(), 1)
	_, registered := h.Scene(a)
	assert.False(t, registered)
}

func TestEventsWaitForAScene(t *testing.T) {
	var (
		mu    sync.Mutex
		codes []uint32
	)
	h, backend := newTestHost(t)
	a := h.Register(scene.NewScene("a", scene.WithEventHandler(func(event scene.Event) {
		mu.Lock()
		codes = append(codes, event.Code)
		mu.Unlock()
	})))

	for code := uint32(1); code <= 3; code++ {
		assert.That(t, h.PushEvent(scene.Event{Kind: scene.EventKeyDown, Code: code}))
	}
	advance(t, h)
	assert.Equal(t, h.events.Len(), 3)

	assert.That(t, h.Add(a))
	h.SwitchTo(a)
	settle(t, h, backend, 1)
	advance(t, h)

	mu.Lock()
	defer mu.Unlock()
	assert.DeepEqual(t, codes, []uint32{1, 2, 3})
	assert.That(t, h.events.Empty())
}

func TestBoundedLagWithRenderLoop(t *testing.T) {
	const depth = 3
	tl := timeline.NewTimeline()
	backend := renderer.NewHeadlessBackend(tl, false)
	h := NewSceneHost(backend, tl, WithPipelineDepth(depth), WithWorkers(2))

	var violations atomic.Int64
	s := scene.NewScene("lag", scene.WithRecord(func(frame uint64, _ renderer.RecordingTarget) error {
		if frame > h.Consumed()+depth-1 {
			violations.Add(1)
		}
		return nil
	}))
	id := h.Register(s)
	assert.That(t, h.Add(id))
	h.SwitchTo(id)

	loop := renderer.NewRenderLoop(h, backend, renderer.WithFrameCallback(func(frame uint64, _ float32) {
		if h.Frame() > h.Consumed()+depth-1 {
			violations.Add(1)
		}
		if frame >= 200 && s.Frames() > 0 {
			h.Stop()
		}
	}))

	done := make(chan error, 1)
	go func() { done <- loop.Run() }()
	h.Start()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("render loop did not stop")
	}
	h.Shutdown()

	assert.Equal(t, violations.Load(), 0)
	assert.That(t, loop.Frame() >= 200)
	assert.That(t, s.Frames() > 0)
	assert.That(t, s.Destroyed())
	assert.Equal(t, h.Active(), scene.NoID)
}

func TestShutdownDestroysLeftoverScenes(t *testing.T) {
	h, backend := newTestHost(t)
	a := scene.NewScene("a")
	b := scene.NewScene("b")
	c := scene.NewScene("c")
	ida := h.Register(a)
	idb := h.Register(b)
	idc := h.Register(c)

	assert.That(t, h.Add(ida))
	h.SwitchTo(ida)
	settle(t, h, backend, 1)
	advance(t, h)

	assert.That(t, h.Add(idb))
	waitFor(t, "build of b", func() bool { return h.pool.Built() == 2 })
	h.SwitchTo(idc)

	h.Shutdown()
	assert.That(t, a.Destroyed())
	assert.That(t, b.Destroyed())
	assert.False(t, c.Destroyed())
	assert.Equal(t, h.registry.len(), 1)
	assert.Equal(t, h.Active(), scene.NoID)
	assert.False(t, h.Add(idc))

	_, ok := h.WaitFrame(h.Frame() + 1)
	assert.False(t, ok)
}

func TestInvalidPipelineConfigurationPanics(t *testing.T) {
	tl := timeline.NewTimeline()
	backend := renderer.NewHeadlessBackend(tl, false)

	for _, options := range [][]SceneHostBuilderOption{
		{WithPipelineDepth(1)},
		{WithPipelineDepth(3), WithGraceWindow(2)},
	} {
		func() {
			defer func() { assert.NotNil(t, recover()) }()
			NewSceneHost(backend, tl, options...)
		}()
	}
}

func TestStatsSnapshot(t *testing.T) {
	h, backend := newTestHost(t, WithTokens(3))
	a := h.Register(scene.NewScene("a"))

	assert.That(t, h.Add(a))
	h.SwitchTo(a)
	settle(t, h, backend, 1)
	advance(t, h)
	advance(t, h)

	stats := h.Stats()
	assert.Equal(t, stats.Frame, 2)
	assert.Equal(t, stats.Consumed, 2)
	assert.Equal(t, stats.Lag(), 0)
	assert.Equal(t, stats.Timeline, 1)
	assert.Equal(t, stats.Active, a)
	assert.Equal(t, stats.Requested, scene.NoID)
	assert.Equal(t, stats.Backlog, 0)
	assert.Equal(t, stats.FreeTokens, 3)
	assert.Equal(t, stats.Built, 1)
}
