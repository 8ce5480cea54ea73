// package scene_host sequences scene construction, execution and teardown across three kinds of goroutine:
// the render loop, a single scene loop, and a worker pool. Scenes are built asynchronously, promoted to active
// only once their build has retired on the timeline, and destroyed only after every frame that could still
// reference them has been consumed.
package scene_host

import (
	"cmp"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-stage/engine/queue"
	"github.com/Carmen-Shannon/oxy-stage/engine/renderer"
	"github.com/Carmen-Shannon/oxy-stage/engine/scene"
	"github.com/Carmen-Shannon/oxy-stage/engine/timeline"
	"github.com/Carmen-Shannon/oxy-stage/engine/waitable"
	"github.com/Carmen-Shannon/oxy-stage/engine/worker_pool"
	"go.uber.org/zap"
)

// submission hands a successful Add to the scene loop, which owns the backlog and the in-use token table.
type submission struct {
	scene  scene.ID
	ticket timeline.Ticket
	token  timeline.Token
}

// purgeEntry is a retired scene waiting for its safe-destroy frame.
type purgeEntry struct {
	scene    scene.ID
	deadline uint64
}

// frameSlot carries one published frame to the render loop. Exactly one side takes the recording out.
type frameSlot struct {
	recording renderer.Recording
}

// Stats is a point-in-time snapshot of the pipeline, for profiling and diagnostics.
type Stats struct {
	Frame      uint64
	Consumed   uint64
	Timeline   timeline.Ticket
	Active     scene.ID
	Requested  scene.ID
	Backlog    int
	Purge      int
	FreeTokens int
	Built      uint64
	Destroyed  uint64
}

// Lag returns how many published frames the render loop has not yet consumed.
func (s Stats) Lag() uint64 {
	if s.Frame < s.Consumed {
		return 0
	}
	return s.Frame - s.Consumed
}

// SceneHost owns the scene lifecycle: which scene is active, which are being built, and which are waiting
// to be torn down. It also implements renderer.FrameSource for the render loop.
type SceneHost interface {
	renderer.FrameSource

	// Register adds a scene to the host's registry. Registration does not build the scene.
	//
	// Parameters:
	//   - s: the scene
	//
	// Returns:
	//   - scene.ID: the scene's stable identity
	Register(s scene.Scene) scene.ID

	// Scene looks up a registered scene.
	//
	// Parameters:
	//   - id: the scene identity
	//
	// Returns:
	//   - scene.Scene: the scene, or nil
	//   - bool: false if id is not registered
	Scene(id scene.ID) (scene.Scene, bool)

	// Add submits a registered scene for asynchronous construction.
	// Fails without side effects when no recording token is free, the job queue is full, the scene is unknown
	// or already queued for teardown, or the host is shutting down. Failure is backpressure: retry later.
	// An active scene, or one whose earlier build has not been promoted yet, is refused.
	//
	// Parameters:
	//   - id: the scene to build
	//
	// Returns:
	//   - bool: true if a build job was submitted
	Add(id scene.ID) bool

	// Submit is Add, returning the build's ticket so the caller can block on Timeline.Wait until the build has
	// retired.
	//
	// Parameters:
	//   - id: the scene to build
	//
	// Returns:
	//   - timeline.Ticket: the build ticket, or timeline.NoTicket when refused
	//   - bool: true if a build job was submitted
	Submit(id scene.ID) (timeline.Ticket, bool)

	// SwitchTo requests that id become the active scene once its build has retired.
	// A later request replaces an earlier one that has not been realised yet.
	//
	// Parameters:
	//   - id: the scene to activate
	SwitchTo(id scene.ID)

	// PushEvent queues an input or control event for the executing scene's next tick.
	//
	// Parameters:
	//   - event: the event
	//
	// Returns:
	//   - bool: false if the event queue was full
	PushEvent(event scene.Event) bool

	// Start runs the scene loop on a new goroutine.
	Start()

	// Run runs the scene loop on the calling goroutine until Stop or Shutdown is called.
	Run()

	// Stop asks the scene loop and any goroutine blocked in WaitFrame to return. It does not wait.
	Stop()

	// Shutdown stops the scene loop, drains and joins the worker pool, then synchronously destroys every scene
	// that was built or being built and never handed to a worker for teardown.
	// Tick must not be called concurrently with Shutdown. Safe to call multiple times.
	Shutdown()

	// Active returns the active scene's identity.
	//
	// Returns:
	//   - scene.ID: the active scene, or scene.NoID
	Active() scene.ID

	// ActiveScene returns the active scene.
	//
	// Returns:
	//   - scene.Scene: the active scene, or nil
	ActiveScene() scene.Scene

	// Requested returns the pending switch request.
	//
	// Returns:
	//   - scene.ID: the requested scene, or scene.NoID
	Requested() scene.ID

	// Frame returns the last published frame number.
	Frame() uint64

	// Consumed returns the last frame number the render loop reported consumed.
	Consumed() uint64

	// Timeline returns the timeline the host promotes against.
	Timeline() *timeline.Timeline

	// Stats returns a snapshot of the pipeline state.
	Stats() Stats
}

// sceneHost is the implementation of the SceneHost interface.
type sceneHost struct {
	backend  renderer.RendererBackend
	timeline *timeline.Timeline
	log      *zap.Logger

	depth              uint64
	graceWindow        uint64
	workers            int
	tokenCount         int
	eventCapacity      int
	jobCapacity        int
	completionCapacity int

	registry    *registry
	tokens      *timeline.TokenPool
	events      *queue.BoundedQueue[scene.Event]
	jobs        *queue.BoundedQueue[worker_pool.Job]
	completions *queue.BoundedQueue[worker_pool.Completion]
	submissions *queue.BoundedQueue[submission]
	pool        worker_pool.WorkerPool

	// recordings holds each token's finished build recording between the worker and Tick.
	recordings []renderer.Recording

	// mu serialises Add, the purge drain, and lifecycle transitions.
	mu         sync.Mutex
	lastTicket timeline.Ticket
	running    bool
	stopping   atomic.Bool
	loopDone   chan struct{}
	shutdown   sync.Once

	requested atomic.Uint32
	active    atomic.Uint32

	published waitable.Uint64
	consumed  waitable.Uint64
	frames    []atomic.Pointer[frameSlot]

	// Scene loop state.
	frame    uint64
	lastTick time.Time
	backlog  map[scene.ID]timeline.Ticket
	inUse    map[timeline.Token]timeline.Ticket
	purge    []purgeEntry

	// Render loop state.
	completed []worker_pool.Completion
	submitted timeline.Ticket
	batch     []renderer.Recording

	backlogLen atomic.Int64
	purgeLen   atomic.Int64
}

var _ SceneHost = &sceneHost{}

// NewSceneHost creates a new SceneHost and starts its worker pool. The scene loop is not started.
// Panics if the pipeline depth is below 2 or the grace window is below the pipeline depth.
//
// Parameters:
//   - backend: records and submits command streams
//   - tl: the timeline the backend advances as build batches complete
//   - options: variadic list of SceneHostBuilderOption functions to configure the host
//
// Returns:
//   - SceneHost: the host
func NewSceneHost(backend renderer.RendererBackend, tl *timeline.Timeline, options ...SceneHostBuilderOption) SceneHost {
	h := &sceneHost{
		backend:            backend,
		timeline:           tl,
		log:                zap.NewNop(),
		depth:              2,
		workers:            worker_pool.DefaultWorkers(),
		tokenCount:         4,
		eventCapacity:      256,
		jobCapacity:        64,
		completionCapacity: 16,
		registry:           newRegistry(),
		loopDone:           make(chan struct{}),
		backlog:            make(map[scene.ID]timeline.Ticket),
		inUse:              make(map[timeline.Token]timeline.Ticket),
	}
	for _, opt := range options {
		opt(h)
	}

	if h.depth < 2 {
		h.log.Panic("pipeline depth must be at least 2", zap.Uint64("depth", h.depth))
	}
	if h.graceWindow == 0 {
		h.graceWindow = h.depth + 1
	}
	if h.graceWindow < h.depth {
		h.log.Panic("grace window must be at least the pipeline depth",
			zap.Uint64("grace_window", h.graceWindow),
			zap.Uint64("depth", h.depth))
	}

	h.tokens = timeline.NewTokenPool(h.tokenCount)
	h.recordings = make([]renderer.Recording, h.tokenCount+1)
	h.submissions = queue.NewBoundedQueue[submission](h.tokenCount)
	h.events = queue.NewBoundedQueue[scene.Event](h.eventCapacity)
	h.jobs = queue.NewBoundedQueue[worker_pool.Job](max(h.jobCapacity, h.tokenCount))
	h.completions = queue.NewBoundedQueue[worker_pool.Completion](max(h.completionCapacity, h.tokenCount))
	h.frames = make([]atomic.Pointer[frameSlot], h.depth)

	h.pool = worker_pool.NewWorkerPool(h.jobs, h.completions, &hostExecutor{host: h},
		worker_pool.WithWorkers(h.workers),
		worker_pool.WithLogger(h.log))

	h.log.Info("scene host ready",
		zap.Uint64("depth", h.depth),
		zap.Uint64("grace_window", h.graceWindow),
		zap.Int("workers", h.pool.Workers()),
		zap.Int("tokens", h.tokenCount))
	return h
}

func (h *sceneHost) Register(s scene.Scene) scene.ID {
	id := h.registry.register(s)
	h.log.Debug("scene registered", zap.Uint32("scene", uint32(id)), zap.String("name", s.Name()))
	return id
}

func (h *sceneHost) Scene(id scene.ID) (scene.Scene, bool) {
	return h.registry.lookup(id)
}

func (h *sceneHost) Add(id scene.ID) bool {
	_, ok := h.add(id)
	return ok
}

func (h *sceneHost) Submit(id scene.ID) (timeline.Ticket, bool) {
	return h.add(id)
}

// add checks out a token, issues the next ticket and queues the build job. Tickets are only consumed when the
// job is queued, so the sequence the render loop sees has no gaps. A scene that is active or already has a
// build waiting for promotion is refused.
func (h *sceneHost) add(id scene.ID) (timeline.Ticket, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopping.Load() || !h.registry.admit(id) {
		return timeline.NoTicket, false
	}
	// promote stores active before settling, so a successful admit always observes the promotion.
	if scene.ID(h.active.Load()) == id {
		h.registry.settle(id)
		h.log.Debug("add refused: scene is active", zap.Uint32("scene", uint32(id)))
		return timeline.NoTicket, false
	}

	tok, ok := h.tokens.Checkout()
	if !ok {
		h.registry.settle(id)
		h.log.Debug("add refused: no free token", zap.Uint32("scene", uint32(id)))
		return timeline.NoTicket, false
	}

	ticket := h.lastTicket + 1
	if !h.jobs.TryPush(worker_pool.Job{Scene: id, Ticket: ticket, Token: tok}) {
		h.registry.settle(id)
		h.tokens.Return(tok)
		h.log.Debug("add refused: job queue full", zap.Uint32("scene", uint32(id)))
		return timeline.NoTicket, false
	}
	h.lastTicket = ticket

	if !h.submissions.TryPush(submission{scene: id, ticket: ticket, token: tok}) {
		h.log.Panic("submission queue overflow", zap.Uint64("ticket", uint64(ticket)))
	}

	h.log.Debug("build submitted",
		zap.Uint32("scene", uint32(id)),
		zap.Uint64("ticket", uint64(ticket)),
		zap.Uint32("token", uint32(tok)))
	return ticket, true
}

func (h *sceneHost) SwitchTo(id scene.ID) {
	h.requested.Store(uint32(id))
}

func (h *sceneHost) PushEvent(event scene.Event) bool {
	return h.events.TryPush(event)
}

func (h *sceneHost) Tick() {
	for {
		c, ok := h.completions.TryPop()
		if !ok {
			break
		}
		h.completed = append(h.completed, c)
	}
	if len(h.completed) == 0 {
		return
	}

	// Workers finish out of order. Only the gap-free prefix after the last submitted ticket goes out, so the
	// timeline can never pass a ticket whose build is still running.
	slices.SortFunc(h.completed, func(a, b worker_pool.Completion) int {
		return cmp.Compare(a.Ticket, b.Ticket)
	})
	n := 0
	for n < len(h.completed) && h.completed[n].Ticket == h.submitted+timeline.Ticket(n+1) {
		n++
	}
	if n == 0 {
		return
	}

	batch := h.batch[:0]
	for _, c := range h.completed[:n] {
		batch = append(batch, h.recordings[c.Token])
		h.recordings[c.Token] = nil
	}
	signal := h.completed[n-1].Ticket
	h.completed = append(h.completed[:0], h.completed[n:]...)

	if err := h.backend.Submit(batch, signal); err != nil {
		h.log.Panic("transfer submission failed", zap.Uint64("ticket", uint64(signal)), zap.Error(err))
	}
	h.submitted = signal
	clear(batch)
	h.batch = batch[:0]

	h.log.Debug("transfer batch submitted", zap.Int("recordings", n), zap.Uint64("signal", uint64(signal)))
}

func (h *sceneHost) WaitFrame(frame uint64) (renderer.Recording, bool) {
	h.published.WaitUntil(func(v uint64) bool {
		return v >= frame || h.stopping.Load()
	})
	if h.stopping.Load() {
		return nil, false
	}

	slot := h.frames[frame%h.depth].Swap(nil)
	if slot == nil {
		return nil, true
	}
	return slot.recording, true
}

func (h *sceneHost) ConsumeFrame(frame uint64) {
	h.consumed.Store(frame)
}

func (h *sceneHost) Active() scene.ID {
	return scene.ID(h.active.Load())
}

func (h *sceneHost) ActiveScene() scene.Scene {
	s, _ := h.registry.lookup(h.Active())
	return s
}

func (h *sceneHost) Requested() scene.ID {
	return scene.ID(h.requested.Load())
}

func (h *sceneHost) Frame() uint64 {
	return h.published.Load()
}

func (h *sceneHost) Consumed() uint64 {
	return h.consumed.Load()
}

func (h *sceneHost) Timeline() *timeline.Timeline {
	return h.timeline
}

func (h *sceneHost) Stats() Stats {
	return Stats{
		Frame:      h.published.Load(),
		Consumed:   h.consumed.Load(),
		Timeline:   h.timeline.Load(),
		Active:     h.Active(),
		Requested:  h.Requested(),
		Backlog:    int(h.backlogLen.Load()),
		Purge:      int(h.purgeLen.Load()),
		FreeTokens: h.tokens.Available(),
		Built:      h.pool.Built(),
		Destroyed:  h.pool.Destroyed(),
	}
}
