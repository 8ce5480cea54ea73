package scene_host

import (
	"fmt"
	"time"

	"github.com/Carmen-Shannon/oxy-stage/engine/renderer"
	"github.com/Carmen-Shannon/oxy-stage/engine/scene"
	"github.com/Carmen-Shannon/oxy-stage/engine/timeline"
	"github.com/Carmen-Shannon/oxy-stage/engine/worker_pool"
	"go.uber.org/zap"
)

func (h *sceneHost) Start() {
	if !h.claimLoop() {
		return
	}
	go h.loop()
}

func (h *sceneHost) Run() {
	if !h.claimLoop() {
		return
	}
	h.loop()
}

// claimLoop marks the scene loop as running. Only one loop may ever run, and none once stopping.
func (h *sceneHost) claimLoop() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running || h.stopping.Load() {
		return false
	}
	h.running = true
	return true
}

func (h *sceneHost) loop() {
	defer close(h.loopDone)

	h.log.Debug("scene loop started")
	h.lastTick = time.Now()
	for h.step() {
	}
	h.log.Debug("scene loop stopped", zap.Uint64("frame", h.frame))
}

func (h *sceneHost) Stop() {
	h.mu.Lock()
	h.stopping.Store(true)
	h.mu.Unlock()

	h.consumed.Wake()
	h.published.Wake()
}

func (h *sceneHost) Shutdown() {
	h.shutdown.Do(func() {
		h.Stop()

		h.mu.Lock()
		running := h.running
		h.mu.Unlock()
		if running {
			<-h.loopDone
		}

		h.pool.Close()
		h.terminate()
		h.log.Info("scene host shut down",
			zap.Uint64("frame", h.frame),
			zap.Uint64("built", h.pool.Built()),
			zap.Uint64("destroyed", h.pool.Destroyed()))
	})
}

// step runs one scene loop iteration and reports whether the loop should continue.
func (h *sceneHost) step() bool {
	next := h.frame + 1

	// Bounded lag: frame next may only be produced once frame next-(K-1) has been consumed.
	h.consumed.WaitUntil(func(c uint64) bool {
		return c+h.depth-1 >= next || h.stopping.Load()
	})
	if h.stopping.Load() {
		return false
	}

	tl := h.timeline.Load()
	h.drainSubmissions()

	active := scene.ID(h.active.Load())
	requested := scene.ID(h.requested.Load())
	candidate, promote := active, false
	switch {
	case requested == scene.NoID:
	case requested == active:
		h.requested.CompareAndSwap(uint32(requested), uint32(scene.NoID))
	default:
		if ticket, ok := h.backlog[requested]; ok && ticket <= tl {
			candidate, promote = requested, true
		}
	}

	now := time.Now()
	dt := float32(now.Sub(h.lastTick).Seconds())
	h.lastTick = now

	var slot *frameSlot
	if candidate != scene.NoID {
		slot = &frameSlot{recording: h.execute(candidate, next, dt)}
	}

	if promote {
		h.promote(active, candidate, next)
	}

	if old := h.frames[next%h.depth].Swap(slot); old != nil && old.recording != nil {
		old.recording.Release()
	}
	h.frame = next
	h.published.Store(next)

	h.reclaim(tl)
	h.drainPurge(next)
	return true
}

// drainSubmissions moves every successful Add into the backlog and the in-use token table.
func (h *sceneHost) drainSubmissions() {
	for {
		sub, ok := h.submissions.TryPop()
		if !ok {
			break
		}
		h.backlog[sub.scene] = sub.ticket
		h.inUse[sub.token] = sub.ticket
	}
	h.backlogLen.Store(int64(len(h.backlog)))
}

// execute runs one tick of the candidate scene and returns the recording for frame.
func (h *sceneHost) execute(id scene.ID, frame uint64, dt float32) renderer.Recording {
	s, ok := h.registry.lookup(id)
	if !ok {
		h.log.Panic("executing scene is not registered", zap.Uint32("scene", uint32(id)))
	}

	for {
		ev, ok := h.events.TryPop()
		if !ok {
			break
		}
		s.HandleEvent(ev)
	}
	s.Update(dt)

	target, err := h.backend.BeginRecording("frame")
	if err != nil {
		h.log.Panic("begin frame recording failed", zap.Uint64("frame", frame), zap.Error(err))
	}
	if err := s.Record(frame, target); err != nil {
		h.log.Panic("scene record failed",
			zap.String("scene", s.Name()),
			zap.Uint64("frame", frame),
			zap.Error(err))
	}
	rec, err := h.backend.FinishRecording(target)
	if err != nil {
		h.log.Panic("finish frame recording failed", zap.Uint64("frame", frame), zap.Error(err))
	}
	return rec
}

// promote makes candidate the active scene and schedules the previous one for teardown.
func (h *sceneHost) promote(previous, candidate scene.ID, frame uint64) {
	h.active.Store(uint32(candidate))
	h.registry.settle(candidate)
	delete(h.backlog, candidate)
	h.backlogLen.Store(int64(len(h.backlog)))
	h.dropPurge(candidate)

	if previous != scene.NoID {
		h.schedulePurge(previous, frame+h.graceWindow)
	}
	h.requested.CompareAndSwap(uint32(candidate), uint32(scene.NoID))

	h.log.Info("scene promoted",
		zap.Uint32("scene", uint32(candidate)),
		zap.Uint32("previous", uint32(previous)),
		zap.Uint64("frame", frame))
}

// schedulePurge queues id for teardown at deadline. A scene already waiting has its deadline moved.
func (h *sceneHost) schedulePurge(id scene.ID, deadline uint64) {
	for i := range h.purge {
		if h.purge[i].scene == id {
			h.purge[i].deadline = max(h.purge[i].deadline, deadline)
			return
		}
	}
	h.purge = append(h.purge, purgeEntry{scene: id, deadline: deadline})
	h.purgeLen.Store(int64(len(h.purge)))
}

func (h *sceneHost) dropPurge(id scene.ID) {
	for i := range h.purge {
		if h.purge[i].scene == id {
			h.purge = append(h.purge[:i], h.purge[i+1:]...)
			break
		}
	}
	h.purgeLen.Store(int64(len(h.purge)))
}

// reclaim returns every token whose build ticket has retired.
func (h *sceneHost) reclaim(tl timeline.Ticket) {
	for tok, ticket := range h.inUse {
		if ticket <= tl {
			delete(h.inUse, tok)
			h.tokens.Return(tok)
		}
	}
}

// drainPurge submits destroy jobs for entries whose deadline has passed. It holds the host mutex so an Add of
// the same scene is either visible in the backlog or refused.
func (h *sceneHost) drainPurge(frame uint64) {
	if len(h.purge) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.drainSubmissions()

	kept := h.purge[:0]
	for _, e := range h.purge {
		if e.deadline > frame {
			kept = append(kept, e)
			continue
		}
		if _, rebuilt := h.backlog[e.scene]; rebuilt || e.scene == scene.ID(h.active.Load()) {
			continue
		}

		h.registry.retire(e.scene)
		if !h.jobs.TryPush(worker_pool.Job{Scene: e.scene}) {
			kept = append(kept, e)
			continue
		}
		h.log.Debug("scene teardown submitted",
			zap.Uint32("scene", uint32(e.scene)),
			zap.Uint64("deadline", e.deadline),
			zap.Uint64("frame", frame))
	}
	clear(h.purge[len(kept):])
	h.purge = kept
	h.purgeLen.Store(int64(len(h.purge)))
}

// terminate destroys, on the calling goroutine, every scene that was built or being built and never handed to
// a worker for teardown, then releases every recording still held. Workers must already be joined.
func (h *sceneHost) terminate() {
	h.drainSubmissions()

	seen := make(map[scene.ID]bool)
	var leftover []scene.ID
	note := func(id scene.ID) {
		if id != scene.NoID && !seen[id] {
			seen[id] = true
			leftover = append(leftover, id)
		}
	}
	note(scene.ID(h.active.Load()))
	if _, ok := h.backlog[scene.ID(h.requested.Load())]; ok {
		note(scene.ID(h.requested.Load()))
	}
	for id := range h.backlog {
		note(id)
	}
	for _, e := range h.purge {
		note(e.scene)
	}

	for _, id := range leftover {
		s, ok := h.registry.lookup(id)
		if !ok {
			continue
		}
		if err := s.Destroy(); err != nil {
			h.log.Panic("scene teardown failed", zap.Uint32("scene", uint32(id)), zap.Error(err))
		}
		h.registry.remove(id)
		h.log.Debug("scene destroyed at shutdown", zap.Uint32("scene", uint32(id)), zap.String("name", s.Name()))
	}

	h.active.Store(uint32(scene.NoID))
	h.requested.Store(uint32(scene.NoID))
	clear(h.backlog)
	h.purge = nil
	h.backlogLen.Store(0)
	h.purgeLen.Store(0)

	for i := range h.frames {
		if slot := h.frames[i].Swap(nil); slot != nil && slot.recording != nil {
			slot.recording.Release()
		}
	}
	for {
		if _, ok := h.completions.TryPop(); !ok {
			break
		}
	}
	for i, rec := range h.recordings {
		if rec != nil {
			rec.Release()
			h.recordings[i] = nil
		}
	}
	h.completed = nil
}

// hostExecutor performs worker jobs against the host's registry and backend.
type hostExecutor struct {
	host *sceneHost
}

var _ worker_pool.Executor = &hostExecutor{}

func (e *hostExecutor) Build(job worker_pool.Job) error {
	s, ok := e.host.registry.lookup(job.Scene)
	if !ok {
		return fmt.Errorf("build: scene %d is not registered", job.Scene)
	}

	target, err := e.host.backend.BeginRecording(s.Name())
	if err != nil {
		return fmt.Errorf("build %s: %w", s.Name(), err)
	}
	if err := s.Construct(target); err != nil {
		return fmt.Errorf("build %s: %w", s.Name(), err)
	}
	rec, err := e.host.backend.FinishRecording(target)
	if err != nil {
		return fmt.Errorf("build %s: %w", s.Name(), err)
	}

	// The slot is published to Tick by the completion push that follows.
	e.host.recordings[job.Token] = rec
	return nil
}

func (e *hostExecutor) Destroy(job worker_pool.Job) error {
	s, ok := e.host.registry.lookup(job.Scene)
	if !ok {
		return fmt.Errorf("destroy: scene %d is not registered", job.Scene)
	}
	if err := s.Destroy(); err != nil {
		return fmt.Errorf("destroy %s: %w", s.Name(), err)
	}
	e.host.registry.remove(job.Scene)
	return nil
}
