package scene_host

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-stage/engine/scene"
)

// registryEntry is one arena slot.
type registryEntry struct {
	scene scene.Scene

	// retired is set once a destroy job has been queued; the scene can no longer be added.
	retired bool

	// pending is set from Add until the build is promoted.
	pending bool
}

// registry maps stable integer IDs to scenes so queues and maps never key on pointers.
// IDs are never reused.
type registry struct {
	mu      sync.RWMutex
	next    scene.ID
	entries map[scene.ID]*registryEntry
}

func newRegistry() *registry {
	return &registry{entries: make(map[scene.ID]*registryEntry)}
}

// register stores s under a fresh ID.
func (r *registry) register(s scene.Scene) scene.ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.entries[r.next] = &registryEntry{scene: s}
	return r.next
}

// lookup returns the scene for id, including retired scenes still waiting for teardown.
func (r *registry) lookup(id scene.ID) (scene.Scene, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.scene, true
}

// admit claims a build of id. It fails for unknown and retired scenes and while an earlier build is pending.
func (r *registry) admit(id scene.ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.retired || e.pending {
		return false
	}
	e.pending = true
	return true
}

// settle releases the build claim taken by admit.
func (r *registry) settle(id scene.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		e.pending = false
	}
}

func (r *registry) pending(id scene.ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return ok && e.pending
}

// retire marks id as queued for teardown.
func (r *registry) retire(id scene.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		e.retired = true
	}
}

// remove drops id after teardown.
func (r *registry) remove(id scene.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
