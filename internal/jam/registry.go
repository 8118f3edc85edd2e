package jam

import (
	"sync"

	"github.com/google/uuid"
)

// Registry owns the jam-id → session map. It is the only state shared
// across all connections; sessions guard their own fields.
type Registry struct {
	mu   sync.RWMutex
	jams map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{
		jams: make(map[string]*Session),
	}
}

// Create allocates a fresh jam with a unique short token. Token collisions
// are vanishingly unlikely (8 hex chars of a v4 UUID) but retried anyway.
func (r *Registry) Create(hostName string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	var id string
	for {
		id = newJamID()
		if _, exists := r.jams[id]; !exists {
			break
		}
	}
	j := newSession(id, hostName)
	r.jams[id] = j
	return j
}

// Get returns the live session or nil.
func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.jams[id]
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jams, id)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jams)
}

// all snapshots the current sessions for the liveness sweep; the sweep
// must not hold the registry lock while it takes session locks.
func (r *Registry) all() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.jams))
	for _, j := range r.jams {
		out = append(out, j)
	}
	return out
}

func newJamID() string {
	return uuid.NewString()[:8]
}
