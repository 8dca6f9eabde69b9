package engine

import (
	"fmt"
	"sync"

	"github.com/jtolonen/weft/pkg/api"
)

type graphRegistry struct {
	mu     sync.RWMutex
	byName map[string]*api.Graph
}

func newGraphRegistry() *graphRegistry {
	return &graphRegistry{
		byName: make(map[string]*api.Graph),
	}
}

func (r *graphRegistry) Register(g *api.Graph) error {
	if err := g.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[g.Name]; exists {
		return fmt.Errorf("graph %q already registered", g.Name)
	}
	r.byName[g.Name] = g
	return nil
}

func (r *graphRegistry) Get(name string) (*api.Graph, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("graph %q not found", name)
	}
	return g, nil
}

// threadRegistry tracks which threads currently have a run in flight.
// Entering an active thread fails, so a thread can never host two
// concurrent runs. This replaces implicit module-global bookkeeping with
// an explicitly lifecycle-managed map.
type threadRegistry struct {
	mu     sync.Mutex
	active map[string]bool
}

func newThreadRegistry() *threadRegistry {
	return &threadRegistry{active: make(map[string]bool)}
}

// Enter marks a thread active. It returns api.ErrThreadActive if the
// thread already has a run in flight.
func (r *threadRegistry) Enter(threadID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active[threadID] {
		return api.ErrThreadActive
	}
	r.active[threadID] = true
	return nil
}

// Exit marks a thread idle. It is idempotent.
func (r *threadRegistry) Exit(threadID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.active, threadID)
}

// Active reports whether the thread has a run in flight.
func (r *threadRegistry) Active(threadID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.active[threadID]
}
