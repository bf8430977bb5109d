package session

import (
	"sync"

	"github.com/google/uuid"
)

// Factory builds the controller for a new session id. Each session gets
// its own store and synthesizer; the dispatcher is stateless and shared.
type Factory func(id string) *Controller

// Registry maps live session ids to their controllers. It is an explicit
// dependency handed to the server, not a process-wide singleton.
type Registry struct {
	mu       sync.Mutex
	factory  Factory
	sessions map[string]*Controller
}

func NewRegistry(factory Factory) *Registry {
	return &Registry{
		factory:  factory,
		sessions: make(map[string]*Controller),
	}
}

// Open creates and registers a new session
func (r *Registry) Open() *Controller {
	ctl := r.factory(uuid.NewString())

	r.mu.Lock()
	r.sessions[ctl.ID] = ctl
	r.mu.Unlock()
	return ctl
}

// Get looks up a live session
func (r *Registry) Get(id string) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ctl, ok := r.sessions[id]
	return ctl, ok
}

// Close tears one session down and forgets it
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	ctl, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	ctl.Close()
	return nil
}

// CloseAll tears down every live session, typically at server shutdown
func (r *Registry) CloseAll() {
	r.mu.Lock()
	ctls := make([]*Controller, 0, len(r.sessions))
	for _, ctl := range r.sessions {
		ctls = append(ctls, ctl)
	}
	r.sessions = make(map[string]*Controller)
	r.mu.Unlock()

	for _, ctl := range ctls {
		ctl.Close()
	}
}

// Len reports how many sessions are live
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
