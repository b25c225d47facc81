package session

import (
	"errors"
	"sync"
)

// ErrNotFound is returned for unknown session IDs.
var ErrNotFound = errors.New("session not found")

// Registry keeps the live sessions of the process. Update serializes edits
// of one session; it is the only way to mutate a stored session.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*EditSession
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*EditSession)}
}

// Add stores s, replacing any session with the same ID.
func (r *Registry) Add(s *EditSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

// Get returns a snapshot of session id.
func (r *Registry) Get(id string) (EditSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return EditSession{}, ErrNotFound
	}
	return s.Snapshot(), nil
}

// Update runs fn on session id under the registry lock and returns a
// snapshot of the result. fn must not block.
func (r *Registry) Update(id string, fn func(*EditSession) error) (EditSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return EditSession{}, ErrNotFound
	}
	if err := fn(s); err != nil {
		return s.Snapshot(), err
	}
	return s.Snapshot(), nil
}

// Remove drops session id.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
