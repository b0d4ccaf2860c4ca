package hockey

import (
	"errors"
	"sync"

	"speedhockey/internal/physics"
)

var ErrSessionExists = errors.New("session already registered")

// Sink receives the broadcast for one session. Send must not block; it
// reports false when the frame was dropped.
type Sink interface {
	Send(state *MatchState) bool
}

// Session is the registry entry for a connected client
type Session struct {
	ID      SessionID
	Team    Team
	Paddle  physics.Handle
	Sink    Sink
	Dropped uint64
}

// Registry maps session ids to their entries. The engine goroutine is the
// only writer; other goroutines may read.
type Registry struct {
	mu       sync.RWMutex
	sessions map[SessionID]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[SessionID]*Session)}
}

func (r *Registry) Register(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; ok {
		return ErrSessionExists
	}
	r.sessions[s.ID] = s
	return nil
}

func (r *Registry) Unregister(id SessionID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	return s, ok
}

// Get returns a copy of the entry so readers never share the engine's pointer
func (r *Registry) Get(id SessionID) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Update runs fn on the live entry under the write lock
func (r *Registry) Update(id SessionID, fn func(*Session)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if ok {
		fn(s)
	}
	return ok
}

// Range calls fn for every entry until fn returns false. fn must not call
// back into the registry.
func (r *Registry) Range(fn func(Session) bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if !fn(*s) {
			return
		}
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
