package ws

import (
	"sync"
	"time"
)

// Sink is the write side of a live connection as seen by the hub.
type Sink interface {
	// Enqueue hands frame to the connection's ordered send queue without
	// blocking.
	Enqueue(frame []byte) error
	// Close terminates the connection. Implementations release the
	// connection with Hub.Release exactly once.
	Close() error
}

type session struct {
	principal   Principal
	sink        Sink
	defaults    []Topic
	connectedAt time.Time
}

// Registry is the source of truth for which connections are admitted.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*session
	byUser map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[string]*session),
		byUser: make(map[string]map[string]struct{}),
	}
}

func (r *Registry) Admit(p Principal, sink Sink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[p.ConnectionID]; exists {
		return ErrAlreadyAdmitted
	}
	r.conns[p.ConnectionID] = &session{
		principal:   p,
		sink:        sink,
		defaults:    DefaultTopics(p),
		connectedAt: time.Now(),
	}

	if r.byUser[p.UserID] == nil {
		r.byUser[p.UserID] = make(map[string]struct{})
	}
	r.byUser[p.UserID][p.ConnectionID] = struct{}{}
	return nil
}

// Remove drops connID and reports the principal it belonged to.
func (r *Registry) Remove(connID string) (Principal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.conns[connID]
	if !ok {
		return Principal{}, false
	}
	delete(r.conns, connID)

	if conns, ok := r.byUser[s.principal.UserID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.byUser, s.principal.UserID)
		}
	}
	return s.principal, true
}

func (r *Registry) Get(connID string) (Principal, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.conns[connID]
	if !ok {
		return Principal{}, false
	}
	return s.principal, true
}

func (r *Registry) sink(connID string) (Sink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.conns[connID]
	if !ok {
		return nil, false
	}
	return s.sink, true
}

// defaultTopics returns the topics cached for connID at admission.
func (r *Registry) defaultTopics(connID string) []Topic {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.conns[connID]; ok {
		return append([]Topic(nil), s.defaults...)
	}
	return nil
}

func (r *Registry) connectedAt(connID string) time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.conns[connID]; ok {
		return s.connectedAt
	}
	return time.Time{}
}

func (r *Registry) All() []Principal {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Principal, 0, len(r.conns))
	for _, s := range r.conns {
		out = append(out, s.principal)
	}
	return out
}

func (r *Registry) ConnectionIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) IsUserConnected(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// UserConnectionCounts maps every connected user to its number of live
// connections.
func (r *Registry) UserConnectionCounts() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]int, len(r.byUser))
	for userID, conns := range r.byUser {
		if len(conns) > 0 {
			out[userID] = len(conns)
		}
	}
	return out
}

func (r *Registry) ConnectionsOf(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.byUser[userID]
	out := make([]string, 0, len(conns))
	for id := range conns {
		out = append(out, id)
	}
	return out
}
