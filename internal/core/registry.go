package core

import "sync"

// Registry maps usernames to their live sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]map[*Client]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]map[*Client]struct{})}
}

// Add inserts a session. Returns true if newly added.
func (r *Registry) Add(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.sessions[c.Username]
	if !ok {
		set = make(map[*Client]struct{})
		r.sessions[c.Username] = set
	}
	if _, exists := set[c]; exists {
		return false
	}
	set[c] = struct{}{}
	return true
}

// Remove deletes a session and reports how many sessions the username still has.
func (r *Registry) Remove(c *Client) (removed bool, remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.sessions[c.Username]
	if !ok {
		return false, 0
	}
	if _, exists := set[c]; !exists {
		return false, len(set)
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.sessions, c.Username)
		return true, 0
	}
	return true, len(set)
}

// Sessions returns a snapshot of the sessions registered under username.
func (r *Registry) Sessions(username string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.sessions[username]
	if len(set) == 0 {
		return nil
	}
	out := make([]*Client, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// Count returns the number of live sessions for username.
func (r *Registry) Count(username string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[username])
}

// All returns a snapshot of every live session.
func (r *Registry) All() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Client
	for _, set := range r.sessions {
		for c := range set {
			out = append(out, c)
		}
	}
	return out
}
