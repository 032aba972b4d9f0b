package realtime

import "sync"

// Registry maps logical user identities to live connections. A connection
// belongs to at most one user at a time; a user may own several connections
// (multi-tab). All methods are safe for concurrent use and idempotent on
// unknown ids.
type Registry struct {
	mu    sync.RWMutex
	owner map[string]string              // connID -> userID ("" until associated)
	users map[string]map[string]struct{} // userID -> connID set
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		owner: make(map[string]string),
		users: make(map[string]map[string]struct{}),
	}
}

// Register records a new connection. The connection is anonymous until
// AssociateUser is called.
func (r *Registry) Register(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.owner[connID]; !ok {
		r.owner[connID] = ""
	}
}

// AssociateUser binds a connection to a user once identity is known. It
// returns true when this is the user's first live connection, i.e. the
// online aggregate transitioned 0 -> 1. Re-associating the same pair is a
// no-op returning false.
func (r *Registry) AssociateUser(connID, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, known := r.owner[connID]
	if !known || prev == userID {
		return false
	}

	// Detach from any previous owner first
	if prev != "" {
		r.detachLocked(connID, prev)
	}

	r.owner[connID] = userID
	set := r.users[userID]
	first := len(set) == 0
	if set == nil {
		set = make(map[string]struct{})
		r.users[userID] = set
	}
	set[connID] = struct{}{}
	return first
}

// Unregister removes a connection and returns the user ids whose online
// aggregate may have changed (at most one) together with whether that user
// now has zero live connections. Unknown connections are a no-op.
func (r *Registry) Unregister(connID string) (affected []string, offline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.owner[connID]
	if !ok {
		return nil, false
	}
	delete(r.owner, connID)

	if userID == "" {
		return nil, false
	}
	r.detachLocked(connID, userID)
	return []string{userID}, len(r.users[userID]) == 0
}

func (r *Registry) detachLocked(connID, userID string) {
	if set, ok := r.users[userID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.users, userID)
		}
	}
}

// ConnectionsOf returns a snapshot of the user's live connection ids.
func (r *Registry) ConnectionsOf(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.users[userID]
	conns := make([]string, 0, len(set))
	for id := range set {
		conns = append(conns, id)
	}
	return conns
}

// Online reports whether the user has at least one live connection.
func (r *Registry) Online(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

// OnlineUsers returns a snapshot of all users with at least one connection.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]string, 0, len(r.users))
	for id := range r.users {
		users = append(users, id)
	}
	return users
}

// UserOf returns the owner of a connection, or "" if anonymous or unknown.
func (r *Registry) UserOf(connID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.owner[connID]
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.owner)
}
