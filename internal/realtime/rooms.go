package realtime

import "sync"

// Rooms tracks which connections are subscribed to which chat's live events.
// Join and Leave are idempotent; a room with zero members is absent from the
// map. Membership never outlives its connection: DropConnection removes the
// connection from every room it joined.
type Rooms struct {
	mu      sync.RWMutex
	members map[string]map[string]struct{} // roomID -> connID set
	joined  map[string]map[string]struct{} // connID -> roomID set
}

// NewRooms creates an empty room membership tracker.
func NewRooms() *Rooms {
	return &Rooms{
		members: make(map[string]map[string]struct{}),
		joined:  make(map[string]map[string]struct{}),
	}
}

// Join subscribes a connection to a room. Joining twice is a no-op.
func (rt *Rooms) Join(roomID, connID string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.members[roomID] == nil {
		rt.members[roomID] = make(map[string]struct{})
	}
	rt.members[roomID][connID] = struct{}{}

	if rt.joined[connID] == nil {
		rt.joined[connID] = make(map[string]struct{})
	}
	rt.joined[connID][roomID] = struct{}{}
}

// Leave unsubscribes a connection from a room. Leaving a non-member is a
// no-op.
func (rt *Rooms) Leave(roomID, connID string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.leaveLocked(roomID, connID)
}

func (rt *Rooms) leaveLocked(roomID, connID string) {
	if set, ok := rt.members[roomID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(rt.members, roomID)
		}
	}
	if set, ok := rt.joined[connID]; ok {
		delete(set, roomID)
		if len(set) == 0 {
			delete(rt.joined, connID)
		}
	}
}

// MembersOf returns a snapshot of the room's member connection ids.
// Broadcasts iterate the snapshot, so concurrent joins need not be included.
func (rt *Rooms) MembersOf(roomID string) []string {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	set := rt.members[roomID]
	conns := make([]string, 0, len(set))
	for id := range set {
		conns = append(conns, id)
	}
	return conns
}

// DropConnection removes the connection from every room it joined and
// returns the rooms it left.
func (rt *Rooms) DropConnection(connID string) []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	rooms := make([]string, 0, len(rt.joined[connID]))
	for roomID := range rt.joined[connID] {
		rooms = append(rooms, roomID)
	}
	for _, roomID := range rooms {
		rt.leaveLocked(roomID, connID)
	}
	return rooms
}

// Len returns the number of rooms with at least one member.
func (rt *Rooms) Len() int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return len(rt.members)
}
