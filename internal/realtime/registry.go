package realtime

import (
	"sync"

	"go-messenger/internal/metrics"
)

// Registry tracks which open connections are subscribed to which rooms.
//
// A room exists only while it has members: joining creates it, and the last
// leave removes it. Looking up a room that does not exist yields no members.
// Every mutation and every broadcast runs under one lock, so a broadcast
// always sees a membership set that is either before or after a given
// join/leave/leaveAll, never in between.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]map[*Conn]struct{}
	conns map[*Conn]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]map[*Conn]struct{}),
		conns: make(map[*Conn]map[string]struct{}),
	}
}

// Join adds c to room. It reports false if c was already a member or has
// been closed.
func (r *Registry) Join(c *Conn, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.isClosed() {
		return false
	}

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[*Conn]struct{})
		r.rooms[room] = members
		metrics.RoomsActive.Inc()
	}
	if _, dup := members[c]; dup {
		return false
	}
	members[c] = struct{}{}

	joined, ok := r.conns[c]
	if !ok {
		joined = make(map[string]struct{})
		r.conns[c] = joined
	}
	joined[room] = struct{}{}
	return true
}

// Leave removes c from room. It reports false if c was not a member.
func (r *Registry) Leave(c *Conn, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(c, room)
}

func (r *Registry) leaveLocked(c *Conn, room string) bool {
	members, ok := r.rooms[room]
	if !ok {
		return false
	}
	if _, ok := members[c]; !ok {
		return false
	}
	delete(members, c)
	if len(members) == 0 {
		delete(r.rooms, room)
		metrics.RoomsActive.Dec()
	}

	if joined, ok := r.conns[c]; ok {
		delete(joined, room)
		if len(joined) == 0 {
			delete(r.conns, c)
		}
	}
	return true
}

// LeaveAll removes c from every room it joined and returns those rooms.
func (r *Registry) LeaveAll(c *Conn) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined := r.conns[c]
	left := make([]string, 0, len(joined))
	for room := range joined {
		left = append(left, room)
	}
	for _, room := range left {
		r.leaveLocked(c, room)
	}
	return left
}

func (r *Registry) IsMember(c *Conn, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rooms[room][c]
	return ok
}

// Members returns a snapshot of the room's current members.
func (r *Registry) Members(room string) []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	members := make([]*Conn, 0, len(r.rooms[room]))
	for c := range r.rooms[room] {
		members = append(members, c)
	}
	return members
}

// Rooms returns the rooms c currently belongs to.
func (r *Registry) Rooms(c *Conn) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	rooms := make([]string, 0, len(r.conns[c]))
	for room := range r.conns[c] {
		rooms = append(rooms, room)
	}
	return rooms
}

// Evict removes from room every connection authenticated as one of
// userIDs, or every member when userIDs is empty. It returns how many
// connections were removed.
func (r *Registry) Evict(room string, userIDs []int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := make(map[int64]struct{}, len(userIDs))
	for _, id := range userIDs {
		users[id] = struct{}{}
	}
	var out []*Conn
	for c := range r.rooms[room] {
		if _, ok := users[c.UserID()]; ok || len(users) == 0 {
			out = append(out, c)
		}
	}
	for _, c := range out {
		r.leaveLocked(c, room)
	}
	return len(out)
}

// RoomCount returns the number of rooms with at least one member.
func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// each calls fn for every member of room except the connection whose id is
// exclude. fn runs with the registry lock held and must not block.
func (r *Registry) each(room, exclude string, fn func(*Conn)) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for c := range r.rooms[room] {
		if exclude != "" && c.id == exclude {
			continue
		}
		fn(c)
		n++
	}
	return n
}
