package relay

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Endpoint is one live client connection as seen by the registry.
// Deliver must not block; it reports whether the frame was queued.
type Endpoint interface {
	ID() string
	Deliver(frame []byte) bool
}

type Stats struct {
	Connections int   `json:"connections"`
	Rooms       int   `json:"rooms"`
	Delivered   int64 `json:"delivered"`
	Dropped     int64 `json:"dropped"`
}

// Registry maps room keys to the connections joined to them. A room key
// is either a user id (personal room) or a chat id.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]Endpoint
	rooms  map[string]map[string]struct{} // room -> conn ids
	joined map[string]map[string]struct{} // conn id -> rooms

	delivered atomic.Int64
	dropped   atomic.Int64
}

func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[string]Endpoint),
		rooms:  make(map[string]map[string]struct{}),
		joined: make(map[string]map[string]struct{}),
	}
}

// Attach makes ep addressable. It joins no rooms.
func (r *Registry) Attach(ep Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[ep.ID()] = ep
	if r.joined[ep.ID()] == nil {
		r.joined[ep.ID()] = make(map[string]struct{})
	}
}

// Join adds connID to room. It returns false when the connection is not
// attached or the room key is empty.
func (r *Registry) Join(connID, room string) bool {
	if room == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms, ok := r.joined[connID]
	if !ok {
		return false
	}
	rooms[room] = struct{}{}
	if r.rooms[room] == nil {
		r.rooms[room] = make(map[string]struct{})
	}
	r.rooms[room][connID] = struct{}{}
	return true
}

func (r *Registry) Leave(connID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(connID, room)
}

func (r *Registry) leaveLocked(connID, room string) {
	if members, ok := r.rooms[room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	if rooms, ok := r.joined[connID]; ok {
		delete(rooms, room)
	}
}

// Detach removes connID from every room it joined and forgets it. It
// returns the rooms that were left.
func (r *Registry) Detach(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var left []string
	for room := range r.joined[connID] {
		left = append(left, room)
		r.leaveLocked(connID, room)
	}
	delete(r.joined, connID)
	delete(r.conns, connID)
	sort.Strings(left)
	return left
}

// Broadcast delivers frame to every connection in room except exclude and
// returns how many accepted it. Unknown rooms are a no-op.
func (r *Registry) Broadcast(room string, frame []byte, exclude string) int {
	r.mu.RLock()
	targets := make([]Endpoint, 0, len(r.rooms[room]))
	for id := range r.rooms[room] {
		if id == exclude {
			continue
		}
		if ep, ok := r.conns[id]; ok {
			targets = append(targets, ep)
		}
	}
	r.mu.RUnlock()

	n := 0
	for _, ep := range targets {
		if ep.Deliver(frame) {
			n++
		} else {
			r.dropped.Add(1)
		}
	}
	r.delivered.Add(int64(n))
	return n
}

// Send delivers frame to a single connection.
func (r *Registry) Send(connID string, frame []byte) bool {
	r.mu.RLock()
	ep, ok := r.conns[connID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if !ep.Deliver(frame) {
		r.dropped.Add(1)
		return false
	}
	r.delivered.Add(1)
	return true
}

// CloseAll closes every attached endpoint that can be closed and returns
// how many were. Connections then run their own disconnect cleanup.
func (r *Registry) CloseAll() int {
	r.mu.RLock()
	targets := make([]Endpoint, 0, len(r.conns))
	for _, ep := range r.conns {
		targets = append(targets, ep)
	}
	r.mu.RUnlock()

	n := 0
	for _, ep := range targets {
		if c, ok := ep.(interface{ Close() }); ok {
			c.Close()
			n++
		}
	}
	return n
}

func (r *Registry) Rooms(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.joined[connID])
}

func (r *Registry) Members(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.rooms[room])
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	s := Stats{Connections: len(r.conns), Rooms: len(r.rooms)}
	r.mu.RUnlock()
	s.Delivered = r.delivered.Load()
	s.Dropped = r.dropped.Load()
	return s
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
