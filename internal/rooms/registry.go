// Package rooms tracks which connections explicitly joined which rooms.
//
// All mutations and the membership reads used for fan-out go through one
// mutex, so once LeaveAll returns no later MembersOf call can observe the
// connection.
package rooms

import (
	"sort"
	"sync"
)

// ViewRoom is the room a client joins with subscribe_view.
func ViewRoom(viewID string) string {
	return "view:" + viewID
}

type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]struct{}
	joined map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:  make(map[string]map[string]struct{}),
		joined: make(map[string]map[string]struct{}),
	}
}

// Join adds connID to roomID, creating the room on first join.
func (r *Registry) Join(connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[roomID] = members
	}
	members[connID] = struct{}{}

	rooms, ok := r.joined[connID]
	if !ok {
		rooms = make(map[string]struct{})
		r.joined[connID] = rooms
	}
	rooms[roomID] = struct{}{}
}

func (r *Registry) Leave(connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(connID, roomID)
}

// LeaveAll removes connID from every room it joined and returns how many
// memberships were dropped.
func (r *Registry) LeaveAll(connID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms := r.joined[connID]
	n := len(rooms)
	for roomID := range rooms {
		r.leaveLocked(connID, roomID)
	}
	return n
}

func (r *Registry) leaveLocked(connID, roomID string) {
	if members, ok := r.rooms[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, roomID)
		}
	}
	if rooms, ok := r.joined[connID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(r.joined, connID)
		}
	}
}

// MembersOf returns a snapshot of the connection ids in roomID.
func (r *Registry) MembersOf(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[roomID]
	if len(members) == 0 {
		return nil
	}
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids
}

// RoomsOf returns the sorted room ids connID has joined.
func (r *Registry) RoomsOf(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]string, 0, len(r.joined[connID]))
	for id := range r.joined[connID] {
		rooms = append(rooms, id)
	}
	sort.Strings(rooms)
	return rooms
}

func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
