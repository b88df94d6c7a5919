// Package server keeps the registry of live rooms and allocates their ids.
package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
)

const (
	defaultRoomName   = "New Room"
	defaultMaxPlayers = 8
	roomIDBytes       = 3
	maxIDAttempts     = 32
)

// IDGenerator produces candidate room ids.
type IDGenerator func() (string, error)

// RandomRoomID returns six uppercase hex characters from crypto/rand.
func RandomRoomID() (string, error) {
	buf := make([]byte, roomIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}

// RoomRegistry maps room ids to live rooms. Mutations happen on the hub
// goroutine; the mutex lets RoomCount be read from HTTP handlers.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	newID IDGenerator
}

// NewRoomRegistry creates an empty registry. A nil generator uses RandomRoomID.
func NewRoomRegistry(newID IDGenerator) *RoomRegistry {
	if newID == nil {
		newID = RandomRoomID
	}
	return &RoomRegistry{
		rooms: make(map[string]*Room),
		newID: newID,
	}
}

// CreateRoom stores a new empty room. Ids that collide with a live room are
// regenerated; after maxIDAttempts collisions ErrRoomIDExhausted is returned.
func (rr *RoomRegistry) CreateRoom(name, password string, capacity int) (*Room, error) {
	if name == "" {
		name = defaultRoomName
	}
	if capacity == 0 {
		capacity = defaultMaxPlayers
	}
	capacity = min(max(capacity, minPlayers), maxPlayers)

	rr.mu.Lock()
	defer rr.mu.Unlock()

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := rr.newID()
		if err != nil {
			return nil, err
		}
		if _, taken := rr.rooms[id]; taken {
			continue
		}
		room := newRoom(id, truncate(name, maxRoomNameLen), password, capacity)
		rr.rooms[id] = room
		return room, nil
	}
	return nil, ErrRoomIDExhausted
}

// GetRoom looks up a live room.
func (rr *RoomRegistry) GetRoom(id string) (*Room, bool) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	room, ok := rr.rooms[id]
	return room, ok
}

// RemoveRoom drops a room. Removing an unknown id is a no-op.
func (rr *RoomRegistry) RemoveRoom(id string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	delete(rr.rooms, id)
}

// ListRooms returns a summary of every live room in no particular order.
func (rr *RoomRegistry) ListRooms() []RoomSummary {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	list := make([]RoomSummary, 0, len(rr.rooms))
	for _, room := range rr.rooms {
		list = append(list, room.summary())
	}
	return list
}

// RoomCount returns the number of live rooms.
func (rr *RoomRegistry) RoomCount() int {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	return len(rr.rooms)
}

// Clear drops every room, used when the hub shuts down.
func (rr *RoomRegistry) Clear() {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	clear(rr.rooms)
}
