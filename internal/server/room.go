// Package server implements rooms: capacity-bounded groups of peers that share
// broadcast traffic.
package server

import (
	"encoding/json"
	"errors"
	"log"
)

// Room errors surfaced to the requesting client.
var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrWrongPassword   = errors.New("wrong password")
	ErrRoomFull        = errors.New("room is full")
	ErrRoomIDExhausted = errors.New("could not allocate a unique room id")
)

const (
	maxRoomNameLen   = 40
	maxPlayerNameLen = 20
	minPlayers       = 1
	maxPlayers       = 16
)

// Peer is the outbound half of a connection as seen by a room.
// Send must not block and reports whether the payload was queued.
type Peer interface {
	ID() string
	Send(payload []byte) bool
}

type member struct {
	peer   Peer
	player PlayerInfo
}

// Room is a named group of peers. It is not safe for concurrent use; the hub
// serializes every call.
type Room struct {
	id         string
	name       string
	password   string
	maxPlayers int
	members    []member
}

func newRoom(id, name, password string, capacity int) *Room {
	return &Room{
		id:         id,
		name:       name,
		password:   password,
		maxPlayers: capacity,
	}
}

// ID returns the room identifier.
func (r *Room) ID() string { return r.id }

// Name returns the display name.
func (r *Room) Name() string { return r.name }

// MaxPlayers returns the capacity.
func (r *Room) MaxPlayers() int { return r.maxPlayers }

// HasPassword reports whether joining requires a password.
func (r *Room) HasPassword() bool { return r.password != "" }

// Len returns the number of members.
func (r *Room) Len() int { return len(r.members) }

func (r *Room) indexOf(p Peer) int {
	for i, m := range r.members {
		if m.peer == p {
			return i
		}
	}
	return -1
}

// Has reports whether p is a member.
func (r *Room) Has(p Peer) bool {
	return r.indexOf(p) >= 0
}

// Join adds p to the room with the given display attributes.
func (r *Room) Join(p Peer, playerName, color, password string) (RoomInfo, error) {
	if r.password != "" && password != r.password {
		return RoomInfo{}, ErrWrongPassword
	}
	if len(r.members) >= r.maxPlayers {
		return RoomInfo{}, ErrRoomFull
	}

	r.members = append(r.members, member{
		peer: p,
		player: PlayerInfo{
			ID:    p.ID(),
			Name:  truncate(playerName, maxPlayerNameLen),
			Color: color,
		},
	})
	return r.Snapshot(), nil
}

// Player returns the member info for p.
func (r *Room) Player(p Peer) (PlayerInfo, bool) {
	if i := r.indexOf(p); i >= 0 {
		return r.members[i].player, true
	}
	return PlayerInfo{}, false
}

// UpdatePing records the latency p last reported.
func (r *Room) UpdatePing(p Peer, pingMs float64) {
	if i := r.indexOf(p); i >= 0 && pingMs >= 0 {
		r.members[i].player.PingMs = pingMs
	}
}

// Leave removes p. It reports whether the room is now empty and, when members
// remain, returns the notification they should receive.
func (r *Room) Leave(p Peer) (*PlayerLeft, bool) {
	i := r.indexOf(p)
	if i < 0 {
		return nil, len(r.members) == 0
	}

	left := r.members[i].player
	r.members = append(r.members[:i:i], r.members[i+1:]...)
	if len(r.members) == 0 {
		return nil, true
	}

	return &PlayerLeft{
		Type:       TypePlayerLeft,
		PlayerID:   left.ID,
		PlayerName: left.Name,
		RoomInfo:   r.Snapshot(),
	}, false
}

// Snapshot returns the current membership in join order.
func (r *Room) Snapshot() RoomInfo {
	players := make([]PlayerInfo, 0, len(r.members))
	for _, m := range r.members {
		players = append(players, m.player)
	}
	return RoomInfo{Name: r.name, Players: players}
}

// Broadcast encodes message once and queues it for every member except
// exclude. Peers that cannot take the payload are skipped.
func (r *Room) Broadcast(message any, exclude Peer) {
	payload, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error encoding broadcast for room %s: %v", r.id, err)
		return
	}

	peers := make([]Peer, 0, len(r.members))
	for _, m := range r.members {
		peers = append(peers, m.peer)
	}

	for _, p := range peers {
		if exclude != nil && p == exclude {
			continue
		}
		if !p.Send(payload) {
			log.Printf("Dropped message to %s in room %s", p.ID(), r.id)
		}
	}
}

func (r *Room) summary() RoomSummary {
	return RoomSummary{
		ID:          r.id,
		Name:        r.name,
		PlayerCount: len(r.members),
		MaxPlayers:  r.maxPlayers,
		HasPassword: r.HasPassword(),
	}
}
