// Package server routes decoded client requests to room and registry
// operations and tracks which room each connection is in.
package server

import (
	"encoding/json"
	"errors"
	"log"
	"time"
)

const (
	defaultPlayerName = "Musician"
	defaultHostName   = "Host"
	defaultColor      = "#00e5ff"
	defaultJoinColor  = "#ff6b35"
	maxChatLen        = 200
)

// Error texts sent to clients.
const (
	msgRoomNotFound    = "Room not found"
	msgWrongPassword   = "Wrong password"
	msgRoomFull        = "Room is full"
	msgRoomIDExhausted = "Could not allocate a room id"
)

type session struct {
	player PlayerInfo
	roomID string
}

// Router is the per-connection state machine. Connections start unjoined,
// become joined on a successful create or join and return to unjoined when
// they disconnect. Like Room, it relies on the hub for serialization.
type Router struct {
	registry *RoomRegistry
	sessions map[Peer]*session
	now      func() time.Time
}

// NewRouter creates a router over registry.
func NewRouter(registry *RoomRegistry) *Router {
	return &Router{
		registry: registry,
		sessions: make(map[Peer]*session),
		now:      time.Now,
	}
}

// Connect starts tracking p as an unjoined connection.
func (rt *Router) Connect(p Peer) {
	rt.sessions[p] = &session{
		player: PlayerInfo{ID: p.ID(), Name: defaultPlayerName, Color: defaultColor},
	}
}

// Disconnect removes p from its room, destroying the room if it empties.
func (rt *Router) Disconnect(p Peer) {
	s, ok := rt.sessions[p]
	if !ok {
		return
	}
	rt.leaveCurrent(p, s)
	delete(rt.sessions, p)
}

// RoomOf returns the id of the room p is in, or "".
func (rt *Router) RoomOf(p Peer) string {
	if s, ok := rt.sessions[p]; ok {
		return s.roomID
	}
	return ""
}

// Handle decodes raw and applies it on behalf of p. Frames that do not decode
// are dropped without a reply.
func (rt *Router) Handle(p Peer, raw []byte) {
	s, ok := rt.sessions[p]
	if !ok {
		return
	}

	msg, err := DecodeInbound(raw)
	if err != nil {
		log.Printf("Dropping message from %s: %v", p.ID(), err)
		return
	}

	switch m := msg.(type) {
	case CreateRoomRequest:
		rt.createRoom(p, s, m)
	case JoinRoomRequest:
		rt.joinRoom(p, s, m)
	case MidiRequest:
		rt.midi(p, s, m)
	case ChatRequest:
		rt.chat(p, s, m)
	case PingRequest:
		rt.ping(p, s, m)
	case GetRoomsRequest:
		rt.send(p, RoomList{Type: TypeRoomList, Rooms: rt.registry.ListRooms()})
	}
}

func (rt *Router) createRoom(p Peer, s *session, m CreateRoomRequest) {
	room, err := rt.registry.CreateRoom(m.Name, m.Password, requestedCapacity(m.MaxPlayers))
	if err != nil {
		log.Printf("Error creating room for %s: %v", p.ID(), err)
		rt.sendError(p, err)
		return
	}

	info, err := room.Join(p, orDefault(m.PlayerName, defaultHostName), orDefault(m.Color, defaultColor), m.Password)
	if err != nil {
		rt.registry.RemoveRoom(room.ID())
		rt.sendError(p, err)
		return
	}

	rt.enter(p, s, room)
	log.Printf("Room %s created by %s (%d max players)", room.ID(), p.ID(), room.MaxPlayers())
	rt.send(p, RoomJoined{Type: TypeRoomJoined, RoomID: room.ID(), ClientID: p.ID(), RoomInfo: info})
}

func (rt *Router) joinRoom(p Peer, s *session, m JoinRoomRequest) {
	room, ok := rt.registry.GetRoom(m.RoomID)
	if !ok {
		rt.sendError(p, ErrRoomNotFound)
		return
	}

	if s.roomID == room.ID() {
		rt.send(p, RoomJoined{Type: TypeRoomJoined, RoomID: room.ID(), ClientID: p.ID(), RoomInfo: room.Snapshot()})
		return
	}

	info, err := room.Join(p, orDefault(m.PlayerName, defaultPlayerName), orDefault(m.Color, defaultJoinColor), m.Password)
	if err != nil {
		rt.sendError(p, err)
		return
	}

	rt.enter(p, s, room)
	log.Printf("Client %s joined room %s (%d/%d)", p.ID(), room.ID(), room.Len(), room.MaxPlayers())
	rt.send(p, RoomJoined{Type: TypeRoomJoined, RoomID: room.ID(), ClientID: p.ID(), RoomInfo: info})
	room.Broadcast(PlayerJoined{Type: TypePlayerJoined, Player: s.player, RoomInfo: info}, p)
}

// enter moves the session into room after p has been added to it, leaving
// any previous room.
func (rt *Router) enter(p Peer, s *session, room *Room) {
	if s.roomID != "" && s.roomID != room.ID() {
		rt.leaveCurrent(p, s)
	}
	s.roomID = room.ID()
	if player, ok := room.Player(p); ok {
		s.player = player
	}
}

func (rt *Router) leaveCurrent(p Peer, s *session) {
	if s.roomID == "" {
		return
	}
	roomID := s.roomID
	s.roomID = ""

	room, ok := rt.registry.GetRoom(roomID)
	if !ok {
		return
	}

	notice, empty := room.Leave(p)
	if empty {
		rt.registry.RemoveRoom(roomID)
		log.Printf("Room %s closed", roomID)
		return
	}
	if notice != nil {
		room.Broadcast(notice, nil)
	}
}

func (rt *Router) currentRoom(s *session) (*Room, bool) {
	if s.roomID == "" {
		return nil, false
	}
	return rt.registry.GetRoom(s.roomID)
}

func (rt *Router) midi(p Peer, s *session, m MidiRequest) {
	room, ok := rt.currentRoom(s)
	if !ok {
		return
	}
	room.Broadcast(MidiEvent{
		Type:        TypeMidi,
		SenderID:    s.player.ID,
		SenderName:  s.player.Name,
		SenderColor: s.player.Color,
		Data:        m.Data,
		ServerTime:  rt.now().UnixMilli(),
	}, p)
}

func (rt *Router) chat(_ Peer, s *session, m ChatRequest) {
	room, ok := rt.currentRoom(s)
	if !ok {
		return
	}
	room.Broadcast(ChatEvent{
		Type:        TypeChat,
		SenderID:    s.player.ID,
		SenderName:  s.player.Name,
		SenderColor: s.player.Color,
		Message:     truncate(m.Message, maxChatLen),
	}, nil)
}

func (rt *Router) ping(p Peer, s *session, m PingRequest) {
	if m.PingMs != nil {
		if room, ok := rt.currentRoom(s); ok {
			room.UpdatePing(p, *m.PingMs)
		}
	}
	rt.send(p, Pong{Type: TypePong, ClientTime: m.ClientTime, ServerTime: rt.now().UnixMilli()})
}

func (rt *Router) send(p Peer, message any) {
	payload, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error encoding reply to %s: %v", p.ID(), err)
		return
	}
	if !p.Send(payload) {
		log.Printf("Dropped reply to %s", p.ID())
	}
}

func (rt *Router) sendError(p Peer, err error) {
	rt.send(p, ErrorMessage{Type: TypeError, Message: errorText(err)})
}

func errorText(err error) string {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return msgRoomNotFound
	case errors.Is(err, ErrWrongPassword):
		return msgWrongPassword
	case errors.Is(err, ErrRoomFull):
		return msgRoomFull
	default:
		return msgRoomIDExhausted
	}
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// requestedCapacity clamps a client-supplied player limit before it becomes an
// int. Missing or zero selects the registry default.
func requestedCapacity(v *float64) int {
	if v == nil || *v == 0 {
		return 0
	}
	return int(min(max(*v, minPlayers), maxPlayers))
}
