// Package server defines the JSON wire format exchanged with session clients:
// the closed set of inbound requests and the outbound events sent back.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// Inbound message kinds.
const (
	TypeCreateRoom = "create_room"
	TypeJoinRoom   = "join_room"
	TypeMidi       = "midi"
	TypePing       = "ping"
	TypeGetRooms   = "get_rooms"
	TypeChat       = "chat"
)

// Outbound message kinds.
const (
	TypeRoomJoined   = "room_joined"
	TypeError        = "error"
	TypePlayerJoined = "player_joined"
	TypePong         = "pong"
	TypeRoomList     = "room_list"
	TypePlayerLeft   = "player_left"
)

// ErrUnknownMessageType is returned by DecodeInbound for a well-formed payload
// whose type is not one of the inbound kinds.
var ErrUnknownMessageType = errors.New("unknown message type")

// InboundMessage is one of the request variants a client may send.
// The set is closed: only types in this file implement it.
type InboundMessage interface {
	inbound()
}

// CreateRoomRequest asks for a new room with the sender as its first member.
type CreateRoomRequest struct {
	Name       string   `json:"name"`
	Password   string   `json:"password"`
	MaxPlayers *float64 `json:"maxPlayers"`
	PlayerName string   `json:"playerName"`
	Color      string   `json:"color"`
}

// JoinRoomRequest asks to enter an existing room.
type JoinRoomRequest struct {
	RoomID     string `json:"roomId"`
	Password   string `json:"password"`
	PlayerName string `json:"playerName"`
	Color      string `json:"color"`
}

// MidiRequest carries an opaque performance event relayed to the room.
type MidiRequest struct {
	Data json.RawMessage `json:"data"`
}

// PingRequest is a latency probe. PingMs optionally reports the round trip
// the client measured on its previous probe.
type PingRequest struct {
	ClientTime json.RawMessage `json:"clientTime"`
	PingMs     *float64        `json:"pingMs"`
}

// GetRoomsRequest asks for the current room list.
type GetRoomsRequest struct{}

// ChatRequest carries a chat line for the sender's room.
type ChatRequest struct {
	Message string `json:"message"`
}

func (CreateRoomRequest) inbound() {}
func (JoinRoomRequest) inbound()   {}
func (MidiRequest) inbound()       {}
func (PingRequest) inbound()       {}
func (GetRoomsRequest) inbound()   {}
func (ChatRequest) inbound()       {}

type envelope struct {
	Type string `json:"type"`
}

// DecodeInbound parses a raw frame into its request variant. Any error means
// the frame should be dropped.
func DecodeInbound(raw []byte) (InboundMessage, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	var msg InboundMessage
	var err error
	switch env.Type {
	case TypeCreateRoom:
		var m CreateRoomRequest
		err = json.Unmarshal(raw, &m)
		msg = m
	case TypeJoinRoom:
		var m JoinRoomRequest
		err = json.Unmarshal(raw, &m)
		msg = m
	case TypeMidi:
		var m MidiRequest
		err = json.Unmarshal(raw, &m)
		msg = m
	case TypePing:
		var m PingRequest
		err = json.Unmarshal(raw, &m)
		msg = m
	case TypeGetRooms:
		msg = GetRoomsRequest{}
	case TypeChat:
		var m ChatRequest
		err = json.Unmarshal(raw, &m)
		msg = m
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return msg, nil
}

// PlayerInfo is the display identity of one room member.
type PlayerInfo struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Color  string  `json:"color"`
	PingMs float64 `json:"pingMs"`
}

// RoomInfo is a point-in-time view of a room's membership.
type RoomInfo struct {
	Name    string       `json:"name"`
	Players []PlayerInfo `json:"players"`
}

// RoomSummary describes one live room in a room_list.
type RoomSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PlayerCount int    `json:"playerCount"`
	MaxPlayers  int    `json:"maxPlayers"`
	HasPassword bool   `json:"hasPassword"`
}

// RoomJoined confirms a create or join to the requester.
type RoomJoined struct {
	Type     string   `json:"type"`
	RoomID   string   `json:"roomId"`
	ClientID string   `json:"clientId"`
	RoomInfo RoomInfo `json:"roomInfo"`
}

// ErrorMessage reports a failed request to the requester only.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// PlayerJoined announces a new member to the rest of the room.
type PlayerJoined struct {
	Type     string     `json:"type"`
	Player   PlayerInfo `json:"player"`
	RoomInfo RoomInfo   `json:"roomInfo"`
}

// PlayerLeft announces a departed member to the remaining members.
type PlayerLeft struct {
	Type       string   `json:"type"`
	PlayerID   string   `json:"playerId"`
	PlayerName string   `json:"playerName"`
	RoomInfo   RoomInfo `json:"roomInfo"`
}

// MidiEvent is a relayed performance event. ServerTime is in Unix milliseconds.
type MidiEvent struct {
	Type        string          `json:"type"`
	SenderID    string          `json:"senderId"`
	SenderName  string          `json:"senderName"`
	SenderColor string          `json:"senderColor"`
	Data        json.RawMessage `json:"data,omitempty"`
	ServerTime  int64           `json:"serverTime"`
}

// Pong answers a ping, echoing the client's timestamp untouched.
type Pong struct {
	Type       string          `json:"type"`
	ClientTime json.RawMessage `json:"clientTime,omitempty"`
	ServerTime int64           `json:"serverTime"`
}

// RoomList answers get_rooms.
type RoomList struct {
	Type  string        `json:"type"`
	Rooms []RoomSummary `json:"rooms"`
}

// ChatEvent is a relayed chat line.
type ChatEvent struct {
	Type        string `json:"type"`
	SenderID    string `json:"senderId"`
	SenderName  string `json:"senderName"`
	SenderColor string `json:"senderColor"`
	Message     string `json:"message"`
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
