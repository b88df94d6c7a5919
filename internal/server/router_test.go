package server

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

type routerFixture struct {
	registry *RoomRegistry
	router   *Router
}

func newRouterFixture(ids ...string) *routerFixture {
	var gen IDGenerator
	if len(ids) > 0 {
		gen = sequenceIDs(ids...)
	}
	registry := NewRoomRegistry(gen)
	router := NewRouter(registry)
	router.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	return &routerFixture{registry: registry, router: router}
}

func (f *routerFixture) connect(id string) *fakePeer {
	p := newFakePeer(id)
	f.router.Connect(p)
	return p
}

func (f *routerFixture) handle(t *testing.T, p *fakePeer, msg map[string]any) {
	t.Helper()
	f.router.Handle(p, mustJSON(t, msg))
}

// createRoom has host create a room and returns its id.
func (f *routerFixture) createRoom(t *testing.T, host *fakePeer, msg map[string]any) string {
	t.Helper()
	msg["type"] = TypeCreateRoom
	f.handle(t, host, msg)
	reply := host.last(t)
	if reply["type"] != TypeRoomJoined {
		t.Fatalf("create_room reply = %v", reply)
	}
	return reply["roomId"].(string)
}

func TestRouterCreateRoom(t *testing.T) {
	f := newRouterFixture("ABC123")
	host := f.connect("host")

	roomID := f.createRoom(t, host, map[string]any{"name": "Jam"})

	if roomID != "ABC123" {
		t.Errorf("roomId = %q, want ABC123", roomID)
	}
	reply := host.last(t)
	if reply["clientId"] != "host" {
		t.Errorf("clientId = %v, want host", reply["clientId"])
	}
	info := reply["roomInfo"].(map[string]any)
	if info["name"] != "Jam" {
		t.Errorf("roomInfo.name = %v", info["name"])
	}
	player := info["players"].([]any)[0].(map[string]any)
	if player["name"] != "Host" || player["color"] != "#00e5ff" || player["id"] != "host" {
		t.Errorf("host player = %v, want defaults Host/#00e5ff", player)
	}
	if f.router.RoomOf(host) != "ABC123" {
		t.Errorf("RoomOf(host) = %q", f.router.RoomOf(host))
	}
	if len(host.received) != 1 {
		t.Errorf("host received %d messages, want 1", len(host.received))
	}
}

func TestRouterCreateRoomClampsMaxPlayers(t *testing.T) {
	tests := []struct {
		name         string
		maxPlayers   any
		wantCapacity int
	}{
		{name: "missing", maxPlayers: nil, wantCapacity: 8},
		{name: "zero", maxPlayers: 0, wantCapacity: 8},
		{name: "huge", maxPlayers: 1e300, wantCapacity: 16},
		{name: "above range", maxPlayers: 100, wantCapacity: 16},
		{name: "fraction below one", maxPlayers: 0.5, wantCapacity: 1},
		{name: "negative", maxPlayers: -3, wantCapacity: 1},
		{name: "fraction in range", maxPlayers: 4.7, wantCapacity: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRouterFixture()
			msg := map[string]any{"name": "Cap"}
			if tt.maxPlayers != nil {
				msg["maxPlayers"] = tt.maxPlayers
			}
			roomID := f.createRoom(t, f.connect("host"), msg)

			room, ok := f.registry.GetRoom(roomID)
			if !ok {
				t.Fatalf("room %q not registered", roomID)
			}
			if room.MaxPlayers() != tt.wantCapacity {
				t.Errorf("MaxPlayers() = %d, want %d", room.MaxPlayers(), tt.wantCapacity)
			}
		})
	}
}

func TestRouterJoinRoomScenarios(t *testing.T) {
	t.Run("full room", func(t *testing.T) {
		f := newRouterFixture()
		a, b, c := f.connect("a"), f.connect("b"), f.connect("c")
		roomID := f.createRoom(t, a, map[string]any{"maxPlayers": 2})
		f.handle(t, b, map[string]any{"type": TypeJoinRoom, "roomId": roomID})

		f.handle(t, c, map[string]any{"type": TypeJoinRoom, "roomId": roomID})

		reply := c.last(t)
		if reply["type"] != TypeError || reply["message"] != msgRoomFull {
			t.Errorf("reply = %v, want room full error", reply)
		}
		room, _ := f.registry.GetRoom(roomID)
		if room.Len() != 2 {
			t.Errorf("room size = %d, want 2", room.Len())
		}
		if f.router.RoomOf(c) != "" {
			t.Error("rejected connection is marked as joined")
		}
	})

	t.Run("password", func(t *testing.T) {
		f := newRouterFixture()
		host, guest := f.connect("host"), f.connect("guest")
		roomID := f.createRoom(t, host, map[string]any{"name": "Secret", "password": "abc"})

		f.handle(t, guest, map[string]any{"type": TypeJoinRoom, "roomId": roomID, "password": "xyz"})
		if reply := guest.last(t); reply["type"] != TypeError || reply["message"] != msgWrongPassword {
			t.Fatalf("reply = %v, want wrong password error", reply)
		}

		f.handle(t, guest, map[string]any{"type": TypeJoinRoom, "roomId": roomID, "password": "abc", "playerName": "Guest"})
		reply := guest.last(t)
		if reply["type"] != TypeRoomJoined || reply["roomId"] != roomID {
			t.Fatalf("reply = %v, want room_joined", reply)
		}
		if got := playerNames(t, reply["roomInfo"]); !reflect.DeepEqual(got, []string{"Host", "Guest"}) {
			t.Errorf("players = %v", got)
		}
	})

	t.Run("missing room", func(t *testing.T) {
		f := newRouterFixture()
		p := f.connect("p")
		f.handle(t, p, map[string]any{"type": TypeJoinRoom, "roomId": "FFFFFF"})
		if reply := p.last(t); reply["type"] != TypeError || reply["message"] != msgRoomNotFound {
			t.Errorf("reply = %v, want room not found error", reply)
		}
	})
}

func TestRouterJoinAnnouncesToOthers(t *testing.T) {
	f := newRouterFixture()
	host, guest := f.connect("host"), f.connect("guest")
	roomID := f.createRoom(t, host, map[string]any{})
	host.reset()

	f.handle(t, guest, map[string]any{"type": TypeJoinRoom, "roomId": roomID, "playerName": strings.Repeat("g", 30)})

	joined := host.ofType(t, TypePlayerJoined)
	if len(joined) != 1 {
		t.Fatalf("host received %d player_joined, want 1", len(joined))
	}
	player := joined[0]["player"].(map[string]any)
	if player["id"] != "guest" || player["color"] != "#ff6b35" {
		t.Errorf("player = %v, want guest with #ff6b35", player)
	}
	if name := player["name"].(string); len(name) != maxPlayerNameLen {
		t.Errorf("player name length = %d, want %d", len(name), maxPlayerNameLen)
	}
	if len(guest.ofType(t, TypePlayerJoined)) != 0 {
		t.Error("joining peer received its own player_joined")
	}
}

func TestRouterChatReachesEveryone(t *testing.T) {
	f := newRouterFixture()
	a, b := f.connect("a"), f.connect("b")
	roomID := f.createRoom(t, a, map[string]any{"playerName": "Ann"})
	f.handle(t, b, map[string]any{"type": TypeJoinRoom, "roomId": roomID})
	a.reset()
	b.reset()

	f.handle(t, a, map[string]any{"type": TypeChat, "message": "hi"})
	f.handle(t, a, map[string]any{"type": TypeChat, "message": strings.Repeat("x", 250)})

	for _, p := range []*fakePeer{a, b} {
		chats := p.ofType(t, TypeChat)
		if len(chats) != 2 {
			t.Fatalf("%s received %d chats, want 2", p.id, len(chats))
		}
		if chats[0]["message"] != "hi" || chats[0]["senderId"] != "a" || chats[0]["senderName"] != "Ann" {
			t.Errorf("%s first chat = %v", p.id, chats[0])
		}
		if got := len(chats[1]["message"].(string)); got != maxChatLen {
			t.Errorf("%s long chat length = %d, want %d", p.id, got, maxChatLen)
		}
	}
}

func TestRouterMidiExcludesSender(t *testing.T) {
	f := newRouterFixture()
	a, b, c := f.connect("a"), f.connect("b"), f.connect("c")
	roomID := f.createRoom(t, a, map[string]any{})
	f.handle(t, b, map[string]any{"type": TypeJoinRoom, "roomId": roomID, "color": "#123456"})
	f.handle(t, c, map[string]any{"type": TypeJoinRoom, "roomId": roomID})
	a.reset()
	b.reset()
	c.reset()

	f.handle(t, b, map[string]any{"type": TypeMidi, "data": map[string]any{"note": 60, "velocity": 100}})

	if len(b.received) != 0 {
		t.Errorf("sender received %d messages", len(b.received))
	}
	for _, p := range []*fakePeer{a, c} {
		midi := p.ofType(t, TypeMidi)
		if len(midi) != 1 {
			t.Fatalf("%s received %d midi, want 1", p.id, len(midi))
		}
		m := midi[0]
		if m["senderId"] != "b" || m["senderColor"] != "#123456" || m["senderName"] != "Musician" {
			t.Errorf("%s midi = %v", p.id, m)
		}
		if m["serverTime"] != float64(1_700_000_000_000) {
			t.Errorf("serverTime = %v", m["serverTime"])
		}
		data := m["data"].(map[string]any)
		if data["note"] != float64(60) {
			t.Errorf("data = %v", data)
		}
	}
}

func TestRouterUnjoinedRelayIsDropped(t *testing.T) {
	f := newRouterFixture()
	loner := f.connect("loner")
	host := f.connect("host")
	f.createRoom(t, host, map[string]any{})
	host.reset()

	f.handle(t, loner, map[string]any{"type": TypeChat, "message": "anyone?"})
	f.handle(t, loner, map[string]any{"type": TypeMidi, "data": []int{1}})

	if len(loner.received) != 0 || len(host.received) != 0 {
		t.Errorf("unjoined relay produced output: loner=%d host=%d", len(loner.received), len(host.received))
	}
}

func TestRouterPingAndRoomList(t *testing.T) {
	f := newRouterFixture("AAAA01", "AAAA02")
	p := f.connect("p")

	f.handle(t, p, map[string]any{"type": TypePing, "clientTime": 12345})
	pong := p.last(t)
	if pong["type"] != TypePong || pong["clientTime"] != float64(12345) || pong["serverTime"] != float64(1_700_000_000_000) {
		t.Errorf("pong = %v", pong)
	}

	f.createRoom(t, f.connect("h1"), map[string]any{"name": "One"})
	f.createRoom(t, f.connect("h2"), map[string]any{"name": "Two", "password": "pw", "maxPlayers": 3})

	f.handle(t, p, map[string]any{"type": TypeGetRooms})
	list := p.last(t)
	if list["type"] != TypeRoomList {
		t.Fatalf("reply = %v", list)
	}
	rooms := list["rooms"].([]any)
	if len(rooms) != 2 {
		t.Fatalf("room_list has %d rooms, want 2", len(rooms))
	}
	for _, r := range rooms {
		room := r.(map[string]any)
		if room["id"] == "AAAA02" {
			if room["hasPassword"] != true || room["maxPlayers"] != float64(3) || room["playerCount"] != float64(1) {
				t.Errorf("room = %v", room)
			}
		}
	}
}

func TestRouterPingRecordsLatency(t *testing.T) {
	f := newRouterFixture()
	a, b := f.connect("a"), f.connect("b")
	roomID := f.createRoom(t, a, map[string]any{})

	f.handle(t, a, map[string]any{"type": TypePing, "clientTime": 1, "pingMs": 23})
	f.handle(t, b, map[string]any{"type": TypeJoinRoom, "roomId": roomID})

	players := b.last(t)["roomInfo"].(map[string]any)["players"].([]any)
	if got := players[0].(map[string]any)["pingMs"]; got != float64(23) {
		t.Errorf("host pingMs = %v, want 23", got)
	}
}

func TestRouterDropsMalformedInput(t *testing.T) {
	f := newRouterFixture()
	p := f.connect("p")

	for _, raw := range []string{`not json`, `{"type":"dance"}`, `{"type":"join_room","roomId":7}`, `{}`} {
		f.router.Handle(p, []byte(raw))
	}

	if len(p.received) != 0 {
		t.Errorf("malformed input produced %d replies", len(p.received))
	}
}

func TestRouterDisconnect(t *testing.T) {
	f := newRouterFixture()
	a, b := f.connect("a"), f.connect("b")
	roomID := f.createRoom(t, a, map[string]any{"playerName": "Ann"})
	f.handle(t, b, map[string]any{"type": TypeJoinRoom, "roomId": roomID, "playerName": "Bob"})
	b.reset()

	f.router.Disconnect(a)

	left := b.ofType(t, TypePlayerLeft)
	if len(left) != 1 {
		t.Fatalf("b received %d player_left, want 1", len(left))
	}
	if left[0]["playerId"] != "a" || left[0]["playerName"] != "Ann" {
		t.Errorf("player_left = %v", left[0])
	}
	if got := playerNames(t, left[0]["roomInfo"]); !reflect.DeepEqual(got, []string{"Bob"}) {
		t.Errorf("remaining players = %v", got)
	}

	f.router.Disconnect(b)
	if _, ok := f.registry.GetRoom(roomID); ok {
		t.Error("empty room still registered")
	}
	for _, s := range f.registry.ListRooms() {
		if s.ID == roomID {
			t.Error("empty room still listed")
		}
	}

	f.router.Disconnect(b)
}

func TestRouterSwitchingRoomsLeavesPrevious(t *testing.T) {
	f := newRouterFixture("ROOM01", "ROOM02")
	a, b := f.connect("a"), f.connect("b")
	first := f.createRoom(t, a, map[string]any{})
	f.handle(t, b, map[string]any{"type": TypeJoinRoom, "roomId": first})

	second := f.createRoom(t, b, map[string]any{})

	room, ok := f.registry.GetRoom(first)
	if !ok {
		t.Fatal("first room vanished while a is still in it")
	}
	if room.Has(b) {
		t.Error("b is still a member of the first room")
	}
	if len(a.ofType(t, TypePlayerLeft)) != 1 {
		t.Error("a was not told that b left")
	}
	if f.router.RoomOf(b) != second {
		t.Errorf("RoomOf(b) = %q, want %q", f.router.RoomOf(b), second)
	}

	f.handle(t, a, map[string]any{"type": TypeJoinRoom, "roomId": second})
	if _, ok := f.registry.GetRoom(first); ok {
		t.Error("first room should close once its only member moves on")
	}
}

func TestRouterRejoinSameRoom(t *testing.T) {
	f := newRouterFixture()
	a := f.connect("a")
	roomID := f.createRoom(t, a, map[string]any{"maxPlayers": 1})

	f.handle(t, a, map[string]any{"type": TypeJoinRoom, "roomId": roomID})

	if reply := a.last(t); reply["type"] != TypeRoomJoined {
		t.Errorf("reply = %v, want room_joined", reply)
	}
	room, _ := f.registry.GetRoom(roomID)
	if room.Len() != 1 {
		t.Errorf("room size = %d, want 1", room.Len())
	}
}
