package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakePeer records every payload it is sent.
type fakePeer struct {
	id       string
	closed   bool
	received [][]byte
}

func newFakePeer(id string) *fakePeer {
	return &fakePeer{id: id}
}

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Send(payload []byte) bool {
	if p.closed {
		return false
	}
	p.received = append(p.received, payload)
	return true
}

func (p *fakePeer) messages(t *testing.T) []map[string]any {
	t.Helper()
	out := make([]map[string]any, 0, len(p.received))
	for _, raw := range p.received {
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			t.Fatalf("peer %s received invalid JSON %q: %v", p.id, raw, err)
		}
		out = append(out, m)
	}
	return out
}

func (p *fakePeer) last(t *testing.T) map[string]any {
	t.Helper()
	msgs := p.messages(t)
	if len(msgs) == 0 {
		t.Fatalf("peer %s received nothing", p.id)
	}
	return msgs[len(msgs)-1]
}

func (p *fakePeer) ofType(t *testing.T, typ string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, m := range p.messages(t) {
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

func (p *fakePeer) reset() {
	p.received = nil
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Failed to marshal %v: %v", v, err)
	}
	return data
}

// sequenceIDs returns a generator yielding ids in order, then repeating the last.
func sequenceIDs(ids ...string) IDGenerator {
	i := 0
	return func() (string, error) {
		id := ids[min(i, len(ids)-1)]
		i++
		return id, nil
	}
}

// startTestServer runs a hub and its routes behind httptest.
func startTestServer(t *testing.T, cfg Config) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(cfg)
	go hub.Run()

	srv := httptest.NewServer(SetupRoutes(hub))
	t.Cleanup(func() {
		_ = hub.Shutdown(2 * time.Second)
		srv.Close()
	})
	return hub, srv
}

func dialTestServer(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.Dial(url, nil)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("Failed to send message: %v", err)
	}
}

// readType reads frames until one of type typ arrives.
func readType(t *testing.T, conn *websocket.Conn, typ string) map[string]any {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(3 * time.Second)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	for {
		var m map[string]any
		if err := conn.ReadJSON(&m); err != nil {
			t.Fatalf("Failed waiting for %s: %v", typ, err)
		}
		if m["type"] == typ {
			return m
		}
	}
}

// readNext reads the next frame whatever its type.
func readNext(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(3 * time.Second)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	var m map[string]any
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	return m
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func playerNames(t *testing.T, roomInfo any) []string {
	t.Helper()
	info, ok := roomInfo.(map[string]any)
	if !ok {
		t.Fatalf("roomInfo has unexpected shape: %v", roomInfo)
	}
	players, _ := info["players"].([]any)
	names := make([]string, 0, len(players))
	for _, p := range players {
		names = append(names, p.(map[string]any)["name"].(string))
	}
	return names
}
