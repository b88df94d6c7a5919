// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the landing page.
package server

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

// HealthStatus is the body returned by the health endpoint.
type HealthStatus struct {
	Status    string `json:"status"`
	RoomCount int    `json:"roomCount"`
	Timestamp int64  `json:"timestamp"`
}

func newUpgrader(cfg Config) *websocket.Upgrader {
	policy := newOriginPolicy(cfg.AllowedOrigins)
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     policy.checkOrigin,
	}
}

// WebSocketHandler upgrades requests to WebSocket connections and registers
// each new client with hub, which then launches the client's pumps.
func WebSocketHandler(hub *Hub) http.HandlerFunc {
	upgrader := newUpgrader(hub.Config())

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed: %v", err)
			return
		}

		client := NewClient(conn, hub, r.RemoteAddr)
		if !hub.Register(client) {
			log.Printf("Rejecting connection from %s: hub is shut down", r.RemoteAddr)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			_ = conn.Close()
		}
	}
}

// HealthHandler reports liveness and the number of open rooms as JSON.
func HealthHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		status := HealthStatus{
			Status:    "ok",
			RoomCount: hub.RoomCount(),
			Timestamp: time.Now().UnixMilli(),
		}
		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Printf("Error writing health response: %v", err)
		}
	}
}

// IndexHandler serves the landing page read from path on every request.
func IndexHandler(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("Error reading landing page %s: %v", path, err)
			http.Error(w, "Error: index.html not found", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if _, err := w.Write(data); err != nil {
			log.Printf("Error writing HTML response: %v", err)
		}
	}
}
