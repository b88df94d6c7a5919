// Package server wires HTTP handlers into a gorilla/mux router for the relay.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

// SetupRoutes configures and returns a router with all application routes:
// the WebSocket endpoint, the health check, and the landing page.
func SetupRoutes(hub *Hub) *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware)

	r.HandleFunc("/ws", WebSocketHandler(hub)).Methods(http.MethodGet)
	r.HandleFunc("/health", HealthHandler(hub)).Methods(http.MethodGet, http.MethodHead)

	index := IndexHandler(hub.Config().IndexFile)
	r.HandleFunc("/", index).Methods(http.MethodGet)
	r.HandleFunc("/index.html", index).Methods(http.MethodGet)

	r.NotFoundHandler = corsMiddleware(statusHandler(http.StatusNotFound))
	r.MethodNotAllowedHandler = corsMiddleware(statusHandler(http.StatusMethodNotAllowed))
	return r
}

// statusHandler answers with an empty body and the given status code.
func statusHandler(code int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(code)
	})
}

// corsMiddleware runs only on matched routes; unmatched requests get it
// through the not-found and method-not-allowed handlers.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}
