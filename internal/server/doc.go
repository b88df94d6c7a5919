// Package server implements the jam session relay: a WebSocket server where
// clients create or join password-optional rooms and exchange MIDI events,
// chat, and presence notifications with the other members.
//
// The implementation is organized into specialized files for configuration,
// the hub event loop, clients, the room registry, message routing, and HTTP
// handlers. All room state is owned by the Hub goroutine; see hub.go.
package server
