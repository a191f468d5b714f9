// Package events fans hook registry emissions out to live admin clients.
//
// The broker subscribes to every event in the registry and forwards each
// emission to the registered transports (SSE and WebSocket) concurrently.
package events

import "time"

// EventType is the name of a forwarded event. Hook events keep their
// registry name, e.g. "plugin:activated".
type EventType string

// Event types produced by the transports themselves.
const (
	ClientConnected EventType = "client:connected"
)

// Event is a forwarded emission.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}
