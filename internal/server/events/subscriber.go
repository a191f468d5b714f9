package events

// Subscriber is a transport that receives forwarded events.
type Subscriber interface {
	// Send delivers an event. Implementations must not block.
	Send(Event) error

	// Close shuts the subscriber down.
	Close() error
}
