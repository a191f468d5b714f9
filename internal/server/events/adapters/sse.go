package adapters

import (
	"strconv"

	"github.com/lane711/sonicjs/internal/server/events"
	"github.com/lane711/sonicjs/internal/server/sse"
)

// SSESubscriber forwards broker events to an SSE broadcaster.
type SSESubscriber struct {
	broadcaster *sse.Broadcaster
}

// NewSSESubscriber creates an SSE subscriber.
func NewSSESubscriber(broadcaster *sse.Broadcaster) *SSESubscriber {
	return &SSESubscriber{broadcaster: broadcaster}
}

// Send implements events.Subscriber. The frame id is the emission time in
// milliseconds.
func (s *SSESubscriber) Send(event events.Event) error {
	s.broadcaster.Broadcast(sse.Event{
		Event: string(event.Type),
		ID:    strconv.FormatInt(event.Timestamp.UnixMilli(), 10),
		Data:  event.Data,
	})
	return nil
}

// Close is a no-op; the broadcaster owns its lifecycle.
func (s *SSESubscriber) Close() error {
	return nil
}
