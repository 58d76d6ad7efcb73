package agent

import (
	"sync"

	"asset_inventory_tool/events"
)

// streamed topics forwarded to connected UIs.
var streamedTopics = []events.Topic{
	events.ItemAdded,
	events.ItemChanged,
	events.ItemFailed,
	events.RepositoryChanged,
	events.SyncStarted,
	events.SyncCompleted,
	events.BatchSynced,
	events.RegistryUpdated,
	events.RegistryFetching,
	events.Online,
	events.Offline,
}

type streamMsg struct {
	Topic   events.Topic `json:"topic"`
	Payload any          `json:"payload,omitempty"`
}

// stream fans bus events out to SSE clients. The bus has no unsubscribe, so
// the stream subscribes once and manages per-connection channels itself.
type stream struct {
	mu      sync.Mutex
	clients map[chan streamMsg]struct{}
}

func newStream(bus *events.Bus) *stream {
	s := &stream{clients: make(map[chan streamMsg]struct{})}
	for _, topic := range streamedTopics {
		t := topic
		bus.Subscribe(t, func(payload any) { s.broadcast(streamMsg{Topic: t, Payload: payload}) })
	}
	return s
}

func (s *stream) broadcast(msg streamMsg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.clients {
		select {
		case ch <- msg:
		default:
			// Slow consumer; drop rather than stall the publisher.
		}
	}
}

func (s *stream) attach() chan streamMsg {
	ch := make(chan streamMsg, 64)
	s.mu.Lock()
	s.clients[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

func (s *stream) detach(ch chan streamMsg) {
	s.mu.Lock()
	delete(s.clients, ch)
	s.mu.Unlock()
}
