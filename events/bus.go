package events

import "sync"

// Topic names broadcast by the core components. External consumers (the UI
// stream, the syncer, the registry) subscribe; components never subscribe to
// their own topics.
type Topic string

const (
	ItemAdded         Topic = "item-added"
	ItemChanged       Topic = "item-changed"
	ItemFailed        Topic = "item-failed"
	RepositoryChanged Topic = "repository-changed"
	SyncStarted       Topic = "sync-started"
	SyncCompleted     Topic = "sync-completed"
	BatchSynced       Topic = "batch-synced"
	RegistryUpdated   Topic = "registry-updated"
	RegistryFetching  Topic = "registry-fetching"
	LocationChanged   Topic = "location-changed"
	Online            Topic = "online"
	Offline           Topic = "offline"
)

// Handler receives the payload published with an event. Payload type is
// per-topic (record snapshots, summaries, bools); handlers must not block.
type Handler func(payload any)

// Bus is a minimal in-process publish/subscribe hub. Dispatch is synchronous
// and in subscription order; publishers must not hold their own locks while
// publishing.
type Bus struct {
	mu   sync.RWMutex
	subs map[Topic][]Handler
}

func New() *Bus {
	return &Bus{subs: make(map[Topic][]Handler)}
}

func (b *Bus) Subscribe(t Topic, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[t] = append(b.subs[t], h)
}

func (b *Bus) Publish(t Topic, payload any) {
	b.mu.RLock()
	handlers := b.subs[t]
	b.mu.RUnlock()
	for _, h := range handlers {
		h(payload)
	}
}
