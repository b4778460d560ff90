package payments

import (
	"sync"
	"time"
)

// MemoryEventStore is a simple in-memory store of processed webhook event
// IDs, used to drop duplicate deliveries. Entries expire after the TTL, which
// is enough because the processor only redelivers events for a bounded time.
// A multi-instance deployment would need a shared store instead.
type MemoryEventStore struct {
	events map[string]time.Time
	mutex  sync.RWMutex
	ttl    time.Duration
	stop   chan struct{}
}

// NewMemoryEventStore creates a new in-memory event store
func NewMemoryEventStore(ttl time.Duration) *MemoryEventStore {
	if ttl == 0 {
		ttl = 24 * time.Hour // Default TTL of 24 hours
	}

	store := &MemoryEventStore{
		events: make(map[string]time.Time),
		ttl:    ttl,
		stop:   make(chan struct{}),
	}

	// Start cleanup goroutine
	go store.cleanup()

	return store
}

// EventExists checks if an event has already been processed
func (m *MemoryEventStore) EventExists(eventID string) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	_, exists := m.events[eventID]
	return exists
}

// MarkProcessed marks an event as processed
func (m *MemoryEventStore) MarkProcessed(eventID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.events[eventID] = time.Now()
}

// cleanup removes expired events periodically until Close is called.
func (m *MemoryEventStore) cleanup() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.mutex.Lock()
			now := time.Now()
			for eventID, timestamp := range m.events {
				if now.Sub(timestamp) > m.ttl {
					delete(m.events, eventID)
				}
			}
			m.mutex.Unlock()
		}
	}
}

// Close stops the cleanup goroutine. The store must not be used afterwards.
func (m *MemoryEventStore) Close() {
	close(m.stop)
}

// Size returns the number of stored events (for monitoring/debugging)
func (m *MemoryEventStore) Size() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.events)
}
