// Package events provides the structured audit trail of the bridge layer.
// Every state transition (request created, asset locked or unlocked,
// message processed, failed or retried, configuration changed) is logged
// as an event; external observers, including the marketplace bookkeeping
// core, learn about bridge completions only through this trail.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType classifies the kind of bridge event.
type EventType string

const (
	EventRequestCreated     EventType = "request.created"
	EventRequestCompleted   EventType = "request.completed"
	EventRequestFailed      EventType = "request.failed"
	EventRequestStale       EventType = "request.stale"
	EventAssetRegistered    EventType = "asset.registered"
	EventAssetLocked        EventType = "asset.locked"
	EventAssetUnlocked      EventType = "asset.unlocked"
	EventAssetArrived       EventType = "asset.arrived"
	EventAssetSynced        EventType = "asset.synced"
	EventMessageQueued      EventType = "message.queued"
	EventMessageProcessed   EventType = "message.processed"
	EventMessageDeduped     EventType = "message.deduped"
	EventMessageFailed      EventType = "message.failed"
	EventMessageRetried     EventType = "message.retried"
	EventListingReactivated EventType = "listing.reactivated"
	EventChainConfigured    EventType = "chain.config_changed"
)

// Severity indicates the importance of an event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Event represents one audit record.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`

	RequestID   string `json:"request_id,omitempty"`
	AssetID     string `json:"asset_id,omitempty"`
	MessageHash string `json:"message_hash,omitempty"`
	SourceChain string `json:"source_chain,omitempty"`
	TargetChain string `json:"target_chain,omitempty"`

	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// String returns a human-readable representation.
func (e Event) String() string {
	data, _ := json.Marshal(e)
	return string(data)
}

// EventHandler processes events as they occur.
type EventHandler func(Event)

// Logger is the interface for event logging.
type Logger interface {
	// Log records an event.
	Log(event Event)

	// Subscribe registers a handler for events; the returned function
	// unsubscribes it.
	Subscribe(handler EventHandler) func()

	// Recent returns the most recent N events.
	Recent(n int) []Event

	// RecentByType returns recent events of a specific type.
	RecentByType(eventType EventType, n int) []Event

	// RecentByAsset returns recent events for a specific asset identity.
	RecentByAsset(assetID string, n int) []Event
}

// RingBuffer is a thread-safe circular buffer for events.
type RingBuffer struct {
	mu       sync.RWMutex
	events   []Event
	size     int
	head     int
	count    int
	handlers []handlerEntry
	nextID   int64
}

type handlerEntry struct {
	id      int64
	handler EventHandler
}

// NewRingBuffer creates a new event ring buffer.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 1000
	}
	return &RingBuffer{
		events: make([]Event, size),
		size:   size,
	}
}

// Log adds an event to the buffer and notifies handlers.
func (rb *RingBuffer) Log(event Event) {
	rb.mu.Lock()
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Severity == "" {
		event.Severity = SeverityInfo
	}
	if event.ID == "" {
		event.ID = generateEventID()
	}

	rb.events[rb.head] = event
	rb.head = (rb.head + 1) % rb.size
	if rb.count < rb.size {
		rb.count++
	}

	handlers := make([]handlerEntry, len(rb.handlers))
	copy(handlers, rb.handlers)
	rb.mu.Unlock()

	// Notify handlers outside the lock
	for _, h := range handlers {
		h.handler(event)
	}
}

// Subscribe registers a handler for all events.
func (rb *RingBuffer) Subscribe(handler EventHandler) func() {
	rb.mu.Lock()
	id := rb.nextID
	rb.nextID++
	rb.handlers = append(rb.handlers, handlerEntry{id: id, handler: handler})
	rb.mu.Unlock()

	return func() {
		rb.mu.Lock()
		defer rb.mu.Unlock()
		for i, h := range rb.handlers {
			if h.id == id {
				rb.handlers = append(rb.handlers[:i], rb.handlers[i+1:]...)
				return
			}
		}
	}
}

// Recent returns the most recent N events in reverse chronological order.
func (rb *RingBuffer) Recent(n int) []Event {
	return rb.recentWhere(n, nil)
}

// RecentByType returns recent events of a specific type.
func (rb *RingBuffer) RecentByType(eventType EventType, n int) []Event {
	return rb.recentWhere(n, func(e Event) bool { return e.Type == eventType })
}

// RecentByAsset returns recent events for a specific asset identity.
func (rb *RingBuffer) RecentByAsset(assetID string, n int) []Event {
	return rb.recentWhere(n, func(e Event) bool { return e.AssetID == assetID })
}

func (rb *RingBuffer) recentWhere(n int, match func(Event) bool) []Event {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if n <= 0 || rb.count == 0 {
		return nil
	}

	var result []Event
	for i := 0; i < rb.count && len(result) < n; i++ {
		idx := (rb.head - 1 - i + rb.size) % rb.size
		if match == nil || match(rb.events[idx]) {
			result = append(result, rb.events[idx])
		}
	}
	return result
}

// Count returns the number of events in the buffer.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}

func generateEventID() string {
	return uuid.NewString()
}

// NoOpLogger is an event logger that discards all events.
type NoOpLogger struct{}

func (NoOpLogger) Log(Event)                           {}
func (NoOpLogger) Subscribe(EventHandler) func()       { return func() {} }
func (NoOpLogger) Recent(int) []Event                  { return nil }
func (NoOpLogger) RecentByType(EventType, int) []Event { return nil }
func (NoOpLogger) RecentByAsset(string, int) []Event   { return nil }

var (
	_ Logger = (*RingBuffer)(nil)
	_ Logger = NoOpLogger{}
)
