package gateway

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/danang/arunika/pkg/escalation"
)

// EventMessage is the envelope pushed to event stream subscribers
type EventMessage struct {
	Type      string      `json:"type"`
	Event     string      `json:"event"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
	Seq       int64       `json:"seq"`
}

// subscriber wraps a websocket connection with a write lock. The websocket
// package allows only one concurrent writer per connection, and Broadcast
// is called from notifier goroutines and HTTP handlers alike.
type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *subscriber) write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// EventBroadcaster pushes events to all connected websocket subscribers.
// It satisfies escalation.Notifier so new escalations reach agent
// dashboards as they happen.
type EventBroadcaster struct {
	mu      sync.RWMutex
	clients map[string]*subscriber
	logger  zerolog.Logger
	seq     uint64
}

// NewEventBroadcaster creates a new event broadcaster
func NewEventBroadcaster(logger zerolog.Logger) *EventBroadcaster {
	return &EventBroadcaster{
		clients: make(map[string]*subscriber),
		logger:  logger,
	}
}

// Add registers a subscriber connection under the given id
func (b *EventBroadcaster) Add(id string, conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[id] = &subscriber{conn: conn}
}

// Remove drops a subscriber
func (b *EventBroadcaster) Remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, id)
}

// Count returns the number of connected subscribers
func (b *EventBroadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// EscalationCreated broadcasts a new escalation to all subscribers
func (b *EventBroadcaster) EscalationCreated(e escalation.Escalation) {
	b.Broadcast("escalation.created", e)
}

// Broadcast sends an event to all subscribers
func (b *EventBroadcaster) Broadcast(event string, data interface{}) {
	msg := EventMessage{
		Type:      "event",
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
		Seq:       int64(atomic.AddUint64(&b.seq, 1)),
	}

	jsonData, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error().Err(err).Str("event", msg.Event).Msg("Failed to marshal event")
		return
	}

	b.mu.RLock()
	subs := make(map[string]*subscriber, len(b.clients))
	for id, sub := range b.clients {
		subs[id] = sub
	}
	b.mu.RUnlock()

	if len(subs) == 0 {
		b.logger.Debug().Str("event", msg.Event).Msg("No subscribers to broadcast to")
		return
	}

	for id, sub := range subs {
		if err := sub.write(jsonData); err != nil {
			b.logger.Warn().Err(err).Str("clientId", id).Str("event", msg.Event).
				Msg("Failed to broadcast to subscriber")
		}
	}
}

// CloseAll closes every subscriber connection
func (b *EventBroadcaster) CloseAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.clients {
		sub.conn.Close()
		delete(b.clients, id)
	}
}
