package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"stockyard.org/internal/obs"
)

// Domain event names delivered to dashboard subscribers.
const (
	OrderCreated    = "ORDER_CREATED"
	OrderUpdated    = "ORDER_UPDATED"
	ShipmentCreated = "SHIPMENT_CREATED"
	ShipmentUpdated = "SHIPMENT_UPDATED"
)

// Message is a single unit pushed to a subscriber. Heartbeats carry no event
// name; they exist only to defeat idle-connection timeouts in proxies.
type Message struct {
	Event     string `json:"event,omitempty"`
	Heartbeat bool   `json:"-"`
}

// DefaultHeartbeatInterval keeps connections alive through typical
// 60-second proxy idle timeouts.
const DefaultHeartbeatInterval = 25 * time.Second

// Bus fan-outs domain events to all active subscribers. Delivery is
// best-effort at call time: a handle that connects after an event is
// permanently missed, and a handle whose delivery fails is unregistered,
// not retried.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]chan Message
}

// NewBus initialises an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]chan Message)}
}

// Subscribe registers a new long-lived observer and returns its handle id
// together with the receive channel. The channel is closed on Unsubscribe.
func (b *Bus) Subscribe() (string, <-chan Message) {
	ch := make(chan Message, 16)
	id := uuid.NewString()

	b.mu.Lock()
	b.subs[id] = ch
	n := len(b.subs)
	b.mu.Unlock()

	obs.SetStreamSubscribers(n)
	return id, ch
}

// Unsubscribe removes the handle and closes its channel. Safe to call more
// than once.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	ch, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
		close(ch)
	}
	n := len(b.subs)
	b.mu.Unlock()

	if ok {
		obs.SetStreamSubscribers(n)
	}
}

// Len reports the current subscriber count.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Broadcast delivers the event to every currently-registered handle. A
// subscriber that cannot accept the message is treated as disconnected and
// unregistered.
func (b *Bus) Broadcast(event string) {
	b.send(Message{Event: event})
}

func (b *Bus) send(msg Message) {
	var dead []string

	b.mu.RLock()
	for id, ch := range b.subs {
		select {
		case ch <- msg:
		default:
			dead = append(dead, id)
		}
	}
	b.mu.RUnlock()

	for _, id := range dead {
		b.Unsubscribe(id)
	}
}

// StartHeartbeat emits heartbeat messages at the provided interval until the
// returned stop function is called. Heartbeat failures also unregister the
// handle.
func (b *Bus) StartHeartbeat(interval time.Duration) func() {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.send(Message{Heartbeat: true})
			}
		}
	}()
	return cancel
}
