package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	EventInspectionCreated   EventType = "inspection.created"
	EventInspectionUpdated   EventType = "inspection.updated"
	EventInspectionCompleted EventType = "inspection.completed"
	EventInspectionDeleted   EventType = "inspection.deleted"
	EventComponentCreated    EventType = "component.created"
	EventComponentUpdated    EventType = "component.updated"
	EventComponentDeleted    EventType = "component.deleted"
	EventCustomerCreated     EventType = "customer.created"
	EventCustomerUpdated     EventType = "customer.updated"
	EventCustomerDeleted     EventType = "customer.deleted"
	EventSupplierCreated     EventType = "supplier.created"
	EventSupplierUpdated     EventType = "supplier.updated"
	EventSupplierDeleted     EventType = "supplier.deleted"
	EventModelRegistered     EventType = "model.registered"
	EventModelTransitioned   EventType = "model.transitioned"
	EventModelUnhealthy      EventType = "model.unhealthy"
	EventDriftDetected       EventType = "drift.detected"
	EventScaleOut            EventType = "scale.out"
	EventScaleIn             EventType = "scale.in"
	EventWorkerStarted       EventType = "worker.started"
	EventWorkerExited        EventType = "worker.exited"
	EventWorkerEscalated     EventType = "worker.escalated"
)

// Event represents a platform event
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	EntityID  string
	Message   string
	Metadata  map[string]string
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Bus manages event subscriptions and distribution. Publishers each hold
// their own ordered queue into the bus, so delivery is FIFO per publisher;
// ordering across publishers is unspecified.
type Bus struct {
	subscribers map[Subscriber][]EventType
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
	stopOnce    sync.Once
	dropped     atomic.Uint64
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[Subscriber][]EventType),
		eventCh:     make(chan *Event, 256),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the bus's event distribution loop
func (b *Bus) Start() {
	go b.run()
}

// Stop stops the bus
func (b *Bus) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
}

// Subscribe creates a subscription for the given event types. An empty type
// list subscribes to everything.
func (b *Bus) Subscribe(types ...EventType) Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 64)
	b.subscribers[sub] = types
	return sub
}

// Unsubscribe removes a subscription
func (b *Bus) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish publishes an event to all matching subscribers. Publish preserves
// the caller's ordering: events from a single goroutine are delivered in
// the order they were published.
func (b *Bus) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

// Dropped returns the number of events discarded because a subscriber
// buffer was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// SubscriberCount returns the number of active subscribers
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func (b *Bus) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Bus) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub, types := range b.subscribers {
		if !matches(types, event.Type) {
			continue
		}
		select {
		case sub <- event:
		default:
			// Subscriber buffer full; count the drop
			b.dropped.Add(1)
		}
	}
}

func matches(types []EventType, t EventType) bool {
	if len(types) == 0 {
		return true
	}
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}
