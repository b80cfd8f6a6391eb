package core

import "sync"

// EventType tells subscribers why a snapshot was published.
type EventType string

const (
	// FrameEvent follows every rendered frame.
	FrameEvent EventType = "Frame"
	// PatternChangedEvent follows a select or a stop.
	PatternChangedEvent EventType = "PatternChanged"
)

// Event pairs a snapshot of the animation with the reason it was taken.
type Event struct {
	Type     EventType
	Snapshot Snapshot
}

// Subscriber receives the events it subscribed to.
type Subscriber chan Event

const subscriberBuffer = 32

// EventBus carries animation snapshots from the loop to the monitor and MQTT.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
}

func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
	}
}

// Subscribe returns a buffered channel that receives events of the given types.
func (eb *EventBus) Subscribe(eventTypes ...EventType) Subscriber {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(Subscriber, subscriberBuffer)
	for _, t := range eventTypes {
		eb.subscribers[t] = append(eb.subscribers[t], ch)
	}
	return ch
}

func (eb *EventBus) Unsubscribe(ch Subscriber, eventTypes ...EventType) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for _, t := range eventTypes {
		subs := eb.subscribers[t]
		for i, sub := range subs {
			if sub == ch {
				eb.subscribers[t] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
}

// Publish hands snap to every subscriber of t. It never blocks: a subscriber
// whose buffer is full misses the snapshot. A nil bus drops everything.
func (eb *EventBus) Publish(t EventType, snap Snapshot) {
	if eb == nil {
		return
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	ev := Event{Type: t, Snapshot: snap}
	for _, sub := range eb.subscribers[t] {
		select {
		case sub <- ev:
		default:
		}
	}
}
