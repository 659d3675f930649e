package events

import (
	"sync"
)

// Envelope wraps a published payload with its topic so multi-topic
// subscribers (the websocket stream) can tell events apart.
type Envelope struct {
	Topic   Event `json:"topic"`
	Payload any   `json:"payload"`
}

// Bus is a lightweight pub/sub broker using channels.
type Bus struct {
	mu   sync.RWMutex
	subs map[Event][]chan Envelope
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Event][]chan Envelope)}
}

// Subscribe registers a listener for an event and returns the channel and an
// unsubscribe function.
func (b *Bus) Subscribe(e Event, buffer int) (<-chan Envelope, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Envelope, buffer)
	b.subs[e] = append(b.subs[e], ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[e]
		for i, c := range subs {
			if c == ch {
				close(c)
				b.subs[e] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}

	return ch, unsub
}

// SubscribeMany fans several topics into one channel. The returned cancel
// function detaches all of them.
func (b *Bus) SubscribeMany(topics []Event, buffer int) (<-chan Envelope, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Envelope, buffer)
	for _, e := range topics {
		b.subs[e] = append(b.subs[e], ch)
	}

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		closed := false
		for _, e := range topics {
			subs := b.subs[e]
			for i, c := range subs {
				if c == ch {
					if !closed {
						close(c)
						closed = true
					}
					b.subs[e] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
		}
	}

	return ch, unsub
}

// Publish fan-outs the payload to subscribers asynchronously to avoid
// blocking; slow subscribers drop events rather than stall the gate.
func (b *Bus) Publish(e Event, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	env := Envelope{Topic: e, Payload: payload}
	for _, ch := range b.subs[e] {
		select {
		case ch <- env:
		default:
			// drop if subscriber is slow; keep broker non-blocking
		}
	}
}
