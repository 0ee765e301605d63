// Package feed fans book request changes and lifecycle notifications out to live viewers.
package feed

import (
	"log"
	"sync"
)

const (
	TypeChange       = "change"
	TypeNotification = "notification"
)

// Message is one item on the feed. Change messages describe a book_requests row mutation;
// notification messages carry a lifecycle event in Payload.
type Message struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
	Op        string `json:"op,omitempty"`
	Status    string `json:"status,omitempty"`
	UserID    string `json:"-"`
	Payload   any    `json:"payload,omitempty"`
}

// Broker is an in-process publish/subscribe hub. Publishing never blocks: a subscriber whose
// buffer is full misses the message.
type Broker struct {
	mu     sync.RWMutex
	subs   map[int]chan Message
	nextID int
	closed bool
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[int]chan Message)}
}

// Publish delivers msg to every current subscriber.
func (b *Broker) Publish(msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subs {
		select {
		case ch <- msg:
		default:
			log.Printf("Feed subscriber %d is not keeping up; dropped %s for request %s", id, msg.Type, msg.RequestID)
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel func closes the channel and is safe to call twice.
func (b *Broker) Subscribe(buffer int) (<-chan Message, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Message, buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(ch)
			}
		})
	}
}

// Subscribers reports the number of live subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close disconnects every subscriber. Later subscriptions receive an already closed channel.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
	b.closed = true
}
