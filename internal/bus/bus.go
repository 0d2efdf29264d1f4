// Package bus provides the in-process topic-based publish/subscribe
// transport used for task event notification and as the substrate for
// the request/response delegation channel.
package bus

import (
	"errors"
	"log"
	"sync"
	"time"
)

// ErrClosed indicates an operation on a bus that has been shut down.
var ErrClosed = errors.New("message bus closed")

// Message is the unit delivered to subscribers.
type Message struct {
	// Topic is the topic the message was published on.
	Topic string
	// Payload is the message body.
	Payload any
	// CorrelationID links a request to its eventual response.
	CorrelationID string
	// ReplyTo names the topic a response should be published on.
	ReplyTo string
	// Timestamp is when the message was published.
	Timestamp time.Time
}

// Handler is invoked for every message published on a subscribed topic.
// Handlers run on their own goroutines; a handler must not assume any
// ordering relative to other handlers.
type Handler func(msg Message)

// Subscription is the handle returned by Subscribe, used to unsubscribe.
type Subscription struct {
	topic string
	id    uint64
	bus   *Bus
}

// Topic returns the topic this subscription listens on.
func (s *Subscription) Topic() string {
	return s.topic
}

// Unsubscribe removes the subscription from the bus.
// Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.bus == nil {
		return
	}
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if handlers, ok := s.bus.subs[s.topic]; ok {
		delete(handlers, s.id)
		if len(handlers) == 0 {
			delete(s.bus.subs, s.topic)
		}
	}
}

// Bus is an in-memory topic-based publish/subscribe transport.
// Topics are matched exactly; there is no wildcard routing.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]Handler
	nextID uint64
	closed bool
}

// New creates an empty message bus.
func New() *Bus {
	return &Bus{
		subs: make(map[string]map[uint64]Handler),
	}
}

// Subscribe registers a handler for a topic and returns the subscription
// handle used to remove it.
func (b *Bus) Subscribe(topic string, fn Handler) (*Subscription, error) {
	if fn == nil {
		return nil, errors.New("nil handler")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	b.nextID++
	id := b.nextID
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]Handler)
	}
	b.subs[topic][id] = fn
	return &Subscription{topic: topic, id: id, bus: b}, nil
}

// Publish delivers the message to every current subscriber of the topic.
// Each handler runs on its own goroutine; Publish returns immediately.
func (b *Bus) Publish(topic string, msg Message) error {
	handlers, err := b.snapshot(topic)
	if err != nil {
		return err
	}
	msg = b.stamp(topic, msg)
	for _, fn := range handlers {
		go b.invoke(topic, fn, msg)
	}
	return nil
}

// PublishSync delivers the message like Publish but waits for every
// handler invoked by this call to return before returning itself.
// Handlers subscribed after the snapshot is taken are not waited on.
func (b *Bus) PublishSync(topic string, msg Message) error {
	handlers, err := b.snapshot(topic)
	if err != nil {
		return err
	}
	msg = b.stamp(topic, msg)
	var wg sync.WaitGroup
	for _, fn := range handlers {
		wg.Add(1)
		go func(fn Handler) {
			defer wg.Done()
			b.invoke(topic, fn, msg)
		}(fn)
	}
	wg.Wait()
	return nil
}

// Close tears down all subscriptions. Publishing after Close returns
// ErrClosed; in-flight handler goroutines are left to finish.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[string]map[uint64]Handler)
}

// snapshot copies the current handler set for a topic.
func (b *Bus) snapshot(topic string) ([]Handler, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}
	handlers := make([]Handler, 0, len(b.subs[topic]))
	for _, fn := range b.subs[topic] {
		handlers = append(handlers, fn)
	}
	return handlers, nil
}

// stamp fills in the topic and timestamp on an outgoing message.
func (b *Bus) stamp(topic string, msg Message) Message {
	msg.Topic = topic
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return msg
}

// invoke runs a handler, recovering panics so a misbehaving subscriber
// never takes down the process.
func (b *Bus) invoke(topic string, fn Handler, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[bus] handler panic on topic %s: %v", topic, r)
		}
	}()
	fn(msg)
}
