// Package event is the publish/subscribe side channel of a chain. Subscribers
// register callbacks per event type; the Node stage publishes the last
// message together with a snapshot of the chain state.
//
// Delivery is synchronous and in subscription order. A failing subscriber is
// logged and skipped; it never affects the other subscribers or the chain.
package event

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/hupe1980/promptchain/core"
	"github.com/hupe1980/promptchain/logging"
)

// Payload is delivered to subscribers.
type Payload struct {
	Message core.Message
	State   core.State
}

// Subscriber handles a published payload.
type Subscriber func(Payload) error

// BusOptions configures a Bus.
type BusOptions struct {
	Logger logging.Logger
}

type subscription struct {
	id uint64
	fn Subscriber
}

// Bus routes payloads to the subscribers of an event type. It is safe for
// concurrent use; callbacks run outside the lock, so subscribers may
// subscribe or publish themselves.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]subscription
	nextID uint64
	logger logging.Logger
}

// NewBus creates an empty bus.
func NewBus(optFns ...func(o *BusOptions)) *Bus {
	opts := BusOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Bus{subs: map[string][]subscription{}, logger: opts.Logger}
}

// SetLogger replaces the logger used for subscriber failures.
func (b *Bus) SetLogger(l logging.Logger) {
	if l == nil {
		l = logging.NoOpLogger{}
	}
	b.mu.Lock()
	b.logger = l
	b.mu.Unlock()
}

// Subscribe registers fn for eventType and returns a function removing it
// again. Registering the same callback twice delivers twice.
func (b *Bus) Subscribe(eventType string, fn Subscriber) (unsubscribe func()) {
	if fn == nil {
		panic(&core.ConstructionError{Input: fn, Err: fmt.Errorf("nil subscriber for event type %q", eventType)})
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[eventType] = append(b.subs[eventType], subscription{id: id, fn: fn})
	logger := b.logger
	b.mu.Unlock()

	logger.Debug("event.subscribe", "event_type", eventType, "subscription", id)

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(eventType, id) })
	}
}

func (b *Bus) remove(eventType string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, s := range subs {
		if s.id == id {
			next := make([]subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			if len(next) == 0 {
				delete(b.subs, eventType)
			} else {
				b.subs[eventType] = next
			}
			return
		}
	}
}

// Publish delivers payload to every subscriber of eventType and returns the
// number of subscribers that completed without error. Publishing a type
// nobody subscribed to is a no-op.
func (b *Bus) Publish(eventType string, payload Payload) int {
	b.mu.RLock()
	subs := b.subs[eventType]
	logger := b.logger
	b.mu.RUnlock()

	delivered := 0
	for _, s := range subs {
		if err := deliver(s.fn, payload); err != nil {
			logger.Error("event.subscriber.failed", "event_type", eventType, "subscription", s.id, "error", err.Error())
			continue
		}
		delivered++
	}
	return delivered
}

// Subscribers returns the number of subscribers registered for eventType.
func (b *Bus) Subscribers(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[eventType])
}

// Reset removes all subscriptions.
func (b *Bus) Reset() {
	b.mu.Lock()
	b.subs = map[string][]subscription{}
	b.mu.Unlock()
}

func deliver(fn Subscriber, payload Payload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn(payload)
}

// PanicError wraps a value recovered from a panicking subscriber.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("subscriber panicked: %v", e.Value) }

// The process-wide bus reports subscriber failures through slog.Default so
// they are visible without configuration.
var defaultBus = NewBus(func(o *BusOptions) {
	o.Logger = logging.NewDefaultSlogLogger()
})

// Default returns the process-wide bus used by the package-level functions
// and by nodes created without an explicit bus.
func Default() *Bus { return defaultBus }

// Subscribe registers fn on the default bus.
func Subscribe(eventType string, fn Subscriber) (unsubscribe func()) {
	return defaultBus.Subscribe(eventType, fn)
}

// Publish delivers payload on the default bus.
func Publish(eventType string, payload Payload) int {
	return defaultBus.Publish(eventType, payload)
}

// Reset clears the default bus.
func Reset() { defaultBus.Reset() }
