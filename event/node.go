package event

import (
	"context"

	"github.com/hupe1980/promptchain/core"
)

// Predicate decides whether a node publishes for the current message.
type Predicate func(msg core.Message, state core.State) bool

// Options configures a Node.
type Options struct {
	// Bus to publish on. Defaults to the process-wide bus.
	Bus *Bus
	// Predicate gates publishing. Defaults to always true.
	Predicate Predicate
}

// Node is a chain stage publishing the last message and a shallow snapshot of
// the state to its event type. It never appends to the log.
type Node struct {
	eventType string
	bus       *Bus
	predicate Predicate
}

// NewNode creates a node publishing to eventType.
func NewNode(eventType string, optFns ...func(o *Options)) *Node {
	opts := Options{
		Predicate: func(core.Message, core.State) bool { return true },
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Bus == nil {
		opts.Bus = Default()
	}
	if opts.Predicate == nil {
		opts.Predicate = func(core.Message, core.State) bool { return true }
	}
	return &Node{eventType: eventType, bus: opts.Bus, predicate: opts.Predicate}
}

// Name implements core.Named.
func (n *Node) Name() string { return "event:" + n.eventType }

// EventType returns the published event type.
func (n *Node) EventType() string { return n.eventType }

// Invoke implements core.Stage.
func (n *Node) Invoke(_ context.Context, log *core.Log, state core.State) ([]core.Message, error) {
	last, ok := log.Last()
	if !ok {
		return nil, nil
	}
	if !n.predicate(last, state) {
		return nil, nil
	}
	n.bus.Publish(n.eventType, Payload{Message: last, State: state.Clone()})
	return nil, nil
}
