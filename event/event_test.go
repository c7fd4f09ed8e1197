package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/promptchain/core"
	"github.com/hupe1980/promptchain/logging"
)

type captureLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *captureLogger) Debug(string, ...any) {}
func (l *captureLogger) Info(string, ...any)  {}
func (l *captureLogger) Warn(string, ...any)  {}
func (l *captureLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func TestBus_FailingSubscriberIsIsolated(t *testing.T) {
	logger := &captureLogger{}
	bus := NewBus(func(o *BusOptions) { o.Logger = logger })

	var order []string
	bus.Subscribe("x", func(Payload) error {
		order = append(order, "first")
		return errors.New("boom")
	})
	bus.Subscribe("x", func(Payload) error {
		order = append(order, "second")
		panic("kaboom")
	})
	bus.Subscribe("x", func(p Payload) error {
		order = append(order, "third:"+p.Message.Content())
		return nil
	})

	delivered := bus.Publish("x", Payload{Message: core.User("hi")})

	assert.Equal(t, 1, delivered)
	assert.Equal(t, []string{"first", "second", "third:hi"}, order)
	assert.Equal(t, []string{"event.subscriber.failed", "event.subscriber.failed"}, logger.errors)
}

func TestBus_SetLogger(t *testing.T) {
	bus := NewBus()
	bus.Subscribe("x", func(Payload) error { return errors.New("boom") })

	logger := &captureLogger{}
	bus.SetLogger(logger)
	assert.Equal(t, 0, bus.Publish("x", Payload{Message: core.User("hi")}))
	assert.Equal(t, []string{"event.subscriber.failed"}, logger.errors)

	bus.SetLogger(nil)
	assert.NotPanics(t, func() { bus.Publish("x", Payload{}) })
}

func TestBus_TypeIsolation(t *testing.T) {
	bus := NewBus()
	gotY := false
	bus.Subscribe("y", func(Payload) error {
		gotY = true
		return nil
	})

	assert.Equal(t, 0, bus.Publish("x", Payload{}))
	assert.False(t, gotY)
	assert.Equal(t, 0, bus.Publish("nobody", Payload{}))
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	calls := 0
	cancel := bus.Subscribe("x", func(Payload) error {
		calls++
		return nil
	})
	assert.Equal(t, 1, bus.Subscribers("x"))

	bus.Publish("x", Payload{})
	cancel()
	cancel()
	bus.Publish("x", Payload{})

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, bus.Subscribers("x"))
}

func TestBus_ResubscribeDuringPublish(t *testing.T) {
	bus := NewBus()
	bus.Subscribe("x", func(Payload) error {
		bus.Subscribe("x", func(Payload) error { return nil })
		return nil
	})
	assert.Equal(t, 1, bus.Publish("x", Payload{}))
	assert.Equal(t, 2, bus.Subscribers("x"))
}

func TestBus_Concurrent(t *testing.T) {
	bus := NewBus()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			bus.Subscribe("x", func(Payload) error { return nil })
		}()
		go func() {
			defer wg.Done()
			bus.Publish("x", Payload{})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, bus.Subscribers("x"))
}

func TestBus_NilSubscriberPanics(t *testing.T) {
	assert.Panics(t, func() { NewBus().Subscribe("x", nil) })
}

func TestDefaultBus(t *testing.T) {
	t.Cleanup(Reset)

	var got Payload
	Subscribe("default", func(p Payload) error {
		got = p
		return nil
	})
	assert.Equal(t, 1, Publish("default", Payload{Message: core.Assistant("done")}))
	assert.Equal(t, "done", got.Message.Content())

	Reset()
	assert.Equal(t, 0, Default().Subscribers("default"))
}

func TestDefaultBus_LogsFailures(t *testing.T) {
	bus := Default()
	bus.mu.RLock()
	logger := bus.logger
	bus.mu.RUnlock()

	_, isNoOp := logger.(logging.NoOpLogger)
	assert.False(t, isNoOp)
	assert.IsType(t, &logging.SlogAdapter{}, logger)
}

func TestNode(t *testing.T) {
	bus := NewBus()
	var payloads []Payload
	bus.Subscribe("finished", func(p Payload) error {
		payloads = append(payloads, p)
		return nil
	})

	node := NewNode("finished", func(o *Options) { o.Bus = bus })
	assert.Equal(t, "event:finished", node.Name())

	log := core.NewLog(core.User("hi"), core.Assistant("hello"))
	state := core.State{"k": "v"}

	out, err := node.Invoke(context.Background(), log, state)
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Equal(t, 2, log.Len())

	require.Len(t, payloads, 1)
	assert.Equal(t, "hello", payloads[0].Message.Content())
	assert.Equal(t, core.State{"k": "v"}, payloads[0].State)

	// the payload holds a snapshot
	state["k"] = "changed"
	assert.Equal(t, "v", payloads[0].State["k"])
}

func TestNode_Predicate(t *testing.T) {
	bus := NewBus()
	calls := 0
	bus.Subscribe("tool_done", func(Payload) error {
		calls++
		return nil
	})

	node := NewNode("tool_done", func(o *Options) {
		o.Bus = bus
		o.Predicate = func(msg core.Message, _ core.State) bool {
			return msg.Kind() == core.KindToolResult
		}
	})

	_, err := node.Invoke(context.Background(), core.NewLog(core.User("x")), core.NewState())
	require.NoError(t, err)
	assert.Equal(t, 0, calls)

	_, err = node.Invoke(context.Background(), core.NewLog(core.NewToolResult("c1", "27.5")), core.NewState())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	_, err = node.Invoke(context.Background(), core.NewLog(), core.NewState())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestNode_DefaultBus(t *testing.T) {
	t.Cleanup(Reset)

	calls := 0
	Subscribe("global", func(Payload) error {
		calls++
		return nil
	})

	_, err := NewNode("global").Invoke(context.Background(), core.NewLog(core.Assistant("a")), core.NewState())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
