package testutil

import (
	"fmt"

	"github.com/hupe1980/promptchain/core"
)

// LogBuilder provides a fluent helper for constructing message logs in tests.
// Example:
//
//	log := NewLogBuilder().System("be brief").User("hi").ToolCall("get_weather", `{"city_name":"Shenyang"}`).Build()
//
// Chain only the messages you need; call ids are generated deterministically.
type LogBuilder struct {
	msgs  []core.Message
	calls int
}

// NewLogBuilder creates an empty builder.
func NewLogBuilder() *LogBuilder { return &LogBuilder{} }

// System appends a system message (chainable).
func (b *LogBuilder) System(content string) *LogBuilder {
	b.msgs = append(b.msgs, core.System(content))
	return b
}

// User appends a user message (chainable).
func (b *LogBuilder) User(content string) *LogBuilder {
	b.msgs = append(b.msgs, core.User(content))
	return b
}

// Assistant appends an assistant message (chainable).
func (b *LogBuilder) Assistant(content string) *LogBuilder {
	b.msgs = append(b.msgs, core.Assistant(content))
	return b
}

// ToolCall appends a call request with the next sequential id "call_<n>" (chainable).
func (b *LogBuilder) ToolCall(name, args string) *LogBuilder {
	b.calls++
	b.msgs = append(b.msgs, core.NewToolCallRequest(fmt.Sprintf("call_%d", b.calls), name, args))
	return b
}

// ToolResult appends a result answering the most recent ToolCall (chainable).
func (b *LogBuilder) ToolResult(content string) *LogBuilder {
	b.msgs = append(b.msgs, core.NewToolResult(b.LastCallID(), content))
	return b
}

// Add appends arbitrary messages (chainable).
func (b *LogBuilder) Add(msgs ...core.Message) *LogBuilder {
	b.msgs = append(b.msgs, msgs...)
	return b
}

// LastCallID returns the id of the most recent ToolCall, or "" if none was added.
func (b *LogBuilder) LastCallID() string {
	if b.calls == 0 {
		return ""
	}
	return fmt.Sprintf("call_%d", b.calls)
}

// Messages returns a copy of the collected messages.
func (b *LogBuilder) Messages() []core.Message {
	out := make([]core.Message, len(b.msgs))
	copy(out, b.msgs)
	return out
}

// Build constructs a fresh core.Log.
func (b *LogBuilder) Build() *core.Log { return core.NewLog(b.msgs...) }

// Contents returns the content of every message in log order. Handy for
// asserting pipeline output.
func Contents(log *core.Log) []string {
	msgs := log.Messages()
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content()
	}
	return out
}
