package model

import (
	"context"
	"fmt"
	"sync"
)

// MockModel is a lightweight in-memory Model useful for tests & examples.
// Scripted responses are returned in order; when the script is exhausted the
// model echoes the last message.
type MockModel struct {
	mu       sync.Mutex
	info     Info
	script   []Response
	requests []Request
}

// NewMockModel constructs a MockModel with basic tool support enabled.
func NewMockModel(name string, script ...Response) *MockModel {
	return &MockModel{
		info:   Info{Name: name, Provider: "mock", SupportsTools: true},
		script: script,
	}
}

// AddText appends a text reply to the script.
func (m *MockModel) AddText(text string) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, Response{Text: text, FinishReason: "stop"})
	return m
}

// AddToolCall appends a tool call reply to the script.
func (m *MockModel) AddToolCall(id, name, arguments string) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, Response{
		ToolCalls:    []ToolCall{{ID: id, Name: name, Arguments: arguments}},
		FinishReason: "tool_calls",
	})
	return m
}

// Requests returns the requests received so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Generate implements Model; emits optional streaming char chunks then final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.requests = append(m.requests, req)
	var next Response
	scripted := len(m.script) > 0
	if scripted {
		next = m.script[0]
		m.script = m.script[1:]
	}
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)
		if len(req.Messages) == 0 {
			errCh <- fmt.Errorf("no messages provided")
			return
		}
		if !scripted {
			last := req.Messages[len(req.Messages)-1]
			next = Response{Text: fmt.Sprintf("Mock response to: %s", last.Content()), FinishReason: "stop"}
		}
		if req.Stream {
			for _, r := range next.Text {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Text: string(r)}:
				}
			}
		}
		next.Partial = false
		respCh <- next
	}()
	return respCh, errCh
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
