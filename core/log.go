package core

import (
	"encoding/json"
	"strings"
)

// Log is the ordered message history shared by every stage of one chain
// invocation. Stages treat it as append-only; the engine performs all appends
// except PopLast, which the tool dispatcher uses to consume a pending
// ToolCallRequest before its ToolResult is appended.
//
// A Log is not safe for concurrent mutation. A chain owns exactly one Log and
// drives it from a single goroutine.
type Log struct {
	messages []Message
}

// NewLog creates a log seeded with the given messages.
func NewLog(msgs ...Message) *Log {
	l := &Log{messages: make([]Message, 0, len(msgs))}
	l.Append(msgs...)
	return l
}

// Append adds messages at the tail, skipping nil entries.
func (l *Log) Append(msgs ...Message) {
	for _, m := range msgs {
		if m == nil {
			continue
		}
		l.messages = append(l.messages, m)
	}
}

// Len returns the number of messages.
func (l *Log) Len() int { return len(l.messages) }

// IsEmpty reports whether the log holds no messages.
func (l *Log) IsEmpty() bool { return len(l.messages) == 0 }

// Messages returns a copy of the messages in insertion order.
func (l *Log) Messages() []Message {
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// At returns the message at index i.
func (l *Log) At(i int) Message { return l.messages[i] }

// Last returns the most recent message, or false if the log is empty.
func (l *Log) Last() (Message, bool) {
	if len(l.messages) == 0 {
		return nil, false
	}
	return l.messages[len(l.messages)-1], true
}

// First returns the oldest message, or false if the log is empty.
func (l *Log) First() (Message, bool) {
	if len(l.messages) == 0 {
		return nil, false
	}
	return l.messages[0], true
}

// PopLast removes and returns the most recent message.
func (l *Log) PopLast() (Message, bool) {
	if len(l.messages) == 0 {
		return nil, false
	}
	last := l.messages[len(l.messages)-1]
	l.messages[len(l.messages)-1] = nil
	l.messages = l.messages[:len(l.messages)-1]
	return last, true
}

// Contains reports whether a message with the same (role, content) exists.
func (l *Log) Contains(m Message) bool {
	if m == nil {
		return false
	}
	key := m.Key()
	for _, existing := range l.messages {
		if existing.Key() == key {
			return true
		}
	}
	return false
}

// Clone returns an independent log with the same messages. Messages are
// immutable values so a shallow copy is sufficient.
func (l *Log) Clone() *Log { return NewLog(l.messages...) }

// QueryOptions filters Query results. Zero-valued fields match everything.
type QueryOptions struct {
	Role            Role
	ContentContains string
}

// Query returns a new log holding the messages that match every set criterion.
func (l *Log) Query(q QueryOptions) *Log {
	out := NewLog()
	for _, m := range l.messages {
		if q.Role != "" && m.Role() != q.Role {
			continue
		}
		if q.ContentContains != "" && !strings.Contains(m.Content(), q.ContentContains) {
			continue
		}
		out.messages = append(out.messages, m)
	}
	return out
}

// Union returns the set union of l and other keyed by (role, content). A nil
// other is treated as empty.
// Ordering is deterministic: l's messages first, then other's unseen ones.
// Duplicate keys collapse to their first occurrence.
func (l *Log) Union(other *Log) *Log {
	var rest []Message
	if other != nil {
		rest = other.messages
	}
	seen := make(map[Key]struct{}, len(l.messages)+len(rest))
	out := NewLog()
	for _, src := range [][]Message{l.messages, rest} {
		for _, m := range src {
			k := m.Key()
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out.messages = append(out.messages, m)
		}
	}
	return out
}

// Difference returns the messages of l whose key is absent from other,
// preserving l's order and collapsing duplicates. A nil other is empty.
func (l *Log) Difference(other *Log) *Log {
	exclude := other.keySet()
	out := NewLog()
	for _, m := range l.messages {
		k := m.Key()
		if _, skip := exclude[k]; skip {
			continue
		}
		exclude[k] = struct{}{}
		out.messages = append(out.messages, m)
	}
	return out
}

// SetEqual reports whether both logs contain the same set of keys. A nil log
// equals an empty one.
func (l *Log) SetEqual(other *Log) bool {
	a, b := l.keySet(), other.keySet()
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func (l *Log) keySet() map[Key]struct{} {
	if l == nil {
		return map[Key]struct{}{}
	}
	set := make(map[Key]struct{}, len(l.messages))
	for _, m := range l.messages {
		set[m.Key()] = struct{}{}
	}
	return set
}

// wireMessage is the JSON snapshot form of a message.
type wireMessage struct {
	Kind         Kind   `json:"kind"`
	Role         Role   `json:"role"`
	Content      string `json:"content,omitempty"`
	CallID       string `json:"call_id,omitempty"`
	FunctionName string `json:"function_name,omitempty"`
	Arguments    string `json:"arguments,omitempty"`
}

// MarshalJSON renders the log as an array of tagged messages.
func (l *Log) MarshalJSON() ([]byte, error) {
	out := make([]wireMessage, 0, len(l.messages))
	for _, m := range l.messages {
		w := wireMessage{Kind: m.Kind(), Role: m.Role()}
		switch v := m.(type) {
		case ToolCallRequest:
			w.CallID = v.CallID()
			w.FunctionName = v.FunctionName()
			w.Arguments = v.ArgumentsJSON()
		case ToolResult:
			w.CallID = v.CallID()
			w.Content = v.Content()
		default:
			w.Content = m.Content()
		}
		out = append(out, w)
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a log produced by MarshalJSON.
func (l *Log) UnmarshalJSON(data []byte) error {
	var in []wireMessage
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	msgs := make([]Message, 0, len(in))
	for _, w := range in {
		switch w.Kind {
		case KindToolCall:
			msgs = append(msgs, NewToolCallRequest(w.CallID, w.FunctionName, w.Arguments))
		case KindToolResult:
			msgs = append(msgs, NewToolResult(w.CallID, w.Content))
		default:
			m, err := NewMessage(w.Role, w.Content)
			if err != nil {
				return err
			}
			msgs = append(msgs, m)
		}
	}
	l.messages = msgs
	return nil
}
