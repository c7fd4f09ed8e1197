package core

import (
	"fmt"
)

// Role identifies the author of a message in the conversation log.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the four recognized roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	default:
		return false
	}
}

// ParseRole converts a raw string into a Role, rejecting unknown values.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", &ConstructionError{Input: s, Err: ErrInvalidRole}
	}
	return r, nil
}

// Kind is the explicit discriminator of the Message variants.
type Kind string

const (
	KindPlain      Kind = "plain"
	KindToolCall   Kind = "tool_call"
	KindToolResult Kind = "tool_result"
)

// Key is the equality identity of a message. Two messages with the same Key
// are considered equal by the log algebra (Union, Difference, Contains).
type Key struct {
	Role    Role
	Content string
}

// Message is a closed set of immutable, role-tagged conversation entries.
// Concrete variants are PlainMessage, ToolCallRequest and ToolResult; they
// implement the unexported isMessage marker so no other type can join the set.
// Consumers dispatch with a type switch on the concrete variant or on Kind.
type Message interface {
	Role() Role
	Content() string
	Kind() Kind
	Key() Key
	isMessage()
}

// PlainMessage is ordinary system/user/assistant text.
type PlainMessage struct {
	role    Role
	content string
}

// NewMessage builds a PlainMessage, validating the role.
func NewMessage(role Role, content string) (PlainMessage, error) {
	if !role.Valid() {
		return PlainMessage{}, &ConstructionError{Input: string(role), Err: ErrInvalidRole}
	}
	return PlainMessage{role: role, content: content}, nil
}

// System returns a system-role message.
func System(content string) PlainMessage { return PlainMessage{role: RoleSystem, content: content} }

// User returns a user-role message.
func User(content string) PlainMessage { return PlainMessage{role: RoleUser, content: content} }

// Assistant returns an assistant-role message.
func Assistant(content string) PlainMessage {
	return PlainMessage{role: RoleAssistant, content: content}
}

func (m PlainMessage) Role() Role      { return m.role }
func (m PlainMessage) Content() string { return m.content }
func (m PlainMessage) Kind() Kind      { return KindPlain }
func (m PlainMessage) Key() Key        { return Key{Role: m.role, Content: m.content} }
func (m PlainMessage) String() string  { return fmt.Sprintf("%s: %s", m.role, m.content) }
func (PlainMessage) isMessage()        {}

// ToolCallRequest is a model turn asking for a function invocation. The
// arguments are kept as the raw JSON text produced by the model; parsing is
// deferred to the dispatcher so malformed payloads can be reported as data.
type ToolCallRequest struct {
	callID       string
	functionName string
	arguments    string
}

// NewToolCallRequest creates a tool call request.
func NewToolCallRequest(callID, functionName, argumentsJSON string) ToolCallRequest {
	return ToolCallRequest{callID: callID, functionName: functionName, arguments: argumentsJSON}
}

func (m ToolCallRequest) Role() Role { return RoleTool }

// Content renders the call as name(arguments) so distinct calls stay distinct
// under (role, content) equality.
func (m ToolCallRequest) Content() string {
	return fmt.Sprintf("%s(%s)", m.functionName, m.arguments)
}

func (m ToolCallRequest) Kind() Kind            { return KindToolCall }
func (m ToolCallRequest) Key() Key              { return Key{Role: RoleTool, Content: m.Content()} }
func (m ToolCallRequest) CallID() string        { return m.callID }
func (m ToolCallRequest) FunctionName() string  { return m.functionName }
func (m ToolCallRequest) ArgumentsJSON() string { return m.arguments }
func (m ToolCallRequest) String() string {
	return fmt.Sprintf("tool call [%s]: %s", m.callID, m.Content())
}
func (ToolCallRequest) isMessage() {}

// ToolResult carries the outcome of a dispatched tool call.
type ToolResult struct {
	callID  string
	content string
}

// NewToolResult creates a tool result bound to the originating call id.
func NewToolResult(callID, content string) ToolResult {
	return ToolResult{callID: callID, content: content}
}

func (m ToolResult) Role() Role      { return RoleTool }
func (m ToolResult) Content() string { return m.content }
func (m ToolResult) Kind() Kind      { return KindToolResult }
func (m ToolResult) Key() Key        { return Key{Role: RoleTool, Content: m.content} }
func (m ToolResult) CallID() string  { return m.callID }
func (m ToolResult) String() string {
	return fmt.Sprintf("tool result [%s]: %s", m.callID, m.content)
}
func (ToolResult) isMessage() {}

// Equal reports whether two messages share the same (role, content) identity.
func Equal(a, b Message) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Key() == b.Key()
}

// ParseMessage normalizes heterogeneous input into a Message.
//
// Accepted shapes:
//
//	string                        -> user message
//	map[string]any / map[string]string with "role" and "content"
//	                              -> validated role; a missing role with a
//	                                 "content" (or "text") value defaults to user
//	[2]string, []string, []any    -> (role, content) pair, exactly two elements
//	Message                       -> returned unchanged
//
// Anything else yields a *ConstructionError.
func ParseMessage(input any) (Message, error) {
	switch v := input.(type) {
	case Message:
		return v, nil
	case string:
		return User(v), nil
	case map[string]string:
		m := make(map[string]any, len(v))
		for k, s := range v {
			m[k] = s
		}
		return parseMap(m)
	case map[string]any:
		return parseMap(v)
	case [2]string:
		return parsePair(v[0], v[1])
	case []string:
		if len(v) != 2 {
			return nil, &ConstructionError{Input: v, Err: ErrInvalidArity}
		}
		return parsePair(v[0], v[1])
	case []any:
		if len(v) != 2 {
			return nil, &ConstructionError{Input: v, Err: ErrInvalidArity}
		}
		role, ok := v[0].(string)
		if !ok {
			return nil, &ConstructionError{Input: v, Err: ErrInvalidRole}
		}
		return parsePair(role, fmt.Sprint(v[1]))
	default:
		return nil, &ConstructionError{Input: input, Err: ErrUnsupportedInput}
	}
}

// MustParseMessage is like ParseMessage but panics on error. Intended for
// static configuration where a malformed message is a programming error.
func MustParseMessage(input any) Message {
	m, err := ParseMessage(input)
	if err != nil {
		panic(err)
	}
	return m
}

func parsePair(role, content string) (Message, error) {
	r, err := ParseRole(role)
	if err != nil {
		return nil, err
	}
	return PlainMessage{role: r, content: content}, nil
}

func parseMap(m map[string]any) (Message, error) {
	content, hasContent := m["content"]
	if !hasContent {
		content, hasContent = m["text"]
	}
	if !hasContent || content == nil {
		return nil, &ConstructionError{Input: m, Err: ErrMissingContent}
	}
	text := fmt.Sprint(content)

	rawRole, hasRole := m["role"]
	if !hasRole {
		return User(text), nil
	}
	role, ok := rawRole.(string)
	if !ok {
		return nil, &ConstructionError{Input: m, Err: ErrInvalidRole}
	}
	return parsePair(role, text)
}
