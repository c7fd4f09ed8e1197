package model

import (
	"fmt"

	"github.com/hupe1980/promptchain/core"
)

// Turn is a provider-neutral conversation entry derived from the log.
// Adapters translate turns one to one into their SDK's message params.
type Turn struct {
	Role       core.Role
	Text       string
	ToolCalls  []ToolCall // assistant turns requesting calls
	ToolCallID string     // tool turns answering a call
}

// Turns converts log messages into provider turns.
//
// Pending call requests become assistant turns carrying the call. A result
// answers a call only when that call is still present earlier in the log;
// once the dispatcher has consumed the request the result is orphaned, and
// providers reject tool messages without a preceding call. Orphaned results
// are therefore rendered as user turns naming the call id.
func Turns(msgs []core.Message) []Turn {
	turns := make([]Turn, 0, len(msgs))
	pending := map[string]struct{}{}

	for _, m := range msgs {
		switch msg := m.(type) {
		case core.ToolCallRequest:
			pending[msg.CallID()] = struct{}{}
			turns = append(turns, Turn{
				Role: core.RoleAssistant,
				ToolCalls: []ToolCall{{
					ID:        msg.CallID(),
					Name:      msg.FunctionName(),
					Arguments: msg.ArgumentsJSON(),
				}},
			})
		case core.ToolResult:
			if _, ok := pending[msg.CallID()]; ok {
				delete(pending, msg.CallID())
				turns = append(turns, Turn{Role: core.RoleTool, Text: msg.Content(), ToolCallID: msg.CallID()})
				continue
			}
			turns = append(turns, Turn{
				Role: core.RoleUser,
				Text: fmt.Sprintf("Result of tool call %s: %s", msg.CallID(), msg.Content()),
			})
		default:
			role := m.Role()
			if role == core.RoleTool {
				role = core.RoleUser
			}
			turns = append(turns, Turn{Role: role, Text: m.Content()})
		}
	}
	return turns
}
