package model

import (
	"context"

	"github.com/hupe1980/promptchain/core"
	"github.com/hupe1980/promptchain/tool"
)

// ToolCall represents a function call request surfaced by a model provider.
// Unified across vendors so downstream logic does not need per-provider branching.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON object text
}

// Request captures the normalized model input: the chain's message log and
// the descriptors of the tools the model may call.
type Request struct {
	Messages []core.Message   `json:"messages"`
	Tools    []tool.Descriptor `json:"tools,omitempty"`
	Stream   bool             `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a streaming model. The
// final chunk carries the complete text and every requested tool call.
type Response struct {
	ID           string      `json:"id"`
	Partial      bool        `json:"partial"` // Indicates if this is a partial response
	Text         string      `json:"text"`
	ToolCalls    []ToolCall  `json:"tool_calls,omitempty"`
	FinishReason string      `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "compat", "mock"
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by the model stage to drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}
