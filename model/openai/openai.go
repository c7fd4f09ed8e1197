// Package openai provides an implementation of model.Model using the OpenAI
// Chat Completions API (including streaming + function/tool calling). It
// adapts promptchain's log-based Request/Response structures into the SDK's
// message format and back.
package openai

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/promptchain/core"
	"github.com/hupe1980/promptchain/model"
	"github.com/hupe1980/promptchain/tool"
)

// aggCall aggregates partial tool call streaming deltas (id, name, arguments)
// allowing reconstruction of complete calls when the finish reason is emitted.
type aggCall struct{ id, name, args string }

// Options configure the OpenAI model adapter.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	APIKey              string
	BaseURL             string
}

// Model wraps the OpenAI Chat Completions API behind the generic model.Model interface.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates a new OpenAI model using the official client. APIKey and
// BaseURL override the OPENAI_API_KEY / OPENAI_BASE_URL environment defaults.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions(optFns)

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := openai.NewClient(clientOpts...)
	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new OpenAI model from an existing client
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	return &Model{client: client, opts: defaultOptions(optFns)}
}

func defaultOptions(optFns []func(o *Options)) Options {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return opts
}

// Generate implements unified streaming / non-streaming generation.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		params := m.buildParams(req, buildMessages(req.Messages))
		if req.Stream {
			m.handleStreaming(ctx, params, out, errCh)
			return
		}
		m.handleNonStreaming(ctx, params, out, errCh)
	}()
	return out, errCh
}

// buildMessages converts the log into OpenAI chat messages.
func buildMessages(msgs []core.Message) []openai.ChatCompletionMessageParamUnion {
	turns := model.Turns(msgs)
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case core.RoleSystem:
			messages = append(messages, openai.SystemMessage(t.Text))
		case core.RoleTool:
			messages = append(messages, openai.ToolMessage(t.Text, t.ToolCallID))
		case core.RoleAssistant:
			if len(t.ToolCalls) == 0 {
				messages = append(messages, openai.AssistantMessage(t.Text))
				continue
			}
			calls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(t.ToolCalls))
			for _, c := range t.ToolCalls {
				calls = append(calls, openai.ChatCompletionMessageToolCallParam{
					ID:   c.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      c.Name,
						Arguments: c.Arguments,
					},
				})
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role:      "assistant",
					ToolCalls: calls,
				},
			})
		default:
			messages = append(messages, openai.UserMessage(t.Text))
		}
	}
	return messages
}

// buildParams assembles the OpenAI request parameters including tool definitions.
func (m *Model) buildParams(
	req model.Request,
	messages []openai.ChatCompletionMessageParamUnion,
) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               m.opts.Model,
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
	}
	if len(req.Tools) == 0 {
		return params
	}
	params.Tools = buildTools(req.Tools)
	return params
}

func buildTools(descs []tool.Descriptor) []openai.ChatCompletionToolParam {
	tools := make([]openai.ChatCompletionToolParam, len(descs))
	for i, d := range descs {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        d.Name(),
				Description: openai.String(d.Description()),
				Parameters:  openai.FunctionParameters(d.Function.Parameters.Schema()),
			},
		}
	}
	return tools
}

// handleStreaming processes streaming responses and forwards partial / final events.
func (m *Model) handleStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	stream := m.client.Chat.Completions.NewStreaming(ctx, params)
	var textBuilder strings.Builder
	toolAgg := map[int64]*aggCall{}
	for stream.Next() {
		ck := stream.Current()
		for _, ch := range ck.Choices {
			if ch.Delta.Content != "" {
				textBuilder.WriteString(ch.Delta.Content)
				out <- model.Response{ID: ck.ID, Partial: true, Text: ch.Delta.Content}
			}
			aggregateToolCalls(ch, toolAgg)
			if ch.FinishReason != "" {
				out <- model.Response{
					ID:           ck.ID,
					Text:         textBuilder.String(),
					ToolCalls:    flushToolCalls(toolAgg),
					FinishReason: ch.FinishReason,
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		errCh <- fmt.Errorf("openai streaming error: %w", err)
	}
}

func aggregateToolCalls(ch openai.ChatCompletionChunkChoice, agg map[int64]*aggCall) {
	for _, tc := range ch.Delta.ToolCalls {
		ac, ok := agg[tc.Index]
		if !ok {
			ac = &aggCall{}
			agg[tc.Index] = ac
		}
		if tc.ID != "" {
			ac.id = tc.ID
		}
		if tc.Function.Name != "" {
			ac.name = tc.Function.Name
		}
		ac.args += tc.Function.Arguments
	}
}

// flushToolCalls returns the aggregated calls ordered by stream index.
func flushToolCalls(agg map[int64]*aggCall) []model.ToolCall {
	if len(agg) == 0 {
		return nil
	}
	indexes := make([]int64, 0, len(agg))
	for i := range agg {
		indexes = append(indexes, i)
	}
	sort.Slice(indexes, func(a, b int) bool { return indexes[a] < indexes[b] })

	calls := make([]model.ToolCall, 0, len(agg))
	for _, i := range indexes {
		ac := agg[i]
		calls = append(calls, model.ToolCall{ID: ac.id, Name: ac.name, Arguments: ac.args})
	}
	return calls
}

// handleNonStreaming processes a normal (non-streaming) completion.
func (m *Model) handleNonStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		errCh <- fmt.Errorf("openai api error: %w", err)
		return
	}
	if len(resp.Choices) == 0 {
		errCh <- fmt.Errorf("no choices returned")
		return
	}
	ch0 := resp.Choices[0]
	calls := make([]model.ToolCall, 0, len(ch0.Message.ToolCalls))
	for _, tc := range ch0.Message.ToolCalls {
		calls = append(calls, model.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
	}
	out <- model.Response{
		ID:           resp.ID,
		Text:         ch0.Message.Content,
		ToolCalls:    calls,
		FinishReason: ch0.FinishReason,
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
}

// Info returns metadata describing this OpenAI model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      "openai",
		SupportsTools: true,
	}
}
