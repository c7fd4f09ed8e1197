// Package anthropic provides a model wrapper for the Anthropic Claude API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/hupe1980/promptchain/core"
	"github.com/hupe1980/promptchain/model"
	"github.com/hupe1980/promptchain/tool"
)

// Options configures the Anthropic model adapter (temperature, model id,
// max tokens, API key).
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

// NewModel creates a new Anthropic model using the official client
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions(optFns)

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)
	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new Anthropic model from an existing client
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	return &Model{client: client, opts: defaultOptions(optFns)}
}

func defaultOptions(optFns []func(o *Options)) Options {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return opts
}

// Generate implements model.Model. Streaming requests are served by a single
// final response.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		system, messages := buildMessages(req.Messages)
		params := anthropic.MessageNewParams{
			Model:       m.opts.Model,
			Messages:    messages,
			MaxTokens:   m.opts.MaxTokens,
			Temperature: anthropic.Float(m.opts.Temperature),
		}
		if len(system) > 0 {
			params.System = system
		}
		if len(req.Tools) > 0 {
			params.Tools = buildTools(req.Tools)
		}

		resp, err := m.client.Messages.New(ctx, params)
		if err != nil {
			errCh <- fmt.Errorf("anthropic api error: %w", err)
			return
		}

		var (
			text  string
			calls []model.ToolCall
		)
		for _, block := range resp.Content {
			switch block.Type {
			case "text":
				text += block.AsText().Text
			case "tool_use":
				tu := block.AsToolUse()
				args := "{}"
				if tu.Input != nil {
					if b, err := json.Marshal(tu.Input); err == nil {
						args = string(b)
					}
				}
				calls = append(calls, model.ToolCall{ID: tu.ID, Name: tu.Name, Arguments: args})
			}
		}

		finishReason := "stop"
		if resp.StopReason != "" {
			finishReason = string(resp.StopReason)
		}

		out <- model.Response{
			ID:           resp.ID,
			Text:         text,
			ToolCalls:    calls,
			FinishReason: finishReason,
			Usage: &model.TokenUsage{
				PromptTokens:     int(resp.Usage.InputTokens),
				CompletionTokens: int(resp.Usage.OutputTokens),
				TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
			},
		}
	}()

	return out, errCh
}

// buildMessages splits the log into system blocks and conversation messages.
// Tool results travel as tool_result blocks inside user messages.
func buildMessages(msgs []core.Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	var (
		system   []anthropic.TextBlockParam
		messages []anthropic.MessageParam
	)
	for _, t := range model.Turns(msgs) {
		switch t.Role {
		case core.RoleSystem:
			if t.Text != "" {
				system = append(system, anthropic.TextBlockParam{Text: t.Text})
			}
		case core.RoleTool:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewToolResultBlock(t.ToolCallID, t.Text, false)))
		case core.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if t.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(t.Text))
			}
			for _, c := range t.ToolCalls {
				var input any = map[string]any{}
				if c.Arguments != "" {
					if err := json.Unmarshal([]byte(c.Arguments), &input); err != nil {
						input = c.Arguments
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(c.ID, input, c.Name))
			}
			if len(blocks) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(blocks...))
			}
		default:
			if t.Text != "" {
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Text)))
			}
		}
	}
	return system, messages
}

// buildTools converts tool descriptors to Anthropic tool format
func buildTools(descs []tool.Descriptor) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, len(descs))
	for i, d := range descs {
		schema := d.Function.Parameters.Schema()
		inputSchema := anthropic.ToolInputSchemaParam{
			Type:       constant.Object("object"),
			Properties: schema["properties"],
			Required:   d.Function.Parameters.Required,
		}
		tools[i] = anthropic.ToolUnionParamOfTool(inputSchema, d.Name())
		if tools[i].OfTool != nil {
			tools[i].OfTool.Description = anthropic.String(d.Description())
		}
	}
	return tools
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          string(m.opts.Model),
		Provider:      "anthropic",
		SupportsTools: true,
	}
}
