// Package compat implements model.Model for OpenAI-compatible chat endpoints
// (DeepSeek, Ollama, vLLM and similar) on top of github.com/sashabaranov/go-openai.
// The endpoint is selected with Options.BaseURL or a YAML config file.
package compat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/promptchain/core"
	"github.com/hupe1980/promptchain/model"
	"github.com/hupe1980/promptchain/tool"
)

// Well-known endpoints.
const (
	DeepSeekBaseURL = "https://api.deepseek.com"
	OllamaBaseURL   = "http://localhost:11434/v1"
)

// Options configures the adapter.
type Options struct {
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// Model wraps an OpenAI-compatible chat completion endpoint.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates a model for the configured endpoint. The default targets
// deepseek-chat at DeepSeekBaseURL.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:       "deepseek-chat",
		BaseURL:     DeepSeekBaseURL,
		Temperature: 0.7,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	return &Model{client: openai.NewClientWithConfig(cfg), opts: opts}
}

// NewModelFromClient creates a model from an existing client.
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := Options{Model: "deepseek-chat", Temperature: 0.7}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// LoadOptions reads adapter options from a YAML file. Environment variables
// referenced as ${VAR} are expanded before parsing, so keys need not be
// stored in the file.
//
//	model: deepseek-chat
//	base_url: https://api.deepseek.com
//	api_key: ${DEEPSEEK_API_KEY}
func LoadOptions(path string) (Options, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var opts Options
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &opts); err != nil {
		return Options{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return opts, nil
}

// WithOptions copies loaded options, keeping defaults for empty fields.
func WithOptions(loaded Options) func(o *Options) {
	return func(o *Options) {
		if loaded.Model != "" {
			o.Model = loaded.Model
		}
		if loaded.APIKey != "" {
			o.APIKey = loaded.APIKey
		}
		if loaded.BaseURL != "" {
			o.BaseURL = loaded.BaseURL
		}
		if loaded.Temperature != 0 {
			o.Temperature = loaded.Temperature
		}
		if loaded.MaxTokens != 0 {
			o.MaxTokens = loaded.MaxTokens
		}
	}
}

// Generate implements model.Model.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)

		creq := openai.ChatCompletionRequest{
			Model:       m.opts.Model,
			Messages:    buildMessages(req.Messages),
			Temperature: m.opts.Temperature,
			MaxTokens:   m.opts.MaxTokens,
		}
		if len(req.Tools) > 0 {
			creq.Tools = buildTools(req.Tools)
			creq.ToolChoice = "auto"
		}

		if req.Stream {
			m.handleStreaming(ctx, creq, out, errCh)
			return
		}

		resp, err := m.client.CreateChatCompletion(ctx, creq)
		if err != nil {
			errCh <- fmt.Errorf("compat api error: %w", err)
			return
		}
		if len(resp.Choices) == 0 {
			errCh <- fmt.Errorf("no choices in response")
			return
		}
		choice := resp.Choices[0]
		calls := make([]model.ToolCall, 0, len(choice.Message.ToolCalls))
		for _, tc := range choice.Message.ToolCalls {
			calls = append(calls, model.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
		}
		out <- model.Response{
			ID:           resp.ID,
			Text:         choice.Message.Content,
			ToolCalls:    calls,
			FinishReason: string(choice.FinishReason),
			Usage: &model.TokenUsage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			},
		}
	}()
	return out, errCh
}

type aggCall struct{ id, name, args string }

func (m *Model) handleStreaming(ctx context.Context, creq openai.ChatCompletionRequest, out chan<- model.Response, errCh chan<- error) {
	creq.Stream = true
	stream, err := m.client.CreateChatCompletionStream(ctx, creq)
	if err != nil {
		errCh <- fmt.Errorf("compat stream error: %w", err)
		return
	}
	defer stream.Close()

	var (
		text   strings.Builder
		agg    = map[int]*aggCall{}
		id     string
		finish string
	)
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			errCh <- fmt.Errorf("compat stream error: %w", err)
			return
		}
		id = chunk.ID
		if len(chunk.Choices) == 0 {
			continue
		}
		ch := chunk.Choices[0]
		if ch.Delta.Content != "" {
			text.WriteString(ch.Delta.Content)
			out <- model.Response{ID: id, Partial: true, Text: ch.Delta.Content}
		}
		for i, tc := range ch.Delta.ToolCalls {
			idx := i
			if tc.Index != nil {
				idx = *tc.Index
			}
			ac, ok := agg[idx]
			if !ok {
				ac = &aggCall{}
				agg[idx] = ac
			}
			if tc.ID != "" {
				ac.id = tc.ID
			}
			if tc.Function.Name != "" {
				ac.name = tc.Function.Name
			}
			ac.args += tc.Function.Arguments
		}
		if ch.FinishReason != "" {
			finish = string(ch.FinishReason)
		}
	}

	indexes := make([]int, 0, len(agg))
	for i := range agg {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	var calls []model.ToolCall
	for _, i := range indexes {
		calls = append(calls, model.ToolCall{ID: agg[i].id, Name: agg[i].name, Arguments: agg[i].args})
	}

	out <- model.Response{ID: id, Text: text.String(), ToolCalls: calls, FinishReason: finish}
}

func buildMessages(msgs []core.Message) []openai.ChatCompletionMessage {
	turns := model.Turns(msgs)
	out := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, t := range turns {
		msg := openai.ChatCompletionMessage{Role: string(t.Role), Content: t.Text, ToolCallID: t.ToolCallID}
		for _, c := range t.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   c.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      c.Name,
					Arguments: c.Arguments,
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func buildTools(descs []tool.Descriptor) []openai.Tool {
	tools := make([]openai.Tool, len(descs))
	for i, d := range descs {
		tools[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Name(),
				Description: d.Description(),
				Parameters:  d.Function.Parameters.Schema(),
			},
		}
	}
	return tools
}

// Info returns metadata describing this model implementation.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.opts.Model, Provider: "compat", SupportsTools: true}
}
