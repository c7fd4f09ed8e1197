package model

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/promptchain/core"
	"github.com/hupe1980/promptchain/logging"
	"github.com/hupe1980/promptchain/tool"
)

// ErrNoResponse is returned when a model closes its stream without a final response.
var ErrNoResponse = errors.New("model returned no final response")

// StageOptions configures a model stage.
type StageOptions struct {
	// Tools advertised to the model. Nil disables function calling.
	Tools *tool.Registry
	// OutputKey, when set, stores the produced message in the chain state.
	OutputKey string
	// Stream requests incremental output; partial chunks are passed to OnPartial.
	Stream    bool
	OnPartial func(Response)
	Logger    logging.Logger
}

// Stage is the chain stage calling a Model with the current log. It returns
// exactly one message: an assistant PlainMessage for text replies or a
// ToolCallRequest when the model asks for a tool.
type Stage struct {
	model Model
	opts  StageOptions
}

// NewStage wraps m as a chain stage.
func NewStage(m Model, optFns ...func(o *StageOptions)) *Stage {
	opts := StageOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Stage{model: m, opts: opts}
}

// Name implements core.Named.
func (s *Stage) Name() string { return "model:" + s.model.Info().Name }

// Invoke implements core.Stage.
func (s *Stage) Invoke(ctx context.Context, log *core.Log, state core.State) ([]core.Message, error) {
	req := Request{Messages: log.Messages(), Stream: s.opts.Stream}
	if s.opts.Tools != nil {
		req.Tools = s.opts.Tools.Descriptors()
	}

	info := s.model.Info()
	start := time.Now()
	s.opts.Logger.Debug("model.generate.start", "model", info.Name, "provider", info.Provider, "messages", len(req.Messages), "tools", len(req.Tools))

	final, err := s.drain(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("model %s failed: %w", info.Name, err)
	}

	msg := s.toMessage(final)
	if s.opts.OutputKey != "" {
		state[s.opts.OutputKey] = msg
	}

	s.opts.Logger.Debug("model.generate.complete",
		"model", info.Name,
		"kind", msg.Kind(),
		"finish_reason", final.FinishReason,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return []core.Message{msg}, nil
}

func (s *Stage) drain(ctx context.Context, req Request) (Response, error) {
	respCh, errCh := s.model.Generate(ctx, req)

	var (
		final    Response
		hasFinal bool
	)
	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case r, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if r.Partial {
				if s.opts.OnPartial != nil {
					s.opts.OnPartial(r)
				}
				continue
			}
			final, hasFinal = r, true
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return Response{}, err
			}
		}
	}

	if !hasFinal {
		return Response{}, ErrNoResponse
	}
	return final, nil
}

func (s *Stage) toMessage(r Response) core.Message {
	if len(r.ToolCalls) == 0 {
		return core.Assistant(r.Text)
	}
	if len(r.ToolCalls) > 1 {
		s.opts.Logger.Warn("model.tool_calls.truncated", "requested", len(r.ToolCalls), "dispatched", 1)
	}
	call := r.ToolCalls[0]
	if call.ID == "" {
		call.ID = core.NewID()
	}
	return core.NewToolCallRequest(call.ID, call.Name, call.Arguments)
}
