// Package promptchain composes prompt templates, model calls, tool dispatch,
// output parsing and event publication into sequential pipelines that share
// one message log and one mutable state.
//
// Most applications interact with this package by:
//  1. Creating a processor via New (seeded with a system prompt)
//  2. Appending stages (prompt.Human, model.NewStage, tool.NewDispatcher, parser.New, event.NewNode)
//  3. Running the pipeline with Invoke and reading the returned state
//
// The façade delegates orchestration to chain.Processor; callers needing a
// processor over an existing log use chain.New directly.
package promptchain

import (
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/promptchain/chain"
	"github.com/hupe1980/promptchain/core"
	"github.com/hupe1980/promptchain/internal/util"
	"github.com/hupe1980/promptchain/logging"
)

// Options configures a processor created by New.
type Options struct {
	// Vars are rendered into the system prompt ({{.name}} placeholders).
	Vars map[string]any

	// History is appended after the system prompt, e.g. earlier turns of a
	// conversation.
	History []core.Message

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger

	// TracerProvider for chain spans (defaults to the global provider)
	TracerProvider trace.TracerProvider
}

// New creates a processor whose log starts with the rendered system prompt.
// An empty prompt yields a processor over an empty (or history-only) log.
func New(systemPrompt string, optFns ...func(o *Options)) (*chain.Processor, error) {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	log := core.NewLog()

	if systemPrompt != "" {
		content, err := util.RenderTemplate(systemPrompt, opts.Vars)
		if err != nil {
			return nil, &core.ConstructionError{Input: systemPrompt, Err: err}
		}
		log.Append(core.System(content))
	}

	log.Append(opts.History...)

	return chain.New(log, func(o *chain.Options) {
		o.Logger = opts.Logger
		o.TracerProvider = opts.TracerProvider
	}), nil
}

// MustNew is like New but panics on error.
func MustNew(systemPrompt string, optFns ...func(o *Options)) *chain.Processor {
	p, err := New(systemPrompt, optFns...)
	if err != nil {
		panic(err)
	}
	return p
}
