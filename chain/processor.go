package chain

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/promptchain/core"
	"github.com/hupe1980/promptchain/logging"
)

const tracerName = "github.com/hupe1980/promptchain/chain"

// Options configures a Processor.
type Options struct {
	// Logger receives stage lifecycle events. Defaults to logging.NoOpLogger.
	Logger logging.Logger
	// TracerProvider creates the chain.invoke and chain.stage spans. When nil
	// the global provider registered with otel is used.
	TracerProvider trace.TracerProvider
}

// Processor runs an ordered list of stages against one message log and one
// state map.
//
// Execution model:
//  1. The initial state passed to Invoke is merged into the processor state,
//     overwriting existing keys.
//  2. Stages run strictly in append order. Messages returned by a stage are
//     appended to the log, in order, before the next stage starts.
//  3. The first stage error aborts the run. Messages produced by earlier
//     stages and state mutations stay in place.
//
// A Processor is single-writer: it must not be invoked concurrently, and the
// log and state must not be modified from other goroutines while a run is in
// progress. Invoking it again continues on the accumulated log and state.
type Processor struct {
	id     string
	log    *core.Log
	state  core.State
	stages []core.Stage
	logger logging.Logger
	tracer trace.Tracer
}

// New creates a processor over initial. A nil initial log starts empty. The
// log is used by reference, so callers observe the messages appended by the
// stages.
func New(initial *core.Log, optFns ...func(o *Options)) *Processor {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	var tracer trace.Tracer
	if opts.TracerProvider != nil {
		tracer = opts.TracerProvider.Tracer(tracerName)
	} else {
		tracer = otel.Tracer(tracerName)
	}

	if initial == nil {
		initial = core.NewLog()
	}

	return &Processor{
		id:     core.NewID(),
		log:    initial,
		state:  core.NewState(),
		logger: opts.Logger,
		tracer: tracer,
	}
}

// Append adds a stage to the end of the pipeline and returns the processor
// for chaining. A nil stage is a programming error and panics with a
// *core.ConstructionError.
func (p *Processor) Append(stage core.Stage) *Processor {
	if isNilStage(stage) {
		panic(&core.ConstructionError{Input: stage, Err: core.ErrInvalidStage})
	}
	p.stages = append(p.stages, stage)
	return p
}

// isNilStage reports a nil interface or a nil value behind it, such as a
// (*tool.Dispatcher)(nil).
func isNilStage(stage core.Stage) bool {
	if stage == nil {
		return true
	}
	v := reflect.ValueOf(stage)
	switch v.Kind() {
	case reflect.Pointer, reflect.Func, reflect.Map, reflect.Slice, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// Then is an alias for Append that reads naturally in fluent pipelines.
func (p *Processor) Then(stage core.Stage) *Processor { return p.Append(stage) }

// Invoke runs the pipeline and returns the resulting state. A failing stage
// is reported as *StageError.
func (p *Processor) Invoke(ctx context.Context, initial core.State) (core.State, error) {
	p.state.Merge(initial)

	ctx, span := p.tracer.Start(ctx, "chain.invoke", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()
	span.SetAttributes(
		attribute.String("chain.id", p.id),
		attribute.Int("chain.stages", len(p.stages)),
		attribute.Int("chain.log.initial", p.log.Len()),
	)

	start := time.Now()
	p.logger.Debug("chain.invoke.start", "chain_id", p.id, "stages", len(p.stages), "messages", p.log.Len())

	for i, stage := range p.stages {
		if err := p.runStage(ctx, i, stage); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return p.state, err
		}
	}

	span.SetAttributes(attribute.Int("chain.log.final", p.log.Len()))
	span.SetStatus(codes.Ok, "")
	p.logger.Debug("chain.invoke.complete", "chain_id", p.id, "messages", p.log.Len(), "duration_ms", time.Since(start).Milliseconds())

	return p.state, nil
}

func (p *Processor) runStage(ctx context.Context, index int, stage core.Stage) error {
	name := core.StageName(stage)

	ctx, span := p.tracer.Start(ctx, "chain.stage")
	defer span.End()
	span.SetAttributes(
		attribute.Int("stage.index", index),
		attribute.String("stage.name", name),
	)

	p.logger.Debug("chain.stage.start", "chain_id", p.id, "index", index, "stage", name)
	start := time.Now()

	msgs, err := stage.Invoke(ctx, p.log, p.state)
	if err != nil {
		stageErr := &StageError{Index: index, Stage: name, Err: err}
		logging.LogStage(p.logger, index, name, 0, time.Since(start), err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return stageErr
	}

	p.log.Append(msgs...)

	span.SetAttributes(attribute.Int("stage.emitted", len(msgs)))
	logging.LogStage(p.logger, index, name, len(msgs), time.Since(start), nil)
	return nil
}

// ID returns the processor's correlation id, attached to its logs and spans.
func (p *Processor) ID() string { return p.id }

// Log returns the live message log.
func (p *Processor) Log() *core.Log { return p.log }

// State returns the live state map.
func (p *Processor) State() core.State { return p.state }

// Stages returns the number of composed stages.
func (p *Processor) Stages() int { return len(p.stages) }

// StageError reports the stage that aborted a run.
type StageError struct {
	Index int    // position of the stage in append order
	Stage string // stage name, see core.StageName
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("chain stage %d (%s) failed: %v", e.Index, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
