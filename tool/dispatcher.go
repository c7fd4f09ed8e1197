package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/hupe1980/promptchain/core"
	"github.com/hupe1980/promptchain/internal/util"
	"github.com/hupe1980/promptchain/logging"
)

const meterName = "github.com/hupe1980/promptchain/tool"

// Dispatch outcomes recorded on the promptchain.tool.calls counter.
const (
	OutcomeOK               = "ok"
	OutcomeNotFound         = "not_found"
	OutcomeInvalidArguments = "invalid_arguments"
	OutcomeArgumentMismatch = "argument_mismatch"
	OutcomeExecutionError   = "execution_error"
)

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	Logger        logging.Logger
	MeterProvider metric.MeterProvider // nil uses the global provider
}

// Dispatcher is the stage that executes a pending ToolCallRequest. When the
// last message of the log is a call request, it is removed and exactly one
// ToolResult carrying the same call id is returned in its place. Failures are
// reported in the result content; Invoke never returns an error.
type Dispatcher struct {
	registry *Registry
	logger   logging.Logger
	calls    metric.Int64Counter
	duration metric.Float64Histogram
}

// NewDispatcher creates a dispatcher resolving tools from reg.
func NewDispatcher(reg *Registry, optFns ...func(o *DispatcherOptions)) *Dispatcher {
	opts := DispatcherOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if reg == nil {
		reg = NewRegistry()
	}

	var meter metric.Meter
	if opts.MeterProvider != nil {
		meter = opts.MeterProvider.Meter(meterName)
	} else {
		meter = otel.Meter(meterName)
	}

	calls, err := meter.Int64Counter(
		"promptchain.tool.calls",
		metric.WithDescription("Number of dispatched tool calls"),
		metric.WithUnit("1"),
	)
	if err != nil {
		opts.Logger.Warn("tool.dispatch.metrics_unavailable", "instrument", "promptchain.tool.calls", "error", err.Error())
		calls, _ = noop.Meter{}.Int64Counter("promptchain.tool.calls")
	}

	duration, err := meter.Float64Histogram(
		"promptchain.tool.duration",
		metric.WithDescription("Tool call latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		opts.Logger.Warn("tool.dispatch.metrics_unavailable", "instrument", "promptchain.tool.duration", "error", err.Error())
		duration, _ = noop.Meter{}.Float64Histogram("promptchain.tool.duration")
	}

	return &Dispatcher{registry: reg, logger: opts.Logger, calls: calls, duration: duration}
}

// Name implements core.Named.
func (d *Dispatcher) Name() string { return "tool_dispatcher" }

// Registry returns the registry the dispatcher resolves tools from.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Invoke implements core.Stage.
func (d *Dispatcher) Invoke(ctx context.Context, log *core.Log, _ core.State) ([]core.Message, error) {
	last, ok := log.Last()
	if !ok {
		return nil, nil
	}
	req, ok := last.(core.ToolCallRequest)
	if !ok {
		return nil, nil
	}
	log.PopLast()

	return []core.Message{d.Dispatch(ctx, req)}, nil
}

// Dispatch executes a single call request and returns its result without
// touching any log.
func (d *Dispatcher) Dispatch(ctx context.Context, req core.ToolCallRequest) core.ToolResult {
	start := time.Now()
	content, outcome := d.execute(ctx, req)
	dur := time.Since(start)

	attrs := metric.WithAttributes(
		attribute.String("tool", req.FunctionName()),
		attribute.String("outcome", outcome),
	)
	d.calls.Add(ctx, 1, attrs)
	d.duration.Record(ctx, float64(dur.Microseconds())/1000.0, attrs)
	logging.LogToolCall(d.logger, req.FunctionName(), req.CallID(), outcome, dur)

	return core.NewToolResult(req.CallID(), content)
}

func (d *Dispatcher) execute(ctx context.Context, req core.ToolCallRequest) (string, string) {
	name := req.FunctionName()
	raw := req.ArgumentsJSON()

	t, ok := d.registry.Get(name)
	if !ok {
		d.logger.Warn("tool.dispatch.not_found", "tool", name, "call_id", req.CallID())
		return fmt.Sprintf("Error: Function '%s' not found in registered tools.", name), OutcomeNotFound
	}

	if raw == "" {
		raw = "{}"
	}
	if err := util.CheckObject(raw); err != nil {
		d.logger.Warn("tool.dispatch.invalid_arguments", "tool", name, "call_id", req.CallID(), "error", err.Error())
		return fmt.Sprintf("Error: Could not parse arguments for function '%s': Invalid JSON '%s'", name, req.ArgumentsJSON()), OutcomeInvalidArguments
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return fmt.Sprintf("Error: Could not parse arguments for function '%s': Invalid JSON '%s'", name, req.ArgumentsJSON()), OutcomeInvalidArguments
	}

	result, err := d.call(ctx, t, req, args)
	if err != nil {
		var toolErr *ToolError
		if errors.As(err, &toolErr) && toolErr.Code == CodeValidation {
			return fmt.Sprintf("Error: Argument mismatch for function '%s': %v. Arguments received: %s", name, toolErr.Message, raw), OutcomeArgumentMismatch
		}
		msg := err.Error()
		if errors.As(err, &toolErr) {
			msg = toolErr.Message
		}
		return fmt.Sprintf("Error executing function '%s': %s", name, msg), OutcomeExecutionError
	}

	return Stringify(result), OutcomeOK
}

func (d *Dispatcher) call(ctx context.Context, t Tool, req core.ToolCallRequest, args map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{val: r, stack: debug.Stack()}
			d.logger.Error("tool.dispatch.panic", "tool", req.FunctionName(), "call_id", req.CallID(), "recover", r)
		}
	}()
	return t.Call(ctx, args)
}

type panicError struct {
	val   any
	stack []byte
}

func (p *panicError) Error() string { return fmt.Sprintf("panic: %v", p.val) }

// Stringify renders a tool return value as result content. Strings are kept
// verbatim, nil becomes "null", maps, slices and structs are JSON encoded and
// everything else uses its default format.
func Stringify(v any) string {
	if v == nil {
		return "null"
	}
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case fmt.Stringer:
		return x.String()
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "null"
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", rv.Interface())
	}
}
