// Package parser turns the model's last reply into a typed value stored in
// the chain state. Parsing failures never abort a chain: they are recorded
// under "<key>_error" and "<key>_raw_content" for the caller to inspect.
package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/hupe1980/promptchain/core"
	"github.com/hupe1980/promptchain/internal/util"
	"github.com/hupe1980/promptchain/logging"
)

// DefaultOutputKey is used when no output key is given.
const DefaultOutputKey = "parsed_output"

// Validator is implemented by target types with rules beyond the schema.
type Validator interface {
	Validate() error
}

// Options configures a parser.
type Options struct {
	Logger logging.Logger
}

// ErrorKey returns the state key holding a parse failure description.
func ErrorKey(outputKey string) string { return outputKey + "_error" }

// RawContentKey returns the state key holding the unparsed reply.
func RawContentKey(outputKey string) string { return outputKey + "_raw_content" }

// Parser is a stage that decodes the JSON object embedded in the last message
// into a T. The schema of T (field types and required fields) is derived once
// at construction, the same way typed tools derive theirs.
type Parser[T any] struct {
	outputKey string
	schema    map[string]any
	logger    logging.Logger
}

// New creates a parser for T storing its result under outputKey.
func New[T any](outputKey string, optFns ...func(o *Options)) *Parser[T] {
	opts := newOptions(optFns)
	if outputKey == "" {
		outputKey = DefaultOutputKey
	}

	var zero T
	fallback := map[string]struct{}{}
	specs := util.DescribeStruct(zero, func(field string, _ reflect.Type) {
		fallback[field] = struct{}{}
	})
	schema := util.BuildSchema(specs)
	props := schema["properties"].(map[string]any)
	for field := range fallback {
		props[field] = map[string]any{}
	}

	return &Parser[T]{outputKey: outputKey, schema: schema, logger: opts.Logger}
}

// Name implements core.Named.
func (p *Parser[T]) Name() string { return "parser:" + p.outputKey }

// OutputKey returns the state key the parsed value is stored under.
func (p *Parser[T]) OutputKey() string { return p.outputKey }

// Schema returns the derived JSON schema of T.
func (p *Parser[T]) Schema() map[string]any { return p.schema }

// Invoke implements core.Stage. It never appends to the log and never fails.
func (p *Parser[T]) Invoke(_ context.Context, log *core.Log, state core.State) ([]core.Message, error) {
	last, ok := log.Last()
	if !ok {
		p.logger.Debug("parser.skip.empty_log", "key", p.outputKey)
		return nil, nil
	}

	content := last.Content()
	obj, err := decodeObject(content, p.schema)
	if err == nil {
		var out T
		out, err = decodeInto[T](obj)
		if err == nil {
			err = validate(out)
		}
		if err == nil {
			store(state, p.outputKey, out)
			p.logger.Debug("parser.parse.ok", "key", p.outputKey)
			return nil, nil
		}
	}

	fail(state, p.outputKey, content, err)
	p.logger.Warn("parser.parse.failed", "key", p.outputKey, "error", err.Error())
	return nil, nil
}

// MapParser is the schema-only variant of Parser: it validates the embedded
// object against a JSON schema map and stores it as map[string]any.
type MapParser struct {
	outputKey string
	schema    map[string]any
	logger    logging.Logger
}

// NewMap creates a MapParser. A nil schema accepts any object.
func NewMap(outputKey string, schema map[string]any, optFns ...func(o *Options)) *MapParser {
	opts := newOptions(optFns)
	if outputKey == "" {
		outputKey = DefaultOutputKey
	}
	return &MapParser{outputKey: outputKey, schema: schema, logger: opts.Logger}
}

// Name implements core.Named.
func (p *MapParser) Name() string { return "parser:" + p.outputKey }

// Invoke implements core.Stage.
func (p *MapParser) Invoke(_ context.Context, log *core.Log, state core.State) ([]core.Message, error) {
	last, ok := log.Last()
	if !ok {
		return nil, nil
	}

	content := last.Content()
	obj, err := decodeObject(content, p.schema)
	if err != nil {
		fail(state, p.outputKey, content, err)
		p.logger.Warn("parser.parse.failed", "key", p.outputKey, "error", err.Error())
		return nil, nil
	}

	store(state, p.outputKey, obj)
	p.logger.Debug("parser.parse.ok", "key", p.outputKey)
	return nil, nil
}

func newOptions(optFns []func(o *Options)) Options {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return opts
}

// decodeObject locates the JSON object in text, checks its syntax and
// validates it against schema.
func decodeObject(text string, schema map[string]any) (map[string]any, error) {
	span, err := util.ExtractJSONSpan(text)
	if err != nil {
		return nil, err
	}
	if err := util.CheckObject(span); err != nil {
		return nil, fmt.Errorf("invalid JSON %q: %w", span, err)
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(span), &obj); err != nil {
		return nil, fmt.Errorf("invalid JSON %q: %w", span, err)
	}

	if schema != nil {
		if err := util.ValidateParameters(obj, schema, false); err != nil {
			return nil, fmt.Errorf("validation failed: %w", err)
		}
	}
	return obj, nil
}

func decodeInto[T any](obj map[string]any) (T, error) {
	var out T
	raw, err := json.Marshal(obj)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("validation failed: %w", err)
	}
	return out, nil
}

func validate(v any) error {
	if val, ok := v.(Validator); ok {
		if err := val.Validate(); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		return nil
	}
	// value receivers are covered above; check pointer receivers too
	rv := reflect.ValueOf(v)
	if rv.IsValid() && rv.Kind() != reflect.Pointer {
		ptr := reflect.New(rv.Type())
		ptr.Elem().Set(rv)
		if val, ok := ptr.Interface().(Validator); ok {
			if err := val.Validate(); err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
		}
	}
	return nil
}

func store(state core.State, key string, v any) {
	state[key] = v
	delete(state, ErrorKey(key))
	delete(state, RawContentKey(key))
}

func fail(state core.State, key, content string, err error) {
	state[ErrorKey(key)] = err.Error()
	state[RawContentKey(key)] = content
}
