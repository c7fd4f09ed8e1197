package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/hupe1980/promptchain/internal/util"
	"github.com/hupe1980/promptchain/logging"
)

// Options configures tool construction.
type Options struct {
	// Logger receives registration diagnostics (e.g. unmapped parameter types).
	Logger logging.Logger
}

func newOptions(optFns []func(o *Options)) Options {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return opts
}

// Param declares a named argument of a FunctionTool.
type Param struct {
	Name        string
	Type        string // schema primitive or Go scalar name; empty means string
	Description string
	Optional    bool // optional parameters have a default and are not required
}

// goScalarTypes lets callers declare params with Go type names.
var goScalarTypes = map[string]string{
	"string": util.TypeString, "str": util.TypeString,
	"int": util.TypeInteger, "int8": util.TypeInteger, "int16": util.TypeInteger,
	"int32": util.TypeInteger, "int64": util.TypeInteger, "uint": util.TypeInteger,
	"uint8": util.TypeInteger, "uint16": util.TypeInteger, "uint32": util.TypeInteger,
	"uint64": util.TypeInteger, "integer": util.TypeInteger,
	"float32": util.TypeNumber, "float64": util.TypeNumber, "number": util.TypeNumber,
	"bool": util.TypeBoolean, "boolean": util.TypeBoolean,
}

// Func is the implementation signature of a FunctionTool.
type Func func(ctx context.Context, args map[string]any) (any, error)

// FunctionTool exposes a plain Go function with an explicitly declared
// parameter list. Arguments are validated against the derived schema before
// the function runs: missing required parameters, undeclared parameters and
// primitive type mismatches are reported as *ToolError{Code: CodeValidation}.
//
// A FunctionTool has no mutable state after construction and is safe for
// concurrent use.
type FunctionTool struct {
	descriptor Descriptor
	schema     map[string]any
	fn         Func
}

// NewFunctionTool constructs a FunctionTool.
//
// Example:
//
//	weather := tool.NewFunctionTool(
//	  "get_weather",
//	  "Look up the current temperature of a city",
//	  []tool.Param{{Name: "city_name", Type: "string"}},
//	  func(_ context.Context, args map[string]any) (any, error) {
//	    return 27.5, nil
//	  },
//	)
func NewFunctionTool(name, description string, params []Param, fn Func, optFns ...func(o *Options)) *FunctionTool {
	opts := newOptions(optFns)

	specs := make([]util.FieldSpec, 0, len(params))
	for _, p := range params {
		typ := util.TypeString
		if p.Type != "" {
			mapped, ok := goScalarTypes[p.Type]
			if !ok {
				opts.Logger.Warn("tool.register.type_fallback", "tool", name, "param", p.Name, "type", p.Type, "fallback", util.TypeString)
			} else {
				typ = mapped
			}
		}
		desc := p.Description
		if desc == "" {
			desc = fmt.Sprintf("The %s for the function.", p.Name)
		}
		specs = append(specs, util.FieldSpec{Name: p.Name, Type: typ, Description: desc, Required: !p.Optional})
	}

	d := newDescriptor(name, description, specs)
	return &FunctionTool{descriptor: d, schema: d.Function.Parameters.Schema(), fn: fn}
}

// Descriptor implements Tool.
func (t *FunctionTool) Descriptor() Descriptor { return t.descriptor }

// Call validates args then invokes the wrapped function. Errors returned by the
// function are wrapped as *ToolError{Code: CodeExecution} unless they already
// are a *ToolError.
func (t *FunctionTool) Call(ctx context.Context, args map[string]any) (any, error) {
	name := t.descriptor.Name()
	if err := util.ValidateParameters(args, t.schema, true); err != nil {
		return nil, &ToolError{
			Tool:    name,
			Message: err.Error(),
			Code:    CodeValidation,
			Details: err,
		}
	}
	return wrapExecution(ctx, name, t.fn, args)
}

func wrapExecution[A any](ctx context.Context, name string, fn func(context.Context, A) (any, error), args A) (any, error) {
	result, err := fn(ctx, args)
	if err == nil {
		return result, nil
	}
	if toolErr, ok := err.(*ToolError); ok {
		return nil, toolErr
	}
	return nil, &ToolError{Tool: name, Message: err.Error(), Code: CodeExecution, Details: err}
}

// TypedTool derives its schema from the struct type T at construction time
// and decodes the model's arguments into a T before calling fn. Field names
// follow the json tag, descriptions the "description" tag; pointer and
// omitempty fields are optional. Fields whose Go type has no primitive
// mapping are advertised as strings and logged as a registration diagnostic.
type TypedTool[T any] struct {
	descriptor Descriptor
	schema     map[string]any
	fn         func(ctx context.Context, args T) (any, error)
}

// NewTypedTool constructs a TypedTool for argument struct T.
//
// Example:
//
//	type WeatherArgs struct {
//	  CityName string `json:"city_name" description:"City to look up"`
//	}
//
//	weather := tool.NewTypedTool("get_weather", "", func(_ context.Context, a WeatherArgs) (any, error) {
//	  return 27.5, nil
//	})
func NewTypedTool[T any](name, description string, fn func(ctx context.Context, args T) (any, error), optFns ...func(o *Options)) *TypedTool[T] {
	opts := newOptions(optFns)

	var zero T
	fallback := map[string]struct{}{}
	specs := util.DescribeStruct(zero, func(field string, goType reflect.Type) {
		fallback[field] = struct{}{}
		opts.Logger.Warn("tool.register.type_fallback", "tool", name, "param", field, "type", goType.String(), "fallback", util.TypeString)
	})

	d := newDescriptor(name, description, specs)

	// Fallback fields are type-checked by the JSON decoder, not the schema.
	schema := d.Function.Parameters.Schema()
	props := schema["properties"].(map[string]any)
	for field := range fallback {
		props[field] = map[string]any{}
	}

	return &TypedTool[T]{descriptor: d, schema: schema, fn: fn}
}

// Descriptor implements Tool.
func (t *TypedTool[T]) Descriptor() Descriptor { return t.descriptor }

// Call validates and decodes args into T, then invokes the wrapped function.
func (t *TypedTool[T]) Call(ctx context.Context, args map[string]any) (any, error) {
	name := t.descriptor.Name()
	if err := util.ValidateParameters(args, t.schema, true); err != nil {
		return nil, &ToolError{Tool: name, Message: err.Error(), Code: CodeValidation, Details: err}
	}

	typed, err := decodeArgs[T](args)
	if err != nil {
		return nil, &ToolError{Tool: name, Message: err.Error(), Code: CodeValidation, Details: err}
	}
	return wrapExecution(ctx, name, t.fn, typed)
}

func decodeArgs[T any](args map[string]any) (T, error) {
	var out T
	raw, err := json.Marshal(args)
	if err != nil {
		return out, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}
