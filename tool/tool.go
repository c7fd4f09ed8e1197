// Package tool implements the function / tool calling subsystem: tools are
// registered with a derived parameter schema, advertised to providers as
// descriptors, and executed by the Dispatcher stage when the model asks for a
// call. Every failure on the dispatch path (unknown tool, malformed arguments,
// argument mismatch, tool error or panic) is recorded as a ToolResult so the
// conversation can continue.
package tool

import (
	"context"
	"fmt"

	"github.com/hupe1980/promptchain/internal/util"
)

// Tool is a callable capability exposed to the model.
type Tool interface {
	// Descriptor returns the advertised schema. It is computed once at
	// construction and must not change afterwards.
	Descriptor() Descriptor

	// Call executes the tool with arguments decoded from the model's JSON.
	// Argument problems should be reported as *ToolError with CodeValidation
	// so the dispatcher can distinguish them from execution failures.
	Call(ctx context.Context, args map[string]any) (any, error)
}

// Descriptor is the advertised tool schema in function-calling wire shape:
//
//	{"type":"function","function":{"name":..,"description":..,"parameters":{..}}}
type Descriptor struct {
	Type     string       `json:"type"` // always "function"
	Function FunctionSpec `json:"function"`
}

// FunctionSpec describes one callable function.
type FunctionSpec struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Parameters  Parameters `json:"parameters"`
}

// Parameters is the object schema of a function's named arguments.
type Parameters struct {
	Type       string              `json:"type"` // always "object"
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required"`
}

// Property describes a single primitive argument.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Name is shorthand for d.Function.Name.
func (d Descriptor) Name() string { return d.Function.Name }

// Description is shorthand for d.Function.Description.
func (d Descriptor) Description() string { return d.Function.Description }

// Schema returns the parameters as a generic JSON-schema map, the shape
// expected by provider SDKs and util.ValidateParameters.
func (p Parameters) Schema() map[string]any {
	props := make(map[string]any, len(p.Properties))
	for name, prop := range p.Properties {
		props[name] = map[string]any{"type": prop.Type, "description": prop.Description}
	}
	required := make([]string, len(p.Required))
	copy(required, p.Required)
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func newDescriptor(name, description string, specs []util.FieldSpec) Descriptor {
	if description == "" {
		description = fmt.Sprintf("A tool for calling the %s function.", name)
	}
	params := Parameters{
		Type:       "object",
		Properties: make(map[string]Property, len(specs)),
		Required:   make([]string, 0, len(specs)),
	}
	for _, s := range specs {
		params.Properties[s.Name] = Property{Type: s.Type, Description: s.Description}
		if s.Required {
			params.Required = append(params.Required, s.Name)
		}
	}
	return Descriptor{
		Type:     "function",
		Function: FunctionSpec{Name: name, Description: description, Parameters: params},
	}
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// Error codes carried by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
)

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
