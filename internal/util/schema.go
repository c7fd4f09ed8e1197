package util

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// ValidationError represents parameter validation errors with detailed information.
type ValidationError struct {
	Field   string `json:"field"`   // Field that failed validation
	Value   any    `json:"value"`   // Value that was provided
	Message string `json:"message"` // Human-readable error message
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// Schema primitive type names.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
)

// PrimitiveType maps a Go type to a schema primitive. Pointers are followed.
// The second result is false when the type has no primitive mapping, in which
// case "string" is returned as the fallback.
func PrimitiveType(t reflect.Type) (string, bool) {
	switch t.Kind() {
	case reflect.String:
		return TypeString, true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return TypeInteger, true
	case reflect.Float32, reflect.Float64:
		return TypeNumber, true
	case reflect.Bool:
		return TypeBoolean, true
	case reflect.Ptr:
		return PrimitiveType(t.Elem())
	default:
		return TypeString, false
	}
}

// FieldSpec describes one derived schema property.
type FieldSpec struct {
	Name        string
	Type        string
	Description string
	Required    bool
}

// DescribeStruct walks the exported fields of a struct type and returns one
// FieldSpec per JSON-visible field in declaration order. onFallback is called
// for every field whose Go type has no primitive mapping; it may be nil.
//
// A field is required unless it is a pointer or tagged omitempty. The
// "description" struct tag supplies the property description; without it a
// generic one is generated.
func DescribeStruct(structType any, onFallback func(field string, goType reflect.Type)) []FieldSpec {
	t := reflect.TypeOf(structType)
	if t == nil {
		return nil
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	specs := make([]FieldSpec, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		fieldName := field.Name
		if jsonTag != "" {
			parts := strings.Split(jsonTag, ",")
			if parts[0] != "" {
				fieldName = parts[0]
			}
		}

		typ, ok := PrimitiveType(field.Type)
		if !ok && onFallback != nil {
			onFallback(fieldName, field.Type)
		}

		description := field.Tag.Get("description")
		if description == "" {
			description = fmt.Sprintf("The %s for the function.", fieldName)
		}

		specs = append(specs, FieldSpec{
			Name:        fieldName,
			Type:        typ,
			Description: description,
			Required:    !hasOmitEmpty(jsonTag) && !isPointer(field.Type),
		})
	}
	return specs
}

// BuildSchema assembles an object schema from field specs.
func BuildSchema(specs []FieldSpec) map[string]any {
	properties := make(map[string]any, len(specs))
	required := make([]string, 0, len(specs))
	for _, s := range specs {
		properties[s.Name] = map[string]any{
			"type":        s.Type,
			"description": s.Description,
		}
		if s.Required {
			required = append(required, s.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// CreateSchema creates a JSON schema from a Go struct using reflection.
// This is a convenience wrapper over DescribeStruct and BuildSchema.
func CreateSchema(structType any) map[string]any {
	return BuildSchema(DescribeStruct(structType, nil))
}

// ValidateParameters validates parameters against a JSON schema: required
// fields must be present and primitive types must match. With strict set,
// parameters not declared in the schema's properties are rejected as well.
func ValidateParameters(params map[string]any, schema map[string]any, strict bool) error {
	required := map[string]struct{}{}
	for _, fieldName := range requiredFields(schema) {
		required[fieldName] = struct{}{}
		if _, exists := params[fieldName]; !exists {
			return &ValidationError{
				Field:   fieldName,
				Message: "required field is missing",
			}
		}
	}

	properties, _ := schema["properties"].(map[string]any)

	// Sorted iteration keeps the reported field deterministic.
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, fieldName := range names {
		value := params[fieldName]
		propSchema, exists := properties[fieldName]
		if !exists {
			if strict {
				return &ValidationError{
					Field:   fieldName,
					Value:   value,
					Message: "unexpected field",
				}
			}
			continue
		}

		propMap, ok := propSchema.(map[string]any)
		if !ok {
			continue
		}

		expectedType, _ := propMap["type"].(string)
		if value == nil {
			// null only satisfies optional or untyped properties
			if _, req := required[fieldName]; req && expectedType != "" {
				return &ValidationError{
					Field:   fieldName,
					Message: fmt.Sprintf("expected type %s, got null", expectedType),
				}
			}
			continue
		}
		if !isValidType(value, expectedType) {
			return &ValidationError{
				Field:   fieldName,
				Value:   value,
				Message: fmt.Sprintf("expected type %s, got %T", expectedType, value),
			}
		}
	}

	return nil
}

// requiredFields accepts both []string (built in code) and []any (decoded JSON).
func requiredFields(schema map[string]any) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// hasOmitEmpty checks if a JSON tag has the "omitempty" option.
func hasOmitEmpty(tag string) bool {
	parts := strings.Split(tag, ",")
	for _, part := range parts[1:] {
		if strings.TrimSpace(part) == "omitempty" {
			return true
		}
	}
	return false
}

// isPointer checks if a type is a pointer.
func isPointer(t reflect.Type) bool {
	return t.Kind() == reflect.Ptr
}

// isValidType checks if a value is valid according to the expected JSON schema type.
func isValidType(value any, expectedType string) bool {
	switch expectedType {
	case TypeString:
		_, ok := value.(string)
		return ok
	case TypeInteger:
		switch v := value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		case float64: // JSON unmarshaling often produces float64 for numbers
			return v == float64(int64(v))
		}
		return false
	case TypeNumber:
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
			float32, float64:
			return true
		}
		return false
	case TypeBoolean:
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true // Unknown types are assumed valid
	}
}
