package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRole is returned when a role is not one of system, user, assistant or tool.
	ErrInvalidRole = errors.New("invalid role: must be 'system', 'assistant', 'user', or 'tool'")
	// ErrInvalidArity is returned for (role, content) pairs that do not have exactly two elements.
	ErrInvalidArity = errors.New("pair input must have exactly two elements (role, content)")
	// ErrMissingContent is returned for mapping input without a content value.
	ErrMissingContent = errors.New("mapping input has no 'content' value")
	// ErrUnsupportedInput is returned for input types ParseMessage cannot normalize.
	ErrUnsupportedInput = errors.New("unsupported message input type")
	// ErrInvalidStage is returned (or panicked) when a nil stage is composed into a chain.
	ErrInvalidStage = errors.New("stage does not implement the Stage contract")
)

// ConstructionError reports malformed static input: a bad message shape or a
// non-conforming stage. It is raised at build time and never converted into data.
type ConstructionError struct {
	Input any
	Err   error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("construction error: %v (input: %#v)", e.Err, e.Input)
}

func (e *ConstructionError) Unwrap() error { return e.Err }
