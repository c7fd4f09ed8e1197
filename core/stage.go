package core

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Stage is the single-method contract every chain element implements:
// prompt templates, model calls, tool dispatchers, parsers and event nodes.
//
// A stage may read the full log and state and may mutate state in place. It
// must not append to the log itself; instead it returns zero or more messages
// which the engine appends in order. A nil slice means nothing was produced.
// Returning an error aborts the chain.
type Stage interface {
	Invoke(ctx context.Context, log *Log, state State) ([]Message, error)
}

// StageFunc adapts an ordinary function to the Stage interface.
type StageFunc func(ctx context.Context, log *Log, state State) ([]Message, error)

// Invoke implements Stage.
func (f StageFunc) Invoke(ctx context.Context, log *Log, state State) ([]Message, error) {
	return f(ctx, log, state)
}

// Named is implemented by stages that expose a human-readable name used in
// logs and trace spans.
type Named interface {
	Name() string
}

// StageName returns the stage's Name when it implements Named and its
// dynamic type otherwise.
func StageName(s Stage) string {
	if n, ok := s.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", s)
}

// NewID generates a new unique identifier (UUID v4) used for tool call ids
// and processor correlation.
func NewID() string { return uuid.NewString() }
