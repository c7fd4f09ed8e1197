// Package prompt provides message templates: stages that render a
// text/template against the chain state and emit one message.
package prompt

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/hupe1980/promptchain/core"
	"github.com/hupe1980/promptchain/internal/util"
)

// Template renders one message of a fixed role. Variables are referenced as
// {{.name}} and resolved from the chain state; a missing variable fails the
// stage.
type Template struct {
	role   core.Role
	text   string
	tmpl   *template.Template
	inputs []string
}

// NewTemplate compiles text for role.
func NewTemplate(role core.Role, text string) (*Template, error) {
	if !role.Valid() {
		return nil, &core.ConstructionError{Input: role, Err: core.ErrInvalidRole}
	}
	tmpl, err := util.ParseTemplate(string(role), text)
	if err != nil {
		return nil, &core.ConstructionError{Input: text, Err: err}
	}
	return &Template{role: role, text: text, tmpl: tmpl, inputs: util.TemplateVariables(tmpl)}, nil
}

// MustTemplate is like NewTemplate but panics on error.
func MustTemplate(role core.Role, text string) *Template {
	t, err := NewTemplate(role, text)
	if err != nil {
		panic(err)
	}
	return t
}

// System returns a system message template.
func System(text string) *Template { return MustTemplate(core.RoleSystem, text) }

// Human returns a user message template.
func Human(text string) *Template { return MustTemplate(core.RoleUser, text) }

// AI returns an assistant message template.
func AI(text string) *Template { return MustTemplate(core.RoleAssistant, text) }

// Role returns the role of the rendered message.
func (t *Template) Role() core.Role { return t.role }

// Text returns the template source.
func (t *Template) Text() string { return t.text }

// InputVariables lists the state keys the template references.
func (t *Template) InputVariables() []string {
	out := make([]string, len(t.inputs))
	copy(out, t.inputs)
	return out
}

// Name implements core.Named.
func (t *Template) Name() string { return "prompt:" + string(t.role) }

// Format renders the template with vars.
func (t *Template) Format(vars map[string]any) (string, error) {
	if vars == nil {
		vars = map[string]any{}
	}
	var buf bytes.Buffer
	if err := t.tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", t.role, err)
	}
	return buf.String(), nil
}

// Invoke implements core.Stage.
func (t *Template) Invoke(_ context.Context, _ *core.Log, state core.State) ([]core.Message, error) {
	content, err := t.Format(state)
	if err != nil {
		return nil, err
	}
	msg, err := core.NewMessage(t.role, content)
	if err != nil {
		return nil, err
	}
	return []core.Message{msg}, nil
}
