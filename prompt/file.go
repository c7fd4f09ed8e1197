package prompt

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/promptchain/core"
)

// File describes a YAML prompt file:
//
//	name: weather
//	messages:
//	  - role: system
//	    content: You are a weather assistant.
//	  - role: user
//	    content: How warm is it in {{.city}}?
type File struct {
	Name     string        `yaml:"name"`
	Messages []FileMessage `yaml:"messages"`
}

// FileMessage is one templated message of a prompt file.
type FileMessage struct {
	Role    string `yaml:"role"`
	Content string `yaml:"content"`
}

// LoadFile reads and compiles a YAML prompt file.
func LoadFile(path string) ([]*Template, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("prompt file not found: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt file: %w", err)
	}
	return Parse(data)
}

// Parse compiles the templates of YAML prompt data in file order.
func Parse(data []byte) ([]*Template, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("yaml parse error: %w", err)
	}

	templates := make([]*Template, 0, len(f.Messages))
	for i, m := range f.Messages {
		role, err := core.ParseRole(m.Role)
		if err != nil {
			return nil, fmt.Errorf("message #%d: %w", i, err)
		}
		t, err := NewTemplate(role, m.Content)
		if err != nil {
			return nil, fmt.Errorf("message #%d (%s): %w", i, role, err)
		}
		templates = append(templates, t)
	}
	return templates, nil
}

// Stages converts templates to chain stages preserving order.
func Stages(templates []*Template) []core.Stage {
	out := make([]core.Stage, len(templates))
	for i, t := range templates {
		out[i] = t
	}
	return out
}
