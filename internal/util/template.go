package util

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"text/template/parse"
)

var funcs = template.FuncMap{
	"default": func(defaultVal any, val any) any {
		if val == nil || val == "" {
			return defaultVal
		}
		return val
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"title": func(s string) string {
		if len(s) == 0 {
			return s
		}
		return strings.ToUpper(string(s[0])) + strings.ToLower(s[1:])
	},
	"join": func(sep string, items []interface{}) string {
		strItems := make([]string, len(items))
		for i, item := range items {
			strItems[i] = fmt.Sprintf("%v", item)
		}
		return strings.Join(strItems, sep)
	},
}

// ParseTemplate compiles text with the shared helper funcs. Missing map keys
// are reported as execution errors rather than rendered as "<no value>".
func ParseTemplate(name, text string) (*template.Template, error) {
	return template.New(name).Funcs(funcs).Option("missingkey=error").Parse(text)
}

// RenderTemplate replaces template variables using Go's text/template package.
func RenderTemplate(text string, state map[string]any) (string, error) {
	if !strings.Contains(text, "{{") { // fast path: no template markers
		return text, nil
	}

	tmpl, err := ParseTemplate("prompt", text)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, state); err != nil {
		return "", err
	}

	return buf.String(), nil
}

// TemplateVariables returns the distinct top-level keys ({{.key}}) referenced
// by a parsed template, in order of first appearance.
func TemplateVariables(tmpl *template.Template) []string {
	if tmpl == nil || tmpl.Tree == nil {
		return nil
	}
	seen := map[string]struct{}{}
	var out []string
	var walk func(n parse.Node)
	walk = func(n parse.Node) {
		switch node := n.(type) {
		case *parse.ListNode:
			if node == nil {
				return
			}
			for _, c := range node.Nodes {
				walk(c)
			}
		case *parse.ActionNode:
			walk(node.Pipe)
		case *parse.PipeNode:
			if node == nil {
				return
			}
			for _, cmd := range node.Cmds {
				walk(cmd)
			}
		case *parse.CommandNode:
			for _, arg := range node.Args {
				walk(arg)
			}
		case *parse.FieldNode:
			if len(node.Ident) > 0 {
				if _, dup := seen[node.Ident[0]]; !dup {
					seen[node.Ident[0]] = struct{}{}
					out = append(out, node.Ident[0])
				}
			}
		case *parse.IfNode:
			walk(node.Pipe)
			walk(node.List)
			walk(node.ElseList)
		case *parse.RangeNode:
			walk(node.Pipe)
			walk(node.List)
			walk(node.ElseList)
		case *parse.WithNode:
			walk(node.Pipe)
			walk(node.List)
			walk(node.ElseList)
		}
	}
	walk(tmpl.Tree.Root)
	return out
}
