// Package templates renders operation prompts from records.
//
// Prompt templates are standard text/template documents. The bindings exposed
// to a template are fixed per call site: reduce prompts see `values` and
// `reduce_key`, fold prompts additionally see `output` (the prior
// accumulator), merge prompts see `outputs` (the accumulators being
// combined), and per-record prompts see `input`.
package templates

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"text/template/parse"

	"github.com/linxule/docetl/internal/record"
)

// Binding names exposed to prompt templates.
const (
	VarValues    = "values"
	VarOutput    = "output"
	VarOutputs   = "outputs"
	VarReduceKey = "reduce_key"
	VarInput     = "input"
)

// ErrEmptyTemplate is returned when a prompt template is empty.
var ErrEmptyTemplate = errors.New("prompt template is empty")

// Bindings holds the values a prompt template may reference. Unset fields
// render as their zero value; config checks guarantee a template only
// references the bindings its call site provides.
type Bindings struct {
	Values    []record.Record
	Output    record.Record
	Outputs   []record.Record
	ReduceKey any
	Input     record.Record
}

// funcs are helper functions available inside prompt templates.
var funcs = template.FuncMap{
	"toJson": func(v any) (string, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("toJson: %w", err)
		}

		return string(b), nil
	},
}

// Render executes a prompt template against the given bindings.
func Render(text string, b Bindings) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyTemplate
	}

	tmpl, err := template.New("prompt").Funcs(funcs).Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse prompt template: %w", err)
	}

	data := map[string]any{
		VarValues:    b.Values,
		VarOutput:    b.Output,
		VarOutputs:   b.Outputs,
		VarReduceKey: b.ReduceKey,
		VarInput:     b.Input,
	}

	var sb strings.Builder

	execErr := tmpl.Execute(&sb, data)
	if execErr != nil {
		return "", fmt.Errorf("render prompt template: %w", execErr)
	}

	return sb.String(), nil
}

// ReferencedVars parses a template and returns the set of top-level binding
// names it references. Used by config checks to verify, for example, that a
// fold prompt mentions both `values` and `output`.
func ReferencedVars(text string) (map[string]bool, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyTemplate
	}

	tmpl, err := template.New("prompt").Funcs(funcs).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}

	vars := make(map[string]bool)
	collectVars(tmpl.Root, vars)

	return vars, nil
}

// collectVars walks the parse tree recording the first identifier of every
// field access ({{.values}}, {{range .outputs}}, ...).
func collectVars(node parse.Node, vars map[string]bool) {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}

		for _, child := range n.Nodes {
			collectVars(child, vars)
		}
	case *parse.ActionNode:
		collectPipe(n.Pipe, vars)
	case *parse.RangeNode:
		collectBranch(&n.BranchNode, vars)
	case *parse.IfNode:
		collectBranch(&n.BranchNode, vars)
	case *parse.WithNode:
		collectBranch(&n.BranchNode, vars)
	case *parse.TemplateNode:
		collectPipe(n.Pipe, vars)
	}
}

func collectBranch(branch *parse.BranchNode, vars map[string]bool) {
	collectPipe(branch.Pipe, vars)
	collectVars(branch.List, vars)

	if branch.ElseList != nil {
		collectVars(branch.ElseList, vars)
	}
}

func collectPipe(pipe *parse.PipeNode, vars map[string]bool) {
	if pipe == nil {
		return
	}

	for _, cmd := range pipe.Cmds {
		for _, arg := range cmd.Args {
			switch a := arg.(type) {
			case *parse.FieldNode:
				if len(a.Ident) > 0 {
					vars[a.Ident[0]] = true
				}
			case *parse.PipeNode:
				collectPipe(a, vars)
			}
		}
	}
}
