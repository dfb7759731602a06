// Package binder substitutes invocation arguments into command templates.
//
// A template body references the raw input with {{args}} and individual
// positional tokens with {{args[N]}}. Binding is pure: it does no I/O and
// leaves the template untouched.
package binder

import (
	"fmt"
	"strings"

	"github.com/CR94168/learn-claude-code-cli/internal/template"
)

// Request is one invocation of a command. Input is free text; Args is an
// already-split positional list. When Args is set it wins for positional
// placeholders and Input defaults to the list joined with spaces.
type Request struct {
	Command string   `json:"command"`
	Input   string   `json:"input,omitempty"`
	Args    []string `json:"args,omitempty"`
}

// Instruction is a template with every placeholder resolved.
type Instruction struct {
	Command string `json:"command"`
	Text    string `json:"text"`
	// Input is the raw input {{args}} received.
	Input string `json:"input"`
	// Args are the positional tokens, when the template uses any.
	Args    []string `json:"args,omitempty"`
	Scope   []string `json:"scope,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
	Model   string   `json:"model,omitempty"`
}

// Bind resolves the template's placeholders against the request.
func Bind(tmpl *template.Template, req Request) (*Instruction, error) {
	if tmpl == nil {
		return nil, fmt.Errorf("bind: nil template")
	}

	raw := req.Input
	if raw == "" && req.Args != nil {
		raw = strings.Join(req.Args, " ")
	}

	bodyMarks, err := template.ScanPlaceholders(tmpl.Body)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", tmpl.Name, err)
	}
	need := arity(bodyMarks)

	scopeMarks := make([][]template.Placeholder, len(tmpl.Scope))
	for i, entry := range tmpl.Scope {
		ps, err := template.ScanPlaceholders(entry)
		if err != nil {
			return nil, fmt.Errorf("bind %s: scope entry %q: %w", tmpl.Name, entry, err)
		}
		scopeMarks[i] = ps
		need = max(need, arity(ps))
	}

	var tokens []string
	if need > 0 {
		if req.Args != nil {
			tokens = req.Args
		} else {
			var err error
			if tokens, err = Tokenize(raw); err != nil {
				return nil, err
			}
		}
		if len(tokens) < need {
			return nil, &ArityError{
				Command: tmpl.Name,
				Missing: len(tokens),
				Slot:    tmpl.SlotName(len(tokens)),
				Have:    len(tokens),
				Need:    need,
			}
		}
	}

	inst := &Instruction{
		Command: tmpl.Name,
		Text:    substitute(tmpl.Body, bodyMarks, raw, tokens),
		Input:   raw,
		Args:    tokens,
		Exclude: append([]string(nil), tmpl.Exclude...),
		Model:   tmpl.Model,
	}
	for i, entry := range tmpl.Scope {
		inst.Scope = append(inst.Scope, substitute(entry, scopeMarks[i], raw, tokens))
	}
	return inst, nil
}

// arity is the number of tokens the unescaped positional placeholders need.
func arity(marks []template.Placeholder) int {
	n := 0
	for _, p := range marks {
		if !p.Escaped && p.Index+1 > n {
			n = p.Index + 1
		}
	}
	return n
}

// substitute rewrites text in a single pass so substituted values are never
// rescanned for placeholders.
func substitute(text string, marks []template.Placeholder, raw string, tokens []string) string {
	if len(marks) == 0 {
		return text
	}
	var sb strings.Builder
	sb.Grow(len(text) + len(raw))
	last := 0
	for _, p := range marks {
		sb.WriteString(text[last:p.Start])
		switch {
		case p.Escaped:
			sb.WriteString(p.Literal(text))
		case p.Index == template.AllArgs:
			sb.WriteString(raw)
		default:
			sb.WriteString(tokens[p.Index])
		}
		last = p.End
	}
	sb.WriteString(text[last:])
	return sb.String()
}
