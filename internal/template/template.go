package template

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Template is a command definition loaded from a markdown file.
type Template struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// ArgumentHint is the front-matter argument-hint, verbatim. Display only.
	ArgumentHint string `json:"argumentHint,omitempty"`
	Slots        []Slot `json:"slots,omitempty"`
	// Body is the file content after the front-matter block, byte for byte.
	Body         string   `json:"body"`
	Usage        Usage    `json:"usage"`
	Scope        []string `json:"scope,omitempty"`
	Exclude      []string `json:"exclude,omitempty"`
	Model        string   `json:"model,omitempty"`
	AllowedTools []string `json:"allowedTools,omitempty"`
	Path         string   `json:"path"`
}

// Slot is a declared argument position.
type Slot struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Hint  string `json:"hint,omitempty"`
}

// SlotName returns the slot name for a positional index.
func (t *Template) SlotName(index int) string {
	for _, s := range t.Slots {
		if s.Index == index {
			return s.Name
		}
	}
	return fmt.Sprintf("arg%d", index)
}

// frontmatter holds the YAML keys a template may declare. argument-hint is
// read from the raw lines instead, see splitFrontmatter.
type frontmatter struct {
	Name         string     `yaml:"name"`
	Description  string     `yaml:"description"`
	Scope        stringList `yaml:"scope"`
	Exclude      stringList `yaml:"exclude"`
	Model        string     `yaml:"model"`
	AllowedTools stringList `yaml:"allowed-tools"`
}

// stringList accepts a YAML sequence or a comma-separated scalar.
type stringList []string

func (l *stringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var out []string
		for _, part := range strings.Split(node.Value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*l = out
		return nil
	case yaml.SequenceNode:
		var out []string
		if err := node.Decode(&out); err != nil {
			return err
		}
		*l = out
		return nil
	}
	return fmt.Errorf("line %d: expected a string or a list of strings", node.Line)
}

var (
	hintLineRe  = regexp.MustCompile(`^argument-hint\s*:(.*)$`)
	hintGroupRe = regexp.MustCompile(`\[([^\]]+)\]`)
	headingRe   = regexp.MustCompile(`(?m)^#{1,6}[ \t]+(.+?)[ \t]*#*[ \t\r]*$`)
)

// ParseFile reads and parses a single template file. The returned template
// has no Name when the file does not declare one; the registry derives it
// from the path.
func ParseFile(path string) (*Template, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Reason: err.Error()}
	}
	return Parse(path, content)
}

// Parse parses template content. path is used for error reporting only.
func Parse(path string, content []byte) (*Template, error) {
	yamlText, hint, body, hasFM, err := splitFrontmatter(content)
	if err != nil {
		return nil, &ParseError{Path: path, Line: 1, Reason: err.Error()}
	}

	tmpl := &Template{Path: path, Body: body, ArgumentHint: hint}

	if hasFM && len(bytes.TrimSpace(yamlText)) > 0 {
		var fm frontmatter
		if err := yaml.Unmarshal(yamlText, &fm); err != nil {
			return nil, &ParseError{Path: path, Reason: "invalid front-matter: " + err.Error()}
		}
		tmpl.Name = strings.TrimSpace(fm.Name)
		tmpl.Description = strings.TrimSpace(fm.Description)
		tmpl.Scope = fm.Scope
		tmpl.Exclude = fm.Exclude
		tmpl.Model = fm.Model
		tmpl.AllowedTools = fm.AllowedTools
	}

	if tmpl.Description == "" {
		if m := headingRe.FindStringSubmatch(body); m != nil {
			tmpl.Description = m[1]
		}
	}

	placeholders, err := ScanPlaceholders(body)
	if err != nil {
		line := 0
		var ie *IndexError
		if errors.As(err, &ie) {
			line = lineOf(content, len(content)-len(body)+ie.Offset)
		}
		return nil, &ParseError{Path: path, Line: line, Reason: err.Error(), Err: err}
	}
	tmpl.Usage = usageOf(placeholders)
	for _, entry := range tmpl.Scope {
		if _, err := ScanPlaceholders(entry); err != nil {
			return nil, &ParseError{Path: path, Reason: "scope: " + err.Error(), Err: err}
		}
	}
	tmpl.Slots = buildSlots(hint, tmpl.Usage)

	return tmpl, nil
}

// splitFrontmatter separates a leading --- block from the body. The
// argument-hint line is lifted out before YAML decoding because hints such
// as "[framework] [project-name]" are not valid YAML.
func splitFrontmatter(content []byte) (yamlText []byte, hint, body string, ok bool, err error) {
	first, rest, found := cutLine(content)
	if strings.TrimRight(string(first), " \t\r") != "---" {
		return nil, "", string(content), false, nil
	}
	if !found {
		return nil, "", "", false, fmt.Errorf("unterminated front-matter")
	}

	var kept bytes.Buffer
	for {
		line, next, more := cutLine(rest)
		trimmed := strings.TrimRight(string(line), " \t\r")
		if trimmed == "---" {
			return kept.Bytes(), hint, string(next), true, nil
		}
		if m := hintLineRe.FindStringSubmatch(trimmed); m != nil {
			hint = unquote(strings.TrimSpace(m[1]))
		} else {
			kept.Write(line)
			kept.WriteByte('\n')
		}
		if !more {
			return nil, "", "", false, fmt.Errorf("unterminated front-matter")
		}
		rest = next
	}
}

// cutLine splits off the first line, without its newline.
func cutLine(b []byte) (line, rest []byte, found bool) {
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		return b[:i], b[i+1:], true
	}
	return b, nil, false
}

func unquote(s string) string {
	if len(s) >= 2 {
		switch {
		case s[0] == '"' && s[len(s)-1] == '"':
			if u, err := strconv.Unquote(s); err == nil {
				return u
			}
			return s[1 : len(s)-1]
		case s[0] == '\'' && s[len(s)-1] == '\'':
			return strings.ReplaceAll(s[1:len(s)-1], "''", "'")
		}
	}
	return s
}

// buildSlots names argument positions from the hint's bracket groups.
// "[framework] [project-name]" yields slots framework and project-name. A
// group may carry hint text after a colon: "[framework: vue|dotnet]".
// Positions the body references past the hint get synthesized names.
func buildSlots(hint string, usage Usage) []Slot {
	var slots []Slot
	for i, m := range hintGroupRe.FindAllStringSubmatch(hint, -1) {
		name, text, _ := strings.Cut(m[1], ":")
		slots = append(slots, Slot{Index: i, Name: strings.TrimSpace(name), Hint: strings.TrimSpace(text)})
	}
	if len(slots) == 0 && hint != "" && (usage.All || usage.Positional()) {
		name := "args"
		if usage.Positional() {
			name = "arg0"
		}
		slots = append(slots, Slot{Index: 0, Name: name, Hint: hint})
	}
	for i := len(slots); i < usage.Arity(); i++ {
		slots = append(slots, Slot{Index: i, Name: fmt.Sprintf("arg%d", i)})
	}
	return slots
}

func lineOf(content []byte, offset int) int {
	if offset > len(content) {
		offset = len(content)
	}
	return bytes.Count(content[:offset], []byte("\n")) + 1
}
