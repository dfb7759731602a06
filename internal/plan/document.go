package plan

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// planBlockRe matches a fenced ```plan block. The fence must start a line.
var planBlockRe = regexp.MustCompile("(?ms)^```plan[ \\t]*\\r?\\n(.*?)^```[ \\t]*\\r?$")

// RequestDir is where the fallback plan records an instruction, relative to
// the first scope root.
const RequestDir = ".dispatch/requests"

// planDocument is the authored shape of a plan, in a ```plan block or in a
// model reply.
type planDocument struct {
	Summary string   `json:"summary" yaml:"summary"`
	Scope   []string `json:"scope" yaml:"scope"`
	Tasks   []Task   `json:"tasks" yaml:"tasks"`
}

func (d *planDocument) plan() *Plan {
	return &Plan{
		Summary: strings.TrimSpace(d.Summary),
		Scope:   d.Scope,
		Tasks:   d.Tasks,
	}
}

// DocumentDrafter drafts without a model. When the bound instruction
// contains a ```plan block of YAML, that block is the plan. Otherwise the
// plan is a single task that records the instruction, with any review
// feedback, as a markdown request file inside the scope.
type DocumentDrafter struct{}

// NewDocumentDrafter creates a document drafter.
func NewDocumentDrafter() *DocumentDrafter { return &DocumentDrafter{} }

func (d *DocumentDrafter) Name() string { return "document" }

func (d *DocumentDrafter) Draft(ctx context.Context, req Request) (*Plan, error) {
	if req.Instruction == nil {
		return nil, fmt.Errorf("no instruction")
	}
	text := req.Instruction.Text

	if m := planBlockRe.FindStringSubmatch(text); m != nil {
		var doc planDocument
		if err := yaml.Unmarshal([]byte(m[1]), &doc); err != nil {
			return nil, fmt.Errorf("invalid plan block: %w", err)
		}
		p := doc.plan()
		if p.Summary == "" {
			p.Summary = summaryOf(req, planBlockRe.ReplaceAllString(text, ""))
		}
		if len(req.Feedback) > 0 {
			p.Summary = fmt.Sprintf("%s (revision %d)", p.Summary, req.Iteration)
		}
		return p, nil
	}

	return d.requestPlan(req), nil
}

func (d *DocumentDrafter) requestPlan(req Request) *Plan {
	inst := req.Instruction
	root := ""
	if len(inst.Scope) > 0 {
		root = filepath.ToSlash(inst.Scope[0])
	}
	name := strings.NewReplacer(":", "-", "/", "-", " ", "-").Replace(inst.Command)
	if name == "" {
		name = "request"
	}
	iteration := req.Iteration
	if iteration < 1 {
		iteration = 1
	}
	target := path.Join(root, RequestDir, fmt.Sprintf("%s-%d.md", name, iteration))

	var body strings.Builder
	fmt.Fprintf(&body, "# %s\n\n", inst.Command)
	if inst.Input != "" {
		fmt.Fprintf(&body, "Input: %s\n\n", inst.Input)
	}
	body.WriteString(inst.Text)
	if !strings.HasSuffix(inst.Text, "\n") {
		body.WriteString("\n")
	}
	if len(req.Feedback) > 0 {
		body.WriteString("\n## Feedback\n\n")
		for _, fb := range req.Feedback {
			fmt.Fprintf(&body, "- %s\n", fb)
		}
	}

	return &Plan{
		Summary: summaryOf(req, inst.Text),
		Tasks: []Task{{
			Title:   "Record request " + path.Base(target),
			Kind:    KindCreate,
			Path:    target,
			Purpose: "Capture the bound instruction for follow-up work",
			Content: body.String(),
		}},
	}
}

// summaryOf picks the template description, else the first non-empty line
// of text.
func summaryOf(req Request, text string) string {
	if req.Template != nil && req.Template.Description != "" {
		return req.Template.Description
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#"))
		if line != "" {
			return line
		}
	}
	return "Run " + req.Instruction.Command
}
