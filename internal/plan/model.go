package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/CR94168/learn-claude-code-cli/internal/logging"
)

const systemPrompt = `You plan changes to a software workspace. You never change files yourself.

Reply with a single JSON object and nothing else:

{
  "summary": "one sentence describing the change",
  "scope": ["optional/narrower/root/"],
  "tasks": [
    {"title": "...", "kind": "create|modify|edit|delete|mkdir|run", "path": "relative/path",
     "purpose": "...", "content": "full file body for create and modify",
     "old": "exact text to replace (edit)", "new": "replacement (edit)",
     "command": "shell line (run)"}
  ]
}

Rules:
- Paths are relative to the workspace root and must stay inside the allowed scope.
- Tasks run in the order listed.
- Prefer edit over modify for small changes to existing files.`

var jsonFenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)\\n```")

// ModelDrafter asks a chat model for the plan.
type ModelDrafter struct {
	model     model.BaseChatModel
	name      string
	maxTokens int
}

// NewModelDrafter creates a drafter backed by chatModel. name identifies the
// model in plans and logs, e.g. "anthropic/claude-sonnet-4-20250514".
func NewModelDrafter(chatModel model.BaseChatModel, name string, maxTokens int) *ModelDrafter {
	return &ModelDrafter{model: chatModel, name: name, maxTokens: maxTokens}
}

func (d *ModelDrafter) Name() string { return "model:" + d.name }

func (d *ModelDrafter) Draft(ctx context.Context, req Request) (*Plan, error) {
	if req.Instruction == nil {
		return nil, fmt.Errorf("no instruction")
	}

	messages := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(userPrompt(req)),
	}

	var opts []model.Option
	if d.maxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(d.maxTokens))
	}

	logging.Debug().
		Str("drafter", d.name).
		Str("runID", req.RunID).
		Int("iteration", req.Iteration).
		Msg("requesting plan from model")

	reply, err := d.model.Generate(ctx, messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	if reply == nil {
		return nil, fmt.Errorf("model returned no message")
	}

	doc, err := parseReply(reply.Content)
	if err != nil {
		return nil, err
	}
	return doc.plan(), nil
}

func userPrompt(req Request) string {
	inst := req.Instruction
	var sb strings.Builder

	fmt.Fprintf(&sb, "Command: %s\n", inst.Command)
	if len(inst.Scope) > 0 {
		fmt.Fprintf(&sb, "Allowed scope: %s\n", strings.Join(inst.Scope, ", "))
	} else {
		sb.WriteString("Allowed scope: the whole workspace\n")
	}
	if len(inst.Exclude) > 0 {
		fmt.Fprintf(&sb, "Never touch: %s\n", strings.Join(inst.Exclude, ", "))
	}
	sb.WriteString("\nInstruction:\n")
	sb.WriteString(inst.Text)
	sb.WriteString("\n")

	if req.Previous != nil {
		prev, err := json.MarshalIndent(planDocument{
			Summary: req.Previous.Summary,
			Scope:   req.Previous.Scope,
			Tasks:   req.Previous.Tasks,
		}, "", "  ")
		if err == nil {
			sb.WriteString("\nPrevious plan:\n")
			sb.Write(prev)
			sb.WriteString("\n")
		}
	}
	if len(req.Feedback) > 0 {
		sb.WriteString("\nReviewer feedback, oldest first. Address all of it:\n")
		for i, fb := range req.Feedback {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, fb)
		}
	}
	return sb.String()
}

// parseReply extracts the plan object from a model reply. The object may be
// bare, fenced, or surrounded by prose.
func parseReply(content string) (*planDocument, error) {
	candidates := []string{strings.TrimSpace(content)}
	if m := jsonFenceRe.FindStringSubmatch(content); m != nil {
		candidates = append(candidates, m[1])
	}
	if start, end := strings.Index(content, "{"), strings.LastIndex(content, "}"); start >= 0 && end > start {
		candidates = append(candidates, content[start:end+1])
	}

	var lastErr error
	for _, c := range candidates {
		var doc planDocument
		if err := json.Unmarshal([]byte(c), &doc); err != nil {
			lastErr = err
			continue
		}
		return &doc, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("empty reply")
	}
	return nil, fmt.Errorf("model reply is not a plan: %w", lastErr)
}
