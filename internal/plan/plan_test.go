package plan

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CR94168/learn-claude-code-cli/internal/binder"
	"github.com/CR94168/learn-claude-code-cli/internal/template"
)

func instruction(command, text string, scope ...string) *binder.Instruction {
	return &binder.Instruction{Command: command, Text: text, Input: "add dark mode toggle", Scope: scope}
}

func TestDocumentDrafterFallback(t *testing.T) {
	req := Request{
		Template:    &template.Template{Name: "add-feature", Description: "Add a feature"},
		Instruction: instruction("add-feature", "Implement add dark mode toggle"),
		Iteration:   1,
	}

	p, err := Draft(context.Background(), NewDocumentDrafter(), req)
	require.NoError(t, err)

	assert.Equal(t, "Add a feature", p.Summary)
	require.Len(t, p.Tasks, 1)
	task := p.Tasks[0]
	assert.Equal(t, "1", task.ID)
	assert.Equal(t, KindCreate, task.Kind)
	assert.Equal(t, ".dispatch/requests/add-feature-1.md", task.Path)
	assert.Contains(t, task.Content, "Implement add dark mode toggle")

	require.Len(t, p.Files, 1)
	assert.Equal(t, FileChange{Path: task.Path, Action: "create", Purpose: task.Purpose}, p.Files[0])
	assert.Equal(t, StateDraft, p.State)
	assert.Equal(t, "document", p.Drafter)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "add-feature", p.Command)
}

func TestDocumentDrafterFallbackUsesScopeAndFeedback(t *testing.T) {
	req := Request{
		Instruction: instruction("git:commit", "# Commit work\nbody", "apps/shop/"),
		Iteration:   3,
		Feedback:    []string{"use conventional commits", "mention the ticket"},
	}

	p, err := Draft(context.Background(), NewDocumentDrafter(), req)
	require.NoError(t, err)

	assert.Equal(t, "Commit work", p.Summary)
	assert.Equal(t, "apps/shop/.dispatch/requests/git-commit-3.md", p.Tasks[0].Path)
	assert.Contains(t, p.Tasks[0].Content, "## Feedback\n\n- use conventional commits\n- mention the ticket\n")
	assert.Equal(t, req.Feedback, p.Feedback)
	assert.Equal(t, 3, p.Iteration)
}

func TestDocumentDrafterPlanBlock(t *testing.T) {
	text := "Scaffold the app.\n\n" +
		"```plan\n" +
		"summary: Scaffold shop\n" +
		"scope: [apps/shop/]\n" +
		"tasks:\n" +
		"  - kind: mkdir\n" +
		"    path: apps/shop\n" +
		"  - title: Write main\n" +
		"    kind: create\n" +
		"    path: apps/shop/main.go\n" +
		"    content: |\n" +
		"      package main\n" +
		"  - kind: run\n" +
		"    command: echo done > apps/shop/DONE\n" +
		"```\n"

	p, err := Draft(context.Background(), NewDocumentDrafter(), Request{Instruction: instruction("scaffold", text), Iteration: 1})
	require.NoError(t, err)

	assert.Equal(t, "Scaffold shop", p.Summary)
	assert.Equal(t, []string{"apps/shop/"}, p.Scope)
	require.Len(t, p.Tasks, 3)
	assert.Equal(t, []string{"1", "2", "3"}, p.TaskIDs())
	assert.Equal(t, "Mkdir apps/shop", p.Tasks[0].Title)
	assert.Equal(t, "package main\n", p.Tasks[1].Content)
	assert.Equal(t, "Run echo done > apps/shop/DONE", p.Tasks[2].Title)
	assert.Len(t, p.Files, 2)
}

func TestDocumentDrafterInvalidPlanBlock(t *testing.T) {
	text := "```plan\ntasks: [unclosed\n```\n"
	_, err := Draft(context.Background(), NewDocumentDrafter(), Request{Instruction: instruction("x", text), Iteration: 1})

	var de *DraftError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "document", de.Drafter)
	assert.True(t, IsDraftError(err))
}

func TestPrepareValidation(t *testing.T) {
	tests := []struct {
		name  string
		tasks []Task
		want  string
	}{
		{"no tasks", nil, "no tasks"},
		{"unknown kind", []Task{{Kind: "rename", Path: "a"}}, "unknown kind"},
		{"missing path", []Task{{Kind: KindCreate}}, "needs a path"},
		{"edit without old", []Task{{Kind: KindEdit, Path: "a", New: "x"}}, "text to replace"},
		{"run without command", []Task{{Kind: KindRun}}, "needs a command"},
		{"duplicate id", []Task{{ID: "a", Kind: KindDelete, Path: "x"}, {ID: "a", Kind: KindDelete, Path: "y"}}, "duplicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Prepare(&Plan{Tasks: tt.tasks}, Request{Iteration: 1}, "test")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPrepareNormalizesKind(t *testing.T) {
	p := &Plan{Tasks: []Task{{Kind: " Create ", Path: "a.txt"}}}
	require.NoError(t, Prepare(p, Request{Iteration: 1}, "test"))
	assert.Equal(t, KindCreate, p.Tasks[0].Kind)
}

func TestSelect(t *testing.T) {
	p := &Plan{Tasks: []Task{{ID: "1"}, {ID: "2"}, {ID: "3"}}}

	selected, unknown := p.Select([]string{"3", "1", "9"})
	require.Len(t, selected, 2)
	assert.Equal(t, "1", selected[0].ID)
	assert.Equal(t, "3", selected[1].ID)
	assert.Equal(t, []string{"9"}, unknown)
}

func TestCloneIsDeep(t *testing.T) {
	p := &Plan{Tasks: []Task{{ID: "1"}}, Feedback: []string{"a"}}
	c := p.Clone()
	c.Tasks[0].ID = "changed"
	c.Feedback[0] = "b"
	assert.Equal(t, "1", p.Tasks[0].ID)
	assert.Equal(t, "a", p.Feedback[0])
}

func TestRender(t *testing.T) {
	p := &Plan{ID: "P", Iteration: 2, Command: "add-feature", Summary: "Sum",
		Tasks:    []Task{{ID: "1", Title: "Create a", Kind: KindCreate, Path: "a"}, {ID: "2", Title: "Run", Kind: KindRun, Command: "make"}},
		Files:    []FileChange{{Path: "a", Action: "create"}},
		Feedback: []string{"more tests"},
	}
	out := Render(p, map[string]string{"1": "+hello\n"})
	assert.Contains(t, out, "revision 2")
	assert.Contains(t, out, "[1] Create a")
	assert.Contains(t, out, "+hello")
	assert.Contains(t, out, "$ make")
	assert.Contains(t, out, "only redirections and file operands are checked")
	assert.Contains(t, out, "more tests")
}

// fakeChatModel is a scripted eino chat model.
type fakeChatModel struct {
	reply    string
	err      error
	received [][]*schema.Message
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.received = append(f.received, input)
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func TestModelDrafter(t *testing.T) {
	fake := &fakeChatModel{reply: "Here is the plan:\n```json\n" +
		`{"summary":"Add toggle","tasks":[{"kind":"edit","path":"src/app.ts","old":"dark: false","new":"dark: true"}]}` +
		"\n```\nLet me know."}
	d := NewModelDrafter(fake, "anthropic/claude", 2048)

	req := Request{
		Instruction: instruction("add-feature", "Implement add dark mode toggle", "src/"),
		Iteration:   2,
		Feedback:    []string{"keep it small"},
		Previous:    &Plan{Summary: "old plan", Tasks: []Task{{ID: "1", Kind: KindCreate, Path: "src/x"}}},
	}
	p, err := Draft(context.Background(), d, req)
	require.NoError(t, err)

	assert.Equal(t, "Add toggle", p.Summary)
	assert.Equal(t, "model:anthropic/claude", p.Drafter)
	require.Len(t, p.Tasks, 1)
	assert.Equal(t, KindEdit, p.Tasks[0].Kind)

	require.Len(t, fake.received, 1)
	msgs := fake.received[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, schema.System, msgs[0].Role)
	user := msgs[1].Content
	assert.Contains(t, user, "Allowed scope: src/")
	assert.Contains(t, user, "Implement add dark mode toggle")
	assert.Contains(t, user, "old plan")
	assert.Contains(t, user, "1. keep it small")
}

func TestModelDrafterErrors(t *testing.T) {
	req := Request{Instruction: instruction("x", "do"), Iteration: 1}

	_, err := Draft(context.Background(), NewModelDrafter(&fakeChatModel{err: errors.New("rate limited")}, "m", 0), req)
	var de *DraftError
	require.ErrorAs(t, err, &de)
	assert.Contains(t, err.Error(), "rate limited")

	_, err = Draft(context.Background(), NewModelDrafter(&fakeChatModel{reply: "I cannot help"}, "m", 0), req)
	require.ErrorAs(t, err, &de)
	assert.Contains(t, err.Error(), "not a plan")

	_, err = Draft(context.Background(), NewModelDrafter(&fakeChatModel{reply: `{"summary":"empty","tasks":[]}`}, "m", 0), req)
	require.ErrorAs(t, err, &de)
	assert.Contains(t, err.Error(), "no tasks")
}

func TestParseReplyBare(t *testing.T) {
	doc, err := parseReply(`  {"summary":"s","tasks":[{"kind":"delete","path":"x"}]}  `)
	require.NoError(t, err)
	assert.Equal(t, "s", doc.Summary)
	assert.True(t, strings.HasPrefix(string(doc.Tasks[0].Kind), "delete"))
}
