// Package plan defines the reviewable change plan an invocation drafts
// before anything touches the workspace, and the drafters that produce it.
package plan

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// State is the review state of one plan revision.
type State string

const (
	StateDraft    State = "draft"
	StateApproved State = "approved"
	StateRejected State = "rejected"
	StateIterated State = "iterated"
)

// TaskKind is what a task does to the workspace.
type TaskKind string

const (
	KindCreate TaskKind = "create"
	KindModify TaskKind = "modify"
	KindEdit   TaskKind = "edit"
	KindDelete TaskKind = "delete"
	KindMkdir  TaskKind = "mkdir"
	KindRun    TaskKind = "run"
)

// Valid reports whether k is a known kind.
func (k TaskKind) Valid() bool {
	switch k {
	case KindCreate, KindModify, KindEdit, KindDelete, KindMkdir, KindRun:
		return true
	}
	return false
}

// Task is one ordered unit of apply work.
type Task struct {
	ID      string   `json:"id" yaml:"id"`
	Title   string   `json:"title" yaml:"title"`
	Kind    TaskKind `json:"kind" yaml:"kind"`
	Path    string   `json:"path,omitempty" yaml:"path"`
	Purpose string   `json:"purpose,omitempty" yaml:"purpose"`
	// Content is the full file body for create and modify.
	Content string `json:"content,omitempty" yaml:"content"`
	// Old and New are the exact replacement for edit.
	Old string `json:"old,omitempty" yaml:"old"`
	New string `json:"new,omitempty" yaml:"new"`
	// Command is the shell line for run. It executes with the workspace
	// base as its directory. Redirections and the file operands of known
	// mutating programs are checked against the scope; shells and
	// interpreters are refused unless nested programs are allowed.
	Command string `json:"command,omitempty" yaml:"command"`
}

// FileChange is a file-level entry of the plan summary.
type FileChange struct {
	Path    string `json:"path"`
	Action  string `json:"action"`
	Purpose string `json:"purpose,omitempty"`
}

// Plan is one drafted revision.
type Plan struct {
	ID        string       `json:"id"`
	Iteration int          `json:"iteration"`
	Command   string       `json:"command"`
	Summary   string       `json:"summary"`
	Files     []FileChange `json:"files"`
	Tasks     []Task       `json:"tasks"`
	// Scope is the drafter's suggested boundary. It can only narrow the
	// template scope.
	Scope     []string  `json:"scope,omitempty"`
	Feedback  []string  `json:"feedback,omitempty"`
	State     State     `json:"state"`
	Drafter   string    `json:"drafter,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Task returns the task with id.
func (p *Plan) Task(id string) (*Task, bool) {
	for i := range p.Tasks {
		if p.Tasks[i].ID == id {
			return &p.Tasks[i], true
		}
	}
	return nil, false
}

// TaskIDs returns every task ID in plan order.
func (p *Plan) TaskIDs() []string {
	ids := make([]string, len(p.Tasks))
	for i, t := range p.Tasks {
		ids[i] = t.ID
	}
	return ids
}

// Select returns the tasks named by ids, in plan order, and the ids that
// name no task.
func (p *Plan) Select(ids []string) ([]Task, []string) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var selected []Task
	for _, t := range p.Tasks {
		if want[t.ID] {
			selected = append(selected, t)
			delete(want, t.ID)
		}
	}
	var unknown []string
	for _, id := range ids {
		if want[id] {
			unknown = append(unknown, id)
			delete(want, id)
		}
	}
	return selected, unknown
}

// Clone returns a deep copy.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	c := *p
	c.Files = append([]FileChange(nil), p.Files...)
	c.Tasks = append([]Task(nil), p.Tasks...)
	c.Scope = append([]string(nil), p.Scope...)
	c.Feedback = append([]string(nil), p.Feedback...)
	return &c
}

// Prepare stamps a freshly drafted plan with its identity and the request
// context, numbers its tasks and derives the file list. It returns an error
// when the plan is not executable.
func Prepare(p *Plan, req Request, drafter string) error {
	if p == nil {
		return fmt.Errorf("drafter returned no plan")
	}
	p.ID = ulid.Make().String()
	p.Iteration = req.Iteration
	p.Feedback = append([]string(nil), req.Feedback...)
	p.State = StateDraft
	p.Drafter = drafter
	p.CreatedAt = time.Now()
	if req.Instruction != nil {
		p.Command = req.Instruction.Command
	}

	if len(p.Tasks) == 0 {
		return fmt.Errorf("plan has no tasks")
	}

	seen := make(map[string]bool, len(p.Tasks))
	for i := range p.Tasks {
		t := &p.Tasks[i]
		if t.ID == "" {
			t.ID = strconv.Itoa(i + 1)
		}
		if seen[t.ID] {
			return fmt.Errorf("duplicate task id %q", t.ID)
		}
		seen[t.ID] = true

		t.Kind = TaskKind(strings.ToLower(strings.TrimSpace(string(t.Kind))))
		if err := validateTask(t); err != nil {
			return fmt.Errorf("task %s: %w", t.ID, err)
		}
		if t.Title == "" {
			t.Title = defaultTitle(t)
		}
	}

	if len(p.Files) == 0 {
		p.Files = filesOf(p.Tasks)
	}
	return nil
}

func validateTask(t *Task) error {
	if !t.Kind.Valid() {
		return fmt.Errorf("unknown kind %q", t.Kind)
	}
	switch t.Kind {
	case KindRun:
		if strings.TrimSpace(t.Command) == "" {
			return fmt.Errorf("run task needs a command")
		}
	case KindEdit:
		if t.Path == "" {
			return fmt.Errorf("edit task needs a path")
		}
		if t.Old == "" {
			return fmt.Errorf("edit task needs the text to replace")
		}
	default:
		if t.Path == "" {
			return fmt.Errorf("%s task needs a path", t.Kind)
		}
	}
	return nil
}

func defaultTitle(t *Task) string {
	if t.Kind == KindRun {
		return "Run " + t.Command
	}
	return strings.ToUpper(string(t.Kind[:1])) + string(t.Kind[1:]) + " " + t.Path
}

func filesOf(tasks []Task) []FileChange {
	var files []FileChange
	seen := map[string]bool{}
	for _, t := range tasks {
		if t.Path == "" || seen[t.Path] {
			continue
		}
		seen[t.Path] = true
		action := "modify"
		switch t.Kind {
		case KindCreate, KindMkdir:
			action = "create"
		case KindDelete:
			action = "delete"
		}
		files = append(files, FileChange{Path: t.Path, Action: action, Purpose: t.Purpose})
	}
	return files
}
