package orchestrator

import (
	"time"

	"github.com/CR94168/learn-claude-code-cli/internal/binder"
	"github.com/CR94168/learn-claude-code-cli/internal/plan"
	"github.com/CR94168/learn-claude-code-cli/internal/workspace"
)

// TaskStatus is the outcome of one approved task.
type TaskStatus string

const (
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskAborted   TaskStatus = "aborted"
)

// TaskRecord is one entry of the task log.
type TaskRecord struct {
	TaskID string         `json:"taskID"`
	Title  string         `json:"title,omitempty"`
	Kind   plan.TaskKind  `json:"kind"`
	Path   string         `json:"path,omitempty"`
	Status TaskStatus     `json:"status"`
	Output string         `json:"output,omitempty"`
	Error  string         `json:"error,omitempty"`
	Diff   workspace.Diff `json:"diff"`
}

// Snapshot is a read-only copy of a run.
type Snapshot struct {
	ID          string              `json:"id"`
	Command     string              `json:"command"`
	Instruction *binder.Instruction `json:"instruction"`
	State       State               `json:"state"`
	Plan        *plan.Plan          `json:"plan,omitempty"`
	// History holds earlier plan revisions, oldest first.
	History  []*plan.Plan      `json:"history,omitempty"`
	Feedback []string          `json:"feedback,omitempty"`
	Scope    []string          `json:"scope,omitempty"`
	Exclude  []string          `json:"exclude,omitempty"`
	Previews map[string]string `json:"previews,omitempty"`
	Tasks    []TaskRecord      `json:"tasks,omitempty"`
	// Completed is the committed prefix of the approved tasks.
	Completed []string `json:"completed,omitempty"`
	Aborted   []string `json:"aborted,omitempty"`
	Error     string   `json:"error,omitempty"`
	ErrorKind string   `json:"errorKind,omitempty"`

	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}
