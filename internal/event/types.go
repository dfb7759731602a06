package event

import "time"

// EventType represents the type of event.
type EventType string

const (
	RunStarted       EventType = "run.started"
	RunStateChanged  EventType = "run.state"
	PlanDrafted      EventType = "plan.drafted"
	TaskStarted      EventType = "task.started"
	TaskCompleted    EventType = "task.completed"
	TaskFailed       EventType = "task.failed"
	ScopeDenied      EventType = "scope.denied"
	RegistryReloaded EventType = "registry.reloaded"
)

// Event represents an event to be published.
type Event struct {
	Type EventType `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data"`
}

// RunStartedData is the data for run.started events.
type RunStartedData struct {
	RunID   string `json:"runID"`
	Command string `json:"command"`
	Input   string `json:"input"`
}

// RunStateData is the data for run.state events.
type RunStateData struct {
	RunID   string `json:"runID"`
	Command string `json:"command"`
	From    string `json:"from"`
	To      string `json:"to"`
	Error   string `json:"error,omitempty"`
}

// PlanDraftedData is the data for plan.drafted events.
type PlanDraftedData struct {
	RunID     string `json:"runID"`
	PlanID    string `json:"planID"`
	Iteration int    `json:"iteration"`
	Summary   string `json:"summary"`
	Tasks     int    `json:"tasks"`
}

// TaskData is the data for task.* events.
type TaskData struct {
	RunID  string `json:"runID"`
	TaskID string `json:"taskID"`
	Kind   string `json:"kind"`
	Path   string `json:"path,omitempty"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ScopeDeniedData is the data for scope.denied events.
type ScopeDeniedData struct {
	RunID  string `json:"runID"`
	TaskID string `json:"taskID,omitempty"`
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// RegistryReloadedData is the data for registry.reloaded events.
type RegistryReloadedData struct {
	Templates int      `json:"templates"`
	Errors    []string `json:"errors,omitempty"`
}
