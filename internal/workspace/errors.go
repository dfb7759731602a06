package workspace

import (
	"errors"
	"fmt"

	"github.com/CR94168/learn-claude-code-cli/internal/plan"
)

// TaskError is returned when a task fails for a reason other than scope.
type TaskError struct {
	TaskID string
	Kind   plan.TaskKind
	Path   string
	Err    error
}

func (e *TaskError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("task %s (%s %s): %v", e.TaskID, e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("task %s (%s): %v", e.TaskID, e.Kind, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// IsTaskError checks if an error is a task execution error.
func IsTaskError(err error) bool {
	var te *TaskError
	return errors.As(err, &te)
}
