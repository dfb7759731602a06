package plan

import (
	"context"
	"errors"
	"fmt"

	"github.com/CR94168/learn-claude-code-cli/internal/binder"
	"github.com/CR94168/learn-claude-code-cli/internal/template"
)

// Request is what a drafter sees: the bound instruction plus the review
// history of the run.
type Request struct {
	RunID       string
	Template    *template.Template
	Instruction *binder.Instruction
	// Iteration starts at 1 and increases with every Iterate signal.
	Iteration int
	// Feedback holds every Iterate text so far, oldest first.
	Feedback []string
	// Previous is the plan the feedback was given on.
	Previous *Plan
}

// Drafter turns a bound instruction into a plan. Drafters must not touch
// the workspace.
type Drafter interface {
	Name() string
	Draft(ctx context.Context, req Request) (*Plan, error)
}

// DraftError is returned when a drafter fails or its plan is unusable.
type DraftError struct {
	Drafter string
	Err     error
}

func (e *DraftError) Error() string {
	return fmt.Sprintf("draft (%s): %v", e.Drafter, e.Err)
}

func (e *DraftError) Unwrap() error { return e.Err }

// IsDraftError checks if an error is a drafting failure.
func IsDraftError(err error) bool {
	var de *DraftError
	return errors.As(err, &de)
}

// Draft runs d and prepares the result. Every failure is a *DraftError.
func Draft(ctx context.Context, d Drafter, req Request) (*Plan, error) {
	p, err := d.Draft(ctx, req)
	if err != nil {
		var de *DraftError
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, &DraftError{Drafter: d.Name(), Err: err}
	}
	if err := Prepare(p, req, d.Name()); err != nil {
		return nil, &DraftError{Drafter: d.Name(), Err: err}
	}
	return p, nil
}
