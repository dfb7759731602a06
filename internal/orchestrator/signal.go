package orchestrator

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRunFinished is returned for a signal other than Cancel sent to a run in
// a terminal state.
var ErrRunFinished = errors.New("run already finished")

// SignalKind is the kind of an approval signal.
type SignalKind string

const (
	SignalApprove       SignalKind = "approve"
	SignalApproveSubset SignalKind = "approve_subset"
	SignalIterate       SignalKind = "iterate"
	SignalCancel        SignalKind = "cancel"
)

// Signal is the decision an approval channel delivers for a drafted plan.
type Signal struct {
	Kind SignalKind `json:"kind"`
	// TaskIDs restricts ApproveSubset to the named tasks.
	TaskIDs []string `json:"taskIDs,omitempty"`
	// Feedback is the Iterate text for the next draft.
	Feedback string `json:"feedback,omitempty"`
}

// Approve applies the whole plan.
func Approve() Signal { return Signal{Kind: SignalApprove} }

// ApproveSubset applies only the named tasks, in plan order.
func ApproveSubset(ids ...string) Signal {
	return Signal{Kind: SignalApproveSubset, TaskIDs: ids}
}

// Iterate sends the plan back to drafting with feedback.
func Iterate(feedback string) Signal {
	return Signal{Kind: SignalIterate, Feedback: feedback}
}

// Cancel terminates the run without side effects.
func Cancel() Signal { return Signal{Kind: SignalCancel} }

func (s Signal) String() string {
	switch s.Kind {
	case SignalApproveSubset:
		return fmt.Sprintf("%s(%s)", s.Kind, strings.Join(s.TaskIDs, ","))
	case SignalIterate:
		return fmt.Sprintf("%s(%q)", s.Kind, s.Feedback)
	}
	return string(s.Kind)
}

// InvalidSignalError is returned for a malformed signal. The run stays in
// AwaitingApproval.
type InvalidSignalError struct {
	Signal Signal
	Reason string
}

func (e *InvalidSignalError) Error() string {
	return fmt.Sprintf("invalid approval signal %s: %s", e.Signal, e.Reason)
}

// IsInvalidSignal checks if an error is an invalid approval signal.
func IsInvalidSignal(err error) bool {
	var ie *InvalidSignalError
	return errors.As(err, &ie)
}
