// Package approval provides the channels that present a drafted plan and
// deliver the approval signal for it.
package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/CR94168/learn-claude-code-cli/internal/orchestrator"
)

// ErrNoSignal is returned by a Script that has run out of signals.
var ErrNoSignal = errors.New("no approval signal left")

// Auto approves every plan it is shown.
type Auto struct{}

// Decide always approves.
func (Auto) Decide(ctx context.Context, snap orchestrator.Snapshot) (orchestrator.Signal, error) {
	return orchestrator.Approve(), nil
}

// Script replays a fixed list of signals.
type Script struct {
	Signals []orchestrator.Signal
	// Refused collects the signals the run did not accept.
	Refused []*orchestrator.InvalidSignalError
}

// NewScript parses lines in the terminal syntax into a Script.
func NewScript(lines ...string) (*Script, error) {
	s := &Script{}
	for _, line := range lines {
		sig, err := ParseSignal(line)
		if err != nil {
			return nil, err
		}
		s.Signals = append(s.Signals, sig)
	}
	return s, nil
}

// Decide returns the next signal.
func (s *Script) Decide(ctx context.Context, snap orchestrator.Snapshot) (orchestrator.Signal, error) {
	if err := ctx.Err(); err != nil {
		return orchestrator.Signal{}, err
	}
	if len(s.Signals) == 0 {
		return orchestrator.Signal{}, ErrNoSignal
	}
	sig := s.Signals[0]
	s.Signals = s.Signals[1:]
	return sig, nil
}

// Invalid records a refused signal.
func (s *Script) Invalid(err *orchestrator.InvalidSignalError) {
	s.Refused = append(s.Refused, err)
}

// ParseSignal reads one answer in the terminal syntax:
//
//	a | approve | y | yes      approve every task
//	a 1,3 | approve 1 3        approve the listed tasks
//	i <feedback> | iterate ... redraft with feedback
//	c | cancel | n | no | q    cancel
//
// Unrecognized words are returned as a signal of that kind so the run can
// refuse it.
func ParseSignal(line string) (orchestrator.Signal, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return orchestrator.Signal{}, errors.New("empty answer")
	}

	word, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(word) {
	case "a", "approve", "y", "yes":
		if rest == "" {
			return orchestrator.Approve(), nil
		}
		ids := strings.FieldsFunc(rest, func(r rune) bool { return r == ',' || r == ' ' })
		return orchestrator.ApproveSubset(ids...), nil
	case "i", "iterate":
		return orchestrator.Iterate(rest), nil
	case "c", "cancel", "n", "no", "q", "quit":
		return orchestrator.Cancel(), nil
	}
	return orchestrator.Signal{Kind: orchestrator.SignalKind(strings.ToLower(word))}, nil
}

// helpText is shown under every plan.
const helpText = "[a]pprove all, a <ids> approve some (a 1,3), i <feedback> iterate, [c]ancel"

func formatInvalid(err *orchestrator.InvalidSignalError) string {
	return fmt.Sprintf("Not accepted: %s", err.Reason)
}
