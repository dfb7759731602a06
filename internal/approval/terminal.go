package approval

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/CR94168/learn-claude-code-cli/internal/orchestrator"
	"github.com/CR94168/learn-claude-code-cli/internal/plan"
)

// Terminal prompts on a writer and reads answers line by line.
type Terminal struct {
	in  io.Reader
	out io.Writer

	once  sync.Once
	lines chan string
	err   error
}

// NewTerminal creates a terminal channel.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: in, out: out}
}

// start reads input on its own goroutine so a wait can be abandoned when
// the context ends.
func (t *Terminal) start() {
	t.lines = make(chan string)
	go func() {
		defer close(t.lines)
		scanner := bufio.NewScanner(t.in)
		for scanner.Scan() {
			t.lines <- scanner.Text()
		}
		t.err = scanner.Err()
	}()
}

// Decide renders the plan and asks until an answer parses.
func (t *Terminal) Decide(ctx context.Context, snap orchestrator.Snapshot) (orchestrator.Signal, error) {
	t.once.Do(t.start)

	if snap.Plan != nil {
		fmt.Fprintln(t.out, plan.Render(snap.Plan, snap.Previews))
	}
	for {
		fmt.Fprintf(t.out, "%s\n> ", helpText)

		select {
		case <-ctx.Done():
			fmt.Fprintln(t.out)
			return orchestrator.Signal{}, ctx.Err()
		case line, ok := <-t.lines:
			if !ok {
				if t.err != nil {
					return orchestrator.Signal{}, t.err
				}
				return orchestrator.Signal{}, io.EOF
			}
			sig, err := ParseSignal(line)
			if err != nil {
				continue
			}
			return sig, nil
		}
	}
}

// Invalid prints why an answer was refused.
func (t *Terminal) Invalid(err *orchestrator.InvalidSignalError) {
	fmt.Fprintln(t.out, formatInvalid(err))
}
