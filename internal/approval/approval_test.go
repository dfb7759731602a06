package approval

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CR94168/learn-claude-code-cli/internal/orchestrator"
	"github.com/CR94168/learn-claude-code-cli/internal/plan"
)

func TestParseSignal(t *testing.T) {
	tests := []struct {
		line string
		want orchestrator.Signal
	}{
		{"a", orchestrator.Approve()},
		{" YES ", orchestrator.Approve()},
		{"a 1,3", orchestrator.ApproveSubset("1", "3")},
		{"approve 2 4", orchestrator.ApproveSubset("2", "4")},
		{"a 1, 2", orchestrator.ApproveSubset("1", "2")},
		{"i use tailwind instead", orchestrator.Iterate("use tailwind instead")},
		{"iterate", orchestrator.Iterate("")},
		{"c", orchestrator.Cancel()},
		{"quit", orchestrator.Cancel()},
		{"merge", orchestrator.Signal{Kind: "merge"}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := ParseSignal(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseSignal("   ")
	assert.Error(t, err)
}

func TestScript(t *testing.T) {
	s, err := NewScript("i smaller", "a 1")
	require.NoError(t, err)
	ctx := context.Background()

	sig, err := s.Decide(ctx, orchestrator.Snapshot{})
	require.NoError(t, err)
	assert.Equal(t, orchestrator.SignalIterate, sig.Kind)

	sig, err = s.Decide(ctx, orchestrator.Snapshot{})
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, sig.TaskIDs)

	_, err = s.Decide(ctx, orchestrator.Snapshot{})
	assert.ErrorIs(t, err, ErrNoSignal)

	_, err = NewScript("")
	assert.Error(t, err)
}

func TestAuto(t *testing.T) {
	sig, err := Auto{}.Decide(context.Background(), orchestrator.Snapshot{})
	require.NoError(t, err)
	assert.Equal(t, orchestrator.SignalApprove, sig.Kind)
}

func testSnapshot() orchestrator.Snapshot {
	return orchestrator.Snapshot{
		Plan: &plan.Plan{
			Summary: "Add dark mode",
			Tasks:   []plan.Task{{ID: "1", Title: "Create theme.ts", Kind: plan.KindCreate, Path: "theme.ts"}},
		},
	}
}

func TestTerminalSkipsBlankLines(t *testing.T) {
	var out bytes.Buffer
	term := NewTerminal(strings.NewReader("\n\na 1\n"), &out)

	sig, err := term.Decide(context.Background(), testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, orchestrator.ApproveSubset("1"), sig)
	assert.Contains(t, out.String(), "Add dark mode")
	assert.Equal(t, 3, strings.Count(out.String(), helpText))
}

func TestTerminalEOF(t *testing.T) {
	term := NewTerminal(strings.NewReader(""), io.Discard)
	_, err := term.Decide(context.Background(), testSnapshot())
	assert.ErrorIs(t, err, io.EOF)
}

func TestTerminalCancelledWait(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	term := NewTerminal(r, io.Discard)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := term.Decide(ctx, testSnapshot())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTerminalInvalid(t *testing.T) {
	var out bytes.Buffer
	term := NewTerminal(strings.NewReader(""), &out)
	term.Invalid(&orchestrator.InvalidSignalError{Signal: orchestrator.ApproveSubset("9"), Reason: "unknown task IDs 9"})
	assert.Contains(t, out.String(), "unknown task IDs 9")
}
