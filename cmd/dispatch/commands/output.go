package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/itchyny/gojq"

	"github.com/CR94168/learn-claude-code-cli/internal/orchestrator"
)

var (
	tagColor   = color.New(color.FgCyan)
	faintColor = color.New(color.FgHiBlack)
	errColor   = color.New(color.FgRed, color.Bold)
)

func stateColor(s orchestrator.State) *color.Color {
	switch s {
	case orchestrator.StateCompleted:
		return color.New(color.FgGreen, color.Bold)
	case orchestrator.StateFailed:
		return errColor
	case orchestrator.StateCancelled:
		return color.New(color.FgYellow)
	default:
		return color.New(color.Reset)
	}
}

// runQuery evaluates a jq filter over v and prints each result. Strings are
// printed raw, everything else as indented JSON.
func runQuery(ctx context.Context, out io.Writer, filter string, v any) error {
	query, err := gojq.Parse(filter)
	if err != nil {
		return fmt.Errorf("query: parse error: %w", err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return fmt.Errorf("query: compile error: %w", err)
	}

	// gojq works on plain JSON values, not structs.
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var input any
	if err := json.Unmarshal(data, &input); err != nil {
		return err
	}

	iter := code.RunWithContext(ctx, input)
	for {
		result, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, ok := result.(error); ok {
			return fmt.Errorf("query: %w", err)
		}
		switch val := result.(type) {
		case string:
			fmt.Fprintln(out, val)
		case nil:
		default:
			b, err := json.MarshalIndent(val, "", "  ")
			if err != nil {
				return fmt.Errorf("query: marshal error: %w", err)
			}
			fmt.Fprintln(out, string(b))
		}
	}
}
