package plan

import (
	"fmt"
	"strings"
)

// Render formats a plan for review. previews maps task IDs to diff text
// and may be nil.
func Render(p *Plan, previews map[string]string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Plan %s (revision %d) for %s\n", p.ID, p.Iteration, p.Command)
	if p.Summary != "" {
		fmt.Fprintf(&sb, "\n%s\n", p.Summary)
	}

	if len(p.Files) > 0 {
		sb.WriteString("\nFiles:\n")
		for _, f := range p.Files {
			fmt.Fprintf(&sb, "  %-7s %s", f.Action, f.Path)
			if f.Purpose != "" {
				fmt.Fprintf(&sb, "  (%s)", f.Purpose)
			}
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\nTasks:\n")
	for _, t := range p.Tasks {
		fmt.Fprintf(&sb, "  [%s] %s\n", t.ID, t.Title)
		if t.Kind == KindRun {
			fmt.Fprintf(&sb, "       $ %s\n", t.Command)
			sb.WriteString("       (only redirections and file operands are checked against the scope)\n")
		}
		if diff := previews[t.ID]; diff != "" {
			for _, line := range strings.Split(strings.TrimRight(diff, "\n"), "\n") {
				fmt.Fprintf(&sb, "       %s\n", line)
			}
		}
	}

	if len(p.Scope) > 0 {
		fmt.Fprintf(&sb, "\nSuggested scope: %s\n", strings.Join(p.Scope, ", "))
	}
	if len(p.Feedback) > 0 {
		sb.WriteString("\nFeedback so far:\n")
		for _, fb := range p.Feedback {
			fmt.Fprintf(&sb, "  - %s\n", fb)
		}
	}
	return sb.String()
}
