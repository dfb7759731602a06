package commands

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/CR94168/learn-claude-code-cli/internal/orchestrator"
	"github.com/CR94168/learn-claude-code-cli/internal/plan"
)

var (
	runsJSON  bool
	runsQuery string
)

var runsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "Inspect recorded runs",
	Long: `List the runs recorded for this workspace, newest first, or show one run
with its plan and task results.

Examples:
  dispatch runs
  dispatch runs 01JAB3...
  dispatch runs --query '.[] | select(.state == "failed") | .id'`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRuns,
}

func init() {
	runsCmd.Flags().BoolVar(&runsJSON, "json", false, "Print the raw run record")
	runsCmd.Flags().StringVarP(&runsQuery, "query", "q", "", "Filter the run records with a jq expression")
}

func runRuns(cmd *cobra.Command, args []string) error {
	svc, err := openService(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer svc.Close()

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		snap, err := svc.Snapshot(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		if runsQuery != "" {
			return runQuery(cmd.Context(), out, runsQuery, snap)
		}
		if runsJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}
		printRun(cmd, snap)
		return nil
	}

	snaps, err := svc.Runs(cmd.Context())
	if err != nil {
		return err
	}
	if runsQuery != "" {
		return runQuery(cmd.Context(), out, runsQuery, snaps)
	}
	if runsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(snaps)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tCOMMAND\tSTATE\tTASKS\tCREATED\t")
	for _, s := range snaps {
		tasks := 0
		if s.Plan != nil {
			tasks = len(s.Plan.Tasks)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t\n",
			s.ID, s.Command, s.State, tasks, s.CreatedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func printRun(cmd *cobra.Command, snap orchestrator.Snapshot) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:     %s\n", snap.ID)
	if snap.Instruction != nil {
		fmt.Fprintf(out, "Command: %s %s\n", snap.Command, snap.Instruction.Input)
	} else {
		fmt.Fprintf(out, "Command: %s\n", snap.Command)
	}
	fmt.Fprintf(out, "State:   %s\n", snap.State)
	if len(snap.Scope) > 0 {
		fmt.Fprintf(out, "Scope:   %s\n", strings.Join(snap.Scope, ", "))
	}
	for i, fb := range snap.Feedback {
		fmt.Fprintf(out, "Feedback %d: %s\n", i+1, fb)
	}
	if snap.Error != "" {
		fmt.Fprintf(out, "Error:   %s (%s)\n", snap.Error, snap.ErrorKind)
	}
	if snap.Plan != nil {
		fmt.Fprintf(out, "\n%s\n", plan.Render(snap.Plan, nil))
	}
	if len(snap.Tasks) > 0 {
		fmt.Fprintln(out, "Results:")
		for _, t := range snap.Tasks {
			fmt.Fprintf(out, "  %-3s %-9s %s %s", t.TaskID, t.Status, t.Kind, t.Path)
			if t.Error != "" {
				fmt.Fprintf(out, ": %s", t.Error)
			}
			fmt.Fprintln(out)
		}
	}
}
