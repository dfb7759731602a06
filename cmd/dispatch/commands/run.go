package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/CR94168/learn-claude-code-cli/internal/approval"
	"github.com/CR94168/learn-claude-code-cli/internal/event"
	"github.com/CR94168/learn-claude-code-cli/internal/orchestrator"
	"github.com/CR94168/learn-claude-code-cli/internal/plan"
	"github.com/CR94168/learn-claude-code-cli/pkg/types"
)

var (
	runYes      bool
	runPlanOnly bool
)

var runCmd = &cobra.Command{
	Use:   "run <command> [args...]",
	Short: "Run a command: draft a plan, approve it, apply it",
	Long: `Run a command template against the workspace. The drafted plan is shown
for review and nothing is written until it is approved.

At the prompt:
  a            approve every task
  a 1,3        approve only tasks 1 and 3
  i <feedback> draft a new plan with the feedback
  c            cancel

Exit status is 0 when the run completes, 1 when it fails and 2 when it is
cancelled.

Examples:
  dispatch run add-feature "add dark mode toggle"
  dispatch run create-project vue shop-front --yes
  dispatch run fix-issue 123 --plan-only`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVarP(&runYes, "yes", "y", false, "Approve the first plan without asking")
	runCmd.Flags().BoolVar(&runPlanOnly, "plan-only", false, "Print the drafted plan and stop")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := openService(ctx, false)
	if err != nil {
		return err
	}
	defer svc.Close()

	out := cmd.OutOrStdout()
	unsubscribe := svc.Bus().SubscribeAll(progressPrinter(out))
	defer unsubscribe()

	run, err := svc.Start(ctx, requestFrom(args))
	if run == nil {
		return err
	}
	if err != nil {
		return finish(out, run)
	}

	if runPlanOnly {
		snap := run.Snapshot()
		fmt.Fprintln(out, plan.Render(snap.Plan, snap.Previews))
		if err := run.Signal(context.WithoutCancel(ctx), orchestrator.Cancel()); err != nil {
			return err
		}
		return nil
	}

	var ch orchestrator.Channel
	if runYes || autoApprove(svc.Config().Approval) {
		snap := run.Snapshot()
		fmt.Fprintln(out, plan.Render(snap.Plan, snap.Previews))
		ch = approval.Auto{}
	} else {
		ch = approval.NewTerminal(cmd.InOrStdin(), out)
	}

	if err := run.Await(ctx, ch); err != nil && run.State() == orchestrator.StateAwaitingApproval {
		fmt.Fprintf(out, "\n%v\n", err)
		if err := run.Signal(context.WithoutCancel(ctx), orchestrator.Cancel()); err != nil {
			return err
		}
	}
	return finish(out, run)
}

func autoApprove(cfg *types.ApprovalConfig) bool {
	return cfg != nil && cfg.AutoApprove
}

// finish prints the outcome and maps the final state to an exit code.
func finish(out io.Writer, run *orchestrator.Run) error {
	snap := run.Snapshot()
	fmt.Fprintf(out, "\nRun %s %s", snap.ID, stateColor(snap.State).Sprint(snap.State))
	if len(snap.Completed) > 0 {
		fmt.Fprintf(out, ", completed %s", strings.Join(snap.Completed, ","))
	}
	if len(snap.Aborted) > 0 {
		fmt.Fprintf(out, ", aborted %s", strings.Join(snap.Aborted, ","))
	}
	fmt.Fprintln(out)
	if snap.Error != "" {
		fmt.Fprintf(out, "%s %s\n", errColor.Sprint("Error:"), snap.Error)
	}

	switch snap.State {
	case orchestrator.StateCompleted:
		return nil
	case orchestrator.StateCancelled:
		return &ExitError{Code: 2}
	default:
		return &ExitError{Code: 1}
	}
}

// progressPrinter reports apply progress as it happens.
func progressPrinter(out io.Writer) event.Subscriber {
	return func(ev event.Event) {
		switch data := ev.Data.(type) {
		case event.TaskData:
			switch ev.Type {
			case event.TaskStarted:
				fmt.Fprintf(out, "%s %s %s\n", tagColor.Sprintf("[%s]", data.TaskID), data.Kind, data.Path)
			case event.TaskCompleted:
				if data.Output != "" {
					faintColor.Fprintln(out, strings.TrimRight(data.Output, "\n"))
				}
			case event.TaskFailed:
				fmt.Fprintf(out, "%s failed: %s\n", errColor.Sprintf("[%s]", data.TaskID), data.Error)
			}
		case event.ScopeDeniedData:
			fmt.Fprintf(out, "%s denied %s: %s\n", errColor.Sprintf("[%s]", data.TaskID), data.Path, data.Reason)
		}
	}
}
