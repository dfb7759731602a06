package commands

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/CR94168/learn-claude-code-cli/internal/template"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available commands",
	Long: `List the command templates found in the workspace.

Templates are read from .claude/commands and .dispatch/commands under the
workspace and from any commandDirs in the configuration.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

var showCmd = &cobra.Command{
	Use:   "show <command>",
	Short: "Show a command template",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var bindCmd = &cobra.Command{
	Use:   "bind <command> [args...]",
	Short: "Print the instruction a command binds to",
	Long: `Bind arguments to a command template and print the resulting
instruction without drafting or applying anything.

Examples:
  dispatch bind add-feature "add dark mode toggle"
  dispatch bind create-project vue shop-front
  dispatch bind create-project 'vue "Shop Front"'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBind,
}

func runList(cmd *cobra.Command, args []string) error {
	svc, err := openService(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer svc.Close()

	out := cmd.OutOrStdout()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COMMAND\tARGUMENTS\tDESCRIPTION\t")
	for _, t := range svc.Commands() {
		fmt.Fprintf(w, "%s\t%s\t%s\t\n", t.Name, t.ArgumentHint, t.Description)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	var le *template.LoadError
	if errors.As(svc.Source().LastError(), &le) {
		fmt.Fprintf(out, "\n%d template(s) failed to load:\n", len(le.Errors))
		for _, pe := range le.Errors {
			fmt.Fprintf(out, "  %v\n", pe)
		}
	}
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	svc, err := openService(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer svc.Close()

	t, err := svc.Command(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Name:        %s\n", t.Name)
	fmt.Fprintf(out, "Path:        %s\n", t.Path)
	if t.Description != "" {
		fmt.Fprintf(out, "Description: %s\n", t.Description)
	}
	if t.ArgumentHint != "" {
		fmt.Fprintf(out, "Arguments:   %s\n", t.ArgumentHint)
	}
	if t.Usage.Positional() {
		names := make([]string, 0, len(t.Slots))
		for _, s := range t.Slots {
			names = append(names, fmt.Sprintf("%d=%s", s.Index, s.Name))
		}
		fmt.Fprintf(out, "Positional:  %d (%s)\n", t.Usage.Arity(), strings.Join(names, ", "))
	}
	if len(t.Scope) > 0 {
		fmt.Fprintf(out, "Scope:       %s\n", strings.Join(t.Scope, ", "))
	}
	if len(t.Exclude) > 0 {
		fmt.Fprintf(out, "Exclude:     %s\n", strings.Join(t.Exclude, ", "))
	}
	if t.Model != "" {
		fmt.Fprintf(out, "Model:       %s\n", t.Model)
	}
	fmt.Fprintf(out, "\n%s", t.Body)
	return nil
}

func runBind(cmd *cobra.Command, args []string) error {
	svc, err := openService(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer svc.Close()

	_, inst, err := svc.Bind(requestFrom(args))
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), inst.Text)
	if len(inst.Scope) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "\nscope: %s\n", strings.Join(inst.Scope, ", "))
	}
	return nil
}
