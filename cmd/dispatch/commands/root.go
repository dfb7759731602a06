// Package commands provides the CLI commands for dispatch.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/CR94168/learn-claude-code-cli/internal/binder"
	"github.com/CR94168/learn-claude-code-cli/internal/config"
	"github.com/CR94168/learn-claude-code-cli/internal/dispatch"
	"github.com/CR94168/learn-claude-code-cli/internal/logging"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	printLogs bool
	logLevel  string
	workDir   string
	noColor   bool
)

var rootCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "dispatch - run markdown command templates against a workspace",
	Long: `dispatch executes markdown command templates (.claude/commands/*.md)
against a workspace. Each invocation drafts a reviewable plan, waits for
approval, and applies the approved tasks inside the command's scope.

Run 'dispatch list' to see the available commands, or
'dispatch run <command> [args...]' to invoke one.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			color.NoColor = true
		}
		initLogging()
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().StringVarP(&workDir, "dir", "C", "", "Workspace directory")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.SetVersionTemplate(fmt.Sprintf("dispatch %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(bindCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
}

// Execute runs the root command.
func Execute() error {
	defer logging.Close()
	return rootCmd.Execute()
}

// ExitError carries a process exit code without a message.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// GetWorkDir returns the working directory from flag or current directory.
func GetWorkDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return os.Getwd()
}

// initLogging sends logs to stderr with --print-logs and to a dated file
// otherwise, keeping the terminal free for plans and prompts.
func initLogging() {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(logLevel)
	if printLogs {
		cfg.Pretty = true
	} else {
		cfg.Output = io.Discard
		cfg.LogToFile = true
		cfg.LogDir = config.GetPaths().LogPath()
	}
	logging.Init(cfg)
}

// openService builds the dispatch service for the workspace flag.
func openService(ctx context.Context, watch bool) (*dispatch.Service, error) {
	dir, err := GetWorkDir(workDir)
	if err != nil {
		return nil, err
	}
	if err := config.GetPaths().EnsurePaths(); err != nil {
		return nil, err
	}
	svc, err := dispatch.New(ctx, dispatch.Options{WorkDir: dir, Watch: watch})
	if err != nil {
		return nil, err
	}
	// The config file level applies unless the flag was given.
	if lvl := svc.Config().LogLevel; lvl != "" && !rootCmd.PersistentFlags().Changed("log-level") {
		logLevel = lvl
		initLogging()
	}
	return svc, nil
}

// requestFrom turns CLI words into a bind request. A single word is free
// text and is split shell-style when the template needs positions; several
// words were already split by the invoking shell.
func requestFrom(args []string) binder.Request {
	req := binder.Request{Command: args[0]}
	rest := args[1:]
	switch len(rest) {
	case 0:
	case 1:
		req.Input = rest[0]
	default:
		req.Args = rest
	}
	return req
}
