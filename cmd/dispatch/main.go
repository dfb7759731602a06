// Package main provides the entry point for the dispatch CLI.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/CR94168/learn-claude-code-cli/cmd/dispatch/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		var exit *commands.ExitError
		if errors.As(err, &exit) {
			os.Exit(exit.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
