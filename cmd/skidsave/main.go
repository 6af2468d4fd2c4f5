// Package main provides the entry point for skidsave.
//
// skidsave is the command-line management tool for Skid Inc save
// directories: listing, inspecting, verifying and pruning saves, plus a
// metrics endpoint for live monitoring.
package main

import (
	"fmt"
	"os"

	"github.com/alphaleadership/skid-inc-sub000/internal/cli/command"
)

func main() {
	app := command.App()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
