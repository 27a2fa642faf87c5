// Package main is the entry point for the duet CLI.
//
// Usage:
//
//	duet [flags] <command> [subcommand] [args]
//
// Commands:
//
//	run        - Run a therapist/client voice session
//	voices     - List the available voices
//	sessions   - Browse finished sessions (list, show, rm)
//	config     - Configuration management (contexts, services)
//	version    - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/duet/cmd/duet/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
