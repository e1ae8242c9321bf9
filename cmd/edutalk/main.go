// Package main is the entry point for the edutalk voice assistant.
//
// Usage:
//
//	edutalk [flags] <command> [args]
//
// Commands:
//
//	run        - Interactive voice session (default surface)
//	ask        - Answer one typed question
//	ingest     - Add reference documents for retrieval
//	ping       - Check that the language model server answers
//	forget     - Forget the stored conversation context
//	config     - Show or initialize the configuration file
//	version    - Show version information
package main

import (
	"os"

	"github.com/haivivi/edutalk/cmd/edutalk/commands"
	"github.com/haivivi/edutalk/pkg/cli"
)

func main() {
	if err := commands.Execute(); err != nil {
		cli.PrintError("%v", err)
		os.Exit(1)
	}
}
