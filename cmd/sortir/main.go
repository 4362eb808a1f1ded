// Command sortir is the entry point for the Paris events assistant. It
// builds the event index from an open-data CSV export, answers questions
// from the terminal, exports evaluation contexts and serves the chat API.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/sortir-go/cmd/sortir/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
