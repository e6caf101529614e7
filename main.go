// ./main.go
package main

import (
	"github.com/deepsurf-ai/deepsurf/cmd"
)

// main is the entry point for the deepsurf CLI.
func main() {
	// Execute handles command-line parsing, configuration and execution.
	cmd.Execute()
}
