// Package main is the entry point for the querydeck CLI.
// It provides a tabbed query workbench for Presto/Trino-compatible engines.
package main

import (
	"querydeck/cli/cmd"
)

// main initializes and executes the command-line interface.
func main() {
	cmd.Execute()
}
