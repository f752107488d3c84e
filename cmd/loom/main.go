// Package main provides the loom CLI, a command-line surface over the
// runtime-extensible modeling engine: attributes, classes, assignments,
// instances, and values.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUserError)
	}
}
