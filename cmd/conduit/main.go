// Package main provides the conduit command: a local automation command
// channel that drives browser contexts over a Unix domain socket and
// verifies every action it performs.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
