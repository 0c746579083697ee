// Package main is the entry point for the diameterd node daemon.
package main

import (
	"fmt"
	"os"

	"github.com/diameter-go/diameter/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
