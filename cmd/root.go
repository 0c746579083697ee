// Package cmd implements the diameterd CLI using cobra, the way the
// teacher's cmd package is built (root.go + one file per subcommand).
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:     "diameterd",
	Short:   "diameterd runs a Diameter (RFC 6733) node",
	Long:    "diameterd is a Diameter base-protocol node: it maintains peer connections, exchanges CER/CEA and DWR/DWA, and dispatches application messages to registered handlers.",
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and runs it.
// Called once by main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/diameterd.yaml", "config file path")
	rootCmd.AddCommand(serveCmd)
}

func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
