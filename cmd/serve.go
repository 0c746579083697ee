package cmd

import (
	"github.com/spf13/cobra"

	"github.com/diameter-go/diameter/internal/daemon"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the node and run until a shutdown signal arrives",
	Long:  "serve loads the config file, brings up the listener and any persistent peers, and blocks until SIGTERM/SIGINT. SIGHUP re-reads and validates the config file; a changed log level is not applied to the running process.",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := daemon.New(configFile)
		if err != nil {
			return err
		}
		if err := d.Start(); err != nil {
			return err
		}
		return d.Run()
	},
}
