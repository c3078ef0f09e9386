package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jamesdoliver/featune-sub001/server"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the marketplace HTTP server",
	Long:  `Runs the API server, the settlement webhook endpoint and the background task worker.`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
