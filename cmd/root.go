package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jamesdoliver/featune-sub001/server"
)

var rootCmd = &cobra.Command{
	Use:   "featune",
	Short: "Featune is an audio track licensing marketplace.",
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
