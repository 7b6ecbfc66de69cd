package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "paxos",
	Short: "A single-decree Paxos engine",
	Long:  `A single-decree Paxos engine with an in-memory simulator and a websocket cluster runtime`,
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
