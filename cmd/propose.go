package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"paxosengine/transport"
)

var proposeAddress string
var proposeValue string
var proposeToken string

// proposeCmd represents the propose command
var proposeCmd = &cobra.Command{
	Use:   "propose",
	Short: "Submit a value to a running cluster node",
	Run: func(cmd *cobra.Command, args []string) {
		client := transport.NewClient(proposeAddress, proposeToken)
		if err := client.Propose(proposeValue); err != nil {
			fmt.Println(err)
			return
		}
		fmt.Printf("Proposed %q to %s\n", proposeValue, proposeAddress)
	},
}

// decisionsCmd represents the decisions command
var decisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "Show the values a cluster node has chosen",
	Run: func(cmd *cobra.Command, args []string) {
		client := transport.NewClient(proposeAddress, proposeToken)
		decisions, err := client.Decisions()
		if err != nil {
			fmt.Println(err)
			return
		}
		if len(decisions) == 0 {
			fmt.Println("No decisions yet")
			return
		}
		for _, v := range decisions {
			fmt.Printf("Chosen: %v\n", v)
		}
	},
}

func init() {
	rootCmd.AddCommand(proposeCmd)
	rootCmd.AddCommand(decisionsCmd)

	proposeCmd.Flags().StringVar(&proposeAddress, "address", "127.0.0.1:9000", "Address of the node")
	proposeCmd.Flags().StringVar(&proposeValue, "value", "", "Value to propose")
	proposeCmd.Flags().StringVar(&proposeToken, "token", "", "Shared cluster token (optional)")
	proposeCmd.MarkFlagRequired("value")

	decisionsCmd.Flags().StringVar(&proposeAddress, "address", "127.0.0.1:9000", "Address of the node")
	decisionsCmd.Flags().StringVar(&proposeToken, "token", "", "Shared cluster token (optional)")
}
