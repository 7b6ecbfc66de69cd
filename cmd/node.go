package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"paxosengine/paxos"
	"paxosengine/transport"
)

var nodeID string
var nodeAddress string
var nodePeers []string
var nodeToken string
var nodeTimerMS int64

// nodeCmd represents the node command
var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Run a Paxos cluster node over websockets",
	Run: func(cmd *cobra.Command, args []string) {
		peers := make(map[paxos.NodeID]string)
		peers[paxos.NodeID(nodeID)] = nodeAddress
		for _, peer := range nodePeers {
			parts := strings.SplitN(peer, "=", 2)
			if len(parts) != 2 {
				fmt.Printf("Invalid peer %q, expected id=host:port\n", peer)
				return
			}
			peers[paxos.NodeID(parts[0])] = parts[1]
		}

		node, err := transport.NewNode(paxos.NodeID(nodeID), nodeAddress, peers, nodeTimerMS, nodeToken)
		if err != nil {
			fmt.Println(err)
			return
		}
		if err := node.Start(); err != nil {
			fmt.Println(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(nodeCmd)

	nodeCmd.Flags().StringVar(&nodeID, "id", "", "Unique id of this node")
	nodeCmd.Flags().StringVar(&nodeAddress, "address", "127.0.0.1:9000", "Address to listen on")
	nodeCmd.Flags().StringSliceVar(&nodePeers, "peer", nil, "Peer as id=host:port (repeatable)")
	nodeCmd.Flags().StringVar(&nodeToken, "token", "", "Shared cluster token (optional)")
	nodeCmd.Flags().Int64Var(&nodeTimerMS, "timer", 1000, "Initial proposer timeout in milliseconds")
	nodeCmd.MarkFlagRequired("id")
}
