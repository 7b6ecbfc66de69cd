package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"paxosengine/driver"
	"paxosengine/paxos"
)

var simNodes int
var simProposers int
var simDropRate float64
var simDupRate float64
var simSeed int64
var simTimerMS int64

// simCmd represents the sim command
var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Run an in-memory Paxos simulation",
	Run: func(cmd *cobra.Command, args []string) {
		sim := driver.NewSimulator(driver.Config{
			Seed:          simSeed,
			DropRate:      simDropRate,
			DuplicateRate: simDupRate,
		})

		context := paxos.NodeContext{NumberOfNodes: simNodes}
		ids := make([]paxos.NodeID, simNodes)
		for i := range ids {
			ids[i] = paxos.NodeID(fmt.Sprintf("node-%c", 'a'+i))
		}

		for i, id := range ids {
			roles := []paxos.Role{
				paxos.NewAcceptor(id, context, ids),
				paxos.NewLearner(id, context),
			}
			if i < simProposers {
				value := fmt.Sprintf("value-from-%s", id)
				roles = append(roles, paxos.NewProposer(id, context, ids, value, simTimerMS))
			}
			sim.AddNode(paxos.NewMultiRole(id, roles...))
		}

		sim.Start()
		if err := sim.RunUntilDecided(); err != nil {
			fmt.Println(err)
			return
		}

		for id, values := range sim.Decisions() {
			fmt.Printf("%s decided %v\n", id, values)
		}
	},
}

func init() {
	rootCmd.AddCommand(simCmd)

	simCmd.Flags().IntVar(&simNodes, "nodes", 3, "Number of nodes in the simulated cluster")
	simCmd.Flags().IntVar(&simProposers, "proposers", 1, "Number of nodes that also propose")
	simCmd.Flags().Float64Var(&simDropRate, "drop", 0, "Probability that a message is lost")
	simCmd.Flags().Float64Var(&simDupRate, "dup", 0, "Probability that a message is duplicated")
	simCmd.Flags().Int64Var(&simSeed, "seed", 1, "Random seed for the simulated network")
	simCmd.Flags().Int64Var(&simTimerMS, "timer", 100, "Initial proposer timeout in milliseconds")
}
