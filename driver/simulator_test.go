package driver

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paxosengine/paxos"
)

// buildCluster registers nodeCount nodes hosting an acceptor and a learner;
// the first proposerCount of them also propose their own candidate value.
func buildCluster(sim *Simulator, nodeCount, proposerCount int, timerMS int64) []paxos.NodeID {
	context := paxos.NodeContext{NumberOfNodes: nodeCount}
	ids := make([]paxos.NodeID, nodeCount)
	for i := range ids {
		ids[i] = paxos.NodeID(fmt.Sprintf("node-%c", 'a'+i))
	}

	for i, id := range ids {
		roles := []paxos.Role{
			paxos.NewAcceptor(id, context, ids),
			paxos.NewLearner(id, context),
		}
		if i < proposerCount {
			value := fmt.Sprintf("value-from-%s", id)
			roles = append(roles, paxos.NewProposer(id, context, ids, value, timerMS))
		}
		sim.AddNode(paxos.NewMultiRole(id, roles...))
	}
	return ids
}

// requireAgreement asserts that every decision made anywhere in the cluster
// is the same value, and that at least one node decided.
func requireAgreement(t *testing.T, sim *Simulator) paxos.Value {
	t.Helper()

	decisions := sim.Decisions()
	require.NotEmpty(t, decisions, "no node decided")

	var agreed paxos.Value
	for id, values := range decisions {
		require.NotEmpty(t, values)
		for _, v := range values {
			if agreed == nil {
				agreed = v
			}
			require.Equal(t, agreed, v, "node %s disagrees", id)
		}
	}
	return agreed
}

func TestSingleProposerCleanRun(t *testing.T) {
	sim := NewSimulator(Config{Seed: 1})
	ids := buildCluster(sim, 3, 1, 100)

	sim.Start()
	require.NoError(t, sim.Run())

	agreed := requireAgreement(t, sim)
	assert.Equal(t, "value-from-node-a", agreed)

	decisions := sim.Decisions()
	for _, id := range ids {
		assert.NotEmpty(t, decisions[id], "node %s never decided", id)
	}
	// A pure learner node decides exactly once. The proposing node also
	// surfaces the proposer's own ChoseValue, so it may report twice.
	assert.Len(t, decisions[ids[1]], 1)
	assert.Len(t, decisions[ids[2]], 1)
}

func TestLearnersDecideOnceUnderDuplication(t *testing.T) {
	sim := NewSimulator(Config{Seed: 7, DuplicateRate: 0.5})
	ids := buildCluster(sim, 3, 1, 100)

	sim.Start()
	require.NoError(t, sim.Run())
	requireAgreement(t, sim)

	// Despite heavy duplication each learner emits ChoseValue exactly once.
	decisions := sim.Decisions()
	assert.Len(t, decisions[ids[1]], 1)
	assert.Len(t, decisions[ids[2]], 1)
}

func TestCompetingProposersAgree(t *testing.T) {
	for seed := int64(1); seed <= 10; seed++ {
		sim := NewSimulator(Config{Seed: seed})
		buildCluster(sim, 5, 3, 100)

		sim.Start()
		require.NoError(t, sim.Run(), "seed %d", seed)
		requireAgreement(t, sim)
	}
}

func TestAgreementUnderLossAndDuplication(t *testing.T) {
	for seed := int64(1); seed <= 10; seed++ {
		sim := NewSimulator(Config{
			Seed:          seed,
			DropRate:      0.2,
			DuplicateRate: 0.2,
		})
		buildCluster(sim, 5, 2, 100)

		sim.Start()
		require.NoError(t, sim.Run(), "seed %d", seed)
		requireAgreement(t, sim)
	}
}

func TestProposerRetriesThroughTotalLoss(t *testing.T) {
	// Drop everything at first; the proposer must keep restarting rounds
	// off its timer with growing backoff rather than wedge.
	sim := NewSimulator(Config{Seed: 3, DropRate: 1.0})
	buildCluster(sim, 3, 1, 100)

	sim.Start()
	for i := 0; i < 200; i++ {
		if !sim.Step() {
			break
		}
	}
	require.Empty(t, sim.Decisions())

	// Heal the network; the next timer-driven round goes through.
	sim.config.DropRate = 0
	require.NoError(t, sim.Run())
	requireAgreement(t, sim)
}

func TestSimulatorHonorsCancelTimer(t *testing.T) {
	sim := NewSimulator(Config{Seed: 2})
	buildCluster(sim, 3, 1, 100)

	sim.Start()
	require.NoError(t, sim.Run())

	// After the decision the proposer cancelled its timer; a drained
	// simulation must not keep firing it.
	assert.False(t, sim.Step())
}

func TestSimulatorVirtualClockAdvancesOnTimeout(t *testing.T) {
	sim := NewSimulator(Config{Seed: 4, DropRate: 1.0})
	buildCluster(sim, 3, 1, 100)

	sim.Start()
	assert.Equal(t, int64(0), sim.Now())

	// Drain the (dropped) prepares, then fire the round timer.
	for len(sim.inFlight) > 0 {
		sim.Step()
	}
	require.True(t, sim.Step())
	assert.Equal(t, int64(100), sim.Now())
}

func TestPartitionedMinorityDoesNotBlockDecision(t *testing.T) {
	sim := NewSimulator(Config{Seed: 6})
	ids := buildCluster(sim, 5, 1, 100)

	sim.Start()
	sim.Partition(ids[4])

	require.NoError(t, sim.Run())
	requireAgreement(t, sim)
}

func TestRunUntilDecidedStopsEarly(t *testing.T) {
	sim := NewSimulator(Config{Seed: 8})
	buildCluster(sim, 3, 1, 100)

	sim.Start()
	require.NoError(t, sim.RunUntilDecided())

	decisions := sim.Decisions()
	assert.Len(t, decisions, 3)
}
