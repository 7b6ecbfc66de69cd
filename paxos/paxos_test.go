package paxos

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProposalIDOrdering(t *testing.T) {
	assert.True(t, pid(1, "a").Less(pid(2, "a")))
	assert.True(t, pid(1, "b").Less(pid(2, "a")))
	// Equal rounds break ties on the node id.
	assert.True(t, pid(1, "a").Less(pid(1, "b")))
	assert.False(t, pid(1, "b").Less(pid(1, "a")))
	// The zero id precedes every valid id.
	assert.True(t, ProposalID{}.IsZero())
	assert.True(t, ProposalID{}.Less(pid(1, "a")))
	assert.True(t, pid(1, "a").GreaterEqual(pid(1, "a")))
}

// deliverSends routes every Send in actions to the matching role and returns
// the actions those deliveries produced, in order.
func deliverSends(roles map[NodeID]Role, actions []Action) []Action {
	var produced []Action
	for _, a := range actions {
		if a.Type != ActionSend {
			continue
		}
		if role, ok := roles[a.To]; ok {
			produced = append(produced, role.OnMessage(a.From, a.Msg)...)
		}
	}
	return produced
}

func chosenValues(actions []Action) []Value {
	var values []Value
	for _, a := range actions {
		if a.Type == ActionChoseValue {
			values = append(values, a.Value)
		}
	}
	return values
}

// A later competing proposer wins the round; the earlier proposer's traffic
// is rejected everywhere once the higher promise is out.
func TestCompetingProposersLaterWins(t *testing.T) {
	context := testContext()
	peers := []NodeID{"a", "b", "c"}

	acceptors := map[NodeID]*Acceptor{}
	accRoles := map[NodeID]Role{}
	for _, id := range peers {
		acceptors[id] = NewAcceptor(id, context, peers)
		accRoles[id] = acceptors[id]
	}
	learner := NewLearner("a", context)

	proposerA := NewProposer("a", context, peers, "x", 100)
	proposerB := NewProposer("b", context, peers, "y", 100)

	preparesA := p1Sends(proposerA.OnInit())
	preparesB := p1Sends(proposerB.OnInit())

	// Only acceptor a answers proposer a before b starts its round.
	promiseToA := accRoles["a"].OnMessage("a", preparesA["a"].Msg)
	assert.Empty(t, deliverSends(map[NodeID]Role{"a": proposerA}, promiseToA))

	// Acceptors b and c promise (1,b), which supersedes (1,a).
	var promisesToB []Action
	for _, id := range []NodeID{"b", "c"} {
		promisesToB = append(promisesToB, accRoles[id].OnMessage("b", preparesB[id].Msg)...)
	}
	accepts := deliverSends(map[NodeID]Role{"b": proposerB}, promisesToB)
	require.NotEmpty(t, accepts)

	// The accepted quorum reaches the learner; "y" is chosen.
	acceptedMsgs := deliverSends(accRoles, accepts)
	decided := deliverSends(map[NodeID]Role{"a": learner}, acceptedMsgs)
	require.Equal(t, []Value{"y"}, chosenValues(decided))

	// Proposer a's stale prepare arrives late and is rejected silently.
	assert.Empty(t, accRoles["b"].OnMessage("a", preparesA["b"].Msg))
	assert.Empty(t, accRoles["c"].OnMessage("a", preparesA["c"].Msg))

	// So is a stale accept for the superseded round.
	assert.Empty(t, accRoles["b"].OnMessage("a", NewAccept(pid(1, "a"), "x")))
	assert.Empty(t, accRoles["c"].OnMessage("a", NewAccept(pid(1, "a"), "x")))
}

// A value accepted by part of a quorum survives the original proposer's
// crash: the next proposer adopts it instead of its own candidate.
func TestValuePreservationAcrossProposerCrash(t *testing.T) {
	context := testContext()
	peers := []NodeID{"a", "b", "c"}

	acceptors := map[NodeID]Role{}
	for _, id := range peers {
		acceptors[id] = NewAcceptor(id, context, peers)
	}

	// Proposal (1,a) with "x" lands on acceptors a and b, then a crashes
	// before any learner sees a quorum.
	for _, id := range []NodeID{"a", "b"} {
		acceptors[id].OnMessage("a", NewPrepare(pid(1, "a"), "a"))
		acceptors[id].OnMessage("a", NewAccept(pid(1, "a"), "x"))
	}

	proposerC := NewProposer("c", context, peers, "z", 100)
	prepares := p1Sends(proposerC.OnInit())

	// Promises from b (carrying the prior accept) and c (empty).
	var promises []Action
	promises = append(promises, acceptors["b"].OnMessage("c", prepares["b"].Msg)...)
	promises = append(promises, acceptors["c"].OnMessage("c", prepares["c"].Msg)...)

	actions := deliverSends(map[NodeID]Role{"c": proposerC}, promises)

	proposed := actionsOfType(actions, ActionProposeValue)
	require.Len(t, proposed, 1)
	assert.Equal(t, "x", proposed[0].Value)

	accepts := sends(actions)
	require.Len(t, accepts, 3)
	for _, a := range accepts {
		assert.Equal(t, MessageAccept, a.Msg.Type)
		assert.Equal(t, "x", a.Msg.Value, "the prior in-flight value must be preserved")
	}

	// The cluster converges on "x", not "z".
	learner := NewLearner("b", context)
	acceptedMsgs := deliverSends(acceptors, accepts)
	decided := deliverSends(map[NodeID]Role{"b": learner}, acceptedMsgs)
	assert.Equal(t, []Value{"x"}, chosenValues(decided))
}

func TestMultiRoleDispatchesToEveryRole(t *testing.T) {
	context := testContext()
	peers := []NodeID{"a", "b", "c"}

	acceptor := NewAcceptor("a", context, peers)
	learner := NewLearner("a", context)
	node := NewMultiRole("a", acceptor, learner)

	assert.Equal(t, NodeID("a"), node.NodeID())
	assert.Empty(t, node.OnInit())

	// A Prepare concerns only the acceptor; the learner stays silent.
	actions := node.OnMessage("b", NewPrepare(pid(1, "b"), "b"))
	require.Len(t, actions, 1)
	assert.Equal(t, MessagePromise, actions[0].Msg.Type)

	// An Accept produces the acceptor's notifications; a following
	// Accepted quorum is the learner's business.
	node.OnMessage("b", NewAccept(pid(1, "b"), "x"))
	node.OnMessage("a", NewAccepted(pid(1, "b"), "x"))
	actions = node.OnMessage("b", NewAccepted(pid(1, "b"), "x"))
	assert.Equal(t, []Value{"x"}, chosenValues(actions))

	assert.Empty(t, node.OnTimeout(TimerID{Seq: 1, Node: "a"}))
}

// p1Sends indexes a round's Prepare sends by destination.
func p1Sends(actions []Action) map[NodeID]Action {
	out := map[NodeID]Action{}
	for _, a := range actions {
		if a.Type == ActionSend {
			out[a.To] = a
		}
	}
	return out
}
