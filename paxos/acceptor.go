package paxos

import (
	"log"
	"sync"
)

// Acceptor enforces the Paxos safety rules at the acceptance layer: it never
// accepts a proposal numbered below its latest promise, and it reports its
// latest accepted proposal in every promise so proposers can learn about
// values from earlier rounds.
type Acceptor struct {
	nodeID         NodeID
	context        NodeContext
	learners       []NodeID
	latestPromise  ProposalID
	latestAccepted *Proposal
	mu             sync.Mutex
}

// NewAcceptor creates an acceptor that notifies the given learners on
// acceptance.
func NewAcceptor(nodeID NodeID, context NodeContext, learners []NodeID) *Acceptor {
	return &Acceptor{
		nodeID:   nodeID,
		context:  context,
		learners: learners,
	}
}

// OnInit emits nothing; acceptors are passive.
func (a *Acceptor) OnInit() []Action {
	return nil
}

// OnMessage handles Prepare and Accept requests. All other messages are
// ignored.
func (a *Acceptor) OnMessage(from NodeID, msg Message) []Action {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch msg.Type {
	case MessagePrepare:
		return a.handlePrepare(msg)
	case MessageAccept:
		return a.handleAccept(msg)
	default:
		return nil
	}
}

// OnTimeout ignores all timers; acceptors never request any.
func (a *Acceptor) OnTimeout(id TimerID) []Action {
	return nil
}

func (a *Acceptor) handlePrepare(msg Message) []Action {
	pid := msg.ProposalID

	if !a.latestPromise.IsZero() && pid.Less(a.latestPromise) {
		log.Printf("[%s] Rejected prepare %v (already promised %v)\n",
			a.nodeID, pid, a.latestPromise)
		return nil
	}

	a.latestPromise = pid
	log.Printf("[%s] Promised proposal %v to %s\n", a.nodeID, pid, msg.From)

	return []Action{
		SendTo(msg.From, a.nodeID, NewPromise(a.latestAccepted, pid)),
	}
}

func (a *Acceptor) handleAccept(msg Message) []Action {
	pid := msg.ProposalID

	if !a.latestPromise.IsZero() && pid.Less(a.latestPromise) {
		log.Printf("[%s] Rejected accept %v (promised %v)\n",
			a.nodeID, pid, a.latestPromise)
		return nil
	}

	a.latestPromise = pid
	a.latestAccepted = &Proposal{ID: pid, Value: msg.Value}
	log.Printf("[%s] Accepted proposal %v with value %v\n", a.nodeID, pid, msg.Value)

	actions := make([]Action, 0, len(a.learners))
	for _, learner := range a.learners {
		actions = append(actions, SendTo(learner, a.nodeID, NewAccepted(pid, msg.Value)))
	}
	return actions
}

// LatestPromise returns the highest proposal id this acceptor has promised.
func (a *Acceptor) LatestPromise() ProposalID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.latestPromise
}

// LatestAccepted returns the most recent proposal this acceptor has accepted,
// or nil if it has accepted none.
func (a *Acceptor) LatestAccepted() *Proposal {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.latestAccepted == nil {
		return nil
	}
	accepted := *a.latestAccepted
	return &accepted
}
