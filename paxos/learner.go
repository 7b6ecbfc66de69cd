package paxos

import (
	"log"
	"sync"
)

// Learner converts a quorum of acceptance notifications into a decision. A
// decision, once made, is never revised.
type Learner struct {
	nodeID NodeID
	quorum int
	acks   map[ProposalID]map[NodeID]bool
	chosen map[ProposalID]Value
	mu     sync.Mutex
}

// NewLearner creates a learner deriving its quorum from the node context.
func NewLearner(nodeID NodeID, context NodeContext) *Learner {
	return &Learner{
		nodeID: nodeID,
		quorum: context.Quorum(),
		acks:   make(map[ProposalID]map[NodeID]bool),
		chosen: make(map[ProposalID]Value),
	}
}

// OnInit emits nothing; learners are passive.
func (l *Learner) OnInit() []Action {
	return nil
}

// OnMessage handles Accepted and Learn notifications. All other messages are
// ignored.
func (l *Learner) OnMessage(from NodeID, msg Message) []Action {
	if msg.Type != MessageAccepted && msg.Type != MessageLearn {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pid := msg.ProposalID
	if _, decided := l.chosen[pid]; decided {
		return nil
	}

	acks := l.acks[pid]
	if acks == nil {
		acks = make(map[NodeID]bool)
		l.acks[pid] = acks
	}
	if acks[from] {
		return nil
	}
	acks[from] = true

	if len(acks) < l.quorum {
		return nil
	}

	l.chosen[pid] = msg.Value
	delete(l.acks, pid)
	log.Printf("[%s] Chose value %v for proposal %v\n", l.nodeID, msg.Value, pid)

	return []Action{ChoseValue(msg.Value)}
}

// OnTimeout ignores all timers; learners never request any.
func (l *Learner) OnTimeout(id TimerID) []Action {
	return nil
}

// Chosen returns the value this learner decided for pid, if any.
func (l *Learner) Chosen(pid ProposalID) (Value, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.chosen[pid]
	return v, ok
}

// ChosenValues returns every decision this learner has made, keyed by
// proposal id.
func (l *Learner) ChosenValues() map[ProposalID]Value {
	l.mu.Lock()
	defer l.mu.Unlock()

	values := make(map[ProposalID]Value, len(l.chosen))
	for pid, v := range l.chosen {
		values[pid] = v
	}
	return values
}
