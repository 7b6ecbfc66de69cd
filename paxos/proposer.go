package paxos

import (
	"log"
	"math"
	"sync"
)

// roundState tracks one proposer round: the Prepare phase via promisesFrom
// and highestAccepted, the Accept phase via acceptAcks. Quorum crossings
// fire once: acceptSent records the Prepare-phase crossing, and the
// Accept-phase crossing closes the round.
type roundState struct {
	proposalID      ProposalID
	promisesFrom    map[NodeID]bool
	highestAccepted *Proposal
	acceptSent      bool
	acceptAcks      map[NodeID]bool
}

func newRoundState(pid ProposalID) *roundState {
	return &roundState{
		proposalID:   pid,
		promisesFrom: make(map[NodeID]bool),
		acceptAcks:   make(map[NodeID]bool),
	}
}

// Proposer drives rounds through the two Paxos phases. At most one round is
// active at a time; a timeout discards it and restarts with a strictly higher
// proposal id and a doubled backoff.
type Proposer struct {
	nodeID         NodeID
	context        NodeContext
	peers          []NodeID
	candidateValue Value
	quorum         int
	nextRound      uint64
	round          *roundState
	timerSeq       uint64
	timerID        TimerID
	timerMS        int64
	mu             sync.Mutex
}

// NewProposer creates a proposer that tries to get candidateValue chosen by
// the given acceptor peers. timerMS is the initial round timeout; it doubles
// on every expiry.
func NewProposer(nodeID NodeID, context NodeContext, peers []NodeID, candidateValue Value, timerMS int64) *Proposer {
	return &Proposer{
		nodeID:         nodeID,
		context:        context,
		peers:          peers,
		candidateValue: candidateValue,
		quorum:         context.Quorum(),
		timerMS:        timerMS,
	}
}

// OnInit starts the first round.
func (p *Proposer) OnInit() []Action {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.startRound()
}

// OnMessage handles Promise and Accepted replies for the active round.
// Messages for other rounds and all other message types are ignored.
func (p *Proposer) OnMessage(from NodeID, msg Message) []Action {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch msg.Type {
	case MessagePromise:
		return p.handlePromise(from, msg)
	case MessageAccepted:
		return p.handleAccepted(from, msg)
	default:
		return nil
	}
}

// OnTimeout restarts the round with a doubled backoff, unless the timer is
// stale.
func (p *Proposer) OnTimeout(id TimerID) []Action {
	p.mu.Lock()
	defer p.mu.Unlock()

	if id != p.timerID || p.round == nil {
		return nil
	}
	if p.timerMS <= math.MaxInt64/2 {
		p.timerMS *= 2
	} else {
		p.timerMS = math.MaxInt64
	}
	log.Printf("[%s] Round %v timed out, backing off to %dms\n",
		p.nodeID, p.currentPID(), p.timerMS)
	return p.startRound()
}

// startRound allocates a fresh proposal id and timer, installs a new round
// and broadcasts Prepare to every peer. All Sends precede the SetTimer.
func (p *Proposer) startRound() []Action {
	pid := p.nextProposalID()
	p.round = newRoundState(pid)
	tid := p.nextTimerID()
	p.timerID = tid

	log.Printf("[%s] Starting round %v\n", p.nodeID, pid)

	actions := make([]Action, 0, len(p.peers)+1)
	for _, peer := range p.peers {
		actions = append(actions, SendTo(peer, p.nodeID, NewPrepare(pid, p.nodeID)))
	}
	actions = append(actions, SetTimer(tid, p.timerMS))
	return actions
}

func (p *Proposer) handlePromise(from NodeID, msg Message) []Action {
	r := p.round
	if r == nil || msg.Response != r.proposalID {
		return nil
	}
	// An acceptor reporting an accepted proposal at or above our own round
	// id would mean it accepted an id it never saw a Prepare for; log and
	// drop rather than act on it.
	if msg.Accepted != nil && msg.Accepted.ID.GreaterEqual(r.proposalID) {
		log.Printf("[%s] Dropping promise from %s reporting impossible accepted id %v\n",
			p.nodeID, from, msg.Accepted.ID)
		return nil
	}

	if r.promisesFrom[from] {
		return nil
	}
	r.promisesFrom[from] = true

	if accepted := msg.Accepted; accepted != nil {
		if r.highestAccepted == nil || r.highestAccepted.ID.Less(accepted.ID) {
			r.highestAccepted = &Proposal{ID: accepted.ID, Value: accepted.Value}
		}
	}

	if len(r.promisesFrom) < p.quorum || r.acceptSent {
		return nil
	}
	r.acceptSent = true

	value := p.candidateValue
	adopted := false
	if r.highestAccepted != nil {
		value = r.highestAccepted.Value
		adopted = true
		log.Printf("[%s] Adopting previously accepted value %v from %v\n",
			p.nodeID, value, r.highestAccepted.ID)
	}

	actions := make([]Action, 0, len(p.peers)+1)
	if adopted {
		actions = append(actions, ProposeValue(value))
	}
	for _, peer := range p.peers {
		actions = append(actions, SendTo(peer, p.nodeID, NewAccept(r.proposalID, value)))
	}
	return actions
}

func (p *Proposer) handleAccepted(from NodeID, msg Message) []Action {
	r := p.round
	if r == nil || msg.ProposalID != r.proposalID {
		return nil
	}
	if r.acceptAcks[from] {
		return nil
	}
	r.acceptAcks[from] = true

	if len(r.acceptAcks) < p.quorum {
		return nil
	}

	log.Printf("[%s] Consensus reached on value %v in round %v\n",
		p.nodeID, msg.Value, r.proposalID)

	tid := p.timerID
	p.round = nil
	return []Action{
		ChoseValue(msg.Value),
		CancelTimer(tid),
	}
}

// nextProposalID produces a strictly greater proposal id than any this
// proposer has produced before.
func (p *Proposer) nextProposalID() ProposalID {
	p.nextRound++
	return ProposalID{Round: p.nextRound, Node: p.nodeID}
}

func (p *Proposer) nextTimerID() TimerID {
	p.timerSeq++
	return TimerID{Seq: p.timerSeq, Node: p.nodeID}
}

func (p *Proposer) currentPID() ProposalID {
	if p.round == nil {
		return ProposalID{}
	}
	return p.round.proposalID
}

// Idle reports whether the proposer has no active round.
func (p *Proposer) Idle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.round == nil
}

// TimerMS returns the current round timeout in milliseconds.
func (p *Proposer) TimerMS() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timerMS
}
