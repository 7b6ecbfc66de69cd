package driver

import (
	"fmt"
	"log"
	"math/rand"

	"github.com/google/uuid"

	"paxosengine/paxos"
)

// pending is one in-flight message between nodes.
type pending struct {
	to   paxos.NodeID
	from paxos.NodeID
	msg  paxos.Message
}

// timerEntry is one armed timer. Cancelled entries stay in the timers map and
// are never fired; the role's stale-id check tolerates late deliveries
// anyway.
type timerEntry struct {
	at        int64
	node      paxos.NodeID
	id        paxos.TimerID
	cancelled bool
}

// Config tunes the simulated network.
type Config struct {
	// Seed drives every random choice the simulator makes.
	Seed int64
	// DropRate is the probability that a message delivery is lost.
	DropRate float64
	// DuplicateRate is the probability that a delivered message is
	// delivered a second time.
	DuplicateRate float64
	// MaxSteps bounds a Run; zero means the default.
	MaxSteps int
}

const defaultMaxSteps = 1000000

// Simulator is the reference scheduler/driver: it owns the virtual clock and
// the simulated network, translating the core's actions into deliveries and
// timer expirations. Messages are delivered in random order and may be
// dropped or duplicated, per the configured rates.
type Simulator struct {
	runID     string
	rng       *rand.Rand
	config    Config
	nodes     map[paxos.NodeID]*paxos.MultiRole
	now       int64
	inFlight  []pending
	timers    map[paxos.TimerID]*timerEntry
	decisions map[paxos.NodeID][]paxos.Value
	proposed  map[paxos.NodeID][]paxos.Value
}

// NewSimulator creates a simulator with the given network configuration.
func NewSimulator(config Config) *Simulator {
	if config.MaxSteps == 0 {
		config.MaxSteps = defaultMaxSteps
	}
	return &Simulator{
		runID:     uuid.New().String(),
		rng:       rand.New(rand.NewSource(config.Seed)),
		config:    config,
		nodes:     make(map[paxos.NodeID]*paxos.MultiRole),
		timers:    make(map[paxos.TimerID]*timerEntry),
		decisions: make(map[paxos.NodeID][]paxos.Value),
		proposed:  make(map[paxos.NodeID][]paxos.Value),
	}
}

// RunID returns the unique id of this simulation run.
func (s *Simulator) RunID() string {
	return s.runID
}

// Now returns the current virtual time in milliseconds.
func (s *Simulator) Now() int64 {
	return s.now
}

// AddNode registers a node's role bundle. Must be called before Start.
func (s *Simulator) AddNode(node *paxos.MultiRole) {
	s.nodes[node.NodeID()] = node
}

// Start initializes every registered node and queues the resulting traffic.
func (s *Simulator) Start() {
	log.Printf("[sim %s] Starting with %d nodes\n", s.runID, len(s.nodes))
	for id, node := range s.nodes {
		s.apply(id, node.OnInit())
	}
}

// Step performs one simulation step: deliver one randomly chosen in-flight
// message, or, if the network is drained, advance the clock to the earliest
// armed timer and fire it. Returns false when nothing is left to do.
func (s *Simulator) Step() bool {
	if len(s.inFlight) > 0 {
		s.deliverRandom()
		return true
	}
	return s.fireNextTimer()
}

// Run steps the simulation until it drains or the step budget is exhausted.
// Returns an error if the budget ran out.
func (s *Simulator) Run() error {
	for i := 0; i < s.config.MaxSteps; i++ {
		if !s.Step() {
			return nil
		}
	}
	return fmt.Errorf("simulation did not drain within %d steps", s.config.MaxSteps)
}

// RunUntilDecided steps the simulation until every registered node has
// recorded at least one decision. Every node counts, whether or not it hosts
// a learner.
func (s *Simulator) RunUntilDecided() error {
	for i := 0; i < s.config.MaxSteps; i++ {
		if len(s.decisions) >= len(s.nodes) {
			return nil
		}
		if !s.Step() {
			return fmt.Errorf("simulation drained before all nodes decided")
		}
	}
	return fmt.Errorf("no full decision within %d steps", s.config.MaxSteps)
}

// Decisions returns the ChoseValue outputs observed per node, in emission
// order.
func (s *Simulator) Decisions() map[paxos.NodeID][]paxos.Value {
	decisions := make(map[paxos.NodeID][]paxos.Value, len(s.decisions))
	for id, values := range s.decisions {
		decisions[id] = append([]paxos.Value(nil), values...)
	}
	return decisions
}

// Proposed returns the ProposeValue outputs observed per node.
func (s *Simulator) Proposed() map[paxos.NodeID][]paxos.Value {
	proposed := make(map[paxos.NodeID][]paxos.Value, len(s.proposed))
	for id, values := range s.proposed {
		proposed[id] = append([]paxos.Value(nil), values...)
	}
	return proposed
}

// Partition drops every in-flight message to or from the given node and
// removes it from the cluster, simulating a crash or isolation.
func (s *Simulator) Partition(id paxos.NodeID) {
	delete(s.nodes, id)
	kept := s.inFlight[:0]
	for _, d := range s.inFlight {
		if d.to != id && d.from != id {
			kept = append(kept, d)
		}
	}
	s.inFlight = kept
	log.Printf("[sim %s] Partitioned node %s\n", s.runID, id)
}

func (s *Simulator) deliverRandom() {
	i := s.rng.Intn(len(s.inFlight))
	d := s.inFlight[i]
	s.inFlight[i] = s.inFlight[len(s.inFlight)-1]
	s.inFlight = s.inFlight[:len(s.inFlight)-1]

	if s.rng.Float64() < s.config.DropRate {
		return
	}

	s.deliver(d)
	if s.rng.Float64() < s.config.DuplicateRate {
		s.deliver(d)
	}
}

func (s *Simulator) deliver(d pending) {
	node, ok := s.nodes[d.to]
	if !ok {
		return
	}
	s.apply(d.to, paxos.Dispatch(node, paxos.MessageEvent(d.from, d.msg)))
}

func (s *Simulator) fireNextTimer() bool {
	var next *timerEntry
	for _, t := range s.timers {
		if t.cancelled {
			continue
		}
		if next == nil || t.at < next.at {
			next = t
		}
	}
	if next == nil {
		return false
	}

	delete(s.timers, next.id)
	if next.at > s.now {
		s.now = next.at
	}

	node, ok := s.nodes[next.node]
	if !ok {
		return len(s.timers) > 0
	}
	s.apply(next.node, paxos.Dispatch(node, paxos.TimeoutEvent(next.id)))
	return true
}

// apply honors one node's action sequence in order.
func (s *Simulator) apply(from paxos.NodeID, actions []paxos.Action) {
	for _, a := range actions {
		switch a.Type {
		case paxos.ActionSend:
			s.inFlight = append(s.inFlight, pending{to: a.To, from: a.From, msg: a.Msg})
		case paxos.ActionSetTimer:
			s.timers[a.Timer] = &timerEntry{at: s.now + a.MS, node: from, id: a.Timer}
		case paxos.ActionCancelTimer:
			if t, ok := s.timers[a.Timer]; ok {
				t.cancelled = true
			}
		case paxos.ActionProposeValue:
			s.proposed[from] = append(s.proposed[from], a.Value)
		case paxos.ActionChoseValue:
			s.decisions[from] = append(s.decisions[from], a.Value)
		}
	}
}
