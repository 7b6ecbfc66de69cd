package transport

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/net/netutil"

	"paxosengine/paxos"
)

const maxConnections = 64

// Node runs one cluster member over websockets: it hosts the member's roles,
// serves inbound protocol traffic, dials peers on demand, and honors the
// core's timer actions with real clocks.
type Node struct {
	id        paxos.NodeID
	address   string
	peers     map[paxos.NodeID]string
	context   paxos.NodeContext
	token     string
	tokenHash []byte

	acceptor *paxos.Acceptor
	learner  *paxos.Learner
	roles    []paxos.Role

	upgrader  websocket.Upgrader
	conns     map[paxos.NodeID]*websocket.Conn
	timers    map[paxos.TimerID]*time.Timer
	initialMS int64
	mu        sync.Mutex

	server *http.Server
}

// NewNode creates a node hosting an acceptor and a learner. peers maps every
// cluster member (including this one) to its address. token, if non-empty,
// is required from every inbound connection and checked against its bcrypt
// hash; the plain token is also kept to authenticate outbound dials to peers.
func NewNode(id paxos.NodeID, address string, peers map[paxos.NodeID]string, initialTimerMS int64, token string) (*Node, error) {
	context := paxos.NodeContext{NumberOfNodes: len(peers)}

	learners := make([]paxos.NodeID, 0, len(peers))
	for peer := range peers {
		learners = append(learners, peer)
	}

	var tokenHash []byte
	if token != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash token: %w", err)
		}
		tokenHash = hash
	}

	acceptor := paxos.NewAcceptor(id, context, learners)
	learner := paxos.NewLearner(id, context)

	return &Node{
		id:        id,
		address:   address,
		peers:     peers,
		context:   context,
		token:     token,
		tokenHash: tokenHash,
		acceptor:  acceptor,
		learner:   learner,
		roles:     []paxos.Role{acceptor, learner},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		conns:     make(map[paxos.NodeID]*websocket.Conn),
		timers:    make(map[paxos.TimerID]*time.Timer),
		initialMS: initialTimerMS,
	}, nil
}

// Start listens and serves until the listener is closed.
func (n *Node) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/paxos", n.handlePaxos)
	mux.HandleFunc("/propose", n.handlePropose)
	mux.HandleFunc("/decisions", n.handleDecisions)

	listener, err := net.Listen("tcp", n.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", n.address, err)
	}
	listener = netutil.LimitListener(listener, maxConnections)

	n.server = &http.Server{Handler: mux}
	log.Printf("[%s] Paxos node listening on %s\n", n.id, n.address)
	return n.server.Serve(listener)
}

// Stop shuts the node down.
func (n *Node) Stop() error {
	n.mu.Lock()
	for _, conn := range n.conns {
		conn.Close()
	}
	n.conns = make(map[paxos.NodeID]*websocket.Conn)
	for _, t := range n.timers {
		t.Stop()
	}
	n.mu.Unlock()

	if n.server != nil {
		return n.server.Close()
	}
	return nil
}

// Propose hosts a fresh proposer for value and kicks off its first round.
func (n *Node) Propose(value paxos.Value) {
	acceptors := make([]paxos.NodeID, 0, len(n.peers))
	for peer := range n.peers {
		acceptors = append(acceptors, peer)
	}
	proposer := paxos.NewProposer(n.id, n.context, acceptors, value, n.initialMS)

	n.mu.Lock()
	n.roles = append(n.roles, proposer)
	n.mu.Unlock()

	log.Printf("[%s] Proposing value %v\n", n.id, value)
	n.apply(proposer.OnInit())
}

// Decisions returns every value this node's learner has chosen.
func (n *Node) Decisions() map[paxos.ProposalID]paxos.Value {
	return n.learner.ChosenValues()
}

// handlePaxos upgrades an inbound peer connection and pumps its messages
// into the hosted roles.
func (n *Node) handlePaxos(w http.ResponseWriter, r *http.Request) {
	if !n.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := n.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[%s] Failed to upgrade connection: %v\n", n.id, err)
		return
	}
	defer conn.Close()

	session := uuid.New().String()
	log.Printf("[%s] Peer connected (session %s)\n", n.id, session)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Printf("[%s] Peer disconnected (session %s): %v\n", n.id, session, err)
			return
		}

		from, msg, err := Decode(data)
		if err != nil {
			log.Printf("[%s] Dropping undecodable message: %v\n", n.id, err)
			continue
		}
		n.dispatch(paxos.MessageEvent(from, msg))
	}
}

// handlePropose accepts {"value": ...} and starts a proposer for it.
func (n *Node) handlePropose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !n.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var body struct {
		Value interface{} `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	n.Propose(body.Value)
	w.WriteHeader(http.StatusAccepted)
}

// handleDecisions reports the learner's chosen values.
func (n *Node) handleDecisions(w http.ResponseWriter, r *http.Request) {
	if !n.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	decisions := make([]interface{}, 0)
	for _, v := range n.learner.ChosenValues() {
		decisions = append(decisions, v)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"decisions": decisions})
}

func (n *Node) authorize(r *http.Request) bool {
	if n.tokenHash == nil {
		return true
	}
	token := r.Header.Get("X-Auth-Token")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	return bcrypt.CompareHashAndPassword(n.tokenHash, []byte(token)) == nil
}

// dispatch feeds one event to every hosted role and honors the actions.
func (n *Node) dispatch(e paxos.Event) {
	n.mu.Lock()
	roles := append([]paxos.Role(nil), n.roles...)
	n.mu.Unlock()

	var actions []paxos.Action
	for _, role := range roles {
		actions = append(actions, paxos.Dispatch(role, e)...)
	}
	n.apply(actions)
}

// apply honors one action sequence in order.
func (n *Node) apply(actions []paxos.Action) {
	for _, a := range actions {
		switch a.Type {
		case paxos.ActionSend:
			n.send(a.To, a.From, a.Msg)
		case paxos.ActionSetTimer:
			n.setTimer(a.Timer, a.MS)
		case paxos.ActionCancelTimer:
			n.cancelTimer(a.Timer)
		case paxos.ActionProposeValue:
			log.Printf("[%s] Phase 1 outcome: proposing %v\n", n.id, a.Value)
		case paxos.ActionChoseValue:
			log.Printf("[%s] Decision: %v\n", n.id, a.Value)
		}
	}
}

func (n *Node) send(to, from paxos.NodeID, msg paxos.Message) {
	if to == n.id {
		// Local loopback; no need to touch the network.
		n.dispatch(paxos.MessageEvent(from, msg))
		return
	}

	data, err := Encode(from, msg)
	if err != nil {
		log.Printf("[%s] Failed to encode %v message: %v\n", n.id, msg.Type, err)
		return
	}

	conn, err := n.peerConn(to)
	if err != nil {
		log.Printf("[%s] Failed to reach %s: %v\n", n.id, to, err)
		return
	}

	n.mu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	n.mu.Unlock()
	if err != nil {
		log.Printf("[%s] Failed to send to %s: %v\n", n.id, to, err)
		n.dropConn(to)
	}
}

func (n *Node) setTimer(id paxos.TimerID, ms int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.timers[id] = time.AfterFunc(time.Duration(ms)*time.Millisecond, func() {
		n.mu.Lock()
		delete(n.timers, id)
		n.mu.Unlock()
		n.dispatch(paxos.TimeoutEvent(id))
	})
}

func (n *Node) cancelTimer(id paxos.TimerID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if t, ok := n.timers[id]; ok {
		t.Stop()
		delete(n.timers, id)
	}
}
