package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"paxosengine/paxos"
)

// peerConn returns the outbound connection to a peer, dialing it if needed.
func (n *Node) peerConn(to paxos.NodeID) (*websocket.Conn, error) {
	n.mu.Lock()
	conn, ok := n.conns[to]
	token := n.token
	n.mu.Unlock()
	if ok {
		return conn, nil
	}

	address, ok := n.peers[to]
	if !ok {
		return nil, fmt.Errorf("unknown peer %s", to)
	}

	u := url.URL{Scheme: "ws", Host: address, Path: "/paxos"}
	header := http.Header{}
	if token != "" {
		header.Set("X-Auth-Token", token)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.Dial(u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", address, err)
	}

	n.mu.Lock()
	n.conns[to] = conn
	n.mu.Unlock()
	return conn, nil
}

// dropConn discards a broken outbound connection so the next send redials.
func (n *Node) dropConn(to paxos.NodeID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if conn, ok := n.conns[to]; ok {
		conn.Close()
		delete(n.conns, to)
	}
}

// Client submits proposals to a running node and reads its decisions over
// the node's HTTP surface.
type Client struct {
	address string
	token   string
	http    *http.Client
}

// NewClient creates a client for the node at address.
func NewClient(address, token string) *Client {
	return &Client{
		address: address,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Propose asks the node to start proposing value.
func (c *Client) Propose(value interface{}) error {
	body, err := json.Marshal(map[string]interface{}{"value": value})
	if err != nil {
		return fmt.Errorf("failed to encode value: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, "http://"+c.address+"/propose", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("X-Auth-Token", c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach node: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("node rejected proposal: %s", resp.Status)
	}
	return nil
}

// Decisions fetches the values the node's learner has chosen so far.
func (c *Client) Decisions() ([]interface{}, error) {
	req, err := http.NewRequest(http.MethodGet, "http://"+c.address+"/decisions", nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("X-Auth-Token", c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach node: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		Decisions []interface{} `json:"decisions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode decisions: %w", err)
	}
	return body.Decisions, nil
}
