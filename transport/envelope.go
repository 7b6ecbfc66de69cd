package transport

import (
	"encoding/json"
	"fmt"

	"paxosengine/paxos"
)

// wireProposal is the JSON form of a paxos.Proposal.
type wireProposal struct {
	Round uint64      `json:"round"`
	Node  string      `json:"node"`
	Value interface{} `json:"value"`
}

// Envelope is the JSON form of one protocol message in flight between nodes.
type Envelope struct {
	From          string        `json:"from"`
	Type          int8          `json:"type"`
	Round         uint64        `json:"round,omitempty"`
	Node          string        `json:"node,omitempty"`
	Value         interface{}   `json:"value,omitempty"`
	ResponseRound uint64        `json:"response_round,omitempty"`
	ResponseNode  string        `json:"response_node,omitempty"`
	Accepted      *wireProposal `json:"accepted,omitempty"`
}

// Encode serializes one message for the wire.
func Encode(from paxos.NodeID, msg paxos.Message) ([]byte, error) {
	env := Envelope{
		From:          string(from),
		Type:          int8(msg.Type),
		Round:         msg.ProposalID.Round,
		Node:          string(msg.ProposalID.Node),
		Value:         msg.Value,
		ResponseRound: msg.Response.Round,
		ResponseNode:  string(msg.Response.Node),
	}
	if msg.Accepted != nil {
		env.Accepted = &wireProposal{
			Round: msg.Accepted.ID.Round,
			Node:  string(msg.Accepted.ID.Node),
			Value: msg.Accepted.Value,
		}
	}
	return json.Marshal(env)
}

// Decode parses one wire message.
func Decode(data []byte) (paxos.NodeID, paxos.Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", paxos.Message{}, fmt.Errorf("failed to decode envelope: %w", err)
	}

	msg := paxos.Message{
		Type:       paxos.MessageType(env.Type),
		From:       paxos.NodeID(env.From),
		ProposalID: paxos.ProposalID{Round: env.Round, Node: paxos.NodeID(env.Node)},
		Value:      env.Value,
		Response:   paxos.ProposalID{Round: env.ResponseRound, Node: paxos.NodeID(env.ResponseNode)},
	}
	if env.Accepted != nil {
		msg.Accepted = &paxos.Proposal{
			ID:    paxos.ProposalID{Round: env.Accepted.Round, Node: paxos.NodeID(env.Accepted.Node)},
			Value: env.Accepted.Value,
		}
	}
	return paxos.NodeID(env.From), msg, nil
}
