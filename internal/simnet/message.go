// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package simnet

// Message is an addressed unit of simulated delivery. Payload carries the
// domain value (a wire.Request, a wire.Response, or anything else a Handler
// cares to send); simnet never inspects it.
type Message struct {
	Payload any
	from    NodeID
	to      NodeID
}

// From returns the node the message was sent from.
func (m Message) From() NodeID {
	return m.from
}

// NewMessage builds a Message as if it had been sent by from, for Handler
// implementations and their tests that need to construct one directly
// rather than receiving it through a running Sim.
func NewMessage(payload any, from NodeID) Message {
	return Message{Payload: payload, from: from}
}

// handleSim implements output: deliver the message to its destination node
// if that node is ready to accept input, otherwise hold it for the next
// round.
func (m Message) handleSim(sim *Sim, from NodeID) (error, bool) {
	if sim.nodes.State[m.to] == Running {
		return nil, false
	}
	sim.in[m.to] <- inputNow{m, sim.now}
	sim.nodes.set(m.to, Running)
	return nil, true
}

// handleNode implements input.
func (m Message) handleNode(node *node) error {
	return node.handler.Handle(m, node)
}
