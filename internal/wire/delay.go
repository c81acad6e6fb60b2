// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package wire

import "github.com/ndn-rtc/rtcsim/internal/simnet"

// msgAt pairs a payload with the simulation time it should be delivered,
// queued instead of given its own timer (mirrors the teacher's delay
// handler, which rearms a single timer for the head of the queue rather
// than scheduling one timer per packet).
type msgAt struct {
	payload any
	to      simnet.NodeID
	at      simnet.Clock
}

// Delay sits on the link between A and B and adds a fixed one-way delay in
// both directions, forwarding whatever arrives from one endpoint to the
// other.
type Delay struct {
	A, B simnet.NodeID
	D    simnet.Clock

	queue []msgAt
}

// NewDelay returns a Delay node linking A and B with one-way latency d.
func NewDelay(a, b simnet.NodeID, d simnet.Clock) *Delay {
	return &Delay{A: a, B: b, D: d}
}

// Handle implements simnet.Handler.
func (d *Delay) Handle(msg simnet.Message, node simnet.Node) error {
	to := d.B
	if msg.From() == d.B {
		to = d.A
	}
	d.queue = append(d.queue, msgAt{payload: msg.Payload, to: to, at: node.Now() + d.D})
	if len(d.queue) == 1 {
		node.Timer(d.D, nil)
	}
	return nil
}

// Ding implements simnet.Dinger.
func (d *Delay) Ding(data any, node simnet.Node) error {
	m := d.queue[0]
	d.queue = d.queue[1:]
	node.Send(simnet.Message{Payload: m.payload}, m.to)
	if len(d.queue) > 0 {
		node.Timer(d.queue[0].at-node.Now(), nil)
	}
	return nil
}
