// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package simnet

import "fmt"

// NodeID identifies a node in the order it was added to the Sim.
type NodeID int

// node is the concrete implementation handed to a Handler as a Node.
type node struct {
	handler  Handler
	in       chan inputNow
	out      chan output
	now      Clock
	id       NodeID
	shutdown bool
}

func newNode(handler Handler, in chan inputNow, out chan output, id NodeID) *node {
	return &node{handler, in, out, 0, id, false}
}

// run is the per-node goroutine body: it starts the handler, waits for
// input, and dispatches each one to completion before requesting more.
func (n *node) run() {
	var err error
	defer func() {
		n.out <- done{err}
		close(n.out)
	}()
	if s, ok := n.handler.(Starter); ok {
		if err = s.Start(n); err != nil {
			return
		}
	}
	n.out <- wait{}
	for i := range n.in {
		n.now = i.now()
		if err = i.handleNode(n); err != nil {
			return
		}
		if n.shutdown {
			break
		}
		n.out <- wait{}
	}
	if s, ok := n.handler.(Stopper); ok {
		err = s.Stop(n)
	}
}

// Timer implements Node.
func (n *node) Timer(delay Clock, data any) {
	n.out <- timerEntry{n.id, n.now + delay, data}
}

// Send implements Node.
func (n *node) Send(msg Message, to NodeID) {
	msg.from = n.id
	msg.to = to
	n.out <- msg
}

// Now implements Node.
func (n *node) Now() Clock {
	return n.now
}

// ID implements Node.
func (n *node) ID() NodeID {
	return n.id
}

// Logf emits a message tagged with this node's id and the current time.
func (n *node) Logf(format string, a ...any) {
	logf(n.now, n.id, format, a...)
}

// Shutdown implements Node.
func (n *node) Shutdown() {
	n.shutdown = true
}

// Node is the API a Handler uses to interact with the simulation.
type Node interface {
	Timer(delay Clock, data any)
	Send(msg Message, to NodeID)
	Now() Clock
	ID() NodeID
	Logf(format string, a ...any)
	Shutdown()
}

// ding is delivered by the simulator to a node after a timer has elapsed.
// Its firing time travels separately via inputNow, which wraps it.
type ding struct {
	data any
}

func (d ding) handleNode(node *node) (err error) {
	if r, ok := node.handler.(Dinger); ok {
		err = r.Ding(d.data, node)
	} else {
		err = fmt.Errorf("node %d called Timer so must implement Dinger", node.id)
	}
	return
}

// A Starter runs in a node at the start of the simulation.
type Starter interface {
	Start(node Node) error
}

// A Handler runs in a node to process messages addressed to it. Message.From
// carries the node the message was sent from.
type Handler interface {
	Handle(msg Message, node Node) error
}

// Dinger wraps the Ding method to handle elapsed timers.
type Dinger interface {
	Ding(data any, node Node) error
}

// A Stopper runs in a node at the end of the simulation.
type Stopper interface {
	Stop(node Node) error
}
