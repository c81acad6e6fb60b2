// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package simnet

import (
	"container/heap"
	"fmt"
)

// logAllMessages logs every message delivered between nodes, for debugging.
const logAllMessages = false

// Sim is a discrete-event network simulator: a fixed set of nodes exchange
// addressed messages and schedule timers, processed round-robin until every
// node is waiting and no timers remain or a node calls Shutdown.
type Sim struct {
	handler []Handler
	now     Clock
	in      []chan inputNow
	out     []chan output
	timers  timerQueue
	nodes   nodeStates
	done    bool
}

// NewSim returns a new Sim running the given handlers, one per node, in the
// order given (a handler's NodeID is its index in this slice).
func NewSim(handler []Handler) *Sim {
	var i []chan inputNow
	var o []chan output
	for range handler {
		i = append(i, make(chan inputNow))
		o = append(o, make(chan output))
	}
	return &Sim{
		handler: handler,
		in:      i,
		out:     o,
		nodes:   newNodeStates(len(handler)),
	}
}

// Run runs the simulation to completion.
func (s *Sim) Run() (err error) {
	for i, h := range s.handler {
		id := NodeID(i)
		n := newNode(h, s.in[id], s.out[id], id)
		s.nodes.set(id, Running)
		go n.run()
	}

	// process outputs round-robin; pending holds an output that couldn't be
	// delivered this round (its destination node wasn't ready yet).
	n := NodeID(0)
	pending := make([]*output, len(s.handler))
	for {
		if s.nodes.State[n] == Running {
			var o output
			if pending[n] != nil {
				o = *pending[n]
			} else {
				o = <-s.out[n]
			}
			if logAllMessages {
				logf(s.now, n, "-> %T%v", o, o)
			}
			var ok bool
			if err, ok = o.handleSim(s, n); err != nil {
				break
			}
			if !ok {
				pending[n] = &o
			} else {
				pending[n] = nil
			}
		}

		if s.done {
			break
		}

		if s.nodes.Waiting == len(s.handler) {
			if s.timers.Len() == 0 {
				err = fmt.Errorf("deadlock: no nodes and no timers running")
				return
			}
			t := heap.Pop(&s.timers).(timerEntry)
			s.now = t.at
			s.in[t.from] <- inputNow{ding{t.data}, s.now}
			s.nodes.set(t.from, Running)
			n = t.from
		} else {
			n = s.next(n)
		}
	}

	for i := range s.handler {
		close(s.in[i])
		for range s.out[i] {
		}
	}
	return
}

// next returns the node after the given node, wrapping around.
func (s *Sim) next(from NodeID) NodeID {
	if from >= NodeID(len(s.handler)-1) {
		return 0
	}
	return from + 1
}

// State represents the status of a node.
type State int

const (
	Running State = iota
	Waiting
)

// nodeStates tracks the State of each node and counts in each State, so Run
// can detect "every node is waiting" without rescanning the whole set.
type nodeStates struct {
	State   []State
	Running int
	Waiting int
}

func newNodeStates(size int) nodeStates {
	return nodeStates{State: make([]State, size), Running: size}
}

func (ns *nodeStates) set(node NodeID, state State) {
	if ns.State[node] == state {
		return
	}
	switch ns.State[node] {
	case Running:
		ns.Running--
	case Waiting:
		ns.Waiting--
	}
	ns.State[node] = state
	switch state {
	case Running:
		ns.Running++
	case Waiting:
		ns.Waiting++
	}
}

// handleNoder is satisfied by any value a node's input channel can carry.
type handleNoder interface {
	handleNode(node *node) error
}

// inputNow pairs a value to be handled with the simulation time it occurred
// at, since the wrapped value (e.g. a ding awaiting its Clock) may not carry
// its own timestamp.
type inputNow struct {
	v  handleNoder
	at Clock
}

func (i inputNow) handleNode(node *node) error {
	return i.v.handleNode(node)
}

func (i inputNow) now() Clock {
	return i.at
}

// An output is sent by a node's goroutine to the Sim for delivery or
// bookkeeping.
type output interface {
	handleSim(sim *Sim, from NodeID) (err error, ok bool)
}

// done is sent internally when a node's goroutine returns.
type done struct {
	Err error
}

func (d done) handleSim(s *Sim, from NodeID) (error, bool) {
	s.done = true
	return d.Err, true
}

// wait is sent by a node to signify it has no more output to produce until
// it next receives input.
type wait struct{}

func (wait) handleSim(sim *Sim, from NodeID) (error, bool) {
	sim.nodes.set(from, Waiting)
	return nil, true
}

// timerEntry is sent by a node to request a ding at the given time.
type timerEntry struct {
	from NodeID
	at   Clock
	data any
}

// handleSim implements output: push the timer onto the pending-timer heap.
func (t timerEntry) handleSim(sim *Sim, from NodeID) (error, bool) {
	heap.Push(&sim.timers, t)
	return nil, true
}

// timerQueue is a container/heap priority queue of pending timers ordered by
// fire time, replacing a linear sorted-insert list: Run pops the single
// earliest timer each round, which a heap does in O(log n) against the
// O(n) shift a sorted slice needs on every insert.
type timerQueue []timerEntry

func (q timerQueue) Len() int            { return len(q) }
func (q timerQueue) Less(i, j int) bool  { return q[i].at < q[j].at }
func (q timerQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *timerQueue) Push(x any)         { *q = append(*q, x.(timerEntry)) }
func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	*q = old[:n-1]
	return t
}
