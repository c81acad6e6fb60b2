// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

// Package rto implements a minimal per-sequence retransmission-timeout
// manager: schedule a timer per outstanding sequence number, double the
// next timeout when it fires, cancel on response. It is deliberately small;
// the protocol logic that decides what to do on expiry or cancellation
// lives in the consumer package.
package rto

import "github.com/ndn-rtc/rtcsim/internal/simnet"

// Manager tracks one backoff state per sequence number.
type Manager struct {
	initial simnet.Clock
	max     simnet.Clock
	next    map[uint64]simnet.Clock
}

// NewManager returns a Manager whose first timeout for any sequence is
// initial, doubling on each expiry up to max.
func NewManager(initial, max simnet.Clock) *Manager {
	return &Manager{initial: initial, max: max, next: make(map[uint64]simnet.Clock)}
}

// Start arms seq with its current backoff (initial, if seq is new), and
// schedules a Ding through node.Timer carrying data as the timer payload.
func (m *Manager) Start(seq uint64, node simnet.Node, data any) {
	d, ok := m.next[seq]
	if !ok {
		d = m.initial
	}
	m.next[seq] = d
	node.Timer(d, data)
}

// Expire doubles seq's next timeout (capped at max) and returns it, for the
// caller to use when rearming. Call this when the RTO timer for seq fires.
func (m *Manager) Expire(seq uint64) simnet.Clock {
	d := m.next[seq] * 2
	if d > m.max {
		d = m.max
	}
	if d == 0 {
		d = m.initial
	}
	m.next[seq] = d
	return d
}

// Cancel removes seq's backoff state, as if its response had arrived.
func (m *Manager) Cancel(seq uint64) {
	delete(m.next, seq)
}
