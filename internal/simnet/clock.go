// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

// Package simnet is a single-threaded, cooperative discrete-event network
// simulator: a Clock, a round-robin scheduler, and addressed message
// delivery between a fixed set of nodes. It has no notion of what a message
// means — producer, consumer, and cache engines built on top supply that.
package simnet

import (
	"fmt"
	"time"
)

// Clock represents the virtual simulation time, as a duration since the
// start of the simulation.
type Clock time.Duration

// Duration returns c as a time.Duration.
func (c Clock) Duration() time.Duration {
	return time.Duration(c)
}

func (c Clock) String() string {
	return fmt.Sprintf("%f", time.Duration(c).Seconds())
}
