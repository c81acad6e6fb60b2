// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

// Package wire defines the request/response contract exchanged between
// Producer, Consumer, and Cache nodes over internal/simnet, and a Cache
// node implementing in-network answer-from-stale-copy behavior.
package wire

import (
	"github.com/ndn-rtc/rtcsim/internal/name"
	"github.com/ndn-rtc/rtcsim/internal/simnet"
)

// Request is sent by a Consumer (or forwarded by a Cache) toward a Producer.
type Request struct {
	Name        name.Name
	Nonce       uint32
	Lifetime    simnet.Clock
	MustBeFresh bool
}

// Response answers a Request by name.
type Response struct {
	Name            name.Name
	Content         []byte
	FreshnessPeriod simnet.Clock
	SignatureKind   uint
	KeyLocator      name.Name
}

// Fresh reports whether a Response generated at genTime is still within its
// freshness window at now.
func (r Response) Fresh(genTime, now simnet.Clock) bool {
	if r.FreshnessPeriod <= 0 {
		return false
	}
	return now-genTime < r.FreshnessPeriod
}
