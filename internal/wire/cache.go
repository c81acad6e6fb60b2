// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package wire

import (
	"github.com/ndn-rtc/rtcsim/internal/simnet"
)

// cacheEntry is one stored Response together with the time it was cached,
// which Fresh measures freshness against.
type cacheEntry struct {
	resp    Response
	cumTime simnet.Clock
}

// pendingEntry is a PIT-like record of who is waiting for a Response to a
// name already forwarded upstream.
type pendingEntry struct {
	req  Request
	from []simnet.NodeID
}

// Cache sits between one or more downstream nodes (consumers, or other
// Cache nodes) and a single upstream node (a Producer, or another Cache).
// It can answer a Request from its own stored copy, forward it upstream,
// or fan a single upstream Response out to every downstream node that
// asked for the same name while the forward was outstanding.
type Cache struct {
	Upstream   simnet.NodeID
	Downstream map[simnet.NodeID]bool

	store   map[string]cacheEntry
	pending map[string]*pendingEntry
}

// NewCache returns a Cache forwarding to upstream on behalf of the given
// downstream node set.
func NewCache(upstream simnet.NodeID, downstream []simnet.NodeID) *Cache {
	d := make(map[simnet.NodeID]bool, len(downstream))
	for _, id := range downstream {
		d[id] = true
	}
	return &Cache{
		Upstream:   upstream,
		Downstream: d,
		store:      make(map[string]cacheEntry),
		pending:    make(map[string]*pendingEntry),
	}
}

// Handle implements simnet.Handler.
func (c *Cache) Handle(msg simnet.Message, node simnet.Node) error {
	switch v := msg.Payload.(type) {
	case Request:
		return c.handleRequest(v, msg.From(), node)
	case Response:
		return c.handleResponse(v, node)
	}
	return nil
}

func (c *Cache) handleRequest(req Request, from simnet.NodeID, node simnet.Node) error {
	key := req.Name.String()
	if e, ok := c.store[key]; ok {
		if !req.MustBeFresh || e.resp.Fresh(e.cumTime, node.Now()) {
			node.Send(simnet.Message{Payload: e.resp}, from)
			return nil
		}
	}

	if p, ok := c.pending[key]; ok {
		p.from = append(p.from, from)
		return nil
	}
	c.pending[key] = &pendingEntry{req: req, from: []simnet.NodeID{from}}
	node.Send(simnet.Message{Payload: req}, c.Upstream)
	return nil
}

func (c *Cache) handleResponse(resp Response, node simnet.Node) error {
	key := resp.Name.String()
	c.store[key] = cacheEntry{resp: resp, cumTime: node.Now()}
	p, ok := c.pending[key]
	if !ok {
		return nil
	}
	delete(c.pending, key)
	for _, to := range p.from {
		node.Send(simnet.Message{Payload: resp}, to)
	}
	return nil
}
