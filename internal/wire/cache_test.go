// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package wire_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndn-rtc/rtcsim/internal/name"
	"github.com/ndn-rtc/rtcsim/internal/simnet"
	"github.com/ndn-rtc/rtcsim/internal/wire"
)

type fakeNode struct {
	now  simnet.Clock
	sent map[simnet.NodeID][]simnet.Message
}

func newFakeNode() *fakeNode {
	return &fakeNode{sent: make(map[simnet.NodeID][]simnet.Message)}
}

func (f *fakeNode) Timer(delay simnet.Clock, data any) {}
func (f *fakeNode) Send(msg simnet.Message, to simnet.NodeID) {
	f.sent[to] = append(f.sent[to], msg)
}
func (f *fakeNode) Now() simnet.Clock            { return f.now }
func (f *fakeNode) ID() simnet.NodeID            { return 9 }
func (f *fakeNode) Logf(format string, a ...any) {}
func (f *fakeNode) Shutdown()                    {}

// TestCacheFanOut exercises the cache half of S6: two downstream requesters
// ask for the same uncached name before the upstream answers; both receive
// the single upstream response once it arrives.
func TestCacheFanOut(t *testing.T) {
	const upstream simnet.NodeID = 0
	const consumerA simnet.NodeID = 1
	const consumerB simnet.NodeID = 2

	c := wire.NewCache(upstream, []simnet.NodeID{consumerA, consumerB})
	node := newFakeNode()

	n := name.Parse("/conf/producer/delta/3/paired-key/1/0")
	req := wire.Request{Name: n}

	require.NoError(t, c.Handle(simnet.NewMessage(req, consumerA), node))
	require.NoError(t, c.Handle(simnet.NewMessage(req, consumerB), node))
	assert.Len(t, node.sent[upstream], 1, "only one forward upstream for the duplicate name")

	resp := wire.Response{Name: n, FreshnessPeriod: 0}
	require.NoError(t, c.Handle(simnet.NewMessage(resp, upstream), node))

	assert.Len(t, node.sent[consumerA], 1)
	assert.Len(t, node.sent[consumerB], 1)
}

// TestCacheServesFreshFromStore checks that a non-must-be-fresh request is
// answered from the cache's own copy without forwarding upstream again.
func TestCacheServesFreshFromStore(t *testing.T) {
	const upstream simnet.NodeID = 0
	const consumerA simnet.NodeID = 1

	c := wire.NewCache(upstream, []simnet.NodeID{consumerA})
	node := newFakeNode()

	n := name.Parse("/conf/producer/key/0/0")
	req := wire.Request{Name: n}
	require.NoError(t, c.Handle(simnet.NewMessage(req, consumerA), node))
	require.NoError(t, c.Handle(simnet.NewMessage(wire.Response{Name: n, FreshnessPeriod: 0}, upstream), node))
	assert.Len(t, node.sent[upstream], 1)

	req2 := wire.Request{Name: n, MustBeFresh: false}
	require.NoError(t, c.Handle(simnet.NewMessage(req2, consumerA), node))
	assert.Len(t, node.sent[upstream], 1, "second request answered from cache, no new upstream forward")
	assert.Len(t, node.sent[consumerA], 2)
}
