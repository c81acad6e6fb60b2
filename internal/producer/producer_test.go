// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package producer_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndn-rtc/rtcsim/internal/name"
	"github.com/ndn-rtc/rtcsim/internal/producer"
	"github.com/ndn-rtc/rtcsim/internal/simnet"
	"github.com/ndn-rtc/rtcsim/internal/wire"
)

// fakeNode is a minimal simnet.Node double for driving a Producer without a
// running Sim: it records every Send and Timer call and lets the test
// advance simulated time directly.
type fakeNode struct {
	now  simnet.Clock
	sent []sent
}

type sent struct {
	resp wire.Response
	to   simnet.NodeID
}

func (f *fakeNode) Timer(delay simnet.Clock, data any) {}
func (f *fakeNode) Send(msg simnet.Message, to simnet.NodeID) {
	if r, ok := msg.Payload.(wire.Response); ok {
		f.sent = append(f.sent, sent{r, to})
	}
}
func (f *fakeNode) Now() simnet.Clock            { return f.now }
func (f *fakeNode) ID() simnet.NodeID            { return 0 }
func (f *fakeNode) Logf(format string, a ...any) {}
func (f *fakeNode) Shutdown()                    {}

func newProducer() *producer.Producer {
	return producer.New(producer.Config{
		ConferencePrefix:      name.Parse("/conf"),
		ProducerPrefix:        name.Parse("/producer"),
		SamplingRate:          30,
		SegmentsPerDeltaFrame: 5,
		SegmentsPerKeyFrame:   30,
		PayloadSize:           16,
		Freshness:             simnet.Clock(10 * time.Millisecond),
	})
}

func tick(t *testing.T, p *producer.Producer, node *fakeNode, n int) {
	for i := 0; i < n; i++ {
		require.NoError(t, p.Ding(struct{}{}, node))
	}
}

// TestBareKeyAndDiscovery exercises producer request-handling cases 2 and 3
// (bare key and discovery).
func TestBareKeyAndDiscovery(t *testing.T) {
	p := newProducer()
	node := &fakeNode{}
	require.NoError(t, p.Start(node))
	tick(t, p, node, 1) // generates key 0

	discoveryReq := wire.Request{Name: name.Parse("/conf/producer/discovery")}
	require.NoError(t, p.Handle(simnet.Message{Payload: discoveryReq}, node))
	require.Len(t, node.sent, 1)
	last := node.sent[len(node.sent)-1]
	assert.Equal(t, simnet.Clock(90*time.Millisecond), last.resp.FreshnessPeriod)
	assert.True(t, name.Parse("/conf/producer/discovery").IsPrefixOf(last.resp.Name))

	keyReq := wire.Request{Name: name.Parse("/conf/producer/key")}
	require.NoError(t, p.Handle(simnet.Message{Payload: keyReq}, node))
	last = node.sent[len(node.sent)-1]
	assert.Equal(t, 6, last.resp.Name.Len())
}

// TestGeneralRequestDirectHit covers case 4's direct-hit branch.
func TestGeneralRequestDirectHit(t *testing.T) {
	p := newProducer()
	node := &fakeNode{}
	require.NoError(t, p.Start(node))
	tick(t, p, node, 1) // key 0

	segName := name.Parse("/conf/producer/key").AppendSeq(0).AppendSeq(3)
	req := wire.Request{Name: segName}
	require.NoError(t, p.Handle(simnet.Message{Payload: req}, node))
	require.Len(t, node.sent, 1)
	assert.True(t, segName.Equal(node.sent[0].resp.Name))
}

// TestPendingDedup exercises S6: two requesters for an ungenerated segment
// both get answered once the segment is produced, and the pending buffer
// holds exactly one entry for it in the meantime.
func TestPendingDedup(t *testing.T) {
	p := newProducer()
	node := &fakeNode{}
	require.NoError(t, p.Start(node))

	segName := name.Parse("/conf/producer/delta").AppendSeq(0).AppendText("paired-key").AppendSeq(0).AppendSeq(0)
	req := wire.Request{Name: segName}
	require.NoError(t, p.Handle(simnet.Message{Payload: req}, node))
	require.NoError(t, p.Handle(simnet.Message{Payload: req}, node))
	assert.Empty(t, node.sent, "segment not yet generated, no response expected")

	tick(t, p, node, 2) // tick 0: key 0 (resets delta cursor); tick 1: delta 0
	require.Len(t, node.sent, 2, "both requesters should receive the generated segment")
	assert.True(t, segName.Equal(node.sent[0].resp.Name))
	assert.True(t, segName.Equal(node.sent[1].resp.Name))
}

// TestFreshnessTweakBoundary exercises S4: the wrap boundary segment keeps
// nominal freshness while other stale deltas get zero.
func TestFreshnessTweakBoundary(t *testing.T) {
	cfg := producer.Config{
		ConferencePrefix:      name.Parse("/conf"),
		ProducerPrefix:        name.Parse("/producer"),
		SamplingRate:          30,
		SegmentsPerDeltaFrame: 5,
		SegmentsPerKeyFrame:   30,
		PayloadSize:           16,
		Freshness:             simnet.Clock(10 * time.Millisecond),
		TweakFreshness:        true,
	}
	p := producer.New(cfg)
	node := &fakeNode{}
	require.NoError(t, p.Start(node))

	tick(t, p, node, 30) // key 0, deltas 0..28 (D_MAX=28), next tick wraps to key 1

	wrapSeg := name.Parse("/conf/producer/delta/28/paired-key/0/4")
	req := wire.Request{Name: wrapSeg}
	require.NoError(t, p.Handle(simnet.Message{Payload: req}, node))
	assert.Equal(t, simnet.Clock(10*time.Millisecond), node.sent[len(node.sent)-1].resp.FreshnessPeriod)

	staleSeg := name.Parse("/conf/producer/delta/28/paired-key/0/2")
	req = wire.Request{Name: staleSeg}
	require.NoError(t, p.Handle(simnet.Message{Payload: req}, node))
	assert.Equal(t, simnet.Clock(0), node.sent[len(node.sent)-1].resp.FreshnessPeriod)
}

// TestFreshnessCurrentFrameAtGeneration exercises the drain-at-generation
// path: a request pending before a delta frame is generated must see the
// same nominal freshness as a request made after the frame exists, since
// the frame being generated is by construction the current one.
func TestFreshnessCurrentFrameAtGeneration(t *testing.T) {
	cfg := producer.Config{
		ConferencePrefix:      name.Parse("/conf"),
		ProducerPrefix:        name.Parse("/producer"),
		SamplingRate:          30,
		SegmentsPerDeltaFrame: 5,
		SegmentsPerKeyFrame:   30,
		PayloadSize:           16,
		Freshness:             simnet.Clock(10 * time.Millisecond),
		TweakFreshness:        true,
	}
	p := producer.New(cfg)
	node := &fakeNode{}
	require.NoError(t, p.Start(node))
	tick(t, p, node, 1) // generates key 0, resets delta cursor to 0

	segName := name.Parse("/conf/producer/delta/0/paired-key/0/0")
	req := wire.Request{Name: segName}
	require.NoError(t, p.Handle(simnet.Message{Payload: req}, node))
	assert.Empty(t, node.sent, "segment not yet generated, request should be pending")

	tick(t, p, node, 1) // generates delta 0, draining the pending request above
	require.Len(t, node.sent, 1)
	assert.Equal(t, simnet.Clock(10*time.Millisecond), node.sent[0].resp.FreshnessPeriod,
		"the just-generated delta frame is current and keeps nominal freshness")
}
