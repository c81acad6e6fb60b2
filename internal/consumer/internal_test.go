// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package consumer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndn-rtc/rtcsim/internal/name"
	"github.com/ndn-rtc/rtcsim/internal/simnet"
	"github.com/ndn-rtc/rtcsim/internal/wire"
)

type fakeNode struct {
	now   simnet.Clock
	sent  []wire.Request
	timer []struct {
		delay simnet.Clock
		data  any
	}
}

func (f *fakeNode) Timer(delay simnet.Clock, data any) {
	f.timer = append(f.timer, struct {
		delay simnet.Clock
		data  any
	}{delay, data})
}
func (f *fakeNode) Send(msg simnet.Message, to simnet.NodeID) {
	if r, ok := msg.Payload.(wire.Request); ok {
		f.sent = append(f.sent, r)
	}
}
func (f *fakeNode) Now() simnet.Clock            { return f.now }
func (f *fakeNode) ID() simnet.NodeID            { return 1 }
func (f *fakeNode) Logf(format string, a ...any) {}
func (f *fakeNode) Shutdown()                    {}

// TestTimeoutRetransmit exercises S5: an expired sequence is retransmitted
// with a fresh nonce, and the next RTO for that sequence doubles.
func TestTimeoutRetransmit(t *testing.T) {
	c := New(Config{
		ConferencePrefix:      name.Parse("/conf/producer/delta"),
		SamplingRate:          30,
		SegmentsPerDeltaFrame: 5,
		SegmentsPerKeyFrame:   30,
		RTOInitial:            simnet.Clock(40 * time.Millisecond),
		RTOMax:                simnet.Clock(2 * time.Second),
	}, 0)
	node := &fakeNode{now: simnet.Clock(2000 * time.Millisecond)}
	require.NoError(t, c.Start(node))
	require.Len(t, node.sent, 1)
	require.Len(t, node.timer, 1)

	origNonce := node.sent[0].Nonce
	td := node.timer[0].data.(timeoutData)

	node.now = simnet.Clock(2040 * time.Millisecond)
	require.NoError(t, c.Ding(td, node))

	require.Len(t, node.sent, 2, "expired sequence should be retransmitted")
	assert.NotEqual(t, origNonce, node.sent[1].Nonce)
	assert.True(t, node.sent[0].Name.Equal(node.sent[1].Name))

	require.Len(t, node.timer, 2)
	next := node.timer[1].data.(timeoutData)
	assert.Equal(t, td.seq, next.seq)
}

// TestLastSegmentOfFrameCounter exercises the counter-based equivalent of
// S3: the frame completes (inFlight decrements) only once every segment of
// it has been answered, regardless of arrival order.
func TestLastSegmentOfFrameCounter(t *testing.T) {
	c := New(Config{
		ConferencePrefix:      name.Parse("/conf/producer/delta"),
		SamplingRate:          30,
		SegmentsPerDeltaFrame: 5,
		SegmentsPerKeyFrame:   30,
	}, 0)
	node := &fakeNode{now: 0}

	fk := frameKey{keyID: 1, deltaID: 7}
	c.frameSegsRemaining[fk] = 5
	c.inFlight = 1
	for seg := uint64(0); seg < 5; seg++ {
		n := name.Parse("/conf/producer/delta/7/paired-key/1").AppendSeq(seg)
		e := outstandingEntry{name: n, sendTime: 0, keyID: 1, deltaID: 7, segIdx: seg}
		c.outstandingDeltas = append(c.outstandingDeltas, e)
	}

	// answer segments out of order: 3, then 0,1,2, then 4 last
	order := []int{3, 0, 1, 2, 4}
	for i, seg := range order {
		n := name.Parse("/conf/producer/delta/7/paired-key/1").AppendSeq(uint64(seg))
		c.handleDeltaResponse(wire.Response{Name: n}, node)
		if i < len(order)-1 {
			assert.Equal(t, 1, c.inFlight, "frame not complete until last segment answered")
		}
	}
	assert.Equal(t, 0, c.inFlight, "frame completes once every segment is answered")
}
