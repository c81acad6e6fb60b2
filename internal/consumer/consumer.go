// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

// Package consumer implements the Consumer Engine: the bootstrap/discovery
// protocol, DRD/lambda pacing, key frame retrieval, historical-delta
// catch-up, and timeout-driven retransmission.
package consumer

import (
	"math"
	"time"

	"github.com/ndn-rtc/rtcsim/internal/metrics"
	"github.com/ndn-rtc/rtcsim/internal/name"
	"github.com/ndn-rtc/rtcsim/internal/rto"
	"github.com/ndn-rtc/rtcsim/internal/simnet"
	"github.com/ndn-rtc/rtcsim/internal/wire"
)

// Config is the consumer configuration surface.
type Config struct {
	ConferencePrefix      name.Name // the delta-namespace prefix; its last component is stripped to form the discovery prefix
	MustBeFreshNum        uint
	SamplingRate          uint
	Freshness             simnet.Clock
	SegmentsPerDeltaFrame uint
	SegmentsPerKeyFrame   uint
	Number                uint
	RTTIdeal              uint
	MaxSeq                uint
	InterestLifeTime      simnet.Clock
	RTOInitial            simnet.Clock
	RTOMax                simnet.Clock

	Sink             metrics.RowSink
	InterarrivalSink metrics.RowSink
	Prom             *metrics.PromConsumer
}

// outstandingEntry is one (name, sendTime) pair in an in-flight table.
type outstandingEntry struct {
	name     name.Name
	sendTime simnet.Clock
	keyID    int64
	deltaID  int64
	segIdx   uint64
}

// frameKey identifies a frame for the per-frame segment counter used by
// last-segment-of-frame detection.
type frameKey struct {
	keyID   int64
	deltaID int64
}

// Consumer is the Consumer Engine. It implements simnet.Starter,
// simnet.Dinger and simnet.Handler; it arms its timers directly through
// simnet.Node, and Ding tells them apart by their data: retransmission
// timers carry their sequence number, discovery retries carry none.
type Consumer struct {
	cfg          Config
	discoveryPfx name.Name
	deltaPrefix  name.Name
	base         name.Name // <conf>/<producer>, the discovery/key namespace root
	producer     simnet.NodeID

	rto *rto.Manager

	t0          simnet.Clock
	freshRemain uint
	bootstrap   bool

	drd         float64
	lambda      int
	segsRecv    uint64
	inFlight    int
	initialLambda int

	currentDeltaNum        int64
	currentKeyNum          int64
	currentKeyNumForDeltas int64
	initialKeyFrameID      int64
	initialKeySegRecv      bool

	outstandingKeys         []outstandingEntry
	outstandingDeltas       []outstandingEntry
	outstandingPrevDeltas   []outstandingEntry
	allOutstanding          map[uint64]outstandingEntry
	frameSegsRemaining      map[frameKey]int
	nextSeq                 uint64
	lastDeltaArrival        simnet.Clock
	haveLastDeltaArrival    bool
}

// New returns a Consumer addressing producer over prefix cfg.ConferencePrefix,
// which is the full delta-namespace prefix (<conf>/<producer>/delta).
func New(cfg Config, producer simnet.NodeID) *Consumer {
	if cfg.Sink == nil {
		cfg.Sink = metrics.NilSink{}
	}
	if cfg.InterarrivalSink == nil {
		cfg.InterarrivalSink = metrics.NilSink{}
	}
	if cfg.RTOInitial == 0 {
		cfg.RTOInitial = simnet.Clock(40 * time.Millisecond)
	}
	if cfg.RTOMax == 0 {
		cfg.RTOMax = simnet.Clock(2 * time.Second)
	}
	base := cfg.ConferencePrefix.Prefix(1) // conferencePrefix is the delta-namespace prefix; strip "delta" to get <conf>/<producer>
	return &Consumer{
		cfg:                cfg,
		discoveryPfx:       base.AppendText("discovery"),
		deltaPrefix:        cfg.ConferencePrefix,
		base:               base,
		producer:           producer,
		rto:                rto.NewManager(cfg.RTOInitial, cfg.RTOMax),
		freshRemain:        cfg.MustBeFreshNum,
		allOutstanding:     make(map[uint64]outstandingEntry),
		frameSegsRemaining: make(map[frameKey]int),
	}
}

func (c *Consumer) period() simnet.Clock {
	return simnet.Clock(time.Second) / simnet.Clock(c.cfg.SamplingRate)
}

// Start implements simnet.Starter: issue the first discovery request.
func (c *Consumer) Start(node simnet.Node) error {
	c.t0 = node.Now()
	c.sendDiscovery(node)
	return nil
}

func (c *Consumer) sendDiscovery(node simnet.Node) {
	req := wire.Request{
		Name:        c.discoveryPfx,
		Nonce:       c.nonce(),
		Lifetime:    c.cfg.InterestLifeTime,
		MustBeFresh: c.freshRemain > 0,
	}
	c.track(req, node)
}

func (c *Consumer) nonce() uint32 {
	c.nextSeq++
	return uint32(c.nextSeq)
}

// track registers req in allOutstanding under a fresh local sequence
// number, arms its RTO, and sends it.
func (c *Consumer) track(req wire.Request, node simnet.Node) uint64 {
	seq := c.nextSeq
	c.allOutstanding[seq] = outstandingEntry{name: req.Name, sendTime: node.Now()}
	c.rto.Start(seq, node, timeoutData{seq: seq, req: req})
	node.Send(simnet.Message{Payload: req}, c.producer)
	return seq
}

type timeoutData struct {
	seq uint64
	req wire.Request
}

// Ding implements simnet.Dinger: either a retransmission timer fired, or
// (during bootstrap) it is time to reissue the discovery request.
func (c *Consumer) Ding(data any, node simnet.Node) error {
	switch td := data.(type) {
	case timeoutData:
		if _, live := c.allOutstanding[td.seq]; !live {
			return nil
		}
		next := c.rto.Expire(td.seq)
		node.Logf("timeout seq %d, retransmitting name %s, next rto %s", td.seq, td.req.Name, next)
		retx := td.req
		retx.Nonce = c.nonce()
		node.Timer(next, timeoutData{seq: td.seq, req: retx})
		node.Send(simnet.Message{Payload: retx}, c.producer)
	case discoveryRetry:
		c.sendDiscovery(node)
	}
	return nil
}

// Handle implements simnet.Handler: process a Response.
func (c *Consumer) Handle(msg simnet.Message, node simnet.Node) error {
	resp, ok := msg.Payload.(wire.Response)
	if !ok {
		return nil
	}
	seq, found := c.matchSeq(resp.Name)
	if found {
		c.rto.Cancel(seq)
		delete(c.allOutstanding, seq)
	}

	if !c.bootstrap {
		c.handleBootstrapResponse(resp, node)
		return nil
	}

	if resp.Name.Len() > 2 && resp.Name.At(2).Equal(name.Text("key")) {
		c.handleKeyResponse(resp, node)
		return nil
	}

	if c.matchPreviousDelta(resp.Name) {
		node.Logf("previous-delta response: %s", resp.Name)
		return nil
	}
	c.handleDeltaResponse(resp, node)
	return nil
}

// matchSeq finds the local sequence number for resp.Name, falling back to
// any stored discovery request when resp is a discovery response with no
// exact name match (the producer appends keyId/deltaId to the requested
// name, so an exact match never occurs for discovery).
func (c *Consumer) matchSeq(n name.Name) (uint64, bool) {
	for seq, e := range c.allOutstanding {
		if e.name.Equal(n) {
			return seq, true
		}
	}
	if n.Len() >= 1 && c.discoveryPfx.IsPrefixOf(n) {
		for seq, e := range c.allOutstanding {
			if e.name.Equal(c.discoveryPfx) {
				return seq, true
			}
		}
	}
	return 0, false
}

func (c *Consumer) handleBootstrapResponse(resp wire.Response, node simnet.Node) {
	n := resp.Name
	kv, _ := n.At(-2).SeqValue()
	dv, _ := n.At(-1).SeqValue()
	keyIDv := int64(kv)
	deltaIDv := int64(dv)

	if c.segsRecv == 0 {
		c.drd = float64(node.Now() - c.t0)
	}
	c.segsRecv++
	c.drd += (float64(node.Now()-c.t0) - c.drd) / float64(c.segsRecv)
	c.lambda = int(math.Ceil(c.drd / float64(c.period())))
	if c.segsRecv == 1 {
		c.initialLambda = c.lambda
	}
	c.reportGauges(node)

	c.currentKeyNum = keyIDv + 1
	c.currentKeyNumForDeltas = keyIDv + 1
	c.currentDeltaNum = 0
	c.initialKeyFrameID = c.currentKeyNum
	node.Logf("bootstrap response: keyId=%d deltaId=%d drd=%.3f lambda=%d", keyIDv, deltaIDv, c.drd, c.lambda)

	if c.freshRemain > 0 {
		c.freshRemain--
	}
	if c.freshRemain > 0 {
		node.Timer(resp.FreshnessPeriod+simnet.Clock(time.Millisecond), discoveryRetry{})
		return
	}

	c.bootstrap = true
	c.issueKeyBurst(node)
	if deltaIDv != 0 {
		c.issueHistoricalDeltas(keyIDv, deltaIDv, node)
	}
	c.scheduleDeltas(node)
}

type discoveryRetry struct{}

func (c *Consumer) issueKeyBurst(node simnet.Node) {
	prefix := c.base.AppendText("key").AppendSeq(uint64(c.currentKeyNum))
	for seg := uint64(0); seg < uint64(c.cfg.SegmentsPerKeyFrame); seg++ {
		n := prefix.AppendSeq(seg)
		req := wire.Request{Name: n, Nonce: c.nonce(), Lifetime: c.cfg.InterestLifeTime}
		seq := c.track(req, node)
		e := c.allOutstanding[seq]
		e.keyID = c.currentKeyNum
		e.segIdx = seg
		c.allOutstanding[seq] = e
		c.outstandingKeys = append(c.outstandingKeys, e)
	}
	c.currentKeyNum++
}

func (c *Consumer) issueHistoricalDeltas(keyID, uptoDeltaID int64, node simnet.Node) {
	base := c.deltaPrefix
	for did := int64(0); did <= uptoDeltaID; did++ {
		prefix := base.AppendSeq(uint64(did)).AppendText("paired-key").AppendSeq(uint64(keyID))
		for seg := uint64(0); seg < uint64(c.cfg.SegmentsPerDeltaFrame); seg++ {
			n := prefix.AppendSeq(seg)
			req := wire.Request{Name: n, Nonce: c.nonce(), Lifetime: c.cfg.InterestLifeTime}
			seq := c.track(req, node)
			e := c.allOutstanding[seq]
			e.keyID = keyID
			e.deltaID = did
			e.segIdx = seg
			c.allOutstanding[seq] = e
			c.outstandingPrevDeltas = append(c.outstandingPrevDeltas, e)
		}
	}
}

func (c *Consumer) matchPreviousDelta(n name.Name) bool {
	for i, e := range c.outstandingPrevDeltas {
		if e.name.Equal(n) {
			c.outstandingPrevDeltas = append(c.outstandingPrevDeltas[:i], c.outstandingPrevDeltas[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Consumer) handleKeyResponse(resp wire.Response, node simnet.Node) {
	for i, e := range c.outstandingKeys {
		if e.name.Equal(resp.Name) {
			node.Logf("key response rtt=%s name=%s", node.Now()-e.sendTime, resp.Name)
			c.logRow(node, node.Now()-e.sendTime, resp.Name)
			c.outstandingKeys = append(c.outstandingKeys[:i], c.outstandingKeys[i+1:]...)
			break
		}
	}
	if len(c.outstandingKeys) == 0 {
		c.issueKeyBurst(node)
	}
	if !c.initialKeySegRecv && resp.Name.Len() > 3 {
		if kv, ok := resp.Name.At(3).SeqValue(); ok && int64(kv) == c.initialKeyFrameID {
			c.initialKeySegRecv = true
			c.scheduleDeltas(node)
		}
	}
}

func (c *Consumer) handleDeltaResponse(resp wire.Response, node simnet.Node) {
	var match *outstandingEntry
	idx := -1
	for i := range c.outstandingDeltas {
		if c.outstandingDeltas[i].name.Equal(resp.Name) {
			match = &c.outstandingDeltas[i]
			idx = i
			break
		}
	}
	if match == nil {
		return
	}
	e := *match

	rtt := node.Now() - e.sendTime
	c.segsRecv++
	c.drd += (float64(rtt) - c.drd) / float64(c.segsRecv)

	fk := frameKey{keyID: e.keyID, deltaID: e.deltaID}
	c.frameSegsRemaining[fk]--
	last := c.frameSegsRemaining[fk] <= 0
	if last {
		c.inFlight--
		delete(c.frameSegsRemaining, fk)
	}

	c.outstandingDeltas = append(c.outstandingDeltas[:idx], c.outstandingDeltas[idx+1:]...)

	if e.segIdx == 0 {
		if c.haveLastDeltaArrival {
			darr := node.Now() - c.lastDeltaArrival
			c.cfg.InterarrivalSink.WriteRow(node.Now().String(), darr.String(), resp.Name.String())
		}
		c.lastDeltaArrival = node.Now()
		c.haveLastDeltaArrival = true
	}

	c.lambda = int(math.Ceil(c.drd / float64(c.period())))
	c.reportGauges(node)
	c.logRow(node, rtt, resp.Name)
	c.scheduleDeltas(node)
}

// scheduleDeltas issues new delta-frame requests to close the gap between
// lambda and inFlight.
func (c *Consumer) scheduleDeltas(node simnet.Node) {
	gap := c.lambda - c.inFlight
	for i := 0; i < gap; i++ {
		c.issueDeltaFrame(node)
	}
}

func (c *Consumer) issueDeltaFrame(node simnet.Node) {
	did := c.currentDeltaNum
	kid := c.currentKeyNumForDeltas
	prefix := c.deltaPrefix.AppendSeq(uint64(did)).AppendText("paired-key").AppendSeq(uint64(kid))
	fk := frameKey{keyID: kid, deltaID: did}
	c.frameSegsRemaining[fk] = int(c.cfg.SegmentsPerDeltaFrame)
	for seg := uint64(0); seg < uint64(c.cfg.SegmentsPerDeltaFrame); seg++ {
		n := prefix.AppendSeq(seg)
		req := wire.Request{Name: n, Nonce: c.nonce(), Lifetime: c.cfg.InterestLifeTime}
		seq := c.track(req, node)
		e := c.allOutstanding[seq]
		e.keyID = kid
		e.deltaID = did
		e.segIdx = seg
		c.allOutstanding[seq] = e
		c.outstandingDeltas = append(c.outstandingDeltas, e)
	}
	c.inFlight++

	dMax := int64(c.cfg.SamplingRate) - 2
	c.currentDeltaNum++
	if c.currentDeltaNum > dMax {
		c.currentDeltaNum = 0
		c.currentKeyNumForDeltas++
	}
}

func (c *Consumer) logRow(node simnet.Node, rtt simnet.Clock, n name.Name) {
	c.cfg.Sink.WriteRow(node.Now().String(), rtt.String(), n.String())
	if c.cfg.Prom != nil {
		c.cfg.Prom.RTT.Observe(rtt.Duration().Seconds())
	}
}

func (c *Consumer) reportGauges(node simnet.Node) {
	if c.cfg.Prom == nil {
		return
	}
	c.cfg.Prom.DRD.Set(simnet.Clock(c.drd).Duration().Seconds())
	c.cfg.Prom.Lambda.Set(float64(c.lambda))
	c.cfg.Prom.InFlight.Set(float64(c.inFlight))
}
