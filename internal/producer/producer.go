// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

// Package producer implements the Producer Engine: frame generation on a
// fixed cadence, request handling (including the discovery/key/delta
// bare-prefix special cases), the freshness-tweak policy, and the
// pending-request buffer.
package producer

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ndn-rtc/rtcsim/internal/metrics"
	"github.com/ndn-rtc/rtcsim/internal/name"
	"github.com/ndn-rtc/rtcsim/internal/simnet"
	"github.com/ndn-rtc/rtcsim/internal/wire"
)

// maxGenerated bounds the generated-segment buffer; the oldest entries are
// evicted once it is exceeded.
const maxGenerated = 100

// Config is the producer configuration surface.
type Config struct {
	ConferencePrefix      name.Name
	ProducerPrefix        name.Name
	SamplingRate          uint
	SegmentsPerDeltaFrame uint
	SegmentsPerKeyFrame   uint
	PayloadSize           uint
	Freshness             simnet.Clock
	Signature             uint
	KeyLocator            name.Name
	TweakFreshness        bool
	Sink                  metrics.RowSink
}

const discoveryFreshness = simnet.Clock(90 * time.Millisecond)

// genRecord is one entry of the generated-segment buffer.
type genRecord struct {
	resp wire.Response
	// isKeyFrame, deltaID and segIdx classify the segment for the
	// freshness-tweak rule; isKeyFrame segments always use nominal freshness.
	isKeyFrame bool
	deltaID    int64
	segIdx     uint64
}

// Producer is the Producer Engine. It implements simnet.Starter,
// simnet.Dinger and simnet.Handler.
type Producer struct {
	cfg  Config
	base name.Name

	tick       uint64
	keyID      int64
	currentDid int64 // the within-epoch delta cursor used for discovery and the tweak rule
	D_MAX      int64

	lastDeltaID    int64
	lastDeltaKeyID int64

	generated     []string // names, in generation order, for eviction
	generatedBuf  map[string]genRecord
	pending       []string
	pendingReq    map[string]wire.Request
	pendingFrom   map[string][]simnet.NodeID
	pendingAt     map[string]simnet.Clock
}

// New returns a Producer for cfg.
func New(cfg Config) *Producer {
	if cfg.Sink == nil {
		cfg.Sink = metrics.NilSink{}
	}
	base := cfg.ConferencePrefix.Append(cfg.ProducerPrefix...)
	return &Producer{
		cfg:            cfg,
		base:           base,
		keyID:          -1,
		currentDid:     0,
		lastDeltaID:    -1,
		lastDeltaKeyID: -1,
		D_MAX:          int64(cfg.SamplingRate) - 2,
		generatedBuf:   make(map[string]genRecord),
		pendingReq:     make(map[string]wire.Request),
		pendingFrom:    make(map[string][]simnet.NodeID),
		pendingAt:      make(map[string]simnet.Clock),
	}
}

type tickTimer struct{}

// Start implements simnet.Starter: arm the first cadence tick T after start.
func (p *Producer) Start(node simnet.Node) error {
	node.Timer(p.period(), tickTimer{})
	return nil
}

func (p *Producer) period() simnet.Clock {
	return simnet.Clock(time.Second) / simnet.Clock(p.cfg.SamplingRate)
}

// Ding implements simnet.Dinger: advance the cadence by one tick.
func (p *Producer) Ding(data any, node simnet.Node) error {
	p.expirePending(node)
	if p.tick%uint64(p.cfg.SamplingRate) == 0 {
		p.genKey(node)
	} else {
		p.genDelta(node)
	}
	p.tick++
	node.Timer(p.period(), tickTimer{})
	return nil
}

func (p *Producer) genKey(node simnet.Node) {
	p.keyID++
	p.currentDid = 0
	prefix := p.base.AppendText("key").AppendSeq(uint64(p.keyID))
	for seg := uint64(0); seg < uint64(p.cfg.SegmentsPerKeyFrame); seg++ {
		n := prefix.AppendSeq(seg)
		p.storeAt(n, genRecord{resp: p.makeResponse(n, p.cfg.Freshness), isKeyFrame: true}, node)
	}
	node.Logf("generated key %d", p.keyID)
	p.drain(prefix, int(p.cfg.SegmentsPerKeyFrame), node)
}

func (p *Producer) genDelta(node simnet.Node) {
	did := p.currentDid
	// Advance the cursor before computing per-segment freshness below:
	// deltaFreshness judges "current" against p.currentDid-1, so the cursor
	// must already point past did for did's own segments to read as current.
	p.currentDid++
	if p.currentDid > p.D_MAX {
		p.currentDid = 0
	}

	prefix := p.base.AppendText("delta").AppendSeq(uint64(did)).
		AppendText("paired-key").AppendSeq(uint64(p.keyID))
	for seg := uint64(0); seg < uint64(p.cfg.SegmentsPerDeltaFrame); seg++ {
		n := prefix.AppendSeq(seg)
		fresh := p.deltaFreshness(did, seg)
		p.storeAt(n, genRecord{resp: p.makeResponse(n, fresh), isKeyFrame: false, deltaID: did, segIdx: seg}, node)
	}
	p.lastDeltaID = did
	p.lastDeltaKeyID = p.keyID
	node.Logf("generated delta %d/%d", p.keyID, did)
	p.drain(prefix, int(p.cfg.SegmentsPerDeltaFrame), node)
}

func (p *Producer) storeAt(n name.Name, rec genRecord, node simnet.Node) {
	key := n.String()
	p.generated = append(p.generated, key)
	p.generatedBuf[key] = rec
	if len(p.generated) > maxGenerated {
		oldest := p.generated[0]
		p.generated = p.generated[1:]
		delete(p.generatedBuf, oldest)
	}
	p.cfg.Sink.WriteRow(node.Now().String(), n.String())
}

func (p *Producer) makeResponse(n name.Name, freshness simnet.Clock) wire.Response {
	return wire.Response{
		Name:            n,
		Content:         make([]byte, p.cfg.PayloadSize),
		FreshnessPeriod: freshness,
		SignatureKind:   p.cfg.Signature,
		KeyLocator:      p.cfg.KeyLocator,
	}
}

// deltaFreshness implements the freshness-tweak policy for a generated or
// re-served delta segment (deltaID, segIdx). It judges "current" against
// p.currentDid-1, so callers must advance the cursor past deltaID before
// calling this for deltaID's own segments. The wrap case (currentDid has
// just reset to 0) only covers the last segment of the just-finished
// epoch's final delta frame, not every segment of it.
func (p *Producer) deltaFreshness(deltaID int64, segIdx uint64) simnet.Clock {
	if !p.cfg.TweakFreshness {
		return p.cfg.Freshness
	}
	isCurrent := deltaID == p.currentDid-1 ||
		(p.currentDid == 0 && deltaID == p.D_MAX && segIdx == uint64(p.cfg.SegmentsPerDeltaFrame)-1)
	if isCurrent {
		return p.cfg.Freshness
	}
	return 0
}

// drain serves any pending request whose name falls under prefix, stopping
// after max matches.
func (p *Producer) drain(prefix name.Name, max int, node simnet.Node) {
	served := 0
	remaining := p.pending[:0]
	for _, key := range p.pending {
		if served >= max {
			remaining = append(remaining, key)
			continue
		}
		rec, ok := p.generatedBuf[key]
		if !ok || !prefix.IsPrefixOf(nameFromRecord(rec)) {
			remaining = append(remaining, key)
			continue
		}
		p.respondAll(key, rec.resp, node)
		delete(p.pendingReq, key)
		delete(p.pendingFrom, key)
		delete(p.pendingAt, key)
		served++
	}
	p.pending = remaining
}

func nameFromRecord(rec genRecord) name.Name {
	return rec.resp.Name
}

func (p *Producer) respondAll(key string, resp wire.Response, node simnet.Node) {
	for _, to := range p.pendingFrom[key] {
		node.Send(simnet.Message{Payload: resp}, to)
	}
}

// expirePending drops any pending entry whose request lifetime has elapsed.
func (p *Producer) expirePending(node simnet.Node) {
	if len(p.pending) == 0 {
		return
	}
	remaining := p.pending[:0]
	for _, key := range p.pending {
		arrived := p.pendingAt[key]
		req := p.pendingReq[key]
		if req.Lifetime > 0 && node.Now()-arrived > req.Lifetime {
			node.Logf("pending request expired: %s", key)
			delete(p.pendingReq, key)
			delete(p.pendingFrom, key)
			delete(p.pendingAt, key)
			continue
		}
		remaining = append(remaining, key)
	}
	p.pending = remaining
}

// Handle implements simnet.Handler.
func (p *Producer) Handle(msg simnet.Message, node simnet.Node) error {
	req, ok := msg.Payload.(wire.Request)
	if !ok {
		return nil
	}
	from := msg.From()
	rest := req.Name[p.base.Len():]

	switch {
	case len(rest) == 1 && rest[0].Equal(name.Text("delta")):
		p.handleBareDelta(from, node)
		return nil
	case len(rest) == 1 && rest[0].Equal(name.Text("key")):
		p.handleBareKey(from, node)
		return nil
	case len(rest) == 1 && rest[0].Equal(name.Text("discovery")):
		p.handleDiscovery(req.Name, from, node)
		return nil
	default:
		p.handleGeneral(req, from, node)
		return nil
	}
}

func (p *Producer) handleBareDelta(from simnet.NodeID, node simnet.Node) {
	if p.lastDeltaID < 0 {
		return
	}
	n := p.base.AppendText("delta").AppendSeq(uint64(p.lastDeltaID)).
		AppendText("paired-key").AppendSeq(uint64(p.lastDeltaKeyID)).AppendSeq(0)
	node.Send(simnet.Message{Payload: p.makeResponse(n, p.cfg.Freshness)}, from)
}

func (p *Producer) handleBareKey(from simnet.NodeID, node simnet.Node) {
	if p.keyID < 0 {
		return
	}
	n := p.base.AppendText("key").AppendSeq(uint64(p.keyID)).AppendSeq(0).AppendSeq(uint64(p.currentDid))
	node.Send(simnet.Message{Payload: p.makeResponse(n, p.cfg.Freshness)}, from)
}

func (p *Producer) handleDiscovery(reqName name.Name, from simnet.NodeID, node simnet.Node) {
	n := reqName.AppendSeq(uint64(p.keyID)).AppendSeq(uint64(p.currentDid))
	node.Send(simnet.Message{Payload: p.makeResponse(n, discoveryFreshness)}, from)
}

func (p *Producer) handleGeneral(req wire.Request, from simnet.NodeID, node simnet.Node) {
	key := req.Name.String()
	if rec, ok := p.generatedBuf[key]; ok {
		resp := rec.resp
		if !rec.isKeyFrame {
			resp.FreshnessPeriod = p.deltaFreshness(rec.deltaID, rec.segIdx)
		}
		node.Send(simnet.Message{Payload: resp}, from)
		return
	}
	if _, ok := p.pendingReq[key]; ok {
		p.pendingFrom[key] = append(p.pendingFrom[key], from)
		logrus.WithField("node", int(node.ID())).Debugf("duplicate pending request: %s", key)
		return
	}
	p.pendingReq[key] = req
	p.pendingFrom[key] = []simnet.NodeID{from}
	p.pendingAt[key] = node.Now()
	p.pending = append(p.pending, key)
}
