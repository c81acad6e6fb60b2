// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package scenario

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ndn-rtc/rtcsim/internal/consumer"
	"github.com/ndn-rtc/rtcsim/internal/metrics"
	"github.com/ndn-rtc/rtcsim/internal/producer"
	"github.com/ndn-rtc/rtcsim/internal/simnet"
	"github.com/ndn-rtc/rtcsim/internal/wire"
)

// Built is a Scenario instantiated into simnet node handlers, ready to run.
type Built struct {
	Sim       *simnet.Sim
	Producer  *producer.Producer
	Consumers []*consumer.Consumer
}

// Build instantiates s into a runnable simnet.Sim. Node 0 is the producer;
// any cache chain follows it; a Delay node sits on every edge (producer-to-
// first-cache, cache-to-cache, last-cache-or-producer-to-each-consumer);
// consumer nodes come last. reg may be nil to skip Prometheus metrics. runID
// tags every Prometheus series registered for this run.
func Build(s *Scenario, reg *prometheus.Registry, runID string) (*Built, error) {
	edgeDelay, err := ParseDuration(s.EdgeDelay)
	if err != nil {
		return nil, err
	}
	pf, err := ParseDuration(s.Producer.Freshness)
	if err != nil {
		return nil, err
	}

	var prodSink metrics.RowSink = metrics.NilSink{}
	if s.Producer.Filename != "" {
		sink, err := metrics.OpenCSV(s.Producer.Filename, []string{"Generation Time", "Frame Name"})
		if err != nil {
			return nil, err
		}
		prodSink = sink
	}

	prod := producer.New(producer.Config{
		ConferencePrefix:      s.ConferenceName(),
		ProducerPrefix:        s.ProducerName(),
		SamplingRate:          s.Producer.SamplingRate,
		SegmentsPerDeltaFrame: s.Producer.SegmentsPerDeltaFrame,
		SegmentsPerKeyFrame:   s.Producer.SegmentsPerKeyFrame,
		PayloadSize:           s.Producer.PayloadSize,
		Freshness:             pf,
		Signature:             s.Producer.Signature,
		TweakFreshness:        s.Producer.TweakFreshness,
		Sink:                  prodSink,
	})

	var handlers []simnet.Handler
	alloc := func(h simnet.Handler) simnet.NodeID {
		id := simnet.NodeID(len(handlers))
		handlers = append(handlers, h)
		return id
	}

	producerID := alloc(prod)

	// chainHead is the node a consumer-facing Delay attaches to: the last
	// cache in the chain, or the producer directly if there is no cache.
	chainHead := producerID
	for range s.Caches {
		delayID := alloc(nil)
		cacheID := alloc(nil)
		handlers[delayID] = wire.NewDelay(chainHead, cacheID, edgeDelay)
		handlers[cacheID] = wire.NewCache(delayID, nil) // downstream set patched below
		chainHead = cacheID
	}

	cons := make([]*consumer.Consumer, 0, len(s.Consumers))
	for i, cc := range s.Consumers {
		cf, err := ParseDuration(cc.Freshness)
		if err != nil {
			return nil, err
		}
		lifetime, err := ParseDuration(cc.InterestLifeTime)
		if err != nil {
			return nil, err
		}

		var sink, iaSink metrics.RowSink = metrics.NilSink{}, metrics.NilSink{}
		if cc.Filename != "" {
			fs, err := metrics.OpenCSV(cc.Filename, []string{"Time", "RTT", "Frame Name"})
			if err != nil {
				return nil, err
			}
			sink = fs
		}
		if cc.FilenameInterarrival != "" {
			fs, err := metrics.OpenCSV(cc.FilenameInterarrival, []string{"Time", "Darr", "Frame Name"})
			if err != nil {
				return nil, err
			}
			iaSink = fs
		}

		var prom *metrics.PromConsumer
		if reg != nil {
			label := cc.Name
			if label == "" {
				label = fmt.Sprintf("consumer-%d", i)
			}
			prom = metrics.NewPromConsumer(reg, label, runID)
		}

		delayID := alloc(nil)
		consumerID := alloc(nil)
		handlers[delayID] = wire.NewDelay(chainHead, consumerID, edgeDelay)

		c := consumer.New(consumer.Config{
			ConferencePrefix:      s.ConferenceName().Append(s.ProducerName()...).AppendText("delta"),
			MustBeFreshNum:        cc.MustBeFreshNum,
			SamplingRate:          cc.SamplingRate,
			Freshness:             cf,
			SegmentsPerDeltaFrame: cc.SegmentsPerDeltaFrame,
			SegmentsPerKeyFrame:   cc.SegmentsPerKeyFrame,
			Number:                cc.Number,
			RTTIdeal:              cc.RTTIdeal,
			MaxSeq:                cc.MaxSeq,
			InterestLifeTime:      lifetime,
			Sink:                  sink,
			InterarrivalSink:      iaSink,
			Prom:                  prom,
		}, delayID)
		handlers[consumerID] = c

		if cache, ok := handlers[chainHead].(*wire.Cache); ok {
			cache.Downstream[delayID] = true
		}

		cons = append(cons, c)
	}

	return &Built{
		Sim:       simnet.NewSim(handlers),
		Producer:  prod,
		Consumers: cons,
	}, nil
}
