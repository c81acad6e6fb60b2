// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

// Package scenario loads a declarative topology file describing one
// conference: a producer, N consumers, an optional chain of caches
// between them, and per-edge propagation delay. It is the YAML-native
// generalization of a hardcoded topology wiring.
package scenario

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ndn-rtc/rtcsim/internal/name"
	"github.com/ndn-rtc/rtcsim/internal/simnet"
)

// Scenario is the top-level topology description.
type Scenario struct {
	ConferencePrefix string         `yaml:"conferencePrefix"`
	ProducerPrefix   string         `yaml:"producerPrefix"`
	Producer         ProducerConfig `yaml:"producer"`
	Consumers        []ConsumerConfig `yaml:"consumers"`
	Caches           []CacheConfig  `yaml:"caches"`
	EdgeDelay        string         `yaml:"edgeDelay"`
}

// ProducerConfig is the YAML shape of the producer configuration surface.
type ProducerConfig struct {
	SamplingRate          uint   `yaml:"samplingRate"`
	SegmentsPerDeltaFrame uint   `yaml:"segmentsPerDeltaFrame"`
	SegmentsPerKeyFrame   uint   `yaml:"segmentsPerKeyFrame"`
	PayloadSize           uint   `yaml:"payloadSize"`
	Freshness             string `yaml:"freshness"`
	Signature             uint   `yaml:"signature"`
	TweakFreshness        bool   `yaml:"tweakFreshness"`
	Filename              string `yaml:"filename"`
}

// ConsumerConfig is the YAML shape of the consumer configuration surface.
type ConsumerConfig struct {
	Name                  string `yaml:"name"`
	MustBeFreshNum        uint   `yaml:"mustBeFreshNum"`
	SamplingRate          uint   `yaml:"samplingRate"`
	Freshness             string `yaml:"freshness"`
	SegmentsPerDeltaFrame uint   `yaml:"segmentsPerDeltaFrame"`
	SegmentsPerKeyFrame   uint   `yaml:"segmentsPerKeyFrame"`
	Number                uint   `yaml:"number"`
	RTTIdeal              uint   `yaml:"rttIdeal"`
	MaxSeq                uint   `yaml:"maxSeq"`
	InterestLifeTime      string `yaml:"interestLifeTime"`
	Filename              string `yaml:"filename"`
	FilenameInterarrival  string `yaml:"filenameInterarrival"`
	PrintLambda           bool   `yaml:"printLambda"`
}

// CacheConfig names one cache node in the chain between consumers and the
// producer.
type CacheConfig struct {
	Name string `yaml:"name"`
}

// Load reads and parses a scenario file at path.
func Load(path string) (*Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario file: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parsing scenario file: %w", err)
	}
	if s.Producer.SamplingRate == 0 {
		s.Producer.SamplingRate = 30
	}
	if s.Producer.SegmentsPerDeltaFrame == 0 {
		s.Producer.SegmentsPerDeltaFrame = 5
	}
	if s.Producer.SegmentsPerKeyFrame == 0 {
		s.Producer.SegmentsPerKeyFrame = 30
	}
	if s.Producer.PayloadSize == 0 {
		s.Producer.PayloadSize = 1024
	}
	return &s, nil
}

// ParseDuration parses s as a Go duration, returning 0 for an empty string.
func ParseDuration(s string) (simnet.Clock, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parsing duration %q: %w", s, err)
	}
	return simnet.Clock(d), nil
}

// ConferenceName returns the scenario's conference prefix as a parsed Name.
func (s *Scenario) ConferenceName() name.Name {
	return name.Parse(s.ConferencePrefix)
}

// ProducerName returns the scenario's producer prefix as a parsed Name.
func (s *Scenario) ProducerName() name.Name {
	return name.Parse(s.ProducerPrefix)
}
