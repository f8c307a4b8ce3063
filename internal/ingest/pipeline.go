// Package ingest connects received datagrams to the timing engine.
package ingest

import (
	"fmt"
	"sync"

	"github.com/banshee-data/laptime.report/internal/monitoring"
	"github.com/banshee-data/laptime.report/internal/telemetry"
)

// Ingester consumes decoded samples in arrival order.
type Ingester interface {
	Ingest(s *telemetry.Sample)
}

// FrameSink receives every decodable frame, e.g. a capture file.
type FrameSink interface {
	WriteFrame(frame []byte) error
}

// Stats is the subset of PacketStats the pipeline updates.
type Stats interface {
	AddMalformed()
	AddSample()
}

// Pipeline decodes datagrams and feeds them to an Ingester. It is safe to
// call HandleFrame from one goroutine at a time only, matching the engine's
// single-writer contract.
type Pipeline struct {
	engine Ingester
	stats  Stats
	sink   FrameSink

	warnOnce sync.Once
}

// PipelineConfig contains configuration options for the pipeline
type PipelineConfig struct {
	Engine Ingester
	Stats  Stats     // Optional
	Sink   FrameSink // Optional: raw capture of decoded frames
}

// NewPipeline creates a pipeline from cfg.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	stats := cfg.Stats
	if stats == nil {
		stats = noopStats{}
	}
	return &Pipeline{
		engine: cfg.Engine,
		stats:  stats,
		sink:   cfg.Sink,
	}
}

type noopStats struct{}

func (noopStats) AddMalformed() {}
func (noopStats) AddSample()    {}

// HandleFrame decodes one datagram and applies it to the engine. Malformed
// datagrams are counted and dropped without error so the receive loop keeps
// going; only the first one is logged.
func (p *Pipeline) HandleFrame(frame []byte) error {
	sample, err := telemetry.Decode(frame)
	if err != nil {
		p.stats.AddMalformed()
		p.warnOnce.Do(func() {
			monitoring.Warnf("Dropping malformed telemetry (further drops are counted in stats): %v", err)
		})
		return nil
	}

	if p.sink != nil {
		if err := p.sink.WriteFrame(frame[:telemetry.FrameSize]); err != nil {
			return fmt.Errorf("failed to capture frame: %w", err)
		}
	}

	if p.engine != nil {
		p.engine.Ingest(sample)
	}
	p.stats.AddSample()
	return nil
}
