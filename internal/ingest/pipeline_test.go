package ingest

import (
	"errors"
	"testing"

	"github.com/banshee-data/laptime.report/internal/monitoring"
	"github.com/banshee-data/laptime.report/internal/telemetry"
	"github.com/banshee-data/laptime.report/internal/timing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockIngester records ingested samples
type MockIngester struct {
	samples []*telemetry.Sample
}

func (m *MockIngester) Ingest(s *telemetry.Sample) {
	m.samples = append(m.samples, s)
}

// MockSink records captured frames
type MockSink struct {
	frames [][]byte
	err    error
}

func (m *MockSink) WriteFrame(frame []byte) error {
	if m.err != nil {
		return m.err
	}
	m.frames = append(m.frames, append([]byte(nil), frame...))
	return nil
}

func encode(t *testing.T, s *telemetry.Sample) []byte {
	t.Helper()
	buf, err := s.MarshalBinary()
	require.NoError(t, err)
	return buf
}

func TestPipeline_DecodesAndIngests(t *testing.T) {
	ing := &MockIngester{}
	stats := NewPacketStats()
	p := NewPipeline(PipelineConfig{Engine: ing, Stats: stats})

	require.NoError(t, p.HandleFrame(encode(t, &telemetry.Sample{Distance: 42, LapNumber: 2})))

	require.Len(t, ing.samples, 1)
	assert.Equal(t, float32(42), ing.samples[0].Distance)
	assert.Equal(t, uint16(2), ing.samples[0].LapNumber)
	assert.Equal(t, int64(1), stats.GetAndReset().Samples)
}

func TestPipeline_MalformedDropped(t *testing.T) {
	original := monitoring.Logf
	defer func() { monitoring.Logf = original }()
	var logged int
	monitoring.SetLogger(func(string, ...interface{}) { logged++ })

	ing := &MockIngester{}
	stats := NewPacketStats()
	p := NewPipeline(PipelineConfig{Engine: ing, Stats: stats})

	for i := 0; i < 3; i++ {
		assert.NoError(t, p.HandleFrame(make([]byte, 232)))
	}

	assert.Empty(t, ing.samples, "malformed frames never reach the engine")
	snap := stats.GetAndReset()
	assert.Equal(t, int64(3), snap.Malformed)
	assert.Equal(t, int64(0), snap.Samples)
	assert.Equal(t, 1, logged)
}

func TestPipeline_CapturesTrimmedFrame(t *testing.T) {
	sink := &MockSink{}
	p := NewPipeline(PipelineConfig{Engine: &MockIngester{}, Sink: sink})

	frame := append(encode(t, &telemetry.Sample{Gear: 3}), 0xAA, 0xBB)
	require.NoError(t, p.HandleFrame(frame))

	require.Len(t, sink.frames, 1)
	assert.Len(t, sink.frames[0], telemetry.FrameSize)
}

func TestPipeline_SinkError(t *testing.T) {
	ing := &MockIngester{}
	sink := &MockSink{err: errors.New("disk full")}
	p := NewPipeline(PipelineConfig{Engine: ing, Sink: sink})

	err := p.HandleFrame(encode(t, &telemetry.Sample{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, ing.samples)
}

func TestPipeline_FeedsTimingEngine(t *testing.T) {
	engine := timing.NewEngine()
	p := NewPipeline(PipelineConfig{Engine: engine})

	require.NoError(t, p.HandleFrame(encode(t, &telemetry.Sample{Distance: -4000})))
	require.NoError(t, p.HandleFrame(encode(t, &telemetry.Sample{Distance: 1340, LapTime: 22})))

	snap := engine.Snapshot()
	assert.Equal(t, timing.Float(4000), snap.TrackLength)
	assert.Equal(t, timing.Float(22), snap.Sectors[0].Best)
}
