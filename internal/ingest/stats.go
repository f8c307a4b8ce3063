package ingest

import (
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/laptime.report/internal/monitoring"
	"github.com/banshee-data/laptime.report/internal/timeutil"
)

// PacketStats tracks datagram statistics with thread-safe operations
type PacketStats struct {
	mu             sync.Mutex
	clock          timeutil.Clock
	packetCount    int64
	byteCount      int64
	malformedCount int64
	droppedCount   int64
	sampleCount    int64
	lastReset      time.Time
}

// StatsSnapshot is one reporting interval's worth of counters.
type StatsSnapshot struct {
	Packets   int64         `json:"packets"`
	Bytes     int64         `json:"bytes"`
	Malformed int64         `json:"malformed"`
	Dropped   int64         `json:"dropped"`
	Samples   int64         `json:"samples"`
	Duration  time.Duration `json:"duration_ns"`
}

// NewPacketStats creates a new PacketStats instance
func NewPacketStats() *PacketStats {
	return NewPacketStatsWithClock(timeutil.RealClock{})
}

// NewPacketStatsWithClock creates a PacketStats instance that measures
// intervals with clock.
func NewPacketStatsWithClock(clock timeutil.Clock) *PacketStats {
	return &PacketStats{
		clock:     clock,
		lastReset: clock.Now(),
	}
}

// AddPacket increments packet count and byte count
func (ps *PacketStats) AddPacket(bytes int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.packetCount++
	ps.byteCount += int64(bytes)
}

// AddMalformed increments the count of datagrams that failed to decode
func (ps *PacketStats) AddMalformed() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.malformedCount++
}

// AddDropped increments the count of datagrams dropped on forward
func (ps *PacketStats) AddDropped() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.droppedCount++
}

// AddSample increments the count of samples fed to the timing engine
func (ps *PacketStats) AddSample() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.sampleCount++
}

// GetAndReset returns current stats and resets counters
func (ps *PacketStats) GetAndReset() StatsSnapshot {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := ps.clock.Now()
	snap := StatsSnapshot{
		Packets:   ps.packetCount,
		Bytes:     ps.byteCount,
		Malformed: ps.malformedCount,
		Dropped:   ps.droppedCount,
		Samples:   ps.sampleCount,
		Duration:  now.Sub(ps.lastReset),
	}

	ps.packetCount = 0
	ps.byteCount = 0
	ps.malformedCount = 0
	ps.droppedCount = 0
	ps.sampleCount = 0
	ps.lastReset = now

	return snap
}

// LogStats logs the counters accumulated since the previous call.
func (ps *PacketStats) LogStats() {
	s := ps.GetAndReset()
	if s.Packets == 0 && s.Dropped == 0 {
		return
	}
	secs := s.Duration.Seconds()
	if secs <= 0 {
		secs = 1
	}

	logMsg := fmt.Sprintf("Telemetry stats (/sec): %.1f KB, %.1f packets, %.1f samples",
		float64(s.Bytes)/secs/1024, float64(s.Packets)/secs, float64(s.Samples)/secs)
	if s.Malformed > 0 {
		logMsg += fmt.Sprintf(", %d malformed", s.Malformed)
	}
	if s.Dropped > 0 {
		logMsg += fmt.Sprintf(", %d dropped on forward", s.Dropped)
	}
	monitoring.Logf("%s", logMsg)
}
