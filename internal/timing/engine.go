package timing

import (
	"math"
	"sync"

	"github.com/banshee-data/laptime.report/internal/telemetry"
)

const (
	// TrackBootstrapDistance is the distance below which a sample is taken to
	// carry the track length. The simulator reports minus the track length
	// while the car sits behind the start line.
	TrackBootstrapDistance = -100.0

	// WraparoundFraction is how far around the lap the previous position must
	// be for a drop in lap distance to count as crossing the line.
	WraparoundFraction = 0.9

	// MinProjectionSpeed floors the speed used to extrapolate remaining time.
	MinProjectionSpeed = 5.0 // m/s
)

// Engine turns an ordered stream of telemetry samples into lap, sector and
// mini-sector timing for a single session.
//
// Ingest must be called from one goroutine in arrival order. Views may be read
// concurrently; each returns a copy valid as of the last completed Ingest.
type Engine struct {
	mu sync.RWMutex

	trackLength float64
	trackKnown  bool

	lapDistance     float64
	prevLapDistance float64
	prevLapTime     float64
	prevLapNumber   uint16

	current    [SectorCount]NullFloat64
	best       [SectorCount]NullFloat64
	last       [SectorCount]NullFloat64
	crossTimes [SectorCount]NullFloat64

	firstLapCompleted bool
	lapsCompleted     int
	bestLap           NullFloat64

	miniSectors *MiniSectorTracker
	history     *LapHistory
	historyLap  uint16
	historySeen bool

	sample     telemetry.Sample
	haveSample bool

	listeners []EventHandler
}

// NewEngine returns an engine waiting for the track length to be reported.
func NewEngine() *Engine {
	return &Engine{
		miniSectors: NewMiniSectorTracker(),
		history:     NewLapHistory(LapHistoryCapacity),
	}
}

// Subscribe registers a handler called after every Ingest that produced
// events. Handlers run on the Ingest goroutine and must not block.
func (e *Engine) Subscribe(h EventHandler) {
	if h == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, h)
}

// Reset discards all session state, including the track length and personal
// bests. Subscribers are kept.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.trackLength, e.trackKnown = 0, false
	e.lapDistance, e.prevLapDistance, e.prevLapTime, e.prevLapNumber = 0, 0, 0, 0
	e.current = [SectorCount]NullFloat64{}
	e.best = [SectorCount]NullFloat64{}
	e.last = [SectorCount]NullFloat64{}
	e.crossTimes = [SectorCount]NullFloat64{}
	e.firstLapCompleted, e.lapsCompleted, e.bestLap = false, 0, NullFloat64{}
	e.miniSectors = NewMiniSectorTracker()
	e.history = NewLapHistory(LapHistoryCapacity)
	e.historyLap, e.historySeen = 0, false
	e.sample, e.haveSample = telemetry.Sample{}, false
}

// Ingest applies one decoded sample.
func (e *Engine) Ingest(s *telemetry.Sample) {
	if s == nil {
		return
	}
	e.mu.Lock()
	events := e.ingestLocked(s)
	listeners := e.listeners
	e.mu.Unlock()

	for _, ev := range events {
		for _, h := range listeners {
			h(ev)
		}
	}
}

func (e *Engine) ingestLocked(s *telemetry.Sample) []Event {
	var events []Event

	distance := float64(s.Distance)
	lapTime := float64(s.LapTime)
	// A corrupt frame must not reach the bests or the snapshot.
	if !finite(distance) || !finite(lapTime) {
		return events
	}

	e.sample = *s
	e.haveSample = true

	if !e.trackKnown && distance < TrackBootstrapDistance {
		e.trackLength = math.Abs(distance)
		e.trackKnown = true
		return append(events, Event{
			Kind:         EventTrackDetected,
			TrackLength:  e.trackLength,
			TrackOrdinal: s.TrackOrdinal,
			CarOrdinal:   s.CarOrdinal,
		})
	}

	if !e.trackKnown || distance < 0 {
		return events
	}

	lapDistance := math.Mod(distance, e.trackLength)
	sectorLen := e.trackLength / SectorCount
	e.lapDistance = lapDistance

	if lapDistance < e.prevLapDistance && e.prevLapDistance > WraparoundFraction*e.trackLength {
		events = append(events, e.completeLap(s, lapTime))
	}

	e.miniSectors.Update(lapTime, lapDistance, e.trackLength)

	for i := 0; i < SectorCount-1; i++ {
		boundary := float64(i+1) * sectorLen
		if e.crossTimes[i].Valid || lapDistance < boundary || e.prevLapDistance >= boundary {
			continue
		}
		e.crossTimes[i] = Float(lapTime)

		var start float64
		if i > 0 {
			if !e.crossTimes[i-1].Valid {
				continue
			}
			start = e.crossTimes[i-1].Float64
		}
		duration := lapTime - start
		pb := e.recordSector(i, duration)
		events = append(events, Event{
			Kind:         EventSectorCompleted,
			LapNumber:    s.LapNumber,
			Sector:       i,
			Time:         duration,
			PersonalBest: pb,
		})
	}

	e.prevLapDistance = lapDistance
	e.prevLapTime = lapTime
	e.prevLapNumber = s.LapNumber

	if s.LastLapTime > 0 && finite(float64(s.LastLapTime)) && (!e.historySeen || s.LapNumber != e.historyLap) {
		e.history.Push(float64(s.LastLapTime))
		e.historyLap = s.LapNumber
		e.historySeen = true
	}

	return events
}

// recordSector stores a sector duration for the current lap and updates the
// personal best. It reports whether the duration became the new best.
func (e *Engine) recordSector(i int, duration float64) bool {
	e.current[i] = Float(duration)
	if duration <= 0 {
		return false
	}
	// The first lap's times are accepted as the initial bests.
	if !e.firstLapCompleted || e.best[i].Improves(duration) {
		e.best[i] = Float(duration)
		return true
	}
	return false
}

// completeLap closes the final sector at the last lap time seen before the line
// and starts a new lap. lapTime is the first lap time of the new lap.
func (e *Engine) completeLap(s *telemetry.Sample, lapTime float64) Event {
	closeTime := e.prevLapTime

	ev := Event{
		Kind:      EventLapCompleted,
		LapNumber: e.prevLapNumber,
		Sector:    SectorCount - 1,
		Time:      closeTime,
	}

	if e.crossTimes[SectorCount-2].Valid {
		duration := closeTime - e.crossTimes[SectorCount-2].Float64
		e.recordSector(SectorCount-1, duration)
	}
	e.miniSectors.Close(closeTime)

	ev.Sectors = e.current
	if closeTime > 0 && e.bestLap.Improves(closeTime) {
		e.bestLap = Float(closeTime)
		ev.PersonalBest = true
	}
	ev.TrackLength = e.trackLength
	ev.TrackOrdinal = s.TrackOrdinal
	ev.CarOrdinal = s.CarOrdinal

	e.last = e.current
	e.current = [SectorCount]NullFloat64{}
	e.crossTimes = [SectorCount]NullFloat64{}
	e.prevLapDistance = 0
	e.firstLapCompleted = true
	e.lapsCompleted++
	e.miniSectors.Reset(lapTime)

	return ev
}

// TrackLength returns the detected track length in meters.
func (e *Engine) TrackLength() (float64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.trackLength, e.trackKnown
}

// CurrentSector returns the sector the car is in, or -1 before the track
// length is known.
func (e *Engine) CurrentSector() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.currentSectorLocked()
}

func (e *Engine) currentSectorLocked() int {
	if !e.trackKnown {
		return -1
	}
	idx := int(e.lapDistance / (e.trackLength / SectorCount))
	if idx >= SectorCount {
		idx = SectorCount - 1
	}
	return idx
}

// Consistency returns the population standard deviation of recent lap times.
func (e *Engine) Consistency() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.history.Consistency()
}

// PaceTrend returns the newest minus the oldest recent lap time.
func (e *Engine) PaceTrend() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.history.PaceTrend()
}

// LapHistory returns recent lap times, oldest first.
func (e *Engine) LapHistory() []float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.history.Values()
}

// SectorDisplay is the display view of one main sector.
type SectorDisplay struct {
	Index int     `json:"index"`
	Time  float64 `json:"time"`
	// Delta is nil until the sector has been timed on the current lap.
	Delta NullFloat64 `json:"delta"`
}

// SectorDisplayInfo returns, per sector, this lap's time and its delta to the
// personal best once recorded, otherwise the personal best (or 0) and no delta.
func (e *Engine) SectorDisplayInfo() []SectorDisplay {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sectorDisplayLocked()
}

func (e *Engine) sectorDisplayLocked() []SectorDisplay {
	out := make([]SectorDisplay, SectorCount)
	for i := range out {
		out[i].Index = i
		if e.current[i].Valid {
			out[i].Time = e.current[i].Float64
			out[i].Delta = Float(e.current[i].Float64 - e.best[i].Or(e.current[i].Float64))
			continue
		}
		out[i].Time = e.best[i].Or(0)
	}
	return out
}

// MiniSectorDisplayInfo returns time, best and delta for every mini-sector.
func (e *Engine) MiniSectorDisplayInfo() []MiniSectorInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.miniSectors.DisplayInfo()
}

// LiveDelta is the delta to personal best accumulated over the mini-sectors
// completed so far this lap.
func (e *Engine) LiveDelta() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.liveDeltaLocked()
}

func (e *Engine) liveDeltaLocked() float64 {
	d := e.miniSectors.SectorDeltas()
	return d[0] + d[1] + d[2]
}

// Projection is an estimate of a sector or lap time before it completes.
type Projection struct {
	Elapsed           float64     `json:"elapsed"`
	DistanceRemaining float64     `json:"distance_remaining"`
	Projected         float64     `json:"projected"`
	Best              NullFloat64 `json:"best"`
	Delta             NullFloat64 `json:"delta"`
}

// ProjectedSectorTime extrapolates the time for sector while the car is inside
// it. The bool is false when the car is elsewhere or the track is unknown.
func (e *Engine) ProjectedSectorTime(sector int) (Projection, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.projectSectorLocked(sector)
}

func (e *Engine) projectSectorLocked(sector int) (Projection, bool) {
	if !e.trackKnown || !e.haveSample || sector != e.currentSectorLocked() {
		return Projection{}, false
	}

	var start float64
	if sector > 0 {
		start = e.crossTimes[sector-1].Or(0)
	}
	end := float64(sector+1) * e.trackLength / SectorCount
	return e.project(float64(e.sample.LapTime)-start, end-e.lapDistance, e.best[sector]), true
}

// ProjectedLapTime extrapolates the time for the current lap.
func (e *Engine) ProjectedLapTime() (Projection, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.projectLapLocked()
}

func (e *Engine) projectLapLocked() (Projection, bool) {
	if !e.trackKnown || !e.haveSample {
		return Projection{}, false
	}
	return e.project(float64(e.sample.LapTime), e.trackLength-e.lapDistance, e.bestLap), true
}

func (e *Engine) project(elapsed, remaining float64, best NullFloat64) Projection {
	if remaining < 0 {
		remaining = 0
	}
	speed := MinProjectionSpeed
	if v := e.sample.VelocityMagnitude(); finite(v) && v > speed {
		speed = v
	}
	p := Projection{
		Elapsed:           elapsed,
		DistanceRemaining: remaining,
		Projected:         elapsed + remaining/speed,
		Best:              best,
	}
	if best.Valid {
		p.Delta = Float(p.Projected - best.Float64)
	}
	return p
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// finiteOr0 returns v, or 0 when v is NaN or infinite. JSON has no encoding
// for either, so display fields copied from a sample pass through it.
func finiteOr0(v float64) float64 {
	if !finite(v) {
		return 0
	}
	return v
}
