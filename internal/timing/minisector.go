package timing

import "math"

const (
	SectorCount          = 3
	MiniSectorCount      = 9
	MiniSectorsPerSector = MiniSectorCount / SectorCount
)

// MiniSectorTracker times the nine equal-length mini-sectors of a lap and keeps
// a personal best for each. Deltas are recomputed only when the car moves into a
// different mini-sector.
type MiniSectorTracker struct {
	current      [MiniSectorCount]float64
	best         [MiniSectorCount]NullFloat64
	deltas       [MiniSectorCount]float64
	sectorDeltas [SectorCount]float64

	active    int
	startTime float64
	// started is false until a mini-sector boundary (or a lap reset) gives the
	// active mini-sector a meaningful start time.
	started bool
}

// MiniSectorInfo is the display view of one mini-sector.
type MiniSectorInfo struct {
	Index int         `json:"index"`
	Time  float64     `json:"time"`
	Best  NullFloat64 `json:"best"`
	Delta float64     `json:"delta"`
}

// NewMiniSectorTracker returns a tracker with no personal bests.
func NewMiniSectorTracker() *MiniSectorTracker {
	return &MiniSectorTracker{}
}

// MiniSectorIndex maps a position within the lap to its mini-sector.
func MiniSectorIndex(lapDistance, trackLength float64) int {
	idx := int(math.Floor(lapDistance / (trackLength / MiniSectorCount)))
	if idx < 0 {
		return 0
	}
	if idx >= MiniSectorCount {
		return MiniSectorCount - 1
	}
	return idx
}

// Update advances the tracker with the latest lap position. It returns true
// when a mini-sector was finalized.
func (t *MiniSectorTracker) Update(lapTime, lapDistance, trackLength float64) bool {
	idx := MiniSectorIndex(lapDistance, trackLength)
	if idx == t.active {
		return false
	}

	finalized := false
	if t.started {
		t.finalize(lapTime)
		finalized = true
	}
	t.active = idx
	t.startTime = lapTime
	t.started = true
	return finalized
}

// Close finalizes the active mini-sector at lapTime without advancing. Used at
// the finish line, where the next sample already belongs to the new lap.
func (t *MiniSectorTracker) Close(lapTime float64) {
	if t.started {
		t.finalize(lapTime)
	}
}

func (t *MiniSectorTracker) finalize(lapTime float64) {
	idx := t.active
	duration := lapTime - t.startTime

	// Non-positive durations come from lap time resets that land between two
	// samples; they are not measurements.
	delta := 0.0
	if duration > 0 {
		t.current[idx] = duration
		if t.best[idx].Improves(duration) {
			t.best[idx] = Float(duration)
		}
		delta = duration - t.best[idx].Float64
	}
	t.deltas[idx] = delta

	sector := idx / MiniSectorsPerSector
	sum := 0.0
	for i := sector * MiniSectorsPerSector; i <= idx; i++ {
		sum += t.deltas[i]
	}
	t.sectorDeltas[sector] = sum
}

// Reset clears the per-lap state at a lap boundary. Personal bests survive.
func (t *MiniSectorTracker) Reset(lapTime float64) {
	t.current = [MiniSectorCount]float64{}
	t.deltas = [MiniSectorCount]float64{}
	t.sectorDeltas = [SectorCount]float64{}
	t.active = 0
	t.startTime = lapTime
	t.started = true
}

// ActiveIndex returns the mini-sector currently being timed.
func (t *MiniSectorTracker) ActiveIndex() int {
	return t.active
}

// SectorDelta returns the running delta-to-best of a main sector. It only
// changes at mini-sector boundaries.
func (t *MiniSectorTracker) SectorDelta(sector int) float64 {
	if sector < 0 || sector >= SectorCount {
		return 0
	}
	return t.sectorDeltas[sector]
}

// SectorDeltas returns the running delta-to-best of every main sector.
func (t *MiniSectorTracker) SectorDeltas() [SectorCount]float64 {
	return t.sectorDeltas
}

// Best returns the personal best for a mini-sector.
func (t *MiniSectorTracker) Best(idx int) NullFloat64 {
	if idx < 0 || idx >= MiniSectorCount {
		return NullFloat64{}
	}
	return t.best[idx]
}

// DisplayInfo returns time, best and delta for every mini-sector.
func (t *MiniSectorTracker) DisplayInfo() []MiniSectorInfo {
	out := make([]MiniSectorInfo, MiniSectorCount)
	for i := range out {
		out[i] = MiniSectorInfo{
			Index: i,
			Time:  t.current[i],
			Best:  t.best[i],
			Delta: t.deltas[i],
		}
	}
	return out
}
