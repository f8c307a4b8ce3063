package telemetry

import (
	"math"
	"math/rand"
)

// SyntheticGenerator produces a plausible Dash sample stream for a car lapping
// a track at roughly constant pace: a few samples parked behind the start
// line, then Laps laps whose sector times vary by up to SectorJitter seconds,
// then one sample past the line to close the final lap.
type SyntheticGenerator struct {
	// Configuration
	TrackLength  float64 // metres
	BaseLapTime  float64 // seconds
	SectorJitter float64 // seconds, +/- per sector
	SampleRate   float64 // samples per second
	Laps         int
	PreRoll      int // samples reported before the start line
	TrackOrdinal int32
	CarOrdinal   int32

	rng *rand.Rand

	emitted  int
	lap      int
	step     int
	sectors  [3]float64
	lastLap  float64
	bestLap  float64
	raceTime float64
	done     bool
}

// NewSyntheticGenerator returns a generator for a 3 km track with a 90 s lap
// at 60 Hz. The seed makes runs reproducible.
func NewSyntheticGenerator(seed int64) *SyntheticGenerator {
	return &SyntheticGenerator{
		TrackLength:  3000,
		BaseLapTime:  90,
		SectorJitter: 0.5,
		SampleRate:   60,
		Laps:         3,
		PreRoll:      30,
		TrackOrdinal: 510,
		CarOrdinal:   2352,
		rng:          rand.New(rand.NewSource(seed)),
	}
}

func (g *SyntheticGenerator) rollSectors() {
	for i := range g.sectors {
		g.sectors[i] = g.BaseLapTime/3 + (g.rng.Float64()*2-1)*g.SectorJitter
	}
}

func (g *SyntheticGenerator) lapTotal() float64 {
	return g.sectors[0] + g.sectors[1] + g.sectors[2]
}

// Next returns the next sample, or false once the session is over.
func (g *SyntheticGenerator) Next() (*Sample, bool) {
	if g.done {
		return nil, false
	}
	dt := 1 / g.SampleRate

	if g.emitted < g.PreRoll {
		g.emitted++
		return g.sample(-g.TrackLength, 0, 0), true
	}
	if g.emitted == g.PreRoll && g.step == 0 && g.lap == 0 {
		g.rollSectors()
	}

	t := float64(g.step) * dt
	if t >= g.lapTotal()-1e-9 {
		total := g.lapTotal()
		g.lastLap = total
		if g.bestLap == 0 || total < g.bestLap {
			g.bestLap = total
		}
		g.raceTime += total
		g.lap++
		g.step = 0
		t = 0
		g.rollSectors()

		if g.lap >= g.Laps {
			g.done = true
			s := g.sample(float64(g.lap)*g.TrackLength+1, 0, g.TrackLength/g.sectors[0])
			return s, true
		}
	}

	sectorLen := g.TrackLength / 3
	var d, speed float64
	switch {
	case t < g.sectors[0]:
		speed = sectorLen / g.sectors[0]
		d = t * speed
	case t < g.sectors[0]+g.sectors[1]:
		speed = sectorLen / g.sectors[1]
		d = sectorLen + (t-g.sectors[0])*speed
	default:
		speed = sectorLen / g.sectors[2]
		d = 2*sectorLen + (t-g.sectors[0]-g.sectors[1])*speed
	}

	g.step++
	g.emitted++
	return g.sample(float64(g.lap)*g.TrackLength+d, t, speed), true
}

func (g *SyntheticGenerator) sample(distance, lapTime, speed float64) *Sample {
	rpm := 3000 + 4000*math.Min(speed/90, 1)
	gear := uint8(1 + math.Min(speed/15, 5))
	return &Sample{
		IsRaceOn:         true,
		TimestampMS:      uint32((g.raceTime + lapTime) * 1000),
		EngineMaxRPM:     8000,
		EngineIdleRPM:    900,
		CurrentRPM:       float32(rpm),
		Velocity:         Vec3{Z: float32(speed)},
		CarOrdinal:       g.CarOrdinal,
		CarClass:         4,
		PerformanceIndex: 800,
		Drivetrain:       1,
		NumCylinders:     8,
		Speed:            float32(speed),
		Fuel:             1,
		Distance:         float32(distance),
		BestLapTime:      float32(g.bestLap),
		LastLapTime:      float32(g.lastLap),
		LapTime:          float32(lapTime),
		CurrentRaceTime:  float32(g.raceTime + lapTime),
		LapNumber:        uint16(g.lap),
		RacePosition:     1,
		Accel:            255,
		Gear:             gear,
		TrackOrdinal:     g.TrackOrdinal,
	}
}
