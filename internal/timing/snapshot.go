package timing

// SectorState is the full per-sector view.
type SectorState struct {
	Index     int         `json:"index"`
	Current   NullFloat64 `json:"current"`
	Best      NullFloat64 `json:"best"`
	Last      NullFloat64 `json:"last"`
	CrossTime NullFloat64 `json:"cross_time"`
	// Delta is the running mini-sector delta to best for this sector.
	Delta float64 `json:"delta"`
}

// Vehicle carries the raw identifiers and display values of the latest sample.
// Ordinals are not resolved to names.
type Vehicle struct {
	IsRaceOn         bool    `json:"is_race_on"`
	CarOrdinal       int32   `json:"car_ordinal"`
	CarClass         int32   `json:"car_class"`
	PerformanceIndex int32   `json:"performance_index"`
	Drivetrain       int32   `json:"drivetrain"`
	TrackOrdinal     int32   `json:"track_ordinal"`
	SpeedMPS         float64 `json:"speed_mps"`
	RPM              float32 `json:"rpm"`
	MaxRPM           float32 `json:"max_rpm"`
	Gear             uint8   `json:"gear"`
	Accel            uint8   `json:"accel"`
	Brake            uint8   `json:"brake"`
	Fuel             float32 `json:"fuel"`
	RacePosition     uint8   `json:"race_position"`
}

// Snapshot is a point-in-time copy of everything the engine exposes.
type Snapshot struct {
	TrackLength       NullFloat64 `json:"track_length"`
	LapDistance       float64     `json:"lap_distance"`
	LapNumber         uint16      `json:"lap_number"`
	LapTime           float64     `json:"lap_time"`
	LastLapTime       float64     `json:"last_lap_time"`
	BestLapTime       float64     `json:"best_lap_time"`
	RaceTime          float64     `json:"race_time"`
	LapsCompleted     int         `json:"laps_completed"`
	FirstLapCompleted bool        `json:"first_lap_completed"`
	SessionBestLap    NullFloat64 `json:"session_best_lap"`

	CurrentSector    int              `json:"current_sector"`
	ActiveMiniSector int              `json:"active_mini_sector"`
	Sectors          []SectorState    `json:"sectors"`
	SectorDisplay    []SectorDisplay  `json:"sector_display"`
	MiniSectors      []MiniSectorInfo `json:"mini_sectors"`
	LiveDelta        float64          `json:"live_delta"`

	LapHistory  []float64 `json:"lap_history"`
	Consistency float64   `json:"consistency"`
	PaceTrend   float64   `json:"pace_trend"`

	SectorProjection *Projection `json:"sector_projection"`
	LapProjection    *Projection `json:"lap_projection"`

	Vehicle Vehicle `json:"vehicle"`
}

// Snapshot returns a copy of the engine's current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := e.sample
	snap := Snapshot{
		LapDistance:       e.lapDistance,
		LapNumber:         s.LapNumber,
		LapTime:           float64(s.LapTime),
		LastLapTime:       finiteOr0(float64(s.LastLapTime)),
		BestLapTime:       finiteOr0(float64(s.BestLapTime)),
		RaceTime:          finiteOr0(float64(s.CurrentRaceTime)),
		LapsCompleted:     e.lapsCompleted,
		FirstLapCompleted: e.firstLapCompleted,
		SessionBestLap:    e.bestLap,
		CurrentSector:     e.currentSectorLocked(),
		ActiveMiniSector:  e.miniSectors.ActiveIndex(),
		SectorDisplay:     e.sectorDisplayLocked(),
		MiniSectors:       e.miniSectors.DisplayInfo(),
		LiveDelta:         e.liveDeltaLocked(),
		LapHistory:        e.history.Values(),
		Consistency:       e.history.Consistency(),
		PaceTrend:         e.history.PaceTrend(),
		Vehicle: Vehicle{
			IsRaceOn:         s.IsRaceOn,
			CarOrdinal:       s.CarOrdinal,
			CarClass:         s.CarClass,
			PerformanceIndex: s.PerformanceIndex,
			Drivetrain:       s.Drivetrain,
			TrackOrdinal:     s.TrackOrdinal,
			SpeedMPS:         finiteOr0(s.VelocityMagnitude()),
			RPM:              float32(finiteOr0(float64(s.CurrentRPM))),
			MaxRPM:           float32(finiteOr0(float64(s.EngineMaxRPM))),
			Gear:             s.Gear,
			Accel:            s.Accel,
			Brake:            s.Brake,
			Fuel:             float32(finiteOr0(float64(s.Fuel))),
			RacePosition:     s.RacePosition,
		},
	}
	if e.trackKnown {
		snap.TrackLength = Float(e.trackLength)
	}

	deltas := e.miniSectors.SectorDeltas()
	snap.Sectors = make([]SectorState, SectorCount)
	for i := range snap.Sectors {
		snap.Sectors[i] = SectorState{
			Index:     i,
			Current:   e.current[i],
			Best:      e.best[i],
			Last:      e.last[i],
			CrossTime: e.crossTimes[i],
			Delta:     deltas[i],
		}
	}

	if p, ok := e.projectSectorLocked(snap.CurrentSector); ok {
		snap.SectorProjection = &p
	}
	if p, ok := e.projectLapLocked(); ok {
		snap.LapProjection = &p
	}
	return snap
}
