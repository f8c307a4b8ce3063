package timing

// EventKind identifies a timing event.
type EventKind string

const (
	EventTrackDetected   EventKind = "track_detected"
	EventSectorCompleted EventKind = "sector_completed"
	EventLapCompleted    EventKind = "lap_completed"
)

// Event is emitted by Engine.Ingest when the session state crosses a boundary.
//
// Sector and Time describe the completed sector for EventSectorCompleted. For
// EventLapCompleted Time is the lap time and Sectors holds the lap's splits.
type Event struct {
	Kind         EventKind                `json:"kind"`
	LapNumber    uint16                   `json:"lap_number"`
	Sector       int                      `json:"sector"`
	Time         float64                  `json:"time"`
	PersonalBest bool                     `json:"personal_best"`
	Sectors      [SectorCount]NullFloat64 `json:"sectors"`
	TrackLength  float64                  `json:"track_length,omitempty"`
	TrackOrdinal int32                    `json:"track_ordinal"`
	CarOrdinal   int32                    `json:"car_ordinal"`
}

// EventHandler receives timing events.
type EventHandler func(Event)
