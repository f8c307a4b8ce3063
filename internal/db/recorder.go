package db

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/laptime.report/internal/monitoring"
	"github.com/banshee-data/laptime.report/internal/timeutil"
	"github.com/banshee-data/laptime.report/internal/timing"
)

// LapStore is the part of DB used by LapRecorder.
type LapStore interface {
	StartSession(ctx context.Context, startedAt time.Time, trackLength float64, trackOrdinal, carOrdinal int32) (Session, error)
	RecordLap(ctx context.Context, lap Lap) error
}

// DefaultRecorderBuffer is the number of events LapRecorder queues before
// dropping.
const DefaultRecorderBuffer = 64

// LapRecorder archives engine events off the ingest goroutine. A new session
// is started each time the engine detects a track; laps completed before any
// detection open a session lazily.
type LapRecorder struct {
	store LapStore
	clock timeutil.Clock

	events chan timing.Event
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once

	mu       sync.Mutex
	started  bool
	stopped  bool
	session  *Session
	recorded int
	dropped  int
	failed   int
}

// NewLapRecorder creates a recorder. A nil clock uses the wall clock and a
// buffer of zero or less uses DefaultRecorderBuffer.
func NewLapRecorder(store LapStore, clock timeutil.Clock, buffer int) *LapRecorder {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if buffer <= 0 {
		buffer = DefaultRecorderBuffer
	}
	return &LapRecorder{
		store:  store,
		clock:  clock,
		events: make(chan timing.Event, buffer),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// HandleEvent queues an event without blocking. It has the signature of
// timing.EventHandler so it can be passed to Engine.Subscribe.
func (r *LapRecorder) HandleEvent(ev timing.Event) {
	if ev.Kind != timing.EventTrackDetected && ev.Kind != timing.EventLapCompleted {
		return
	}
	select {
	case r.events <- ev:
	default:
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
	}
}

// Start runs the writer loop in a goroutine until ctx is cancelled or Stop
// is called. Queued events are written before the loop exits. Calls after the
// first are ignored.
func (r *LapRecorder) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.stopped {
		return
	}
	r.started = true

	go func() {
		defer close(r.done)
		for {
			select {
			case ev := <-r.events:
				r.process(ctx, ev)
			case <-r.stop:
				r.drain(ctx)
				return
			case <-ctx.Done():
				r.drain(context.Background())
				return
			}
		}
	}()
}

// Stop requests the loop to finish and waits for queued events to be written.
// Without a running loop it only prevents a later Start.
func (r *LapRecorder) Stop() {
	r.once.Do(func() { close(r.stop) })

	r.mu.Lock()
	started := r.started
	r.stopped = true
	r.mu.Unlock()
	if started {
		<-r.done
	}
}

func (r *LapRecorder) drain(ctx context.Context) {
	for {
		select {
		case ev := <-r.events:
			r.process(ctx, ev)
		default:
			return
		}
	}
}

func (r *LapRecorder) process(ctx context.Context, ev timing.Event) {
	switch ev.Kind {
	case timing.EventTrackDetected:
		r.startSession(ctx, ev)
	case timing.EventLapCompleted:
		if ev.Time <= 0 {
			return
		}
		r.mu.Lock()
		session := r.session
		r.mu.Unlock()
		if session == nil {
			if session = r.startSession(ctx, ev); session == nil {
				return
			}
		}

		lap := Lap{
			SessionID:    session.SessionID,
			LapNumber:    int(ev.LapNumber),
			LapTime:      ev.Time,
			PersonalBest: ev.PersonalBest,
			RecordedAt:   r.clock.Now(),
		}
		for i, s := range ev.Sectors {
			if s.Valid {
				v := s.Float64
				lap.Sectors[i] = &v
			}
		}

		err := r.store.RecordLap(ctx, lap)
		r.mu.Lock()
		defer r.mu.Unlock()
		if err != nil {
			r.failed++
			monitoring.Logf("lap recorder: %v", err)
			return
		}
		r.recorded++
	}
}

func (r *LapRecorder) startSession(ctx context.Context, ev timing.Event) *Session {
	s, err := r.store.StartSession(ctx, r.clock.Now(), ev.TrackLength, ev.TrackOrdinal, ev.CarOrdinal)
	if err != nil {
		r.mu.Lock()
		r.failed++
		r.mu.Unlock()
		monitoring.Logf("lap recorder: %v", err)
		return nil
	}
	monitoring.Logf("lap recorder: session %s started (track %.1f m)", s.SessionID, s.TrackLength)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.session = &s
	return &s
}

// CurrentSession returns the session laps are being written to.
func (r *LapRecorder) CurrentSession() (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return Session{}, false
	}
	return *r.session, true
}

// RecorderStats counts what LapRecorder has done with the events it was given.
type RecorderStats struct {
	Recorded int `json:"recorded"`
	Dropped  int `json:"dropped"`
	Failed   int `json:"failed"`
}

// Stats returns the recorder counters.
func (r *LapRecorder) Stats() RecorderStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RecorderStats{Recorded: r.recorded, Dropped: r.dropped, Failed: r.failed}
}
