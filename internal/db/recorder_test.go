package db

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/laptime.report/internal/telemetry"
	"github.com/banshee-data/laptime.report/internal/timeutil"
	"github.com/banshee-data/laptime.report/internal/timing"
)

// MockLapStore records calls in memory.
type MockLapStore struct {
	mu         sync.Mutex
	sessions   []Session
	laps       []Lap
	sessionErr error
	lapErr     error
}

func (m *MockLapStore) StartSession(ctx context.Context, startedAt time.Time, trackLength float64, trackOrdinal, carOrdinal int32) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessionErr != nil {
		return Session{}, m.sessionErr
	}
	s := Session{
		SessionID:    "session-" + string(rune('a'+len(m.sessions))),
		StartedAt:    startedAt,
		TrackLength:  trackLength,
		TrackOrdinal: trackOrdinal,
		CarOrdinal:   carOrdinal,
	}
	m.sessions = append(m.sessions, s)
	return s, nil
}

func (m *MockLapStore) RecordLap(ctx context.Context, lap Lap) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lapErr != nil {
		return m.lapErr
	}
	m.laps = append(m.laps, lap)
	return nil
}

func (m *MockLapStore) snapshot() ([]Session, []Lap) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Session(nil), m.sessions...), append([]Lap(nil), m.laps...)
}

func lapEvent(lap uint16, lapTime float64, sectors ...float64) timing.Event {
	ev := timing.Event{Kind: timing.EventLapCompleted, LapNumber: lap, Time: lapTime, TrackLength: 3000}
	for i, s := range sectors {
		ev.Sectors[i] = timing.Float(s)
	}
	return ev
}

func TestLapRecorder_SessionsAndLaps(t *testing.T) {
	store := &MockLapStore{}
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	r := NewLapRecorder(store, clock, 0)

	r.HandleEvent(timing.Event{Kind: timing.EventTrackDetected, TrackLength: 4000, TrackOrdinal: 7, CarOrdinal: 9})
	r.HandleEvent(timing.Event{Kind: timing.EventSectorCompleted, Sector: 0, Time: 30})
	r.HandleEvent(lapEvent(0, 95, 30, 33, 32))
	r.HandleEvent(lapEvent(1, 94, 29))
	r.HandleEvent(timing.Event{Kind: timing.EventTrackDetected, TrackLength: 5000})
	r.HandleEvent(lapEvent(0, 120))

	r.Start(context.Background())
	r.Stop()

	sessions, laps := store.snapshot()
	require.Len(t, sessions, 2)
	assert.InDelta(t, 4000, sessions[0].TrackLength, 1e-9)
	assert.Equal(t, int32(7), sessions[0].TrackOrdinal)
	assert.Equal(t, int32(9), sessions[0].CarOrdinal)
	assert.True(t, sessions[0].StartedAt.Equal(clock.Now()))

	require.Len(t, laps, 3)
	assert.Equal(t, sessions[0].SessionID, laps[0].SessionID)
	assert.Equal(t, sessions[0].SessionID, laps[1].SessionID)
	assert.Equal(t, sessions[1].SessionID, laps[2].SessionID)

	require.NotNil(t, laps[0].Sectors[2])
	assert.InDelta(t, 32, *laps[0].Sectors[2], 1e-9)
	require.NotNil(t, laps[1].Sectors[0])
	assert.Nil(t, laps[1].Sectors[1])
	assert.Equal(t, 1, laps[1].LapNumber)

	current, ok := r.CurrentSession()
	require.True(t, ok)
	assert.Equal(t, sessions[1].SessionID, current.SessionID)
	assert.Equal(t, RecorderStats{Recorded: 3}, r.Stats())
}

func TestLapRecorder_LapWithoutTrackOpensSession(t *testing.T) {
	store := &MockLapStore{}
	r := NewLapRecorder(store, timeutil.NewMockClock(time.Unix(0, 0)), 4)
	_, ok := r.CurrentSession()
	assert.False(t, ok)

	r.HandleEvent(lapEvent(3, 91))
	r.Start(context.Background())
	r.Stop()

	sessions, laps := store.snapshot()
	require.Len(t, sessions, 1)
	assert.InDelta(t, 3000, sessions[0].TrackLength, 1e-9)
	require.Len(t, laps, 1)
	assert.Equal(t, 3, laps[0].LapNumber)
}

func TestLapRecorder_SkipsUntimedLap(t *testing.T) {
	store := &MockLapStore{}
	r := NewLapRecorder(store, nil, 4)
	r.HandleEvent(lapEvent(0, 0))
	r.Start(context.Background())
	r.Stop()

	sessions, laps := store.snapshot()
	assert.Empty(t, sessions)
	assert.Empty(t, laps)
}

func TestLapRecorder_DropsWhenFull(t *testing.T) {
	store := &MockLapStore{}
	r := NewLapRecorder(store, nil, 2)

	for i := 0; i < 5; i++ {
		r.HandleEvent(lapEvent(uint16(i), 90))
	}
	assert.Equal(t, 3, r.Stats().Dropped)

	r.Start(context.Background())
	r.Stop()
	r.Stop()

	_, laps := store.snapshot()
	assert.Len(t, laps, 2)
}

func TestLapRecorder_StoreErrors(t *testing.T) {
	t.Run("session", func(t *testing.T) {
		store := &MockLapStore{sessionErr: errors.New("disk full")}
		r := NewLapRecorder(store, nil, 4)
		r.HandleEvent(timing.Event{Kind: timing.EventTrackDetected, TrackLength: 4000})
		r.HandleEvent(lapEvent(0, 90))
		r.Start(context.Background())
		r.Stop()

		assert.Equal(t, RecorderStats{Failed: 2}, r.Stats())
	})

	t.Run("lap", func(t *testing.T) {
		store := &MockLapStore{lapErr: errors.New("locked")}
		r := NewLapRecorder(store, nil, 4)
		r.HandleEvent(lapEvent(0, 90))
		r.Start(context.Background())
		r.Stop()

		assert.Equal(t, RecorderStats{Failed: 1}, r.Stats())
	})
}

func TestLapRecorder_StopsOnContextCancel(t *testing.T) {
	store := &MockLapStore{}
	r := NewLapRecorder(store, nil, 4)

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	cancel()

	select {
	case <-r.done:
	case <-time.After(time.Second):
		t.Fatal("recorder did not stop")
	}
}

func TestLapRecorder_StopWithoutStart(t *testing.T) {
	r := NewLapRecorder(&MockLapStore{}, nil, 4)

	stopped := make(chan struct{})
	go func() {
		r.Stop()
		r.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked without a running loop")
	}

	// A stopped recorder does not start again.
	r.Start(context.Background())
	r.mu.Lock()
	defer r.mu.Unlock()
	assert.False(t, r.started)
}

func TestLapRecorder_StartTwice(t *testing.T) {
	store := &MockLapStore{}
	r := NewLapRecorder(store, nil, 4)
	r.Start(context.Background())
	r.Start(context.Background())

	r.HandleEvent(lapEvent(1, 90, 30, 30, 30))
	r.Stop()
	r.Stop()

	_, laps := store.snapshot()
	assert.Len(t, laps, 1)
}

// lapSamples walks trackLength meters at constant speed over lapTime seconds.
func lapSamples(lap uint16, start, trackLength, lapTime float64) []*telemetry.Sample {
	const dt = 0.1
	var out []*telemetry.Sample
	for k := 0; float64(k)*dt < lapTime-1e-9; k++ {
		t := float64(k) * dt
		out = append(out, &telemetry.Sample{
			Distance:  float32(start + t/lapTime*trackLength),
			LapTime:   float32(t),
			LapNumber: lap,
			Velocity:  telemetry.Vec3{Z: float32(trackLength / lapTime)},
		})
	}
	return out
}

func TestLapRecorder_ArchivesEngineLaps(t *testing.T) {
	db := setupTestDB(t)
	r := NewLapRecorder(db, nil, 0)
	r.Start(context.Background())

	engine := timing.NewEngine()
	engine.Subscribe(r.HandleEvent)

	const track = 3000.0
	engine.Ingest(&telemetry.Sample{Distance: -track})
	for lap := uint16(0); lap < 3; lap++ {
		for _, s := range lapSamples(lap, float64(lap)*track, track, 90-float64(lap)) {
			engine.Ingest(s)
		}
	}
	engine.Ingest(&telemetry.Sample{Distance: 3*track + 1, LapNumber: 3})
	r.Stop()

	session, ok := r.CurrentSession()
	require.True(t, ok)
	assert.InDelta(t, track, session.TrackLength, 1e-9)

	laps, err := db.Laps(context.Background(), session.SessionID, 0)
	require.NoError(t, err)
	require.Len(t, laps, 3)
	assert.Equal(t, 2, laps[0].LapNumber)
	assert.InDelta(t, 88, laps[0].LapTime, 0.2)
	assert.True(t, laps[0].PersonalBest)
	for _, lap := range laps {
		for i, s := range lap.Sectors {
			require.NotNil(t, s, "lap %d sector %d", lap.LapNumber, i)
		}
	}
}
