package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session is one run of the timing engine on a detected track.
type Session struct {
	SessionID    string    `json:"session_id"`
	StartedAt    time.Time `json:"started_at"`
	TrackLength  float64   `json:"track_length"`
	TrackOrdinal int32     `json:"track_ordinal"`
	CarOrdinal   int32     `json:"car_ordinal"`
	LapCount     int       `json:"lap_count"`
	BestLapTime  *float64  `json:"best_lap_time"`
}

// Lap is an archived lap. Sector times are nil when the sector was not timed.
type Lap struct {
	SessionID    string      `json:"session_id"`
	LapNumber    int         `json:"lap_number"`
	LapTime      float64     `json:"lap_time"`
	Sectors      [3]*float64 `json:"sectors"`
	PersonalBest bool        `json:"personal_best"`
	RecordedAt   time.Time   `json:"recorded_at"`
}

// StartSession creates a session row and returns its id.
func (db *DB) StartSession(ctx context.Context, startedAt time.Time, trackLength float64, trackOrdinal, carOrdinal int32) (Session, error) {
	s := Session{
		SessionID:    uuid.NewString(),
		StartedAt:    startedAt.UTC(),
		TrackLength:  trackLength,
		TrackOrdinal: trackOrdinal,
		CarOrdinal:   carOrdinal,
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, started_at, track_length, track_ordinal, car_ordinal)
		VALUES (?, ?, ?, ?, ?)`,
		s.SessionID, s.StartedAt, s.TrackLength, s.TrackOrdinal, s.CarOrdinal,
	)
	if err != nil {
		return Session{}, fmt.Errorf("failed to insert session: %w", err)
	}
	return s, nil
}

// RecordLap stores a completed lap.
func (db *DB) RecordLap(ctx context.Context, lap Lap) error {
	if lap.RecordedAt.IsZero() {
		lap.RecordedAt = time.Now()
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO laps (
			session_id, lap_number, lap_time, sector1_time, sector2_time, sector3_time,
			personal_best, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		lap.SessionID, lap.LapNumber, lap.LapTime,
		nullable(lap.Sectors[0]), nullable(lap.Sectors[1]), nullable(lap.Sectors[2]),
		lap.PersonalBest, lap.RecordedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert lap %d: %w", lap.LapNumber, err)
	}
	return nil
}

// Laps returns up to limit laps of a session, most recent first. A limit of
// zero or less returns every lap.
func (db *DB) Laps(ctx context.Context, sessionID string, limit int) ([]Lap, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx,
		`SELECT session_id, lap_number, lap_time, sector1_time, sector2_time, sector3_time,
			personal_best, recorded_at
		FROM laps WHERE session_id = ?
		ORDER BY lap_number DESC, lap_id DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	laps := []Lap{}
	for rows.Next() {
		var (
			lap     Lap
			sectors [3]sql.NullFloat64
		)
		if err := rows.Scan(
			&lap.SessionID, &lap.LapNumber, &lap.LapTime,
			&sectors[0], &sectors[1], &sectors[2],
			&lap.PersonalBest, &lap.RecordedAt,
		); err != nil {
			return nil, err
		}
		for i, s := range sectors {
			if s.Valid {
				v := s.Float64
				lap.Sectors[i] = &v
			}
		}
		laps = append(laps, lap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return laps, nil
}

// Sessions returns up to limit sessions, newest first, with lap counts.
func (db *DB) Sessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx,
		`SELECT s.session_id, s.started_at, s.track_length, s.track_ordinal, s.car_ordinal,
			COUNT(l.lap_id), MIN(CASE WHEN l.lap_time > 0 THEN l.lap_time END)
		FROM sessions s
		LEFT JOIN laps l ON l.session_id = s.session_id
		GROUP BY s.session_id
		ORDER BY s.started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var (
			s    Session
			best sql.NullFloat64
		)
		if err := rows.Scan(
			&s.SessionID, &s.StartedAt, &s.TrackLength, &s.TrackOrdinal, &s.CarOrdinal,
			&s.LapCount, &best,
		); err != nil {
			return nil, err
		}
		if best.Valid {
			v := best.Float64
			s.BestLapTime = &v
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

func nullable(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
