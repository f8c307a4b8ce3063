// Package api serves the live timing state and the lap archive over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/banshee-data/laptime.report/internal/db"
	"github.com/banshee-data/laptime.report/internal/httputil"
	"github.com/banshee-data/laptime.report/internal/timing"
	"github.com/banshee-data/laptime.report/internal/units"
	"github.com/banshee-data/laptime.report/internal/version"
)

// TimingSource is the engine as seen by the API. Handlers read one Snapshot
// per request so every field comes from the same sample.
type TimingSource interface {
	Snapshot() timing.Snapshot
	Reset()
}

// LapArchive reads archived sessions and laps.
type LapArchive interface {
	Laps(ctx context.Context, sessionID string, limit int) ([]db.Lap, error)
	Sessions(ctx context.Context, limit int) ([]db.Session, error)
}

// SessionSource reports the session laps are currently archived under.
type SessionSource interface {
	CurrentSession() (db.Session, bool)
}

// ServerConfig wires the server's collaborators. Archive and Sessions may be
// nil when the archive is disabled.
type ServerConfig struct {
	Engine   TimingSource
	Archive  LapArchive
	Sessions SessionSource
	Units    string
}

type Server struct {
	engine   TimingSource
	archive  LapArchive
	sessions SessionSource
	units    string
}

func NewServer(config ServerConfig) *Server {
	u := config.Units
	if !units.IsValid(u) {
		u = units.MPH
	}
	return &Server{
		engine:   config.Engine,
		archive:  config.Archive,
		sessions: config.Sessions,
		units:    u,
	}
}

const (
	defaultLapLimit     = 20
	maxLapLimit         = 1000
	defaultSessionLimit = 20
)

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/timing", s.showTiming)
	mux.HandleFunc("/api/timing/sectors", s.showSectors)
	mux.HandleFunc("/api/timing/minisectors", s.showMiniSectors)
	mux.HandleFunc("/api/timing/projection", s.showProjection)
	mux.HandleFunc("/api/timing/reset", s.resetTiming)
	mux.HandleFunc("/api/laps", s.listLaps)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/version", s.showVersion)
	return mux
}

// requestUnits returns the units query parameter, or the server default.
func (s *Server) requestUnits(w http.ResponseWriter, r *http.Request) (string, bool) {
	u := r.URL.Query().Get("units")
	if u == "" {
		return s.units, true
	}
	if !units.IsValid(u) {
		httputil.BadRequest(w, "Invalid 'units' parameter, must be one of: "+units.GetValidUnitsString())
		return "", false
	}
	return u, true
}

// timingResponse is the snapshot plus values formatted for display.
type timingResponse struct {
	timing.Snapshot
	Units   string        `json:"units"`
	Speed   float64       `json:"speed"`
	Display timingDisplay `json:"display"`
}

type timingDisplay struct {
	LapTime     string `json:"lap_time"`
	LastLapTime string `json:"last_lap_time"`
	BestLapTime string `json:"best_lap_time"`
	LiveDelta   string `json:"live_delta"`
}

func (s *Server) showTiming(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	u, ok := s.requestUnits(w, r)
	if !ok {
		return
	}

	snap := s.engine.Snapshot()
	resp := timingResponse{
		Snapshot: snap,
		Units:    u,
		Speed:    units.ConvertSpeed(snap.Vehicle.SpeedMPS, u),
		Display: timingDisplay{
			LapTime:     units.FormatLapTime(snap.LapTime),
			LastLapTime: units.FormatLapTime(snap.LastLapTime),
			BestLapTime: units.FormatLapTime(snap.SessionBestLap.Or(-1)),
			LiveDelta:   units.FormatDelta(snap.LiveDelta),
		},
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) showSectors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	snap := s.engine.Snapshot()
	httputil.WriteJSONOK(w, map[string]interface{}{
		"current_sector": snap.CurrentSector,
		"sectors":        snap.SectorDisplay,
	})
}

func (s *Server) showMiniSectors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	snap := s.engine.Snapshot()
	httputil.WriteJSONOK(w, map[string]interface{}{
		"active":       snap.ActiveMiniSector,
		"live_delta":   snap.LiveDelta,
		"mini_sectors": snap.MiniSectors,
	})
}

func (s *Server) showProjection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	snap := s.engine.Snapshot()
	httputil.WriteJSONOK(w, struct {
		CurrentSector int                `json:"current_sector"`
		Sector        *timing.Projection `json:"sector"`
		Lap           *timing.Projection `json:"lap"`
	}{
		CurrentSector: snap.CurrentSector,
		Sector:        snap.SectorProjection,
		Lap:           snap.LapProjection,
	})
}

func (s *Server) resetTiming(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	s.engine.Reset()
	httputil.WriteJSONOK(w, map[string]string{"status": "reset"})
}

func (s *Server) listLaps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	if s.archive == nil {
		httputil.ServiceUnavailable(w, "lap archive is disabled")
		return
	}

	limit, err := httputil.QueryInt(r, "limit", defaultLapLimit, 1, maxLapLimit)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		if s.sessions == nil {
			httputil.NotFound(w, "no active session")
			return
		}
		current, ok := s.sessions.CurrentSession()
		if !ok {
			httputil.NotFound(w, "no active session")
			return
		}
		sessionID = current.SessionID
	}

	laps, err := s.archive.Laps(r.Context(), sessionID, limit)
	if err != nil {
		httputil.InternalServerError(w, "Failed to retrieve laps: "+err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"session_id": sessionID,
		"laps":       laps,
	})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	if s.archive == nil {
		httputil.ServiceUnavailable(w, "lap archive is disabled")
		return
	}

	limit, err := httputil.QueryInt(r, "limit", defaultSessionLimit, 1, maxLapLimit)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	sessions, err := s.archive.Sessions(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, "Failed to retrieve sessions: "+err.Error())
		return
	}
	httputil.WriteJSONOK(w, sessions)
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"units":             s.units,
		"archive_enabled":   s.archive != nil,
		"sector_count":      timing.SectorCount,
		"mini_sector_count": timing.MiniSectorCount,
	})
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, version.Get())
}
