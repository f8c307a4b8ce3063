// Command timing receives Forza Dash telemetry and serves live lap, sector
// and mini-sector timing over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/laptime.report/internal/api"
	"github.com/banshee-data/laptime.report/internal/capture"
	"github.com/banshee-data/laptime.report/internal/config"
	"github.com/banshee-data/laptime.report/internal/db"
	"github.com/banshee-data/laptime.report/internal/ingest"
	"github.com/banshee-data/laptime.report/internal/network"
	"github.com/banshee-data/laptime.report/internal/timing"
	"github.com/banshee-data/laptime.report/internal/units"
	"github.com/banshee-data/laptime.report/internal/version"
)

var (
	configPath     = flag.String("config", "", "Path to a JSON config file; its values override flags")
	udpPort        = flag.Int("udp-port", config.DefaultUDPPort, "UDP port the game sends Dash telemetry to")
	udpAddress     = flag.String("udp-address", config.DefaultUDPAddress, "Address to bind the UDP listener to")
	listen         = flag.String("listen", config.DefaultHTTPListen, "HTTP listen address")
	rcvBuf         = flag.Int("rcvbuf", config.DefaultRcvBuf, "UDP receive buffer size in bytes")
	logInterval    = flag.Duration("log-interval", config.DefaultLogInterval, "Interval between packet statistics log lines")
	forwardPort    = flag.Int("forward-port", 0, "Relay raw datagrams to this UDP port (0 disables)")
	forwardAddress = flag.String("forward-address", "localhost", "Host to relay raw datagrams to")
	capturePath    = flag.String("capture", "", "Append every received frame to this capture file")
	dbPath         = flag.String("db", "", "SQLite lap archive path (empty disables the archive)")
	speedUnits     = flag.String("units", config.DefaultUnits, "Speed units for the API ("+units.GetValidUnitsString()+")")
	pcapFile       = flag.String("pcap", "", "Replay a PCAP capture instead of listening (requires -tags=pcap)")
	pcapSpeed      = flag.Float64("pcap-speed", 1.0, "PCAP replay speed multiplier (0 replays as fast as possible)")
	showVersion    = flag.Bool("version", false, "Print the version and exit")
)

func loadConfig() (*config.ServiceConfig, error) {
	li := logInterval.String()
	cfg := &config.ServiceConfig{
		UDPPort:        udpPort,
		UDPAddress:     udpAddress,
		HTTPListen:     listen,
		RcvBuf:         rcvBuf,
		LogInterval:    &li,
		ForwardAddress: forwardAddress,
		CapturePath:    capturePath,
		DBPath:         dbPath,
		Units:          speedUnits,
	}
	if *forwardPort != 0 {
		cfg.ForwardPort = forwardPort
	}

	if *configPath != "" {
		fileCfg, err := config.LoadServiceConfig(*configPath)
		if err != nil {
			return nil, err
		}
		cfg.Overlay(fileCfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get())
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *pcapFile != "" && !network.PCAPAvailable {
		log.Fatal("PCAP replay requested but this binary was built without -tags=pcap")
	}
	log.Printf("laptime.report %s", version.Get())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine := timing.NewEngine()
	engine.Subscribe(func(ev timing.Event) {
		switch ev.Kind {
		case timing.EventTrackDetected:
			log.Printf("Track detected: %.1f m (track %d, car %d)", ev.TrackLength, ev.TrackOrdinal, ev.CarOrdinal)
		case timing.EventLapCompleted:
			pb := ""
			if ev.PersonalBest {
				pb = " (personal best)"
			}
			log.Printf("Lap %d: %s%s", ev.LapNumber, units.FormatLapTime(ev.Time), pb)
		}
	})

	stats := ingest.NewPacketStats()
	pipelineCfg := ingest.PipelineConfig{Engine: engine, Stats: stats}

	if path := cfg.GetCapturePath(); path != "" {
		w, err := capture.Create(path)
		if err != nil {
			log.Fatalf("Failed to open capture file: %v", err)
		}
		defer func() {
			if err := w.Close(); err != nil {
				log.Printf("Failed to close capture file: %v", err)
			}
			log.Printf("Captured %d frames to %s", w.FrameCount(), w.Path())
		}()
		pipelineCfg.Sink = w
	}
	pipeline := ingest.NewPipeline(pipelineCfg)

	serverCfg := api.ServerConfig{Engine: engine, Units: cfg.GetUnits()}

	var (
		archive  *db.DB
		recorder *db.LapRecorder
	)
	if path := cfg.GetDBPath(); path != "" {
		archive, err = db.NewDB(path)
		if err != nil {
			log.Fatalf("Failed to open lap archive: %v", err)
		}
		defer archive.Close()

		recorder = db.NewLapRecorder(archive, nil, db.DefaultRecorderBuffer)
		engine.Subscribe(recorder.HandleEvent)
		recorder.Start(ctx)
		serverCfg.Archive = archive
		serverCfg.Sessions = recorder
	}

	var forwarder *network.PacketForwarder
	if cfg.ForwardingEnabled() {
		forwarder, err = network.NewPacketForwarder(cfg.GetForwardAddress(), cfg.GetForwardPort(), stats, cfg.GetLogInterval())
		if err != nil {
			log.Fatalf("Failed to create forwarder: %v", err)
		}
		defer forwarder.Close()
		// PCAP replay has no listener to start it.
		forwarder.Start(ctx)
	}

	var wg sync.WaitGroup

	// telemetry input: live UDP or PCAP replay
	wg.Add(1)
	go func() {
		defer wg.Done()
		if *pcapFile != "" {
			err := network.ReadPCAPFile(ctx, *pcapFile, cfg.GetUDPPort(), pipeline, stats, network.PCAPReplayConfig{
				SpeedMultiplier: *pcapSpeed,
				Forwarder:       forwarder,
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("PCAP replay failed: %v", err)
			}
			stats.LogStats()
			log.Printf("PCAP replay finished; serving final state until interrupted")
			return
		}

		listener := network.NewUDPListener(network.UDPListenerConfig{
			Address:     cfg.GetListenAddress(),
			RcvBuf:      cfg.GetRcvBuf(),
			LogInterval: cfg.GetLogInterval(),
			Stats:       stats,
			Forwarder:   forwarder,
			Handler:     pipeline,
		})
		if err := listener.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("UDP listener failed: %v", err)
			stop()
		}
		log.Print("UDP listener routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()
		if archive != nil {
			// mount the admin debugging routes (accessible only locally or over Tailscale)
			if err := archive.AttachAdminRoutes(mux); err != nil {
				log.Printf("Failed to attach admin routes: %v", err)
			}
		}
		mux.Handle("/api/", api.NewServer(serverCfg).ServeMux())

		server := &http.Server{
			Addr:              cfg.GetHTTPListen(),
			Handler:           api.LoggingMiddleware(mux),
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			log.Printf("HTTP server listening on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("HTTP server failed: %v", err)
				stop()
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	if recorder != nil {
		recorder.Stop()
		s := recorder.Stats()
		log.Printf("Lap archive: %d laps recorded, %d dropped, %d failed", s.Recorded, s.Dropped, s.Failed)
	}
	log.Printf("Graceful shutdown complete")
}
