package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// withFlags sets flag values for the duration of a test.
func withFlags(t *testing.T, set func()) {
	t.Helper()
	saved := struct {
		config, capture, db string
		forward, udp        int
		interval            time.Duration
	}{*configPath, *capturePath, *dbPath, *forwardPort, *udpPort, *logInterval}
	t.Cleanup(func() {
		*configPath, *capturePath, *dbPath = saved.config, saved.capture, saved.db
		*forwardPort, *udpPort, *logInterval = saved.forward, saved.udp, saved.interval
	})
	set()
}

func TestFlagDefaults(t *testing.T) {
	if *udpPort != 9999 {
		t.Errorf("expected udp-port default 9999, got %d", *udpPort)
	}
	if *listen != ":8080" {
		t.Errorf("expected listen default :8080, got %s", *listen)
	}
	if *forwardPort != 0 {
		t.Errorf("forwarding should be disabled by default, got port %d", *forwardPort)
	}
	if *pcapSpeed != 1.0 {
		t.Errorf("expected pcap-speed default 1.0, got %v", *pcapSpeed)
	}
}

func TestLoadConfig_FlagsOnly(t *testing.T) {
	withFlags(t, func() {
		*udpPort = 20127
		*logInterval = 10 * time.Second
	})

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.GetUDPPort() != 20127 {
		t.Errorf("GetUDPPort() = %d, want 20127", cfg.GetUDPPort())
	}
	if cfg.GetLogInterval() != 10*time.Second {
		t.Errorf("GetLogInterval() = %s, want 10s", cfg.GetLogInterval())
	}
	if cfg.ForwardingEnabled() {
		t.Error("forwarding should be disabled when -forward-port is 0")
	}
}

func TestLoadConfig_FileOverridesFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timing.json")
	if err := os.WriteFile(path, []byte(`{"udp_port": 20200, "forward_port": 9998, "db_path": "laps.db"}`), 0644); err != nil {
		t.Fatal(err)
	}
	withFlags(t, func() {
		*configPath = path
		*udpPort = 20127
		*capturePath = "frames.bin"
	})

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.GetUDPPort() != 20200 {
		t.Errorf("config file should override -udp-port, got %d", cfg.GetUDPPort())
	}
	if !cfg.ForwardingEnabled() || cfg.GetForwardPort() != 9998 {
		t.Errorf("forwarding from config file not applied: %v %d", cfg.ForwardingEnabled(), cfg.GetForwardPort())
	}
	if cfg.GetDBPath() != "laps.db" {
		t.Errorf("GetDBPath() = %q", cfg.GetDBPath())
	}
	if cfg.GetCapturePath() != "frames.bin" {
		t.Errorf("flag value should survive when the file omits it, got %q", cfg.GetCapturePath())
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	withFlags(t, func() { *udpPort = 0 })
	if _, err := loadConfig(); err == nil {
		t.Error("expected error for udp-port 0")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	withFlags(t, func() { *configPath = filepath.Join(t.TempDir(), "missing.json") })
	if _, err := loadConfig(); err == nil {
		t.Error("expected error for missing config file")
	}
}
