// Package config loads the timing service configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/banshee-data/laptime.report/internal/units"
)

// Defaults used when a field is omitted from the config file.
const (
	DefaultUDPPort     = 9999
	DefaultUDPAddress  = "0.0.0.0"
	DefaultHTTPListen  = ":8080"
	DefaultRcvBuf      = 4 << 20 // 4MB
	DefaultLogInterval = time.Minute
	DefaultUnits       = units.MPH
)

// ServiceConfig is the JSON configuration for cmd/timing. All fields are
// optional; the Get* methods fall back to the defaults above.
type ServiceConfig struct {
	UDPPort    *int    `json:"udp_port,omitempty"`
	UDPAddress *string `json:"udp_address,omitempty"`
	HTTPListen *string `json:"http_listen,omitempty"`
	RcvBuf     *int    `json:"rcv_buf,omitempty"`

	LogInterval *string `json:"log_interval,omitempty"` // duration string like "30s"

	// Forwarding is enabled when forward_port is set.
	ForwardAddress *string `json:"forward_address,omitempty"`
	ForwardPort    *int    `json:"forward_port,omitempty"`

	CapturePath *string `json:"capture_path,omitempty"`
	DBPath      *string `json:"db_path,omitempty"`

	Units *string `json:"units,omitempty"`
}

// LoadServiceConfig loads a ServiceConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
func LoadServiceConfig(path string) (*ServiceConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &ServiceConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Overlay copies every field set in o over c.
func (c *ServiceConfig) Overlay(o *ServiceConfig) {
	if o == nil {
		return
	}
	if o.UDPPort != nil {
		c.UDPPort = o.UDPPort
	}
	if o.UDPAddress != nil {
		c.UDPAddress = o.UDPAddress
	}
	if o.HTTPListen != nil {
		c.HTTPListen = o.HTTPListen
	}
	if o.RcvBuf != nil {
		c.RcvBuf = o.RcvBuf
	}
	if o.LogInterval != nil {
		c.LogInterval = o.LogInterval
	}
	if o.ForwardAddress != nil {
		c.ForwardAddress = o.ForwardAddress
	}
	if o.ForwardPort != nil {
		c.ForwardPort = o.ForwardPort
	}
	if o.CapturePath != nil {
		c.CapturePath = o.CapturePath
	}
	if o.DBPath != nil {
		c.DBPath = o.DBPath
	}
	if o.Units != nil {
		c.Units = o.Units
	}
}

func validPort(p int) bool { return p > 0 && p <= 65535 }

// Validate checks that the configuration values are valid.
func (c *ServiceConfig) Validate() error {
	if c.UDPPort != nil && !validPort(*c.UDPPort) {
		return fmt.Errorf("udp_port must be between 1 and 65535, got %d", *c.UDPPort)
	}
	if c.ForwardPort != nil && !validPort(*c.ForwardPort) {
		return fmt.Errorf("forward_port must be between 1 and 65535, got %d", *c.ForwardPort)
	}
	if c.UDPAddress != nil && *c.UDPAddress != "" && net.ParseIP(*c.UDPAddress) == nil {
		return fmt.Errorf("udp_address must be an IP address, got %q", *c.UDPAddress)
	}
	if c.HTTPListen != nil {
		if _, _, err := net.SplitHostPort(*c.HTTPListen); err != nil {
			return fmt.Errorf("invalid http_listen %q: %w", *c.HTTPListen, err)
		}
	}
	if c.RcvBuf != nil && *c.RcvBuf < 0 {
		return fmt.Errorf("rcv_buf must be non-negative, got %d", *c.RcvBuf)
	}
	if c.LogInterval != nil && *c.LogInterval != "" {
		d, err := time.ParseDuration(*c.LogInterval)
		if err != nil {
			return fmt.Errorf("invalid log_interval '%s': %w", *c.LogInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("log_interval must be positive, got %s", d)
		}
	}
	if c.Units != nil && !units.IsValid(*c.Units) {
		return fmt.Errorf("invalid units %q, must be one of: %s", *c.Units, units.GetValidUnitsString())
	}
	return nil
}

// GetUDPPort returns the telemetry port or the default.
func (c *ServiceConfig) GetUDPPort() int {
	if c.UDPPort == nil {
		return DefaultUDPPort
	}
	return *c.UDPPort
}

// GetUDPAddress returns the bind address or the default.
func (c *ServiceConfig) GetUDPAddress() string {
	if c.UDPAddress == nil || *c.UDPAddress == "" {
		return DefaultUDPAddress
	}
	return *c.UDPAddress
}

// GetListenAddress returns the host:port the UDP listener binds to.
func (c *ServiceConfig) GetListenAddress() string {
	return net.JoinHostPort(c.GetUDPAddress(), strconv.Itoa(c.GetUDPPort()))
}

// GetHTTPListen returns the HTTP listen address or the default.
func (c *ServiceConfig) GetHTTPListen() string {
	if c.HTTPListen == nil || *c.HTTPListen == "" {
		return DefaultHTTPListen
	}
	return *c.HTTPListen
}

// GetRcvBuf returns the socket receive buffer size or the default.
func (c *ServiceConfig) GetRcvBuf() int {
	if c.RcvBuf == nil {
		return DefaultRcvBuf
	}
	return *c.RcvBuf
}

// GetLogInterval parses and returns the LogInterval as a time.Duration.
func (c *ServiceConfig) GetLogInterval() time.Duration {
	if c.LogInterval == nil || *c.LogInterval == "" {
		return DefaultLogInterval
	}
	d, err := time.ParseDuration(*c.LogInterval)
	if err != nil || d <= 0 {
		return DefaultLogInterval // default on parse error
	}
	return d
}

// ForwardingEnabled reports whether raw datagrams should be relayed.
func (c *ServiceConfig) ForwardingEnabled() bool {
	return c.ForwardPort != nil
}

// GetForwardAddress returns the relay host, defaulting to localhost.
func (c *ServiceConfig) GetForwardAddress() string {
	if c.ForwardAddress == nil || *c.ForwardAddress == "" {
		return "localhost"
	}
	return *c.ForwardAddress
}

// GetForwardPort returns the relay port, or 0 when forwarding is disabled.
func (c *ServiceConfig) GetForwardPort() int {
	if c.ForwardPort == nil {
		return 0
	}
	return *c.ForwardPort
}

// GetCapturePath returns the capture file path; empty disables capture.
func (c *ServiceConfig) GetCapturePath() string {
	if c.CapturePath == nil {
		return ""
	}
	return *c.CapturePath
}

// GetDBPath returns the lap archive path; empty disables the archive.
func (c *ServiceConfig) GetDBPath() string {
	if c.DBPath == nil {
		return ""
	}
	return *c.DBPath
}

// GetUnits returns the display speed units or the default.
func (c *ServiceConfig) GetUnits() string {
	if c.Units == nil {
		return DefaultUnits
	}
	return *c.Units
}
